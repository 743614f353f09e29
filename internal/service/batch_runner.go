package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/sma-results-api/internal/models"
)

// BatchItem is one requested student of a batch.
type BatchItem struct {
	StudentID   string
	StudentName string
}

// BatchJob produces the artifact reference for one student.
type BatchJob func(ctx context.Context, item BatchItem) (string, error)

// BatchProgress is emitted after every finished item.
type BatchProgress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Percent returns the integer completion percentage.
func (p BatchProgress) Percent() int {
	if p.Total == 0 {
		return 100
	}
	return p.Completed * 100 / p.Total
}

// BatchOptions tunes a single run.
type BatchOptions struct {
	// Workers bounds concurrent jobs. Values below 2 run the batch sequentially.
	Workers int
	// ItemTimeout bounds each job. Zero disables the per-item deadline.
	ItemTimeout time.Duration
	// OnProgress is called after each item, never concurrently with itself.
	OnProgress func(BatchProgress)
}

// BatchItemResult is the outcome of one student, stored at the student's request position.
type BatchItemResult struct {
	StudentID    string                 `json:"student_id"`
	StudentName  string                 `json:"student_name"`
	Success      bool                   `json:"success"`
	Status       models.BatchItemStatus `json:"status"`
	ArtifactRef  string                 `json:"artifact_ref,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
}

// BatchReport is the terminal state of a run.
type BatchReport struct {
	Results        []BatchItemResult `json:"results"`
	CompletedCount int               `json:"completed_count"`
	TotalCount     int               `json:"total_count"`
	Succeeded      int               `json:"succeeded"`
	Failed         int               `json:"failed"`
	Cancelled      int               `json:"cancelled"`
}

// Failures returns the unsuccessful results in request order, cancelled items included.
func (r BatchReport) Failures() []BatchItemResult {
	failed := make([]BatchItemResult, 0, r.Failed+r.Cancelled)
	for _, result := range r.Results {
		if !result.Success {
			failed = append(failed, result)
		}
	}
	return failed
}

// BatchRunner drives a per-student job over a list of students.
type BatchRunner struct {
	logger  *zap.Logger
	metrics *MetricsService
}

// NewBatchRunner constructs a runner. Both arguments are optional.
func NewBatchRunner(logger *zap.Logger, metrics *MetricsService) *BatchRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchRunner{logger: logger, metrics: metrics}
}

// Run executes job for every item and always returns a fully resolved report: every slot is
// either succeeded, failed or cancelled, and CompletedCount equals TotalCount.
//
// A failing item never stops the batch. Cancelling ctx stops new items from launching; items
// already started run to completion, bounded only by ItemTimeout, and the rest are recorded
// as cancelled.
func (r *BatchRunner) Run(ctx context.Context, items []BatchItem, job BatchJob, opts BatchOptions) BatchReport {
	total := len(items)
	report := BatchReport{Results: make([]BatchItemResult, total), TotalCount: total}
	if total == 0 {
		return report
	}

	started := time.Now()
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	detached := context.WithoutCancel(ctx)
	launched := make([]bool, total)

	var (
		progressMu sync.Mutex
		completed  int
	)
	finish := func(idx int, result BatchItemResult) {
		report.Results[idx] = result
		r.metrics.RecordBatchItem(result.Status)

		progressMu.Lock()
		defer progressMu.Unlock()
		completed++
		if opts.OnProgress != nil {
			opts.OnProgress(BatchProgress{Completed: completed, Total: total})
		}
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for idx, item := range items {
		if ctx.Err() != nil {
			break
		}
		// Go blocks while every worker is busy, so cancellation is checked again once the
		// item actually gets a slot.
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			launched[idx] = true
			finish(idx, r.runOne(detached, item, job, opts.ItemTimeout))
			return nil
		})
	}
	_ = g.Wait()

	for idx, item := range items {
		if launched[idx] {
			continue
		}
		report.Results[idx] = BatchItemResult{
			StudentID:    item.StudentID,
			StudentName:  item.StudentName,
			Status:       models.BatchItemCancelled,
			ErrorMessage: "cancelled before start",
		}
		r.metrics.RecordBatchItem(models.BatchItemCancelled)
	}

	for _, result := range report.Results {
		switch result.Status {
		case models.BatchItemSucceeded:
			report.Succeeded++
		case models.BatchItemFailed:
			report.Failed++
		default:
			report.Cancelled++
		}
	}
	report.CompletedCount = report.Succeeded + report.Failed + report.Cancelled
	r.metrics.ObserveBatchDuration(time.Since(started))

	r.logger.Sugar().Infow("batch run finished",
		"total", report.TotalCount,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"cancelled", report.Cancelled,
		"workers", workers,
	)
	return report
}

type jobOutcome struct {
	ref string
	err error
}

// runOne runs the job on its own goroutine so the deadline holds even when the job ignores
// its context. A job abandoned on timeout keeps running until it returns; its outcome is
// dropped.
func (r *BatchRunner) runOne(ctx context.Context, item BatchItem, job BatchJob, timeout time.Duration) BatchItemResult {
	result := BatchItemResult{StudentID: item.StudentID, StudentName: item.StudentName}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan jobOutcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				r.logger.Sugar().Errorw("batch item panicked", "student_id", item.StudentID, "panic", p)
				done <- jobOutcome{err: fmt.Errorf("panic: %v", p)}
			}
		}()
		ref, err := job(ctx, item)
		done <- jobOutcome{ref: ref, err: err}
	}()

	var outcome jobOutcome
	select {
	case outcome = <-done:
	case <-ctx.Done():
		outcome = jobOutcome{err: ctx.Err()}
	}

	if outcome.err != nil {
		err := outcome.err
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", timeout, err)
		}
		r.logger.Sugar().Warnw("batch item failed", "student_id", item.StudentID, "error", err)
		result.Status = models.BatchItemFailed
		result.ErrorMessage = err.Error()
		return result
	}

	result.Success = true
	result.Status = models.BatchItemSucceeded
	result.ArtifactRef = outcome.ref
	return result
}
