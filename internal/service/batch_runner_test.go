package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-results-api/internal/models"
)

func batchItems(n int) []BatchItem {
	items := make([]BatchItem, n)
	for i := range items {
		items[i] = BatchItem{StudentID: fmt.Sprintf("stu-%d", i+1), StudentName: fmt.Sprintf("Student %d", i+1)}
	}
	return items
}

func TestBatchRunnerPartialFailure(t *testing.T) {
	runner := NewBatchRunner(zap.NewNop(), NewMetricsService())
	job := func(ctx context.Context, item BatchItem) (string, error) {
		if item.StudentID == "stu-3" {
			return "", errors.New("renderer unavailable")
		}
		return "card-" + item.StudentID, nil
	}

	report := runner.Run(context.Background(), batchItems(5), job, BatchOptions{})

	assert.Equal(t, 5, report.TotalCount)
	assert.Equal(t, 5, report.CompletedCount)
	assert.Equal(t, 4, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Results, 5)
	for i, result := range report.Results {
		assert.Equal(t, fmt.Sprintf("stu-%d", i+1), result.StudentID)
		if i == 2 {
			assert.False(t, result.Success)
			assert.Equal(t, models.BatchItemFailed, result.Status)
			assert.NotEmpty(t, result.ErrorMessage)
			assert.Empty(t, result.ArtifactRef)
			continue
		}
		assert.True(t, result.Success)
		assert.Equal(t, "card-"+result.StudentID, result.ArtifactRef)
	}

	failures := report.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "stu-3", failures[0].StudentID)
	assert.Equal(t, "Student 3", failures[0].StudentName)
}

func TestBatchRunnerPreservesOrderUnderConcurrency(t *testing.T) {
	runner := NewBatchRunner(nil, nil)
	var running, peak int32
	job := func(ctx context.Context, item BatchItem) (string, error) {
		now := atomic.AddInt32(&running, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if now <= old || atomic.CompareAndSwapInt32(&peak, old, now) {
				break
			}
		}
		defer atomic.AddInt32(&running, -1)
		// later items finish first
		var n int
		_, _ = fmt.Sscanf(item.StudentID, "stu-%d", &n)
		time.Sleep(time.Duration(20-n) * time.Millisecond)
		return "ref-" + item.StudentID, nil
	}

	report := runner.Run(context.Background(), batchItems(12), job, BatchOptions{Workers: 4})

	require.Len(t, report.Results, 12)
	for i, result := range report.Results {
		assert.Equal(t, fmt.Sprintf("ref-stu-%d", i+1), result.ArtifactRef)
	}
	assert.Equal(t, 12, report.Succeeded)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(4))
}

func TestBatchRunnerProgressIsMonotonic(t *testing.T) {
	runner := NewBatchRunner(nil, nil)
	var mu sync.Mutex
	var seen []BatchProgress
	opts := BatchOptions{
		Workers: 3,
		OnProgress: func(p BatchProgress) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, p)
		},
	}
	job := func(ctx context.Context, item BatchItem) (string, error) {
		return item.StudentID, nil
	}

	runner.Run(context.Background(), batchItems(6), job, opts)

	require.Len(t, seen, 6)
	for i, p := range seen {
		assert.Equal(t, i+1, p.Completed)
		assert.Equal(t, 6, p.Total)
	}
	assert.Equal(t, 100, seen[5].Percent())
}

func TestBatchRunnerCancellationStopsLaunching(t *testing.T) {
	runner := NewBatchRunner(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	job := func(jobCtx context.Context, item BatchItem) (string, error) {
		atomic.AddInt32(&calls, 1)
		if item.StudentID == "stu-2" {
			cancel()
			// the started item still completes
			time.Sleep(10 * time.Millisecond)
			if jobCtx.Err() != nil {
				return "", jobCtx.Err()
			}
		}
		return "ref-" + item.StudentID, nil
	}

	report := runner.Run(ctx, batchItems(5), job, BatchOptions{Workers: 1})

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, 5, report.CompletedCount)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 3, report.Cancelled)
	assert.True(t, report.Results[1].Success)
	for _, result := range report.Results[2:] {
		assert.Equal(t, models.BatchItemCancelled, result.Status)
		assert.False(t, result.Success)
		assert.NotEmpty(t, result.StudentID)
	}
}

func TestBatchRunnerAlreadyCancelled(t *testing.T) {
	runner := NewBatchRunner(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job := func(ctx context.Context, item BatchItem) (string, error) {
		t.Errorf("job must not run")
		return "", nil
	}
	report := runner.Run(ctx, batchItems(3), job, BatchOptions{})
	assert.Equal(t, 3, report.Cancelled)
	assert.Equal(t, 3, report.CompletedCount)
}

func TestBatchRunnerItemTimeout(t *testing.T) {
	runner := NewBatchRunner(nil, nil)
	job := func(ctx context.Context, item BatchItem) (string, error) {
		if item.StudentID == "stu-1" {
			// ignores its context on purpose
			time.Sleep(200 * time.Millisecond)
		}
		return "ok", nil
	}

	report := runner.Run(context.Background(), batchItems(2), job, BatchOptions{ItemTimeout: 20 * time.Millisecond})

	assert.Equal(t, models.BatchItemFailed, report.Results[0].Status)
	assert.Contains(t, report.Results[0].ErrorMessage, "timed out")
	assert.True(t, report.Results[1].Success)
}

func TestBatchRunnerRecoversPanics(t *testing.T) {
	runner := NewBatchRunner(nil, nil)
	job := func(ctx context.Context, item BatchItem) (string, error) {
		if item.StudentID == "stu-2" {
			panic("nil aggregate")
		}
		return "ok", nil
	}

	report := runner.Run(context.Background(), batchItems(3), job, BatchOptions{Workers: 2})

	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Contains(t, report.Results[1].ErrorMessage, "nil aggregate")
}

func TestBatchRunnerEmpty(t *testing.T) {
	runner := NewBatchRunner(nil, nil)
	called := false
	report := runner.Run(context.Background(), nil, func(ctx context.Context, item BatchItem) (string, error) {
		return "", nil
	}, BatchOptions{OnProgress: func(BatchProgress) { called = true }})

	assert.Equal(t, 0, report.TotalCount)
	assert.Equal(t, 0, report.CompletedCount)
	assert.Empty(t, report.Results)
	assert.False(t, called)
}
