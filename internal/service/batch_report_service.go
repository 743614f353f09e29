package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-results-api/internal/dto"
	"github.com/noah-isme/sma-results-api/internal/models"
	"github.com/noah-isme/sma-results-api/internal/repository"
	appErrors "github.com/noah-isme/sma-results-api/pkg/errors"
	"github.com/noah-isme/sma-results-api/pkg/jobs"
	"github.com/noah-isme/sma-results-api/pkg/storage"
)

// JobTypeReportBatch tags queue jobs that render a report card batch.
const JobTypeReportBatch = "report_batch"

type batchStore interface {
	Create(ctx context.Context, batch *models.ReportBatch) error
	GetByID(ctx context.Context, id string) (*models.ReportBatch, error)
	Update(ctx context.Context, id string, params repository.UpdateBatchParams) error
	ReplaceItems(ctx context.Context, batchID string, items []models.ReportBatchItem) error
	ListItems(ctx context.Context, batchID string) ([]models.ReportBatchItem, error)
	FindItemByArtifact(ctx context.Context, batchID, artifactRef string) (*models.ReportBatchItem, error)
	ListQueued(ctx context.Context, limit int) ([]models.ReportBatch, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportBatch, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type artifactStore interface {
	Verify(token string, allowExpired bool) (storage.DownloadClaims, error)
	Open(relPath string) (*os.File, error)
	Delete(relPath string) error
	Cleanup(ttl time.Duration) ([]string, error)
}

type classResultSource interface {
	ClassResults(ctx context.Context, scope models.ResultScope) (*ClassResult, error)
	StudentJob(batchID string, result *ClassResult, renderer cardRenderer) BatchJob
}

// BatchReportConfig governs download URLs, queue recovery and cleanup.
type BatchReportConfig struct {
	APIPrefix       string
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// ReportDownload is a resolved report card download.
type ReportDownload struct {
	File      *os.File
	Filename  string
	ExpiresAt time.Time
}

// BatchReportService manages the report card batch lifecycle.
type BatchReportService struct {
	repo      batchStore
	queue     jobDispatcher
	artifacts artifactStore
	validate  *validator.Validate
	logger    *zap.Logger
	cfg       BatchReportConfig
}

// NewBatchReportService constructs the service.
func NewBatchReportService(repo batchStore, queue jobDispatcher, artifacts artifactStore, validate *validator.Validate, logger *zap.Logger, cfg BatchReportConfig) *BatchReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	return &BatchReportService{
		repo:      repo,
		queue:     queue,
		artifacts: artifacts,
		validate:  validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// CreateBatch validates the request, persists the batch and enqueues it.
func (s *BatchReportService) CreateBatch(ctx context.Context, req dto.CreateBatchRequest, actorID string) (*dto.BatchResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	batch := &models.ReportBatch{
		ClassID:    req.ClassID,
		TermID:     req.TermID,
		ExamID:     req.ExamID,
		StudentIDs: models.StudentIDList(req.StudentIDs),
		Status:     models.BatchStatusQueued,
		Total:      len(req.StudentIDs),
		CreatedBy:  actorID,
	}
	if err := s.repo.Create(ctx, batch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report batch")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: batch.ID, Type: JobTypeReportBatch}); err != nil {
		status := models.BatchStatusFailed
		msg := "failed to enqueue batch"
		now := time.Now().UTC()
		progress := 100
		_ = s.repo.Update(ctx, batch.ID, repository.UpdateBatchParams{
			Status:       &status,
			Progress:     &progress,
			ErrorMessage: &msg,
			FinishedAt:   &now,
		})
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue report batch")
	}
	s.logger.Sugar().Infow("report batch queued", "batch_id", batch.ID, "class_id", batch.ClassID, "requested", batch.Total)
	return &dto.BatchResponse{ID: batch.ID, Status: batch.Status, Progress: batch.Progress}, nil
}

// GetStatus exposes batch progress and item outcomes.
func (s *BatchReportService) GetStatus(ctx context.Context, id string) (*dto.BatchStatusResponse, error) {
	batch, err := s.loadBatch(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.ListItems(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch items")
	}

	resp := &dto.BatchStatusResponse{
		ID:         batch.ID,
		ClassID:    batch.ClassID,
		TermID:     batch.TermID,
		ExamID:     batch.ExamID,
		Status:     batch.Status,
		Progress:   batch.Progress,
		Total:      batch.Total,
		Succeeded:  batch.Succeeded,
		Failed:     batch.Failed,
		Cancelled:  batch.Cancelled,
		Items:      make([]dto.BatchItemResponse, 0, len(items)),
		CreatedAt:  batch.CreatedAt,
		FinishedAt: batch.FinishedAt,
	}
	if batch.ErrorMessage != nil && *batch.ErrorMessage != "" {
		resp.Error = batch.ErrorMessage
	}
	for _, item := range items {
		entry := dto.BatchItemResponse{
			Position:  item.Position,
			StudentID: item.StudentID,
			Status:    item.Status,
			Error:     item.ErrorMessage,
		}
		if item.ArtifactRef != nil && *item.ArtifactRef != "" {
			url := s.downloadURL(*item.ArtifactRef)
			entry.DownloadURL = &url
		}
		resp.Items = append(resp.Items, entry)
	}
	return resp, nil
}

// ResolveDownload validates the token and opens the stored report card.
func (s *BatchReportService) ResolveDownload(ctx context.Context, token string) (*ReportDownload, error) {
	claims, err := s.artifacts.Verify(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	batch, err := s.loadBatch(ctx, claims.BatchID)
	if err != nil {
		return nil, err
	}
	if batch.Status != models.BatchStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report batch not finished")
	}
	item, err := s.repo.FindItemByArtifact(ctx, batch.ID, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load batch item")
	}
	if item.Status != models.BatchItemSucceeded {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report card not available")
	}
	file, err := s.artifacts.Open(claims.Path)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open report card")
	}
	return &ReportDownload{File: file, Filename: path.Base(claims.Path), ExpiresAt: claims.ExpiresAt}, nil
}

// RecoverPendingJobs replays queued batches after a restart.
func (s *BatchReportService) RecoverPendingJobs(ctx context.Context) {
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Sugar().Warnw("failed to recover queued report batches", "error", err)
		return
	}
	for _, batch := range pending {
		if err := s.queue.Enqueue(jobs.Job{ID: batch.ID, Type: JobTypeReportBatch}); err != nil {
			s.logger.Sugar().Warnw("failed to requeue pending batch", "batch_id", batch.ID, "error", err)
		}
	}
}

// StartCleanup boots a goroutine that purges expired report cards periodically.
func (s *BatchReportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanupExpired(ctx)
			}
		}
	}()
}

func (s *BatchReportService) cleanupExpired(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.ResultTTL)
	batches, err := s.repo.ListFinishedBefore(ctx, cutoff, 100)
	if err != nil {
		s.logger.Sugar().Warnw("cleanup list failed", "error", err)
		return
	}
	for _, batch := range batches {
		items, err := s.repo.ListItems(ctx, batch.ID)
		if err != nil {
			s.logger.Sugar().Warnw("cleanup items failed", "batch_id", batch.ID, "error", err)
			continue
		}
		for _, item := range items {
			if item.ArtifactRef == nil || *item.ArtifactRef == "" {
				continue
			}
			claims, err := s.artifacts.Verify(*item.ArtifactRef, true)
			if err != nil {
				continue
			}
			if err := s.artifacts.Delete(claims.Path); err != nil {
				s.logger.Sugar().Warnw("cleanup delete failed", "batch_id", batch.ID, "error", err)
			}
		}
	}
	if _, err := s.artifacts.Cleanup(s.cfg.ResultTTL); err != nil {
		s.logger.Sugar().Warnw("filesystem cleanup failed", "error", err)
	}
}

func (s *BatchReportService) loadBatch(ctx context.Context, id string) (*models.ReportBatch, error) {
	batch, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report batch")
	}
	return batch, nil
}

func (s *BatchReportService) downloadURL(token string) string {
	return fmt.Sprintf("%s/export/%s", strings.TrimRight(s.cfg.APIPrefix, "/"), token)
}

// BatchWorkerConfig tunes how a batch is executed.
type BatchWorkerConfig struct {
	Workers     int
	ItemTimeout time.Duration
	MaxRetries  int
}

// BatchWorker bridges queue jobs to the batch runner.
type BatchWorker struct {
	repo     batchStore
	results  classResultSource
	renderer cardRenderer
	runner   *BatchRunner
	cfg      BatchWorkerConfig
	logger   *zap.Logger
}

// NewBatchWorker constructs a worker.
func NewBatchWorker(repo batchStore, results classResultSource, renderer cardRenderer, runner *BatchRunner, cfg BatchWorkerConfig, logger *zap.Logger) *BatchWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if runner == nil {
		runner = NewBatchRunner(logger, nil)
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &BatchWorker{repo: repo, results: results, renderer: renderer, runner: runner, cfg: cfg, logger: logger}
}

// Handle processes a queue job. Item failures never fail the batch; only a class result that
// cannot be built does, once the queue has run out of retries.
func (w *BatchWorker) Handle(ctx context.Context, job jobs.Job) error {
	batch, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	if batch.Status == models.BatchStatusFinished || batch.Status == models.BatchStatusFailed {
		return nil
	}

	// bookkeeping must land even when the queue is shutting down
	persistCtx := context.WithoutCancel(ctx)

	processing := models.BatchStatusProcessing
	progress := 0
	if err := w.repo.Update(persistCtx, batch.ID, repository.UpdateBatchParams{
		Status:   &processing,
		Progress: &progress,
	}); err != nil {
		return err
	}

	result, err := w.results.ClassResults(ctx, batch.Scope())
	if err != nil {
		w.recordContextFailure(persistCtx, batch.ID, job.Attempt, err)
		return err
	}

	items := batchItemsFor(batch, result)
	total := len(items)
	if err := w.repo.Update(persistCtx, batch.ID, repository.UpdateBatchParams{Total: &total}); err != nil {
		return err
	}

	report := w.runner.Run(ctx, items, w.results.StudentJob(batch.ID, result, w.renderer), BatchOptions{
		Workers:     w.cfg.Workers,
		ItemTimeout: w.cfg.ItemTimeout,
		OnProgress: func(p BatchProgress) {
			percent := p.Percent()
			if err := w.repo.Update(persistCtx, batch.ID, repository.UpdateBatchParams{Progress: &percent}); err != nil {
				w.logger.Sugar().Warnw("failed to persist batch progress", "batch_id", batch.ID, "error", err)
			}
		},
	})

	rows := make([]models.ReportBatchItem, 0, len(report.Results))
	for i, res := range report.Results {
		row := models.ReportBatchItem{BatchID: batch.ID, Position: i, StudentID: res.StudentID, Status: res.Status}
		if res.ArtifactRef != "" {
			ref := res.ArtifactRef
			row.ArtifactRef = &ref
		}
		if res.ErrorMessage != "" {
			msg := res.ErrorMessage
			row.ErrorMessage = &msg
		}
		rows = append(rows, row)
	}
	if err := w.repo.ReplaceItems(persistCtx, batch.ID, rows); err != nil {
		return err
	}

	finished := models.BatchStatusFinished
	progress = 100
	now := time.Now().UTC()
	summary := batchSummaryMessage(report)
	if err := w.repo.Update(persistCtx, batch.ID, repository.UpdateBatchParams{
		Status:       &finished,
		Progress:     &progress,
		Total:        &report.TotalCount,
		Succeeded:    &report.Succeeded,
		Failed:       &report.Failed,
		Cancelled:    &report.Cancelled,
		ErrorMessage: &summary,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Sugar().Warnw("failed to mark batch finished", "batch_id", batch.ID, "error", err)
		return err
	}
	return nil
}

func (w *BatchWorker) recordContextFailure(ctx context.Context, batchID string, attempt int, cause error) {
	msg := cause.Error()
	params := repository.UpdateBatchParams{ErrorMessage: &msg}
	if attempt >= w.cfg.MaxRetries {
		failed := models.BatchStatusFailed
		progress := 100
		now := time.Now().UTC()
		params.Status = &failed
		params.Progress = &progress
		params.FinishedAt = &now
	} else {
		queued := models.BatchStatusQueued
		reset := 0
		params.Status = &queued
		params.Progress = &reset
	}
	if err := w.repo.Update(ctx, batchID, params); err != nil {
		w.logger.Sugar().Warnw("failed to record batch failure", "batch_id", batchID, "error", err)
	}
}

// batchItemsFor lists the requested students, or the whole class (ranked students first,
// then those left out of the ranking) when none were requested.
func batchItemsFor(batch *models.ReportBatch, result *ClassResult) []BatchItem {
	if len(batch.StudentIDs) > 0 {
		items := make([]BatchItem, 0, len(batch.StudentIDs))
		for _, id := range batch.StudentIDs {
			items = append(items, BatchItem{StudentID: id, StudentName: result.StudentName(id)})
		}
		return items
	}
	items := make([]BatchItem, 0, len(result.Students)+len(result.Incomplete))
	for _, student := range result.Students {
		items = append(items, BatchItem{StudentID: student.StudentID, StudentName: student.StudentName})
	}
	for _, issue := range result.Incomplete {
		items = append(items, BatchItem{StudentID: issue.StudentID, StudentName: issue.StudentName})
	}
	return items
}

func batchSummaryMessage(report BatchReport) string {
	if report.Failed == 0 && report.Cancelled == 0 {
		return ""
	}
	parts := make([]string, 0, 2)
	if report.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d of %d report cards failed", report.Failed, report.TotalCount))
	}
	if report.Cancelled > 0 {
		parts = append(parts, fmt.Sprintf("%d cancelled before start", report.Cancelled))
	}
	return strings.Join(parts, "; ")
}
