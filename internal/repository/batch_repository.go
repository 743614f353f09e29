package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-results-api/internal/models"
)

const batchColumns = `id, class_id, term_id, exam_id, student_ids, status, progress, total, succeeded, failed, cancelled, created_by, created_at, finished_at, error_message`

// BatchRepository persists report card batches and their per-student items.
type BatchRepository struct {
	db *sqlx.DB
}

// NewBatchRepository constructs the repository.
func NewBatchRepository(db *sqlx.DB) *BatchRepository {
	return &BatchRepository{db: db}
}

// Create inserts a new batch row with generated defaults.
func (r *BatchRepository) Create(ctx context.Context, batch *models.ReportBatch) error {
	if batch.ID == "" {
		batch.ID = uuid.NewString()
	}
	if batch.Status == "" {
		batch.Status = models.BatchStatusQueued
	}
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO report_batches (id, class_id, term_id, exam_id, student_ids, status, progress, total, succeeded, failed, cancelled, created_by, created_at, finished_at, error_message)
VALUES (:id, :class_id, :term_id, :exam_id, :student_ids, :status, :progress, :total, :succeeded, :failed, :cancelled, :created_by, :created_at, :finished_at, :error_message)`
	if _, err := r.db.NamedExecContext(ctx, query, batch); err != nil {
		return fmt.Errorf("create report batch: %w", err)
	}
	return nil
}

// GetByID returns a batch row by its identifier.
func (r *BatchRepository) GetByID(ctx context.Context, id string) (*models.ReportBatch, error) {
	query := `SELECT ` + batchColumns + ` FROM report_batches WHERE id = $1`
	var batch models.ReportBatch
	if err := r.db.GetContext(ctx, &batch, query, id); err != nil {
		return nil, fmt.Errorf("get report batch: %w", err)
	}
	return &batch, nil
}

// UpdateBatchParams defines the mutable fields.
type UpdateBatchParams struct {
	Status       *models.BatchStatus
	Progress     *int
	Total        *int
	Succeeded    *int
	Failed       *int
	Cancelled    *int
	ErrorMessage *string
	FinishedAt   *time.Time
}

// Update persists the provided changes for a batch row.
func (r *BatchRepository) Update(ctx context.Context, id string, params UpdateBatchParams) error {
	set := make([]string, 0, 8)
	args := make([]interface{}, 0, 9)
	add := func(column string, value interface{}) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if params.Status != nil {
		add("status", *params.Status)
	}
	if params.Progress != nil {
		add("progress", *params.Progress)
	}
	if params.Total != nil {
		add("total", *params.Total)
	}
	if params.Succeeded != nil {
		add("succeeded", *params.Succeeded)
	}
	if params.Failed != nil {
		add("failed", *params.Failed)
	}
	if params.Cancelled != nil {
		add("cancelled", *params.Cancelled)
	}
	if params.ErrorMessage != nil {
		add("error_message", *params.ErrorMessage)
	}
	if params.FinishedAt != nil {
		add("finished_at", *params.FinishedAt)
	}

	if len(set) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE report_batches SET %s WHERE id = $%d", strings.Join(set, ", "), len(args))

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update report batch: %w", err)
	}
	return nil
}

// ReplaceItems swaps the stored item outcomes of a batch within a transaction. A retried
// batch overwrites the items of the earlier attempt.
func (r *BatchRepository) ReplaceItems(ctx context.Context, batchID string, items []models.ReportBatchItem) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace batch items: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM report_batch_items WHERE batch_id = $1`, batchID); err != nil {
		return fmt.Errorf("clear batch items: %w", err)
	}

	for _, item := range items {
		payload := item
		payload.BatchID = batchID
		if _, err = tx.NamedExecContext(ctx, `INSERT INTO report_batch_items (batch_id, position, student_id, status, artifact_ref, error_message) VALUES (:batch_id, :position, :student_id, :status, :artifact_ref, :error_message)`, &payload); err != nil {
			return fmt.Errorf("insert batch item: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit batch items: %w", err)
	}
	return nil
}

// ListItems returns a batch's item outcomes in request order.
func (r *BatchRepository) ListItems(ctx context.Context, batchID string) ([]models.ReportBatchItem, error) {
	const query = `SELECT batch_id, position, student_id, status, artifact_ref, error_message
FROM report_batch_items WHERE batch_id = $1 ORDER BY position ASC`
	var items []models.ReportBatchItem
	if err := r.db.SelectContext(ctx, &items, query, batchID); err != nil {
		return nil, fmt.Errorf("list batch items: %w", err)
	}
	return items, nil
}

// FindItemByArtifact resolves the item holding a stored report card.
func (r *BatchRepository) FindItemByArtifact(ctx context.Context, batchID, artifactRef string) (*models.ReportBatchItem, error) {
	const query = `SELECT batch_id, position, student_id, status, artifact_ref, error_message
FROM report_batch_items WHERE batch_id = $1 AND artifact_ref = $2`
	var item models.ReportBatchItem
	if err := r.db.GetContext(ctx, &item, query, batchID, artifactRef); err != nil {
		return nil, fmt.Errorf("find batch item: %w", err)
	}
	return &item, nil
}

// ListQueued fetches queued batches (used for cold start recovery).
func (r *BatchRepository) ListQueued(ctx context.Context, limit int) ([]models.ReportBatch, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + batchColumns + ` FROM report_batches WHERE status = 'QUEUED' ORDER BY created_at ASC LIMIT $1`
	var batches []models.ReportBatch
	if err := r.db.SelectContext(ctx, &batches, query, limit); err != nil {
		return nil, fmt.Errorf("list queued report batches: %w", err)
	}
	return batches, nil
}

// ListFinishedBefore retrieves completed batches prior to cutoff for cleanup.
func (r *BatchRepository) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportBatch, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + batchColumns + ` FROM report_batches WHERE status = 'FINISHED' AND finished_at IS NOT NULL AND finished_at < $1 ORDER BY finished_at ASC LIMIT $2`
	var batches []models.ReportBatch
	if err := r.db.SelectContext(ctx, &batches, query, cutoff, limit); err != nil {
		return nil, fmt.Errorf("list finished report batches: %w", err)
	}
	return batches, nil
}
