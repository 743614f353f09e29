package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// BatchStatus captures the report batch lifecycle.
type BatchStatus string

const (
	BatchStatusQueued     BatchStatus = "QUEUED"
	BatchStatusProcessing BatchStatus = "PROCESSING"
	BatchStatusFinished   BatchStatus = "FINISHED"
	BatchStatusFailed     BatchStatus = "FAILED"
)

// BatchItemStatus is the outcome of one student's report card.
type BatchItemStatus string

const (
	BatchItemSucceeded BatchItemStatus = "succeeded"
	BatchItemFailed    BatchItemStatus = "failed"
	BatchItemCancelled BatchItemStatus = "cancelled"
)

// ReportBatch persisted report card batch metadata.
type ReportBatch struct {
	ID           string        `db:"id" json:"id"`
	ClassID      string        `db:"class_id" json:"class_id"`
	TermID       string        `db:"term_id" json:"term_id"`
	ExamID       string        `db:"exam_id" json:"exam_id"`
	StudentIDs   StudentIDList `db:"student_ids" json:"student_ids"`
	Status       BatchStatus   `db:"status" json:"status"`
	Progress     int           `db:"progress" json:"progress"`
	Total        int           `db:"total" json:"total"`
	Succeeded    int           `db:"succeeded" json:"succeeded"`
	Failed       int           `db:"failed" json:"failed"`
	Cancelled    int           `db:"cancelled" json:"cancelled"`
	CreatedBy    string        `db:"created_by" json:"created_by"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time    `db:"finished_at" json:"finished_at,omitempty"`
	ErrorMessage *string       `db:"error_message" json:"error_message,omitempty"`
}

// Scope returns the class sitting the batch reports on.
func (b ReportBatch) Scope() ResultScope {
	return ResultScope{ClassID: b.ClassID, TermID: b.TermID, ExamID: b.ExamID}
}

// ReportBatchItem is one student's report card outcome, kept in request order by Position.
type ReportBatchItem struct {
	BatchID      string          `db:"batch_id" json:"batch_id"`
	Position     int             `db:"position" json:"position"`
	StudentID    string          `db:"student_id" json:"student_id"`
	Status       BatchItemStatus `db:"status" json:"status"`
	ArtifactRef  *string         `db:"artifact_ref" json:"artifact_ref,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
}

// StudentIDList is an explicit student selection stored as JSONB. Empty means the whole class.
type StudentIDList []string

// Value marshals the list to JSON for persistence.
func (l StudentIDList) Value() (driver.Value, error) {
	if l == nil {
		l = StudentIDList{}
	}
	data, err := json.Marshal([]string(l))
	if err != nil {
		return nil, fmt.Errorf("marshal student id list: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the list.
func (l *StudentIDList) Scan(value interface{}) error {
	if value == nil {
		*l = StudentIDList{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for StudentIDList", value)
	}
	if len(data) == 0 {
		*l = StudentIDList{}
		return nil
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return fmt.Errorf("unmarshal student id list: %w", err)
	}
	*l = ids
	return nil
}
