package dto

import (
	"time"

	"github.com/noah-isme/sma-results-api/internal/models"
)

// CreateBatchRequest captures POST /report-batches payload. An empty StudentIDs list asks
// for the whole class.
type CreateBatchRequest struct {
	ClassID    string   `json:"classId" validate:"required"`
	TermID     string   `json:"termId" validate:"required"`
	ExamID     string   `json:"examId" validate:"required"`
	StudentIDs []string `json:"studentIds,omitempty" validate:"omitempty,max=1000,unique,dive,required"`
}

// BatchResponse is returned after a batch has been queued.
type BatchResponse struct {
	ID       string             `json:"id"`
	Status   models.BatchStatus `json:"status"`
	Progress int                `json:"progress"`
}

// BatchItemResponse is one student's report card outcome.
type BatchItemResponse struct {
	Position    int                    `json:"position"`
	StudentID   string                 `json:"studentId"`
	Status      models.BatchItemStatus `json:"status"`
	DownloadURL *string                `json:"downloadUrl,omitempty"`
	Error       *string                `json:"error,omitempty"`
}

// BatchStatusResponse exposes batch progress and per-student results.
type BatchStatusResponse struct {
	ID         string              `json:"id"`
	ClassID    string              `json:"classId"`
	TermID     string              `json:"termId"`
	ExamID     string              `json:"examId"`
	Status     models.BatchStatus  `json:"status"`
	Progress   int                 `json:"progress"`
	Total      int                 `json:"total"`
	Succeeded  int                 `json:"succeeded"`
	Failed     int                 `json:"failed"`
	Cancelled  int                 `json:"cancelled"`
	Error      *string             `json:"error,omitempty"`
	Items      []BatchItemResponse `json:"items"`
	CreatedAt  time.Time           `json:"createdAt"`
	FinishedAt *time.Time          `json:"finishedAt,omitempty"`
}
