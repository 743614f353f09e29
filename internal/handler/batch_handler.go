package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-results-api/internal/dto"
	"github.com/noah-isme/sma-results-api/internal/service"
	appErrors "github.com/noah-isme/sma-results-api/pkg/errors"
	"github.com/noah-isme/sma-results-api/pkg/response"
)

type batchReportService interface {
	CreateBatch(ctx context.Context, req dto.CreateBatchRequest, actorID string) (*dto.BatchResponse, error)
	GetStatus(ctx context.Context, id string) (*dto.BatchStatusResponse, error)
	ResolveDownload(ctx context.Context, token string) (*service.ReportDownload, error)
}

// BatchHandler exposes report card batch endpoints.
type BatchHandler struct {
	batches batchReportService
}

// NewBatchHandler constructs the handler.
func NewBatchHandler(batches batchReportService) *BatchHandler {
	return &BatchHandler{batches: batches}
}

// Create godoc
// @Summary Queue report cards for a class
// @Tags Report Batches
// @Accept json
// @Produce json
// @Param payload body dto.CreateBatchRequest true "Batch request"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /report-batches [post]
func (h *BatchHandler) Create(c *gin.Context) {
	actor, err := actorID(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload"))
		return
	}
	resp, err := h.batches.CreateBatch(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, resp)
}

// Status godoc
// @Summary Report card batch progress
// @Tags Report Batches
// @Produce json
// @Param id path string true "Batch ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /report-batches/{id} [get]
func (h *BatchHandler) Status(c *gin.Context) {
	resp, err := h.batches.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp)
}

// Download godoc
// @Summary Download a generated report card
// @Tags Report Batches
// @Produce application/pdf
// @Param token path string true "Signed download token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /export/{token} [get]
func (h *BatchHandler) Download(c *gin.Context) {
	download, err := h.batches.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close() //nolint:errcheck

	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read report card"))
		return
	}
	c.Header("Cache-Control", "private, no-store")
	c.Header("X-Download-Expires", download.ExpiresAt.UTC().Format(http.TimeFormat))
	c.DataFromReader(http.StatusOK, info.Size(), "application/pdf", download.File, map[string]string{
		"Content-Disposition": "attachment; filename=" + strconv.Quote(download.Filename),
	})
}
