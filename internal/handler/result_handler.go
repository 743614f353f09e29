package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-results-api/internal/grading"
	"github.com/noah-isme/sma-results-api/internal/models"
	"github.com/noah-isme/sma-results-api/internal/service"
	"github.com/noah-isme/sma-results-api/pkg/response"
)

type resultProvider interface {
	ClassResults(ctx context.Context, scope models.ResultScope) (*service.ClassResult, error)
	StudentResult(ctx context.Context, scope models.ResultScope, studentID string) (*grading.StudentAggregate, error)
	Broadsheet(ctx context.Context, scope models.ResultScope) ([]byte, error)
	Invalidate(ctx context.Context, scope models.ResultScope) error
}

// ResultHandler exposes ranked class results.
type ResultHandler struct {
	results resultProvider
}

// NewResultHandler constructs the handler.
func NewResultHandler(results resultProvider) *ResultHandler {
	return &ResultHandler{results: results}
}

// ClassResults godoc
// @Summary Ranked class results
// @Tags Results
// @Produce json
// @Param id path string true "Class ID"
// @Param termId query string true "Term ID"
// @Param examId query string true "Exam ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /classes/{id}/results [get]
func (h *ResultHandler) ClassResults(c *gin.Context) {
	scope, err := scopeFromRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.results.ClassResults(c.Request.Context(), scope)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, map[string]interface{}{
		"policy":     result.PolicyFingerprint,
		"computedAt": result.ComputedAt,
	})
}

// StudentResult godoc
// @Summary One student's result within the class ranking
// @Tags Results
// @Produce json
// @Param id path string true "Class ID"
// @Param studentId path string true "Student ID"
// @Param termId query string true "Term ID"
// @Param examId query string true "Exam ID"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /classes/{id}/results/students/{studentId} [get]
func (h *ResultHandler) StudentResult(c *gin.Context) {
	scope, err := scopeFromRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	student, err := h.results.StudentResult(c.Request.Context(), scope, c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student)
}

// Broadsheet godoc
// @Summary Class broadsheet as CSV
// @Tags Results
// @Produce text/csv
// @Param id path string true "Class ID"
// @Param termId query string true "Term ID"
// @Param examId query string true "Exam ID"
// @Success 200 {file} file
// @Router /classes/{id}/broadsheet [get]
func (h *ResultHandler) Broadsheet(c *gin.Context) {
	scope, err := scopeFromRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	data, err := h.results.Broadsheet(c.Request.Context(), scope)
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("broadsheet_%s_%s_%s.csv", scope.ClassID, scope.TermID, scope.ExamID)
	response.Attachment(c, filename, "text/csv", data)
}

// Refresh godoc
// @Summary Drop cached results after marks change
// @Tags Results
// @Param id path string true "Class ID"
// @Param termId query string true "Term ID"
// @Param examId query string true "Exam ID"
// @Success 204
// @Router /classes/{id}/results/refresh [post]
func (h *ResultHandler) Refresh(c *gin.Context) {
	scope, err := scopeFromRequest(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.results.Invalidate(c.Request.Context(), scope); err != nil {
		response.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
