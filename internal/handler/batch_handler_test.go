package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-results-api/internal/dto"
	"github.com/noah-isme/sma-results-api/internal/middleware"
	"github.com/noah-isme/sma-results-api/internal/models"
	"github.com/noah-isme/sma-results-api/internal/service"
	appErrors "github.com/noah-isme/sma-results-api/pkg/errors"
)

type batchServiceMock struct {
	createReq   dto.CreateBatchRequest
	actor       string
	createResp  *dto.BatchResponse
	createErr   error
	statusResp  *dto.BatchStatusResponse
	statusErr   error
	download    *service.ReportDownload
	downloadErr error
}

func (m *batchServiceMock) CreateBatch(ctx context.Context, req dto.CreateBatchRequest, actorID string) (*dto.BatchResponse, error) {
	m.createReq = req
	m.actor = actorID
	return m.createResp, m.createErr
}

func (m *batchServiceMock) GetStatus(ctx context.Context, id string) (*dto.BatchStatusResponse, error) {
	return m.statusResp, m.statusErr
}

func (m *batchServiceMock) ResolveDownload(ctx context.Context, token string) (*service.ReportDownload, error) {
	return m.download, m.downloadErr
}

func TestBatchHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &batchServiceMock{createResp: &dto.BatchResponse{ID: "batch-1", Status: models.BatchStatusQueued}}
	handler := NewBatchHandler(mock)

	payload, _ := json.Marshal(dto.CreateBatchRequest{ClassID: "class-4a", TermID: "term-1", ExamID: "exam-final"})
	c, w := newGinContext(http.MethodPost, "/report-batches", payload)
	c.Set(middleware.ContextUserKey, &models.ActorClaims{UserID: "teacher-1", Role: models.RoleTeacher})

	handler.Create(c)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "teacher-1", mock.actor)
	assert.Equal(t, "class-4a", mock.createReq.ClassID)
	assert.Contains(t, w.Body.String(), `"id":"batch-1"`)
}

func TestBatchHandlerCreateRejects(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewBatchHandler(&batchServiceMock{})

	c, w := newGinContext(http.MethodPost, "/report-batches", []byte(`{}`))
	handler.Create(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c, w = newGinContext(http.MethodPost, "/report-batches", []byte(`{"classId":`))
	c.Set(middleware.ContextUserKey, &models.ActorClaims{UserID: "teacher-1", Role: models.RoleTeacher})
	handler.Create(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBatchHandlerStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &batchServiceMock{statusResp: &dto.BatchStatusResponse{ID: "batch-1", Status: models.BatchStatusFinished, Progress: 100}}
	handler := NewBatchHandler(mock)

	c, w := newGinContext(http.MethodGet, "/report-batches/batch-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "batch-1"}}
	handler.Status(c)
	require.Equal(t, http.StatusOK, w.Code)

	mock.statusErr = appErrors.ErrNotFound
	c, w = newGinContext(http.MethodGet, "/report-batches/missing", nil)
	handler.Status(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestBatchHandlerDownload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	path := filepath.Join(t.TempDir(), "s1.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.3"), 0o600))
	file, err := os.Open(path)
	require.NoError(t, err)

	mock := &batchServiceMock{download: &service.ReportDownload{File: file, Filename: "Asha.pdf", ExpiresAt: time.Now().Add(time.Hour)}}
	handler := NewBatchHandler(mock)

	c, w := newGinContext(http.MethodGet, "/export/token", nil)
	c.Params = gin.Params{{Key: "token", Value: "token"}}
	handler.Download(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="Asha.pdf"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.3", w.Body.String())

	mock.download = nil
	mock.downloadErr = appErrors.ErrForbidden
	c, w = newGinContext(http.MethodGet, "/export/bad", nil)
	handler.Download(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
