package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/sma-results-api/internal/models"
)

func TestAuditLogsSuccessfulActions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(ContextUserKey, &models.ActorClaims{UserID: "admin-1", Role: models.RoleAdmin})
	})
	router.POST("/ok", Audit(zap.New(core), "results.refresh"), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	router.POST("/fail", Audit(zap.New(core), "results.refresh"), func(c *gin.Context) { c.Status(http.StatusBadRequest) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/fail", nil))
	assert.Equal(t, 0, logs.Len())

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/ok", nil))
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "results.refresh", fields["action"])
	assert.Equal(t, "admin-1", fields["actor_id"])
	assert.Equal(t, "ADMIN", fields["role"])
}
