package main

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-results-api/internal/handler"
	"github.com/noah-isme/sma-results-api/internal/middleware"
	"github.com/noah-isme/sma-results-api/internal/models"
	"github.com/noah-isme/sma-results-api/internal/service"
	"github.com/noah-isme/sma-results-api/pkg/config"
	appErrors "github.com/noah-isme/sma-results-api/pkg/errors"
	"github.com/noah-isme/sma-results-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-results-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-results-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-results-api/pkg/response"
)

type routes struct {
	results *handler.ResultHandler
	batches *handler.BatchHandler
	metrics *handler.MetricsHandler
	ready   func(context.Context) error
}

func newRouter(cfg *config.Config, logr *zap.Logger, metrics *service.MetricsService, h routes) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", func(c *gin.Context) {
		if h.ready != nil {
			if err := h.ready(c.Request.Context()); err != nil {
				response.Error(c, appErrors.Wrap(err, "NOT_READY", http.StatusServiceUnavailable, "database unavailable"))
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", h.metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	// signed links carry their own authorization
	api.GET("/export/:token", h.batches.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(cfg.JWT.Secret))
	staff := secured.Group("", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleTeacher))
	admin := secured.Group("", middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin))

	staff.GET("/classes/:id/results", h.results.ClassResults)
	staff.GET("/classes/:id/results/students/:studentId", h.results.StudentResult)
	staff.GET("/classes/:id/broadsheet", h.results.Broadsheet)
	admin.POST("/classes/:id/results/refresh", middleware.Audit(logr, "results.refresh"), h.results.Refresh)

	staff.POST("/report-batches", middleware.Audit(logr, "report_batch.create"), h.batches.Create)
	staff.GET("/report-batches/:id", h.batches.Status)

	admin.GET("/metrics/summary", h.metrics.Summary)

	return r
}
