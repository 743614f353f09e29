package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-results-api/internal/middleware"
	"github.com/noah-isme/sma-results-api/internal/models"
	appErrors "github.com/noah-isme/sma-results-api/pkg/errors"
)

func actorID(c *gin.Context) (string, error) {
	claims := middleware.Claims(c)
	if claims == nil || claims.UserID == "" {
		return "", appErrors.ErrUnauthorized
	}
	return claims.UserID, nil
}

// scopeFromRequest reads the class from the path and the term and exam from the query.
func scopeFromRequest(c *gin.Context) (models.ResultScope, error) {
	scope := models.ResultScope{
		ClassID: c.Param("id"),
		TermID:  c.Query("termId"),
		ExamID:  c.Query("examId"),
	}
	if scope.ClassID == "" || scope.TermID == "" || scope.ExamID == "" {
		return scope, appErrors.Clone(appErrors.ErrValidation, "termId and examId required")
	}
	return scope, nil
}
