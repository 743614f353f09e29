package service

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-results-api/internal/grading"
	appErrors "github.com/noah-isme/sma-results-api/pkg/errors"
	"github.com/noah-isme/sma-results-api/pkg/config"
)

func TestBuildPolicy(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		policy, err := BuildPolicy(config.GradingConfig{})
		require.NoError(t, err)
		assert.Equal(t, grading.DefaultPolicy(), policy)
	})

	t.Run("overrides", func(t *testing.T) {
		policy, err := BuildPolicy(config.GradingConfig{
			BestN:        3,
			Selection:    "principal-first",
			Padding:      "worst",
			RankKey:      "average",
			PassDivision: "III",
		})
		require.NoError(t, err)
		assert.Equal(t, 3, policy.BestN)
		assert.Equal(t, grading.SelectPrincipalFirst, policy.Selection)
		assert.Equal(t, grading.PaddingWorst, policy.Padding)
		assert.Equal(t, grading.RankByAverage, policy.RankKey)
		assert.Equal(t, grading.DivisionIII, policy.PassDivision)
		assert.NotEqual(t, grading.DefaultPolicy().Fingerprint(), policy.Fingerprint())
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := BuildPolicy(config.GradingConfig{Padding: "zero"})
		require.Error(t, err)
		_, err = BuildPolicy(config.GradingConfig{PassDivision: "0"})
		require.Error(t, err)
	})
}

func TestMapGradingError(t *testing.T) {
	err := mapGradingError(&grading.InvalidMarkError{StudentID: "s1", SubjectID: "eng", Mark: 140})
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "INVALID_MARK", appErr.Code)
	assert.Equal(t, http.StatusUnprocessableEntity, appErr.Status)
	var invalid *grading.InvalidMarkError
	assert.True(t, errors.As(err, &invalid))

	err = mapGradingError(grading.StudentError{StudentID: "s1", Err: &grading.InsufficientSubjectsError{Required: 7, Available: 2}})
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "INSUFFICIENT_SUBJECTS", appErr.Code)

	plain := errors.New("boom")
	assert.Same(t, plain, mapGradingError(plain))
	assert.NoError(t, mapGradingError(nil))
}
