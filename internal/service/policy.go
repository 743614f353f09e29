package service

import (
	"errors"
	"fmt"

	"github.com/noah-isme/sma-results-api/internal/grading"
	appErrors "github.com/noah-isme/sma-results-api/pkg/errors"
	"github.com/noah-isme/sma-results-api/pkg/config"
)

// BuildPolicy turns the grading configuration into a validated policy. Blank fields keep the
// default O-Level values.
func BuildPolicy(cfg config.GradingConfig) (grading.Policy, error) {
	policy := grading.DefaultPolicy()
	if cfg.BestN != 0 {
		policy.BestN = cfg.BestN
	}
	if cfg.Selection != "" {
		policy.Selection = grading.SelectionMode(cfg.Selection)
	}
	if cfg.Padding != "" {
		policy.Padding = grading.PaddingRule(cfg.Padding)
	}
	if cfg.RankKey != "" {
		policy.RankKey = grading.RankKey(cfg.RankKey)
	}
	if cfg.PassDivision != "" {
		policy.PassDivision = grading.Division(cfg.PassDivision)
	}
	if err := policy.Validate(); err != nil {
		return grading.Policy{}, fmt.Errorf("grading policy: %w", err)
	}
	return policy, nil
}

// mapGradingError converts engine errors into API errors, keeping the original as the cause.
func mapGradingError(err error) error {
	if err == nil {
		return nil
	}
	var (
		invalid      *grading.InvalidMarkError
		insufficient *grading.InsufficientSubjectsError
		duplicate    *grading.DuplicateSubjectError
	)
	switch {
	case errors.As(err, &invalid):
		return appErrors.Wrap(err, appErrors.ErrInvalidMark.Code, appErrors.ErrInvalidMark.Status, invalid.Error())
	case errors.As(err, &insufficient):
		return appErrors.Wrap(err, appErrors.ErrInsufficientSubjects.Code, appErrors.ErrInsufficientSubjects.Status, insufficient.Error())
	case errors.As(err, &duplicate):
		return appErrors.Wrap(err, appErrors.ErrDuplicateSubject.Code, appErrors.ErrDuplicateSubject.Status, duplicate.Error())
	default:
		return err
	}
}
