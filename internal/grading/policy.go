package grading

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// SelectionMode decides which subjects count toward the best-N total.
type SelectionMode string

const (
	// SelectBest takes the N lowest-points subjects.
	SelectBest SelectionMode = "best"
	// SelectPrincipalFirst takes every principal subject before the best of the rest.
	SelectPrincipalFirst SelectionMode = "principal-first"
)

// PaddingRule decides what happens when fewer than N subjects are gradable.
type PaddingRule string

const (
	// PaddingNone fails with InsufficientSubjectsError.
	PaddingNone PaddingRule = "none"
	// PaddingWorst fills each missing slot with the table's worst points value.
	PaddingWorst PaddingRule = "worst"
	// PaddingExclude sums over the subjects that exist.
	PaddingExclude PaddingRule = "exclude"
)

// RankKey selects the ranking order.
type RankKey string

const (
	// RankByPoints orders by total points, lowest (best) first.
	RankByPoints RankKey = "points"
	// RankByAverage orders by average mark, highest first.
	RankByAverage RankKey = "average"
)

// Policy carries every grading rule. It is passed explicitly into each call.
type Policy struct {
	Grades       GradeTable    `json:"grades"`
	Divisions    DivisionBands `json:"divisions"`
	BestN        int           `json:"best_n"`
	Selection    SelectionMode `json:"selection"`
	Padding      PaddingRule   `json:"padding"`
	RankKey      RankKey       `json:"rank_key"`
	PassDivision Division      `json:"pass_division"`
}

// DefaultPolicy is the O-Level "best seven" policy.
func DefaultPolicy() Policy {
	return Policy{
		Grades:       DefaultGradeTable(),
		Divisions:    DefaultDivisionBands(),
		BestN:        7,
		Selection:    SelectBest,
		Padding:      PaddingNone,
		RankKey:      RankByPoints,
		PassDivision: DivisionIV,
	}
}

// Validate checks the tables and enum fields.
func (p Policy) Validate() error {
	if err := p.Grades.Validate(); err != nil {
		return fmt.Errorf("grade table: %w", err)
	}
	if err := p.Divisions.Validate(); err != nil {
		return fmt.Errorf("division bands: %w", err)
	}
	if p.BestN < 0 {
		return fmt.Errorf("best N must not be negative")
	}
	switch p.Selection {
	case SelectBest, SelectPrincipalFirst:
	default:
		return fmt.Errorf("unsupported selection mode %q", p.Selection)
	}
	switch p.Padding {
	case PaddingNone, PaddingWorst, PaddingExclude:
	default:
		return fmt.Errorf("unsupported padding rule %q", p.Padding)
	}
	switch p.RankKey {
	case RankByPoints, RankByAverage:
	default:
		return fmt.Errorf("unsupported rank key %q", p.RankKey)
	}
	switch p.PassDivision {
	case DivisionI, DivisionII, DivisionIII, DivisionIV:
	default:
		return fmt.Errorf("pass division must be one of I, II, III, IV")
	}
	return nil
}

// Fingerprint is a short stable hash of the policy, used to key cached results.
func (p Policy) Fingerprint() string {
	payload, err := json.Marshal(p)
	if err != nil {
		payload = []byte(fmt.Sprintf("%+v", p))
	}
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("%x", sum[:8])
}
