package grading

import (
	"fmt"
	"math"
)

// Grade is the letter category derived from a mark.
type Grade string

const (
	GradeA  Grade = "A"
	GradeB  Grade = "B"
	GradeC  Grade = "C"
	GradeD  Grade = "D"
	GradeE  Grade = "E"
	GradeF  Grade = "F"
	GradeNA Grade = "NA"
)

// Grades lists the gradable letters best first. NA is not included.
func Grades() []Grade {
	return []Grade{GradeA, GradeB, GradeC, GradeD, GradeE, GradeF}
}

// GradeBand assigns Grade to every mark >= Min that is below the previous band's Min.
type GradeBand struct {
	Grade Grade   `json:"grade"`
	Min   float64 `json:"min"`
}

// GradeTable maps marks to grades and grades to points.
type GradeTable struct {
	// Bands are ordered from the highest Min down to a final band starting at 0.
	Bands       []GradeBand   `json:"bands"`
	PointValues map[Grade]int `json:"points"`
}

// DefaultGradeTable returns the O-Level table:
// 81-100 A, 61-80 B, 41-60 C, 31-40 D, 21-30 E, 0-20 F.
// F scores 9 points, not 6.
func DefaultGradeTable() GradeTable {
	return GradeTable{
		Bands: []GradeBand{
			{Grade: GradeA, Min: 81},
			{Grade: GradeB, Min: 61},
			{Grade: GradeC, Min: 41},
			{Grade: GradeD, Min: 31},
			{Grade: GradeE, Min: 21},
			{Grade: GradeF, Min: 0},
		},
		PointValues: map[Grade]int{
			GradeA:  1,
			GradeB:  2,
			GradeC:  3,
			GradeD:  4,
			GradeE:  5,
			GradeF:  9,
			GradeNA: 0,
		},
	}
}

// Grade returns NA for an absent mark and InvalidMarkError for a present mark outside
// [0,100]. Fractional marks belong to the band whose lower bound they reach, so 80.5 is a B.
func (t GradeTable) Grade(mark *float64) (Grade, error) {
	if mark == nil {
		return GradeNA, nil
	}
	m := *mark
	if math.IsNaN(m) || m < 0 || m > 100 {
		return GradeNA, &InvalidMarkError{Mark: m}
	}
	for _, band := range t.Bands {
		if m >= band.Min {
			return band.Grade, nil
		}
	}
	return GradeNA, &InvalidMarkError{Mark: m}
}

// Points looks up the fixed points value for a grade. Unknown grades score 0.
func (t GradeTable) Points(g Grade) int {
	return t.PointValues[g]
}

// WorstPoints is the highest points value any gradable band can produce.
func (t GradeTable) WorstPoints() int {
	worst := 0
	for _, band := range t.Bands {
		if p := t.PointValues[band.Grade]; p > worst {
			worst = p
		}
	}
	return worst
}

// Validate checks that bands descend strictly, end at 0 and carry a points entry.
func (t GradeTable) Validate() error {
	if len(t.Bands) == 0 {
		return fmt.Errorf("grade table has no bands")
	}
	prev := math.Inf(1)
	for i, band := range t.Bands {
		if band.Grade == GradeNA {
			return fmt.Errorf("band %d: NA cannot be a band grade", i)
		}
		if band.Min < 0 || band.Min > 100 {
			return fmt.Errorf("band %d (%s): lower bound %v outside [0,100]", i, band.Grade, band.Min)
		}
		if band.Min >= prev {
			return fmt.Errorf("band %d (%s): lower bounds must strictly descend", i, band.Grade)
		}
		if _, ok := t.PointValues[band.Grade]; !ok {
			return fmt.Errorf("band %d (%s): missing points value", i, band.Grade)
		}
		prev = band.Min
	}
	if last := t.Bands[len(t.Bands)-1]; last.Min != 0 {
		return fmt.Errorf("lowest band %s must start at 0", last.Grade)
	}
	return nil
}
