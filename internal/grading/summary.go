package grading

import (
	"github.com/montanaflynn/stats"
)

// SubjectSummary reports grade distribution for one subject across the group.
type SubjectSummary struct {
	SubjectID   string        `json:"subject_id"`
	GradeCounts map[Grade]int `json:"grade_counts"`
	Sat         int           `json:"sat"`
	// GPA is the mean points over students who sat the subject.
	GPA float64 `json:"gpa"`
}

// GroupSummary is derived from a ranked group and recomputed whenever the group changes.
type GroupSummary struct {
	TotalStudents  int              `json:"total_students"`
	DivisionCounts map[Division]int `json:"division_counts"`
	TotalPassed    int              `json:"total_passed"`
	TotalFailed    int              `json:"total_failed"`
	AveragePoints  float64          `json:"average_points"`
	MedianPoints   float64          `json:"median_points"`
	StdDevPoints   float64          `json:"stddev_points"`
	// GPA is the mean over students of total points per counted subject.
	GPA      float64          `json:"gpa"`
	Subjects []SubjectSummary `json:"subjects"`
	// Empty is set for a zero-student group; every statistic is then 0.
	Empty bool `json:"empty"`
}

// Summarize counts divisions and computes group statistics. It has no side effects and
// returns the same summary for the same group. An empty group yields zero counts and 0
// averages rather than NaN.
func Summarize(group []StudentAggregate, policy Policy) GroupSummary {
	summary := GroupSummary{
		TotalStudents:  len(group),
		DivisionCounts: make(map[Division]int, len(Divisions())),
		Subjects:       []SubjectSummary{},
	}
	for _, d := range Divisions() {
		summary.DivisionCounts[d] = 0
	}
	if len(group) == 0 {
		summary.Empty = true
		return summary
	}

	points := make(stats.Float64Data, 0, len(group))
	perSlot := make(stats.Float64Data, 0, len(group))
	subjectIndex := make(map[string]int)
	subjectPoints := make([]stats.Float64Data, 0)

	for _, student := range group {
		division := student.Division
		if division == "" {
			division = DivisionZero
		}
		summary.DivisionCounts[division]++
		if division.AtLeast(policy.PassDivision) {
			summary.TotalPassed++
		} else {
			summary.TotalFailed++
		}

		points = append(points, float64(student.TotalPoints))
		if slots := student.CountedSlots(); slots > 0 {
			perSlot = append(perSlot, float64(student.TotalPoints)/float64(slots))
		}

		for _, score := range student.SubjectScores {
			idx, ok := subjectIndex[score.SubjectID]
			if !ok {
				idx = len(summary.Subjects)
				subjectIndex[score.SubjectID] = idx
				summary.Subjects = append(summary.Subjects, SubjectSummary{
					SubjectID:   score.SubjectID,
					GradeCounts: newGradeCounts(),
				})
				subjectPoints = append(subjectPoints, stats.Float64Data{})
			}
			summary.Subjects[idx].GradeCounts[score.Grade]++
			if score.Gradable() {
				summary.Subjects[idx].Sat++
				subjectPoints[idx] = append(subjectPoints[idx], float64(score.Points))
			}
		}
	}

	summary.AveragePoints = safeStat(points.Mean)
	summary.MedianPoints = safeStat(points.Median)
	summary.StdDevPoints = safeStat(points.StandardDeviationPopulation)
	summary.GPA = safeStat(perSlot.Mean)
	for i := range summary.Subjects {
		summary.Subjects[i].GPA = safeStat(subjectPoints[i].Mean)
	}
	return summary
}

func newGradeCounts() map[Grade]int {
	counts := make(map[Grade]int, 7)
	for _, g := range Grades() {
		counts[g] = 0
	}
	counts[GradeNA] = 0
	return counts
}

// safeStat turns the stats package's empty-input error into the 0 sentinel.
func safeStat(fn func() (float64, error)) float64 {
	v, err := fn()
	if err != nil {
		return 0
	}
	r, err := stats.Round(v, 4)
	if err != nil {
		return v
	}
	return r
}
