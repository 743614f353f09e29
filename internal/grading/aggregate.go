package grading

import "sort"

// SubjectScore is one graded subject of a student. It is not mutated after creation.
type SubjectScore struct {
	SubjectID   string   `json:"subject_id"`
	Mark        *float64 `json:"mark"`
	Grade       Grade    `json:"grade"`
	Points      int      `json:"points"`
	IsPrincipal bool     `json:"is_principal,omitempty"`
}

// Gradable reports whether the score has a mark.
func (s SubjectScore) Gradable() bool {
	return s.Grade != GradeNA
}

// Selection is the outcome of best-N aggregation.
type Selection struct {
	// Selected holds the counted subject IDs in their input order.
	Selected    []string `json:"selected"`
	TotalPoints int      `json:"total_points"`
	// Padded counts missing slots filled under PaddingWorst.
	Padded int `json:"padded,omitempty"`
}

// Aggregate picks the subjects that count toward total points and sums them.
//
// Subjects with equal points are ordered by input position, so the earlier entry wins the
// last free slot. A BestN of 0 counts every gradable subject.
func Aggregate(scores []SubjectScore, policy Policy) (Selection, error) {
	gradable := make([]int, 0, len(scores))
	for i, score := range scores {
		if score.Gradable() {
			gradable = append(gradable, i)
		}
	}

	n := policy.BestN
	if n <= 0 {
		n = len(gradable)
	}

	byPoints := func(idx []int) {
		sort.SliceStable(idx, func(a, b int) bool {
			return scores[idx[a]].Points < scores[idx[b]].Points
		})
	}

	var ordered []int
	switch policy.Selection {
	case SelectPrincipalFirst:
		principals := make([]int, 0, len(gradable))
		others := make([]int, 0, len(gradable))
		for _, i := range gradable {
			if scores[i].IsPrincipal {
				principals = append(principals, i)
			} else {
				others = append(others, i)
			}
		}
		byPoints(principals)
		byPoints(others)
		ordered = append(principals, others...)
	default:
		ordered = append([]int(nil), gradable...)
		byPoints(ordered)
	}

	sel := Selection{}
	if len(ordered) < n {
		switch policy.Padding {
		case PaddingWorst:
			sel.Padded = n - len(ordered)
		case PaddingExclude:
		default:
			return Selection{}, &InsufficientSubjectsError{Required: n, Available: len(ordered)}
		}
	} else {
		ordered = ordered[:n]
	}

	chosen := append([]int(nil), ordered...)
	sort.Ints(chosen)
	sel.Selected = make([]string, 0, len(chosen))
	for _, i := range chosen {
		sel.Selected = append(sel.Selected, scores[i].SubjectID)
		sel.TotalPoints += scores[i].Points
	}
	sel.TotalPoints += sel.Padded * policy.Grades.WorstPoints()
	return sel, nil
}
