package grading

import (
	"errors"
	"math"
)

// MarkEntry is a raw mark record. A nil Mark means the subject was not graded.
type MarkEntry struct {
	StudentID string   `json:"student_id"`
	SubjectID string   `json:"subject_id"`
	Mark      *float64 `json:"mark"`
}

// SubjectInfo is read-only subject metadata.
type SubjectInfo struct {
	ID        string `json:"id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	Principal bool   `json:"principal"`
}

// SubjectCatalog indexes subject metadata by subject ID.
type SubjectCatalog map[string]SubjectInfo

// StudentAggregate is one student's result for an exam period. Rank and
// TotalStudentsInGroup stay zero until the group has been ranked.
type StudentAggregate struct {
	StudentID            string         `json:"student_id"`
	StudentName          string         `json:"student_name,omitempty"`
	SubjectScores        []SubjectScore `json:"subject_scores"`
	SelectedSubjects     []string       `json:"selected_subjects"`
	PaddedSlots          int            `json:"padded_slots,omitempty"`
	TotalPoints          int            `json:"total_points"`
	Division             Division       `json:"division"`
	TotalMarks           float64        `json:"total_marks"`
	AverageMark          float64        `json:"average_mark"`
	Rank                 int            `json:"rank,omitempty"`
	TotalStudentsInGroup int            `json:"total_students_in_group,omitempty"`
}

// Ranked reports whether the aggregate went through a ranking pass.
func (a StudentAggregate) Ranked() bool {
	return a.Rank > 0
}

// IsSelected reports whether the subject counted toward total points.
func (a StudentAggregate) IsSelected(subjectID string) bool {
	for _, id := range a.SelectedSubjects {
		if id == subjectID {
			return true
		}
	}
	return false
}

// CountedSlots is the number of subjects (real or padded) behind TotalPoints.
func (a StudentAggregate) CountedSlots() int {
	return len(a.SelectedSubjects) + a.PaddedSlots
}

// ScoreSubjects grades each entry in input order. Subjects missing from the catalog are
// treated as non-principal.
func ScoreSubjects(studentID string, marks []MarkEntry, catalog SubjectCatalog, table GradeTable) ([]SubjectScore, error) {
	scores := make([]SubjectScore, 0, len(marks))
	seen := make(map[string]struct{}, len(marks))
	for _, entry := range marks {
		if _, dup := seen[entry.SubjectID]; dup {
			return nil, &DuplicateSubjectError{StudentID: studentID, SubjectID: entry.SubjectID}
		}
		seen[entry.SubjectID] = struct{}{}

		grade, err := table.Grade(entry.Mark)
		if err != nil {
			var invalid *InvalidMarkError
			if errors.As(err, &invalid) {
				invalid.StudentID = studentID
				invalid.SubjectID = entry.SubjectID
			}
			return nil, err
		}
		var mark *float64
		if entry.Mark != nil {
			v := *entry.Mark
			mark = &v
		}
		scores = append(scores, SubjectScore{
			SubjectID:   entry.SubjectID,
			Mark:        mark,
			Grade:       grade,
			Points:      table.Points(grade),
			IsPrincipal: catalog[entry.SubjectID].Principal,
		})
	}
	return scores, nil
}

// BuildAggregate runs grade, best-N and division for a single student's marks.
func BuildAggregate(studentID string, marks []MarkEntry, catalog SubjectCatalog, policy Policy) (StudentAggregate, error) {
	scores, err := ScoreSubjects(studentID, marks, catalog, policy.Grades)
	if err != nil {
		return StudentAggregate{}, err
	}
	sel, err := Aggregate(scores, policy)
	if err != nil {
		var insufficient *InsufficientSubjectsError
		if errors.As(err, &insufficient) {
			insufficient.StudentID = studentID
		}
		return StudentAggregate{}, err
	}

	var total float64
	sat := 0
	for _, score := range scores {
		if score.Mark != nil {
			total += *score.Mark
			sat++
		}
	}
	average := 0.0
	if sat > 0 {
		average = total / float64(sat)
	}

	return StudentAggregate{
		StudentID:        studentID,
		SubjectScores:    scores,
		SelectedSubjects: sel.Selected,
		PaddedSlots:      sel.Padded,
		TotalPoints:      sel.TotalPoints,
		Division:         policy.Divisions.ClassifySelection(sel),
		TotalMarks:       round2(total),
		AverageMark:      round2(average),
	}, nil
}

// BuildGroup scores every student found in marks. Students appear in the order their first
// mark entry does. Students whose aggregate fails are returned separately and left out of
// the group; they are never scored as zero.
func BuildGroup(marks []MarkEntry, catalog SubjectCatalog, policy Policy) ([]StudentAggregate, []StudentError) {
	order := make([]string, 0)
	byStudent := make(map[string][]MarkEntry)
	for _, entry := range marks {
		if _, ok := byStudent[entry.StudentID]; !ok {
			order = append(order, entry.StudentID)
		}
		byStudent[entry.StudentID] = append(byStudent[entry.StudentID], entry)
	}

	group := make([]StudentAggregate, 0, len(order))
	var failures []StudentError
	for _, studentID := range order {
		agg, err := BuildAggregate(studentID, byStudent[studentID], catalog, policy)
		if err != nil {
			failures = append(failures, StudentError{StudentID: studentID, Err: err})
			continue
		}
		group = append(group, agg)
	}
	return group, failures
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
