package grading

import (
	"errors"
	"fmt"
)

// ErrEmptyGroup marks a ranking or summary request over zero students. Summarize never
// returns it; callers use it to label the sentinel summary when they need an error value.
var ErrEmptyGroup = errors.New("grading: empty group")

// InvalidMarkError reports a present mark outside the [0,100] domain.
type InvalidMarkError struct {
	StudentID string
	SubjectID string
	Mark      float64
}

func (e *InvalidMarkError) Error() string {
	if e.StudentID == "" && e.SubjectID == "" {
		return fmt.Sprintf("invalid mark %v: must be within [0,100]", e.Mark)
	}
	return fmt.Sprintf("invalid mark %v for student %s subject %s: must be within [0,100]", e.Mark, e.StudentID, e.SubjectID)
}

// InsufficientSubjectsError is returned when fewer subjects are gradable than the policy
// requires and the padding rule is PaddingNone. Callers may retry with another rule.
type InsufficientSubjectsError struct {
	StudentID string
	Required  int
	Available int
}

func (e *InsufficientSubjectsError) Error() string {
	if e.StudentID == "" {
		return fmt.Sprintf("insufficient subjects: %d gradable, %d required", e.Available, e.Required)
	}
	return fmt.Sprintf("insufficient subjects for student %s: %d gradable, %d required", e.StudentID, e.Available, e.Required)
}

// DuplicateSubjectError flags two mark entries for the same subject of one student.
type DuplicateSubjectError struct {
	StudentID string
	SubjectID string
}

func (e *DuplicateSubjectError) Error() string {
	return fmt.Sprintf("duplicate mark entry for student %s subject %s", e.StudentID, e.SubjectID)
}

// StudentError pairs a student with the error that kept them out of a ranked group.
type StudentError struct {
	StudentID string
	Err       error
}

func (e StudentError) Error() string {
	return fmt.Sprintf("student %s: %v", e.StudentID, e.Err)
}

func (e StudentError) Unwrap() error {
	return e.Err
}
