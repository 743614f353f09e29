package models

import "fmt"

// ResultScope identifies one class sitting of one exam within a term.
type ResultScope struct {
	ClassID string `json:"classId"`
	TermID  string `json:"termId"`
	ExamID  string `json:"examId"`
}

// Key renders the scope as a cache key segment.
func (s ResultScope) Key() string {
	return fmt.Sprintf("%s:%s:%s", s.ClassID, s.TermID, s.ExamID)
}

// MarkRow is a raw mark as stored by the gradebook. Mark is NULL when the student did not sit.
type MarkRow struct {
	StudentID string   `db:"student_id" json:"student_id"`
	SubjectID string   `db:"subject_id" json:"subject_id"`
	Mark      *float64 `db:"mark" json:"mark"`
}

// RosterEntry is one enrolled student of a class for a term.
type RosterEntry struct {
	StudentID string `db:"student_id" json:"student_id"`
	NIS       string `db:"nis" json:"nis"`
	FullName  string `db:"full_name" json:"full_name"`
}

// SubjectRow is read-only subject metadata for a class.
type SubjectRow struct {
	ID        string `db:"id" json:"id"`
	Code      string `db:"code" json:"code"`
	Name      string `db:"name" json:"name"`
	Principal bool   `db:"is_principal" json:"is_principal"`
}

// ClassInfo is the header data printed on class sheets and report cards.
type ClassInfo struct {
	ID       string `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	TermName string `db:"term_name" json:"term_name"`
	ExamName string `db:"exam_name" json:"exam_name"`
}
