package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-results-api/internal/models"
)

// ResultRepository reads the marks, roster and subject metadata behind class results.
type ResultRepository struct {
	db *sqlx.DB
}

// NewResultRepository constructs the repository.
func NewResultRepository(db *sqlx.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

// ListMarks returns every mark entry for actively enrolled students of the class sitting.
// Rows are ordered by student, then by the subject's code, which fixes the input order the
// best-N tie-break depends on.
func (r *ResultRepository) ListMarks(ctx context.Context, scope models.ResultScope) ([]models.MarkRow, error) {
	const query = `SELECT m.student_id, m.subject_id, m.mark
FROM exam_marks m
JOIN enrollments e ON e.student_id = m.student_id AND e.class_id = $1 AND e.term_id = $2 AND e.status = 'ACTIVE'
JOIN subjects s ON s.id = m.subject_id
WHERE m.exam_id = $3
ORDER BY m.student_id ASC, s.code ASC`
	var rows []models.MarkRow
	if err := r.db.SelectContext(ctx, &rows, query, scope.ClassID, scope.TermID, scope.ExamID); err != nil {
		return nil, fmt.Errorf("list exam marks: %w", err)
	}
	return rows, nil
}

// ListRoster returns the active students of a class for a term.
func (r *ResultRepository) ListRoster(ctx context.Context, classID, termID string) ([]models.RosterEntry, error) {
	const query = `SELECT s.id AS student_id, s.nis, s.full_name
FROM enrollments e
JOIN students s ON s.id = e.student_id
WHERE e.class_id = $1 AND e.term_id = $2 AND e.status = 'ACTIVE'
ORDER BY s.full_name ASC`
	var roster []models.RosterEntry
	if err := r.db.SelectContext(ctx, &roster, query, classID, termID); err != nil {
		return nil, fmt.Errorf("list class roster: %w", err)
	}
	return roster, nil
}

// ListSubjects returns the subjects taught to a class.
func (r *ResultRepository) ListSubjects(ctx context.Context, classID string) ([]models.SubjectRow, error) {
	const query = `SELECT s.id, s.code, s.name, cs.is_principal
FROM class_subjects cs
JOIN subjects s ON s.id = cs.subject_id
WHERE cs.class_id = $1
ORDER BY s.code ASC`
	var subjects []models.SubjectRow
	if err := r.db.SelectContext(ctx, &subjects, query, classID); err != nil {
		return nil, fmt.Errorf("list class subjects: %w", err)
	}
	return subjects, nil
}

// GetClassInfo loads the names printed on sheet and card headers.
func (r *ResultRepository) GetClassInfo(ctx context.Context, scope models.ResultScope) (*models.ClassInfo, error) {
	const query = `SELECT c.id, c.name, t.name AS term_name, x.name AS exam_name
FROM classes c
JOIN terms t ON t.id = $2
JOIN exams x ON x.id = $3
WHERE c.id = $1`
	var info models.ClassInfo
	if err := r.db.GetContext(ctx, &info, query, scope.ClassID, scope.TermID, scope.ExamID); err != nil {
		return nil, fmt.Errorf("get class info: %w", err)
	}
	return &info, nil
}
