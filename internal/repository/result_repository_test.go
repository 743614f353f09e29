package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-results-api/internal/models"
)

func newResultRepoMock(t *testing.T) (*ResultRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return NewResultRepository(sqlx.NewDb(db, "sqlmock")), mock, func() { db.Close() }
}

func TestResultRepositoryListMarks(t *testing.T) {
	repo, mock, cleanup := newResultRepoMock(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"student_id", "subject_id", "mark"}).
		AddRow("stu-1", "sub-eng", 78.5).
		AddRow("stu-1", "sub-math", nil)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT m.student_id, m.subject_id, m.mark FROM exam_marks m")).
		WithArgs("class-1", "term-1", "exam-1").
		WillReturnRows(rows)

	marks, err := repo.ListMarks(context.Background(), models.ResultScope{ClassID: "class-1", TermID: "term-1", ExamID: "exam-1"})
	require.NoError(t, err)
	require.Len(t, marks, 2)
	require.NotNil(t, marks[0].Mark)
	assert.Equal(t, 78.5, *marks[0].Mark)
	assert.Nil(t, marks[1].Mark)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResultRepositoryListMarksError(t *testing.T) {
	repo, mock, cleanup := newResultRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("FROM exam_marks m")).
		WillReturnError(errors.New("connection reset"))

	_, err := repo.ListMarks(context.Background(), models.ResultScope{ClassID: "class-1", TermID: "term-1", ExamID: "exam-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list exam marks")
}

func TestResultRepositoryListRoster(t *testing.T) {
	repo, mock, cleanup := newResultRepoMock(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"student_id", "nis", "full_name"}).
		AddRow("stu-1", "2024001", "Amani Juma").
		AddRow("stu-2", "2024002", "Baraka Said")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT s.id AS student_id, s.nis, s.full_name FROM enrollments e")).
		WithArgs("class-1", "term-1").
		WillReturnRows(rows)

	roster, err := repo.ListRoster(context.Background(), "class-1", "term-1")
	require.NoError(t, err)
	require.Len(t, roster, 2)
	assert.Equal(t, "Baraka Said", roster[1].FullName)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResultRepositoryListSubjects(t *testing.T) {
	repo, mock, cleanup := newResultRepoMock(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"id", "code", "name", "is_principal"}).
		AddRow("sub-eng", "ENG", "English", false).
		AddRow("sub-phy", "PHY", "Physics", true)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT s.id, s.code, s.name, cs.is_principal FROM class_subjects cs")).
		WithArgs("class-1").
		WillReturnRows(rows)

	subjects, err := repo.ListSubjects(context.Background(), "class-1")
	require.NoError(t, err)
	require.Len(t, subjects, 2)
	assert.True(t, subjects[1].Principal)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResultRepositoryGetClassInfo(t *testing.T) {
	repo, mock, cleanup := newResultRepoMock(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"id", "name", "term_name", "exam_name"}).
		AddRow("class-1", "Form IV A", "2024 Term II", "Mid-Term")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT c.id, c.name, t.name AS term_name, x.name AS exam_name FROM classes c")).
		WithArgs("class-1", "term-1", "exam-1").
		WillReturnRows(rows)

	info, err := repo.GetClassInfo(context.Background(), models.ResultScope{ClassID: "class-1", TermID: "term-1", ExamID: "exam-1"})
	require.NoError(t, err)
	assert.Equal(t, "Form IV A", info.Name)
	assert.Equal(t, "Mid-Term", info.ExamName)
	require.NoError(t, mock.ExpectationsWereMet())
}
