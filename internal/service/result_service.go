package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-results-api/internal/grading"
	"github.com/noah-isme/sma-results-api/internal/models"
	appErrors "github.com/noah-isme/sma-results-api/pkg/errors"
	"github.com/noah-isme/sma-results-api/pkg/export"
)

type resultStore interface {
	ListMarks(ctx context.Context, scope models.ResultScope) ([]models.MarkRow, error)
	ListRoster(ctx context.Context, classID, termID string) ([]models.RosterEntry, error)
	ListSubjects(ctx context.Context, classID string) ([]models.SubjectRow, error)
	GetClassInfo(ctx context.Context, scope models.ResultScope) (*models.ClassInfo, error)
}

type resultCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// StudentIssue records why a student is missing from the ranked group.
type StudentIssue struct {
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
	Code        string `json:"code"`
	Status      int    `json:"status"`
	Reason      string `json:"reason"`
}

// ClassResult is the ranked outcome of one class sitting, cached as JSON.
type ClassResult struct {
	Scope             models.ResultScope         `json:"scope"`
	Class             models.ClassInfo           `json:"class"`
	Subjects          []models.SubjectRow        `json:"subjects"`
	Students          []grading.StudentAggregate `json:"students"`
	Summary           grading.GroupSummary       `json:"summary"`
	Incomplete        []StudentIssue             `json:"incomplete"`
	PolicyFingerprint string                     `json:"policy_fingerprint"`
	ComputedAt        time.Time                  `json:"computed_at"`
}

// Student returns the ranked aggregate of one student.
func (r *ClassResult) Student(studentID string) (grading.StudentAggregate, bool) {
	for _, student := range r.Students {
		if student.StudentID == studentID {
			return student, true
		}
	}
	return grading.StudentAggregate{}, false
}

// Issue returns the recorded problem for a student left out of the ranking.
func (r *ClassResult) Issue(studentID string) (StudentIssue, bool) {
	for _, issue := range r.Incomplete {
		if issue.StudentID == studentID {
			return issue, true
		}
	}
	return StudentIssue{}, false
}

// StudentName resolves a display name for any student known to the result.
func (r *ClassResult) StudentName(studentID string) string {
	if student, ok := r.Student(studentID); ok {
		return student.StudentName
	}
	if issue, ok := r.Issue(studentID); ok {
		return issue.StudentName
	}
	return ""
}

// SubjectName maps a subject ID to its display name, falling back to the ID.
func (r *ClassResult) SubjectName(subjectID string) string {
	for _, subject := range r.Subjects {
		if subject.ID == subjectID {
			return subject.Name
		}
	}
	return subjectID
}

// ResultService computes ranked class results from the gradebook.
type ResultService struct {
	store   resultStore
	cache   resultCache
	csv     csvRenderer
	metrics *MetricsService
	policy  grading.Policy
	ttl     time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewResultService constructs a ResultService. cache, csv and metrics are optional.
func NewResultService(store resultStore, cache resultCache, csv csvRenderer, metrics *MetricsService, policy grading.Policy, ttl time.Duration, logger *zap.Logger) *ResultService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	return &ResultService{
		store:   store,
		cache:   cache,
		csv:     csv,
		metrics: metrics,
		policy:  policy,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
	}
}

// Policy exposes the policy every result is computed with.
func (s *ResultService) Policy() grading.Policy {
	return s.policy
}

// ClassResults returns the ranked group and summary of one class sitting.
func (s *ResultService) ClassResults(ctx context.Context, scope models.ResultScope) (*ClassResult, error) {
	if scope.ClassID == "" || scope.TermID == "" || scope.ExamID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "classId, termId and examId are required")
	}

	key := s.cacheKey(scope)
	if s.cache != nil {
		var cached ClassResult
		hit, err := s.cache.Get(ctx, key, &cached)
		if err == nil && hit {
			s.metrics.RecordClassResult("cache")
			return &cached, nil
		}
	}

	start := time.Now()
	result, err := s.compute(ctx, scope)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveCompute(time.Since(start))

	if s.cache != nil {
		// a failed write only costs a recomputation later
		_ = s.cache.Set(ctx, key, result, s.ttl)
	}
	return result, nil
}

// Invalidate drops cached results of the scope under every policy.
func (s *ResultService) Invalidate(ctx context.Context, scope models.ResultScope) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx, fmt.Sprintf("results:%s:*", scope.Key()))
}

// StudentResult returns one ranked student, or the reason the student was left out.
func (s *ResultService) StudentResult(ctx context.Context, scope models.ResultScope, studentID string) (*grading.StudentAggregate, error) {
	result, err := s.ClassResults(ctx, scope)
	if err != nil {
		return nil, err
	}
	if student, ok := result.Student(studentID); ok {
		return &student, nil
	}
	if issue, ok := result.Issue(studentID); ok {
		return nil, appErrors.New(issue.Code, issue.Status, issue.Reason)
	}
	return nil, appErrors.ErrStudentNotInResults
}

// Broadsheet renders the class sheet as CSV: ranked students first, then the students left out.
func (s *ResultService) Broadsheet(ctx context.Context, scope models.ResultScope) ([]byte, error) {
	result, err := s.ClassResults(ctx, scope)
	if err != nil {
		return nil, err
	}

	headers := []string{"Rank", "Student ID", "Student"}
	for _, subject := range result.Subjects {
		headers = append(headers, subject.Code)
	}
	headers = append(headers, "Points", "Division", "Average", "Remarks")

	rows := make([][]string, 0, len(result.Students)+len(result.Incomplete))
	for _, student := range result.Students {
		row := []string{strconv.Itoa(student.Rank), student.StudentID, student.StudentName}
		for _, subject := range result.Subjects {
			row = append(row, broadsheetCell(student, subject.ID))
		}
		remarks := ""
		if student.PaddedSlots > 0 {
			remarks = fmt.Sprintf("%d padded slot(s)", student.PaddedSlots)
		}
		row = append(row,
			strconv.Itoa(student.TotalPoints),
			string(student.Division),
			strconv.FormatFloat(student.AverageMark, 'f', 2, 64),
			remarks,
		)
		rows = append(rows, row)
	}
	for _, issue := range result.Incomplete {
		row := []string{"-", issue.StudentID, issue.StudentName}
		for range result.Subjects {
			row = append(row, "")
		}
		row = append(row, "", "", "", issue.Reason)
		rows = append(rows, row)
	}

	return s.csv.Render(export.Dataset{Headers: headers, Rows: rows})
}

// StudentJob builds the per-student batch job over an already computed class result.
func (s *ResultService) StudentJob(batchID string, result *ClassResult, renderer cardRenderer) BatchJob {
	return func(ctx context.Context, item BatchItem) (string, error) {
		student, ok := result.Student(item.StudentID)
		if !ok {
			if issue, found := result.Issue(item.StudentID); found {
				return "", appErrors.New(issue.Code, issue.Status, issue.Reason)
			}
			return "", appErrors.ErrStudentNotInResults
		}
		return renderer.Render(ctx, batchID, result, student)
	}
}

func (s *ResultService) compute(ctx context.Context, scope models.ResultScope) (*ClassResult, error) {
	info, err := s.store.GetClassInfo(ctx, scope)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class sitting not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	subjects, err := s.store.ListSubjects(ctx, scope.ClassID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subjects")
	}
	roster, err := s.store.ListRoster(ctx, scope.ClassID, scope.TermID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}
	rows, err := s.store.ListMarks(ctx, scope)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load marks")
	}

	catalog := make(grading.SubjectCatalog, len(subjects))
	for _, subject := range subjects {
		catalog[subject.ID] = grading.SubjectInfo{ID: subject.ID, Code: subject.Code, Name: subject.Name, Principal: subject.Principal}
	}
	names := make(map[string]string, len(roster))
	for _, entry := range roster {
		names[entry.StudentID] = entry.FullName
	}

	marks := make([]grading.MarkEntry, 0, len(rows))
	withMarks := make(map[string]struct{})
	for _, row := range rows {
		marks = append(marks, grading.MarkEntry{StudentID: row.StudentID, SubjectID: row.SubjectID, Mark: row.Mark})
		withMarks[row.StudentID] = struct{}{}
	}

	group, failures := grading.BuildGroup(marks, catalog, s.policy)
	// enrolled students without a single mark row still go through the policy
	for _, entry := range roster {
		if _, ok := withMarks[entry.StudentID]; ok {
			continue
		}
		agg, err := grading.BuildAggregate(entry.StudentID, nil, catalog, s.policy)
		if err != nil {
			failures = append(failures, grading.StudentError{StudentID: entry.StudentID, Err: err})
			continue
		}
		group = append(group, agg)
	}

	for i := range group {
		group[i].StudentName = names[group[i].StudentID]
	}
	ranked := grading.Rank(group, s.policy)

	incomplete := make([]StudentIssue, 0, len(failures))
	for _, failure := range failures {
		appErr := appErrors.FromError(mapGradingError(failure.Err))
		incomplete = append(incomplete, StudentIssue{
			StudentID:   failure.StudentID,
			StudentName: names[failure.StudentID],
			Code:        appErr.Code,
			Status:      appErr.Status,
			Reason:      failure.Err.Error(),
		})
		s.logger.Sugar().Infow("student left out of ranking",
			"class_id", scope.ClassID,
			"student_id", failure.StudentID,
			"reason", failure.Err.Error(),
		)
	}

	return &ClassResult{
		Scope:             scope,
		Class:             *info,
		Subjects:          subjects,
		Students:          ranked,
		Summary:           grading.Summarize(ranked, s.policy),
		Incomplete:        incomplete,
		PolicyFingerprint: s.policy.Fingerprint(),
		ComputedAt:        s.now().UTC(),
	}, nil
}

func (s *ResultService) cacheKey(scope models.ResultScope) string {
	return fmt.Sprintf("results:%s:%s", scope.Key(), s.policy.Fingerprint())
}

func broadsheetCell(student grading.StudentAggregate, subjectID string) string {
	for _, score := range student.SubjectScores {
		if score.SubjectID != subjectID {
			continue
		}
		if score.Mark == nil {
			return string(grading.GradeNA)
		}
		cell := strconv.FormatFloat(*score.Mark, 'f', -1, 64) + " " + string(score.Grade)
		if student.IsSelected(subjectID) {
			cell += "*"
		}
		return cell
	}
	return ""
}
