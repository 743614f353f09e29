package service

import (
	"context"
	"fmt"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-results-api/internal/grading"
	appErrors "github.com/noah-isme/sma-results-api/pkg/errors"
	"github.com/noah-isme/sma-results-api/pkg/export"
	"github.com/noah-isme/sma-results-api/pkg/storage"
)

// cardRenderer turns one ranked student into a stored artifact and returns its reference.
type cardRenderer interface {
	Render(ctx context.Context, batchID string, result *ClassResult, student grading.StudentAggregate) (string, error)
}

type cardStorage interface {
	Save(relPath string, data []byte) (string, error)
	Open(relPath string) (*os.File, error)
	Delete(relPath string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type pdfRenderer interface {
	RenderReportCard(card export.ReportCard) ([]byte, error)
}

// ReportCardRenderer renders PDF report cards, stores them on disk and signs download tokens.
type ReportCardRenderer struct {
	storage cardStorage
	pdf     pdfRenderer
	signer  *storage.SignedURLSigner
	metrics *MetricsService
	logger  *zap.Logger
}

// NewReportCardRenderer constructs a renderer. pdf defaults to the gofpdf exporter.
func NewReportCardRenderer(store cardStorage, signer *storage.SignedURLSigner, pdf pdfRenderer, metrics *MetricsService, logger *zap.Logger) *ReportCardRenderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ReportCardRenderer{storage: store, pdf: pdf, signer: signer, metrics: metrics, logger: logger}
}

// Render produces the student's report card and returns a signed download token.
func (r *ReportCardRenderer) Render(ctx context.Context, batchID string, result *ClassResult, student grading.StudentAggregate) (string, error) {
	start := time.Now()
	defer func() { r.metrics.ObserveRender(time.Since(start)) }()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	payload, err := r.pdf.RenderReportCard(buildReportCard(result, student))
	if err != nil {
		return "", renderFailure(err, "render report card")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	relPath := path.Join(sanitizeFilename(batchID), sanitizeFilename(student.StudentID)+".pdf")
	if _, err := r.storage.Save(relPath, payload); err != nil {
		return "", renderFailure(err, "store report card")
	}
	token, _, err := r.signer.Sign(batchID, relPath)
	if err != nil {
		return "", renderFailure(err, "sign report card")
	}
	return token, nil
}

// Verify validates a download token.
func (r *ReportCardRenderer) Verify(token string, allowExpired bool) (storage.DownloadClaims, error) {
	return r.signer.Verify(token, allowExpired)
}

// Open returns a handle to a stored report card.
func (r *ReportCardRenderer) Open(relPath string) (*os.File, error) {
	return r.storage.Open(relPath)
}

// Delete removes a stored report card.
func (r *ReportCardRenderer) Delete(relPath string) error {
	return r.storage.Delete(relPath)
}

// Cleanup removes stored cards older than ttl.
func (r *ReportCardRenderer) Cleanup(ttl time.Duration) ([]string, error) {
	return r.storage.CleanupOlderThan(ttl)
}

func renderFailure(err error, step string) error {
	return appErrors.Wrap(err, appErrors.ErrRenderFailure.Code, appErrors.ErrRenderFailure.Status, step+" failed")
}

func buildReportCard(result *ClassResult, student grading.StudentAggregate) export.ReportCard {
	rows := make([][]string, 0, len(student.SubjectScores))
	for _, score := range student.SubjectScores {
		mark, points, counted := "-", "-", ""
		if score.Mark != nil {
			mark = strconv.FormatFloat(*score.Mark, 'f', -1, 64)
			points = strconv.Itoa(score.Points)
		}
		if student.IsSelected(score.SubjectID) {
			counted = "*"
		}
		rows = append(rows, []string{result.SubjectName(score.SubjectID), mark, string(score.Grade), points, counted})
	}

	position := "-"
	if student.Ranked() {
		position = fmt.Sprintf("%d of %d", student.Rank, student.TotalStudentsInGroup)
	}
	notes := []string{fmt.Sprintf("Total points sum the %d counted subjects marked with *.", student.CountedSlots())}
	if student.PaddedSlots > 0 {
		notes = append(notes, fmt.Sprintf("%d missing slot(s) were filled with the lowest grade.", student.PaddedSlots))
	}

	return export.ReportCard{
		Title: "Student Report Card",
		Header: []export.Field{
			{Label: "Student", Value: student.StudentName},
			{Label: "Student ID", Value: student.StudentID},
			{Label: "Class", Value: result.Class.Name},
			{Label: "Term", Value: result.Class.TermName},
			{Label: "Exam", Value: result.Class.ExamName},
		},
		Subjects: export.Dataset{
			Headers: []string{"Subject", "Mark", "Grade", "Points", "Counted"},
			Rows:    rows,
		},
		Summary: []export.Field{
			{Label: "Total points", Value: strconv.Itoa(student.TotalPoints)},
			{Label: "Division", Value: string(student.Division)},
			{Label: "Average mark", Value: strconv.FormatFloat(student.AverageMark, 'f', 2, 64)},
			{Label: "Position", Value: position},
		},
		Footnote: strings.Join(notes, " "),
	}
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
