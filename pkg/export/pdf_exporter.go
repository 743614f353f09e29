package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// Field is a labelled value printed on a report card.
type Field struct {
	Label string
	Value string
}

// ReportCard is the printable content of one student's report card.
type ReportCard struct {
	Title    string
	Header   []Field
	Subjects Dataset
	Summary  []Field
	Footnote string
}

// PDFExporter renders report cards into A4 PDFs.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// RenderReportCard lays out the header block, the subject table and the result summary.
func (e *PDFExporter) RenderReportCard(card ReportCard) ([]byte, error) {
	if len(card.Subjects.Headers) == 0 {
		return nil, fmt.Errorf("report card requires subject columns")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	if card.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(strings.ToUpper(card.Title)), "", 1, "C", false, 0, "")
		pdf.Ln(3)
	}

	writeFields(pdf, tr, card.Header)
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 10)
	colWidth := 180.0 / float64(len(card.Subjects.Headers))
	for _, header := range card.Subjects.Headers {
		pdf.CellFormat(colWidth, 8, tr(header), "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, row := range card.Subjects.Rows {
		for i := range card.Subjects.Headers {
			value := ""
			if i < len(row) {
				value = row[i]
			}
			align := "C"
			if i == 0 {
				align = "L"
			}
			pdf.CellFormat(colWidth, 7, tr(value), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	if len(card.Summary) > 0 {
		pdf.Ln(4)
		writeFields(pdf, tr, card.Summary)
	}
	if card.Footnote != "" {
		pdf.Ln(6)
		pdf.SetFont("Arial", "I", 8)
		pdf.MultiCell(0, 5, tr(card.Footnote), "", "L", false)
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("layout report card: %w", err)
	}
	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func writeFields(pdf *gofpdf.Fpdf, tr func(string) string, fields []Field) {
	for _, field := range fields {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(45, 6, tr(field.Label), "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 6, tr(field.Value), "", 1, "L", false, 0, "")
	}
}
