package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// Statement is a printable ledger statement for one person.
type Statement struct {
	Title   string
	Lines   []string
	Table   Dataset
	Widths  []float64
	Summary []string
}

// PDFExporter renders statements with gofpdf core fonts.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates an A4 document: title, header lines, table, summary.
func (e *PDFExporter) Render(st Statement) ([]byte, error) {
	if len(st.Table.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	widths := st.Widths
	if len(widths) != len(st.Table.Headers) {
		widths = make([]float64, len(st.Table.Headers))
		for i := range widths {
			widths[i] = 190.0 / float64(len(widths))
		}
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	if st.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(st.Title), "", 1, "C", false, 0, "")
	}
	pdf.SetFont("Arial", "", 10)
	for _, line := range st.Lines {
		pdf.CellFormat(0, 6, tr(line), "", 1, "", false, 0, "")
	}
	pdf.Ln(4)

	header := func() {
		pdf.SetFont("Arial", "B", 9)
		for i, h := range st.Table.Headers {
			pdf.CellFormat(widths[i], 8, tr(h), "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 9)
	}
	header()
	_, pageHeight := pdf.GetPageSize()
	for _, row := range st.Table.Rows {
		if pdf.GetY() > pageHeight-25 {
			pdf.AddPage()
			header()
		}
		for i := range st.Table.Headers {
			value := ""
			if i < len(row) {
				value = row[i]
			}
			pdf.CellFormat(widths[i], 7, tr(value), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	if len(st.Summary) > 0 {
		pdf.Ln(4)
		pdf.SetFont("Arial", "B", 10)
		for _, line := range st.Summary {
			pdf.CellFormat(0, 6, tr(line), "", 1, "R", false, 0, "")
		}
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
