package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// Grid is a two dimensional timetable: one column per day, one row per slot.
// Cells[row][col] may hold several lines separated by "\n".
type Grid struct {
	Title     string
	Subtitle  string
	Columns   []string
	RowLabels []string
	Cells     [][]string
}

const (
	pageWidth   = 277.0
	labelWidth  = 22.0
	headerH     = 8.0
	lineH       = 4.0
	minRowLines = 3
)

// PDFExporter renders grids on landscape A4 pages.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render draws the grid and returns the PDF bytes.
func (e *PDFExporter) Render(grid Grid) ([]byte, error) {
	if len(grid.Columns) == 0 {
		return nil, fmt.Errorf("pdf requires at least one column")
	}
	if len(grid.Cells) != len(grid.RowLabels) {
		return nil, fmt.Errorf("pdf grid has %d label rows and %d cell rows", len(grid.RowLabels), len(grid.Cells))
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 12)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	if grid.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 8, tr(grid.Title), "", 1, "C", false, 0, "")
	}
	if grid.Subtitle != "" {
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 6, tr(grid.Subtitle), "", 1, "C", false, 0, "")
	}
	pdf.Ln(3)

	colWidth := (pageWidth - labelWidth) / float64(len(grid.Columns))

	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	pdf.CellFormat(labelWidth, headerH, "", "1", 0, "C", true, 0, "")
	for _, column := range grid.Columns {
		pdf.CellFormat(colWidth, headerH, tr(column), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 7)
	for r, label := range grid.RowLabels {
		lines := minRowLines
		for _, cell := range grid.Cells[r] {
			if n := len(pdf.SplitLines([]byte(tr(cell)), colWidth-2)); n > lines {
				lines = n
			}
		}
		rowH := float64(lines) * lineH

		x, y := pdf.GetXY()
		pdf.SetFont("Arial", "B", 8)
		pdf.CellFormat(labelWidth, rowH, tr(label), "1", 0, "C", false, 0, "")
		pdf.SetFont("Arial", "", 7)
		for c := range grid.Columns {
			cx := x + labelWidth + float64(c)*colWidth
			pdf.Rect(cx, y, colWidth, rowH, "D")
			if c < len(grid.Cells[r]) && grid.Cells[r][c] != "" {
				pdf.SetXY(cx+1, y+0.5)
				pdf.MultiCell(colWidth-2, lineH, tr(grid.Cells[r][c]), "", "L", false)
			}
		}
		pdf.SetXY(x, y+rowH)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
