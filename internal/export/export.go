// Package export serializes projected billing rows as spreadsheet and PDF
// documents.
package export

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"facturation/internal/billing"
	"facturation/internal/core"
)

const (
	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	PDFContentType  = "application/pdf"
)

// Filename returns the export file name for a year, 0 meaning all years.
func Filename(year int, ext string) string {
	marker := "toutes"
	if year > 0 {
		marker = strconv.Itoa(year)
	}
	return fmt.Sprintf("export-facturation-%s.%s", marker, ext)
}

// FilenameFor names the export of a filter; a month filter wins over the year.
func FilenameFor(f billing.Filter, ext string) string {
	year := f.Year
	if !f.Month.IsZero() {
		year = f.Month.Year
	}
	return Filename(year, ext)
}

// Title is the document title of a filtered export.
func Title(f billing.Filter, l core.Locale) string {
	title := billing.SheetName(l)
	switch {
	case !f.Month.IsZero():
		return title + " " + f.Month.Label(l)
	case f.Year > 0:
		return fmt.Sprintf("%s %d", title, f.Year)
	}
	return title
}

// BuildXLSX writes rows to a workbook with a single sheet. Zero rows still
// produce a valid workbook holding the header line.
func BuildXLSX(rows []billing.Row, l core.Locale) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := billing.SheetName(l)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	headers := billing.Headers(l)
	header := make([]interface{}, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(sheet, 1, 1, style)
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := []interface{}{
			r.Month,
			r.Project,
			r.Step,
			r.Amount.InexactFloat64(),
			r.Revision.InexactFloat64(),
			r.Invoiced,
			r.Comment,
			r.Author,
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	_ = f.SetColWidth(sheet, "A", "A", 16)
	_ = f.SetColWidth(sheet, "B", "B", 40)
	_ = f.SetColWidth(sheet, "G", "H", 28)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var pdfWidths = []float64{28, 70, 16, 28, 24, 18, 50, 50}

// BuildPDF renders rows as a landscape table.
func BuildPDF(rows []billing.Row, l core.Locale, title string) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, tr(title))
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 9)
	for i, h := range billing.Headers(l) {
		pdf.CellFormat(pdfWidths[i], 6, tr(h), "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	for _, r := range rows {
		cells := []string{
			r.Month,
			truncate(r.Project, 48),
			r.Step,
			core.FormatEuros(r.Amount),
			core.FormatEuros(r.Revision),
			r.Invoiced,
			truncate(r.Comment, 34),
			truncate(r.Author, 34),
		}
		for i, c := range cells {
			align := "L"
			if i == 3 || i == 4 {
				align = "R"
			}
			pdf.CellFormat(pdfWidths[i], 6, tr(c), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
