// Package report renders batch validation results for human review.
package report

import (
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/giisexport/internal/core"
)

// Sheet names of the excluded-rows workbook.
const (
	SheetSummary  = "Resumen"
	SheetExcluded = "Excluidos"
	SheetWarnings = "Advertencias"
)

const timeLayout = "2006-01-02 15:04:05"

// ExcludedWorkbook renders a batch's artifacts, excluded rows and warnings as
// an XLSX workbook. Row indexes are shown 1-based, as operators count them.
func ExcludedWorkbook(batch *core.Batch) (*excelize.File, error) {
	if batch == nil {
		return nil, errors.New("report: batch is nil")
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(SheetExcluded); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(SheetWarnings); err != nil {
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#E2E8F0"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, err
	}

	if err := writeSummary(f, batch, headerStyle); err != nil {
		return nil, fmt.Errorf("report: summary: %w", err)
	}
	if err := writeExcluded(f, batch, headerStyle); err != nil {
		return nil, fmt.Errorf("report: excluded: %w", err)
	}
	if err := writeWarnings(f, batch, headerStyle); err != nil {
		return nil, fmt.Errorf("report: warnings: %w", err)
	}
	return f, nil
}

// WriteExcludedWorkbook renders the workbook straight to w.
func WriteExcludedWorkbook(w io.Writer, batch *core.Batch) error {
	f, err := ExcludedWorkbook(batch)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

func writeSummary(f *excelize.File, b *core.Batch, headerStyle int) error {
	excluded := 0
	if b.ExcludedReport != nil {
		excluded = b.ExcludedReport.TotalExcluded
	}

	info := [][]any{
		{"Lote", b.ID},
		{"Organización", b.TenantID},
		{"CLUES", b.EstablishmentCode},
		{"Periodo", b.Period.String()},
		{"Estado", string(b.Status)},
		{"Validación", string(b.ValidationStatus)},
		{"Filas excluidas", excluded},
		{"Advertencias", len(b.Warnings)},
	}
	for i, row := range info {
		if err := setRow(f, SheetSummary, 1, i+1, row); err != nil {
			return err
		}
	}

	start := len(info) + 2
	header := []any{"Guía", "Archivo", "Filas", "Excluidas", "Advertencias", "Generado", "SHA-256"}
	if err := setRow(f, SheetSummary, 1, start, header); err != nil {
		return err
	}
	if err := f.SetRowStyle(SheetSummary, start, start, headerStyle); err != nil {
		return err
	}

	for i, a := range b.Artifacts {
		row := []any{a.Guide, a.FileName, a.RowCount, a.Excluded, a.Warnings, a.GeneratedAt.UTC().Format(timeLayout), a.HashSHA256}
		if err := setRow(f, SheetSummary, 1, start+1+i, row); err != nil {
			return err
		}
	}

	if err := f.SetColWidth(SheetSummary, "A", "A", 18); err != nil {
		return err
	}
	return f.SetColWidth(SheetSummary, "B", "G", 24)
}

func writeExcluded(f *excelize.File, b *core.Batch, headerStyle int) error {
	header := []any{"Guía", "Fila", "Registro", "Campo", "Valor", "Causa"}
	if err := writeHeader(f, SheetExcluded, header, headerStyle); err != nil {
		return err
	}
	if b.ExcludedReport == nil {
		return nil
	}
	for i, e := range b.ExcludedReport.Entries {
		row := []any{e.Guide, e.RowIndex + 1, e.RecordID, e.Field, e.Value, e.Cause}
		if err := setRow(f, SheetExcluded, 1, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func writeWarnings(f *excelize.File, b *core.Batch, headerStyle int) error {
	header := []any{"Guía", "Fila", "Registro", "Campo", "Valor", "Causa"}
	if err := writeHeader(f, SheetWarnings, header, headerStyle); err != nil {
		return err
	}
	for i, w := range b.Warnings {
		row := []any{w.Guide, w.RowIndex + 1, w.RecordID, w.Field, w.Value, w.Cause}
		if err := setRow(f, SheetWarnings, 1, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func writeHeader(f *excelize.File, sheet string, header []any, style int) error {
	if err := setRow(f, sheet, 1, 1, header); err != nil {
		return err
	}
	if err := f.SetRowStyle(sheet, 1, 1, style); err != nil {
		return err
	}
	if err := f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "A", "D", 16); err != nil {
		return err
	}
	return f.SetColWidth(sheet, "E", "F", 40)
}

func setRow(f *excelize.File, sheet string, col, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}
