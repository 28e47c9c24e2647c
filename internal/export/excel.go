// Package export renders the store contents as an xlsx workbook: one sheet
// with every record, one sheet per month, and the two summary reports. The
// layout follows the workbooks the legacy application produced; styling is
// kept to a bold header row.
package export

import (
	"context"
	"fmt"
	"io"
	"sort"

	"facturas/internal/core"
	"facturas/internal/storage"

	"github.com/xuri/excelize/v2"
)

const allSheet = "Todas las Facturas"

var recordHeaders = []any{"Fecha", "Tipo", "Descripción", "Valor (COP)"}

// Snapshot gathers the full store contents and writes the workbook to path.
func Snapshot(ctx context.Context, store *storage.Store, path string) error {
	f, err := build(ctx, store)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

// Stream gathers the full store contents and writes the workbook to w. Used
// by the export download endpoint.
func Stream(ctx context.Context, store *storage.Store, w io.Writer) error {
	f, err := build(ctx, store)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func build(ctx context.Context, store *storage.Store) (*excelize.File, error) {
	records, err := store.ListRecords(ctx, "", "")
	if err != nil {
		return nil, err
	}
	byCategory, err := store.SummaryByCategory(ctx, "", "")
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", allSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}

	if err := writeRecordSheet(f, allSheet, headerStyle, 1, records); err != nil {
		f.Close()
		return nil, err
	}

	if err := writeMonthSheets(f, headerStyle, records); err != nil {
		f.Close()
		return nil, err
	}

	if err := writeSummarySheet(f, headerStyle, byCategory); err != nil {
		f.Close()
		return nil, err
	}

	if err := writeMonthlySummarySheet(f, headerStyle, records); err != nil {
		f.Close()
		return nil, err
	}

	return f, nil
}

func writeRecordSheet(f *excelize.File, sheet string, headerStyle, headerRow int, records []core.Record) error {
	cell := fmt.Sprintf("A%d", headerRow)
	if err := f.SetSheetRow(sheet, cell, &recordHeaders); err != nil {
		return fmt.Errorf("write headers on %s: %w", sheet, err)
	}
	if err := f.SetCellStyle(sheet, cell, fmt.Sprintf("D%d", headerRow), headerStyle); err != nil {
		return fmt.Errorf("style headers on %s: %w", sheet, err)
	}

	for i, r := range records {
		row := []any{r.Date, r.Category, r.Description, r.Amount}
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", headerRow+1+i), &row); err != nil {
			return fmt.Errorf("write row on %s: %w", sheet, err)
		}
	}

	// Fixed widths instead of per-cell measurement; the width heuristics of
	// the legacy exporter are out of scope.
	if err := f.SetColWidth(sheet, "A", "A", 12); err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "B", "C", 24); err != nil {
		return err
	}
	return f.SetColWidth(sheet, "D", "D", 16)
}

// writeMonthSheets creates one sheet per year-month, newest first, each with
// its monthly total above the record table. Records whose dates do not parse
// are present on the main sheet but skipped here, like the legacy exporter.
func writeMonthSheets(f *excelize.File, headerStyle int, records []core.Record) error {
	byMonth := make(map[string][]core.Record)
	for _, r := range records {
		iso, err := core.ToISO(r.Date)
		if err != nil {
			continue
		}
		month := iso[:7]
		byMonth[month] = append(byMonth[month], r)
	}

	months := make([]string, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(months)))

	for _, month := range months {
		recs := byMonth[month]
		if _, err := f.NewSheet(month); err != nil {
			return fmt.Errorf("create month sheet %s: %w", month, err)
		}

		var total float64
		for _, r := range recs {
			total += r.Amount
		}
		totalRow := []any{"Total del mes", total}
		if err := f.SetSheetRow(month, "A1", &totalRow); err != nil {
			return fmt.Errorf("write month total %s: %w", month, err)
		}
		if err := f.SetCellStyle(month, "A1", "A1", headerStyle); err != nil {
			return fmt.Errorf("style month total %s: %w", month, err)
		}

		if err := writeRecordSheet(f, month, headerStyle, 3, recs); err != nil {
			return err
		}
	}
	return nil
}

func writeSummarySheet(f *excelize.File, headerStyle int, byCategory []core.CategorySummary) error {
	const sheet = "Resumen por Tipo"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}

	headers := []any{"Tipo", "Cantidad", "Total (COP)"}
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return fmt.Errorf("write summary headers: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", "C1", headerStyle); err != nil {
		return fmt.Errorf("style summary headers: %w", err)
	}

	for i, cs := range byCategory {
		row := []any{cs.Category, cs.Count, cs.Total}
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return fmt.Errorf("write summary row: %w", err)
		}
	}
	return f.SetColWidth(sheet, "A", "C", 20)
}

// writeMonthlySummarySheet totals records per year-month across all years,
// oldest first. Aggregated from the listing rather than the per-year report
// so the workbook covers the whole history in one sheet.
func writeMonthlySummarySheet(f *excelize.File, headerStyle int, records []core.Record) error {
	const sheet = "Resumen Mensual"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("create monthly summary sheet: %w", err)
	}

	totals := make(map[string]float64)
	for _, r := range records {
		iso, err := core.ToISO(r.Date)
		if err != nil {
			continue
		}
		totals[iso[:7]] += r.Amount
	}

	months := make([]string, 0, len(totals))
	for m := range totals {
		months = append(months, m)
	}
	sort.Strings(months)

	headers := []any{"Mes", "Total (COP)"}
	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return fmt.Errorf("write monthly summary headers: %w", err)
	}
	if err := f.SetCellStyle(sheet, "A1", "B1", headerStyle); err != nil {
		return fmt.Errorf("style monthly summary headers: %w", err)
	}

	for i, m := range months {
		row := []any{m, totals[m]}
		if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
			return fmt.Errorf("write monthly summary row: %w", err)
		}
	}
	return f.SetColWidth(sheet, "A", "B", 16)
}
