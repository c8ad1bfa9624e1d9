package report

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

// WriteXLSX writes the summary as a workbook with a Summary sheet and a
// Failures sheet listing permanently failed items for manual follow-up.
func (s *Summary) WriteXLSX(path string) error {
	f := excelize.NewFile()
	defer f.Close()

	const summarySheet = "Summary"
	const failuresSheet = "Failures"

	// The default sheet becomes Summary.
	if err := f.SetSheetName(f.GetSheetName(0), summarySheet); err != nil {
		return fmt.Errorf("rename summary sheet: %w", err)
	}
	if _, err := f.NewSheet(failuresSheet); err != nil {
		return fmt.Errorf("create failures sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#DDDDDD"}},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	setCell := func(sheet string, col, row int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}

	summaryRows := []struct {
		label string
		value any
	}{
		{"Run ID", s.RunID},
		{"Mode", s.Mode},
		{"Phase", s.Phase},
		{"Started", s.StartedAt.Format(time.RFC3339)},
		{"Finished", s.FinishedAt.Format(time.RFC3339)},
		{"Elapsed", s.Elapsed().Round(time.Second).String()},
		{"Enumerated", s.Enumerated},
		{"Skipped (checkpointed)", s.Skipped},
		{"Succeeded", s.Succeeded},
		{"Failed permanently", s.FailedPermanent},
		{"Transient retries", s.Retried},
		{"Cancelled", s.Cancelled},
		{"Still pending", s.Pending()},
	}
	setCell(summarySheet, 1, 1, "Metric")
	setCell(summarySheet, 2, 1, "Value")
	_ = f.SetCellStyle(summarySheet, "A1", "B1", headerStyle)
	for i, row := range summaryRows {
		setCell(summarySheet, 1, i+2, row.label)
		setCell(summarySheet, 2, i+2, row.value)
	}

	failureHeaders := []string{"Item ID", "Name", "Reason", "Attempts", "Last Error"}
	for i, h := range failureHeaders {
		setCell(failuresSheet, i+1, 1, h)
	}
	_ = f.SetCellStyle(failuresSheet, "A1", "E1", headerStyle)
	for i, failure := range s.Failures {
		row := i + 2
		setCell(failuresSheet, 1, row, failure.ItemID)
		setCell(failuresSheet, 2, row, failure.Name)
		setCell(failuresSheet, 3, row, failure.Reason)
		setCell(failuresSheet, 4, row, failure.Attempts)
		setCell(failuresSheet, 5, row, failure.LastError)
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save report %s: %w", path, err)
	}
	return nil
}
