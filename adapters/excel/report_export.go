package excel

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"speccheck/domain/verdict"
	"speccheck/internal/report"
)

// Status fill colors for the exported report workbook.
const (
	fillMatch    = "C6EFCE" // green
	fillMismatch = "FFC7CE" // red
	fillNeutral  = "D9D9D9" // grey, NOT_FOUND and ERROR
)

var resultHeaders = []string{"Document", "Category", "Parameter", "Expected", "Observed", "Status", "Rationale"}

// ExportReport renders a compliance report as a color-coded workbook: a
// "Results" sheet with one row per verdict and a "Summary" sheet with
// per-document tallies.
func ExportReport(r *report.Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const results = "Results"
	if err := f.SetSheetName("Sheet1", results); err != nil {
		return nil, fmt.Errorf("rename results sheet: %w", err)
	}

	styles, err := statusStyles(f)
	if err != nil {
		return nil, err
	}

	if err := writeRow(f, results, 1, resultHeaders); err != nil {
		return nil, err
	}
	rowNum := 2
	for _, doc := range r.Documents {
		for _, g := range doc.Categories {
			for _, v := range g.Entries {
				cells := []string{
					doc.DocumentID,
					string(g.Category),
					v.Row.Name,
					v.Row.ExpectedValue,
					v.ObservedValue,
					string(v.Status),
					v.Rationale,
				}
				if err := writeRow(f, results, rowNum, cells); err != nil {
					return nil, err
				}
				statusCell, _ := excelize.CoordinatesToCellName(6, rowNum)
				if err := f.SetCellStyle(results, statusCell, statusCell, styles[v.Status]); err != nil {
					return nil, fmt.Errorf("style status cell %s: %w", statusCell, err)
				}
				rowNum++
			}
		}
	}

	const summary = "Summary"
	if _, err := f.NewSheet(summary); err != nil {
		return nil, fmt.Errorf("create summary sheet: %w", err)
	}
	if err := writeRow(f, summary, 1, []string{"Document", "Match", "Mismatch", "Not found", "Error", "Fully compliant"}); err != nil {
		return nil, err
	}
	for i, doc := range r.Documents {
		compliant := "no"
		if doc.FullyCompliant {
			compliant = "yes"
		}
		cells := []string{
			doc.DocumentID,
			fmt.Sprintf("%d", doc.Counts.Match),
			fmt.Sprintf("%d", doc.Counts.Mismatch),
			fmt.Sprintf("%d", doc.Counts.NotFound),
			fmt.Sprintf("%d", doc.Counts.Error),
			compliant,
		}
		if err := writeRow(f, summary, i+2, cells); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize report workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func statusStyles(f *excelize.File) (map[verdict.Status]int, error) {
	styles := make(map[verdict.Status]int)
	for status, color := range map[verdict.Status]string{
		verdict.StatusMatch:    fillMatch,
		verdict.StatusMismatch: fillMismatch,
		verdict.StatusNotFound: fillNeutral,
		verdict.StatusError:    fillNeutral,
	} {
		id, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		})
		if err != nil {
			return nil, fmt.Errorf("create status style: %w", err)
		}
		styles[status] = id
	}
	return styles, nil
}

func writeRow(f *excelize.File, sheet string, row int, cells []string) error {
	for i, cell := range cells {
		name, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, name, cell); err != nil {
			return fmt.Errorf("write %s!%s: %w", sheet, name, err)
		}
	}
	return nil
}
