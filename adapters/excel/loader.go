// Package excel reads master specification workbooks and writes corrected
// and report workbooks.
package excel

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"speccheck/domain/spec"
	"speccheck/internal/errors"
)

// headerRowScanLimit bounds how deep the loader searches for the header row.
const headerRowScanLimit = 10

var nameHeaderSynonyms = []string{"parameter", "attribute", "name"}

var expectedHeaderSynonyms = []string{"specification", "expected", "value", "standard"}

// LoadSpecification parses master workbook bytes into specification rows,
// in source row order. Same bytes always yield the same rows. Only the
// first sheet is read; the original corrector works on the active sheet
// and additional sheets pass through untouched.
func LoadSpecification(b []byte) ([]spec.Row, error) {
	f, err := excelize.OpenReader(bytes.NewReader(b))
	if err != nil {
		return nil, errors.Wrap(errors.CodeMalformedSpecification, "cannot open master workbook", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.MalformedSpecification("master workbook has no sheets")
	}
	sheet := sheets[0]

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Wrap(errors.CodeMalformedSpecification, "cannot read sheet "+sheet, err)
	}

	headerIdx, cols, ok := findHeader(rows)
	if !ok {
		return nil, errors.MalformedSpecification(
			"no header row with parameter-name and expected-value columns in the first %d rows", headerRowScanLimit)
	}

	var out []spec.Row
	for i := headerIdx + 1; i < len(rows); i++ {
		row := rows[i]
		name := strings.TrimSpace(cellAt(row, cols.name))
		if name == "" {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(cols.expected+1, i+1)
		if err != nil {
			return nil, fmt.Errorf("cell coordinate for row %d: %w", i+1, err)
		}
		r := spec.Row{
			Name:          name,
			ExpectedValue: strings.TrimSpace(cellAt(row, cols.expected)),
			SourceCell:    spec.CellRef{Sheet: sheet, Cell: cell},
			Index:         len(out),
			Category:      spec.CategoryOther,
		}
		if cols.unit >= 0 {
			r.Unit = strings.TrimSpace(cellAt(row, cols.unit))
		}
		if cols.category >= 0 {
			r.Category = spec.ParseCategory(cellAt(row, cols.category))
		}
		out = append(out, r)
	}
	return out, nil
}

type headerColumns struct {
	name     int
	expected int
	unit     int
	category int
}

func findHeader(rows [][]string) (int, headerColumns, bool) {
	limit := len(rows)
	if limit > headerRowScanLimit {
		limit = headerRowScanLimit
	}
	for i := 0; i < limit; i++ {
		cols := headerColumns{name: -1, expected: -1, unit: -1, category: -1}
		for j, cell := range rows[i] {
			header := strings.ToLower(strings.TrimSpace(cell))
			switch {
			case cols.name < 0 && matchesAny(header, nameHeaderSynonyms):
				cols.name = j
			case cols.expected < 0 && matchesAny(header, expectedHeaderSynonyms):
				cols.expected = j
			case cols.unit < 0 && strings.Contains(header, "unit"):
				cols.unit = j
			case cols.category < 0 && strings.Contains(header, "categor"):
				cols.category = j
			}
		}
		if cols.name >= 0 && cols.expected >= 0 {
			return i, cols, true
		}
	}
	return 0, headerColumns{}, false
}

func matchesAny(header string, synonyms []string) bool {
	if header == "" {
		return false
	}
	for _, s := range synonyms {
		if strings.Contains(header, s) {
			return true
		}
	}
	return false
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
