package excel

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"speccheck/domain/verdict"
	"speccheck/internal/errors"
)

// commentAuthor is the author recorded on cell annotations.
const commentAuthor = "speccheck"

// highlightColor is the solid fill applied to corrected cells.
const highlightColor = "FFFF00"

// placeholderValues are observed values that carry no information and must
// never overwrite a master cell.
var placeholderValues = map[string]struct{}{
	"n/a":                      {},
	"not specified":            {},
	"not explicitly mentioned": {},
}

// CorrectMaster produces a copy of the master workbook in which every cell
// targeted by a MISMATCH verdict is overwritten with the observed value,
// highlighted, and annotated with the rationale. All other cells, sheets
// and formatting pass through unchanged. Output is deterministic for the
// same inputs.
func CorrectMaster(original []byte, verdicts []verdict.Verdict) ([]byte, error) {
	f, err := excelize.OpenReader(bytes.NewReader(original))
	if err != nil {
		return nil, errors.Wrap(errors.CodeMalformedSpecification, "cannot open master workbook", err)
	}
	defer f.Close()

	highlight, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{highlightColor}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("create highlight style: %w", err)
	}

	targeted := make(map[string]struct{})
	for _, v := range verdicts {
		if v.Status != verdict.StatusMismatch {
			continue
		}

		// The dup check covers every MISMATCH target, including ones that
		// end up skipped below: two verdicts claiming one cell is an
		// upstream invariant violation either way.
		target := v.Row.SourceCell
		if _, dup := targeted[target.String()]; dup {
			return nil, errors.DuplicateCellTarget(target.String())
		}
		targeted[target.String()] = struct{}{}

		observed := strings.TrimSpace(v.ObservedValue)
		if observed == "" {
			continue
		}
		if _, ok := placeholderValues[strings.ToLower(observed)]; ok {
			continue
		}

		previous, err := f.GetCellValue(target.Sheet, target.Cell)
		if err != nil {
			return nil, fmt.Errorf("read cell %s: %w", target, err)
		}
		if err := f.SetCellValue(target.Sheet, target.Cell, observed); err != nil {
			return nil, fmt.Errorf("write cell %s: %w", target, err)
		}
		if err := f.SetCellStyle(target.Sheet, target.Cell, target.Cell, highlight); err != nil {
			return nil, fmt.Errorf("highlight cell %s: %w", target, err)
		}
		comment := v.Rationale
		if previous != "" {
			comment = fmt.Sprintf("%s (was: %s)", comment, previous)
		}
		err = f.AddComment(target.Sheet, excelize.Comment{
			Cell:   target.Cell,
			Author: commentAuthor,
			Paragraph: []excelize.RichTextRun{
				{Text: comment},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("annotate cell %s: %w", target, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("serialize corrected workbook: %w", err)
	}
	return buf.Bytes(), nil
}
