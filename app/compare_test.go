package app

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"speccheck/adapters/excel"
	"speccheck/adapters/llm"
	"speccheck/domain/docs"
	"speccheck/domain/spec"
	"speccheck/domain/verdict"
	"speccheck/internal/config"
	"speccheck/internal/errors"
)

func testRows(names ...string) []spec.Row {
	rows := make([]spec.Row, len(names))
	for i, n := range names {
		rows[i] = spec.Row{
			Name:          n,
			ExpectedValue: "present",
			SourceCell:    spec.CellRef{Sheet: "Sheet1", Cell: fmt.Sprintf("B%d", i+2)},
			Index:         i,
		}
	}
	return rows
}

func testDoc(text string) docs.ExtractedDocument {
	return docs.ExtractedDocument{DocumentID: "coa.pdf", RawText: text}
}

func outcomeJSON(status, observed string) string {
	return fmt.Sprintf(`{"status": %q, "observed_value": %q, "rationale": "stated in document"}`, status, observed)
}

func TestCompareDocumentOrderedResults(t *testing.T) {
	rows := testRows("Lead", "Protein", "Moisture")
	mock := &llm.MockOracle{
		Script: func(call int, prompt string) (string, error) {
			// First dispatched row finishes last; placement must still
			// restore specification order.
			switch {
			case strings.Contains(prompt, "Parameter: Lead"):
				time.Sleep(80 * time.Millisecond)
				return outcomeJSON("MATCH", "Lead ok"), nil
			case strings.Contains(prompt, "Parameter: Protein"):
				time.Sleep(20 * time.Millisecond)
				return outcomeJSON("MATCH", "Protein ok"), nil
			default:
				return outcomeJSON("NOT_FOUND", ""), nil
			}
		},
	}
	svc := NewCompareService(mock, config.CompareConfig{Concurrency: 3, ThrottleAbortThreshold: 3})

	verdicts, aborted := svc.CompareDocument(context.Background(), rows, testDoc("analysis results attached"))
	require.False(t, aborted)
	require.Len(t, verdicts, 3)
	assert.Equal(t, "Lead", verdicts[0].Row.Name)
	assert.Equal(t, "Lead ok", verdicts[0].ObservedValue)
	assert.Equal(t, "Protein", verdicts[1].Row.Name)
	assert.Equal(t, "Protein ok", verdicts[1].ObservedValue)
	assert.Equal(t, "Moisture", verdicts[2].Row.Name)
	assert.Equal(t, verdict.StatusNotFound, verdicts[2].Status)
	assert.Equal(t, 3, mock.Calls())
}

func TestCompareDocumentSkipsRowsWithoutExpectation(t *testing.T) {
	rows := []spec.Row{
		{Name: "Lead", ExpectedValue: "<0.05"},
		{Name: "Appearance", ExpectedValue: ""},
		{Name: "Odor", ExpectedValue: "   "},
	}
	mock := &llm.MockOracle{Response: outcomeJSON("MATCH", "0.01")}
	svc := NewCompareService(mock, config.CompareConfig{Concurrency: 1})

	verdicts, _ := svc.CompareDocument(context.Background(), rows, testDoc("Lead: 0.01"))
	require.Len(t, verdicts, 1)
	assert.Equal(t, "Lead", verdicts[0].Row.Name)
	assert.Equal(t, 1, mock.Calls())
}

func TestCompareDocumentNoComparableRows(t *testing.T) {
	mock := &llm.MockOracle{Response: outcomeJSON("MATCH", "")}
	svc := NewCompareService(mock, config.CompareConfig{Concurrency: 1})

	verdicts, aborted := svc.CompareDocument(context.Background(), []spec.Row{{Name: "Appearance"}}, testDoc("x"))
	assert.Empty(t, verdicts)
	assert.False(t, aborted)
	assert.Zero(t, mock.Calls())
}

func TestCompareDocumentThrottleAbort(t *testing.T) {
	rows := testRows("A", "B", "C", "D", "E", "F")
	mock := &llm.MockOracle{
		Script: func(call int, prompt string) (string, error) {
			return "", errors.ThrottleExhausted(nil)
		},
	}
	// Sequential dispatch makes the abort point deterministic.
	svc := NewCompareService(mock, config.CompareConfig{Concurrency: 1, ThrottleAbortThreshold: 3})

	verdicts, aborted := svc.CompareDocument(context.Background(), rows, testDoc("x"))
	require.True(t, aborted)
	require.Len(t, verdicts, 6)
	for i := 0; i < 3; i++ {
		assert.Equal(t, verdict.StatusError, verdicts[i].Status)
		assert.Equal(t, "rate limit exhausted", verdicts[i].Rationale)
	}
	for i := 3; i < 6; i++ {
		assert.Equal(t, verdict.StatusError, verdicts[i].Status)
		assert.Equal(t, "aborted: rate limit", verdicts[i].Rationale)
	}
	assert.Equal(t, 3, mock.Calls(), "no calls issued after the abort threshold")
}

func TestCompareDocumentThrottleCounterResets(t *testing.T) {
	rows := testRows("A", "B", "C", "D")
	mock := &llm.MockOracle{
		Script: func(call int, prompt string) (string, error) {
			if call == 1 {
				return outcomeJSON("NOT_FOUND", ""), nil
			}
			return "", errors.ThrottleExhausted(nil)
		},
	}
	svc := NewCompareService(mock, config.CompareConfig{Concurrency: 1, ThrottleAbortThreshold: 3})

	verdicts, aborted := svc.CompareDocument(context.Background(), rows, testDoc("x"))
	assert.False(t, aborted, "a success between throttles resets the streak")
	require.Len(t, verdicts, 4)
	assert.Equal(t, 4, mock.Calls())
	assert.Equal(t, verdict.StatusNotFound, verdicts[1].Status)
}

func TestCompareDocumentCancelled(t *testing.T) {
	rows := testRows("A", "B", "C")
	mock := &llm.MockOracle{Response: outcomeJSON("MATCH", "x")}
	svc := NewCompareService(mock, config.CompareConfig{Concurrency: 2})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	verdicts, aborted := svc.CompareDocument(ctx, rows, testDoc("x"))
	require.False(t, aborted)
	require.Len(t, verdicts, 3, "cancellation never truncates the sequence")
	for _, v := range verdicts {
		assert.Equal(t, verdict.StatusError, v.Status)
		assert.Equal(t, "aborted: cancelled", v.Rationale)
	}
	assert.Zero(t, mock.Calls())
}

func TestCompareRowFaultClassification(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		rationale string
	}{
		{"rejected", errors.RequestRejected(fmt.Errorf("bad model")), "request rejected: "},
		{"transport", errors.TransportError(fmt.Errorf("eof")), "transport failure: "},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mock := &llm.MockOracle{Err: tc.err}
			svc := NewCompareService(mock, config.CompareConfig{Concurrency: 1})
			verdicts, _ := svc.CompareDocument(context.Background(), testRows("Lead"), testDoc("x"))
			require.Len(t, verdicts, 1)
			assert.Equal(t, verdict.StatusError, verdicts[0].Status)
			assert.True(t, strings.HasPrefix(verdicts[0].Rationale, tc.rationale), verdicts[0].Rationale)
		})
	}
}

func TestCompareRowUnparseableReply(t *testing.T) {
	mock := &llm.MockOracle{Response: "I am sorry, I cannot determine this."}
	svc := NewCompareService(mock, config.CompareConfig{Concurrency: 1})

	verdicts, _ := svc.CompareDocument(context.Background(), testRows("Lead"), testDoc("x"))
	require.Len(t, verdicts, 1)
	assert.Equal(t, verdict.StatusError, verdicts[0].Status)
	assert.Equal(t, "unparseable response", verdicts[0].Rationale)
}

func TestNumericCheckOverridesOracle(t *testing.T) {
	rows := []spec.Row{{Name: "Lead", ExpectedValue: "<0.05", Unit: "mg/kg"}}
	mock := &llm.MockOracle{Response: outcomeJSON("MATCH", "0.08")}
	svc := NewCompareService(mock, config.CompareConfig{Concurrency: 1})

	verdicts, _ := svc.CompareDocument(context.Background(), rows, testDoc("Lead (Pb): 0.08 mg/kg"))
	require.Len(t, verdicts, 1)
	assert.Equal(t, verdict.StatusMismatch, verdicts[0].Status)
	assert.Equal(t, "observed 0.08 exceeds limit 0.05", verdicts[0].Rationale)
	assert.Equal(t, "0.08", verdicts[0].ObservedValue)
}

func TestNumericCheckConfirmsOracle(t *testing.T) {
	rows := []spec.Row{{Name: "Lead", ExpectedValue: "<0.05"}}
	mock := &llm.MockOracle{Response: outcomeJSON("MATCH", "0.04")}
	svc := NewCompareService(mock, config.CompareConfig{Concurrency: 1})

	verdicts, _ := svc.CompareDocument(context.Background(), rows, testDoc("x"))
	require.Len(t, verdicts, 1)
	assert.Equal(t, verdict.StatusMatch, verdicts[0].Status)
	// Agreement keeps the oracle's own rationale.
	assert.Equal(t, "stated in document", verdicts[0].Rationale)
}

func TestNumericCheckSurfacesUnitDifference(t *testing.T) {
	rows := []spec.Row{{Name: "Vitamin C", ExpectedValue: "<50 mg"}}
	mock := &llm.MockOracle{Response: outcomeJSON("MATCH", "40 g")}
	svc := NewCompareService(mock, config.CompareConfig{Concurrency: 1})

	verdicts, _ := svc.CompareDocument(context.Background(), rows, testDoc("x"))
	require.Len(t, verdicts, 1)
	assert.Equal(t, verdict.StatusMatch, verdicts[0].Status)
	assert.Contains(t, verdicts[0].Rationale, "expected unit mg, observed unit g")
}

func TestCompareAllBundlesDocuments(t *testing.T) {
	rows := testRows("Lead")
	mock := &llm.MockOracle{Response: outcomeJSON("MATCH", "ok")}
	svc := NewCompareService(mock, config.CompareConfig{Concurrency: 2})

	documents := []docs.ExtractedDocument{
		{DocumentID: "a.pdf", RawText: "x"},
		{DocumentID: "b.pdf", RawText: "y"},
	}
	run := svc.CompareAll(context.Background(), "master.xlsx", rows, documents)
	require.NotNil(t, run)
	assert.NotEqual(t, uuid.Nil, run.ID)
	assert.Equal(t, "master.xlsx", run.MasterName)
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, run.Documents)
	require.Len(t, run.Verdicts, 2)
	assert.Equal(t, "a.pdf", run.Verdicts[0].DocumentID)
	assert.Equal(t, "b.pdf", run.Verdicts[1].DocumentID)
	assert.Empty(t, run.Warnings)
}

func TestCompareAllRecordsThrottleWarnings(t *testing.T) {
	rows := testRows("A", "B", "C", "D")
	mock := &llm.MockOracle{Err: errors.ThrottleExhausted(nil)}
	svc := NewCompareService(mock, config.CompareConfig{Concurrency: 1, ThrottleAbortThreshold: 3})

	run := svc.CompareAll(context.Background(), "m.xlsx", rows, []docs.ExtractedDocument{testDoc("x")})
	require.Len(t, run.Warnings, 1)
	assert.Contains(t, run.Warnings[0], "coa.pdf")
	assert.Len(t, run.Verdicts, 4)
}

// End-to-end: load a master workbook, compare one document, and write the
// correction back into the original cell.
func TestCompareAndCorrectRoundTrip(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Parameter"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "Specification"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "Lead"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", "<0.05"))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	require.NoError(t, f.Close())
	master := buf.Bytes()

	rows, err := excel.LoadSpecification(master)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	mock := &llm.MockOracle{
		Response: `{"status": "MISMATCH", "observed_value": "0.08", "rationale": "certificate reports 0.08 mg/kg"}`,
	}
	svc := NewCompareService(mock, config.CompareConfig{Concurrency: 1})
	verdicts, aborted := svc.CompareDocument(context.Background(), rows,
		testDoc("Heavy metals panel. Lead (Pb): 0.08 mg/kg."))
	require.False(t, aborted)
	require.Len(t, verdicts, 1)
	require.Equal(t, verdict.StatusMismatch, verdicts[0].Status)

	corrected, err := excel.CorrectMaster(master, verdicts)
	require.NoError(t, err)

	out, err := excelize.OpenReader(bytes.NewReader(corrected))
	require.NoError(t, err)
	defer out.Close()
	got, err := out.GetCellValue("Sheet1", "B2")
	require.NoError(t, err)
	assert.Equal(t, "0.08", got)
	comments, err := out.GetComments("Sheet1")
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Contains(t, comments[0].Paragraph[0].Text, "was: <0.05")
}
