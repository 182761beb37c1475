package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speccheck/domain/verdict"
	"speccheck/internal/errors"
)

func TestParseOutcomeJSON(t *testing.T) {
	out, err := ParseOutcome(`{"status": "MISMATCH", "observed_value": "0.08", "rationale": "observed 0.08 exceeds limit 0.05", "confidence": 0.92}`)
	require.NoError(t, err)
	assert.Equal(t, verdict.StatusMismatch, out.Status)
	assert.Equal(t, "0.08", out.ObservedValue)
	assert.Equal(t, "observed 0.08 exceeds limit 0.05", out.Rationale)
	assert.True(t, out.HasConfidence)
	assert.InDelta(t, 0.92, out.Confidence, 1e-9)
}

func TestParseOutcomeFencedJSON(t *testing.T) {
	out, err := ParseOutcome("```json\n{\"status\": \"MATCH\", \"observed_value\": \"4.5\", \"rationale\": \"value within range\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, verdict.StatusMatch, out.Status)
	assert.Equal(t, "4.5", out.ObservedValue)
	assert.False(t, out.HasConfidence)
}

func TestParseOutcomeChatterPrefix(t *testing.T) {
	out, err := ParseOutcome("Here is the result:\n{\"status\": \"NOT_FOUND\", \"observed_value\": \"\", \"rationale\": \"no mention of the parameter\"}")
	require.NoError(t, err)
	assert.Equal(t, verdict.StatusNotFound, out.Status)
}

func TestParseOutcomeBareToken(t *testing.T) {
	out, err := ParseOutcome("MISMATCH - the document reports a higher value")
	require.NoError(t, err)
	assert.Equal(t, verdict.StatusMismatch, out.Status)
	assert.NotEmpty(t, out.Rationale)
}

func TestParseOutcomeNegatedMatchClassifiesAsMismatch(t *testing.T) {
	cases := []string{
		"No match found: the document reports 0.08 mg/kg against the 0.05 limit.",
		"The stated value does not match the specification.",
		"Not a match - the certificate lists a different value.",
	}
	for _, reply := range cases {
		out, err := ParseOutcome(reply)
		require.NoError(t, err, reply)
		assert.Equal(t, verdict.StatusMismatch, out.Status, reply)
	}
}

func TestParseOutcomeHedgedClassifiesAsMismatch(t *testing.T) {
	out, err := ParseOutcome(`{"status": "UNCERTAIN", "observed_value": "trace amounts", "rationale": "the wording is ambiguous"}`)
	require.NoError(t, err)
	assert.Equal(t, verdict.StatusMismatch, out.Status)
}

func TestParseOutcomeGarbageFails(t *testing.T) {
	_, err := ParseOutcome("I cannot determine anything useful from this document.")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeUnparseableResponse))

	_, err = ParseOutcome("")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeUnparseableResponse))
}

func TestParseOutcomeUnknownStatusFails(t *testing.T) {
	_, err := ParseOutcome(`{"status": "MAYBE", "observed_value": "", "rationale": ""}`)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeUnparseableResponse))
}

func TestParseOutcomeConfidenceOutOfRangeIgnored(t *testing.T) {
	out, err := ParseOutcome(`{"status": "MATCH", "observed_value": "1", "rationale": "ok", "confidence": 7.5}`)
	require.NoError(t, err)
	assert.False(t, out.HasConfidence)
}

func TestMatchTokenInsideMismatchNotMisread(t *testing.T) {
	out, err := ParseOutcome("MISMATCH")
	require.NoError(t, err)
	assert.Equal(t, verdict.StatusMismatch, out.Status)
}
