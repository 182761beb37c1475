// Package ai builds comparison prompts for the reasoning service and
// parses its replies into a closed set of outcomes.
package ai

import (
	"strings"

	"speccheck/domain/docs"
	"speccheck/domain/spec"
)

const comparisonPromptTemplate = `You are verifying a certificate of analysis against a product specification.

Specification parameter:
- Parameter: {PARAMETER}
- Expected value: {EXPECTED}
- Unit: {UNIT}
- Category: {CATEGORY}

Source document text:
---
{DOCUMENT}
---

Find the fact in the document that corresponds to this parameter, even if the
document uses different terminology, units, or phrasing. Then judge compliance.

Respond with a single JSON object and nothing else:
{"status": "MATCH" | "MISMATCH" | "NOT_FOUND", "observed_value": "<value as written in the document, or empty>", "rationale": "<one sentence>", "confidence": <0.0-1.0>}

Rules:
- MATCH only when the document value clearly satisfies the expected value.
- If the document is ambiguous, hedged, or only partially supports the
  expected value, answer MISMATCH.
- NOT_FOUND only when the document says nothing about the parameter.
- Never convert units silently; report the value as written.`

// BuildComparisonPrompt renders the comparison prompt for one specification
// row against one document. When the document text exceeds maxChars, only
// fragments sharing tokens with the parameter name are included.
func BuildComparisonPrompt(row spec.Row, doc docs.ExtractedDocument, maxChars int) string {
	body := doc.FullText()
	if maxChars > 0 && len(body) > maxChars {
		body = selectRelevantSections(body, row.Name, maxChars)
	}

	replacements := map[string]string{
		"PARAMETER": row.Name,
		"EXPECTED":  row.ExpectedValue,
		"UNIT":      orDash(row.Unit),
		"CATEGORY":  string(row.Category),
		"DOCUMENT":  body,
	}
	prompt := comparisonPromptTemplate
	for placeholder, value := range replacements {
		prompt = strings.ReplaceAll(prompt, "{"+placeholder+"}", value)
	}
	return prompt
}

// selectRelevantSections keeps the paragraphs most likely to mention the
// parameter: those sharing a token (length >= 3, case-insensitive) with its
// name, in document order, up to maxChars. Falls back to a head truncation
// when nothing overlaps.
func selectRelevantSections(body, parameterName string, maxChars int) string {
	tokens := nameTokens(parameterName)
	paragraphs := strings.Split(body, "\n\n")

	var b strings.Builder
	for _, p := range paragraphs {
		if !containsAnyToken(p, tokens) {
			continue
		}
		if b.Len()+len(p)+2 > maxChars {
			break
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(p)
	}
	if b.Len() == 0 {
		if len(body) > maxChars {
			return body[:maxChars]
		}
		return body
	}
	return b.String()
}

func nameTokens(name string) []string {
	fields := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	var tokens []string
	for _, f := range fields {
		if len(f) >= 3 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func containsAnyToken(paragraph string, tokens []string) bool {
	lower := strings.ToLower(paragraph)
	for _, t := range tokens {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
