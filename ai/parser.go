package ai

import (
	"encoding/json"
	"regexp"
	"strings"

	"speccheck/domain/verdict"
	"speccheck/internal/errors"
)

// Outcome is a validated reasoning-service judgment. The raw reply never
// reaches structured fields without passing through ParseOutcome.
type Outcome struct {
	Status        verdict.Status
	ObservedValue string
	Rationale     string
	Confidence    float64
	HasConfidence bool
}

type rawOutcome struct {
	Status        string   `json:"status"`
	ObservedValue string   `json:"observed_value"`
	Rationale     string   `json:"rationale"`
	Confidence    *float64 `json:"confidence"`
}

// statusTokenRe matches a standalone status token in free text. MISMATCH
// is listed before MATCH so the longer token wins at the same offset.
var statusTokenRe = regexp.MustCompile(`\b(MISMATCH|NOT[_ ]FOUND|UNCERTAIN|MATCH)\b`)

// negationRe matches a negating phrase directly before a status token
// ("no match", "not a match", "does not match").
var negationRe = regexp.MustCompile(`\b(?:NO|NOT|NEVER|CANNOT|WITHOUT|DOES\s+NOT|DOESN'?T|IS\s+NOT|ISN'?T)(?:\s+AN?)?\s*$`)

// ParseOutcome parses a reasoning-service reply into an Outcome. The reply
// must yield one of the closed status tokens; anything else fails with
// UNPARSEABLE_RESPONSE. Hedged judgments (UNCERTAIN) classify as MISMATCH:
// a flagged false negative is reviewed by a human, a silent false positive
// is not.
func ParseOutcome(reply string) (Outcome, error) {
	content := cleanReply(reply)
	if content == "" {
		return Outcome{}, errors.UnparseableResponse("empty reply")
	}

	var raw rawOutcome
	if err := json.Unmarshal([]byte(content), &raw); err == nil && raw.Status != "" {
		status, ok := normalizeStatus(raw.Status)
		if !ok {
			return Outcome{}, errors.UnparseableResponse("unknown status token " + raw.Status)
		}
		out := Outcome{
			Status:        status,
			ObservedValue: strings.TrimSpace(raw.ObservedValue),
			Rationale:     strings.TrimSpace(raw.Rationale),
		}
		if raw.Confidence != nil && *raw.Confidence >= 0 && *raw.Confidence <= 1 {
			out.Confidence = *raw.Confidence
			out.HasConfidence = true
		}
		return out, nil
	}

	// Fallback for non-JSON replies: accept a bare status token with the
	// remainder of the line as rationale.
	upper := strings.ToUpper(content)
	loc := statusTokenRe.FindStringIndex(upper)
	if loc == nil {
		return Outcome{}, errors.UnparseableResponse("no status token in reply")
	}
	status, _ := normalizeStatus(upper[loc[0]:loc[1]])
	// A negated MATCH ("no match found") is a mismatch judgment, not a
	// match; reading it as MATCH would be a silent false positive.
	if status == verdict.StatusMatch && negationRe.MatchString(upper[:loc[0]]) {
		status = verdict.StatusMismatch
	}
	return Outcome{Status: status, Rationale: tokenRationale(content)}, nil
}

func normalizeStatus(s string) (verdict.Status, bool) {
	switch strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), " ", "_") {
	case "MATCH":
		return verdict.StatusMatch, true
	case "MISMATCH":
		return verdict.StatusMismatch, true
	case "NOT_FOUND", "NOTFOUND":
		return verdict.StatusNotFound, true
	case "UNCERTAIN", "PARTIAL", "UNSURE":
		// Hedged judgment: tie-break toward MISMATCH.
		return verdict.StatusMismatch, true
	default:
		return "", false
	}
}

// cleanReply strips markdown fences and leading chatter so a well-formed
// JSON body can be recovered from a slightly noisy reply.
func cleanReply(reply string) string {
	content := strings.TrimSpace(reply)

	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	}

	// Drop chatter lines before the JSON object ("Here is the result:").
	if idx := strings.Index(content, "{"); idx > 0 {
		prefix := content[:idx]
		if !strings.ContainsAny(prefix, "}") && strings.Count(prefix, "\n") <= 3 {
			if looksLikeChatter(prefix) {
				content = content[idx:]
			}
		}
	}
	return strings.TrimSpace(content)
}

func looksLikeChatter(prefix string) bool {
	lower := strings.ToLower(strings.TrimSpace(prefix))
	return strings.HasPrefix(lower, "here") ||
		strings.HasPrefix(lower, "the json") ||
		strings.HasPrefix(lower, "output:") ||
		strings.HasPrefix(lower, "response:") ||
		strings.HasPrefix(lower, "sure") ||
		lower == ""
}

func tokenRationale(content string) string {
	line := content
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)
	if len(line) > 300 {
		line = line[:300]
	}
	return line
}
