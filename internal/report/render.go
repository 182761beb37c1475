package report

import (
	"fmt"
	"strings"

	"github.com/gomarkdown/markdown"

	"speccheck/domain/verdict"
)

// statusGlyph maps a status to its report marker. MATCH renders green,
// MISMATCH red, NOT_FOUND and ERROR grey in spreadsheet/HTML renderings.
func statusGlyph(s verdict.Status) string {
	switch s {
	case verdict.StatusMatch:
		return "🟢"
	case verdict.StatusMismatch:
		return "🔴"
	default:
		return "⚪"
	}
}

// RenderMarkdown renders the report as deterministic markdown: the same
// report always produces byte-identical output.
func RenderMarkdown(r *Report) string {
	var b strings.Builder
	b.WriteString("# Compliance Report\n\n")
	fmt.Fprintf(&b, "Documents: %d | Match: %d | Mismatch: %d | Not found: %d | Error: %d\n",
		len(r.Documents), r.Totals.Match, r.Totals.Mismatch, r.Totals.NotFound, r.Totals.Error)

	for _, doc := range r.Documents {
		fmt.Fprintf(&b, "\n## %s\n\n", doc.DocumentID)
		if doc.FullyCompliant {
			b.WriteString("**Fully compliant.**")
		} else {
			fmt.Fprintf(&b, "**%d mismatch(es), %d error(s).**", doc.Counts.Mismatch, doc.Counts.Error)
		}
		if doc.HasConfidence {
			fmt.Fprintf(&b, " Confidence mean %.2f, median %.2f.", doc.MeanConfidence, doc.MedianConfidence)
		}
		b.WriteString("\n\n")
		b.WriteString("| | Category | Parameter | Expected | Observed | Status | Rationale |\n")
		b.WriteString("|---|---|---|---|---|---|---|\n")
		for _, g := range doc.Categories {
			for _, v := range g.Entries {
				fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s |\n",
					statusGlyph(v.Status),
					escapeCell(string(g.Category)),
					escapeCell(v.Row.Name),
					escapeCell(v.Row.ExpectedValue),
					escapeCell(v.ObservedValue),
					v.Status,
					escapeCell(v.Rationale))
			}
		}
	}
	return b.String()
}

// RenderHTML converts the markdown rendering to HTML for on-screen use.
func RenderHTML(r *Report) []byte {
	return markdown.ToHTML([]byte(RenderMarkdown(r)), nil, nil)
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	s = strings.ReplaceAll(s, "\n", " ")
	return s
}
