package docs

import "strings"

// Table is one tabular fragment lifted out of a source document by the
// extraction collaborator. Rows are raw cell strings in reading order.
type Table struct {
	Title string
	Rows  [][]string
}

// Text renders the table as tab-separated lines for prompt inclusion.
func (t Table) Text() string {
	var b strings.Builder
	if t.Title != "" {
		b.WriteString(t.Title)
		b.WriteString("\n")
	}
	for _, row := range t.Rows {
		b.WriteString(strings.Join(row, "\t"))
		b.WriteString("\n")
	}
	return b.String()
}

// ExtractedDocument is a source document (certificate of analysis, lab
// report) after OCR/text extraction. Immutable once handed to the engine.
type ExtractedDocument struct {
	DocumentID string
	RawText    string
	Tables     []Table
}

// FullText returns the raw text with all table fragments appended, which
// is the complete evidence body the comparator works from.
func (d ExtractedDocument) FullText() string {
	if len(d.Tables) == 0 {
		return d.RawText
	}
	var b strings.Builder
	b.WriteString(d.RawText)
	for _, t := range d.Tables {
		b.WriteString("\n\n")
		b.WriteString(t.Text())
	}
	return b.String()
}
