// Package report aggregates verdicts into per-document compliance reports
// and renders them for operators.
package report

import (
	"github.com/montanaflynn/stats"

	"speccheck/domain/spec"
	"speccheck/domain/verdict"
)

// StatusCounts are exact tallies per status.
type StatusCounts struct {
	Match    int
	Mismatch int
	NotFound int
	Error    int
}

func (c StatusCounts) Total() int {
	return c.Match + c.Mismatch + c.NotFound + c.Error
}

// CategoryGroup holds the verdicts of one category, in specification-row
// order.
type CategoryGroup struct {
	Category spec.Category
	Entries  []verdict.Verdict
	Counts   StatusCounts
}

// DocumentReport aggregates all verdicts for one document.
type DocumentReport struct {
	DocumentID     string
	FullyCompliant bool
	Counts         StatusCounts
	Categories     []CategoryGroup

	// Confidence summary over verdicts that carry a confidence scalar.
	MeanConfidence   float64
	MedianConfidence float64
	HasConfidence    bool
}

// Report is the aggregated view of a verdict sequence. It is derived,
// recomputable and never independently mutated.
type Report struct {
	Documents []DocumentReport
	Totals    StatusCounts
}

// Build aggregates a verdict sequence into a report. Pure and total:
// grouping is by document then category, preserving first-seen order,
// which for ordered comparator output means specification-row order.
// Calling Build twice on the same sequence yields identical reports.
func Build(verdicts []verdict.Verdict) *Report {
	r := &Report{}
	docIndex := make(map[string]int)

	for _, v := range verdicts {
		di, ok := docIndex[v.DocumentID]
		if !ok {
			di = len(r.Documents)
			docIndex[v.DocumentID] = di
			r.Documents = append(r.Documents, DocumentReport{DocumentID: v.DocumentID})
		}
		doc := &r.Documents[di]

		ci := -1
		for i := range doc.Categories {
			if doc.Categories[i].Category == v.Row.Category {
				ci = i
				break
			}
		}
		if ci < 0 {
			ci = len(doc.Categories)
			doc.Categories = append(doc.Categories, CategoryGroup{Category: v.Row.Category})
		}
		group := &doc.Categories[ci]
		group.Entries = append(group.Entries, v)
		tally(&group.Counts, v.Status)
		tally(&doc.Counts, v.Status)
		tally(&r.Totals, v.Status)
	}

	for i := range r.Documents {
		doc := &r.Documents[i]
		doc.FullyCompliant = doc.Counts.Mismatch == 0 && doc.Counts.Error == 0
		summarizeConfidence(doc)
	}
	return r
}

func tally(c *StatusCounts, s verdict.Status) {
	switch s {
	case verdict.StatusMatch:
		c.Match++
	case verdict.StatusMismatch:
		c.Mismatch++
	case verdict.StatusNotFound:
		c.NotFound++
	case verdict.StatusError:
		c.Error++
	}
}

func summarizeConfidence(doc *DocumentReport) {
	var values []float64
	for _, g := range doc.Categories {
		for _, v := range g.Entries {
			if v.HasConfidence {
				values = append(values, v.Confidence)
			}
		}
	}
	if len(values) == 0 {
		return
	}
	mean, err1 := stats.Mean(values)
	median, err2 := stats.Median(values)
	if err1 != nil || err2 != nil {
		return
	}
	doc.MeanConfidence = mean
	doc.MedianConfidence = median
	doc.HasConfidence = true
}
