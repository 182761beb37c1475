package verdict

import (
	"time"

	"github.com/google/uuid"

	"speccheck/domain/spec"
)

// Status is the classified outcome of comparing one specification row
// against one document.
type Status string

const (
	StatusMatch    Status = "MATCH"
	StatusMismatch Status = "MISMATCH"
	StatusNotFound Status = "NOT_FOUND"
	StatusError    Status = "ERROR"
)

// Verdict records one (row, document) comparison. It is created once per
// comparison run and never mutated; a re-run produces fresh verdicts.
type Verdict struct {
	Row           spec.Row
	DocumentID    string
	Status        Status
	ObservedValue string
	Rationale     string

	// Confidence is an optional scalar reported by the reasoning service.
	Confidence    float64
	HasConfidence bool
}

// Run bundles the verdicts of one comparison run across all documents,
// in specification-row order per document.
type Run struct {
	ID         uuid.UUID
	CreatedAt  time.Time
	MasterName string
	Documents  []string
	Verdicts   []Verdict
	Warnings   []string
}

// Summary is the listing view of a persisted run.
type Summary struct {
	ID            uuid.UUID `db:"run_id"`
	CreatedAt     time.Time `db:"created_at"`
	MasterName    string    `db:"master_name"`
	DocumentCount int       `db:"document_count"`
	Status        string    `db:"status"`
}
