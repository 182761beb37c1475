package ports

import (
	"context"

	"github.com/google/uuid"

	"speccheck/domain/verdict"
)

// AuditStore persists comparison runs so prior verdicts can be listed and
// re-fetched. A nil store disables persistence without changing engine
// semantics.
type AuditStore interface {
	SaveRun(ctx context.Context, run *verdict.Run) error
	ListRuns(ctx context.Context) ([]verdict.Summary, error)
	GetRunVerdicts(ctx context.Context, runID uuid.UUID) ([]verdict.Verdict, error)
}
