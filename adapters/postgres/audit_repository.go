// Package postgres persists comparison runs for later review.
package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"speccheck/domain/spec"
	"speccheck/domain/verdict"
	"speccheck/ports"
)

// Schema holds the audit tables. Applied by the cmd binaries at startup;
// idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS compliance_runs (
	run_id         UUID PRIMARY KEY,
	created_at     TIMESTAMPTZ NOT NULL,
	master_name    TEXT NOT NULL,
	document_count INT NOT NULL,
	status         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS compliance_verdicts (
	run_id      UUID NOT NULL REFERENCES compliance_runs(run_id) ON DELETE CASCADE,
	position    INT NOT NULL,
	document_id TEXT NOT NULL,
	parameter   TEXT NOT NULL,
	category    TEXT NOT NULL,
	expected    TEXT NOT NULL,
	observed    TEXT NOT NULL,
	status      TEXT NOT NULL,
	rationale   TEXT NOT NULL,
	confidence  DOUBLE PRECISION,
	source_cell TEXT NOT NULL,
	PRIMARY KEY (run_id, position)
);
`

// AuditRepository implements ports.AuditStore on PostgreSQL.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository creates a PostgreSQL audit repository.
func NewAuditRepository(db *sqlx.DB) ports.AuditStore {
	return &AuditRepository{db: db}
}

// Migrate applies the audit schema.
func Migrate(db *sqlx.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("apply audit schema: %w", err)
	}
	return nil
}

// SaveRun inserts a run and its verdicts in one transaction.
func (r *AuditRepository) SaveRun(ctx context.Context, run *verdict.Run) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit tx: %w", err)
	}
	defer tx.Rollback()

	status := "completed"
	if len(run.Warnings) > 0 {
		status = "completed_with_warnings"
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO compliance_runs (run_id, created_at, master_name, document_count, status)
		VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.CreatedAt, run.MasterName, len(run.Documents), status)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	for i, v := range run.Verdicts {
		var confidence *float64
		if v.HasConfidence {
			c := v.Confidence
			confidence = &c
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO compliance_verdicts (
				run_id, position, document_id, parameter, category,
				expected, observed, status, rationale, confidence, source_cell
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			run.ID, i, v.DocumentID, v.Row.Name, string(v.Row.Category),
			v.Row.ExpectedValue, v.ObservedValue, string(v.Status), v.Rationale,
			confidence, v.Row.SourceCell.String())
		if err != nil {
			return fmt.Errorf("insert verdict %d of run %s: %w", i, run.ID, err)
		}
	}

	return tx.Commit()
}

// ListRuns returns run summaries, newest first.
func (r *AuditRepository) ListRuns(ctx context.Context) ([]verdict.Summary, error) {
	var out []verdict.Summary
	err := r.db.SelectContext(ctx, &out, `
		SELECT run_id, created_at, master_name, document_count, status
		FROM compliance_runs
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

type verdictRow struct {
	DocumentID string   `db:"document_id"`
	Parameter  string   `db:"parameter"`
	Category   string   `db:"category"`
	Expected   string   `db:"expected"`
	Observed   string   `db:"observed"`
	Status     string   `db:"status"`
	Rationale  string   `db:"rationale"`
	Confidence *float64 `db:"confidence"`
	SourceCell string   `db:"source_cell"`
}

// GetRunVerdicts returns the verdicts of a run in stored position order.
func (r *AuditRepository) GetRunVerdicts(ctx context.Context, runID uuid.UUID) ([]verdict.Verdict, error) {
	var rows []verdictRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT document_id, parameter, category, expected, observed,
		       status, rationale, confidence, source_cell
		FROM compliance_verdicts
		WHERE run_id = $1
		ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("load verdicts for run %s: %w", runID, err)
	}

	out := make([]verdict.Verdict, 0, len(rows))
	for i, row := range rows {
		v := verdict.Verdict{
			Row: spec.Row{
				Name:          row.Parameter,
				ExpectedValue: row.Expected,
				Category:      spec.Category(row.Category),
				Index:         i,
			},
			DocumentID:    row.DocumentID,
			Status:        verdict.Status(row.Status),
			ObservedValue: row.Observed,
			Rationale:     row.Rationale,
		}
		if row.Confidence != nil {
			v.Confidence = *row.Confidence
			v.HasConfidence = true
		}
		if cell := row.SourceCell; cell != "" {
			v.Row.SourceCell = parseCellRef(cell)
		}
		out = append(out, v)
	}
	return out, nil
}

func parseCellRef(s string) spec.CellRef {
	for i := 0; i < len(s); i++ {
		if s[i] == '!' {
			return spec.CellRef{Sheet: s[:i], Cell: s[i+1:]}
		}
	}
	return spec.CellRef{Cell: s}
}
