// Package app orchestrates comparison runs: fan-out of oracle calls under
// an admission gate, ordered collection, and batch-level fault policy.
package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"speccheck/ai"
	"speccheck/domain/docs"
	"speccheck/domain/spec"
	"speccheck/domain/verdict"
	"speccheck/internal"
	"speccheck/internal/config"
	"speccheck/internal/errors"
	"speccheck/internal/numeric"
	"speccheck/ports"
)

const abortedRationale = "aborted: rate limit"

// CompareService drives semantic comparison of specification rows against
// extracted documents through the reasoning oracle.
type CompareService struct {
	oracle ports.Oracle
	cfg    config.CompareConfig
	log    *internal.Logger
}

// NewCompareService creates a comparison service. The config is the run
// context shared by every call; there is no other global state.
func NewCompareService(oracle ports.Oracle, cfg config.CompareConfig) *CompareService {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.ThrottleAbortThreshold < 1 {
		cfg.ThrottleAbortThreshold = 3
	}
	return &CompareService{
		oracle: oracle,
		cfg:    cfg,
		log:    internal.NewLogger("CompareService"),
	}
}

// CompareAll runs every document against the specification rows and bundles
// the verdicts into a run. Document-level faults never abort processing of
// the other documents in the batch.
func (s *CompareService) CompareAll(ctx context.Context, masterName string, rows []spec.Row, documents []docs.ExtractedDocument) *verdict.Run {
	run := &verdict.Run{
		ID:         uuid.New(),
		CreatedAt:  time.Now().UTC(),
		MasterName: masterName,
	}
	for _, doc := range documents {
		run.Documents = append(run.Documents, doc.DocumentID)
		verdicts, aborted := s.CompareDocument(ctx, rows, doc)
		run.Verdicts = append(run.Verdicts, verdicts...)
		if aborted {
			run.Warnings = append(run.Warnings,
				fmt.Sprintf("document %s: remaining rows abandoned after repeated throttling", doc.DocumentID))
		}
	}
	return run
}

// CompareDocument compares every comparable specification row against one
// document. Requests run concurrently under the admission gate, but the
// returned verdicts are always in specification-row order and the sequence
// is complete: rows not processed due to cancellation or a throttle abort
// carry ERROR verdicts, never silent truncation. The second return value
// reports whether the document was abandoned after repeated consecutive
// throttle exhaustion.
func (s *CompareService) CompareDocument(ctx context.Context, rows []spec.Row, doc docs.ExtractedDocument) ([]verdict.Verdict, bool) {
	var comparable []spec.Row
	for _, r := range rows {
		if r.Comparable() {
			comparable = append(comparable, r)
		}
	}
	if len(comparable) == 0 {
		return nil, false
	}

	s.log.Info("comparing %d rows against document %s", len(comparable), doc.DocumentID)

	// results is indexed by comparable-row position: completion order does
	// not matter, placement restores specification order.
	results := make([]verdict.Verdict, len(comparable))
	sem := semaphore.NewWeighted(s.cfg.Concurrency)
	var wg sync.WaitGroup
	var consecutiveThrottles atomic.Int64
	var aborted atomic.Bool

	i := 0
	for ; i < len(comparable); i++ {
		if aborted.Load() {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		if aborted.Load() {
			sem.Release(1)
			break
		}

		wg.Add(1)
		go func(idx int, row spec.Row) {
			defer wg.Done()
			defer sem.Release(1)

			v := s.compareRow(ctx, row, doc)
			results[idx] = v

			if v.Status == verdict.StatusError && v.Rationale == throttleRationale {
				n := consecutiveThrottles.Add(1)
				if n >= int64(s.cfg.ThrottleAbortThreshold) {
					aborted.Store(true)
				}
			} else {
				consecutiveThrottles.Store(0)
			}
		}(i, comparable[i])
	}
	wg.Wait()

	// Fill rows that were never dispatched, or whose in-flight work was
	// cancelled, with ERROR verdicts.
	docAborted := aborted.Load()
	for j := range results {
		if results[j].Status != "" {
			continue
		}
		rationale := abortedRationale
		if !docAborted {
			rationale = "aborted: cancelled"
		}
		results[j] = verdict.Verdict{
			Row:        comparable[j],
			DocumentID: doc.DocumentID,
			Status:     verdict.StatusError,
			Rationale:  rationale,
		}
	}

	if docAborted {
		s.log.Warn("document %s abandoned after %d consecutive throttle failures", doc.DocumentID, s.cfg.ThrottleAbortThreshold)
	}
	return results, docAborted
}

const throttleRationale = "rate limit exhausted"

// compareRow issues one oracle call and classifies the result. Row-scoped
// faults downgrade to an ERROR verdict; they never escalate here.
func (s *CompareService) compareRow(ctx context.Context, row spec.Row, doc docs.ExtractedDocument) verdict.Verdict {
	v := verdict.Verdict{Row: row, DocumentID: doc.DocumentID}

	prompt := ai.BuildComparisonPrompt(row, doc, s.cfg.MaxPromptChars)
	reply, err := s.oracle.Ask(ctx, prompt)
	if err != nil {
		v.Status = verdict.StatusError
		switch {
		case errors.HasCode(err, errors.CodeThrottleExhausted):
			v.Rationale = throttleRationale
		case errors.HasCode(err, errors.CodeRequestRejected):
			v.Rationale = "request rejected: " + err.Error()
		default:
			v.Rationale = "transport failure: " + err.Error()
		}
		s.log.Debug("row %q on %s: %s", row.Name, doc.DocumentID, v.Rationale)
		return v
	}

	outcome, err := ai.ParseOutcome(reply)
	if err != nil {
		v.Status = verdict.StatusError
		v.Rationale = "unparseable response"
		s.log.Warn("row %q on %s: oracle reply did not parse", row.Name, doc.DocumentID)
		return v
	}

	v.Status = outcome.Status
	v.ObservedValue = outcome.ObservedValue
	v.Rationale = outcome.Rationale
	v.Confidence = outcome.Confidence
	v.HasConfidence = outcome.HasConfidence

	s.applyNumericCheck(&v)
	return v
}

// applyNumericCheck re-evaluates MATCH/MISMATCH judgments with
// inequality-aware semantics when both sides parse numerically. The
// engine's arithmetic overrides the oracle on bound satisfaction; unit
// differences are surfaced in the rationale, never normalized away.
func (s *CompareService) applyNumericCheck(v *verdict.Verdict) {
	if v.Status != verdict.StatusMatch && v.Status != verdict.StatusMismatch {
		return
	}
	res, ok := numeric.Evaluate(v.Row.ExpectedValue, v.ObservedValue)
	if !ok {
		return
	}

	corrected := verdict.StatusMismatch
	if res.Match {
		corrected = verdict.StatusMatch
	}
	if corrected != v.Status {
		s.log.Debug("row %q: numeric check overrides %s with %s", v.Row.Name, v.Status, corrected)
		v.Status = corrected
		v.Rationale = res.Reason
	}
	if res.UnitsDiffer {
		v.Rationale = fmt.Sprintf("%s; expected unit %s, observed unit %s", v.Rationale, res.ExpectedUnit, res.ObservedUnit)
	}
}
