// Package api exposes the engine to the UI/session collaborator over HTTP:
// it accepts master bytes plus extracted documents, and serves reports and
// corrected workbooks.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"speccheck/adapters/excel"
	"speccheck/app"
	"speccheck/domain/docs"
	"speccheck/internal"
	"speccheck/internal/errors"
	"speccheck/internal/report"
	"speccheck/ports"
)

const maxUploadBytes = 64 << 20

// Server holds completed runs in memory and writes them through to the
// audit store when one is configured.
type Server struct {
	compare *app.CompareService
	audit   ports.AuditStore // nil disables persistence
	log     *internal.Logger

	mu   sync.RWMutex
	runs map[uuid.UUID]*storedRun
}

type storedRun struct {
	runID      uuid.UUID
	createdAt  time.Time
	masterName string
	documents  []string
	warnings   []string
	report     *report.Report
	corrected  []byte
	workbook   []byte
}

// NewServer creates the HTTP surface around a compare service.
func NewServer(compare *app.CompareService, audit ports.AuditStore) *Server {
	return &Server{
		compare: compare,
		audit:   audit,
		log:     internal.NewLogger("APIServer"),
		runs:    make(map[uuid.UUID]*storedRun),
	}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/runs", s.handleCreateRun)
	r.Get("/runs", s.handleListRuns)
	r.Get("/runs/{id}/report", s.handleReportJSON)
	r.Get("/runs/{id}/report.html", s.handleReportHTML)
	r.Get("/runs/{id}/report.xlsx", s.handleReportWorkbook)
	r.Get("/runs/{id}/corrected.xlsx", s.handleCorrected)
	return r
}

type runResponse struct {
	RunID      string   `json:"run_id"`
	CreatedAt  string   `json:"created_at"`
	MasterName string   `json:"master_name"`
	Documents  []string `json:"documents"`
	Warnings   []string `json:"warnings,omitempty"`
	Match      int      `json:"match"`
	Mismatch   int      `json:"mismatch"`
	NotFound   int      `json:"not_found"`
	Error      int      `json:"error"`
}

// handleCreateRun accepts a multipart form with one "master" workbook and
// one or more "document" text parts, runs the full engine, and returns the
// run summary.
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	masterFile, masterHeader, err := r.FormFile("master")
	if err != nil {
		writeError(w, http.StatusBadRequest, "master file is required")
		return
	}
	defer masterFile.Close()
	masterBytes, err := io.ReadAll(masterFile)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read master file: "+err.Error())
		return
	}

	var documents []docs.ExtractedDocument
	for _, fh := range r.MultipartForm.File["document"] {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "open document part: "+err.Error())
			return
		}
		text, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "read document part: "+err.Error())
			return
		}
		documents = append(documents, docs.ExtractedDocument{
			DocumentID: fh.Filename,
			RawText:    string(text),
		})
	}
	if len(documents) == 0 {
		writeError(w, http.StatusBadRequest, "at least one document part is required")
		return
	}

	rows, err := excel.LoadSpecification(masterBytes)
	if err != nil {
		if errors.HasCode(err, errors.CodeMalformedSpecification) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	run := s.compare.CompareAll(r.Context(), masterHeader.Filename, rows, documents)
	rep := report.Build(run.Verdicts)

	corrected, err := excel.CorrectMaster(masterBytes, run.Verdicts)
	if err != nil {
		// DUPLICATE_CELL_TARGET is an internal invariant violation; it is a
		// bug report, not an operator error.
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	workbook, err := excel.ExportReport(rep)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	stored := &storedRun{
		runID:      run.ID,
		createdAt:  run.CreatedAt,
		masterName: run.MasterName,
		documents:  run.Documents,
		warnings:   run.Warnings,
		report:     rep,
		corrected:  corrected,
		workbook:   workbook,
	}
	s.mu.Lock()
	s.runs[run.ID] = stored
	s.mu.Unlock()

	if s.audit != nil {
		if err := s.audit.SaveRun(r.Context(), run); err != nil {
			s.log.Error("persist run %s: %v", run.ID, err)
		}
	}

	writeJSON(w, http.StatusCreated, toRunResponse(stored))
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	stored := make([]*storedRun, 0, len(s.runs))
	for _, sr := range s.runs {
		stored = append(stored, sr)
	}
	s.mu.RUnlock()

	// Newest first, matching the audit store listing.
	sort.Slice(stored, func(i, j int) bool {
		return stored[i].createdAt.After(stored[j].createdAt)
	})
	out := make([]runResponse, 0, len(stored))
	for _, sr := range stored {
		out = append(out, toRunResponse(sr))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleReportJSON(w http.ResponseWriter, r *http.Request) {
	stored, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, stored.report)
}

func (s *Server) handleReportHTML(w http.ResponseWriter, r *http.Request) {
	stored, ok := s.lookup(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(report.RenderHTML(stored.report))
}

func (s *Server) handleReportWorkbook(w http.ResponseWriter, r *http.Request) {
	stored, ok := s.lookup(w, r)
	if !ok {
		return
	}
	serveWorkbook(w, "report.xlsx", stored.workbook)
}

func (s *Server) handleCorrected(w http.ResponseWriter, r *http.Request) {
	stored, ok := s.lookup(w, r)
	if !ok {
		return
	}
	serveWorkbook(w, "corrected.xlsx", stored.corrected)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*storedRun, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return nil, false
	}
	s.mu.RLock()
	stored, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return nil, false
	}
	return stored, true
}

func toRunResponse(stored *storedRun) runResponse {
	return runResponse{
		RunID:      stored.runID.String(),
		CreatedAt:  stored.createdAt.Format(time.RFC3339),
		MasterName: stored.masterName,
		Documents:  stored.documents,
		Warnings:   stored.warnings,
		Match:      stored.report.Totals.Match,
		Mismatch:   stored.report.Totals.Mismatch,
		NotFound:   stored.report.Totals.NotFound,
		Error:      stored.report.Totals.Error,
	}
}

func serveWorkbook(w http.ResponseWriter, filename string, b []byte) {
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Write(b)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
