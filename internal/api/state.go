package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/TimurManjosov/mockflow/internal/audit"
	"github.com/TimurManjosov/mockflow/internal/workflow"
)

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	doc, err := s.engine.State(r.Context(), chi.URLParam(r, "scenarioID"))
	if err != nil {
		s.storeError(w, r, err)
		return
	}

	etag := doc.ETag()
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, doc)
}

// handleResetState deletes the scenario's state. Resetting a scenario without
// state succeeds.
func (s *Server) handleResetState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "scenarioID")
	if err := s.engine.Reset(r.Context(), id); err != nil {
		s.storeError(w, r, err)
		return
	}
	s.record(audit.NewEventBuilder(r).
		ForResource(audit.ResourceTypeState, id).
		InScenario(id).
		WithAction(audit.ActionReset))
	w.WriteHeader(http.StatusNoContent)
}

type simulateRequest struct {
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Body    any               `json:"body,omitempty"`
	Query   map[string]string `json:"query,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	DryRun  bool              `json:"dryRun"`
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "scenarioID")
	var req simulateRequest
	if !decodeJSON(w, r, &req, "expected fields 'method', 'path' and optional 'body', 'query', 'headers', 'dryRun'") {
		return
	}

	fields := make(map[string]string)
	if strings.TrimSpace(req.Method) == "" {
		fields["method"] = "Method is required"
	}
	if !strings.HasPrefix(req.Path, "/") {
		fields["path"] = "Path must start with '/'"
	}
	if len(fields) > 0 {
		ValidationError(w, r, "Validation failed for one or more fields", fields)
		return
	}

	if _, err := s.store.GetScenario(r.Context(), id); err != nil {
		s.storeError(w, r, err)
		return
	}

	res, err := s.engine.Simulate(r.Context(), id, workflow.Request{
		Method:  strings.ToUpper(req.Method),
		Path:    req.Path,
		Body:    req.Body,
		Query:   req.Query,
		Headers: req.Headers,
	}, workflow.SimulateOptions{DryRun: req.DryRun})
	if err != nil {
		s.logger.Error().Err(err).Str("scenario_id", id).Msg("simulation failed")
		writeJSON(w, http.StatusInternalServerError, internalWorkflowError)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
