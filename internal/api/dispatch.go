package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/TimurManjosov/mockflow/internal/workflow"
)

// internalWorkflowError is the body of every failed dispatch.
var internalWorkflowError = map[string]string{"error": "Internal workflow error"}

func (s *Server) handleScenarioDispatch(w http.ResponseWriter, r *http.Request) {
	req, ok := s.workflowRequest(w, r)
	if !ok {
		return
	}
	resp, err := s.engine.Dispatch(r.Context(), chi.URLParam(r, "scenarioID"), req)
	s.writeWorkflowResponse(w, r, resp, err)
}

func (s *Server) handleGlobalDispatch(w http.ResponseWriter, r *http.Request) {
	req, ok := s.workflowRequest(w, r)
	if !ok {
		return
	}
	resp, err := s.engine.DispatchGlobal(r.Context(), req)
	s.writeWorkflowResponse(w, r, resp, err)
}

// workflowRequest builds the engine's request descriptor. The routed path is
// the wildcard remainder, always starting with '/'.
func (s *Server) workflowRequest(w http.ResponseWriter, r *http.Request) (workflow.Request, bool) {
	body, err := readBody(w, r)
	if err != nil {
		RequestTooLargeError(w, r, "Request body too large")
		return workflow.Request{}, false
	}

	query := make(map[string]string)
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			query[k] = vs[0]
		}
	}
	headers := make(map[string]string, len(r.Header))
	for k, vs := range r.Header {
		headers[strings.ToLower(k)] = strings.Join(vs, ", ")
	}

	return workflow.Request{
		Method:  r.Method,
		Path:    "/" + strings.TrimPrefix(chi.URLParam(r, "*"), "/"),
		Body:    body,
		Query:   query,
		Headers: headers,
	}, true
}

func (s *Server) writeWorkflowResponse(w http.ResponseWriter, r *http.Request, resp *workflow.Response, err error) {
	if err != nil {
		event := s.logger.Error()
		if !errors.Is(err, workflow.ErrEvaluation) {
			event = s.logger.Warn()
		}
		event.Err(err).Str("path", r.URL.Path).Str("method", r.Method).Msg("workflow dispatch failed")
		writeJSON(w, http.StatusInternalServerError, internalWorkflowError)
		return
	}

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	contentType := w.Header().Get("Content-Type")
	if text, isText := resp.Body.(string); isText && !strings.Contains(contentType, "json") {
		w.WriteHeader(resp.Status)
		_, _ = w.Write([]byte(text))
		return
	}
	if contentType == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(resp.Status)
	_ = json.NewEncoder(w).Encode(resp.Body)
}
