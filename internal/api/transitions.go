package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/TimurManjosov/mockflow/internal/audit"
	"github.com/TimurManjosov/mockflow/internal/rules"
	"github.com/TimurManjosov/mockflow/internal/store"
)

// transitionRequest accepts either condition syntax and either effect syntax;
// both are stored as authored.
type transitionRequest struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Path        string           `json:"path"`
	Method      string           `json:"method"`
	Conditions  rules.Conditions `json:"conditions"`
	Effects     rules.Effects    `json:"effects"`
	Response    store.Response   `json:"response"`
	Meta        map[string]any   `json:"meta,omitempty"`
}

func (req transitionRequest) apply(t *store.Transition) {
	t.Name = req.Name
	t.Description = req.Description
	t.Path = req.Path
	t.Method = req.Method
	t.Conditions = req.Conditions
	t.Effects = req.Effects
	t.Response = req.Response
	t.Meta = req.Meta
}

type listTransitionsResponse struct {
	Transitions []store.Transition `json:"transitions"`
}

const transitionHint = "expected fields 'path', 'method', 'conditions', 'effects' and 'response'"

func (s *Server) handleListTransitions(w http.ResponseWriter, r *http.Request) {
	ts, err := s.store.ListTransitions(r.Context(), chi.URLParam(r, "scenarioID"))
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listTransitionsResponse{Transitions: ts})
}

func (s *Server) handleGetTransition(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.GetTransition(r.Context(), chi.URLParam(r, "scenarioID"), chi.URLParam(r, "transitionID"))
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleCreateTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if !decodeJSON(w, r, &req, transitionHint) {
		return
	}
	t := store.Transition{ScenarioID: chi.URLParam(r, "scenarioID")}
	req.apply(&t)
	if err := t.Validate(); err != nil {
		definitionError(w, r, err)
		return
	}

	created, err := s.store.CreateTransition(r.Context(), t)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	s.logger.Info().
		Str("scenario_id", created.ScenarioID).
		Str("transition_id", created.ID).
		Str("route", created.Method+" "+created.Path).
		Msg("transition created")
	s.record(audit.NewEventBuilder(r).
		ForResource(audit.ResourceTypeTransition, created.ID).
		InScenario(created.ScenarioID).
		WithAction(audit.ActionCreated).
		WithAfterState(audit.ToMap(created)))
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if !decodeJSON(w, r, &req, transitionHint) {
		return
	}
	existing, err := s.store.GetTransition(r.Context(), chi.URLParam(r, "scenarioID"), chi.URLParam(r, "transitionID"))
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	before := audit.ToMap(existing)
	req.apply(existing)
	if err := existing.Validate(); err != nil {
		definitionError(w, r, err)
		return
	}

	updated, err := s.store.UpdateTransition(r.Context(), *existing)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	s.record(audit.NewEventBuilder(r).
		ForResource(audit.ResourceTypeTransition, updated.ID).
		InScenario(updated.ScenarioID).
		WithAction(audit.ActionUpdated).
		WithBeforeState(before).
		WithAfterState(audit.ToMap(updated)))
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteTransition(w http.ResponseWriter, r *http.Request) {
	scenarioID, id := chi.URLParam(r, "scenarioID"), chi.URLParam(r, "transitionID")
	if err := s.store.DeleteTransition(r.Context(), scenarioID, id); err != nil {
		s.storeError(w, r, err)
		return
	}
	s.record(audit.NewEventBuilder(r).
		ForResource(audit.ResourceTypeTransition, id).
		InScenario(scenarioID).
		WithAction(audit.ActionDeleted))
	w.WriteHeader(http.StatusNoContent)
}
