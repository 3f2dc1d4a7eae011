package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/TimurManjosov/mockflow/internal/audit"
	"github.com/TimurManjosov/mockflow/internal/store"
)

type scenarioRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type listScenariosResponse struct {
	Scenarios []store.Scenario `json:"scenarios"`
}

func (s *Server) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	scenarios, err := s.store.ListScenarios(r.Context())
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listScenariosResponse{Scenarios: scenarios})
}

func (s *Server) handleGetScenario(w http.ResponseWriter, r *http.Request) {
	sc, err := s.store.GetScenario(r.Context(), chi.URLParam(r, "scenarioID"))
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) handleCreateScenario(w http.ResponseWriter, r *http.Request) {
	var req scenarioRequest
	if !decodeJSON(w, r, &req, "expected fields 'id', 'name' and optional 'description'") {
		return
	}
	if err := store.ValidateScenarioID(req.ID); err != nil {
		definitionError(w, r, err)
		return
	}

	_, err := s.store.GetScenario(r.Context(), req.ID)
	switch {
	case err == nil:
		ConflictError(w, r, "Scenario already exists")
		return
	case !errors.Is(err, store.ErrScenarioNotFound):
		s.storeError(w, r, err)
		return
	}

	sc, err := s.store.UpsertScenario(r.Context(), store.Scenario{ID: req.ID, Name: req.Name, Description: req.Description})
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	s.logger.Info().Str("scenario_id", sc.ID).Msg("scenario created")
	s.record(audit.NewEventBuilder(r).
		ForResource(audit.ResourceTypeScenario, sc.ID).
		WithAction(audit.ActionCreated).
		WithAfterState(audit.ToMap(sc)))
	writeJSON(w, http.StatusCreated, sc)
}

// handleUpdateScenario upserts the scenario named in the URL.
func (s *Server) handleUpdateScenario(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "scenarioID")
	var req scenarioRequest
	if !decodeJSON(w, r, &req, "expected fields 'name' and 'description'") {
		return
	}
	if err := store.ValidateScenarioID(id); err != nil {
		definitionError(w, r, err)
		return
	}
	if req.ID != "" && req.ID != id {
		ValidationError(w, r, "Scenario id cannot change", map[string]string{"id": "must match the URL"})
		return
	}

	before, err := s.store.GetScenario(r.Context(), id)
	if err != nil && !errors.Is(err, store.ErrScenarioNotFound) {
		s.storeError(w, r, err)
		return
	}
	sc, err := s.store.UpsertScenario(r.Context(), store.Scenario{ID: id, Name: req.Name, Description: req.Description})
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	event := audit.NewEventBuilder(r).
		ForResource(audit.ResourceTypeScenario, id).
		WithAfterState(audit.ToMap(sc))
	if before != nil {
		event.WithAction(audit.ActionUpdated).WithBeforeState(audit.ToMap(before))
	} else {
		event.WithAction(audit.ActionCreated)
	}
	s.record(event)
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) handleDeleteScenario(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "scenarioID")
	if err := s.store.DeleteScenario(r.Context(), id); err != nil {
		s.storeError(w, r, err)
		return
	}
	s.logger.Info().Str("scenario_id", id).Msg("scenario deleted")
	s.record(audit.NewEventBuilder(r).
		ForResource(audit.ResourceTypeScenario, id).
		WithAction(audit.ActionDeleted))
	w.WriteHeader(http.StatusNoContent)
}
