package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/TimurManjosov/mockflow/internal/notify"
	"github.com/TimurManjosov/mockflow/internal/store"
)

const keepAliveInterval = 25 * time.Second

// WithStateEvents enables the state change stream backed by hub. The hub must
// also be registered as an engine listener.
func WithStateEvents(hub *notify.Hub) Option {
	return func(s *Server) { s.events = hub }
}

// handleStateEvents streams committed state changes as Server-Sent Events.
// The first event is "init" with the current etag.
func (s *Server) handleStateEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		NotFoundError(w, r, "State events are disabled")
		return
	}
	id := chi.URLParam(r, "scenarioID")
	if _, err := s.store.GetScenario(r.Context(), id); err != nil {
		s.storeError(w, r, err)
		return
	}
	rc := http.NewResponseController(w)

	// subscribe before reading the etag so no commit slips between them
	updates, unsub := s.events.Subscribe(id)
	defer unsub()

	etag := ""
	doc, err := s.engine.State(r.Context(), id)
	switch {
	case err == nil:
		etag = doc.ETag()
	case !errors.Is(err, store.ErrStateNotFound):
		s.storeError(w, r, err)
		return
	}

	// the server write timeout is sized for ordinary requests
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, "init", map[string]string{"scenarioId": id, "etag": etag}); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		s.logger.Warn().Err(err).Msg("state events: streaming unsupported")
		return
	}

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case c, ok := <-updates:
			if !ok {
				return
			}
			if err := writeEvent(w, "state", c); err != nil {
				return
			}
			_ = rc.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			_ = rc.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
