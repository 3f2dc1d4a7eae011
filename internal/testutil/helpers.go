package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/TimurManjosov/mockflow/internal/api"
	"github.com/TimurManjosov/mockflow/internal/notify"
	"github.com/TimurManjosov/mockflow/internal/store"
	"github.com/TimurManjosov/mockflow/internal/workflow"
)

// NewTestServer creates a test server over an in-memory store with the state
// event stream enabled.
func NewTestServer(t *testing.T, adminKey string, opts ...api.Option) (*api.Server, *store.MemoryStore) {
	t.Helper()
	memStore := store.NewMemoryStore()
	hub := notify.NewHub()
	eng := workflow.New(memStore, workflow.WithListener(hub.Publish))
	server := api.NewServer(memStore, eng, adminKey, append([]api.Option{api.WithStateEvents(hub)}, opts...)...)
	return server, memStore
}

// HTTPRequest is a helper for making test HTTP requests.
type HTTPRequest struct {
	Method  string
	Path    string
	Body    string
	Headers map[string]string
}

// Do executes the HTTP request and returns the response recorder.
func (r *HTTPRequest) Do(t *testing.T, handler http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if r.Body != "" {
		body = bytes.NewBufferString(r.Body)
	}
	req := httptest.NewRequest(r.Method, r.Path, body)
	if r.Body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// SeedScenario creates a scenario and its transitions in creation order.
func SeedScenario(ctx context.Context, st store.Store, id string, transitions ...store.Transition) ([]store.Transition, error) {
	if _, err := st.UpsertScenario(ctx, store.Scenario{ID: id, Name: id}); err != nil {
		return nil, err
	}
	created := make([]store.Transition, 0, len(transitions))
	for _, t := range transitions {
		t.ScenarioID = id
		c, err := st.CreateTransition(ctx, t)
		if err != nil {
			return nil, err
		}
		created = append(created, *c)
	}
	return created, nil
}

// DecodeJSON decodes the recorder body into a generic value.
func DecodeJSON(t *testing.T, rr *httptest.ResponseRecorder) any {
	t.Helper()
	var v any
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rr.Body.String(), err)
	}
	return v
}

// AssertStatus fails the test when the recorder has an unexpected status.
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("Expected status %d, got %d: %s", want, rr.Code, rr.Body.String())
	}
}

// AdminHeaders returns the Authorization header for key.
func AdminHeaders(key string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + key}
}
