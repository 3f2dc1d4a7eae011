package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TimurManjosov/mockflow/internal/workflow"
)

// testContext stands in for testing.T.Context (Go 1.24+): the context is
// cancelled when the test finishes.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}

func noBackoff(int) time.Duration { return 0 }

// TestWebhookIntegration tests signed delivery to a mock HTTP server
func TestWebhookIntegration(t *testing.T) {
	const secret = "test-secret-123"
	received := make(chan Event, 10)

	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected Content-Type: application/json, got %s", r.Header.Get("Content-Type"))
		}
		if r.Header.Get(HeaderEvent) != EventTransitionApplied {
			t.Errorf("%s = %q", HeaderEvent, r.Header.Get(HeaderEvent))
		}
		if r.Header.Get(HeaderDelivery) == "" {
			t.Errorf("Missing %s header", HeaderDelivery)
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("Failed to read request body: %v", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if !VerifySignature(body, r.Header.Get(HeaderSignature), secret) {
			t.Error("Signature verification failed")
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		var event Event
		if err := json.Unmarshal(body, &event); err != nil {
			t.Errorf("Failed to unmarshal event: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		received <- event
		w.WriteHeader(http.StatusOK)
	}))
	defer mockServer.Close()

	d := NewDispatcher([]Target{{URL: mockServer.URL, Secret: secret, MaxRetries: 1}}, WithBackoff(noBackoff))
	defer d.Close()

	d.OnChange(workflow.Change{ScenarioID: "shop", TransitionID: "t1", Method: "POST", Path: "/cart", Status: 201})

	select {
	case event := <-received:
		if event.Type != EventTransitionApplied || event.ScenarioID != "shop" || event.Data.Path != "/cart" {
			t.Errorf("unexpected event %+v", event)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timeout waiting for webhook delivery")
	}
}

// TestWebhookRetry tests retry logic with failures
func TestWebhookRetry(t *testing.T) {
	var attempts atomic.Int32
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer mockServer.Close()

	var waits []int
	var mu sync.Mutex
	backoff := func(attempt int) time.Duration {
		mu.Lock()
		waits = append(waits, attempt)
		mu.Unlock()
		return 0
	}

	d := NewDispatcher([]Target{{URL: mockServer.URL, Secret: "s", MaxRetries: 3}}, WithBackoff(backoff))
	d.OnChange(workflow.Change{ScenarioID: "shop", Reset: true})
	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if got := attempts.Load(); got != 3 {
		t.Errorf("Expected 3 attempts, got %d", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(waits) != 2 || waits[0] != 0 || waits[1] != 1 {
		t.Errorf("backoff attempts = %v, want [0 1]", waits)
	}
}

func TestWebhookGivesUpAfterMaxRetries(t *testing.T) {
	var attempts atomic.Int32
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer mockServer.Close()

	d := NewDispatcher(nil, WithBackoff(noBackoff))
	defer d.Close()

	ok := d.deliverWithRetry(testContext(t), Target{URL: mockServer.URL, MaxRetries: 2}, NewEvent(workflow.Change{ScenarioID: "shop"}, time.Now()))
	if ok {
		t.Error("deliverWithRetry reported success")
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("Expected 3 attempts, got %d", got)
	}
}

func TestWebhookFiltersTargets(t *testing.T) {
	var resets, all atomic.Int32
	resetServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resets.Add(1)
	}))
	defer resetServer.Close()
	allServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		all.Add(1)
	}))
	defer allServer.Close()

	d := NewDispatcher([]Target{
		{URL: resetServer.URL, Events: []string{EventStateReset}},
		{URL: allServer.URL},
	})
	d.OnChange(workflow.Change{ScenarioID: "shop", TransitionID: "t1"})
	d.OnChange(workflow.Change{ScenarioID: "shop", Reset: true})
	_ = d.Close()

	if resets.Load() != 1 || all.Load() != 2 {
		t.Errorf("deliveries: reset target %d, catch-all target %d", resets.Load(), all.Load())
	}
}

func TestDispatcher_CloseIsIdempotentAndDropsLateEvents(t *testing.T) {
	var hits atomic.Int32
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer mockServer.Close()

	d := NewDispatcher([]Target{{URL: mockServer.URL}})
	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	d.OnChange(workflow.Change{ScenarioID: "shop"})
	if hits.Load() != 0 {
		t.Errorf("event delivered after Close")
	}
}
