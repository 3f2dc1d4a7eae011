package api_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/TimurManjosov/mockflow/internal/api"
	"github.com/TimurManjosov/mockflow/internal/store"
	"github.com/TimurManjosov/mockflow/internal/testutil"
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

type sseEvent struct {
	Event string
	Data  string
}

// readEvents parses event/data lines until the body closes.
func readEvents(t *testing.T, resp *http.Response) <-chan sseEvent {
	t.Helper()
	events := make(chan sseEvent, 10)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(resp.Body)
		var cur sseEvent
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event:"):
				cur.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				cur.Data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			case line == "" && cur.Event != "":
				events <- cur
				cur = sseEvent{}
			}
		}
	}()
	return events
}

func nextEvent(t *testing.T, events <-chan sseEvent) sseEvent {
	t.Helper()
	select {
	case ev, ok := <-events:
		if !ok {
			t.Fatal("stream closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for event")
	}
	return sseEvent{}
}

func TestStateEvents_Stream(t *testing.T) {
	srv, st := testutil.NewTestServer(t, adminKey)
	seedAuthFlow(t, st)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/scenarios/auth-flow/state/events")
	if err != nil {
		t.Fatalf("GET stream failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Expected Content-Type 'text/event-stream', got %s", ct)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Expected Cache-Control 'no-cache', got %s", cc)
	}

	events := readEvents(t, resp)
	first := nextEvent(t, events)
	if first.Event != "init" {
		t.Fatalf("Expected first event to be 'init', got %q", first.Event)
	}
	var initData map[string]string
	if err := json.Unmarshal([]byte(first.Data), &initData); err != nil {
		t.Fatalf("init data %q: %v", first.Data, err)
	}
	if initData["scenarioId"] != "auth-flow" || initData["etag"] != "" {
		t.Errorf("unexpected init data %v", initData)
	}

	login, err := http.Post(ts.URL+"/scenario/auth-flow/login", "application/json", strings.NewReader(`{"user":"ada"}`))
	if err != nil {
		t.Fatalf("POST login failed: %v", err)
	}
	login.Body.Close()

	ev := nextEvent(t, events)
	if ev.Event != "state" {
		t.Fatalf("Expected 'state' event, got %q", ev.Event)
	}
	var change workflow.Change
	if err := json.Unmarshal([]byte(ev.Data), &change); err != nil {
		t.Fatalf("state data %q: %v", ev.Data, err)
	}
	if change.ScenarioID != "auth-flow" || change.Path != "/login" || change.Status != 200 || change.ETag == "" {
		t.Errorf("unexpected change %+v", change)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/v1/scenarios/auth-flow/state", nil)
	req.Header.Set("Authorization", "Bearer "+adminKey)
	reset, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE state failed: %v", err)
	}
	reset.Body.Close()

	ev = nextEvent(t, events)
	if err := json.Unmarshal([]byte(ev.Data), &change); err != nil {
		t.Fatalf("state data %q: %v", ev.Data, err)
	}
	if !change.Reset {
		t.Errorf("expected reset change, got %+v", change)
	}
}

func TestStateEvents_UnknownScenario(t *testing.T) {
	srv, _ := testutil.NewTestServer(t, adminKey)
	rr := (&testutil.HTTPRequest{Method: http.MethodGet, Path: "/v1/scenarios/ghost/state/events"}).Do(t, srv.Router())
	testutil.AssertStatus(t, rr, http.StatusNotFound)
}

func TestStateEvents_Disabled(t *testing.T) {
	st := store.NewMemoryStore()
	if _, err := st.UpsertScenario(testContext(t), store.Scenario{ID: "shop"}); err != nil {
		t.Fatalf("UpsertScenario failed: %v", err)
	}
	srv := api.NewServer(st, workflow.New(st), adminKey)
	rr := (&testutil.HTTPRequest{Method: http.MethodGet, Path: "/v1/scenarios/shop/state/events"}).Do(t, srv.Router())
	testutil.AssertStatus(t, rr, http.StatusNotFound)
}
