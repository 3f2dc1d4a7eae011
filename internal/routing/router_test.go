package routing

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/TimurManjosov/mockflow/internal/engine"
	"github.com/TimurManjosov/mockflow/internal/rules"
	"github.com/TimurManjosov/mockflow/internal/store"
)

func seed(t *testing.T, s *store.MemoryStore, scenarioID string, ts ...store.Transition) []store.Transition {
	t.Helper()
	ctx := context.Background()
	if _, err := s.UpsertScenario(ctx, store.Scenario{ID: scenarioID}); err != nil {
		t.Fatalf("UpsertScenario failed: %v", err)
	}
	out := make([]store.Transition, 0, len(ts))
	for _, tr := range ts {
		tr.ScenarioID = scenarioID
		created, err := s.CreateTransition(ctx, tr)
		if err != nil {
			t.Fatalf("CreateTransition failed: %v", err)
		}
		out = append(out, *created)
	}
	return out
}

func TestMatchPath(t *testing.T) {
	tests := []struct {
		pattern, path string
		want          map[string]string
		ok            bool
	}{
		{"/orders/:id", "/orders/42", map[string]string{"id": "42"}, true},
		{"/a/:x/b/:y", "/a/1/b/2", map[string]string{"x": "1", "y": "2"}, true},
		{"/cart/add", "/cart/add", map[string]string{}, true},
		{"/orders/:id", "/orders/42/items", nil, false},
		{"/orders/:id", "/orders/42/", nil, false},
		{"/orders/:id", "/users/42", nil, false},
		{"/orders/:id", "/orders/", map[string]string{"id": ""}, true},
	}
	for _, tt := range tests {
		got, ok := MatchPath(tt.pattern, tt.path)
		if ok != tt.ok || (ok && !reflect.DeepEqual(got, tt.want)) {
			t.Errorf("MatchPath(%q, %q) = %v, %v; want %v, %v", tt.pattern, tt.path, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFind_LiteralBeatsParameterized(t *testing.T) {
	s := store.NewMemoryStore()
	ts := seed(t, s, "shop",
		store.Transition{Name: "param", Path: "/cart/:action", Method: "POST"},
		store.Transition{Name: "literal", Path: "/cart/add", Method: "POST"},
	)

	m, err := New(s).Find(context.Background(), "shop", "/cart/add", "POST")
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if m.Transition.ID != ts[1].ID {
		t.Fatalf("selected %q, want literal", m.Transition.Name)
	}
	if len(m.Params) != 0 {
		t.Fatalf("exact match should bind no params, got %v", m.Params)
	}
}

func TestFind_ParamBinding(t *testing.T) {
	s := store.NewMemoryStore()
	seed(t, s, "shop", store.Transition{Path: "/orders/:id", Method: "GET"})

	m, err := New(s).Find(context.Background(), "shop", "/orders/42", "GET")
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if !reflect.DeepEqual(m.Params, map[string]string{"id": "42"}) {
		t.Fatalf("Params = %v", m.Params)
	}
}

func TestFind_FirstPatternByCreationOrder(t *testing.T) {
	s := store.NewMemoryStore()
	ts := seed(t, s, "shop",
		store.Transition{Path: "/orders/:id", Method: "GET"},
		store.Transition{Path: "/orders/:orderId", Method: "GET"},
	)
	m, err := New(s).Find(context.Background(), "shop", "/orders/7", "GET")
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if m.Transition.ID != ts[0].ID {
		t.Fatalf("expected the earlier transition")
	}
}

func TestFind_IgnoresConditionsAndScopes(t *testing.T) {
	s := store.NewMemoryStore()
	guarded := rules.ListConditions(rules.Condition{Type: rules.OpEq, Field: "state.never", Value: true})
	seed(t, s, "a", store.Transition{Path: "/x", Method: "GET", Conditions: guarded})
	seed(t, s, "b", store.Transition{Path: "/y", Method: "GET"})
	r := New(s)
	ctx := context.Background()

	if _, err := r.Find(ctx, "a", "/x", "GET"); err != nil {
		t.Fatalf("condition-blind Find should select guarded transition: %v", err)
	}
	if _, err := r.Find(ctx, "a", "/y", "GET"); !errors.Is(err, ErrNoMatch) {
		t.Fatalf("Find across scenarios error = %v, want ErrNoMatch", err)
	}
	if _, err := r.Find(ctx, "a", "/x", "DELETE"); !errors.Is(err, ErrNoMatch) {
		t.Fatalf("Find wrong method error = %v, want ErrNoMatch", err)
	}
}

func TestFindGlobal(t *testing.T) {
	s := store.NewMemoryStore()
	seed(t, s, "a", store.Transition{Path: "/items/:id", Method: "GET"})
	seed(t, s, "b", store.Transition{Path: "/items/special", Method: "GET"})
	r := New(s)
	ctx := context.Background()

	m, err := r.FindGlobal(ctx, "/items/special", "GET")
	if err != nil || m.Transition.ScenarioID != "b" {
		t.Fatalf("FindGlobal exact = %+v, %v", m, err)
	}
	m, err = r.FindGlobal(ctx, "/items/9", "GET")
	if err != nil || m.Transition.ScenarioID != "a" || m.Params["id"] != "9" {
		t.Fatalf("FindGlobal pattern = %+v, %v", m, err)
	}
	if _, err := r.FindGlobal(ctx, "/nope", "GET"); !errors.Is(err, ErrNoMatch) {
		t.Fatalf("FindGlobal miss error = %v", err)
	}
}

func TestFindMatching_FallsThroughFailedGuards(t *testing.T) {
	s := store.NewMemoryStore()
	ts := seed(t, s, "auth-flow",
		store.Transition{Name: "denied", Path: "/dashboard", Method: "GET",
			Conditions: rules.ListConditions(rules.Condition{Type: rules.OpEq, Field: "state.isLoggedIn", Value: true})},
		store.Transition{Name: "anonymous", Path: "/dashboard", Method: "GET"},
	)
	r := New(s)
	ctx := context.Background()
	mc := engine.NewMatchContext(engine.Input{}, map[string]any{}, nil)

	m, trace, err := r.FindMatching(ctx, "auth-flow", "/dashboard", "GET", mc)
	if err != nil {
		t.Fatalf("FindMatching failed: %v", err)
	}
	if m.Transition.ID != ts[1].ID {
		t.Fatalf("selected %q, want anonymous", m.Transition.Name)
	}
	if len(trace.Candidates) != 2 || *trace.Candidates[0].ConditionsPassed || !*trace.Candidates[1].ConditionsPassed {
		t.Fatalf("unexpected trace: %+v", trace.Candidates)
	}
	if trace.MatchedID != ts[1].ID {
		t.Fatalf("MatchedID = %s", trace.MatchedID)
	}

	// Condition-blind routing still picks the first exact transition.
	blind, err := r.Find(ctx, "auth-flow", "/dashboard", "GET")
	if err != nil || blind.Transition.ID != ts[0].ID {
		t.Fatalf("Find = %+v, %v", blind, err)
	}
}

func TestFindMatching_FallsBackToPatternScan(t *testing.T) {
	s := store.NewMemoryStore()
	ts := seed(t, s, "shop",
		store.Transition{Path: "/orders/latest", Method: "GET",
			Conditions: rules.MapConditions(map[string]any{"state.hasOrders": true})},
		store.Transition{Path: "/orders/:id", Method: "GET"},
	)
	r := New(s)

	m, trace, err := r.FindMatching(context.Background(), "shop", "/orders/latest", "GET", nil)
	if err != nil {
		t.Fatalf("FindMatching failed: %v", err)
	}
	// The guarded literal is also a pattern and comes first in creation order.
	if m.Transition.ID != ts[0].ID {
		t.Fatalf("expected pattern scan to reach the literal transition")
	}
	if len(trace.Candidates) != 2 || trace.Candidates[1].Stage != StagePattern {
		t.Fatalf("unexpected trace: %+v", trace.Candidates)
	}

	m, _, err = r.FindMatching(context.Background(), "shop", "/orders/5", "GET", nil)
	if err != nil || m.Params["id"] != "5" {
		t.Fatalf("FindMatching pattern = %+v, %v", m, err)
	}

	_, trace, err = r.FindMatching(context.Background(), "shop", "/nothing", "GET", nil)
	if !errors.Is(err, ErrNoMatch) || trace.MatchedID != "" {
		t.Fatalf("FindMatching miss = %+v, %v", trace, err)
	}
}
