package engine

import (
	"testing"

	"github.com/TimurManjosov/mockflow/internal/rules"
)

func newContext(body any, state map[string]any, tables map[string][]any) *MatchContext {
	return NewMatchContext(Input{
		Body:    body,
		Query:   map[string]string{"page": "2"},
		Params:  map[string]string{"id": "42"},
		Headers: map[string]string{"x-user": "ada"},
	}, state, tables)
}

func TestMatches(t *testing.T) {
	mc := newContext(
		map[string]any{"amount": float64(150), "sku": "A", "state": map[string]any{"isLoggedIn": "body"}},
		map[string]any{"isLoggedIn": true, "step": "paid"},
		map[string][]any{"cart": {map[string]any{"sku": "A"}}},
	)

	tests := []struct {
		name string
		c    rules.Conditions
		want bool
	}{
		{name: "empty", c: rules.Conditions{}, want: true},
		{name: "map all equal", c: rules.MapConditions(map[string]any{"state.isLoggedIn": true, "state.step": "paid"}), want: true},
		{name: "map one mismatch", c: rules.MapConditions(map[string]any{"state.isLoggedIn": true, "state.step": "new"}), want: false},
		{name: "map loose number", c: rules.MapConditions(map[string]any{"input.params.id": 42}), want: true},
		{name: "map missing equals null", c: rules.MapConditions(map[string]any{"state.nothing": nil}), want: true},
		{name: "list and", c: rules.ListConditions(
			rules.Condition{Type: rules.OpEq, Field: "state.isLoggedIn", Value: true},
			rules.Condition{Type: rules.OpGt, Field: "input.body.amount", Value: 100},
		), want: true},
		{name: "list short circuit", c: rules.ListConditions(
			rules.Condition{Type: rules.OpLt, Field: "input.body.amount", Value: 100},
			rules.Condition{Type: rules.OpExists, Field: "state.isLoggedIn"},
		), want: false},
		{name: "body fallback", c: rules.ListConditions(rules.Condition{Type: rules.OpGt, Field: "amount", Value: 100}), want: true},
		{name: "context wins over body", c: rules.ListConditions(rules.Condition{Type: rules.OpEq, Field: "state.isLoggedIn", Value: true}), want: true},
		{name: "db alias", c: rules.ListConditions(rules.Condition{Type: rules.OpEq, Field: "db.cart.length", Value: 1}), want: true},
		{name: "db alias element", c: rules.ListConditions(rules.Condition{Type: rules.OpEq, Field: "db.cart[0].sku", Value: "A"}), want: true},
		{name: "header", c: rules.ListConditions(rules.Condition{Type: rules.OpContains, Field: "input.headers.x-user", Value: "ad"}), want: true},
		{name: "unknown operator", c: rules.ListConditions(rules.Condition{Type: "regex", Field: "sku", Value: "A"}), want: false},
		{name: "exists missing", c: rules.ListConditions(rules.Condition{Type: rules.OpExists, Field: "state.token"}), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(tt.c, mc); got != tt.want {
				t.Fatalf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatches_EmptyStateGate(t *testing.T) {
	guard := rules.ListConditions(rules.Condition{Type: rules.OpEq, Field: "state.isLoggedIn", Value: true})
	if Matches(guard, newContext(nil, nil, nil)) {
		t.Fatal("guard should fail on empty state")
	}
	if !Matches(guard, newContext(nil, map[string]any{"isLoggedIn": true}, nil)) {
		t.Fatal("guard should pass once logged in")
	}
}

func TestEvaluateCondition_DoesNotMutateContext(t *testing.T) {
	state := map[string]any{"n": float64(1)}
	mc := newContext(nil, state, nil)
	EvaluateCondition(rules.Condition{Type: rules.OpEq, Field: "state.n", Value: 1}, mc)
	if len(mc.State) != 1 || len(mc.Tables) != 0 {
		t.Fatalf("context mutated: %#v %#v", mc.State, mc.Tables)
	}
}
