package engine

import (
	"reflect"
	"testing"

	"github.com/TimurManjosov/mockflow/internal/rules"
)

func TestApplyEffects_StateSet(t *testing.T) {
	mc := newContext(map[string]any{"user": map[string]any{"name": "ada"}}, nil, nil)
	ApplyEffects(rules.EffectList(rules.StateSet{Raw: map[string]any{
		"isLoggedIn": true,
		"user":       "{{input.body.user}}",
		"missing":    "{{input.body.nope}}",
		"id":         "{{ input.params.id }}",
		"greeting":   "hi {{input.body.user.name}}",
	}}), mc)

	want := map[string]any{
		"isLoggedIn": true,
		"user":       map[string]any{"name": "ada"},
		"id":         "42",
		"greeting":   "hi {{input.body.user.name}}",
	}
	if !reflect.DeepEqual(mc.State, want) {
		t.Fatalf("State = %#v, want %#v", mc.State, want)
	}
}

func TestApplyEffects_StateSetFollowsAuthoredOrder(t *testing.T) {
	var effects rules.Effects
	raw := []byte(`[{"type":"state.set","raw":{"b":"{{state.a}}","a":5}}]`)
	if err := effects.UnmarshalJSON(raw); err != nil {
		t.Fatalf("UnmarshalJSON failed: %v", err)
	}
	mc := newContext(nil, map[string]any{"a": float64(1)}, nil)
	ApplyEffects(effects, mc)

	want := map[string]any{"a": float64(5), "b": float64(1)}
	if !reflect.DeepEqual(mc.State, want) {
		t.Fatalf("State = %#v, want %#v", mc.State, want)
	}
}

func TestApplyEffects_LegacyUpdateInterpolatesSet(t *testing.T) {
	var effects rules.Effects
	raw := []byte(`{"$db.items.update":{"match":{"sku":"A"},"set":{"prev":"{{input.body.qty}}","qty":7}}}`)
	if err := effects.UnmarshalJSON(raw); err != nil {
		t.Fatalf("UnmarshalJSON failed: %v", err)
	}
	mc := newContext(map[string]any{"qty": float64(3)}, nil, itemsTable())
	ApplyEffects(effects, mc)

	row := mc.Tables["items"][0].(map[string]any)
	if row["prev"] != float64(3) || row["qty"] != float64(7) {
		t.Fatalf("row = %#v", row)
	}
}

func TestApplyEffects_UndefinedNeverReachesState(t *testing.T) {
	mc := newContext(map[string]any{"sku": "A"}, map[string]any{"x": "old", "keep": true}, itemsTable())
	ApplyEffects(rules.EffectList(
		rules.StateSet{Raw: map[string]any{
			"x":      "{{input.body.missing}}",
			"nested": map[string]any{"a": "{{input.body.nope}}", "b": 1},
			"list":   []any{"{{input.body.nope}}", "{{input.body.sku}}"},
		}},
		rules.DBPush{Table: "log", Value: "{{input.body.nope}}"},
		rules.DBUpdate{Table: "items", Match: map[string]any{"sku": "A"}, Set: map[string]any{"qty": "{{input.body.nope}}"}},
	), mc)

	wantState := map[string]any{
		"keep":   true,
		"nested": map[string]any{"b": 1},
		"list":   []any{nil, "A"},
	}
	if !reflect.DeepEqual(mc.State, wantState) {
		t.Fatalf("State = %#v, want %#v", mc.State, wantState)
	}
	if !reflect.DeepEqual(mc.Tables["log"], []any{nil}) {
		t.Fatalf("log = %#v, want one null row", mc.Tables["log"])
	}
	if _, ok := mc.Tables["items"][0].(map[string]any)["qty"]; ok {
		t.Fatalf("undefined update kept key: %#v", mc.Tables["items"][0])
	}
	if got := Render("val={{state.x}}", mc); got != "val=" {
		t.Fatalf("Render = %#v, want val=", got)
	}
}

func TestApplyEffects_PushAccumulates(t *testing.T) {
	mc := newContext(map[string]any{"sku": "A"}, nil, nil)
	push := rules.EffectList(rules.DBPush{Table: "cart", Value: "{{input.body}}"})
	ApplyEffects(push, mc)

	mc.Input.Body = map[string]any{"sku": "B"}
	ApplyEffects(push, mc)

	want := []any{map[string]any{"sku": "A"}, map[string]any{"sku": "B"}}
	if !reflect.DeepEqual(mc.Tables["cart"], want) {
		t.Fatalf("cart = %#v, want %#v", mc.Tables["cart"], want)
	}
}

func TestApplyEffects_PushedValueIsDetached(t *testing.T) {
	body := map[string]any{"sku": "A"}
	mc := newContext(body, nil, nil)
	ApplyEffects(rules.EffectList(rules.DBPush{Table: "cart", Value: "{{input.body}}"}), mc)
	body["sku"] = "changed"

	if got := mc.Tables["cart"][0].(map[string]any)["sku"]; got != "A" {
		t.Fatalf("pushed row aliases the body: sku = %v", got)
	}
}

func itemsTable() map[string][]any {
	return map[string][]any{"items": {
		map[string]any{"sku": "A", "qty": float64(1)},
		map[string]any{"sku": "B", "qty": float64(2)},
	}}
}

func TestApplyEffects_UpdateRequiresAllPairs(t *testing.T) {
	mc := newContext(nil, nil, itemsTable())
	ApplyEffects(rules.EffectList(rules.DBUpdate{
		Table: "items",
		Match: map[string]any{"sku": "A", "qty": 2},
		Set:   map[string]any{"qty": 99},
	}), mc)
	if !reflect.DeepEqual(mc.Tables, itemsTable()) {
		t.Fatalf("update touched rows: %#v", mc.Tables["items"])
	}

	ApplyEffects(rules.EffectList(rules.DBUpdate{
		Table: "items",
		Match: map[string]any{"sku": "A", "qty": "1"},
		Set:   map[string]any{"qty": 99},
	}), mc)
	if got := mc.Tables["items"][0].(map[string]any)["qty"]; got != 99 {
		t.Fatalf("row A qty = %v, want 99", got)
	}
	if got := mc.Tables["items"][1].(map[string]any)["qty"]; got != float64(2) {
		t.Fatalf("row B qty = %v, want 2", got)
	}
}

func TestApplyEffects_RemoveOnAnyPair(t *testing.T) {
	mc := newContext(nil, nil, map[string][]any{"items": {
		map[string]any{"sku": "A", "qty": float64(1)},
		map[string]any{"sku": "B", "qty": float64(2)},
		map[string]any{"sku": "C", "qty": float64(3)},
	}})
	ApplyEffects(rules.EffectList(rules.DBRemove{
		Table: "items",
		Match: map[string]any{"sku": "A", "qty": 2},
	}), mc)

	want := []any{map[string]any{"sku": "C", "qty": float64(3)}}
	if !reflect.DeepEqual(mc.Tables["items"], want) {
		t.Fatalf("items = %#v, want %#v", mc.Tables["items"], want)
	}
}

func TestApplyEffects_MatchInterpolatesFromInput(t *testing.T) {
	mc := newContext(map[string]any{"sku": "B"}, nil, itemsTable())
	ApplyEffects(rules.EffectList(rules.DBRemove{Table: "items", Match: map[string]any{"sku": "{{input.body.sku}}"}}), mc)
	if len(mc.Tables["items"]) != 1 || mc.Tables["items"][0].(map[string]any)["sku"] != "A" {
		t.Fatalf("items = %#v", mc.Tables["items"])
	}
}

func TestApplyEffects_MissingTableAndUnknown(t *testing.T) {
	mc := newContext(nil, nil, nil)
	ApplyEffects(rules.EffectList(
		rules.DBUpdate{Table: "ghost", Match: map[string]any{}, Set: map[string]any{"a": 1}},
		rules.DBRemove{Table: "ghost", Match: map[string]any{"a": 1}},
		rules.Unknown{Key: "$cache.flush", Value: true},
	), mc)
	if len(mc.Tables) != 0 || len(mc.State) != 0 {
		t.Fatalf("unexpected mutation: %#v %#v", mc.State, mc.Tables)
	}
}

func TestApplyEffects_LegacySyntaxRunsInOrder(t *testing.T) {
	var effects rules.Effects
	raw := []byte(`{"$db.log.push": "{{state.step}}", "$state.set": {"step": "two"}, "$db.log.update": {"match": {}, "set": {"seen": true}}}`)
	if err := effects.UnmarshalJSON(raw); err != nil {
		t.Fatalf("UnmarshalJSON failed: %v", err)
	}
	mc := newContext(nil, map[string]any{"step": "one"}, map[string][]any{"log": {map[string]any{"n": float64(0)}}})
	ApplyEffects(effects, mc)

	if mc.State["step"] != "two" {
		t.Fatalf("step = %v, want two", mc.State["step"])
	}
	log := mc.Tables["log"]
	if len(log) != 2 || log[1] != "one" {
		t.Fatalf("log = %#v", log)
	}
	if log[0].(map[string]any)["seen"] != true {
		t.Fatalf("object row not updated: %#v", log[0])
	}
}
