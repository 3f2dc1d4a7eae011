package store

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/TimurManjosov/mockflow/internal/rules"
)

// runStateStoreContract checks the behaviour every StateStore must share.
func runStateStoreContract(t *testing.T, s StateStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing document", func(t *testing.T) {
		if _, err := s.GetState(ctx, "nobody"); !errors.Is(err, ErrStateNotFound) {
			t.Fatalf("GetState error = %v, want ErrStateNotFound", err)
		}
	})

	t.Run("upsert overwrites wholesale", func(t *testing.T) {
		first := Document{
			State:  map[string]any{"isLoggedIn": true, "n": float64(1)},
			Tables: map[string][]any{"cart": {map[string]any{"sku": "A"}}},
		}
		if err := s.UpsertState(ctx, "shop", first); err != nil {
			t.Fatalf("UpsertState failed: %v", err)
		}
		if err := s.UpsertState(ctx, "shop", Document{State: map[string]any{"n": float64(2)}}); err != nil {
			t.Fatalf("UpsertState failed: %v", err)
		}

		got, err := s.GetState(ctx, "shop")
		if err != nil {
			t.Fatalf("GetState failed: %v", err)
		}
		if !reflect.DeepEqual(got.State, map[string]any{"n": float64(2)}) {
			t.Fatalf("State = %#v", got.State)
		}
		if got.Tables == nil || len(got.Tables) != 0 {
			t.Fatalf("Tables = %#v, want empty map", got.Tables)
		}
	})

	t.Run("documents are isolated from callers", func(t *testing.T) {
		doc := NewDocument()
		doc.Tables["cart"] = []any{map[string]any{"sku": "A"}}
		if err := s.UpsertState(ctx, "iso", doc); err != nil {
			t.Fatalf("UpsertState failed: %v", err)
		}
		doc.Tables["cart"][0].(map[string]any)["sku"] = "mutated"

		got, err := s.GetState(ctx, "iso")
		if err != nil {
			t.Fatalf("GetState failed: %v", err)
		}
		got.State["x"] = 1

		again, err := s.GetState(ctx, "iso")
		if err != nil {
			t.Fatalf("GetState failed: %v", err)
		}
		if again.Tables["cart"][0].(map[string]any)["sku"] != "A" {
			t.Fatalf("stored row aliased caller map: %#v", again.Tables)
		}
		if _, ok := again.State["x"]; ok {
			t.Fatalf("stored state aliased returned map")
		}
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		if err := s.DeleteState(ctx, "never-existed"); err != nil {
			t.Fatalf("DeleteState on missing doc failed: %v", err)
		}
		if err := s.DeleteState(ctx, "shop"); err != nil {
			t.Fatalf("DeleteState failed: %v", err)
		}
		if _, err := s.GetState(ctx, "shop"); !errors.Is(err, ErrStateNotFound) {
			t.Fatalf("GetState after delete error = %v", err)
		}
	})
}

// runStoreContract checks scenario and transition management plus the
// routing queries.
func runStoreContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	runStateStoreContract(t, s)

	if _, err := s.UpsertScenario(ctx, Scenario{ID: "auth-flow", Name: "Auth"}); err != nil {
		t.Fatalf("UpsertScenario failed: %v", err)
	}
	if _, err := s.UpsertScenario(ctx, Scenario{ID: "shop"}); err != nil {
		t.Fatalf("UpsertScenario failed: %v", err)
	}

	t.Run("scenario upsert keeps created time", func(t *testing.T) {
		before, err := s.GetScenario(ctx, "auth-flow")
		if err != nil {
			t.Fatalf("GetScenario failed: %v", err)
		}
		after, err := s.UpsertScenario(ctx, Scenario{ID: "auth-flow", Name: "Auth v2"})
		if err != nil {
			t.Fatalf("UpsertScenario failed: %v", err)
		}
		if after.Name != "Auth v2" || !after.CreatedAt.Equal(before.CreatedAt) {
			t.Fatalf("unexpected scenario after update: %+v (before %+v)", after, before)
		}
		list, err := s.ListScenarios(ctx)
		if err != nil || len(list) != 2 || list[0].ID != "auth-flow" {
			t.Fatalf("ListScenarios = %+v, %v", list, err)
		}
	})

	t.Run("transition requires scenario", func(t *testing.T) {
		_, err := s.CreateTransition(ctx, Transition{ScenarioID: "ghost", Path: "/x", Method: "GET"})
		if !errors.Is(err, ErrScenarioNotFound) {
			t.Fatalf("CreateTransition error = %v, want ErrScenarioNotFound", err)
		}
	})

	legacy := rules.Effects{}
	if err := legacy.UnmarshalJSON([]byte(`{"$state.set":{"isLoggedIn":true},"$db.log.push":"{{input.body}}"}`)); err != nil {
		t.Fatalf("UnmarshalJSON failed: %v", err)
	}

	login, err := s.CreateTransition(ctx, Transition{
		ScenarioID: "auth-flow",
		Name:       "login",
		Path:       "/login",
		Method:     "post",
		Effects:    legacy,
		Response:   Response{Status: 200, Body: map[string]any{"ok": true}},
		Meta:       map[string]any{"owner": "qa"},
	})
	if err != nil {
		t.Fatalf("CreateTransition failed: %v", err)
	}
	byParam, err := s.CreateTransition(ctx, Transition{
		ScenarioID: "auth-flow",
		Path:       "/orders/:id",
		Method:     "GET",
		Conditions: rules.ListConditions(rules.Condition{Type: rules.OpEq, Field: "state.isLoggedIn", Value: true}),
	})
	if err != nil {
		t.Fatalf("CreateTransition failed: %v", err)
	}
	if _, err := s.CreateTransition(ctx, Transition{ScenarioID: "shop", Path: "/login", Method: "POST"}); err != nil {
		t.Fatalf("CreateTransition failed: %v", err)
	}

	t.Run("created transitions are normalized", func(t *testing.T) {
		if login.ID == "" || login.Method != "POST" || login.Seq == 0 || login.CreatedAt.IsZero() {
			t.Fatalf("unexpected created transition: %+v", login)
		}
		if byParam.Seq <= login.Seq {
			t.Fatalf("seq not increasing: %d then %d", login.Seq, byParam.Seq)
		}
	})

	t.Run("routing queries keep creation order", func(t *testing.T) {
		exact, err := s.FindByExactPathMethod(ctx, "auth-flow", "/login", "POST")
		if err != nil || len(exact) != 1 || exact[0].ID != login.ID {
			t.Fatalf("FindByExactPathMethod = %+v, %v", exact, err)
		}
		byMethod, err := s.FindByScenarioAndMethod(ctx, "auth-flow", "get")
		if err != nil || len(byMethod) != 1 || byMethod[0].ID != byParam.ID {
			t.Fatalf("FindByScenarioAndMethod = %+v, %v", byMethod, err)
		}
		global, err := s.FindAllByExactPathMethod(ctx, "/login", "POST")
		if err != nil || len(global) != 2 || global[0].ID != login.ID {
			t.Fatalf("FindAllByExactPathMethod = %+v, %v", global, err)
		}
		all, err := s.FindAllByMethod(ctx, "POST")
		if err != nil || len(all) != 2 || all[0].Seq > all[1].Seq {
			t.Fatalf("FindAllByMethod = %+v, %v", all, err)
		}
	})

	t.Run("authored syntax survives storage", func(t *testing.T) {
		got, err := s.GetTransition(ctx, "auth-flow", login.ID)
		if err != nil {
			t.Fatalf("GetTransition failed: %v", err)
		}
		if got.Effects.Form() != rules.FormMap || got.Effects.Len() != 2 {
			t.Fatalf("effects = %#v", got.Effects)
		}
		if got.Effects.Items[0].Kind() != rules.KindStateSet || got.Effects.Items[1].Kind() != rules.KindDBPush {
			t.Fatalf("legacy order lost: %#v", got.Effects.Items)
		}
		if got.Meta["owner"] != "qa" {
			t.Fatalf("meta = %#v", got.Meta)
		}
		cond, err := s.GetTransition(ctx, "auth-flow", byParam.ID)
		if err != nil {
			t.Fatalf("GetTransition failed: %v", err)
		}
		if cond.Conditions.Form() != rules.FormList || len(cond.Conditions.List) != 1 {
			t.Fatalf("conditions = %#v", cond.Conditions)
		}
	})

	t.Run("update keeps identity", func(t *testing.T) {
		upd := *byParam
		upd.Path = "/orders/:orderId"
		got, err := s.UpdateTransition(ctx, upd)
		if err != nil {
			t.Fatalf("UpdateTransition failed: %v", err)
		}
		if got.Seq != byParam.Seq || got.Path != "/orders/:orderId" {
			t.Fatalf("unexpected update: %+v", got)
		}
		if _, err := s.UpdateTransition(ctx, Transition{ID: "missing", ScenarioID: "auth-flow", Path: "/", Method: "GET"}); !errors.Is(err, ErrTransitionNotFound) {
			t.Fatalf("UpdateTransition error = %v, want ErrTransitionNotFound", err)
		}
	})

	t.Run("wrong scenario hides transition", func(t *testing.T) {
		if _, err := s.GetTransition(ctx, "shop", login.ID); !errors.Is(err, ErrTransitionNotFound) {
			t.Fatalf("GetTransition error = %v", err)
		}
		if err := s.DeleteTransition(ctx, "shop", login.ID); !errors.Is(err, ErrTransitionNotFound) {
			t.Fatalf("DeleteTransition error = %v", err)
		}
	})

	t.Run("delete scenario cascades", func(t *testing.T) {
		if err := s.UpsertState(ctx, "auth-flow", Document{State: map[string]any{"isLoggedIn": true}}); err != nil {
			t.Fatalf("UpsertState failed: %v", err)
		}
		if err := s.DeleteScenario(ctx, "auth-flow"); err != nil {
			t.Fatalf("DeleteScenario failed: %v", err)
		}
		if _, err := s.GetState(ctx, "auth-flow"); !errors.Is(err, ErrStateNotFound) {
			t.Fatalf("state survived scenario delete: %v", err)
		}
		if ts, _ := s.FindAllByMethod(ctx, "GET"); len(ts) != 0 {
			t.Fatalf("transitions survived scenario delete: %+v", ts)
		}
		if _, err := s.ListTransitions(ctx, "auth-flow"); !errors.Is(err, ErrScenarioNotFound) {
			t.Fatalf("ListTransitions error = %v", err)
		}
		if err := s.DeleteScenario(ctx, "auth-flow"); !errors.Is(err, ErrScenarioNotFound) {
			t.Fatalf("second DeleteScenario error = %v", err)
		}
	})
}
