package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/TimurManjosov/mockflow/internal/rules"
	"github.com/TimurManjosov/mockflow/internal/store"
)

const sample = `
scenarios:
  - id: auth-flow
    name: Auth
    transitions:
      - name: login
        path: /login
        method: POST
        effects:
          $state.set:
            isLoggedIn: true
        response:
          status: 200
          body: {ok: true}
      - name: dashboard
        path: /dashboard
        method: get
        conditions:
          - type: eq
            field: state.isLoggedIn
            value: true
        response:
          body: {ok: true}
  - id: shop
    transitions:
      - path: /cart/add
        method: POST
        effects:
          - type: db.push
            table: cart
            value: "{{input.body}}"
        response:
          status: 201
          body:
            count: "{{db.cart.length}}"
`

func TestParse(t *testing.T) {
	c, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(c.Scenarios) != 2 {
		t.Fatalf("scenarios = %d, want 2", len(c.Scenarios))
	}
	auth := c.Scenarios[0]
	if auth.ID != "auth-flow" || auth.Name != "Auth" || len(auth.Transitions) != 2 {
		t.Fatalf("auth scenario = %+v", auth)
	}
	if auth.Transitions[0].Effects.Form() != rules.FormMap {
		t.Fatalf("legacy effects not recognised: %#v", auth.Transitions[0].Effects)
	}
	if auth.Transitions[1].Conditions.Form() != rules.FormList {
		t.Fatalf("list conditions not recognised: %#v", auth.Transitions[1].Conditions)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr error
	}{
		{
			name:    "bad scenario id",
			src:     "scenarios:\n  - id: 'has space'\n",
			wantErr: store.ErrInvalidScenarioID,
		},
		{
			name:    "bad route",
			src:     "scenarios:\n  - id: a\n    transitions:\n      - path: nope\n        method: GET\n",
			wantErr: rules.ErrInvalidRoute,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.src)); !errors.Is(err, tt.wantErr) {
				t.Fatalf("Parse error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, err := Parse([]byte("scenarios:\n  - id: a\n  - id: a\n")); err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("duplicate ids error = %v", err)
	}
}

func TestApplyAndExport(t *testing.T) {
	ctx := context.Background()
	c, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	st := store.NewMemoryStore()
	res, err := Apply(ctx, st, c)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if res.Scenarios != 2 || res.Transitions != 3 || res.Replaced != 0 {
		t.Fatalf("result = %+v", res)
	}

	// applying again replaces instead of duplicating
	res, err = Apply(ctx, st, c)
	if err != nil {
		t.Fatalf("second Apply failed: %v", err)
	}
	if res.Replaced != 3 {
		t.Fatalf("second result = %+v", res)
	}
	ts, err := st.ListTransitions(ctx, "auth-flow")
	if err != nil || len(ts) != 2 || ts[0].Name != "login" || ts[1].Method != "GET" {
		t.Fatalf("transitions = %+v, %v", ts, err)
	}

	exported, err := Export(ctx, st)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	out, err := Marshal(exported)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	text := string(out)
	if !strings.Contains(text, "$state.set") || !strings.Contains(text, "type: db.push") {
		t.Fatalf("authored syntax lost on export:\n%s", text)
	}

	again, err := Parse(out)
	if err != nil {
		t.Fatalf("re-Parse failed: %v\n%s", err, text)
	}
	if len(again.Scenarios) != 2 || len(again.Scenarios[1].Transitions) != 1 {
		t.Fatalf("round trip = %+v", again)
	}
}

func TestApply_KeepsState(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	c, _ := Parse([]byte(sample))
	if _, err := Apply(ctx, st, c); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if err := st.UpsertState(ctx, "shop", store.Document{State: map[string]any{"n": float64(1)}}); err != nil {
		t.Fatalf("UpsertState failed: %v", err)
	}
	if _, err := Apply(ctx, st, c); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	doc, err := st.GetState(ctx, "shop")
	if err != nil || doc.State["n"] != float64(1) {
		t.Fatalf("state = %+v, %v", doc, err)
	}
}

// reloadStore watches the route table while Apply swaps definitions.
type reloadStore struct {
	*store.MemoryStore
	failCreateAfter int
	creates         int
	gaps            int
}

func (r *reloadStore) CreateTransition(ctx context.Context, t store.Transition) (*store.Transition, error) {
	r.creates++
	if r.failCreateAfter > 0 && r.creates > r.failCreateAfter {
		return nil, errors.New("disk full")
	}
	return r.MemoryStore.CreateTransition(ctx, t)
}

func (r *reloadStore) DeleteTransition(ctx context.Context, scenarioID, id string) error {
	if err := r.MemoryStore.DeleteTransition(ctx, scenarioID, id); err != nil {
		return err
	}
	if scenarioID == "auth-flow" {
		if found, _ := r.FindByExactPathMethod(ctx, "auth-flow", "/login", "POST"); len(found) == 0 {
			r.gaps++
		}
	}
	return nil
}

func TestApply_ReloadNeverEmptiesRoutes(t *testing.T) {
	ctx := context.Background()
	c, _ := Parse([]byte(sample))
	st := &reloadStore{MemoryStore: store.NewMemoryStore()}
	if _, err := Apply(ctx, st, c); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if _, err := Apply(ctx, st, c); err != nil {
		t.Fatalf("second Apply failed: %v", err)
	}
	if st.gaps != 0 {
		t.Fatalf("/login had no transition during %d deletes", st.gaps)
	}
	ts, _ := st.ListTransitions(ctx, "auth-flow")
	if len(ts) != 2 || ts[0].Name != "login" {
		t.Fatalf("transitions = %+v", ts)
	}
}

func TestApply_FailedCreateKeepsPreviousSet(t *testing.T) {
	ctx := context.Background()
	c, _ := Parse([]byte(sample))
	st := &reloadStore{MemoryStore: store.NewMemoryStore()}
	if _, err := Apply(ctx, st, c); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	before, _ := st.ListTransitions(ctx, "auth-flow")

	st.failCreateAfter = st.creates + 1
	if _, err := Apply(ctx, st, c); err == nil {
		t.Fatal("expected create failure")
	}
	after, _ := st.ListTransitions(ctx, "auth-flow")
	if len(after) != len(before) || after[0].ID != before[0].ID || after[1].ID != before[1].ID {
		t.Fatalf("transitions changed: before %+v after %+v", before, after)
	}
}
