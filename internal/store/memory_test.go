package store

import (
	"context"
	"sync"
	"testing"
)

func TestMemoryStore_Contract(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if _, err := store.UpsertScenario(ctx, Scenario{ID: "load"}); err != nil {
		t.Fatalf("UpsertScenario failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.CreateTransition(ctx, Transition{ScenarioID: "load", Path: "/p", Method: "GET"}); err != nil {
				t.Errorf("CreateTransition failed: %v", err)
			}
			_ = store.UpsertState(ctx, "load", NewDocument())
			_, _ = store.GetState(ctx, "load")
		}()
	}
	wg.Wait()

	ts, err := store.ListTransitions(ctx, "load")
	if err != nil {
		t.Fatalf("ListTransitions failed: %v", err)
	}
	if len(ts) != 20 {
		t.Fatalf("expected 20 transitions, got %d", len(ts))
	}
	seen := make(map[int64]bool)
	for _, tr := range ts {
		if seen[tr.Seq] {
			t.Fatalf("duplicate seq %d", tr.Seq)
		}
		seen[tr.Seq] = true
	}
}
