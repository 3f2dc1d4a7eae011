package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of the Store interface.
// It uses maps for storage and an RWMutex for thread-safe concurrent access.
// State documents are deep-copied on every read and write so callers never
// share mutable maps with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	scenarios   map[string]Scenario
	transitions map[string]Transition // id -> transition
	states      map[string]Document
	seq         int64
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		scenarios:   make(map[string]Scenario),
		transitions: make(map[string]Transition),
		states:      make(map[string]Document),
	}
}

// ListScenarios returns all scenarios ordered by id.
func (m *MemoryStore) ListScenarios(ctx context.Context) ([]Scenario, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Scenario, 0, len(m.scenarios))
	for _, s := range m.scenarios {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// GetScenario retrieves a scenario by id.
func (m *MemoryStore) GetScenario(ctx context.Context, id string) (*Scenario, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.scenarios[id]
	if !ok {
		return nil, ErrScenarioNotFound
	}
	return &s, nil
}

// UpsertScenario creates or updates a scenario.
func (m *MemoryStore) UpsertScenario(ctx context.Context, s Scenario) (*Scenario, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := m.scenarios[s.ID]; ok {
		s.CreatedAt = existing.CreatedAt
	} else {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	m.scenarios[s.ID] = s
	return &s, nil
}

// DeleteScenario removes a scenario together with its transitions and state.
func (m *MemoryStore) DeleteScenario(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.scenarios[id]; !ok {
		return ErrScenarioNotFound
	}
	delete(m.scenarios, id)
	delete(m.states, id)
	for tid, t := range m.transitions {
		if t.ScenarioID == id {
			delete(m.transitions, tid)
		}
	}
	return nil
}

// FindByExactPathMethod returns a scenario's transitions with this literal path.
func (m *MemoryStore) FindByExactPathMethod(ctx context.Context, scenarioID, path, method string) ([]Transition, error) {
	return m.filter(func(t Transition) bool {
		return t.ScenarioID == scenarioID && t.Path == path && sameMethod(t.Method, method)
	}), nil
}

// FindByScenarioAndMethod returns a scenario's transitions for method.
func (m *MemoryStore) FindByScenarioAndMethod(ctx context.Context, scenarioID, method string) ([]Transition, error) {
	return m.filter(func(t Transition) bool {
		return t.ScenarioID == scenarioID && sameMethod(t.Method, method)
	}), nil
}

// FindAllByExactPathMethod is FindByExactPathMethod across all scenarios.
func (m *MemoryStore) FindAllByExactPathMethod(ctx context.Context, path, method string) ([]Transition, error) {
	return m.filter(func(t Transition) bool {
		return t.Path == path && sameMethod(t.Method, method)
	}), nil
}

// FindAllByMethod is FindByScenarioAndMethod across all scenarios.
func (m *MemoryStore) FindAllByMethod(ctx context.Context, method string) ([]Transition, error) {
	return m.filter(func(t Transition) bool {
		return sameMethod(t.Method, method)
	}), nil
}

// ListTransitions returns a scenario's transitions in creation order.
func (m *MemoryStore) ListTransitions(ctx context.Context, scenarioID string) ([]Transition, error) {
	m.mu.RLock()
	_, ok := m.scenarios[scenarioID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrScenarioNotFound
	}
	return m.filter(func(t Transition) bool { return t.ScenarioID == scenarioID }), nil
}

// GetTransition retrieves one transition of a scenario.
func (m *MemoryStore) GetTransition(ctx context.Context, scenarioID, id string) (*Transition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.transitions[id]
	if !ok || t.ScenarioID != scenarioID {
		return nil, ErrTransitionNotFound
	}
	return &t, nil
}

// CreateTransition stores a new transition at the end of the creation order.
func (m *MemoryStore) CreateTransition(ctx context.Context, t Transition) (*Transition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.scenarios[t.ScenarioID]; !ok {
		return nil, ErrScenarioNotFound
	}
	normalizeTransition(&t)
	m.seq++
	now := time.Now().UTC()
	t.Seq = m.seq
	t.CreatedAt = now
	t.UpdatedAt = now
	m.transitions[t.ID] = t
	return &t, nil
}

// UpdateTransition replaces a transition's definition in place.
func (m *MemoryStore) UpdateTransition(ctx context.Context, t Transition) (*Transition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.transitions[t.ID]
	if !ok || existing.ScenarioID != t.ScenarioID {
		return nil, ErrTransitionNotFound
	}
	normalizeTransition(&t)
	t.Seq = existing.Seq
	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = time.Now().UTC()
	m.transitions[t.ID] = t
	return &t, nil
}

// DeleteTransition removes a transition.
func (m *MemoryStore) DeleteTransition(ctx context.Context, scenarioID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.transitions[id]
	if !ok || t.ScenarioID != scenarioID {
		return ErrTransitionNotFound
	}
	delete(m.transitions, id)
	return nil
}

// GetState returns a copy of the scenario's document.
func (m *MemoryStore) GetState(ctx context.Context, scenarioID string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.states[scenarioID]
	if !ok {
		return nil, ErrStateNotFound
	}
	out := doc.Clone()
	return &out, nil
}

// UpsertState overwrites the scenario's document with a copy of doc.
func (m *MemoryStore) UpsertState(ctx context.Context, scenarioID string, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := doc.Clone()
	stored.UpdatedAt = time.Now().UTC()
	m.states[scenarioID] = stored
	return nil
}

// DeleteState removes the scenario's document; missing documents are ignored.
func (m *MemoryStore) DeleteState(ctx context.Context, scenarioID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.states, scenarioID)
	return nil
}

// Close is a no-op for MemoryStore as there are no resources to release.
func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) filter(keep func(Transition) bool) []Transition {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Transition, 0)
	for _, t := range m.transitions {
		if keep(t) {
			result = append(result, t)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Seq < result[j].Seq })
	return result
}
