// Package notify fans committed state changes out to live subscribers.
package notify

import (
	"sync"

	"github.com/TimurManjosov/mockflow/internal/workflow"
)

const bufferSize = 8

type subscriber chan workflow.Change

// Hub keeps subscribers per scenario.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[subscriber]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[subscriber]struct{})}
}

// Subscribe registers a listener for scenarioID and returns its channel and an
// unsubscribe func. The channel is closed by unsubscribe.
func (h *Hub) Subscribe(scenarioID string) (<-chan workflow.Change, func()) {
	ch := make(subscriber, bufferSize)
	h.mu.Lock()
	set, ok := h.subs[scenarioID]
	if !ok {
		set = make(map[subscriber]struct{})
		h.subs[scenarioID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, scenarioID)
			}
			close(ch)
			h.mu.Unlock()
		})
	}
	return ch, unsub
}

// Publish delivers c to every subscriber of its scenario. Slow subscribers
// miss the change instead of blocking the caller. Publish has the
// workflow.Listener signature.
func (h *Hub) Publish(c workflow.Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[c.ScenarioID] {
		select {
		case ch <- c:
		default:
		}
	}
}

// Subscribers returns the number of live subscribers for scenarioID.
func (h *Hub) Subscribers(scenarioID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[scenarioID])
}
