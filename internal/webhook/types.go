package webhook

import (
	"time"

	"github.com/TimurManjosov/mockflow/internal/workflow"
)

// Event types sent to webhook targets.
const (
	EventTransitionApplied = "transition.applied"
	EventStateReset        = "state.reset"
)

// Event is the JSON body of a webhook delivery.
type Event struct {
	Type       string          `json:"event"`
	Timestamp  time.Time       `json:"timestamp"`
	ScenarioID string          `json:"scenarioId"`
	Data       workflow.Change `json:"data"`
}

// NewEvent builds the event for a committed state change.
func NewEvent(c workflow.Change, now time.Time) Event {
	typ := EventTransitionApplied
	if c.Reset {
		typ = EventStateReset
	}
	return Event{
		Type:       typ,
		Timestamp:  now.UTC(),
		ScenarioID: c.ScenarioID,
		Data:       c,
	}
}

// Target is a subscribed callback URL.
type Target struct {
	URL    string
	Secret string
	// Events limits deliveries to these event types. Empty means all.
	Events []string
	// Scenarios limits deliveries to these scenarios. Empty means all.
	Scenarios []string
	Timeout    time.Duration
	MaxRetries int
}

func (t Target) matches(e Event) bool {
	if len(t.Events) > 0 && !contains(t.Events, e.Type) {
		return false
	}
	if len(t.Scenarios) > 0 && !contains(t.Scenarios, e.ScenarioID) {
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
