package audit

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/TimurManjosov/mockflow/internal/auth"
)

// EventBuilder assembles an AuditEvent for one management request.
type EventBuilder struct {
	event AuditEvent
}

// NewEventBuilder starts an event stamped with the request id, the
// authenticated actor (or anonymous) and the caller's address.
func NewEventBuilder(r *http.Request) *EventBuilder {
	actor := Actor{Kind: ActorKindAnonymous, Display: "anonymous"}
	if name, ok := auth.GetActorFromContext(r.Context()); ok {
		actor = Actor{Kind: ActorKindAdmin, Display: name}
	}
	return &EventBuilder{event: AuditEvent{
		RequestID: middleware.GetReqID(r.Context()),
		Actor:     actor,
		Source:    Source{IPAddress: auth.GetIPAddress(r), UserAgent: r.UserAgent()},
		Status:    StatusSuccess,
	}}
}

func (b *EventBuilder) ForResource(resourceType, resourceID string) *EventBuilder {
	b.event.ResourceType, b.event.ResourceID = resourceType, resourceID
	return b
}

func (b *EventBuilder) InScenario(scenarioID string) *EventBuilder {
	b.event.ScenarioID = scenarioID
	return b
}

func (b *EventBuilder) WithAction(action string) *EventBuilder {
	b.event.Action = action
	return b
}

func (b *EventBuilder) WithBeforeState(state map[string]any) *EventBuilder {
	b.event.BeforeState = state
	return b
}

func (b *EventBuilder) WithAfterState(state map[string]any) *EventBuilder {
	b.event.AfterState = state
	return b
}

// Failure marks the event failed with msg.
func (b *EventBuilder) Failure(msg string) *EventBuilder {
	b.event.Status, b.event.ErrorMessage = StatusFailure, msg
	return b
}

// Build returns the event, diffing the snapshots when both are present.
func (b *EventBuilder) Build() AuditEvent {
	if b.event.BeforeState != nil && b.event.AfterState != nil {
		b.event.Changes = ComputeChanges(b.event.BeforeState, b.event.AfterState)
	}
	return b.event
}
