package audit

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// LogSink writes every event as one structured log line.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a sink that logs through logger.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "audit").Logger()}
}

// Write logs the event. Failures are logged at warn level.
func (s *LogSink) Write(_ context.Context, event AuditEvent) error {
	e := s.logger.Info()
	if event.Status == StatusFailure {
		e = s.logger.Warn().Str("error_message", event.ErrorMessage)
	}
	e = e.Str("event_id", event.ID).
		Time("occurred_at", event.OccurredAt).
		Str("action", event.Action).
		Str("resource_type", event.ResourceType).
		Str("resource_id", event.ResourceID).
		Str("actor", event.Actor.Display).
		Str("ip", event.Source.IPAddress).
		Str("status", event.Status)
	if event.RequestID != "" {
		e = e.Str("request_id", event.RequestID)
	}
	if event.ScenarioID != "" {
		e = e.Str("scenario_id", event.ScenarioID)
	}
	if event.Changes != nil {
		e = e.Interface("changes", event.Changes)
	}
	e.Msg("audit event")
	return nil
}

// MemorySink keeps the most recent events in a fixed-size ring.
type MemorySink struct {
	mu     sync.RWMutex
	events []AuditEvent
	next   int
	full   bool
}

// NewMemorySink creates a ring holding up to capacity events.
func NewMemorySink(capacity int) *MemorySink {
	if capacity <= 0 {
		capacity = 100
	}
	return &MemorySink{events: make([]AuditEvent, capacity)}
}

// Write stores the event, overwriting the oldest when full.
func (m *MemorySink) Write(_ context.Context, event AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[m.next] = event
	m.next = (m.next + 1) % len(m.events)
	if m.next == 0 {
		m.full = true
	}
	return nil
}

// Recent returns up to limit events, newest first. A non-positive limit
// returns everything held.
func (m *MemorySink) Recent(limit int) []AuditEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	size := m.next
	if m.full {
		size = len(m.events)
	}
	if limit <= 0 || limit > size {
		limit = size
	}
	out := make([]AuditEvent, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (m.next - 1 - i + len(m.events)) % len(m.events)
		out = append(out, m.events[idx])
	}
	return out
}

// MultiSink fans an event out to every sink and joins their errors.
type MultiSink []Sink

func (ms MultiSink) Write(ctx context.Context, event AuditEvent) error {
	var errs []error
	for _, s := range ms {
		if err := s.Write(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
