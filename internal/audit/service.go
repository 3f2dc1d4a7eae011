// Package audit records who changed scenario definitions and state through
// the management API. Events are queued and written by a background worker so
// a slow sink never delays a request.
package audit

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Action constants for audit logging
const (
	ActionCreated    = "created"
	ActionUpdated    = "updated"
	ActionDeleted    = "deleted"
	ActionReset      = "reset"
	ActionImported   = "imported"
	ActionAuthFailed = "auth_failed"
)

// ResourceType constants for audit logging
const (
	ResourceTypeScenario   = "scenario"
	ResourceTypeTransition = "transition"
	ResourceTypeState      = "state"
	ResourceTypeCatalog    = "catalog"
	ResourceTypeSystem     = "system"
)

// Status constants for audit logging
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// ActorKind constants for audit logging
const (
	ActorKindAdmin     = "admin"
	ActorKindAnonymous = "anonymous"
	ActorKindSystem    = "system"
)

// Clock interface for testable time operations
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using time.Now()
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// IDGenerator interface for testable ID generation
type IDGenerator interface {
	Generate() string
}

// UUIDGenerator implements IDGenerator using UUID v4
type UUIDGenerator struct{}

func (UUIDGenerator) Generate() string {
	return uuid.NewString()
}

// Redactor interface for removing sensitive data
type Redactor interface {
	Redact(data map[string]any) map[string]any
}

// DefaultRedactor masks values whose key names look like credentials.
// Matching is case-insensitive; nested maps are walked.
type DefaultRedactor struct {
	sensitiveKeys []string
}

func NewDefaultRedactor() *DefaultRedactor {
	return &DefaultRedactor{
		sensitiveKeys: []string{
			"password", "secret", "token", "api_key", "apikey",
			"authorization", "cookie", "session",
		},
	}
}

func (r *DefaultRedactor) Redact(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}

	redacted := make(map[string]any, len(data))
	for k, v := range data {
		switch {
		case r.sensitive(k):
			redacted[k] = "[REDACTED]"
		default:
			if nested, ok := v.(map[string]any); ok {
				redacted[k] = r.Redact(nested)
			} else {
				redacted[k] = v
			}
		}
	}
	return redacted
}

func (r *DefaultRedactor) sensitive(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range r.sensitiveKeys {
		if lower == s {
			return true
		}
	}
	return false
}

// Actor represents who performed the action
type Actor struct {
	Kind    string `json:"kind"`
	Display string `json:"display"`
}

// Source represents request metadata
type Source struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
}

// AuditEvent represents a canonical audit event
type AuditEvent struct {
	ID           string         `json:"id"`
	OccurredAt   time.Time      `json:"occurred_at"`
	RequestID    string         `json:"request_id,omitempty"`
	Actor        Actor          `json:"actor"`
	Source       Source         `json:"source"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	ScenarioID   string         `json:"scenario_id,omitempty"`
	BeforeState  map[string]any `json:"before_state,omitempty"`
	AfterState   map[string]any `json:"after_state,omitempty"`
	Changes      map[string]any `json:"changes,omitempty"`
	Status       string         `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

// Sink persists audit events.
type Sink interface {
	Write(ctx context.Context, event AuditEvent) error
}

// Service queues audit events and writes them to a Sink from one worker.
type Service struct {
	sink     Sink
	clock    Clock
	idgen    IDGenerator
	redactor Redactor
	logger   zerolog.Logger

	mu      sync.RWMutex
	queue   chan AuditEvent
	done    chan struct{}
	closed  bool
	dropped atomic.Int64
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithIDGenerator replaces the event id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Service) { s.idgen = g }
}

// WithRedactor replaces the default redactor.
func WithRedactor(r Redactor) Option {
	return func(s *Service) { s.redactor = r }
}

// WithLogger sets the logger for sink failures and dropped events.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l.With().Str("component", "audit").Logger() }
}

const (
	defaultAuditQueue = 256
	sinkWriteTimeout  = 5 * time.Second
)

// NewService starts a service writing to sink. queueSize <= 0 selects the
// default buffer.
func NewService(sink Sink, queueSize int, opts ...Option) *Service {
	if queueSize <= 0 {
		queueSize = defaultAuditQueue
	}
	s := &Service{
		sink:     sink,
		clock:    SystemClock{},
		idgen:    UUIDGenerator{},
		redactor: NewDefaultRedactor(),
		logger:   zerolog.Nop(),
		queue:    make(chan AuditEvent, queueSize),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.run()
	return s
}

func (s *Service) run() {
	defer close(s.done)
	for event := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sinkWriteTimeout)
		if err := s.sink.Write(ctx, event); err != nil {
			s.logger.Warn().Err(err).Str("event_id", event.ID).Msg("failed to write audit event")
		}
		cancel()
	}
}

// Close writes what is queued and stops the worker. Later calls return
// immediately and events logged after Close are dropped.
func (s *Service) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.done
	return nil
}

// Dropped reports how many events were discarded because the queue was full
// or the service was closed.
func (s *Service) Dropped() int64 {
	return s.dropped.Load()
}

// Log fills in id, time and status, redacts the snapshots and queues the
// event. It never blocks.
func (s *Service) Log(event AuditEvent) {
	if event.ID == "" {
		event.ID = s.idgen.Generate()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.clock.Now().UTC()
	}
	if event.Status == "" {
		event.Status = StatusSuccess
	}
	event.BeforeState = s.redactor.Redact(event.BeforeState)
	event.AfterState = s.redactor.Redact(event.AfterState)
	event.Changes = s.redactor.Redact(event.Changes)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.queue <- event:
	default:
		s.dropped.Add(1)
		s.logger.Warn().
			Str("resource_type", event.ResourceType).
			Str("resource_id", event.ResourceID).
			Msg("audit queue full, dropping event")
	}
}

// ComputeChanges returns {"before": x, "after": y} for every top-level key
// whose JSON encoding differs between the snapshots, or nil when nothing
// changed. A missing key counts as null.
func ComputeChanges(before, after map[string]any) map[string]any {
	changes := map[string]any{}
	diff := func(key string) {
		if _, seen := changes[key]; seen {
			return
		}
		b, a := before[key], after[key]
		if _, had := before[key]; had {
			if _, has := after[key]; has && sameJSON(b, a) {
				return
			}
		}
		changes[key] = map[string]any{"before": b, "after": a}
	}
	for key := range after {
		diff(key)
	}
	for key := range before {
		diff(key)
	}
	if len(changes) == 0 {
		return nil
	}
	return changes
}

func sameJSON(a, b any) bool {
	x, errX := json.Marshal(a)
	y, errY := json.Marshal(b)
	return errX == nil && errY == nil && string(x) == string(y)
}

// ToMap converts a JSON-encodable value into a generic map for before/after
// snapshots. Values that do not encode to an object yield nil.
func ToMap(v any) map[string]any {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}
