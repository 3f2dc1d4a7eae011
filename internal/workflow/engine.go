// Package workflow runs matched transitions against persisted scenario state.
//
// Every request for a scenario goes through LOAD, CHECK, APPLY, RENDER and
// PERSIST while holding that scenario's lock, so concurrent requests never
// lose each other's writes.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/TimurManjosov/mockflow/internal/engine"
	"github.com/TimurManjosov/mockflow/internal/routing"
	"github.com/TimurManjosov/mockflow/internal/store"
	"github.com/TimurManjosov/mockflow/internal/telemetry"
)

// ErrEvaluation wraps any failure while applying effects or rendering.
var ErrEvaluation = errors.New("workflow evaluation failed")

const defaultLockTTL = 30 * time.Second

// Repository is the persistence the engine needs.
type Repository interface {
	store.TransitionRepository
	store.StateStore
}

// Engine processes workflow requests.
type Engine struct {
	repo    Repository
	router  *routing.Router
	locks   *keyedLocks
	locker  store.DistributedLocker
	lockTTL time.Duration
	logger  zerolog.Logger
	tracer  trace.Tracer

	listeners []Listener
}

// Change describes a committed state write.
type Change struct {
	ScenarioID string `json:"scenarioId"`
	// TransitionID, Method and Path identify the applied transition; all
	// three are empty for a reset.
	TransitionID string `json:"transitionId,omitempty"`
	Method       string `json:"method,omitempty"`
	Path         string `json:"path,omitempty"`
	Status       int    `json:"status,omitempty"`
	ETag         string `json:"etag,omitempty"`
	Reset        bool   `json:"reset,omitempty"`
}

// Listener observes committed state changes. Listeners run while the
// scenario lock is held and must not block.
type Listener func(Change)

// Option configures an Engine.
type Option func(*Engine)

// WithLocker adds a distributed lock taken after the in-process one.
func WithLocker(locker store.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = locker
	}
}

// WithLockTTL bounds how long a distributed lock survives an unreleased holder.
func WithLockTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.lockTTL = ttl
		}
	}
}

// WithListener registers l for every committed state change.
func WithListener(l Listener) Option {
	return func(e *Engine) {
		e.listeners = append(e.listeners, l)
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates an engine over repo.
func New(repo Repository, opts ...Option) *Engine {
	e := &Engine{
		repo:    repo,
		router:  routing.New(repo),
		locks:   newKeyedLocks(),
		lockTTL: defaultLockTTL,
		logger:  zerolog.Nop(),
		tracer:  telemetry.Tracer(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dispatch routes req within a scenario (condition-blind) and processes the
// selected transition. A routing miss yields a 404 response, not an error.
func (e *Engine) Dispatch(ctx context.Context, scenarioID string, req Request) (*Response, error) {
	m, err := e.router.Find(ctx, scenarioID, req.Path, req.Method)
	if errors.Is(err, routing.ErrNoMatch) {
		telemetry.WorkflowRequests.WithLabelValues(telemetry.OutcomeNoMatch).Inc()
		return noMatchResponse(req), nil
	}
	if err != nil {
		telemetry.WorkflowRequests.WithLabelValues(telemetry.OutcomeError).Inc()
		return nil, err
	}
	return e.Process(ctx, scenarioID, m.Transition, m.Params, req)
}

// DispatchGlobal routes req across every scenario and processes the selected
// transition against its own scenario's state.
func (e *Engine) DispatchGlobal(ctx context.Context, req Request) (*Response, error) {
	m, err := e.router.FindGlobal(ctx, req.Path, req.Method)
	if errors.Is(err, routing.ErrNoMatch) {
		telemetry.WorkflowRequests.WithLabelValues(telemetry.OutcomeNoMatch).Inc()
		return noMatchResponse(req), nil
	}
	if err != nil {
		telemetry.WorkflowRequests.WithLabelValues(telemetry.OutcomeError).Inc()
		return nil, err
	}
	return e.Process(ctx, m.Transition.ScenarioID, m.Transition, m.Params, req)
}

// Process runs an already selected transition. A failing guard yields a 400
// response and leaves state untouched. Failures while applying effects or
// rendering return an error wrapping ErrEvaluation and persist nothing.
func (e *Engine) Process(ctx context.Context, scenarioID string, t store.Transition, params map[string]string, req Request) (*Response, error) {
	ctx, span := e.tracer.Start(ctx, "workflow.process", trace.WithAttributes(
		attribute.String("scenario.id", scenarioID),
		attribute.String("transition.id", t.ID),
		attribute.String("http.method", req.Method),
		attribute.String("http.path", req.Path),
	))
	defer span.End()

	var res result
	err := e.withLock(ctx, scenarioID, func(ctx context.Context) error {
		doc, err := e.load(ctx, scenarioID, true)
		if err != nil {
			return err
		}
		mc := engine.NewMatchContext(req.input(params), doc.State, doc.Tables)
		res, err = e.run(ctx, scenarioID, t, mc, true)
		return err
	})
	e.finish(span, scenarioID, t, res, err)
	if err != nil {
		return nil, err
	}
	return res.response, nil
}

// Reset deletes the scenario's state document. Missing documents are fine.
func (e *Engine) Reset(ctx context.Context, scenarioID string) error {
	return e.withLock(ctx, scenarioID, func(ctx context.Context) error {
		if err := e.repo.DeleteState(ctx, scenarioID); err != nil {
			return fmt.Errorf("reset scenario %s: %w", scenarioID, err)
		}
		e.logger.Info().Str("scenario_id", scenarioID).Msg("scenario state reset")
		e.notify(Change{ScenarioID: scenarioID, Reset: true})
		return nil
	})
}

// State returns the scenario's persisted document, or store.ErrStateNotFound.
func (e *Engine) State(ctx context.Context, scenarioID string) (*store.Document, error) {
	return e.repo.GetState(ctx, scenarioID)
}

func (e *Engine) withLock(ctx context.Context, scenarioID string, fn func(context.Context) error) error {
	start := time.Now()
	unlock, err := e.locks.lock(ctx, scenarioID)
	if err != nil {
		return fmt.Errorf("lock scenario %s: %w", scenarioID, err)
	}
	defer unlock()

	if e.locker != nil {
		release, err := e.locker.Lock(ctx, scenarioID, e.lockTTL)
		if err != nil {
			return fmt.Errorf("acquire distributed lock for %s: %w", scenarioID, err)
		}
		defer func() {
			// use a fresh context so a cancelled request still releases
			if err := release(context.WithoutCancel(ctx)); err != nil {
				e.logger.Warn().Err(err).Str("scenario_id", scenarioID).
					Msg("failed to release distributed lock, it will expire via TTL")
			}
		}()
	}
	telemetry.LockWait.Observe(time.Since(start).Seconds())

	return fn(ctx)
}

func (e *Engine) notify(c Change) {
	for _, l := range e.listeners {
		l(c)
	}
}

func (e *Engine) finish(span trace.Span, scenarioID string, t store.Transition, res result, err error) {
	outcome := res.outcome
	if err != nil {
		outcome = telemetry.OutcomeError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		event := e.logger.Error()
		if !errors.Is(err, ErrEvaluation) {
			event = e.logger.Warn()
		}
		event.Err(err).Str("scenario_id", scenarioID).Str("transition_id", t.ID).Msg("workflow request failed")
	}
	if res.response != nil {
		span.SetAttributes(attribute.Int("http.status_code", res.response.Status))
	}
	telemetry.WorkflowRequests.WithLabelValues(outcome).Inc()
	e.logger.Debug().
		Str("scenario_id", scenarioID).
		Str("transition_id", t.ID).
		Str("outcome", outcome).
		Msg("workflow request processed")
}
