package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/TimurManjosov/mockflow/internal/engine"
	"github.com/TimurManjosov/mockflow/internal/store"
	"github.com/TimurManjosov/mockflow/internal/telemetry"
)

// result is the outcome of one pass through the pipeline.
type result struct {
	response  *Response
	outcome   string
	persisted bool
}

// load fetches the scenario's document. A missing document starts empty and,
// when create is set, is inserted before anything else happens.
func (e *Engine) load(ctx context.Context, scenarioID string, create bool) (store.Document, error) {
	ctx, span := e.tracer.Start(ctx, "workflow.load")
	defer span.End()

	doc, err := e.repo.GetState(ctx, scenarioID)
	if err == nil {
		return *doc, nil
	}
	if !errors.Is(err, store.ErrStateNotFound) {
		return store.Document{}, fmt.Errorf("load state for %s: %w", scenarioID, err)
	}

	fresh := store.NewDocument()
	if create {
		if err := e.repo.UpsertState(ctx, scenarioID, fresh); err != nil {
			return store.Document{}, fmt.Errorf("initialize state for %s: %w", scenarioID, err)
		}
	}
	return fresh, nil
}

// run executes CHECK, APPLY, RENDER and PERSIST for t on mc. The response is
// rendered before the write so that a render failure leaves the stored
// document untouched; it is only returned once the write succeeded.
func (e *Engine) run(ctx context.Context, scenarioID string, t store.Transition, mc *engine.MatchContext, persist bool) (result, error) {
	var passed bool
	if err := e.phase(ctx, "workflow.check", func() { passed = engine.Matches(t.Conditions, mc) }); err != nil {
		return result{}, err
	}
	if !passed {
		return result{
			response: &Response{
				Status:  400,
				Headers: defaultHeaders(),
				Body:    map[string]any{"error": msgConditionsNotMet, "details": t.Conditions},
			},
			outcome: telemetry.OutcomeConditionsFailed,
		}, nil
	}

	if err := e.phase(ctx, "workflow.apply", func() { engine.ApplyEffects(t.Effects, mc) }); err != nil {
		return result{}, err
	}
	for _, effect := range t.Effects.Items {
		telemetry.EffectsApplied.WithLabelValues(string(effect.Kind())).Inc()
	}

	var resp *Response
	if err := e.phase(ctx, "workflow.render", func() { resp = render(t.Response, mc) }); err != nil {
		return result{}, err
	}

	if persist {
		doc := store.Document{State: mc.State, Tables: mc.Tables}
		pctx, span := e.tracer.Start(ctx, "workflow.persist")
		err := e.repo.UpsertState(pctx, scenarioID, doc)
		span.End()
		if err != nil {
			return result{}, fmt.Errorf("persist state for %s: %w", scenarioID, err)
		}
		if len(e.listeners) > 0 {
			e.notify(Change{
				ScenarioID:   scenarioID,
				TransitionID: t.ID,
				Method:       t.Method,
				Path:         t.Path,
				Status:       resp.Status,
				ETag:         doc.ETag(),
			})
		}
	}

	return result{response: resp, outcome: telemetry.OutcomeMatched, persisted: persist}, nil
}

// phase runs fn inside a span, turning a panic into ErrEvaluation.
func (e *Engine) phase(ctx context.Context, name string, fn func()) (err error) {
	_, span := e.tracer.Start(ctx, name)
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrEvaluation, name, r)
			span.RecordError(err)
		}
	}()
	fn()
	return nil
}

// render builds the response: status defaults to 200 and the transition's
// headers override the defaults, compared case-insensitively.
func render(tmpl store.Response, mc *engine.MatchContext) *Response {
	status := tmpl.Status
	if status == 0 {
		status = 200
	}
	headers := defaultHeaders()
	for k, v := range engine.RenderHeaders(tmpl.Headers, mc) {
		for existing := range headers {
			if strings.EqualFold(existing, k) {
				delete(headers, existing)
			}
		}
		headers[k] = v
	}
	return &Response{Status: status, Headers: headers, Body: engine.Render(tmpl.Body, mc)}
}
