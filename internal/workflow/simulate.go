package workflow

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/TimurManjosov/mockflow/internal/engine"
	"github.com/TimurManjosov/mockflow/internal/routing"
	"github.com/TimurManjosov/mockflow/internal/telemetry"
)

// SimulateOptions controls a simulated request.
type SimulateOptions struct {
	// DryRun evaluates everything but writes nothing, not even the lazily
	// created empty document.
	DryRun bool `json:"dryRun"`
}

// SimulateResult reports how a request was routed and what it produced.
type SimulateResult struct {
	Response  *Response      `json:"response"`
	Trace     *routing.Trace `json:"trace"`
	Persisted bool           `json:"persisted"`
}

// Simulate routes req with guards taken into account on exact-path candidates
// and then runs the selected transition like Dispatch does.
func (e *Engine) Simulate(ctx context.Context, scenarioID string, req Request, opts SimulateOptions) (*SimulateResult, error) {
	ctx, span := e.tracer.Start(ctx, "workflow.simulate", trace.WithAttributes(
		attribute.String("scenario.id", scenarioID),
		attribute.String("http.method", req.Method),
		attribute.String("http.path", req.Path),
		attribute.Bool("simulate.dry_run", opts.DryRun),
	))
	defer span.End()

	out := &SimulateResult{}
	err := e.withLock(ctx, scenarioID, func(ctx context.Context) error {
		doc, err := e.load(ctx, scenarioID, !opts.DryRun)
		if err != nil {
			return err
		}
		mc := engine.NewMatchContext(req.input(nil), doc.State, doc.Tables)

		m, tr, err := e.router.FindMatching(ctx, scenarioID, req.Path, req.Method, mc)
		out.Trace = tr
		if errors.Is(err, routing.ErrNoMatch) {
			telemetry.WorkflowRequests.WithLabelValues(telemetry.OutcomeNoMatch).Inc()
			out.Response = noMatchResponse(req)
			return nil
		}
		if err != nil {
			return err
		}

		for k, v := range m.Params {
			mc.Input.Params[k] = v
		}
		res, err := e.run(ctx, scenarioID, m.Transition, mc, !opts.DryRun)
		e.finish(span, scenarioID, m.Transition, res, err)
		if err != nil {
			return err
		}
		out.Response = res.response
		out.Persisted = res.persisted
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
