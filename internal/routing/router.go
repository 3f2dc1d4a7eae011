// Package routing selects the transition that handles a request.
//
// Two selection modes exist and are kept as separate code paths: Find is
// condition-blind (path and method only), FindMatching also evaluates guards
// on exact-path candidates and is used by simulation.
package routing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/TimurManjosov/mockflow/internal/engine"
	"github.com/TimurManjosov/mockflow/internal/store"
)

// ErrNoMatch is returned when no transition matches the path and method.
var ErrNoMatch = errors.New("no matching transition")

// Match is a selected transition with the parameters bound from the path.
type Match struct {
	Transition store.Transition
	Params     map[string]string
}

// Router resolves requests against a TransitionRepository.
type Router struct {
	repo store.TransitionRepository
}

// New creates a router.
func New(repo store.TransitionRepository) *Router {
	return &Router{repo: repo}
}

// Find selects a scenario's transition: an exact (path, method) match wins
// with empty params, otherwise the first parameterized pattern in creation
// order. Conditions are not consulted.
func (r *Router) Find(ctx context.Context, scenarioID, path, method string) (*Match, error) {
	exact, err := r.repo.FindByExactPathMethod(ctx, scenarioID, path, method)
	if err != nil {
		return nil, fmt.Errorf("find exact transition: %w", err)
	}
	if len(exact) > 0 {
		return &Match{Transition: exact[0], Params: map[string]string{}}, nil
	}

	candidates, err := r.repo.FindByScenarioAndMethod(ctx, scenarioID, method)
	if err != nil {
		return nil, fmt.Errorf("find transitions by method: %w", err)
	}
	return firstPattern(candidates, path)
}

// FindGlobal is Find across every scenario. The returned transition carries
// the scenario whose state it operates on.
func (r *Router) FindGlobal(ctx context.Context, path, method string) (*Match, error) {
	exact, err := r.repo.FindAllByExactPathMethod(ctx, path, method)
	if err != nil {
		return nil, fmt.Errorf("find exact transition: %w", err)
	}
	if len(exact) > 0 {
		return &Match{Transition: exact[0], Params: map[string]string{}}, nil
	}

	candidates, err := r.repo.FindAllByMethod(ctx, method)
	if err != nil {
		return nil, fmt.Errorf("find transitions by method: %w", err)
	}
	return firstPattern(candidates, path)
}

func firstPattern(candidates []store.Transition, path string) (*Match, error) {
	for _, t := range candidates {
		if params, ok := MatchPath(t.Path, path); ok {
			return &Match{Transition: t, Params: params}, nil
		}
	}
	return nil, ErrNoMatch
}

// MatchPath matches path against a pattern segment by segment. Segments of
// the pattern that start with ':' bind the corresponding path segment; all
// others must be equal. Segment counts must agree.
func MatchPath(pattern, path string) (map[string]string, bool) {
	want := strings.Split(pattern, "/")
	got := strings.Split(path, "/")
	if len(want) != len(got) {
		return nil, false
	}

	params := make(map[string]string)
	for i, seg := range want {
		if strings.HasPrefix(seg, ":") {
			params[strings.TrimPrefix(seg, ":")] = got[i]
			continue
		}
		if seg != got[i] {
			return nil, false
		}
	}
	return params, true
}

// Stage names the routing step that examined a candidate.
type Stage string

const (
	StageExact   Stage = "exact"
	StagePattern Stage = "pattern"
)

// Candidate records how one transition fared during condition-aware routing.
type Candidate struct {
	TransitionID     string            `json:"transitionId"`
	Name             string            `json:"name,omitempty"`
	Path             string            `json:"path"`
	Stage            Stage             `json:"stage"`
	RouteMatched     bool              `json:"routeMatched"`
	ConditionsPassed *bool             `json:"conditionsPassed,omitempty"`
	Params           map[string]string `json:"params,omitempty"`
}

// Trace is the record of a FindMatching call.
type Trace struct {
	Method     string      `json:"method"`
	Path       string      `json:"path"`
	MatchedID  string      `json:"matchedId,omitempty"`
	Candidates []Candidate `json:"candidates"`
}

// FindMatching is the condition-aware variant used for simulation. Exact-path
// candidates are tried in creation order and skipped when their guard fails
// against mc; if none passes, the condition-blind pattern scan runs. mc is
// only read.
func (r *Router) FindMatching(ctx context.Context, scenarioID, path, method string, mc *engine.MatchContext) (*Match, *Trace, error) {
	trace := &Trace{Method: method, Path: path, Candidates: make([]Candidate, 0)}
	if mc == nil {
		mc = engine.NewMatchContext(engine.Input{}, nil, nil)
	}

	exact, err := r.repo.FindByExactPathMethod(ctx, scenarioID, path, method)
	if err != nil {
		return nil, trace, fmt.Errorf("find exact transition: %w", err)
	}
	for _, t := range exact {
		probe := *mc
		probe.Input.Params = map[string]string{}
		passed := engine.Matches(t.Conditions, &probe)
		trace.Candidates = append(trace.Candidates, Candidate{
			TransitionID:     t.ID,
			Name:             t.Name,
			Path:             t.Path,
			Stage:            StageExact,
			RouteMatched:     true,
			ConditionsPassed: &passed,
		})
		if passed {
			trace.MatchedID = t.ID
			return &Match{Transition: t, Params: map[string]string{}}, trace, nil
		}
	}

	candidates, err := r.repo.FindByScenarioAndMethod(ctx, scenarioID, method)
	if err != nil {
		return nil, trace, fmt.Errorf("find transitions by method: %w", err)
	}
	for _, t := range candidates {
		params, ok := MatchPath(t.Path, path)
		trace.Candidates = append(trace.Candidates, Candidate{
			TransitionID: t.ID,
			Name:         t.Name,
			Path:         t.Path,
			Stage:        StagePattern,
			RouteMatched: ok,
			Params:       params,
		})
		if ok {
			trace.MatchedID = t.ID
			return &Match{Transition: t, Params: params}, trace, nil
		}
	}
	return nil, trace, ErrNoMatch
}
