// Package catalog reads and writes scenario definitions as YAML and applies
// them to a store.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/TimurManjosov/mockflow/internal/store"
)

// Catalog is the on-disk form of a set of scenarios.
type Catalog struct {
	Scenarios []Scenario `yaml:"scenarios"`
}

// Scenario is a scenario together with its transitions in creation order.
type Scenario struct {
	store.Scenario `yaml:",inline"`
	Transitions    []store.Transition `yaml:"transitions,omitempty"`
}

// Target is the part of a store that Apply and Export use.
type Target interface {
	store.ScenarioRepository
	store.TransitionManager
}

// Result counts what Apply wrote.
type Result struct {
	Scenarios   int `json:"scenarios"`
	Transitions int `json:"transitions"`
	Replaced    int `json:"replaced"`
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Marshal encodes c as YAML. Conditions and effects keep their authored syntax.
func Marshal(c *Catalog) ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode catalog: %w", err)
	}
	return out, nil
}

// Validate checks every scenario id and transition. Duplicate scenario ids are
// rejected.
func (c *Catalog) Validate() error {
	seen := make(map[string]struct{}, len(c.Scenarios))
	for i, s := range c.Scenarios {
		if err := store.ValidateScenarioID(s.ID); err != nil {
			return fmt.Errorf("scenarios[%d]: %w", i, err)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("scenarios[%d]: duplicate id %q", i, s.ID)
		}
		seen[s.ID] = struct{}{}
		for j, t := range s.Transitions {
			if err := t.Validate(); err != nil {
				return fmt.Errorf("scenarios[%d] (%s) transitions[%d]: %w", i, s.ID, j, err)
			}
		}
	}
	return nil
}

// Export reads every scenario and its transitions from src.
func Export(ctx context.Context, src Target) (*Catalog, error) {
	scenarios, err := src.ListScenarios(ctx)
	if err != nil {
		return nil, fmt.Errorf("list scenarios: %w", err)
	}
	c := &Catalog{Scenarios: make([]Scenario, 0, len(scenarios))}
	for _, s := range scenarios {
		ts, err := src.ListTransitions(ctx, s.ID)
		if err != nil {
			return nil, fmt.Errorf("list transitions for %s: %w", s.ID, err)
		}
		c.Scenarios = append(c.Scenarios, Scenario{Scenario: s, Transitions: ts})
	}
	return c, nil
}

// Apply upserts every scenario in c and replaces its transitions with the
// catalog's, preserving their order. Scenario state is left alone.
//
// New transitions are created before the old ones are deleted. Routing picks
// the earliest created candidate, so requests racing a reload keep matching
// the previous definitions until the switch and never see an empty scenario.
// If a create fails, the transitions created so far are removed and the old
// set stays in place.
func Apply(ctx context.Context, dst Target, c *Catalog) (Result, error) {
	var res Result
	for _, s := range c.Scenarios {
		if _, err := dst.UpsertScenario(ctx, s.Scenario); err != nil {
			return res, fmt.Errorf("upsert scenario %s: %w", s.ID, err)
		}
		res.Scenarios++

		existing, err := dst.ListTransitions(ctx, s.ID)
		if err != nil && !errors.Is(err, store.ErrScenarioNotFound) {
			return res, fmt.Errorf("list transitions for %s: %w", s.ID, err)
		}

		created := make([]string, 0, len(s.Transitions))
		for _, t := range s.Transitions {
			t.ScenarioID = s.ID
			// ids are reassigned so a catalog can be applied next to its source
			t.ID = ""
			nt, err := dst.CreateTransition(ctx, t)
			if err != nil {
				discard(ctx, dst, s.ID, created)
				return res, fmt.Errorf("create transition %s %s in %s: %w", t.Method, t.Path, s.ID, err)
			}
			created = append(created, nt.ID)
		}
		res.Transitions += len(created)

		for _, t := range existing {
			if err := dst.DeleteTransition(ctx, s.ID, t.ID); err != nil && !errors.Is(err, store.ErrTransitionNotFound) {
				return res, fmt.Errorf("delete transition %s: %w", t.ID, err)
			}
			res.Replaced++
		}
	}
	return res, nil
}

func discard(ctx context.Context, dst Target, scenarioID string, ids []string) {
	for _, id := range ids {
		_ = dst.DeleteTransition(ctx, scenarioID, id)
	}
}
