package store

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/TimurManjosov/mockflow/internal/rules"
)

// ErrInvalidScenarioID is returned for ids that are not URL-safe slugs.
var ErrInvalidScenarioID = errors.New("invalid scenario id")

var scenarioIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,127}$`)

// ValidateScenarioID checks that id can be used as a path segment.
func ValidateScenarioID(id string) error {
	if !scenarioIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q must be 1-128 letters, digits, '-' or '_'", ErrInvalidScenarioID, id)
	}
	return nil
}

// Validate checks a transition's route, guard, effects and response status.
func (t Transition) Validate() error {
	if err := rules.ValidateRoute(t.Method, t.Path); err != nil {
		return err
	}
	if err := rules.ValidateConditions(t.Conditions); err != nil {
		return err
	}
	if err := rules.ValidateEffects(t.Effects); err != nil {
		return err
	}
	return rules.ValidateStatus(t.Response.Status)
}
