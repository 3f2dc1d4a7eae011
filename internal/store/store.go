package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/TimurManjosov/mockflow/internal/resolve"
	"github.com/TimurManjosov/mockflow/internal/rules"
)

// Sentinel errors shared by every adapter.
var (
	ErrStateNotFound      = errors.New("scenario state not found")
	ErrScenarioNotFound   = errors.New("scenario not found")
	ErrTransitionNotFound = errors.New("transition not found")
)

// ScenarioRepository manages scenario records.
type ScenarioRepository interface {
	// ListScenarios returns every scenario ordered by id.
	ListScenarios(ctx context.Context) ([]Scenario, error)

	// GetScenario returns ErrScenarioNotFound when id is unknown.
	GetScenario(ctx context.Context, id string) (*Scenario, error)

	// UpsertScenario creates or updates a scenario. CreatedAt is kept on update.
	UpsertScenario(ctx context.Context, s Scenario) (*Scenario, error)

	// DeleteScenario removes the scenario, its transitions and its state.
	// Deleting an unknown scenario returns ErrScenarioNotFound.
	DeleteScenario(ctx context.Context, id string) error
}

// TransitionRepository is the read side used by routing. Every method returns
// transitions in creation order (ascending Seq). Methods compare
// case-insensitively.
type TransitionRepository interface {
	FindByExactPathMethod(ctx context.Context, scenarioID, path, method string) ([]Transition, error)
	FindByScenarioAndMethod(ctx context.Context, scenarioID, method string) ([]Transition, error)
	FindAllByExactPathMethod(ctx context.Context, path, method string) ([]Transition, error)
	FindAllByMethod(ctx context.Context, method string) ([]Transition, error)
}

// TransitionManager is the write side used by the management API and catalog.
type TransitionManager interface {
	// ListTransitions returns a scenario's transitions in creation order.
	ListTransitions(ctx context.Context, scenarioID string) ([]Transition, error)

	GetTransition(ctx context.Context, scenarioID, id string) (*Transition, error)

	// CreateTransition assigns ID (when empty), Seq and timestamps. The scenario
	// must exist.
	CreateTransition(ctx context.Context, t Transition) (*Transition, error)

	// UpdateTransition replaces the definition, keeping ID, Seq and CreatedAt.
	UpdateTransition(ctx context.Context, t Transition) (*Transition, error)

	DeleteTransition(ctx context.Context, scenarioID, id string) error
}

// StateStore persists one Document per scenario id.
type StateStore interface {
	// GetState returns ErrStateNotFound when no document exists.
	GetState(ctx context.Context, scenarioID string) (*Document, error)

	// UpsertState overwrites the whole document.
	UpsertState(ctx context.Context, scenarioID string, doc Document) error

	// DeleteState is idempotent.
	DeleteState(ctx context.Context, scenarioID string) error
}

// Store is the full persistence surface. Implementations must be safe for
// concurrent use.
type Store interface {
	ScenarioRepository
	TransitionRepository
	TransitionManager
	StateStore

	// Close releases any resources held by the store.
	Close() error
}

// Scenario groups transitions that share one state document.
type Scenario struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name,omitempty"`
	Description string    `json:"description" yaml:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt" yaml:"-"`
	UpdatedAt   time.Time `json:"updatedAt" yaml:"-"`
}

// Response is the response template of a transition.
type Response struct {
	Status  int               `json:"status" yaml:"status,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body    any               `json:"body" yaml:"body,omitempty"`
}

// Transition is one routed rule: guard, effects and response template.
type Transition struct {
	ID          string           `json:"id" yaml:"id,omitempty"`
	ScenarioID  string           `json:"scenarioId" yaml:"-"`
	Name        string           `json:"name" yaml:"name,omitempty"`
	Description string           `json:"description" yaml:"description,omitempty"`
	Path        string           `json:"path" yaml:"path"`
	Method      string           `json:"method" yaml:"method"`
	Conditions  rules.Conditions `json:"conditions" yaml:"conditions,omitempty"`
	Effects     rules.Effects    `json:"effects" yaml:"effects,omitempty"`
	Response    Response         `json:"response" yaml:"response"`
	Meta        map[string]any   `json:"meta,omitempty" yaml:"meta,omitempty"`
	Seq         int64            `json:"seq" yaml:"-"`
	CreatedAt   time.Time        `json:"createdAt" yaml:"-"`
	UpdatedAt   time.Time        `json:"updatedAt" yaml:"-"`
}

// Document is the persisted scenario state.
type Document struct {
	State     map[string]any   `json:"state"`
	Tables    map[string][]any `json:"tables"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// NewDocument returns an empty document.
func NewDocument() Document {
	return Document{State: map[string]any{}, Tables: map[string][]any{}}
}

// Clone deep-copies the document; nil maps become empty.
func (d Document) Clone() Document {
	return Document{
		State:     resolve.CloneMap(d.State),
		Tables:    resolve.CloneTables(d.Tables),
		UpdatedAt: d.UpdatedAt,
	}
}

// ETag is a weak entity tag over state and tables. UpdatedAt is excluded so
// equal content always yields the same tag.
func (d Document) ETag() string {
	blob, _ := json.Marshal(struct {
		State  map[string]any   `json:"state"`
		Tables map[string][]any `json:"tables"`
	}{d.State, d.Tables})
	return fmt.Sprintf(`W/"%016x"`, xxhash.Sum64(blob))
}

// normalizeTransition fills identity and canonical casing before a write.
func normalizeTransition(t *Transition) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Method = strings.ToUpper(t.Method)
}

func sameMethod(a, b string) bool {
	return strings.EqualFold(a, b)
}
