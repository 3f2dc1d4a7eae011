package store

import (
	"context"
	"errors"
	"fmt"
	"io"

	mydb "github.com/TimurManjosov/mockflow/internal/db"
)

// NewStore creates a new store based on the given store type.
// Supported types: "memory", "postgres", "sqlite". For sqlite, dsn is the
// database file path.
func NewStore(ctx context.Context, storeType, dsn string) (Store, error) {
	switch storeType {
	case "memory":
		return NewMemoryStore(), nil
	case "postgres":
		pool, err := mydb.NewPool(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}
		pg := NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	case "sqlite":
		s, err := NewSQLiteStore(dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", storeType)
	}
}

// StateCloser is a StateStore that owns resources.
type StateCloser interface {
	StateStore
	Close() error
}

// splitStore keeps definitions in one Store and state documents in another.
type splitStore struct {
	Store
	state StateCloser
}

// WithStateStore routes GetState/UpsertState/DeleteState to state while every
// other operation goes to base.
func WithStateStore(base Store, state StateCloser) Store {
	return &splitStore{Store: base, state: state}
}

func (s *splitStore) GetState(ctx context.Context, scenarioID string) (*Document, error) {
	return s.state.GetState(ctx, scenarioID)
}

func (s *splitStore) UpsertState(ctx context.Context, scenarioID string, doc Document) error {
	return s.state.UpsertState(ctx, scenarioID, doc)
}

func (s *splitStore) DeleteState(ctx context.Context, scenarioID string) error {
	return s.state.DeleteState(ctx, scenarioID)
}

func (s *splitStore) DeleteScenario(ctx context.Context, id string) error {
	if err := s.Store.DeleteScenario(ctx, id); err != nil {
		return err
	}
	return s.state.DeleteState(ctx, id)
}

func (s *splitStore) Close() error {
	return errors.Join(s.Store.Close(), s.state.Close())
}

// StateLister is a StateStore that can enumerate the scenarios it holds
// documents for.
type StateLister interface {
	ListStates(ctx context.Context) ([]string, error)
}

// PruneOrphanStates deletes state documents whose scenario no longer exists in
// the definition store. It only acts on stores built by WithStateStore over a
// StateLister, where the two can drift apart, and reports how many documents
// it removed.
func PruneOrphanStates(ctx context.Context, s Store) (int, error) {
	split, ok := s.(*splitStore)
	if !ok {
		return 0, nil
	}
	lister, ok := split.state.(StateLister)
	if !ok {
		return 0, nil
	}
	ids, err := lister.ListStates(ctx)
	if err != nil {
		return 0, err
	}
	pruned := 0
	for _, id := range ids {
		_, err := split.Store.GetScenario(ctx, id)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrScenarioNotFound) {
			return pruned, fmt.Errorf("prune state %s: %w", id, err)
		}
		if err := split.state.DeleteState(ctx, id); err != nil {
			return pruned, err
		}
		pruned++
	}
	return pruned, nil
}

// closingStore closes extra resources after the wrapped store.
type closingStore struct {
	Store
	extra []io.Closer
}

// WithClosers returns a Store whose Close also closes every c, for clients
// shared with components that do not own them.
func WithClosers(base Store, c ...io.Closer) Store {
	if len(c) == 0 {
		return base
	}
	return &closingStore{Store: base, extra: c}
}

func (s *closingStore) Close() error {
	errs := []error{s.Store.Close()}
	for _, c := range s.extra {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
