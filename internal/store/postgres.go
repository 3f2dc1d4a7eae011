package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// postgresSchema uses json rather than jsonb for authored documents so that
// legacy effect maps keep their key order.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS scenarios (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS transitions (
	id          TEXT PRIMARY KEY,
	seq         BIGSERIAL UNIQUE,
	scenario_id TEXT NOT NULL REFERENCES scenarios(id) ON DELETE CASCADE,
	name        TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	path        TEXT NOT NULL,
	method      TEXT NOT NULL,
	conditions  JSON NOT NULL DEFAULT '{}',
	effects     JSON NOT NULL DEFAULT '[]',
	response    JSON NOT NULL DEFAULT '{}',
	meta        JSON,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS transitions_route_idx ON transitions (scenario_id, method, path);

CREATE TABLE IF NOT EXISTS scenario_states (
	scenario_id TEXT PRIMARY KEY,
	document    JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const transitionColumns = `id, seq, scenario_id, name, description, path, method,
	conditions, effects, response, meta, created_at, updated_at`

// PostgresStore is a PostgreSQL implementation of the Store interface.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the schema if it does not exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("apply postgres schema: %w", err)
	}
	return nil
}

// ListScenarios returns all scenarios ordered by id.
func (p *PostgresStore) ListScenarios(ctx context.Context) ([]Scenario, error) {
	rows, err := p.pool.Query(ctx, `SELECT id, name, description, created_at, updated_at FROM scenarios ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]Scenario, 0)
	for rows.Next() {
		var s Scenario
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// GetScenario retrieves a scenario by id.
func (p *PostgresStore) GetScenario(ctx context.Context, id string) (*Scenario, error) {
	var s Scenario
	err := p.pool.QueryRow(ctx,
		`SELECT id, name, description, created_at, updated_at FROM scenarios WHERE id = $1`, id,
	).Scan(&s.ID, &s.Name, &s.Description, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScenarioNotFound
		}
		return nil, err
	}
	return &s, nil
}

// UpsertScenario creates or updates a scenario.
func (p *PostgresStore) UpsertScenario(ctx context.Context, s Scenario) (*Scenario, error) {
	err := p.pool.QueryRow(ctx, `
		INSERT INTO scenarios (id, name, description) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description, updated_at = now()
		RETURNING created_at, updated_at`,
		s.ID, s.Name, s.Description,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteScenario removes a scenario; transitions cascade and the state row is
// deleted in the same transaction.
func (p *PostgresStore) DeleteScenario(ctx context.Context, id string) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM scenarios WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrScenarioNotFound
	}
	if _, err := tx.Exec(ctx, `DELETE FROM scenario_states WHERE scenario_id = $1`, id); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// FindByExactPathMethod returns a scenario's transitions with this literal path.
func (p *PostgresStore) FindByExactPathMethod(ctx context.Context, scenarioID, path, method string) ([]Transition, error) {
	return p.queryTransitions(ctx,
		`WHERE scenario_id = $1 AND path = $2 AND upper(method) = upper($3)`, scenarioID, path, method)
}

// FindByScenarioAndMethod returns a scenario's transitions for method.
func (p *PostgresStore) FindByScenarioAndMethod(ctx context.Context, scenarioID, method string) ([]Transition, error) {
	return p.queryTransitions(ctx, `WHERE scenario_id = $1 AND upper(method) = upper($2)`, scenarioID, method)
}

// FindAllByExactPathMethod is FindByExactPathMethod across all scenarios.
func (p *PostgresStore) FindAllByExactPathMethod(ctx context.Context, path, method string) ([]Transition, error) {
	return p.queryTransitions(ctx, `WHERE path = $1 AND upper(method) = upper($2)`, path, method)
}

// FindAllByMethod is FindByScenarioAndMethod across all scenarios.
func (p *PostgresStore) FindAllByMethod(ctx context.Context, method string) ([]Transition, error) {
	return p.queryTransitions(ctx, `WHERE upper(method) = upper($1)`, method)
}

// ListTransitions returns a scenario's transitions in creation order.
func (p *PostgresStore) ListTransitions(ctx context.Context, scenarioID string) ([]Transition, error) {
	if _, err := p.GetScenario(ctx, scenarioID); err != nil {
		return nil, err
	}
	return p.queryTransitions(ctx, `WHERE scenario_id = $1`, scenarioID)
}

// GetTransition retrieves one transition of a scenario.
func (p *PostgresStore) GetTransition(ctx context.Context, scenarioID, id string) (*Transition, error) {
	ts, err := p.queryTransitions(ctx, `WHERE scenario_id = $1 AND id = $2`, scenarioID, id)
	if err != nil {
		return nil, err
	}
	if len(ts) == 0 {
		return nil, ErrTransitionNotFound
	}
	return &ts[0], nil
}

// CreateTransition inserts a transition; seq comes from the BIGSERIAL column.
func (p *PostgresStore) CreateTransition(ctx context.Context, t Transition) (*Transition, error) {
	if _, err := p.GetScenario(ctx, t.ScenarioID); err != nil {
		return nil, err
	}
	normalizeTransition(&t)
	enc, err := encodeTransition(t)
	if err != nil {
		return nil, err
	}
	err = p.pool.QueryRow(ctx, `
		INSERT INTO transitions (id, scenario_id, name, description, path, method, conditions, effects, response, meta)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING seq, created_at, updated_at`,
		t.ID, t.ScenarioID, t.Name, t.Description, t.Path, t.Method,
		enc.conditions, enc.effects, enc.response, enc.meta,
	).Scan(&t.Seq, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// UpdateTransition replaces a transition's definition.
func (p *PostgresStore) UpdateTransition(ctx context.Context, t Transition) (*Transition, error) {
	normalizeTransition(&t)
	enc, err := encodeTransition(t)
	if err != nil {
		return nil, err
	}
	err = p.pool.QueryRow(ctx, `
		UPDATE transitions SET name = $3, description = $4, path = $5, method = $6,
			conditions = $7, effects = $8, response = $9, meta = $10, updated_at = now()
		WHERE scenario_id = $1 AND id = $2
		RETURNING seq, created_at, updated_at`,
		t.ScenarioID, t.ID, t.Name, t.Description, t.Path, t.Method,
		enc.conditions, enc.effects, enc.response, enc.meta,
	).Scan(&t.Seq, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransitionNotFound
		}
		return nil, err
	}
	return &t, nil
}

// DeleteTransition removes a transition.
func (p *PostgresStore) DeleteTransition(ctx context.Context, scenarioID, id string) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM transitions WHERE scenario_id = $1 AND id = $2`, scenarioID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTransitionNotFound
	}
	return nil
}

// GetState loads the scenario's document.
func (p *PostgresStore) GetState(ctx context.Context, scenarioID string) (*Document, error) {
	var (
		raw       []byte
		updatedAt time.Time
	)
	err := p.pool.QueryRow(ctx,
		`SELECT document, updated_at FROM scenario_states WHERE scenario_id = $1`, scenarioID,
	).Scan(&raw, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStateNotFound
		}
		return nil, err
	}
	doc, err := decodeDocument(raw)
	if err != nil {
		return nil, err
	}
	doc.UpdatedAt = updatedAt
	return &doc, nil
}

// UpsertState overwrites the scenario's document.
func (p *PostgresStore) UpsertState(ctx context.Context, scenarioID string, doc Document) error {
	raw, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO scenario_states (scenario_id, document, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (scenario_id) DO UPDATE SET document = EXCLUDED.document, updated_at = now()`,
		scenarioID, raw)
	return err
}

// DeleteState removes the scenario's document; missing rows are ignored.
func (p *PostgresStore) DeleteState(ctx context.Context, scenarioID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM scenario_states WHERE scenario_id = $1`, scenarioID)
	return err
}

// Close closes the database connection pool.
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

func (p *PostgresStore) queryTransitions(ctx context.Context, where string, args ...any) ([]Transition, error) {
	rows, err := p.pool.Query(ctx, `SELECT `+transitionColumns+` FROM transitions `+where+` ORDER BY seq`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]Transition, 0)
	for rows.Next() {
		var (
			t   Transition
			enc encodedTransition
		)
		if err := rows.Scan(&t.ID, &t.Seq, &t.ScenarioID, &t.Name, &t.Description, &t.Path, &t.Method,
			&enc.conditions, &enc.effects, &enc.response, &enc.meta, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if err := enc.decodeInto(&t); err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// encodedTransition holds the JSON columns of a transition row.
type encodedTransition struct {
	conditions []byte
	effects    []byte
	response   []byte
	meta       []byte
}

func encodeTransition(t Transition) (encodedTransition, error) {
	var (
		enc encodedTransition
		err error
	)
	if enc.conditions, err = json.Marshal(t.Conditions); err != nil {
		return enc, fmt.Errorf("encode conditions: %w", err)
	}
	if enc.effects, err = json.Marshal(t.Effects); err != nil {
		return enc, fmt.Errorf("encode effects: %w", err)
	}
	if enc.response, err = json.Marshal(t.Response); err != nil {
		return enc, fmt.Errorf("encode response: %w", err)
	}
	if t.Meta != nil {
		if enc.meta, err = json.Marshal(t.Meta); err != nil {
			return enc, fmt.Errorf("encode meta: %w", err)
		}
	}
	return enc, nil
}

func (enc encodedTransition) decodeInto(t *Transition) error {
	if err := json.Unmarshal(enc.conditions, &t.Conditions); err != nil {
		return fmt.Errorf("decode conditions of %s: %w", t.ID, err)
	}
	if err := json.Unmarshal(enc.effects, &t.Effects); err != nil {
		return fmt.Errorf("decode effects of %s: %w", t.ID, err)
	}
	if err := json.Unmarshal(enc.response, &t.Response); err != nil {
		return fmt.Errorf("decode response of %s: %w", t.ID, err)
	}
	if len(enc.meta) > 0 {
		if err := json.Unmarshal(enc.meta, &t.Meta); err != nil {
			return fmt.Errorf("decode meta of %s: %w", t.ID, err)
		}
	}
	return nil
}

// documentRecord is the persisted shape of a Document.
type documentRecord struct {
	State  map[string]any   `json:"state"`
	Tables map[string][]any `json:"tables"`
}

func encodeDocument(doc Document) ([]byte, error) {
	clean := doc.Clone()
	raw, err := json.Marshal(documentRecord{State: clean.State, Tables: clean.Tables})
	if err != nil {
		return nil, fmt.Errorf("encode state document: %w", err)
	}
	return raw, nil
}

func decodeDocument(raw []byte) (Document, error) {
	var rec documentRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Document{}, fmt.Errorf("decode state document: %w", err)
	}
	return Document{State: rec.State, Tables: rec.Tables}.Clone(), nil
}
