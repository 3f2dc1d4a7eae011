package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"runtime"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchemaVersion = 1

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS scenarios (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS transitions (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	scenario_id TEXT NOT NULL REFERENCES scenarios(id) ON DELETE CASCADE,
	name        TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	path        TEXT NOT NULL,
	method      TEXT NOT NULL,
	conditions  TEXT NOT NULL,
	effects     TEXT NOT NULL,
	response    TEXT NOT NULL,
	meta        TEXT,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transitions_route ON transitions (scenario_id, method, path);

CREATE TABLE IF NOT EXISTS scenario_states (
	scenario_id TEXT PRIMARY KEY,
	document    TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
`

// SQLiteStore implements Store using SQLite in WAL mode, with a single write
// connection and a separate read pool.
type SQLiteStore struct {
	readDB  *sql.DB
	writeDB *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and applies the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"

	writeDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open write db: %w", err)
	}
	writeDB.SetMaxOpenConns(1)
	writeDB.SetMaxIdleConns(1)

	if err := runSQLiteMigrations(writeDB); err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	readDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("open read db: %w", err)
	}
	readDB.SetMaxOpenConns(runtime.NumCPU())
	readDB.SetMaxIdleConns(runtime.NumCPU())

	return &SQLiteStore{readDB: readDB, writeDB: writeDB}, nil
}

func runSQLiteMigrations(db *sql.DB) error {
	var hasSchemaTbl int
	if err := db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='schema_version'`).Scan(&hasSchemaTbl); err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if hasSchemaTbl == 0 {
		if _, err := db.Exec(sqliteSchema); err != nil {
			return fmt.Errorf("apply base schema: %w", err)
		}
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, sqliteSchemaVersion); err != nil {
			return fmt.Errorf("stamp schema version: %w", err)
		}
		return nil
	}

	var current int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current > sqliteSchemaVersion {
		return fmt.Errorf("database schema v%d is newer than supported v%d", current, sqliteSchemaVersion)
	}
	return nil
}

// Close checkpoints the WAL and closes both pools.
func (s *SQLiteStore) Close() error {
	s.readDB.Close()
	s.writeDB.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.writeDB.Close()
}

const sqliteTimeFormat = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeFormat)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(sqliteTimeFormat, s)
	return t
}

// ListScenarios returns all scenarios ordered by id.
func (s *SQLiteStore) ListScenarios(ctx context.Context) ([]Scenario, error) {
	rows, err := s.readDB.QueryContext(ctx, `SELECT id, name, description, created_at, updated_at FROM scenarios ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]Scenario, 0)
	for rows.Next() {
		sc, err := scanScenario(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sc)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScenario(r rowScanner) (Scenario, error) {
	var (
		sc               Scenario
		created, updated string
	)
	if err := r.Scan(&sc.ID, &sc.Name, &sc.Description, &created, &updated); err != nil {
		return Scenario{}, err
	}
	sc.CreatedAt = parseTime(created)
	sc.UpdatedAt = parseTime(updated)
	return sc, nil
}

// GetScenario retrieves a scenario by id.
func (s *SQLiteStore) GetScenario(ctx context.Context, id string) (*Scenario, error) {
	sc, err := scanScenario(s.readDB.QueryRowContext(ctx,
		`SELECT id, name, description, created_at, updated_at FROM scenarios WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrScenarioNotFound
		}
		return nil, err
	}
	return &sc, nil
}

// UpsertScenario creates or updates a scenario.
func (s *SQLiteStore) UpsertScenario(ctx context.Context, sc Scenario) (*Scenario, error) {
	now := formatTime(time.Now())
	var created, updated string
	err := s.writeDB.QueryRowContext(ctx, `
		INSERT INTO scenarios (id, name, description, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, description = excluded.description, updated_at = excluded.updated_at
		RETURNING created_at, updated_at`,
		sc.ID, sc.Name, sc.Description, now, now,
	).Scan(&created, &updated)
	if err != nil {
		return nil, err
	}
	sc.CreatedAt = parseTime(created)
	sc.UpdatedAt = parseTime(updated)
	return &sc, nil
}

// DeleteScenario removes a scenario, cascading to its transitions and state.
func (s *SQLiteStore) DeleteScenario(ctx context.Context, id string) error {
	tx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM scenarios WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrScenarioNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM scenario_states WHERE scenario_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// FindByExactPathMethod returns a scenario's transitions with this literal path.
func (s *SQLiteStore) FindByExactPathMethod(ctx context.Context, scenarioID, path, method string) ([]Transition, error) {
	return s.queryTransitions(ctx, `WHERE scenario_id = ? AND path = ? AND upper(method) = upper(?)`, scenarioID, path, method)
}

// FindByScenarioAndMethod returns a scenario's transitions for method.
func (s *SQLiteStore) FindByScenarioAndMethod(ctx context.Context, scenarioID, method string) ([]Transition, error) {
	return s.queryTransitions(ctx, `WHERE scenario_id = ? AND upper(method) = upper(?)`, scenarioID, method)
}

// FindAllByExactPathMethod is FindByExactPathMethod across all scenarios.
func (s *SQLiteStore) FindAllByExactPathMethod(ctx context.Context, path, method string) ([]Transition, error) {
	return s.queryTransitions(ctx, `WHERE path = ? AND upper(method) = upper(?)`, path, method)
}

// FindAllByMethod is FindByScenarioAndMethod across all scenarios.
func (s *SQLiteStore) FindAllByMethod(ctx context.Context, method string) ([]Transition, error) {
	return s.queryTransitions(ctx, `WHERE upper(method) = upper(?)`, method)
}

// ListTransitions returns a scenario's transitions in creation order.
func (s *SQLiteStore) ListTransitions(ctx context.Context, scenarioID string) ([]Transition, error) {
	if _, err := s.GetScenario(ctx, scenarioID); err != nil {
		return nil, err
	}
	return s.queryTransitions(ctx, `WHERE scenario_id = ?`, scenarioID)
}

// GetTransition retrieves one transition of a scenario.
func (s *SQLiteStore) GetTransition(ctx context.Context, scenarioID, id string) (*Transition, error) {
	ts, err := s.queryTransitions(ctx, `WHERE scenario_id = ? AND id = ?`, scenarioID, id)
	if err != nil {
		return nil, err
	}
	if len(ts) == 0 {
		return nil, ErrTransitionNotFound
	}
	return &ts[0], nil
}

// CreateTransition inserts a transition; seq is the AUTOINCREMENT row id.
func (s *SQLiteStore) CreateTransition(ctx context.Context, t Transition) (*Transition, error) {
	if _, err := s.GetScenario(ctx, t.ScenarioID); err != nil {
		return nil, err
	}
	normalizeTransition(&t)
	enc, err := encodeTransition(t)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	err = s.writeDB.QueryRowContext(ctx, `
		INSERT INTO transitions (id, scenario_id, name, description, path, method, conditions, effects, response, meta, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING seq`,
		t.ID, t.ScenarioID, t.Name, t.Description, t.Path, t.Method,
		string(enc.conditions), string(enc.effects), string(enc.response), nullableText(enc.meta),
		formatTime(now), formatTime(now),
	).Scan(&t.Seq)
	if err != nil {
		return nil, err
	}
	t.CreatedAt = parseTime(formatTime(now))
	t.UpdatedAt = t.CreatedAt
	return &t, nil
}

// UpdateTransition replaces a transition's definition.
func (s *SQLiteStore) UpdateTransition(ctx context.Context, t Transition) (*Transition, error) {
	normalizeTransition(&t)
	enc, err := encodeTransition(t)
	if err != nil {
		return nil, err
	}
	var created, updated string
	err = s.writeDB.QueryRowContext(ctx, `
		UPDATE transitions SET name = ?, description = ?, path = ?, method = ?,
			conditions = ?, effects = ?, response = ?, meta = ?, updated_at = ?
		WHERE scenario_id = ? AND id = ?
		RETURNING seq, created_at, updated_at`,
		t.Name, t.Description, t.Path, t.Method,
		string(enc.conditions), string(enc.effects), string(enc.response), nullableText(enc.meta),
		formatTime(time.Now()), t.ScenarioID, t.ID,
	).Scan(&t.Seq, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransitionNotFound
		}
		return nil, err
	}
	t.CreatedAt = parseTime(created)
	t.UpdatedAt = parseTime(updated)
	return &t, nil
}

// DeleteTransition removes a transition.
func (s *SQLiteStore) DeleteTransition(ctx context.Context, scenarioID, id string) error {
	res, err := s.writeDB.ExecContext(ctx, `DELETE FROM transitions WHERE scenario_id = ? AND id = ?`, scenarioID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTransitionNotFound
	}
	return nil
}

// GetState loads the scenario's document.
func (s *SQLiteStore) GetState(ctx context.Context, scenarioID string) (*Document, error) {
	var raw, updated string
	err := s.readDB.QueryRowContext(ctx,
		`SELECT document, updated_at FROM scenario_states WHERE scenario_id = ?`, scenarioID,
	).Scan(&raw, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStateNotFound
		}
		return nil, err
	}
	doc, err := decodeDocument([]byte(raw))
	if err != nil {
		return nil, err
	}
	doc.UpdatedAt = parseTime(updated)
	return &doc, nil
}

// UpsertState overwrites the scenario's document.
func (s *SQLiteStore) UpsertState(ctx context.Context, scenarioID string, doc Document) error {
	raw, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	_, err = s.writeDB.ExecContext(ctx, `
		INSERT INTO scenario_states (scenario_id, document, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (scenario_id) DO UPDATE SET document = excluded.document, updated_at = excluded.updated_at`,
		scenarioID, string(raw), formatTime(time.Now()))
	return err
}

// DeleteState removes the scenario's document; missing rows are ignored.
func (s *SQLiteStore) DeleteState(ctx context.Context, scenarioID string) error {
	_, err := s.writeDB.ExecContext(ctx, `DELETE FROM scenario_states WHERE scenario_id = ?`, scenarioID)
	return err
}

func (s *SQLiteStore) queryTransitions(ctx context.Context, where string, args ...any) ([]Transition, error) {
	rows, err := s.readDB.QueryContext(ctx, `SELECT `+transitionColumns+` FROM transitions `+where+` ORDER BY seq`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]Transition, 0)
	for rows.Next() {
		var (
			t                         Transition
			conditions, effects, resp string
			meta                      sql.NullString
			created, updated          string
		)
		if err := rows.Scan(&t.ID, &t.Seq, &t.ScenarioID, &t.Name, &t.Description, &t.Path, &t.Method,
			&conditions, &effects, &resp, &meta, &created, &updated); err != nil {
			return nil, err
		}
		enc := encodedTransition{conditions: []byte(conditions), effects: []byte(effects), response: []byte(resp)}
		if meta.Valid {
			enc.meta = []byte(meta.String)
		}
		if err := enc.decodeInto(&t); err != nil {
			return nil, err
		}
		t.CreatedAt = parseTime(created)
		t.UpdatedAt = parseTime(updated)
		result = append(result, t)
	}
	return result, rows.Err()
}

func nullableText(b []byte) sql.NullString {
	if b == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
