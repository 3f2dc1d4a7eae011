package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "mockflow:"

// RedisStateStore implements StateStore on Redis. Each document is a JSON
// string under <prefix>state:<scenarioID>; an index set tracks known ids.
type RedisStateStore struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisStateStore.
type RedisOption func(*RedisStateStore)

// WithRedisTTL expires idle documents after ttl. Zero keeps them forever.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStateStore) {
		s.ttl = ttl
	}
}

// WithRedisPrefix sets the key prefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStateStore) {
		s.prefix = prefix
	}
}

// NewRedisClient builds a go-redis client for the given address.
func NewRedisClient(addr, password string, db int) *backend.Client {
	return backend.NewClient(&backend.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// NewRedisStateStore wraps an existing client.
func NewRedisStateStore(client *backend.Client, opts ...RedisOption) *RedisStateStore {
	s := &RedisStateStore{client: client, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStateStore) key(scenarioID string) string {
	return s.prefix + "state:" + scenarioID
}

func (s *RedisStateStore) indexKey() string {
	return s.prefix + "state-index"
}

// GetState loads the scenario's document.
func (s *RedisStateStore) GetState(ctx context.Context, scenarioID string) (*Document, error) {
	val, err := s.client.Get(ctx, s.key(scenarioID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, ErrStateNotFound
		}
		return nil, fmt.Errorf("get state from redis: %w", err)
	}

	var rec redisDocument
	if err := json.Unmarshal(val, &rec); err != nil {
		return nil, fmt.Errorf("decode state document: %w", err)
	}
	doc := Document{State: rec.State, Tables: rec.Tables}.Clone()
	doc.UpdatedAt = rec.UpdatedAt
	return &doc, nil
}

// UpsertState overwrites the scenario's document and records it in the index.
func (s *RedisStateStore) UpsertState(ctx context.Context, scenarioID string, doc Document) error {
	clean := doc.Clone()
	data, err := json.Marshal(redisDocument{State: clean.State, Tables: clean.Tables, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode state document: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(scenarioID), data, s.ttl)
	pipe.SAdd(ctx, s.indexKey(), scenarioID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save state to redis: %w", err)
	}
	return nil
}

// DeleteState removes the document; missing keys are ignored.
func (s *RedisStateStore) DeleteState(ctx context.Context, scenarioID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(scenarioID))
	pipe.SRem(ctx, s.indexKey(), scenarioID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete state from redis: %w", err)
	}
	return nil
}

// ListStates returns the ids of scenarios with a live document. Ids whose
// key has expired are pruned from the index.
func (s *RedisStateStore) ListStates(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	live := make([]string, 0, len(ids))
	for _, id := range ids {
		n, err := s.client.Exists(ctx, s.key(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("list states: %w", err)
		}
		if n == 0 {
			s.client.SRem(ctx, s.indexKey(), id)
			continue
		}
		live = append(live, id)
	}
	return live, nil
}

// Close closes the redis client.
func (s *RedisStateStore) Close() error {
	return s.client.Close()
}

type redisDocument struct {
	State     map[string]any   `json:"state"`
	Tables    map[string][]any `json:"tables"`
	UpdatedAt time.Time        `json:"updatedAt"`
}
