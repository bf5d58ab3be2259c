// Package redis provides a Redis implementation of the registry store.
// Definitions live in one hash per catalog, a second hash carries the name
// index and a third the version index, so hydration and staleness checks are
// single round trips.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/socaity/fastsdk-go/registry/store"
	"github.com/socaity/fastsdk-go/service"
)

// Store is a Redis store.Store implementation.
type Store struct {
	client *redis.Client
	prefix string
}

var _ store.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithPrefix namespaces the Redis keys; defaults to "fastsdk".
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// New creates a Redis store on the provided client.
func New(client *redis.Client, opts ...Option) *Store {
	s := &Store{client: client, prefix: "fastsdk"}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Store) definitionsKey() string { return s.prefix + ":services" }
func (s *Store) namesKey() string       { return s.prefix + ":names" }
func (s *Store) versionsKey() string    { return s.prefix + ":versions" }

// Save stores or replaces a definition and updates both indexes.
func (s *Store) Save(ctx context.Context, def *service.Definition) error {
	payload, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("encode definition %q: %w", def.ID, err)
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.definitionsKey(), def.ID, payload)
	pipe.HSet(ctx, s.versionsKey(), def.ID, def.Version)
	if def.DisplayName != "" {
		pipe.HSet(ctx, s.namesKey(), service.NormalizeName(def.DisplayName), def.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save definition %q: %w", def.ID, err)
	}
	return nil
}

// Get retrieves a definition by id, falling back to the name index.
func (s *Store) Get(ctx context.Context, idOrName string) (*service.Definition, error) {
	payload, err := s.client.HGet(ctx, s.definitionsKey(), idOrName).Result()
	if errors.Is(err, redis.Nil) {
		id, nameErr := s.client.HGet(ctx, s.namesKey(), service.NormalizeName(idOrName)).Result()
		if errors.Is(nameErr, redis.Nil) {
			return nil, store.ErrNotFound
		}
		if nameErr != nil {
			return nil, fmt.Errorf("redis resolve name %q: %w", idOrName, nameErr)
		}
		if payload, err = s.client.HGet(ctx, s.definitionsKey(), id).Result(); errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
	}
	if err != nil {
		return nil, fmt.Errorf("redis get definition %q: %w", idOrName, err)
	}
	var def service.Definition
	if err := json.Unmarshal([]byte(payload), &def); err != nil {
		return nil, fmt.Errorf("decode definition %q: %w", idOrName, err)
	}
	return &def, nil
}

// Delete removes a definition by id together with its index entries.
func (s *Store) Delete(ctx context.Context, id string) error {
	def, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.HDel(ctx, s.definitionsKey(), def.ID)
	pipe.HDel(ctx, s.versionsKey(), def.ID)
	if def.DisplayName != "" {
		pipe.HDel(ctx, s.namesKey(), service.NormalizeName(def.DisplayName))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete definition %q: %w", id, err)
	}
	return nil
}

// List returns every stored definition.
func (s *Store) List(ctx context.Context) ([]*service.Definition, error) {
	entries, err := s.client.HGetAll(ctx, s.definitionsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list definitions: %w", err)
	}
	defs := make([]*service.Definition, 0, len(entries))
	for id, payload := range entries {
		var def service.Definition
		if err := json.Unmarshal([]byte(payload), &def); err != nil {
			return nil, fmt.Errorf("decode definition %q: %w", id, err)
		}
		defs = append(defs, &def)
	}
	return defs, nil
}

// VersionIndex returns the id to spec-hash map from the versions hash.
func (s *Store) VersionIndex(ctx context.Context) (map[string]string, error) {
	index, err := s.client.HGetAll(ctx, s.versionsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis version index: %w", err)
	}
	return index, nil
}
