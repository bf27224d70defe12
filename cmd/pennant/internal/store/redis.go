package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/pennant-io/pennant/pkg/flags"
)

// redisMaxRetries bounds optimistic retries when concurrent writers race on
// the same tenant key.
const redisMaxRetries = 5

// RedisStore persists each tenant document as one JSON value under its
// versioned key. Writes run inside WATCH so concurrent mutations of the
// same tenant retry instead of losing updates.
type RedisStore struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisStore wraps an established Redis client.
func NewRedisStore(client *redis.Client, logger zerolog.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		logger: logger.With().Str("store", "redis").Logger(),
	}
}

// GetDocument fetches and decodes the tenant document. A missing key is an
// empty document, not an error.
func (s *RedisStore) GetDocument(ctx context.Context, tenant flags.Tenant) (flags.Document, error) {
	data, err := s.client.Get(ctx, tenant.Key()).Bytes()
	if errors.Is(err, redis.Nil) {
		return flags.NewDocument(), nil
	}
	if err != nil {
		return flags.Document{}, fmt.Errorf("failed to get document %s: %w", tenant.Key(), err)
	}
	return decodeDocument(data)
}

// Mutate runs fn under WATCH on the tenant key and writes the result in a
// transaction. If another writer touches the key first the whole cycle is
// retried, up to redisMaxRetries times.
func (s *RedisStore) Mutate(ctx context.Context, tenant flags.Tenant, fn MutateFunc) (flags.Document, error) {
	key := tenant.Key()
	var result flags.Document

	txn := func(tx *redis.Tx) error {
		current := flags.NewDocument()
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("failed to get document %s: %w", key, err)
		}
		if err == nil {
			if current, err = decodeDocument(data); err != nil {
				return err
			}
		}

		next, err := fn(current)
		if err != nil {
			return err
		}
		next.UpdatedAt = time.Now().UTC()

		encoded, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to encode document %s: %w", key, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, 0)
			return nil
		})
		if err != nil {
			return err
		}
		result = next
		return nil
	}

	for attempt := 0; attempt < redisMaxRetries; attempt++ {
		err := s.client.Watch(ctx, txn, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			s.logger.Debug().Str("tenant", tenant.String()).Int("attempt", attempt+1).
				Msg("Concurrent write detected, retrying")
			continue
		}
		return flags.Document{}, err
	}
	return flags.Document{}, fmt.Errorf("%w: tenant %s", ErrConflict, tenant.String())
}

// Ping verifies the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func decodeDocument(data []byte) (flags.Document, error) {
	var doc flags.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return flags.Document{}, fmt.Errorf("failed to decode document: %w", err)
	}
	if doc.Flags == nil {
		doc.Flags = make(map[string]flags.Definition)
	}
	if doc.Segments == nil {
		doc.Segments = make(map[string]string)
	}
	return doc, nil
}
