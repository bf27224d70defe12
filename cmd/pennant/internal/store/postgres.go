package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/pennant-io/pennant/pkg/flags"
)

const pgMaxRetries = 5

const pgSchema = `
CREATE TABLE IF NOT EXISTS tenant_documents (
    app        TEXT        NOT NULL,
    env        TEXT        NOT NULL,
    doc        JSONB       NOT NULL,
    version    BIGINT      NOT NULL DEFAULT 1,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (app, env)
)`

// PostgresStore persists tenant documents as JSONB rows with a version
// column. Mutations are optimistic: the update is guarded on the version
// read, and a lost race re-reads and retries.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresStore connects to Postgres and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string, logger zerolog.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	return &PostgresStore{
		pool:   pool,
		logger: logger.With().Str("store", "postgres").Logger(),
	}, nil
}

// GetDocument loads the tenant document. Missing rows decode to an empty
// document.
func (s *PostgresStore) GetDocument(ctx context.Context, tenant flags.Tenant) (flags.Document, error) {
	doc, _, err := s.load(ctx, tenant)
	return doc, err
}

func (s *PostgresStore) load(ctx context.Context, tenant flags.Tenant) (flags.Document, int64, error) {
	var (
		data    []byte
		version int64
	)
	err := s.pool.QueryRow(ctx,
		`SELECT doc, version FROM tenant_documents WHERE app = $1 AND env = $2`,
		tenant.App, tenant.Env,
	).Scan(&data, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return flags.NewDocument(), 0, nil
	}
	if err != nil {
		return flags.Document{}, 0, fmt.Errorf("failed to load document %s: %w", tenant.Key(), err)
	}
	doc, err := decodeDocument(data)
	if err != nil {
		return flags.Document{}, 0, err
	}
	return doc, version, nil
}

// Mutate reads the current row, applies fn, and writes back guarded on the
// version it read. Concurrent writers on the same tenant retry.
func (s *PostgresStore) Mutate(ctx context.Context, tenant flags.Tenant, fn MutateFunc) (flags.Document, error) {
	for attempt := 0; attempt < pgMaxRetries; attempt++ {
		current, version, err := s.load(ctx, tenant)
		if err != nil {
			return flags.Document{}, err
		}

		next, err := fn(current)
		if err != nil {
			return flags.Document{}, err
		}
		next.UpdatedAt = time.Now().UTC()

		encoded, err := json.Marshal(next)
		if err != nil {
			return flags.Document{}, fmt.Errorf("failed to encode document %s: %w", tenant.Key(), err)
		}

		var tag pgconn.CommandTag
		if version == 0 {
			tag, err = s.pool.Exec(ctx,
				`INSERT INTO tenant_documents (app, env, doc, version, updated_at)
				 VALUES ($1, $2, $3, 1, $4)
				 ON CONFLICT (app, env) DO NOTHING`,
				tenant.App, tenant.Env, encoded, next.UpdatedAt,
			)
		} else {
			tag, err = s.pool.Exec(ctx,
				`UPDATE tenant_documents
				 SET doc = $3, version = version + 1, updated_at = $4
				 WHERE app = $1 AND env = $2 AND version = $5`,
				tenant.App, tenant.Env, encoded, next.UpdatedAt, version,
			)
		}
		if err != nil {
			return flags.Document{}, fmt.Errorf("failed to write document %s: %w", tenant.Key(), err)
		}
		if tag.RowsAffected() == 1 {
			return next, nil
		}

		s.logger.Debug().Str("tenant", tenant.String()).Int("attempt", attempt+1).
			Msg("Concurrent write detected, retrying")
	}
	return flags.Document{}, fmt.Errorf("%w: tenant %s", ErrConflict, tenant.String())
}

// Ping verifies the Postgres connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
