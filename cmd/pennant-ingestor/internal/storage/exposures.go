// Package storage writes exposure events into ClickHouse. Events arrive in
// batches from the consumer; each batch becomes one native-protocol insert.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/rs/zerolog"

	"github.com/pennant-io/pennant/pkg/events"
)

const exposureSchema = `
CREATE TABLE IF NOT EXISTS exposure_events (
    date Date,
    evaluated_at DateTime64(3, 'UTC'),
    app LowCardinality(String),
    env LowCardinality(String),
    flag_id String,
    flag_type LowCardinality(String),
    identity String,
    fired UInt8,
    variation_id String,
    event_id String,
    ingested_at DateTime DEFAULT now()
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(date)
ORDER BY (app, env, flag_id, evaluated_at)
`

// ExposureStorage stores exposure events in ClickHouse.
type ExposureStorage struct {
	conn   clickhouse.Conn
	logger zerolog.Logger
}

// NewExposureStorage creates a new exposure storage instance.
func NewExposureStorage(conn clickhouse.Conn, logger zerolog.Logger) *ExposureStorage {
	return &ExposureStorage{
		conn:   conn,
		logger: logger.With().Str("component", "exposure_storage").Logger(),
	}
}

// EnsureSchema creates the exposure table if it does not exist yet.
func (s *ExposureStorage) EnsureSchema(ctx context.Context) error {
	if err := s.conn.Exec(ctx, exposureSchema); err != nil {
		return fmt.Errorf("failed to create exposure_events table: %w", err)
	}
	return nil
}

// StoreExposures writes a batch of exposure events.
func (s *ExposureStorage) StoreExposures(ctx context.Context, batch []events.Exposure) error {
	if len(batch) == 0 {
		return nil
	}

	insert, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO exposure_events
		(date, evaluated_at, app, env, flag_id, flag_type, identity, fired, variation_id, event_id)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare exposure batch: %w", err)
	}

	for _, ev := range batch {
		fired := uint8(0)
		if ev.Fired {
			fired = 1
		}

		err = insert.Append(
			ev.EvaluatedAt.Truncate(24*time.Hour), // date
			ev.EvaluatedAt,
			ev.App,
			ev.Env,
			ev.FlagID,
			string(ev.FlagType),
			ev.Identity,
			fired,
			ev.VariationID,
			ev.EventID,
		)
		if err != nil {
			return fmt.Errorf("failed to append exposure event to batch: %w", err)
		}
	}

	if err := insert.Send(); err != nil {
		return fmt.Errorf("failed to send exposure batch: %w", err)
	}

	s.logger.Info().Int("count", len(batch)).Msg("Stored exposure events")
	return nil
}

// Stats returns warehouse-side counts for the stats endpoint.
func (s *ExposureStorage) Stats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var last24h uint64
	err := s.conn.QueryRow(ctx, "SELECT count() FROM exposure_events WHERE date >= today() - 1").Scan(&last24h)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to count recent exposure events")
	} else {
		stats["exposure_events_24h"] = last24h
	}

	return stats, nil
}

// Ping verifies the ClickHouse connection.
func (s *ExposureStorage) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}
