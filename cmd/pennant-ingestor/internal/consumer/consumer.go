// Package consumer drains exposure events off the event bus and batches
// them toward the warehouse. Serving nodes publish fire-and-forget; the
// queue group spreads the stream across ingestor replicas.
package consumer

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/pennant-io/pennant/pkg/config"
	"github.com/pennant-io/pennant/pkg/events"
	"github.com/pennant-io/pennant/pkg/telemetry"
)

// ExposureWriter persists a batch of exposure events.
type ExposureWriter interface {
	StoreExposures(ctx context.Context, batch []events.Exposure) error
}

// Consumer subscribes to the exposure subject and flushes buffered events
// either when the batch fills or on the flush interval, whichever first.
type Consumer struct {
	writer ExposureWriter
	nats   *nats.Conn
	config *config.Config
	logger zerolog.Logger

	buffer []events.Exposure
	mu     sync.Mutex

	sub *nats.Subscription

	stats Stats

	shutdown chan struct{}
	done     chan struct{}
}

// Stats holds consumer counters for the stats endpoint.
type Stats struct {
	EventsReceived  int64     `json:"events_received"`
	EventsDiscarded int64     `json:"events_discarded"`
	EventsWritten   int64     `json:"events_written"`
	WriteFailures   int64     `json:"write_failures"`
	EventsBuffered  int       `json:"events_buffered"`
	LastReceivedAt  time.Time `json:"last_received_at"`
}

// New creates a consumer over an established NATS connection.
func New(writer ExposureWriter, nc *nats.Conn, cfg *config.Config, logger zerolog.Logger) *Consumer {
	return &Consumer{
		writer:   writer,
		nats:     nc,
		config:   cfg,
		logger:   logger.With().Str("service", "consumer").Logger(),
		buffer:   make([]events.Exposure, 0, cfg.Ingestor.BatchSize),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start subscribes to the exposure subject and launches the flush worker.
func (c *Consumer) Start() error {
	sub, err := c.nats.QueueSubscribe(events.SubjectExposure, c.config.Ingestor.QueueGroup, c.handleMessage)
	if err != nil {
		return err
	}
	c.sub = sub

	go c.flushWorker()

	c.logger.Info().
		Str("subject", events.SubjectExposure).
		Str("queue_group", c.config.Ingestor.QueueGroup).
		Int("batch_size", c.config.Ingestor.BatchSize).
		Dur("flush_interval", c.config.Ingestor.FlushInterval).
		Msg("Consumer started")
	return nil
}

// Close drains the subscription, stops the worker and flushes what is left.
func (c *Consumer) Close() error {
	if c.sub != nil {
		if err := c.sub.Drain(); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to drain subscription")
		}
	}

	close(c.shutdown)

	select {
	case <-c.done:
		c.logger.Info().Msg("Consumer stopped gracefully")
	case <-time.After(10 * time.Second):
		c.logger.Warn().Msg("Consumer shutdown timeout")
	}

	c.Flush()
	return nil
}

// GetStats returns a snapshot of the consumer counters.
func (c *Consumer) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		EventsReceived:  atomic.LoadInt64(&c.stats.EventsReceived),
		EventsDiscarded: atomic.LoadInt64(&c.stats.EventsDiscarded),
		EventsWritten:   atomic.LoadInt64(&c.stats.EventsWritten),
		WriteFailures:   atomic.LoadInt64(&c.stats.WriteFailures),
		LastReceivedAt:  c.stats.LastReceivedAt,
	}
	stats.EventsBuffered = len(c.buffer)
	return stats
}

func (c *Consumer) handleMessage(msg *nats.Msg) {
	var ev events.Exposure
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		atomic.AddInt64(&c.stats.EventsDiscarded, 1)
		telemetry.EventsDiscarded.Inc()
		c.logger.Warn().Err(err).Msg("Discarding malformed exposure event")
		return
	}
	c.Enqueue(ev)
}

// Enqueue buffers one event and triggers a flush when the batch is full.
func (c *Consumer) Enqueue(ev events.Exposure) {
	atomic.AddInt64(&c.stats.EventsReceived, 1)

	c.mu.Lock()
	c.stats.LastReceivedAt = time.Now().UTC()
	c.buffer = append(c.buffer, ev)
	full := len(c.buffer) >= c.config.Ingestor.BatchSize
	c.mu.Unlock()

	if full {
		go c.Flush()
	}
}

// Flush writes everything currently buffered.
func (c *Consumer) Flush() {
	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	batch := make([]events.Exposure, len(c.buffer))
	copy(batch, c.buffer)
	c.buffer = c.buffer[:0]
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	telemetry.BatchFlushes.Inc()
	if err := c.writer.StoreExposures(ctx, batch); err != nil {
		atomic.AddInt64(&c.stats.WriteFailures, 1)
		telemetry.BatchFailures.Inc()
		c.logger.Error().Err(err).Int("count", len(batch)).Msg("Failed to store exposure batch")
		return
	}

	atomic.AddInt64(&c.stats.EventsWritten, int64(len(batch)))
	telemetry.EventsIngested.Add(float64(len(batch)))
}

// flushWorker flushes the buffer on the configured interval.
func (c *Consumer) flushWorker() {
	ticker := time.NewTicker(c.config.Ingestor.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Flush()
		case <-c.shutdown:
			c.logger.Info().Msg("Flush worker stopping")
			close(c.done)
			return
		}
	}
}
