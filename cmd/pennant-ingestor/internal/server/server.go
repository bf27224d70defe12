package server

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/pennant-io/pennant/cmd/pennant-ingestor/internal/consumer"
	"github.com/pennant-io/pennant/cmd/pennant-ingestor/internal/handlers"
	"github.com/pennant-io/pennant/cmd/pennant-ingestor/internal/storage"
	"github.com/pennant-io/pennant/pkg/config"
)

// Server represents the exposure ingestor: a NATS consumer in front of
// ClickHouse, plus a small HTTP surface for probes.
type Server struct {
	config *config.Config
	logger zerolog.Logger

	// External connections
	clickhouse clickhouse.Conn
	nats       *nats.Conn

	// Pipeline
	storage  *storage.ExposureStorage
	consumer *consumer.Consumer

	// Handlers
	health *handlers.HealthHandler
}

// New creates a new ingestor server instance
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	s := &Server{
		config: cfg,
		logger: logger,
	}

	if err := s.initClickHouse(); err != nil {
		return nil, fmt.Errorf("failed to initialize ClickHouse: %w", err)
	}

	if err := s.initNATS(); err != nil {
		return nil, fmt.Errorf("failed to initialize NATS: %w", err)
	}

	if err := s.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := s.initConsumer(); err != nil {
		return nil, fmt.Errorf("failed to initialize consumer: %w", err)
	}

	s.health = handlers.NewHealthHandler(s.consumer, s.storage, s.logger)

	logger.Info().Msg("Ingestor initialized successfully")
	return s, nil
}

// SetupRoutes configures HTTP routes
func (s *Server) SetupRoutes(r *chi.Mux) {
	r.Get("/health", s.health.Health)
	r.Get("/ready", s.health.Ready)
	r.Get("/live", s.health.Live)
	r.Get("/stats", s.health.Stats)

	if s.config.Metrics.Enabled {
		r.Handle(s.config.Metrics.Path, promhttp.Handler())
	}
}

// Close gracefully closes all server resources
func (s *Server) Close() error {
	var errs []error

	if s.consumer != nil {
		if err := s.consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("consumer close error: %w", err))
		}
	}

	if s.nats != nil {
		s.nats.Close()
	}

	if s.clickhouse != nil {
		if err := s.clickhouse.Close(); err != nil {
			errs = append(errs, fmt.Errorf("clickhouse close error: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}

	s.logger.Info().Msg("Ingestor resources closed successfully")
	return nil
}

// ClickHouse initialization
func (s *Server) initClickHouse() error {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{s.config.GetClickHouseAddr()},
		Auth: clickhouse.Auth{
			Database: s.config.ClickHouse.Database,
			Username: s.config.ClickHouse.Username,
			Password: s.config.ClickHouse.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: s.config.ClickHouse.DialTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		return fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	s.clickhouse = conn
	s.logger.Info().Str("addr", s.config.GetClickHouseAddr()).Msg("ClickHouse connection established")
	return nil
}

// NATS initialization
func (s *Server) initNATS() error {
	opts := []nats.Option{
		nats.Name("pennant-ingestor"),
		nats.MaxReconnects(s.config.NATS.MaxReconnect),
		nats.ReconnectWait(s.config.NATS.ReconnectWait),
		nats.Timeout(s.config.NATS.Timeout),
	}

	nc, err := nats.Connect(s.config.NATS.URL, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	s.nats = nc
	s.logger.Info().Str("url", s.config.NATS.URL).Msg("NATS connection established")
	return nil
}

// Storage initialization
func (s *Server) initStorage() error {
	s.storage = storage.NewExposureStorage(s.clickhouse, s.logger)

	if err := s.storage.EnsureSchema(context.Background()); err != nil {
		return err
	}

	s.logger.Info().Msg("Exposure storage initialized")
	return nil
}

// Consumer initialization
func (s *Server) initConsumer() error {
	s.consumer = consumer.New(s.storage, s.nats, s.config, s.logger)

	if err := s.consumer.Start(); err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	s.logger.Info().Msg("Consumer initialized")
	return nil
}
