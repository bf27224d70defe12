package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/pennant-io/pennant/cmd/pennant/internal/cache"
	"github.com/pennant-io/pennant/cmd/pennant/internal/handlers"
	"github.com/pennant-io/pennant/cmd/pennant/internal/middleware"
	"github.com/pennant-io/pennant/cmd/pennant/internal/services"
	"github.com/pennant-io/pennant/cmd/pennant/internal/store"
	"github.com/pennant-io/pennant/pkg/auth"
	"github.com/pennant-io/pennant/pkg/config"
	"github.com/pennant-io/pennant/pkg/engine"
	"github.com/pennant-io/pennant/pkg/expr"
	"github.com/pennant-io/pennant/pkg/rbac"
)

// Server wires the tenant document store, caches, event bus and both API
// surfaces together.
type Server struct {
	config *config.Config
	logger zerolog.Logger

	// Backing connections
	store store.Store
	nats  *nats.Conn

	// Caches
	programs *expr.Cache
	docs     *cache.DocumentCache

	// Core services
	definitions  *services.DefinitionsService
	evaluation   *services.EvaluationService
	events       *services.EventService
	invalidation *services.InvalidationService

	// Handlers
	handlers *handlers.Handlers

	// Auth components
	tokenManager *auth.TokenManager
	policy       *rbac.Policy
}

// New creates a new server instance
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	s := &Server{
		config: cfg,
		logger: logger,
	}

	if err := s.initStore(); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	if err := s.initNATS(); err != nil {
		return nil, fmt.Errorf("failed to initialize NATS: %w", err)
	}

	if err := s.initAuth(); err != nil {
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	if err := s.initCaches(); err != nil {
		return nil, fmt.Errorf("failed to initialize caches: %w", err)
	}

	if err := s.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := s.initHandlers(); err != nil {
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	logger.Info().Msg("Server initialized successfully")
	return s, nil
}

// SetupRoutes configures HTTP routes
func (s *Server) SetupRoutes(r *chi.Mux) {
	authMiddleware := middleware.NewAuthMiddleware(
		s.tokenManager,
		s.policy,
		s.config.EvaluationKeyHashes(),
		s.logger,
	)

	// Root/info and health, no auth required
	r.Get("/", s.handleRoot)
	r.Get("/health", s.handlers.Health.Health)
	r.Get("/live", s.handlers.Health.Live)
	r.Get("/ready", s.handlers.Health.Ready)
	r.Get("/stats", s.handlers.Health.Stats)

	if s.config.Metrics.Enabled {
		r.Handle(s.config.Metrics.Path, promhttp.Handler())
	}

	// API v1
	r.Route("/v1", func(r chi.Router) {
		// --- Management (management JWT + role policy) ---
		r.Group(func(r chi.Router) {
			r.With(authMiddleware.Management(rbac.ObjectDefinitions, rbac.ActionRead), middleware.Tenant).
				Get("/definitions", s.handlers.Definitions.GetDefinitions)

			r.With(authMiddleware.Management(rbac.ObjectFlags, rbac.ActionRead), middleware.Tenant).
				Get("/flags", s.handlers.Definitions.ListFlags)
			r.With(authMiddleware.Management(rbac.ObjectFlags, rbac.ActionRead), middleware.Tenant).
				Get("/flags/{flagID}", s.handlers.Definitions.GetFlag)
			r.With(authMiddleware.Management(rbac.ObjectFlags, rbac.ActionWrite), middleware.Tenant).
				Put("/flags/{flagID}", s.handlers.Definitions.PutFlag)
			r.With(authMiddleware.Management(rbac.ObjectFlags, rbac.ActionWrite), middleware.Tenant).
				Patch("/flags/{flagID}", s.handlers.Definitions.UpdateFlag)
			r.With(authMiddleware.Management(rbac.ObjectFlags, rbac.ActionWrite), middleware.Tenant).
				Delete("/flags/{flagID}", s.handlers.Definitions.DeleteFlag)

			r.With(authMiddleware.Management(rbac.ObjectSegments, rbac.ActionRead), middleware.Tenant).
				Get("/segments", s.handlers.Definitions.ListSegments)
			r.With(authMiddleware.Management(rbac.ObjectSegments, rbac.ActionWrite), middleware.Tenant).
				Put("/segments/{segmentID}", s.handlers.Definitions.PutSegment)
			r.With(authMiddleware.Management(rbac.ObjectSegments, rbac.ActionWrite), middleware.Tenant).
				Delete("/segments/{segmentID}", s.handlers.Definitions.DeleteSegment)

			r.With(authMiddleware.Management(rbac.ObjectSync, rbac.ActionWrite), middleware.Tenant).
				Post("/sync", s.handlers.Definitions.SyncEnv)
			r.With(authMiddleware.Management(rbac.ObjectSync, rbac.ActionWrite), middleware.Tenant).
				Post("/sync/flags/{flagID}", s.handlers.Definitions.SyncFlag)
		})

		// --- Evaluation (evaluation JWT or API key) ---
		r.Group(func(r chi.Router) {
			if s.config.RateLimit.Enabled {
				r.Use(httprate.Limit(
					s.config.RateLimit.RequestLimit,
					s.config.RateLimit.WindowLength,
					httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint),
					httprate.WithLimitHandler(handlers.RateLimited),
				))
			}
			r.Use(authMiddleware.Evaluation)
			r.Use(middleware.Tenant)

			r.Post("/evaluate", s.handlers.Evaluation.EvaluateAll)
			r.Post("/evaluate/{flagID}", s.handlers.Evaluation.EvaluateFlag)
		})
	})
}

// Close gracefully closes all server resources
func (s *Server) Close() error {
	var errs []error

	if s.invalidation != nil {
		if err := s.invalidation.Close(); err != nil {
			errs = append(errs, fmt.Errorf("invalidation close error: %w", err))
		}
	}

	if s.nats != nil {
		s.nats.Close()
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store close error: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}

	s.logger.Info().Msg("Server resources closed successfully")
	return nil
}

// Store initialization
func (s *Server) initStore() error {
	st, err := store.New(context.Background(), s.config, s.logger)
	if err != nil {
		return err
	}
	s.store = st

	s.logger.Info().Str("backend", s.config.Store.Backend).Msg("Document store initialized")
	return nil
}

// NATS initialization
func (s *Server) initNATS() error {
	opts := []nats.Option{
		nats.Name("pennant"),
		nats.MaxReconnects(s.config.NATS.MaxReconnect),
		nats.ReconnectWait(s.config.NATS.ReconnectWait),
		nats.Timeout(s.config.NATS.Timeout),
	}

	nc, err := nats.Connect(s.config.NATS.URL, opts...)
	if err != nil {
		// The memory backend is the single-node development setup; there the
		// bus is optional and invalidation stays local.
		if s.config.Store.Backend == "memory" {
			s.logger.Warn().Err(err).Msg("Running without NATS, events and invalidation stay local")
			return nil
		}
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	s.nats = nc
	s.logger.Info().Str("url", s.config.NATS.URL).Msg("NATS connection established")
	return nil
}

// Auth initialization
func (s *Server) initAuth() error {
	s.tokenManager = auth.NewTokenManager(s.config.Auth.JWTSecret)

	policy, err := rbac.NewPolicy()
	if err != nil {
		return fmt.Errorf("failed to initialize role policy: %w", err)
	}
	s.policy = policy

	s.logger.Info().Msg("Auth components initialized")
	return nil
}

// Cache initialization
func (s *Server) initCaches() error {
	programs, err := expr.NewCache(s.config.Cache.MaxPrograms)
	if err != nil {
		return fmt.Errorf("failed to create expression cache: %w", err)
	}
	s.programs = programs

	s.docs = cache.NewDocumentCache(s.store, s.config.Cache.DocumentTTL, s.logger)

	s.logger.Info().
		Dur("document_ttl", s.config.Cache.DocumentTTL).
		Int64("max_programs", s.config.Cache.MaxPrograms).
		Msg("Caches initialized")
	return nil
}

// Service initialization
func (s *Server) initServices() error {
	s.events = services.NewEventService(s.nats, s.logger)

	s.invalidation = services.NewInvalidationService(s.nats, s.docs, s.logger)
	if err := s.invalidation.Start(); err != nil {
		return fmt.Errorf("failed to start invalidation service: %w", err)
	}

	s.definitions = services.NewDefinitionsService(s.store, s.invalidation, s.logger)
	s.evaluation = services.NewEvaluationService(s.docs, engine.New(s.programs), s.events, s.logger)

	s.logger.Info().Msg("Services initialized")
	return nil
}

// Handler initialization
func (s *Server) initHandlers() error {
	s.handlers = handlers.New(s.definitions, s.evaluation, s.store, s.docs, s.logger)
	s.logger.Info().Msg("Handlers initialized")
	return nil
}

// Basic HTTP handlers
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"service": "Pennant Feature Flag Service",
		"version": "1.0.0",
		"status":  "running",
		"api":     "/v1",
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response)
}
