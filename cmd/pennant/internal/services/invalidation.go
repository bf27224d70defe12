package services

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/pennant-io/pennant/cmd/pennant/internal/cache"
	"github.com/pennant-io/pennant/pkg/events"
	"github.com/pennant-io/pennant/pkg/flags"
)

// InvalidationService connects document writes to cache eviction, both on
// this node and, through NATS, on every other node.
type InvalidationService struct {
	nats   *nats.Conn
	docs   *cache.DocumentCache
	logger zerolog.Logger
	sub    *nats.Subscription
}

// NewInvalidationService wires the cache to the event bus. nc may be nil
// in single-node setups; invalidation then stays local.
func NewInvalidationService(nc *nats.Conn, docs *cache.DocumentCache, logger zerolog.Logger) *InvalidationService {
	return &InvalidationService{
		nats:   nc,
		docs:   docs,
		logger: logger.With().Str("service", "invalidation").Logger(),
	}
}

// Start subscribes to invalidation notices from other nodes.
func (s *InvalidationService) Start() error {
	if s.nats == nil {
		s.logger.Warn().Msg("Event bus not connected, cache invalidation stays local")
		return nil
	}

	sub, err := s.nats.Subscribe(events.SubjectInvalidate, s.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", events.SubjectInvalidate, err)
	}
	s.sub = sub
	s.logger.Info().Str("subject", events.SubjectInvalidate).Msg("Listening for document invalidations")
	return nil
}

func (s *InvalidationService) handleMessage(msg *nats.Msg) {
	var m events.Invalidation
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		s.logger.Warn().Err(err).Msg("Discarding malformed invalidation message")
		return
	}
	s.docs.Invalidate(flags.Tenant{App: m.App, Env: m.Env})
}

// DocumentChanged evicts the local cache entry and tells every other node
// to do the same. Failures to publish are logged; the local eviction has
// already happened.
func (s *InvalidationService) DocumentChanged(tenant flags.Tenant) {
	s.docs.Invalidate(tenant)

	if s.nats == nil {
		return
	}

	data, err := json.Marshal(events.Invalidation{App: tenant.App, Env: tenant.Env})
	if err != nil {
		s.logger.Error().Err(err).Str("tenant", tenant.String()).Msg("Failed to encode invalidation message")
		return
	}
	if err := s.nats.Publish(events.SubjectInvalidate, data); err != nil {
		s.logger.Error().Err(err).Str("tenant", tenant.String()).Msg("Failed to publish invalidation message")
	}
}

// Close drops the subscription.
func (s *InvalidationService) Close() error {
	if s.sub != nil {
		return s.sub.Unsubscribe()
	}
	return nil
}
