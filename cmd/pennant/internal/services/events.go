package services

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/pennant-io/pennant/pkg/events"
	"github.com/pennant-io/pennant/pkg/telemetry"
)

// EventService publishes exposure events to the event bus. Publishing is
// best-effort: callers fire it off the request path and a lost event is a
// logged counter, never a failed evaluation.
type EventService struct {
	nats   *nats.Conn
	logger zerolog.Logger
}

// NewEventService creates an event service over an established NATS
// connection.
func NewEventService(nc *nats.Conn, logger zerolog.Logger) *EventService {
	return &EventService{
		nats:   nc,
		logger: logger.With().Str("service", "events").Logger(),
	}
}

// PublishExposure fills in the event id and timestamp if unset and hands
// the event to NATS.
func (s *EventService) PublishExposure(ev events.Exposure) error {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.EvaluatedAt.IsZero() {
		ev.EvaluatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		telemetry.ExposuresDropped.Inc()
		return fmt.Errorf("failed to encode exposure event: %w", err)
	}

	if s.nats == nil {
		telemetry.ExposuresDropped.Inc()
		return fmt.Errorf("event bus not connected")
	}

	if err := s.nats.Publish(events.SubjectExposure, data); err != nil {
		telemetry.ExposuresDropped.Inc()
		return fmt.Errorf("failed to publish exposure event: %w", err)
	}

	telemetry.ExposuresPublished.Inc()
	return nil
}
