// Package handlers contains the ingestor's HTTP handlers. The ingestor's
// ingest path is the event bus; HTTP only serves probes and statistics.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/pennant-io/pennant/cmd/pennant-ingestor/internal/consumer"
	"github.com/pennant-io/pennant/cmd/pennant-ingestor/internal/storage"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	consumer *consumer.Consumer
	storage  *storage.ExposureStorage
	logger   zerolog.Logger
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(c *consumer.Consumer, st *storage.ExposureStorage, logger zerolog.Logger) *HealthHandler {
	return &HealthHandler{
		consumer: c,
		storage:  st,
		logger:   logger.With().Str("handler", "health").Logger(),
	}
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "pennant-ingestor",
	})
}

// Live handles GET /live.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "alive",
		"timestamp": time.Now().UTC(),
		"service":   "pennant-ingestor",
	})
}

// Ready handles GET /ready: ready once the warehouse answers.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.storage.Ping(r.Context()); err != nil {
		h.logger.Warn().Err(err).Msg("Readiness check failed")
		h.sendJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "not ready",
			"reason": err.Error(),
		})
		return
	}

	h.sendJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ready",
		"timestamp": time.Now().UTC(),
		"service":   "pennant-ingestor",
	})
}

// Stats handles GET /stats: consumer counters plus warehouse counts.
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	warehouse, err := h.storage.Stats(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to read warehouse stats")
	}

	h.sendJSON(w, http.StatusOK, map[string]interface{}{
		"consumer":  h.consumer.GetStats(),
		"warehouse": warehouse,
		"timestamp": time.Now().UTC(),
		"service":   "pennant-ingestor",
	})
}

func (h *HealthHandler) sendJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
