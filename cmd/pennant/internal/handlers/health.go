package handlers

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/pennant-io/pennant/cmd/pennant/internal/cache"
	"github.com/pennant-io/pennant/cmd/pennant/internal/store"
)

// HealthHandler serves liveness, readiness and cache statistics.
type HealthHandler struct {
	store   store.Store
	docs    *cache.DocumentCache
	logger  zerolog.Logger
	started time.Time
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(st store.Store, docs *cache.DocumentCache, logger zerolog.Logger) *HealthHandler {
	return &HealthHandler{
		store:   st,
		docs:    docs,
		logger:  logger.With().Str("handler", "health").Logger(),
		started: time.Now(),
	}
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "pennant",
		"uptime":  time.Since(h.started).String(),
	})
}

// Live handles GET /live.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// Ready handles GET /ready: the node is ready once the document store
// answers.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Warn().Err(err).Msg("Readiness check failed")
		sendJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": err.Error(),
		})
		return
	}
	sendJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Stats handles GET /stats.
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, map[string]any{
		"documentCache": h.docs.GetStats(),
		"hitRatio":      h.docs.HitRatio(),
	})
}
