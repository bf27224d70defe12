// Package handlers contains the HTTP handlers for both API surfaces: the
// management endpoints (definitions, flags, segments, sync) and the
// evaluation endpoints, plus health and stats.
package handlers

import (
	"github.com/rs/zerolog"

	"github.com/pennant-io/pennant/cmd/pennant/internal/cache"
	"github.com/pennant-io/pennant/cmd/pennant/internal/services"
	"github.com/pennant-io/pennant/cmd/pennant/internal/store"
)

// Handlers aggregates all HTTP handlers.
type Handlers struct {
	Definitions *DefinitionsHandler
	Evaluation  *EvaluationHandler
	Health      *HealthHandler
}

// New creates all handler instances.
func New(
	definitions *services.DefinitionsService,
	evaluation *services.EvaluationService,
	st store.Store,
	docs *cache.DocumentCache,
	logger zerolog.Logger,
) *Handlers {
	return &Handlers{
		Definitions: NewDefinitionsHandler(definitions, logger),
		Evaluation:  NewEvaluationHandler(evaluation, logger),
		Health:      NewHealthHandler(st, docs, logger),
	}
}
