package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/pennant-io/pennant/cmd/pennant/internal/middleware"
	"github.com/pennant-io/pennant/cmd/pennant/internal/services"
	"github.com/pennant-io/pennant/pkg/engine"
)

// EvaluationHandler serves the evaluation API.
type EvaluationHandler struct {
	service *services.EvaluationService
	logger  zerolog.Logger
}

// NewEvaluationHandler creates an evaluation handler.
func NewEvaluationHandler(service *services.EvaluationService, logger zerolog.Logger) *EvaluationHandler {
	return &EvaluationHandler{
		service: service,
		logger:  logger.With().Str("handler", "evaluation").Logger(),
	}
}

type evaluateRequest struct {
	ID   string `json:"id"`
	User any    `json:"user"`
	Page any    `json:"page"`
}

// EvaluateAll handles POST /v1/evaluate: every flag of the tenant decided
// against one caller context.
func (h *EvaluationHandler) EvaluateAll(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeInput(w, r)
	if !ok {
		return
	}
	tenant := middleware.TenantFrom(r.Context())

	results, err := h.service.EvaluateAll(r.Context(), tenant, input)
	if err != nil {
		h.logger.Error().Err(err).Str("tenant", tenant.String()).Msg("Batch evaluation failed")
		sendStoreError(w, err, CodeInternal)
		return
	}
	sendJSON(w, http.StatusOK, results)
}

// EvaluateFlag handles POST /v1/evaluate/{flagID}.
func (h *EvaluationHandler) EvaluateFlag(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeInput(w, r)
	if !ok {
		return
	}
	tenant := middleware.TenantFrom(r.Context())
	flagID := chi.URLParam(r, "flagID")

	result, err := h.service.EvaluateFlag(r.Context(), tenant, flagID, input)
	if err != nil {
		sendStoreError(w, err, CodeInternal)
		return
	}
	sendJSON(w, http.StatusOK, result)
}

// decodeInput builds the engine input from the request body and transport
// headers. An absent body is a valid anonymous evaluation; a malformed one
// is a 400. When the body carries no identity the X-Backup-Id header, if
// set by the SDK, stands in so bucketing stays sticky.
func (h *EvaluationHandler) decodeInput(w http.ResponseWriter, r *http.Request) (engine.Input, bool) {
	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		sendError(w, http.StatusBadRequest, CodeInvalidBody, "malformed evaluation body: "+err.Error())
		return engine.Input{}, false
	}

	id := req.ID
	if id == "" {
		id = r.Header.Get(middleware.HeaderBackupID)
	}

	return engine.Input{
		ID:      id,
		User:    req.User,
		Page:    req.Page,
		Geo:     geoFromHeaders(r.Header),
		Request: requestRecord(r),
	}, true
}
