package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/pennant-io/pennant/cmd/pennant/internal/middleware"
	"github.com/pennant-io/pennant/cmd/pennant/internal/services"
	"github.com/pennant-io/pennant/pkg/flags"
)

// DefinitionsHandler serves the management API.
type DefinitionsHandler struct {
	service *services.DefinitionsService
	logger  zerolog.Logger
}

// NewDefinitionsHandler creates a definitions handler.
func NewDefinitionsHandler(service *services.DefinitionsService, logger zerolog.Logger) *DefinitionsHandler {
	return &DefinitionsHandler{
		service: service,
		logger:  logger.With().Str("handler", "definitions").Logger(),
	}
}

// flagResponse is the write-path response: the stored definition plus any
// advisory warnings.
type flagResponse struct {
	Flag     flags.Definition `json:"flag"`
	Warnings []string         `json:"warnings,omitempty"`
}

// GetDefinitions handles GET /v1/definitions.
func (h *DefinitionsHandler) GetDefinitions(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFrom(r.Context())

	doc, err := h.service.GetDocument(r.Context(), tenant)
	if err != nil {
		h.logger.Error().Err(err).Str("tenant", tenant.String()).Msg("Failed to load document")
		sendStoreError(w, err, CodeInternal)
		return
	}
	sendJSON(w, http.StatusOK, doc)
}

// ListFlags handles GET /v1/flags.
func (h *DefinitionsHandler) ListFlags(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFrom(r.Context())

	doc, err := h.service.GetDocument(r.Context(), tenant)
	if err != nil {
		sendStoreError(w, err, CodeInternal)
		return
	}
	sendJSON(w, http.StatusOK, map[string]any{"flags": doc.Flags})
}

// GetFlag handles GET /v1/flags/{flagID}.
func (h *DefinitionsHandler) GetFlag(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFrom(r.Context())
	flagID := chi.URLParam(r, "flagID")

	def, err := h.service.GetFlag(r.Context(), tenant, flagID)
	if err != nil {
		sendStoreError(w, err, CodeInternal)
		return
	}
	sendJSON(w, http.StatusOK, def)
}

// PutFlag handles PUT /v1/flags/{flagID}.
func (h *DefinitionsHandler) PutFlag(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFrom(r.Context())
	flagID := chi.URLParam(r, "flagID")

	var def flags.Definition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		sendError(w, http.StatusBadRequest, CodeInvalidBody, "malformed flag definition: "+err.Error())
		return
	}
	if def.ID == "" {
		def.ID = flagID
	}
	if def.ID != flagID {
		sendError(w, http.StatusBadRequest, CodeInvalidBody, "flag id in body does not match URL")
		return
	}

	stored, warnings, err := h.service.PutFlag(r.Context(), tenant, def)
	if err != nil {
		sendStoreError(w, err, CodeWriteFailed)
		return
	}
	sendJSON(w, http.StatusOK, flagResponse{Flag: stored, Warnings: warnings})
}

// UpdateFlag handles PATCH /v1/flags/{flagID}.
func (h *DefinitionsHandler) UpdateFlag(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFrom(r.Context())
	flagID := chi.URLParam(r, "flagID")

	var patch flags.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		sendError(w, http.StatusBadRequest, CodeInvalidBody, "malformed patch: "+err.Error())
		return
	}
	if patch.IsZero() {
		sendError(w, http.StatusBadRequest, CodeInvalidBody, "patch changes nothing")
		return
	}

	stored, warnings, err := h.service.UpdateFlag(r.Context(), tenant, flagID, patch)
	if err != nil {
		sendStoreError(w, err, CodeUpdateFailed)
		return
	}
	sendJSON(w, http.StatusOK, flagResponse{Flag: stored, Warnings: warnings})
}

// DeleteFlag handles DELETE /v1/flags/{flagID}.
func (h *DefinitionsHandler) DeleteFlag(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFrom(r.Context())
	flagID := chi.URLParam(r, "flagID")

	if err := h.service.DeleteFlag(r.Context(), tenant, flagID); err != nil {
		sendStoreError(w, err, CodeDeleteFailed)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSegments handles GET /v1/segments.
func (h *DefinitionsHandler) ListSegments(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFrom(r.Context())

	doc, err := h.service.GetDocument(r.Context(), tenant)
	if err != nil {
		sendStoreError(w, err, CodeInternal)
		return
	}
	sendJSON(w, http.StatusOK, map[string]any{"segments": doc.Segments})
}

type segmentRequest struct {
	Expression string `json:"expression"`
}

// PutSegment handles PUT /v1/segments/{segmentID}.
func (h *DefinitionsHandler) PutSegment(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFrom(r.Context())
	segmentID := chi.URLParam(r, "segmentID")

	var req segmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, CodeInvalidBody, "malformed segment body: "+err.Error())
		return
	}

	if err := h.service.PutSegment(r.Context(), tenant, segmentID, req.Expression); err != nil {
		sendStoreError(w, err, CodeWriteFailed)
		return
	}
	sendJSON(w, http.StatusOK, map[string]string{
		"id":         segmentID,
		"expression": req.Expression,
	})
}

// DeleteSegment handles DELETE /v1/segments/{segmentID}. The segment is
// removed from the document and from every flag referencing it.
func (h *DefinitionsHandler) DeleteSegment(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFrom(r.Context())
	segmentID := chi.URLParam(r, "segmentID")

	if err := h.service.DeleteSegment(r.Context(), tenant, segmentID); err != nil {
		sendStoreError(w, err, CodeDeleteFailed)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type syncRequest struct {
	SourceEnv string `json:"sourceEnv"`
	TargetEnv string `json:"targetEnv"`
	Overwrite bool   `json:"overwrite"`
}

// SyncEnv handles POST /v1/sync. The tenant headers name the app and the
// default source environment; the body names the target.
func (h *DefinitionsHandler) SyncEnv(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFrom(r.Context())

	req, ok := h.decodeSyncRequest(w, r)
	if !ok {
		return
	}

	source := tenant
	if req.SourceEnv != "" {
		source = tenant.WithEnv(req.SourceEnv)
	}

	summary, err := h.service.SyncEnv(r.Context(), source, tenant.WithEnv(req.TargetEnv), req.Overwrite)
	if err != nil {
		sendStoreError(w, err, CodeWriteFailed)
		return
	}
	sendJSON(w, http.StatusOK, summary)
}

// SyncFlag handles POST /v1/sync/flags/{flagID}.
func (h *DefinitionsHandler) SyncFlag(w http.ResponseWriter, r *http.Request) {
	tenant := middleware.TenantFrom(r.Context())
	flagID := chi.URLParam(r, "flagID")

	req, ok := h.decodeSyncRequest(w, r)
	if !ok {
		return
	}

	source := tenant
	if req.SourceEnv != "" {
		source = tenant.WithEnv(req.SourceEnv)
	}

	summary, err := h.service.SyncFlag(r.Context(), source, tenant.WithEnv(req.TargetEnv), flagID, req.Overwrite)
	if err != nil {
		sendStoreError(w, err, CodeWriteFailed)
		return
	}
	sendJSON(w, http.StatusOK, summary)
}

func (h *DefinitionsHandler) decodeSyncRequest(w http.ResponseWriter, r *http.Request) (syncRequest, bool) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, CodeInvalidBody, "malformed sync body: "+err.Error())
		return req, false
	}
	if req.TargetEnv == "" {
		sendError(w, http.StatusBadRequest, CodeInvalidBody, "targetEnv is required")
		return req, false
	}
	return req, true
}
