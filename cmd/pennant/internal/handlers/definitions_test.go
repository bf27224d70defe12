package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennant-io/pennant/cmd/pennant/internal/cache"
	"github.com/pennant-io/pennant/cmd/pennant/internal/middleware"
	"github.com/pennant-io/pennant/cmd/pennant/internal/services"
	"github.com/pennant-io/pennant/cmd/pennant/internal/store"
	"github.com/pennant-io/pennant/pkg/engine"
	"github.com/pennant-io/pennant/pkg/expr"
	"github.com/pennant-io/pennant/pkg/flags"
)

// newTestRouter wires both API surfaces onto a fresh memory store, without
// auth, mirroring the server's route layout.
func newTestRouter(t *testing.T) *chi.Mux {
	t.Helper()

	st := store.NewMemoryStore()
	logger := zerolog.Nop()

	programs, err := expr.NewCache(64)
	require.NoError(t, err)

	definitions := services.NewDefinitionsService(st, nil, logger)
	evaluation := services.NewEvaluationService(st, engine.New(programs), nil, logger)
	h := New(definitions, evaluation, st, cache.NewDocumentCache(st, 0, logger), logger)

	r := chi.NewRouter()
	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Tenant)

		r.Get("/definitions", h.Definitions.GetDefinitions)
		r.Get("/flags", h.Definitions.ListFlags)
		r.Get("/flags/{flagID}", h.Definitions.GetFlag)
		r.Put("/flags/{flagID}", h.Definitions.PutFlag)
		r.Patch("/flags/{flagID}", h.Definitions.UpdateFlag)
		r.Delete("/flags/{flagID}", h.Definitions.DeleteFlag)

		r.Get("/segments", h.Definitions.ListSegments)
		r.Put("/segments/{segmentID}", h.Definitions.PutSegment)
		r.Delete("/segments/{segmentID}", h.Definitions.DeleteSegment)

		r.Post("/sync", h.Definitions.SyncEnv)
		r.Post("/sync/flags/{flagID}", h.Definitions.SyncFlag)

		r.Post("/evaluate", h.Evaluation.EvaluateAll)
		r.Post("/evaluate/{flagID}", h.Evaluation.EvaluateFlag)
	})
	r.Get("/health", h.Health.Health)
	r.Get("/ready", h.Health.Ready)
	r.Get("/stats", h.Health.Stats)

	return r
}

func doRequest(t *testing.T, r http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestPutFlagRoundTrip(t *testing.T) {
	r := newTestRouter(t)

	rec := doRequest(t, r, http.MethodPut, "/v1/flags/new-checkout",
		`{"type":"boolean","enabled":true,"rollout":100}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	flag := body["flag"].(map[string]any)
	assert.Equal(t, "new-checkout", flag["id"])
	assert.Equal(t, true, flag["enabled"])
	assert.Nil(t, body["warnings"])

	rec = doRequest(t, r, http.MethodGet, "/v1/flags/new-checkout", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody(t, rec)
	assert.Equal(t, "boolean", got["type"])
}

func TestPutFlagRejectsUnknownSegment(t *testing.T) {
	r := newTestRouter(t)

	rec := doRequest(t, r, http.MethodPut, "/v1/flags/gated",
		`{"type":"boolean","enabled":true,"segments":["beta-testers"]}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, CodeInvalidBody, body["code"])
	assert.Contains(t, body["message"], "beta-testers")

	// The failed write must not have left anything behind.
	rec = doRequest(t, r, http.MethodGet, "/v1/flags/gated", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPutFlagIDMismatch(t *testing.T) {
	r := newTestRouter(t)

	rec := doRequest(t, r, http.MethodPut, "/v1/flags/one",
		`{"id":"two","type":"boolean"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeInvalidBody, decodeBody(t, rec)["code"])
}

func TestPutFlagReturnsWarnings(t *testing.T) {
	r := newTestRouter(t)

	rec := doRequest(t, r, http.MethodPut, "/v1/segments/beta",
		`{"expression":"user.beta == true"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Flat segments next to rollout steps are legal but ignored by the
	// engine, so the write surfaces a warning.
	rec = doRequest(t, r, http.MethodPut, "/v1/flags/staged",
		`{"type":"boolean","enabled":true,"segments":["beta"],"rollouts":[{"start":"2024-01-01T00:00:00Z","percentage":50}]}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	warnings, ok := body["warnings"].([]any)
	require.True(t, ok, "expected warnings in response")
	assert.NotEmpty(t, warnings)
}

func TestUpdateFlagEmptyPatch(t *testing.T) {
	r := newTestRouter(t)

	rec := doRequest(t, r, http.MethodPut, "/v1/flags/demo",
		`{"type":"boolean","enabled":false}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, r, http.MethodPatch, "/v1/flags/demo", `{}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeInvalidBody, decodeBody(t, rec)["code"])
}

func TestUpdateFlagMissing(t *testing.T) {
	r := newTestRouter(t)

	rec := doRequest(t, r, http.MethodPatch, "/v1/flags/ghost",
		`{"enabled":true}`, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, decodeBody(t, rec)["code"])
}

func TestUpdateFlagTogglesEnabled(t *testing.T) {
	r := newTestRouter(t)

	rec := doRequest(t, r, http.MethodPut, "/v1/flags/demo",
		`{"type":"boolean","enabled":false,"rollout":25}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, r, http.MethodPatch, "/v1/flags/demo", `{"enabled":true}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	flag := decodeBody(t, rec)["flag"].(map[string]any)
	assert.Equal(t, true, flag["enabled"])
	assert.Equal(t, float64(25), flag["rollout"], "patch must not clobber other fields")
}

func TestDeleteFlag(t *testing.T) {
	r := newTestRouter(t)

	rec := doRequest(t, r, http.MethodPut, "/v1/flags/doomed",
		`{"type":"boolean","enabled":true}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, r, http.MethodDelete, "/v1/flags/doomed", "", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, r, http.MethodGet, "/v1/flags/doomed", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, r, http.MethodDelete, "/v1/flags/doomed", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteSegmentCascades(t *testing.T) {
	r := newTestRouter(t)

	rec := doRequest(t, r, http.MethodPut, "/v1/segments/beta",
		`{"expression":"user.beta == true"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, r, http.MethodPut, "/v1/flags/gated",
		`{"type":"boolean","enabled":true,"segments":["beta"]}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(t, r, http.MethodDelete, "/v1/segments/beta", "", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// One delete, and the flag no longer references the segment.
	rec = doRequest(t, r, http.MethodGet, "/v1/flags/gated", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var def flags.Definition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &def))
	assert.Empty(t, def.Segments)

	rec = doRequest(t, r, http.MethodGet, "/v1/segments", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	segments := decodeBody(t, rec)["segments"].(map[string]any)
	assert.NotContains(t, segments, "beta")
}

func TestDeleteSegmentMissing(t *testing.T) {
	r := newTestRouter(t)

	rec := doRequest(t, r, http.MethodDelete, "/v1/segments/ghost", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, decodeBody(t, rec)["code"])
}

func TestSyncEnvRequiresTarget(t *testing.T) {
	r := newTestRouter(t)

	rec := doRequest(t, r, http.MethodPost, "/v1/sync", `{}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeInvalidBody, decodeBody(t, rec)["code"])
}

func TestSyncEnvCopiesFlagsDisabled(t *testing.T) {
	r := newTestRouter(t)

	rec := doRequest(t, r, http.MethodPut, "/v1/flags/launch",
		`{"type":"boolean","enabled":true,"rollout":100}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, r, http.MethodPost, "/v1/sync",
		`{"targetEnv":"staging"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decodeBody(t, rec)
	assert.Equal(t, float64(1), summary["flags"])

	// The copy exists in staging but must arrive switched off.
	rec = doRequest(t, r, http.MethodGet, "/v1/flags/launch", "",
		map[string]string{middleware.HeaderEnvID: "staging"})
	require.Equal(t, http.StatusOK, rec.Code)
	var def flags.Definition
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &def))
	assert.False(t, def.Enabled)
	assert.Equal(t, 100, def.EffectiveRollout())

	// The source environment is untouched.
	rec = doRequest(t, r, http.MethodGet, "/v1/flags/launch", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &def))
	assert.True(t, def.Enabled)
}

func TestSyncEnvSameEnvRejected(t *testing.T) {
	r := newTestRouter(t)

	rec := doRequest(t, r, http.MethodPost, "/v1/sync",
		`{"targetEnv":"production"}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeInvalidBody, decodeBody(t, rec)["code"])
}

func TestSyncFlagCopiesReferencedSegments(t *testing.T) {
	r := newTestRouter(t)

	rec := doRequest(t, r, http.MethodPut, "/v1/segments/beta",
		`{"expression":"user.beta == true"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(t, r, http.MethodPut, "/v1/segments/unrelated",
		`{"expression":"user.vip == true"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, r, http.MethodPut, "/v1/flags/gated",
		`{"type":"boolean","enabled":true,"segments":["beta"]}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, r, http.MethodPost, "/v1/sync/flags/gated",
		`{"targetEnv":"staging"}`, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	headers := map[string]string{middleware.HeaderEnvID: "staging"}
	rec = doRequest(t, r, http.MethodGet, "/v1/segments", "", headers)
	require.Equal(t, http.StatusOK, rec.Code)
	segments := decodeBody(t, rec)["segments"].(map[string]any)
	assert.Contains(t, segments, "beta")
	assert.NotContains(t, segments, "unrelated")
}

func TestSyncFlagMissing(t *testing.T) {
	r := newTestRouter(t)

	rec := doRequest(t, r, http.MethodPost, "/v1/sync/flags/ghost",
		`{"targetEnv":"staging"}`, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, decodeBody(t, rec)["code"])
}

func TestTenantsAreIsolated(t *testing.T) {
	r := newTestRouter(t)

	rec := doRequest(t, r, http.MethodPut, "/v1/flags/only-here",
		`{"type":"boolean","enabled":true}`,
		map[string]string{middleware.HeaderAppID: "checkout", middleware.HeaderEnvID: "staging"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, r, http.MethodGet, "/v1/flags/only-here", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, r, http.MethodGet, "/v1/flags/only-here", "",
		map[string]string{middleware.HeaderAppID: "checkout", middleware.HeaderEnvID: "staging"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	r := newTestRouter(t)

	rec := doRequest(t, r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])

	rec = doRequest(t, r, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, r, http.MethodGet, "/stats", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decodeBody(t, rec), "documentCache")
}
