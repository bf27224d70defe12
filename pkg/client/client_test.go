package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennant-io/pennant/pkg/flags"
)

func TestClientSetsAuthAndTenantHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		json.NewEncoder(w).Encode(flags.NewDocument())
	}))
	defer srv.Close()

	c := New(srv.URL, WithToken("tok-123"), WithTenant("shop", "staging"))
	_, err := c.Definitions(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Bearer tok-123", got.Get("Authorization"))
	assert.Equal(t, "shop", got.Get("X-App-Id"))
	assert.Equal(t, "staging", got.Get("X-Env-Id"))
}

func TestPutFlagDecodesWarnings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/v1/flags/checkout", r.URL.Path)

		var def flags.Definition
		require.NoError(t, json.NewDecoder(r.Body).Decode(&def))

		json.NewEncoder(w).Encode(map[string]any{
			"flag":     def,
			"warnings": []string{"segments are ignored when rollout steps are set"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	stored, warnings, err := c.PutFlag(context.Background(), flags.Definition{
		ID:      "checkout",
		Type:    flags.TypeBoolean,
		Enabled: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "checkout", stored.ID)
	assert.Len(t, warnings, 1)
}

func TestErrorEnvelopeBecomesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{
			"code":    "NOT_FOUND",
			"message": "flag not found",
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Flag(context.Background(), "ghost")
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "NOT_FOUND", apiErr.Code)
	assert.Equal(t, "flag not found", apiErr.Message)
	assert.True(t, IsNotFound(err))
}

func TestUnparseableErrorBodyFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	err := c.DeleteFlag(context.Background(), "checkout")
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "UNKNOWN", apiErr.Code)
	assert.False(t, IsNotFound(err))
}

func TestSyncEnvSendsRequestBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/sync", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "production", req["sourceEnv"])
		assert.Equal(t, "staging", req["targetEnv"])
		assert.Equal(t, true, req["overwrite"])

		json.NewEncoder(w).Encode(SyncSummary{
			Flags: 3, Segments: 1, Source: "production", Target: "staging",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, WithTenant("shop", "production"))
	summary, err := c.SyncEnv(context.Background(), "production", "staging", true)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Flags)
	assert.Equal(t, 1, summary.Segments)
	assert.Equal(t, "staging", summary.Target)
}

func TestEvaluateDecodesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/evaluate", r.URL.Path)

		var in EvalInput
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "alice", in.ID)

		json.NewEncoder(w).Encode(map[string]any{
			"new-dashboard": map[string]any{"type": "boolean", "result": true, "isEval": true},
			"button-color":  map[string]any{"type": "variant", "result": "red", "isEval": true},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	results, err := c.Evaluate(context.Background(), EvalInput{ID: "alice"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, true, results["new-dashboard"].Result)
	assert.Equal(t, "red", results["button-color"].Result)
}

func TestBoolHelperFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/evaluate/on":
			json.NewEncoder(w).Encode(map[string]any{"type": "boolean", "result": true, "isEval": true})
		case "/v1/evaluate/variant":
			json.NewEncoder(w).Encode(map[string]any{"type": "variant", "result": "red", "isEval": true})
		default:
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"code": "NOT_FOUND", "message": "flag not found"})
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	ctx := context.Background()

	assert.True(t, c.Bool(ctx, "on", EvalInput{ID: "alice"}, false))
	assert.False(t, c.Bool(ctx, "ghost", EvalInput{ID: "alice"}, false))
	assert.True(t, c.Bool(ctx, "ghost", EvalInput{ID: "alice"}, true))

	// Non-boolean results fall back too.
	assert.False(t, c.Bool(ctx, "variant", EvalInput{ID: "alice"}, false))
	assert.Equal(t, "red", c.String(ctx, "variant", EvalInput{ID: "alice"}, "blue"))
	assert.Equal(t, "blue", c.String(ctx, "ghost", EvalInput{ID: "alice"}, "blue"))
}

func TestSegmentRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut:
			var req map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, `user.plan == "pro"`, req["expression"])
			json.NewEncoder(w).Encode(map[string]string{"id": "pro-users", "expression": req["expression"]})
		default:
			json.NewEncoder(w).Encode(map[string]any{
				"segments": map[string]string{"pro-users": `user.plan == "pro"`},
			})
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	require.NoError(t, c.PutSegment(context.Background(), "pro-users", `user.plan == "pro"`))

	segments, err := c.Segments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `user.plan == "pro"`, segments["pro-users"])
}
