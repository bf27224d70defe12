package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pennant-io/pennant/pkg/auth"
	"github.com/pennant-io/pennant/pkg/flags"
)

func resolveTenant(req *http.Request) flags.Tenant {
	var got flags.Tenant
	handler := Tenant(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = TenantFrom(r.Context())
	}))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	return got
}

func TestTenantFromHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", nil)
	req.Header.Set(HeaderAppID, "storefront")
	req.Header.Set(HeaderEnvID, "staging")

	assert.Equal(t, flags.Tenant{App: "storefront", Env: "staging"}, resolveTenant(req))
}

func TestTenantDefaultsWhenHeadersMissing(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", nil)
	assert.Equal(t, flags.DefaultTenant(), resolveTenant(req))
}

func TestTenantRejectsMalformedHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", nil)
	req.Header.Set(HeaderAppID, "bad app!")
	req.Header.Set(HeaderEnvID, "v1:sneaky")

	assert.Equal(t, flags.DefaultTenant(), resolveTenant(req))
}

func TestTenantFallsBackToTokenDefaults(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", nil)
	claims := &auth.Claims{App: "storefront", Env: "prod"}
	req = req.WithContext(withClaims(req.Context(), claims))

	assert.Equal(t, flags.Tenant{App: "storefront", Env: "prod"}, resolveTenant(req))
}

func TestTenantHeadersWinOverToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", nil)
	req.Header.Set(HeaderEnvID, "staging")
	claims := &auth.Claims{App: "storefront", Env: "prod"}
	req = req.WithContext(withClaims(req.Context(), claims))

	assert.Equal(t, flags.Tenant{App: "storefront", Env: "staging"}, resolveTenant(req))
}

func TestTenantFromUnresolvedContext(t *testing.T) {
	assert.Equal(t, flags.DefaultTenant(), TenantFrom(context.Background()))
}
