package middleware

import (
	"context"
	"net/http"

	"github.com/pennant-io/pennant/pkg/flags"
)

// Tenant request headers. Malformed or missing values fall back to token
// defaults and then to the global default tenant; tenant resolution never
// rejects a request.
const (
	HeaderAppID    = "X-App-Id"
	HeaderEnvID    = "X-Env-Id"
	HeaderBackupID = "X-Backup-Id"
)

// Tenant resolves the (app, env) pair for the request and stores it in the
// context. Headers win; evaluation tokens may carry defaults for when the
// headers are absent. Must run after auth so token claims are available.
func Tenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		app := r.Header.Get(HeaderAppID)
		env := r.Header.Get(HeaderEnvID)

		if claims := ClaimsFrom(r.Context()); claims != nil {
			if !flags.ValidKeyPart(app) && claims.App != "" {
				app = claims.App
			}
			if !flags.ValidKeyPart(env) && claims.Env != "" {
				env = claims.Env
			}
		}

		tenant := flags.NewTenant(app, env)
		next.ServeHTTP(w, r.WithContext(withTenant(r.Context(), tenant)))
	})
}

func withTenant(ctx context.Context, tenant flags.Tenant) context.Context {
	return context.WithValue(ctx, tenantKey, tenant)
}

// TenantFrom returns the resolved tenant, defaulting when the middleware
// did not run.
func TenantFrom(ctx context.Context) flags.Tenant {
	if tenant, ok := ctx.Value(tenantKey).(flags.Tenant); ok {
		return tenant
	}
	return flags.DefaultTenant()
}
