package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pennant-io/pennant/pkg/auth"
	"github.com/pennant-io/pennant/pkg/rbac"
)

type contextKey int

const (
	claimsKey contextKey = iota
	tenantKey
)

// AuthMiddleware guards both API surfaces: management endpoints take a
// management JWT checked against the role policy, evaluation endpoints
// take an evaluation JWT or a pre-shared API key.
type AuthMiddleware struct {
	tokens    *auth.TokenManager
	policy    *rbac.Policy
	keys      *auth.APIKeyManager
	keyHashes []string
	logger    zerolog.Logger
}

// NewAuthMiddleware creates the auth middleware. keyHashes holds bcrypt
// hashes of the evaluation API keys this node accepts; empty disables API
// key auth.
func NewAuthMiddleware(tokens *auth.TokenManager, policy *rbac.Policy, keyHashes []string, logger zerolog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		tokens:    tokens,
		policy:    policy,
		keys:      auth.NewAPIKeyManager(0),
		keyHashes: keyHashes,
		logger:    logger.With().Str("component", "auth_middleware").Logger(),
	}
}

// Management returns a middleware that requires a management token whose
// role is allowed to perform action on object.
func (m *AuthMiddleware) Management(object, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				m.unauthorized(w, "missing bearer token")
				return
			}

			claims, err := m.tokens.ValidateToken(token, auth.AudienceManagement)
			if err != nil {
				m.logger.Debug().Err(err).Msg("Management token rejected")
				m.unauthorized(w, "invalid token")
				return
			}

			allowed, err := m.policy.Authorize(claims.Role, object, action)
			if err != nil {
				m.logger.Error().Err(err).Msg("Policy check failed")
				m.unauthorized(w, "invalid token")
				return
			}
			if !allowed {
				m.forbidden(w, claims.Role, object, action)
				return
			}

			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

// Evaluation requires an evaluation credential: either an evaluation JWT
// or an API key matching one of the configured hashes.
func (m *AuthMiddleware) Evaluation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			m.unauthorized(w, "missing bearer token")
			return
		}

		if auth.IsAPIKey(token) {
			if !m.keys.MatchAPIKey(token, m.keyHashes) {
				m.unauthorized(w, "invalid API key")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.tokens.ValidateToken(token, auth.AudienceEvaluation)
		if err != nil {
			m.logger.Debug().Err(err).Msg("Evaluation token rejected")
			m.unauthorized(w, "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
	})
}

func (m *AuthMiddleware) unauthorized(w http.ResponseWriter, message string) {
	sendError(w, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

func (m *AuthMiddleware) forbidden(w http.ResponseWriter, role auth.Role, object, action string) {
	m.logger.Debug().
		Str("role", string(role)).
		Str("object", object).
		Str("action", action).
		Msg("Request forbidden by policy")
	sendError(w, http.StatusForbidden, "FORBIDDEN", "role "+string(role)+" may not "+action+" "+object)
}

// bearerToken pulls the credential out of the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func withClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFrom returns the validated claims, or nil for API key requests.
func ClaimsFrom(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

// sendError writes the transport error envelope. Kept local so the
// middleware package does not depend on the handlers package.
func sendError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"code":    code,
		"message": message,
	})
}
