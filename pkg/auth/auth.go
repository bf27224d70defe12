package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Audience identifies which API surface a token is valid for. Management
// tokens drive the definition CRUD and sync endpoints; evaluation tokens
// only grant access to the evaluation endpoints.
type Audience string

const (
	AudienceManagement Audience = "management"
	AudienceEvaluation Audience = "evaluation"
)

// Role is the management role carried in a management token. Evaluation
// tokens have no role.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// ValidRole reports whether r is one of the known management roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleEditor, RoleViewer:
		return true
	}
	return false
}

// ErrInvalidToken wraps every token validation failure.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the JWT claims issued for both audiences. App and Env are
// only set on evaluation tokens and act as tenant defaults when the
// request does not carry X-App-Id / X-Env-Id headers.
type Claims struct {
	Role Role   `json:"role,omitempty"`
	App  string `json:"app,omitempty"`
	Env  string `json:"env,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager signs and validates HS256 tokens for both API surfaces.
type TokenManager struct {
	secret []byte
	issuer string
}

// NewTokenManager creates a token manager signing with the given secret.
func NewTokenManager(secret string) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		issuer: "pennant",
	}
}

// GenerateManagementToken issues a management token for the given subject
// and role.
func (tm *TokenManager) GenerateManagementToken(subject string, role Role, expiry time.Duration) (string, error) {
	if !ValidRole(role) {
		return "", fmt.Errorf("unknown role %q", role)
	}
	claims := &Claims{
		Role:             role,
		RegisteredClaims: tm.registered(subject, AudienceManagement, expiry),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secret)
}

// GenerateEvaluationToken issues an evaluation token. app and env are
// optional tenant defaults baked into the token.
func (tm *TokenManager) GenerateEvaluationToken(subject, app, env string, expiry time.Duration) (string, error) {
	claims := &Claims{
		App:              app,
		Env:              env,
		RegisteredClaims: tm.registered(subject, AudienceEvaluation, expiry),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secret)
}

func (tm *TokenManager) registered(subject string, aud Audience, expiry time.Duration) jwt.RegisteredClaims {
	now := time.Now()
	return jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		Issuer:    tm.issuer,
		Subject:   subject,
		Audience:  jwt.ClaimStrings{string(aud)},
	}
}

// ValidateToken parses tokenString and checks the signature, expiry and
// audience. Tokens minted for the other surface are rejected.
func (tm *TokenManager) ValidateToken(tokenString string, want Audience) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tm.secret, nil
	}, jwt.WithAudience(string(want)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: malformed claims", ErrInvalidToken)
	}
	if want == AudienceManagement && !ValidRole(claims.Role) {
		return nil, fmt.Errorf("%w: missing role", ErrInvalidToken)
	}
	return claims, nil
}

// APIKeyPrefix marks evaluation API keys so transports can tell them
// apart from JWTs without parsing.
const APIKeyPrefix = "pn_"

// APIKeyManager mints and verifies evaluation API keys. Keys are random,
// shown once at mint time, and stored server-side only as bcrypt hashes.
type APIKeyManager struct {
	cost int
}

// NewAPIKeyManager creates an API key manager hashing at the given bcrypt
// cost. Costs outside the valid range fall back to the bcrypt default;
// verification reads the cost from the hash, so verifiers may pass 0.
func NewAPIKeyManager(cost int) *APIKeyManager {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &APIKeyManager{cost: cost}
}

// GenerateAPIKey generates a new random API key.
func (akm *APIKeyManager) GenerateAPIKey() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return APIKeyPrefix + hex.EncodeToString(bytes), nil
}

// IsAPIKey reports whether the presented credential looks like an API key.
func IsAPIKey(credential string) bool {
	return strings.HasPrefix(credential, APIKeyPrefix)
}

// HashAPIKey hashes an API key for storage.
func (akm *APIKeyManager) HashAPIKey(apiKey string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(apiKey), akm.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash API key: %w", err)
	}
	return string(hash), nil
}

// VerifyAPIKey verifies an API key against its hash.
func (akm *APIKeyManager) VerifyAPIKey(apiKey, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(apiKey))
}

// MatchAPIKey checks the key against a set of configured hashes and
// reports whether any of them matches.
func (akm *APIKeyManager) MatchAPIKey(apiKey string, hashes []string) bool {
	for _, h := range hashes {
		if akm.VerifyAPIKey(apiKey, h) == nil {
			return true
		}
	}
	return false
}
