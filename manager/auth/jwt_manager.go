package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/jwtauth/v5"
)

type JwtManager struct {
	auth *jwtauth.JWTAuth
}

func NewJwtManager(secret []byte) *JwtManager {
	return &JwtManager{auth: jwtauth.New("HS256", secret, nil)}
}

func (m *JwtManager) Verifier() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return jwtauth.Verifier(m.auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
		}))
	}
}

func (m *JwtManager) Authenticator() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return jwtauth.Authenticator(m.auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r)
		}))
	}
}

// Middleware verifies the bearer token and rejects requests without a valid one.
func (m *JwtManager) Middleware() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{m.Verifier(), m.Authenticator()}
}

const (
	usernameKey = "username"
	orgKey      = "org"
)

func (m *JwtManager) CreateUserJwt(username, org string, exp time.Duration) (string, error) {
	claims := map[string]interface{}{
		usernameKey: username,
		"exp":       time.Now().Add(exp),
	}
	if org != "" {
		claims[orgKey] = org
	}
	_, token, err := m.auth.Encode(claims)
	if err != nil {
		slog.Error("error generating jwt", "error", err)
		return "", fmt.Errorf("error generating access token: %w", err)
	}
	return token, nil
}

func ValueFromContext(r *http.Request, key string) (string, error) {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		return "", fmt.Errorf("error retrieving auth claims: %w", err)
	}

	valueUncasted, ok := claims[key]
	if !ok {
		return "", fmt.Errorf("invalid token: unable to locate key %v in claims", key)
	}

	value, ok := valueUncasted.(string)
	if !ok {
		return "", fmt.Errorf("invalid token: value for key %v has invalid type", key)
	}

	return value, nil
}

// ActorFromContext is the name recorded in the audit columns of rows written
// by the request.
func ActorFromContext(r *http.Request) (string, error) {
	return ValueFromContext(r, usernameKey)
}

// OrgFromContext returns the organization claim of the token, or "" when the
// token has none.
func OrgFromContext(r *http.Request) string {
	org, err := ValueFromContext(r, orgKey)
	if err != nil {
		return ""
	}
	return org
}
