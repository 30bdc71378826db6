// Package middleware provides HTTP middleware for the market layer.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/slotledger/market_layer/pkg/logger"
)

type contextKey string

const callerKey contextKey = "caller"

// Claims carries the identity asserted by a bearer token.
type Claims struct {
	Identity string `json:"identity"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// WithCaller returns a context carrying the authenticated caller identity.
func WithCaller(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, callerKey, identity)
}

// Caller returns the authenticated caller identity, or "" when unauthenticated.
func Caller(ctx context.Context) string {
	id, _ := ctx.Value(callerKey).(string)
	return id
}

// Auth authenticates requests with an HMAC-signed bearer token. When no
// signing secret is configured it falls back to trusting the X-Identity
// header, which is only acceptable for local development.
type Auth struct {
	secret    []byte
	log       *logger.Logger
	skipPaths map[string]bool
}

// NewAuth creates the authentication middleware. skipPaths are served without
// authentication (health and metrics endpoints).
func NewAuth(secret string, log *logger.Logger, skipPaths []string) *Auth {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}
	if log == nil {
		log = logger.NewDefault("auth")
	}
	return &Auth{secret: []byte(secret), log: log, skipPaths: skip}
}

// Handler returns the middleware handler.
func (m *Auth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		if len(m.secret) == 0 {
			identity := r.Header.Get("X-Identity")
			if identity == "" {
				m.respondError(w, "missing X-Identity header")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), identity)))
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.respondError(w, "missing Authorization header")
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			m.respondError(w, "invalid Authorization header format")
			return
		}

		claims, err := m.validateToken(parts[1])
		if err != nil {
			m.log.WithError(err).WithField("path", r.URL.Path).Warn("token validation failed")
			m.respondError(w, "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), claims.Identity)))
	})
}

func (m *Auth) validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return m.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Identity == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func (m *Auth) respondError(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// SignToken mints an HMAC token for the given identity. Used by tests and
// local tooling.
func SignToken(secret, identity string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Identity: identity})
	return token.SignedString([]byte(secret))
}
