package auth

import (
	"fmt"
	"log"
	"net/http"
	"strings"
)

// Middleware authenticates bearer tokens and enforces a Policy.
type Middleware struct {
	secret []byte
	policy Policy
	logger *log.Logger
}

// MiddlewareOption customizes a Middleware.
type MiddlewareOption func(*Middleware)

// WithDenyLogger logs rejected requests.
func WithDenyLogger(logger *log.Logger) MiddlewareOption {
	return func(m *Middleware) {
		m.logger = logger
	}
}

// NewMiddleware constructs an auth middleware.
func NewMiddleware(secret []byte, policy Policy, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{secret: secret, policy: policy}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Wrap authenticates requests the policy covers and stores the caller
// identity in the request context.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		required, ok := m.policy.Required(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		claims, err := ParseJWT(bearerToken(r), m.secret)
		if err != nil {
			m.deny(w, r, http.StatusUnauthorized, err)
			return
		}
		role := Role(claims.Role)
		if !role.Allows(required) {
			m.deny(w, r, http.StatusForbidden, fmt.Errorf("role %s below %s", role, required))
			return
		}
		id := Identity{Subject: claims.Subject, Role: role}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func (m *Middleware) deny(w http.ResponseWriter, r *http.Request, status int, reason error) {
	if m.logger != nil {
		m.logger.Printf("auth denied: method=%s path=%s status=%d err=%v", r.Method, r.URL.Path, status, reason)
	}
	http.Error(w, strings.ToLower(http.StatusText(status)), status)
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
