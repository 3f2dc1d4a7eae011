// Package auth guards the management API with the admin bearer key.
package auth

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

// ContextKeyActor is the context key for the authenticated actor
const ContextKeyActor contextKey = "actor"

// ActorAdmin identifies requests authenticated with the admin key.
const ActorAdmin = "admin"

// Failure describes why a request was rejected.
type Failure int

const (
	// FailureMissing means no bearer token was presented.
	FailureMissing Failure = iota + 1
	// FailureInvalid means a token was presented but did not match.
	FailureInvalid
)

// FailureFunc writes the rejection response.
type FailureFunc func(w http.ResponseWriter, r *http.Request, f Failure)

// Authenticator checks requests against a single admin key.
type Authenticator struct {
	adminKey string
	onFail   FailureFunc
}

// NewAuthenticator creates an Authenticator. onFail renders rejections; nil
// falls back to plain 401/403 responses.
func NewAuthenticator(adminKey string, onFail FailureFunc) *Authenticator {
	if onFail == nil {
		onFail = plainFailure
	}
	return &Authenticator{adminKey: adminKey, onFail: onFail}
}

// AuthResult contains the result of an authentication attempt
type AuthResult struct {
	Authenticated bool
	Failure       Failure
}

// Authenticate checks the Authorization header value.
func (a *Authenticator) Authenticate(authHeader string) AuthResult {
	token := ExtractBearerToken(authHeader)
	if token == "" {
		return AuthResult{Failure: FailureMissing}
	}
	if a.adminKey == "" || !VerifyKeyConstantTime(token, a.adminKey) {
		return AuthResult{Failure: FailureInvalid}
	}
	return AuthResult{Authenticated: true}
}

// RequireAdmin is a middleware that requires the admin key.
func (a *Authenticator) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := a.Authenticate(r.Header.Get("Authorization"))
		if !result.Authenticated {
			a.onFail(w, r, result.Failure)
			return
		}
		ctx := context.WithValue(r.Context(), ContextKeyActor, ActorAdmin)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetActorFromContext returns the authenticated actor, if any.
func GetActorFromContext(ctx context.Context) (string, bool) {
	actor, ok := ctx.Value(ContextKeyActor).(string)
	return actor, ok
}

// GetIPAddress extracts the client IP address from the request
func GetIPAddress(r *http.Request) string {
	// Check X-Forwarded-For header first (for proxies)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// Fall back to RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func plainFailure(w http.ResponseWriter, _ *http.Request, f Failure) {
	if f == FailureMissing {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}
	http.Error(w, "invalid token", http.StatusForbidden)
}
