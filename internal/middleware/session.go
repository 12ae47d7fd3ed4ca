package middleware

import (
	"context"
	"net/http"

	"github.com/chatterbox/internal/apperror"
	"github.com/chatterbox/internal/logger"
	"github.com/chatterbox/internal/model"
)

const SessionCookie = "session_id"

// Authenticator resolves a session id to its user.
type Authenticator interface {
	Authenticate(ctx context.Context, sessionID string) (model.Principal, error)
}

// SessionIDFromRequest reads the session_id cookie, then the X-Session-Id header.
func SessionIDFromRequest(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return r.Header.Get("X-Session-Id")
}

// LoadSession attaches the caller to the request context when the session is valid.
// Requests without a valid session pass through anonymously.
func LoadSession(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := SessionIDFromRequest(r)
			if sessionID == "" {
				next.ServeHTTP(w, r)
				return
			}
			p, err := auth.Authenticate(r.Context(), sessionID)
			if err != nil {
				if apperror.CodeOf(err) != apperror.CodeUnauthenticated {
					logger.Errorf("session lookup session_id=%s: %v", MaskSessionID(sessionID), err)
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p, sessionID)))
		})
	}
}

// RequireSession rejects anonymous requests through deny.
func RequireSession(deny func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := GetPrincipal(r.Context()); !ok {
				deny(w, r, apperror.ErrUnauthenticated)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
