package middleware

import (
	"context"

	"github.com/chatterbox/internal/model"
)

type contextKey string

const (
	principalKey contextKey = "principal"
	sessionIDKey contextKey = "session_id"
)

func WithPrincipal(ctx context.Context, p model.Principal, sessionID string) context.Context {
	ctx = context.WithValue(ctx, principalKey, p)
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// GetPrincipal returns the caller set by LoadSession; ok is false for anonymous requests.
func GetPrincipal(ctx context.Context) (model.Principal, bool) {
	p, ok := ctx.Value(principalKey).(model.Principal)
	return p, ok && p.UserID != ""
}

func GetSessionID(ctx context.Context) string {
	v, _ := ctx.Value(sessionIDKey).(string)
	return v
}
