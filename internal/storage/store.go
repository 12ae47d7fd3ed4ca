// Package storage keeps login sessions outside the relational store.
// Implementations: redis.Client, memory.Client (for -dev and -memory without Redis).
package storage

import (
	"context"
	"errors"

	"github.com/chatterbox/internal/model"
)

// ErrSessionNotFound is returned for unknown or expired session ids.
var ErrSessionNotFound = errors.New("session not found")

type SessionStore interface {
	// CreateSession stores s until s.ExpiresAt.
	CreateSession(ctx context.Context, s *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	DeleteSession(ctx context.Context, id string) error
	// DeleteUserSessions drops every session of the user (password change, account removal).
	DeleteUserSessions(ctx context.Context, userID string) error
	Close() error
}
