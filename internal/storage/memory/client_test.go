package memory

import (
	"context"
	"testing"
	"time"

	"github.com/chatterbox/internal/model"
	"github.com/chatterbox/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := New()
	c.now = func() time.Time { return now }

	s := &model.Session{ID: "s1", UserID: "u1", Username: "alice", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, c.CreateSession(ctx, s))
	require.NoError(t, c.CreateSession(ctx, &model.Session{ID: "s2", UserID: "u1", ExpiresAt: now.Add(time.Hour)}))
	require.NoError(t, c.CreateSession(ctx, &model.Session{ID: "s3", UserID: "u2", ExpiresAt: now.Add(time.Hour)}))

	got, err := c.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Principal().Username)

	require.NoError(t, c.DeleteSession(ctx, "s1"))
	_, err = c.GetSession(ctx, "s1")
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)

	require.NoError(t, c.DeleteUserSessions(ctx, "u1"))
	_, err = c.GetSession(ctx, "s2")
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)
	_, err = c.GetSession(ctx, "s3")
	assert.NoError(t, err)
}

func TestSessionExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := New()
	c.now = func() time.Time { return now }

	require.NoError(t, c.CreateSession(ctx, &model.Session{ID: "s1", UserID: "u1", ExpiresAt: now.Add(time.Minute)}))
	now = now.Add(time.Minute)
	_, err := c.GetSession(ctx, "s1")
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)

	require.NoError(t, c.CreateSession(ctx, &model.Session{ID: "s2", UserID: "u1", ExpiresAt: now.Add(time.Minute)}))
	assert.Len(t, c.sessions, 1, "expired sessions are evicted on write")
}
