package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/chatterbox/internal/model"
	"github.com/chatterbox/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	url := os.Getenv("CHATTERBOX_TEST_REDIS_URL")
	if url == "" {
		t.Skip("CHATTERBOX_TEST_REDIS_URL not set")
	}
	c, err := New(context.Background(), url)
	require.NoError(t, err)
	require.NoError(t, c.FlushDB(context.Background()))
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRedisSessions(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	userID := uuid.NewString()
	now := time.Now()

	ids := []string{uuid.NewString(), uuid.NewString()}
	for _, id := range ids {
		require.NoError(t, c.CreateSession(ctx, &model.Session{
			ID: id, UserID: userID, Username: "alice", CreatedAt: now, ExpiresAt: now.Add(time.Hour),
		}))
	}

	got, err := c.GetSession(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, userID, got.UserID)
	assert.Equal(t, "alice", got.Username)

	require.NoError(t, c.DeleteSession(ctx, ids[0]))
	_, err = c.GetSession(ctx, ids[0])
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)
	require.NoError(t, c.DeleteSession(ctx, ids[0]), "deleting twice is fine")

	require.NoError(t, c.DeleteUserSessions(ctx, userID))
	_, err = c.GetSession(ctx, ids[1])
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)

	err = c.CreateSession(ctx, &model.Session{ID: "old", UserID: userID, ExpiresAt: now.Add(-time.Second)})
	assert.Error(t, err)
}
