package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/chatterbox/internal/model"
	"github.com/chatterbox/migrations"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLikePattern(t *testing.T) {
	assert.Equal(t, "%hello%", likePattern("hello"))
	assert.Equal(t, `%100\%%`, likePattern("100%"))
	assert.Equal(t, `%a\_b%`, likePattern("a_b"))
	assert.Equal(t, `%c:\\tmp%`, likePattern(`c:\tmp`))
}

// openTestStore connects to CHATTERBOX_TEST_DATABASE_URL, applies migrations and
// truncates every table.
func openTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("CHATTERBOX_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CHATTERBOX_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool, migrations.Files))
	_, err = pool.Exec(ctx, `TRUNCATE reactions, messages, channel_members, channels, users`)
	require.NoError(t, err)
	return NewPostgresStore(pool)
}

func TestPostgresStore(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	alice := &model.User{ID: uuid.NewString(), Username: "alice", PasswordHash: "x", Theme: model.ThemeSystem, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.CreateUser(ctx, alice))
	dup := *alice
	dup.ID = uuid.NewString()
	assert.ErrorIs(t, s.CreateUser(ctx, &dup), ErrDuplicate)

	ch := &model.Channel{ID: uuid.NewString(), Name: "general", CreatedBy: alice.ID, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.CreateChannel(ctx, ch))
	other := &model.Channel{ID: uuid.NewString(), Name: "general", CreatedBy: alice.ID, CreatedAt: now, UpdatedAt: now}
	assert.ErrorIs(t, s.CreateChannel(ctx, other), ErrDuplicate)

	t.Run("transaction rollback", func(t *testing.T) {
		boom := errors.New("boom")
		err := s.WithTx(ctx, func(q Queries) error {
			require.NoError(t, q.CreateMessage(ctx, &model.Message{ID: "rollback", ChannelID: ch.ID, UserID: alice.ID, Content: "x", CreatedAt: now, UpdatedAt: now}))
			return boom
		})
		assert.ErrorIs(t, err, boom)
		_, err = s.GetMessageByID(ctx, "rollback")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("messages and reactions", func(t *testing.T) {
		img := &model.Message{ID: uuid.NewString(), ChannelID: ch.ID, UserID: alice.ID, ImageURL: "/uploads/a.png", CreatedAt: now, UpdatedAt: now}
		txt := &model.Message{ID: uuid.NewString(), ChannelID: ch.ID, UserID: alice.ID, Content: "Hello @alice", CreatedAt: now.Add(time.Second), UpdatedAt: now}
		require.NoError(t, s.CreateMessage(ctx, img))
		require.NoError(t, s.CreateMessage(ctx, txt))

		list, err := s.ListMessages(ctx, ch.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, img.ID, list[0].ID)
		assert.Equal(t, "/uploads/a.png", list[0].ImageURL)
		assert.Equal(t, "alice", list[1].Username)

		found, err := s.SearchMessages(ctx, ch.ID, "HELLO")
		require.NoError(t, err)
		require.Len(t, found, 1)

		require.NoError(t, s.AddReaction(ctx, &model.Reaction{MessageID: txt.ID, UserID: alice.ID, Emoji: "👍", CreatedAt: now}))
		counts, err := s.CountReactions(ctx, txt.ID)
		require.NoError(t, err)
		assert.Equal(t, []model.ReactionCount{{Emoji: "👍", Count: 1}}, counts)

		names, err := s.FindUsernames(ctx, []string{"alice", "nobody"})
		require.NoError(t, err)
		assert.Equal(t, []string{"alice"}, names)
	})

	t.Run("delete channel cascades", func(t *testing.T) {
		var images []string
		require.NoError(t, s.WithTx(ctx, func(q Queries) error {
			var err error
			images, err = q.DeleteChannel(ctx, ch.ID)
			return err
		}))
		assert.Equal(t, []string{"/uploads/a.png"}, images)
		list, err := s.ListMessages(ctx, ch.ID)
		require.NoError(t, err)
		assert.Empty(t, list)
		_, err = s.GetChannelByID(ctx, ch.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
