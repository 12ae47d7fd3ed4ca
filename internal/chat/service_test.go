package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/chatterbox/internal/apperror"
	"github.com/chatterbox/internal/model"
	"github.com/chatterbox/internal/repository"
	"github.com/chatterbox/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type event struct {
	room    string
	typ     EventType
	payload any
}

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) Broadcast(_ context.Context, room string, typ EventType, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{room, typ, payload})
}

func (r *recorder) take() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

type notification struct {
	userID, title, body string
}

type notifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *notifier) Notify(_ context.Context, userID, title, body string, _ map[string]string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{userID, title, body})
}

type fixture struct {
	svc   *Service
	store *memory.Store
	bc    *recorder
	push  *notifier
	alice model.Principal
	bob   model.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	ctx := context.Background()
	f := &fixture{
		store: store,
		bc:    &recorder{},
		push:  &notifier{},
		alice: model.Principal{UserID: "u-alice", Username: "alice"},
		bob:   model.Principal{UserID: "u-bob", Username: "bob"},
	}
	for _, p := range []model.Principal{f.alice, f.bob} {
		require.NoError(t, store.CreateUser(ctx, &model.User{ID: p.UserID, Username: p.Username}))
	}
	f.svc = NewService(store, f.bc, f.push)
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	var (
		clockMu sync.Mutex
		tick    int
	)
	f.svc.now = func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return f
}

func (f *fixture) general(t *testing.T) *model.Channel {
	t.Helper()
	ch, err := f.svc.DefaultChannel(context.Background(), f.alice)
	require.NoError(t, err)
	return ch
}

func (f *fixture) post(t *testing.T, p model.Principal, channelID, text string) *model.MessageView {
	t.Helper()
	v, err := f.svc.PostMessage(context.Background(), p, NewMessage{ChannelID: channelID, Text: text})
	require.NoError(t, err)
	return v
}

func TestDefaultChannelIsStable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.DefaultChannel(ctx, f.alice)
	require.NoError(t, err)
	second, err := f.svc.DefaultChannel(ctx, f.bob)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, model.DefaultChannelName, second.Name)
	assert.Equal(t, f.alice.UserID, second.CreatedBy)
}

func TestDefaultChannelConcurrentFirstUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ids := make([]string, 8)
	var wg sync.WaitGroup
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ch, err := f.svc.DefaultChannel(ctx, f.alice)
			if assert.NoError(t, err) {
				ids[i] = ch.ID
			}
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	channels, err := f.svc.ListChannels(ctx)
	require.NoError(t, err)
	assert.Len(t, channels, 1)
}

func TestCreateChannel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ch, err := f.svc.CreateChannel(ctx, f.alice, "  dev  ")
	require.NoError(t, err)
	assert.Equal(t, "dev", ch.Name)
	assert.Equal(t, f.alice.UserID, ch.CreatedBy)

	member, err := f.store.GetMember(ctx, ch.ID, f.alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, ch.ID, member.ChannelID)

	evts := f.bc.take()
	require.Len(t, evts, 1)
	assert.Equal(t, GlobalRoom, evts[0].room)
	assert.Equal(t, EventChannelsUpdated, evts[0].typ)
	assert.Equal(t, ChannelCreated, evts[0].payload.(ChannelsUpdated).Action)

	_, err = f.svc.CreateChannel(ctx, f.bob, "dev")
	assert.ErrorIs(t, err, apperror.ErrDuplicateChannelName)
	_, err = f.svc.CreateChannel(ctx, f.bob, "   ")
	assert.ErrorIs(t, err, apperror.ErrEmptyChannelName)
	assert.Empty(t, f.bc.take())
}

func TestRenameChannel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	general := f.general(t)
	dev, err := f.svc.CreateChannel(ctx, f.alice, "dev")
	require.NoError(t, err)
	_, err = f.svc.CreateChannel(ctx, f.alice, "ops")
	require.NoError(t, err)
	f.bc.take()

	tests := []struct {
		name    string
		who     model.Principal
		id      string
		newName string
		wantErr error
	}{
		{"missing", f.alice, "nope", "x", apperror.ErrChannelNotFound},
		{"not owner", f.bob, dev.ID, "x", apperror.ErrNotChannelOwner},
		{"default", f.alice, general.ID, "x", apperror.ErrDefaultChannelProtected},
		{"empty", f.alice, dev.ID, " ", apperror.ErrEmptyChannelName},
		{"taken", f.alice, dev.ID, "ops", apperror.ErrDuplicateChannelName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.RenameChannel(ctx, tt.who, tt.id, tt.newName)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Empty(t, f.bc.take())

	same, err := f.svc.RenameChannel(ctx, f.alice, dev.ID, "dev")
	require.NoError(t, err)
	assert.Equal(t, "dev", same.Name)
	assert.Empty(t, f.bc.take(), "same-name rename is a no-op")

	renamed, err := f.svc.RenameChannel(ctx, f.alice, dev.ID, "backend")
	require.NoError(t, err)
	assert.Equal(t, "backend", renamed.Name)
	got, err := f.svc.GetChannel(ctx, dev.ID)
	require.NoError(t, err)
	assert.Equal(t, "backend", got.Name)
	require.Len(t, f.bc.take(), 1)
}

func TestDeleteChannelScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	general := f.general(t)
	dev, err := f.svc.CreateChannel(ctx, f.alice, "dev")
	require.NoError(t, err)
	m := f.post(t, f.bob, dev.ID, "hello")
	_, err = f.svc.ToggleReaction(ctx, f.alice, m.ID, "👍")
	require.NoError(t, err)

	pic, err := f.svc.PostMessage(ctx, f.bob, NewMessage{ChannelID: dev.ID, ImageURL: "/uploads/pic.png"})
	require.NoError(t, err)

	_, err = f.svc.DeleteChannel(ctx, f.bob, dev.ID)
	assert.ErrorIs(t, err, apperror.ErrNotChannelOwner)

	images, err := f.svc.DeleteChannel(ctx, f.alice, dev.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{pic.ImageURL}, images)

	_, err = f.svc.GetChannel(ctx, dev.ID)
	assert.ErrorIs(t, err, apperror.ErrChannelNotFound)
	_, err = f.store.GetMessageByID(ctx, m.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = f.svc.ListMessages(ctx, dev.ID)
	assert.ErrorIs(t, err, apperror.ErrChannelNotFound)

	still, err := f.svc.GetChannel(ctx, general.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultChannelName, still.Name)

	_, err = f.svc.DeleteChannel(ctx, f.alice, general.ID)
	assert.ErrorIs(t, err, apperror.ErrDefaultChannelProtected)
}

func TestPostAndListRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	general := f.general(t)
	f.bc.take()

	posted := f.post(t, f.alice, general.ID, "hello @bob")
	assert.Equal(t, []string{"bob"}, posted.Mentions)

	evts := f.bc.take()
	require.Len(t, evts, 1)
	assert.Equal(t, general.ID, evts[0].room)
	assert.Equal(t, EventNewMessage, evts[0].typ)

	list, err := f.svc.ListMessages(ctx, general.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "hello @bob", list[0].Content)
	assert.Equal(t, `hello <span class="mention">@bob</span>`, list[0].DecoratedContent)
	assert.Equal(t, "alice", list[0].Username)
	assert.False(t, list[0].IsEdited)
	assert.Empty(t, list[0].Reactions)

	f.svc.Wait()
	f.push.mu.Lock()
	defer f.push.mu.Unlock()
	require.Len(t, f.push.sent, 1)
	assert.Equal(t, f.bob.UserID, f.push.sent[0].userID)
	assert.Equal(t, "alice mentioned you in #general", f.push.sent[0].title)
	assert.Equal(t, "hello @bob", f.push.sent[0].body)
}

func TestPostMessageValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	general := f.general(t)

	_, err := f.svc.PostMessage(ctx, f.alice, NewMessage{ChannelID: general.ID})
	assert.ErrorIs(t, err, apperror.ErrEmptyContent)
	list, err := f.svc.ListMessages(ctx, general.ID)
	require.NoError(t, err)
	assert.Empty(t, list, "no row inserted")

	_, err = f.svc.PostMessage(ctx, f.alice, NewMessage{ChannelID: "missing", Text: "hi"})
	assert.ErrorIs(t, err, apperror.ErrChannelNotFound)

	img, err := f.svc.PostMessage(ctx, f.alice, NewMessage{ChannelID: general.ID, ImageURL: "/uploads/cat.png"})
	require.NoError(t, err)
	assert.Equal(t, "/uploads/cat.png", img.ImageURL)
	assert.Empty(t, img.Content)
}

func TestPostMessageStoresTrimmedText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	general := f.general(t)

	blank, err := f.svc.PostMessage(ctx, f.alice, NewMessage{ChannelID: general.ID, Text: "   ", ImageURL: "/uploads/cat.png"})
	require.NoError(t, err)
	assert.Empty(t, blank.Content)
	assert.Empty(t, blank.DecoratedContent)

	padded := f.post(t, f.alice, general.ID, "  hi there \n")
	assert.Equal(t, "hi there", padded.Content)

	stored, err := f.store.GetMessageByID(ctx, blank.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Content)
}

func TestMessagesListedOldestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	general := f.general(t)
	for _, text := range []string{"one", "two", "three"} {
		f.post(t, f.alice, general.ID, text)
	}
	list, err := f.svc.ListMessages(ctx, general.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "one", list[0].Content)
	assert.Equal(t, "three", list[2].Content)
}

func TestEditMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	general := f.general(t)
	m := f.post(t, f.alice, general.ID, "first")
	f.bc.take()

	_, err := f.svc.EditMessage(ctx, f.bob, m.ID, "hijack")
	assert.ErrorIs(t, err, apperror.ErrNotMessageAuthor)
	stored, err := f.store.GetMessageByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", stored.Content)
	assert.False(t, stored.IsEdited)

	_, err = f.svc.EditMessage(ctx, f.alice, "missing", "x")
	assert.ErrorIs(t, err, apperror.ErrMessageNotFound)
	_, err = f.svc.EditMessage(ctx, f.alice, m.ID, "  ")
	assert.ErrorIs(t, err, apperror.ErrEmptyContent)

	same, err := f.svc.EditMessage(ctx, f.alice, m.ID, "first")
	require.NoError(t, err)
	assert.False(t, same.IsEdited)
	assert.Empty(t, f.bc.take(), "unchanged text is not broadcast")

	edited, err := f.svc.EditMessage(ctx, f.alice, m.ID, "second @alice")
	require.NoError(t, err)
	assert.True(t, edited.IsEdited)
	assert.True(t, edited.UpdatedAt.After(edited.CreatedAt))

	evts := f.bc.take()
	require.Len(t, evts, 1)
	assert.Equal(t, EventMessageEdited, evts[0].typ)
	payload := evts[0].payload.(MessageEdited)
	assert.Equal(t, m.ID, payload.MessageID)
	assert.Equal(t, []string{"alice"}, payload.Mentions)

	stored, err = f.store.GetMessageByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "second @alice", stored.Content)
	assert.True(t, stored.IsEdited)
}

func TestDeleteMessageRemovesReactions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	general := f.general(t)
	m := f.post(t, f.alice, general.ID, "bye")
	_, err := f.svc.ToggleReaction(ctx, f.alice, m.ID, "👍")
	require.NoError(t, err)
	_, err = f.svc.ToggleReaction(ctx, f.bob, m.ID, "🎉")
	require.NoError(t, err)
	f.bc.take()

	_, err = f.svc.DeleteMessage(ctx, f.bob, m.ID)
	assert.ErrorIs(t, err, apperror.ErrNotMessageAuthor)

	deleted, err := f.svc.DeleteMessage(ctx, f.alice, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, deleted.ID)

	evts := f.bc.take()
	require.Len(t, evts, 1)
	assert.Equal(t, EventMessageDeleted, evts[0].typ)
	assert.Equal(t, MessageDeleted{MessageID: m.ID}, evts[0].payload)

	counts, err := f.store.CountReactions(ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, counts)
	_, err = f.svc.ToggleReaction(ctx, f.alice, m.ID, "👍")
	assert.ErrorIs(t, err, apperror.ErrMessageNotFound)
	_, err = f.svc.DeleteMessage(ctx, f.alice, m.ID)
	assert.ErrorIs(t, err, apperror.ErrMessageNotFound)
}

func TestToggleReaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	general := f.general(t)
	m := f.post(t, f.alice, general.ID, "react to me")
	f.bc.take()

	on, err := f.svc.ToggleReaction(ctx, f.bob, m.ID, "👍")
	require.NoError(t, err)
	assert.Equal(t, []model.ReactionCount{{Emoji: "👍", Count: 1}}, on.Reactions)

	off, err := f.svc.ToggleReaction(ctx, f.bob, m.ID, "👍")
	require.NoError(t, err)
	assert.Empty(t, off.Reactions)
	has, err := f.store.HasReaction(ctx, m.ID, f.bob.UserID, "👍")
	require.NoError(t, err)
	assert.False(t, has, "two toggles leave no row")

	evts := f.bc.take()
	require.Len(t, evts, 2)
	assert.Equal(t, EventUpdateReactions, evts[1].typ)
	assert.Equal(t, general.ID, evts[1].room)

	_, err = f.svc.ToggleReaction(ctx, f.bob, m.ID, "")
	assert.ErrorIs(t, err, apperror.ErrEmptyEmoji)
	_, err = f.svc.ToggleReaction(ctx, f.bob, "missing", "👍")
	assert.ErrorIs(t, err, apperror.ErrMessageNotFound)
}

func TestReactionsWithDifferentEmojiAreIndependent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	general := f.general(t)
	m := f.post(t, f.alice, general.ID, "multi")

	for _, step := range []struct {
		who   model.Principal
		emoji string
	}{{f.bob, "👍"}, {f.bob, "❤️"}, {f.alice, "👍"}} {
		_, err := f.svc.ToggleReaction(ctx, step.who, m.ID, step.emoji)
		require.NoError(t, err)
	}

	counts, err := f.svc.Reactions(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, []model.ReactionCount{{Emoji: "👍", Count: 2}, {Emoji: "❤️", Count: 1}}, counts)

	list, err := f.svc.ListMessages(ctx, general.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, counts, list[0].Reactions)
}

func TestSearchMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	general := f.general(t)
	f.post(t, f.alice, general.ID, "Deploy today")
	f.post(t, f.bob, general.ID, "lunch?")
	f.post(t, f.bob, general.ID, "deploy done")

	empty, err := f.svc.SearchMessages(ctx, general.ID, "")
	require.NoError(t, err)
	assert.Empty(t, empty)

	found, err := f.svc.SearchMessages(ctx, general.ID, "DEPLOY")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "deploy done", found[0].Content, "newest first")
	assert.Equal(t, "Deploy today", found[1].Content)

	_, err = f.svc.SearchMessages(ctx, "missing", "x")
	assert.ErrorIs(t, err, apperror.ErrChannelNotFound)
}

func TestSearchChannels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.general(t)
	for _, name := range []string{"Dev-Backend", "devops", "random"} {
		_, err := f.svc.CreateChannel(ctx, f.alice, name)
		require.NoError(t, err)
	}

	found, err := f.svc.SearchChannels(ctx, "dev")
	require.NoError(t, err)
	require.Len(t, found, 2)

	all, err := f.svc.SearchChannels(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestMarkRead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	general := f.general(t)

	require.NoError(t, f.svc.MarkRead(ctx, f.bob, general.ID))
	first, err := f.store.GetMember(ctx, general.ID, f.bob.UserID)
	require.NoError(t, err)

	require.NoError(t, f.svc.MarkRead(ctx, f.bob, general.ID))
	second, err := f.store.GetMember(ctx, general.ID, f.bob.UserID)
	require.NoError(t, err)
	assert.True(t, second.LastReadAt.After(first.LastReadAt))

	assert.ErrorIs(t, f.svc.MarkRead(ctx, f.bob, "missing"), apperror.ErrChannelNotFound)
}

func TestSelfMentionIsNotNotified(t *testing.T) {
	f := newFixture(t)
	general := f.general(t)
	f.post(t, f.alice, general.ID, "note to @alice")
	f.svc.Wait()
	f.push.mu.Lock()
	defer f.push.mu.Unlock()
	assert.Empty(t, f.push.sent)
}
