// Package memory is an in-process repository.Store for -memory mode and tests.
// Transactions hold the store lock and work on a copy that replaces the live data
// only when the callback succeeds.
package memory

import (
	"context"
	"errors"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chatterbox/internal/model"
	"github.com/chatterbox/internal/repository"
)

var errForeignKey = errors.New("memory: foreign key violation")

type memberKey struct{ channelID, userID string }

type reactionKey struct{ messageID, userID, emoji string }

type messageRow struct {
	model.Message
	seq int64
}

type reactionRow struct {
	model.Reaction
	seq int64
}

type data struct {
	seq       int64
	users     map[string]model.User
	channels  map[string]model.Channel
	members   map[memberKey]model.ChannelMember
	messages  map[string]messageRow
	reactions map[reactionKey]reactionRow
}

func newData() *data {
	return &data{
		users:     make(map[string]model.User),
		channels:  make(map[string]model.Channel),
		members:   make(map[memberKey]model.ChannelMember),
		messages:  make(map[string]messageRow),
		reactions: make(map[reactionKey]reactionRow),
	}
}

func (d *data) clone() *data {
	return &data{
		seq:       d.seq,
		users:     maps.Clone(d.users),
		channels:  maps.Clone(d.channels),
		members:   maps.Clone(d.members),
		messages:  maps.Clone(d.messages),
		reactions: maps.Clone(d.reactions),
	}
}

func (d *data) next() int64 {
	d.seq++
	return d.seq
}

type Store struct {
	*queries
	mu sync.Mutex
	d  *data
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	s := &Store{d: newData()}
	s.queries = &queries{mu: &s.mu, d: s.d}
	return s
}

func (s *Store) WithTx(ctx context.Context, fn func(q repository.Queries) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.d.clone()
	if err := fn(&queries{d: work}); err != nil {
		return err
	}
	*s.d = *work
	return nil
}

// queries locks mu around each call when set. Inside a transaction mu is nil
// because WithTx already holds the lock.
type queries struct {
	mu *sync.Mutex
	d  *data
}

func (q *queries) lock() func() {
	if q.mu == nil {
		return func() {}
	}
	q.mu.Lock()
	return q.mu.Unlock
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func (q *queries) CreateUser(_ context.Context, u *model.User) error {
	defer q.lock()()
	if _, ok := q.d.users[u.ID]; ok {
		return repository.ErrDuplicate
	}
	for _, existing := range q.d.users {
		if existing.Username == u.Username {
			return repository.ErrDuplicate
		}
	}
	q.d.users[u.ID] = *u
	return nil
}

func (q *queries) GetUserByID(_ context.Context, id string) (*model.User, error) {
	defer q.lock()()
	u, ok := q.d.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (q *queries) GetUserByUsername(_ context.Context, username string) (*model.User, error) {
	defer q.lock()()
	for _, u := range q.d.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (q *queries) FindUsernames(_ context.Context, names []string) ([]string, error) {
	defer q.lock()()
	wanted := make(map[string]struct{}, len(names))
	for _, n := range names {
		wanted[n] = struct{}{}
	}
	var found []string
	for _, u := range q.d.users {
		if _, ok := wanted[u.Username]; ok {
			found = append(found, u.Username)
		}
	}
	sort.Strings(found)
	return found, nil
}

func (q *queries) UpdateProfile(_ context.Context, u *model.User) error {
	defer q.lock()()
	cur, ok := q.d.users[u.ID]
	if !ok {
		return repository.ErrNotFound
	}
	cur.StatusMessage = u.StatusMessage
	cur.AvatarBgColor = u.AvatarBgColor
	cur.AvatarTextColor = u.AvatarTextColor
	cur.Theme = u.Theme
	cur.UpdatedAt = u.UpdatedAt
	q.d.users[u.ID] = cur
	return nil
}

func (q *queries) CreateChannel(_ context.Context, c *model.Channel) error {
	defer q.lock()()
	if _, ok := q.d.users[c.CreatedBy]; !ok {
		return errForeignKey
	}
	if _, ok := q.d.channels[c.ID]; ok {
		return repository.ErrDuplicate
	}
	for _, existing := range q.d.channels {
		if existing.Name == c.Name {
			return repository.ErrDuplicate
		}
	}
	q.d.channels[c.ID] = *c
	return nil
}

func (q *queries) GetChannelByID(_ context.Context, id string) (*model.Channel, error) {
	defer q.lock()()
	c, ok := q.d.channels[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (q *queries) GetChannelByName(_ context.Context, name string) (*model.Channel, error) {
	defer q.lock()()
	for _, c := range q.d.channels {
		if c.Name == name {
			return &c, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (q *queries) channelsWhere(match func(model.Channel) bool) []model.Channel {
	out := make([]model.Channel, 0, len(q.d.channels))
	for _, c := range q.d.channels {
		if match(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (q *queries) ListChannels(_ context.Context) ([]model.Channel, error) {
	defer q.lock()()
	return q.channelsWhere(func(model.Channel) bool { return true }), nil
}

func (q *queries) SearchChannels(_ context.Context, keyword string) ([]model.Channel, error) {
	defer q.lock()()
	return q.channelsWhere(func(c model.Channel) bool { return containsFold(c.Name, keyword) }), nil
}

func (q *queries) RenameChannel(_ context.Context, id, name string, updatedAt time.Time) error {
	defer q.lock()()
	c, ok := q.d.channels[id]
	if !ok {
		return repository.ErrNotFound
	}
	for _, existing := range q.d.channels {
		if existing.ID != id && existing.Name == name {
			return repository.ErrDuplicate
		}
	}
	c.Name = name
	c.UpdatedAt = updatedAt
	q.d.channels[id] = c
	return nil
}

func (q *queries) DeleteChannel(_ context.Context, id string) ([]string, error) {
	defer q.lock()()
	if _, ok := q.d.channels[id]; !ok {
		return nil, repository.ErrNotFound
	}
	var images []string
	for mid, m := range q.d.messages {
		if m.ChannelID == id {
			if m.ImageURL != "" {
				images = append(images, m.ImageURL)
			}
			q.deleteMessageLocked(mid)
		}
	}
	for k := range q.d.members {
		if k.channelID == id {
			delete(q.d.members, k)
		}
	}
	delete(q.d.channels, id)
	return images, nil
}

func (q *queries) UpsertMember(_ context.Context, m *model.ChannelMember) error {
	defer q.lock()()
	if _, ok := q.d.channels[m.ChannelID]; !ok {
		return errForeignKey
	}
	if _, ok := q.d.users[m.UserID]; !ok {
		return errForeignKey
	}
	k := memberKey{m.ChannelID, m.UserID}
	if cur, ok := q.d.members[k]; ok {
		if m.LastReadAt.After(cur.LastReadAt) {
			cur.LastReadAt = m.LastReadAt
		}
		q.d.members[k] = cur
		return nil
	}
	q.d.members[k] = *m
	return nil
}

func (q *queries) GetMember(_ context.Context, channelID, userID string) (*model.ChannelMember, error) {
	defer q.lock()()
	m, ok := q.d.members[memberKey{channelID, userID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}

func (q *queries) CreateMessage(_ context.Context, m *model.Message) error {
	defer q.lock()()
	if _, ok := q.d.channels[m.ChannelID]; !ok {
		return errForeignKey
	}
	if _, ok := q.d.users[m.UserID]; !ok {
		return errForeignKey
	}
	if _, ok := q.d.messages[m.ID]; ok {
		return repository.ErrDuplicate
	}
	q.d.messages[m.ID] = messageRow{Message: *m, seq: q.d.next()}
	return nil
}

func (q *queries) GetMessageByID(_ context.Context, id string) (*model.Message, error) {
	defer q.lock()()
	row, ok := q.d.messages[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	m := row.Message
	return &m, nil
}

func (q *queries) messageViews(channelID string, match func(model.Message) bool, newestFirst bool) []model.MessageView {
	rows := make([]messageRow, 0, 16)
	for _, row := range q.d.messages {
		if row.ChannelID == channelID && match(row.Message) {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if newestFirst {
			a, b = b, a
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.seq < b.seq
	})
	views := make([]model.MessageView, 0, len(rows))
	for _, row := range rows {
		views = append(views, model.MessageView{Message: row.Message, Username: q.d.users[row.UserID].Username})
	}
	return views
}

func (q *queries) ListMessages(_ context.Context, channelID string) ([]model.MessageView, error) {
	defer q.lock()()
	return q.messageViews(channelID, func(model.Message) bool { return true }, false), nil
}

func (q *queries) SearchMessages(_ context.Context, channelID, keyword string) ([]model.MessageView, error) {
	defer q.lock()()
	return q.messageViews(channelID, func(m model.Message) bool { return containsFold(m.Content, keyword) }, true), nil
}

func (q *queries) UpdateMessageContent(_ context.Context, id, content string, updatedAt time.Time) error {
	defer q.lock()()
	row, ok := q.d.messages[id]
	if !ok {
		return repository.ErrNotFound
	}
	row.Content = content
	row.IsEdited = true
	row.UpdatedAt = updatedAt
	q.d.messages[id] = row
	return nil
}

func (q *queries) DeleteMessage(_ context.Context, id string) error {
	defer q.lock()()
	if _, ok := q.d.messages[id]; !ok {
		return repository.ErrNotFound
	}
	q.deleteMessageLocked(id)
	return nil
}

func (q *queries) deleteMessageLocked(id string) {
	for k := range q.d.reactions {
		if k.messageID == id {
			delete(q.d.reactions, k)
		}
	}
	delete(q.d.messages, id)
}

func (q *queries) HasReaction(_ context.Context, messageID, userID, emoji string) (bool, error) {
	defer q.lock()()
	_, ok := q.d.reactions[reactionKey{messageID, userID, emoji}]
	return ok, nil
}

func (q *queries) AddReaction(_ context.Context, r *model.Reaction) error {
	defer q.lock()()
	if _, ok := q.d.messages[r.MessageID]; !ok {
		return errForeignKey
	}
	k := reactionKey{r.MessageID, r.UserID, r.Emoji}
	if _, ok := q.d.reactions[k]; ok {
		return nil
	}
	q.d.reactions[k] = reactionRow{Reaction: *r, seq: q.d.next()}
	return nil
}

func (q *queries) RemoveReaction(_ context.Context, messageID, userID, emoji string) error {
	defer q.lock()()
	delete(q.d.reactions, reactionKey{messageID, userID, emoji})
	return nil
}

func (q *queries) CountReactions(_ context.Context, messageID string) ([]model.ReactionCount, error) {
	defer q.lock()()
	return q.countLocked(messageID), nil
}

func (q *queries) CountReactionsFor(_ context.Context, messageIDs []string) (map[string][]model.ReactionCount, error) {
	defer q.lock()()
	out := make(map[string][]model.ReactionCount, len(messageIDs))
	for _, id := range messageIDs {
		if counts := q.countLocked(id); len(counts) > 0 {
			out[id] = counts
		}
	}
	return out, nil
}

func (q *queries) countLocked(messageID string) []model.ReactionCount {
	type group struct {
		emoji string
		users map[string]struct{}
		first reactionRow
	}
	groups := make(map[string]*group)
	for k, row := range q.d.reactions {
		if k.messageID != messageID {
			continue
		}
		g, ok := groups[k.emoji]
		if !ok {
			g = &group{emoji: k.emoji, users: make(map[string]struct{}), first: row}
			groups[k.emoji] = g
		}
		g.users[k.userID] = struct{}{}
		if earlier(row, g.first) {
			g.first = row
		}
	}
	ordered := make([]*group, 0, len(groups))
	for _, g := range groups {
		ordered = append(ordered, g)
	}
	sort.Slice(ordered, func(i, j int) bool { return earlier(ordered[i].first, ordered[j].first) })
	counts := make([]model.ReactionCount, 0, len(ordered))
	for _, g := range ordered {
		counts = append(counts, model.ReactionCount{Emoji: g.emoji, Count: len(g.users)})
	}
	return counts
}

func earlier(a, b reactionRow) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.seq < b.seq
}
