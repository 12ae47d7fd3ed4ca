package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/chatterbox/internal/apperror"
	"github.com/chatterbox/internal/logger"
	"github.com/chatterbox/internal/mention"
	"github.com/chatterbox/internal/model"
	"github.com/chatterbox/internal/repository"
	"github.com/google/uuid"
)

// NewMessage is a post request. Text and ImageURL may not both be empty.
type NewMessage struct {
	ChannelID string
	Text      string
	ImageURL  string
}

const previewRunes = 120

func (s *Service) PostMessage(ctx context.Context, p model.Principal, in NewMessage) (view *model.MessageView, err error) {
	defer func() { observe("post_message", err) }()

	in.Text = strings.TrimSpace(in.Text)
	if in.Text == "" && in.ImageURL == "" {
		return nil, apperror.ErrEmptyContent
	}
	ch, err := s.store.GetChannelByID(ctx, in.ChannelID)
	if err != nil {
		return nil, storeErr(err, apperror.ErrChannelNotFound)
	}

	now := s.now()
	msg := model.Message{
		ID:        uuid.NewString(),
		ChannelID: ch.ID,
		UserID:    p.UserID,
		Content:   in.Text,
		ImageURL:  in.ImageURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.store.WithTx(ctx, func(q repository.Queries) error {
		if err := q.CreateMessage(ctx, &msg); err != nil {
			return err
		}
		return q.UpsertMember(ctx, &model.ChannelMember{ChannelID: ch.ID, UserID: p.UserID, JoinedAt: now, LastReadAt: now})
	})
	if err != nil {
		return nil, storeErr(err, apperror.ErrChannelNotFound)
	}

	view = &model.MessageView{
		Message:   msg,
		Username:  p.Username,
		Reactions: []model.ReactionCount{},
	}
	s.decorate(ctx, view)
	s.broadcast(ctx, ch.ID, EventNewMessage, view)
	s.notifyMentions(ctx, p, ch, view)
	return view, nil
}

// decorate fills the mention fields. The message is already committed, so a failed
// lookup degrades to escaped text without mentions.
func (s *Service) decorate(ctx context.Context, view *model.MessageView) {
	res, err := s.mentions.Resolve(ctx, view.Content)
	if err != nil {
		logger.Errorf("chat.decorate %s: %v", view.ID, err)
		res = mention.Decorate(view.Content, nil)
	}
	view.DecoratedContent = res.Decorated
	view.Mentions = res.Mentions
}

// authoredMessage loads the message and checks that p wrote it.
func (s *Service) authoredMessage(ctx context.Context, p model.Principal, messageID string) (*model.Message, error) {
	msg, err := s.store.GetMessageByID(ctx, messageID)
	if err != nil {
		return nil, storeErr(err, apperror.ErrMessageNotFound)
	}
	if msg.UserID != p.UserID {
		return nil, apperror.ErrNotMessageAuthor
	}
	return msg, nil
}

// EditMessage replaces the text. Unchanged text succeeds without writing or broadcasting.
func (s *Service) EditMessage(ctx context.Context, p model.Principal, messageID, newText string) (view *model.MessageView, err error) {
	defer func() { observe("edit_message", err) }()

	msg, err := s.authoredMessage(ctx, p, messageID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(newText) == "" {
		return nil, apperror.ErrEmptyContent
	}

	changed := newText != msg.Content
	if changed {
		now := s.now()
		err = s.store.WithTx(ctx, func(q repository.Queries) error {
			return q.UpdateMessageContent(ctx, msg.ID, newText, now)
		})
		if err != nil {
			return nil, storeErr(err, apperror.ErrMessageNotFound)
		}
		msg.Content = newText
		msg.IsEdited = true
		msg.UpdatedAt = now
	}

	reactions, err := s.store.CountReactions(ctx, msg.ID)
	if err != nil {
		return nil, apperror.Store(err)
	}
	view = &model.MessageView{Message: *msg, Username: p.Username, Reactions: reactions}
	s.decorate(ctx, view)
	if changed {
		s.broadcast(ctx, msg.ChannelID, EventMessageEdited, MessageEdited{
			MessageID:        msg.ID,
			ChannelID:        msg.ChannelID,
			Content:          msg.Content,
			DecoratedContent: view.DecoratedContent,
			Mentions:         view.Mentions,
			IsEdited:         true,
			UpdatedAt:        msg.UpdatedAt,
		})
	}
	return view, nil
}

// DeleteMessage removes the message and its reactions in one transaction. It returns
// the deleted message so callers can clean up attachments.
func (s *Service) DeleteMessage(ctx context.Context, p model.Principal, messageID string) (msg *model.Message, err error) {
	defer func() { observe("delete_message", err) }()

	msg, err = s.authoredMessage(ctx, p, messageID)
	if err != nil {
		return nil, err
	}
	err = s.store.WithTx(ctx, func(q repository.Queries) error {
		return q.DeleteMessage(ctx, msg.ID)
	})
	if err != nil {
		return nil, storeErr(err, apperror.ErrMessageNotFound)
	}
	s.broadcast(ctx, msg.ChannelID, EventMessageDeleted, MessageDeleted{MessageID: msg.ID})
	return msg, nil
}

// ListMessages returns the channel's messages oldest first, decorated and with
// reaction counts.
func (s *Service) ListMessages(ctx context.Context, channelID string) ([]model.MessageView, error) {
	if _, err := s.store.GetChannelByID(ctx, channelID); err != nil {
		return nil, storeErr(err, apperror.ErrChannelNotFound)
	}
	views, err := s.store.ListMessages(ctx, channelID)
	if err != nil {
		return nil, apperror.Store(err)
	}
	return s.present(ctx, views)
}

// SearchMessages matches text case-insensitively, newest first. An empty keyword
// matches nothing.
func (s *Service) SearchMessages(ctx context.Context, channelID, keyword string) ([]model.MessageView, error) {
	if _, err := s.store.GetChannelByID(ctx, channelID); err != nil {
		return nil, storeErr(err, apperror.ErrChannelNotFound)
	}
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return []model.MessageView{}, nil
	}
	views, err := s.store.SearchMessages(ctx, channelID, keyword)
	if err != nil {
		return nil, apperror.Store(err)
	}
	return s.present(ctx, views)
}

// present resolves mentions and reaction counts for a page of messages with one
// lookup each.
func (s *Service) present(ctx context.Context, views []model.MessageView) ([]model.MessageView, error) {
	if len(views) == 0 {
		return views, nil
	}
	texts := make([]string, len(views))
	ids := make([]string, len(views))
	for i, v := range views {
		texts[i] = v.Content
		ids[i] = v.ID
	}
	resolved, err := s.mentions.ResolveMany(ctx, texts)
	if err != nil {
		return nil, apperror.Store(err)
	}
	counts, err := s.store.CountReactionsFor(ctx, ids)
	if err != nil {
		return nil, apperror.Store(err)
	}
	for i := range views {
		views[i].DecoratedContent = resolved[i].Decorated
		views[i].Mentions = resolved[i].Mentions
		views[i].Reactions = counts[views[i].ID]
		if views[i].Reactions == nil {
			views[i].Reactions = []model.ReactionCount{}
		}
	}
	return views, nil
}

// MarkRead records that p has seen the channel up to now.
func (s *Service) MarkRead(ctx context.Context, p model.Principal, channelID string) error {
	if _, err := s.store.GetChannelByID(ctx, channelID); err != nil {
		return storeErr(err, apperror.ErrChannelNotFound)
	}
	now := s.now()
	err := s.store.WithTx(ctx, func(q repository.Queries) error {
		return q.UpsertMember(ctx, &model.ChannelMember{ChannelID: channelID, UserID: p.UserID, JoinedAt: now, LastReadAt: now})
	})
	return storeErr(err, apperror.ErrChannelNotFound)
}

// notifyMentions alerts mentioned users other than the author in the background.
func (s *Service) notifyMentions(ctx context.Context, p model.Principal, ch *model.Channel, view *model.MessageView) {
	if s.notifier == nil || len(view.Mentions) == 0 {
		return
	}
	var targets []string
	for _, name := range view.Mentions {
		if name != p.Username {
			targets = append(targets, name)
		}
	}
	if len(targets) == 0 {
		return
	}
	title := fmt.Sprintf("%s mentioned you in #%s", p.Username, ch.Name)
	body := preview(view.Message)
	data := map[string]string{"channel_id": ch.ID, "message_id": view.ID}

	detached := context.WithoutCancel(ctx)
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(detached, notifyTimeout)
		defer cancel()
		for _, name := range targets {
			u, err := s.store.GetUserByUsername(ctx, name)
			if err != nil {
				logger.Errorf("chat.notifyMentions %s: %v", name, err)
				continue
			}
			s.notifier.Notify(ctx, u.ID, title, body, data)
		}
	}()
}

func preview(m model.Message) string {
	if strings.TrimSpace(m.Content) == "" {
		return "[image]"
	}
	r := []rune(m.Content)
	if len(r) > previewRunes {
		return string(r[:previewRunes]) + "…"
	}
	return m.Content
}
