package chat

import (
	"context"
	"strings"

	"github.com/chatterbox/internal/apperror"
	"github.com/chatterbox/internal/model"
	"github.com/chatterbox/internal/repository"
)

// ToggleReaction adds p's emoji reaction to the message, or removes it if present.
// Reactions with different emoji are independent of each other.
func (s *Service) ToggleReaction(ctx context.Context, p model.Principal, messageID, emoji string) (out *ReactionsUpdated, err error) {
	defer func() { observe("toggle_reaction", err) }()

	msg, err := s.store.GetMessageByID(ctx, messageID)
	if err != nil {
		return nil, storeErr(err, apperror.ErrMessageNotFound)
	}
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, apperror.ErrEmptyEmoji
	}

	var counts []model.ReactionCount
	err = s.store.WithTx(ctx, func(q repository.Queries) error {
		has, err := q.HasReaction(ctx, msg.ID, p.UserID, emoji)
		if err != nil {
			return err
		}
		if has {
			err = q.RemoveReaction(ctx, msg.ID, p.UserID, emoji)
		} else {
			err = q.AddReaction(ctx, &model.Reaction{MessageID: msg.ID, UserID: p.UserID, Emoji: emoji, CreatedAt: s.now()})
		}
		if err != nil {
			return err
		}
		counts, err = q.CountReactions(ctx, msg.ID)
		return err
	})
	if err != nil {
		return nil, storeErr(err, apperror.ErrMessageNotFound)
	}
	if counts == nil {
		counts = []model.ReactionCount{}
	}

	out = &ReactionsUpdated{MessageID: msg.ID, Reactions: counts}
	s.broadcast(ctx, msg.ChannelID, EventUpdateReactions, out)
	return out, nil
}

func (s *Service) Reactions(ctx context.Context, messageID string) ([]model.ReactionCount, error) {
	if _, err := s.store.GetMessageByID(ctx, messageID); err != nil {
		return nil, storeErr(err, apperror.ErrMessageNotFound)
	}
	counts, err := s.store.CountReactions(ctx, messageID)
	if err != nil {
		return nil, apperror.Store(err)
	}
	if counts == nil {
		counts = []model.ReactionCount{}
	}
	return counts, nil
}
