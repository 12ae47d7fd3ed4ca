package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/chatterbox/internal/apperror"
	"github.com/chatterbox/internal/model"
	"github.com/chatterbox/internal/repository"
	"github.com/google/uuid"
)

const defaultChannelDescription = "General discussion channel"

// DefaultChannel returns the general channel, creating it on first use attributed
// to p. Concurrent first calls converge on the same row.
func (s *Service) DefaultChannel(ctx context.Context, p model.Principal) (ch *model.Channel, err error) {
	defer func() { observe("default_channel", err) }()

	ch, err = s.store.GetChannelByName(ctx, model.DefaultChannelName)
	if err == nil {
		return ch, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.Store(err)
	}

	now := s.now()
	ch = &model.Channel{
		ID:          uuid.NewString(),
		Name:        model.DefaultChannelName,
		Description: defaultChannelDescription,
		CreatedBy:   p.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.store.WithTx(ctx, func(q repository.Queries) error {
		if err := q.CreateChannel(ctx, ch); err != nil {
			return err
		}
		return q.UpsertMember(ctx, &model.ChannelMember{ChannelID: ch.ID, UserID: p.UserID, JoinedAt: now, LastReadAt: now})
	})
	if errors.Is(err, repository.ErrDuplicate) {
		// lost the creation race; the winner's row is the default channel
		ch, err = s.store.GetChannelByName(ctx, model.DefaultChannelName)
		return ch, storeErr(err, apperror.ErrChannelNotFound)
	}
	if err != nil {
		return nil, apperror.Store(err)
	}
	s.broadcast(ctx, GlobalRoom, EventChannelsUpdated, ChannelsUpdated{Action: ChannelCreated, Channel: *ch})
	return ch, nil
}

func (s *Service) CreateChannel(ctx context.Context, p model.Principal, name string) (ch *model.Channel, err error) {
	defer func() { observe("create_channel", err) }()

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ErrEmptyChannelName
	}
	if _, err := s.store.GetChannelByName(ctx, name); err == nil {
		return nil, apperror.ErrDuplicateChannelName
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.Store(err)
	}

	now := s.now()
	ch = &model.Channel{ID: uuid.NewString(), Name: name, CreatedBy: p.UserID, CreatedAt: now, UpdatedAt: now}
	err = s.store.WithTx(ctx, func(q repository.Queries) error {
		if err := q.CreateChannel(ctx, ch); err != nil {
			return err
		}
		return q.UpsertMember(ctx, &model.ChannelMember{ChannelID: ch.ID, UserID: p.UserID, JoinedAt: now, LastReadAt: now})
	})
	if err != nil {
		return nil, duplicateName(err)
	}
	s.broadcast(ctx, GlobalRoom, EventChannelsUpdated, ChannelsUpdated{Action: ChannelCreated, Channel: *ch})
	return ch, nil
}

// duplicateName reports a unique-index hit on channels.name as DuplicateName, which
// covers two writers that both passed the pre-check.
func duplicateName(err error) error {
	if errors.Is(err, repository.ErrDuplicate) {
		return apperror.ErrDuplicateChannelName
	}
	return storeErr(err, apperror.ErrChannelNotFound)
}

// ownedChannel loads the channel and checks that p may change it.
func (s *Service) ownedChannel(ctx context.Context, p model.Principal, channelID string) (*model.Channel, error) {
	ch, err := s.store.GetChannelByID(ctx, channelID)
	if err != nil {
		return nil, storeErr(err, apperror.ErrChannelNotFound)
	}
	if ch.CreatedBy != p.UserID {
		return nil, apperror.ErrNotChannelOwner
	}
	if ch.IsDefault() {
		return nil, apperror.ErrDefaultChannelProtected
	}
	return ch, nil
}

// RenameChannel changes the channel's name. Renaming to the current name succeeds
// without writing or broadcasting.
func (s *Service) RenameChannel(ctx context.Context, p model.Principal, channelID, newName string) (ch *model.Channel, err error) {
	defer func() { observe("rename_channel", err) }()

	ch, err = s.ownedChannel(ctx, p, channelID)
	if err != nil {
		return nil, err
	}
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil, apperror.ErrEmptyChannelName
	}
	if newName == ch.Name {
		return ch, nil
	}
	if other, err := s.store.GetChannelByName(ctx, newName); err == nil && other.ID != ch.ID {
		return nil, apperror.ErrDuplicateChannelName
	} else if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.Store(err)
	}

	now := s.now()
	err = s.store.WithTx(ctx, func(q repository.Queries) error {
		return q.RenameChannel(ctx, ch.ID, newName, now)
	})
	if err != nil {
		return nil, duplicateName(err)
	}
	ch.Name = newName
	ch.UpdatedAt = now
	s.broadcast(ctx, GlobalRoom, EventChannelsUpdated, ChannelsUpdated{Action: ChannelRenamed, Channel: *ch})
	return ch, nil
}

// DeleteChannel removes the channel with all of its messages, their reactions and
// the memberships, atomically. It returns the image references of the removed messages
// so the caller can drop the stored files.
func (s *Service) DeleteChannel(ctx context.Context, p model.Principal, channelID string) (images []string, err error) {
	defer func() { observe("delete_channel", err) }()

	ch, err := s.ownedChannel(ctx, p, channelID)
	if err != nil {
		return nil, err
	}
	err = s.store.WithTx(ctx, func(q repository.Queries) error {
		images, err = q.DeleteChannel(ctx, ch.ID)
		return err
	})
	if err != nil {
		return nil, storeErr(err, apperror.ErrChannelNotFound)
	}
	s.broadcast(ctx, GlobalRoom, EventChannelsUpdated, ChannelsUpdated{Action: ChannelDeleted, Channel: *ch})
	return images, nil
}

func (s *Service) GetChannel(ctx context.Context, channelID string) (*model.Channel, error) {
	ch, err := s.store.GetChannelByID(ctx, channelID)
	if err != nil {
		return nil, storeErr(err, apperror.ErrChannelNotFound)
	}
	return ch, nil
}

func (s *Service) ListChannels(ctx context.Context) ([]model.Channel, error) {
	channels, err := s.store.ListChannels(ctx)
	if err != nil {
		return nil, apperror.Store(err)
	}
	return channels, nil
}

// SearchChannels matches names case-insensitively. An empty keyword lists every channel.
func (s *Service) SearchChannels(ctx context.Context, keyword string) ([]model.Channel, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return s.ListChannels(ctx)
	}
	channels, err := s.store.SearchChannels(ctx, keyword)
	if err != nil {
		return nil, apperror.Store(err)
	}
	return channels, nil
}
