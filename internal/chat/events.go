package chat

import (
	"time"

	"github.com/chatterbox/internal/model"
)

type EventType string

const (
	EventNewMessage      EventType = "new_message"
	EventMessageEdited   EventType = "message_edited"
	EventMessageDeleted  EventType = "message_deleted"
	EventUpdateReactions EventType = "update_reactions"
	EventChannelsUpdated EventType = "channels_updated"
	EventError           EventType = "error"
)

// GlobalRoom addresses every connected client regardless of joined channels.
const GlobalRoom = ""

type MessageEdited struct {
	MessageID        string    `json:"message_id"`
	ChannelID        string    `json:"channel_id"`
	Content          string    `json:"content"`
	DecoratedContent string    `json:"decorated_content"`
	Mentions         []string  `json:"mentions"`
	IsEdited         bool      `json:"is_edited"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type MessageDeleted struct {
	MessageID string `json:"message_id"`
}

type ReactionsUpdated struct {
	MessageID string                `json:"message_id"`
	Reactions []model.ReactionCount `json:"reactions"`
}

type ChannelAction string

const (
	ChannelCreated ChannelAction = "created"
	ChannelRenamed ChannelAction = "renamed"
	ChannelDeleted ChannelAction = "deleted"
)

type ChannelsUpdated struct {
	Action  ChannelAction `json:"action"`
	Channel model.Channel `json:"channel"`
}

type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
