package ws

import (
	"github.com/chatterbox/internal/apperror"
	"github.com/chatterbox/internal/chat"
)

// FrameType names a client-to-server frame.
type FrameType string

const (
	FrameJoin           FrameType = "join"
	FrameLeave          FrameType = "leave"
	FrameSendMessage    FrameType = "send_message"
	FrameEditMessage    FrameType = "edit_message"
	FrameDeleteMessage  FrameType = "delete_message"
	FrameToggleReaction FrameType = "toggle_reaction"
)

var errMalformedFrame = apperror.New(apperror.CodeInvalidArgument, "malformed frame")

// IncomingMessage is what the client sends to the server. Frames carry text only;
// images are posted over HTTP where the upload is validated.
type IncomingMessage struct {
	Type      FrameType `json:"type"`
	ChannelID string    `json:"channel_id,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	Content   string    `json:"content,omitempty"`
	Emoji     string    `json:"emoji,omitempty"`
}

// OutgoingMessage is what the server sends to the client. ChannelID is the room the
// event was broadcast to, empty for global events.
type OutgoingMessage struct {
	Type      chat.EventType `json:"type"`
	ChannelID string         `json:"channel_id,omitempty"`
	Payload   any            `json:"payload"`
}
