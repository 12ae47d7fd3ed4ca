package model

import "time"

type Message struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	ImageURL  string    `json:"image_url,omitempty"`
	IsEdited  bool      `json:"is_edited"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Reaction struct {
	MessageID string    `json:"message_id"`
	UserID    string    `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// ReactionCount is the number of distinct users who reacted with Emoji.
type ReactionCount struct {
	Emoji string `json:"emoji"`
	Count int    `json:"count"`
}

// MessageView is a message as shown to clients: author name, mention-decorated
// content and aggregated reactions.
type MessageView struct {
	Message
	Username         string          `json:"username"`
	DecoratedContent string          `json:"decorated_content"`
	Mentions         []string        `json:"mentions"`
	Reactions        []ReactionCount `json:"reactions"`
}
