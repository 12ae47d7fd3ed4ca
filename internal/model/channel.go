package model

import "time"

// DefaultChannelName is the channel every deployment has. It is created lazily and
// can never be renamed or deleted.
const DefaultChannelName = "general"

type Channel struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (c *Channel) IsDefault() bool {
	return c.Name == DefaultChannelName
}

type ChannelMember struct {
	ChannelID  string    `json:"channel_id"`
	UserID     string    `json:"user_id"`
	JoinedAt   time.Time `json:"joined_at"`
	LastReadAt time.Time `json:"last_read_at"`
}
