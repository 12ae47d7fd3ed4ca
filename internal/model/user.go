package model

import "time"

type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

func (t Theme) Valid() bool {
	return t == ThemeLight || t == ThemeDark || t == ThemeSystem
}

const (
	DefaultAvatarBgColor   = "#6C757D"
	DefaultAvatarTextColor = "#FFFFFF"
	MaxStatusMessageLen    = 255
)

type User struct {
	ID              string    `json:"id"`
	Username        string    `json:"username"`
	PasswordHash    string    `json:"-"`
	StatusMessage   string    `json:"status_message"`
	AvatarBgColor   string    `json:"avatar_bg_color"`
	AvatarTextColor string    `json:"avatar_text_color"`
	Theme           Theme     `json:"theme_preference"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type UserPublic struct {
	ID              string `json:"id"`
	Username        string `json:"username"`
	StatusMessage   string `json:"status_message"`
	AvatarBgColor   string `json:"avatar_bg_color"`
	AvatarTextColor string `json:"avatar_text_color"`
}

func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:              u.ID,
		Username:        u.Username,
		StatusMessage:   u.StatusMessage,
		AvatarBgColor:   u.AvatarBgColor,
		AvatarTextColor: u.AvatarTextColor,
	}
}

// Principal is the authenticated caller, resolved once per request or connection.
type Principal struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}
