package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/chatterbox/internal/logger"
	"github.com/chatterbox/internal/model"
)

const userCols = `id, username, password_hash, status_message, avatar_bg_color, avatar_text_color, theme_preference, created_at, updated_at`

func scanUser(s interface{ Scan(dest ...any) error }, u *model.User) error {
	return s.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.StatusMessage, &u.AvatarBgColor, &u.AvatarTextColor, &u.Theme, &u.CreatedAt, &u.UpdatedAt)
}

func (r *queries) CreateUser(ctx context.Context, u *model.User) error {
	defer logger.DeferLogDuration("user.Create", time.Now())()
	_, err := r.db.Exec(ctx,
		`INSERT INTO users (`+userCols+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.ID, u.Username, u.PasswordHash, u.StatusMessage, u.AvatarBgColor, u.AvatarTextColor, u.Theme, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return wrap("userRepo.Create", err)
	}
	return nil
}

func (r *queries) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByID", time.Now())()
	u := &model.User{}
	if err := scanUser(r.db.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id), u); err != nil {
		return nil, wrap("userRepo.GetByID", err)
	}
	return u, nil
}

func (r *queries) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByUsername", time.Now())()
	u := &model.User{}
	if err := scanUser(r.db.QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE username = $1`, username), u); err != nil {
		return nil, wrap("userRepo.GetByUsername", err)
	}
	return u, nil
}

func (r *queries) FindUsernames(ctx context.Context, names []string) ([]string, error) {
	defer logger.DeferLogDuration("user.FindUsernames", time.Now())()
	if len(names) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `SELECT username FROM users WHERE username = ANY($1)`, names)
	if err != nil {
		return nil, fmt.Errorf("userRepo.FindUsernames query: %w", err)
	}
	defer rows.Close()

	found := make([]string, 0, len(names))
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("userRepo.FindUsernames scan: %w", err)
		}
		found = append(found, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("userRepo.FindUsernames rows: %w", err)
	}
	return found, nil
}

func (r *queries) UpdateProfile(ctx context.Context, u *model.User) error {
	defer logger.DeferLogDuration("user.UpdateProfile", time.Now())()
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET status_message = $1, avatar_bg_color = $2, avatar_text_color = $3, theme_preference = $4, updated_at = $5
		 WHERE id = $6`,
		u.StatusMessage, u.AvatarBgColor, u.AvatarTextColor, u.Theme, u.UpdatedAt, u.ID,
	)
	if err != nil {
		return wrap("userRepo.UpdateProfile", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
