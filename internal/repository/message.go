package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/chatterbox/internal/logger"
	"github.com/chatterbox/internal/model"
	"github.com/jackc/pgx/v5"
)

const messageCols = `m.id, m.channel_id, m.user_id, m.content, COALESCE(m.image_url,''), m.is_edited, m.created_at, m.updated_at`

func scanMessage(s interface{ Scan(dest ...any) error }, m *model.Message, extra ...any) error {
	dest := []any{&m.ID, &m.ChannelID, &m.UserID, &m.Content, &m.ImageURL, &m.IsEdited, &m.CreatedAt, &m.UpdatedAt}
	return s.Scan(append(dest, extra...)...)
}

func (r *queries) CreateMessage(ctx context.Context, m *model.Message) error {
	defer logger.DeferLogDuration("msg.Create", time.Now())()
	_, err := r.db.Exec(ctx,
		`INSERT INTO messages (id, channel_id, user_id, content, image_url, is_edited, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8)`,
		m.ID, m.ChannelID, m.UserID, m.Content, m.ImageURL, m.IsEdited, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return wrap("msgRepo.Create", err)
	}
	return nil
}

func (r *queries) GetMessageByID(ctx context.Context, id string) (*model.Message, error) {
	defer logger.DeferLogDuration("msg.GetByID", time.Now())()
	m := &model.Message{}
	if err := scanMessage(r.db.QueryRow(ctx, `SELECT `+messageCols+` FROM messages m WHERE m.id = $1`, id), m); err != nil {
		return nil, wrap("msgRepo.GetByID", err)
	}
	return m, nil
}

func (r *queries) ListMessages(ctx context.Context, channelID string) ([]model.MessageView, error) {
	defer logger.DeferLogDuration("msg.List", time.Now())()
	rows, err := r.db.Query(ctx,
		`SELECT `+messageCols+`, u.username
		 FROM messages m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.channel_id = $1
		 ORDER BY m.created_at ASC`, channelID,
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.List query: %w", err)
	}
	return collectMessageViews("msgRepo.List", rows)
}

func (r *queries) SearchMessages(ctx context.Context, channelID, keyword string) ([]model.MessageView, error) {
	defer logger.DeferLogDuration("msg.Search", time.Now())()
	rows, err := r.db.Query(ctx,
		`SELECT `+messageCols+`, u.username
		 FROM messages m
		 JOIN users u ON u.id = m.user_id
		 WHERE m.channel_id = $1 AND m.content ILIKE $2
		 ORDER BY m.created_at DESC`, channelID, likePattern(keyword),
	)
	if err != nil {
		return nil, fmt.Errorf("msgRepo.Search query: %w", err)
	}
	return collectMessageViews("msgRepo.Search", rows)
}

func collectMessageViews(op string, rows pgx.Rows) ([]model.MessageView, error) {
	defer rows.Close()
	views := make([]model.MessageView, 0, 64)
	for rows.Next() {
		var v model.MessageView
		if err := scanMessage(rows, &v.Message, &v.Username); err != nil {
			return nil, fmt.Errorf("%s scan: %w", op, err)
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s rows: %w", op, err)
	}
	return views, nil
}

func (r *queries) UpdateMessageContent(ctx context.Context, id, content string, updatedAt time.Time) error {
	defer logger.DeferLogDuration("msg.UpdateContent", time.Now())()
	tag, err := r.db.Exec(ctx,
		`UPDATE messages SET content = $1, is_edited = TRUE, updated_at = $2 WHERE id = $3`,
		content, updatedAt, id,
	)
	if err != nil {
		return wrap("msgRepo.UpdateContent", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *queries) DeleteMessage(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("msg.Delete", time.Now())()
	if _, err := r.db.Exec(ctx, `DELETE FROM reactions WHERE message_id = $1`, id); err != nil {
		return fmt.Errorf("msgRepo.Delete reactions: %w", err)
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("msgRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
