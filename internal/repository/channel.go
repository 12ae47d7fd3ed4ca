package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/chatterbox/internal/logger"
	"github.com/chatterbox/internal/model"
	"github.com/jackc/pgx/v5"
)

const channelCols = `id, name, COALESCE(description,''), created_by, created_at, updated_at`

func scanChannel(s interface{ Scan(dest ...any) error }, c *model.Channel) error {
	return s.Scan(&c.ID, &c.Name, &c.Description, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
}

func (r *queries) CreateChannel(ctx context.Context, c *model.Channel) error {
	defer logger.DeferLogDuration("channel.Create", time.Now())()
	_, err := r.db.Exec(ctx,
		`INSERT INTO channels (id, name, description, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.Name, c.Description, c.CreatedBy, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return wrap("channelRepo.Create", err)
	}
	return nil
}

func (r *queries) GetChannelByID(ctx context.Context, id string) (*model.Channel, error) {
	defer logger.DeferLogDuration("channel.GetByID", time.Now())()
	c := &model.Channel{}
	if err := scanChannel(r.db.QueryRow(ctx, `SELECT `+channelCols+` FROM channels WHERE id = $1`, id), c); err != nil {
		return nil, wrap("channelRepo.GetByID", err)
	}
	return c, nil
}

func (r *queries) GetChannelByName(ctx context.Context, name string) (*model.Channel, error) {
	defer logger.DeferLogDuration("channel.GetByName", time.Now())()
	c := &model.Channel{}
	if err := scanChannel(r.db.QueryRow(ctx, `SELECT `+channelCols+` FROM channels WHERE name = $1`, name), c); err != nil {
		return nil, wrap("channelRepo.GetByName", err)
	}
	return c, nil
}

func (r *queries) ListChannels(ctx context.Context) ([]model.Channel, error) {
	defer logger.DeferLogDuration("channel.List", time.Now())()
	rows, err := r.db.Query(ctx, `SELECT `+channelCols+` FROM channels ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("channelRepo.List query: %w", err)
	}
	return collectChannels("channelRepo.List", rows)
}

func (r *queries) SearchChannels(ctx context.Context, keyword string) ([]model.Channel, error) {
	defer logger.DeferLogDuration("channel.Search", time.Now())()
	rows, err := r.db.Query(ctx,
		`SELECT `+channelCols+` FROM channels WHERE name ILIKE $1 ORDER BY name`, likePattern(keyword))
	if err != nil {
		return nil, fmt.Errorf("channelRepo.Search query: %w", err)
	}
	return collectChannels("channelRepo.Search", rows)
}

func collectChannels(op string, rows pgx.Rows) ([]model.Channel, error) {
	defer rows.Close()
	channels := make([]model.Channel, 0, 16)
	for rows.Next() {
		var c model.Channel
		if err := scanChannel(rows, &c); err != nil {
			return nil, fmt.Errorf("%s scan: %w", op, err)
		}
		channels = append(channels, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s rows: %w", op, err)
	}
	return channels, nil
}

func (r *queries) RenameChannel(ctx context.Context, id, name string, updatedAt time.Time) error {
	defer logger.DeferLogDuration("channel.Rename", time.Now())()
	tag, err := r.db.Exec(ctx, `UPDATE channels SET name = $1, updated_at = $2 WHERE id = $3`, name, updatedAt, id)
	if err != nil {
		return wrap("channelRepo.Rename", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *queries) DeleteChannel(ctx context.Context, id string) ([]string, error) {
	defer logger.DeferLogDuration("channel.Delete", time.Now())()
	if _, err := r.db.Exec(ctx,
		`DELETE FROM reactions WHERE message_id IN (SELECT id FROM messages WHERE channel_id = $1)`, id); err != nil {
		return nil, fmt.Errorf("channelRepo.Delete reactions: %w", err)
	}
	rows, err := r.db.Query(ctx,
		`DELETE FROM messages WHERE channel_id = $1 AND image_url IS NOT NULL RETURNING image_url`, id)
	if err != nil {
		return nil, fmt.Errorf("channelRepo.Delete images: %w", err)
	}
	images, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("channelRepo.Delete images: %w", err)
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM messages WHERE channel_id = $1`, id); err != nil {
		return nil, fmt.Errorf("channelRepo.Delete messages: %w", err)
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM channel_members WHERE channel_id = $1`, id); err != nil {
		return nil, fmt.Errorf("channelRepo.Delete members: %w", err)
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM channels WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("channelRepo.Delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	return images, nil
}
