package repository

import (
	"context"
	"time"

	"github.com/chatterbox/internal/logger"
	"github.com/chatterbox/internal/model"
)

// UpsertMember records membership; an existing row only has last_read_at moved forward.
func (r *queries) UpsertMember(ctx context.Context, m *model.ChannelMember) error {
	defer logger.DeferLogDuration("member.Upsert", time.Now())()
	_, err := r.db.Exec(ctx,
		`INSERT INTO channel_members (channel_id, user_id, joined_at, last_read_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (channel_id, user_id)
		 DO UPDATE SET last_read_at = GREATEST(channel_members.last_read_at, EXCLUDED.last_read_at)`,
		m.ChannelID, m.UserID, m.JoinedAt, m.LastReadAt,
	)
	if err != nil {
		return wrap("memberRepo.Upsert", err)
	}
	return nil
}

func (r *queries) GetMember(ctx context.Context, channelID, userID string) (*model.ChannelMember, error) {
	defer logger.DeferLogDuration("member.Get", time.Now())()
	m := &model.ChannelMember{}
	err := r.db.QueryRow(ctx,
		`SELECT channel_id, user_id, joined_at, last_read_at FROM channel_members
		 WHERE channel_id = $1 AND user_id = $2`, channelID, userID,
	).Scan(&m.ChannelID, &m.UserID, &m.JoinedAt, &m.LastReadAt)
	if err != nil {
		return nil, wrap("memberRepo.Get", err)
	}
	return m, nil
}
