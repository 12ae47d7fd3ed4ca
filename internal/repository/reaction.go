package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/chatterbox/internal/logger"
	"github.com/chatterbox/internal/model"
)

func (r *queries) HasReaction(ctx context.Context, messageID, userID, emoji string) (bool, error) {
	defer logger.DeferLogDuration("reaction.Has", time.Now())()
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3)`,
		messageID, userID, emoji,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("reactionRepo.Has: %w", err)
	}
	return exists, nil
}

func (r *queries) AddReaction(ctx context.Context, rc *model.Reaction) error {
	defer logger.DeferLogDuration("reaction.Add", time.Now())()
	_, err := r.db.Exec(ctx,
		`INSERT INTO reactions (message_id, user_id, emoji, created_at)
		 VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
		rc.MessageID, rc.UserID, rc.Emoji, rc.CreatedAt,
	)
	if err != nil {
		return wrap("reactionRepo.Add", err)
	}
	return nil
}

func (r *queries) RemoveReaction(ctx context.Context, messageID, userID, emoji string) error {
	defer logger.DeferLogDuration("reaction.Remove", time.Now())()
	_, err := r.db.Exec(ctx,
		`DELETE FROM reactions WHERE message_id = $1 AND user_id = $2 AND emoji = $3`,
		messageID, userID, emoji,
	)
	if err != nil {
		return fmt.Errorf("reactionRepo.Remove: %w", err)
	}
	return nil
}

func (r *queries) CountReactions(ctx context.Context, messageID string) ([]model.ReactionCount, error) {
	defer logger.DeferLogDuration("reaction.Count", time.Now())()
	rows, err := r.db.Query(ctx,
		`SELECT emoji, COUNT(DISTINCT user_id)
		 FROM reactions
		 WHERE message_id = $1
		 GROUP BY emoji
		 ORDER BY MIN(created_at), emoji`, messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("reactionRepo.Count query: %w", err)
	}
	defer rows.Close()

	counts := make([]model.ReactionCount, 0, 4)
	for rows.Next() {
		var c model.ReactionCount
		if err := rows.Scan(&c.Emoji, &c.Count); err != nil {
			return nil, fmt.Errorf("reactionRepo.Count scan: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reactionRepo.Count rows: %w", err)
	}
	return counts, nil
}

// CountReactionsFor is CountReactions for a page of messages in one round trip.
// Messages without reactions are absent from the map.
func (r *queries) CountReactionsFor(ctx context.Context, messageIDs []string) (map[string][]model.ReactionCount, error) {
	defer logger.DeferLogDuration("reaction.CountFor", time.Now())()
	out := make(map[string][]model.ReactionCount, len(messageIDs))
	if len(messageIDs) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT message_id, emoji, COUNT(DISTINCT user_id)
		 FROM reactions
		 WHERE message_id = ANY($1)
		 GROUP BY message_id, emoji
		 ORDER BY message_id, MIN(created_at), emoji`, messageIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("reactionRepo.CountFor query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var c model.ReactionCount
		if err := rows.Scan(&id, &c.Emoji, &c.Count); err != nil {
			return nil, fmt.Errorf("reactionRepo.CountFor scan: %w", err)
		}
		out[id] = append(out[id], c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reactionRepo.CountFor rows: %w", err)
	}
	return out, nil
}
