package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chatterbox/internal/logger"
	"github.com/chatterbox/internal/model"
	"github.com/chatterbox/internal/storage"
	"github.com/redis/go-redis/v9"
)

// Sessions live under session:{id}; session_index:{user} is a set of the user's ids.
const (
	sessionPrefix = "session:"
	indexPrefix   = "session_index:"
)

type Client struct {
	cli *redis.Client
}

var _ storage.SessionStore = (*Client)(nil)

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	return NewWithOptions(ctx, opts)
}

func NewWithOptions(ctx context.Context, opts *redis.Options) (*Client, error) {
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// Redis exposes the underlying client for other key spaces (push subscriptions).
func (c *Client) Redis() *redis.Client {
	return c.cli
}

func (c *Client) CreateSession(ctx context.Context, s *model.Session) error {
	defer logger.DeferLogDuration("sessionRedis.CreateSession", time.Now())()
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("sessionRedis.CreateSession: session already expired")
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("sessionRedis.CreateSession: %w", err)
	}
	indexKey := indexPrefix + s.UserID
	_, err = c.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionPrefix+s.ID, data, ttl)
		pipe.SAdd(ctx, indexKey, s.ID)
		pipe.Expire(ctx, indexKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("sessionRedis.CreateSession: %w", err)
	}
	return nil
}

func (c *Client) GetSession(ctx context.Context, id string) (*model.Session, error) {
	defer logger.DeferLogDuration("sessionRedis.GetSession", time.Now())()
	if id == "" {
		return nil, storage.ErrSessionNotFound
	}
	data, err := c.cli.Get(ctx, sessionPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sessionRedis.GetSession: %w", err)
	}
	var s model.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("sessionRedis.GetSession: %w", err)
	}
	return &s, nil
}

func (c *Client) DeleteSession(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("sessionRedis.DeleteSession", time.Now())()
	s, err := c.GetSession(ctx, id)
	if errors.Is(err, storage.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = c.cli.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionPrefix+id)
		pipe.SRem(ctx, indexPrefix+s.UserID, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("sessionRedis.DeleteSession: %w", err)
	}
	return nil
}

func (c *Client) DeleteUserSessions(ctx context.Context, userID string) error {
	defer logger.DeferLogDuration("sessionRedis.DeleteUserSessions", time.Now())()
	indexKey := indexPrefix + userID
	ids, err := c.cli.SMembers(ctx, indexKey).Result()
	if err != nil {
		return fmt.Errorf("sessionRedis.DeleteUserSessions: %w", err)
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, sessionPrefix+id)
	}
	keys = append(keys, indexKey)
	if err := c.cli.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("sessionRedis.DeleteUserSessions: %w", err)
	}
	return nil
}

// FlushDB clears the current Redis database (tests and -dev restarts).
func (c *Client) FlushDB(ctx context.Context) error {
	return c.cli.FlushDB(ctx).Err()
}
