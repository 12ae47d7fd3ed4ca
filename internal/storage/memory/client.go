package memory

import (
	"context"
	"sync"
	"time"

	"github.com/chatterbox/internal/model"
	"github.com/chatterbox/internal/storage"
)

type Client struct {
	mu       sync.RWMutex
	sessions map[string]model.Session
	now      func() time.Time
}

var _ storage.SessionStore = (*Client)(nil)

func New() *Client {
	return &Client{sessions: make(map[string]model.Session), now: time.Now}
}

func (c *Client) Close() error { return nil }

func (c *Client) CreateSession(ctx context.Context, s *model.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[s.ID] = *s
	c.evictLocked()
	return nil
}

func (c *Client) GetSession(ctx context.Context, id string) (*model.Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sessions[id]
	if !ok || !c.now().Before(s.ExpiresAt) {
		return nil, storage.ErrSessionNotFound
	}
	return &s, nil
}

func (c *Client) DeleteSession(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, id)
	return nil
}

func (c *Client) DeleteUserSessions(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, s := range c.sessions {
		if s.UserID == userID {
			delete(c.sessions, id)
		}
	}
	return nil
}

// evictLocked drops expired sessions; called on writes only.
func (c *Client) evictLocked() {
	now := c.now()
	for id, s := range c.sessions {
		if !now.Before(s.ExpiresAt) {
			delete(c.sessions, id)
		}
	}
}
