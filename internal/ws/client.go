package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/chatterbox/internal/logger"
	"github.com/chatterbox/internal/model"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
	sendBufSize    = 256
)

// Client is one WebSocket connection of an authenticated user.
// Lifecycle: NewClient -> Start -> [readLoop, writeLoop] -> Close -> Wait.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan OutgoingMessage
	principal model.Principal
	// rooms is guarded by hub.mu.
	rooms map[string]struct{}

	done   chan struct{}
	cancel context.CancelFunc
	once   sync.Once
	wg     sync.WaitGroup
}

func NewClient(hub *Hub, conn *websocket.Conn, p model.Principal) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan OutgoingMessage, sendBufSize),
		principal: p,
		rooms:     make(map[string]struct{}),
		done:      make(chan struct{}),
	}
}

// Start runs the read and write loops until ctx ends or the connection drops.
func (c *Client) Start(ctx context.Context, cancel context.CancelFunc) {
	c.cancel = cancel
	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.writeLoop(ctx)
	}()
	go func() {
		defer c.wg.Done()
		defer c.hub.Unregister(c)
		c.readLoop(ctx)
	}()
}

func (c *Client) Wait() {
	c.wg.Wait()
}

// Close stops the client. Safe to call more than once from any goroutine.
func (c *Client) Close() {
	c.once.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *Client) logf(format string, err error) {
	logger.Errorf("ws "+format+" user=%s: %v", c.principal.UserID, err)
}

func (c *Client) readLoop(ctx context.Context) {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	extend := func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) }
	if err := extend(""); err != nil {
		c.logf("set read deadline", err)
		return
	}
	c.conn.SetPongHandler(extend)

	for ctx.Err() == nil {
		_, r, err := c.conn.NextReader()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logf("read", err)
			}
			return
		}
		var frame IncomingMessage
		if err := json.NewDecoder(r).Decode(&frame); err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				c.logf("read frame", err)
				return
			}
			logger.Debugf("ws bad frame user=%s: %v", c.principal.UserID, err)
			c.hub.sendError(c, errMalformedFrame)
			continue
		}
		c.hub.HandleMessage(ctx, c, frame)
	}
}

func (c *Client) writeLoop(ctx context.Context) {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	defer c.Close()

	for {
		select {
		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
			return
		case msg := <-c.send:
			if err := c.writeEvent(msg); err != nil {
				c.logf("write", err)
				return
			}
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// writeEvent sends one event as a single JSON text frame.
func (c *Client) writeEvent(msg OutgoingMessage) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	w, err := c.conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(w).Encode(msg); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
