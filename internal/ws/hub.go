package ws

import (
	"context"
	"sync"
	"time"

	"github.com/chatterbox/internal/apperror"
	"github.com/chatterbox/internal/chat"
	"github.com/chatterbox/internal/logger"
	"github.com/chatterbox/internal/metrics"
	"github.com/chatterbox/internal/model"
)

const opTimeout = 5 * time.Second

// ChatService is the part of chat.Service reachable from client frames.
type ChatService interface {
	GetChannel(ctx context.Context, channelID string) (*model.Channel, error)
	MarkRead(ctx context.Context, p model.Principal, channelID string) error
	PostMessage(ctx context.Context, p model.Principal, in chat.NewMessage) (*model.MessageView, error)
	EditMessage(ctx context.Context, p model.Principal, messageID, newText string) (*model.MessageView, error)
	DeleteMessage(ctx context.Context, p model.Principal, messageID string) (*model.Message, error)
	ToggleReaction(ctx context.Context, p model.Principal, messageID, emoji string) (*chat.ReactionsUpdated, error)
}

// Hub tracks connected clients and the rooms (channel ids) they have joined.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]struct{}
	rooms      map[string]map[*Client]struct{}
	maxConns   int
	svc        ChatService
	register   chan *Client
	unregister chan *Client
	stopping   chan struct{}
	done       chan struct{}
}

var _ chat.Broadcaster = (*Hub)(nil)

func NewHub(maxConns int) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
		maxConns:   maxConns,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		stopping:   make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// SetService connects client frames to the chat core. It must be called before Run;
// the service in turn broadcasts through the hub.
func (h *Hub) SetService(svc ChatService) {
	h.svc = svc
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			close(h.stopping)
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	all := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		all = append(all, c)
	}
	h.clients = make(map[*Client]struct{})
	h.rooms = make(map[string]map[*Client]struct{})
	h.updateGaugesLocked()
	h.mu.Unlock()

	for _, c := range all {
		c.Close()
	}
	for _, c := range all {
		c.Wait()
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if len(h.clients) >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.maxConns, c.principal.UserID)
		c.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.updateGaugesLocked()
	h.mu.Unlock()
	logger.Debugf("ws client connected user=%s", c.principal.UserID)
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	h.updateGaugesLocked()
	h.mu.Unlock()

	c.Close()
}

func (h *Hub) updateGaugesLocked() {
	metrics.WSClients.Set(float64(len(h.clients)))
	metrics.WSRooms.Set(float64(len(h.rooms)))
}

func (h *Hub) join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
	h.updateGaugesLocked()
}

func (h *Hub) leave(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
	h.updateGaugesLocked()
}

func (h *Hub) leaveLocked(c *Client, room string) {
	delete(c.rooms, room)
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// RoomSize reports how many clients have joined room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast delivers the event to every client in room, or to all clients when room
// is chat.GlobalRoom. It never blocks on a slow client.
func (h *Hub) Broadcast(_ context.Context, room string, event chat.EventType, payload any) {
	defer logger.DeferLogDuration("ws.Broadcast", time.Now())()
	metrics.BroadcastEvents.WithLabelValues(string(event)).Inc()

	h.mu.RLock()
	var targets []*Client
	if room == chat.GlobalRoom {
		targets = make([]*Client, 0, len(h.clients))
		for c := range h.clients {
			targets = append(targets, c)
		}
	} else {
		targets = make([]*Client, 0, len(h.rooms[room]))
		for c := range h.rooms[room] {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	out := OutgoingMessage{Type: event, ChannelID: room, Payload: payload}
	for _, c := range targets {
		h.sendToClient(c, out)
	}
}

// HandleMessage dispatches a client frame. Mutations go through the chat core, so
// permission and validation rules match the HTTP surface; the resulting events reach
// this client through the room broadcast like everyone else.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	defer logger.DeferLogDuration("ws.HandleMessage."+string(msg.Type), time.Now())()
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var err error
	switch msg.Type {
	case FrameJoin:
		err = h.handleJoin(ctx, c, msg.ChannelID)
	case FrameLeave:
		h.leave(c, msg.ChannelID)
	case FrameSendMessage:
		_, err = h.svc.PostMessage(ctx, c.principal, chat.NewMessage{ChannelID: msg.ChannelID, Text: msg.Content})
	case FrameEditMessage:
		_, err = h.svc.EditMessage(ctx, c.principal, msg.MessageID, msg.Content)
	case FrameDeleteMessage:
		_, err = h.svc.DeleteMessage(ctx, c.principal, msg.MessageID)
	case FrameToggleReaction:
		_, err = h.svc.ToggleReaction(ctx, c.principal, msg.MessageID, msg.Emoji)
	default:
		err = apperror.New(apperror.CodeInvalidArgument, "unknown frame type")
	}
	if err != nil {
		h.sendError(c, err)
	}
}

func (h *Hub) handleJoin(ctx context.Context, c *Client, channelID string) error {
	if _, err := h.svc.GetChannel(ctx, channelID); err != nil {
		return err
	}
	h.join(c, channelID)
	if err := h.svc.MarkRead(ctx, c.principal, channelID); err != nil {
		logger.Errorf("ws mark read channel=%s user=%s: %v", channelID, c.principal.UserID, err)
	}
	return nil
}

func (h *Hub) sendError(c *Client, err error) {
	h.sendToClient(c, OutgoingMessage{
		Type:    chat.EventError,
		Payload: chat.ErrorEvent{Code: string(apperror.CodeOf(err)), Message: apperror.Message(err)},
	})
}

func (h *Hub) sendToClient(c *Client, msg OutgoingMessage) {
	select {
	case c.send <- msg:
	case <-c.done:
	default:
		logger.Errorf("ws send buffer full, closing slow client user=%s", c.principal.UserID)
		metrics.DroppedClients.Inc()
		c.Close()
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.stopping:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopping:
	}
}
