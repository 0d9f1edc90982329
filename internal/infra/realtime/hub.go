// Package realtime pushes chat events to websocket clients. Clients are
// keyed by user and join one room per conversation they subscribe to.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"kindbossing/internal/app/dto"
	"kindbossing/internal/domain/chat"
	"kindbossing/internal/domain/notification"
	"kindbossing/internal/infra/obs"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
	pingInterval = 25 * time.Second
	pingTimeout  = 5 * time.Second
)

var ErrNotSubscribed = errors.New("realtime: not subscribed to conversation")

// Transport is the write side of one connection.
type Transport interface {
	Write(ctx context.Context, f dto.Frame) error
	Ping(ctx context.Context) error
	Close(reason string) error
}

// MembershipFunc returns nil when userID may follow conversationID.
type MembershipFunc func(ctx context.Context, conversationID, userID string) error

type Client struct {
	UserID string
	Send   chan dto.Frame

	conn   Transport
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	rooms map[string]struct{}
}

func (c *Client) subscribed(conversationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[conversationID]
	return ok
}

type Hub struct {
	membership MembershipFunc
	logger     *slog.Logger

	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
}

func NewHub(membership MembershipFunc, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		membership: membership,
		logger:     logger,
		clients:    map[string]map[*Client]struct{}{},
		rooms:      map[string]map[*Client]struct{}{},
	}
}

// AddClient registers conn and starts its writer and keepalive loops.
func (h *Hub) AddClient(userID string, conn Transport) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		UserID: userID,
		Send:   make(chan dto.Frame, sendBuffer),
		conn:   conn,
		ctx:    ctx,
		cancel: cancel,
		rooms:  map[string]struct{}{},
	}

	h.mu.Lock()
	if h.clients[userID] == nil {
		h.clients[userID] = map[*Client]struct{}{}
	}
	h.clients[userID][c] = struct{}{}
	h.mu.Unlock()
	obs.RealtimeConnections.Inc()

	go c.writeLoop(h.logger)
	go c.keepAliveLoop()

	h.deliver(c, dto.Frame{Type: dto.FrameReady})
	return c
}

func (h *Hub) RemoveClient(c *Client) {
	c.cancel()

	h.mu.Lock()
	if set, ok := h.clients[c.UserID]; ok {
		if _, present := set[c]; present {
			obs.RealtimeConnections.Dec()
		}
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.UserID)
		}
	}
	c.mu.Lock()
	for room := range c.rooms {
		h.leaveLocked(room, c)
	}
	c.rooms = map[string]struct{}{}
	c.mu.Unlock()
	h.mu.Unlock()

	_ = c.conn.Close("bye")
}

// Subscribe joins the conversation room once membership is confirmed.
func (h *Hub) Subscribe(ctx context.Context, c *Client, conversationID string) error {
	if h.membership != nil {
		if err := h.membership(ctx, conversationID, c.UserID); err != nil {
			return err
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[conversationID] == nil {
		h.rooms[conversationID] = map[*Client]struct{}{}
	}
	h.rooms[conversationID][c] = struct{}{}
	c.mu.Lock()
	c.rooms[conversationID] = struct{}{}
	c.mu.Unlock()
	return nil
}

func (h *Hub) Unsubscribe(c *Client, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(conversationID, c)
	c.mu.Lock()
	delete(c.rooms, conversationID)
	c.mu.Unlock()
}

func (h *Hub) leaveLocked(conversationID string, c *Client) {
	if set, ok := h.rooms[conversationID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.rooms, conversationID)
		}
	}
}

// PublishToConversation sends f to every subscriber of the conversation
// except skip.
func (h *Hub) PublishToConversation(conversationID string, f dto.Frame, skip *Client) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[conversationID] {
		if c == skip {
			continue
		}
		h.deliver(c, f)
	}
}

func (h *Hub) PublishToUsers(userIDs []string, f dto.Frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, uid := range userIDs {
		for c := range h.clients[uid] {
			h.deliver(c, f)
		}
	}
}

// deliver never blocks; a client whose buffer is full loses the frame.
func (h *Hub) deliver(c *Client, f dto.Frame) {
	select {
	case <-c.ctx.Done():
		return
	default:
	}
	select {
	case c.Send <- f:
		obs.RealtimeEventsTotal.WithLabelValues(f.Type).Inc()
	default:
		obs.RealtimeDropped.Inc()
		h.logger.Warn("realtime client fell behind", "user_id", c.UserID, "type", f.Type)
	}
}

// Connected reports how many connections userID has open.
func (h *Hub) Connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// HandleFrame processes one frame read from c.
func (h *Hub) HandleFrame(ctx context.Context, c *Client, f dto.Frame) {
	switch f.Type {
	case dto.FramePing:
		h.deliver(c, dto.Frame{Type: dto.FramePong, RequestID: f.RequestID})
	case dto.FrameSubscribe:
		if err := h.Subscribe(ctx, c, f.ConversationID); err != nil {
			h.replyError(c, f, err)
			return
		}
		h.deliver(c, dto.Frame{Type: dto.FrameReady, ConversationID: f.ConversationID, RequestID: f.RequestID})
	case dto.FrameUnsubscribe:
		h.Unsubscribe(c, f.ConversationID)
	case dto.FrameBroadcast:
		if err := h.relay(c, f); err != nil {
			h.replyError(c, f, err)
		}
	default:
		h.replyError(c, f, errors.New("unknown frame type "+f.Type))
	}
}

var ErrRelayRejected = errors.New("realtime: relayed message rejected")

// relay forwards a message the client just persisted to the other room
// members. The durable event arrives later through the reactor; receivers
// drop the duplicate by id. Only the shape of the message is checked here,
// the store is not consulted.
func (h *Hub) relay(c *Client, f dto.Frame) error {
	if !c.subscribed(f.ConversationID) {
		return ErrNotSubscribed
	}
	var msg dto.Message
	if err := json.Unmarshal(f.Payload, &msg); err != nil {
		return err
	}
	if msg.SenderID != c.UserID || msg.ConversationID != f.ConversationID {
		return fmt.Errorf("%w: message does not belong to sender", ErrRelayRejected)
	}
	if !chat.MessageID(msg.ID).IsDurable() {
		return fmt.Errorf("%w: %q is not a stored message id", ErrRelayRejected, msg.ID)
	}
	if strings.TrimSpace(msg.Content) == "" {
		return fmt.Errorf("%w: empty content", ErrRelayRejected)
	}
	out := dto.Frame{Type: dto.FrameMessageNew, ConversationID: f.ConversationID, Payload: f.Payload}
	h.PublishToConversation(f.ConversationID, out, c)
	return nil
}

func (h *Hub) replyError(c *Client, f dto.Frame, err error) {
	out, _ := dto.NewFrame(dto.FrameError, f.ConversationID, dto.FrameErrorBody{Error: err.Error()})
	out.RequestID = f.RequestID
	h.deliver(c, out)
}

// Notify pushes a stored notification to every connection of its user.
func (h *Hub) Notify(_ context.Context, n notification.Notification) error {
	f, err := dto.NewFrame(dto.FrameNotification, "", dto.MapNotification(&n))
	if err != nil {
		return err
	}
	h.PublishToUsers([]string{n.UserID}, f)
	return nil
}

func (c *Client) writeLoop(logger *slog.Logger) {
	for {
		select {
		case <-c.ctx.Done():
			return
		case f := <-c.Send:
			writeCtx, cancel := context.WithTimeout(c.ctx, writeTimeout)
			err := c.conn.Write(writeCtx, f)
			cancel()
			if err != nil && c.ctx.Err() == nil {
				logger.Debug("realtime write failed", "user_id", c.UserID, "error", err)
			}
		}
	}
}

func (c *Client) keepAliveLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(c.ctx, pingTimeout)
			_ = c.conn.Ping(pingCtx)
			cancel()
		}
	}
}
