package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"kindbossing/internal/app/dto"
	"kindbossing/internal/client/chatsync"
	"kindbossing/internal/domain/chat"
)

var (
	ErrNotConnected = errors.New("realtime: not connected")
	ErrClosed       = errors.New("realtime: client closed")
	ErrGaveUp       = errors.New("realtime: reconnect attempts exhausted")
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

type Config struct {
	// BaseURL is the API origin; http(s) is rewritten to ws(s).
	BaseURL              string
	Token                string
	HeartbeatInterval    time.Duration
	RequestTimeout       time.Duration
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	MaxReconnectAttempts int
	Logger               *slog.Logger
	// OnNotification receives pushed notifications.
	OnNotification func(dto.Notification)
	// OnState observes connection state changes.
	OnState func(State)
}

func (c *Config) defaults() {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 25 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = time.Second
	}
	if c.ReconnectMaxDelay <= 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 10
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

type room struct {
	id      chat.ConversationID
	handler func(chatsync.Event)
	onError func(error)
}

// Client is a websocket connection to the KindBossing hub. It keeps room
// subscriptions across reconnects and implements the chat session's
// Subscriber and Broadcaster ports.
type Client struct {
	cfg   Config
	recon *reconnector

	mu      sync.Mutex
	conn    *websocket.Conn
	state   State
	closed  bool
	cancel  context.CancelFunc
	rooms   map[chat.ConversationID]*room
	pending map[string]chan dto.Frame

	seq atomic.Uint64
}

func New(cfg Config) *Client {
	cfg.defaults()
	return &Client{
		cfg:     cfg,
		recon:   newReconnector(cfg.ReconnectBaseDelay, cfg.ReconnectMaxDelay, cfg.MaxReconnectAttempts),
		state:   StateDisconnected,
		rooms:   make(map[chat.ConversationID]*room),
		pending: make(map[string]chan dto.Frame),
	}
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the hub and waits for its ready frame. Rooms registered
// before a reconnect are subscribed again.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	c.setState(StateConnecting)

	wsURL, err := c.endpoint()
	if err != nil {
		c.setState(StateDisconnected)
		return err
	}
	dialCtx, cancelDial := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancelDial()
	conn, _, err := websocket.Dial(dialCtx, wsURL, nil)
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("websocket dial: %w", err)
	}

	var first dto.Frame
	if err := wsjson.Read(dialCtx, conn, &first); err != nil || first.Type != dto.FrameReady {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		c.setState(StateDisconnected)
		if err == nil {
			err = fmt.Errorf("expected %q, got %q", dto.FrameReady, first.Type)
		}
		return fmt.Errorf("websocket handshake: %w", err)
	}

	connCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	rooms := make([]chat.ConversationID, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	c.mu.Unlock()
	c.recon.markConnected()
	c.setState(StateConnected)

	go c.readLoop(connCtx, conn)
	go c.heartbeatLoop(connCtx)

	for _, id := range rooms {
		if err := c.request(ctx, dto.Frame{Type: dto.FrameSubscribe, ConversationID: string(id)}); err != nil {
			c.cfg.Logger.Warn("realtime resubscribe failed", "conversation_id", id, "error", err)
		}
	}
	return nil
}

// Subscribe joins the conversation room. handler receives its events until
// the returned subscription is closed.
func (c *Client) Subscribe(ctx context.Context, id chat.ConversationID, handler func(chatsync.Event), onError func(error)) (chatsync.Subscription, error) {
	r := &room{id: id, handler: handler, onError: onError}
	c.mu.Lock()
	c.rooms[id] = r
	c.mu.Unlock()

	if err := c.request(ctx, dto.Frame{Type: dto.FrameSubscribe, ConversationID: string(id)}); err != nil {
		c.dropRoom(r)
		return nil, err
	}
	return &subscription{client: c, room: r}, nil
}

// Broadcast relays a persisted message to the other members of its room.
func (c *Client) Broadcast(ctx context.Context, msg chat.Message) error {
	f, err := dto.NewFrame(dto.FrameBroadcast, string(msg.ConversationID), dto.MapMessage(msg))
	if err != nil {
		return err
	}
	return c.write(ctx, f)
}

// Ping round-trips a ping frame.
func (c *Client) Ping(ctx context.Context) error {
	return c.request(ctx, dto.Frame{Type: dto.FramePing})
}

// Close stops reconnecting and closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()
	c.failPending()
	c.setState(StateDisconnected)
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	return nil
}

type subscription struct {
	client *Client
	room   *room
	once   sync.Once
}

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		if !s.client.dropRoom(s.room) {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.client.cfg.RequestTimeout)
		defer cancel()
		err = s.client.write(ctx, dto.Frame{Type: dto.FrameUnsubscribe, ConversationID: string(s.room.id)})
		if errors.Is(err, ErrNotConnected) {
			err = nil
		}
	})
	return err
}

// dropRoom removes r unless a newer subscription replaced it.
func (c *Client) dropRoom(r *room) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rooms[r.id] != r {
		return false
	}
	delete(c.rooms, r.id)
	return true
}

// request writes f with a fresh request id and waits for the matching
// ready, pong or error frame.
func (c *Client) request(ctx context.Context, f dto.Frame) error {
	f.RequestID = strconv.FormatUint(c.seq.Add(1), 10)
	reply := make(chan dto.Frame, 1)
	c.mu.Lock()
	c.pending[f.RequestID] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, f.RequestID)
		c.mu.Unlock()
	}()

	if err := c.write(ctx, f); err != nil {
		return err
	}
	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()
	select {
	case resp, ok := <-reply:
		if !ok {
			return ErrNotConnected
		}
		if resp.Type == dto.FrameError {
			return frameError(resp)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("realtime: %s timed out", f.Type)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) write(ctx context.Context, f dto.Frame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, f)
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var f dto.Frame
		if err := wsjson.Read(ctx, conn, &f); err != nil {
			c.disconnected(ctx, conn, err)
			return
		}
		c.dispatch(f)
	}
}

func (c *Client) dispatch(f dto.Frame) {
	if f.RequestID != "" {
		c.mu.Lock()
		reply, ok := c.pending[f.RequestID]
		c.mu.Unlock()
		if ok {
			select {
			case reply <- f:
			default:
			}
			return
		}
	}

	switch f.Type {
	case dto.FrameMessageNew:
		var msg dto.Message
		if err := json.Unmarshal(f.Payload, &msg); err != nil {
			c.cfg.Logger.Debug("realtime frame decode failed", "type", f.Type, "error", err)
			return
		}
		c.toRoom(f.ConversationID, chatsync.Event{
			Type:           chatsync.EventMessageNew,
			ConversationID: chat.ConversationID(f.ConversationID),
			Message:        msg.Domain(),
		})
	case dto.FrameMessageRead:
		var receipt dto.ReadReceipt
		if err := json.Unmarshal(f.Payload, &receipt); err != nil {
			c.cfg.Logger.Debug("realtime frame decode failed", "type", f.Type, "error", err)
			return
		}
		ids := make([]chat.MessageID, len(receipt.MessageIDs))
		for i, id := range receipt.MessageIDs {
			ids[i] = chat.MessageID(id)
		}
		c.toRoom(f.ConversationID, chatsync.Event{
			Type:           chatsync.EventMessageRead,
			ConversationID: chat.ConversationID(f.ConversationID),
			MessageIDs:     ids,
		})
	case dto.FrameNotification:
		if c.cfg.OnNotification == nil {
			return
		}
		var n dto.Notification
		if err := json.Unmarshal(f.Payload, &n); err == nil {
			c.cfg.OnNotification(n)
		}
	case dto.FrameError:
		c.cfg.Logger.Warn("realtime server error", "conversation_id", f.ConversationID, "error", frameError(f))
	}
}

func (c *Client) toRoom(conversationID string, ev chatsync.Event) {
	c.mu.Lock()
	r, ok := c.rooms[chat.ConversationID(conversationID)]
	c.mu.Unlock()
	if ok && r.handler != nil {
		r.handler(ev)
	}
}

func (c *Client) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Ping(ctx); err != nil {
				c.cfg.Logger.Warn("realtime heartbeat failed", "error", err)
				c.mu.Lock()
				conn := c.conn
				c.mu.Unlock()
				if conn != nil {
					_ = conn.Close(websocket.StatusGoingAway, "heartbeat timeout")
				}
				return
			}
		}
	}
}

// disconnected tears the dead connection down and reconnects with backoff.
// Rooms hear about the failure only once reconnecting is given up.
func (c *Client) disconnected(ctx context.Context, conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	closed := c.closed
	c.mu.Unlock()
	c.failPending()
	if closed {
		return
	}
	c.cfg.Logger.Info("realtime disconnected", "error", cause)

	for c.recon.shouldReconnect() {
		delay := c.recon.nextDelay()
		c.setState(StateReconnecting)
		time.Sleep(delay)
		c.mu.Lock()
		closed = c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		err := c.Connect(context.Background())
		if err == nil {
			return
		}
		c.cfg.Logger.Debug("realtime reconnect failed", "attempt", c.recon.attempts(), "error", err)
	}
	c.setState(StateDisconnected)

	c.mu.Lock()
	rooms := make([]*room, 0, len(c.rooms))
	for _, r := range c.rooms {
		rooms = append(rooms, r)
	}
	c.mu.Unlock()
	gaveUp := fmt.Errorf("%w: %v", ErrGaveUp, cause)
	for _, r := range rooms {
		if r.onError != nil {
			r.onError(gaveUp)
		}
	}
}

func (c *Client) failPending() {
	c.mu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()
	if changed && c.cfg.OnState != nil {
		c.cfg.OnState(s)
	}
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(strings.TrimRight(c.cfg.BaseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("realtime: invalid url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	if c.cfg.Token != "" {
		q := u.Query()
		q.Set("token", c.cfg.Token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func frameError(f dto.Frame) error {
	var body dto.FrameErrorBody
	if err := json.Unmarshal(f.Payload, &body); err != nil || body.Error == "" {
		return errors.New("realtime: request rejected")
	}
	return errors.New("realtime: " + body.Error)
}

type reconnector struct {
	mu          sync.Mutex
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	attempt     int
	connectedAt time.Time
}

func newReconnector(base, maxDelay time.Duration, maxAttempts int) *reconnector {
	return &reconnector{baseDelay: base, maxDelay: maxDelay, maxAttempts: maxAttempts}
}

// shouldReconnect allows unlimited attempts when maxAttempts is negative.
func (r *reconnector) shouldReconnect() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxAttempts < 0 || r.attempt < r.maxAttempts
}

func (r *reconnector) markConnected() {
	r.mu.Lock()
	r.connectedAt = time.Now()
	r.mu.Unlock()
}

// nextDelay doubles from the base delay with up to 50% jitter. A connection
// that stayed up for a minute resets the count.
func (r *reconnector) nextDelay() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.connectedAt.IsZero() && time.Since(r.connectedAt) > time.Minute {
		r.attempt = 0
		r.connectedAt = time.Time{}
	}
	jitter := rand.Float64() * float64(r.baseDelay) * 0.5
	delay := time.Duration(math.Min(
		float64(r.baseDelay)*math.Pow(2, float64(r.attempt))+jitter,
		float64(r.maxDelay),
	))
	r.attempt++
	return delay
}

func (r *reconnector) attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempt
}

var (
	_ chatsync.Subscriber  = (*Client)(nil)
	_ chatsync.Broadcaster = (*Client)(nil)
)
