package chatsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"kindbossing/internal/domain/chat"
)

type EventType string

const (
	EventMessageNew  EventType = "message.new"
	EventMessageRead EventType = "message.read"
)

// Event is a realtime delivery for one conversation.
type Event struct {
	Type           EventType
	ConversationID chat.ConversationID
	Message        chat.Message
	MessageIDs     []chat.MessageID
}

type Subscription interface {
	Close() error
}

// Subscriber opens a push channel keyed by conversation. onError reports
// transport failures after the subscription was established.
type Subscriber interface {
	Subscribe(ctx context.Context, id chat.ConversationID, handler func(Event), onError func(error)) (Subscription, error)
}

const DefaultSweepInterval = 30 * time.Second

type channel struct {
	id        chat.ConversationID
	sub       Subscription
	onMessage func(chat.Message)
	onError   func(error)
	failed    bool
	lastEvent time.Time
}

// Bridge keeps at most one live realtime channel, for the active
// conversation, and merges its events into the Store.
type Bridge struct {
	subscriber Subscriber
	store      *Store
	logger     *slog.Logger

	mu       sync.Mutex
	active   chat.ConversationID
	channels map[chat.ConversationID]*channel
}

func NewBridge(subscriber Subscriber, store *Store, logger *slog.Logger) *Bridge {
	return &Bridge{
		subscriber: subscriber,
		store:      store,
		logger:     logger,
		channels:   make(map[chat.ConversationID]*channel),
	}
}

// Subscribe opens the channel for id. Subscribing the active conversation
// again is a no-op; any other open channel is torn down first.
func (b *Bridge) Subscribe(ctx context.Context, id chat.ConversationID, onMessage func(chat.Message), onError func(error)) error {
	if id == "" || id.IsTemporary() {
		return chat.ErrTemporaryID
	}
	b.mu.Lock()
	if _, ok := b.channels[id]; ok && b.active == id {
		b.mu.Unlock()
		return nil
	}
	stale := b.detachLocked(func(c *channel) bool { return true })
	ch := &channel{id: id, onMessage: onMessage, onError: onError, lastEvent: time.Now()}
	b.active = id
	b.channels[id] = ch
	b.mu.Unlock()

	b.closeAll(stale)

	sub, err := b.subscriber.Subscribe(ctx, id,
		func(ev Event) { b.deliver(ch, ev) },
		func(err error) { b.fail(ch, err) },
	)
	if err != nil {
		b.mu.Lock()
		if b.channels[id] == ch {
			delete(b.channels, id)
			if b.active == id {
				b.active = ""
			}
		}
		b.mu.Unlock()
		return fmt.Errorf("subscribe %s: %w", id, err)
	}

	b.mu.Lock()
	if b.channels[id] != ch {
		// switched away while the subscription was being set up
		b.mu.Unlock()
		b.closeOne(id, sub)
		return nil
	}
	ch.sub = sub
	b.mu.Unlock()
	if b.logger != nil {
		b.logger.Debug("realtime channel opened", "conversation_id", id)
	}
	return nil
}

// Unsubscribe tears down the channel for id.
func (b *Bridge) Unsubscribe(id chat.ConversationID) {
	b.mu.Lock()
	stale := b.detachLocked(func(c *channel) bool { return c.id == id })
	if b.active == id {
		b.active = ""
	}
	b.mu.Unlock()
	b.closeAll(stale)
}

// Sweep closes channels that are not the active conversation or whose
// transport failed. It returns the number of closed channels.
func (b *Bridge) Sweep() int {
	b.mu.Lock()
	stale := b.detachLocked(func(c *channel) bool { return c.id != b.active || c.failed })
	for _, c := range stale {
		if c.id == b.active {
			b.active = ""
		}
	}
	b.mu.Unlock()
	b.closeAll(stale)
	if len(stale) > 0 && b.logger != nil {
		b.logger.Info("stale realtime channels swept", "count", len(stale))
	}
	return len(stale)
}

// RunSweeper sweeps on every tick until ctx is done.
func (b *Bridge) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Sweep()
		}
	}
}

// Close tears down every channel.
func (b *Bridge) Close() {
	b.mu.Lock()
	stale := b.detachLocked(func(c *channel) bool { return true })
	b.active = ""
	b.mu.Unlock()
	b.closeAll(stale)
}

func (b *Bridge) Active() chat.ConversationID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// Open returns the number of registered channels.
func (b *Bridge) Open() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.channels)
}

func (b *Bridge) deliver(ch *channel, ev Event) {
	b.mu.Lock()
	live := b.channels[ch.id] == ch && b.active == ch.id
	if live {
		ch.lastEvent = time.Now()
	}
	b.mu.Unlock()
	if !live {
		return
	}
	if ev.ConversationID != "" && ev.ConversationID != ch.id {
		return
	}

	switch ev.Type {
	case EventMessageNew:
		msg := ev.Message
		if msg.ConversationID == "" {
			msg.ConversationID = ch.id
		}
		if !b.merge(msg) {
			return
		}
		if ch.onMessage != nil {
			ch.onMessage(msg)
		}
	case EventMessageRead:
		b.store.MarkRead(ev.MessageIDs)
	}
}

// merge reconciles by identity: an echo of our own provisional message
// replaces it, anything already held is dropped.
func (b *Bridge) merge(msg chat.Message) bool {
	if b.store.Has(msg.ID) {
		return false
	}
	if msg.ClientID != "" {
		tempID := chat.MessageID(msg.ClientID)
		if tempID.IsTemporary() && b.store.Has(tempID) {
			return b.store.Replace(tempID, msg)
		}
	}
	return b.store.Append(msg)
}

func (b *Bridge) fail(ch *channel, err error) {
	b.mu.Lock()
	live := b.channels[ch.id] == ch
	if live {
		ch.failed = true
	}
	b.mu.Unlock()
	if !live {
		return
	}
	if b.logger != nil {
		b.logger.Warn("realtime channel failed", "conversation_id", ch.id, "error", err)
	}
	if ch.onError != nil {
		ch.onError(err)
	}
}

func (b *Bridge) detachLocked(match func(*channel) bool) []*channel {
	var out []*channel
	for id, c := range b.channels {
		if match(c) {
			out = append(out, c)
			delete(b.channels, id)
		}
	}
	return out
}

func (b *Bridge) closeAll(chs []*channel) {
	for _, c := range chs {
		if c.sub != nil {
			b.closeOne(c.id, c.sub)
		}
	}
}

func (b *Bridge) closeOne(id chat.ConversationID, sub Subscription) {
	if err := sub.Close(); err != nil && !errors.Is(err, context.Canceled) && b.logger != nil {
		b.logger.Warn("realtime channel close failed", "conversation_id", id, "error", err)
	}
}
