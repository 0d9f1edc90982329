package chatsync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"kindbossing/internal/domain/chat"
)

var base = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: base} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func msgAt(id string, conv chat.ConversationID, sender string, minute int) chat.Message {
	return chat.Message{
		ID:             chat.MessageID(id),
		ConversationID: conv,
		SenderID:       sender,
		Content:        "message " + id,
		Kind:           chat.KindText,
		Status:         chat.StatusSent,
		CreatedAt:      base.Add(time.Duration(minute) * time.Minute),
	}
}

// history builds n messages, oldest first, one minute apart.
func history(conv chat.ConversationID, n int) []chat.Message {
	out := make([]chat.Message, n)
	for i := range n {
		out[i] = msgAt(fmt.Sprintf("m-%03d", i), conv, "peer", i)
	}
	return out
}

type fakeFetcher struct {
	mu      sync.Mutex
	history map[chat.ConversationID][]chat.Message
	calls   atomic.Int32
	err     error
	gate    chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{history: make(map[chat.ConversationID][]chat.Message)}
}

func (f *fakeFetcher) set(conv chat.ConversationID, msgs []chat.Message) {
	f.mu.Lock()
	f.history[conv] = msgs
	f.mu.Unlock()
}

func (f *fakeFetcher) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeFetcher) FetchMessages(ctx context.Context, conv chat.ConversationID, limit, offset int) ([]chat.Message, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	all := f.history[conv]
	var page []chat.Message
	for i := len(all) - 1 - offset; i >= 0 && len(page) < limit; i-- {
		page = append(page, all[i])
	}
	return page, nil
}

type fakeSubscription struct {
	closed atomic.Bool
}

func (s *fakeSubscription) Close() error {
	s.closed.Store(true)
	return nil
}

type fakeSubscriber struct {
	mu       sync.Mutex
	handlers map[chat.ConversationID]func(Event)
	onErrors map[chat.ConversationID]func(error)
	subs     []*fakeSubscription
	opened   int
	err      error
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{
		handlers: make(map[chat.ConversationID]func(Event)),
		onErrors: make(map[chat.ConversationID]func(error)),
	}
}

func (f *fakeSubscriber) Subscribe(_ context.Context, id chat.ConversationID, handler func(Event), onError func(error)) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.opened++
	f.handlers[id] = handler
	f.onErrors[id] = onError
	sub := &fakeSubscription{}
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeSubscriber) emit(id chat.ConversationID, ev Event) {
	f.mu.Lock()
	h := f.handlers[id]
	f.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

func (f *fakeSubscriber) failTransport(id chat.ConversationID, err error) {
	f.mu.Lock()
	h := f.onErrors[id]
	f.mu.Unlock()
	if h != nil {
		h(err)
	}
}

func (f *fakeSubscriber) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened
}

type fakeWriter struct {
	mu     sync.Mutex
	calls  int
	err    error
	clock  func() time.Time
	before func(req chat.WriteRequest, durable chat.Message)
	seq    int
}

func (w *fakeWriter) WriteMessage(_ context.Context, req chat.WriteRequest) (chat.Message, error) {
	w.mu.Lock()
	w.calls++
	w.seq++
	err := w.err
	seq := w.seq
	before := w.before
	w.mu.Unlock()
	if err != nil {
		return chat.Message{}, err
	}
	at := base.Add(24 * time.Hour)
	if w.clock != nil {
		at = w.clock()
	}
	durable := chat.Message{
		ID:             chat.MessageID(fmt.Sprintf("durable-%d", seq)),
		ConversationID: req.ConversationID,
		SenderID:       req.SenderID,
		Content:        req.Content,
		Kind:           req.Kind,
		FileRef:        req.FileRef,
		Status:         chat.StatusSent,
		ClientID:       req.ClientID,
		CreatedAt:      at,
	}
	if before != nil {
		before(req, durable)
	}
	return durable, nil
}

func (w *fakeWriter) callCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

type fakeBlocks struct {
	blocked bool
	err     error
	calls   atomic.Int32
}

func (b *fakeBlocks) IsBlocked(context.Context, string, string) (bool, error) {
	b.calls.Add(1)
	return b.blocked, b.err
}

type fakeBroadcaster struct {
	mu   sync.Mutex
	sent []chat.Message
	err  error
}

func (b *fakeBroadcaster) Broadcast(_ context.Context, msg chat.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, msg)
	return b.err
}

type fakeMaterializer struct {
	id    chat.ConversationID
	err   error
	calls atomic.Int32
}

func (m *fakeMaterializer) OpenConversation(_ context.Context, matchID, peerID string) (*chat.Conversation, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return &chat.Conversation{ID: m.id, MatchID: matchID, SeekerID: peerID}, nil
}

func ids(msgs []chat.Message) []chat.MessageID {
	out := make([]chat.MessageID, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}
