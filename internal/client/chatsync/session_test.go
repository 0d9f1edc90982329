package chatsync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kindbossing/internal/domain/chat"
)

type sessionFixture struct {
	session *Session
	fetcher *fakeFetcher
	sub     *fakeSubscriber
	writer  *fakeWriter
	mat     *fakeMaterializer
	clock   *fakeClock
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		fetcher: newFakeFetcher(),
		sub:     newFakeSubscriber(),
		writer:  &fakeWriter{},
		mat:     &fakeMaterializer{id: "conv-new"},
		clock:   newFakeClock(),
	}
	f.fetcher.set("conv-1", history("conv-1", 45))
	f.session = NewSession(SessionConfig{
		UserID:       "me",
		Fetcher:      f.fetcher,
		Writer:       f.writer,
		Subscriber:   f.sub,
		Blocks:       &fakeBlocks{},
		Materializer: f.mat,
		Clock:        f.clock.Now,
		Logger:       discardLogger(),
	})
	return f
}

func assertUnique(t *testing.T, msgs []chat.Message) {
	t.Helper()
	seen := make(map[chat.MessageID]struct{}, len(msgs))
	for _, m := range msgs {
		_, dup := seen[m.ID]
		require.False(t, dup, "duplicate message %s", m.ID)
		seen[m.ID] = struct{}{}
	}
}

func TestSessionNoDuplicatesUnderInterleaving(t *testing.T) {
	for range 20 {
		f := newSessionFixture(t)
		ctx := context.Background()
		require.NoError(t, f.session.Open(ctx, Summary{ID: "conv-1", PeerID: "peer"}))

		// the realtime echo of our own message lands before the write returns
		f.writer.before = func(_ chat.WriteRequest, durable chat.Message) {
			f.sub.emit("conv-1", Event{Type: EventMessageNew, Message: durable})
		}

		var wg sync.WaitGroup
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, err := f.session.LoadOlder(ctx)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			all := history("conv-1", 45)
			f.sub.emit("conv-1", Event{Type: EventMessageNew, Message: all[30]})
			f.sub.emit("conv-1", Event{Type: EventMessageNew, Message: all[10]})
			f.sub.emit("conv-1", Event{Type: EventMessageNew, Message: msgAt("rt-1", "conv-1", "peer", 100)})
			f.sub.emit("conv-1", Event{Type: EventMessageNew, Message: msgAt("rt-1", "conv-1", "peer", 100)})
		}()
		go func() {
			defer wg.Done()
			_, err := f.session.Send(ctx, "hello")
			assert.NoError(t, err)
		}()
		wg.Wait()

		msgs := f.session.Messages()
		assertUnique(t, msgs)
		assert.True(t, isChronological(msgs))
		assert.Len(t, msgs, 42)
		for _, m := range msgs {
			assert.False(t, m.ID.IsTemporary())
		}
	}
}

func TestSessionOpenSubscribesAndFeedsList(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	require.NoError(t, f.session.Open(ctx, Summary{ID: "conv-1", PeerID: "peer"}))

	assert.Equal(t, 20, len(f.session.Messages()))
	assert.Equal(t, chat.ConversationID("conv-1"), f.session.Bridge().Active())

	f.sub.emit("conv-1", Event{Type: EventMessageNew, Message: msgAt("rt-1", "conv-1", "peer", 100)})
	row, ok := f.session.List().Get("conv-1")
	require.True(t, ok)
	assert.Equal(t, chat.MessageID("rt-1"), row.LastMessageID)
	assert.Zero(t, row.UnreadCount)

	f.session.Close()
	assert.Empty(t, f.session.Bridge().Active())
	assert.Empty(t, f.session.List().OpenID())
}

func TestSessionTemporaryConversation(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	temp := chat.TemporaryConversationID("app-1")

	require.NoError(t, f.session.Open(ctx, Summary{ID: temp, MatchID: "app-1", PeerID: "boss"}))
	assert.Zero(t, f.fetcher.calls.Load())
	assert.Zero(t, f.sub.openCount())

	f.clock.Advance(time.Minute)
	msg, err := f.session.Send(ctx, "hi boss")
	require.NoError(t, err)

	assert.Equal(t, chat.ConversationID("conv-new"), f.session.ConversationID())
	assert.Equal(t, chat.ConversationID("conv-new"), msg.ConversationID)
	assert.Equal(t, chat.ConversationID("conv-new"), f.session.Bridge().Active())
	assert.Equal(t, 1, f.sub.openCount())

	_, ok := f.session.List().Get(temp)
	assert.False(t, ok)
	row, ok := f.session.List().Get("conv-new")
	require.True(t, ok)
	assert.Equal(t, msg.ID, row.LastMessageID)
}

func TestSessionSwitchResetsState(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	f.fetcher.set("conv-2", history("conv-2", 3))

	require.NoError(t, f.session.Open(ctx, Summary{ID: "conv-1"}))
	require.NoError(t, f.session.Open(ctx, Summary{ID: "conv-2"}))

	msgs := f.session.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, chat.ConversationID("conv-2"), msgs[0].ConversationID)
	assert.False(t, f.session.HasMore())
	assert.True(t, f.sub.subs[0].closed.Load())
}

func TestSessionFailedOpenDropsPreviousChannel(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	require.NoError(t, f.session.Open(ctx, Summary{ID: "conv-1"}))
	require.NotEmpty(t, f.session.Messages())

	f.fetcher.fail(errors.New("network down"))
	require.Error(t, f.session.Open(ctx, Summary{ID: "conv-2"}))

	assert.True(t, f.sub.subs[0].closed.Load())
	assert.Equal(t, chat.ConversationID("conv-2"), f.session.Bridge().Active())
	assert.Equal(t, 1, f.session.Bridge().Open())

	f.sub.emit("conv-1", Event{Type: EventMessageNew, Message: msgAt("late-1", "conv-1", "peer", 200)})
	assert.Empty(t, f.session.Messages())

	f.fetcher.fail(nil)
	f.fetcher.set("conv-2", history("conv-2", 2))
	require.NoError(t, f.session.Open(ctx, Summary{ID: "conv-2"}))
	assert.Len(t, f.session.Messages(), 2)
	assert.Equal(t, 2, f.sub.openCount())
}

func TestSessionKeepsMessageArrivingDuringFirstFetch(t *testing.T) {
	f := newSessionFixture(t)
	f.fetcher.set("conv-1", history("conv-1", 3))
	gate := make(chan struct{})
	f.fetcher.gate = gate

	done := make(chan error, 1)
	go func() { done <- f.session.Open(context.Background(), Summary{ID: "conv-1"}) }()

	require.Eventually(t, func() bool { return f.fetcher.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, chat.ConversationID("conv-1"), f.session.Bridge().Active())

	// posted after the server built the page but before it reached us
	f.sub.emit("conv-1", Event{Type: EventMessageNew, Message: msgAt("rt-1", "conv-1", "peer", 50)})
	// also part of the page
	f.sub.emit("conv-1", Event{Type: EventMessageNew, Message: msgAt("m-002", "conv-1", "peer", 2)})
	close(gate)
	require.NoError(t, <-done)

	msgs := f.session.Messages()
	assertUnique(t, msgs)
	assert.Equal(t, []chat.MessageID{"m-000", "m-001", "m-002", "rt-1"}, ids(msgs))
}
