package chatsync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kindbossing/internal/domain/chat"
)

func TestBridgeSubscribeOncePerConversation(t *testing.T) {
	sub := newFakeSubscriber()
	bridge := NewBridge(sub, NewStore(), discardLogger())
	ctx := context.Background()

	require.NoError(t, bridge.Subscribe(ctx, "conv-1", nil, nil))
	require.NoError(t, bridge.Subscribe(ctx, "conv-1", nil, nil))
	assert.Equal(t, 1, sub.openCount())

	require.NoError(t, bridge.Subscribe(ctx, "conv-2", nil, nil))
	assert.Equal(t, 2, sub.openCount())
	assert.True(t, sub.subs[0].closed.Load())
	assert.Equal(t, chat.ConversationID("conv-2"), bridge.Active())
	assert.Equal(t, 1, bridge.Open())
}

func TestBridgeRejectsTemporaryConversation(t *testing.T) {
	bridge := NewBridge(newFakeSubscriber(), NewStore(), discardLogger())
	err := bridge.Subscribe(context.Background(), chat.TemporaryConversationID("app-1"), nil, nil)
	assert.ErrorIs(t, err, chat.ErrTemporaryID)
}

func TestBridgeSubscribeFailure(t *testing.T) {
	sub := newFakeSubscriber()
	sub.err = errors.New("dial failed")
	bridge := NewBridge(sub, NewStore(), discardLogger())

	err := bridge.Subscribe(context.Background(), "conv-1", nil, nil)
	assert.ErrorIs(t, err, sub.err)
	assert.Empty(t, bridge.Active())
	assert.Zero(t, bridge.Open())
}

func TestBridgeDropsDuplicateDelivery(t *testing.T) {
	sub := newFakeSubscriber()
	store := NewStore()
	store.Append(msgAt("m-1", "conv-1", "peer", 1))
	bridge := NewBridge(sub, store, discardLogger())

	var delivered []chat.MessageID
	require.NoError(t, bridge.Subscribe(context.Background(), "conv-1", func(m chat.Message) {
		delivered = append(delivered, m.ID)
	}, nil))

	sub.emit("conv-1", Event{Type: EventMessageNew, Message: msgAt("m-1", "conv-1", "peer", 1)})
	sub.emit("conv-1", Event{Type: EventMessageNew, Message: msgAt("m-2", "conv-1", "peer", 2)})
	sub.emit("conv-1", Event{Type: EventMessageNew, Message: msgAt("m-2", "conv-1", "peer", 2)})

	assert.Equal(t, []chat.MessageID{"m-2"}, delivered)
	assert.Equal(t, []chat.MessageID{"m-1", "m-2"}, ids(store.Snapshot()))
}

func TestBridgeEchoReplacesProvisional(t *testing.T) {
	sub := newFakeSubscriber()
	store := NewStore()
	temp := msgAt("temp-abc", "conv-1", "me", 3)
	temp.Status = chat.StatusPending
	temp.ClientID = "temp-abc"
	store.Append(temp)
	bridge := NewBridge(sub, store, discardLogger())
	require.NoError(t, bridge.Subscribe(context.Background(), "conv-1", nil, nil))

	echo := msgAt("d-1", "conv-1", "me", 3)
	echo.ClientID = "temp-abc"
	sub.emit("conv-1", Event{Type: EventMessageNew, Message: echo})

	assert.Equal(t, []chat.MessageID{"d-1"}, ids(store.Snapshot()))
}

func TestBridgeReadReceipts(t *testing.T) {
	sub := newFakeSubscriber()
	store := NewStore()
	store.Prepend(history("conv-1", 3))
	bridge := NewBridge(sub, store, discardLogger())
	require.NoError(t, bridge.Subscribe(context.Background(), "conv-1", nil, nil))

	sub.emit("conv-1", Event{Type: EventMessageRead, MessageIDs: []chat.MessageID{"m-001", "m-002"}})

	got, _ := store.Get("m-002")
	assert.Equal(t, chat.StatusRead, got.Status)
	got, _ = store.Get("m-000")
	assert.Equal(t, chat.StatusSent, got.Status)
}

func TestBridgeIgnoresEventsOfPreviousChannel(t *testing.T) {
	sub := newFakeSubscriber()
	store := NewStore()
	bridge := NewBridge(sub, store, discardLogger())
	ctx := context.Background()

	require.NoError(t, bridge.Subscribe(ctx, "conv-1", nil, nil))
	require.NoError(t, bridge.Subscribe(ctx, "conv-2", nil, nil))

	sub.emit("conv-1", Event{Type: EventMessageNew, Message: msgAt("late", "conv-1", "peer", 1)})
	assert.Zero(t, store.Len())
}

func TestBridgeSweepClosesFailedChannel(t *testing.T) {
	sub := newFakeSubscriber()
	bridge := NewBridge(sub, NewStore(), discardLogger())
	var reported error
	require.NoError(t, bridge.Subscribe(context.Background(), "conv-1", nil, func(err error) { reported = err }))

	assert.Zero(t, bridge.Sweep())

	boom := errors.New("socket closed")
	sub.failTransport("conv-1", boom)
	assert.ErrorIs(t, reported, boom)

	assert.Equal(t, 1, bridge.Sweep())
	assert.True(t, sub.subs[0].closed.Load())
	assert.Empty(t, bridge.Active())

	require.NoError(t, bridge.Subscribe(context.Background(), "conv-1", nil, nil))
	assert.Equal(t, 2, sub.openCount())
}

func TestBridgeUnsubscribeAndClose(t *testing.T) {
	sub := newFakeSubscriber()
	bridge := NewBridge(sub, NewStore(), discardLogger())
	ctx := context.Background()

	require.NoError(t, bridge.Subscribe(ctx, "conv-1", nil, nil))
	bridge.Unsubscribe("conv-1")
	assert.True(t, sub.subs[0].closed.Load())
	assert.Zero(t, bridge.Open())

	require.NoError(t, bridge.Subscribe(ctx, "conv-2", nil, nil))
	bridge.Close()
	assert.True(t, sub.subs[1].closed.Load())
	assert.Empty(t, bridge.Active())
}
