package chatsync

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kindbossing/internal/domain/chat"
)

func isChronological(msgs []chat.Message) bool {
	return slices.IsSortedFunc(msgs, func(a, b chat.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}

func TestStorePrependKeepsOrderAcrossPages(t *testing.T) {
	all := history("conv-1", 100)
	rng := rand.New(rand.NewPCG(7, 11))

	// pages arrive in random order and overlap by a few messages
	var pages [][]chat.Message
	for start := 0; start < len(all); start += 15 {
		end := min(start+20, len(all))
		pages = append(pages, all[start:end])
	}
	rng.Shuffle(len(pages), func(i, j int) { pages[i], pages[j] = pages[j], pages[i] })

	store := NewStore()
	for _, page := range pages {
		store.Prepend(page)
		require.True(t, isChronological(store.Snapshot()))
	}

	got := store.Snapshot()
	assert.Len(t, got, len(all))
	assert.Equal(t, ids(all), ids(got))
}

func TestStoreAppendDeduplicates(t *testing.T) {
	store := NewStore()
	msg := msgAt("m-1", "conv-1", "peer", 1)

	assert.True(t, store.Append(msg))
	assert.False(t, store.Append(msg))
	assert.Equal(t, 0, store.Prepend([]chat.Message{msg}))
	assert.Equal(t, 1, store.Len())
}

func TestStoreAppendPlacesOutOfOrderMessage(t *testing.T) {
	store := NewStore()
	store.Append(msgAt("m-1", "conv-1", "peer", 1))
	store.Append(msgAt("m-3", "conv-1", "peer", 3))
	store.Append(msgAt("m-2", "conv-1", "peer", 2))

	assert.Equal(t, []chat.MessageID{"m-1", "m-2", "m-3"}, ids(store.Snapshot()))
	last, ok := store.Last()
	require.True(t, ok)
	assert.Equal(t, chat.MessageID("m-3"), last.ID)
}

func TestStoreReplaceSwapsInOneUpdate(t *testing.T) {
	store := NewStore()
	temp := msgAt("temp-1", "conv-1", "me", 5)
	temp.Status = chat.StatusPending
	store.Append(msgAt("m-1", "conv-1", "peer", 1))
	store.Append(temp)

	var snapshots [][]chat.Message
	store.Watch(func(msgs []chat.Message) { snapshots = append(snapshots, msgs) })

	durable := msgAt("d-1", "conv-1", "me", 6)
	require.True(t, store.Replace("temp-1", durable))

	require.Len(t, snapshots, 1)
	assert.Equal(t, []chat.MessageID{"m-1", "d-1"}, ids(snapshots[0]))
	assert.False(t, store.Has("temp-1"))
}

func TestStoreReplaceWhenDurableAlreadyArrived(t *testing.T) {
	store := NewStore()
	temp := msgAt("temp-1", "conv-1", "me", 5)
	durable := msgAt("d-1", "conv-1", "me", 6)
	store.Append(temp)
	store.Append(durable)

	require.True(t, store.Replace("temp-1", durable))
	assert.Equal(t, []chat.MessageID{"d-1"}, ids(store.Snapshot()))

	assert.False(t, store.Replace("temp-1", durable))
	assert.Equal(t, 1, store.Len())
}

func TestStoreMarkReadAndRekey(t *testing.T) {
	store := NewStore()
	store.Prepend(history("temp_app-1", 3))

	assert.Equal(t, 2, store.MarkRead([]chat.MessageID{"m-000", "m-001", "missing"}))
	assert.Equal(t, 0, store.MarkRead([]chat.MessageID{"m-000"}))

	store.Rekey("conv-9")
	for _, m := range store.Snapshot() {
		assert.Equal(t, chat.ConversationID("conv-9"), m.ConversationID)
	}
	got, ok := store.Get("m-001")
	require.True(t, ok)
	assert.Equal(t, chat.StatusRead, got.Status)
}

func TestStoreSnapshotIsIsolated(t *testing.T) {
	store := NewStore()
	store.Append(msgAt("m-1", "conv-1", "peer", 1))

	snap := store.Snapshot()
	snap[0].Content = "changed"

	got, _ := store.Get("m-1")
	assert.Equal(t, "message m-1", got.Content)
}
