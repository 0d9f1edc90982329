package chatsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kindbossing/internal/domain/chat"
)

func newTestPaginator(t *testing.T, n int) (*Paginator, *fakeFetcher, *Store, *fakeClock) {
	t.Helper()
	fetcher := newFakeFetcher()
	fetcher.set("conv-1", history("conv-1", n))
	clock := newFakeClock()
	store := NewStore()
	p := NewPaginator(fetcher, store, PaginatorConfig{Clock: clock.Now, Logger: discardLogger()})
	return p, fetcher, store, clock
}

func TestLoadInitialFetchesNewestPage(t *testing.T) {
	p, _, store, _ := newTestPaginator(t, 45)

	require.NoError(t, p.LoadInitial(context.Background(), "conv-1"))

	msgs := store.Snapshot()
	require.Len(t, msgs, DefaultPageSize)
	assert.Equal(t, chat.MessageID("m-025"), msgs[0].ID)
	assert.Equal(t, chat.MessageID("m-044"), msgs[len(msgs)-1].ID)
	assert.True(t, p.HasMore())
	assert.Equal(t, DefaultPageSize, p.Cursor())
}

func TestLoadInitialShortHistoryHasNoMore(t *testing.T) {
	p, _, store, _ := newTestPaginator(t, 20)
	require.NoError(t, p.LoadInitial(context.Background(), "conv-1"))
	assert.Equal(t, 20, store.Len())
	assert.True(t, p.HasMore())

	p2, _, _, _ := newTestPaginator(t, 7)
	require.NoError(t, p2.LoadInitial(context.Background(), "conv-1"))
	assert.False(t, p2.HasMore())
}

func TestLoadMoreWithinCooldownFetchesOnce(t *testing.T) {
	p, fetcher, store, clock := newTestPaginator(t, 45)
	ctx := context.Background()
	require.NoError(t, p.LoadInitial(ctx, "conv-1"))

	loaded, err := p.LoadMore(ctx)
	require.NoError(t, err)
	assert.True(t, loaded)

	loaded, err = p.LoadMore(ctx)
	require.NoError(t, err)
	assert.False(t, loaded)
	assert.EqualValues(t, 2, fetcher.calls.Load())
	assert.Equal(t, 40, store.Len())

	clock.Advance(DefaultCooldown)
	loaded, err = p.LoadMore(ctx)
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.Equal(t, 45, store.Len())
	assert.False(t, p.HasMore())
	assert.True(t, isChronological(store.Snapshot()))

	clock.Advance(time.Hour)
	loaded, _ = p.LoadMore(ctx)
	assert.False(t, loaded)
	assert.EqualValues(t, 3, fetcher.calls.Load())
}

func TestLoadMoreIgnoredWhileInFlight(t *testing.T) {
	p, fetcher, _, _ := newTestPaginator(t, 45)
	ctx := context.Background()
	require.NoError(t, p.LoadInitial(ctx, "conv-1"))

	fetcher.gate = make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = p.LoadMore(ctx)
	}()
	require.Eventually(t, p.Loading, time.Second, time.Millisecond)

	loaded, err := p.LoadMore(ctx)
	require.NoError(t, err)
	assert.False(t, loaded)

	close(fetcher.gate)
	<-done
	assert.EqualValues(t, 2, fetcher.calls.Load())
}

func TestLoadMoreFailureKeepsState(t *testing.T) {
	p, fetcher, store, _ := newTestPaginator(t, 45)
	ctx := context.Background()
	require.NoError(t, p.LoadInitial(ctx, "conv-1"))

	boom := errors.New("network down")
	fetcher.fail(boom)
	loaded, err := p.LoadMore(ctx)
	assert.True(t, loaded)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, p.Err(), boom)
	assert.True(t, p.HasMore())
	assert.Equal(t, DefaultPageSize, p.Cursor())
	assert.Equal(t, 20, store.Len())

	// a failed load does not arm the cooldown
	fetcher.fail(nil)
	loaded, err = p.LoadMore(ctx)
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.NoError(t, p.Err())
	assert.Equal(t, 40, store.Len())
}

func TestLoadMoreDiscardedAfterSwitch(t *testing.T) {
	p, fetcher, store, _ := newTestPaginator(t, 45)
	ctx := context.Background()
	require.NoError(t, p.LoadInitial(ctx, "conv-1"))

	fetcher.gate = make(chan struct{})
	result := make(chan bool, 1)
	go func() {
		loaded, _ := p.LoadMore(ctx)
		result <- loaded
	}()
	require.Eventually(t, p.Loading, time.Second, time.Millisecond)

	p.Forget()
	close(fetcher.gate)

	assert.False(t, <-result)
	assert.Equal(t, 20, store.Len())
	_, err := p.LoadMore(ctx)
	assert.ErrorIs(t, err, ErrNoConversation)
}

func TestOnScrollThresholdAndDebounce(t *testing.T) {
	p, fetcher, _, clock := newTestPaginator(t, 100)
	ctx := context.Background()
	require.NoError(t, p.LoadInitial(ctx, "conv-1"))

	loaded, _ := p.OnScroll(ctx, 300)
	assert.False(t, loaded)

	loaded, _ = p.OnScroll(ctx, 40)
	assert.True(t, loaded)

	clock.Advance(2 * time.Second)
	loaded, _ = p.OnScroll(ctx, 10)
	assert.True(t, loaded)

	clock.Advance(100 * time.Millisecond)
	loaded, _ = p.OnScroll(ctx, 0)
	assert.False(t, loaded)
	assert.EqualValues(t, 3, fetcher.calls.Load())

	clock.Advance(DefaultCooldown)
	loaded, _ = p.OnSentinelVisible(ctx)
	assert.True(t, loaded)
}
