package tui

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kindbossing/internal/app/dto"
	"kindbossing/internal/client/chatsync"
	"kindbossing/internal/client/deck"
	"kindbossing/internal/domain/chat"
	"kindbossing/internal/domain/matching"
)

var base = time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)

type fakeBackend struct {
	mu       sync.Mutex
	history  []chat.Message
	rows     []chatsync.Summary
	marked   []chat.ConversationID
	decided  []matching.ApplicationID
	pending  []deck.Candidate
	blocked  bool
}

func (b *fakeBackend) FetchMessages(_ context.Context, _ chat.ConversationID, limit, offset int) ([]chat.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var page []chat.Message
	for i := len(b.history) - 1 - offset; i >= 0 && len(page) < limit; i-- {
		page = append(page, b.history[i])
	}
	return page, nil
}

func (b *fakeBackend) WriteMessage(_ context.Context, req chat.WriteRequest) (chat.Message, error) {
	return chat.Message{
		ID: chat.NewMessageID(), ConversationID: req.ConversationID, SenderID: req.SenderID,
		Content: req.Content, Kind: chat.KindText, Status: chat.StatusSent, ClientID: req.ClientID, CreatedAt: time.Now(),
	}, nil
}

func (b *fakeBackend) IsBlocked(context.Context, string, string) (bool, error) { return b.blocked, nil }

func (b *fakeBackend) OpenConversation(_ context.Context, matchID, _ string) (*chat.Conversation, error) {
	return nil, fmt.Errorf("unexpected open for %s", matchID)
}

func (b *fakeBackend) ListConversations(context.Context, int, int) ([]chatsync.Summary, error) {
	return b.rows, nil
}

func (b *fakeBackend) MarkRead(_ context.Context, id chat.ConversationID) (dto.ReadReceipt, error) {
	b.mu.Lock()
	b.marked = append(b.marked, id)
	b.mu.Unlock()
	return dto.ReadReceipt{ConversationID: string(id)}, nil
}

func (b *fakeBackend) Candidates(_ context.Context, _ string, limit, offset int) ([]deck.Candidate, error) {
	if offset >= len(b.pending) {
		return nil, nil
	}
	return b.pending[offset:min(offset+limit, len(b.pending))], nil
}

func (b *fakeBackend) DecideApplication(_ context.Context, id matching.ApplicationID, _ matching.Decision) error {
	b.mu.Lock()
	b.decided = append(b.decided, id)
	b.mu.Unlock()
	return nil
}

type nopSubscription struct{}

func (nopSubscription) Close() error { return nil }

type nopRealtime struct{}

func (nopRealtime) Subscribe(context.Context, chat.ConversationID, func(chatsync.Event), func(error)) (chatsync.Subscription, error) {
	return nopSubscription{}, nil
}

func (nopRealtime) Broadcast(context.Context, chat.Message) error { return nil }

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newChatModel(t *testing.T, n int) (ChatModel, *fakeBackend) {
	t.Helper()
	backend := &fakeBackend{rows: []chatsync.Summary{{ID: "conv-1", PeerID: "seeker-1", PeerName: "Maria"}}}
	for i := range n {
		backend.history = append(backend.history, chat.Message{
			ID: chat.MessageID(fmt.Sprintf("m-%02d", i)), ConversationID: "conv-1", SenderID: "seeker-1",
			Content: fmt.Sprintf("hello %d", i), Kind: chat.KindText, Status: chat.StatusSent,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	sess := chatsync.NewSession(chatsync.SessionConfig{
		UserID: "boss-1", Fetcher: backend, Writer: backend, Subscriber: nopRealtime{},
		Blocks: backend, Broadcaster: nopRealtime{}, Materializer: backend,
		Paginator: chatsync.PaginatorConfig{PageSize: 10, ScrollTrigger: scrollTriggerLines},
		Logger:    quiet(),
	})
	m := NewChat(context.Background(), ChatConfig{Session: sess, Backend: backend, UserID: "boss-1"})
	return m, backend
}

func step(t *testing.T, m tea.Model, msg tea.Msg) ChatModel {
	t.Helper()
	next, _ := m.Update(msg)
	cm, ok := next.(ChatModel)
	require.True(t, ok)
	return cm
}

func TestChatOpensConversation(t *testing.T) {
	m, backend := newChatModel(t, 3)
	m = step(t, m, m.loadList()())
	require.Len(t, m.rows, 1)

	m = step(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = step(t, m, m.open(m.rows[0])())
	require.NoError(t, m.err)
	assert.Equal(t, paneChat, m.focus)
	assert.Equal(t, []chat.ConversationID{"conv-1"}, backend.marked)
	assert.Contains(t, m.View(), "hello 2")
}

func TestChatKeepsPositionWhenOlderPageArrives(t *testing.T) {
	m, _ := newChatModel(t, 30)
	m = step(t, m, tea.WindowSizeMsg{Width: 120, Height: 10})
	m = step(t, m, m.loadList()())
	m = step(t, m, m.open(m.rows[0])())
	require.True(t, m.session.HasMore())

	before := m.viewport.TotalLineCount()
	m.viewport.SetYOffset(1)
	cmd := m.maybeLoadOlder()
	require.NotNil(t, cmd)
	assert.Nil(t, m.maybeLoadOlder(), "one load at a time")

	m = step(t, m, cmd())
	assert.Equal(t, before+10, m.viewport.TotalLineCount())
	assert.Equal(t, 11, m.viewport.YOffset)
	assert.False(t, m.preserver.Pending())
	assert.Len(t, m.session.Messages(), 20)
}

func TestChatReportsBlockedSend(t *testing.T) {
	m, backend := newChatModel(t, 1)
	backend.blocked = true
	m = step(t, m, m.loadList()())
	m = step(t, m, m.open(m.rows[0])())

	m = step(t, m, m.send("are you there?")())
	require.Error(t, m.err)
	assert.Contains(t, m.View(), "not accepting messages")
	assert.Len(t, m.session.Messages(), 1)
}

func TestDeckApproveOffersChat(t *testing.T) {
	backend := &fakeBackend{pending: []deck.Candidate{
		{ApplicationID: "app-1", JobID: "job-1", ApplicantID: "seeker-1", Name: "Maria"},
		{ApplicationID: "app-2", JobID: "job-1", ApplicantID: "seeker-2", Name: "Liza"},
	}}
	inbox := NewInbox()
	queue := deck.NewQueue(deck.QueueConfig{Decider: deck.RemoteDecider{Client: backend}, Navigator: inbox, Logger: quiet()})
	ctx := context.Background()
	m := NewDeck(ctx, deck.New(queue, backend, "job-1", 10), inbox, "job-1")

	next, _ := m.Update(m.refill()())
	m = next.(DeckModel)
	assert.Contains(t, m.View(), "Maria")

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("a")})
	m = next.(DeckModel)
	assert.Contains(t, m.View(), "Liza")

	select {
	case msg := <-inbox:
		next, _ = m.Update(msg)
		m = next.(DeckModel)
	case <-time.After(5 * time.Second):
		t.Fatal("no navigation after approve")
	}
	assert.Contains(t, m.View(), "Matched with Maria")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	m = next.(DeckModel)
	require.NotNil(t, cmd)
	match, ok := m.Chat()
	require.True(t, ok)
	assert.Equal(t, chat.ConversationID("temp_app-1"), match.ID)
	assert.Equal(t, "seeker-1", match.PeerID)
	assert.Equal(t, "app-1", match.MatchID)

	require.NoError(t, queue.Shutdown(ctx))
	assert.Equal(t, []matching.ApplicationID{"app-1"}, backend.decided)
}

func TestDeckRewindShowsPreviousCard(t *testing.T) {
	backend := &fakeBackend{pending: []deck.Candidate{
		{ApplicationID: "app-1", Name: "Maria"},
		{ApplicationID: "app-2", Name: "Liza"},
	}}
	queue := deck.NewQueue(deck.QueueConfig{Decider: deck.RemoteDecider{Client: backend}, Logger: quiet()})
	m := NewDeck(context.Background(), deck.New(queue, backend, "job-1", 10), nil, "job-1")
	next, _ := m.Update(m.refill()())
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	next, _ = next.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("z")})
	view := next.View()
	assert.Contains(t, view, "Maria")
	assert.Contains(t, view, "already skipped")
	require.NoError(t, queue.Shutdown(context.Background()))
}
