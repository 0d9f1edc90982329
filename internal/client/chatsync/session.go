package chatsync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"kindbossing/internal/domain/chat"
)

type SessionConfig struct {
	UserID       string
	Fetcher      Fetcher
	Writer       Writer
	Subscriber   Subscriber
	Blocks       BlockChecker
	Broadcaster  Broadcaster
	Materializer Materializer
	// List is optional; a private list is created when nil.
	List      *ConversationList
	Paginator PaginatorConfig
	Clock     func() time.Time
	Logger    *slog.Logger
	// OnRealtimeError receives transport failures of the open conversation.
	OnRealtimeError func(error)
}

// Session ties the store, paginator, bridge, sender and conversation list
// together for the conversation currently on screen.
type Session struct {
	store     *Store
	paginator *Paginator
	bridge    *Bridge
	sender    *Sender
	list      *ConversationList
	logger    *slog.Logger
	onRTError func(error)

	mu      sync.Mutex
	current Summary
}

func NewSession(cfg SessionConfig) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.List == nil {
		cfg.List = NewConversationList(cfg.UserID)
	}
	if cfg.Paginator.Clock == nil {
		cfg.Paginator.Clock = cfg.Clock
	}
	if cfg.Paginator.Logger == nil {
		cfg.Paginator.Logger = cfg.Logger
	}

	store := NewStore()
	s := &Session{
		store:     store,
		paginator: NewPaginator(cfg.Fetcher, store, cfg.Paginator),
		bridge:    NewBridge(cfg.Subscriber, store, cfg.Logger),
		list:      cfg.List,
		logger:    cfg.Logger,
		onRTError: cfg.OnRealtimeError,
	}
	s.sender = NewSender(store, SenderConfig{
		UserID:         cfg.UserID,
		Writer:         cfg.Writer,
		Blocks:         cfg.Blocks,
		Broadcaster:    cfg.Broadcaster,
		Materializer:   cfg.Materializer,
		Clock:          cfg.Clock,
		Logger:         cfg.Logger,
		OnMaterialized: s.materialized,
	})
	store.Watch(s.observe)
	return s
}

// Open switches the session to conv. Temporary conversations are shown
// empty and are neither fetched nor subscribed until their first send.
// The channel is opened before the first page is fetched so a message
// posted during the fetch is not lost; the store drops the overlap. When
// the fetch fails the channel of the new conversation stays open and the
// previous one is already gone.
func (s *Session) Open(ctx context.Context, conv Summary) error {
	s.mu.Lock()
	s.current = conv
	s.mu.Unlock()

	s.list.Upsert(conv)
	s.list.Open(conv.ID)
	s.sender.SetTarget(Target{ConversationID: conv.ID, MatchID: conv.MatchID, PeerID: conv.PeerID})

	if conv.ID.IsTemporary() || s.bridge.Active() != conv.ID {
		s.bridge.Close()
	}
	s.paginator.Forget()
	s.store.Reset()
	if conv.ID.IsTemporary() {
		return nil
	}

	subErr := s.bridge.Subscribe(ctx, conv.ID, nil, s.onRTError)
	if err := s.paginator.loadFirst(ctx, conv.ID, false); err != nil {
		return err
	}
	if subErr != nil {
		return fmt.Errorf("open %s: %w", conv.ID, subErr)
	}
	return nil
}

func (s *Session) Send(ctx context.Context, content string) (chat.Message, error) {
	return s.sender.Send(ctx, SendInput{Content: content})
}

func (s *Session) SendFile(ctx context.Context, name, fileRef string) (chat.Message, error) {
	return s.sender.Send(ctx, SendInput{Content: name, Kind: chat.KindFile, FileRef: fileRef})
}

// LoadOlder requests the next page of history.
func (s *Session) LoadOlder(ctx context.Context) (bool, error) {
	return s.paginator.LoadMore(ctx)
}

// Close leaves the current conversation.
func (s *Session) Close() {
	s.bridge.Close()
	s.paginator.Forget()
	s.list.Open("")
	s.sender.SetTarget(Target{})
	s.mu.Lock()
	s.current = Summary{}
	s.mu.Unlock()
}

func (s *Session) Current() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Session) Messages() []chat.Message { return s.store.Snapshot() }

func (s *Session) Store() *Store { return s.store }
func (s *Session) Paginator() *Paginator { return s.paginator }
func (s *Session) Bridge() *Bridge { return s.bridge }
func (s *Session) List() *ConversationList { return s.list }
func (s *Session) Sender() *Sender { return s.sender }
func (s *Session) HasMore() bool { return s.paginator.HasMore() }
func (s *Session) ConversationID() chat.ConversationID { return s.Current().ID }

func (s *Session) materialized(ctx context.Context, from chat.ConversationID, conv *chat.Conversation) {
	s.paginator.Rekey(conv.ID)
	s.list.Rename(from, conv.ID)

	s.mu.Lock()
	if s.current.ID == from {
		s.current.ID = conv.ID
		s.current.MatchID = conv.MatchID
	}
	s.mu.Unlock()

	if err := s.bridge.Subscribe(ctx, conv.ID, nil, s.onRTError); err != nil {
		s.logger.Warn("realtime subscribe after materialize failed", "conversation_id", conv.ID, "error", err)
	}
}

// observe feeds the newest confirmed message into the conversation list.
func (s *Session) observe(snapshot []chat.Message) {
	for i := len(snapshot) - 1; i >= 0; i-- {
		msg := snapshot[i]
		if msg.IsProvisional() {
			continue
		}
		s.list.Observe(msg.ConversationID, msg)
		return
	}
}
