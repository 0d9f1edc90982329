package chatsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"kindbossing/internal/domain/chat"
)

var (
	ErrEmptyContent = errors.New("chatsync: message content is empty")
	ErrSendInFlight = errors.New("chatsync: a send is already in flight")
	ErrNoTarget     = errors.New("chatsync: no conversation selected")
)

// Writer persists a message. Writes are idempotent by client id.
type Writer interface {
	WriteMessage(ctx context.Context, req chat.WriteRequest) (chat.Message, error)
}

// BlockChecker reports whether otherUserID has blocked userID.
type BlockChecker interface {
	IsBlocked(ctx context.Context, userID, otherUserID string) (bool, error)
}

type Broadcaster interface {
	Broadcast(ctx context.Context, msg chat.Message) error
}

// Materializer creates (or returns) the durable conversation for a match.
type Materializer interface {
	OpenConversation(ctx context.Context, matchID, peerID string) (*chat.Conversation, error)
}

// Target is the conversation a Sender writes to.
type Target struct {
	ConversationID chat.ConversationID
	MatchID        string
	PeerID         string
}

type SendInput struct {
	Content string
	Kind    chat.Kind
	FileRef string
}

type SenderConfig struct {
	UserID       string
	Writer       Writer
	Blocks       BlockChecker
	Broadcaster  Broadcaster
	Materializer Materializer
	Clock        func() time.Time
	Logger       *slog.Logger
	// OnMaterialized runs after a temporary conversation received its durable id.
	OnMaterialized func(ctx context.Context, from chat.ConversationID, conv *chat.Conversation)
}

// Sender shows a message immediately and reconciles it with the durable write.
type Sender struct {
	cfg   SenderConfig
	store *Store

	mu       sync.Mutex
	target   Target
	inFlight bool
}

func NewSender(store *Store, cfg SenderConfig) *Sender {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Sender{cfg: cfg, store: store}
}

func (s *Sender) SetTarget(t Target) {
	s.mu.Lock()
	s.target = t
	s.mu.Unlock()
}

func (s *Sender) Target() Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.target
}

func (s *Sender) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// Send appends a provisional message, checks the block list, writes the
// message and swaps the provisional entry for the durable one. Any failure
// removes the provisional entry and is returned without retry.
func (s *Sender) Send(ctx context.Context, in SendInput) (chat.Message, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return chat.Message{}, ErrEmptyContent
	}
	kind := in.Kind
	if kind == "" {
		kind = chat.KindText
	}

	s.mu.Lock()
	if s.target.ConversationID == "" {
		s.mu.Unlock()
		return chat.Message{}, ErrNoTarget
	}
	if s.inFlight {
		s.mu.Unlock()
		return chat.Message{}, ErrSendInFlight
	}
	s.inFlight = true
	target := s.target
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight = false
		s.mu.Unlock()
	}()

	tempID := chat.NewTempMessageID()
	provisional := chat.Message{
		ID:             tempID,
		ConversationID: target.ConversationID,
		SenderID:       s.cfg.UserID,
		Content:        content,
		Kind:           kind,
		FileRef:        strings.TrimSpace(in.FileRef),
		Status:         chat.StatusPending,
		ClientID:       string(tempID),
		CreatedAt:      s.cfg.Clock(),
	}
	s.store.Append(provisional)

	blocked, err := s.cfg.Blocks.IsBlocked(ctx, s.cfg.UserID, target.PeerID)
	if err != nil {
		s.rollback(tempID)
		return chat.Message{}, fmt.Errorf("check block: %w", err)
	}
	if blocked {
		s.rollback(tempID)
		return chat.Message{}, chat.ErrRecipientBlocked
	}

	conversationID := target.ConversationID
	if conversationID.IsTemporary() {
		conversationID, err = s.materialize(ctx, target)
		if err != nil {
			s.rollback(tempID)
			return chat.Message{}, err
		}
	}

	durable, err := s.cfg.Writer.WriteMessage(ctx, chat.WriteRequest{
		ConversationID: conversationID,
		SenderID:       s.cfg.UserID,
		Content:        provisional.Content,
		Kind:           provisional.Kind,
		FileRef:        provisional.FileRef,
		ClientID:       provisional.ClientID,
	})
	if err != nil {
		s.rollback(tempID)
		s.cfg.Logger.Warn("message send failed", "conversation_id", conversationID, "error", err)
		return chat.Message{}, fmt.Errorf("send message: %w", err)
	}
	s.store.Replace(tempID, durable)

	if s.cfg.Broadcaster != nil {
		if err := s.cfg.Broadcaster.Broadcast(ctx, durable); err != nil {
			s.cfg.Logger.Warn("message broadcast failed", "message_id", durable.ID, "error", err)
		}
	}
	return durable, nil
}

func (s *Sender) materialize(ctx context.Context, target Target) (chat.ConversationID, error) {
	if s.cfg.Materializer == nil {
		return "", chat.ErrTemporaryID
	}
	matchID := target.MatchID
	if matchID == "" {
		matchID = target.ConversationID.TemporaryMatchID()
	}
	conv, err := s.cfg.Materializer.OpenConversation(ctx, matchID, target.PeerID)
	if err != nil {
		return "", fmt.Errorf("open conversation: %w", err)
	}
	s.store.Rekey(conv.ID)

	s.mu.Lock()
	if s.target.ConversationID == target.ConversationID {
		s.target.ConversationID = conv.ID
	}
	s.mu.Unlock()

	s.cfg.Logger.Info("conversation materialized", "from", target.ConversationID, "conversation_id", conv.ID)
	if s.cfg.OnMaterialized != nil {
		s.cfg.OnMaterialized(ctx, target.ConversationID, conv)
	}
	return conv.ID, nil
}

func (s *Sender) rollback(id chat.MessageID) {
	s.store.Remove(id)
}
