package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"kindbossing/internal/domain/shared/events"
)

var (
	ErrConversationNotFound = errors.New("chat: conversation not found")
	ErrConversationClosed   = errors.New("chat: conversation is closed")
	ErrNotParticipant       = errors.New("chat: user is not a participant")
	ErrParticipantsRequired = errors.New("chat: employer and seeker are required")
	ErrSelfConversation     = errors.New("chat: cannot start a conversation with yourself")
	ErrMatchRequired        = errors.New("chat: match id is required")
	ErrTemporaryID          = errors.New("chat: temporary conversation has not been created yet")
	ErrConversationExists   = errors.New("chat: conversation already exists for match")
)

// TempConversationPrefix marks a conversation that exists only on the client
// until its first message is sent.
const TempConversationPrefix = "temp_"

const previewLength = 140

type ConversationID string

func (id ConversationID) IsTemporary() bool {
	return strings.HasPrefix(string(id), TempConversationPrefix)
}

// TemporaryMatchID returns the match a temporary id was derived from.
func (id ConversationID) TemporaryMatchID() string {
	if !id.IsTemporary() {
		return ""
	}
	return strings.TrimPrefix(string(id), TempConversationPrefix)
}

func TemporaryConversationID(matchID string) ConversationID {
	return ConversationID(TempConversationPrefix + strings.TrimSpace(matchID))
}

type Conversation struct {
	ID                 ConversationID
	MatchID            string
	EmployerID         string
	SeekerID           string
	CreatedAt          time.Time
	LastMessageID      MessageID
	LastMessagePreview string
	LastSenderID       string
	LastMessageAt      time.Time
	ReadMarkers        map[string]time.Time
	Closed             bool
	ClosedAt           time.Time
	Version            int64
	events.EventRecorder
}

type ConversationRepository interface {
	ByID(ctx context.Context, id ConversationID) (*Conversation, error)
	ByMatch(ctx context.Context, matchID string) (*Conversation, error)
	Save(ctx context.Context, conv *Conversation) error
	// ListByParticipant returns conversations ordered by last activity, newest first.
	ListByParticipant(ctx context.Context, userID string) ([]*Conversation, error)
	ListBetween(ctx context.Context, a, b string) ([]*Conversation, error)
}

type CreateConversationParams struct {
	ID         ConversationID
	MatchID    string
	EmployerID string
	SeekerID   string
	CreatedAt  time.Time
}

func NewConversation(params CreateConversationParams) (*Conversation, error) {
	employer := strings.TrimSpace(params.EmployerID)
	seeker := strings.TrimSpace(params.SeekerID)
	if employer == "" || seeker == "" {
		return nil, ErrParticipantsRequired
	}
	if employer == seeker {
		return nil, ErrSelfConversation
	}
	if strings.TrimSpace(params.MatchID) == "" {
		return nil, ErrMatchRequired
	}
	if params.ID == "" || params.ID.IsTemporary() {
		return nil, errors.New("chat: durable conversation id required")
	}
	now := params.CreatedAt.UTC()
	c := &Conversation{
		ID:          params.ID,
		MatchID:     strings.TrimSpace(params.MatchID),
		EmployerID:  employer,
		SeekerID:    seeker,
		CreatedAt:   now,
		ReadMarkers: map[string]time.Time{},
	}
	c.Record(ConversationStarted{
		ConversationID: c.ID,
		MatchID:        c.MatchID,
		EmployerID:     c.EmployerID,
		SeekerID:       c.SeekerID,
		At:             now,
	})
	return c, nil
}

func (c *Conversation) Participants() []string {
	return []string{c.EmployerID, c.SeekerID}
}

func (c *Conversation) HasParticipant(userID string) bool {
	return userID != "" && (userID == c.EmployerID || userID == c.SeekerID)
}

// Peer returns the other participant.
func (c *Conversation) Peer(userID string) (string, error) {
	switch userID {
	case c.EmployerID:
		return c.SeekerID, nil
	case c.SeekerID:
		return c.EmployerID, nil
	default:
		return "", ErrNotParticipant
	}
}

// Post validates a write against the conversation and returns the durable message.
func (c *Conversation) Post(req WriteRequest, id MessageID, now time.Time) (Message, error) {
	if c.Closed {
		return Message{}, ErrConversationClosed
	}
	if err := req.Validate(); err != nil {
		return Message{}, err
	}
	recipient, err := c.Peer(req.SenderID)
	if err != nil {
		return Message{}, err
	}
	now = now.UTC()
	msg := Message{
		ID:             id,
		ConversationID: c.ID,
		SenderID:       req.SenderID,
		Content:        req.Content,
		Kind:           req.Kind,
		FileRef:        req.FileRef,
		Status:         StatusSent,
		ClientID:       req.ClientID,
		CreatedAt:      now,
	}
	c.LastMessageID = msg.ID
	c.LastMessagePreview = Snippet(previewText(msg), previewLength)
	c.LastSenderID = msg.SenderID
	c.LastMessageAt = now
	c.Record(MessageSent{
		MessageID:      msg.ID,
		ConversationID: c.ID,
		SenderID:       msg.SenderID,
		RecipientID:    recipient,
		Content:        msg.Content,
		Kind:           msg.Kind,
		FileRef:        msg.FileRef,
		ClientID:       msg.ClientID,
		At:             now,
	})
	return msg, nil
}

// MarkRead moves the reader's marker forward and records the ids flipped to read.
func (c *Conversation) MarkRead(readerID string, ids []MessageID, at time.Time) error {
	if !c.HasParticipant(readerID) {
		return ErrNotParticipant
	}
	if c.ReadMarkers == nil {
		c.ReadMarkers = map[string]time.Time{}
	}
	at = at.UTC()
	if prev, ok := c.ReadMarkers[readerID]; ok && !at.After(prev) {
		return nil
	}
	c.ReadMarkers[readerID] = at
	c.Record(ConversationRead{
		ConversationID: c.ID,
		ReaderID:       readerID,
		MessageIDs:     append([]MessageID(nil), ids...),
		At:             at,
	})
	return nil
}

// LastReadAt returns the reader's marker, zero when never read.
func (c *Conversation) LastReadAt(userID string) time.Time {
	if c.ReadMarkers == nil {
		return time.Time{}
	}
	return c.ReadMarkers[userID]
}

// Close soft-deletes the conversation, e.g. after a block.
func (c *Conversation) Close(by string, at time.Time) {
	if c.Closed {
		return
	}
	c.Closed = true
	c.ClosedAt = at.UTC()
	c.Record(ConversationClosed{ConversationID: c.ID, ClosedBy: by, At: c.ClosedAt})
}

// Reopen lifts a close once neither side blocks the other.
func (c *Conversation) Reopen() {
	c.Closed = false
	c.ClosedAt = time.Time{}
}

func (c *Conversation) LastActivity() time.Time {
	if !c.LastMessageAt.IsZero() {
		return c.LastMessageAt
	}
	return c.CreatedAt
}

func previewText(msg Message) string {
	if msg.Kind == KindFile {
		return "[file] " + msg.Content
	}
	return msg.Content
}
