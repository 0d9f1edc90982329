package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrEmptyContent     = errors.New("chat: message content is required")
	ErrInvalidKind      = errors.New("chat: invalid message kind")
	ErrFileRefRequired  = errors.New("chat: file messages require a file reference")
	ErrMessageNotFound  = errors.New("chat: message not found")
	ErrRecipientBlocked = errors.New("chat: cannot message a blocked user")
)

// TempMessagePrefix marks provisional ids assigned before the durable write.
const TempMessagePrefix = "temp-"

type MessageID string

// IsTemporary reports whether the id was assigned client-side.
func (id MessageID) IsTemporary() bool {
	return strings.HasPrefix(string(id), TempMessagePrefix)
}

// NewTempMessageID returns a locally unique provisional id.
func NewTempMessageID() MessageID {
	return MessageID(TempMessagePrefix + uuid.NewString())
}

// NewMessageID returns a durable, time-ordered id.
func NewMessageID() MessageID {
	return MessageID(uuid.Must(uuid.NewV7()).String())
}

// IsDurable reports whether id has the shape NewMessageID produces.
func (id MessageID) IsDurable() bool {
	u, err := uuid.Parse(string(id))
	return err == nil && u.Version() == 7
}

type Kind string

const (
	KindText Kind = "text"
	KindFile Kind = "file"
)

func (k Kind) Valid() bool {
	return k == KindText || k == KindFile
}

// ParseKind defaults blank input to text.
func ParseKind(raw string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(raw))) {
	case "", KindText:
		return KindText, nil
	case KindFile:
		return KindFile, nil
	default:
		return "", ErrInvalidKind
	}
}

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusRead    Status = "read"
)

type Message struct {
	ID             MessageID
	ConversationID ConversationID
	SenderID       string
	Content        string
	Kind           Kind
	FileRef        string
	Status         Status
	ClientID       string
	CreatedAt      time.Time
}

// IsProvisional reports whether the message has not been confirmed by a durable write.
func (m Message) IsProvisional() bool {
	return m.ID.IsTemporary() || m.Status == StatusPending
}

// WriteRequest is the input of a durable message write.
type WriteRequest struct {
	ConversationID ConversationID
	SenderID       string
	Content        string
	Kind           Kind
	FileRef        string
	ClientID       string
}

// Validate normalizes the request in place.
func (r *WriteRequest) Validate() error {
	r.Content = strings.TrimSpace(r.Content)
	r.FileRef = strings.TrimSpace(r.FileRef)
	if r.Kind == "" {
		r.Kind = KindText
	}
	if !r.Kind.Valid() {
		return ErrInvalidKind
	}
	if r.Content == "" {
		return ErrEmptyContent
	}
	if r.Kind == KindFile && r.FileRef == "" {
		return ErrFileRefRequired
	}
	return nil
}

type MessageRepository interface {
	Save(ctx context.Context, msg Message) error
	// ListByConversation returns messages newest first.
	ListByConversation(ctx context.Context, id ConversationID, limit, offset int) ([]Message, error)
	ByClientID(ctx context.Context, id ConversationID, senderID, clientID string) (Message, error)
	// MarkRead flips messages sent by others to read and returns the affected ids.
	MarkRead(ctx context.Context, id ConversationID, readerID string, upTo time.Time) ([]MessageID, error)
	CountUnread(ctx context.Context, id ConversationID, readerID string, since time.Time) (int, error)
}

// Snippet trims content for previews.
func Snippet(content string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(strings.TrimSpace(content))
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max])
}
