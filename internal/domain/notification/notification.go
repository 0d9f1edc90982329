package notification

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("notification: not found")
	ErrUserRequired = errors.New("notification: user id is required")
)

type ID string

type Kind string

const (
	KindMessageReceived     Kind = "message.received"
	KindApplicationApproved Kind = "application.approved"
)

type Notification struct {
	ID        ID
	UserID    string
	Kind      Kind
	Title     string
	Body      string
	Link      string
	SourceID  string
	CreatedAt time.Time
	ReadAt    time.Time
}

func (n *Notification) Unread() bool {
	return n.ReadAt.IsZero()
}

func (n *Notification) MarkRead(now time.Time) {
	if n.ReadAt.IsZero() {
		n.ReadAt = now.UTC()
	}
}

type Repository interface {
	Save(ctx context.Context, n *Notification) error
	ByID(ctx context.Context, id ID) (*Notification, error)
	// ListByUser returns notifications newest first.
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
}

type CreateParams struct {
	ID        ID
	UserID    string
	Kind      Kind
	Title     string
	Body      string
	Link      string
	SourceID  string
	CreatedAt time.Time
}

func New(params CreateParams) (*Notification, error) {
	if strings.TrimSpace(params.UserID) == "" {
		return nil, ErrUserRequired
	}
	if params.ID == "" {
		return nil, errors.New("notification: id is required")
	}
	return &Notification{
		ID:        params.ID,
		UserID:    strings.TrimSpace(params.UserID),
		Kind:      params.Kind,
		Title:     strings.TrimSpace(params.Title),
		Body:      strings.TrimSpace(params.Body),
		Link:      params.Link,
		SourceID:  params.SourceID,
		CreatedAt: params.CreatedAt.UTC(),
	}, nil
}
