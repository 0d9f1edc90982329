package dto

import (
	"time"

	"kindbossing/internal/domain/notification"
)

type Notification struct {
	ID        string     `json:"id"`
	Kind      string     `json:"kind"`
	Title     string     `json:"title"`
	Body      string     `json:"body,omitempty"`
	Link      string     `json:"link,omitempty"`
	SourceID  string     `json:"source_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}

type NotificationList struct {
	Items  []Notification `json:"items"`
	Unread int            `json:"unread"`
}

type BlockStatus struct {
	UserID  string `json:"user_id"`
	Blocked bool   `json:"blocked"`
}

func MapNotification(n *notification.Notification) Notification {
	if n == nil {
		return Notification{}
	}
	out := Notification{
		ID:        string(n.ID),
		Kind:      string(n.Kind),
		Title:     n.Title,
		Body:      n.Body,
		Link:      n.Link,
		SourceID:  n.SourceID,
		CreatedAt: n.CreatedAt,
	}
	if !n.ReadAt.IsZero() {
		at := n.ReadAt
		out.ReadAt = &at
	}
	return out
}
