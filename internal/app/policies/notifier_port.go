package policies

import (
	"context"
	"io"

	"kindbossing/internal/app/outbox"
	"kindbossing/internal/domain/notification"
)

// Notifier delivers a stored notification to a connected user. Delivery is
// best effort; the notification stays listed when the user is offline.
type Notifier interface {
	Notify(ctx context.Context, n notification.Notification) error
}

// Uploader stores an attachment and returns its reference.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, size int64, body io.Reader) (string, error)
}

// Reactor consumes committed events after they left the outbox. OnEvent may
// see the same record more than once and must tolerate it.
type Reactor interface {
	Name() string
	OnEvent(ctx context.Context, ev outbox.EventRecord) error
}
