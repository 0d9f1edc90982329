package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"kindbossing/internal/app/outbox"
	"kindbossing/internal/app/policies"
	"kindbossing/internal/app/support"
	"kindbossing/internal/app/uow"
	"kindbossing/internal/domain/chat"
	"kindbossing/internal/domain/matching"
	"kindbossing/internal/domain/notification"
)

const previewRunes = 80

// Policy turns committed chat and matching events into stored notifications
// and pushes them to connected users.
type Policy struct {
	UoWFactory uow.UoWFactory
	Notifier   policies.Notifier
	Logger     *slog.Logger
}

func (p *Policy) Name() string { return "notifications" }

func (p *Policy) OnEvent(ctx context.Context, ev outbox.EventRecord) error {
	var (
		n   *notification.Notification
		err error
	)
	switch ev.Name {
	case chat.MessageSent{}.EventName():
		var payload chat.MessageSent
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return fmt.Errorf("decode %s: %w", ev.Name, err)
		}
		n, err = messageNotification(payload)
	case matching.ApplicationApproved{}.EventName():
		var payload matching.ApplicationApproved
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return fmt.Errorf("decode %s: %w", ev.Name, err)
		}
		n, err = approvalNotification(payload)
	default:
		return nil
	}
	if err != nil {
		return err
	}

	err = support.WithUnit(ctx, p.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
		return unit.Notifications().Save(ctx, n)
	})
	if err != nil {
		return err
	}
	if p.Notifier != nil {
		if err := p.Notifier.Notify(ctx, *n); err != nil && p.Logger != nil {
			p.Logger.Warn("notification push failed", "notification_id", n.ID, "user_id", n.UserID, "error", err)
		}
	}
	return nil
}

// notificationID is derived from the source so a redelivered event
// overwrites the same notification.
func notificationID(kind notification.Kind, sourceID string) notification.ID {
	return notification.ID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(string(kind)+":"+sourceID)).String())
}

func messageNotification(ev chat.MessageSent) (*notification.Notification, error) {
	body := ev.Content
	if ev.Kind == chat.KindFile {
		body = "[file] " + body
	}
	return notification.New(notification.CreateParams{
		ID:        notificationID(notification.KindMessageReceived, string(ev.MessageID)),
		UserID:    ev.RecipientID,
		Kind:      notification.KindMessageReceived,
		Title:     "New message",
		Body:      chat.Snippet(body, previewRunes),
		Link:      "/chat/" + string(ev.ConversationID),
		SourceID:  string(ev.MessageID),
		CreatedAt: timeOr(ev.At),
	})
}

func approvalNotification(ev matching.ApplicationApproved) (*notification.Notification, error) {
	return notification.New(notification.CreateParams{
		ID:        notificationID(notification.KindApplicationApproved, string(ev.ApplicationID)),
		UserID:    ev.ApplicantID,
		Kind:      notification.KindApplicationApproved,
		Title:     "Your application was approved",
		Body:      "You can now chat with the employer.",
		Link:      "/chat/" + string(chat.TemporaryConversationID(string(ev.ApplicationID))),
		SourceID:  string(ev.ApplicationID),
		CreatedAt: timeOr(ev.At),
	})
}

func timeOr(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

var _ policies.Reactor = (*Policy)(nil)
