package notifications

import (
	"context"
	"strings"
	"time"

	"kindbossing/internal/app/commands"
	"kindbossing/internal/app/dto"
	"kindbossing/internal/app/queries"
	"kindbossing/internal/app/support"
	"kindbossing/internal/app/uow"
	"kindbossing/internal/domain/notification"
)

const (
	listNotificationsKey = "notifications.list"
	markNotificationKey  = "notifications.read"
)

type ListNotificationsQuery struct {
	UserID string
	Limit  int
	Offset int
}

func (q ListNotificationsQuery) Key() string { return listNotificationsKey }

func (q ListNotificationsQuery) ActorID() string { return q.UserID }

type ListNotificationsHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *ListNotificationsHandler) Handle(ctx context.Context, q ListNotificationsQuery) (dto.NotificationList, error) {
	limit, offset := support.NormalizePage(q.Limit, q.Offset, 20, 100)
	unit, execCtx, cleanup, err := support.BeginReadOnlyUnit(ctx, h.UoWFactory)
	if err != nil {
		return dto.NotificationList{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}

	items, err := unit.Notifications().ListByUser(execCtx, q.UserID, limit, offset)
	if err != nil {
		return dto.NotificationList{}, err
	}
	unread, err := unit.Notifications().CountUnread(execCtx, q.UserID)
	if err != nil {
		return dto.NotificationList{}, err
	}
	out := dto.NotificationList{Items: make([]dto.Notification, 0, len(items)), Unread: unread}
	for _, n := range items {
		out.Items = append(out.Items, dto.MapNotification(n))
	}
	return out, nil
}

type MarkNotificationReadCommand struct {
	UserID         string
	NotificationID string
	Now            time.Time
}

func (c MarkNotificationReadCommand) Key() string { return markNotificationKey }

func (c MarkNotificationReadCommand) ActorID() string { return c.UserID }

func (c MarkNotificationReadCommand) Validate() error {
	if strings.TrimSpace(c.NotificationID) == "" {
		return notification.ErrNotFound
	}
	return nil
}

type MarkNotificationReadHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *MarkNotificationReadHandler) Handle(ctx context.Context, cmd MarkNotificationReadCommand) (dto.Notification, error) {
	now := cmd.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	var result dto.Notification
	err := support.WithUnit(ctx, h.UoWFactory, func(ctx context.Context, unit uow.UnitOfWork) error {
		n, err := unit.Notifications().ByID(ctx, notification.ID(cmd.NotificationID))
		if err != nil {
			return err
		}
		// another user's notification is reported as missing
		if n.UserID != cmd.UserID {
			return notification.ErrNotFound
		}
		n.MarkRead(now)
		if err := unit.Notifications().Save(ctx, n); err != nil {
			return err
		}
		result = dto.MapNotification(n)
		return nil
	})
	if err != nil {
		return dto.Notification{}, err
	}
	return result, nil
}

var _ queries.Handler[ListNotificationsQuery, dto.NotificationList] = (*ListNotificationsHandler)(nil)
var _ commands.Handler[MarkNotificationReadCommand, dto.Notification] = (*MarkNotificationReadHandler)(nil)
