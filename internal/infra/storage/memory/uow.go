package memory

import (
	"context"
	"errors"
	"sync"

	appoutbox "kindbossing/internal/app/outbox"
	"kindbossing/internal/app/uow"
	"kindbossing/internal/domain/chat"
	"kindbossing/internal/domain/matching"
	"kindbossing/internal/domain/notification"
)

// Factory wires in-memory repositories into a unit-of-work boundary.
type Factory struct {
	ConversationsRepo chat.ConversationRepository
	MessagesRepo      chat.MessageRepository
	BlocksRepo        chat.BlockRepository
	ApplicationsRepo  matching.Repository
	NotificationsRepo notification.Repository
	// Outbox receives the unit's staged events on commit.
	Outbox *Outbox
}

var ErrFactoryMisconfigured = errors.New("memory: unit of work factory misconfigured")

// NewFactory returns a factory over fresh repositories.
func NewFactory(box *Outbox) Factory {
	return Factory{
		ConversationsRepo: NewConversationRepository(),
		MessagesRepo:      NewMessageRepository(),
		BlocksRepo:        NewBlockRepository(),
		ApplicationsRepo:  NewApplicationRepository(),
		NotificationsRepo: NewNotificationRepository(),
		Outbox:            box,
	}
}

// Begin starts a unit. Writes land immediately; only outbox records wait
// for Commit.
func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.ConversationsRepo == nil || f.MessagesRepo == nil || f.BlocksRepo == nil || f.ApplicationsRepo == nil || f.NotificationsRepo == nil {
		return nil, ErrFactoryMisconfigured
	}
	return &Unit{factory: f, readOnly: opts.ReadOnly}, nil
}

type Unit struct {
	factory  Factory
	readOnly bool

	mu     sync.Mutex
	staged []appoutbox.EventRecord
	done   bool
}

func (u *Unit) Conversations() chat.ConversationRepository { return u.factory.ConversationsRepo }

func (u *Unit) Messages() chat.MessageRepository { return u.factory.MessagesRepo }

func (u *Unit) Blocks() chat.BlockRepository { return u.factory.BlocksRepo }

func (u *Unit) Applications() matching.Repository { return u.factory.ApplicationsRepo }

func (u *Unit) Notifications() notification.Repository { return u.factory.NotificationsRepo }

func (u *Unit) stage(rec appoutbox.EventRecord) {
	u.mu.Lock()
	u.staged = append(u.staged, rec)
	u.mu.Unlock()
}

func (u *Unit) Commit(ctx context.Context) error {
	u.mu.Lock()
	staged := u.staged
	u.staged = nil
	u.done = true
	u.mu.Unlock()
	if u.factory.Outbox != nil && len(staged) > 0 {
		u.factory.Outbox.ready(staged)
	}
	return nil
}

func (u *Unit) Rollback(ctx context.Context) error {
	u.mu.Lock()
	if !u.done {
		u.staged = nil
		u.done = true
	}
	u.mu.Unlock()
	return nil
}

var _ uow.UnitOfWork = (*Unit)(nil)
