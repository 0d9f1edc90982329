package uow

import (
	"context"

	"kindbossing/internal/domain/chat"
	"kindbossing/internal/domain/matching"
	"kindbossing/internal/domain/notification"
)

// UnitOfWork groups the repositories touched by one command.
type UnitOfWork interface {
	Conversations() chat.ConversationRepository
	Messages() chat.MessageRepository
	Blocks() chat.BlockRepository
	Applications() matching.Repository
	Notifications() notification.Repository

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type UoWFactory interface {
	Begin(ctx context.Context, opts TxOptions) (UnitOfWork, error)
}

type TxOptions struct {
	ReadOnly bool
}
