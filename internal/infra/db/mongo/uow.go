package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"

	"kindbossing/internal/app/uow"
	"kindbossing/internal/domain/chat"
	"kindbossing/internal/domain/matching"
	"kindbossing/internal/domain/notification"
)

// Factory wires Mongo transactions into the generic UnitOfWork interface.
// MessagesRepo may live outside Mongo (Scylla); its writes then do not take
// part in the transaction.
type Factory struct {
	DB *mongo.Database

	ConversationsRepo chat.ConversationRepository
	MessagesRepo      chat.MessageRepository
	BlocksRepo        chat.BlockRepository
	ApplicationsRepo  matching.Repository
	NotificationsRepo notification.Repository
}

var ErrUnitOfWorkNotConfigured = errors.New("mongo: unit of work factory missing database")

// NewFactory builds every repository on db.
func NewFactory(ctx context.Context, db *mongo.Database) (Factory, error) {
	conversations, err := NewConversationRepository(ctx, db)
	if err != nil {
		return Factory{}, err
	}
	messages, err := NewMessageRepository(ctx, db)
	if err != nil {
		return Factory{}, err
	}
	applications, err := NewApplicationRepository(ctx, db)
	if err != nil {
		return Factory{}, err
	}
	notifications, err := NewNotificationRepository(ctx, db)
	if err != nil {
		return Factory{}, err
	}
	return Factory{
		DB:                db,
		ConversationsRepo: conversations,
		MessagesRepo:      messages,
		BlocksRepo:        NewBlockRepository(db),
		ApplicationsRepo:  applications,
		NotificationsRepo: notifications,
	}, nil
}

// Begin starts a MongoDB session/transaction.
func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.DB == nil {
		return nil, ErrUnitOfWorkNotConfigured
	}
	session, err := f.DB.Client().StartSession()
	if err != nil {
		return nil, err
	}
	txnOpts := options.Transaction().SetReadConcern(f.DB.ReadConcern()).SetWriteConcern(f.DB.WriteConcern())
	if opts.ReadOnly {
		txnOpts = txnOpts.SetReadConcern(readconcern.Snapshot())
	}
	if err := session.StartTransaction(txnOpts); err != nil {
		session.EndSession(ctx)
		return nil, err
	}
	return &Unit{factory: f, session: session}, nil
}

type Unit struct {
	factory Factory
	session mongo.Session
}

func (u *Unit) Conversations() chat.ConversationRepository { return u.factory.ConversationsRepo }

func (u *Unit) Messages() chat.MessageRepository { return u.factory.MessagesRepo }

func (u *Unit) Blocks() chat.BlockRepository { return u.factory.BlocksRepo }

func (u *Unit) Applications() matching.Repository { return u.factory.ApplicationsRepo }

func (u *Unit) Notifications() notification.Repository { return u.factory.NotificationsRepo }

func (u *Unit) Commit(ctx context.Context) error {
	defer u.session.EndSession(ctx)
	return u.session.CommitTransaction(ctx)
}

func (u *Unit) Rollback(ctx context.Context) error {
	defer u.session.EndSession(ctx)
	return u.session.AbortTransaction(ctx)
}

// InjectContext ensures Mongo session is available in context for downstream repos.
func (u *Unit) InjectContext(ctx context.Context) context.Context {
	return mongo.NewSessionContext(ctx, u.session)
}
