package assembly

import (
	"context"
	"fmt"
	"log/slog"

	"kindbossing/internal/app/middleware"
	"kindbossing/internal/app/wiring"
	"kindbossing/internal/domain/chat"
	mongostore "kindbossing/internal/infra/db/mongo"
	"kindbossing/internal/infra/outbox"
)

// Mongo is the durable backend: commands write aggregates and outbox
// records in one transaction, and the outbox worker ships them to Kafka.
type Mongo struct {
	Factory     mongostore.Factory
	Outbox      *outbox.Store
	Idempotency *mongostore.IdempotencyStore
	Buses       wiring.Buses
}

// NewMongo builds the repositories on client's database. A non-nil
// messages repository replaces the Mongo message collection.
func NewMongo(ctx context.Context, client *mongostore.Client, messages chat.MessageRepository, logger *slog.Logger, observe middleware.ObserveFunc) (*Mongo, error) {
	factory, err := mongostore.NewFactory(ctx, client.DB)
	if err != nil {
		return nil, fmt.Errorf("mongo repositories: %w", err)
	}
	if messages != nil {
		factory.MessagesRepo = messages
	}
	box, err := outbox.NewStore(ctx, client.DB)
	if err != nil {
		return nil, fmt.Errorf("mongo outbox: %w", err)
	}
	idem, err := mongostore.NewIdempotencyStore(ctx, client.DB)
	if err != nil {
		return nil, fmt.Errorf("mongo idempotency: %w", err)
	}
	return &Mongo{
		Factory:     factory,
		Outbox:      box,
		Idempotency: idem,
		Buses: wiring.Build(wiring.Deps{
			UoWFactory:  factory,
			Outbox:      box,
			Idempotency: idem,
			Observe:     observe,
			Logger:      logger,
		}),
	}, nil
}
