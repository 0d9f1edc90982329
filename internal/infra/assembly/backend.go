package assembly

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"kindbossing/internal/app/middleware"
	"kindbossing/internal/app/policies"
	"kindbossing/internal/app/uow"
	"kindbossing/internal/app/wiring"
	"kindbossing/internal/domain/chat"
	"kindbossing/internal/infra/broker/kafka"
	"kindbossing/internal/infra/config"
	mongostore "kindbossing/internal/infra/db/mongo"
	"kindbossing/internal/infra/events"
	"kindbossing/internal/infra/inbox"
	"kindbossing/internal/infra/outbox"
	"kindbossing/internal/infra/storage/scylla"
)

// Backend is the application core for cfg.StorageDriver plus whatever has
// to run beside it to deliver committed events.
//
// Shared reactors see each event once across all instances. Local reactors
// see every event on every instance; realtime fan-out is local because each
// instance only holds its own websocket clients.
type Backend struct {
	Buses   wiring.Buses
	Factory uow.UoWFactory

	cfg    config.Config
	logger *slog.Logger

	shared  *events.Router
	local   *events.Router
	nShared int
	nLocal  int

	mongo   *mongostore.Client
	outbox  *outbox.Store
	closers []func() error
}

// Open builds the backend. The memory driver routes events in process; the
// mongo driver ships them through the outbox worker and Kafka.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger, observe middleware.ObserveFunc) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backend{cfg: cfg, logger: logger}

	switch cfg.StorageDriver {
	case config.DriverMongo:
		client, err := mongostore.New(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("mongo connect: %w", err)
		}
		b.mongo = client
		b.closers = append(b.closers, func() error { return client.Close(context.Background()) })

		var messages chat.MessageRepository
		if cfg.MessageStore == config.MessageStoreScylla {
			session, err := scylla.NewSession(ctx, cfg, logger)
			if err != nil {
				_ = b.Close()
				return nil, fmt.Errorf("scylla: %w", err)
			}
			b.closers = append(b.closers, func() error { session.Close(); return nil })
			messages = scylla.NewMessageRepository(session, logger)
		}

		m, err := NewMongo(ctx, client, messages, logger, observe)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.Buses = m.Buses
		b.Factory = m.Factory
		b.outbox = m.Outbox
		b.shared = events.NewRouter(logger)
		b.local = events.NewRouter(logger)
	default:
		m := NewMemory(logger, observe)
		b.Buses = m.Buses
		b.Factory = m.Factory
		b.shared = m.Router
		b.local = m.Router
	}
	return b, nil
}

// Durable reports whether events travel through Kafka.
func (b *Backend) Durable() bool { return b.mongo != nil }

func (b *Backend) RegisterShared(r policies.Reactor) {
	b.shared.Register(r)
	b.nShared++
}

func (b *Backend) RegisterLocal(r policies.Reactor) {
	b.local.Register(r)
	b.nLocal++
}

// Ready pings the database when there is one.
func (b *Backend) Ready(ctx context.Context) error {
	if b.mongo == nil {
		return nil
	}
	return b.mongo.Ping(ctx)
}

// LoadFixtures seeds applications. The memory driver falls back to the
// bundled file; the mongo driver only loads an explicit path.
func (b *Backend) LoadFixtures(ctx context.Context) {
	path := b.cfg.FixturesPath
	if path == "" {
		if b.Durable() {
			return
		}
		path = DefaultFixturesPath()
	}
	if _, err := LoadApplicationFixtures(ctx, b.Factory, path, b.logger); err != nil {
		b.logger.Warn("application fixtures load failed", "error", err, "path", path)
	}
}

// Run blocks until ctx is done or a background loop fails. With the memory
// driver there is nothing to run.
func (b *Backend) Run(ctx context.Context) error {
	if !b.Durable() {
		<-ctx.Done()
		return nil
	}

	producer, err := kafka.NewProducer(b.cfg.KafkaBrokers, nil)
	if err != nil {
		return fmt.Errorf("kafka producer: %w", err)
	}
	defer producer.Close()

	instance := instanceID()
	loops := []func(context.Context) error{
		(&outbox.Worker{
			Store:       b.outbox,
			Producer:    producer,
			Interval:    b.cfg.OutboxPollInterval,
			TopicPrefix: b.cfg.KafkaTopicPrefix,
			Source:      "kindbossing",
			ID:          instance,
			Backoff:     b.cfg.RetryBackoff,
			Logger:      b.logger,
		}).Run,
	}

	topics := kafka.Topics(b.cfg.KafkaTopicPrefix)
	if b.nShared > 0 {
		box, err := inbox.NewStore(ctx, b.mongo.DB, b.cfg.KafkaGroupID)
		if err != nil {
			return fmt.Errorf("inbox: %w", err)
		}
		handler := events.KafkaHandler{Router: b.shared, Inbox: box, Logger: b.logger}
		consumer, err := kafka.NewConsumer(b.cfg.KafkaBrokers, b.cfg.KafkaGroupID, nil, handler, b.logger)
		if err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		defer consumer.Close()
		loops = append(loops, func(ctx context.Context) error { return consumer.Run(ctx, topics) })
	}
	if b.nLocal > 0 {
		// own group per instance, no inbox: clients drop repeated message ids
		group := b.cfg.KafkaGroupID + "-local-" + instance
		handler := events.KafkaHandler{Router: b.local, Logger: b.logger}
		cfg := sarama.NewConfig()
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
		consumer, err := kafka.NewConsumer(b.cfg.KafkaBrokers, group, cfg, handler, b.logger)
		if err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		defer consumer.Close()
		loops = append(loops, func(ctx context.Context) error { return consumer.Run(ctx, topics) })
	}

	b.logger.Info("event pipeline starting", "instance", instance, "topics", topics, "shared_reactors", b.nShared, "local_reactors", b.nLocal)
	return runAll(ctx, loops)
}

// Close releases database sessions in reverse order of opening.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	b.closers = nil
	return errors.Join(errs...)
}

// runAll runs every loop until ctx ends; the first real failure cancels the rest.
func runAll(ctx context.Context, loops []func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg    sync.WaitGroup
		once  sync.Once
		first error
	)
	for _, loop := range loops {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := loop(ctx)
			if err == nil || errors.Is(err, context.Canceled) {
				return
			}
			once.Do(func() {
				first = err
				cancel()
			})
		}()
	}
	wg.Wait()
	return first
}

func instanceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "kindbossing"
	}
	return host + "-" + uuid.NewString()[:8]
}
