package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
)

const (
	handleAttempts = 3
	retryDelay     = 200 * time.Millisecond
)

type MessageHandler interface {
	Handle(ctx context.Context, msg *sarama.ConsumerMessage) error
}

// Consumer runs one consumer group over the event topics.
type Consumer struct {
	group   sarama.ConsumerGroup
	groupID string
	handler MessageHandler
	logger  *slog.Logger
}

// NewConsumer joins groupID. A nil cfg starts new groups from the oldest
// offset; pass a config to choose otherwise.
func NewConsumer(brokers []string, groupID string, cfg *sarama.Config, handler MessageHandler, logger *slog.Logger) (*Consumer, error) {
	if cfg == nil {
		cfg = sarama.NewConfig()
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	}
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Return.Errors = true
	g, err := sarama.NewConsumerGroup(brokers, groupID, cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{group: g, groupID: groupID, handler: handler, logger: logger.With("group", groupID)}, nil
}

// Run consumes until ctx is done, rejoining after every rebalance.
func (c *Consumer) Run(ctx context.Context, topics []string) error {
	go func() {
		for err := range c.group.Errors() {
			c.logger.Warn("consumer group error", "error", err)
		}
	}()
	handler := consumerGroupHandler{handler: c.handler, logger: c.logger}
	for {
		if err := c.group.Consume(ctx, topics, handler); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

type consumerGroupHandler struct {
	handler MessageHandler
	logger  *slog.Logger
}

func (h consumerGroupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	h.logger.Debug("partitions assigned", "claims", sess.Claims())
	return nil
}

func (h consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim retries a failing event a few times, then marks it anyway:
// the offset of a later message would commit past it regardless.
func (h consumerGroupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		if err := h.handle(sess.Context(), message); err != nil {
			if sess.Context().Err() != nil {
				return nil
			}
			h.logger.Error("event dropped after retries", "topic", message.Topic, "partition", message.Partition, "offset", message.Offset, "error", err)
		}
		sess.MarkMessage(message, "")
	}
	return nil
}

func (h consumerGroupHandler) handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var err error
	for attempt := 1; attempt <= handleAttempts; attempt++ {
		if err = h.handler.Handle(ctx, msg); err == nil {
			return nil
		}
		h.logger.Warn("event handling failed", "topic", msg.Topic, "offset", msg.Offset, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * retryDelay):
		}
	}
	return err
}
