package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/IBM/sarama"

	appoutbox "kindbossing/internal/app/outbox"
)

// Inbox reports whether an event id was consumed before and records it.
// Forget drops the record when routing failed so a retry is not skipped.
type Inbox interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// KafkaHandler turns CloudEvents published by the outbox worker back into
// event records and routes them once per event id.
type KafkaHandler struct {
	Router *Router
	Inbox  Inbox
	Logger *slog.Logger
}

type cloudEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Time    time.Time       `json:"time"`
	Subject string          `json:"subject"`
	Data    json.RawMessage `json:"data"`
}

// HeaderEventID carries the outbox record id so redeliveries share a key.
const HeaderEventID = "event_id"

func (h KafkaHandler) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ce cloudEvent
	if err := json.Unmarshal(msg.Value, &ce); err != nil {
		h.log().Error("malformed event dropped", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		return nil
	}
	headers := make(map[string]string, len(msg.Headers))
	for _, hdr := range msg.Headers {
		if hdr == nil {
			continue
		}
		headers[string(hdr.Key)] = string(hdr.Value)
	}
	rec := appoutbox.EventRecord{
		ID:         headers[HeaderEventID],
		Name:       strings.TrimSuffix(ce.Type, ".v1"),
		Payload:    ce.Data,
		OccurredAt: ce.Time,
		Aggregate:  string(msg.Key),
		Headers:    headers,
	}
	if rec.ID == "" {
		rec.ID = ce.ID
	}

	if h.Inbox != nil {
		seen, err := h.Inbox.Seen(ctx, rec.ID)
		if err != nil {
			return fmt.Errorf("inbox: %w", err)
		}
		if seen {
			h.log().Debug("duplicate event skipped", "event_id", rec.ID, "event", rec.Name)
			return nil
		}
	}
	err := h.Router.Dispatch(ctx, rec)
	if err != nil && h.Inbox != nil {
		if forgetErr := h.Inbox.Forget(ctx, rec.ID); forgetErr != nil {
			h.log().Warn("inbox forget failed", "event_id", rec.ID, "error", forgetErr)
		}
	}
	return err
}

func (h KafkaHandler) log() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}
