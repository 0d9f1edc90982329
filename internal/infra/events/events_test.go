package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appoutbox "kindbossing/internal/app/outbox"
)

type reactorFunc struct {
	name string
	fn   func(appoutbox.EventRecord) error
}

func (r reactorFunc) Name() string { return r.name }

func (r reactorFunc) OnEvent(_ context.Context, ev appoutbox.EventRecord) error { return r.fn(ev) }

type seenSet map[string]bool

func (s seenSet) Seen(_ context.Context, id string) (bool, error) {
	if s[id] {
		return true, nil
	}
	s[id] = true
	return false, nil
}

func (s seenSet) Forget(_ context.Context, id string) error {
	delete(s, id)
	return nil
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRouterKeepsGoingPastFailingReactor(t *testing.T) {
	var got []string
	router := NewRouter(quiet(),
		reactorFunc{name: "broken", fn: func(appoutbox.EventRecord) error { return errors.New("down") }},
	)
	router.Register(reactorFunc{name: "ok", fn: func(ev appoutbox.EventRecord) error {
		got = append(got, ev.Name)
		return nil
	}})

	err := router.Dispatch(context.Background(), appoutbox.EventRecord{ID: "ev-1", Name: "message.sent"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Equal(t, []string{"message.sent"}, got)
}

func TestKafkaHandlerDecodesAndDeduplicates(t *testing.T) {
	var got []appoutbox.EventRecord
	router := NewRouter(quiet(), reactorFunc{name: "rec", fn: func(ev appoutbox.EventRecord) error {
		got = append(got, ev)
		return nil
	}})
	h := KafkaHandler{Router: router, Inbox: seenSet{}, Logger: quiet()}

	msg := &sarama.ConsumerMessage{
		Topic: "message.events.v1",
		Key:   []byte("conv-1"),
		Value: []byte(`{"id":"ce-1","type":"message.sent.v1","time":"2026-09-01T09:00:00Z","data":{"message_id":"m-1"}}`),
		Headers: []*sarama.RecordHeader{
			{Key: []byte(HeaderEventID), Value: []byte("ev-1")},
			{Key: []byte(appoutbox.HeaderAggregateType), Value: []byte("message")},
		},
	}
	require.NoError(t, h.Handle(context.Background(), msg))
	require.NoError(t, h.Handle(context.Background(), msg))

	require.Len(t, got, 1, "redelivery is skipped by the inbox")
	assert.Equal(t, "ev-1", got[0].ID)
	assert.Equal(t, "message.sent", got[0].Name)
	assert.Equal(t, "conv-1", got[0].Aggregate)
	assert.Equal(t, "message", got[0].AggregateType())
	assert.Equal(t, time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC), got[0].OccurredAt)
	assert.JSONEq(t, `{"message_id":"m-1"}`, string(got[0].Payload))
}

func TestKafkaHandlerDropsMalformedPayload(t *testing.T) {
	h := KafkaHandler{Router: NewRouter(quiet()), Logger: quiet()}
	assert.NoError(t, h.Handle(context.Background(), &sarama.ConsumerMessage{Value: []byte("not json")}))
}

func TestKafkaHandlerRetriesFailedEvent(t *testing.T) {
	calls := 0
	router := NewRouter(quiet(), reactorFunc{name: "flaky", fn: func(appoutbox.EventRecord) error {
		calls++
		if calls == 1 {
			return errors.New("mongo down")
		}
		return nil
	}})
	h := KafkaHandler{Router: router, Inbox: seenSet{}, Logger: quiet()}
	msg := &sarama.ConsumerMessage{Value: []byte(`{"id":"ce-9","type":"application.approved.v1","data":{}}`)}

	require.Error(t, h.Handle(context.Background(), msg))
	require.NoError(t, h.Handle(context.Background(), msg))
	require.NoError(t, h.Handle(context.Background(), msg))
	assert.Equal(t, 2, calls, "a failed event is retried once, then deduplicated")
}
