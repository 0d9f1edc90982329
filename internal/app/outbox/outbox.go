package outbox

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"kindbossing/internal/domain/shared/events"
)

// HeaderAggregateType names the aggregate family of an event, derived from
// the event name prefix ("message.sent" -> "message").
const HeaderAggregateType = "aggregate_type"

type EventRecord struct {
	ID         string
	Name       string
	Payload    []byte
	OccurredAt time.Time
	Aggregate  string
	Headers    map[string]string
}

// AggregateType returns the family header or derives it from the name.
func (r EventRecord) AggregateType() string {
	if t := r.Headers[HeaderAggregateType]; t != "" {
		return t
	}
	return AggregateTypeOf(r.Name)
}

func AggregateTypeOf(name string) string {
	if idx := strings.IndexRune(name, '.'); idx > 0 {
		return name[:idx]
	}
	return name
}

// Outbox collects event records inside a command and publishes them once the
// command committed.
type Outbox interface {
	Add(ctx context.Context, record EventRecord) error
	Flush(ctx context.Context) error
}

type EventEncoder interface {
	Encode(ev events.DomainEvent) (EventRecord, error)
}

type JSONEventEncoder struct {
	IDGenerator func() string
}

func (e JSONEventEncoder) Encode(ev events.DomainEvent) (EventRecord, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return EventRecord{}, err
	}
	idGen := e.IDGenerator
	if idGen == nil {
		idGen = uuid.NewString
	}
	return EventRecord{
		ID:         idGen(),
		Name:       ev.EventName(),
		Payload:    payload,
		OccurredAt: ev.OccurredAt(),
		Aggregate:  ev.AggregateID(),
		Headers:    map[string]string{HeaderAggregateType: AggregateTypeOf(ev.EventName())},
	}, nil
}

func RecordDomainEvents(ctx context.Context, box Outbox, encoder EventEncoder, evs []events.DomainEvent) error {
	if box == nil || len(evs) == 0 {
		return nil
	}
	if encoder == nil {
		encoder = JSONEventEncoder{}
	}
	for _, ev := range evs {
		rec, err := encoder.Encode(ev)
		if err != nil {
			return err
		}
		if err := box.Add(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}
