package memory

import (
	"context"
	"log/slog"
	"sync"

	appoutbox "kindbossing/internal/app/outbox"
	"kindbossing/internal/app/uow"
)

// Dispatcher receives flushed records in commit order.
type Dispatcher interface {
	Dispatch(ctx context.Context, rec appoutbox.EventRecord) error
}

// Outbox stages records on the caller's unit and hands committed records to
// the dispatcher on Flush. Records added outside a unit are ready at once.
type Outbox struct {
	Dispatcher Dispatcher
	Logger     *slog.Logger

	mu      sync.Mutex
	pending []appoutbox.EventRecord
	flushMu sync.Mutex
}

func NewOutbox(d Dispatcher, logger *slog.Logger) *Outbox {
	return &Outbox{Dispatcher: d, Logger: logger}
}

func (o *Outbox) Add(ctx context.Context, record appoutbox.EventRecord) error {
	if unit, ok := uow.FromContext(ctx); ok {
		if mu, ok := unit.(*Unit); ok {
			mu.stage(record)
			return nil
		}
	}
	o.ready([]appoutbox.EventRecord{record})
	return nil
}

func (o *Outbox) ready(records []appoutbox.EventRecord) {
	o.mu.Lock()
	o.pending = append(o.pending, records...)
	o.mu.Unlock()
}

// Flush dispatches every committed record. The command already committed,
// so dispatch errors are logged and dropped; the records are not retried.
func (o *Outbox) Flush(ctx context.Context) error {
	o.flushMu.Lock()
	defer o.flushMu.Unlock()

	o.mu.Lock()
	batch := o.pending
	o.pending = nil
	o.mu.Unlock()

	if o.Dispatcher == nil {
		return nil
	}
	for _, rec := range batch {
		if err := o.Dispatcher.Dispatch(ctx, rec); err != nil && o.Logger != nil {
			o.Logger.Warn("outbox dispatch failed", "event_id", rec.ID, "event", rec.Name, "error", err)
		}
	}
	return nil
}

// Pending reports records waiting for Flush.
func (o *Outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

var _ appoutbox.Outbox = (*Outbox)(nil)
