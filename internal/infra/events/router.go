package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	appoutbox "kindbossing/internal/app/outbox"
	"kindbossing/internal/app/policies"
)

// Router fans committed events out to reactors. Every reactor sees every
// event; a failing reactor does not stop the others.
type Router struct {
	logger *slog.Logger

	mu       sync.RWMutex
	reactors []policies.Reactor
}

func NewRouter(logger *slog.Logger, reactors ...policies.Reactor) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{logger: logger, reactors: reactors}
}

func (r *Router) Register(reactor policies.Reactor) {
	r.mu.Lock()
	r.reactors = append(r.reactors, reactor)
	r.mu.Unlock()
}

func (r *Router) Dispatch(ctx context.Context, rec appoutbox.EventRecord) error {
	r.mu.RLock()
	reactors := append([]policies.Reactor(nil), r.reactors...)
	r.mu.RUnlock()

	var errs []error
	for _, reactor := range reactors {
		if err := reactor.OnEvent(ctx, rec); err != nil {
			r.logger.Error("reactor failed", "reactor", reactor.Name(), "event", rec.Name, "event_id", rec.ID, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", reactor.Name(), err))
		}
	}
	return errors.Join(errs...)
}
