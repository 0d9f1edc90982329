// Package assembly builds the application core over a storage backend.
package assembly

import (
	"log/slog"

	"kindbossing/internal/app/middleware"
	"kindbossing/internal/app/policies"
	"kindbossing/internal/app/wiring"
	"kindbossing/internal/infra/events"
	"kindbossing/internal/infra/storage/memory"
)

// Memory is the single-process backend: committed events go straight from
// the outbox to the router.
type Memory struct {
	Factory     memory.Factory
	Outbox      *memory.Outbox
	Router      *events.Router
	Idempotency *memory.IdempotencyStore
	Buses       wiring.Buses
}

func NewMemory(logger *slog.Logger, observe middleware.ObserveFunc, reactors ...policies.Reactor) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	router := events.NewRouter(logger, reactors...)
	box := memory.NewOutbox(router, logger)
	factory := memory.NewFactory(box)
	idem := memory.NewIdempotencyStore()
	return &Memory{
		Factory:     factory,
		Outbox:      box,
		Router:      router,
		Idempotency: idem,
		Buses: wiring.Build(wiring.Deps{
			UoWFactory:  factory,
			Outbox:      box,
			Idempotency: idem,
			Observe:     observe,
			Logger:      logger,
		}),
	}
}
