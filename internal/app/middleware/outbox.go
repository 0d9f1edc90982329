package middleware

import (
	"context"

	"kindbossing/internal/app/commands"
	"kindbossing/internal/app/outbox"
	"kindbossing/internal/app/uow"
)

// OutboxFlush hands committed events to the outbox after a successful
// command. It sits outside Transaction. Nested commands skip the flush; the
// command that owns the unit flushes once it has committed.
func OutboxFlush(box outbox.Outbox) CommandMiddleware {
	if box == nil {
		panic("middleware: outbox required")
	}
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			_, nested := uow.FromContext(ctx)
			res, err := next.Dispatch(ctx, cmd)
			if err != nil || nested {
				return res, err
			}
			if err := box.Flush(ctx); err != nil {
				return nil, err
			}
			return res, nil
		})
	}
}
