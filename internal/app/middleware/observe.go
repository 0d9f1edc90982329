package middleware

import (
	"context"
	"time"

	"kindbossing/internal/app/commands"
	"kindbossing/internal/app/queries"
)

// ObserveFunc receives the outcome of every dispatched message.
type ObserveFunc func(ctx context.Context, kind, key string, elapsed time.Duration, err error)

func ObserveCommands(fn ObserveFunc) CommandMiddleware {
	return func(next commands.Bus) commands.Bus {
		nextFn := next.Dispatch
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			start := time.Now()
			res, err := nextFn(ctx, cmd)
			fn(ctx, "command", cmd.Key(), time.Since(start), err)
			return res, err
		})
	}
}

func ObserveQueries(fn ObserveFunc) QueryMiddleware {
	return func(next queries.Bus) queries.Bus {
		nextFn := next.Ask
		return queryFunc(func(ctx context.Context, q queries.Query) (any, error) {
			start := time.Now()
			res, err := nextFn(ctx, q)
			fn(ctx, "query", q.Key(), time.Since(start), err)
			return res, err
		})
	}
}
