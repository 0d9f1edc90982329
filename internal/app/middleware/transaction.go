package middleware

import (
	"context"

	"kindbossing/internal/app/commands"
	"kindbossing/internal/app/uow"
)

// Transaction gives each command a read-write unit of work and commits it
// when the handler succeeds. A command dispatched while a unit is already in
// ctx joins that unit; the outer command owns the commit.
func Transaction(factory uow.UoWFactory) CommandMiddleware {
	if factory == nil {
		panic("middleware: uow factory required")
	}
	return func(next commands.Bus) commands.Bus {
		return commandFunc(func(ctx context.Context, cmd commands.Command) (res any, err error) {
			if _, ok := uow.FromContext(ctx); ok {
				return next.Dispatch(ctx, cmd)
			}
			unit, err := factory.Begin(ctx, uow.TxOptions{})
			if err != nil {
				return nil, err
			}
			ctx = uow.Inject(ctx, unit)
			defer func() {
				if err != nil {
					_ = unit.Rollback(ctx)
				}
			}()

			if res, err = next.Dispatch(ctx, cmd); err != nil {
				return nil, err
			}
			if err = unit.Commit(ctx); err != nil {
				return nil, err
			}
			return res, nil
		})
	}
}
