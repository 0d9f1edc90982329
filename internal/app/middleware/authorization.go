package middleware

import (
	"context"
	"errors"
	"slices"

	"kindbossing/internal/app/commands"
	"kindbossing/internal/app/queries"
	"kindbossing/internal/domain/user"
)

var (
	ErrUnauthenticated = errors.New("middleware: actor missing from context")
	ErrForbidden       = errors.New("middleware: actor is not allowed to run this request")
)

// Actor is the authenticated caller.
type Actor struct {
	ID    string
	Roles []user.Role
}

func (a Actor) HasRole(role user.Role) bool {
	return slices.Contains(a.Roles, role)
}

type actorKey struct{}

func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok && actor.ID != ""
}

// ActorBound messages carry the id of the user they act for.
type ActorBound interface {
	ActorID() string
}

// RoleRestricted messages may only be run by actors holding one of the roles.
type RoleRestricted interface {
	AllowedRoles() []user.Role
}

type Authorizer interface {
	Authorize(ctx context.Context, message any) error
}

// ActorAuthorizer checks that the context actor matches the message and
// holds a permitted role. Admins pass role checks.
type ActorAuthorizer struct{}

func (ActorAuthorizer) Authorize(ctx context.Context, message any) error {
	bound, isBound := message.(ActorBound)
	restricted, isRestricted := message.(RoleRestricted)
	if !isBound && !isRestricted {
		return nil
	}
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return ErrUnauthenticated
	}
	if isBound && bound.ActorID() != actor.ID {
		return ErrForbidden
	}
	if isRestricted && !actor.HasRole(user.RoleAdmin) {
		allowed := restricted.AllowedRoles()
		if !slices.ContainsFunc(actor.Roles, func(r user.Role) bool { return slices.Contains(allowed, r) }) {
			return ErrForbidden
		}
	}
	return nil
}

func Authorization(a Authorizer) CommandMiddleware {
	if a == nil {
		panic("middleware: authorizer required")
	}
	return func(next commands.Bus) commands.Bus {
		nextFn := next.Dispatch
		return commandFunc(func(ctx context.Context, cmd commands.Command) (any, error) {
			if err := a.Authorize(ctx, cmd); err != nil {
				return nil, err
			}
			return nextFn(ctx, cmd)
		})
	}
}

func QueryAuthorization(a Authorizer) QueryMiddleware {
	if a == nil {
		panic("middleware: authorizer required")
	}
	return func(next queries.Bus) queries.Bus {
		nextFn := next.Ask
		return queryFunc(func(ctx context.Context, q queries.Query) (any, error) {
			if err := a.Authorize(ctx, q); err != nil {
				return nil, err
			}
			return nextFn(ctx, q)
		})
	}
}
