package middleware

import (
	"context"
	"errors"
	"strings"

	"kisaanconnect/internal/app/commands"
	"kisaanconnect/internal/app/queries"
)

var ErrForbidden = errors.New("middleware: insufficient permissions")

type Authorizer interface {
	Authorize(ctx context.Context, message any) error
}

// RoleRestricted messages declare the role their actor must hold.
type RoleRestricted interface {
	RequiredRole() string
	ActorRoles() []string
}

// RoleAuthorizer rejects RoleRestricted messages whose actor lacks the role.
type RoleAuthorizer struct{}

func (RoleAuthorizer) Authorize(_ context.Context, message any) error {
	restricted, ok := message.(RoleRestricted)
	if !ok {
		return nil
	}
	required := strings.ToLower(strings.TrimSpace(restricted.RequiredRole()))
	if required == "" {
		return nil
	}
	for _, role := range restricted.ActorRoles() {
		if strings.ToLower(strings.TrimSpace(role)) == required {
			return nil
		}
	}
	return ErrForbidden
}

func Authorization(a Authorizer) CommandMiddleware {
	if a == nil {
		panic("middleware: authorizer required")
	}
	return func(next commands.Bus) commands.Bus {
		nextFn := wrapCommand(next)
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
		nextFn := wrapQuery(next)
		return queryFunc(func(ctx context.Context, q queries.Query) (any, error) {
			if err := a.Authorize(ctx, q); err != nil {
				return nil, err
			}
			return nextFn(ctx, q)
		})
	}
}
