package identity

import (
	"context"
	"errors"
)

var ErrUnauthenticated = errors.New("no authenticated user")

// Identity is the current session's user as seen by the domain layer.
type Identity struct {
	ID    string
	Email string
	Name  string
}

// Provider resolves the identity attached to a request context. Domain
// services take a Provider explicitly; nothing reads auth state from
// globals.
type Provider interface {
	CurrentUser(ctx context.Context) (Identity, error)
}

// Static always returns the same identity, or ErrUnauthenticated when
// empty. Used in tests and one-off tooling.
type Static struct {
	Identity Identity
}

func (s Static) CurrentUser(ctx context.Context) (Identity, error) {
	if s.Identity.ID == "" {
		return Identity{}, ErrUnauthenticated
	}
	return s.Identity, nil
}

// None rejects every call. Useful as a default until sign-in completes.
type None struct{}

func (None) CurrentUser(ctx context.Context) (Identity, error) {
	return Identity{}, ErrUnauthenticated
}
