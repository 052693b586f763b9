// Package auth is the identity collaborator. Tokens are issued by an external
// provider; this package only verifies them and exposes the current user.
package auth

import (
	"context"

	"github.com/DoyleJ11/olympics-backend/internal/apperr"
)

type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Identity resolves the actor of a request.
type Identity interface {
	CurrentUser(ctx context.Context) (User, error)
}

var ErrUnauthenticated = apperr.New(apperr.KindAuth, "you need to sign in first")

type ctxKey struct{}

func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

func UserFromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(ctxKey{}).(User)
	return u, ok && u.ID != ""
}

// ContextIdentity reads the user Middleware stored in the request context.
type ContextIdentity struct{}

func (ContextIdentity) CurrentUser(ctx context.Context) (User, error) {
	u, ok := UserFromContext(ctx)
	if !ok {
		return User{}, ErrUnauthenticated
	}
	return u, nil
}
