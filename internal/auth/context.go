package auth

import (
	"context"

	"github.com/nhle/taskminder/internal/model"
)

type ctxKey struct{}

// WithUser returns a copy of ctx carrying u.
func WithUser(ctx context.Context, u *model.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFrom returns the authenticated user stored in ctx, if any.
func UserFrom(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(ctxKey{}).(*model.User)
	return u, ok && u != nil
}
