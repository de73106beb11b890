package userctx

import (
	"context"

	"github.com/bookverse/identity/internal/models"
)

type ctxKey string

const userKey ctxKey = "user"

// New attaches the verified identity to the context.
// Only the auth middleware produces it; handlers read it back through
// FromContext instead of re-decoding the token
func New(ctx context.Context, u models.AuthUser) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// FromContext extracts the identity from the context
func FromContext(ctx context.Context) (models.AuthUser, bool) {
	u, ok := ctx.Value(userKey).(models.AuthUser)
	return u, ok
}
