package middleware

import (
	"context"

	"github.com/lootbay/marketplace-backend/pkg/auth"
)

type identityKey struct{}

// WithIdentity stores the authenticated caller on ctx.
func WithIdentity(ctx context.Context, id auth.Subject) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the caller set by Auth, if any.
func IdentityFromContext(ctx context.Context) (auth.Subject, bool) {
	if ctx == nil {
		return auth.Subject{}, false
	}
	id, ok := ctx.Value(identityKey{}).(auth.Subject)
	return id, ok
}

// UserIDFromContext is the caller's id as a string, or "" for anonymous
// requests.
func UserIDFromContext(ctx context.Context) string {
	if id, ok := IdentityFromContext(ctx); ok {
		return id.UserID.String()
	}
	return ""
}
