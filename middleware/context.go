package middleware

import (
	"context"

	"github.com/MrEthical07/crossauth"
	"github.com/MrEthical07/crossauth/session"
)

type identityContextKey struct{}

func withIdentity(ctx context.Context, id *crossauth.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext returns the identity attached by a guard. It reports false for
// requests that were not authenticated.
func IdentityFromContext(ctx context.Context) (*crossauth.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*crossauth.Identity)
	return id, ok && id != nil
}

// UserFromContext returns the authenticated user.
func UserFromContext(ctx context.Context) (*crossauth.User, bool) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return nil, false
	}
	return &id.User, true
}

// SessionFromContext returns the authenticated session.
func SessionFromContext(ctx context.Context) (*session.Session, bool) {
	id, ok := IdentityFromContext(ctx)
	if !ok {
		return nil, false
	}
	return &id.Session, true
}
