package auth

import (
	"context"

	"github.com/dmitrijs2005/petkeeper/internal/server/models"
)

type ctxKey string

const identityKey ctxKey = "identity"

// WithIdentity attaches the resolved identity to ctx.
func WithIdentity(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, identityKey, user)
}

// IdentityFromContext returns the identity stored by WithIdentity.
func IdentityFromContext(ctx context.Context) (*models.User, bool) {
	u, ok := ctx.Value(identityKey).(*models.User)
	return u, ok && u != nil
}
