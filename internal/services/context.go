package services

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey int

const userIDKey ctxKey = iota

// WithUserContext attaches the authenticated user identity to the context.
// The auth middleware and the socket handler call this before any core
// operation runs.
func WithUserContext(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}
