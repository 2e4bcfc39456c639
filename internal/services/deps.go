package services

import (
	"context"

	"github.com/google/uuid"
)

// Broadcaster is the live fan-out surface the services push through. The
// websocket hub implements it; tests substitute fakes.
type Broadcaster interface {
	BroadcastToConversation(conversationID uuid.UUID, payload []byte)
	SendToUser(userID uuid.UUID, payload []byte) bool
	JoinConversation(userID, conversationID uuid.UUID)
	LeaveConversation(userID, conversationID uuid.UUID)
	CloseConversation(conversationID uuid.UUID)
}

// ObjectStore is the blob-store collaborator (storage.Client in production).
type ObjectStore interface {
	DeleteObject(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key string) (string, error)
}

// Presence answers "is this user online" for list projections.
type Presence interface {
	OnlineAmong(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error)
}
