package repository

import (
	"context"
	"time"

	"relay-chat/internal/domain/conversation"
	"relay-chat/internal/domain/message"
	"relay-chat/internal/domain/user"

	"github.com/google/uuid"
)

type ConversationRepository interface {
	Create(ctx context.Context, c *conversation.Conversation) error
	GetByID(ctx context.Context, id uuid.UUID) (conversation.Conversation, error)
	GetByRoomID(ctx context.Context, roomID string) (conversation.Conversation, error)
	GetDirectPair(ctx context.Context, a, b uuid.UUID) (conversation.Conversation, error)
	Delete(ctx context.Context, id uuid.UUID) error

	AddMember(ctx context.Context, m *conversation.Member) error
	RemoveMember(ctx context.Context, conversationID, userID uuid.UUID) error
	RemoveAllMembers(ctx context.Context, conversationID uuid.UUID) error
	GetMember(ctx context.Context, conversationID, userID uuid.UUID) (conversation.Member, error)
	GetMembers(ctx context.Context, conversationID uuid.UUID) ([]conversation.Member, error)
	MemberIDs(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error)
	IsMember(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
	UpdateMemberRole(ctx context.Context, conversationID, userID uuid.UUID, role conversation.Role) error

	SetAvatar(ctx context.Context, conversationID uuid.UUID, key string) error
	UpdateSummary(ctx context.Context, conversationID uuid.UUID, lastMessageID uuid.NullUUID, at time.Time) error
	SetUnread(ctx context.Context, conversationID, userID uuid.UUID, unread bool) error
	ResetUnreadExcept(ctx context.Context, conversationID, senderID uuid.UUID) error
	SetDeleted(ctx context.Context, conversationID, userID uuid.UUID, deleted bool) error
	RestoreDeleted(ctx context.Context, conversationID uuid.UUID) error

	ListForUser(ctx context.Context, userID uuid.UUID) ([]conversation.Conversation, error)
	ConversationIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

type MessageRepository interface {
	Create(ctx context.Context, m *message.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (message.Message, error)
	GetByIdempotencyKey(ctx context.Context, conversationID uuid.UUID, key string) (message.Message, error)
	Update(ctx context.Context, m message.Message) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByConversation(ctx context.Context, conversationID uuid.UUID) error
	Latest(ctx context.Context, conversationID uuid.UUID) (message.Message, error)
	ListSince(ctx context.Context, conversationID uuid.UUID, afterSeq int64, limit int) ([]message.Message, error)
	MediaKeys(ctx context.Context, conversationID uuid.UUID) ([]string, error)
	NextSeq(ctx context.Context, conversationID uuid.UUID) (int64, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (user.User, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	HasBlocked(ctx context.Context, userID, blockedID uuid.UUID) (bool, error)
	Block(ctx context.Context, userID, blockedID uuid.UUID) error
	Unblock(ctx context.Context, userID, blockedID uuid.UUID) error
}
