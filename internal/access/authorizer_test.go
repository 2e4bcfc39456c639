package access

import (
	"context"
	"fmt"
	"testing"
	"time"

	"relay-chat/internal/domain/conversation"
	"relay-chat/internal/repository"
	relay_errors "relay-chat/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:access_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&conversation.Conversation{}, &conversation.Member{}))
	return db
}

func seedDirect(t *testing.T, repo repository.ConversationRepository, a, b uuid.UUID) conversation.Conversation {
	t.Helper()
	now := time.Now()
	conv := conversation.Conversation{
		ID:             uuid.New(),
		RoomID:         uuid.NewString(),
		Kind:           conversation.KindDirect,
		DirectA:        uuid.NullUUID{UUID: a, Valid: true},
		DirectB:        uuid.NullUUID{UUID: b, Valid: true},
		LastActivityAt: now,
	}
	require.NoError(t, repo.Create(context.Background(), &conv))
	return conv
}

func seedGroup(t *testing.T, repo repository.ConversationRepository, members ...uuid.UUID) conversation.Conversation {
	t.Helper()
	now := time.Now()
	conv := conversation.Conversation{
		ID:             uuid.New(),
		RoomID:         uuid.NewString(),
		Kind:           conversation.KindGroup,
		LastActivityAt: now,
	}
	require.NoError(t, repo.Create(context.Background(), &conv))
	for i, id := range members {
		role := conversation.RoleMember
		if i == 0 {
			role = conversation.RoleOwner
		}
		m := conversation.Member{ConversationID: conv.ID, UserID: id, Role: role, JoinedAt: now}
		require.NoError(t, repo.AddMember(context.Background(), &m))
	}
	return conv
}

func TestAuthorizeDirect(t *testing.T) {
	repo := repository.NewConversationRepository(newTestDB(t))
	auth := NewAuthorizer(repo)
	a, b, stranger := uuid.New(), uuid.New(), uuid.New()
	conv := seedDirect(t, repo, a, b)
	ctx := context.Background()

	assert.NoError(t, auth.Authorize(ctx, conv.ID, conversation.KindDirect, a))
	assert.NoError(t, auth.Authorize(ctx, conv.ID, conversation.KindDirect, b))
	assert.ErrorIs(t, auth.Authorize(ctx, conv.ID, conversation.KindDirect, stranger), relay_errors.ErrUnauthorized)
}

func TestAuthorizeGroup(t *testing.T) {
	repo := repository.NewConversationRepository(newTestDB(t))
	auth := NewAuthorizer(repo)
	owner, member, stranger := uuid.New(), uuid.New(), uuid.New()
	conv := seedGroup(t, repo, owner, member)
	ctx := context.Background()

	assert.NoError(t, auth.Authorize(ctx, conv.ID, conversation.KindGroup, member))
	assert.ErrorIs(t, auth.Authorize(ctx, conv.ID, conversation.KindGroup, stranger), relay_errors.ErrUnauthorized)
}

func TestMembersOfByKind(t *testing.T) {
	repo := repository.NewConversationRepository(newTestDB(t))
	auth := NewAuthorizer(repo)
	a, b := uuid.New(), uuid.New()
	direct := seedDirect(t, repo, a, b)
	group := seedGroup(t, repo, a, b)
	ctx := context.Background()

	directMembers, err := auth.MembersOf(ctx, direct.ID, conversation.KindDirect)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{a, b}, directMembers)

	groupMembers, err := auth.MembersOf(ctx, group.ID, conversation.KindGroup)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{a, b}, groupMembers)

	_, err = auth.MembersOf(ctx, direct.ID, "BOGUS")
	assert.ErrorIs(t, err, relay_errors.ErrInvalidInput)
}

func TestAuthorizeMissingConversation(t *testing.T) {
	repo := repository.NewConversationRepository(newTestDB(t))
	auth := NewAuthorizer(repo)

	err := auth.Authorize(context.Background(), uuid.New(), conversation.KindDirect, uuid.New())
	assert.ErrorIs(t, err, relay_errors.ErrNotFound)
}
