package repository

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"relay-chat/internal/domain/conversation"
	"relay-chat/internal/domain/message"
	"relay-chat/internal/domain/user"
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
	dsn := fmt.Sprintf("file:repo_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&user.User{},
		&user.Block{},
		&conversation.Conversation{},
		&conversation.Member{},
		&conversation.Sequence{},
		&message.Message{},
	))
	return db
}

func seedConversation(t *testing.T, db *gorm.DB) conversation.Conversation {
	t.Helper()
	conv := conversation.Conversation{
		ID:             uuid.New(),
		RoomID:         uuid.NewString(),
		Kind:           conversation.KindGroup,
		LastActivityAt: time.Now(),
	}
	require.NoError(t, NewConversationRepository(db).Create(context.Background(), &conv))
	return conv
}

func newMessage(conversationID uuid.UUID, seq int64, key string) message.Message {
	return message.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       uuid.New(),
		Seq:            seq,
		Type:           message.TypeText,
		Content:        sql.NullString{String: "hello", Valid: true},
		IdempotencyKey: key,
		CreatedAt:      time.Now(),
	}
}

func TestCreateDuplicateIdempotencyKey(t *testing.T) {
	db := newTestDB(t)
	repo := NewMessageRepository(db)
	conv := seedConversation(t, db)
	ctx := context.Background()

	first := newMessage(conv.ID, 1, "token-1")
	require.NoError(t, repo.Create(ctx, &first))

	dup := newMessage(conv.ID, 2, "token-1")
	assert.ErrorIs(t, repo.Create(ctx, &dup), relay_errors.ErrAlreadyExists)

	// The same token in another conversation is a different submission.
	other := seedConversation(t, db)
	ok := newMessage(other.ID, 1, "token-1")
	assert.NoError(t, repo.Create(ctx, &ok))
}

func TestNextSeqMonotonic(t *testing.T) {
	db := newTestDB(t)
	repo := NewMessageRepository(db)
	conv := seedConversation(t, db)
	ctx := context.Background()

	for want := int64(1); want <= 5; want++ {
		got, err := repo.NextSeq(ctx, conv.ID)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	// Counters are per conversation.
	other := seedConversation(t, db)
	got, err := repo.NextSeq(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestListSince(t *testing.T) {
	db := newTestDB(t)
	repo := NewMessageRepository(db)
	conv := seedConversation(t, db)
	ctx := context.Background()

	for i := int64(1); i <= 4; i++ {
		m := newMessage(conv.ID, i, fmt.Sprintf("token-%d", i))
		require.NoError(t, repo.Create(ctx, &m))
	}

	newer, err := repo.ListSince(ctx, conv.ID, 2, 0)
	require.NoError(t, err)
	require.Len(t, newer, 2)
	assert.Equal(t, int64(3), newer[0].Seq)
	assert.Equal(t, int64(4), newer[1].Seq)
}

func TestLatestAndDeleteByConversation(t *testing.T) {
	db := newTestDB(t)
	repo := NewMessageRepository(db)
	conv := seedConversation(t, db)
	ctx := context.Background()

	_, err := repo.Latest(ctx, conv.ID)
	assert.ErrorIs(t, err, relay_errors.ErrNotFound)

	for i := int64(1); i <= 3; i++ {
		m := newMessage(conv.ID, i, fmt.Sprintf("token-%d", i))
		require.NoError(t, repo.Create(ctx, &m))
	}

	latest, err := repo.Latest(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), latest.Seq)

	_, err = repo.NextSeq(ctx, conv.ID)
	require.NoError(t, err)

	require.NoError(t, repo.DeleteByConversation(ctx, conv.ID))
	_, err = repo.Latest(ctx, conv.ID)
	assert.ErrorIs(t, err, relay_errors.ErrNotFound)

	// Sequence counter went with the conversation's messages.
	var count int64
	require.NoError(t, db.Model(&conversation.Sequence{}).Where("conversation_id = ?", conv.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestMediaKeys(t *testing.T) {
	db := newTestDB(t)
	repo := NewMessageRepository(db)
	conv := seedConversation(t, db)
	ctx := context.Background()

	text := newMessage(conv.ID, 1, "token-1")
	require.NoError(t, repo.Create(ctx, &text))

	media := newMessage(conv.ID, 2, "token-2")
	media.Type = message.TypeMedia
	media.MediaKey = sql.NullString{String: "media/abc.png", Valid: true}
	require.NoError(t, repo.Create(ctx, &media))

	keys, err := repo.MediaKeys(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"media/abc.png"}, keys)
}
