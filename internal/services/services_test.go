package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"relay-chat/internal/domain/conversation"
	"relay-chat/internal/domain/message"
	"relay-chat/internal/domain/user"
	"relay-chat/internal/events"
	"relay-chat/internal/repository"
	"relay-chat/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:services_%s?mode=memory&cache=shared", uuid.NewString())
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

// fakeHub records every fan-out the services issue.
type fakeHub struct {
	mu        sync.Mutex
	broadcast map[uuid.UUID][][]byte
	direct    map[uuid.UUID][][]byte
	joined    map[uuid.UUID][]uuid.UUID
	left      map[uuid.UUID][]uuid.UUID
	closed    []uuid.UUID
}

func newFakeHub() *fakeHub {
	return &fakeHub{
		broadcast: make(map[uuid.UUID][][]byte),
		direct:    make(map[uuid.UUID][][]byte),
		joined:    make(map[uuid.UUID][]uuid.UUID),
		left:      make(map[uuid.UUID][]uuid.UUID),
	}
}

func (h *fakeHub) BroadcastToConversation(conversationID uuid.UUID, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcast[conversationID] = append(h.broadcast[conversationID], payload)
}

func (h *fakeHub) SendToUser(userID uuid.UUID, payload []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.direct[userID] = append(h.direct[userID], payload)
	return true
}

func (h *fakeHub) JoinConversation(userID, conversationID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.joined[userID] = append(h.joined[userID], conversationID)
}

func (h *fakeHub) LeaveConversation(userID, conversationID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.left[userID] = append(h.left[userID], conversationID)
}

func (h *fakeHub) CloseConversation(conversationID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = append(h.closed, conversationID)
}

// eventsFor unpacks the envelopes broadcast to one conversation and returns
// their event names in order.
func (h *fakeHub) eventsFor(t *testing.T, conversationID uuid.UUID) []string {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	var names []string
	for _, raw := range h.broadcast[conversationID] {
		var env events.Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		names = append(names, env.Event)
	}
	return names
}

func (h *fakeHub) broadcastCount(conversationID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.broadcast[conversationID])
}

// fakeBlobs is an in-memory ObjectStore.
type fakeBlobs struct {
	mu      sync.Mutex
	deleted []string
	failAll bool
}

func (b *fakeBlobs) DeleteObject(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failAll {
		return errors.New("blob store unavailable")
	}
	b.deleted = append(b.deleted, key)
	return nil
}

func (b *fakeBlobs) PresignGet(ctx context.Context, key string) (string, error) {
	if b.failAll {
		return "", errors.New("blob store unavailable")
	}
	return "https://blobs.test/" + key, nil
}

// fakePresence answers online lookups from a fixed set.
type fakePresence struct {
	online map[uuid.UUID]bool
}

func (p *fakePresence) OnlineAmong(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	out := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		out[id] = p.online[id]
	}
	return out, nil
}

type fixture struct {
	db    *gorm.DB
	convs repository.ConversationRepository
	msgs  repository.MessageRepository
	users repository.UserRepository
	hub   *fakeHub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	return &fixture{
		db:    db,
		convs: repository.NewConversationRepository(db),
		msgs:  repository.NewMessageRepository(db),
		users: repository.NewUserRepository(db),
		hub:   newFakeHub(),
	}
}

func (f *fixture) seedUser(t *testing.T, name string) uuid.UUID {
	t.Helper()
	u := user.User{ID: uuid.New(), Username: name}
	require.NoError(t, f.db.Create(&u).Error)
	return u.ID
}

func (f *fixture) seedDirect(t *testing.T, a, b uuid.UUID) conversation.Conversation {
	t.Helper()
	now := time.Now()
	conv := conversation.Conversation{
		ID:             uuid.New(),
		RoomID:         uuid.NewString(),
		Kind:           conversation.KindDirect,
		DirectA:        uuid.NullUUID{UUID: a, Valid: true},
		DirectB:        uuid.NullUUID{UUID: b, Valid: true},
		PairKey:        nullString(conversation.PairKey(a, b)),
		LastActivityAt: now,
	}
	require.NoError(t, f.convs.Create(context.Background(), &conv))
	for _, id := range []uuid.UUID{a, b} {
		m := conversation.Member{ConversationID: conv.ID, UserID: id, Role: conversation.RoleMember, JoinedAt: now}
		require.NoError(t, f.convs.AddMember(context.Background(), &m))
	}
	return conv
}

func (f *fixture) seedGroup(t *testing.T, owner uuid.UUID, members ...uuid.UUID) conversation.Conversation {
	t.Helper()
	now := time.Now()
	conv := conversation.Conversation{
		ID:             uuid.New(),
		RoomID:         uuid.NewString(),
		Kind:           conversation.KindGroup,
		Name:           nullString("room"),
		LastActivityAt: now,
		CreatedBy:      uuid.NullUUID{UUID: owner, Valid: true},
	}
	require.NoError(t, f.convs.Create(context.Background(), &conv))
	o := conversation.Member{ConversationID: conv.ID, UserID: owner, Role: conversation.RoleOwner, JoinedAt: now}
	require.NoError(t, f.convs.AddMember(context.Background(), &o))
	for _, id := range members {
		m := conversation.Member{ConversationID: conv.ID, UserID: id, Role: conversation.RoleMember, JoinedAt: now}
		require.NoError(t, f.convs.AddMember(context.Background(), &m))
	}
	return conv
}

func nopLog() *logger.Logger { return logger.NewNop() }
