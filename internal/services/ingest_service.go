package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"relay-chat/internal/access"
	"relay-chat/internal/domain/conversation"
	"relay-chat/internal/domain/message"
	"relay-chat/internal/events"
	"relay-chat/internal/repository"
	relay_errors "relay-chat/pkg/errors"
	"relay-chat/pkg/logger"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IngestService is the message write path: authorize, persist idempotently,
// update the conversation summary, fan out. Once Ingest starts it runs to
// completion or compensating deletion; nothing in the middle is cancellable.
type IngestService struct {
	db    *gorm.DB
	convs repository.ConversationRepository
	msgs  repository.MessageRepository
	users repository.UserRepository
	auth  *access.Authorizer
	hub   Broadcaster
	blobs ObjectStore
	log   *logger.Logger
}

func NewIngestService(
	db *gorm.DB,
	convs repository.ConversationRepository,
	msgs repository.MessageRepository,
	users repository.UserRepository,
	auth *access.Authorizer,
	hub Broadcaster,
	blobs ObjectStore,
	log *logger.Logger,
) *IngestService {
	return &IngestService{
		db:    db,
		convs: convs,
		msgs:  msgs,
		users: users,
		auth:  auth,
		hub:   hub,
		blobs: blobs,
		log:   log,
	}
}

type IngestInput struct {
	ConversationID uuid.UUID
	Kind           conversation.Kind
	SenderID       uuid.UUID
	Content        string
	MediaKey       string
	IdempotencyKey string
}

func (in IngestInput) validate() error {
	if in.ConversationID == uuid.Nil || in.SenderID == uuid.Nil {
		return relay_errors.ErrInvalidInput
	}
	if !in.Kind.Valid() {
		return relay_errors.ErrInvalidInput
	}
	if in.IdempotencyKey == "" {
		return relay_errors.ErrInvalidInput
	}
	if in.Content == "" && in.MediaKey == "" {
		return relay_errors.ErrInvalidInput
	}
	return nil
}

type IngestResult struct {
	Message   message.Message
	Duplicate bool
}

// MessagePayload is the message-received fan-out body.
type MessagePayload struct {
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id"`
	RoomID         string    `json:"room_id"`
	SenderID       string    `json:"sender_id"`
	Seq            int64     `json:"seq"`
	Type           string    `json:"type"`
	Content        string    `json:"content,omitempty"`
	MediaURL       string    `json:"media_url,omitempty"`
	Edited         bool      `json:"edited"`
	CreatedAt      time.Time `json:"created_at"`
}

// ChatListUpdatePayload is the abbreviated chat-list-updated fan-out body.
type ChatListUpdatePayload struct {
	ConversationID string    `json:"conversation_id"`
	RoomID         string    `json:"room_id"`
	SenderID       string    `json:"sender_id"`
	Preview        string    `json:"preview"`
	At             time.Time `json:"at"`
}

func (s *IngestService) Ingest(ctx context.Context, in IngestInput) (IngestResult, error) {
	if err := in.validate(); err != nil {
		return IngestResult{}, err
	}

	conv, err := s.convs.GetByID(ctx, in.ConversationID)
	if err != nil {
		return IngestResult{}, err
	}
	if conv.Kind != in.Kind {
		return IngestResult{}, relay_errors.ErrInvalidInput
	}

	if conv.Kind == conversation.KindDirect {
		if peer, ok := conv.Peer(in.SenderID); ok {
			blocked, err := s.users.HasBlocked(ctx, peer, in.SenderID)
			if err != nil {
				return IngestResult{}, err
			}
			if blocked {
				return IngestResult{}, fmt.Errorf("%w: sender blocked", relay_errors.ErrForbidden)
			}
		}
	}

	if err := s.auth.Authorize(ctx, conv.ID, conv.Kind, in.SenderID); err != nil {
		return IngestResult{}, err
	}

	var res IngestResult
	if s.db == nil {
		res, err = s.persist(ctx, s.convs, s.msgs, conv, in, true)
	} else {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var txErr error
			res, txErr = s.persist(ctx,
				repository.NewConversationRepository(tx),
				repository.NewMessageRepository(tx),
				conv, in, false)
			return txErr
		})
	}
	if err != nil {
		return IngestResult{}, err
	}
	if res.Duplicate {
		// Already delivered: no second broadcast, no summary churn.
		return res, nil
	}

	// Receiving a new message always surfaces a hidden conversation again.
	// Best effort: never blocks delivery.
	if err := s.convs.RestoreDeleted(ctx, conv.ID); err != nil {
		s.log.Warnf("restore soft-deleted members failed for conversation %s: %v", conv.ID, err)
	}

	s.broadcast(ctx, conv, res.Message)
	return res, nil
}

// persist runs steps 3 and 4: idempotent insert, then summary and unread
// updates. When compensate is set (non-transactional path) a failed summary
// update deletes the just-inserted message before the error propagates, so no
// orphaned unsummarized row survives.
func (s *IngestService) persist(ctx context.Context, convs repository.ConversationRepository, msgs repository.MessageRepository, conv conversation.Conversation, in IngestInput, compensate bool) (IngestResult, error) {
	if existing, err := msgs.GetByIdempotencyKey(ctx, conv.ID, in.IdempotencyKey); err == nil {
		return IngestResult{Message: existing, Duplicate: true}, nil
	} else if err != relay_errors.ErrNotFound {
		return IngestResult{}, err
	}

	seq, err := msgs.NextSeq(ctx, conv.ID)
	if err != nil {
		return IngestResult{}, err
	}

	msgType := message.TypeText
	if in.MediaKey != "" {
		msgType = message.TypeMedia
	}
	msg := message.Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		SenderID:       in.SenderID,
		Seq:            seq,
		Type:           msgType,
		Content:        nullString(in.Content),
		MediaKey:       nullString(in.MediaKey),
		IdempotencyKey: in.IdempotencyKey,
		CreatedAt:      time.Now(),
	}

	if err := msgs.Create(ctx, &msg); err != nil {
		if err == relay_errors.ErrAlreadyExists {
			// Lost the race against a concurrent retry; the winner's row is
			// the delivered one.
			existing, getErr := msgs.GetByIdempotencyKey(ctx, conv.ID, in.IdempotencyKey)
			if getErr != nil {
				return IngestResult{}, getErr
			}
			return IngestResult{Message: existing, Duplicate: true}, nil
		}
		return IngestResult{}, err
	}

	if err := s.applySummary(ctx, convs, conv, msg); err != nil {
		if compensate {
			if delErr := msgs.Delete(ctx, msg.ID); delErr != nil {
				s.log.Errorf("compensating delete failed for message %s: %v", msg.ID, delErr)
			}
		}
		return IngestResult{}, fmt.Errorf("%w: conversation summary: %v", relay_errors.ErrInternal, err)
	}

	return IngestResult{Message: msg}, nil
}

// applySummary re-points the last-message summary and flips the per-member
// read state for the message's chat kind.
func (s *IngestService) applySummary(ctx context.Context, convs repository.ConversationRepository, conv conversation.Conversation, msg message.Message) error {
	if err := convs.UpdateSummary(ctx, conv.ID, uuid.NullUUID{UUID: msg.ID, Valid: true}, msg.CreatedAt); err != nil {
		return err
	}

	switch conv.Kind {
	case conversation.KindDirect:
		peer, ok := conv.Peer(msg.SenderID)
		if !ok {
			return relay_errors.ErrInternal
		}
		if err := convs.SetUnread(ctx, conv.ID, peer, true); err != nil {
			return err
		}
		return convs.SetUnread(ctx, conv.ID, msg.SenderID, false)
	case conversation.KindGroup:
		return convs.ResetUnreadExcept(ctx, conv.ID, msg.SenderID)
	}
	return relay_errors.ErrInvalidInput
}

func (s *IngestService) broadcast(ctx context.Context, conv conversation.Conversation, msg message.Message) {
	payload := MessagePayload{
		MessageID:      msg.ID.String(),
		ConversationID: conv.ID.String(),
		RoomID:         conv.RoomID,
		SenderID:       msg.SenderID.String(),
		Seq:            msg.Seq,
		Type:           msg.Type,
		Content:        msg.Content.String,
		Edited:         msg.Edited,
		CreatedAt:      msg.CreatedAt,
	}
	if msg.MediaKey.Valid && s.blobs != nil {
		url, err := s.blobs.PresignGet(ctx, msg.MediaKey.String)
		if err != nil {
			s.log.Warnf("presign media for message %s failed: %v", msg.ID, err)
		} else {
			payload.MediaURL = url
		}
	}
	s.hub.BroadcastToConversation(conv.ID, events.Marshal(events.EventMessageReceived, payload))

	s.hub.BroadcastToConversation(conv.ID, events.Marshal(events.EventChatListUpdated, ChatListUpdatePayload{
		ConversationID: conv.ID.String(),
		RoomID:         conv.RoomID,
		SenderID:       msg.SenderID.String(),
		Preview:        preview(msg),
		At:             msg.CreatedAt,
	}))
}

// EditMessage rewrites the content of a text message. Only the original
// sender may edit; media messages are uneditable.
func (s *IngestService) EditMessage(ctx context.Context, senderID, messageID uuid.UUID, newContent string) (message.Message, error) {
	if newContent == "" {
		return message.Message{}, relay_errors.ErrInvalidInput
	}
	msg, err := s.msgs.GetByID(ctx, messageID)
	if err != nil {
		return message.Message{}, err
	}
	if msg.SenderID != senderID {
		return message.Message{}, relay_errors.ErrForbidden
	}
	if msg.Type != message.TypeText {
		return message.Message{}, fmt.Errorf("%w: message type %s cannot be edited", relay_errors.ErrConflict, msg.Type)
	}
	msg.Content = nullString(newContent)
	msg.Edited = true
	if err := s.msgs.Update(ctx, msg); err != nil {
		return message.Message{}, err
	}
	return msg, nil
}

// DeleteMessage removes a message, its blob first. Summary repair is a
// separate explicit call (RepairSummary); deletion and repair arrive from
// different call sites.
func (s *IngestService) DeleteMessage(ctx context.Context, senderID, messageID uuid.UUID) error {
	msg, err := s.msgs.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != senderID {
		return relay_errors.ErrForbidden
	}
	if msg.MediaKey.Valid && s.blobs != nil {
		if err := s.blobs.DeleteObject(ctx, msg.MediaKey.String); err != nil {
			return fmt.Errorf("%w: delete media: %v", relay_errors.ErrInternal, err)
		}
	}
	return s.msgs.Delete(ctx, msg.ID)
}

// RepairSummary re-points the conversation summary at the newest remaining
// message, or nulls the pointer when none remain.
func (s *IngestService) RepairSummary(ctx context.Context, conversationID uuid.UUID) error {
	conv, err := s.convs.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	latest, err := s.msgs.Latest(ctx, conversationID)
	if err == relay_errors.ErrNotFound {
		return s.convs.UpdateSummary(ctx, conversationID, uuid.NullUUID{}, conv.LastActivityAt)
	}
	if err != nil {
		return err
	}
	return s.convs.UpdateSummary(ctx, conversationID, uuid.NullUUID{UUID: latest.ID, Valid: true}, latest.CreatedAt)
}

// MessagesSince returns the messages with a sequence greater than afterSeq,
// the reconnect catch-up query.
func (s *IngestService) MessagesSince(ctx context.Context, userID, conversationID uuid.UUID, afterSeq int64, limit int) ([]message.Message, error) {
	conv, err := s.convs.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := s.auth.Authorize(ctx, conv.ID, conv.Kind, userID); err != nil {
		return nil, err
	}
	return s.msgs.ListSince(ctx, conversationID, afterSeq, limit)
}

func preview(msg message.Message) string {
	if msg.Type == message.TypeMedia {
		return "[media]"
	}
	const max = 120
	if len(msg.Content.String) > max {
		return msg.Content.String[:max]
	}
	return msg.Content.String
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
