package repository

import (
	"context"
	"errors"
	"time"

	"relay-chat/internal/domain/conversation"
	"relay-chat/internal/domain/message"
	relay_errors "relay-chat/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GormMessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &GormMessageRepository{db: db}
}

// Create inserts the message. A collision on (conversation_id,
// idempotency_key) comes back as ErrAlreadyExists so the pipeline can treat
// the retry as already delivered.
func (r *GormMessageRepository) Create(ctx context.Context, m *message.Message) error {
	res := r.db.WithContext(ctx).Create(m)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return relay_errors.ErrAlreadyExists
		}
		return res.Error
	}
	return nil
}

func (r *GormMessageRepository) GetByID(ctx context.Context, id uuid.UUID) (message.Message, error) {
	var m message.Message
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return message.Message{}, relay_errors.ErrNotFound
		}
		return message.Message{}, err
	}
	return m, nil
}

func (r *GormMessageRepository) GetByIdempotencyKey(ctx context.Context, conversationID uuid.UUID, key string) (message.Message, error) {
	var m message.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND idempotency_key = ?", conversationID, key).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return message.Message{}, relay_errors.ErrNotFound
		}
		return message.Message{}, err
	}
	return m, nil
}

func (r *GormMessageRepository) Update(ctx context.Context, m message.Message) error {
	res := r.db.WithContext(ctx).Save(&m)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return relay_errors.ErrNotFound
	}
	return nil
}

func (r *GormMessageRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&message.Message{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return relay_errors.ErrNotFound
	}
	return nil
}

// DeleteByConversation removes every message and the sequence counter; used
// only when the conversation itself is being destroyed.
func (r *GormMessageRepository) DeleteByConversation(ctx context.Context, conversationID uuid.UUID) error {
	if err := r.db.WithContext(ctx).
		Delete(&message.Message{}, "conversation_id = ?", conversationID).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Delete(&conversation.Sequence{}, "conversation_id = ?", conversationID).Error
}

func (r *GormMessageRepository) Latest(ctx context.Context, conversationID uuid.UUID) (message.Message, error) {
	var m message.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("seq DESC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return message.Message{}, relay_errors.ErrNotFound
		}
		return message.Message{}, err
	}
	return m, nil
}

func (r *GormMessageRepository) ListSince(ctx context.Context, conversationID uuid.UUID, afterSeq int64, limit int) ([]message.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	var messages []message.Message
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND seq > ?", conversationID, afterSeq).
		Order("seq ASC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *GormMessageRepository) MediaKeys(ctx context.Context, conversationID uuid.UUID) ([]string, error) {
	var keys []string
	err := r.db.WithContext(ctx).
		Model(&message.Message{}).
		Where("conversation_id = ? AND media_key IS NOT NULL AND media_key <> ''", conversationID).
		Pluck("media_key", &keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// NextSeq advances the per-conversation counter and returns the new value.
// The increment runs as a single UPDATE so concurrent senders serialize on
// the row.
func (r *GormMessageRepository) NextSeq(ctx context.Context, conversationID uuid.UUID) (int64, error) {
	var next int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&conversation.Sequence{}).
			Where("conversation_id = ?", conversationID).
			Updates(map[string]interface{}{
				"last_seq":   gorm.Expr("last_seq + 1"),
				"updated_at": time.Now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			seq := conversation.Sequence{ConversationID: conversationID, LastSeq: 1, UpdatedAt: time.Now()}
			if err := tx.Create(&seq).Error; err != nil {
				return err
			}
			next = 1
			return nil
		}
		var seq conversation.Sequence
		if err := tx.Where("conversation_id = ?", conversationID).First(&seq).Error; err != nil {
			return err
		}
		next = seq.LastSeq
		return nil
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}
