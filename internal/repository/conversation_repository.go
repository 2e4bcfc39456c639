package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"relay-chat/internal/domain/conversation"
	relay_errors "relay-chat/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GormConversationRepository struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &GormConversationRepository{db: db}
}

func (r *GormConversationRepository) Create(ctx context.Context, c *conversation.Conversation) error {
	res := r.db.WithContext(ctx).Create(c)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return relay_errors.ErrAlreadyExists
		}
		return res.Error
	}
	return nil
}

func (r *GormConversationRepository) GetByID(ctx context.Context, id uuid.UUID) (conversation.Conversation, error) {
	var c conversation.Conversation
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return conversation.Conversation{}, relay_errors.ErrNotFound
		}
		return conversation.Conversation{}, err
	}
	return c, nil
}

func (r *GormConversationRepository) GetByRoomID(ctx context.Context, roomID string) (conversation.Conversation, error) {
	var c conversation.Conversation
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return conversation.Conversation{}, relay_errors.ErrNotFound
		}
		return conversation.Conversation{}, err
	}
	return c, nil
}

func (r *GormConversationRepository) GetDirectPair(ctx context.Context, a, b uuid.UUID) (conversation.Conversation, error) {
	var c conversation.Conversation
	err := r.db.WithContext(ctx).
		Where("kind = ? AND pair_key = ?", conversation.KindDirect, conversation.PairKey(a, b)).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return conversation.Conversation{}, relay_errors.ErrNotFound
		}
		return conversation.Conversation{}, err
	}
	return c, nil
}

func (r *GormConversationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&conversation.Conversation{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return relay_errors.ErrNotFound
	}
	return nil
}

func (r *GormConversationRepository) AddMember(ctx context.Context, m *conversation.Member) error {
	res := r.db.WithContext(ctx).Create(m)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return relay_errors.ErrAlreadyExists
		}
		return res.Error
	}
	return nil
}

func (r *GormConversationRepository) RemoveMember(ctx context.Context, conversationID, userID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Delete(&conversation.Member{}, "conversation_id = ? AND user_id = ?", conversationID, userID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return relay_errors.ErrNotFound
	}
	return nil
}

func (r *GormConversationRepository) RemoveAllMembers(ctx context.Context, conversationID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Delete(&conversation.Member{}, "conversation_id = ?", conversationID).Error
}

func (r *GormConversationRepository) GetMember(ctx context.Context, conversationID, userID uuid.UUID) (conversation.Member, error) {
	var m conversation.Member
	err := r.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return conversation.Member{}, relay_errors.ErrNotFound
		}
		return conversation.Member{}, err
	}
	return m, nil
}

func (r *GormConversationRepository) GetMembers(ctx context.Context, conversationID uuid.UUID) ([]conversation.Member, error) {
	var members []conversation.Member
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("joined_at ASC").
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (r *GormConversationRepository) MemberIDs(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&conversation.Member{}).
		Where("conversation_id = ?", conversationID).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *GormConversationRepository) IsMember(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&conversation.Member{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormConversationRepository) UpdateMemberRole(ctx context.Context, conversationID, userID uuid.UUID, role conversation.Role) error {
	res := r.db.WithContext(ctx).
		Model(&conversation.Member{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Update("role", role)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return relay_errors.ErrNotFound
	}
	return nil
}

func (r *GormConversationRepository) SetAvatar(ctx context.Context, conversationID uuid.UUID, key string) error {
	avatar := sql.NullString{String: key, Valid: key != ""}
	res := r.db.WithContext(ctx).
		Model(&conversation.Conversation{}).
		Where("id = ?", conversationID).
		Update("avatar_key", avatar)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return relay_errors.ErrNotFound
	}
	return nil
}

func (r *GormConversationRepository) UpdateSummary(ctx context.Context, conversationID uuid.UUID, lastMessageID uuid.NullUUID, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&conversation.Conversation{}).
		Where("id = ?", conversationID).
		Updates(map[string]interface{}{
			"last_message_id":  lastMessageID,
			"last_activity_at": at,
			"updated_at":       time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return relay_errors.ErrNotFound
	}
	return nil
}

func (r *GormConversationRepository) SetUnread(ctx context.Context, conversationID, userID uuid.UUID, unread bool) error {
	res := r.db.WithContext(ctx).
		Model(&conversation.Member{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Update("unread", unread)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return relay_errors.ErrNotFound
	}
	return nil
}

// ResetUnreadExcept marks every member except senderID unread and clears the
// sender's own flag, collapsing the read-by set to just the sender.
func (r *GormConversationRepository) ResetUnreadExcept(ctx context.Context, conversationID, senderID uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Model(&conversation.Member{}).
		Where("conversation_id = ? AND user_id <> ?", conversationID, senderID).
		Update("unread", true).Error
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&conversation.Member{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, senderID).
		Update("unread", false).Error
}

func (r *GormConversationRepository) SetDeleted(ctx context.Context, conversationID, userID uuid.UUID, deleted bool) error {
	res := r.db.WithContext(ctx).
		Model(&conversation.Member{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Update("deleted", deleted)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return relay_errors.ErrNotFound
	}
	return nil
}

func (r *GormConversationRepository) RestoreDeleted(ctx context.Context, conversationID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&conversation.Member{}).
		Where("conversation_id = ? AND deleted = ?", conversationID, true).
		Update("deleted", false).Error
}

func (r *GormConversationRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]conversation.Conversation, error) {
	var conversations []conversation.Conversation

	subQuery := r.db.Model(&conversation.Member{}).
		Select("conversation_id").
		Where("user_id = ? AND deleted = ?", userID, false)

	err := r.db.WithContext(ctx).
		Preload("Members").
		Where("id IN (?)", subQuery).
		Order("last_activity_at DESC").
		Find(&conversations).Error
	if err != nil {
		return nil, err
	}
	return conversations, nil
}

// ConversationIDsForUser returns every conversation the user is a member of,
// soft-deleted ones included: fan-out targets are decided by membership, not
// by list visibility.
func (r *GormConversationRepository) ConversationIDsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&conversation.Member{}).
		Where("user_id = ?", userID).
		Pluck("conversation_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
