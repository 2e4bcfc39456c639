package repository

import (
	"context"
	"errors"
	"time"

	"relay-chat/internal/domain/user"
	relay_errors "relay-chat/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GormUserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &GormUserRepository{db: db}
}

func (r *GormUserRepository) GetByID(ctx context.Context, id uuid.UUID) (user.User, error) {
	var u user.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return user.User{}, relay_errors.ErrNotFound
		}
		return user.User{}, err
	}
	return u, nil
}

func (r *GormUserRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&user.User{}).
		Where("id = ?", id).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormUserRepository) HasBlocked(ctx context.Context, userID, blockedID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&user.Block{}).
		Where("user_id = ? AND blocked_id = ?", userID, blockedID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormUserRepository) Block(ctx context.Context, userID, blockedID uuid.UUID) error {
	b := user.Block{UserID: userID, BlockedID: blockedID, CreatedAt: time.Now()}
	res := r.db.WithContext(ctx).Create(&b)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return relay_errors.ErrAlreadyExists
		}
		return res.Error
	}
	return nil
}

func (r *GormUserRepository) Unblock(ctx context.Context, userID, blockedID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Delete(&user.Block{}, "user_id = ? AND blocked_id = ?", userID, blockedID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return relay_errors.ErrNotFound
	}
	return nil
}
