package user

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// User carries the fields the chat core needs for fan-out payloads and member
// validation. Profile management lives outside this service.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Username  string    `gorm:"uniqueIndex;not null"`
	AvatarKey sql.NullString
	CreatedAt time.Time
}

// Block represents the blocks table: UserID has blocked BlockedID. Consulted
// on every direct-chat send.
type Block struct {
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	BlockedID uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time
}

func (User) TableName() string {
	return "users"
}

func (Block) TableName() string {
	return "blocks"
}
