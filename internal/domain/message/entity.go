package message

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const (
	TypeText  = "TEXT"
	TypeMedia = "MEDIA"
)

// Message represents the messages table. Seq is a per-conversation monotonic
// counter assigned at insert time. The unique index on
// (conversation_id, idempotency_key) is what makes client retries safe: the
// second insert of the same key collides instead of creating a row.
type Message struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	ConversationID uuid.UUID `gorm:"type:uuid;index;uniqueIndex:ux_conv_idem,priority:1;not null"`
	SenderID       uuid.UUID `gorm:"type:uuid;not null"`
	Seq            int64     `gorm:"not null"`
	Type           string    `gorm:"not null"`
	Content        sql.NullString
	MediaKey       sql.NullString
	IdempotencyKey string `gorm:"uniqueIndex:ux_conv_idem,priority:2;not null"`
	Edited         bool   `gorm:"not null;default:false"`
	CreatedAt      time.Time
}

func (Message) TableName() string {
	return "messages"
}
