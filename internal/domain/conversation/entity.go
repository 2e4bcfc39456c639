package conversation

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the two conversation shapes. Membership resolution and
// post-send side effects are selected by this enum, never by inspecting rows.
type Kind string

const (
	KindDirect Kind = "DIRECT"
	KindGroup  Kind = "GROUP"
)

func (k Kind) Valid() bool {
	return k == KindDirect || k == KindGroup
}

// Role of a group member. Direct conversations carry an implicit symmetric
// role and store RoleMember for both sides.
type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

var roleRank = map[Role]int{
	RoleOwner:  3,
	RoleAdmin:  2,
	RoleMember: 1,
}

// Outranks reports whether r strictly outranks other.
func (r Role) Outranks(other Role) bool {
	return roleRank[r] > roleRank[other]
}

// Conversation represents the conversations table. RoomID is the stable
// opaque identifier handed to clients; ID is the storage row id. For direct
// conversations DirectA/DirectB hold the two fixed participants and PairKey
// makes the unordered pair unique.
type Conversation struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	RoomID         string    `gorm:"uniqueIndex;not null"`
	Kind           Kind      `gorm:"not null"`
	Name           sql.NullString
	AvatarKey      sql.NullString
	DirectA        uuid.NullUUID  `gorm:"type:uuid"`
	DirectB        uuid.NullUUID  `gorm:"type:uuid"`
	PairKey        sql.NullString `gorm:"uniqueIndex"`
	LastMessageID  uuid.NullUUID  `gorm:"type:uuid"`
	LastActivityAt time.Time      `gorm:"not null"`
	CreatedBy      uuid.NullUUID  `gorm:"type:uuid"`
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Members []Member `gorm:"foreignKey:ConversationID"`
}

// Member represents the members table: one row per (conversation, user).
// Unread and Deleted are per-member projection flags; deleting a member row
// drops that user's read marker with it.
type Member struct {
	ConversationID uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Role           Role      `gorm:"not null"`
	Unread         bool      `gorm:"not null;default:false"`
	Deleted        bool      `gorm:"not null;default:false"`
	JoinedAt       time.Time
}

// Sequence represents the conversation_sequences table backing the
// per-conversation monotonic message counter.
type Sequence struct {
	ConversationID uuid.UUID `gorm:"type:uuid;primaryKey"`
	LastSeq        int64     `gorm:"not null"`
	UpdatedAt      time.Time
}

// PairKey builds the canonical unordered-pair key for a direct conversation.
func PairKey(a, b uuid.UUID) string {
	if a.String() < b.String() {
		return fmt.Sprintf("%s:%s", a, b)
	}
	return fmt.Sprintf("%s:%s", b, a)
}

// Peer returns the other direct participant, or false when userID is not one
// of the pair or the conversation is not direct.
func (c Conversation) Peer(userID uuid.UUID) (uuid.UUID, bool) {
	if c.Kind != KindDirect || !c.DirectA.Valid || !c.DirectB.Valid {
		return uuid.Nil, false
	}
	switch userID {
	case c.DirectA.UUID:
		return c.DirectB.UUID, true
	case c.DirectB.UUID:
		return c.DirectA.UUID, true
	}
	return uuid.Nil, false
}

func (Conversation) TableName() string {
	return "conversations"
}

func (Member) TableName() string {
	return "members"
}

func (Sequence) TableName() string {
	return "conversation_sequences"
}
