package events

import (
	"encoding/json"
	"time"
)

// Outbound socket event names. The frontend switches on these strings, so
// renames are breaking.
const (
	EventMessageReceived     = "message-received"
	EventChatListUpdated     = "chat-list-updated"
	EventMemberAdded         = "member-added"
	EventMemberRemoved       = "member-removed"
	EventMemberRoleUpdated   = "member-role-updated"
	EventConversationRemoved = "conversation-removed"
)

// Inbound socket event names.
const (
	EventSendMessage = "send-message"
	EventSync        = "sync"
)

type Envelope struct {
	Event      string          `json:"event"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// Marshal wraps payload into a serialized envelope. Marshal errors are
// programming errors (payloads are our own structs), so they panic.
func Marshal(event string, payload interface{}) []byte {
	raw, err := json.Marshal(payload)
	if err != nil {
		panic(err)
	}
	out, err := json.Marshal(Envelope{
		Event:      event,
		OccurredAt: time.Now(),
		Payload:    raw,
	})
	if err != nil {
		panic(err)
	}
	return out
}
