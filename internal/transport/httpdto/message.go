package httpdto

import (
	"time"

	"relay-chat/internal/domain/message"

	"github.com/google/uuid"
)

type EditMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

type MessageView struct {
	MessageID string    `json:"message_id"`
	SenderID  string    `json:"sender_id"`
	Seq       int64     `json:"seq"`
	Type      string    `json:"type"`
	Content   string    `json:"content,omitempty"`
	MediaKey  string    `json:"media_key,omitempty"`
	Edited    bool      `json:"edited"`
	CreatedAt time.Time `json:"created_at"`
}

type MessageBatch struct {
	ConversationID string        `json:"conversation_id"`
	Messages       []MessageView `json:"messages"`
}

func MessageFromDomain(m message.Message) MessageView {
	return MessageView{
		MessageID: m.ID.String(),
		SenderID:  m.SenderID.String(),
		Seq:       m.Seq,
		Type:      m.Type,
		Content:   m.Content.String,
		MediaKey:  m.MediaKey.String,
		Edited:    m.Edited,
		CreatedAt: m.CreatedAt,
	}
}

func MessagesFromDomain(conversationID uuid.UUID, items []message.Message) MessageBatch {
	batch := MessageBatch{
		ConversationID: conversationID.String(),
		Messages:       make([]MessageView, 0, len(items)),
	}
	for _, m := range items {
		batch.Messages = append(batch.Messages, MessageFromDomain(m))
	}
	return batch
}
