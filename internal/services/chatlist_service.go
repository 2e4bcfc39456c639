package services

import (
	"context"
	"time"

	"relay-chat/internal/domain/conversation"
	"relay-chat/internal/repository"
	relay_errors "relay-chat/pkg/errors"
	"relay-chat/pkg/logger"

	"github.com/google/uuid"
)

// ChatListService maintains the per-user denormalized conversation list:
// read on demand, pushed incrementally by the ingest pipeline's
// chat-list-updated events.
type ChatListService struct {
	convs    repository.ConversationRepository
	msgs     repository.MessageRepository
	users    repository.UserRepository
	presence Presence
	blobs    ObjectStore
	log      *logger.Logger
}

func NewChatListService(
	convs repository.ConversationRepository,
	msgs repository.MessageRepository,
	users repository.UserRepository,
	presence Presence,
	blobs ObjectStore,
	log *logger.Logger,
) *ChatListService {
	return &ChatListService{
		convs:    convs,
		msgs:     msgs,
		users:    users,
		presence: presence,
		blobs:    blobs,
		log:      log,
	}
}

// Summary is one entry of a user's chat list.
type Summary struct {
	ConversationID string            `json:"conversation_id"`
	RoomID         string            `json:"room_id"`
	Kind           conversation.Kind `json:"kind"`
	Name           string            `json:"name,omitempty"`
	AvatarURL      string            `json:"avatar_url,omitempty"`
	PeerID         string            `json:"peer_id,omitempty"`
	PeerOnline     bool              `json:"peer_online,omitempty"`
	Preview        string            `json:"preview,omitempty"`
	Unread         bool              `json:"unread"`
	LastActivityAt time.Time         `json:"last_activity_at"`
}

// ListFor merges direct and group conversations into one sequence ordered by
// most recent activity descending, excluding rows soft-deleted for userID.
func (s *ChatListService) ListFor(ctx context.Context, userID uuid.UUID) ([]Summary, error) {
	conversations, err := s.convs.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var peers []uuid.UUID
	for _, conv := range conversations {
		if peer, ok := conv.Peer(userID); ok {
			peers = append(peers, peer)
		}
	}
	online := s.onlineAmong(ctx, peers)

	summaries := make([]Summary, 0, len(conversations))
	for _, conv := range conversations {
		entry := Summary{
			ConversationID: conv.ID.String(),
			RoomID:         conv.RoomID,
			Kind:           conv.Kind,
			Name:           conv.Name.String,
			LastActivityAt: conv.LastActivityAt,
		}
		for _, m := range conv.Members {
			if m.UserID == userID {
				entry.Unread = m.Unread
				break
			}
		}
		if peer, ok := conv.Peer(userID); ok {
			entry.PeerID = peer.String()
			entry.PeerOnline = online[peer]
		}
		if conv.LastMessageID.Valid {
			if last, err := s.msgs.GetByID(ctx, conv.LastMessageID.UUID); err == nil {
				entry.Preview = preview(last)
			} else if err != relay_errors.ErrNotFound {
				return nil, err
			}
		}
		// Denormalized avatar URL is best effort: a signing failure never
		// breaks the list.
		if conv.AvatarKey.Valid && s.blobs != nil {
			if url, err := s.blobs.PresignGet(ctx, conv.AvatarKey.String); err != nil {
				s.log.Warnf("presign avatar for conversation %s failed: %v", conv.ID, err)
			} else {
				entry.AvatarURL = url
			}
		}
		summaries = append(summaries, entry)
	}
	return summaries, nil
}

// MarkDeleted hides the conversation from userID's list. Other members and
// the underlying data are untouched; a new inbound message restores it.
func (s *ChatListService) MarkDeleted(ctx context.Context, userID, conversationID uuid.UUID) error {
	return s.convs.SetDeleted(ctx, conversationID, userID, true)
}

func (s *ChatListService) MarkRead(ctx context.Context, userID, conversationID uuid.UUID, read bool) error {
	return s.convs.SetUnread(ctx, conversationID, userID, !read)
}

func (s *ChatListService) onlineAmong(ctx context.Context, ids []uuid.UUID) map[uuid.UUID]bool {
	if s.presence == nil || len(ids) == 0 {
		return nil
	}
	online, err := s.presence.OnlineAmong(ctx, ids)
	if err != nil {
		s.log.Warnf("presence lookup failed: %v", err)
		return nil
	}
	return online
}
