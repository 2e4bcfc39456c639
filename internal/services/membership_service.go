package services

import (
	"context"
	"sync"
	"time"

	"relay-chat/internal/domain/conversation"
	"relay-chat/internal/events"
	"relay-chat/internal/registry"
	"relay-chat/internal/repository"
	relay_errors "relay-chat/pkg/errors"
	"relay-chat/pkg/logger"

	"github.com/google/uuid"
)

// MembershipService owns group membership mutation and the direct-pair
// lifecycle. Membership checks rely on the storage layer's row-level
// atomicity; there is no per-conversation application lock.
type MembershipService struct {
	convs    repository.ConversationRepository
	msgs     repository.MessageRepository
	users    repository.UserRepository
	registry *registry.Registry
	hub      Broadcaster
	blobs    ObjectStore
	log      *logger.Logger
}

func NewMembershipService(
	convs repository.ConversationRepository,
	msgs repository.MessageRepository,
	users repository.UserRepository,
	reg *registry.Registry,
	hub Broadcaster,
	blobs ObjectStore,
	log *logger.Logger,
) *MembershipService {
	return &MembershipService{
		convs:    convs,
		msgs:     msgs,
		users:    users,
		registry: reg,
		hub:      hub,
		blobs:    blobs,
		log:      log,
	}
}

// MemberFailure is one settled failure from a batch member insertion. Batch
// partial failure is a success variant, not an error.
type MemberFailure struct {
	UserID uuid.UUID `json:"user_id"`
	Reason string    `json:"reason"`
}

type GroupResult struct {
	Conversation conversation.Conversation `json:"conversation"`
	Added        []uuid.UUID               `json:"added"`
	Failed       []MemberFailure           `json:"failed"`
}

type MemberEventPayload struct {
	ConversationID string `json:"conversation_id"`
	RoomID         string `json:"room_id"`
	UserID         string `json:"user_id"`
	Role           string `json:"role,omitempty"`
}

// CreateGroup creates the conversation with ownerID as OWNER, then inserts
// the remaining members concurrently and independently. One member failing
// never rolls back the group or the other members.
func (s *MembershipService) CreateGroup(ctx context.Context, ownerID uuid.UUID, name string, memberIDs []uuid.UUID) (GroupResult, error) {
	if ownerID == uuid.Nil || name == "" {
		return GroupResult{}, relay_errors.ErrInvalidInput
	}

	now := time.Now()
	conv := conversation.Conversation{
		ID:             uuid.New(),
		RoomID:         uuid.NewString(),
		Kind:           conversation.KindGroup,
		Name:           nullString(name),
		LastActivityAt: now,
		CreatedBy:      uuid.NullUUID{UUID: ownerID, Valid: true},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.convs.Create(ctx, &conv); err != nil {
		return GroupResult{}, err
	}

	owner := conversation.Member{
		ConversationID: conv.ID,
		UserID:         ownerID,
		Role:           conversation.RoleOwner,
		JoinedAt:       now,
	}
	if err := s.convs.AddMember(ctx, &owner); err != nil {
		return GroupResult{}, err
	}
	s.hub.JoinConversation(ownerID, conv.ID)

	added, failed := s.insertMembers(ctx, conv, memberIDs, ownerID)
	return GroupResult{Conversation: conv, Added: added, Failed: failed}, nil
}

// AddMembers inserts members into an existing group with the same
// independent per-member semantics as CreateGroup.
func (s *MembershipService) AddMembers(ctx context.Context, conversationID uuid.UUID, memberIDs []uuid.UUID) (GroupResult, error) {
	conv, err := s.convs.GetByID(ctx, conversationID)
	if err != nil {
		return GroupResult{}, err
	}
	if conv.Kind != conversation.KindGroup {
		return GroupResult{}, relay_errors.ErrInvalidInput
	}

	added, failed := s.insertMembers(ctx, conv, memberIDs, uuid.Nil)
	return GroupResult{Conversation: conv, Added: added, Failed: failed}, nil
}

// insertMembers dispatches one insertion per member without waiting on the
// others and collects every settled outcome. Each success joins the member's
// live connection to the conversation channel and notifies it directly.
func (s *MembershipService) insertMembers(ctx context.Context, conv conversation.Conversation, memberIDs []uuid.UUID, skip uuid.UUID) ([]uuid.UUID, []MemberFailure) {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		added  []uuid.UUID
		failed []MemberFailure
	)

	seen := map[uuid.UUID]bool{skip: true}
	for _, memberID := range memberIDs {
		if seen[memberID] {
			continue
		}
		seen[memberID] = true

		wg.Add(1)
		go func(memberID uuid.UUID) {
			defer wg.Done()
			if err := s.insertMember(ctx, conv.ID, memberID); err != nil {
				mu.Lock()
				failed = append(failed, MemberFailure{UserID: memberID, Reason: err.Error()})
				mu.Unlock()
				return
			}
			mu.Lock()
			added = append(added, memberID)
			mu.Unlock()

			s.hub.JoinConversation(memberID, conv.ID)
			payload := events.Marshal(events.EventMemberAdded, MemberEventPayload{
				ConversationID: conv.ID.String(),
				RoomID:         conv.RoomID,
				UserID:         memberID.String(),
				Role:           string(conversation.RoleMember),
			})
			if conn, ok := s.registry.Resolve(memberID); ok {
				conn.Send(payload)
			}
			s.hub.BroadcastToConversation(conv.ID, payload)
		}(memberID)
	}
	wg.Wait()
	return added, failed
}

func (s *MembershipService) insertMember(ctx context.Context, conversationID, memberID uuid.UUID) error {
	if memberID == uuid.Nil {
		return relay_errors.ErrInvalidInput
	}
	exists, err := s.users.Exists(ctx, memberID)
	if err != nil {
		return err
	}
	if !exists {
		return relay_errors.ErrNotFound
	}
	return s.convs.AddMember(ctx, &conversation.Member{
		ConversationID: conversationID,
		UserID:         memberID,
		Role:           conversation.RoleMember,
		JoinedAt:       time.Now(),
	})
}

// Leave removes the member row, dropping its read marker with it. An OWNER
// departure promotes an arbitrary remaining member, persisted before the
// call returns. When the departing owner was the last member the group is
// permanently deleted.
func (s *MembershipService) Leave(ctx context.Context, conversationID, userID uuid.UUID) error {
	conv, err := s.convs.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.Kind != conversation.KindGroup {
		return relay_errors.ErrInvalidInput
	}
	member, err := s.convs.GetMember(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if err := s.convs.RemoveMember(ctx, conversationID, userID); err != nil {
		return err
	}

	if member.Role == conversation.RoleOwner {
		remaining, err := s.convs.GetMembers(ctx, conversationID)
		if err != nil {
			return err
		}
		if len(remaining) == 0 {
			_, err := s.PermanentlyDelete(ctx, conversationID)
			return err
		}
		successor := remaining[0]
		if err := s.convs.UpdateMemberRole(ctx, conversationID, successor.UserID, conversation.RoleOwner); err != nil {
			return err
		}
		s.hub.BroadcastToConversation(conv.ID, events.Marshal(events.EventMemberRoleUpdated, MemberEventPayload{
			ConversationID: conv.ID.String(),
			RoomID:         conv.RoomID,
			UserID:         successor.UserID.String(),
			Role:           string(conversation.RoleOwner),
		}))
	}

	s.hub.LeaveConversation(userID, conversationID)
	s.hub.BroadcastToConversation(conv.ID, events.Marshal(events.EventMemberRemoved, MemberEventPayload{
		ConversationID: conv.ID.String(),
		RoomID:         conv.RoomID,
		UserID:         userID.String(),
	}))
	return nil
}

// Kick removes targetID. The actor's role must strictly outrank the
// target's, so an OWNER can never be kicked and equal ranks cannot kick each
// other.
func (s *MembershipService) Kick(ctx context.Context, conversationID, actorID, targetID uuid.UUID) error {
	conv, err := s.convs.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.Kind != conversation.KindGroup {
		return relay_errors.ErrInvalidInput
	}
	actor, err := s.convs.GetMember(ctx, conversationID, actorID)
	if err != nil {
		return err
	}
	target, err := s.convs.GetMember(ctx, conversationID, targetID)
	if err != nil {
		return err
	}
	if !actor.Role.Outranks(target.Role) {
		return relay_errors.ErrForbidden
	}
	if err := s.convs.RemoveMember(ctx, conversationID, targetID); err != nil {
		return err
	}

	s.hub.LeaveConversation(targetID, conversationID)
	payload := events.Marshal(events.EventMemberRemoved, MemberEventPayload{
		ConversationID: conv.ID.String(),
		RoomID:         conv.RoomID,
		UserID:         targetID.String(),
	})
	if conn, ok := s.registry.Resolve(targetID); ok {
		conn.Send(payload)
	}
	s.hub.BroadcastToConversation(conv.ID, payload)
	return nil
}

// UpdateRole sets the member's role. Callers are expected to have gated the
// actor already; this operation performs no actor check. OWNER is only
// reachable through succession, never through direct role update.
func (s *MembershipService) UpdateRole(ctx context.Context, conversationID, targetID uuid.UUID, newRole conversation.Role) error {
	if newRole != conversation.RoleAdmin && newRole != conversation.RoleMember {
		return relay_errors.ErrInvalidInput
	}
	conv, err := s.convs.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if err := s.convs.UpdateMemberRole(ctx, conversationID, targetID, newRole); err != nil {
		return err
	}
	s.hub.BroadcastToConversation(conv.ID, events.Marshal(events.EventMemberRoleUpdated, MemberEventPayload{
		ConversationID: conv.ID.String(),
		RoomID:         conv.RoomID,
		UserID:         targetID.String(),
		Role:           string(newRole),
	}))
	return nil
}

// SetAvatar points the group at an already-uploaded avatar object. An empty
// key clears it. Uploads happen through a separate edge service; only the key
// flows through here.
func (s *MembershipService) SetAvatar(ctx context.Context, conversationID uuid.UUID, key string) error {
	conv, err := s.convs.GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.Kind != conversation.KindGroup {
		return relay_errors.ErrInvalidInput
	}
	if err := s.convs.SetAvatar(ctx, conversationID, key); err != nil {
		return err
	}
	if conv.AvatarKey.Valid && conv.AvatarKey.String != key && s.blobs != nil {
		if err := s.blobs.DeleteObject(ctx, conv.AvatarKey.String); err != nil {
			s.log.Warnf("delete replaced avatar %s failed: %v", conv.AvatarKey.String, err)
		}
	}
	return nil
}

// CanManage reports whether actorID holds OWNER or ADMIN in the group. The
// HTTP layer gates role updates and deletions with it.
func (s *MembershipService) CanManage(ctx context.Context, conversationID, actorID uuid.UUID) error {
	member, err := s.convs.GetMember(ctx, conversationID, actorID)
	if err != nil {
		return err
	}
	if member.Role != conversation.RoleOwner && member.Role != conversation.RoleAdmin {
		return relay_errors.ErrForbidden
	}
	return nil
}

// PermanentlyDelete removes members, messages, associated media and the
// conversation row. It returns the member IDs that were connected at the
// time so the caller can account for who saw the removal notice.
func (s *MembershipService) PermanentlyDelete(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	conv, err := s.convs.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	memberIDs, err := s.convs.MemberIDs(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	connected := s.registry.ConnectedAmong(memberIDs)

	// Notify before the room ceases to exist.
	s.hub.BroadcastToConversation(conv.ID, events.Marshal(events.EventConversationRemoved, MemberEventPayload{
		ConversationID: conv.ID.String(),
		RoomID:         conv.RoomID,
	}))

	if s.blobs != nil {
		keys, err := s.msgs.MediaKeys(ctx, conversationID)
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			if err := s.blobs.DeleteObject(ctx, key); err != nil {
				s.log.Warnf("delete media object %s failed: %v", key, err)
			}
		}
	}

	if err := s.msgs.DeleteByConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	if err := s.convs.RemoveAllMembers(ctx, conversationID); err != nil {
		return nil, err
	}
	if err := s.convs.Delete(ctx, conversationID); err != nil {
		return nil, err
	}

	s.hub.CloseConversation(conversationID)
	return connected, nil
}

// EnsureDirect returns the direct conversation between a and b, creating it
// on first contact. The unordered pair is unique: a concurrent create loses
// on the pair key and re-reads the winner.
func (s *MembershipService) EnsureDirect(ctx context.Context, a, b uuid.UUID) (conversation.Conversation, error) {
	if a == uuid.Nil || b == uuid.Nil || a == b {
		return conversation.Conversation{}, relay_errors.ErrInvalidInput
	}
	for _, id := range []uuid.UUID{a, b} {
		exists, err := s.users.Exists(ctx, id)
		if err != nil {
			return conversation.Conversation{}, err
		}
		if !exists {
			return conversation.Conversation{}, relay_errors.ErrNotFound
		}
	}

	if conv, err := s.convs.GetDirectPair(ctx, a, b); err == nil {
		return conv, nil
	} else if err != relay_errors.ErrNotFound {
		return conversation.Conversation{}, err
	}

	now := time.Now()
	conv := conversation.Conversation{
		ID:             uuid.New(),
		RoomID:         uuid.NewString(),
		Kind:           conversation.KindDirect,
		DirectA:        uuid.NullUUID{UUID: a, Valid: true},
		DirectB:        uuid.NullUUID{UUID: b, Valid: true},
		PairKey:        nullString(conversation.PairKey(a, b)),
		LastActivityAt: now,
		CreatedBy:      uuid.NullUUID{UUID: a, Valid: true},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.convs.Create(ctx, &conv); err != nil {
		if err == relay_errors.ErrAlreadyExists {
			return s.convs.GetDirectPair(ctx, a, b)
		}
		return conversation.Conversation{}, err
	}

	for _, id := range []uuid.UUID{a, b} {
		m := conversation.Member{
			ConversationID: conv.ID,
			UserID:         id,
			Role:           conversation.RoleMember,
			JoinedAt:       now,
		}
		if err := s.convs.AddMember(ctx, &m); err != nil {
			return conversation.Conversation{}, err
		}
		s.hub.JoinConversation(id, conv.ID)
	}
	return conv, nil
}
