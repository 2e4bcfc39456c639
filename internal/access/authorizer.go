package access

import (
	"context"

	"relay-chat/internal/domain/conversation"
	"relay-chat/internal/repository"
	relay_errors "relay-chat/pkg/errors"

	"github.com/google/uuid"
)

// memberResolver resolves the current member set of a conversation. Two
// concrete implementations exist, selected by the conversation kind: direct
// chats read the two fixed participants off the conversation row, group chats
// read the live member table.
type memberResolver interface {
	MembersOf(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error)
}

type directResolver struct {
	convs repository.ConversationRepository
}

func (d directResolver) MembersOf(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	conv, err := d.convs.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.DirectA.Valid || !conv.DirectB.Valid {
		return nil, relay_errors.ErrNotFound
	}
	return []uuid.UUID{conv.DirectA.UUID, conv.DirectB.UUID}, nil
}

type groupResolver struct {
	convs repository.ConversationRepository
}

func (g groupResolver) MembersOf(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	return g.convs.MemberIDs(ctx, conversationID)
}

// Authorizer answers membership questions for the ingest pipeline and the
// fan-out path. Messages arrive over the socket, which authenticates identity
// but is not scoped per conversation, so every inbound message passes through
// Authorize.
type Authorizer struct {
	direct directResolver
	group  groupResolver
}

func NewAuthorizer(convs repository.ConversationRepository) *Authorizer {
	return &Authorizer{
		direct: directResolver{convs: convs},
		group:  groupResolver{convs: convs},
	}
}

func (a *Authorizer) resolverFor(kind conversation.Kind) (memberResolver, error) {
	switch kind {
	case conversation.KindDirect:
		return a.direct, nil
	case conversation.KindGroup:
		return a.group, nil
	default:
		return nil, relay_errors.ErrInvalidInput
	}
}

func (a *Authorizer) MembersOf(ctx context.Context, conversationID uuid.UUID, kind conversation.Kind) ([]uuid.UUID, error) {
	resolver, err := a.resolverFor(kind)
	if err != nil {
		return nil, err
	}
	return resolver.MembersOf(ctx, conversationID)
}

func (a *Authorizer) Authorize(ctx context.Context, conversationID uuid.UUID, kind conversation.Kind, senderID uuid.UUID) error {
	members, err := a.MembersOf(ctx, conversationID, kind)
	if err != nil {
		return err
	}
	for _, id := range members {
		if id == senderID {
			return nil
		}
	}
	return relay_errors.ErrUnauthorized
}
