package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"relay-chat/internal/domain/conversation"
	"relay-chat/internal/domain/message"
	"relay-chat/internal/events"
	"relay-chat/internal/registry"
	relay_errors "relay-chat/pkg/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMembership(f *fixture) (*MembershipService, *fakeBlobs) {
	blobs := &fakeBlobs{}
	svc := NewMembershipService(f.convs, f.msgs, f.users, registry.New(), f.hub, blobs, nopLog())
	return svc, blobs
}

func TestCreateGroupPartialSuccess(t *testing.T) {
	f := newFixture(t)
	svc, _ := newMembership(f)
	ctx := context.Background()

	owner := f.seedUser(t, "owner")
	carol := f.seedUser(t, "carol")
	ghost := uuid.New()

	res, err := svc.CreateGroup(ctx, owner, "lunch", []uuid.UUID{
		carol,
		carol, // duplicate collapses to one attempt
		ghost,
		uuid.Nil,
		owner, // already in as OWNER
	})
	require.NoError(t, err)

	assert.Equal(t, []uuid.UUID{carol}, res.Added)
	require.Len(t, res.Failed, 2)
	reasons := map[uuid.UUID]string{}
	for _, fail := range res.Failed {
		reasons[fail.UserID] = fail.Reason
	}
	assert.Contains(t, reasons, ghost)
	assert.Contains(t, reasons, uuid.Nil)

	ownerRow, err := f.convs.GetMember(ctx, res.Conversation.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, conversation.RoleOwner, ownerRow.Role)
	carolRow, err := f.convs.GetMember(ctx, res.Conversation.ID, carol)
	require.NoError(t, err)
	assert.Equal(t, conversation.RoleMember, carolRow.Role)
}

func TestAddMembersRejectsDirect(t *testing.T) {
	f := newFixture(t)
	svc, _ := newMembership(f)
	ctx := context.Background()

	alice := f.seedUser(t, "alice")
	bob := f.seedUser(t, "bob")
	conv := f.seedDirect(t, alice, bob)

	_, err := svc.AddMembers(ctx, conv.ID, []uuid.UUID{f.seedUser(t, "carol")})
	assert.ErrorIs(t, err, relay_errors.ErrInvalidInput)
}

func TestLeaveRegularMember(t *testing.T) {
	f := newFixture(t)
	svc, _ := newMembership(f)
	ctx := context.Background()

	owner := f.seedUser(t, "owner")
	carol := f.seedUser(t, "carol")
	conv := f.seedGroup(t, owner, carol)

	require.NoError(t, svc.Leave(ctx, conv.ID, carol))

	_, err := f.convs.GetMember(ctx, conv.ID, carol)
	assert.ErrorIs(t, err, relay_errors.ErrNotFound)
	assert.Equal(t, []string{events.EventMemberRemoved}, f.hub.eventsFor(t, conv.ID))

	assert.ErrorIs(t, svc.Leave(ctx, conv.ID, carol), relay_errors.ErrNotFound)
}

func TestLeaveOwnerPromotesSuccessor(t *testing.T) {
	f := newFixture(t)
	svc, _ := newMembership(f)
	ctx := context.Background()

	owner := f.seedUser(t, "owner")
	carol := f.seedUser(t, "carol")
	conv := f.seedGroup(t, owner, carol)

	require.NoError(t, svc.Leave(ctx, conv.ID, owner))

	successor, err := f.convs.GetMember(ctx, conv.ID, carol)
	require.NoError(t, err)
	assert.Equal(t, conversation.RoleOwner, successor.Role)
	assert.Equal(t,
		[]string{events.EventMemberRoleUpdated, events.EventMemberRemoved},
		f.hub.eventsFor(t, conv.ID))
}

func TestLeaveLastOwnerDeletesGroup(t *testing.T) {
	f := newFixture(t)
	svc, _ := newMembership(f)
	ctx := context.Background()

	owner := f.seedUser(t, "owner")
	conv := f.seedGroup(t, owner)

	require.NoError(t, svc.Leave(ctx, conv.ID, owner))

	_, err := f.convs.GetByID(ctx, conv.ID)
	assert.ErrorIs(t, err, relay_errors.ErrNotFound)
	assert.Equal(t, []uuid.UUID{conv.ID}, f.hub.closed)
}

func TestKickRequiresStrictlyHigherRank(t *testing.T) {
	f := newFixture(t)
	svc, _ := newMembership(f)
	ctx := context.Background()

	owner := f.seedUser(t, "owner")
	admin := f.seedUser(t, "admin")
	carol := f.seedUser(t, "carol")
	dave := f.seedUser(t, "dave")
	conv := f.seedGroup(t, owner, admin, carol, dave)
	require.NoError(t, f.convs.UpdateMemberRole(ctx, conv.ID, admin, conversation.RoleAdmin))

	assert.ErrorIs(t, svc.Kick(ctx, conv.ID, carol, dave), relay_errors.ErrForbidden)
	assert.ErrorIs(t, svc.Kick(ctx, conv.ID, admin, owner), relay_errors.ErrForbidden)

	require.NoError(t, svc.Kick(ctx, conv.ID, admin, carol))
	require.NoError(t, svc.Kick(ctx, conv.ID, owner, admin))

	_, err := f.convs.GetMember(ctx, conv.ID, carol)
	assert.ErrorIs(t, err, relay_errors.ErrNotFound)
}

func TestUpdateRoleNeverGrantsOwner(t *testing.T) {
	f := newFixture(t)
	svc, _ := newMembership(f)
	ctx := context.Background()

	owner := f.seedUser(t, "owner")
	carol := f.seedUser(t, "carol")
	conv := f.seedGroup(t, owner, carol)

	assert.ErrorIs(t, svc.UpdateRole(ctx, conv.ID, carol, conversation.RoleOwner), relay_errors.ErrInvalidInput)

	require.NoError(t, svc.UpdateRole(ctx, conv.ID, carol, conversation.RoleAdmin))
	got, err := f.convs.GetMember(ctx, conv.ID, carol)
	require.NoError(t, err)
	assert.Equal(t, conversation.RoleAdmin, got.Role)
}

func TestCanManage(t *testing.T) {
	f := newFixture(t)
	svc, _ := newMembership(f)
	ctx := context.Background()

	owner := f.seedUser(t, "owner")
	admin := f.seedUser(t, "admin")
	carol := f.seedUser(t, "carol")
	conv := f.seedGroup(t, owner, admin, carol)
	require.NoError(t, f.convs.UpdateMemberRole(ctx, conv.ID, admin, conversation.RoleAdmin))

	assert.NoError(t, svc.CanManage(ctx, conv.ID, owner))
	assert.NoError(t, svc.CanManage(ctx, conv.ID, admin))
	assert.ErrorIs(t, svc.CanManage(ctx, conv.ID, carol), relay_errors.ErrForbidden)
	assert.ErrorIs(t, svc.CanManage(ctx, conv.ID, uuid.New()), relay_errors.ErrNotFound)
}

func TestSetAvatarReplacesObject(t *testing.T) {
	f := newFixture(t)
	svc, blobs := newMembership(f)
	ctx := context.Background()

	owner := f.seedUser(t, "owner")
	conv := f.seedGroup(t, owner)

	require.NoError(t, svc.SetAvatar(ctx, conv.ID, "avatars/one.png"))
	got, err := f.convs.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "avatars/one.png", got.AvatarKey.String)
	assert.Empty(t, blobs.deleted)

	require.NoError(t, svc.SetAvatar(ctx, conv.ID, "avatars/two.png"))
	assert.Equal(t, []string{"avatars/one.png"}, blobs.deleted)

	alice := f.seedUser(t, "alice")
	bob := f.seedUser(t, "bob")
	direct := f.seedDirect(t, alice, bob)
	assert.ErrorIs(t, svc.SetAvatar(ctx, direct.ID, "avatars/x.png"), relay_errors.ErrInvalidInput)
}

func TestPermanentlyDelete(t *testing.T) {
	f := newFixture(t)
	svc, blobs := newMembership(f)
	ctx := context.Background()

	owner := f.seedUser(t, "owner")
	carol := f.seedUser(t, "carol")
	conv := f.seedGroup(t, owner, carol)

	msg := message.Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		SenderID:       owner,
		Seq:            1,
		Type:           message.TypeMedia,
		MediaKey:       sql.NullString{String: "media/gone.png", Valid: true},
		IdempotencyKey: "tok-1",
		CreatedAt:      time.Now(),
	}
	require.NoError(t, f.msgs.Create(ctx, &msg))

	_, err := svc.PermanentlyDelete(ctx, conv.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{events.EventConversationRemoved}, f.hub.eventsFor(t, conv.ID))
	assert.Equal(t, []string{"media/gone.png"}, blobs.deleted)
	assert.Equal(t, []uuid.UUID{conv.ID}, f.hub.closed)

	_, err = f.convs.GetByID(ctx, conv.ID)
	assert.ErrorIs(t, err, relay_errors.ErrNotFound)
	_, err = f.msgs.GetByID(ctx, msg.ID)
	assert.ErrorIs(t, err, relay_errors.ErrNotFound)
	members, err := f.convs.GetMembers(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestEnsureDirect(t *testing.T) {
	f := newFixture(t)
	svc, _ := newMembership(f)
	ctx := context.Background()

	alice := f.seedUser(t, "alice")
	bob := f.seedUser(t, "bob")

	_, err := svc.EnsureDirect(ctx, alice, alice)
	assert.ErrorIs(t, err, relay_errors.ErrInvalidInput)
	_, err = svc.EnsureDirect(ctx, alice, uuid.New())
	assert.ErrorIs(t, err, relay_errors.ErrNotFound)

	first, err := svc.EnsureDirect(ctx, alice, bob)
	require.NoError(t, err)
	assert.Equal(t, conversation.KindDirect, first.Kind)

	// Order of the pair never matters.
	again, err := svc.EnsureDirect(ctx, bob, alice)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	members, err := f.convs.GetMembers(ctx, first.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}
