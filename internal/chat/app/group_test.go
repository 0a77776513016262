package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shamell/shamell/internal/chat/app"
	chatdomain "github.com/shamell/shamell/internal/chat/domain"
	"github.com/shamell/shamell/internal/domain"
)

var testGroupID = domain.MustGroupID("grp-weekend-trip")

func memberOf(role domain.GroupRole) func(ctx context.Context, groupID domain.GroupID, deviceID domain.DeviceID) (chatdomain.GroupMember, error) {
	return func(_ context.Context, groupID domain.GroupID, deviceID domain.DeviceID) (chatdomain.GroupMember, error) {
		return chatdomain.GroupMember{GroupID: groupID, DeviceID: deviceID, Role: role}, nil
	}
}

func TestCreateGroup(t *testing.T) {
	t.Run("creator inserted as admin in the same commit", func(t *testing.T) {
		h := newHarness(t)

		var gotCreator chatdomain.GroupMember
		h.groups.createFn = func(_ context.Context, g chatdomain.Group, creator chatdomain.GroupMember) (chatdomain.Group, error) {
			gotCreator = creator
			return g, nil
		}

		g, err := h.svc.CreateGroup(context.Background(), app.CreateGroupParams{
			Name:      "Weekend trip",
			CreatorID: testDeviceID,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, g.KeyVersion)
		assert.Equal(t, domain.GroupRoleAdmin, gotCreator.Role)
		assert.Equal(t, g.ID, gotCreator.GroupID)
		assert.Equal(t, testStart, gotCreator.JoinedAt)
	})
}

func TestGroupAdminGating(t *testing.T) {
	t.Run("update by non-admin: ErrForbidden", func(t *testing.T) {
		h := newHarness(t)
		h.groups.findMemberFn = memberOf(domain.GroupRoleMember)

		err := h.svc.UpdateGroup(context.Background(), app.UpdateGroupParams{
			GroupID: testGroupID, ActorID: testDeviceID, Name: "renamed",
		})
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("update by non-member: not found", func(t *testing.T) {
		h := newHarness(t)

		err := h.svc.UpdateGroup(context.Background(), app.UpdateGroupParams{
			GroupID: testGroupID, ActorID: testDeviceID, Name: "renamed",
		})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("role change by admin succeeds", func(t *testing.T) {
		h := newHarness(t)
		h.groups.findMemberFn = memberOf(domain.GroupRoleAdmin)

		var gotRole domain.GroupRole
		h.groups.setRoleFn = func(_ context.Context, _ domain.GroupID, _ domain.DeviceID, role domain.GroupRole) error {
			gotRole = role
			return nil
		}

		err := h.svc.ChangeRole(context.Background(), app.ChangeRoleParams{
			GroupID: testGroupID, ActorID: testDeviceID, TargetID: testRecipientID, Role: domain.GroupRoleAdmin,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.GroupRoleAdmin, gotRole)
	})

	t.Run("invite by admin adds member with default role", func(t *testing.T) {
		h := newHarness(t)
		h.groups.findMemberFn = memberOf(domain.GroupRoleAdmin)

		var added chatdomain.GroupMember
		h.groups.addMemberFn = func(_ context.Context, m chatdomain.GroupMember) error {
			added = m
			return nil
		}

		err := h.svc.InviteMember(context.Background(), app.InviteMemberParams{
			GroupID: testGroupID, ActorID: testDeviceID, InviteeID: testRecipientID,
		})
		require.NoError(t, err)
		assert.Equal(t, domain.GroupRoleMember, added.Role)
	})

	t.Run("leave is not admin-gated", func(t *testing.T) {
		h := newHarness(t)
		h.groups.findMemberFn = memberOf(domain.GroupRoleMember)

		removed := false
		h.groups.removeFn = func(_ context.Context, _ domain.GroupID, _ domain.DeviceID) error {
			removed = true
			return nil
		}

		require.NoError(t, h.svc.LeaveGroup(context.Background(), testGroupID, testDeviceID))
		assert.True(t, removed)
	})
}

func TestRotateGroupKey(t *testing.T) {
	t.Run("admin rotation bumps version and journals the event", func(t *testing.T) {
		h := newHarness(t)
		h.groups.findMemberFn = memberOf(domain.GroupRoleAdmin)
		h.groups.bumpKeyFn = func(_ context.Context, _ domain.GroupID) (int, error) { return 5, nil }

		var ev chatdomain.GroupKeyEvent
		h.groups.recordKeyFn = func(_ context.Context, e chatdomain.GroupKeyEvent) error {
			ev = e
			return nil
		}

		version, err := h.svc.RotateGroupKey(context.Background(), app.RotateGroupKeyParams{
			GroupID: testGroupID, ActorID: testDeviceID, KeyFP: "abcd1234abcd1234",
		})
		require.NoError(t, err)
		assert.Equal(t, 5, version)
		assert.Equal(t, 5, ev.Version)
		assert.Equal(t, testDeviceID, ev.ActorID)
	})

	t.Run("member rotation rejected", func(t *testing.T) {
		h := newHarness(t)
		h.groups.findMemberFn = memberOf(domain.GroupRoleMember)

		_, err := h.svc.RotateGroupKey(context.Background(), app.RotateGroupKeyParams{
			GroupID: testGroupID, ActorID: testDeviceID,
		})
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})
}

func TestSendGroupMessage(t *testing.T) {
	validParams := func() app.SendGroupParams {
		return app.SendGroupParams{
			GroupID:         testGroupID,
			SenderID:        testDeviceID,
			ProtocolVersion: domain.ProtocolV2Libsignal,
			NonceB64:        "bm9uY2U=",
			BoxB64:          "Ym94",
		}
	}

	t.Run("member send accepted", func(t *testing.T) {
		h := newHarness(t)
		h.groups.findMemberFn = memberOf(domain.GroupRoleMember)

		msg, err := h.svc.SendGroupMessage(context.Background(), validParams())
		require.NoError(t, err)
		assert.Equal(t, testGroupID, msg.GroupID)
		assert.Equal(t, testStart, msg.CreatedAt)
	})

	t.Run("non-member send rejected", func(t *testing.T) {
		h := newHarness(t)

		_, err := h.svc.SendGroupMessage(context.Background(), validParams())
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("v1 send with a v2_only member: downgrade rejected", func(t *testing.T) {
		h := newHarness(t)
		h.groups.findMemberFn = memberOf(domain.GroupRoleMember)
		h.groups.listMembersFn = func(_ context.Context, _ domain.GroupID) ([]chatdomain.GroupMember, error) {
			return []chatdomain.GroupMember{
				{GroupID: testGroupID, DeviceID: testDeviceID, Role: domain.GroupRoleMember},
				{GroupID: testGroupID, DeviceID: testRecipientID, Role: domain.GroupRoleAdmin},
			}, nil
		}
		h.keyBundles.findProtocolFn = func(_ context.Context, id domain.DeviceID) (chatdomain.DeviceProtocolState, error) {
			if id == testRecipientID {
				return chatdomain.DeviceProtocolState{DeviceID: id, V2Only: true}, nil
			}
			return chatdomain.DeviceProtocolState{DeviceID: id}, nil
		}

		p := validParams()
		p.ProtocolVersion = domain.ProtocolV1Legacy
		_, err := h.svc.SendGroupMessage(context.Background(), p)
		assert.ErrorIs(t, err, domain.ErrProtocolDowngrade)
	})

	t.Run("global group v2-only policy blocks v1", func(t *testing.T) {
		h := newHarnessWithPolicy(t, app.ProtocolPolicy{
			V2Enabled: true, V1WriteEnabled: true, GroupV2OnlyGlobal: true,
		})
		h.groups.findMemberFn = memberOf(domain.GroupRoleMember)
		h.groups.listMembersFn = func(_ context.Context, _ domain.GroupID) ([]chatdomain.GroupMember, error) {
			return []chatdomain.GroupMember{
				{GroupID: testGroupID, DeviceID: testDeviceID, Role: domain.GroupRoleMember},
			}, nil
		}

		p := validParams()
		p.ProtocolVersion = domain.ProtocolV1Legacy
		_, err := h.svc.SendGroupMessage(context.Background(), p)
		assert.ErrorIs(t, err, domain.ErrProtocolDowngrade)
	})

	t.Run("other members get the wakeup, sender excluded", func(t *testing.T) {
		h := newHarness(t)
		h.groups.findMemberFn = memberOf(domain.GroupRoleMember)
		h.groups.listMembersFn = func(_ context.Context, _ domain.GroupID) ([]chatdomain.GroupMember, error) {
			return []chatdomain.GroupMember{
				{GroupID: testGroupID, DeviceID: testDeviceID},
				{GroupID: testGroupID, DeviceID: testRecipientID},
			}, nil
		}

		var wokeUp []domain.DeviceID
		h.pushTokens.listFn = func(_ context.Context, ids []domain.DeviceID) ([]chatdomain.PushToken, error) {
			wokeUp = ids
			return nil, nil
		}

		_, err := h.svc.SendGroupMessage(context.Background(), validParams())
		require.NoError(t, err)
		h.svc.Wait()
		assert.Equal(t, []domain.DeviceID{testRecipientID}, wokeUp)
	})
}

func TestGroupInbox(t *testing.T) {
	t.Run("hint stripped and v1 rows hidden for v2_only viewer", func(t *testing.T) {
		h := newHarness(t)
		h.groups.findMemberFn = memberOf(domain.GroupRoleMember)
		h.messages.groupInboxFn = func(_ context.Context, _ domain.GroupID, _ domain.DeviceID, _ time.Time, _ int, _ time.Time) ([]chatdomain.GroupMessage, error) {
			return []chatdomain.GroupMessage{
				{ID: domain.GenerateMessageID(), GroupID: testGroupID, ProtocolVersion: domain.ProtocolV2Libsignal, SenderHint: "hint"},
				{ID: domain.GenerateMessageID(), GroupID: testGroupID, ProtocolVersion: domain.ProtocolV1Legacy},
			}, nil
		}
		h.keyBundles.findProtocolFn = func(_ context.Context, id domain.DeviceID) (chatdomain.DeviceProtocolState, error) {
			return chatdomain.DeviceProtocolState{DeviceID: id, V2Only: true}, nil
		}

		rows, err := h.svc.GroupInbox(context.Background(), app.GroupInboxParams{
			GroupID: testGroupID, DeviceID: testDeviceID,
		})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Empty(t, rows[0].SenderHint)
		assert.Equal(t, domain.ProtocolV2Libsignal, rows[0].ProtocolVersion)
	})

	t.Run("non-member cannot read", func(t *testing.T) {
		h := newHarness(t)

		_, err := h.svc.GroupInbox(context.Background(), app.GroupInboxParams{
			GroupID: testGroupID, DeviceID: testDeviceID,
		})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}
