package app

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"

	chatdomain "github.com/shamell/shamell/internal/chat/domain"
	"github.com/shamell/shamell/internal/domain"
)

// CreateGroupParams are the inputs to group creation.
type CreateGroupParams struct {
	Name      string
	CreatorID domain.DeviceID
	Avatar    string
}

// CreateGroup inserts the group and its creator-as-admin membership row in
// one commit.
func (s *ChatService) CreateGroup(ctx context.Context, p CreateGroupParams) (*chatdomain.Group, error) {
	ctx, span := tracer.Start(ctx, "chat.CreateGroup")
	defer span.End()

	now := s.clock.Now()
	g := chatdomain.Group{
		ID:         domain.GenerateGroupID(),
		Name:       p.Name,
		CreatorID:  p.CreatorID,
		KeyVersion: 1,
		Avatar:     p.Avatar,
		CreatedAt:  now,
	}
	creator := chatdomain.GroupMember{
		GroupID:  g.ID,
		DeviceID: p.CreatorID,
		Role:     domain.GroupRoleAdmin,
		JoinedAt: now,
	}
	stored, err := s.groups.CreateGroup(ctx, g, creator)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("create group: %w", err)
	}
	groupEventsTotal.Add(ctx, 1)
	return &stored, nil
}

// requireAdmin loads the actor's membership and fails closed unless it is
// admin. Returns domain.ErrNotMember if the actor is not a member at all.
func (s *ChatService) requireAdmin(ctx context.Context, groupID domain.GroupID, actorID domain.DeviceID) error {
	m, err := s.groups.FindMember(ctx, groupID, actorID)
	if err != nil {
		return fmt.Errorf("lookup membership: %w", err)
	}
	if !m.IsAdmin() {
		return fmt.Errorf("admin role required: %w", domain.ErrForbidden)
	}
	return nil
}

// UpdateGroupParams are the inputs to a group metadata update.
type UpdateGroupParams struct {
	GroupID domain.GroupID
	ActorID domain.DeviceID
	Name    string
	Avatar  string
}

// UpdateGroup changes name/avatar. Admin-gated.
func (s *ChatService) UpdateGroup(ctx context.Context, p UpdateGroupParams) error {
	ctx, span := tracer.Start(ctx, "chat.UpdateGroup")
	defer span.End()

	if err := s.requireAdmin(ctx, p.GroupID, p.ActorID); err != nil {
		return err
	}
	g, err := s.groups.FindGroup(ctx, p.GroupID)
	if err != nil {
		return fmt.Errorf("lookup group: %w", err)
	}
	g.Name = p.Name
	g.Avatar = p.Avatar
	if err := s.groups.UpdateGroup(ctx, g); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("update group: %w", err)
	}
	groupEventsTotal.Add(ctx, 1)
	return nil
}

// ChangeRoleParams are the inputs to a role change.
type ChangeRoleParams struct {
	GroupID  domain.GroupID
	ActorID  domain.DeviceID
	TargetID domain.DeviceID
	Role     domain.GroupRole
}

// ChangeRole promotes or demotes a member. Admin-gated.
func (s *ChatService) ChangeRole(ctx context.Context, p ChangeRoleParams) error {
	ctx, span := tracer.Start(ctx, "chat.ChangeRole")
	defer span.End()

	if err := s.requireAdmin(ctx, p.GroupID, p.ActorID); err != nil {
		return err
	}
	if _, err := s.groups.FindMember(ctx, p.GroupID, p.TargetID); err != nil {
		return fmt.Errorf("lookup target membership: %w", err)
	}
	if err := s.groups.SetMemberRole(ctx, p.GroupID, p.TargetID, p.Role); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("set member role: %w", err)
	}
	groupEventsTotal.Add(ctx, 1)
	return nil
}

// InviteMemberParams are the inputs to inviting a device into a group.
type InviteMemberParams struct {
	GroupID  domain.GroupID
	ActorID  domain.DeviceID
	InviteeID domain.DeviceID
}

// InviteMember adds a member with the default role. Admin-gated.
func (s *ChatService) InviteMember(ctx context.Context, p InviteMemberParams) error {
	ctx, span := tracer.Start(ctx, "chat.InviteMember")
	defer span.End()

	if err := s.requireAdmin(ctx, p.GroupID, p.ActorID); err != nil {
		return err
	}
	if err := s.groups.AddMember(ctx, chatdomain.GroupMember{
		GroupID:  p.GroupID,
		DeviceID: p.InviteeID,
		Role:     domain.GroupRoleMember,
		JoinedAt: s.clock.Now(),
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("add group member: %w", err)
	}
	groupEventsTotal.Add(ctx, 1)
	return nil
}

// LeaveGroup removes actorID from groupID. Not admin-gated — any member may
// leave. The repository auto-promotes a remaining admin if none remains and
// deletes the group entirely when the last member leaves.
func (s *ChatService) LeaveGroup(ctx context.Context, groupID domain.GroupID, actorID domain.DeviceID) error {
	ctx, span := tracer.Start(ctx, "chat.LeaveGroup")
	defer span.End()

	if _, err := s.groups.FindMember(ctx, groupID, actorID); err != nil {
		return fmt.Errorf("lookup membership: %w", err)
	}
	if err := s.groups.RemoveMember(ctx, groupID, actorID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("remove group member: %w", err)
	}
	groupEventsTotal.Add(ctx, 1)
	return nil
}

// RotateGroupKeyParams are the inputs to a group key rotation.
type RotateGroupKeyParams struct {
	GroupID domain.GroupID
	ActorID domain.DeviceID
	KeyFP   string
}

// RotateGroupKey bumps the group's key_version and journals the rotation.
// Admin-gated.
func (s *ChatService) RotateGroupKey(ctx context.Context, p RotateGroupKeyParams) (int, error) {
	ctx, span := tracer.Start(ctx, "chat.RotateGroupKey")
	defer span.End()

	if err := s.requireAdmin(ctx, p.GroupID, p.ActorID); err != nil {
		return 0, err
	}
	version, err := s.groups.BumpKeyVersion(ctx, p.GroupID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("bump group key version: %w", err)
	}
	if err := s.groups.RecordKeyEvent(ctx, chatdomain.GroupKeyEvent{
		GroupID:   p.GroupID,
		Version:   version,
		ActorID:   p.ActorID,
		KeyFP:     p.KeyFP,
		CreatedAt: s.clock.Now(),
	}); err != nil {
		return 0, fmt.Errorf("record group key event: %w", err)
	}
	groupEventsTotal.Add(ctx, 1)
	return version, nil
}

// SendGroupParams are the inputs to a sealed-sender group send.
type SendGroupParams struct {
	GroupID         domain.GroupID
	SenderID        domain.DeviceID
	ProtocolVersion domain.ProtocolVersion
	NonceB64        string
	BoxB64          string
	SenderHint      string
}

// SendGroupMessage mirrors SendDirect's invariants (sealed-sender, protocol
// enablement, downgrade guard) but requires membership and checks the
// downgrade guard against every v2_only member plus any global group
// v2-only policy.
func (s *ChatService) SendGroupMessage(ctx context.Context, p SendGroupParams) (*chatdomain.GroupMessage, error) {
	ctx, span := tracer.Start(ctx, "chat.SendGroupMessage")
	defer span.End()

	if !domain.IsValidProtocolVersion(p.ProtocolVersion) {
		return nil, fmt.Errorf("unknown protocol_version: %w", domain.ErrInvalidInput)
	}
	if _, err := s.groups.FindMember(ctx, p.GroupID, p.SenderID); err != nil {
		return nil, fmt.Errorf("lookup sender membership: %w", err)
	}
	if err := s.checkWriteEnablement(ctx, p.ProtocolVersion); err != nil {
		return nil, err
	}
	if err := s.checkGroupDowngradeGuard(ctx, p.GroupID, p.ProtocolVersion); err != nil {
		return nil, err
	}

	msg := chatdomain.GroupMessage{
		ID:              domain.GenerateMessageID(),
		GroupID:         p.GroupID,
		SenderID:        p.SenderID,
		ProtocolVersion: p.ProtocolVersion,
		NonceB64:        p.NonceB64,
		BoxB64:          p.BoxB64,
		SenderHint:      p.SenderHint,
		CreatedAt:       s.clock.Now(),
	}
	stored, err := s.messages.InsertGroupMessage(ctx, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("insert group message: %w", err)
	}
	messagesAcceptedTotal.Add(ctx, 1)

	if recipients := s.otherMemberDeviceIDs(ctx, p.GroupID, p.SenderID); len(recipients) > 0 {
		s.notifyWakeupAsync(recipients)
	}
	return &stored, nil
}

func (s *ChatService) checkGroupDowngradeGuard(ctx context.Context, groupID domain.GroupID, v domain.ProtocolVersion) error {
	if v != domain.ProtocolV1Legacy && !s.protocol.GroupV2OnlyGlobal {
		return nil
	}
	members, err := s.groups.ListMembers(ctx, groupID)
	if err != nil {
		return fmt.Errorf("list group members: %w", err)
	}
	for _, m := range members {
		state, err := s.keyBundles.FindProtocolState(ctx, m.DeviceID)
		if err != nil && !domain.IsNotFound(err) {
			continue
		}
		if state.V2Only && v == domain.ProtocolV1Legacy {
			protocolDowngradesTotal.Add(ctx, 1)
			s.log.Warn("chat_protocol_downgrade", "group_id", groupID.String(), "device_id", m.DeviceID.String())
			return fmt.Errorf("v1_legacy group send rejected by v2_only member policy: %w", domain.ErrProtocolDowngrade)
		}
		if s.protocol.GroupV2OnlyGlobal && v != domain.ProtocolV2Libsignal {
			return fmt.Errorf("group requires v2-only policy: %w", domain.ErrProtocolDowngrade)
		}
	}
	return nil
}

func (s *ChatService) otherMemberDeviceIDs(ctx context.Context, groupID domain.GroupID, exclude domain.DeviceID) []domain.DeviceID {
	members, err := s.groups.ListMembers(ctx, groupID)
	if err != nil {
		return nil
	}
	out := make([]domain.DeviceID, 0, len(members))
	for _, m := range members {
		if m.DeviceID != exclude {
			out = append(out, m.DeviceID)
		}
	}
	return out
}

// GroupInboxParams are the inputs to a group inbox fetch.
type GroupInboxParams struct {
	GroupID  domain.GroupID
	DeviceID domain.DeviceID
	Since    time.Time
	Limit    int
}

// GroupInbox returns recent group messages for a member, same cursor and
// v1-hiding semantics as Inbox.
func (s *ChatService) GroupInbox(ctx context.Context, p GroupInboxParams) ([]chatdomain.GroupMessage, error) {
	ctx, span := tracer.Start(ctx, "chat.GroupInbox")
	defer span.End()

	if _, err := s.groups.FindMember(ctx, p.GroupID, p.DeviceID); err != nil {
		return nil, fmt.Errorf("lookup membership: %w", err)
	}
	limit := p.Limit
	if limit <= 0 || limit > s.inboxDefaultLimit {
		limit = s.inboxDefaultLimit
	}
	rows, err := s.messages.GroupInbox(ctx, p.GroupID, p.DeviceID, p.Since, limit, s.clock.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("fetch group inbox: %w", err)
	}
	state, err := s.keyBundles.FindProtocolState(ctx, p.DeviceID)
	if err != nil && !domain.IsNotFound(err) {
		return nil, fmt.Errorf("lookup viewer protocol state: %w", err)
	}
	out := make([]chatdomain.GroupMessage, 0, len(rows))
	for _, m := range rows {
		if state.V2Only && m.ProtocolVersion == domain.ProtocolV1Legacy {
			continue
		}
		m.SenderHint = ""
		out = append(out, m)
	}
	return out, nil
}
