package port

import (
	"net/http"

	chatapp "github.com/shamell/shamell/internal/chat/app"
	chatdomain "github.com/shamell/shamell/internal/chat/domain"
	"github.com/shamell/shamell/internal/domain"
)

type createGroupRequest struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

type groupResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CreatorID  string `json:"creator_id"`
	KeyVersion int    `json:"key_version"`
	Avatar     string `json:"avatar,omitempty"`
	CreatedAt  int64  `json:"created_at"`
}

func groupResponseOf(g *chatdomain.Group) groupResponse {
	return groupResponse{
		ID: g.ID.String(), Name: g.Name, CreatorID: g.CreatorID.String(),
		KeyVersion: g.KeyVersion, Avatar: g.Avatar, CreatedAt: g.CreatedAt.Unix(),
	}
}

// CreateGroup creates a group with the caller as its first admin member.
// Requires X-Chat-Device-Id.
func (h *ChatHandler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	creatorID, ok := h.requireDevice(w, r)
	if !ok {
		return
	}
	var req createGroupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	g, err := h.svc.CreateGroup(r.Context(), chatapp.CreateGroupParams{
		Name: req.Name, CreatorID: creatorID, Avatar: req.Avatar,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groupResponseOf(g))
}

type updateGroupRequest struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// UpdateGroup changes a group's name/avatar. Admin-gated, requires
// X-Chat-Device-Id.
func (h *ChatHandler) UpdateGroup(w http.ResponseWriter, r *http.Request, rawGroupID string) {
	actorID, ok := h.requireDevice(w, r)
	if !ok {
		return
	}
	groupID, err := domain.NewGroupID(rawGroupID)
	if err != nil {
		writeError(w, err)
		return
	}
	var req updateGroupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.UpdateGroup(r.Context(), chatapp.UpdateGroupParams{
		GroupID: groupID, ActorID: actorID, Name: req.Name, Avatar: req.Avatar,
	}); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type changeRoleRequest struct {
	TargetID string `json:"target_id"`
	Role     string `json:"role"`
}

// ChangeRole promotes or demotes a member. Admin-gated, requires
// X-Chat-Device-Id.
func (h *ChatHandler) ChangeRole(w http.ResponseWriter, r *http.Request, rawGroupID string) {
	actorID, ok := h.requireDevice(w, r)
	if !ok {
		return
	}
	groupID, err := domain.NewGroupID(rawGroupID)
	if err != nil {
		writeError(w, err)
		return
	}
	var req changeRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	targetID, err := domain.NewDeviceID(req.TargetID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.svc.ChangeRole(r.Context(), chatapp.ChangeRoleParams{
		GroupID: groupID, ActorID: actorID, TargetID: targetID, Role: domain.GroupRole(req.Role),
	}); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type inviteMemberRequest struct {
	InviteeID string `json:"invitee_id"`
}

// InviteMember adds a device to a group with the default member role.
// Admin-gated, requires X-Chat-Device-Id.
func (h *ChatHandler) InviteMember(w http.ResponseWriter, r *http.Request, rawGroupID string) {
	actorID, ok := h.requireDevice(w, r)
	if !ok {
		return
	}
	groupID, err := domain.NewGroupID(rawGroupID)
	if err != nil {
		writeError(w, err)
		return
	}
	var req inviteMemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	inviteeID, err := domain.NewDeviceID(req.InviteeID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.svc.InviteMember(r.Context(), chatapp.InviteMemberParams{
		GroupID: groupID, ActorID: actorID, InviteeID: inviteeID,
	}); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LeaveGroup removes the caller from a group. Any member may leave. Requires
// X-Chat-Device-Id.
func (h *ChatHandler) LeaveGroup(w http.ResponseWriter, r *http.Request, rawGroupID string) {
	actorID, ok := h.requireDevice(w, r)
	if !ok {
		return
	}
	groupID, err := domain.NewGroupID(rawGroupID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.svc.LeaveGroup(r.Context(), groupID, actorID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type rotateGroupKeyRequest struct {
	KeyFP string `json:"key_fp"`
}

type rotateGroupKeyResponse struct {
	KeyVersion int `json:"key_version"`
}

// RotateGroupKey bumps a group's key_version and journals the rotation.
// Admin-gated, requires X-Chat-Device-Id.
func (h *ChatHandler) RotateGroupKey(w http.ResponseWriter, r *http.Request, rawGroupID string) {
	actorID, ok := h.requireDevice(w, r)
	if !ok {
		return
	}
	groupID, err := domain.NewGroupID(rawGroupID)
	if err != nil {
		writeError(w, err)
		return
	}
	var req rotateGroupKeyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	version, err := h.svc.RotateGroupKey(r.Context(), chatapp.RotateGroupKeyParams{
		GroupID: groupID, ActorID: actorID, KeyFP: req.KeyFP,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rotateGroupKeyResponse{KeyVersion: version})
}

type sendGroupRequest struct {
	ProtocolVersion string `json:"protocol_version"`
	NonceB64        string `json:"nonce_b64"`
	BoxB64          string `json:"box_b64"`
	SenderHint      string `json:"sender_hint,omitempty"`
}

type groupMessageResponse struct {
	ID              string `json:"id"`
	GroupID         string `json:"group_id"`
	ProtocolVersion string `json:"protocol_version"`
	NonceB64        string `json:"nonce_b64"`
	BoxB64          string `json:"box_b64"`
	SenderHint      string `json:"sender_hint,omitempty"`
	CreatedAt       int64  `json:"created_at"`
}

func groupMessageResponseOf(m *chatdomain.GroupMessage) groupMessageResponse {
	return groupMessageResponse{
		ID: m.ID.String(), GroupID: m.GroupID.String(), ProtocolVersion: string(m.ProtocolVersion),
		NonceB64: m.NonceB64, BoxB64: m.BoxB64, SenderHint: m.SenderHint, CreatedAt: m.CreatedAt.Unix(),
	}
}

// SendGroupMessage accepts a sealed-sender group message. Requires
// X-Chat-Device-Id.
func (h *ChatHandler) SendGroupMessage(w http.ResponseWriter, r *http.Request, rawGroupID string) {
	senderID, ok := h.requireDevice(w, r)
	if !ok {
		return
	}
	groupID, err := domain.NewGroupID(rawGroupID)
	if err != nil {
		writeError(w, err)
		return
	}
	var req sendGroupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	msg, err := h.svc.SendGroupMessage(r.Context(), chatapp.SendGroupParams{
		GroupID: groupID, SenderID: senderID, ProtocolVersion: domain.ProtocolVersion(req.ProtocolVersion),
		NonceB64: req.NonceB64, BoxB64: req.BoxB64, SenderHint: req.SenderHint,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groupMessageResponseOf(msg))
}

// GroupInbox returns recent group messages for a member. Requires
// X-Chat-Device-Id.
func (h *ChatHandler) GroupInbox(w http.ResponseWriter, r *http.Request, rawGroupID string) {
	deviceID, ok := h.requireDevice(w, r)
	if !ok {
		return
	}
	groupID, err := domain.NewGroupID(rawGroupID)
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := h.svc.GroupInbox(r.Context(), chatapp.GroupInboxParams{
		GroupID: groupID, DeviceID: deviceID, Since: parseSinceParam(r), Limit: parseLimitParam(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]groupMessageResponse, 0, len(rows))
	for i := range rows {
		out = append(out, groupMessageResponseOf(&rows[i]))
	}
	writeJSON(w, http.StatusOK, out)
}
