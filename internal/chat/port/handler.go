// Package port translates plain HTTP requests into Chat-core app-layer
// calls and maps results back onto the wire, the same translation-layer
// discipline as internal/auth/port.
package port

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	chatapp "github.com/shamell/shamell/internal/chat/app"
	chatdomain "github.com/shamell/shamell/internal/chat/domain"
	"github.com/shamell/shamell/internal/domain"
	"github.com/shamell/shamell/internal/errmap"
)

// chatService is a narrow, consumer-defined interface for the subset of
// ChatService operations the handler requires. *chatapp.ChatService
// satisfies it.
type chatService interface {
	RegisterDevice(ctx context.Context, p chatapp.RegisterDeviceParams) (*chatapp.RegisterDeviceResult, error)
	RegisterKeys(ctx context.Context, p chatapp.RegisterKeysParams) error
	UploadPrekeys(ctx context.Context, p chatapp.UploadPrekeysParams) error
	GetKeyBundle(ctx context.Context, deviceID domain.DeviceID) (*chatdomain.KeyBundle, error)

	SendDirect(ctx context.Context, p chatapp.SendDirectParams) (*chatdomain.DirectMessage, error)
	Inbox(ctx context.Context, p chatapp.InboxParams) ([]chatdomain.DirectMessage, error)

	CreateGroup(ctx context.Context, p chatapp.CreateGroupParams) (*chatdomain.Group, error)
	UpdateGroup(ctx context.Context, p chatapp.UpdateGroupParams) error
	ChangeRole(ctx context.Context, p chatapp.ChangeRoleParams) error
	InviteMember(ctx context.Context, p chatapp.InviteMemberParams) error
	LeaveGroup(ctx context.Context, groupID domain.GroupID, actorID domain.DeviceID) error
	RotateGroupKey(ctx context.Context, p chatapp.RotateGroupKeyParams) (int, error)
	SendGroupMessage(ctx context.Context, p chatapp.SendGroupParams) (*chatdomain.GroupMessage, error)
	GroupInbox(ctx context.Context, p chatapp.GroupInboxParams) ([]chatdomain.GroupMessage, error)

	IssueMailbox(ctx context.Context, ownerDeviceID domain.DeviceID) (*chatapp.IssueMailboxResult, error)
	WriteMailbox(ctx context.Context, rawToken, envelopeB64, senderHint string) error
	PollMailbox(ctx context.Context, rawToken string, ownerDeviceID domain.DeviceID) ([]chatdomain.MailboxMessage, error)
	RotateMailbox(ctx context.Context, oldRawToken string, ownerDeviceID domain.DeviceID) (*chatapp.RotateMailboxResult, error)
}

// ChatHandler exposes the Chat core's use cases over plain HTTP+JSON.
// Routing (method/path dispatch) is an external collaborator's concern per
// each exported method here is the terminal handler for one route.
type ChatHandler struct {
	svc chatService
}

// NewChatHandler creates a ChatHandler backed by the given ChatService.
func NewChatHandler(svc *chatapp.ChatService) *ChatHandler {
	return &ChatHandler{svc: svc}
}

type registerDeviceRequest struct {
	DeviceID     string `json:"device_id"`
	PublicKeyB64 string `json:"public_key_b64"`
	Name         string `json:"name,omitempty"`
}

type registerDeviceResponse struct {
	DeviceID   string `json:"device_id"`
	KeyVersion int    `json:"key_version"`
	AuthToken  string `json:"auth_token,omitempty"`
	Rotated    bool   `json:"rotated"`
}

// RegisterDevice performs first-registration or re-registration, requiring
// X-Chat-Device-Token on re-registration.
func (h *ChatHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req registerDeviceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	deviceID, err := domain.NewDeviceID(req.DeviceID)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := h.svc.RegisterDevice(r.Context(), chatapp.RegisterDeviceParams{
		DeviceID:          deviceID,
		PublicKeyB64:      req.PublicKeyB64,
		Name:              req.Name,
		ExistingAuthToken: r.Header.Get("X-Chat-Device-Token"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, registerDeviceResponse{
		DeviceID:   result.Device.ID.String(),
		KeyVersion: result.Device.KeyVersion,
		AuthToken:  result.AuthToken,
		Rotated:    result.Rotated,
	})
}

type registerKeysRequest struct {
	IdentityKeyB64        string `json:"identity_key_b64"`
	IdentitySigningKeyB64 string `json:"identity_signing_key_b64"`
	SignedPrekeyID        int64  `json:"signed_prekey_id"`
	SignedPrekeyB64       string `json:"signed_prekey_b64"`
	SignedPrekeySigB64    string `json:"signed_prekey_sig_b64"`
	SignedPrekeySigAlg    string `json:"signed_prekey_sig_alg"`
	V2Only                bool   `json:"v2_only"`
}

// RegisterKeys uploads a device's libsignal-style identity/signed-prekey
// bundle. Requires X-Chat-Device-Id.
func (h *ChatHandler) RegisterKeys(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := h.requireDevice(w, r)
	if !ok {
		return
	}
	var req registerKeysRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.RegisterKeys(r.Context(), chatapp.RegisterKeysParams{
		DeviceID:              deviceID,
		IdentityKeyB64:        req.IdentityKeyB64,
		IdentitySigningKeyB64: req.IdentitySigningKeyB64,
		SignedPrekeyID:        req.SignedPrekeyID,
		SignedPrekeyB64:       req.SignedPrekeyB64,
		SignedPrekeySigB64:    req.SignedPrekeySigB64,
		SignedPrekeySigAlg:    req.SignedPrekeySigAlg,
		V2Only:                req.V2Only,
	}); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type uploadPrekeysRequest struct {
	Prekeys []uploadPrekeyWire `json:"prekeys"`
}

type uploadPrekeyWire struct {
	KeyID  int64  `json:"key_id"`
	KeyB64 string `json:"key_b64"`
}

// UploadPrekeys accepts a fresh batch of one-time prekeys. Requires
// X-Chat-Device-Id.
func (h *ChatHandler) UploadPrekeys(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := h.requireDevice(w, r)
	if !ok {
		return
	}
	var req uploadPrekeysRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	prekeys := make([]chatapp.UploadPrekey, 0, len(req.Prekeys))
	for _, p := range req.Prekeys {
		prekeys = append(prekeys, chatapp.UploadPrekey{KeyID: p.KeyID, KeyB64: p.KeyB64})
	}
	if err := h.svc.UploadPrekeys(r.Context(), chatapp.UploadPrekeysParams{DeviceID: deviceID, Prekeys: prekeys}); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type keyBundleResponse struct {
	DeviceID         string `json:"device_id"`
	IdentityKeyB64   string `json:"identity_key_b64"`
	SignedPrekeyID   int64  `json:"signed_prekey_id"`
	SignedPrekeyB64  string `json:"signed_prekey_b64"`
	SignedPrekeySig  string `json:"signed_prekey_sig_b64"`
	OneTimePrekeyID  *int64 `json:"one_time_prekey_id"`
	OneTimePrekeyB64 string `json:"one_time_prekey_b64,omitempty"`
}

// GetKeyBundle fetches and atomically consumes one one-time prekey for the
// device named in the path. Returns an opaque 404 on any strict-v2 policy
// violation, never disclosing which precondition failed.
func (h *ChatHandler) GetKeyBundle(w http.ResponseWriter, r *http.Request, targetDeviceID string) {
	deviceID, err := domain.NewDeviceID(targetDeviceID)
	if err != nil {
		writeError(w, domain.ErrKeyBundleUnavailable)
		return
	}
	bundle, err := h.svc.GetKeyBundle(r.Context(), deviceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, keyBundleResponse{
		DeviceID:         bundle.DeviceID.String(),
		IdentityKeyB64:   bundle.IdentityKeyB64,
		SignedPrekeyID:   bundle.SignedPrekey.KeyID,
		SignedPrekeyB64:  bundle.SignedPrekey.PublicKeyB64,
		SignedPrekeySig:  bundle.SignedPrekey.SignatureB64,
		OneTimePrekeyID:  bundle.OneTimePrekeyID,
		OneTimePrekeyB64: bundle.OneTimePrekeyB64,
	})
}

type sendDirectRequest struct {
	RecipientID     string  `json:"recipient_id"`
	SealedSender    bool    `json:"sealed_sender"`
	NonceB64        string  `json:"nonce_b64"`
	BoxB64          string  `json:"box_b64"`
	SenderPubKeyB64 string  `json:"sender_pubkey_b64"`
	SenderDHPubB64  string  `json:"sender_dh_pub_b64,omitempty"`
	ProtocolVersion string  `json:"protocol_version"`
	SenderHint      string  `json:"sender_hint,omitempty"`
	KeyID           *int64  `json:"key_id,omitempty"`
	PrevKeyID       *int64  `json:"prev_key_id,omitempty"`
}

type directMessageResponse struct {
	ID              string `json:"id"`
	ProtocolVersion string `json:"protocol_version"`
	NonceB64        string `json:"nonce_b64"`
	BoxB64          string `json:"box_b64"`
	SenderHint      string `json:"sender_hint,omitempty"`
	CreatedAt       int64  `json:"created_at"`
}

// SendDirect accepts a sealed-sender direct message. Requires X-Chat-Device-Id.
func (h *ChatHandler) SendDirect(w http.ResponseWriter, r *http.Request) {
	senderID, ok := h.requireDevice(w, r)
	if !ok {
		return
	}
	var req sendDirectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	recipientID, err := domain.NewDeviceID(req.RecipientID)
	if err != nil {
		writeError(w, err)
		return
	}
	msg, err := h.svc.SendDirect(r.Context(), chatapp.SendDirectParams{
		SenderID:        senderID,
		RecipientID:     recipientID,
		SealedSender:    req.SealedSender,
		NonceB64:        req.NonceB64,
		BoxB64:          req.BoxB64,
		SenderPubKeyB64: req.SenderPubKeyB64,
		SenderDHPubB64:  req.SenderDHPubB64,
		ProtocolVersion: domain.ProtocolVersion(req.ProtocolVersion),
		SenderHint:      req.SenderHint,
		KeyID:           req.KeyID,
		PrevKeyID:       req.PrevKeyID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, directMessageResponse{
		ID:              msg.ID.String(),
		ProtocolVersion: string(msg.ProtocolVersion),
		NonceB64:        msg.NonceB64,
		BoxB64:          msg.BoxB64,
		SenderHint:      msg.SenderHint,
		CreatedAt:       msg.CreatedAt.Unix(),
	})
}

// Inbox returns recent sealed-view direct messages for the caller's device.
// Requires X-Chat-Device-Id.
func (h *ChatHandler) Inbox(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := h.requireDevice(w, r)
	if !ok {
		return
	}
	rows, err := h.svc.Inbox(r.Context(), chatapp.InboxParams{
		DeviceID: deviceID,
		Since:    parseSinceParam(r),
		Limit:    parseLimitParam(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]directMessageResponse, 0, len(rows))
	for _, m := range rows {
		out = append(out, directMessageResponse{
			ID: m.ID.String(), ProtocolVersion: string(m.ProtocolVersion),
			NonceB64: m.NonceB64, BoxB64: m.BoxB64, SenderHint: m.SenderHint,
			CreatedAt: m.CreatedAt.Unix(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// Stream is a polling SSE source emitting the same envelopes Inbox returns,
// since a rolling cursor, with a 15-second keep-alive. It exits
// when the client disconnects or the request context is cancelled.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	deviceID, ok := h.requireDevice(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, domain.ErrUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	cursor := parseSinceParam(r)
	ticker := time.NewTicker(domain.StreamKeepAliveInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rows, err := h.svc.Inbox(ctx, chatapp.InboxParams{DeviceID: deviceID, Since: cursor, Limit: 0})
			if err != nil {
				writeSSEEvent(w, "error", errmap.ToHTTPError(err))
				flusher.Flush()
				return
			}
			if len(rows) == 0 {
				if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
					return
				}
				flusher.Flush()
				continue
			}
			for _, m := range rows {
				if m.CreatedAt.After(cursor) {
					cursor = m.CreatedAt
				}
				writeSSEEvent(w, "message", directMessageResponse{
					ID: m.ID.String(), ProtocolVersion: string(m.ProtocolVersion),
					NonceB64: m.NonceB64, BoxB64: m.BoxB64, SenderHint: m.SenderHint,
					CreatedAt: m.CreatedAt.Unix(),
				})
			}
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, event string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b)
}

func (h *ChatHandler) requireDevice(w http.ResponseWriter, r *http.Request) (domain.DeviceID, bool) {
	raw := r.Header.Get("X-Chat-Device-Id")
	deviceID, err := domain.NewDeviceID(raw)
	if err != nil {
		writeError(w, domain.ErrUnauthorized)
		return domain.DeviceID{}, false
	}
	return deviceID, true
}

func parseSinceParam(r *http.Request) time.Time {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		return time.Time{}
	}
	if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC()
	}
	return time.Time{}
}

func parseLimitParam(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, domain.ErrInvalidInput)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	httpErr := errmap.ToHTTPError(err)
	writeJSON(w, httpErr.StatusCode, httpErr)
}
