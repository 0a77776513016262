package port

import (
	"crypto/subtle"
	"net/http"

	"github.com/shamell/shamell/internal/domain"
)

// internalSessionRequest carries the raw session token the BFF extracted
// from the client's cookie; it never reaches this process any other way.
type internalSessionRequest struct {
	SessionToken string `json:"session_token"`
}

type internalSessionResponse struct {
	AccountID string `json:"account_id"`
	Phone     string `json:"phone,omitempty"`
	DeviceID  string `json:"device_id"`
}

// ValidateSession resolves a raw session token into the principal the BFF
// attaches to the request context. Requires X-Internal-Secret; this route
// is never exposed past the gateway's own network boundary.
func (h *AuthHandler) ValidateSession(w http.ResponseWriter, r *http.Request) {
	if !h.checkInternalSecret(w, r) {
		return
	}
	var req internalSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sess, err := h.svc.ValidateSession(r.Context(), req.SessionToken)
	if err != nil {
		writeError(w, err)
		return
	}
	acct, err := h.svc.FindAccount(r.Context(), sess.AccountID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, internalSessionResponse{AccountID: acct.AccountID.String(), Phone: acct.Phone, DeviceID: sess.DeviceID})
}

type hasContactEdgeRequest struct {
	OwnerAccountID   string `json:"owner_account_id"`
	PeerChatDeviceID string `json:"peer_chat_device_id"`
}

type hasContactEdgeResponse struct {
	Edge bool `json:"edge"`
}

// HasContactEdge reports whether the given account has an established
// ChatContact edge to the given chat device. Requires X-Internal-Secret.
func (h *AuthHandler) HasContactEdge(w http.ResponseWriter, r *http.Request) {
	if !h.checkInternalSecret(w, r) {
		return
	}
	var req hasContactEdgeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ownerID, err := domain.NewAccountID(req.OwnerAccountID)
	if err != nil {
		writeError(w, err)
		return
	}
	ok, err := h.svc.HasContactEdge(r.Context(), ownerID, req.PeerChatDeviceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hasContactEdgeResponse{Edge: ok})
}

// checkInternalSecret enforces the X-Internal-Secret binding between the
// Auth core's internal-only routes and their one trusted caller, the BFF
// gateway: a missing or mismatched header gets an opaque 403, compared in
// constant time so the check leaks no timing signal about the secret.
func (h *AuthHandler) checkInternalSecret(w http.ResponseWriter, r *http.Request) bool {
	if h.internalToken == "" {
		return true
	}
	got := r.Header.Get("X-Internal-Secret")
	if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.internalToken)) != 1 {
		writeError(w, domain.ErrForbidden)
		return false
	}
	return true
}
