package port

import (
	"net/http"

	chatdomain "github.com/shamell/shamell/internal/chat/domain"
)

type issueMailboxResponse struct {
	Token string `json:"token"`
}

// IssueMailbox generates a fresh mailbox token bound to the caller's device.
// Requires X-Chat-Device-Id.
func (h *ChatHandler) IssueMailbox(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireDevice(w, r)
	if !ok {
		return
	}
	result, err := h.svc.IssueMailbox(r.Context(), ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issueMailboxResponse{Token: result.RawToken})
}

type writeMailboxRequest struct {
	Token       string `json:"token"`
	EnvelopeB64 string `json:"envelope_b64"`
	SenderHint  string `json:"sender_hint,omitempty"`
}

// WriteMailbox drops an opaque envelope into an active mailbox. The token is
// a bearer credential carried in the request body, not a header, since the
// writer need not be a registered device.
func (h *ChatHandler) WriteMailbox(w http.ResponseWriter, r *http.Request) {
	var req writeMailboxRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.WriteMailbox(r.Context(), req.Token, req.EnvelopeB64, req.SenderHint); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type pollMailboxRequest struct {
	Token string `json:"token"`
}

type mailboxMessageResponse struct {
	ID          string `json:"id"`
	EnvelopeB64 string `json:"envelope_b64"`
	SenderHint  string `json:"sender_hint,omitempty"`
	CreatedAt   int64  `json:"created_at"`
}

func mailboxMessageResponseOf(m *chatdomain.MailboxMessage) mailboxMessageResponse {
	return mailboxMessageResponse{
		ID: m.ID.String(), EnvelopeB64: m.EnvelopeB64, SenderHint: m.SenderHint, CreatedAt: m.CreatedAt.Unix(),
	}
}

// PollMailbox requires token+owner match and returns unconsumed envelopes,
// marking them consumed. Requires X-Chat-Device-Id.
func (h *ChatHandler) PollMailbox(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireDevice(w, r)
	if !ok {
		return
	}
	var req pollMailboxRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rows, err := h.svc.PollMailbox(r.Context(), req.Token, ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]mailboxMessageResponse, 0, len(rows))
	for i := range rows {
		out = append(out, mailboxMessageResponseOf(&rows[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

type rotateMailboxRequest struct {
	OldToken string `json:"old_token"`
}

type rotateMailboxResponse struct {
	Token string `json:"token"`
}

// RotateMailbox atomically deactivates the old token and issues a new one.
// Requires X-Chat-Device-Id.
func (h *ChatHandler) RotateMailbox(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.requireDevice(w, r)
	if !ok {
		return
	}
	var req rotateMailboxRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.svc.RotateMailbox(r.Context(), req.OldToken, ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rotateMailboxResponse{Token: result.RawToken})
}
