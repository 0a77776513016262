// Package port exposes the BFF gateway's own enforcement logic over plain
// HTTP: session resolution, ownership guards, and the chat-send
// precondition checks, wrapping a passthrough call to the owning service
// via bffapp.Gateway.Call. Routing (method/path dispatch) is an external
// concern registered in routes.go; each exported method here is the
// terminal handler for one route.
package port

import (
	"encoding/json"
	"io"
	"net/http"

	bffapp "github.com/shamell/shamell/internal/bff/app"
	bffdomain "github.com/shamell/shamell/internal/bff/domain"
	"github.com/shamell/shamell/internal/domain"
	"github.com/shamell/shamell/internal/errmap"
)

// GatewayHandler exposes the BFF gateway's use cases over plain HTTP+JSON.
type GatewayHandler struct {
	gw *bffapp.Gateway
}

// NewGatewayHandler creates a GatewayHandler backed by the given Gateway.
func NewGatewayHandler(gw *bffapp.Gateway) *GatewayHandler {
	return &GatewayHandler{gw: gw}
}

// RequireSession resolves the request's session cookie into a principal,
// writing an UNAUTHENTICATED error and returning ok=false on failure.
// Every authenticated route's handler calls this first.
func (h *GatewayHandler) RequireSession(w http.ResponseWriter, r *http.Request) (*bffdomain.Principal, bool) {
	w.Header().Set("Cache-Control", "no-store")

	token := h.gw.ExtractSessionToken(r)
	p, err := h.gw.ResolveSession(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return p, true
}

// CreateAccountProxy forwards account creation to Auth and, on success,
// translates the returned session_token into the __Host-sa_session cookie
// rather than exposing the raw token in the client-facing response body.
func (h *GatewayHandler) CreateAccountProxy(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, domain.UpstreamBodyCapBytes))
	if err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}

	resp, err := h.gw.Call(r.Context(), bffdomain.UpstreamAuth, bffdomain.CallRequest{
		Method: http.MethodPost, Path: "/accounts", Header: r.Header.Clone(), Body: body,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if resp.StatusCode >= 400 {
		writeUpstreamError(w, h.gw.SanitizedUpstreamError(bffdomain.UpstreamAuth, resp))
		return
	}

	var decoded struct {
		AccountID      string `json:"account_id"`
		ShamellID      string `json:"shamell_id"`
		SessionToken   string `json:"session_token"`
		SessionExpires int64  `json:"session_expires_at"`
	}
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		writeError(w, domain.ErrUpstream)
		return
	}

	h.gw.IssueSessionCookie(w, decoded.SessionToken, decoded.SessionExpires)
	writeJSON(w, http.StatusOK, map[string]string{
		"account_id": decoded.AccountID,
		"shamell_id": decoded.ShamellID,
	})
}

// DeviceLoginRedeemProxy forwards a new-device QR redemption to Auth and,
// on success, issues the session cookie the same way CreateAccountProxy
// does.
func (h *GatewayHandler) DeviceLoginRedeemProxy(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, domain.UpstreamBodyCapBytes))
	if err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}

	resp, err := h.gw.Call(r.Context(), bffdomain.UpstreamAuth, bffdomain.CallRequest{
		Method: http.MethodPost, Path: "/device-login/redeem", Header: r.Header.Clone(), Body: body,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if resp.StatusCode >= 400 {
		writeUpstreamError(w, h.gw.SanitizedUpstreamError(bffdomain.UpstreamAuth, resp))
		return
	}

	var decoded struct {
		AccountID      string `json:"account_id"`
		SessionToken   string `json:"session_token"`
		SessionExpires int64  `json:"session_expires_at"`
	}
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		writeError(w, domain.ErrUpstream)
		return
	}

	h.gw.IssueSessionCookie(w, decoded.SessionToken, decoded.SessionExpires)
	writeJSON(w, http.StatusOK, map[string]string{"account_id": decoded.AccountID})
}

// Logout revokes the caller's session upstream and clears both cookie
// names, regardless of whether a session was actually present.
func (h *GatewayHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := h.gw.ExtractSessionToken(r)
	if token != "" {
		_, _ = h.gw.Call(r.Context(), bffdomain.UpstreamAuth, bffdomain.CallRequest{
			Method: http.MethodPost, Path: "/logout",
			Header: http.Header{"Authorization": []string{"Bearer " + token}},
		})
	}
	h.gw.ClearSessionCookies(w)
	w.WriteHeader(http.StatusNoContent)
}

type chatSendRequest struct {
	RecipientID  string `json:"recipient_id"`
	SealedSender bool   `json:"sealed_sender"`
}

// ChatSendDirect enforces the chat-send preconditions (sealed
// sender required, X-Chat-Device-Id ownership, optional contact-edge gate)
// before forwarding the send to Chat unmodified.
func (h *GatewayHandler) ChatSendDirect(w http.ResponseWriter, r *http.Request) {
	p, ok := h.RequireSession(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, domain.UpstreamBodyCapBytes))
	if err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	var req chatSendRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}

	callerDeviceID := r.Header.Get("X-Chat-Device-Id")
	if err := h.gw.CheckChatSendPreconditions(r.Context(), p, req.SealedSender, callerDeviceID, req.RecipientID); err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.gw.Call(r.Context(), bffdomain.UpstreamChat, bffdomain.CallRequest{
		Method: http.MethodPost, Path: "/messages/direct", Header: r.Header.Clone(), Body: body,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeUpstreamPassthrough(w, bffdomain.UpstreamChat, h.gw, resp)
}

// WalletProxy forwards a wallet-scoped request after verifying the path's
// wallet_id belongs to the caller's principal (the per-object
// ownership guard).
func (h *GatewayHandler) WalletProxy(w http.ResponseWriter, r *http.Request, walletID string) {
	p, ok := h.RequireSession(w, r)
	if !ok {
		return
	}
	if err := bffapp.ValidatePathParam(walletID); err != nil {
		writeError(w, err)
		return
	}
	if err := h.gw.EnsureWallet(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}
	isAdmin, err := h.hasRole(r, p, "admin")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.gw.VerifyOwnsWallet(r.Context(), p, walletID, isAdmin); err != nil {
		writeError(w, err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, domain.UpstreamBodyCapBytes))
	if err != nil {
		writeError(w, domain.ErrInvalidInput)
		return
	}
	resp, err := h.gw.Call(r.Context(), bffdomain.UpstreamLedger, bffdomain.CallRequest{
		Method: r.Method, Path: "/wallets/" + walletID, Header: r.Header.Clone(), Body: body,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeUpstreamPassthrough(w, bffdomain.UpstreamLedger, h.gw, resp)
}

// OperatorListProxy forwards an operator search/list call and redacts
// wallet_id from every returned operator.
func (h *GatewayHandler) OperatorListProxy(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.RequireSession(w, r); !ok {
		return
	}
	resp, err := h.gw.Call(r.Context(), bffdomain.UpstreamLedger, bffdomain.CallRequest{
		Method: http.MethodGet, Path: "/operators" + queryOrEmpty(r), Header: r.Header.Clone(),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if resp.StatusCode >= 400 {
		writeUpstreamError(w, h.gw.SanitizedUpstreamError(bffdomain.UpstreamLedger, resp))
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(bffapp.RedactWalletID(resp.Body))
}

// hasRole checks the principal's role via Ledger's internal role store.
// Errors are swallowed to "not admin" since a role lookup failure should
// fail closed toward the stricter ownership check, not grant access.
func (h *GatewayHandler) hasRole(r *http.Request, p *bffdomain.Principal, role string) (bool, error) {
	resp, err := h.gw.Call(r.Context(), bffdomain.UpstreamLedger, bffdomain.CallRequest{
		Method: http.MethodGet, Path: "/internal/roles/" + p.AccountID + "/" + role, Header: r.Header.Clone(),
	})
	if err != nil || resp.StatusCode >= 400 {
		return false, nil
	}
	var decoded struct {
		HasRole bool `json:"has_role"`
	}
	if err := json.Unmarshal(resp.Body, &decoded); err != nil {
		return false, nil
	}
	return decoded.HasRole, nil
}

func queryOrEmpty(r *http.Request) string {
	if r.URL.RawQuery == "" {
		return ""
	}
	return "?" + r.URL.RawQuery
}

// writeUpstreamPassthrough relays a passthrough upstream response,
// sanitizing non-2xx bodies.
func writeUpstreamPassthrough(w http.ResponseWriter, upstream bffdomain.Upstream, gw *bffapp.Gateway, resp *bffdomain.CallResponse) {
	w.Header().Set("Cache-Control", "no-store")
	if resp.StatusCode >= 400 {
		writeUpstreamError(w, gw.SanitizedUpstreamError(upstream, resp))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
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

func writeUpstreamError(w http.ResponseWriter, httpErr errmap.HTTPError) {
	writeJSON(w, httpErr.StatusCode, httpErr)
}
