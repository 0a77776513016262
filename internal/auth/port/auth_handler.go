// Package port translates plain HTTP requests into Auth-core app-layer
// calls and maps results back onto the wire, the same translation-layer
// discipline as the other cores: decode, validate, delegate, map errors.
package port

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shamell/shamell/internal/auth/app"
	authdomain "github.com/shamell/shamell/internal/auth/domain"
	"github.com/shamell/shamell/internal/domain"
	"github.com/shamell/shamell/internal/errmap"
)

// authService is a narrow, consumer-defined interface for the subset of
// AuthService operations the handler requires. *app.AuthService satisfies it.
type authService interface {
	Challenge(ctx context.Context, deviceID, clientIP string) (*app.ChallengeResult, error)
	CreateAccount(ctx context.Context, p app.CreateAccountParams) (*app.CreateAccountResult, error)
	DeviceLoginStart(ctx context.Context, label, clientIP string) (*app.DeviceLoginStartResult, error)
	DeviceLoginApprove(ctx context.Context, rawToken string, accountID domain.AccountID) error
	DeviceLoginRedeem(ctx context.Context, rawToken, deviceID string) (*app.DeviceLoginRedeemResult, error)
	ContactInviteCreate(ctx context.Context, issuerAccountID domain.AccountID, issuerChatDeviceID string, maxUses int, ttlSeconds int64) (*app.ContactInviteCreateResult, error)
	ContactInviteRedeem(ctx context.Context, rawToken string, redeemerAccountID domain.AccountID, redeemerChatDeviceID string) error
	BiometricEnroll(ctx context.Context, accountID domain.AccountID, deviceID string) (*app.BiometricEnrollResult, error)
	BiometricLogin(ctx context.Context, p app.BiometricLoginParams) (*app.BiometricLoginResult, error)
	ValidateSession(ctx context.Context, rawToken string) (authdomain.Session, error)
	Logout(ctx context.Context, rawToken string) error
	HasContactEdge(ctx context.Context, ownerAccountID domain.AccountID, peerChatDeviceID string) (bool, error)
	FindAccount(ctx context.Context, accountID domain.AccountID) (authdomain.Account, error)
}

// AuthHandler exposes the Auth core's use cases over plain HTTP+JSON.
// Routing (method/path dispatch) is registered in routes.go; each exported
// method here is the terminal handler for one route.
//
// internalToken gates the /internal/* routes the BFF gateway calls to
// resolve a session cookie into a principal and to check contact edges; it
// is never reachable with a client-presented cookie alone.
type AuthHandler struct {
	svc           authService
	internalToken string

	// trustLegacyIPHeaders permits X-Forwarded-For / X-Real-IP as a client
	// IP source. Never set in production, where only the edge-attested
	// X-Shamell-Client-IP header counts.
	trustLegacyIPHeaders bool
}

// NewAuthHandler creates an AuthHandler backed by the given AuthService.
func NewAuthHandler(svc *app.AuthService, internalToken string, trustLegacyIPHeaders bool) *AuthHandler {
	return &AuthHandler{svc: svc, internalToken: internalToken, trustLegacyIPHeaders: trustLegacyIPHeaders}
}

type challengeRequest struct {
	DeviceID string `json:"device_id"`
}

type challengeResponse struct {
	ChallengeToken        string `json:"challenge_token"`
	Nonce                 string `json:"nonce"`
	DifficultyBits        int    `json:"difficulty_bits"`
	HWAttestationNonceB64 string `json:"hw_attestation_nonce"`
	ExpiresAt             int64  `json:"expires_at"`
}

// Challenge issues a signed attestation challenge bound to the caller's
// device, rate-limited per IP and per device.
func (h *AuthHandler) Challenge(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.svc.Challenge(r.Context(), req.DeviceID, h.extractClientIP(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, challengeResponse{
		ChallengeToken:        result.ChallengeToken,
		Nonce:                 result.Nonce,
		DifficultyBits:        result.DifficultyBits,
		HWAttestationNonceB64: result.HWAttestationNonceB64,
		ExpiresAt:             result.ExpiresAt,
	})
}

type createAccountRequest struct {
	DeviceID                  string  `json:"device_id"`
	ChallengeToken            string  `json:"challenge_token"`
	PoWSolution               *uint64 `json:"pow_solution,omitempty"`
	IOSDeviceCheckTokenB64    string  `json:"ios_devicecheck_token,omitempty"`
	AndroidPlayIntegrityToken string  `json:"android_play_integrity_token,omitempty"`
}

type createAccountResponse struct {
	AccountID      string `json:"account_id"`
	ShamellID      string `json:"shamell_id"`
	SessionToken   string `json:"session_token"`
	SessionExpires int64  `json:"session_expires_at"`
}

// CreateAccount verifies PoW/attestation against the challenge and
// atomically allocates a fresh account with its first session.
func (h *AuthHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.svc.CreateAccount(r.Context(), app.CreateAccountParams{
		DeviceID:                  req.DeviceID,
		ChallengeToken:            req.ChallengeToken,
		PoWSolution:               req.PoWSolution,
		IOSDeviceCheckTokenB64:    req.IOSDeviceCheckTokenB64,
		AndroidPlayIntegrityToken: req.AndroidPlayIntegrityToken,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, createAccountResponse{
		AccountID:      result.Account.AccountID.String(),
		ShamellID:      result.Account.ShamellID.String(),
		SessionToken:   result.SessionToken,
		SessionExpires: result.SessionExpires,
	})
}

type deviceLoginStartResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// DeviceLoginStart begins the QR new-device handshake.
func (h *AuthHandler) DeviceLoginStart(w http.ResponseWriter, r *http.Request) {
	label := r.URL.Query().Get("label")
	result, err := h.svc.DeviceLoginStart(r.Context(), label, h.extractClientIP(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deviceLoginStartResponse{Token: result.RawToken, ExpiresAt: result.ExpiresAt})
}

type deviceLoginApproveRequest struct {
	Token string `json:"token"`
}

// DeviceLoginApprove binds a pending challenge to the caller's
// already-authenticated account. Requires a valid session.
func (h *AuthHandler) DeviceLoginApprove(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	var req deviceLoginApproveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.DeviceLoginApprove(r.Context(), req.Token, sess.AccountID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type deviceLoginRedeemRequest struct {
	Token    string `json:"token"`
	DeviceID string `json:"device_id"`
}

type deviceLoginRedeemResponse struct {
	AccountID      string `json:"account_id"`
	SessionToken   string `json:"session_token"`
	SessionExpires int64  `json:"session_expires_at"`
}

// DeviceLoginRedeem consumes an approved challenge and issues a session on
// the new device.
func (h *AuthHandler) DeviceLoginRedeem(w http.ResponseWriter, r *http.Request) {
	var req deviceLoginRedeemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.svc.DeviceLoginRedeem(r.Context(), req.Token, req.DeviceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deviceLoginRedeemResponse{
		AccountID:      result.AccountID.String(),
		SessionToken:   result.SessionToken,
		SessionExpires: result.SessionExpires,
	})
}

type biometricEnrollRequest struct {
	DeviceID string `json:"device_id"`
}

type biometricEnrollResponse struct {
	DeviceID string `json:"device_id"`
	Token    string `json:"token"`
	TTL      int64  `json:"ttl"`
}

// BiometricEnroll binds a biometric re-auth token to the caller's account
// and device. Requires a valid session.
func (h *AuthHandler) BiometricEnroll(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	var req biometricEnrollRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.svc.BiometricEnroll(r.Context(), sess.AccountID, req.DeviceID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, biometricEnrollResponse{
		DeviceID: result.DeviceID,
		Token:    result.RawToken,
		TTL:      result.TTLSecs,
	})
}

type biometricLoginRequest struct {
	DeviceID string `json:"device_id"`
	Token    string `json:"token"`
	Rotate   bool   `json:"rotate,omitempty"`
}

type biometricLoginResponse struct {
	AccountID    string `json:"account_id"`
	SessionToken string `json:"session_token"`
	NewToken     string `json:"new_token,omitempty"`
}

// BiometricLogin exchanges a device-bound biometric token for a session.
func (h *AuthHandler) BiometricLogin(w http.ResponseWriter, r *http.Request) {
	var req biometricLoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.svc.BiometricLogin(r.Context(), app.BiometricLoginParams{
		DeviceID: req.DeviceID,
		RawToken: req.Token,
		Rotate:   req.Rotate,
		ClientIP: h.extractClientIP(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, biometricLoginResponse{
		AccountID:    result.AccountID.String(),
		SessionToken: result.SessionToken,
		NewToken:     result.NewBiometricToken,
	})
}

type contactInviteCreateRequest struct {
	IssuerChatDeviceID string `json:"issuer_chat_device_id"`
	MaxUses            int    `json:"max_uses"`
	TTLSeconds         int64  `json:"ttl_seconds"`
}

type contactInviteCreateResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// ContactInviteCreate issues a capability token for adding a contact.
// Requires a valid session.
func (h *AuthHandler) ContactInviteCreate(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	var req contactInviteCreateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.svc.ContactInviteCreate(r.Context(), sess.AccountID, req.IssuerChatDeviceID, req.MaxUses, req.TTLSeconds)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contactInviteCreateResponse{Token: result.RawToken, ExpiresAt: result.ExpiresAt})
}

type contactInviteRedeemRequest struct {
	Token                 string `json:"token"`
	RedeemerChatDeviceID string `json:"redeemer_chat_device_id"`
}

// ContactInviteRedeem redeems a capability token, creating the bidirectional
// contact edge. Requires a valid session.
func (h *AuthHandler) ContactInviteRedeem(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.requireSession(w, r)
	if !ok {
		return
	}
	var req contactInviteRedeemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.ContactInviteRedeem(r.Context(), req.Token, sess.AccountID, req.RedeemerChatDeviceID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Logout revokes the caller's session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := extractBearerToken(r)
	if err := h.svc.Logout(r.Context(), token); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requireSession resolves the bearer token into a live session or writes an
// UNAUTHENTICATED error and returns ok=false.
func (h *AuthHandler) requireSession(w http.ResponseWriter, r *http.Request) (authdomain.Session, bool) {
	token := extractBearerToken(r)
	sess, err := h.svc.ValidateSession(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return authdomain.Session{}, false
	}
	return sess, true
}

// extractBearerToken extracts the bearer token from the Authorization
// header.
func extractBearerToken(r *http.Request) string {
	const prefix = "Bearer "
	v := r.Header.Get("Authorization")
	if strings.HasPrefix(v, prefix) {
		return v[len(prefix):]
	}
	return v
}

// extractClientIP resolves the rate-limit client IP. The edge-attested
// X-Shamell-Client-IP header always wins; the legacy X-Forwarded-For /
// X-Real-IP headers are honored only when trustLegacyIPHeaders is set
// (dev/test convenience), and RemoteAddr is the last resort.
func (h *AuthHandler) extractClientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Shamell-Client-IP")); ip != "" {
		return ip
	}
	if h.trustLegacyIPHeaders {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			if idx := strings.IndexByte(fwd, ','); idx >= 0 {
				return strings.TrimSpace(fwd[:idx])
			}
			return strings.TrimSpace(fwd)
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	host := r.RemoteAddr
	if idx := strings.LastIndexByte(host, ':'); idx >= 0 {
		return host[:idx]
	}
	return host
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
