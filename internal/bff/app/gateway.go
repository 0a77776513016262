// Package app implements the BFF gateway's own logic: session
// cookie resolution into a principal, wallet lazy-materialization,
// ownership guards on every object path, and the sealed-sender/contact-edge
// preconditions on chat-send. It never talks HTTP directly — everything
// goes through the bffdomain.UpstreamCaller port, the uniform fan-out
// adaptor.
package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	bffdomain "github.com/shamell/shamell/internal/bff/domain"
	"github.com/shamell/shamell/internal/domain"
	"github.com/shamell/shamell/internal/errmap"
)

var tracer = otel.Tracer("bff/app")

var (
	sessionsResolvedTotal  metric.Int64Counter
	ownershipDeniedTotal   metric.Int64Counter
	walletsMaterializedTotal metric.Int64Counter
)

func init() {
	m := otel.Meter("bff/app")

	sessionsResolvedTotal, _ = m.Int64Counter("bff_sessions_resolved_total",
		metric.WithDescription("Session cookie resolutions by outcome"))
	ownershipDeniedTotal, _ = m.Int64Counter("security_bff_ownership_denied_total",
		metric.WithDescription("Ownership guard denials by object kind"))
	walletsMaterializedTotal, _ = m.Int64Counter("bff_wallets_materialized_total",
		metric.WithDescription("Lazy wallet materializations against Ledger"))
}

// Session cookie names. Writes always use SessionCookieName; the
// legacy name is only ever accepted for reads, and only when configured.
const (
	SessionCookieName       = "__Host-sa_session"
	LegacySessionCookieName = "sa_session"
)

// forbiddenPathChars are never allowed in a path parameter the gateway
// forwards into an upstream URL.
const forbiddenPathChars = "/\\?#%"

// Config holds every dependency Gateway needs.
type Config struct {
	Upstream bffdomain.UpstreamCaller
	Clock    domain.Clock
	Log      *slog.Logger

	AcceptLegacySessionCookie bool
	ExposeUpstreamErrors      bool
	ChatEnforceContactEdge    bool
}

// Gateway implements the BFF's stateless per-request logic. It holds no
// per-request state itself (in-memory state is limited to config and
// pool/client handles), only the shared upstream caller and policy flags.
type Gateway struct {
	upstream bffdomain.UpstreamCaller
	clock    domain.Clock
	log      *slog.Logger

	acceptLegacyCookie   bool
	exposeUpstreamErrors bool
	chatEnforceContactEdge bool
}

// NewGateway constructs a Gateway from cfg.
func NewGateway(cfg Config) *Gateway {
	return &Gateway{
		upstream:               cfg.Upstream,
		clock:                  cfg.Clock,
		log:                    cfg.Log,
		acceptLegacyCookie:     cfg.AcceptLegacySessionCookie,
		exposeUpstreamErrors:   cfg.ExposeUpstreamErrors,
		chatEnforceContactEdge: cfg.ChatEnforceContactEdge,
	}
}

// ChatEnforceContactEdge reports whether the contact-edge precondition is
// enforced on first-contact direct sends (config knob).
func (g *Gateway) ChatEnforceContactEdge() bool { return g.chatEnforceContactEdge }

// ExtractSessionToken reads the raw session token from the request's
// cookies, preferring the __Host- prefixed name and falling back to the
// legacy name only when configured to accept it.
func (g *Gateway) ExtractSessionToken(r *http.Request) string {
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if g.acceptLegacyCookie {
		if c, err := r.Cookie(LegacySessionCookieName); err == nil && c.Value != "" {
			return c.Value
		}
	}
	return ""
}

// IssueSessionCookie writes the __Host-sa_session cookie.
// Writes always use the __Host- name regardless of AcceptLegacySessionCookie.
func (g *Gateway) IssueSessionCookie(w http.ResponseWriter, rawToken string, expiresAtUnix int64) {
	maxAge := int(expiresAtUnix - g.clock.Now().Unix())
	if maxAge < 0 {
		maxAge = 0
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    rawToken,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookies clears both the current and legacy cookie names on
// logout.
func (g *Gateway) ClearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{SessionCookieName, LegacySessionCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name: name, Value: "", Path: "/", MaxAge: -1,
			HttpOnly: true, Secure: true, SameSite: http.SameSiteLaxMode,
		})
	}
}

// ResolveSession resolves a raw session token into the downstream principal
// by calling Auth's internal ValidateSession route. Cache-Control: no-store
// is the caller's responsibility to stamp on the outer response.
func (g *Gateway) ResolveSession(ctx context.Context, rawToken string) (*bffdomain.Principal, error) {
	ctx, span := tracer.Start(ctx, "bff.resolve_session")
	defer span.End()

	if rawToken == "" {
		sessionsResolvedTotal.Add(ctx, 1)
		return nil, domain.ErrUnauthorized
	}

	var resp struct {
		AccountID string `json:"account_id"`
		Phone     string `json:"phone,omitempty"`
		DeviceID  string `json:"device_id"`
	}
	if err := g.callJSON(ctx, bffdomain.UpstreamAuth, http.MethodPost, "/internal/sessions/validate",
		map[string]string{"session_token": rawToken}, &resp); err != nil {
		return nil, err
	}

	sessionsResolvedTotal.Add(ctx, 1)
	return &bffdomain.Principal{AccountID: resp.AccountID, Phone: resp.Phone, DeviceID: resp.DeviceID}, nil
}

// EnsureWallet lazily materializes the principal's wallet by calling
// Ledger's POST /users, idempotent on the account_id unique constraint, and
// stamps p.WalletID with the result.
func (g *Gateway) EnsureWallet(ctx context.Context, p *bffdomain.Principal) error {
	ctx, span := tracer.Start(ctx, "bff.ensure_wallet")
	defer span.End()

	var resp struct {
		WalletID string `json:"wallet_id"`
	}
	if err := g.callJSON(ctx, bffdomain.UpstreamLedger, http.MethodPost, "/users",
		map[string]string{"account_id": p.AccountID, "phone": p.Phone}, &resp); err != nil {
		return err
	}
	p.WalletID = resp.WalletID
	walletsMaterializedTotal.Add(ctx, 1)
	return nil
}

// HasContactEdge asks Auth whether ownerAccountID has an established
// ChatContact edge to peerChatDeviceID (the first-contact
// precondition for chat-send).
func (g *Gateway) HasContactEdge(ctx context.Context, ownerAccountID, peerChatDeviceID string) (bool, error) {
	var resp struct {
		Edge bool `json:"edge"`
	}
	if err := g.callJSON(ctx, bffdomain.UpstreamAuth, http.MethodPost, "/internal/contact-edge",
		map[string]string{"owner_account_id": ownerAccountID, "peer_chat_device_id": peerChatDeviceID}, &resp); err != nil {
		return false, err
	}
	return resp.Edge, nil
}

// ValidatePathParam rejects any path segment carrying a character that
// could alter the upstream URL's route shape.
func ValidatePathParam(raw string) error {
	if raw == "" {
		return domain.ErrEmptyID
	}
	if strings.ContainsAny(raw, forbiddenPathChars) {
		return fmt.Errorf("path parameter %q contains a forbidden character: %w", raw, domain.ErrInvalidInput)
	}
	return nil
}

// VerifyOwnsWallet enforces that walletID belongs to the principal, unless
// isAdmin grants a bypass. Every wallet-scoped route (wallet_id,
// favorite_id's owner wallet, payment-request endpoints) funnels through
// this one check.
func (g *Gateway) VerifyOwnsWallet(ctx context.Context, p *bffdomain.Principal, walletID string, isAdmin bool) error {
	if isAdmin {
		return nil
	}
	if p.WalletID == "" || walletID == "" || p.WalletID != walletID {
		ownershipDeniedTotal.Add(ctx, 1)
		return domain.ErrForbidden
	}
	return nil
}

// CheckChatSendPreconditions enforces the chat-send guards: the
// request must declare sealed_sender=true, the caller must present an
// X-Chat-Device-Id that the session owns, and — when ChatEnforceContactEdge
// is on — an established contact edge to the recipient is required.
func (g *Gateway) CheckChatSendPreconditions(ctx context.Context, p *bffdomain.Principal, sealedSender bool, callerDeviceID, recipientDeviceID string) error {
	if !sealedSender {
		return domain.ErrSealedSenderRequired
	}
	if p.DeviceID == "" || callerDeviceID == "" || p.DeviceID != callerDeviceID {
		return domain.ErrForbidden
	}
	if g.chatEnforceContactEdge {
		ok, err := g.HasContactEdge(ctx, p.AccountID, recipientDeviceID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrForbidden
		}
	}
	return nil
}

// RedactWalletID strips the wallet_id field from a JSON object or array of
// objects. Used on operator list/search responses, which must
// never surface an operator's wallet_id to a non-owning caller.
func RedactWalletID(body []byte) []byte {
	var asArray []map[string]any
	if err := json.Unmarshal(body, &asArray); err == nil {
		for _, obj := range asArray {
			delete(obj, "wallet_id")
		}
		out, err := json.Marshal(asArray)
		if err == nil {
			return out
		}
		return body
	}

	var asObject map[string]any
	if err := json.Unmarshal(body, &asObject); err != nil {
		return body
	}
	delete(asObject, "wallet_id")
	out, err := json.Marshal(asObject)
	if err != nil {
		return body
	}
	return out
}

// SanitizedUpstreamError converts a non-2xx upstream response into the
// HTTP error envelope clients see, generic ("<service> upstream error")
// unless ExposeUpstreamErrors is set (never true in production).
func (g *Gateway) SanitizedUpstreamError(upstream bffdomain.Upstream, resp *bffdomain.CallResponse) errmap.HTTPError {
	if g.exposeUpstreamErrors {
		return errmap.HTTPError{StatusCode: resp.StatusCode, Code: "UPSTREAM_ERROR", Message: string(resp.Body)}
	}
	return errmap.HTTPError{
		StatusCode: resp.StatusCode,
		Code:       "UPSTREAM_ERROR",
		Message:    fmt.Sprintf("%s upstream error", upstream),
	}
}

// Call exposes the raw fan-out call for handlers doing a passthrough
// proxy (body not interpreted by the gateway beyond redaction/sanitization).
func (g *Gateway) Call(ctx context.Context, upstream bffdomain.Upstream, req bffdomain.CallRequest) (*bffdomain.CallResponse, error) {
	return g.upstream.Call(ctx, upstream, req)
}

// callJSON is the gateway's own-logic helper for calling an internal
// upstream route and decoding a JSON response, used by ResolveSession,
// EnsureWallet, and HasContactEdge. A non-2xx response maps to a domain
// sentinel rather than leaking upstream detail, since these are
// gateway-internal calls, not client-facing proxies.
func (g *Gateway) callJSON(ctx context.Context, upstream bffdomain.Upstream, method, path string, in any, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", upstream, err)
	}

	resp, err := g.upstream.Call(ctx, upstream, bffdomain.CallRequest{
		Method: method,
		Path:   path,
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   body,
	})
	if err != nil {
		return err
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized:
		return domain.ErrUnauthorized
	case resp.StatusCode == http.StatusForbidden:
		return domain.ErrForbidden
	case resp.StatusCode >= 400:
		return domain.ErrUpstream
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(bytes.NewReader(resp.Body)).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", upstream, err)
	}
	return nil
}
