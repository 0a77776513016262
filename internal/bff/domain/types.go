// Package domain holds the BFF gateway's pure types and port interfaces:
// the principal a resolved session carries downstream, and the Upstream
// enum plus request/response shapes the Call adaptor speaks.
package domain

import "net/http"

// Principal is the identity a resolved session cookie carries downstream.
// Every ownership guard compares a path object against this.
type Principal struct {
	AccountID string
	Phone     string
	DeviceID  string // chat device id bound to the session, for X-Chat-Device-Id ownership
	WalletID  string // lazily materialized on first use, see Gateway.EnsureWallet
}

// Upstream names one of the domain services the gateway fans requests out
// to. It is the only vocabulary Call understands; adding a fourth service
// never touches more than the adaptor's one base-URL table.
type Upstream string

const (
	UpstreamAuth   Upstream = "auth"
	UpstreamChat   Upstream = "chat"
	UpstreamLedger Upstream = "ledger"
)

// String renders the upstream name the way sanitized error messages quote
// it: "auth upstream error", "chat upstream error", "ledger upstream error".
func (u Upstream) String() string { return string(u) }

// CallRequest is the uniform shape every upstream fan-out call builds,
// whether it is a handcrafted internal RPC (ValidateSession) or a raw
// passthrough of a client request body.
type CallRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// CallResponse is what Call returns after streaming the upstream body
// through the capped reader and (by the caller's choice) sanitizing it.
type CallResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Truncated  bool
}
