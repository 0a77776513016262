package port

import "net/http"

// RegisterRoutes mounts every BFF-facing route on mux using the stdlib
// ServeMux's method+pattern matching (Go 1.22+). Route dispatch is the one
// piece of the external routing layer this repo must still wire
// up to produce a runnable service; the handlers themselves hold all the
// actual logic, including session resolution and ownership guards.
func (h *GatewayHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /accounts", h.CreateAccountProxy)
	mux.HandleFunc("POST /device-login/redeem", h.DeviceLoginRedeemProxy)
	mux.HandleFunc("POST /logout", h.Logout)

	mux.HandleFunc("POST /messages/direct", h.ChatSendDirect)

	mux.HandleFunc("GET /wallets/{wallet_id}", func(w http.ResponseWriter, r *http.Request) {
		h.WalletProxy(w, r, r.PathValue("wallet_id"))
	})
	mux.HandleFunc("POST /wallets/{wallet_id}", func(w http.ResponseWriter, r *http.Request) {
		h.WalletProxy(w, r, r.PathValue("wallet_id"))
	})

	mux.HandleFunc("GET /operators", h.OperatorListProxy)
}
