package port

import "net/http"

// RegisterRoutes mounts every Auth-core route on mux using the stdlib
// ServeMux's method+pattern matching (Go 1.22+). Route dispatch is the one
// piece of the external routing layer this repo must still wire
// up to produce a runnable service; the handlers themselves hold all the
// actual logic.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/challenge", h.Challenge)
	mux.HandleFunc("POST /accounts", h.CreateAccount)

	mux.HandleFunc("POST /device-login/start", h.DeviceLoginStart)
	mux.HandleFunc("POST /device-login/approve", h.DeviceLoginApprove)
	mux.HandleFunc("POST /device-login/redeem", h.DeviceLoginRedeem)
	mux.HandleFunc("GET /device-login/qr", h.DeviceLoginQR)

	mux.HandleFunc("POST /biometric/enroll", h.BiometricEnroll)
	mux.HandleFunc("POST /biometric/login", h.BiometricLogin)

	mux.HandleFunc("POST /contact-invites", h.ContactInviteCreate)
	mux.HandleFunc("POST /contact-invites/redeem", h.ContactInviteRedeem)

	mux.HandleFunc("POST /logout", h.Logout)

	mux.HandleFunc("POST /internal/sessions/validate", h.ValidateSession)
	mux.HandleFunc("POST /internal/contact-edge", h.HasContactEdge)
}
