package port

import "net/http"

// RegisterRoutes mounts every Ledger/Booking route on mux using the stdlib
// ServeMux's method+pattern matching (Go 1.22+). Route dispatch is the one
// piece of the external routing layer this repo must still wire
// up to produce a runnable service; the handlers themselves hold all the
// actual logic.
func (h *LedgerHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /transfers", h.Transfer)
	mux.HandleFunc("POST /topups", h.Topup)

	mux.HandleFunc("POST /payment-requests", h.CreatePaymentRequest)
	mux.HandleFunc("POST /payment-requests/{id}/accept", func(w http.ResponseWriter, r *http.Request) {
		h.AcceptPaymentRequest(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("POST /payment-requests/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
		h.CancelPaymentRequest(w, r, r.PathValue("id"))
	})

	mux.HandleFunc("GET /wallets/{wallet_id}", func(w http.ResponseWriter, r *http.Request) {
		h.GetWallet(w, r, r.PathValue("wallet_id"))
	})

	mux.HandleFunc("POST /favorites", h.CreateFavorite)
	mux.HandleFunc("GET /wallets/{owner_wallet_id}/favorites", func(w http.ResponseWriter, r *http.Request) {
		h.ListFavorites(w, r, r.PathValue("owner_wallet_id"))
	})

	mux.HandleFunc("POST /users", h.EnsureUser)

	mux.HandleFunc("POST /bookings", h.BookTrip)
	mux.HandleFunc("POST /bookings/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
		h.CancelBooking(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("POST /tickets/board", h.BoardTicket)

	mux.HandleFunc("POST /internal/roles/check", h.HasRole)
	mux.HandleFunc("GET /internal/bookings/{id}", func(w http.ResponseWriter, r *http.Request) {
		h.FindBookingInternal(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("GET /internal/payment-requests/{id}", func(w http.ResponseWriter, r *http.Request) {
		h.FindPaymentRequestInternal(w, r, r.PathValue("id"))
	})

	mux.HandleFunc("POST /cities", h.CreateCity)
	mux.HandleFunc("GET /cities", h.ListCities)

	mux.HandleFunc("POST /operators", h.RegisterOperator)
	mux.HandleFunc("GET /operators", h.ListOperators)
	mux.HandleFunc("GET /operators/{id}", func(w http.ResponseWriter, r *http.Request) {
		h.FindOperator(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("POST /operators/{id}/online", func(w http.ResponseWriter, r *http.Request) {
		h.SetOperatorOnline(w, r, r.PathValue("id"))
	})

	mux.HandleFunc("POST /routes", h.CreateRoute)
	mux.HandleFunc("GET /routes", h.ListRoutes)
	mux.HandleFunc("GET /routes/{id}", func(w http.ResponseWriter, r *http.Request) {
		h.FindRoute(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("GET /routes/{id}/trips", func(w http.ResponseWriter, r *http.Request) {
		h.SearchTrips(w, r, r.PathValue("id"))
	})

	mux.HandleFunc("POST /trips", h.PublishTrip)
	mux.HandleFunc("GET /trips/{id}", func(w http.ResponseWriter, r *http.Request) {
		h.FindTrip(w, r, r.PathValue("id"))
	})
	mux.HandleFunc("POST /trips/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
		h.CancelTrip(w, r, r.PathValue("id"))
	})
}
