package port

import (
	"crypto/subtle"
	"net/http"

	"github.com/shamell/shamell/internal/domain"
	ledgerapp "github.com/shamell/shamell/internal/ledger/app"
	ledgerdomain "github.com/shamell/shamell/internal/ledger/domain"
)

type bookTripRequest struct {
	TripID         string `json:"trip_id"`
	WalletID       string `json:"wallet_id,omitempty"`
	CustomerPhone  string `json:"customer_phone,omitempty"`
	SeatsRequested int    `json:"seats_requested,omitempty"`
	SeatNumbers    []int  `json:"seat_numbers,omitempty"`
}

type bookingResponse struct {
	ID            string  `json:"id"`
	TripID        string  `json:"trip_id"`
	Seats         int     `json:"seats"`
	Status        string  `json:"status"`
	WalletID      *string `json:"wallet_id,omitempty"`
	CustomerPhone string  `json:"customer_phone,omitempty"`
	PaymentsTxnID *string `json:"payments_txn_id,omitempty"`
	PriceCents    int64   `json:"price_cents"`
}

// BookTrip reserves seats on a trip and, when payments are enabled, charges
// the rider's wallet in the same saga. Requires Idempotency-Key.
//
// requireInternalSecret must be true only when this deployment fronts the
// endpoint with the X-Bus-Payments-Internal-Secret binding described in
// the BFF gateway is the only trusted caller in that mode.
func (h *LedgerHandler) BookTrip(w http.ResponseWriter, r *http.Request) {
	if !h.checkInternalSecret(w, r) {
		return
	}
	var req bookTripRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tripID, err := domain.NewTripID(req.TripID)
	if err != nil {
		writeError(w, err)
		return
	}
	var walletID domain.WalletID
	if req.WalletID != "" {
		walletID, err = domain.NewWalletID(req.WalletID)
		if err != nil {
			writeError(w, err)
			return
		}
	}
	booking, err := h.svc.BookTrip(r.Context(), ledgerapp.BookTripParams{
		TripID: tripID, WalletID: walletID, CustomerPhone: req.CustomerPhone,
		SeatsRequested: req.SeatsRequested, SeatNumbers: req.SeatNumbers,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bookingResponseOf(booking))
}

type cancelBookingResponse struct {
	Booking        bookingResponse `json:"booking"`
	RefundCents    int64           `json:"refund_cents"`
	RefundCurrency string          `json:"refund_currency"`
	RefundPercent  int             `json:"refund_percent"`
}

// CancelBooking cancels a booking's unboarded tickets and issues the
// departure-proximity refund tier.
func (h *LedgerHandler) CancelBooking(w http.ResponseWriter, r *http.Request, rawBookingID string) {
	if !h.checkInternalSecret(w, r) {
		return
	}
	bookingID, err := domain.NewBookingID(rawBookingID)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := h.svc.CancelBooking(r.Context(), bookingID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelBookingResponse{
		Booking:        bookingResponseOf(&result.Booking),
		RefundCents:    result.RefundCents,
		RefundCurrency: result.RefundCurrency,
		RefundPercent:  result.RefundPercent,
	})
}

type boardTicketRequest struct {
	Payload string `json:"payload"`
}

type ticketResponse struct {
	ID        string `json:"id"`
	BookingID string `json:"booking_id"`
	TripID    string `json:"trip_id"`
	SeatNo    int    `json:"seat_no"`
	Status    string `json:"status"`
}

// BoardTicket validates a scanned boarding-pass payload and marks the
// ticket boarded.
func (h *LedgerHandler) BoardTicket(w http.ResponseWriter, r *http.Request) {
	if !h.checkInternalSecret(w, r) {
		return
	}
	var req boardTicketRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	t, err := h.svc.BoardTicket(r.Context(), req.Payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ticketResponse{ID: t.ID.String(), BookingID: t.BookingID.String(), TripID: t.TripID.String(), SeatNo: t.SeatNo, Status: string(t.Status)})
}

// checkInternalSecret enforces the X-Bus-Payments-Internal-Secret binding
// between the Booking surface and its one trusted caller: a
// missing or mismatched header gets an opaque 403, via constant-time
// comparison so the check itself leaks no timing signal about the secret.
func (h *LedgerHandler) checkInternalSecret(w http.ResponseWriter, r *http.Request) bool {
	if h.internalToken == "" {
		return true
	}
	got := r.Header.Get("X-Bus-Payments-Internal-Secret")
	if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.internalToken)) != 1 {
		writeError(w, domain.ErrForbidden)
		return false
	}
	return true
}

func bookingResponseOf(b *ledgerdomain.Booking) bookingResponse {
	out := bookingResponse{
		ID: b.ID.String(), TripID: b.TripID.String(), Seats: b.Seats, Status: string(b.Status),
		CustomerPhone: b.CustomerPhone, PriceCents: b.PriceCents,
	}
	if b.WalletID != nil {
		s := b.WalletID.String()
		out.WalletID = &s
	}
	if b.PaymentsTxnID != nil {
		s := b.PaymentsTxnID.String()
		out.PaymentsTxnID = &s
	}
	return out
}
