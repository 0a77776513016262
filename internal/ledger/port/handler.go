// Package port translates plain HTTP requests into Ledger/Booking app-layer
// calls, following internal/auth/port's translation-layer discipline.
// Routing is registered separately in routes.go.
package port

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/shamell/shamell/internal/domain"
	"github.com/shamell/shamell/internal/errmap"
	ledgerapp "github.com/shamell/shamell/internal/ledger/app"
	ledgerdomain "github.com/shamell/shamell/internal/ledger/domain"
)

// ledgerService is a narrow, consumer-defined interface for the subset of
// LedgerService operations the handler requires. *ledgerapp.LedgerService
// satisfies it.
type ledgerService interface {
	Transfer(ctx context.Context, p ledgerapp.TransferParams) (*ledgerapp.WalletSnapshot, error)
	Topup(ctx context.Context, p ledgerapp.TopupParams) (*ledgerapp.WalletSnapshot, error)
	FindWallet(ctx context.Context, id domain.WalletID) (*ledgerapp.WalletSnapshot, error)

	CreatePaymentRequest(ctx context.Context, p ledgerapp.CreatePaymentRequestParams) (*ledgerdomain.PaymentRequest, error)
	AcceptPaymentRequest(ctx context.Context, id domain.PaymentRequestID, idempotencyKey string) (*ledgerapp.WalletSnapshot, error)
	CancelPaymentRequest(ctx context.Context, id domain.PaymentRequestID) error

	CreateFavorite(ctx context.Context, ownerWalletID, favoriteWalletID domain.WalletID, alias string) (*ledgerdomain.Favorite, error)
	ListFavorites(ctx context.Context, ownerWalletID domain.WalletID) ([]ledgerdomain.Favorite, error)
	EnsureUser(ctx context.Context, accountID domain.AccountID, phone string) (*ledgerdomain.User, error)

	BookTrip(ctx context.Context, p ledgerapp.BookTripParams) (*ledgerdomain.Booking, error)
	CancelBooking(ctx context.Context, bookingID domain.BookingID) (*ledgerapp.BookingCancelResult, error)
	BoardTicket(ctx context.Context, payload string) (*ledgerdomain.Ticket, error)

	FindBooking(ctx context.Context, id domain.BookingID) (*ledgerdomain.Booking, error)
	FindPaymentRequest(ctx context.Context, id domain.PaymentRequestID) (*ledgerdomain.PaymentRequest, error)
	HasRole(ctx context.Context, accountID, role string) (bool, error)

	CreateCity(ctx context.Context, name string) (*ledgerdomain.City, error)
	ListCities(ctx context.Context) ([]ledgerdomain.City, error)
	RegisterOperator(ctx context.Context, name string, walletID domain.WalletID) (*ledgerdomain.Operator, error)
	FindOperator(ctx context.Context, id domain.OperatorID) (*ledgerdomain.Operator, error)
	ListOperators(ctx context.Context) ([]ledgerdomain.Operator, error)
	SetOperatorOnline(ctx context.Context, id domain.OperatorID, online bool) error
	CreateRoute(ctx context.Context, originCityID, destCityID domain.CityID, operatorID domain.OperatorID) (*ledgerdomain.Route, error)
	FindRoute(ctx context.Context, id domain.RouteID) (*ledgerdomain.Route, error)
	ListRoutes(ctx context.Context) ([]ledgerdomain.Route, error)
	PublishTrip(ctx context.Context, t ledgerdomain.Trip) (*ledgerdomain.Trip, error)
	CancelTrip(ctx context.Context, id domain.TripID) error
	FindTrip(ctx context.Context, id domain.TripID) (*ledgerdomain.Trip, error)
	SearchTrips(ctx context.Context, routeID domain.RouteID, limit int) ([]ledgerdomain.Trip, error)
}

// LedgerHandler exposes the Ledger/Booking core's use cases over plain
// HTTP+JSON.
type LedgerHandler struct {
	svc           ledgerService
	internalToken string // binds the booking-charge path to a trusted caller
}

// NewLedgerHandler creates a LedgerHandler. internalToken gates the
// X-Bus-Payments-Internal-Secret-protected endpoints.
func NewLedgerHandler(svc *ledgerapp.LedgerService, internalToken string) *LedgerHandler {
	return &LedgerHandler{svc: svc, internalToken: internalToken}
}

type walletSnapshotResponse struct {
	WalletID     string `json:"wallet_id"`
	BalanceCents int64  `json:"balance_cents"`
	Currency     string `json:"currency"`
}

func snapshotResponse(s *ledgerapp.WalletSnapshot) walletSnapshotResponse {
	return walletSnapshotResponse{WalletID: s.WalletID.String(), BalanceCents: s.BalanceCents, Currency: s.Currency}
}

type transferRequest struct {
	FromWalletID string `json:"from_wallet_id"`
	ToWalletID   string `json:"to_wallet_id,omitempty"`
	ToAlias      string `json:"to_alias,omitempty"`
	AmountCents  int64  `json:"amount_cents"`
}

// Transfer moves funds between wallets, honoring the client-supplied
// Idempotency-Key header.
func (h *LedgerHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	fromID, err := domain.NewWalletID(req.FromWalletID)
	if err != nil {
		writeError(w, err)
		return
	}
	var toID domain.WalletID
	if req.ToWalletID != "" {
		toID, err = domain.NewWalletID(req.ToWalletID)
		if err != nil {
			writeError(w, err)
			return
		}
	}
	snap, err := h.svc.Transfer(r.Context(), ledgerapp.TransferParams{
		FromWalletID:   fromID,
		ToWalletID:     toID,
		ToAlias:        req.ToAlias,
		AmountCents:    req.AmountCents,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse(snap))
}

// GetWallet returns a wallet's current balance snapshot. The BFF gateway's
// ownership guard runs before this is ever reached.
func (h *LedgerHandler) GetWallet(w http.ResponseWriter, r *http.Request, rawWalletID string) {
	id, err := domain.NewWalletID(rawWalletID)
	if err != nil {
		writeError(w, err)
		return
	}
	snap, err := h.svc.FindWallet(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse(snap))
}

type topupRequest struct {
	WalletID    string `json:"wallet_id"`
	AmountCents int64  `json:"amount_cents"`
}

// Topup credits a wallet from the synthetic external counterparty.
func (h *LedgerHandler) Topup(w http.ResponseWriter, r *http.Request) {
	var req topupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	walletID, err := domain.NewWalletID(req.WalletID)
	if err != nil {
		writeError(w, err)
		return
	}
	snap, err := h.svc.Topup(r.Context(), ledgerapp.TopupParams{
		WalletID:       walletID,
		AmountCents:    req.AmountCents,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse(snap))
}

type createPaymentRequestRequest struct {
	FromWalletID string `json:"from_wallet_id"`
	ToWalletID   string `json:"to_wallet_id"`
	AmountCents  int64  `json:"amount_cents"`
	Currency     string `json:"currency"`
	ExpirySecs   int64  `json:"expiry_secs,omitempty"`
}

type paymentRequestResponse struct {
	ID          string  `json:"id"`
	FromWallet  string  `json:"from_wallet_id"`
	ToWallet    string  `json:"to_wallet_id"`
	AmountCents int64   `json:"amount_cents"`
	Currency    string  `json:"currency"`
	Status      string  `json:"status"`
	ExpiresAt   *int64  `json:"expires_at,omitempty"`
	ResultTxnID *string `json:"result_txn_id,omitempty"`
}

func paymentRequestResponseOf(r *ledgerdomain.PaymentRequest) paymentRequestResponse {
	out := paymentRequestResponse{
		ID: r.ID.String(), FromWallet: r.FromWalletID.String(), ToWallet: r.ToWalletID.String(),
		AmountCents: r.AmountCents, Currency: r.Currency, Status: string(r.Status),
	}
	if r.ExpiresAt != nil {
		unix := r.ExpiresAt.Unix()
		out.ExpiresAt = &unix
	}
	if r.ResultTxnID != nil {
		s := r.ResultTxnID.String()
		out.ResultTxnID = &s
	}
	return out
}

// CreatePaymentRequest records a pending request payable by the counterparty.
func (h *LedgerHandler) CreatePaymentRequest(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequestRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	fromID, err := domain.NewWalletID(req.FromWalletID)
	if err != nil {
		writeError(w, err)
		return
	}
	toID, err := domain.NewWalletID(req.ToWalletID)
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := h.svc.CreatePaymentRequest(r.Context(), ledgerapp.CreatePaymentRequestParams{
		FromWalletID: fromID, ToWalletID: toID, AmountCents: req.AmountCents, Currency: req.Currency, ExpirySecs: req.ExpirySecs,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentRequestResponseOf(out))
}

// AcceptPaymentRequest settles a payment request with the reverse transfer.
func (h *LedgerHandler) AcceptPaymentRequest(w http.ResponseWriter, r *http.Request, rawID string) {
	id, err := domain.NewPaymentRequestID(rawID)
	if err != nil {
		writeError(w, err)
		return
	}
	snap, err := h.svc.AcceptPaymentRequest(r.Context(), id, r.Header.Get("Idempotency-Key"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse(snap))
}

// CancelPaymentRequest cancels a pending payment request.
func (h *LedgerHandler) CancelPaymentRequest(w http.ResponseWriter, r *http.Request, rawID string) {
	id, err := domain.NewPaymentRequestID(rawID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.svc.CancelPaymentRequest(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createFavoriteRequest struct {
	OwnerWalletID    string `json:"owner_wallet_id"`
	FavoriteWalletID string `json:"favorite_wallet_id"`
	Alias            string `json:"alias,omitempty"`
}

type favoriteResponse struct {
	ID               string `json:"id"`
	OwnerWalletID    string `json:"owner_wallet_id"`
	FavoriteWalletID string `json:"favorite_wallet_id"`
	Alias            string `json:"alias,omitempty"`
}

// CreateFavorite upserts a saved counterparty wallet.
func (h *LedgerHandler) CreateFavorite(w http.ResponseWriter, r *http.Request) {
	var req createFavoriteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ownerID, err := domain.NewWalletID(req.OwnerWalletID)
	if err != nil {
		writeError(w, err)
		return
	}
	favID, err := domain.NewWalletID(req.FavoriteWalletID)
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := h.svc.CreateFavorite(r.Context(), ownerID, favID, req.Alias)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, favoriteResponse{ID: out.ID.String(), OwnerWalletID: out.OwnerWalletID.String(), FavoriteWalletID: out.FavoriteWalletID.String(), Alias: out.Alias})
}

// ListFavorites lists every favorite saved by a wallet.
func (h *LedgerHandler) ListFavorites(w http.ResponseWriter, r *http.Request, rawOwnerWalletID string) {
	ownerID, err := domain.NewWalletID(rawOwnerWalletID)
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := h.svc.ListFavorites(r.Context(), ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]favoriteResponse, 0, len(rows))
	for _, f := range rows {
		out = append(out, favoriteResponse{ID: f.ID.String(), OwnerWalletID: f.OwnerWalletID.String(), FavoriteWalletID: f.FavoriteWalletID.String(), Alias: f.Alias})
	}
	writeJSON(w, http.StatusOK, out)
}

type ensureUserRequest struct {
	AccountID string `json:"account_id"`
	Phone     string `json:"phone,omitempty"`
}

type userResponse struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	Phone     string `json:"phone,omitempty"`
	KYCLevel  int    `json:"kyc_level"`
}

// EnsureUser lazily materializes a wallet-bearing user, called by the BFF
// on every authenticated request.
func (h *LedgerHandler) EnsureUser(w http.ResponseWriter, r *http.Request) {
	var req ensureUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	accID, err := domain.NewAccountID(req.AccountID)
	if err != nil {
		writeError(w, err)
		return
	}
	u, err := h.svc.EnsureUser(r.Context(), accID, req.Phone)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{ID: u.ID.String(), AccountID: u.AccountID.String(), Phone: u.Phone, KYCLevel: u.KYCLevel})
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
