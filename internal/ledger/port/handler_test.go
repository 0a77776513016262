package port

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shamell/shamell/internal/domain"
	ledgerapp "github.com/shamell/shamell/internal/ledger/app"
	ledgerdomain "github.com/shamell/shamell/internal/ledger/domain"
)

// fakeLedgerService embeds the interface so each test only overrides the
// methods it exercises; an unexpected call panics with a nil dereference,
// which is exactly the signal we want.
type fakeLedgerService struct {
	ledgerService

	transferFn    func(ctx context.Context, p ledgerapp.TransferParams) (*ledgerapp.WalletSnapshot, error)
	bookTripFn    func(ctx context.Context, p ledgerapp.BookTripParams) (*ledgerdomain.Booking, error)
	boardTicketFn func(ctx context.Context, payload string) (*ledgerdomain.Ticket, error)
}

func (f *fakeLedgerService) Transfer(ctx context.Context, p ledgerapp.TransferParams) (*ledgerapp.WalletSnapshot, error) {
	return f.transferFn(ctx, p)
}
func (f *fakeLedgerService) BookTrip(ctx context.Context, p ledgerapp.BookTripParams) (*ledgerdomain.Booking, error) {
	return f.bookTripFn(ctx, p)
}
func (f *fakeLedgerService) BoardTicket(ctx context.Context, payload string) (*ledgerdomain.Ticket, error) {
	return f.boardTicketFn(ctx, payload)
}

func TestLedgerHandler_Transfer(t *testing.T) {
	fromID := domain.GenerateWalletID()
	toID := domain.GenerateWalletID()

	t.Run("forwards Idempotency-Key header", func(t *testing.T) {
		svc := &fakeLedgerService{
			transferFn: func(_ context.Context, p ledgerapp.TransferParams) (*ledgerapp.WalletSnapshot, error) {
				assert.Equal(t, "idem-123", p.IdempotencyKey)
				assert.Equal(t, int64(5_000), p.AmountCents)
				return &ledgerapp.WalletSnapshot{WalletID: p.ToWalletID, BalanceCents: 5_000, Currency: "SYP"}, nil
			},
		}
		h := &LedgerHandler{svc: svc}

		body, _ := json.Marshal(transferRequest{
			FromWalletID: fromID.String(), ToWalletID: toID.String(), AmountCents: 5_000,
		})
		req := httptest.NewRequest("POST", "/transfers", bytes.NewReader(body))
		req.Header.Set("Idempotency-Key", "idem-123")
		w := httptest.NewRecorder()
		h.Transfer(w, req)

		require.Equal(t, 200, w.Code)
		var resp walletSnapshotResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, int64(5_000), resp.BalanceCents)
	})

	t.Run("insufficient funds maps to 400", func(t *testing.T) {
		svc := &fakeLedgerService{
			transferFn: func(_ context.Context, _ ledgerapp.TransferParams) (*ledgerapp.WalletSnapshot, error) {
				return nil, domain.ErrInsufficientFunds
			},
		}
		h := &LedgerHandler{svc: svc}

		body, _ := json.Marshal(transferRequest{FromWalletID: fromID.String(), ToWalletID: toID.String(), AmountCents: 1})
		req := httptest.NewRequest("POST", "/transfers", bytes.NewReader(body))
		w := httptest.NewRecorder()
		h.Transfer(w, req)

		assert.Equal(t, 400, w.Code)
		assert.Contains(t, w.Body.String(), "insufficient funds")
	})

	t.Run("cross-endpoint idempotency reuse maps to 409", func(t *testing.T) {
		svc := &fakeLedgerService{
			transferFn: func(_ context.Context, _ ledgerapp.TransferParams) (*ledgerapp.WalletSnapshot, error) {
				return nil, domain.ErrIdempotencyConflict
			},
		}
		h := &LedgerHandler{svc: svc}

		body, _ := json.Marshal(transferRequest{FromWalletID: fromID.String(), ToWalletID: toID.String(), AmountCents: 1})
		req := httptest.NewRequest("POST", "/transfers", bytes.NewReader(body))
		req.Header.Set("Idempotency-Key", "reused")
		w := httptest.NewRecorder()
		h.Transfer(w, req)

		assert.Equal(t, 409, w.Code)
	})

	t.Run("malformed wallet id rejected before the service is called", func(t *testing.T) {
		h := &LedgerHandler{svc: &fakeLedgerService{}}

		body, _ := json.Marshal(transferRequest{FromWalletID: "not-a-uuid", ToWalletID: toID.String(), AmountCents: 1})
		req := httptest.NewRequest("POST", "/transfers", bytes.NewReader(body))
		w := httptest.NewRecorder()
		h.Transfer(w, req)

		assert.Equal(t, 400, w.Code)
	})
}

func TestLedgerHandler_BookTrip_InternalSecret(t *testing.T) {
	tripID := domain.GenerateTripID()
	booking := &ledgerdomain.Booking{
		ID: domain.GenerateBookingID(), TripID: tripID, Seats: 1,
		Status: domain.BookingConfirmed, PriceCents: 100_000,
	}

	t.Run("matching secret passes", func(t *testing.T) {
		svc := &fakeLedgerService{
			bookTripFn: func(_ context.Context, p ledgerapp.BookTripParams) (*ledgerdomain.Booking, error) {
				assert.Equal(t, "bk-key", p.IdempotencyKey)
				return booking, nil
			},
		}
		h := &LedgerHandler{svc: svc, internalToken: "s3cret"}

		body, _ := json.Marshal(bookTripRequest{TripID: tripID.String(), SeatsRequested: 1})
		req := httptest.NewRequest("POST", "/bookings", bytes.NewReader(body))
		req.Header.Set("X-Bus-Payments-Internal-Secret", "s3cret")
		req.Header.Set("Idempotency-Key", "bk-key")
		w := httptest.NewRecorder()
		h.BookTrip(w, req)

		require.Equal(t, 200, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"confirmed"`)
	})

	t.Run("missing secret: 403", func(t *testing.T) {
		h := &LedgerHandler{svc: &fakeLedgerService{}, internalToken: "s3cret"}

		req := httptest.NewRequest("POST", "/bookings", bytes.NewReader([]byte("{}")))
		w := httptest.NewRecorder()
		h.BookTrip(w, req)

		assert.Equal(t, 403, w.Code)
	})

	t.Run("mismatched secret: 403", func(t *testing.T) {
		h := &LedgerHandler{svc: &fakeLedgerService{}, internalToken: "s3cret"}

		req := httptest.NewRequest("POST", "/bookings", bytes.NewReader([]byte("{}")))
		req.Header.Set("X-Bus-Payments-Internal-Secret", "wrong")
		w := httptest.NewRecorder()
		h.BookTrip(w, req)

		assert.Equal(t, 403, w.Code)
	})
}

func TestLedgerHandler_BoardTicket(t *testing.T) {
	t.Run("forged signature maps to 401", func(t *testing.T) {
		svc := &fakeLedgerService{
			boardTicketFn: func(_ context.Context, _ string) (*ledgerdomain.Ticket, error) {
				return nil, domain.ErrUnauthorized
			},
		}
		h := &LedgerHandler{svc: svc}

		body, _ := json.Marshal(map[string]string{"payload": "TICKET|id=a|b=b|trip=c|seat=1|sig=bad"})
		req := httptest.NewRequest("POST", "/tickets/board", bytes.NewReader(body))
		w := httptest.NewRecorder()
		h.BoardTicket(w, req)

		assert.Equal(t, 401, w.Code)
	})
}
