package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerneldomain "github.com/shamell/shamell/internal/domain"
	"github.com/shamell/shamell/internal/ledger/app"
)

func TestPaymentRequestLifecycle(t *testing.T) {
	t.Run("accept executes the reverse transfer payer to requester", func(t *testing.T) {
		h := newLedgerHarness(t)
		requester := h.wallets.add(0, "SYP")
		payer := h.wallets.add(5_000, "SYP")

		req, err := h.svc.CreatePaymentRequest(context.Background(), app.CreatePaymentRequestParams{
			FromWalletID: requester, ToWalletID: payer, AmountCents: 2_000, Currency: "SYP",
		})
		require.NoError(t, err)
		assert.Equal(t, kerneldomain.PaymentRequestPending, req.Status)

		snap, err := h.svc.AcceptPaymentRequest(context.Background(), req.ID, "")
		require.NoError(t, err)
		assert.Equal(t, requester, snap.WalletID)
		assert.Equal(t, int64(2_000), h.wallets.balance(requester))
		assert.Equal(t, int64(3_000), h.wallets.balance(payer))

		stored, err := h.paymentRequests.Find(context.Background(), req.ID)
		require.NoError(t, err)
		assert.Equal(t, kerneldomain.PaymentRequestAccepted, stored.Status)
	})

	t.Run("double accept: conflict", func(t *testing.T) {
		h := newLedgerHarness(t)
		requester := h.wallets.add(0, "SYP")
		payer := h.wallets.add(5_000, "SYP")

		req, err := h.svc.CreatePaymentRequest(context.Background(), app.CreatePaymentRequestParams{
			FromWalletID: requester, ToWalletID: payer, AmountCents: 1_000, Currency: "SYP",
		})
		require.NoError(t, err)

		_, err = h.svc.AcceptPaymentRequest(context.Background(), req.ID, "")
		require.NoError(t, err)
		_, err = h.svc.AcceptPaymentRequest(context.Background(), req.ID, "")
		assert.ErrorIs(t, err, kerneldomain.ErrConflict)
	})

	t.Run("expired pending request lazily marked expired on accept", func(t *testing.T) {
		h := newLedgerHarness(t)
		requester := h.wallets.add(0, "SYP")
		payer := h.wallets.add(5_000, "SYP")

		req, err := h.svc.CreatePaymentRequest(context.Background(), app.CreatePaymentRequestParams{
			FromWalletID: requester, ToWalletID: payer, AmountCents: 1_000, Currency: "SYP",
			ExpirySecs: 120,
		})
		require.NoError(t, err)
		require.NotNil(t, req.ExpiresAt)

		h.clock.Advance(3 * time.Minute)
		_, err = h.svc.AcceptPaymentRequest(context.Background(), req.ID, "")
		assert.ErrorIs(t, err, kerneldomain.ErrConflict)

		stored, err := h.paymentRequests.Find(context.Background(), req.ID)
		require.NoError(t, err)
		assert.Equal(t, kerneldomain.PaymentRequestExpired, stored.Status)
		assert.Equal(t, int64(5_000), h.wallets.balance(payer), "no funds moved")
	})

	t.Run("expiry clamped to the minimum window", func(t *testing.T) {
		h := newLedgerHarness(t)
		requester := h.wallets.add(0, "SYP")
		payer := h.wallets.add(0, "SYP")

		req, err := h.svc.CreatePaymentRequest(context.Background(), app.CreatePaymentRequestParams{
			FromWalletID: requester, ToWalletID: payer, AmountCents: 1_000, Currency: "SYP",
			ExpirySecs: 5, // below the 60s floor
		})
		require.NoError(t, err)
		require.NotNil(t, req.ExpiresAt)
		assert.Equal(t, testStart.Add(kerneldomain.PaymentRequestMinExpiry), *req.ExpiresAt)
	})

	t.Run("cancel marks pending request canceled", func(t *testing.T) {
		h := newLedgerHarness(t)
		requester := h.wallets.add(0, "SYP")
		payer := h.wallets.add(0, "SYP")

		req, err := h.svc.CreatePaymentRequest(context.Background(), app.CreatePaymentRequestParams{
			FromWalletID: requester, ToWalletID: payer, AmountCents: 1_000, Currency: "SYP",
		})
		require.NoError(t, err)

		require.NoError(t, h.svc.CancelPaymentRequest(context.Background(), req.ID))
		stored, err := h.paymentRequests.Find(context.Background(), req.ID)
		require.NoError(t, err)
		assert.Equal(t, kerneldomain.PaymentRequestCanceled, stored.Status)
	})

	t.Run("self-request rejected", func(t *testing.T) {
		h := newLedgerHarness(t)
		w := h.wallets.add(0, "SYP")

		_, err := h.svc.CreatePaymentRequest(context.Background(), app.CreatePaymentRequestParams{
			FromWalletID: w, ToWalletID: w, AmountCents: 1_000, Currency: "SYP",
		})
		assert.ErrorIs(t, err, kerneldomain.ErrSameWalletTransfer)
	})
}
