package app_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerneldomain "github.com/shamell/shamell/internal/domain"
	"github.com/shamell/shamell/internal/ledger/app"
	ledgerdomain "github.com/shamell/shamell/internal/ledger/domain"
)

func TestTransfer(t *testing.T) {
	t.Run("fee split: 100000 at 150bps leaves 98500 net and 1500 fee", func(t *testing.T) {
		h := newLedgerHarness(t, withFeeBps(150))
		rider := h.wallets.add(150_000, "SYP")
		operator := h.wallets.add(0, "SYP")

		snap, err := h.svc.Transfer(context.Background(), app.TransferParams{
			FromWalletID: rider, ToWalletID: operator, AmountCents: 100_000,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(98_500), snap.BalanceCents)

		assert.Equal(t, int64(50_000), h.wallets.balance(rider))
		assert.Equal(t, int64(98_500), h.wallets.balance(operator))
		assert.Equal(t, int64(1_500), h.wallets.balance(h.wallets.feeWalletID))

		require.Len(t, h.ledger.txns, 1)
		txn := h.ledger.txns[0]
		assert.Equal(t, kerneldomain.TxnKindTransfer, txn.Kind)
		assert.Equal(t, int64(1_500), txn.FeeCents)
		assert.Zero(t, h.ledger.sumForTxn(txn.ID), "ledger entries for the txn must sum to zero")

		// Balance == sum of entries, per wallet.
		for _, w := range []kerneldomain.WalletID{rider, operator, h.wallets.feeWalletID} {
			sum, err := h.ledger.SumEntries(context.Background(), w)
			require.NoError(t, err)
			assert.Equal(t, h.wallets.balance(w), sum)
		}
	})

	t.Run("zero fee bps writes exactly two entries", func(t *testing.T) {
		h := newLedgerHarness(t)
		a := h.wallets.add(10_000, "SYP")
		b := h.wallets.add(0, "SYP")

		_, err := h.svc.Transfer(context.Background(), app.TransferParams{
			FromWalletID: a, ToWalletID: b, AmountCents: 4_000,
		})
		require.NoError(t, err)
		assert.Len(t, h.ledger.entries, 2)
		assert.Equal(t, int64(4_000), h.wallets.balance(b))
	})

	t.Run("insufficient funds rejected before any mutation", func(t *testing.T) {
		h := newLedgerHarness(t)
		a := h.wallets.add(1_000, "SYP")
		b := h.wallets.add(0, "SYP")

		_, err := h.svc.Transfer(context.Background(), app.TransferParams{
			FromWalletID: a, ToWalletID: b, AmountCents: 2_000,
		})
		assert.ErrorIs(t, err, kerneldomain.ErrInsufficientFunds)
		assert.Equal(t, int64(1_000), h.wallets.balance(a))
		assert.Empty(t, h.ledger.entries)
	})

	t.Run("same-wallet transfer rejected", func(t *testing.T) {
		h := newLedgerHarness(t)
		a := h.wallets.add(5_000, "SYP")

		_, err := h.svc.Transfer(context.Background(), app.TransferParams{
			FromWalletID: a, ToWalletID: a, AmountCents: 100,
		})
		assert.ErrorIs(t, err, kerneldomain.ErrSameWalletTransfer)
	})

	t.Run("currency mismatch fails closed", func(t *testing.T) {
		h := newLedgerHarness(t)
		a := h.wallets.add(5_000, "SYP")
		b := h.wallets.add(0, "USD")

		_, err := h.svc.Transfer(context.Background(), app.TransferParams{
			FromWalletID: a, ToWalletID: b, AmountCents: 100,
		})
		assert.ErrorIs(t, err, kerneldomain.ErrCurrencyMismatch)
	})

	t.Run("alias resolves to recipient wallet", func(t *testing.T) {
		h := newLedgerHarness(t)
		a := h.wallets.add(5_000, "SYP")
		b := h.wallets.add(0, "SYP")
		h.aliases.aliases["coffee-shop"] = ledgerdomain.Alias{Handle: "coffee-shop", WalletID: b, Status: ledgerdomain.AliasActive}

		snap, err := h.svc.Transfer(context.Background(), app.TransferParams{
			FromWalletID: a, ToAlias: "coffee-shop", AmountCents: 700,
		})
		require.NoError(t, err)
		assert.Equal(t, b, snap.WalletID)
		assert.Equal(t, int64(700), h.wallets.balance(b))
	})

	t.Run("unknown alias: not found", func(t *testing.T) {
		h := newLedgerHarness(t)
		a := h.wallets.add(5_000, "SYP")

		_, err := h.svc.Transfer(context.Background(), app.TransferParams{
			FromWalletID: a, ToAlias: "nobody", AmountCents: 700,
		})
		assert.ErrorIs(t, err, kerneldomain.ErrNotFound)
	})

	t.Run("neither to_wallet_id nor to_alias: invalid input", func(t *testing.T) {
		h := newLedgerHarness(t)
		a := h.wallets.add(5_000, "SYP")

		_, err := h.svc.Transfer(context.Background(), app.TransferParams{
			FromWalletID: a, AmountCents: 700,
		})
		assert.ErrorIs(t, err, kerneldomain.ErrInvalidInput)
	})

	t.Run("idempotency replay returns snapshot without double effect", func(t *testing.T) {
		h := newLedgerHarness(t)
		a := h.wallets.add(10_000, "SYP")
		b := h.wallets.add(0, "SYP")

		first, err := h.svc.Transfer(context.Background(), app.TransferParams{
			FromWalletID: a, ToWalletID: b, AmountCents: 3_000, IdempotencyKey: "key-1",
		})
		require.NoError(t, err)

		second, err := h.svc.Transfer(context.Background(), app.TransferParams{
			FromWalletID: a, ToWalletID: b, AmountCents: 3_000, IdempotencyKey: "key-1",
		})
		require.NoError(t, err)
		assert.Equal(t, first.BalanceCents, second.BalanceCents)
		assert.Equal(t, int64(7_000), h.wallets.balance(a), "replay must not debit twice")
		assert.Len(t, h.ledger.txns, 1)
	})

	t.Run("idempotency key reused under different endpoint: conflict", func(t *testing.T) {
		h := newLedgerHarness(t, withTopup())
		a := h.wallets.add(10_000, "SYP")
		b := h.wallets.add(0, "SYP")

		_, err := h.svc.Topup(context.Background(), app.TopupParams{
			WalletID: a, AmountCents: 1_000, IdempotencyKey: "shared-key",
		})
		require.NoError(t, err)

		_, err = h.svc.Transfer(context.Background(), app.TransferParams{
			FromWalletID: a, ToWalletID: b, AmountCents: 1_000, IdempotencyKey: "shared-key",
		})
		assert.ErrorIs(t, err, kerneldomain.ErrIdempotencyConflict)
	})
}

func TestTopup(t *testing.T) {
	t.Run("disabled by default", func(t *testing.T) {
		h := newLedgerHarness(t)
		a := h.wallets.add(0, "SYP")

		_, err := h.svc.Topup(context.Background(), app.TopupParams{WalletID: a, AmountCents: 1_000})
		assert.ErrorIs(t, err, kerneldomain.ErrForbidden)
	})

	t.Run("credits the wallet against the external counterparty", func(t *testing.T) {
		h := newLedgerHarness(t, withTopup())
		a := h.wallets.add(500, "SYP")

		snap, err := h.svc.Topup(context.Background(), app.TopupParams{WalletID: a, AmountCents: 2_500})
		require.NoError(t, err)
		assert.Equal(t, int64(3_000), snap.BalanceCents)

		require.Len(t, h.ledger.txns, 1)
		txn := h.ledger.txns[0]
		assert.Equal(t, kerneldomain.TxnKindTopup, txn.Kind)
		assert.Zero(t, h.ledger.sumForTxn(txn.ID))

		// One entry carries the nil wallet id: the synthetic external bucket.
		var externalLegs int
		for _, e := range h.ledger.entries {
			if e.WalletID == nil {
				externalLegs++
				assert.Equal(t, int64(-2_500), e.AmountCents)
			}
		}
		assert.Equal(t, 1, externalLegs)
	})

	t.Run("non-positive amount rejected", func(t *testing.T) {
		h := newLedgerHarness(t, withTopup())
		a := h.wallets.add(0, "SYP")

		_, err := h.svc.Topup(context.Background(), app.TopupParams{WalletID: a, AmountCents: 0})
		assert.ErrorIs(t, err, kerneldomain.ErrInvalidInput)
	})
}
