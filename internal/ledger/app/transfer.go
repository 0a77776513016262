package app

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/codes"

	kerneldomain "github.com/shamell/shamell/internal/domain"
	ledgerdomain "github.com/shamell/shamell/internal/ledger/domain"
)

// WalletSnapshot is the wire-facing result of a transfer, topup, or
// idempotency replay: the affected wallet's id, balance, and currency.
type WalletSnapshot struct {
	WalletID     kerneldomain.WalletID
	BalanceCents int64
	Currency     string
}

// TransferParams are the inputs to Transfer.
type TransferParams struct {
	FromWalletID   kerneldomain.WalletID
	ToWalletID     kerneldomain.WalletID // zero if ToAlias is set
	ToAlias        string
	AmountCents    int64
	IdempotencyKey string
	MetaSuffix     string // appended to ledger entry descriptions, e.g. " (merchant=bus ref=booking-charge-<id>)"
}

const endpointTransfer = "transfer"
const endpointTopup = "topup"

// Transfer moves AmountCents from FromWalletID to ToWalletID (or the wallet
// ToAlias resolves to), splitting a MerchantFeeBps fee into the service fee
// wallet, honoring idempotency-key replay.
func (s *LedgerService) Transfer(ctx context.Context, p TransferParams) (*WalletSnapshot, error) {
	ctx, span := tracer.Start(ctx, "ledger.Transfer")
	defer span.End()

	toWalletID := p.ToWalletID
	if toWalletID.IsZero() {
		if p.ToAlias == "" {
			return nil, fmt.Errorf("to_wallet_id or to_alias required: %w", kerneldomain.ErrInvalidInput)
		}
		alias, err := s.aliases.FindActive(ctx, p.ToAlias)
		if err != nil {
			if kerneldomain.IsNotFound(err) {
				return nil, fmt.Errorf("alias not found: %w", kerneldomain.ErrNotFound)
			}
			return nil, fmt.Errorf("resolve alias: %w", err)
		}
		toWalletID = alias.WalletID
	}
	if p.AmountCents <= 0 {
		return nil, fmt.Errorf("amount_cents must be > 0: %w", kerneldomain.ErrInvalidInput)
	}
	if p.FromWalletID.IsZero() {
		return nil, fmt.Errorf("from_wallet_id required: %w", kerneldomain.ErrInvalidInput)
	}
	if p.FromWalletID == toWalletID {
		transfersTotal.Add(ctx, 1)
		return nil, kerneldomain.ErrSameWalletTransfer
	}

	if p.IdempotencyKey != "" {
		if snap, done, err := s.replayIdempotency(ctx, p.IdempotencyKey, endpointTransfer, toWalletID); err != nil {
			return nil, err
		} else if done {
			return snap, nil
		}
	}

	tx, err := s.txRunner.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	from, err := s.wallets.LockWallet(ctx, tx, p.FromWalletID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("lock sender wallet: %w", err)
	}
	to, err := s.wallets.LockWallet(ctx, tx, toWalletID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("lock recipient wallet: %w", err)
	}
	if from.Currency != to.Currency {
		return nil, kerneldomain.ErrCurrencyMismatch
	}
	if from.BalanceCents < p.AmountCents {
		transfersTotal.Add(ctx, 1)
		return nil, kerneldomain.ErrInsufficientFunds
	}

	feeCents := p.AmountCents * int64(s.merchantFeeBps) / 10_000
	netCents := p.AmountCents - feeCents

	newFromBalance := from.BalanceCents - p.AmountCents
	newToBalance := to.BalanceCents + netCents

	if err := s.wallets.UpdateBalance(ctx, tx, from.ID, newFromBalance); err != nil {
		return nil, fmt.Errorf("debit sender: %w", err)
	}

	var feeWalletID kerneldomain.WalletID
	feeInvolved := feeCents > 0
	if feeInvolved {
		feeWalletID, err = s.wallets.EnsureFeeWalletTx(ctx, tx, s.feeWallet.AccountID, s.feeWallet.Phone)
		if err != nil {
			return nil, fmt.Errorf("ensure fee wallet: %w", err)
		}
		if feeWalletID == toWalletID {
			// Self-pay unification: the recipient IS the fee wallet, so its
			// balance already reflects the net credit below; fold the fee in.
			newToBalance += feeCents
		} else {
			feeWallet, err := s.wallets.LockWallet(ctx, tx, feeWalletID)
			if err != nil {
				return nil, fmt.Errorf("lock fee wallet: %w", err)
			}
			if err := s.wallets.UpdateBalance(ctx, tx, feeWalletID, feeWallet.BalanceCents+feeCents); err != nil {
				return nil, fmt.Errorf("credit fee wallet: %w", err)
			}
		}
	}
	if err := s.wallets.UpdateBalance(ctx, tx, toWalletID, newToBalance); err != nil {
		return nil, fmt.Errorf("credit recipient: %w", err)
	}

	txnID := kerneldomain.GenerateTxnID()
	now := s.clock.Now()
	fromID, toID := from.ID, toWalletID
	if err := s.ledger.InsertTxn(ctx, tx, ledgerdomain.Txn{
		ID: txnID, FromWalletID: &fromID, ToWalletID: &toID,
		AmountCents: p.AmountCents, Kind: kerneldomain.TxnKindTransfer, FeeCents: feeCents, CreatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("insert txn: %w", err)
	}

	debitDesc := "transfer_debit" + p.MetaSuffix
	creditDesc := "transfer_credit" + p.MetaSuffix
	if err := s.ledger.InsertEntry(ctx, tx, ledgerdomain.LedgerEntry{
		ID: kerneldomain.GenerateTxnID().String(), WalletID: &fromID, AmountCents: -p.AmountCents,
		TxnID: txnID, Description: debitDesc, CreatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("insert debit entry: %w", err)
	}
	if err := s.ledger.InsertEntry(ctx, tx, ledgerdomain.LedgerEntry{
		ID: kerneldomain.GenerateTxnID().String(), WalletID: &toID, AmountCents: netCents,
		TxnID: txnID, Description: creditDesc, CreatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("insert credit entry: %w", err)
	}
	if feeInvolved {
		// When the recipient IS the fee wallet the entry lands on the same
		// wallet id; the legs must still be written separately so entries
		// for the txn sum to zero.
		if err := s.ledger.InsertEntry(ctx, tx, ledgerdomain.LedgerEntry{
			ID: kerneldomain.GenerateTxnID().String(), WalletID: &feeWalletID, AmountCents: feeCents,
			TxnID: txnID, Description: "fee_credit", CreatedAt: now,
		}); err != nil {
			return nil, fmt.Errorf("insert fee entry: %w", err)
		}
	}

	if p.IdempotencyKey != "" {
		_ = s.idempotency.Insert(ctx, tx, ledgerdomain.IdempotencyRecord{
			Key: p.IdempotencyKey, Endpoint: endpointTransfer, TxnID: txnID,
			AmountCents: p.AmountCents, Currency: to.Currency, WalletID: toWalletID,
			BalanceCents: newToBalance, CreatedAt: now,
		})
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transfer: %w", err)
	}
	transfersTotal.Add(ctx, 1)
	return &WalletSnapshot{WalletID: toWalletID, BalanceCents: newToBalance, Currency: to.Currency}, nil
}

// TopupParams are the inputs to Topup.
type TopupParams struct {
	WalletID       kerneldomain.WalletID
	AmountCents    int64
	IdempotencyKey string
}

// Topup credits WalletID from the synthetic external counterparty. Gated by
// AllowDirectTopup.
func (s *LedgerService) Topup(ctx context.Context, p TopupParams) (*WalletSnapshot, error) {
	ctx, span := tracer.Start(ctx, "ledger.Topup")
	defer span.End()

	if !s.allowDirectTopup {
		return nil, fmt.Errorf("direct topup disabled: %w", kerneldomain.ErrForbidden)
	}
	if p.WalletID.IsZero() {
		return nil, fmt.Errorf("wallet_id required: %w", kerneldomain.ErrInvalidInput)
	}
	if p.AmountCents <= 0 {
		return nil, fmt.Errorf("amount_cents must be > 0: %w", kerneldomain.ErrInvalidInput)
	}

	if p.IdempotencyKey != "" {
		if snap, done, err := s.replayIdempotency(ctx, p.IdempotencyKey, endpointTopup, p.WalletID); err != nil {
			return nil, err
		} else if done {
			return snap, nil
		}
	}

	tx, err := s.txRunner.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.wallets.LockWallet(ctx, tx, p.WalletID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("lock wallet: %w", err)
	}
	newBalance := wallet.BalanceCents + p.AmountCents
	if err := s.wallets.UpdateBalance(ctx, tx, wallet.ID, newBalance); err != nil {
		return nil, fmt.Errorf("credit wallet: %w", err)
	}

	txnID := kerneldomain.GenerateTxnID()
	now := s.clock.Now()
	walletID := wallet.ID
	if err := s.ledger.InsertTxn(ctx, tx, ledgerdomain.Txn{
		ID: txnID, ToWalletID: &walletID, AmountCents: p.AmountCents,
		Kind: kerneldomain.TxnKindTopup, CreatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("insert txn: %w", err)
	}
	if err := s.ledger.InsertEntry(ctx, tx, ledgerdomain.LedgerEntry{
		ID: kerneldomain.GenerateTxnID().String(), WalletID: &walletID, AmountCents: p.AmountCents,
		TxnID: txnID, Description: "topup", CreatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("insert credit entry: %w", err)
	}
	if err := s.ledger.InsertEntry(ctx, tx, ledgerdomain.LedgerEntry{
		ID: kerneldomain.GenerateTxnID().String(), WalletID: nil, AmountCents: -p.AmountCents,
		TxnID: txnID, Description: "topup_external", CreatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("insert external entry: %w", err)
	}

	if p.IdempotencyKey != "" {
		_ = s.idempotency.Insert(ctx, tx, ledgerdomain.IdempotencyRecord{
			Key: p.IdempotencyKey, Endpoint: endpointTopup, TxnID: txnID,
			AmountCents: p.AmountCents, Currency: wallet.Currency, WalletID: wallet.ID,
			BalanceCents: newBalance, CreatedAt: now,
		})
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit topup: %w", err)
	}
	topupsTotal.Add(ctx, 1)
	return &WalletSnapshot{WalletID: wallet.ID, BalanceCents: newBalance, Currency: wallet.Currency}, nil
}

// FindWallet returns a wallet's current balance snapshot, used by the BFF's
// wallet ownership-guarded proxy route.
func (s *LedgerService) FindWallet(ctx context.Context, id kerneldomain.WalletID) (*WalletSnapshot, error) {
	w, err := s.wallets.FindWallet(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find wallet: %w", err)
	}
	return &WalletSnapshot{WalletID: w.ID, BalanceCents: w.BalanceCents, Currency: w.Currency}, nil
}

// replayIdempotency looks up key; if found under a different endpoint it
// returns 409-mapped ErrIdempotencyConflict, if found under endpoint it
// returns the recorded snapshot (re-fetching the live wallet balance, since
// the wallet may have moved since the snapshot was recorded), else (nil,
// false, nil) so the caller proceeds with a fresh transfer/topup.
func (s *LedgerService) replayIdempotency(ctx context.Context, key, endpoint string, fallbackWalletID kerneldomain.WalletID) (*WalletSnapshot, bool, error) {
	rec, err := s.idempotency.Find(ctx, key)
	if err != nil {
		if kerneldomain.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("lookup idempotency key: %w", err)
	}
	if rec.Endpoint != endpoint {
		return nil, false, kerneldomain.ErrIdempotencyConflict
	}
	walletID := rec.WalletID
	if walletID.IsZero() {
		walletID = fallbackWalletID
	}
	if w, err := s.wallets.FindWallet(ctx, walletID); err == nil {
		return &WalletSnapshot{WalletID: w.ID, BalanceCents: w.BalanceCents, Currency: w.Currency}, true, nil
	}
	return &WalletSnapshot{WalletID: rec.WalletID, BalanceCents: rec.BalanceCents, Currency: rec.Currency}, true, nil
}
