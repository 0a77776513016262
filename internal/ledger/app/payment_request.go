package app

import (
	"context"
	"fmt"
	"time"

	kerneldomain "github.com/shamell/shamell/internal/domain"
	ledgerdomain "github.com/shamell/shamell/internal/ledger/domain"
)

// CreatePaymentRequestParams are the inputs to CreatePaymentRequest.
type CreatePaymentRequestParams struct {
	FromWalletID kerneldomain.WalletID // the requester, who will receive funds on acceptance
	ToWalletID   kerneldomain.WalletID // the payer, who accepts
	AmountCents  int64
	Currency     string
	ExpirySecs   int64 // clamped to [PaymentRequestMinExpiry, PaymentRequestMaxExpiry]; 0 means no expiry
}

// CreatePaymentRequest records a pending obligation payable by ToWalletID.
func (s *LedgerService) CreatePaymentRequest(ctx context.Context, p CreatePaymentRequestParams) (*ledgerdomain.PaymentRequest, error) {
	ctx, span := tracer.Start(ctx, "ledger.CreatePaymentRequest")
	defer span.End()

	if p.FromWalletID.IsZero() || p.ToWalletID.IsZero() {
		return nil, fmt.Errorf("from_wallet_id and to_wallet_id required: %w", kerneldomain.ErrInvalidInput)
	}
	if p.FromWalletID == p.ToWalletID {
		return nil, kerneldomain.ErrSameWalletTransfer
	}
	if p.AmountCents <= 0 {
		return nil, fmt.Errorf("amount_cents must be > 0: %w", kerneldomain.ErrInvalidInput)
	}

	now := s.clock.Now()
	req := ledgerdomain.PaymentRequest{
		ID:           kerneldomain.GeneratePaymentRequestID(),
		FromWalletID: p.FromWalletID,
		ToWalletID:   p.ToWalletID,
		AmountCents:  p.AmountCents,
		Currency:     p.Currency,
		Status:       kerneldomain.PaymentRequestPending,
		CreatedAt:    now,
	}
	if p.ExpirySecs > 0 {
		secs := p.ExpirySecs
		min := int64(kerneldomain.PaymentRequestMinExpiry.Seconds())
		max := int64(kerneldomain.PaymentRequestMaxExpiry.Seconds())
		if secs < min {
			secs = min
		}
		if secs > max {
			secs = max
		}
		exp := now.Add(time.Duration(secs) * time.Second)
		req.ExpiresAt = &exp
	}

	stored, err := s.paymentRequests.Insert(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("insert payment request: %w", err)
	}
	paymentRequestsTotal.Add(ctx, 1)
	return &stored, nil
}

// AcceptPaymentRequest executes the reverse transfer ToWalletID -> FromWalletID
// and marks the request accepted. Expired pending requests are lazily marked
// expired and rejected.
func (s *LedgerService) AcceptPaymentRequest(ctx context.Context, id kerneldomain.PaymentRequestID, idempotencyKey string) (*WalletSnapshot, error) {
	ctx, span := tracer.Start(ctx, "ledger.AcceptPaymentRequest")
	defer span.End()

	req, err := s.lazilyExpire(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != kerneldomain.PaymentRequestPending {
		return nil, kerneldomain.ErrConflict
	}

	snap, err := s.Transfer(ctx, TransferParams{
		FromWalletID:   req.ToWalletID,
		ToWalletID:     req.FromWalletID,
		AmountCents:    req.AmountCents,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return nil, err
	}

	tx, err := s.txRunner.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck
	txnID := kerneldomain.GenerateTxnID()
	if err := s.paymentRequests.UpdateStatus(ctx, tx, id, kerneldomain.PaymentRequestAccepted, &txnID); err != nil {
		return nil, fmt.Errorf("mark accepted: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit accept: %w", err)
	}
	paymentRequestsTotal.Add(ctx, 1)
	return snap, nil
}

// CancelPaymentRequest marks a pending request canceled. Expired requests
// are lazily marked expired instead and return ErrConflict.
func (s *LedgerService) CancelPaymentRequest(ctx context.Context, id kerneldomain.PaymentRequestID) error {
	ctx, span := tracer.Start(ctx, "ledger.CancelPaymentRequest")
	defer span.End()

	req, err := s.lazilyExpire(ctx, id)
	if err != nil {
		return err
	}
	if req.Status != kerneldomain.PaymentRequestPending {
		return kerneldomain.ErrConflict
	}
	tx, err := s.txRunner.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck
	if err := s.paymentRequests.UpdateStatus(ctx, tx, id, kerneldomain.PaymentRequestCanceled, nil); err != nil {
		return fmt.Errorf("mark canceled: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit cancel: %w", err)
	}
	paymentRequestsTotal.Add(ctx, 1)
	return nil
}

func (s *LedgerService) lazilyExpire(ctx context.Context, id kerneldomain.PaymentRequestID) (ledgerdomain.PaymentRequest, error) {
	req, err := s.paymentRequests.Find(ctx, id)
	if err != nil {
		return ledgerdomain.PaymentRequest{}, fmt.Errorf("find payment request: %w", err)
	}
	if req.Status == kerneldomain.PaymentRequestPending && req.ExpiresAt != nil && !req.ExpiresAt.After(s.clock.Now()) {
		tx, err := s.txRunner.Begin(ctx)
		if err != nil {
			return req, fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx) //nolint:errcheck
		if err := s.paymentRequests.UpdateStatus(ctx, tx, id, kerneldomain.PaymentRequestExpired, nil); err != nil {
			return req, fmt.Errorf("mark expired: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return req, fmt.Errorf("commit expire: %w", err)
		}
		req.Status = kerneldomain.PaymentRequestExpired
	}
	return req, nil
}
