package adapter

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/codes"

	kerneldomain "github.com/shamell/shamell/internal/domain"
	ledgerdomain "github.com/shamell/shamell/internal/ledger/domain"
	"github.com/shamell/shamell/internal/pgdb"
)

var _ ledgerdomain.PaymentRequestRepo = (*PaymentRequestRepo)(nil)

// PaymentRequestRepo persists payment_requests.
type PaymentRequestRepo struct {
	pool *pgdb.Pool
}

// NewPaymentRequestRepo creates a PaymentRequestRepo.
func NewPaymentRequestRepo(pool *pgdb.Pool) *PaymentRequestRepo { return &PaymentRequestRepo{pool: pool} }

// Insert creates a new pending payment request.
func (r *PaymentRequestRepo) Insert(ctx context.Context, req ledgerdomain.PaymentRequest) (ledgerdomain.PaymentRequest, error) {
	ctx, span := tracer.Start(ctx, "pg.payment_requests.insert")
	defer span.End()

	if req.ID.IsZero() {
		req.ID = kerneldomain.GeneratePaymentRequestID()
	}
	row := r.pool.DB.QueryRow(ctx,
		`INSERT INTO payment_requests (id, from_wallet_id, to_wallet_id, amount_cents, currency, status, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, from_wallet_id, to_wallet_id, amount_cents, currency, status, expires_at, created_at, result_txn_id`,
		req.ID.String(), req.FromWalletID.String(), req.ToWalletID.String(), req.AmountCents, req.Currency, string(req.Status), req.ExpiresAt, req.CreatedAt,
	)
	out, err := scanPaymentRequest(row)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ledgerdomain.PaymentRequest{}, fmt.Errorf("insert payment request: %w", err)
	}
	return out, nil
}

// Find looks up a payment request by id without locking.
func (r *PaymentRequestRepo) Find(ctx context.Context, id kerneldomain.PaymentRequestID) (ledgerdomain.PaymentRequest, error) {
	ctx, span := tracer.Start(ctx, "pg.payment_requests.find")
	defer span.End()

	out, err := scanPaymentRequest(r.pool.DB.QueryRow(ctx,
		`SELECT id, from_wallet_id, to_wallet_id, amount_cents, currency, status, expires_at, created_at, result_txn_id
		 FROM payment_requests WHERE id = $1`, id.String()))
	if err != nil {
		if pgdb.IsNoRows(err) {
			return ledgerdomain.PaymentRequest{}, kerneldomain.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ledgerdomain.PaymentRequest{}, fmt.Errorf("find payment request: %w", err)
	}
	return out, nil
}

// LockForUpdate fetches a payment request with SELECT ... FOR UPDATE inside
// tx, for the accept/cancel critical section.
func (r *PaymentRequestRepo) LockForUpdate(ctx context.Context, tx ledgerdomain.Tx, id kerneldomain.PaymentRequestID) (ledgerdomain.PaymentRequest, error) {
	ctx, span := tracer.Start(ctx, "pg.payment_requests.lock")
	defer span.End()

	out, err := scanPaymentRequest(underlying(tx).QueryRow(ctx,
		`SELECT id, from_wallet_id, to_wallet_id, amount_cents, currency, status, expires_at, created_at, result_txn_id
		 FROM payment_requests WHERE id = $1 FOR UPDATE`, id.String()))
	if err != nil {
		if pgdb.IsNoRows(err) {
			return ledgerdomain.PaymentRequest{}, kerneldomain.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ledgerdomain.PaymentRequest{}, fmt.Errorf("lock payment request: %w", err)
	}
	return out, nil
}

// UpdateStatus transitions a payment request's status, recording the
// settling txn id when accepted.
func (r *PaymentRequestRepo) UpdateStatus(ctx context.Context, tx ledgerdomain.Tx, id kerneldomain.PaymentRequestID, status kerneldomain.PaymentRequestStatus, resultTxnID *kerneldomain.TxnID) error {
	ctx, span := tracer.Start(ctx, "pg.payment_requests.update_status")
	defer span.End()

	var txnID *string
	if resultTxnID != nil {
		s := resultTxnID.String()
		txnID = &s
	}
	_, err := underlying(tx).Exec(ctx,
		`UPDATE payment_requests SET status = $1, result_txn_id = $2 WHERE id = $3`,
		string(status), txnID, id.String(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("update payment request status: %w", err)
	}
	return nil
}

func scanPaymentRequest(row pgdb.Row) (ledgerdomain.PaymentRequest, error) {
	var req ledgerdomain.PaymentRequest
	var id, from, to, status string
	var resultTxnID *string
	if err := row.Scan(&id, &from, &to, &req.AmountCents, &req.Currency, &status, &req.ExpiresAt, &req.CreatedAt, &resultTxnID); err != nil {
		return ledgerdomain.PaymentRequest{}, err
	}
	req.ID = mustPaymentRequestID(id)
	req.FromWalletID = kerneldomain.MustWalletID(from)
	req.ToWalletID = kerneldomain.MustWalletID(to)
	req.Status = kerneldomain.PaymentRequestStatus(status)
	if resultTxnID != nil {
		t := mustTxnID(*resultTxnID)
		req.ResultTxnID = &t
	}
	return req, nil
}
