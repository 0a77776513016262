package adapter

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/codes"

	kerneldomain "github.com/shamell/shamell/internal/domain"
	ledgerdomain "github.com/shamell/shamell/internal/ledger/domain"
	"github.com/shamell/shamell/internal/pgdb"
)

var _ ledgerdomain.IdempotencyRepo = (*IdempotencyRepo)(nil)

// IdempotencyRepo records and replays transfer/topup idempotency snapshots.
type IdempotencyRepo struct {
	pool *pgdb.Pool
}

// NewIdempotencyRepo creates an IdempotencyRepo.
func NewIdempotencyRepo(pool *pgdb.Pool) *IdempotencyRepo { return &IdempotencyRepo{pool: pool} }

// Find returns the recorded snapshot for key, if any.
func (r *IdempotencyRepo) Find(ctx context.Context, key string) (ledgerdomain.IdempotencyRecord, error) {
	ctx, span := tracer.Start(ctx, "pg.idempotency.find")
	defer span.End()

	var rec ledgerdomain.IdempotencyRecord
	var txnID, walletID string
	err := r.pool.DB.QueryRow(ctx,
		`SELECT key, endpoint, txn_id, amount_cents, currency, wallet_id, balance_cents, created_at
		 FROM ledger_idempotency_keys WHERE key = $1`, key,
	).Scan(&rec.Key, &rec.Endpoint, &txnID, &rec.AmountCents, &rec.Currency, &walletID, &rec.BalanceCents, &rec.CreatedAt)
	if err != nil {
		if pgdb.IsNoRows(err) {
			return ledgerdomain.IdempotencyRecord{}, kerneldomain.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ledgerdomain.IdempotencyRecord{}, fmt.Errorf("find idempotency record: %w", err)
	}
	rec.TxnID = mustTxnID(txnID)
	rec.WalletID = kerneldomain.MustWalletID(walletID)
	return rec, nil
}

// Insert is best-effort: a concurrent writer racing the unique constraint on
// key loses silently, trusting the caller to re-read via Find.
func (r *IdempotencyRepo) Insert(ctx context.Context, tx ledgerdomain.Tx, rec ledgerdomain.IdempotencyRecord) error {
	ctx, span := tracer.Start(ctx, "pg.idempotency.insert")
	defer span.End()

	_, err := underlying(tx).Exec(ctx,
		`INSERT INTO ledger_idempotency_keys (key, endpoint, txn_id, amount_cents, currency, wallet_id, balance_cents, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (key) DO NOTHING`,
		rec.Key, rec.Endpoint, rec.TxnID.String(), rec.AmountCents, rec.Currency, rec.WalletID.String(), rec.BalanceCents, rec.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert idempotency record: %w", err)
	}
	return nil
}

var _ ledgerdomain.BookingIdempotencyRepo = (*BookingIdempotencyRepo)(nil)

// BookingIdempotencyRepo records and replays booking idempotency parameters.
type BookingIdempotencyRepo struct {
	pool *pgdb.Pool
}

// NewBookingIdempotencyRepo creates a BookingIdempotencyRepo.
func NewBookingIdempotencyRepo(pool *pgdb.Pool) *BookingIdempotencyRepo {
	return &BookingIdempotencyRepo{pool: pool}
}

// Find returns the recorded booking idempotency parameters for key, if any.
func (r *BookingIdempotencyRepo) Find(ctx context.Context, key string) (ledgerdomain.BookingIdempotency, error) {
	ctx, span := tracer.Start(ctx, "pg.booking_idempotency.find")
	defer span.End()

	var rec ledgerdomain.BookingIdempotency
	var tripID string
	var walletID *string
	var bookingID *string
	err := r.pool.DB.QueryRow(ctx,
		`SELECT key, trip_id, wallet_id, seats, seat_numbers_hash, booking_id
		 FROM booking_idempotency_keys WHERE key = $1`, key,
	).Scan(&rec.Key, &tripID, &walletID, &rec.Seats, &rec.SeatNumbersHash, &bookingID)
	if err != nil {
		if pgdb.IsNoRows(err) {
			return ledgerdomain.BookingIdempotency{}, kerneldomain.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ledgerdomain.BookingIdempotency{}, fmt.Errorf("find booking idempotency record: %w", err)
	}
	rec.TripID = kerneldomain.MustTripID(tripID)
	if walletID != nil {
		w := kerneldomain.MustWalletID(*walletID)
		rec.WalletID = &w
	}
	if bookingID != nil {
		b := kerneldomain.MustBookingID(*bookingID)
		rec.BookingID = &b
	}
	return rec, nil
}

// Insert records rec, best-effort against a concurrent duplicate key.
func (r *BookingIdempotencyRepo) Insert(ctx context.Context, rec ledgerdomain.BookingIdempotency) error {
	ctx, span := tracer.Start(ctx, "pg.booking_idempotency.insert")
	defer span.End()

	var walletID *string
	if rec.WalletID != nil {
		s := rec.WalletID.String()
		walletID = &s
	}
	_, err := r.pool.DB.Exec(ctx,
		`INSERT INTO booking_idempotency_keys (key, trip_id, wallet_id, seats, seat_numbers_hash)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (key) DO NOTHING`,
		rec.Key, rec.TripID.String(), walletID, rec.Seats, rec.SeatNumbersHash,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert booking idempotency record: %w", err)
	}
	return nil
}

// SetBookingID records the booking id a pending idempotency key produced,
// so a later retry before issue can be replayed without re-reserving seats.
func (r *BookingIdempotencyRepo) SetBookingID(ctx context.Context, key string, bookingID kerneldomain.BookingID) error {
	ctx, span := tracer.Start(ctx, "pg.booking_idempotency.set_booking_id")
	defer span.End()

	_, err := r.pool.DB.Exec(ctx,
		`UPDATE booking_idempotency_keys SET booking_id = $1 WHERE key = $2`, bookingID.String(), key,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("set booking idempotency booking id: %w", err)
	}
	return nil
}
