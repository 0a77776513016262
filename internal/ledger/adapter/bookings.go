package adapter

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/codes"

	kerneldomain "github.com/shamell/shamell/internal/domain"
	ledgerdomain "github.com/shamell/shamell/internal/ledger/domain"
	"github.com/shamell/shamell/internal/pgdb"
)

var _ ledgerdomain.BookingRepo = (*BookingRepo)(nil)

// BookingRepo persists Bookings.
type BookingRepo struct {
	pool *pgdb.Pool
}

// NewBookingRepo creates a BookingRepo.
func NewBookingRepo(pool *pgdb.Pool) *BookingRepo { return &BookingRepo{pool: pool} }

// Insert creates a new booking row inside tx, part of the Reserve critical
// section alongside the trip seat-count update.
func (r *BookingRepo) Insert(ctx context.Context, tx ledgerdomain.Tx, b ledgerdomain.Booking) (ledgerdomain.Booking, error) {
	ctx, span := tracer.Start(ctx, "pg.bookings.insert")
	defer span.End()

	if b.ID.IsZero() {
		b.ID = kerneldomain.GenerateBookingID()
	}
	var walletID *string
	if b.WalletID != nil {
		s := b.WalletID.String()
		walletID = &s
	}
	var paymentsTxnID *string
	if b.PaymentsTxnID != nil {
		s := b.PaymentsTxnID.String()
		paymentsTxnID = &s
	}
	_, err := underlying(tx).Exec(ctx,
		`INSERT INTO bookings (id, trip_id, seats, status, wallet_id, customer_phone, payments_txn_id, price_cents, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		b.ID.String(), b.TripID.String(), b.Seats, string(b.Status), walletID, b.CustomerPhone, paymentsTxnID, b.PriceCents, b.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ledgerdomain.Booking{}, fmt.Errorf("insert booking: %w", err)
	}
	return b, nil
}

// Find looks up a booking by id without locking.
func (r *BookingRepo) Find(ctx context.Context, id kerneldomain.BookingID) (ledgerdomain.Booking, error) {
	ctx, span := tracer.Start(ctx, "pg.bookings.find")
	defer span.End()

	b, err := scanBooking(r.pool.DB.QueryRow(ctx,
		`SELECT id, trip_id, seats, status, wallet_id, customer_phone, payments_txn_id, price_cents, created_at
		 FROM bookings WHERE id = $1`, id.String()))
	if err != nil {
		if pgdb.IsNoRows(err) {
			return ledgerdomain.Booking{}, kerneldomain.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ledgerdomain.Booking{}, fmt.Errorf("find booking: %w", err)
	}
	return b, nil
}

// LockForUpdate fetches a booking with SELECT ... FOR UPDATE inside tx, for
// the charge/confirm/cancel critical sections.
func (r *BookingRepo) LockForUpdate(ctx context.Context, tx ledgerdomain.Tx, id kerneldomain.BookingID) (ledgerdomain.Booking, error) {
	ctx, span := tracer.Start(ctx, "pg.bookings.lock")
	defer span.End()

	b, err := scanBooking(underlying(tx).QueryRow(ctx,
		`SELECT id, trip_id, seats, status, wallet_id, customer_phone, payments_txn_id, price_cents, created_at
		 FROM bookings WHERE id = $1 FOR UPDATE`, id.String()))
	if err != nil {
		if pgdb.IsNoRows(err) {
			return ledgerdomain.Booking{}, kerneldomain.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ledgerdomain.Booking{}, fmt.Errorf("lock booking: %w", err)
	}
	return b, nil
}

// UpdateStatus transitions a booking's status inside tx, optionally
// recording the settling Ledger txn id.
func (r *BookingRepo) UpdateStatus(ctx context.Context, tx ledgerdomain.Tx, id kerneldomain.BookingID, status kerneldomain.BookingStatus, paymentsTxnID *kerneldomain.TxnID) error {
	ctx, span := tracer.Start(ctx, "pg.bookings.update_status")
	defer span.End()

	var txnID *string
	if paymentsTxnID != nil {
		s := paymentsTxnID.String()
		txnID = &s
	}
	_, err := underlying(tx).Exec(ctx,
		`UPDATE bookings SET status = $1, payments_txn_id = COALESCE($2, payments_txn_id) WHERE id = $3`,
		string(status), txnID, id.String(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("update booking status: %w", err)
	}
	return nil
}

func scanBooking(row pgdb.Row) (ledgerdomain.Booking, error) {
	var b ledgerdomain.Booking
	var id, tripID, status, phone string
	var walletID, paymentsTxnID *string
	if err := row.Scan(&id, &tripID, &b.Seats, &status, &walletID, &phone, &paymentsTxnID, &b.PriceCents, &b.CreatedAt); err != nil {
		return ledgerdomain.Booking{}, err
	}
	b.ID = kerneldomain.MustBookingID(id)
	b.TripID = kerneldomain.MustTripID(tripID)
	b.Status = kerneldomain.BookingStatus(status)
	b.CustomerPhone = phone
	if walletID != nil {
		w := kerneldomain.MustWalletID(*walletID)
		b.WalletID = &w
	}
	if paymentsTxnID != nil {
		t := mustTxnID(*paymentsTxnID)
		b.PaymentsTxnID = &t
	}
	return b, nil
}
