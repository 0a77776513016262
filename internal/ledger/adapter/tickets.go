package adapter

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"

	kerneldomain "github.com/shamell/shamell/internal/domain"
	ledgerdomain "github.com/shamell/shamell/internal/ledger/domain"
	"github.com/shamell/shamell/internal/pgdb"
)

var _ ledgerdomain.TicketRepo = (*TicketRepo)(nil)

// TicketRepo persists Tickets, one row per seat within a Booking.
type TicketRepo struct {
	pool *pgdb.Pool
}

// NewTicketRepo creates a TicketRepo.
func NewTicketRepo(pool *pgdb.Pool) *TicketRepo { return &TicketRepo{pool: pool} }

// Insert creates a ticket row inside tx.
func (r *TicketRepo) Insert(ctx context.Context, tx ledgerdomain.Tx, t ledgerdomain.Ticket) (ledgerdomain.Ticket, error) {
	ctx, span := tracer.Start(ctx, "pg.tickets.insert")
	defer span.End()

	if t.ID.IsZero() {
		t.ID = kerneldomain.GenerateTicketID()
	}
	_, err := underlying(tx).Exec(ctx,
		`INSERT INTO tickets (id, booking_id, trip_id, seat_no, status, issued_at, boarded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID.String(), t.BookingID.String(), t.TripID.String(), t.SeatNo, string(t.Status), t.IssuedAt, t.BoardedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ledgerdomain.Ticket{}, fmt.Errorf("insert ticket: %w", err)
	}
	return t, nil
}

// Find looks up a ticket by id without locking.
func (r *TicketRepo) Find(ctx context.Context, id kerneldomain.TicketID) (ledgerdomain.Ticket, error) {
	ctx, span := tracer.Start(ctx, "pg.tickets.find")
	defer span.End()

	t, err := scanTicket(r.pool.DB.QueryRow(ctx,
		`SELECT id, booking_id, trip_id, seat_no, status, issued_at, boarded_at FROM tickets WHERE id = $1`, id.String()))
	if err != nil {
		if pgdb.IsNoRows(err) {
			return ledgerdomain.Ticket{}, kerneldomain.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ledgerdomain.Ticket{}, fmt.Errorf("find ticket: %w", err)
	}
	return t, nil
}

// LockForUpdate fetches a ticket with SELECT ... FOR UPDATE inside tx, for
// the boarding critical section.
func (r *TicketRepo) LockForUpdate(ctx context.Context, tx ledgerdomain.Tx, id kerneldomain.TicketID) (ledgerdomain.Ticket, error) {
	ctx, span := tracer.Start(ctx, "pg.tickets.lock")
	defer span.End()

	t, err := scanTicket(underlying(tx).QueryRow(ctx,
		`SELECT id, booking_id, trip_id, seat_no, status, issued_at, boarded_at FROM tickets WHERE id = $1 FOR UPDATE`, id.String()))
	if err != nil {
		if pgdb.IsNoRows(err) {
			return ledgerdomain.Ticket{}, kerneldomain.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ledgerdomain.Ticket{}, fmt.Errorf("lock ticket: %w", err)
	}
	return t, nil
}

// TakenSeats returns the set of seat numbers already held (issued or
// pending, never canceled) for tripID, locked FOR UPDATE inside tx so
// concurrent reservations on the same trip serialize on these rows.
func (r *TicketRepo) TakenSeats(ctx context.Context, tx ledgerdomain.Tx, tripID kerneldomain.TripID) (map[int]bool, error) {
	ctx, span := tracer.Start(ctx, "pg.tickets.taken_seats")
	defer span.End()

	rows, err := underlying(tx).Query(ctx,
		`SELECT seat_no FROM tickets WHERE trip_id = $1 AND status <> 'canceled' FOR UPDATE`, tripID.String())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("taken seats: %w", err)
	}
	defer rows.Close()

	taken := make(map[int]bool)
	for rows.Next() {
		var seatNo int
		if err := rows.Scan(&seatNo); err != nil {
			return nil, fmt.Errorf("scan taken seat: %w", err)
		}
		taken[seatNo] = true
	}
	return taken, rows.Err()
}

// ListByBooking lists every ticket belonging to bookingID.
func (r *TicketRepo) ListByBooking(ctx context.Context, bookingID kerneldomain.BookingID) ([]ledgerdomain.Ticket, error) {
	ctx, span := tracer.Start(ctx, "pg.tickets.list_by_booking")
	defer span.End()

	rows, err := r.pool.DB.Query(ctx,
		`SELECT id, booking_id, trip_id, seat_no, status, issued_at, boarded_at FROM tickets WHERE booking_id = $1 ORDER BY seat_no`,
		bookingID.String())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	var out []ledgerdomain.Ticket
	for rows.Next() {
		t, err := scanTicketRows(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// HasBoarded reports whether any ticket in bookingID has already boarded,
// locked inside tx so cancellation can't race a concurrent boarding scan.
func (r *TicketRepo) HasBoarded(ctx context.Context, tx ledgerdomain.Tx, bookingID kerneldomain.BookingID) (bool, error) {
	ctx, span := tracer.Start(ctx, "pg.tickets.has_boarded")
	defer span.End()

	var exists bool
	err := underlying(tx).QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM tickets WHERE booking_id = $1 AND status = 'boarded' FOR UPDATE)`,
		bookingID.String(),
	).Scan(&exists)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("has boarded: %w", err)
	}
	return exists, nil
}

// MarkIssued transitions every pending ticket of bookingID to issued.
func (r *TicketRepo) MarkIssued(ctx context.Context, tx ledgerdomain.Tx, bookingID kerneldomain.BookingID, issuedAt time.Time) error {
	ctx, span := tracer.Start(ctx, "pg.tickets.mark_issued")
	defer span.End()

	_, err := underlying(tx).Exec(ctx,
		`UPDATE tickets SET status = 'issued', issued_at = $1 WHERE booking_id = $2 AND status = 'pending'`,
		issuedAt, bookingID.String(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("mark tickets issued: %w", err)
	}
	return nil
}

// MarkCanceledExceptBoarded cancels every ticket of bookingID that has not
// already boarded, releasing its seat for the refund/cancel flow.
func (r *TicketRepo) MarkCanceledExceptBoarded(ctx context.Context, tx ledgerdomain.Tx, bookingID kerneldomain.BookingID) error {
	ctx, span := tracer.Start(ctx, "pg.tickets.mark_canceled_except_boarded")
	defer span.End()

	_, err := underlying(tx).Exec(ctx,
		`UPDATE tickets SET status = 'canceled' WHERE booking_id = $1 AND status <> 'boarded'`, bookingID.String(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("cancel tickets: %w", err)
	}
	return nil
}

// MarkBoarded records a single ticket's boarding scan.
func (r *TicketRepo) MarkBoarded(ctx context.Context, tx ledgerdomain.Tx, ticketID kerneldomain.TicketID, boardedAt time.Time) error {
	ctx, span := tracer.Start(ctx, "pg.tickets.mark_boarded")
	defer span.End()

	_, err := underlying(tx).Exec(ctx,
		`UPDATE tickets SET status = 'boarded', boarded_at = $1 WHERE id = $2`, boardedAt, ticketID.String(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("mark ticket boarded: %w", err)
	}
	return nil
}

func scanTicket(row pgdb.Row) (ledgerdomain.Ticket, error) {
	var t ledgerdomain.Ticket
	var id, bookingID, tripID, status string
	if err := row.Scan(&id, &bookingID, &tripID, &t.SeatNo, &status, &t.IssuedAt, &t.BoardedAt); err != nil {
		return ledgerdomain.Ticket{}, err
	}
	t.ID = mustTicketID(id)
	t.BookingID = kerneldomain.MustBookingID(bookingID)
	t.TripID = kerneldomain.MustTripID(tripID)
	t.Status = kerneldomain.TicketStatus(status)
	return t, nil
}

func scanTicketRows(rows pgdb.Rows) (ledgerdomain.Ticket, error) {
	var t ledgerdomain.Ticket
	var id, bookingID, tripID, status string
	if err := rows.Scan(&id, &bookingID, &tripID, &t.SeatNo, &status, &t.IssuedAt, &t.BoardedAt); err != nil {
		return ledgerdomain.Ticket{}, err
	}
	t.ID = mustTicketID(id)
	t.BookingID = kerneldomain.MustBookingID(bookingID)
	t.TripID = kerneldomain.MustTripID(tripID)
	t.Status = kerneldomain.TicketStatus(status)
	return t, nil
}
