package app

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/codes"

	kerneldomain "github.com/shamell/shamell/internal/domain"
	ledgerdomain "github.com/shamell/shamell/internal/ledger/domain"
)

// BookTripParams are the inputs to BookTrip.
type BookTripParams struct {
	TripID         kerneldomain.TripID
	WalletID       kerneldomain.WalletID // required when payments are enforced
	CustomerPhone  string
	SeatsRequested int   // used when SeatNumbers is empty
	SeatNumbers    []int // explicit client-selected seats, 1-indexed
	IdempotencyKey string
}

// BookTrip runs the Validate -> Idempotency -> Reserve -> Charge -> Confirm
// saga, releasing the reservation if the charge fails.
func (s *LedgerService) BookTrip(ctx context.Context, p BookTripParams) (*ledgerdomain.Booking, error) {
	ctx, span := tracer.Start(ctx, "ledger.BookTrip")
	defer span.End()

	requirePayment := s.requirePayment()
	if requirePayment && p.WalletID.IsZero() {
		return nil, fmt.Errorf("wallet_id required: %w", kerneldomain.ErrInvalidInput)
	}

	seats := p.SeatsRequested
	if len(p.SeatNumbers) > 0 {
		seats = len(p.SeatNumbers)
	}
	if seats < 1 || seats > kerneldomain.MaxBookingSeats {
		return nil, fmt.Errorf("seats_requested must be between 1 and %d: %w", kerneldomain.MaxBookingSeats, kerneldomain.ErrInvalidInput)
	}
	seen := map[int]bool{}
	for _, n := range p.SeatNumbers {
		if n < 1 {
			return nil, fmt.Errorf("seat numbers must be positive: %w", kerneldomain.ErrInvalidInput)
		}
		if seen[n] {
			return nil, fmt.Errorf("duplicate seat number %d: %w", n, kerneldomain.ErrInvalidInput)
		}
		seen[n] = true
	}
	var seatHash string
	if len(p.SeatNumbers) > 0 {
		seatHash = ledgerdomain.SeatNumbersHash(p.SeatNumbers)
	}

	trip, err := s.trips.Find(ctx, p.TripID)
	if err != nil {
		return nil, fmt.Errorf("find trip: %w", err)
	}
	if trip.Status != kerneldomain.TripPublished && s.environment != "test" {
		return nil, kerneldomain.ErrTripNotPublished
	}
	for _, n := range p.SeatNumbers {
		if n > trip.SeatsTotal {
			return nil, fmt.Errorf("seat number %d exceeds trip capacity: %w", n, kerneldomain.ErrInvalidInput)
		}
	}

	if p.IdempotencyKey != "" {
		if existing, err := s.replayBookingIdempotency(ctx, p, seatHash); err != nil {
			return nil, err
		} else if existing != nil {
			if existing.Status == kerneldomain.BookingPending && requirePayment {
				return s.chargeAndConfirm(ctx, *existing, trip)
			}
			return existing, nil
		}
	}

	booking, err := s.reserveBooking(ctx, p, trip, seats, requirePayment)
	if err != nil {
		return nil, err
	}
	bookingsTotal.Add(ctx, 1)

	if p.IdempotencyKey != "" {
		_ = s.bookingIdempotency.Insert(ctx, ledgerdomain.BookingIdempotency{
			Key: p.IdempotencyKey, TripID: p.TripID, WalletID: walletPtr(p.WalletID),
			Seats: seats, SeatNumbersHash: seatHash, BookingID: &booking.ID,
		})
	}

	if !requirePayment {
		return &booking, nil
	}
	return s.chargeAndConfirm(ctx, booking, trip)
}

func (s *LedgerService) replayBookingIdempotency(ctx context.Context, p BookTripParams, seatHash string) (*ledgerdomain.Booking, error) {
	rec, err := s.bookingIdempotency.Find(ctx, p.IdempotencyKey)
	if err != nil {
		if kerneldomain.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup booking idempotency key: %w", err)
	}
	mismatch := rec.TripID != p.TripID || rec.Seats != (func() int {
		if len(p.SeatNumbers) > 0 {
			return len(p.SeatNumbers)
		}
		return p.SeatsRequested
	}()) || rec.SeatNumbersHash != seatHash
	if !mismatch && rec.WalletID != nil && *rec.WalletID != p.WalletID {
		mismatch = true
	}
	if mismatch {
		return nil, kerneldomain.ErrIdempotencyMismatch
	}
	if rec.BookingID == nil {
		return nil, nil
	}
	b, err := s.bookings.Find(ctx, *rec.BookingID)
	if err != nil {
		if kerneldomain.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find booking from idempotency record: %w", err)
	}
	return &b, nil
}

func (s *LedgerService) reserveBooking(ctx context.Context, p BookTripParams, trip ledgerdomain.Trip, seats int, requirePayment bool) (ledgerdomain.Booking, error) {
	tx, err := s.txRunner.Begin(ctx)
	if err != nil {
		return ledgerdomain.Booking{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	lockedTrip, err := s.trips.LockForUpdate(ctx, tx, p.TripID)
	if err != nil {
		return ledgerdomain.Booking{}, fmt.Errorf("lock trip: %w", err)
	}
	if lockedTrip.SeatsAvailable < seats {
		return ledgerdomain.Booking{}, kerneldomain.ErrSeatsUnavailable
	}

	taken, err := s.tickets.TakenSeats(ctx, tx, p.TripID)
	if err != nil {
		return ledgerdomain.Booking{}, fmt.Errorf("lock taken seats: %w", err)
	}

	seatNumbers := p.SeatNumbers
	if len(seatNumbers) == 0 {
		seatNumbers = make([]int, 0, seats)
		for n := 1; n <= lockedTrip.SeatsTotal && len(seatNumbers) < seats; n++ {
			if !taken[n] {
				seatNumbers = append(seatNumbers, n)
			}
		}
		if len(seatNumbers) < seats {
			return ledgerdomain.Booking{}, kerneldomain.ErrSeatsUnavailable
		}
	} else {
		for _, n := range seatNumbers {
			if taken[n] {
				return ledgerdomain.Booking{}, kerneldomain.ErrSeatsUnavailable
			}
		}
	}
	sort.Ints(seatNumbers)

	if err := s.trips.UpdateSeatsAvailable(ctx, tx, p.TripID, lockedTrip.SeatsAvailable-seats); err != nil {
		return ledgerdomain.Booking{}, fmt.Errorf("debit seat inventory: %w", err)
	}

	ticketStatus := kerneldomain.TicketIssued
	if requirePayment {
		ticketStatus = kerneldomain.TicketPending
	}
	booking := ledgerdomain.Booking{
		ID:            kerneldomain.GenerateBookingID(),
		TripID:        p.TripID,
		Seats:         seats,
		Status:        kerneldomain.BookingPending,
		WalletID:      walletPtr(p.WalletID),
		CustomerPhone: p.CustomerPhone,
		PriceCents:    lockedTrip.PriceCents * int64(seats),
		CreatedAt:     s.clock.Now(),
	}
	booking, err = s.bookings.Insert(ctx, tx, booking)
	if err != nil {
		return ledgerdomain.Booking{}, fmt.Errorf("insert booking: %w", err)
	}
	for _, n := range seatNumbers {
		if _, err := s.tickets.Insert(ctx, tx, ledgerdomain.Ticket{
			ID: kerneldomain.GenerateTicketID(), BookingID: booking.ID, TripID: p.TripID,
			SeatNo: n, Status: ticketStatus,
		}); err != nil {
			return ledgerdomain.Booking{}, fmt.Errorf("insert ticket seat %d: %w", n, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return ledgerdomain.Booking{}, fmt.Errorf("commit reserve: %w", err)
	}
	return booking, nil
}

// chargeAndConfirm charges the rider's wallet for a pending booking via an
// in-process Transfer call (Booking and Ledger share one process and one
// database) and confirms the booking on success, releasing the
// reservation on failure.
func (s *LedgerService) chargeAndConfirm(ctx context.Context, booking ledgerdomain.Booking, trip ledgerdomain.Trip) (*ledgerdomain.Booking, error) {
	ctx, span := tracer.Start(ctx, "ledger.chargeAndConfirm")
	defer span.End()

	route, err := s.routes.Find(ctx, trip.RouteID)
	if err != nil {
		_ = s.releaseBooking(ctx, booking.ID)
		return nil, fmt.Errorf("find route: %w", err)
	}
	operator, err := s.operators.Find(ctx, route.OperatorID)
	if err != nil {
		_ = s.releaseBooking(ctx, booking.ID)
		return nil, fmt.Errorf("find operator: %w", err)
	}
	if operator.WalletID == nil {
		_ = s.releaseBooking(ctx, booking.ID)
		return nil, fmt.Errorf("operator has no wallet configured: %w", kerneldomain.ErrUpstream)
	}

	if booking.WalletID != nil && *booking.WalletID != *operator.WalletID {
		_, err = s.Transfer(ctx, TransferParams{
			FromWalletID:   *booking.WalletID,
			ToWalletID:     *operator.WalletID,
			AmountCents:    booking.PriceCents,
			IdempotencyKey: fmt.Sprintf("bus-booking-charge-%s", booking.ID),
			MetaSuffix:     fmt.Sprintf(" (merchant=bus ref=booking-charge-%s)", booking.ID),
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			_ = s.releaseBooking(ctx, booking.ID)
			return nil, err
		}
	}

	confirmed, err := s.confirmBooking(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	bookingsTotal.Add(ctx, 1)
	return confirmed, nil
}

func (s *LedgerService) confirmBooking(ctx context.Context, bookingID kerneldomain.BookingID) (*ledgerdomain.Booking, error) {
	tx, err := s.txRunner.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	booking, err := s.bookings.LockForUpdate(ctx, tx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("lock booking: %w", err)
	}
	if booking.Status != kerneldomain.BookingConfirmed {
		txnID := kerneldomain.GenerateTxnID()
		if err := s.bookings.UpdateStatus(ctx, tx, bookingID, kerneldomain.BookingConfirmed, &txnID); err != nil {
			return nil, fmt.Errorf("confirm booking: %w", err)
		}
		booking.Status = kerneldomain.BookingConfirmed
		booking.PaymentsTxnID = &txnID
		// issued_at = COALESCE(issued_at, now): tickets created while
		// payments were required start "pending" and transition here;
		// re-confirming a booking never clobbers an already-issued timestamp.
		if err := s.tickets.MarkIssued(ctx, tx, bookingID, s.clock.Now()); err != nil {
			return nil, fmt.Errorf("issue tickets: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit confirm: %w", err)
	}
	return &booking, nil
}

// releaseBooking restores seat inventory and cancels a booking's tickets
// after a failed charge. Idempotent: a missing booking is a no-op, matching
// the release path being retried after a partial failure.
func (s *LedgerService) releaseBooking(ctx context.Context, bookingID kerneldomain.BookingID) error {
	tx, err := s.txRunner.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	booking, err := s.bookings.LockForUpdate(ctx, tx, bookingID)
	if err != nil {
		if kerneldomain.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("lock booking: %w", err)
	}
	trip, err := s.trips.LockForUpdate(ctx, tx, booking.TripID)
	if err != nil {
		return fmt.Errorf("lock trip: %w", err)
	}
	restored := trip.SeatsAvailable + booking.Seats
	if restored > trip.SeatsTotal {
		restored = trip.SeatsTotal
	}
	if err := s.trips.UpdateSeatsAvailable(ctx, tx, trip.ID, restored); err != nil {
		return fmt.Errorf("restore seat inventory: %w", err)
	}
	if err := s.tickets.MarkCanceledExceptBoarded(ctx, tx, bookingID); err != nil {
		return fmt.Errorf("cancel tickets: %w", err)
	}
	if err := s.bookings.UpdateStatus(ctx, tx, bookingID, kerneldomain.BookingFailed, nil); err != nil {
		return fmt.Errorf("mark booking failed: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit release: %w", err)
	}
	return nil
}

// BookingCancelResult is the wire-facing result of CancelBooking.
type BookingCancelResult struct {
	Booking        ledgerdomain.Booking
	RefundCents    int64
	RefundCurrency string
	RefundPercent  int
}

// CancelBooking cancels a booking's unboarded tickets, restores seat
// inventory, and refunds the rider per the departure-proximity tier.
// Any boarded ticket on the booking blocks cancellation.
func (s *LedgerService) CancelBooking(ctx context.Context, bookingID kerneldomain.BookingID) (*BookingCancelResult, error) {
	ctx, span := tracer.Start(ctx, "ledger.CancelBooking")
	defer span.End()

	tx, err := s.txRunner.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	booking, err := s.bookings.LockForUpdate(ctx, tx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("lock booking: %w", err)
	}
	if booking.Status == kerneldomain.BookingCanceled {
		return nil, kerneldomain.ErrBookingNotPending
	}
	trip, err := s.trips.LockForUpdate(ctx, tx, booking.TripID)
	if err != nil {
		return nil, fmt.Errorf("lock trip: %w", err)
	}
	pct := ledgerdomain.RefundPercent(s.clock.Now(), trip.DepartAt)
	if pct <= 0 {
		return nil, kerneldomain.ErrDepartureHasPassed
	}
	boarded, err := s.tickets.HasBoarded(ctx, tx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("check boarded tickets: %w", err)
	}
	if boarded {
		return nil, kerneldomain.ErrTicketAlreadyBoarded
	}

	amount := booking.PriceCents
	if amount == 0 {
		amount = trip.PriceCents * int64(booking.Seats)
	}
	refundCents := amount * int64(pct) / 100

	restored := trip.SeatsAvailable + booking.Seats
	if restored > trip.SeatsTotal {
		restored = trip.SeatsTotal
	}
	if err := s.trips.UpdateSeatsAvailable(ctx, tx, trip.ID, restored); err != nil {
		return nil, fmt.Errorf("restore seat inventory: %w", err)
	}
	if err := s.tickets.MarkCanceledExceptBoarded(ctx, tx, bookingID); err != nil {
		return nil, fmt.Errorf("cancel tickets: %w", err)
	}

	// Note: this keeps the DB transaction open while calling an in-process
	// refund transfer, which can hold row locks longer than ideal. Kept for
	// the default; RefundOutboxMode is the documented escape hatch for a
	// future staged-outbox alternative.
	if s.paymentsEnabled && refundCents > 0 && booking.WalletID != nil {
		route, err := s.routes.Find(ctx, trip.RouteID)
		if err != nil {
			return nil, fmt.Errorf("find route: %w", err)
		}
		operator, err := s.operators.Find(ctx, route.OperatorID)
		if err != nil {
			return nil, fmt.Errorf("find operator: %w", err)
		}
		if operator.WalletID == nil {
			return nil, fmt.Errorf("operator has no wallet configured: %w", kerneldomain.ErrUpstream)
		}
		if *operator.WalletID != *booking.WalletID {
			if _, err := s.Transfer(ctx, TransferParams{
				FromWalletID:   *operator.WalletID,
				ToWalletID:     *booking.WalletID,
				AmountCents:    refundCents,
				IdempotencyKey: fmt.Sprintf("bus-booking-refund-%s", booking.ID),
				MetaSuffix:     fmt.Sprintf(" (merchant=bus ref=booking-refund-%s)", booking.ID),
			}); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return nil, fmt.Errorf("refund transfer: %w", err)
			}
		}
	}

	if err := s.bookings.UpdateStatus(ctx, tx, bookingID, kerneldomain.BookingCanceled, booking.PaymentsTxnID); err != nil {
		return nil, fmt.Errorf("mark booking canceled: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit cancel: %w", err)
	}
	booking.Status = kerneldomain.BookingCanceled
	cancellationsTotal.Add(ctx, 1)
	return &BookingCancelResult{Booking: booking, RefundCents: refundCents, RefundCurrency: trip.Currency, RefundPercent: pct}, nil
}

// BoardTicket validates a scanned boarding-pass payload and marks the ticket
// boarded, or no-ops idempotently if it was already boarded.
func (s *LedgerService) BoardTicket(ctx context.Context, payload string) (*ledgerdomain.Ticket, error) {
	ctx, span := tracer.Start(ctx, "ledger.BoardTicket")
	defer span.End()

	ticketIDStr, bookingIDStr, tripIDStr, seat, sig, err := ledgerdomain.ParseTicketPayload(payload)
	if err != nil {
		return nil, err
	}
	ticketID, err := kerneldomain.NewTicketID(ticketIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid ticket id: %w", kerneldomain.ErrInvalidInput)
	}

	tx, err := s.txRunner.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	ticket, err := s.tickets.LockForUpdate(ctx, tx, ticketID)
	if err != nil {
		if kerneldomain.IsNotFound(err) {
			return nil, kerneldomain.ErrNotFound
		}
		return nil, fmt.Errorf("lock ticket: %w", err)
	}
	// Oracle avoidance: a booking/trip id mismatch looks identical to "not
	// found" rather than revealing which field was wrong.
	if ticket.BookingID.String() != bookingIDStr || ticket.TripID.String() != tripIDStr {
		return nil, kerneldomain.ErrNotFound
	}
	if ticket.Status == kerneldomain.TicketCanceled {
		return nil, fmt.Errorf("ticket canceled: %w", kerneldomain.ErrBoardingRejected)
	}
	if !ledgerdomain.VerifyTicketSignature(s.ticketSecret, ticketIDStr, bookingIDStr, tripIDStr, seat, sig) {
		return nil, kerneldomain.ErrUnauthorized
	}

	booking, err := s.bookings.Find(ctx, ticket.BookingID)
	if err != nil {
		return nil, fmt.Errorf("find booking: %w", err)
	}
	if booking.Status != kerneldomain.BookingConfirmed && s.paymentsEnabled && s.environment != "dev" && s.environment != "test" {
		return nil, fmt.Errorf("booking not confirmed: %w", kerneldomain.ErrBoardingRejected)
	}

	if ticket.Status == kerneldomain.TicketBoarded {
		boardingsTotal.Add(ctx, 1)
		return &ticket, nil
	}

	now := s.clock.Now()
	if err := s.tickets.MarkBoarded(ctx, tx, ticketID, now); err != nil {
		return nil, fmt.Errorf("mark boarded: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit board: %w", err)
	}
	ticket.Status = kerneldomain.TicketBoarded
	ticket.BoardedAt = &now
	boardingsTotal.Add(ctx, 1)
	return &ticket, nil
}

func walletPtr(id kerneldomain.WalletID) *kerneldomain.WalletID {
	if id.IsZero() {
		return nil
	}
	return &id
}
