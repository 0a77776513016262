package adapter

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/codes"

	kerneldomain "github.com/shamell/shamell/internal/domain"
	ledgerdomain "github.com/shamell/shamell/internal/ledger/domain"
	"github.com/shamell/shamell/internal/pgdb"
)

var _ ledgerdomain.TripRepo = (*TripRepo)(nil)

// TripRepo persists bus trips, including the seat-inventory row locked
// during Reserve/Release.
type TripRepo struct {
	pool *pgdb.Pool
}

// NewTripRepo creates a TripRepo.
func NewTripRepo(pool *pgdb.Pool) *TripRepo { return &TripRepo{pool: pool} }

// Insert creates a new trip.
func (r *TripRepo) Insert(ctx context.Context, t ledgerdomain.Trip) (ledgerdomain.Trip, error) {
	ctx, span := tracer.Start(ctx, "pg.trips.insert")
	defer span.End()

	if t.ID.IsZero() {
		t.ID = kerneldomain.GenerateTripID()
	}
	_, err := r.pool.DB.Exec(ctx,
		`INSERT INTO trips (id, route_id, depart_at, arrive_at, price_cents, currency, seats_total, seats_available, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID.String(), t.RouteID.String(), t.DepartAt, t.ArriveAt, t.PriceCents, t.Currency, t.SeatsTotal, t.SeatsAvailable, string(t.Status),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ledgerdomain.Trip{}, fmt.Errorf("insert trip: %w", err)
	}
	return t, nil
}

// Find looks up a trip by id without locking.
func (r *TripRepo) Find(ctx context.Context, id kerneldomain.TripID) (ledgerdomain.Trip, error) {
	ctx, span := tracer.Start(ctx, "pg.trips.find")
	defer span.End()

	t, err := scanTrip(r.pool.DB.QueryRow(ctx,
		`SELECT id, route_id, depart_at, arrive_at, price_cents, currency, seats_total, seats_available, status
		 FROM trips WHERE id = $1`, id.String()))
	if err != nil {
		if pgdb.IsNoRows(err) {
			return ledgerdomain.Trip{}, kerneldomain.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ledgerdomain.Trip{}, fmt.Errorf("find trip: %w", err)
	}
	return t, nil
}

// LockForUpdate locks the trip row inside tx for the seat-reservation
// critical section.
func (r *TripRepo) LockForUpdate(ctx context.Context, tx ledgerdomain.Tx, id kerneldomain.TripID) (ledgerdomain.Trip, error) {
	ctx, span := tracer.Start(ctx, "pg.trips.lock")
	defer span.End()

	t, err := scanTrip(underlying(tx).QueryRow(ctx,
		`SELECT id, route_id, depart_at, arrive_at, price_cents, currency, seats_total, seats_available, status
		 FROM trips WHERE id = $1 FOR UPDATE`, id.String()))
	if err != nil {
		if pgdb.IsNoRows(err) {
			return ledgerdomain.Trip{}, kerneldomain.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ledgerdomain.Trip{}, fmt.Errorf("lock trip: %w", err)
	}
	return t, nil
}

// UpdateSeatsAvailable writes the new seat count inside tx.
func (r *TripRepo) UpdateSeatsAvailable(ctx context.Context, tx ledgerdomain.Tx, id kerneldomain.TripID, seatsAvailable int) error {
	ctx, span := tracer.Start(ctx, "pg.trips.update_seats_available")
	defer span.End()

	_, err := underlying(tx).Exec(ctx, `UPDATE trips SET seats_available = $1 WHERE id = $2`, seatsAvailable, id.String())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("update seats available: %w", err)
	}
	return nil
}

// UpdateStatus transitions a trip's lifecycle status outside of any
// caller transaction (publish/cancel are standalone operator actions).
func (r *TripRepo) UpdateStatus(ctx context.Context, id kerneldomain.TripID, status kerneldomain.TripStatus) error {
	ctx, span := tracer.Start(ctx, "pg.trips.update_status")
	defer span.End()

	_, err := r.pool.DB.Exec(ctx, `UPDATE trips SET status = $1 WHERE id = $2`, string(status), id.String())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("update trip status: %w", err)
	}
	return nil
}

// Search lists published trips on routeID, most recent departure first,
// capped at limit.
func (r *TripRepo) Search(ctx context.Context, routeID kerneldomain.RouteID, limit int) ([]ledgerdomain.Trip, error) {
	ctx, span := tracer.Start(ctx, "pg.trips.search")
	defer span.End()

	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.DB.Query(ctx,
		`SELECT id, route_id, depart_at, arrive_at, price_cents, currency, seats_total, seats_available, status
		 FROM trips WHERE route_id = $1 AND status = 'published' ORDER BY depart_at ASC LIMIT $2`,
		routeID.String(), limit,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("search trips: %w", err)
	}
	defer rows.Close()

	var out []ledgerdomain.Trip
	for rows.Next() {
		var id, route, currency, status string
		var t ledgerdomain.Trip
		if err := rows.Scan(&id, &route, &t.DepartAt, &t.ArriveAt, &t.PriceCents, &currency, &t.SeatsTotal, &t.SeatsAvailable, &status); err != nil {
			return nil, fmt.Errorf("scan trip: %w", err)
		}
		t.ID = kerneldomain.MustTripID(id)
		t.RouteID = mustRouteID(route)
		t.Currency = currency
		t.Status = kerneldomain.TripStatus(status)
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTrip(row pgdb.Row) (ledgerdomain.Trip, error) {
	var t ledgerdomain.Trip
	var id, route, currency, status string
	if err := row.Scan(&id, &route, &t.DepartAt, &t.ArriveAt, &t.PriceCents, &currency, &t.SeatsTotal, &t.SeatsAvailable, &status); err != nil {
		return ledgerdomain.Trip{}, err
	}
	t.ID = kerneldomain.MustTripID(id)
	t.RouteID = mustRouteID(route)
	t.Currency = currency
	t.Status = kerneldomain.TripStatus(status)
	return t, nil
}
