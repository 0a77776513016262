package app

import (
	"context"
	"fmt"

	kerneldomain "github.com/shamell/shamell/internal/domain"
	ledgerdomain "github.com/shamell/shamell/internal/ledger/domain"
)

// CreateCity registers a new route endpoint.
func (s *LedgerService) CreateCity(ctx context.Context, name string) (*ledgerdomain.City, error) {
	ctx, span := tracer.Start(ctx, "ledger.CreateCity")
	defer span.End()
	if name == "" {
		return nil, fmt.Errorf("name is required: %w", kerneldomain.ErrInvalidInput)
	}
	c, err := s.cities.Insert(ctx, ledgerdomain.City{Name: name})
	if err != nil {
		return nil, fmt.Errorf("insert city: %w", err)
	}
	return &c, nil
}

// ListCities returns every known city.
func (s *LedgerService) ListCities(ctx context.Context) ([]ledgerdomain.City, error) {
	return s.cities.List(ctx)
}

// RegisterOperator onboards a bus operator, optionally wired to a wallet
// (lazily materialized the same way rider wallets are, via EnsureUser, when
// a wallet-owning accountID is supplied by the caller beforehand).
func (s *LedgerService) RegisterOperator(ctx context.Context, name string, walletID kerneldomain.WalletID) (*ledgerdomain.Operator, error) {
	ctx, span := tracer.Start(ctx, "ledger.RegisterOperator")
	defer span.End()
	if name == "" {
		return nil, fmt.Errorf("name is required: %w", kerneldomain.ErrInvalidInput)
	}
	op := ledgerdomain.Operator{Name: name}
	if !walletID.IsZero() {
		op.WalletID = &walletID
	}
	o, err := s.operators.Insert(ctx, op)
	if err != nil {
		return nil, fmt.Errorf("insert operator: %w", err)
	}
	return &o, nil
}

// FindOperator looks up an operator by id, used by the gateway's
// operator_id ownership guard.
func (s *LedgerService) FindOperator(ctx context.Context, id kerneldomain.OperatorID) (*ledgerdomain.Operator, error) {
	o, err := s.operators.Find(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find operator: %w", err)
	}
	return &o, nil
}

// ListOperators returns every operator.
func (s *LedgerService) ListOperators(ctx context.Context) ([]ledgerdomain.Operator, error) {
	return s.operators.List(ctx)
}

// SetOperatorOnline flips an operator's online flag. Callers must already
// have confirmed accountID holds the "operator" role for this operator.
func (s *LedgerService) SetOperatorOnline(ctx context.Context, id kerneldomain.OperatorID, online bool) error {
	ctx, span := tracer.Start(ctx, "ledger.SetOperatorOnline")
	defer span.End()
	if err := s.operators.SetOnline(ctx, id, online); err != nil {
		return fmt.Errorf("set operator online: %w", err)
	}
	return nil
}

// CreateRoute connects two cities under an operator.
func (s *LedgerService) CreateRoute(ctx context.Context, originCityID, destCityID kerneldomain.CityID, operatorID kerneldomain.OperatorID) (*ledgerdomain.Route, error) {
	ctx, span := tracer.Start(ctx, "ledger.CreateRoute")
	defer span.End()
	if originCityID.IsZero() || destCityID.IsZero() || operatorID.IsZero() {
		return nil, fmt.Errorf("origin, destination and operator are required: %w", kerneldomain.ErrInvalidInput)
	}
	r, err := s.routes.Insert(ctx, ledgerdomain.Route{OriginCityID: originCityID, DestCityID: destCityID, OperatorID: operatorID})
	if err != nil {
		return nil, fmt.Errorf("insert route: %w", err)
	}
	return &r, nil
}

// FindRoute looks up a route by id, used by the gateway's route_id
// ownership guard.
func (s *LedgerService) FindRoute(ctx context.Context, id kerneldomain.RouteID) (*ledgerdomain.Route, error) {
	r, err := s.routes.Find(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find route: %w", err)
	}
	return &r, nil
}

// ListRoutes returns every route.
func (s *LedgerService) ListRoutes(ctx context.Context) ([]ledgerdomain.Route, error) {
	return s.routes.List(ctx)
}

// PublishTrip creates a trip and immediately publishes it so riders can
// book it. A staged draft workflow would call CreateTrip directly; only
// PublishTrip is exposed over HTTP.
func (s *LedgerService) PublishTrip(ctx context.Context, t ledgerdomain.Trip) (*ledgerdomain.Trip, error) {
	ctx, span := tracer.Start(ctx, "ledger.PublishTrip")
	defer span.End()
	if t.RouteID.IsZero() || t.SeatsTotal < 1 {
		return nil, fmt.Errorf("route_id and a positive seats_total are required: %w", kerneldomain.ErrInvalidInput)
	}
	if t.Currency == "" {
		t.Currency = "USD"
	}
	t.SeatsAvailable = t.SeatsTotal
	t.Status = kerneldomain.TripPublished
	trip, err := s.trips.Insert(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("insert trip: %w", err)
	}
	return &trip, nil
}

// CancelTrip transitions a trip out of sale. Already-booked riders keep
// their bookings; operators cancel those separately via CancelBooking.
func (s *LedgerService) CancelTrip(ctx context.Context, id kerneldomain.TripID) error {
	ctx, span := tracer.Start(ctx, "ledger.CancelTrip")
	defer span.End()
	if err := s.trips.UpdateStatus(ctx, id, kerneldomain.TripCanceled); err != nil {
		return fmt.Errorf("cancel trip: %w", err)
	}
	return nil
}

// FindTrip looks up a trip by id, used by the gateway's trip_id ownership
// guard and by clients confirming a trip's current price/seat availability.
func (s *LedgerService) FindTrip(ctx context.Context, id kerneldomain.TripID) (*ledgerdomain.Trip, error) {
	t, err := s.trips.Find(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find trip: %w", err)
	}
	return &t, nil
}

// SearchTrips lists published trips on a route, most imminent departure
// first.
func (s *LedgerService) SearchTrips(ctx context.Context, routeID kerneldomain.RouteID, limit int) ([]ledgerdomain.Trip, error) {
	return s.trips.Search(ctx, routeID, limit)
}

// HasRole reports whether accountID holds role, used by the gateway to
// let operator/admin principals bypass the owning-rider check on
// operator_id/route_id/trip_id paths.
func (s *LedgerService) HasRole(ctx context.Context, accountID, role string) (bool, error) {
	return s.roles.HasRole(ctx, accountID, role)
}

// FindBooking looks up a booking by id, used by the gateway's booking_id
// ownership guard (the caller compares booking.WalletID against the
// principal's own wallet).
func (s *LedgerService) FindBooking(ctx context.Context, id kerneldomain.BookingID) (*ledgerdomain.Booking, error) {
	b, err := s.bookings.Find(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find booking: %w", err)
	}
	return &b, nil
}

// FindPaymentRequest looks up a payment request by id, used by the
// gateway's request_id ownership guard.
func (s *LedgerService) FindPaymentRequest(ctx context.Context, id kerneldomain.PaymentRequestID) (*ledgerdomain.PaymentRequest, error) {
	pr, err := s.paymentRequests.Find(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find payment request: %w", err)
	}
	return &pr, nil
}
