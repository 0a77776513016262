package port

import (
	"fmt"
	"net/http"
	"time"

	"github.com/shamell/shamell/internal/domain"
	ledgerdomain "github.com/shamell/shamell/internal/ledger/domain"
)

type hasRoleRequest struct {
	AccountID string `json:"account_id"`
	Role      string `json:"role"`
}

type hasRoleResponse struct {
	HasRole bool `json:"has_role"`
}

// HasRole reports whether an account holds a named role. Used by the
// gateway to let operator/admin principals bypass the owning-rider check
// on operator_id/route_id/trip_id paths. Internal-only.
func (h *LedgerHandler) HasRole(w http.ResponseWriter, r *http.Request) {
	if !h.checkInternalSecret(w, r) {
		return
	}
	var req hasRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ok, err := h.svc.HasRole(r.Context(), req.AccountID, req.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hasRoleResponse{HasRole: ok})
}

// FindBookingInternal looks up a booking by id for the gateway's
// booking_id ownership guard. Internal-only.
func (h *LedgerHandler) FindBookingInternal(w http.ResponseWriter, r *http.Request, rawBookingID string) {
	if !h.checkInternalSecret(w, r) {
		return
	}
	id, err := domain.NewBookingID(rawBookingID)
	if err != nil {
		writeError(w, err)
		return
	}
	b, err := h.svc.FindBooking(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bookingResponseOf(b))
}

type paymentRequestResponse struct {
	ID           string `json:"id"`
	FromWalletID string `json:"from_wallet_id"`
	ToWalletID   string `json:"to_wallet_id"`
	AmountCents  int64  `json:"amount_cents"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
}

// FindPaymentRequestInternal looks up a payment request by id for the
// gateway's request_id ownership guard. Internal-only.
func (h *LedgerHandler) FindPaymentRequestInternal(w http.ResponseWriter, r *http.Request, rawRequestID string) {
	if !h.checkInternalSecret(w, r) {
		return
	}
	id, err := domain.NewPaymentRequestID(rawRequestID)
	if err != nil {
		writeError(w, err)
		return
	}
	pr, err := h.svc.FindPaymentRequest(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, paymentRequestResponse{
		ID: pr.ID.String(), FromWalletID: pr.FromWalletID.String(), ToWalletID: pr.ToWalletID.String(),
		AmountCents: pr.AmountCents, Currency: pr.Currency, Status: string(pr.Status),
	})
}

type cityResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func cityResponseOf(c ledgerdomain.City) cityResponse {
	return cityResponse{ID: c.ID.String(), Name: c.Name}
}

type createCityRequest struct {
	Name string `json:"name"`
}

// CreateCity onboards a new route endpoint. Operator-console-only; gated
// the same way as the booking-charge routes.
func (h *LedgerHandler) CreateCity(w http.ResponseWriter, r *http.Request) {
	if !h.checkInternalSecret(w, r) {
		return
	}
	var req createCityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.svc.CreateCity(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cityResponseOf(*c))
}

// ListCities returns every known city.
func (h *LedgerHandler) ListCities(w http.ResponseWriter, r *http.Request) {
	cities, err := h.svc.ListCities(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]cityResponse, 0, len(cities))
	for _, c := range cities {
		out = append(out, cityResponseOf(c))
	}
	writeJSON(w, http.StatusOK, out)
}

type operatorResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	WalletID string `json:"wallet_id,omitempty"`
	IsOnline bool   `json:"is_online"`
}

func operatorResponseOf(o ledgerdomain.Operator) operatorResponse {
	out := operatorResponse{ID: o.ID.String(), Name: o.Name, IsOnline: o.IsOnline}
	if o.WalletID != nil {
		out.WalletID = o.WalletID.String()
	}
	return out
}

type registerOperatorRequest struct {
	Name     string `json:"name"`
	WalletID string `json:"wallet_id,omitempty"`
}

// RegisterOperator onboards a bus operator.
func (h *LedgerHandler) RegisterOperator(w http.ResponseWriter, r *http.Request) {
	if !h.checkInternalSecret(w, r) {
		return
	}
	var req registerOperatorRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	var walletID domain.WalletID
	if req.WalletID != "" {
		var err error
		walletID, err = domain.NewWalletID(req.WalletID)
		if err != nil {
			writeError(w, err)
			return
		}
	}
	o, err := h.svc.RegisterOperator(r.Context(), req.Name, walletID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, operatorResponseOf(*o))
}

// FindOperator looks up an operator by id.
func (h *LedgerHandler) FindOperator(w http.ResponseWriter, r *http.Request, rawOperatorID string) {
	id, err := domain.NewOperatorID(rawOperatorID)
	if err != nil {
		writeError(w, err)
		return
	}
	o, err := h.svc.FindOperator(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, operatorResponseOf(*o))
}

// ListOperators returns every operator.
func (h *LedgerHandler) ListOperators(w http.ResponseWriter, r *http.Request) {
	ops, err := h.svc.ListOperators(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]operatorResponse, 0, len(ops))
	for _, o := range ops {
		out = append(out, operatorResponseOf(o))
	}
	writeJSON(w, http.StatusOK, out)
}

type setOperatorOnlineRequest struct {
	Online bool `json:"online"`
}

// SetOperatorOnline flips an operator's online flag.
func (h *LedgerHandler) SetOperatorOnline(w http.ResponseWriter, r *http.Request, rawOperatorID string) {
	if !h.checkInternalSecret(w, r) {
		return
	}
	id, err := domain.NewOperatorID(rawOperatorID)
	if err != nil {
		writeError(w, err)
		return
	}
	var req setOperatorOnlineRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.SetOperatorOnline(r.Context(), id, req.Online); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"online": req.Online})
}

type routeResponse struct {
	ID           string `json:"id"`
	OriginCityID string `json:"origin_city_id"`
	DestCityID   string `json:"dest_city_id"`
	OperatorID   string `json:"operator_id"`
}

func routeResponseOf(r ledgerdomain.Route) routeResponse {
	return routeResponse{ID: r.ID.String(), OriginCityID: r.OriginCityID.String(), DestCityID: r.DestCityID.String(), OperatorID: r.OperatorID.String()}
}

type createRouteRequest struct {
	OriginCityID string `json:"origin_city_id"`
	DestCityID   string `json:"dest_city_id"`
	OperatorID   string `json:"operator_id"`
}

// CreateRoute connects two cities under an operator.
func (h *LedgerHandler) CreateRoute(w http.ResponseWriter, r *http.Request) {
	if !h.checkInternalSecret(w, r) {
		return
	}
	var req createRouteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	originID, err := domain.NewCityID(req.OriginCityID)
	if err != nil {
		writeError(w, err)
		return
	}
	destID, err := domain.NewCityID(req.DestCityID)
	if err != nil {
		writeError(w, err)
		return
	}
	operatorID, err := domain.NewOperatorID(req.OperatorID)
	if err != nil {
		writeError(w, err)
		return
	}
	route, err := h.svc.CreateRoute(r.Context(), originID, destID, operatorID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, routeResponseOf(*route))
}

// FindRoute looks up a route by id.
func (h *LedgerHandler) FindRoute(w http.ResponseWriter, r *http.Request, rawRouteID string) {
	id, err := domain.NewRouteID(rawRouteID)
	if err != nil {
		writeError(w, err)
		return
	}
	route, err := h.svc.FindRoute(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, routeResponseOf(*route))
}

// ListRoutes returns every route.
func (h *LedgerHandler) ListRoutes(w http.ResponseWriter, r *http.Request) {
	routes, err := h.svc.ListRoutes(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]routeResponse, 0, len(routes))
	for _, rt := range routes {
		out = append(out, routeResponseOf(rt))
	}
	writeJSON(w, http.StatusOK, out)
}

type tripResponse struct {
	ID             string `json:"id"`
	RouteID        string `json:"route_id"`
	DepartAt       string `json:"depart_at"`
	ArriveAt       string `json:"arrive_at"`
	PriceCents     int64  `json:"price_cents"`
	Currency       string `json:"currency"`
	SeatsTotal     int    `json:"seats_total"`
	SeatsAvailable int    `json:"seats_available"`
	Status         string `json:"status"`
}

func tripResponseOf(t ledgerdomain.Trip) tripResponse {
	return tripResponse{
		ID: t.ID.String(), RouteID: t.RouteID.String(),
		DepartAt: t.DepartAt.Format(timeLayout), ArriveAt: t.ArriveAt.Format(timeLayout),
		PriceCents: t.PriceCents, Currency: t.Currency,
		SeatsTotal: t.SeatsTotal, SeatsAvailable: t.SeatsAvailable, Status: string(t.Status),
	}
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

type publishTripRequest struct {
	RouteID    string `json:"route_id"`
	DepartAt   string `json:"depart_at"`
	ArriveAt   string `json:"arrive_at"`
	PriceCents int64  `json:"price_cents"`
	Currency   string `json:"currency,omitempty"`
	SeatsTotal int    `json:"seats_total"`
}

// PublishTrip creates and immediately publishes a bookable trip.
func (h *LedgerHandler) PublishTrip(w http.ResponseWriter, r *http.Request) {
	if !h.checkInternalSecret(w, r) {
		return
	}
	var req publishTripRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	routeID, err := domain.NewRouteID(req.RouteID)
	if err != nil {
		writeError(w, err)
		return
	}
	departAt, err := parseTime(req.DepartAt)
	if err != nil {
		writeError(w, err)
		return
	}
	arriveAt, err := parseTime(req.ArriveAt)
	if err != nil {
		writeError(w, err)
		return
	}
	t, err := h.svc.PublishTrip(r.Context(), ledgerdomain.Trip{
		RouteID: routeID, DepartAt: departAt, ArriveAt: arriveAt,
		PriceCents: req.PriceCents, Currency: req.Currency, SeatsTotal: req.SeatsTotal,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tripResponseOf(*t))
}

// CancelTrip pulls a trip out of sale.
func (h *LedgerHandler) CancelTrip(w http.ResponseWriter, r *http.Request, rawTripID string) {
	if !h.checkInternalSecret(w, r) {
		return
	}
	id, err := domain.NewTripID(rawTripID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.svc.CancelTrip(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "canceled"})
}

// FindTrip looks up a trip by id.
func (h *LedgerHandler) FindTrip(w http.ResponseWriter, r *http.Request, rawTripID string) {
	id, err := domain.NewTripID(rawTripID)
	if err != nil {
		writeError(w, err)
		return
	}
	t, err := h.svc.FindTrip(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tripResponseOf(*t))
}

// SearchTrips lists published trips on a route.
func (h *LedgerHandler) SearchTrips(w http.ResponseWriter, r *http.Request, rawRouteID string) {
	id, err := domain.NewRouteID(rawRouteID)
	if err != nil {
		writeError(w, err)
		return
	}
	trips, err := h.svc.SearchTrips(r.Context(), id, 0)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]tripResponse, 0, len(trips))
	for _, t := range trips {
		out = append(out, tripResponseOf(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", raw, domain.ErrInvalidInput)
	}
	return t, nil
}
