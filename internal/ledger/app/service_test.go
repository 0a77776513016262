package app_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	kerneldomain "github.com/shamell/shamell/internal/domain"
	"github.com/shamell/shamell/internal/domain/domaintest"
	"github.com/shamell/shamell/internal/ledger/app"
	ledgerdomain "github.com/shamell/shamell/internal/ledger/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// The fakes below are stateful in-memory repos rather than per-method stub
// functions: the transfer and booking sagas are only meaningful against a
// store that remembers balances, entries, and seat inventory between the
// calls of one flow, so the tests can assert the zero-sum and balance
// invariants end to end.

type fakeTx struct{}

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }

type fakeTxRunner struct{}

func (fakeTxRunner) Begin(context.Context) (ledgerdomain.Tx, error) { return fakeTx{}, nil }

type fakeWallets struct {
	mu          sync.Mutex
	wallets     map[kerneldomain.WalletID]ledgerdomain.Wallet
	feeWalletID kerneldomain.WalletID
}

func newFakeWallets() *fakeWallets {
	return &fakeWallets{wallets: map[kerneldomain.WalletID]ledgerdomain.Wallet{}}
}

func (f *fakeWallets) add(balance int64, currency string) kerneldomain.WalletID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := kerneldomain.GenerateWalletID()
	f.wallets[id] = ledgerdomain.Wallet{ID: id, UserID: kerneldomain.GenerateUserID(), BalanceCents: balance, Currency: currency}
	return id
}

func (f *fakeWallets) balance(id kerneldomain.WalletID) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.wallets[id].BalanceCents
}

func (f *fakeWallets) EnsureUser(_ context.Context, accountID kerneldomain.AccountID, phone string) (ledgerdomain.User, error) {
	return ledgerdomain.User{ID: kerneldomain.GenerateUserID(), AccountID: accountID, Phone: phone}, nil
}

func (f *fakeWallets) FindWallet(_ context.Context, id kerneldomain.WalletID) (ledgerdomain.Wallet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.wallets[id]
	if !ok {
		return ledgerdomain.Wallet{}, kerneldomain.ErrNotFound
	}
	return w, nil
}

func (f *fakeWallets) LockWallet(ctx context.Context, _ ledgerdomain.Tx, id kerneldomain.WalletID) (ledgerdomain.Wallet, error) {
	return f.FindWallet(ctx, id)
}

func (f *fakeWallets) UpdateBalance(_ context.Context, _ ledgerdomain.Tx, id kerneldomain.WalletID, newBalance int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.wallets[id]
	if !ok {
		return kerneldomain.ErrNotFound
	}
	w.BalanceCents = newBalance
	f.wallets[id] = w
	return nil
}

func (f *fakeWallets) EnsureFeeWallet(_ context.Context, _, _ string) (kerneldomain.WalletID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.feeWalletID.IsZero() {
		id := kerneldomain.GenerateWalletID()
		f.wallets[id] = ledgerdomain.Wallet{ID: id, UserID: kerneldomain.GenerateUserID(), Currency: "SYP"}
		f.feeWalletID = id
	}
	return f.feeWalletID, nil
}

func (f *fakeWallets) EnsureFeeWalletTx(ctx context.Context, _ ledgerdomain.Tx, accountID, phone string) (kerneldomain.WalletID, error) {
	return f.EnsureFeeWallet(ctx, accountID, phone)
}

type fakeLedger struct {
	mu      sync.Mutex
	txns    []ledgerdomain.Txn
	entries []ledgerdomain.LedgerEntry
}

func (f *fakeLedger) InsertTxn(_ context.Context, _ ledgerdomain.Tx, t ledgerdomain.Txn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txns = append(f.txns, t)
	return nil
}

func (f *fakeLedger) InsertEntry(_ context.Context, _ ledgerdomain.Tx, e ledgerdomain.LedgerEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeLedger) SumEntries(_ context.Context, walletID kerneldomain.WalletID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int64
	for _, e := range f.entries {
		if e.WalletID != nil && *e.WalletID == walletID {
			sum += e.AmountCents
		}
	}
	return sum, nil
}

// sumForTxn asserts invariant I1: entries for a txn sum to zero.
func (f *fakeLedger) sumForTxn(txnID kerneldomain.TxnID) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int64
	for _, e := range f.entries {
		if e.TxnID == txnID {
			sum += e.AmountCents
		}
	}
	return sum
}

type fakeIdempotency struct {
	mu   sync.Mutex
	recs map[string]ledgerdomain.IdempotencyRecord
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{recs: map[string]ledgerdomain.IdempotencyRecord{}}
}

func (f *fakeIdempotency) Find(_ context.Context, key string) (ledgerdomain.IdempotencyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[key]
	if !ok {
		return ledgerdomain.IdempotencyRecord{}, kerneldomain.ErrNotFound
	}
	return rec, nil
}

func (f *fakeIdempotency) Insert(_ context.Context, _ ledgerdomain.Tx, rec ledgerdomain.IdempotencyRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.recs[rec.Key]; !exists {
		f.recs[rec.Key] = rec
	}
	return nil
}

type fakeAliases struct {
	aliases map[string]ledgerdomain.Alias
}

func (f *fakeAliases) FindActive(_ context.Context, handle string) (ledgerdomain.Alias, error) {
	a, ok := f.aliases[handle]
	if !ok || a.Status != ledgerdomain.AliasActive {
		return ledgerdomain.Alias{}, kerneldomain.ErrNotFound
	}
	return a, nil
}

type fakeFavorites struct {
	mu   sync.Mutex
	favs []ledgerdomain.Favorite
}

func (f *fakeFavorites) FindByPair(_ context.Context, owner, fav kerneldomain.WalletID) (ledgerdomain.Favorite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, x := range f.favs {
		if x.OwnerWalletID == owner && x.FavoriteWalletID == fav {
			return x, nil
		}
	}
	return ledgerdomain.Favorite{}, kerneldomain.ErrNotFound
}

func (f *fakeFavorites) Upsert(_ context.Context, fav ledgerdomain.Favorite) (ledgerdomain.Favorite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.favs = append(f.favs, fav)
	return fav, nil
}

func (f *fakeFavorites) ListByOwner(_ context.Context, owner kerneldomain.WalletID) ([]ledgerdomain.Favorite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ledgerdomain.Favorite
	for _, x := range f.favs {
		if x.OwnerWalletID == owner {
			out = append(out, x)
		}
	}
	return out, nil
}

type fakePaymentRequests struct {
	mu   sync.Mutex
	recs map[kerneldomain.PaymentRequestID]ledgerdomain.PaymentRequest
}

func newFakePaymentRequests() *fakePaymentRequests {
	return &fakePaymentRequests{recs: map[kerneldomain.PaymentRequestID]ledgerdomain.PaymentRequest{}}
}

func (f *fakePaymentRequests) Insert(_ context.Context, r ledgerdomain.PaymentRequest) (ledgerdomain.PaymentRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs[r.ID] = r
	return r, nil
}

func (f *fakePaymentRequests) Find(_ context.Context, id kerneldomain.PaymentRequestID) (ledgerdomain.PaymentRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.recs[id]
	if !ok {
		return ledgerdomain.PaymentRequest{}, kerneldomain.ErrNotFound
	}
	return r, nil
}

func (f *fakePaymentRequests) LockForUpdate(ctx context.Context, _ ledgerdomain.Tx, id kerneldomain.PaymentRequestID) (ledgerdomain.PaymentRequest, error) {
	return f.Find(ctx, id)
}

func (f *fakePaymentRequests) UpdateStatus(_ context.Context, _ ledgerdomain.Tx, id kerneldomain.PaymentRequestID, status kerneldomain.PaymentRequestStatus, resultTxnID *kerneldomain.TxnID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.recs[id]
	if !ok {
		return kerneldomain.ErrNotFound
	}
	r.Status = status
	r.ResultTxnID = resultTxnID
	f.recs[id] = r
	return nil
}

type fakeRoles struct {
	grants map[string]bool // "<account>:<role>"
}

func (f *fakeRoles) HasRole(_ context.Context, accountID, role string) (bool, error) {
	return f.grants[accountID+":"+role], nil
}

type fakeCities struct {
	mu     sync.Mutex
	cities []ledgerdomain.City
}

func (f *fakeCities) Insert(_ context.Context, c ledgerdomain.City) (ledgerdomain.City, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cities = append(f.cities, c)
	return c, nil
}

func (f *fakeCities) List(_ context.Context) ([]ledgerdomain.City, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ledgerdomain.City(nil), f.cities...), nil
}

type fakeOperators struct {
	mu  sync.Mutex
	ops map[kerneldomain.OperatorID]ledgerdomain.Operator
}

func newFakeOperators() *fakeOperators {
	return &fakeOperators{ops: map[kerneldomain.OperatorID]ledgerdomain.Operator{}}
}

func (f *fakeOperators) Insert(_ context.Context, o ledgerdomain.Operator) (ledgerdomain.Operator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops[o.ID] = o
	return o, nil
}

func (f *fakeOperators) Find(_ context.Context, id kerneldomain.OperatorID) (ledgerdomain.Operator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.ops[id]
	if !ok {
		return ledgerdomain.Operator{}, kerneldomain.ErrNotFound
	}
	return o, nil
}

func (f *fakeOperators) List(_ context.Context) ([]ledgerdomain.Operator, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ledgerdomain.Operator, 0, len(f.ops))
	for _, o := range f.ops {
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeOperators) SetOnline(_ context.Context, id kerneldomain.OperatorID, online bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.ops[id]
	if !ok {
		return kerneldomain.ErrNotFound
	}
	o.IsOnline = online
	f.ops[id] = o
	return nil
}

type fakeRoutes struct {
	mu     sync.Mutex
	routes map[kerneldomain.RouteID]ledgerdomain.Route
}

func newFakeRoutes() *fakeRoutes {
	return &fakeRoutes{routes: map[kerneldomain.RouteID]ledgerdomain.Route{}}
}

func (f *fakeRoutes) Insert(_ context.Context, r ledgerdomain.Route) (ledgerdomain.Route, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[r.ID] = r
	return r, nil
}

func (f *fakeRoutes) Find(_ context.Context, id kerneldomain.RouteID) (ledgerdomain.Route, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.routes[id]
	if !ok {
		return ledgerdomain.Route{}, kerneldomain.ErrNotFound
	}
	return r, nil
}

func (f *fakeRoutes) List(_ context.Context) ([]ledgerdomain.Route, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ledgerdomain.Route, 0, len(f.routes))
	for _, r := range f.routes {
		out = append(out, r)
	}
	return out, nil
}

type fakeTrips struct {
	mu    sync.Mutex
	trips map[kerneldomain.TripID]ledgerdomain.Trip
}

func newFakeTrips() *fakeTrips {
	return &fakeTrips{trips: map[kerneldomain.TripID]ledgerdomain.Trip{}}
}

func (f *fakeTrips) Insert(_ context.Context, t ledgerdomain.Trip) (ledgerdomain.Trip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trips[t.ID] = t
	return t, nil
}

func (f *fakeTrips) Find(_ context.Context, id kerneldomain.TripID) (ledgerdomain.Trip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.trips[id]
	if !ok {
		return ledgerdomain.Trip{}, kerneldomain.ErrNotFound
	}
	return t, nil
}

func (f *fakeTrips) LockForUpdate(ctx context.Context, _ ledgerdomain.Tx, id kerneldomain.TripID) (ledgerdomain.Trip, error) {
	return f.Find(ctx, id)
}

func (f *fakeTrips) UpdateSeatsAvailable(_ context.Context, _ ledgerdomain.Tx, id kerneldomain.TripID, seatsAvailable int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.trips[id]
	if !ok {
		return kerneldomain.ErrNotFound
	}
	t.SeatsAvailable = seatsAvailable
	f.trips[id] = t
	return nil
}

func (f *fakeTrips) UpdateStatus(_ context.Context, id kerneldomain.TripID, status kerneldomain.TripStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.trips[id]
	if !ok {
		return kerneldomain.ErrNotFound
	}
	t.Status = status
	f.trips[id] = t
	return nil
}

func (f *fakeTrips) Search(_ context.Context, routeID kerneldomain.RouteID, limit int) ([]ledgerdomain.Trip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ledgerdomain.Trip
	for _, t := range f.trips {
		if t.RouteID == routeID && len(out) < limit {
			out = append(out, t)
		}
	}
	return out, nil
}

type fakeBookings struct {
	mu       sync.Mutex
	bookings map[kerneldomain.BookingID]ledgerdomain.Booking
}

func newFakeBookings() *fakeBookings {
	return &fakeBookings{bookings: map[kerneldomain.BookingID]ledgerdomain.Booking{}}
}

func (f *fakeBookings) Insert(_ context.Context, _ ledgerdomain.Tx, b ledgerdomain.Booking) (ledgerdomain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookings[b.ID] = b
	return b, nil
}

func (f *fakeBookings) Find(_ context.Context, id kerneldomain.BookingID) (ledgerdomain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return ledgerdomain.Booking{}, kerneldomain.ErrNotFound
	}
	return b, nil
}

func (f *fakeBookings) LockForUpdate(ctx context.Context, _ ledgerdomain.Tx, id kerneldomain.BookingID) (ledgerdomain.Booking, error) {
	return f.Find(ctx, id)
}

func (f *fakeBookings) UpdateStatus(_ context.Context, _ ledgerdomain.Tx, id kerneldomain.BookingID, status kerneldomain.BookingStatus, paymentsTxnID *kerneldomain.TxnID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return kerneldomain.ErrNotFound
	}
	b.Status = status
	if paymentsTxnID != nil {
		b.PaymentsTxnID = paymentsTxnID
	}
	f.bookings[id] = b
	return nil
}

type fakeTickets struct {
	mu      sync.Mutex
	tickets map[kerneldomain.TicketID]ledgerdomain.Ticket
}

func newFakeTickets() *fakeTickets {
	return &fakeTickets{tickets: map[kerneldomain.TicketID]ledgerdomain.Ticket{}}
}

func (f *fakeTickets) Insert(_ context.Context, _ ledgerdomain.Tx, t ledgerdomain.Ticket) (ledgerdomain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickets[t.ID] = t
	return t, nil
}

func (f *fakeTickets) Find(_ context.Context, id kerneldomain.TicketID) (ledgerdomain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[id]
	if !ok {
		return ledgerdomain.Ticket{}, kerneldomain.ErrNotFound
	}
	return t, nil
}

func (f *fakeTickets) LockForUpdate(ctx context.Context, _ ledgerdomain.Tx, id kerneldomain.TicketID) (ledgerdomain.Ticket, error) {
	return f.Find(ctx, id)
}

func (f *fakeTickets) TakenSeats(_ context.Context, _ ledgerdomain.Tx, tripID kerneldomain.TripID) (map[int]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	taken := map[int]bool{}
	for _, t := range f.tickets {
		if t.TripID == tripID && t.Status != kerneldomain.TicketCanceled && t.SeatNo > 0 {
			taken[t.SeatNo] = true
		}
	}
	return taken, nil
}

func (f *fakeTickets) ListByBooking(_ context.Context, bookingID kerneldomain.BookingID) ([]ledgerdomain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ledgerdomain.Ticket
	for _, t := range f.tickets {
		if t.BookingID == bookingID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTickets) HasBoarded(_ context.Context, _ ledgerdomain.Tx, bookingID kerneldomain.BookingID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tickets {
		if t.BookingID == bookingID && t.Status == kerneldomain.TicketBoarded {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeTickets) MarkIssued(_ context.Context, _ ledgerdomain.Tx, bookingID kerneldomain.BookingID, issuedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, t := range f.tickets {
		if t.BookingID == bookingID && t.Status != kerneldomain.TicketCanceled {
			t.Status = kerneldomain.TicketIssued
			if t.IssuedAt == nil {
				at := issuedAt
				t.IssuedAt = &at
			}
			f.tickets[id] = t
		}
	}
	return nil
}

func (f *fakeTickets) MarkCanceledExceptBoarded(_ context.Context, _ ledgerdomain.Tx, bookingID kerneldomain.BookingID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, t := range f.tickets {
		if t.BookingID == bookingID && t.Status != kerneldomain.TicketBoarded {
			t.Status = kerneldomain.TicketCanceled
			f.tickets[id] = t
		}
	}
	return nil
}

func (f *fakeTickets) MarkBoarded(_ context.Context, _ ledgerdomain.Tx, ticketID kerneldomain.TicketID, boardedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[ticketID]
	if !ok {
		return kerneldomain.ErrNotFound
	}
	t.Status = kerneldomain.TicketBoarded
	at := boardedAt
	t.BoardedAt = &at
	f.tickets[ticketID] = t
	return nil
}

type fakeBookingIdempotency struct {
	mu   sync.Mutex
	recs map[string]ledgerdomain.BookingIdempotency
}

func newFakeBookingIdempotency() *fakeBookingIdempotency {
	return &fakeBookingIdempotency{recs: map[string]ledgerdomain.BookingIdempotency{}}
}

func (f *fakeBookingIdempotency) Find(_ context.Context, key string) (ledgerdomain.BookingIdempotency, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[key]
	if !ok {
		return ledgerdomain.BookingIdempotency{}, kerneldomain.ErrNotFound
	}
	return rec, nil
}

func (f *fakeBookingIdempotency) Insert(_ context.Context, rec ledgerdomain.BookingIdempotency) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.recs[rec.Key]; !exists {
		f.recs[rec.Key] = rec
	}
	return nil
}

func (f *fakeBookingIdempotency) SetBookingID(_ context.Context, key string, bookingID kerneldomain.BookingID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.recs[key]
	if !ok {
		return kerneldomain.ErrNotFound
	}
	rec.BookingID = &bookingID
	f.recs[key] = rec
	return nil
}

// ledgerHarness bundles the service and every fake it runs against.
type ledgerHarness struct {
	svc *app.LedgerService

	clock           *domaintest.FakeClock
	wallets         *fakeWallets
	ledger          *fakeLedger
	idempotency     *fakeIdempotency
	aliases         *fakeAliases
	favorites       *fakeFavorites
	paymentRequests *fakePaymentRequests
	roles           *fakeRoles
	cities          *fakeCities
	operators       *fakeOperators
	routes          *fakeRoutes
	trips           *fakeTrips
	bookings        *fakeBookings
	tickets         *fakeTickets
	bookingIdem     *fakeBookingIdempotency
}

type harnessOption func(*app.Config)

func withFeeBps(bps int) harnessOption {
	return func(c *app.Config) { c.MerchantFeeBps = bps }
}

func withTopup() harnessOption {
	return func(c *app.Config) { c.AllowDirectTopup = true }
}

func withPayments() harnessOption {
	return func(c *app.Config) { c.PaymentsEnabled = true }
}

func withEnvironment(env string) harnessOption {
	return func(c *app.Config) { c.Environment = env }
}

func newLedgerHarness(t *testing.T, opts ...harnessOption) *ledgerHarness {
	t.Helper()
	h := &ledgerHarness{
		clock:           domaintest.NewFakeClock(testStart),
		wallets:         newFakeWallets(),
		ledger:          &fakeLedger{},
		idempotency:     newFakeIdempotency(),
		aliases:         &fakeAliases{aliases: map[string]ledgerdomain.Alias{}},
		favorites:       &fakeFavorites{},
		paymentRequests: newFakePaymentRequests(),
		roles:           &fakeRoles{grants: map[string]bool{}},
		cities:          &fakeCities{},
		operators:       newFakeOperators(),
		routes:          newFakeRoutes(),
		trips:           newFakeTrips(),
		bookings:        newFakeBookings(),
		tickets:         newFakeTickets(),
		bookingIdem:     newFakeBookingIdempotency(),
	}
	cfg := app.Config{
		Wallets:            h.wallets,
		Ledger:             h.ledger,
		Idempotency:        h.idempotency,
		Aliases:            h.aliases,
		Favorites:          h.favorites,
		PaymentRequests:    h.paymentRequests,
		Tx:                 fakeTxRunner{},
		Roles:              h.roles,
		Cities:             h.cities,
		Operators:          h.operators,
		Routes:             h.routes,
		Trips:              h.trips,
		Bookings:           h.bookings,
		Tickets:            h.tickets,
		BookingIdempotency: h.bookingIdem,
		Clock:              h.clock,
		Log:                noopLogger(),
		Environment:        "prod",
		TicketSecret:       []byte("harness-ticket-secret"),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	h.svc = app.NewLedgerService(cfg)
	return h
}

// seedTrip wires operator -> route -> trip with an operator wallet, returning
// the trip and the operator's wallet id.
func (h *ledgerHarness) seedTrip(t *testing.T, priceCents int64, seatsTotal int) (ledgerdomain.Trip, kerneldomain.WalletID) {
	t.Helper()
	opWallet := h.wallets.add(0, "SYP")
	op, err := h.operators.Insert(context.Background(), ledgerdomain.Operator{
		ID: kerneldomain.GenerateOperatorID(), Name: "Damascus Express", WalletID: &opWallet, IsOnline: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	route, err := h.routes.Insert(context.Background(), ledgerdomain.Route{
		ID: kerneldomain.GenerateRouteID(), OriginCityID: kerneldomain.GenerateCityID(),
		DestCityID: kerneldomain.GenerateCityID(), OperatorID: op.ID,
	})
	if err != nil {
		t.Fatal(err)
	}
	trip, err := h.trips.Insert(context.Background(), ledgerdomain.Trip{
		ID: kerneldomain.GenerateTripID(), RouteID: route.ID,
		DepartAt: testStart.Add(10 * 24 * time.Hour), ArriveAt: testStart.Add(10*24*time.Hour + 5*time.Hour),
		PriceCents: priceCents, Currency: "SYP",
		SeatsTotal: seatsTotal, SeatsAvailable: seatsTotal,
		Status: kerneldomain.TripPublished,
	})
	if err != nil {
		t.Fatal(err)
	}
	return trip, opWallet
}
