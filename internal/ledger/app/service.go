// Package app orchestrates the Ledger/Payments and Booking use cases:
// double-entry transfers and topups with fee-splitting and idempotency,
// payment requests, and the seat-reservation booking flow that calls back
// into the Ledger in-process (Booking and Ledger share one process and one
// database). Every method follows the same shape as the other cores:
// one OTEL span, one metrics counter family, structured logging.
package app

import (
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	kerneldomain "github.com/shamell/shamell/internal/domain"
	ledgerdomain "github.com/shamell/shamell/internal/ledger/domain"
)

var tracer = otel.Tracer("ledger/app")

var (
	transfersTotal       metric.Int64Counter
	topupsTotal          metric.Int64Counter
	paymentRequestsTotal metric.Int64Counter
	bookingsTotal        metric.Int64Counter
	boardingsTotal       metric.Int64Counter
	cancellationsTotal   metric.Int64Counter
)

func init() {
	m := otel.Meter("ledger/app")

	transfersTotal, _ = m.Int64Counter("ledger_transfers_total",
		metric.WithDescription("Wallet transfers by outcome"))
	topupsTotal, _ = m.Int64Counter("ledger_topups_total",
		metric.WithDescription("Direct wallet topups"))
	paymentRequestsTotal, _ = m.Int64Counter("ledger_payment_request_events_total",
		metric.WithDescription("Payment request create/accept/cancel events"))
	bookingsTotal, _ = m.Int64Counter("booking_events_total",
		metric.WithDescription("Booking lifecycle events"))
	boardingsTotal, _ = m.Int64Counter("booking_ticket_boardings_total",
		metric.WithDescription("Ticket boarding attempts by outcome"))
	cancellationsTotal, _ = m.Int64Counter("booking_cancellations_total",
		metric.WithDescription("Booking cancellations with refund issued"))
}

// FeeWalletConfig identifies the account the service-owned fee wallet is
// lazily materialized for. Exactly one of AccountID/Phone should be set.
type FeeWalletConfig struct {
	AccountID string
	Phone     string
}

// Config holds every dependency LedgerService needs.
type Config struct {
	Wallets         ledgerdomain.WalletRepo
	Ledger          ledgerdomain.LedgerRepo
	Idempotency     ledgerdomain.IdempotencyRepo
	Aliases         ledgerdomain.AliasRepo
	Favorites       ledgerdomain.FavoriteRepo
	PaymentRequests ledgerdomain.PaymentRequestRepo
	Tx              ledgerdomain.TxRunner

	Roles              ledgerdomain.RoleStore
	Cities             ledgerdomain.CityRepo
	Operators          ledgerdomain.OperatorRepo
	Routes             ledgerdomain.RouteRepo
	Trips              ledgerdomain.TripRepo
	Bookings           ledgerdomain.BookingRepo
	Tickets            ledgerdomain.TicketRepo
	BookingIdempotency ledgerdomain.BookingIdempotencyRepo

	Clock kerneldomain.Clock
	Log   *slog.Logger

	MerchantFeeBps   int
	FeeWallet        FeeWalletConfig
	AllowDirectTopup bool

	// PaymentsEnabled gates the Booking charge/refund calls into Transfer.
	// Environment "test" additionally bypasses trip-publish/confirmation
	// gates so fixtures can book unpublished trips without charging.
	PaymentsEnabled bool
	Environment     string
	TicketSecret    []byte
}

// LedgerService implements the Payments ledger and the Booking saga.
type LedgerService struct {
	wallets         ledgerdomain.WalletRepo
	ledger          ledgerdomain.LedgerRepo
	idempotency     ledgerdomain.IdempotencyRepo
	aliases         ledgerdomain.AliasRepo
	favorites       ledgerdomain.FavoriteRepo
	paymentRequests ledgerdomain.PaymentRequestRepo
	txRunner        ledgerdomain.TxRunner

	roles              ledgerdomain.RoleStore
	cities             ledgerdomain.CityRepo
	operators          ledgerdomain.OperatorRepo
	routes             ledgerdomain.RouteRepo
	trips              ledgerdomain.TripRepo
	bookings           ledgerdomain.BookingRepo
	tickets            ledgerdomain.TicketRepo
	bookingIdempotency ledgerdomain.BookingIdempotencyRepo

	clock kerneldomain.Clock
	log   *slog.Logger

	merchantFeeBps   int
	feeWallet        FeeWalletConfig
	allowDirectTopup bool

	paymentsEnabled bool
	environment     string
	ticketSecret    []byte
}

// NewLedgerService constructs a LedgerService from cfg.
func NewLedgerService(cfg Config) *LedgerService {
	return &LedgerService{
		wallets:            cfg.Wallets,
		ledger:             cfg.Ledger,
		idempotency:        cfg.Idempotency,
		aliases:            cfg.Aliases,
		favorites:          cfg.Favorites,
		paymentRequests:    cfg.PaymentRequests,
		txRunner:           cfg.Tx,
		roles:              cfg.Roles,
		cities:             cfg.Cities,
		operators:          cfg.Operators,
		routes:             cfg.Routes,
		trips:              cfg.Trips,
		bookings:           cfg.Bookings,
		tickets:            cfg.Tickets,
		bookingIdempotency: cfg.BookingIdempotency,
		clock:              cfg.Clock,
		log:                cfg.Log,
		merchantFeeBps:     cfg.MerchantFeeBps,
		feeWallet:          cfg.FeeWallet,
		allowDirectTopup:   cfg.AllowDirectTopup,
		paymentsEnabled:    cfg.PaymentsEnabled,
		environment:        cfg.Environment,
		ticketSecret:       cfg.TicketSecret,
	}
}

// requirePayment is the payments_enabled &&
// env != "test" gate: test environments issue bookings without charging.
func (s *LedgerService) requirePayment() bool {
	return s.paymentsEnabled && s.environment != "test"
}
