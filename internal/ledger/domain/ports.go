package domain

import (
	"context"
	"time"

	kerneldomain "github.com/shamell/shamell/internal/domain"
)

// WalletRepo persists Users and Wallets.
type WalletRepo interface {
	// EnsureUser returns the wallet-bearing user for accountID, creating a
	// User + Wallet pair on first use (lazy materialization).
	EnsureUser(ctx context.Context, accountID kerneldomain.AccountID, phone string) (User, error)
	FindWallet(ctx context.Context, id kerneldomain.WalletID) (Wallet, error)
	// LockWallet fetches a wallet with SELECT ... FOR UPDATE inside tx.
	LockWallet(ctx context.Context, tx Tx, id kerneldomain.WalletID) (Wallet, error)
	UpdateBalance(ctx context.Context, tx Tx, id kerneldomain.WalletID, newBalance int64) error
	// EnsureFeeWallet lazily creates the service-owned fee wallet from
	// config-identified account/phone, returning its wallet id.
	EnsureFeeWallet(ctx context.Context, accountID, phone string) (kerneldomain.WalletID, error)
	// EnsureFeeWalletTx is the same operation performed inside an open tx,
	// so the fee wallet row can be locked in the same transaction as the
	// sender/recipient rows.
	EnsureFeeWalletTx(ctx context.Context, tx Tx, accountID, phone string) (kerneldomain.WalletID, error)
}

// Tx is the subset of pgdb.Tx the Ledger/Booking app layer depends on,
// re-declared here so this package never imports pgdb directly.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TxRunner begins a transaction usable with the Tx-scoped repo methods.
type TxRunner interface {
	Begin(ctx context.Context) (Tx, error)
}

// LedgerRepo persists Txn headers and LedgerEntry legs.
type LedgerRepo interface {
	InsertTxn(ctx context.Context, tx Tx, t Txn) error
	InsertEntry(ctx context.Context, tx Tx, e LedgerEntry) error
	SumEntries(ctx context.Context, walletID kerneldomain.WalletID) (int64, error)
}

// IdempotencyRepo records and replays transfer/topup idempotency snapshots.
type IdempotencyRepo interface {
	// Find returns the recorded snapshot for key, if any.
	Find(ctx context.Context, key string) (IdempotencyRecord, error)
	// Insert is best-effort: a race loses to the unique constraint and the
	// caller proceeds with the row the winner wrote.
	Insert(ctx context.Context, tx Tx, rec IdempotencyRecord) error
}

// AliasRepo resolves transfer-by-alias.
type AliasRepo interface {
	FindActive(ctx context.Context, handle string) (Alias, error)
}

// FavoriteRepo persists saved counterparty wallets.
type FavoriteRepo interface {
	FindByPair(ctx context.Context, ownerWalletID, favoriteWalletID kerneldomain.WalletID) (Favorite, error)
	Upsert(ctx context.Context, f Favorite) (Favorite, error)
	ListByOwner(ctx context.Context, ownerWalletID kerneldomain.WalletID) ([]Favorite, error)
}

// PaymentRequestRepo persists PaymentRequests.
type PaymentRequestRepo interface {
	Insert(ctx context.Context, r PaymentRequest) (PaymentRequest, error)
	Find(ctx context.Context, id kerneldomain.PaymentRequestID) (PaymentRequest, error)
	LockForUpdate(ctx context.Context, tx Tx, id kerneldomain.PaymentRequestID) (PaymentRequest, error)
	UpdateStatus(ctx context.Context, tx Tx, id kerneldomain.PaymentRequestID, status kerneldomain.PaymentRequestStatus, resultTxnID *kerneldomain.TxnID) error
}

// RoleStore gates operator/admin-only Booking operations.
type RoleStore interface {
	HasRole(ctx context.Context, accountID, role string) (bool, error)
}

// CityRepo persists route endpoints.
type CityRepo interface {
	Insert(ctx context.Context, c City) (City, error)
	List(ctx context.Context) ([]City, error)
}

// OperatorRepo persists bus operators.
type OperatorRepo interface {
	Insert(ctx context.Context, o Operator) (Operator, error)
	Find(ctx context.Context, id kerneldomain.OperatorID) (Operator, error)
	List(ctx context.Context) ([]Operator, error)
	SetOnline(ctx context.Context, id kerneldomain.OperatorID, online bool) error
}

// RouteRepo persists bus routes.
type RouteRepo interface {
	Insert(ctx context.Context, r Route) (Route, error)
	Find(ctx context.Context, id kerneldomain.RouteID) (Route, error)
	List(ctx context.Context) ([]Route, error)
}

// TripRepo persists bus trips, including the seat-inventory row locked
// during Reserve/Release.
type TripRepo interface {
	Insert(ctx context.Context, t Trip) (Trip, error)
	Find(ctx context.Context, id kerneldomain.TripID) (Trip, error)
	// LockForUpdate locks the trip row (seats_total, seats_available, status)
	// inside tx for the seat-reservation critical section.
	LockForUpdate(ctx context.Context, tx Tx, id kerneldomain.TripID) (Trip, error)
	UpdateSeatsAvailable(ctx context.Context, tx Tx, id kerneldomain.TripID, seatsAvailable int) error
	UpdateStatus(ctx context.Context, id kerneldomain.TripID, status kerneldomain.TripStatus) error
	Search(ctx context.Context, routeID kerneldomain.RouteID, limit int) ([]Trip, error)
}

// BookingRepo persists Bookings.
type BookingRepo interface {
	Insert(ctx context.Context, tx Tx, b Booking) (Booking, error)
	Find(ctx context.Context, id kerneldomain.BookingID) (Booking, error)
	LockForUpdate(ctx context.Context, tx Tx, id kerneldomain.BookingID) (Booking, error)
	UpdateStatus(ctx context.Context, tx Tx, id kerneldomain.BookingID, status kerneldomain.BookingStatus, paymentsTxnID *kerneldomain.TxnID) error
}

// TicketRepo persists Tickets.
type TicketRepo interface {
	Insert(ctx context.Context, tx Tx, t Ticket) (Ticket, error)
	Find(ctx context.Context, id kerneldomain.TicketID) (Ticket, error)
	LockForUpdate(ctx context.Context, tx Tx, id kerneldomain.TicketID) (Ticket, error)
	// TakenSeats returns seat numbers already held (issued/pending, not
	// canceled) for tripID, locked FOR UPDATE inside tx.
	TakenSeats(ctx context.Context, tx Tx, tripID kerneldomain.TripID) (map[int]bool, error)
	ListByBooking(ctx context.Context, bookingID kerneldomain.BookingID) ([]Ticket, error)
	HasBoarded(ctx context.Context, tx Tx, bookingID kerneldomain.BookingID) (bool, error)
	MarkIssued(ctx context.Context, tx Tx, bookingID kerneldomain.BookingID, issuedAt time.Time) error
	MarkCanceledExceptBoarded(ctx context.Context, tx Tx, bookingID kerneldomain.BookingID) error
	MarkBoarded(ctx context.Context, tx Tx, ticketID kerneldomain.TicketID, boardedAt time.Time) error
}

// BookingIdempotencyRepo records and replays booking idempotency parameters.
type BookingIdempotencyRepo interface {
	Find(ctx context.Context, key string) (BookingIdempotency, error)
	Insert(ctx context.Context, rec BookingIdempotency) error
	SetBookingID(ctx context.Context, key string, bookingID kerneldomain.BookingID) error
}
