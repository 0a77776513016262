// Package domain holds the Ledger/Booking core's pure value types and repo
// ports. Payments (wallets, transfers, fees, payment requests) and Booking
// (trips, seat reservation, tickets) share this package because they share
// one process and one Postgres database.
package domain

import (
	"time"

	kerneldomain "github.com/shamell/shamell/internal/domain"
)

// User mirrors an Auth account inside the Ledger database.
type User struct {
	ID        kerneldomain.UserID
	AccountID kerneldomain.AccountID
	Phone     string
	KYCLevel  int
}

// Wallet holds a user's running balance. BalanceCents is the materialized
// projection of Σ ledger_entries for this wallet — see invariant I2.
type Wallet struct {
	ID           kerneldomain.WalletID
	UserID       kerneldomain.UserID
	BalanceCents int64
	Currency     string
}

// Txn records a single ledger transaction header. FromWalletID/ToWalletID
// are nil for the synthetic external counterparty (topup source/sink).
type Txn struct {
	ID           kerneldomain.TxnID
	FromWalletID *kerneldomain.WalletID
	ToWalletID   *kerneldomain.WalletID
	AmountCents  int64
	Kind         kerneldomain.TxnKind
	FeeCents     int64
	CreatedAt    time.Time
}

// LedgerEntry is one signed leg of a Txn. WalletID is nil for the synthetic
// external counterparty. For any TxnID, entries must sum to zero (I1).
type LedgerEntry struct {
	ID          string
	WalletID    *kerneldomain.WalletID
	AmountCents int64
	TxnID       kerneldomain.TxnID
	Description string
	CreatedAt   time.Time
}

// IdempotencyRecord is the recorded snapshot of a prior transfer/topup,
// keyed by the client-supplied Idempotency-Key and bound to one endpoint.
type IdempotencyRecord struct {
	Key          string
	Endpoint     string
	TxnID        kerneldomain.TxnID
	AmountCents  int64
	Currency     string
	WalletID     kerneldomain.WalletID
	BalanceCents int64
	CreatedAt    time.Time
}

// AliasStatus is the lifecycle state of a payment Alias.
type AliasStatus string

const (
	AliasActive   AliasStatus = "active"
	AliasInactive AliasStatus = "inactive"
)

// Alias maps a human-chosen handle to a wallet for transfer-by-alias.
type Alias struct {
	Handle   string
	WalletID kerneldomain.WalletID
	Status   AliasStatus
}

// Favorite is a saved counterparty wallet for quick re-transfer.
type Favorite struct {
	ID               kerneldomain.FavoriteID
	OwnerWalletID    kerneldomain.WalletID
	FavoriteWalletID kerneldomain.WalletID
	Alias            string
	CreatedAt        time.Time
}

// PaymentRequest is a pending-until-accepted obligation; acceptance is a
// reverse transfer from ToWalletID (the payer) to FromWalletID (the requester).
type PaymentRequest struct {
	ID            kerneldomain.PaymentRequestID
	FromWalletID  kerneldomain.WalletID
	ToWalletID    kerneldomain.WalletID
	AmountCents   int64
	Currency      string
	Status        kerneldomain.PaymentRequestStatus
	ExpiresAt     *time.Time
	CreatedAt     time.Time
	ResultTxnID   *kerneldomain.TxnID
}

// Role gates operator/admin-only Booking operations.
type Role struct {
	AccountID string // account_id or phone; whichever identifies the principal
	Role      string
}

const (
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

// City is a bus route endpoint.
type City struct {
	ID   kerneldomain.CityID
	Name string
}

// Operator is a bus operator, optionally wired to a Wallet for charge/refund.
type Operator struct {
	ID       kerneldomain.OperatorID
	Name     string
	WalletID *kerneldomain.WalletID
	IsOnline bool
}

// Route connects two cities and belongs to one Operator.
type Route struct {
	ID           kerneldomain.RouteID
	OriginCityID kerneldomain.CityID
	DestCityID   kerneldomain.CityID
	OperatorID   kerneldomain.OperatorID
}

// Trip is a single bookable departure on a Route.
type Trip struct {
	ID             kerneldomain.TripID
	RouteID        kerneldomain.RouteID
	DepartAt       time.Time
	ArriveAt       time.Time
	PriceCents     int64
	Currency       string
	SeatsTotal     int
	SeatsAvailable int
	Status         kerneldomain.TripStatus
}

// Booking is one rider's seat reservation on a Trip.
type Booking struct {
	ID             kerneldomain.BookingID
	TripID         kerneldomain.TripID
	Seats          int
	Status         kerneldomain.BookingStatus
	WalletID       *kerneldomain.WalletID
	CustomerPhone  string
	PaymentsTxnID  *kerneldomain.TxnID
	PriceCents     int64
	CreatedAt      time.Time
}

// Ticket is one seat within a Booking.
type Ticket struct {
	ID        kerneldomain.TicketID
	BookingID kerneldomain.BookingID
	TripID    kerneldomain.TripID
	SeatNo    int
	Status    kerneldomain.TicketStatus
	IssuedAt  *time.Time
	BoardedAt *time.Time
}

// BookingIdempotency records the parameters a booking Idempotency-Key was
// first seen with, plus the booking_id it ultimately produced.
type BookingIdempotency struct {
	Key             string
	TripID          kerneldomain.TripID
	WalletID        *kerneldomain.WalletID
	Seats           int
	SeatNumbersHash string
	BookingID       *kerneldomain.BookingID
}
