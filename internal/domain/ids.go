// Package domain contains pure business logic and types shared by every
// Shamell service. No external dependencies beyond uuid generation are
// allowed here — this is the innermost ring of the architecture.
package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// AccountID is the 64-hex primary identifier of an Auth account.
type AccountID struct {
	value string
}

var hex64Pattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// NewAccountID validates a raw 64-hex string.
func NewAccountID(raw string) (AccountID, error) {
	if raw == "" {
		return AccountID{}, ErrEmptyID
	}
	if !hex64Pattern.MatchString(raw) {
		return AccountID{}, fmt.Errorf("invalid account ID %q: %w", raw, ErrInvalidID)
	}
	return AccountID{value: raw}, nil
}

// MustAccountID panics on invalid input. Use only in tests.
func MustAccountID(raw string) AccountID {
	id, err := NewAccountID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// GenerateAccountID creates a fresh random 64-hex account id.
func GenerateAccountID() AccountID {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return AccountID{value: hex.EncodeToString(b[:])}
}

func (id AccountID) String() string { return id.value }
func (id AccountID) IsZero() bool   { return id.value == "" }

// shamellIDAlphabet is Crockford-style unambiguous base32: no I, L, O, U.
const shamellIDAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// ShamellID is the user-facing 8-character unambiguous handle for an account.
type ShamellID struct {
	value string
}

var shamellIDPattern = regexp.MustCompile(`^[0-9A-HJ-NP-TV-Z]{8}$`)

// NewShamellID validates a raw 8-character shamell id.
func NewShamellID(raw string) (ShamellID, error) {
	if raw == "" {
		return ShamellID{}, ErrEmptyID
	}
	if !shamellIDPattern.MatchString(raw) {
		return ShamellID{}, fmt.Errorf("invalid shamell ID %q: %w", raw, ErrInvalidID)
	}
	return ShamellID{value: raw}, nil
}

// MustShamellID panics on invalid input. Use only in tests.
func MustShamellID(raw string) ShamellID {
	id, err := NewShamellID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// GenerateShamellID creates a fresh random 8-character unambiguous id.
func GenerateShamellID() ShamellID {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	out := make([]byte, 8)
	for i, v := range b {
		out[i] = shamellIDAlphabet[int(v)%len(shamellIDAlphabet)]
	}
	return ShamellID{value: string(out)}
}

func (id ShamellID) String() string { return id.value }
func (id ShamellID) IsZero() bool   { return id.value == "" }

// uuidID is the shared constructor body for every UUID-backed value object below.
func uuidID(raw string) (string, error) {
	if raw == "" {
		return "", ErrEmptyID
	}
	if _, err := uuid.Parse(raw); err != nil {
		return "", fmt.Errorf("invalid ID %q: %w", raw, ErrInvalidID)
	}
	return raw, nil
}

// SessionID identifies an Auth session. The wire-visible cookie value is a
// raw 128-bit token; SessionID instead identifies the row once looked up by
// its hash, so it is UUID-shaped like the rest of the internal identifiers.
type SessionID struct{ value string }

func NewSessionID(raw string) (SessionID, error) {
	v, err := uuidID(raw)
	return SessionID{value: v}, err
}
func MustSessionID(raw string) SessionID {
	id, err := NewSessionID(raw)
	if err != nil {
		panic(err)
	}
	return id
}
func GenerateSessionID() SessionID     { return SessionID{value: uuid.NewString()} }
func (id SessionID) String() string    { return id.value }
func (id SessionID) IsZero() bool      { return id.value == "" }

// DeviceID identifies a chat device. Raw form is constrained to
// [A-Za-z0-9_-]{4,24} per the messaging identifier discipline; it is a thin
// string value object rather than a UUID.
type DeviceID struct{ value string }

var deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{4,24}$`)

// reservedDeviceWords may never be used as a device id, since they collide
// with route-like action segments in the HTTP surface.
var reservedDeviceWords = map[string]bool{
	"register": true,
	"keys":     true,
	"bundle":   true,
	"mailbox":  true,
}

func NewDeviceID(raw string) (DeviceID, error) {
	if raw == "" {
		return DeviceID{}, ErrEmptyID
	}
	if !deviceIDPattern.MatchString(raw) {
		return DeviceID{}, fmt.Errorf("invalid device ID %q: %w", raw, ErrInvalidID)
	}
	if reservedDeviceWords[raw] {
		return DeviceID{}, fmt.Errorf("device ID %q is reserved: %w", raw, ErrInvalidID)
	}
	return DeviceID{value: raw}, nil
}
func MustDeviceID(raw string) DeviceID {
	id, err := NewDeviceID(raw)
	if err != nil {
		panic(err)
	}
	return id
}
func (id DeviceID) String() string { return id.value }
func (id DeviceID) IsZero() bool   { return id.value == "" }

// GroupID identifies a chat group, [A-Za-z0-9_-]{4,36}.
type GroupID struct{ value string }

var groupIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{4,36}$`)

func NewGroupID(raw string) (GroupID, error) {
	if raw == "" {
		return GroupID{}, ErrEmptyID
	}
	if !groupIDPattern.MatchString(raw) {
		return GroupID{}, fmt.Errorf("invalid group ID %q: %w", raw, ErrInvalidID)
	}
	return GroupID{value: raw}, nil
}
func MustGroupID(raw string) GroupID {
	id, err := NewGroupID(raw)
	if err != nil {
		panic(err)
	}
	return id
}
func GenerateGroupID() GroupID      { return GroupID{value: uuid.NewString()} }
func (id GroupID) String() string   { return id.value }
func (id GroupID) IsZero() bool     { return id.value == "" }

// MessageID identifies a direct or group message row.
type MessageID struct{ value string }

func NewMessageID(raw string) (MessageID, error) {
	v, err := uuidID(raw)
	return MessageID{value: v}, err
}
func MustMessageID(raw string) MessageID {
	id, err := NewMessageID(raw)
	if err != nil {
		panic(err)
	}
	return id
}
func GenerateMessageID() MessageID { return MessageID{value: uuid.NewString()} }
func (id MessageID) String() string { return id.value }
func (id MessageID) IsZero() bool   { return id.value == "" }

// MailboxToken identifies the opaque mailbox drop-box token, [A-Za-z0-9_-]{32,256}.
type MailboxToken struct{ value string }

var mailboxTokenPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{32,256}$`)

func NewMailboxToken(raw string) (MailboxToken, error) {
	if raw == "" {
		return MailboxToken{}, ErrEmptyID
	}
	if !mailboxTokenPattern.MatchString(raw) {
		return MailboxToken{}, fmt.Errorf("invalid mailbox token: %w", ErrInvalidID)
	}
	return MailboxToken{value: raw}, nil
}
func (id MailboxToken) String() string { return id.value }
func (id MailboxToken) IsZero() bool   { return id.value == "" }

// WalletID identifies a Ledger wallet.
type WalletID struct{ value string }

func NewWalletID(raw string) (WalletID, error) {
	v, err := uuidID(raw)
	return WalletID{value: v}, err
}
func MustWalletID(raw string) WalletID {
	id, err := NewWalletID(raw)
	if err != nil {
		panic(err)
	}
	return id
}
func GenerateWalletID() WalletID    { return WalletID{value: uuid.NewString()} }
func (id WalletID) String() string  { return id.value }
func (id WalletID) IsZero() bool    { return id.value == "" }

// UserID identifies a Ledger user row (distinct from the Auth AccountID it mirrors).
type UserID struct{ value string }

func NewUserID(raw string) (UserID, error) {
	v, err := uuidID(raw)
	return UserID{value: v}, err
}
func MustUserID(raw string) UserID {
	id, err := NewUserID(raw)
	if err != nil {
		panic(err)
	}
	return id
}
func GenerateUserID() UserID      { return UserID{value: uuid.NewString()} }
func (id UserID) String() string  { return id.value }
func (id UserID) IsZero() bool    { return id.value == "" }

// TxnID identifies a ledger transaction.
type TxnID struct{ value string }

func NewTxnID(raw string) (TxnID, error) {
	v, err := uuidID(raw)
	return TxnID{value: v}, err
}
func GenerateTxnID() TxnID       { return TxnID{value: uuid.NewString()} }
func (id TxnID) String() string  { return id.value }
func (id TxnID) IsZero() bool    { return id.value == "" }

// TripID identifies a bookable trip.
type TripID struct{ value string }

func NewTripID(raw string) (TripID, error) {
	v, err := uuidID(raw)
	return TripID{value: v}, err
}
func MustTripID(raw string) TripID {
	id, err := NewTripID(raw)
	if err != nil {
		panic(err)
	}
	return id
}
func GenerateTripID() TripID     { return TripID{value: uuid.NewString()} }
func (id TripID) String() string { return id.value }
func (id TripID) IsZero() bool   { return id.value == "" }

// BookingID identifies a booking.
type BookingID struct{ value string }

func NewBookingID(raw string) (BookingID, error) {
	v, err := uuidID(raw)
	return BookingID{value: v}, err
}
func MustBookingID(raw string) BookingID {
	id, err := NewBookingID(raw)
	if err != nil {
		panic(err)
	}
	return id
}
func GenerateBookingID() BookingID { return BookingID{value: uuid.NewString()} }
func (id BookingID) String() string { return id.value }
func (id BookingID) IsZero() bool   { return id.value == "" }

// TicketID identifies an individual seat ticket.
type TicketID struct{ value string }

func NewTicketID(raw string) (TicketID, error) {
	v, err := uuidID(raw)
	return TicketID{value: v}, err
}
func GenerateTicketID() TicketID  { return TicketID{value: uuid.NewString()} }
func (id TicketID) String() string { return id.value }
func (id TicketID) IsZero() bool   { return id.value == "" }

// OperatorID identifies a bus operator.
type OperatorID struct{ value string }

func NewOperatorID(raw string) (OperatorID, error) {
	v, err := uuidID(raw)
	return OperatorID{value: v}, err
}
func GenerateOperatorID() OperatorID { return OperatorID{value: uuid.NewString()} }
func (id OperatorID) String() string { return id.value }
func (id OperatorID) IsZero() bool   { return id.value == "" }

// RouteID identifies a bus route.
type RouteID struct{ value string }

func NewRouteID(raw string) (RouteID, error) {
	v, err := uuidID(raw)
	return RouteID{value: v}, err
}
func GenerateRouteID() RouteID    { return RouteID{value: uuid.NewString()} }
func (id RouteID) String() string { return id.value }
func (id RouteID) IsZero() bool   { return id.value == "" }

// CityID identifies a city served by bus routes.
type CityID struct{ value string }

func NewCityID(raw string) (CityID, error) {
	v, err := uuidID(raw)
	return CityID{value: v}, err
}
func GenerateCityID() CityID     { return CityID{value: uuid.NewString()} }
func (id CityID) String() string { return id.value }
func (id CityID) IsZero() bool   { return id.value == "" }

// FavoriteID identifies a saved wallet favorite.
type FavoriteID struct{ value string }

func NewFavoriteID(raw string) (FavoriteID, error) {
	v, err := uuidID(raw)
	return FavoriteID{value: v}, err
}
func GenerateFavoriteID() FavoriteID { return FavoriteID{value: uuid.NewString()} }
func (id FavoriteID) String() string { return id.value }
func (id FavoriteID) IsZero() bool   { return id.value == "" }

// AliasID identifies a wallet payment alias.
type AliasID struct{ value string }

func NewAliasID(raw string) (AliasID, error) {
	v, err := uuidID(raw)
	return AliasID{value: v}, err
}
func GenerateAliasID() AliasID   { return AliasID{value: uuid.NewString()} }
func (id AliasID) String() string { return id.value }
func (id AliasID) IsZero() bool   { return id.value == "" }

// PaymentRequestID identifies a payment request.
type PaymentRequestID struct{ value string }

func NewPaymentRequestID(raw string) (PaymentRequestID, error) {
	v, err := uuidID(raw)
	return PaymentRequestID{value: v}, err
}
func GeneratePaymentRequestID() PaymentRequestID { return PaymentRequestID{value: uuid.NewString()} }
func (id PaymentRequestID) String() string        { return id.value }
func (id PaymentRequestID) IsZero() bool           { return id.value == "" }
