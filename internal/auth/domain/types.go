// Package domain holds the Auth core's entities. It depends only on the
// shared kernel in internal/domain, never on adapter or transport concerns.
package domain

import (
	"time"

	"github.com/shamell/shamell/internal/domain"
)

// Account is a Shamell identity: a 64-hex account_id plus an 8-character
// unambiguous handle, and an optional E.164 phone number.
type Account struct {
	AccountID domain.AccountID
	ShamellID domain.ShamellID
	Phone     string // empty when not set
}

// Session is a device-bound login session. Only its sha256 hash is stored;
// the raw 128-bit token never persists past the response that minted it.
type Session struct {
	SIDHash     string
	AccountID   domain.AccountID
	DeviceID    string // optional, empty when session is not device-scoped
	CreatedAt   time.Time
	LastSeenAt  time.Time
	ExpiresAt   time.Time
	RevokedAt   *time.Time
}

// Alive reports whether the session is usable at instant now, given the
// configured idle TTL.
func (s Session) Alive(now time.Time, idleTTL time.Duration) bool {
	if s.RevokedAt != nil {
		return false
	}
	if !now.Before(s.ExpiresAt) {
		return false
	}
	if now.Sub(s.LastSeenAt) >= idleTTL {
		return false
	}
	return true
}

// BiometricToken binds a device to a long-lived biometric re-auth token.
type BiometricToken struct {
	TokenHash string
	AccountID domain.AccountID
	DeviceID  string
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// Alive reports whether the enrollment is usable at instant now.
func (t BiometricToken) Alive(now time.Time) bool {
	return t.RevokedAt == nil && t.ExpiresAt.After(now)
}

// DeviceLoginStatus is the lifecycle state of a DeviceLoginChallenge.
type DeviceLoginStatus string

const (
	DeviceLoginPending  DeviceLoginStatus = "pending"
	DeviceLoginApproved DeviceLoginStatus = "approved"
)

// DeviceLoginChallenge is the QR-code login handshake row.
type DeviceLoginChallenge struct {
	TokenHash  string
	Label      string
	Status     DeviceLoginStatus
	AccountID  *domain.AccountID
	DeviceID   string
	ExpiresAt  time.Time
	ApprovedAt *time.Time
}

// ContactInvite is a single-shot-per-use capability token that creates a
// bidirectional ChatContact edge on redemption.
type ContactInvite struct {
	TokenHash           string
	IssuerAccountID     domain.AccountID
	IssuerChatDeviceID  string
	MaxUses             int
	UseCount            int
	ExpiresAt           time.Time
	RevokedAt           *time.Time
}

// Alive reports whether the invite can still be redeemed.
func (i ContactInvite) Alive(now time.Time) bool {
	return i.RevokedAt == nil && i.UseCount < i.MaxUses && now.Before(i.ExpiresAt)
}

// ChatContact is a one-directional contact edge; invite redemption writes
// both directions.
type ChatContact struct {
	OwnerAccountID   domain.AccountID
	PeerChatDeviceID string
}

// RateLimitBucket is one fixed-window token-bucket row.
type RateLimitBucket struct {
	Key            string
	WindowStartUTC time.Time
	RequestCount   int
	UpdatedAt      time.Time
}

// ChallengePayload is the signed payload minted by the account-creation
// challenge step and later verified during create.
type ChallengePayload struct {
	Version        int    `json:"v"`
	DeviceID       string `json:"device_id"`
	Nonce          string `json:"nonce"`
	DifficultyBits int    `json:"difficulty_bits"`
	ExpiresAtUnix  int64  `json:"exp"`
}
