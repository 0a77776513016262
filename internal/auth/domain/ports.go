package domain

import (
	"context"
	"time"

	kerneldomain "github.com/shamell/shamell/internal/domain"
)

// AccountRepo persists Account rows and allocates fresh identifiers.
type AccountRepo interface {
	// Allocate creates a brand-new account with freshly generated IDs,
	// retrying internally against unique-constraint collisions up to
	// kerneldomain.AccountAllocationRetries times.
	Allocate(ctx context.Context) (Account, error)
	FindByAccountID(ctx context.Context, id kerneldomain.AccountID) (Account, error)
	FindByPhone(ctx context.Context, phone string) (Account, error)
	// BackfillPhone performs the best-effort, lock-free legacy backfill
	// described in the design notes: it never gates an authorization
	// decision and may race with a concurrent lookup.
	BackfillPhone(ctx context.Context, accountID kerneldomain.AccountID, phone string) error
}

// SessionRepo persists Session rows.
type SessionRepo interface {
	Create(ctx context.Context, s Session) error
	FindBySIDHash(ctx context.Context, sidHash string) (Session, error)
	TouchLastSeen(ctx context.Context, sidHash string, now time.Time) error
	Revoke(ctx context.Context, sidHash string, now time.Time) error
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// DeviceLoginRepo persists DeviceLoginChallenge rows.
type DeviceLoginRepo interface {
	Create(ctx context.Context, c DeviceLoginChallenge) error
	// LockByTokenHash reads the row FOR UPDATE within the caller's
	// transaction-shaped unit of work; adapters implement this with a
	// row lock so concurrent approve/redeem calls serialize.
	LockByTokenHash(ctx context.Context, tokenHash string) (DeviceLoginChallenge, error)
	Approve(ctx context.Context, tokenHash string, accountID kerneldomain.AccountID, now time.Time) error
	// Redeem deletes the challenge row and is expected to run in the same
	// transaction as the new session's insert.
	Redeem(ctx context.Context, tokenHash string) error
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// BiometricTokenRepo persists BiometricToken enrollments, unique per
// (account_id, device_id).
type BiometricTokenRepo interface {
	// Upsert replaces any existing enrollment for the token's
	// (account_id, device_id) pair, resetting expiry and revocation.
	Upsert(ctx context.Context, t BiometricToken) error
	// FindByHashAndDevice returns the enrollment matching tokenHash and
	// deviceID, kerneldomain.ErrNotFound if absent.
	FindByHashAndDevice(ctx context.Context, tokenHash, deviceID string) (BiometricToken, error)
	// Rotate swaps oldTokenHash for newTokenHash if the enrollment is still
	// alive, reporting whether a row changed. Rotation-on-use is optional;
	// a lost race simply leaves the old token in place.
	Rotate(ctx context.Context, accountID kerneldomain.AccountID, deviceID, oldTokenHash, newTokenHash string, now time.Time) (bool, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ContactInviteRepo persists ContactInvite and ChatContact rows.
type ContactInviteRepo interface {
	Create(ctx context.Context, inv ContactInvite) error
	LockByTokenHash(ctx context.Context, tokenHash string) (ContactInvite, error)
	IncrementUse(ctx context.Context, tokenHash string, now time.Time, revoke bool) error
	UpsertContactEdge(ctx context.Context, edge ChatContact) error
	// HasContactEdge reports whether ownerAccountID has an established
	// ChatContact edge to peerChatDeviceID, the precondition the BFF enforces
	// on chat-send when configured.
	HasContactEdge(ctx context.Context, ownerAccountID kerneldomain.AccountID, peerChatDeviceID string) (bool, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RateLimiter enforces the Postgres-backed fixed-window token bucket
// serialized per key, fail-closed on denial.
type RateLimiter interface {
	// Allow consumes one unit from the bucket identified by key, allowing
	// at most max requests per window. Secret-bearing identifiers must be
	// hashed by the caller before being folded into key.
	Allow(ctx context.Context, key string, max int, window time.Duration, now time.Time) (bool, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AttestationVerifier is the black-box oracle for Apple DeviceCheck /
// Google Play Integrity verdicts.
type AttestationVerifier interface {
	// Verify checks a hardware attestation token against the expected
	// challenge nonce (base64url(sha256(challenge_token))) and reports
	// whether the device passes the platform's integrity bar.
	Verify(ctx context.Context, token string, expectedNonceB64 string) (bool, error)
}

// AccountSessionTransactor allocates a fresh account and issues its first
// session in a single atomic unit of work.
type AccountSessionTransactor interface {
	CreateAccountWithSession(ctx context.Context, session Session) (Account, error)
}

// SecretStore is the narrow interface the Auth core needs from
// internal/secretstore.Store: the HMAC pepper used to sign challenge
// tokens.
type SecretStore interface {
	Get(ctx context.Context, name string) (kerneldomain.SecretBytes, error)
}
