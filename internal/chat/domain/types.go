// Package domain holds the Chat core's pure value types, ports, and
// cryptographic primitives. It depends only on the shared kernel
// (github.com/shamell/shamell/internal/domain) and stdlib, per the
// innermost-ring discipline: no adapters, no transport, no SDKs.
package domain

import (
	"time"

	"github.com/shamell/shamell/internal/domain"
)

// Device is a registered chat endpoint. key_version increments only when
// public_key changes on re-registration; rotations are journaled as
// DeviceKeyEvent rows.
type Device struct {
	ID          domain.DeviceID
	PublicKeyB64 string
	KeyVersion  int
	Name        string
	CreatedAt   time.Time
}

// DeviceAuth binds a device to its bootstrap auth token hash.
type DeviceAuth struct {
	DeviceID  domain.DeviceID
	TokenHash string
}

// DeviceKeyEvent journals a public-key rotation with truncated fingerprints
// so the audit trail never carries raw key material.
type DeviceKeyEvent struct {
	DeviceID       domain.DeviceID
	OldFingerprint string
	NewFingerprint string
	CreatedAt      time.Time
}

// IdentityKey holds a device's long-term identity keys.
type IdentityKey struct {
	DeviceID               domain.DeviceID
	IdentityKeyB64         string
	IdentitySigningKeyB64  string
}

// SignedPrekey is a device's current signed prekey.
type SignedPrekey struct {
	DeviceID    domain.DeviceID
	KeyID       int64
	PublicKeyB64 string
	SignatureB64 string
}

// OneTimePrekey is a single-use prekey. ConsumedAt is set exactly once, by
// the atomic SKIP LOCKED consumption in get_key_bundle.
type OneTimePrekey struct {
	DeviceID   domain.DeviceID
	KeyID      int64
	KeyB64     string
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

// DeviceProtocolState records which sealed-sender protocol a device will
// accept, gating both writes (downgrade guard) and reads (hide v1 rows).
type DeviceProtocolState struct {
	DeviceID      domain.DeviceID
	ProtocolFloor domain.ProtocolVersion
	SupportsV2    bool
	V2Only        bool
}

// CompleteV2Bundle reports whether the bundle backing this protocol state
// satisfies the "strict v2 bundle" policy get_key_bundle enforces.
func (s DeviceProtocolState) StrictV2() bool {
	return s.ProtocolFloor == domain.ProtocolV2Libsignal && s.SupportsV2 && s.V2Only
}

// KeyBundle is the fetch+consume result handed back to a caller requesting
// a recipient's key material.
type KeyBundle struct {
	DeviceID        domain.DeviceID
	IdentityKeyB64  string
	SignedPrekey    SignedPrekey
	OneTimePrekeyID *int64
	OneTimePrekeyB64 string
}

// DirectMessage is a sealed-sender direct message row.
type DirectMessage struct {
	ID              domain.MessageID
	SenderID        domain.DeviceID
	RecipientID     domain.DeviceID
	ProtocolVersion domain.ProtocolVersion
	SenderPubKeyB64 string
	SenderDHPubB64  string
	NonceB64        string
	BoxB64          string
	SealedSender    bool
	SenderHint      string
	KeyID           *int64
	PrevKeyID       *int64
	CreatedAt       time.Time
	DeliveredAt     *time.Time
	ReadAt          *time.Time
	ExpireAt        *time.Time
}

// Group is a chat group. key_version increments on every key-rotation event.
type Group struct {
	ID         domain.GroupID
	Name       string
	CreatorID  domain.DeviceID
	KeyVersion int
	Avatar     string
	CreatedAt  time.Time
}

// GroupMember is a (group_id, device_id) membership row.
type GroupMember struct {
	GroupID  domain.GroupID
	DeviceID domain.DeviceID
	Role     domain.GroupRole
	JoinedAt time.Time
}

// IsAdmin reports whether this member may perform admin-gated group actions.
func (m GroupMember) IsAdmin() bool { return m.Role == domain.GroupRoleAdmin }

// GroupMessage is a sealed-sender group message row.
type GroupMessage struct {
	ID              domain.MessageID
	GroupID         domain.GroupID
	SenderID        domain.DeviceID
	ProtocolVersion domain.ProtocolVersion
	NonceB64        string
	BoxB64          string
	SenderHint      string
	CreatedAt       time.Time
}

// GroupKeyEvent journals a group key rotation.
type GroupKeyEvent struct {
	GroupID     domain.GroupID
	Version     int
	ActorID     domain.DeviceID
	KeyFP       string
	CreatedAt   time.Time
}

// ContactRule is a (device_id, peer_id) relationship row governing delivery
// visibility: blocked/hidden peers are filtered from inbox and stream.
type ContactRule struct {
	DeviceID domain.DeviceID
	PeerID   domain.DeviceID
	Blocked  bool
	Hidden   bool
	Muted    bool
	Starred  bool
	Pinned   bool
}

// GroupPref is a per-device group preference row.
type GroupPref struct {
	DeviceID domain.DeviceID
	GroupID  domain.GroupID
	Muted    bool
	Pinned   bool
}

// PushPlatform identifies which mobile push transport a token targets.
type PushPlatform string

const (
	PushPlatformIOS     PushPlatform = "ios"
	PushPlatformAndroid PushPlatform = "android"
)

// PushToken registers a device's mobile push endpoint.
type PushToken struct {
	Token    string
	DeviceID domain.DeviceID
	Platform PushPlatform
}

// Mailbox is a one-way opaque drop-box bound to an owner device.
type Mailbox struct {
	TokenHash    string
	OwnerDeviceID domain.DeviceID
	Active       bool
	CreatedAt    time.Time
	RotatedAt    *time.Time
}

// MailboxMessage is an envelope dropped into a Mailbox.
type MailboxMessage struct {
	ID         domain.MessageID
	TokenHash  string
	EnvelopeB64 string
	SenderHint string
	CreatedAt  time.Time
	ExpireAt   *time.Time
	ConsumedAt *time.Time
}
