package domain

import (
	"context"
	"time"

	"github.com/shamell/shamell/internal/domain"
)

// DeviceRepo owns the device + device-auth + key-rotation-journal tables.
type DeviceRepo interface {
	// FindDevice returns a device by id, domain.ErrNotFound if absent.
	FindDevice(ctx context.Context, id domain.DeviceID) (Device, error)
	// FindAuth returns the device's bootstrap auth-token hash row.
	FindAuth(ctx context.Context, id domain.DeviceID) (DeviceAuth, error)
	// Register inserts a fresh device + identity row + auth-token hash inside
	// a single transaction, or rotates public_key/key_version and journals a
	// DeviceKeyEvent when the device already exists. Returns the stored device.
	Register(ctx context.Context, d Device, authTokenHash string, rotationEvent *DeviceKeyEvent) (Device, error)
}

// KeyBundleRepo owns identity keys, signed prekeys, one-time prekeys, and
// per-device protocol state.
type KeyBundleRepo interface {
	FindIdentityKey(ctx context.Context, id domain.DeviceID) (IdentityKey, error)
	UpsertIdentityKey(ctx context.Context, k IdentityKey) error
	UpsertSignedPrekey(ctx context.Context, p SignedPrekey) error
	FindSignedPrekey(ctx context.Context, id domain.DeviceID) (SignedPrekey, error)
	// InsertOneTimePrekeys bulk-inserts a batch of fresh one-time prekeys.
	InsertOneTimePrekeys(ctx context.Context, ps []OneTimePrekey) error
	FindProtocolState(ctx context.Context, id domain.DeviceID) (DeviceProtocolState, error)
	UpsertProtocolState(ctx context.Context, s DeviceProtocolState) error
	// FetchAndConsumeBundle performs the single-transaction
	// read-identity+signed-prekey+protocol-state, strict-v2 gate, and
	// FOR UPDATE SKIP LOCKED one-time-prekey consumption. Returns
	// domain.ErrKeyBundleUnavailable (opaque 404) when the bundle fails the
	// strict-v2 policy gate or the device does not exist.
	FetchAndConsumeBundle(ctx context.Context, id domain.DeviceID) (KeyBundle, error)
}

// MessageRepo owns direct and group message rows.
type MessageRepo interface {
	// FindDuplicateDirect returns an existing row matching
	// (sender_id, recipient_id, nonce_b64, box_b64), domain.ErrNotFound if none.
	FindDuplicateDirect(ctx context.Context, senderID, recipientID domain.DeviceID, nonceB64, boxB64 string) (DirectMessage, error)
	InsertDirect(ctx context.Context, m DirectMessage) (DirectMessage, error)
	// Inbox returns recent messages addressed to recipientID since cursor,
	// marking undelivered rows delivered_at=now as a side effect.
	Inbox(ctx context.Context, recipientID domain.DeviceID, since time.Time, limit int, now time.Time) ([]DirectMessage, error)
	InsertGroupMessage(ctx context.Context, m GroupMessage) (GroupMessage, error)
	GroupInbox(ctx context.Context, groupID domain.GroupID, recipientID domain.DeviceID, since time.Time, limit int, now time.Time) ([]GroupMessage, error)
}

// GroupRepo owns groups, memberships, group messages, and key events.
type GroupRepo interface {
	CreateGroup(ctx context.Context, g Group, creator GroupMember) (Group, error)
	FindGroup(ctx context.Context, id domain.GroupID) (Group, error)
	FindMember(ctx context.Context, groupID domain.GroupID, deviceID domain.DeviceID) (GroupMember, error)
	ListMembers(ctx context.Context, groupID domain.GroupID) ([]GroupMember, error)
	UpdateGroup(ctx context.Context, g Group) error
	SetMemberRole(ctx context.Context, groupID domain.GroupID, deviceID domain.DeviceID, role domain.GroupRole) error
	AddMember(ctx context.Context, m GroupMember) error
	// RemoveMember removes deviceID from groupID. If no members remain, the
	// group and all its messages/key events/prefs are deleted in the same
	// transaction. If the removed member was the last admin and members
	// remain, an arbitrary remaining member is auto-promoted to admin.
	RemoveMember(ctx context.Context, groupID domain.GroupID, deviceID domain.DeviceID) error
	RecordKeyEvent(ctx context.Context, ev GroupKeyEvent) error
	BumpKeyVersion(ctx context.Context, groupID domain.GroupID) (int, error)
}

// ContactRuleRepo owns per-device contact rule preferences.
type ContactRuleRepo interface {
	Find(ctx context.Context, deviceID, peerID domain.DeviceID) (ContactRule, error)
	// BlockedOrHiddenPeers returns the set of peer device ids deviceID has
	// blocked or hidden, for inbox/stream filtering.
	BlockedOrHiddenPeers(ctx context.Context, deviceID domain.DeviceID) (map[domain.DeviceID]bool, error)
	// MutedSenders returns the set of sender/group device ids deviceID has
	// muted, for push suppression.
	MutedSenders(ctx context.Context, deviceID domain.DeviceID) (map[domain.DeviceID]bool, error)
	Upsert(ctx context.Context, r ContactRule) error
	FindGroupPref(ctx context.Context, deviceID domain.DeviceID, groupID domain.GroupID) (GroupPref, error)
}

// PushTokenRepo owns push-notification endpoint registrations.
type PushTokenRepo interface {
	Upsert(ctx context.Context, t PushToken) error
	ListForDevices(ctx context.Context, deviceIDs []domain.DeviceID) ([]PushToken, error)
}

// MailboxRepo owns mailbox drop-boxes and their queued envelopes.
type MailboxRepo interface {
	Issue(ctx context.Context, m Mailbox) error
	// FindActiveByHash returns the active mailbox for tokenHash, domain.ErrMailboxInactive
	// if it exists but is inactive, domain.ErrNotFound if it does not exist.
	FindActiveByHash(ctx context.Context, tokenHash string) (Mailbox, error)
	Write(ctx context.Context, msg MailboxMessage) error
	// Poll returns up to limit unconsumed, unexpired envelopes for tokenHash,
	// marking them consumed_at=now atomically.
	Poll(ctx context.Context, tokenHash string, limit int, now time.Time) ([]MailboxMessage, error)
	// Rotate atomically deactivates oldTokenHash and activates the new
	// mailbox row in the same transaction. A concurrent rotate that already
	// deactivated the old token returns domain.ErrConflict.
	Rotate(ctx context.Context, oldTokenHash string, fresh Mailbox, now time.Time) error
	// PurgeExpired deletes expired/consumed-after-retention messages and
	// inactive-after-retention mailboxes. Returns rows deleted per category.
	PurgeExpired(ctx context.Context, now time.Time, messageRetention, mailboxRetention time.Duration) (messages int64, mailboxes int64, err error)
}

// PushSender delivers a best-effort wakeup push. Implementations must never
// block the caller on provider latency beyond the configured timeout, and
// must never carry sender/message/group identifiers in the payload.
type PushSender interface {
	SendWakeup(ctx context.Context, token PushToken) error
}
