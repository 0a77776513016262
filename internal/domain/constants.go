package domain

import "time"

// Normative limits and timeouts shared across Shamell's services.
// These are compiled defaults; services may override the tunable ones via
// configuration where a config flag exists for them.
const (
	// Session model
	SessionIdleTTL    = 30 * 24 * time.Hour // last_seen_at + idle_ttl
	SessionAbsoluteTTL = 90 * 24 * time.Hour

	// Attestation challenge
	ChallengeTTL           = 5 * time.Minute
	ChallengeNonceBytes    = 16 // 128-bit nonce
	AccountAllocationRetries = 12
	ChallengeRateLimitWindow = time.Minute
	ChallengePerIPMax        = 20
	ChallengePerDeviceMax    = 10

	// Device-login QR
	DeviceLoginChallengeTTL  = 10 * time.Minute
	DeviceLoginTokenBytes    = 16 // 128-bit raw token
	QRPixelSizeMin           = 96
	QRPixelSizeMax           = 512

	// Biometric re-auth tokens
	BiometricTokenBytes        = 32 // 256-bit raw token
	BiometricTokenTTL          = 365 * 24 * time.Hour
	BiometricLoginWindow       = 5 * time.Minute
	BiometricLoginPerIPMax     = 60
	BiometricLoginPerDeviceMax = 30

	// Contact invites
	ContactInviteTokenBytes = 32 // 256-bit opaque token

	// Rate limiting
	RateLimitMaintenanceInterval = 5 * time.Minute

	// Background maintenance sweeper: rows are purged only once this
	// far past their natural expiry, giving in-flight requests against a
	// just-expired row room to fail the right way instead of a 404 race.
	MaintenanceRetentionGrace = 24 * time.Hour

	// Chat identifier discipline
	MaxGroupMembers = 500

	// Key bundles
	MaxOneTimePrekeysPerUpload = 500
	KeyFingerprintHexLen       = 16 // first 16 hex chars of sha256(public_key)

	// Direct/group messaging
	MaxMessageBoxBytes = 64 * 1024

	// Inbox / stream
	StreamKeepAliveInterval = 15 * time.Second
	InboxDefaultLimit       = 100

	// Device auth tokens
	DeviceAuthTokenBytes = 32 // 256-bit

	// Mailbox transport
	MailboxTokenBytes      = 32 // 256-bit
	MailboxPollLimit       = 200
	MailboxMessageRetention = 24 * time.Hour
	MailboxInactiveRetention = 7 * 24 * time.Hour

	// Ledger / booking
	IdempotencyKeyMaxLen     = 128
	PaymentRequestMinExpiry  = 60 * time.Second
	PaymentRequestMaxExpiry  = 7 * 24 * time.Hour
	MaxBookingSeats          = 10

	// Refund tiers
	RefundTierFullDays    = 30
	RefundTierHighDays    = 7
	RefundTierMediumHours = 48
	RefundPercentFull     = 100
	RefundPercentHigh     = 70
	RefundPercentMedium   = 40
	RefundPercentLow      = 20
	RefundPercentNone     = 0

	// Cross-service / infra timeouts
	PostgresQueryTimeout    = 5 * time.Second
	RedisTimeout            = 2 * time.Second
	UpstreamCallTimeout     = 10 * time.Second
	SecretStoreCacheTTL     = 5 * time.Minute
	SecretStoreCooldown     = 30 * time.Second

	// Graceful shutdown
	ShutdownDrainDelay  = 2 * time.Second
	ShutdownHTTPTimeout = 10 * time.Second
	ShutdownOTELTimeout = 5 * time.Second
	// GracefulShutdownTimeout is the overall budget a service is allowed to
	// spend draining connections, closing the HTTP/gRPC listeners, running
	// cleanup, and flushing OTEL before the process is considered hung.
	GracefulShutdownTimeout = ShutdownDrainDelay + ShutdownHTTPTimeout + ShutdownOTELTimeout

	// BFF gateway
	UpstreamBodyCapBytes = 4 * 1024 * 1024 // 4 MiB hard cap on upstream response bodies

	// Pagination defaults
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// ProtocolVersion identifies the sealed-sender wire protocol a device speaks.
type ProtocolVersion string

const (
	ProtocolV1Legacy   ProtocolVersion = "v1_legacy"
	ProtocolV2Libsignal ProtocolVersion = "v2_libsignal"
)

// IsValidProtocolVersion reports whether v is a recognized protocol version.
func IsValidProtocolVersion(v ProtocolVersion) bool {
	return v == ProtocolV1Legacy || v == ProtocolV2Libsignal
}

// GroupRole identifies a GroupMember's role.
type GroupRole string

const (
	GroupRoleAdmin  GroupRole = "admin"
	GroupRoleMember GroupRole = "member"
)

// TxnKind identifies a ledger transaction's kind.
type TxnKind string

const (
	TxnKindTopup    TxnKind = "topup"
	TxnKindTransfer TxnKind = "transfer"
)

// PaymentRequestStatus is the lifecycle state of a PaymentRequest.
type PaymentRequestStatus string

const (
	PaymentRequestPending  PaymentRequestStatus = "pending"
	PaymentRequestAccepted PaymentRequestStatus = "accepted"
	PaymentRequestCanceled PaymentRequestStatus = "canceled"
	PaymentRequestExpired  PaymentRequestStatus = "expired"
)

// TripStatus is the lifecycle state of a Trip.
type TripStatus string

const (
	TripDraft     TripStatus = "draft"
	TripPublished TripStatus = "published"
	TripCanceled  TripStatus = "canceled"
)

// BookingStatus is the lifecycle state of a Booking.
type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCanceled  BookingStatus = "canceled"
	BookingFailed    BookingStatus = "failed"
)

// TicketStatus is the lifecycle state of a Ticket.
type TicketStatus string

const (
	TicketPending  TicketStatus = "pending"
	TicketIssued   TicketStatus = "issued"
	TicketBoarded  TicketStatus = "boarded"
	TicketCanceled TicketStatus = "canceled"
)

// BookingAction identifies the Booking->Ledger cross-service call's action.
type BookingAction string

const (
	BookingActionCharge BookingAction = "charge"
	BookingActionRefund BookingAction = "refund"
)
