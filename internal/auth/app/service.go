// Package app orchestrates the Auth core's use cases: attestation-gated
// account creation, device-login QR handshake, session lifecycle, contact
// invites, and the Postgres-backed rate limiter's maintenance sweep. Every
// method follows the same shape: one OTEL span, one
// metrics counter family, structured logging via observability.WithTraceID,
// and fail-closed error propagation.
package app

import (
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	authdomain "github.com/shamell/shamell/internal/auth/domain"
	"github.com/shamell/shamell/internal/domain"
)

var tracer = otel.Tracer("auth/app")

var (
	accountsCreatedTotal    metric.Int64Counter
	sessionsIssuedTotal     metric.Int64Counter
	authFailuresTotal       metric.Int64Counter
	rateLimitsTotal         metric.Int64Counter
	deviceLoginEventsTotal  metric.Int64Counter
	contactInviteEventsTotal metric.Int64Counter
	sweepDeletedTotal       metric.Int64Counter
)

func init() {
	m := otel.Meter("auth/app")

	accountsCreatedTotal, _ = m.Int64Counter("auth_accounts_created_total",
		metric.WithDescription("Accounts successfully created"))
	sessionsIssuedTotal, _ = m.Int64Counter("auth_sessions_issued_total",
		metric.WithDescription("Sessions issued across all flows"))
	authFailuresTotal, _ = m.Int64Counter("security_auth_failures_total",
		metric.WithDescription("Authentication/attestation failures"))
	rateLimitsTotal, _ = m.Int64Counter("security_rate_limits_total",
		metric.WithDescription("Rate limit denials"))
	deviceLoginEventsTotal, _ = m.Int64Counter("auth_device_login_events_total",
		metric.WithDescription("Device-login QR state transitions"))
	contactInviteEventsTotal, _ = m.Int64Counter("auth_contact_invite_events_total",
		metric.WithDescription("Contact invite create/redeem events"))
	sweepDeletedTotal, _ = m.Int64Counter("auth_sweep_rows_deleted_total",
		metric.WithDescription("Rows purged by the maintenance sweeper"))
}

// AttestationConfig mirrors config.AttestationConfig's policy knobs without
// importing the config package (app must not depend on wiring concerns).
type AttestationConfig struct {
	Enabled          bool
	Required         bool
	AppleEnabled     bool
	GoogleEnabled    bool
	GooglePackageIDs []string
}

// HasProvider reports whether at least one attestation provider is enabled.
func (c AttestationConfig) HasProvider() bool {
	return c.AppleEnabled || c.GoogleEnabled
}

// PoWConfig holds the proof-of-work policy.
type PoWConfig struct {
	Enabled        bool
	DifficultyBits int
}

// Config holds every dependency AuthService needs.
type Config struct {
	Accounts       authdomain.AccountRepo
	AccountSession authdomain.AccountSessionTransactor
	Sessions       authdomain.SessionRepo
	DeviceLogins   authdomain.DeviceLoginRepo
	Biometrics     authdomain.BiometricTokenRepo
	ContactInvites authdomain.ContactInviteRepo
	RateLimiter    authdomain.RateLimiter
	Apple          authdomain.AttestationVerifier
	Google         authdomain.AttestationVerifier
	Secrets        authdomain.SecretStore
	PepperName     string

	Clock domain.Clock
	Log   *slog.Logger

	AccountCreationEnabled bool
	PoW                    PoWConfig
	Attestation            AttestationConfig

	SessionIdleTTL     time.Duration
	SessionAbsoluteTTL time.Duration
}

// AuthService implements the Auth core: attestation-gated account
// creation, sessions, device-login QR, contact invites, rate limiting.
type AuthService struct {
	accounts       authdomain.AccountRepo
	accountSession authdomain.AccountSessionTransactor
	sessions       authdomain.SessionRepo
	deviceLogins   authdomain.DeviceLoginRepo
	biometrics     authdomain.BiometricTokenRepo
	contactInvites authdomain.ContactInviteRepo
	limiter        authdomain.RateLimiter
	apple          authdomain.AttestationVerifier
	google         authdomain.AttestationVerifier
	secrets        authdomain.SecretStore
	pepperName     string

	clock domain.Clock
	log   *slog.Logger

	accountCreationEnabled bool
	pow                    PoWConfig
	attestation            AttestationConfig

	sessionIdleTTL     time.Duration
	sessionAbsoluteTTL time.Duration

	bgWG sync.WaitGroup
}

// NewAuthService constructs an AuthService from cfg, falling back to the
// compiled session TTL defaults when unset.
func NewAuthService(cfg Config) *AuthService {
	idleTTL := cfg.SessionIdleTTL
	if idleTTL <= 0 {
		idleTTL = domain.SessionIdleTTL
	}
	absTTL := cfg.SessionAbsoluteTTL
	if absTTL <= 0 {
		absTTL = domain.SessionAbsoluteTTL
	}
	return &AuthService{
		accounts:               cfg.Accounts,
		accountSession:          cfg.AccountSession,
		sessions:                cfg.Sessions,
		deviceLogins:            cfg.DeviceLogins,
		biometrics:              cfg.Biometrics,
		contactInvites:          cfg.ContactInvites,
		limiter:                 cfg.RateLimiter,
		apple:                   cfg.Apple,
		google:                  cfg.Google,
		secrets:                 cfg.Secrets,
		pepperName:              cfg.PepperName,
		clock:                   cfg.Clock,
		log:                     cfg.Log,
		accountCreationEnabled:  cfg.AccountCreationEnabled,
		pow:                     cfg.PoW,
		attestation:             cfg.Attestation,
		sessionIdleTTL:          idleTTL,
		sessionAbsoluteTTL:      absTTL,
	}
}

// Wait blocks until background goroutines (none currently detached, kept for
// the graceful-shutdown path) complete.
func (s *AuthService) Wait() { s.bgWG.Wait() }
