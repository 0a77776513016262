package app

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	authdomain "github.com/shamell/shamell/internal/auth/domain"
	"github.com/shamell/shamell/internal/domain"
	"github.com/shamell/shamell/internal/observability"
)

// DeviceLoginStartResult is returned on success. RawToken is returned only
// here — it is never rehydrated from storage afterward.
type DeviceLoginStartResult struct {
	RawToken  string
	ExpiresAt int64
}

// DeviceLoginStart creates a pending DeviceLoginChallenge, rate-limited per
// IP.
func (s *AuthService) DeviceLoginStart(ctx context.Context, label, clientIP string) (*DeviceLoginStartResult, error) {
	ctx, span := tracer.Start(ctx, "auth.device_login_start")
	defer span.End()
	logger := observability.WithTraceID(ctx, s.log)

	now := s.clock.Now().UTC()
	if clientIP != "" {
		allowed, err := s.limiter.Allow(ctx, "device_login_start_ip:"+domain.HashToken(clientIP), domain.ChallengePerIPMax, domain.ChallengeRateLimitWindow, now)
		if err != nil {
			return nil, fmt.Errorf("check rate limit: %w", err)
		}
		if !allowed {
			rateLimitsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("endpoint", "device_login_start")))
			logger.InfoContext(ctx, "security_event", "security_event", "auth_rate_limit_exceeded", "outcome", "blocked")
			return nil, domain.ErrIPRateLimited
		}
	}

	rawToken, err := authdomain.GenerateRawToken(domain.DeviceLoginTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate device-login token: %w", err)
	}

	challenge := authdomain.DeviceLoginChallenge{
		TokenHash: authdomain.HashToken(rawToken),
		Label:     label,
		Status:    authdomain.DeviceLoginPending,
		ExpiresAt: now.Add(domain.DeviceLoginChallengeTTL),
	}
	if err := s.deviceLogins.Create(ctx, challenge); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("create device-login challenge: %w", err)
	}

	deviceLoginEventsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("event", "start")))
	logger.InfoContext(ctx, "security_event", "security_event", "device_login_started")

	return &DeviceLoginStartResult{RawToken: rawToken, ExpiresAt: challenge.ExpiresAt.Unix()}, nil
}

// DeviceLoginApprove binds an already-authenticated account to a pending
// challenge.
func (s *AuthService) DeviceLoginApprove(ctx context.Context, rawToken string, accountID domain.AccountID) error {
	ctx, span := tracer.Start(ctx, "auth.device_login_approve")
	defer span.End()
	logger := observability.WithTraceID(ctx, s.log)

	tokenHash := authdomain.HashToken(rawToken)
	challenge, err := s.deviceLogins.LockByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("lock device-login challenge: %w", err)
	}

	now := s.clock.Now().UTC()
	if challenge.Status != authdomain.DeviceLoginPending || now.After(challenge.ExpiresAt) {
		return domain.ErrNotFound
	}
	if challenge.AccountID != nil && *challenge.AccountID != accountID {
		return domain.ErrDeviceLoginBound
	}

	if err := s.deviceLogins.Approve(ctx, tokenHash, accountID, now); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("approve device-login challenge: %w", err)
	}

	deviceLoginEventsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("event", "approve")))
	logger.InfoContext(ctx, "security_event", "security_event", "device_login_approved", "account_id", accountID.String())
	return nil
}

// DeviceLoginRedeemResult is returned on a successful redeem.
type DeviceLoginRedeemResult struct {
	AccountID      domain.AccountID
	SessionToken   string
	SessionExpires int64
}

// DeviceLoginRedeem consumes an approved challenge and issues a session on
// the new device. The challenge row is row-locked,
// verified alive+approved, and deleted in the same atomic unit as the
// session insert.
func (s *AuthService) DeviceLoginRedeem(ctx context.Context, rawToken, deviceID string) (*DeviceLoginRedeemResult, error) {
	ctx, span := tracer.Start(ctx, "auth.device_login_redeem")
	defer span.End()
	logger := observability.WithTraceID(ctx, s.log)

	tokenHash := authdomain.HashToken(rawToken)
	challenge, err := s.deviceLogins.LockByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("lock device-login challenge: %w", err)
	}

	now := s.clock.Now().UTC()
	if challenge.Status != authdomain.DeviceLoginApproved || now.After(challenge.ExpiresAt) || challenge.AccountID == nil {
		return nil, domain.ErrDeviceLoginNotReady
	}
	if challenge.DeviceID != "" && challenge.DeviceID != deviceID {
		return nil, domain.ErrDeviceMismatch
	}

	rawSession, err := authdomain.GenerateRawToken(16)
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}
	sess := authdomain.Session{
		SIDHash:    authdomain.HashToken(rawSession),
		AccountID:  *challenge.AccountID,
		DeviceID:   deviceID,
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(s.sessionAbsoluteTTL),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("create session: %w", err)
	}
	if err := s.deviceLogins.Redeem(ctx, tokenHash); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("redeem device-login challenge: %w", err)
	}

	deviceLoginEventsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("event", "redeem")))
	sessionsIssuedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("flow", "device_login")))
	logger.InfoContext(ctx, "security_event", "security_event", "device_login_redeemed", "account_id", challenge.AccountID.String())

	return &DeviceLoginRedeemResult{
		AccountID:      *challenge.AccountID,
		SessionToken:   rawSession,
		SessionExpires: sess.ExpiresAt.Unix(),
	}, nil
}
