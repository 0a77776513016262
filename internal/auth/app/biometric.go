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

// BiometricEnrollResult carries the raw enrollment token, returned exactly
// once; the server keeps only its device-bound hash.
type BiometricEnrollResult struct {
	DeviceID string
	RawToken string
	TTLSecs  int64
}

// BiometricEnroll binds a fresh biometric re-auth token to the caller's
// account and device, replacing any prior enrollment for the pair. The
// caller must already hold a validated session.
func (s *AuthService) BiometricEnroll(ctx context.Context, accountID domain.AccountID, deviceID string) (*BiometricEnrollResult, error) {
	ctx, span := tracer.Start(ctx, "auth.biometric_enroll")
	defer span.End()

	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required: %w", domain.ErrInvalidInput)
	}

	raw, err := authdomain.GenerateRawToken(domain.BiometricTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate biometric token: %w", err)
	}
	now := s.clock.Now().UTC()
	if err := s.biometrics.Upsert(ctx, authdomain.BiometricToken{
		TokenHash: authdomain.BiometricTokenHash(deviceID, raw),
		AccountID: accountID,
		DeviceID:  deviceID,
		ExpiresAt: now.Add(domain.BiometricTokenTTL),
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("upsert biometric token: %w", err)
	}
	return &BiometricEnrollResult{
		DeviceID: deviceID,
		RawToken: raw,
		TTLSecs:  int64(domain.BiometricTokenTTL.Seconds()),
	}, nil
}

// BiometricLoginParams are the inputs to BiometricLogin.
type BiometricLoginParams struct {
	DeviceID string
	RawToken string
	Rotate   bool
	ClientIP string
}

// BiometricLoginResult carries the fresh session token and, when rotation
// was requested and won, the replacement biometric token.
type BiometricLoginResult struct {
	AccountID       domain.AccountID
	SessionToken    string
	NewBiometricToken string
}

// BiometricLogin exchanges a device-bound biometric token for a fresh
// session, rate-limited per IP and per device. With Rotate set, the token
// is swapped for a new one in the same call; a rotation race is not an
// error, the old token just stays valid.
func (s *AuthService) BiometricLogin(ctx context.Context, p BiometricLoginParams) (*BiometricLoginResult, error) {
	ctx, span := tracer.Start(ctx, "auth.biometric_login")
	defer span.End()
	logger := observability.WithTraceID(ctx, s.log)

	if p.DeviceID == "" {
		return nil, fmt.Errorf("device_id is required: %w", domain.ErrInvalidInput)
	}
	if p.RawToken == "" {
		return nil, domain.ErrUnauthorized
	}

	now := s.clock.Now().UTC()
	if p.ClientIP != "" {
		allowed, err := s.limiter.Allow(ctx, "bio_login_ip:"+domain.HashToken(p.ClientIP), domain.BiometricLoginPerIPMax, domain.BiometricLoginWindow, now)
		if err != nil {
			return nil, fmt.Errorf("check ip rate limit: %w", err)
		}
		if !allowed {
			rateLimitsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("endpoint", "biometric_login"), attribute.String("scope", "ip")))
			logger.InfoContext(ctx, "security_event", "security_event", "auth_rate_limit_exceeded", "outcome", "blocked", "scope", "ip")
			return nil, domain.ErrIPRateLimited
		}
	}
	allowed, err := s.limiter.Allow(ctx, "bio_login_device:"+domain.HashToken(p.DeviceID), domain.BiometricLoginPerDeviceMax, domain.BiometricLoginWindow, now)
	if err != nil {
		return nil, fmt.Errorf("check device rate limit: %w", err)
	}
	if !allowed {
		rateLimitsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("endpoint", "biometric_login"), attribute.String("scope", "device")))
		logger.InfoContext(ctx, "security_event", "security_event", "auth_rate_limit_exceeded", "outcome", "blocked", "scope", "device")
		return nil, domain.ErrRateLimited
	}

	tokenHash := authdomain.BiometricTokenHash(p.DeviceID, p.RawToken)
	enrollment, err := s.biometrics.FindByHashAndDevice(ctx, tokenHash, p.DeviceID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			authFailuresTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("flow", "biometric_login")))
			logger.WarnContext(ctx, "security_event",
				"security_event", "biometric_login", "outcome", "blocked",
				"reason", "unauthorized", "token_hash_prefix", tokenHash[:8])
			return nil, domain.ErrUnauthorized
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("find biometric token: %w", err)
	}
	if !enrollment.Alive(now) {
		authFailuresTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("flow", "biometric_login")))
		logger.WarnContext(ctx, "security_event",
			"security_event", "biometric_login", "outcome", "blocked",
			"reason", "revoked_or_expired", "token_hash_prefix", tokenHash[:8])
		return nil, domain.ErrUnauthorized
	}

	rawSession, err := authdomain.GenerateRawToken(16)
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}
	if err := s.sessions.Create(ctx, authdomain.Session{
		SIDHash:    authdomain.HashToken(rawSession),
		AccountID:  enrollment.AccountID,
		DeviceID:   p.DeviceID,
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(s.sessionAbsoluteTTL),
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("create session: %w", err)
	}
	sessionsIssuedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("flow", "biometric_login")))

	result := &BiometricLoginResult{AccountID: enrollment.AccountID, SessionToken: rawSession}
	if p.Rotate {
		freshRaw, err := authdomain.GenerateRawToken(domain.BiometricTokenBytes)
		if err != nil {
			return nil, fmt.Errorf("generate replacement biometric token: %w", err)
		}
		rotated, err := s.biometrics.Rotate(ctx, enrollment.AccountID, p.DeviceID, tokenHash,
			authdomain.BiometricTokenHash(p.DeviceID, freshRaw), now)
		if err != nil {
			logger.WarnContext(ctx, "security_event",
				"security_event", "biometric_token_rotate", "outcome", "failed",
				"error", err.Error(), "token_hash_prefix", tokenHash[:8])
		} else if rotated {
			result.NewBiometricToken = freshRaw
		}
	}
	return result, nil
}
