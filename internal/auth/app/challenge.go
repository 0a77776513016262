package app

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	authdomain "github.com/shamell/shamell/internal/auth/domain"
	"github.com/shamell/shamell/internal/domain"
	"github.com/shamell/shamell/internal/observability"
)

// ChallengeResult is returned by Challenge on success.
type ChallengeResult struct {
	ChallengeToken      string
	Nonce               string
	DifficultyBits      int
	HWAttestationNonceB64 string
	ExpiresAt           int64
}

// Challenge issues a signed, short-lived attestation challenge bound to
// deviceID, rate-limited per IP and per device.
func (s *AuthService) Challenge(ctx context.Context, deviceID, clientIP string) (*ChallengeResult, error) {
	ctx, span := tracer.Start(ctx, "auth.challenge")
	defer span.End()
	logger := observability.WithTraceID(ctx, s.log)

	if deviceID == "" {
		err := fmt.Errorf("device_id is required: %w", domain.ErrInvalidInput)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	now := s.clock.Now().UTC()

	if clientIP != "" {
		allowed, err := s.limiter.Allow(ctx, "challenge_ip:"+domain.HashToken(clientIP), domain.ChallengePerIPMax, domain.ChallengeRateLimitWindow, now)
		if err != nil {
			return nil, fmt.Errorf("check ip rate limit: %w", err)
		}
		if !allowed {
			rateLimitsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("endpoint", "challenge"), attribute.String("scope", "ip")))
			logger.InfoContext(ctx, "security_event", "security_event", "auth_rate_limit_exceeded", "outcome", "blocked", "scope", "ip")
			return nil, domain.ErrIPRateLimited
		}
	}

	allowed, err := s.limiter.Allow(ctx, "challenge_device:"+domain.HashToken(deviceID), domain.ChallengePerDeviceMax, domain.ChallengeRateLimitWindow, now)
	if err != nil {
		return nil, fmt.Errorf("check device rate limit: %w", err)
	}
	if !allowed {
		rateLimitsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("endpoint", "challenge"), attribute.String("scope", "device")))
		logger.InfoContext(ctx, "security_event", "security_event", "auth_rate_limit_exceeded", "outcome", "blocked", "scope", "device")
		return nil, domain.ErrRateLimited
	}

	nonce, err := authdomain.GenerateRawToken(domain.ChallengeNonceBytes)
	if err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	exp := now.Add(domain.ChallengeTTL).Unix()
	payload := authdomain.ChallengePayload{
		Version:        1,
		DeviceID:       deviceID,
		Nonce:          nonce,
		DifficultyBits: s.pow.DifficultyBits,
		ExpiresAtUnix:  exp,
	}

	pepper, err := s.secrets.Get(ctx, s.pepperName)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("load challenge pepper: %w", err)
	}

	token, err := authdomain.EncodeChallengeToken(payload, pepper.Expose())
	if err != nil {
		return nil, fmt.Errorf("encode challenge token: %w", err)
	}

	logger.InfoContext(ctx, "auth.challenge_issued", "device_id_hash", domain.HashToken(deviceID))

	return &ChallengeResult{
		ChallengeToken:         token,
		Nonce:                  nonce,
		DifficultyBits:         s.pow.DifficultyBits,
		HWAttestationNonceB64:  authdomain.HWAttestationNonce(token),
		ExpiresAt:              exp,
	}, nil
}
