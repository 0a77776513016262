package app

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/shamell/shamell/internal/observability"
)

// SweepResult reports how many rows the maintenance pass deleted per table.
type SweepResult struct {
	Sessions        int64
	DeviceLogins    int64
	BiometricTokens int64
	ContactInvites  int64
	RateLimits      int64
}

// Sweep purges expired/idle rows from every timestamped table with a
// configurable retention grace. Callers run this on a skip-missed-tick
// interval; Sweep itself is a single pass.
func (s *AuthService) Sweep(ctx context.Context, retentionGrace time.Duration) (SweepResult, error) {
	ctx, span := tracer.Start(ctx, "auth.sweep")
	defer span.End()
	logger := observability.WithTraceID(ctx, s.log)

	cutoff := s.clock.Now().UTC().Add(-retentionGrace)
	var res SweepResult
	var err error

	if res.Sessions, err = s.sessions.DeleteExpiredBefore(ctx, cutoff); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, fmt.Errorf("sweep sessions: %w", err)
	}
	if res.DeviceLogins, err = s.deviceLogins.DeleteExpiredBefore(ctx, cutoff); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, fmt.Errorf("sweep device logins: %w", err)
	}
	if res.BiometricTokens, err = s.biometrics.DeleteExpiredBefore(ctx, cutoff); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, fmt.Errorf("sweep biometric tokens: %w", err)
	}
	if res.ContactInvites, err = s.contactInvites.DeleteExpiredBefore(ctx, cutoff); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, fmt.Errorf("sweep contact invites: %w", err)
	}
	if res.RateLimits, err = s.limiter.DeleteExpiredBefore(ctx, cutoff); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, fmt.Errorf("sweep rate limits: %w", err)
	}

	total := res.Sessions + res.DeviceLogins + res.BiometricTokens + res.ContactInvites + res.RateLimits
	if total > 0 {
		sweepDeletedTotal.Add(ctx, total)
		logger.InfoContext(ctx, "auth.sweep_complete",
			"sessions", res.Sessions, "device_logins", res.DeviceLogins,
			"biometric_tokens", res.BiometricTokens,
			"contact_invites", res.ContactInvites, "rate_limits", res.RateLimits,
		)
	}

	return res, nil
}
