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

// CreateAccountParams holds the inputs to the account-creation step.
// PoWSolution and the attestation tokens are optional
// depending on policy; the caller passes whatever the client supplied and
// the service enforces policy.
type CreateAccountParams struct {
	DeviceID                  string
	ChallengeToken            string
	PoWSolution               *uint64
	IOSDeviceCheckTokenB64    string
	AndroidPlayIntegrityToken string
}

// CreateAccountResult is returned on success.
type CreateAccountResult struct {
	Account        authdomain.Account
	SessionToken   string
	SessionExpires int64
}

// CreateAccount verifies the attestation challenge, enforces PoW and
// hardware-attestation policy, then atomically allocates a fresh account and
// issues its first session.
func (s *AuthService) CreateAccount(ctx context.Context, p CreateAccountParams) (*CreateAccountResult, error) {
	ctx, span := tracer.Start(ctx, "auth.create_account")
	defer span.End()
	logger := observability.WithTraceID(ctx, s.log)

	if !s.accountCreationEnabled {
		return nil, fmt.Errorf("account creation disabled: %w", domain.ErrForbidden)
	}
	if p.DeviceID == "" || p.ChallengeToken == "" {
		return nil, fmt.Errorf("device_id and challenge_token are required: %w", domain.ErrInvalidInput)
	}

	pepper, err := s.secrets.Get(ctx, s.pepperName)
	if err != nil {
		return nil, fmt.Errorf("load challenge pepper: %w", err)
	}

	payload, err := authdomain.DecodeChallengeToken(p.ChallengeToken, pepper.Expose())
	if err != nil {
		authFailuresTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "challenge_invalid")))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", domain.ErrChallengeExpired, err)
	}
	if payload.DeviceID != p.DeviceID {
		authFailuresTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "challenge_device_mismatch")))
		return nil, domain.ErrChallengeMismatch
	}
	if s.clock.Now().UTC().Unix() > payload.ExpiresAtUnix {
		authFailuresTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "challenge_expired")))
		return nil, domain.ErrChallengeExpired
	}

	if s.pow.Enabled {
		if p.PoWSolution == nil {
			return nil, fmt.Errorf("pow_solution is required: %w", domain.ErrPoWInvalid)
		}
		if !authdomain.VerifyPoW(payload.Nonce, p.DeviceID, *p.PoWSolution, payload.DifficultyBits) {
			authFailuresTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "pow_invalid")))
			return nil, domain.ErrPoWInvalid
		}
	}

	if s.attestation.Enabled {
		expectedNonce := authdomain.HWAttestationNonce(p.ChallengeToken)
		if err := s.verifyAttestation(ctx, p, expectedNonce); err != nil {
			authFailuresTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", "attestation_failed")))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	rawToken, err := authdomain.GenerateRawToken(16)
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}
	now := s.clock.Now().UTC()
	sess := authdomain.Session{
		SIDHash:    authdomain.HashToken(rawToken),
		DeviceID:   p.DeviceID,
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(s.sessionAbsoluteTTL),
	}

	account, err := s.accountSession.CreateAccountWithSession(ctx, sess)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("allocate account: %w", err)
	}

	accountsCreatedTotal.Add(ctx, 1)
	sessionsIssuedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("flow", "create_account")))
	logger.InfoContext(ctx, "auth.account_created",
		"account_id", account.AccountID.String(),
		"device_id_hash", domain.HashToken(p.DeviceID),
	)

	return &CreateAccountResult{
		Account:        account,
		SessionToken:   rawToken,
		SessionExpires: sess.ExpiresAt.Unix(),
	}, nil
}

// verifyAttestation requires at least one configured provider to succeed.
// Apple DeviceCheck validate_device_token succeeding (200) or Google Play
// Integrity's decoded verdict satisfying the nonce/package/verdict checks
// both count; the provider adapters encode those checks behind Verify.
func (s *AuthService) verifyAttestation(ctx context.Context, p CreateAccountParams, expectedNonce string) error {
	var appleOK, googleOK bool
	var err error

	if s.attestation.AppleEnabled && p.IOSDeviceCheckTokenB64 != "" {
		appleOK, err = s.apple.Verify(ctx, p.IOSDeviceCheckTokenB64, expectedNonce)
		if err != nil {
			return fmt.Errorf("apple attestation: %w", domain.ErrAttestationFailed)
		}
	}
	if !appleOK && s.attestation.GoogleEnabled && p.AndroidPlayIntegrityToken != "" {
		googleOK, err = s.google.Verify(ctx, p.AndroidPlayIntegrityToken, expectedNonce)
		if err != nil {
			return fmt.Errorf("google attestation: %w", domain.ErrAttestationFailed)
		}
	}

	if !appleOK && !googleOK {
		if s.attestation.Required {
			return domain.ErrAttestationFailed
		}
	}
	return nil
}
