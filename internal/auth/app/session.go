package app

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/codes"

	authdomain "github.com/shamell/shamell/internal/auth/domain"
	"github.com/shamell/shamell/internal/domain"
	"github.com/shamell/shamell/internal/observability"
)

// ValidateSession looks up a session by its raw cookie token, checks
// liveness (not revoked, not past absolute/idle expiry), and
// touches last_seen_at. Every authenticated lookup updates last_seen_at, so
// the common path writes on every call.
func (s *AuthService) ValidateSession(ctx context.Context, rawToken string) (authdomain.Session, error) {
	ctx, span := tracer.Start(ctx, "auth.validate_session")
	defer span.End()

	if rawToken == "" {
		return authdomain.Session{}, domain.ErrUnauthorized
	}

	sidHash := authdomain.HashToken(rawToken)
	sess, err := s.sessions.FindBySIDHash(ctx, sidHash)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return authdomain.Session{}, domain.ErrUnauthorized
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return authdomain.Session{}, fmt.Errorf("find session: %w", err)
	}

	now := s.clock.Now().UTC()
	if !sess.Alive(now, s.sessionIdleTTL) {
		if sess.RevokedAt != nil {
			return authdomain.Session{}, domain.ErrSessionRevoked
		}
		return authdomain.Session{}, domain.ErrSessionExpired
	}

	if err := s.sessions.TouchLastSeen(ctx, sidHash, now); err != nil {
		observability.WithTraceID(ctx, s.log).WarnContext(ctx, "failed to touch session last_seen_at", "error", err.Error())
	}
	sess.LastSeenAt = now

	return sess, nil
}

// FindAccount looks up an account by id, used by the internal session-
// validation route to resolve a session's phone alongside its account_id.
func (s *AuthService) FindAccount(ctx context.Context, accountID domain.AccountID) (authdomain.Account, error) {
	ctx, span := tracer.Start(ctx, "auth.find_account")
	defer span.End()

	acct, err := s.accounts.FindByAccountID(ctx, accountID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return authdomain.Account{}, domain.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return authdomain.Account{}, fmt.Errorf("find account: %w", err)
	}
	return acct, nil
}

// Logout revokes a session. Cookie-clearing is a port/BFF concern; this only
// flips revoked_at.
func (s *AuthService) Logout(ctx context.Context, rawToken string) error {
	ctx, span := tracer.Start(ctx, "auth.logout")
	defer span.End()

	sidHash := authdomain.HashToken(rawToken)
	now := s.clock.Now().UTC()
	if err := s.sessions.Revoke(ctx, sidHash, now); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}
