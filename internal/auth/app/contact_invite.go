package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	authdomain "github.com/shamell/shamell/internal/auth/domain"
	"github.com/shamell/shamell/internal/domain"
	"github.com/shamell/shamell/internal/observability"
)

// defaultInviteTTL is used when the caller does not specify one.
const defaultInviteTTL = 7 * 24 * time.Hour

// ContactInviteCreateResult is returned on success.
type ContactInviteCreateResult struct {
	RawToken  string
	ExpiresAt int64
}

// ContactInviteCreate issues a capability token for contact-invite redemption.
func (s *AuthService) ContactInviteCreate(ctx context.Context, issuerAccountID domain.AccountID, issuerChatDeviceID string, maxUses int, ttlSeconds int64) (*ContactInviteCreateResult, error) {
	ctx, span := tracer.Start(ctx, "auth.contact_invite_create")
	defer span.End()
	logger := observability.WithTraceID(ctx, s.log)

	if issuerChatDeviceID == "" {
		return nil, fmt.Errorf("issuer chat device is required: %w", domain.ErrInvalidInput)
	}
	if maxUses < 1 {
		maxUses = 1
	}

	rawToken, err := authdomain.GenerateRawToken(domain.ContactInviteTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate invite token: %w", err)
	}

	now := s.clock.Now().UTC()
	inv := authdomain.ContactInvite{
		TokenHash:          authdomain.HashToken(rawToken),
		IssuerAccountID:    issuerAccountID,
		IssuerChatDeviceID: issuerChatDeviceID,
		MaxUses:            maxUses,
		ExpiresAt:          now.Add(ttlOrDefault(ttlSeconds)),
	}
	if err := s.contactInvites.Create(ctx, inv); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("create contact invite: %w", err)
	}

	contactInviteEventsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("event", "create")))
	logger.InfoContext(ctx, "auth.contact_invite_created", "issuer_account_id", issuerAccountID.String())

	return &ContactInviteCreateResult{RawToken: rawToken, ExpiresAt: inv.ExpiresAt.Unix()}, nil
}

// HasContactEdge reports whether ownerAccountID has an established chat
// contact edge to peerChatDeviceID. The BFF calls this to enforce the
// contact-edge precondition on chat-send when configured.
func (s *AuthService) HasContactEdge(ctx context.Context, ownerAccountID domain.AccountID, peerChatDeviceID string) (bool, error) {
	ctx, span := tracer.Start(ctx, "auth.has_contact_edge")
	defer span.End()

	ok, err := s.contactInvites.HasContactEdge(ctx, ownerAccountID, peerChatDeviceID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("check contact edge: %w", err)
	}
	return ok, nil
}

func ttlOrDefault(ttlSeconds int64) time.Duration {
	if ttlSeconds <= 0 {
		return defaultInviteTTL
	}
	return time.Duration(ttlSeconds) * time.Second
}

// ContactInviteRedeem validates a capability token and creates the
// bidirectional contact edge. redeemerAccountID/redeemerChatDeviceID
// identify the caller presenting the token; self-redemption is forbidden.
func (s *AuthService) ContactInviteRedeem(ctx context.Context, rawToken string, redeemerAccountID domain.AccountID, redeemerChatDeviceID string) error {
	ctx, span := tracer.Start(ctx, "auth.contact_invite_redeem")
	defer span.End()
	logger := observability.WithTraceID(ctx, s.log)

	if redeemerChatDeviceID == "" {
		return fmt.Errorf("redeemer chat device is required: %w", domain.ErrInvalidInput)
	}

	tokenHash := authdomain.HashToken(rawToken)
	inv, err := s.contactInvites.LockByTokenHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("lock contact invite: %w", err)
	}

	now := s.clock.Now().UTC()
	if !inv.Alive(now) {
		return domain.ErrNotFound
	}
	if inv.IssuerAccountID == redeemerAccountID {
		return domain.ErrInviteSelfRedeem
	}

	revoke := inv.UseCount+1 >= inv.MaxUses
	if err := s.contactInvites.IncrementUse(ctx, tokenHash, now, revoke); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("increment contact invite use: %w", err)
	}

	edges := []authdomain.ChatContact{
		{OwnerAccountID: redeemerAccountID, PeerChatDeviceID: inv.IssuerChatDeviceID},
		{OwnerAccountID: inv.IssuerAccountID, PeerChatDeviceID: redeemerChatDeviceID},
	}
	for _, edge := range edges {
		if err := s.contactInvites.UpsertContactEdge(ctx, edge); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("upsert contact edge: %w", err)
		}
	}

	contactInviteEventsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("event", "redeem")))
	logger.InfoContext(ctx, "auth.contact_invite_redeemed", "redeemer_account_id", redeemerAccountID.String())
	return nil
}
