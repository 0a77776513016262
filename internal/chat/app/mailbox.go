package app

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/codes"

	chatdomain "github.com/shamell/shamell/internal/chat/domain"
	"github.com/shamell/shamell/internal/domain"
)

// IssueMailboxResult carries the raw 256-bit token, never rehydrated once issued.
type IssueMailboxResult struct {
	RawToken string
}

// IssueMailbox generates a fresh mailbox token bound to ownerDeviceID.
func (s *ChatService) IssueMailbox(ctx context.Context, ownerDeviceID domain.DeviceID) (*IssueMailboxResult, error) {
	ctx, span := tracer.Start(ctx, "chat.IssueMailbox")
	defer span.End()

	raw, err := chatdomain.GenerateRawToken(domain.MailboxTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate mailbox token: %w", err)
	}
	if err := s.mailboxes.Issue(ctx, chatdomain.Mailbox{
		TokenHash:     chatdomain.HashToken(raw),
		OwnerDeviceID: ownerDeviceID,
		Active:        true,
		CreatedAt:     s.clock.Now(),
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("issue mailbox: %w", err)
	}
	mailboxEventsTotal.Add(ctx, 1)
	return &IssueMailboxResult{RawToken: raw}, nil
}

// WriteMailbox drops an opaque envelope into an active mailbox.
func (s *ChatService) WriteMailbox(ctx context.Context, rawToken, envelopeB64, senderHint string) error {
	ctx, span := tracer.Start(ctx, "chat.WriteMailbox")
	defer span.End()

	tokenHash := chatdomain.HashToken(rawToken)
	if _, err := s.mailboxes.FindActiveByHash(ctx, tokenHash); err != nil {
		return fmt.Errorf("lookup mailbox: %w", err)
	}
	if err := s.mailboxes.Write(ctx, chatdomain.MailboxMessage{
		ID:          domain.GenerateMessageID(),
		TokenHash:   tokenHash,
		EnvelopeB64: envelopeB64,
		SenderHint:  senderHint,
		CreatedAt:   s.clock.Now(),
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("write mailbox message: %w", err)
	}
	mailboxEventsTotal.Add(ctx, 1)
	return nil
}

// PollMailbox requires token+owner match and returns up to MailboxPollLimit
// unconsumed/unexpired envelopes, marking them consumed as a side effect.
func (s *ChatService) PollMailbox(ctx context.Context, rawToken string, ownerDeviceID domain.DeviceID) ([]chatdomain.MailboxMessage, error) {
	ctx, span := tracer.Start(ctx, "chat.PollMailbox")
	defer span.End()

	tokenHash := chatdomain.HashToken(rawToken)
	mb, err := s.mailboxes.FindActiveByHash(ctx, tokenHash)
	if err != nil {
		return nil, fmt.Errorf("lookup mailbox: %w", err)
	}
	if mb.OwnerDeviceID != ownerDeviceID {
		return nil, fmt.Errorf("mailbox owner mismatch: %w", domain.ErrForbidden)
	}
	rows, err := s.mailboxes.Poll(ctx, tokenHash, s.mailboxPollLimit, s.clock.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("poll mailbox: %w", err)
	}
	mailboxEventsTotal.Add(ctx, 1)
	return rows, nil
}

// RotateMailboxResult carries the fresh raw token.
type RotateMailboxResult struct {
	RawToken string
}

// RotateMailbox atomically deactivates the old token and issues a new one.
func (s *ChatService) RotateMailbox(ctx context.Context, oldRawToken string, ownerDeviceID domain.DeviceID) (*RotateMailboxResult, error) {
	ctx, span := tracer.Start(ctx, "chat.RotateMailbox")
	defer span.End()

	oldHash := chatdomain.HashToken(oldRawToken)
	mb, err := s.mailboxes.FindActiveByHash(ctx, oldHash)
	if err != nil {
		return nil, fmt.Errorf("lookup mailbox: %w", err)
	}
	if mb.OwnerDeviceID != ownerDeviceID {
		return nil, fmt.Errorf("mailbox owner mismatch: %w", domain.ErrForbidden)
	}
	raw, err := chatdomain.GenerateRawToken(domain.MailboxTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate mailbox token: %w", err)
	}
	now := s.clock.Now()
	fresh := chatdomain.Mailbox{
		TokenHash:     chatdomain.HashToken(raw),
		OwnerDeviceID: ownerDeviceID,
		Active:        true,
		CreatedAt:     now,
	}
	if err := s.mailboxes.Rotate(ctx, oldHash, fresh, now); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("rotate mailbox: %w", err)
	}
	mailboxEventsTotal.Add(ctx, 1)
	return &RotateMailboxResult{RawToken: raw}, nil
}

// SweepResult aggregates maintenance-sweep deletion counts.
type SweepResult struct {
	Messages  int64
	Mailboxes int64
}

// Sweep purges expired mailbox messages and retention-expired
// mailboxes/messages. Intended to run on RateLimitMaintenanceInterval-style
// ticker, mirroring the Auth core's Sweep.
func (s *ChatService) Sweep(ctx context.Context) (SweepResult, error) {
	ctx, span := tracer.Start(ctx, "chat.Sweep")
	defer span.End()

	msgs, mbs, err := s.mailboxes.PurgeExpired(ctx, s.clock.Now(), domain.MailboxMessageRetention, domain.MailboxInactiveRetention)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return SweepResult{}, fmt.Errorf("purge expired mailbox state: %w", err)
	}
	sweepDeletedTotal.Add(ctx, msgs+mbs)
	return SweepResult{Messages: msgs, Mailboxes: mbs}, nil
}
