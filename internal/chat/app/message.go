package app

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"

	chatdomain "github.com/shamell/shamell/internal/chat/domain"
	"github.com/shamell/shamell/internal/domain"
)

// SendDirectParams are the inputs to a sealed-sender direct send.
type SendDirectParams struct {
	SenderID        domain.DeviceID
	RecipientID     domain.DeviceID
	SealedSender    bool
	NonceB64        string
	BoxB64          string
	SenderPubKeyB64 string
	SenderDHPubB64  string
	ProtocolVersion domain.ProtocolVersion
	SenderHint      string
	KeyID           *int64
	PrevKeyID       *int64
}

// SendDirect enforces the sealed-sender requirement, the protocol-downgrade
// guard, write-enablement flags, and row-level deduplication before
// inserting a direct message and triggering a best-effort wakeup push.
func (s *ChatService) SendDirect(ctx context.Context, p SendDirectParams) (*chatdomain.DirectMessage, error) {
	ctx, span := tracer.Start(ctx, "chat.SendDirect")
	defer span.End()

	if !p.SealedSender {
		return nil, fmt.Errorf("sealed_sender required: %w", domain.ErrSealedSenderRequired)
	}
	if !domain.IsValidProtocolVersion(p.ProtocolVersion) {
		return nil, fmt.Errorf("unknown protocol_version: %w", domain.ErrInvalidInput)
	}

	if err := s.checkWriteEnablement(ctx, p.ProtocolVersion); err != nil {
		return nil, err
	}
	if err := s.checkDowngradeGuard(ctx, p.ProtocolVersion, p.SenderID, p.RecipientID); err != nil {
		return nil, err
	}

	if dup, err := s.messages.FindDuplicateDirect(ctx, p.SenderID, p.RecipientID, p.NonceB64, p.BoxB64); err == nil {
		return &dup, nil
	} else if !domain.IsNotFound(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("check duplicate direct message: %w", err)
	}

	msg := chatdomain.DirectMessage{
		ID:              domain.GenerateMessageID(),
		SenderID:        p.SenderID,
		RecipientID:     p.RecipientID,
		ProtocolVersion: p.ProtocolVersion,
		SenderPubKeyB64: p.SenderPubKeyB64,
		SenderDHPubB64:  p.SenderDHPubB64,
		NonceB64:        p.NonceB64,
		BoxB64:          p.BoxB64,
		SealedSender:    true,
		SenderHint:      p.SenderHint,
		KeyID:           p.KeyID,
		PrevKeyID:       p.PrevKeyID,
		CreatedAt:       s.clock.Now(),
	}
	stored, err := s.messages.InsertDirect(ctx, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("insert direct message: %w", err)
	}
	messagesAcceptedTotal.Add(ctx, 1)

	if !s.mutedOrHidden(ctx, p.RecipientID, p.SenderID) {
		s.notifyWakeupAsync([]domain.DeviceID{p.RecipientID})
	}
	return &stored, nil
}

func (s *ChatService) checkWriteEnablement(ctx context.Context, v domain.ProtocolVersion) error {
	switch v {
	case domain.ProtocolV2Libsignal:
		if !s.protocol.V2Enabled {
			return fmt.Errorf("v2 writes disabled: %w", domain.ErrProtocolDisabled)
		}
	case domain.ProtocolV1Legacy:
		if !s.protocol.V1WriteEnabled {
			return fmt.Errorf("v1 writes disabled: %w", domain.ErrProtocolDisabled)
		}
	}
	return nil
}

// checkDowngradeGuard rejects v1_legacy sends when either party has
// v2_only=1, emitting a security audit log line on rejection.
func (s *ChatService) checkDowngradeGuard(ctx context.Context, v domain.ProtocolVersion, senderID, recipientID domain.DeviceID) error {
	if v != domain.ProtocolV1Legacy {
		return nil
	}
	senderState, err := s.keyBundles.FindProtocolState(ctx, senderID)
	if err != nil && !domain.IsNotFound(err) {
		return fmt.Errorf("lookup sender protocol state: %w", err)
	}
	recipientState, err := s.keyBundles.FindProtocolState(ctx, recipientID)
	if err != nil && !domain.IsNotFound(err) {
		return fmt.Errorf("lookup recipient protocol state: %w", err)
	}
	if senderState.V2Only || recipientState.V2Only {
		protocolDowngradesTotal.Add(ctx, 1)
		s.log.Warn("chat_protocol_downgrade",
			"sender_id", senderID.String(), "recipient_id", recipientID.String())
		return fmt.Errorf("v1_legacy send rejected by v2_only policy: %w", domain.ErrProtocolDowngrade)
	}
	return nil
}

func (s *ChatService) mutedOrHidden(ctx context.Context, viewerID, otherID domain.DeviceID) bool {
	rule, err := s.contactRules.Find(ctx, viewerID, otherID)
	if err != nil {
		return false
	}
	return rule.Hidden || rule.Blocked || rule.Muted
}

// InboxParams are the inputs to the inbox fetch.
type InboxParams struct {
	DeviceID domain.DeviceID
	Since    time.Time
	Limit    int
}

// Inbox returns recent direct messages for a device, sealed-view forced
// server-side, filtering blocked/hidden peers and v1 rows for v2-only
// devices, marking delivered as a side effect.
func (s *ChatService) Inbox(ctx context.Context, p InboxParams) ([]chatdomain.DirectMessage, error) {
	ctx, span := tracer.Start(ctx, "chat.Inbox")
	defer span.End()

	limit := p.Limit
	if limit <= 0 || limit > s.inboxDefaultLimit {
		limit = s.inboxDefaultLimit
	}
	now := s.clock.Now()
	rows, err := s.messages.Inbox(ctx, p.DeviceID, p.Since, limit, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("fetch inbox: %w", err)
	}

	blocked, err := s.contactRules.BlockedOrHiddenPeers(ctx, p.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("fetch contact rules: %w", err)
	}
	state, err := s.keyBundles.FindProtocolState(ctx, p.DeviceID)
	if err != nil && !domain.IsNotFound(err) {
		return nil, fmt.Errorf("lookup viewer protocol state: %w", err)
	}
	v1Hidden := state.V2Only

	out := make([]chatdomain.DirectMessage, 0, len(rows))
	for _, m := range rows {
		if blocked[m.SenderID] {
			continue
		}
		if v1Hidden && m.ProtocolVersion == domain.ProtocolV1Legacy {
			continue
		}
		out = append(out, redactSender(m))
	}
	return out, nil
}

// redactSender forces the sealed-view regardless of any client-provided
// hint: the recipient never learns sender_id or sender_pubkey_b64, only the
// opaque sender_hint the sender chose to attach, if any.
func redactSender(m chatdomain.DirectMessage) chatdomain.DirectMessage {
	m.SenderID = domain.DeviceID{}
	m.SenderPubKeyB64 = ""
	m.SenderDHPubB64 = ""
	return m
}
