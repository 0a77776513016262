// Package app orchestrates the Chat core's use cases: device registration
// and rotation, libsignal-style key bundle issuance, sealed-sender
// direct/group messaging with the protocol-downgrade guard, mailbox
// transport, and best-effort push. Every method follows the same
// auth_service.go shape: one OTEL span, one metrics counter family,
// structured logging via observability.WithTraceID, fail-closed error
// propagation.
package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	chatdomain "github.com/shamell/shamell/internal/chat/domain"
	"github.com/shamell/shamell/internal/domain"
)

var tracer = otel.Tracer("chat/app")

var (
	devicesRegisteredTotal  metric.Int64Counter
	keyBundlesIssuedTotal   metric.Int64Counter
	messagesAcceptedTotal   metric.Int64Counter
	protocolDowngradesTotal metric.Int64Counter
	groupEventsTotal        metric.Int64Counter
	mailboxEventsTotal      metric.Int64Counter
	pushSentTotal           metric.Int64Counter
	sweepDeletedTotal       metric.Int64Counter
)

func init() {
	m := otel.Meter("chat/app")

	devicesRegisteredTotal, _ = m.Int64Counter("chat_devices_registered_total",
		metric.WithDescription("Device registrations and rotations"))
	keyBundlesIssuedTotal, _ = m.Int64Counter("chat_key_bundles_issued_total",
		metric.WithDescription("Key bundles successfully fetched and consumed"))
	messagesAcceptedTotal, _ = m.Int64Counter("chat_messages_accepted_total",
		metric.WithDescription("Direct and group messages accepted for delivery"))
	protocolDowngradesTotal, _ = m.Int64Counter("security_chat_protocol_downgrade_total",
		metric.WithDescription("Rejected protocol-downgrade send attempts"))
	groupEventsTotal, _ = m.Int64Counter("chat_group_events_total",
		metric.WithDescription("Group lifecycle events: create/update/role/leave/key-rotation"))
	mailboxEventsTotal, _ = m.Int64Counter("chat_mailbox_events_total",
		metric.WithDescription("Mailbox issue/write/poll/rotate events"))
	pushSentTotal, _ = m.Int64Counter("chat_push_sent_total",
		metric.WithDescription("Best-effort wakeup pushes dispatched"))
	sweepDeletedTotal, _ = m.Int64Counter("chat_sweep_rows_deleted_total",
		metric.WithDescription("Rows purged by the mailbox maintenance sweeper"))
}

// ProtocolPolicy mirrors config's write-enablement flags without importing
// the config package.
type ProtocolPolicy struct {
	V2Enabled          bool
	V1WriteEnabled     bool
	GroupV2OnlyGlobal  bool
}

// Config holds every dependency ChatService needs.
type Config struct {
	Devices        chatdomain.DeviceRepo
	KeyBundles     chatdomain.KeyBundleRepo
	Messages       chatdomain.MessageRepo
	Groups         chatdomain.GroupRepo
	ContactRules   chatdomain.ContactRuleRepo
	PushTokens     chatdomain.PushTokenRepo
	Mailboxes      chatdomain.MailboxRepo
	Push           chatdomain.PushSender

	Clock domain.Clock
	Log   *slog.Logger

	Protocol ProtocolPolicy

	InboxDefaultLimit int
	MailboxPollLimit  int
}

// ChatService implements the Chat core: device registration, key
// bundles, sealed-sender messaging, groups, and the mailbox transport.
type ChatService struct {
	devices      chatdomain.DeviceRepo
	keyBundles   chatdomain.KeyBundleRepo
	messages     chatdomain.MessageRepo
	groups       chatdomain.GroupRepo
	contactRules chatdomain.ContactRuleRepo
	pushTokens   chatdomain.PushTokenRepo
	mailboxes    chatdomain.MailboxRepo
	push         chatdomain.PushSender

	clock domain.Clock
	log   *slog.Logger

	protocol ProtocolPolicy

	inboxDefaultLimit int
	mailboxPollLimit  int

	bgWG sync.WaitGroup
}

// NewChatService constructs a ChatService from cfg, falling back to the
// compiled defaults for unset limits.
func NewChatService(cfg Config) *ChatService {
	inboxLimit := cfg.InboxDefaultLimit
	if inboxLimit <= 0 {
		inboxLimit = domain.InboxDefaultLimit
	}
	pollLimit := cfg.MailboxPollLimit
	if pollLimit <= 0 {
		pollLimit = domain.MailboxPollLimit
	}
	return &ChatService{
		devices:           cfg.Devices,
		keyBundles:        cfg.KeyBundles,
		messages:          cfg.Messages,
		groups:            cfg.Groups,
		contactRules:      cfg.ContactRules,
		pushTokens:        cfg.PushTokens,
		mailboxes:         cfg.Mailboxes,
		push:              cfg.Push,
		clock:             cfg.Clock,
		log:               cfg.Log,
		protocol:          cfg.Protocol,
		inboxDefaultLimit: inboxLimit,
		mailboxPollLimit:  pollLimit,
	}
}

// Wait blocks until detached background push goroutines complete. Kept for
// symmetry with the graceful-shutdown path.
func (s *ChatService) Wait() { s.bgWG.Wait() }

// notifyWakeupAsync dispatches best-effort pushes in the background so the
// caller's response is never delayed by provider latency. Failures are
// logged, never propagated; push is strictly best-effort.
func (s *ChatService) notifyWakeupAsync(recipients []domain.DeviceID) {
	if s.push == nil || len(recipients) == 0 {
		return
	}
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		s.dispatchWakeup(recipients)
	}()
}

func (s *ChatService) dispatchWakeup(recipients []domain.DeviceID) {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundPushTimeout)
	defer cancel()
	tokens, err := s.pushTokens.ListForDevices(ctx, recipients)
	if err != nil {
		s.log.Warn("chat push: list tokens failed", "error", err)
		return
	}
	for _, tok := range tokens {
		if err := s.push.SendWakeup(ctx, tok); err != nil {
			s.log.Warn("chat push: send failed", "device_id", tok.DeviceID.String(), "error", err)
			continue
		}
		pushSentTotal.Add(ctx, 1)
	}
}

var backgroundPushTimeout = 10 * time.Second
