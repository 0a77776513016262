package adapter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/sns"

	chatdomain "github.com/shamell/shamell/internal/chat/domain"
)

// snsPublisher is a narrow, consumer-defined interface for the subset of SNS
// operations required by the push sender. The real *sns.Client satisfies it.
type snsPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

var _ chatdomain.PushSender = (*SNSPushSender)(nil)
var _ chatdomain.PushSender = (*LogPushSender)(nil)

// SNSPushSender delivers content-free wakeup pushes via Amazon SNS platform
// endpoints. token.Token holds the endpoint ARN the device registered.
type SNSPushSender struct {
	client snsPublisher
}

// NewSNSPushSender creates an SNSPushSender backed by the given SNS client.
func NewSNSPushSender(client snsPublisher) *SNSPushSender {
	return &SNSPushSender{client: client}
}

// wakeupPayload carries no sender, message, or group identifiers: the client
// wakes on receipt and polls its mailbox for content.
const wakeupPayload = `{"aps":{"content-available":1}}`

// SendWakeup publishes a silent wakeup push to token's platform endpoint.
func (p *SNSPushSender) SendWakeup(ctx context.Context, token chatdomain.PushToken) error {
	targetARN := token.Token
	_, err := p.client.Publish(ctx, &sns.PublishInput{
		TargetArn:        &targetARN,
		Message:          awsString(wakeupPayload),
		MessageStructure: awsString("json"),
	})
	if err != nil {
		return fmt.Errorf("sns push: send wakeup: %w", err)
	}
	return nil
}

func awsString(s string) *string { return &s }

// LogPushSender is a fake PushSender that logs wakeup delivery instead of
// calling a real push provider. Suitable for local development and testing.
type LogPushSender struct {
	logger *slog.Logger
}

// NewLogPushSender creates a LogPushSender that writes wakeup events to the
// given structured logger.
func NewLogPushSender(logger *slog.Logger) *LogPushSender {
	return &LogPushSender{logger: logger}
}

// SendWakeup logs the wakeup delivery. It never calls a real push provider.
func (p *LogPushSender) SendWakeup(ctx context.Context, token chatdomain.PushToken) error {
	p.logger.InfoContext(ctx, "push wakeup (log-only)",
		slog.String("device_id", token.DeviceID.String()),
		slog.String("platform", string(token.Platform)),
	)
	return nil
}
