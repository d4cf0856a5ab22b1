package twilio

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/troikatech/voice-bridge/pkg/utils"
)

// SMSNotifier sends the configured confirmation text when a conversation
// trips a trigger keyword. Satisfies the relay's notifier contract.
type SMSNotifier struct {
	client *Client
	from   string
	body   string
	logger *zap.Logger
}

func NewSMSNotifier(client *Client, from, body string, logger *zap.Logger) *SMSNotifier {
	return &SMSNotifier{
		client: client,
		from:   from,
		body:   body,
		logger: logger,
	}
}

func (n *SMSNotifier) Notify(ctx context.Context, calleeNumber, reason string) error {
	msg, err := n.client.SendSMS(ctx, n.from, calleeNumber, n.body)
	if err != nil {
		return fmt.Errorf("notification SMS failed: %w", err)
	}

	n.logger.Info("Notification SMS sent",
		zap.String("message_sid", msg.Sid),
		zap.String("to", utils.MaskPhoneNumber(calleeNumber)),
		zap.String("reason", reason),
	)
	return nil
}
