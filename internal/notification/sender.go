package notification

import (
	"context"

	"go.uber.org/zap"

	"github.com/procurehq/p2p-engine/internal/domain/entity"
)

// Message is one notification to deliver.
type Message struct {
	Kind      string
	Recipient string
	Subject   string
	Payload   map[string]interface{}
}

// Sender delivers notifications over some external channel. The
// transport is deployment-specific; the engine only depends on this
// contract.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes notifications to the structured log. It is the
// default transport for deployments without a messaging integration.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a log-backed sender
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.Info("Notification",
		zap.String("kind", msg.Kind),
		zap.String("recipient", msg.Recipient),
		zap.String("subject", msg.Subject),
		zap.Any("payload", msg.Payload))
	return nil
}

// SubjectFor returns a short human subject line for a notification kind.
func SubjectFor(kind string) string {
	switch kind {
	case entity.NotificationOrderGenerated:
		return "Purchase order generated"
	case entity.NotificationRequestRejected:
		return "Purchase request rejected"
	case entity.NotificationValidationOutcome:
		return "Receipt validation completed"
	case entity.NotificationManualReview:
		return "Receipt requires manual review"
	default:
		return "Procurement notification"
	}
}
