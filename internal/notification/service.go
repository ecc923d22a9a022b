package notification

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/procurehq/p2p-engine/internal/apperrors"
	"github.com/procurehq/p2p-engine/internal/domain/entity"
	"github.com/procurehq/p2p-engine/internal/repository"
)

// Service delivers notifications and records them as an audit trail.
type Service struct {
	sender Sender
	repo   *repository.NotificationRepository
	logger *zap.Logger
}

// NewService creates a new notification service
func NewService(sender Sender, repo *repository.NotificationRepository, logger *zap.Logger) *Service {
	return &Service{
		sender: sender,
		repo:   repo,
		logger: logger,
	}
}

// Notify persists the delivery record, then dispatches the message.
// The record is written first so a failed dispatch still leaves a
// trace to inspect.
func (s *Service) Notify(ctx context.Context, msg Message) error {
	if msg.Subject == "" {
		msg.Subject = SubjectFor(msg.Kind)
	}

	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		return apperrors.Fatal("PAYLOAD_ENCODE", "failed to encode notification payload").WithCause(err)
	}

	record := &entity.Notification{
		Kind:      msg.Kind,
		Recipient: msg.Recipient,
		Subject:   msg.Subject,
		Payload:   string(payload),
	}
	if err := s.repo.Create(nil, record); err != nil {
		return apperrors.Transient("DB_WRITE", "failed to record notification").WithCause(err)
	}

	if err := s.sender.Send(ctx, msg); err != nil {
		// Delivery through the external channel may recover on retry.
		return apperrors.Transient("NOTIFY_SEND", "failed to deliver notification").WithCause(err)
	}

	s.logger.Debug("Notification delivered",
		zap.String("kind", msg.Kind),
		zap.String("recipient", msg.Recipient))
	return nil
}

// History returns a recipient's recent notifications.
func (s *Service) History(ctx context.Context, recipient string, limit int) ([]*entity.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListByRecipient(recipient, limit)
}
