package repository

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/procurehq/p2p-engine/internal/domain/entity"
)

// NotificationRepository persists the notification audit trail
type NotificationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *sql.DB, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

// Create records a delivered notification
func (r *NotificationRepository) Create(tx *sql.Tx, n *entity.Notification) error {
	query := `
		INSERT INTO notifications (kind, recipient, subject, payload)
		VALUES (?, ?, ?, ?)
	`

	var result sql.Result
	var err error
	if tx != nil {
		result, err = tx.Exec(query, n.Kind, n.Recipient, n.Subject, n.Payload)
	} else {
		result, err = r.db.Exec(query, n.Kind, n.Recipient, n.Subject, n.Payload)
	}
	if err != nil {
		r.logger.Error("Failed to create notification", zap.Error(err))
		return fmt.Errorf("failed to create notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	n.ID = id
	return nil
}

// ListByRecipient returns a recipient's notifications, newest first
func (r *NotificationRepository) ListByRecipient(recipient string, limit int) ([]*entity.Notification, error) {
	query := `
		SELECT id, kind, recipient, subject, COALESCE(payload, ''), sent_at
		FROM notifications
		WHERE recipient = ?
		ORDER BY sent_at DESC
		LIMIT ?
	`

	rows, err := r.db.Query(query, recipient, limit)
	if err != nil {
		r.logger.Error("Failed to list notifications", zap.String("recipient", recipient), zap.Error(err))
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*entity.Notification
	for rows.Next() {
		var n entity.Notification
		if err := rows.Scan(&n.ID, &n.Kind, &n.Recipient, &n.Subject, &n.Payload, &n.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, &n)
	}
	return notifications, rows.Err()
}
