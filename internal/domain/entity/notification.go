package entity

import "time"

// Notification kinds
const (
	NotificationOrderGenerated    = "ORDER_GENERATED"
	NotificationRequestRejected   = "REQUEST_REJECTED"
	NotificationValidationOutcome = "VALIDATION_OUTCOME"
	NotificationManualReview      = "MANUAL_REVIEW_REQUIRED"
)

// Notification is one message recorded for a recipient. Delivery through
// an external channel is handled by a Sender; the row is the audit trail.
type Notification struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Payload   string    `json:"payload,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}
