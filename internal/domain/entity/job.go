package entity

import "time"

// Job statuses
const (
	JobStatusPending   = "PENDING"
	JobStatusRunning   = "RUNNING"
	JobStatusSucceeded = "SUCCEEDED"
	JobStatusFailed    = "FAILED"
)

// Job types
const (
	JobTypeGenerateOrder   = "order.generate"
	JobTypeExportOrder     = "order.export"
	JobTypeValidateReceipt = "receipt.validate"
	JobTypeNotify          = "notification.send"
)

// Job is one queued unit of background work. Jobs are delivered at
// least once: a handler may observe the same payload twice and must be
// idempotent.
type Job struct {
	ID          int64      `json:"id"`
	Type        string     `json:"type"`
	Payload     string     `json:"payload"`
	Status      string     `json:"status"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	NextRunAt   time.Time  `json:"next_run_at"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ExhaustedAttempts reports whether the job has no retries left.
func (j *Job) ExhaustedAttempts() bool {
	return j.Attempts >= j.MaxAttempts
}
