package repository

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/procurehq/p2p-engine/internal/domain/entity"
)

// JobRepository handles background job queue database operations
type JobRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewJobRepository creates a new job repository
func NewJobRepository(db *sql.DB, logger *zap.Logger) *JobRepository {
	return &JobRepository{
		db:     db,
		logger: logger,
	}
}

// Enqueue inserts a new pending job. Passing the transaction of the
// triggering write makes the enqueue atomic with it.
func (r *JobRepository) Enqueue(tx *sql.Tx, job *entity.Job) error {
	query := `
		INSERT INTO jobs (type, payload, status, attempts, max_attempts, next_run_at)
		VALUES (?, ?, ?, 0, ?, ?)
	`

	var result sql.Result
	var err error
	if tx != nil {
		result, err = tx.Exec(query, job.Type, job.Payload, entity.JobStatusPending,
			job.MaxAttempts, job.NextRunAt)
	} else {
		result, err = r.db.Exec(query, job.Type, job.Payload, entity.JobStatusPending,
			job.MaxAttempts, job.NextRunAt)
	}
	if err != nil {
		r.logger.Error("Failed to enqueue job", zap.String("type", job.Type), zap.Error(err))
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	job.ID = id
	job.Status = entity.JobStatusPending
	return nil
}

// ClaimNext atomically claims the oldest due pending job, marking it
// RUNNING. Returns (nil, nil) when nothing is due.
func (r *JobRepository) ClaimNext(now time.Time) (*entity.Job, error) {
	// Single-writer claim: the UPDATE only succeeds for the row this
	// SELECT saw, so two pollers cannot both take the same job.
	query := `
		SELECT id, type, payload, status, attempts, max_attempts, next_run_at,
			COALESCE(last_error, ''), created_at, updated_at
		FROM jobs
		WHERE status = ? AND next_run_at <= ?
		ORDER BY next_run_at
		LIMIT 1
	`

	var job entity.Job
	err := r.db.QueryRow(query, entity.JobStatusPending, now).Scan(
		&job.ID, &job.Type, &job.Payload, &job.Status, &job.Attempts,
		&job.MaxAttempts, &job.NextRunAt, &job.LastError,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to select next job", zap.Error(err))
		return nil, fmt.Errorf("failed to select next job: %w", err)
	}

	claim := `
		UPDATE jobs
		SET status = ?, attempts = attempts + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`
	result, err := r.db.Exec(claim, entity.JobStatusRunning, job.ID, entity.JobStatusPending)
	if err != nil {
		r.logger.Error("Failed to claim job", zap.Int64("id", job.ID), zap.Error(err))
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		// Another poller took it between the select and the update.
		return nil, nil
	}

	job.Status = entity.JobStatusRunning
	job.Attempts++
	return &job, nil
}

// MarkSucceeded records terminal success
func (r *JobRepository) MarkSucceeded(jobID int64) error {
	query := `
		UPDATE jobs
		SET status = ?, completed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	if _, err := r.db.Exec(query, entity.JobStatusSucceeded, jobID); err != nil {
		r.logger.Error("Failed to mark job succeeded", zap.Int64("id", jobID), zap.Error(err))
		return fmt.Errorf("failed to mark job succeeded: %w", err)
	}
	return nil
}

// Reschedule returns a failed job to the queue for a later attempt
func (r *JobRepository) Reschedule(jobID int64, nextRunAt time.Time, lastError string) error {
	query := `
		UPDATE jobs
		SET status = ?, next_run_at = ?, last_error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	if _, err := r.db.Exec(query, entity.JobStatusPending, nextRunAt, lastError, jobID); err != nil {
		r.logger.Error("Failed to reschedule job", zap.Int64("id", jobID), zap.Error(err))
		return fmt.Errorf("failed to reschedule job: %w", err)
	}
	return nil
}

// MarkFailed records terminal failure after exhausted retries or a
// non-retryable error
func (r *JobRepository) MarkFailed(jobID int64, lastError string) error {
	query := `
		UPDATE jobs
		SET status = ?, last_error = ?, completed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	if _, err := r.db.Exec(query, entity.JobStatusFailed, lastError, jobID); err != nil {
		r.logger.Error("Failed to mark job failed", zap.Int64("id", jobID), zap.Error(err))
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return nil
}

// GetByID retrieves a job by ID, or (nil, nil) when absent
func (r *JobRepository) GetByID(id int64) (*entity.Job, error) {
	query := `
		SELECT id, type, payload, status, attempts, max_attempts, next_run_at,
			COALESCE(last_error, ''), created_at, updated_at
		FROM jobs
		WHERE id = ?
	`

	var job entity.Job
	err := r.db.QueryRow(query, id).Scan(
		&job.ID, &job.Type, &job.Payload, &job.Status, &job.Attempts,
		&job.MaxAttempts, &job.NextRunAt, &job.LastError,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get job by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}
