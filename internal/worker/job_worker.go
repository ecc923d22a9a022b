package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/procurehq/p2p-engine/internal/apperrors"
	"github.com/procurehq/p2p-engine/internal/domain/entity"
	"github.com/procurehq/p2p-engine/internal/repository"
)

// Handler executes one job payload. Handlers must be idempotent: a job
// is delivered at least once.
type Handler func(ctx context.Context, payload string) error

// JobWorkerConfig holds job worker tunables
type JobWorkerConfig struct {
	PollInterval   time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// JobWorker polls the job queue and dispatches due jobs to registered
// handlers. Transient failures are rescheduled with exponential backoff
// until the attempt budget runs out; everything else fails terminally.
type JobWorker struct {
	cfg      JobWorkerConfig
	jobs     *repository.JobRepository
	handlers map[string]Handler
	logger   *zap.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewJobWorker creates a new job worker
func NewJobWorker(cfg JobWorkerConfig, jobs *repository.JobRepository, logger *zap.Logger) *JobWorker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 2 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Minute
	}
	return &JobWorker{
		cfg:      cfg,
		jobs:     jobs,
		handlers: make(map[string]Handler),
		logger:   logger,
	}
}

// Register binds a handler to a job type. Must be called before Start.
func (w *JobWorker) Register(jobType string, handler Handler) {
	w.handlers[jobType] = handler
}

// Name implements Worker
func (w *JobWorker) Name() string {
	return "job-worker"
}

// Start implements Worker
func (w *JobWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("job worker already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true

	go w.loop(runCtx)
	return nil
}

// Stop implements Worker
func (w *JobWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.cancel()
	done := w.done
	w.running = false
	w.mu.Unlock()

	<-done
}

func (w *JobWorker) loop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		// Drain everything due before going back to sleep.
		for w.processOne(ctx) {
			if ctx.Err() != nil {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// processOne claims and runs a single due job. Returns true if a job
// was processed.
func (w *JobWorker) processOne(ctx context.Context) bool {
	job, err := w.jobs.ClaimNext(time.Now().UTC())
	if err != nil {
		w.logger.Error("Failed to claim job", zap.Error(err))
		return false
	}
	if job == nil {
		return false
	}

	logger := w.logger.With(
		zap.Int64("job_id", job.ID),
		zap.String("type", job.Type),
		zap.Int("attempt", job.Attempts))

	handler, ok := w.handlers[job.Type]
	if !ok {
		logger.Error("No handler registered for job type")
		if err := w.jobs.MarkFailed(job.ID, "no handler registered"); err != nil {
			logger.Error("Failed to mark job failed", zap.Error(err))
		}
		return true
	}

	if err := handler(ctx, job.Payload); err != nil {
		w.handleFailure(job, err, logger)
		return true
	}

	if err := w.jobs.MarkSucceeded(job.ID); err != nil {
		logger.Error("Failed to mark job succeeded", zap.Error(err))
	}
	logger.Debug("Job completed")
	return true
}

func (w *JobWorker) handleFailure(job *entity.Job, jobErr error, logger *zap.Logger) {
	retryable := apperrors.IsRetryable(jobErr)

	if !retryable || job.ExhaustedAttempts() {
		logger.Error("Job failed terminally",
			zap.Bool("retryable", retryable),
			zap.Error(jobErr))
		if err := w.jobs.MarkFailed(job.ID, jobErr.Error()); err != nil {
			logger.Error("Failed to record terminal failure", zap.Error(err))
		}
		return
	}

	delay := w.backoff(job.Attempts)
	logger.Warn("Job failed, rescheduling",
		zap.Duration("delay", delay),
		zap.Error(jobErr))
	if err := w.jobs.Reschedule(job.ID, time.Now().UTC().Add(delay), jobErr.Error()); err != nil {
		logger.Error("Failed to reschedule job", zap.Error(err))
	}
}

// backoff doubles the delay per attempt, capped at MaxBackoff.
func (w *JobWorker) backoff(attempt int) time.Duration {
	delay := w.cfg.InitialBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= w.cfg.MaxBackoff {
			return w.cfg.MaxBackoff
		}
	}
	return delay
}
