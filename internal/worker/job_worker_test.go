package worker

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/procurehq/p2p-engine/internal/apperrors"
	"github.com/procurehq/p2p-engine/internal/domain/entity"
	"github.com/procurehq/p2p-engine/internal/repository"
	"github.com/procurehq/p2p-engine/pkg/database"
)

func newTestJobs(t *testing.T) *repository.JobRepository {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.New(database.Config{
		Path:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 1,
	}, logger)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(context.Background(), "../../migrations"); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return repository.NewJobRepository(db.DB, logger)
}

func enqueue(t *testing.T, jobs *repository.JobRepository, jobType string, maxAttempts int) *entity.Job {
	t.Helper()
	job := &entity.Job{
		Type:        jobType,
		Payload:     `{}`,
		MaxAttempts: maxAttempts,
		NextRunAt:   time.Now().UTC().Add(-time.Second),
	}
	if err := jobs.Enqueue(nil, job); err != nil {
		t.Fatalf("failed to enqueue: %v", err)
	}
	return job
}

func jobStatus(t *testing.T, jobs *repository.JobRepository, id int64) *entity.Job {
	t.Helper()
	job, err := jobs.GetByID(id)
	if err != nil {
		t.Fatalf("failed to load job: %v", err)
	}
	if job == nil {
		t.Fatalf("job %d disappeared", id)
	}
	return job
}

func TestJobWorker_Success(t *testing.T) {
	jobs := newTestJobs(t)
	w := NewJobWorker(JobWorkerConfig{}, jobs, zap.NewNop())

	ran := 0
	w.Register("test.ok", func(ctx context.Context, payload string) error {
		ran++
		return nil
	})

	job := enqueue(t, jobs, "test.ok", 3)
	if !w.processOne(context.Background()) {
		t.Fatal("processOne() = false, want a job processed")
	}

	if ran != 1 {
		t.Errorf("handler ran %d times, want 1", ran)
	}
	if got := jobStatus(t, jobs, job.ID); got.Status != entity.JobStatusSucceeded {
		t.Errorf("Status = %v, want SUCCEEDED", got.Status)
	}
}

func TestJobWorker_NothingDue(t *testing.T) {
	jobs := newTestJobs(t)
	w := NewJobWorker(JobWorkerConfig{}, jobs, zap.NewNop())

	if w.processOne(context.Background()) {
		t.Error("processOne() = true on empty queue, want false")
	}
}

func TestJobWorker_TransientFailureReschedules(t *testing.T) {
	jobs := newTestJobs(t)
	w := NewJobWorker(JobWorkerConfig{InitialBackoff: time.Minute}, jobs, zap.NewNop())

	w.Register("test.flaky", func(ctx context.Context, payload string) error {
		return apperrors.Transient("DEP_NOT_READY", "dependency not ready")
	})

	job := enqueue(t, jobs, "test.flaky", 3)
	w.processOne(context.Background())

	got := jobStatus(t, jobs, job.ID)
	if got.Status != entity.JobStatusPending {
		t.Errorf("Status = %v, want PENDING after transient failure", got.Status)
	}
	if got.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", got.Attempts)
	}
	if !got.NextRunAt.After(time.Now().UTC().Add(30 * time.Second)) {
		t.Errorf("NextRunAt = %v, want pushed out by the backoff", got.NextRunAt)
	}
	if got.LastError == "" {
		t.Error("LastError should record the failure")
	}
}

func TestJobWorker_TransientFailureExhaustsBudget(t *testing.T) {
	jobs := newTestJobs(t)
	w := NewJobWorker(JobWorkerConfig{InitialBackoff: time.Millisecond}, jobs, zap.NewNop())

	w.Register("test.flaky", func(ctx context.Context, payload string) error {
		return apperrors.Transient("DEP_NOT_READY", "dependency not ready")
	})

	job := enqueue(t, jobs, "test.flaky", 2)

	for i := 0; i < 3; i++ {
		w.processOne(context.Background())
		got := jobStatus(t, jobs, job.ID)
		if got.Status == entity.JobStatusFailed {
			break
		}
		// Pull the retry time back so the next attempt is due now.
		if err := jobs.Reschedule(job.ID, time.Now().UTC().Add(-time.Second), got.LastError); err != nil {
			t.Fatalf("failed to force due time: %v", err)
		}
	}

	got := jobStatus(t, jobs, job.ID)
	if got.Status != entity.JobStatusFailed {
		t.Errorf("Status = %v, want FAILED after exhausted attempts", got.Status)
	}
}

func TestJobWorker_FatalFailureIsTerminal(t *testing.T) {
	jobs := newTestJobs(t)
	w := NewJobWorker(JobWorkerConfig{}, jobs, zap.NewNop())

	w.Register("test.broken", func(ctx context.Context, payload string) error {
		return apperrors.Fatal("BROKEN", "unrecoverable")
	})

	job := enqueue(t, jobs, "test.broken", 5)
	w.processOne(context.Background())

	got := jobStatus(t, jobs, job.ID)
	if got.Status != entity.JobStatusFailed {
		t.Errorf("Status = %v, want FAILED on fatal error", got.Status)
	}
	if got.Attempts != 1 {
		t.Errorf("Attempts = %d, fatal errors must not burn retries", got.Attempts)
	}
}

func TestJobWorker_UnclassifiedErrorIsTerminal(t *testing.T) {
	jobs := newTestJobs(t)
	w := NewJobWorker(JobWorkerConfig{}, jobs, zap.NewNop())

	w.Register("test.plain", func(ctx context.Context, payload string) error {
		return errors.New("something broke")
	})

	job := enqueue(t, jobs, "test.plain", 5)
	w.processOne(context.Background())

	if got := jobStatus(t, jobs, job.ID); got.Status != entity.JobStatusFailed {
		t.Errorf("Status = %v, want FAILED for unclassified errors", got.Status)
	}
}

func TestJobWorker_UnknownTypeFails(t *testing.T) {
	jobs := newTestJobs(t)
	w := NewJobWorker(JobWorkerConfig{}, jobs, zap.NewNop())

	job := enqueue(t, jobs, "test.unknown", 3)
	w.processOne(context.Background())

	if got := jobStatus(t, jobs, job.ID); got.Status != entity.JobStatusFailed {
		t.Errorf("Status = %v, want FAILED for unknown job type", got.Status)
	}
}

func TestJobWorker_Backoff(t *testing.T) {
	w := NewJobWorker(JobWorkerConfig{
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     10 * time.Second,
	}, nil, zap.NewNop())

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{10, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := w.backoff(tt.attempt); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestJobWorker_StartStop(t *testing.T) {
	jobs := newTestJobs(t)
	w := NewJobWorker(JobWorkerConfig{PollInterval: 10 * time.Millisecond}, jobs, zap.NewNop())

	done := make(chan struct{})
	w.Register("test.signal", func(ctx context.Context, payload string) error {
		select {
		case <-done:
		default:
			close(done)
		}
		return nil
	})
	enqueue(t, jobs, "test.signal", 1)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not process the queued job")
	}
	w.Stop()
}
