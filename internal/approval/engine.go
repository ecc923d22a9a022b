package approval

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/procurehq/p2p-engine/internal/apperrors"
	"github.com/procurehq/p2p-engine/internal/domain/entity"
	"github.com/procurehq/p2p-engine/internal/domain/workflow"
	"github.com/procurehq/p2p-engine/internal/repository"
	"github.com/procurehq/p2p-engine/pkg/database"
)

// Config holds approval engine tunables
type Config struct {
	// LevelTwoThreshold is the amount above which level-2 approval is
	// additionally required.
	LevelTwoThreshold decimal.Decimal

	// JobMaxAttempts caps retries of the order generation job enqueued
	// on full approval.
	JobMaxAttempts int
}

// Engine drives the multi-level approval state machine for purchase
// requests. All decisions on one request are serialized; the outcome of
// a decision is derived strictly from the recorded approvals.
type Engine struct {
	db        *database.DB
	requests  *repository.RequestRepository
	approvals *repository.ApprovalRepository
	jobs      *repository.JobRepository
	cfg       Config
	locks     keyedMutex
	logger    *zap.Logger
}

// NewEngine creates a new approval engine
func NewEngine(
	db *database.DB,
	requests *repository.RequestRepository,
	approvals *repository.ApprovalRepository,
	jobs *repository.JobRepository,
	cfg Config,
	logger *zap.Logger,
) *Engine {
	if cfg.JobMaxAttempts < 1 {
		cfg.JobMaxAttempts = 5
	}
	return &Engine{
		db:        db,
		requests:  requests,
		approvals: approvals,
		jobs:      jobs,
		cfg:       cfg,
		logger:    logger,
	}
}

// Outcome describes the request state after a decision was recorded.
type Outcome struct {
	Decision        string                  `json:"decision"`
	RequestStatus   string                  `json:"request_status"`
	PendingLevels   []int                   `json:"pending_levels"`
	IsFullyApproved bool                    `json:"is_fully_approved"`
	Request         *entity.PurchaseRequest `json:"request,omitempty"`
}

// Approve records an approval decision at the given level. When the
// decision completes the required set, the request transitions to
// APPROVED and order generation is enqueued atomically with it.
func (e *Engine) Approve(ctx context.Context, requestID string, approver entity.Approver, level int, comment string) (*Outcome, error) {
	return e.decide(ctx, requestID, approver, level, entity.DecisionApproved, comment)
}

// Reject records a rejection at the given level. A single rejection is
// terminal regardless of other levels; a comment is mandatory.
func (e *Engine) Reject(ctx context.Context, requestID string, approver entity.Approver, level int, comment string) (*Outcome, error) {
	if strings.TrimSpace(comment) == "" {
		return nil, apperrors.Validation("COMMENT_REQUIRED", "a comment is required when rejecting").
			WithDetail("request_id", requestID)
	}
	return e.decide(ctx, requestID, approver, level, entity.DecisionRejected, comment)
}

func (e *Engine) decide(ctx context.Context, requestID string, approver entity.Approver, level int, decision, comment string) (*Outcome, error) {
	if level != 1 && level != 2 {
		return nil, apperrors.Validation("INVALID_LEVEL", "approval level must be 1 or 2").
			WithDetail("level", level)
	}
	if !approver.CanApprove(level) {
		return nil, apperrors.Permission("NOT_AN_APPROVER", "user does not hold the approval capability for this level").
			WithDetail("user_id", approver.UserID).
			WithDetail("level", level)
	}

	mu := e.locks.lock(requestID)
	defer mu.Unlock()

	outcome := &Outcome{Decision: decision}
	err := e.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		req, err := e.requests.GetByID(tx, requestID)
		if err != nil {
			return apperrors.Transient("DB_READ", "failed to load request").WithCause(err)
		}
		if req == nil {
			return apperrors.NotFound("REQUEST_NOT_FOUND", "purchase request does not exist").
				WithDetail("request_id", requestID)
		}

		machine := workflow.NewRequestMachine(workflow.State(req.Status))
		trigger := workflow.TriggerApprove
		if decision == entity.DecisionRejected {
			trigger = workflow.TriggerReject
		}
		if !machine.CanFire(trigger) {
			return apperrors.Validation("REQUEST_NOT_PENDING", "request has already reached a terminal state").
				WithDetail("request_id", requestID).
				WithDetail("status", req.Status)
		}

		required := req.RequiredApprovalLevelsFor(e.cfg.LevelTwoThreshold)
		if !containsLevel(required, level) {
			return apperrors.Validation("LEVEL_NOT_REQUIRED", "this level is not required for the request amount").
				WithDetail("level", level).
				WithDetail("required_levels", required)
		}

		existing, err := e.approvals.GetByRequestAndLevel(tx, requestID, level)
		if err != nil {
			return apperrors.Transient("DB_READ", "failed to load existing decision").WithCause(err)
		}

		record := &entity.Approval{
			RequestID: requestID,
			Approver:  approver.UserID,
			Level:     level,
			Decision:  decision,
			Comment:   comment,
		}

		switch {
		case existing == nil:
			if err := e.approvals.Create(tx, record); err != nil {
				return apperrors.Transient("DB_WRITE", "failed to record decision").WithCause(err)
			}
		case existing.Approver == approver.UserID:
			// Idempotent replacement of one's own decision.
			if err := e.approvals.Replace(tx, record); err != nil {
				return apperrors.Transient("DB_WRITE", "failed to replace decision").WithCause(err)
			}
		default:
			return apperrors.Conflict("DECISION_EXISTS", "another approver has already decided this level").
				WithDetail("level", level).
				WithDetail("decided_by", existing.Approver)
		}

		switch decision {
		case entity.DecisionRejected:
			outcome.RequestStatus = entity.RequestStatusRejected
			return e.finalize(tx, req, entity.RequestStatusRejected, approver.UserID)
		default:
			pending, err := e.pendingLevels(tx, req, required)
			if err != nil {
				return err
			}
			outcome.PendingLevels = pending
			if len(pending) > 0 {
				outcome.RequestStatus = entity.RequestStatusPending
				e.logger.Info("Approval recorded, levels still pending",
					zap.String("request_id", requestID),
					zap.Int("level", level),
					zap.Ints("pending_levels", pending))
				return nil
			}
			outcome.RequestStatus = entity.RequestStatusApproved
			outcome.IsFullyApproved = true
			if err := e.finalize(tx, req, entity.RequestStatusApproved, approver.UserID); err != nil {
				return err
			}
			return e.enqueueOrderGeneration(tx, requestID)
		}
	})
	if err != nil {
		return nil, err
	}

	outcome.Request, err = e.requests.GetByID(nil, requestID)
	if err != nil {
		return nil, apperrors.Transient("DB_READ", "failed to reload request").WithCause(err)
	}
	return outcome, nil
}

// pendingLevels returns the required levels with no APPROVED decision
// recorded.
func (e *Engine) pendingLevels(tx *sql.Tx, req *entity.PurchaseRequest, required []int) ([]int, error) {
	decisions, err := e.approvals.GetByRequest(tx, req.ID)
	if err != nil {
		return nil, apperrors.Transient("DB_READ", "failed to load decisions").WithCause(err)
	}

	approved := make(map[int]bool)
	for _, d := range decisions {
		if d.Decision == entity.DecisionApproved {
			approved[d.Level] = true
		}
	}

	var pending []int
	for _, lvl := range required {
		if !approved[lvl] {
			pending = append(pending, lvl)
		}
	}
	return pending, nil
}

// finalize moves the request into a terminal state under the optimistic
// version check.
func (e *Engine) finalize(tx *sql.Tx, req *entity.PurchaseRequest, status, decidedBy string) error {
	var approvedAt sql.NullTime
	if status == entity.RequestStatusApproved {
		approvedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	}

	ok, err := e.requests.UpdateStatusCAS(tx, req.ID, req.Version, status, decidedBy, approvedAt)
	if err != nil {
		return apperrors.Transient("DB_WRITE", "failed to update request status").WithCause(err)
	}
	if !ok {
		return apperrors.Transient("VERSION_CONFLICT", "request was modified concurrently, retry").
			WithDetail("request_id", req.ID)
	}

	e.logger.Info("Request reached terminal state",
		zap.String("request_id", req.ID),
		zap.String("status", status),
		zap.String("decided_by", decidedBy))
	return nil
}

func (e *Engine) enqueueOrderGeneration(tx *sql.Tx, requestID string) error {
	payload, err := json.Marshal(map[string]string{"request_id": requestID})
	if err != nil {
		return apperrors.Fatal("PAYLOAD_ENCODE", "failed to encode job payload").WithCause(err)
	}

	job := &entity.Job{
		Type:        entity.JobTypeGenerateOrder,
		Payload:     string(payload),
		MaxAttempts: e.cfg.JobMaxAttempts,
		NextRunAt:   time.Now().UTC(),
	}
	if err := e.jobs.Enqueue(tx, job); err != nil {
		return apperrors.Transient("DB_WRITE", "failed to enqueue order generation").WithCause(err)
	}

	e.logger.Info("Order generation enqueued",
		zap.String("request_id", requestID),
		zap.Int64("job_id", job.ID))
	return nil
}

func containsLevel(levels []int, level int) bool {
	for _, l := range levels {
		if l == level {
			return true
		}
	}
	return false
}
