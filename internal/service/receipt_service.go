package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/procurehq/p2p-engine/internal/apperrors"
	"github.com/procurehq/p2p-engine/internal/domain/entity"
	"github.com/procurehq/p2p-engine/internal/reconcile"
	"github.com/procurehq/p2p-engine/internal/repository"
	"github.com/procurehq/p2p-engine/pkg/database"
)

// ReceiptService registers incoming receipts and runs reconciliation
// against their purchase orders.
type ReceiptService struct {
	db             *database.DB
	receipts       *repository.ReceiptRepository
	orders         *repository.OrderRepository
	jobs           *repository.JobRepository
	reconciler     *reconcile.Reconciler
	jobMaxAttempts int
	logger         *zap.Logger
}

// NewReceiptService creates a new receipt service
func NewReceiptService(
	db *database.DB,
	receipts *repository.ReceiptRepository,
	orders *repository.OrderRepository,
	jobs *repository.JobRepository,
	reconciler *reconcile.Reconciler,
	jobMaxAttempts int,
	logger *zap.Logger,
) *ReceiptService {
	if jobMaxAttempts < 1 {
		jobMaxAttempts = 5
	}
	return &ReceiptService{
		db:             db,
		receipts:       receipts,
		orders:         orders,
		jobs:           jobs,
		reconciler:     reconciler,
		jobMaxAttempts: jobMaxAttempts,
		logger:         logger,
	}
}

// Register stores a receipt against an order and queues its validation.
func (s *ReceiptService) Register(ctx context.Context, orderID string, data *entity.ReceiptData) (*entity.Receipt, error) {
	receipt := &entity.Receipt{
		ID:            uuid.NewString(),
		OrderID:       orderID,
		ExtractedData: data,
	}

	err := s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		order, err := s.orders.GetByID(tx, orderID)
		if err != nil {
			return apperrors.Transient("DB_READ", "failed to load order").WithCause(err)
		}
		if order == nil {
			return apperrors.NotFound("ORDER_NOT_FOUND", "purchase order does not exist").
				WithDetail("order_id", orderID)
		}

		if err := s.receipts.Create(tx, receipt); err != nil {
			return apperrors.Transient("DB_WRITE", "failed to create receipt").WithCause(err)
		}

		payload, err := json.Marshal(map[string]string{
			"receipt_id": receipt.ID,
			"order_id":   orderID,
		})
		if err != nil {
			return apperrors.Fatal("PAYLOAD_ENCODE", "failed to encode job payload").WithCause(err)
		}
		job := &entity.Job{
			Type:        entity.JobTypeValidateReceipt,
			Payload:     string(payload),
			MaxAttempts: s.jobMaxAttempts,
			NextRunAt:   time.Now().UTC(),
		}
		if err := s.jobs.Enqueue(tx, job); err != nil {
			return apperrors.Transient("DB_WRITE", "failed to enqueue validation").WithCause(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Receipt registered",
		zap.String("receipt_id", receipt.ID),
		zap.String("order_id", orderID))
	return receipt, nil
}

// Validate reconciles the receipt against its order and stores the
// outcome. Re-running replaces the previous result. When the outcome
// demands a human look, a review notification is queued.
func (s *ReceiptService) Validate(ctx context.Context, receiptID, orderID string) (*entity.ValidationResult, error) {
	// Fresh reads on every attempt; a retried job must not act on
	// stale extraction state.
	receipt, err := s.receipts.GetByID(nil, receiptID)
	if err != nil {
		return nil, apperrors.Transient("DB_READ", "failed to load receipt").WithCause(err)
	}
	if receipt == nil {
		return nil, apperrors.NotFound("RECEIPT_NOT_FOUND", "receipt does not exist").
			WithDetail("receipt_id", receiptID)
	}
	if orderID == "" {
		orderID = receipt.OrderID
	}
	if receipt.OrderID != orderID {
		return nil, apperrors.Validation("RECEIPT_ORDER_MISMATCH", "receipt belongs to a different order").
			WithDetail("receipt_id", receiptID).
			WithDetail("order_id", orderID)
	}

	order, err := s.orders.GetByID(nil, orderID)
	if err != nil {
		return nil, apperrors.Transient("DB_READ", "failed to load order").WithCause(err)
	}
	if order == nil {
		return nil, apperrors.NotFound("ORDER_NOT_FOUND", "purchase order does not exist").
			WithDetail("order_id", orderID)
	}
	if receipt.ExtractedData == nil {
		// The extraction pipeline has not delivered yet; retry later.
		return nil, apperrors.Transient("EXTRACTION_PENDING", "receipt extraction has not completed").
			WithDetail("receipt_id", receiptID)
	}

	result := s.reconciler.Validate(receipt.ExtractedData, order)

	err = s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := s.receipts.SaveValidationResult(tx, receiptID, result); err != nil {
			return apperrors.Transient("DB_WRITE", "failed to store validation result").WithCause(err)
		}
		if result.NeedsManualReview {
			return s.enqueueReviewNotification(tx, receipt, order, result)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Receipt validated",
		zap.String("receipt_id", receiptID),
		zap.String("po_number", order.PONumber),
		zap.Float64("overall_score", result.OverallScore),
		zap.Bool("needs_review", result.NeedsManualReview))
	return result, nil
}

func (s *ReceiptService) enqueueReviewNotification(tx *sql.Tx, receipt *entity.Receipt, order *entity.PurchaseOrder, result *entity.ValidationResult) error {
	payload, err := json.Marshal(map[string]interface{}{
		"kind":          entity.NotificationManualReview,
		"recipient":     order.Metadata.RequestDetails.CreatedBy,
		"po_number":     order.PONumber,
		"vendor":        order.Vendor,
		"total":         order.Total.String(),
		"score":         result.OverallScore,
		"discrepancies": result.Discrepancies,
	})
	if err != nil {
		return apperrors.Fatal("PAYLOAD_ENCODE", "failed to encode notification payload").WithCause(err)
	}

	job := &entity.Job{
		Type:        entity.JobTypeNotify,
		Payload:     string(payload),
		MaxAttempts: s.jobMaxAttempts,
		NextRunAt:   time.Now().UTC(),
	}
	if err := s.jobs.Enqueue(tx, job); err != nil {
		return apperrors.Transient("DB_WRITE", "failed to enqueue notification").WithCause(err)
	}
	return nil
}

// Get returns a receipt with its latest validation result.
func (s *ReceiptService) Get(ctx context.Context, receiptID string) (*entity.Receipt, error) {
	receipt, err := s.receipts.GetByID(nil, receiptID)
	if err != nil {
		return nil, apperrors.Transient("DB_READ", "failed to load receipt").WithCause(err)
	}
	if receipt == nil {
		return nil, apperrors.NotFound("RECEIPT_NOT_FOUND", "receipt does not exist").
			WithDetail("receipt_id", receiptID)
	}
	return receipt, nil
}
