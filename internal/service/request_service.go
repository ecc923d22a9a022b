package service

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/procurehq/p2p-engine/internal/apperrors"
	"github.com/procurehq/p2p-engine/internal/domain/entity"
	"github.com/procurehq/p2p-engine/internal/repository"
	"github.com/procurehq/p2p-engine/pkg/database"
)

// ItemInput describes one line item in a create or update call.
type ItemInput struct {
	Name          string          `json:"name"`
	Quantity      int64           `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Description   string          `json:"description,omitempty"`
	UnitOfMeasure string          `json:"unit_of_measure,omitempty"`
}

// CreateRequestInput describes a new purchase request.
type CreateRequestInput struct {
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	CreatedBy   string      `json:"created_by"`
	Items       []ItemInput `json:"items"`
}

// RequestService owns the purchase request lifecycle before a decision
// is made: creation and line item maintenance. The derived amount is
// rewritten on every item mutation so it always equals the sum of line
// totals.
type RequestService struct {
	db       *database.DB
	requests *repository.RequestRepository
	logger   *zap.Logger
}

// NewRequestService creates a new request service
func NewRequestService(db *database.DB, requests *repository.RequestRepository, logger *zap.Logger) *RequestService {
	return &RequestService{
		db:       db,
		requests: requests,
		logger:   logger,
	}
}

// Create registers a new purchase request with its initial items.
func (s *RequestService) Create(ctx context.Context, input CreateRequestInput) (*entity.PurchaseRequest, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, apperrors.Validation("TITLE_REQUIRED", "title is required")
	}
	if strings.TrimSpace(input.CreatedBy) == "" {
		return nil, apperrors.Validation("CREATED_BY_REQUIRED", "created_by is required")
	}
	if len(input.Items) == 0 {
		return nil, apperrors.Validation("ITEMS_REQUIRED", "at least one item is required")
	}
	for _, item := range input.Items {
		if err := validateItem(item); err != nil {
			return nil, err
		}
	}

	req := &entity.PurchaseRequest{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		Status:      entity.RequestStatusPending,
		CreatedBy:   input.CreatedBy,
		Version:     1,
	}
	for _, in := range input.Items {
		req.Items = append(req.Items, &entity.RequestItem{
			RequestID:     req.ID,
			Name:          in.Name,
			Quantity:      in.Quantity,
			UnitPrice:     in.UnitPrice,
			Description:   in.Description,
			UnitOfMeasure: in.UnitOfMeasure,
		})
	}
	req.Amount = req.CalculatedTotal()

	err := s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if err := s.requests.Create(tx, req); err != nil {
			return apperrors.Transient("DB_WRITE", "failed to create request").WithCause(err)
		}
		for _, item := range req.Items {
			if err := s.requests.AddItem(tx, item); err != nil {
				return apperrors.Transient("DB_WRITE", "failed to add item").WithCause(err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Purchase request created",
		zap.String("request_id", req.ID),
		zap.String("amount", req.Amount.String()),
		zap.Int("items", len(req.Items)))
	return req, nil
}

// Get returns a request with its items loaded.
func (s *RequestService) Get(ctx context.Context, id string) (*entity.PurchaseRequest, error) {
	req, err := s.requests.GetByID(nil, id)
	if err != nil {
		return nil, apperrors.Transient("DB_READ", "failed to load request").WithCause(err)
	}
	if req == nil {
		return nil, apperrors.NotFound("REQUEST_NOT_FOUND", "purchase request does not exist").
			WithDetail("request_id", id)
	}
	req.Items, err = s.requests.GetItems(nil, id)
	if err != nil {
		return nil, apperrors.Transient("DB_READ", "failed to load items").WithCause(err)
	}
	return req, nil
}

// List returns requests filtered by optional status.
func (s *RequestService) List(ctx context.Context, status string, limit, offset int) ([]*entity.PurchaseRequest, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if status != "" {
		switch status {
		case entity.RequestStatusPending, entity.RequestStatusApproved, entity.RequestStatusRejected:
		default:
			return nil, apperrors.Validation("INVALID_STATUS", "unknown request status").
				WithDetail("status", status)
		}
	}
	requests, err := s.requests.List(status, limit, offset)
	if err != nil {
		return nil, apperrors.Transient("DB_READ", "failed to list requests").WithCause(err)
	}
	return requests, nil
}

// AddItem appends a line item to a pending request.
func (s *RequestService) AddItem(ctx context.Context, requestID string, input ItemInput) (*entity.PurchaseRequest, error) {
	if err := validateItem(input); err != nil {
		return nil, err
	}
	return s.mutateItems(ctx, requestID, func(tx *sql.Tx) error {
		item := &entity.RequestItem{
			RequestID:     requestID,
			Name:          input.Name,
			Quantity:      input.Quantity,
			UnitPrice:     input.UnitPrice,
			Description:   input.Description,
			UnitOfMeasure: input.UnitOfMeasure,
		}
		if err := s.requests.AddItem(tx, item); err != nil {
			return apperrors.Transient("DB_WRITE", "failed to add item").WithCause(err)
		}
		return nil
	})
}

// UpdateItem rewrites an existing line item on a pending request.
func (s *RequestService) UpdateItem(ctx context.Context, requestID string, itemID int64, input ItemInput) (*entity.PurchaseRequest, error) {
	if err := validateItem(input); err != nil {
		return nil, err
	}
	return s.mutateItems(ctx, requestID, func(tx *sql.Tx) error {
		item := &entity.RequestItem{
			ID:            itemID,
			RequestID:     requestID,
			Name:          input.Name,
			Quantity:      input.Quantity,
			UnitPrice:     input.UnitPrice,
			Description:   input.Description,
			UnitOfMeasure: input.UnitOfMeasure,
		}
		if err := s.requests.UpdateItem(tx, item); err != nil {
			if err == sql.ErrNoRows {
				return apperrors.NotFound("ITEM_NOT_FOUND", "line item does not exist").
					WithDetail("item_id", itemID)
			}
			return apperrors.Transient("DB_WRITE", "failed to update item").WithCause(err)
		}
		return nil
	})
}

// RemoveItem deletes a line item from a pending request. The last item
// cannot be removed; a request always totals its items.
func (s *RequestService) RemoveItem(ctx context.Context, requestID string, itemID int64) (*entity.PurchaseRequest, error) {
	return s.mutateItems(ctx, requestID, func(tx *sql.Tx) error {
		items, err := s.requests.GetItems(tx, requestID)
		if err != nil {
			return apperrors.Transient("DB_READ", "failed to load items").WithCause(err)
		}
		if len(items) <= 1 {
			return apperrors.Validation("LAST_ITEM", "cannot remove the only item of a request").
				WithDetail("request_id", requestID)
		}
		if err := s.requests.DeleteItem(tx, requestID, itemID); err != nil {
			if err == sql.ErrNoRows {
				return apperrors.NotFound("ITEM_NOT_FOUND", "line item does not exist").
					WithDetail("item_id", itemID)
			}
			return apperrors.Transient("DB_WRITE", "failed to delete item").WithCause(err)
		}
		return nil
	})
}

// mutateItems runs one item mutation on a pending request and rewrites
// the derived amount under the optimistic version check.
func (s *RequestService) mutateItems(ctx context.Context, requestID string, mutate func(tx *sql.Tx) error) (*entity.PurchaseRequest, error) {
	err := s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		req, err := s.requests.GetByID(tx, requestID)
		if err != nil {
			return apperrors.Transient("DB_READ", "failed to load request").WithCause(err)
		}
		if req == nil {
			return apperrors.NotFound("REQUEST_NOT_FOUND", "purchase request does not exist").
				WithDetail("request_id", requestID)
		}
		if !req.IsPending() {
			return apperrors.Validation("REQUEST_NOT_PENDING", "items can only change while the request is pending").
				WithDetail("request_id", requestID).
				WithDetail("status", req.Status)
		}

		if err := mutate(tx); err != nil {
			return err
		}

		items, err := s.requests.GetItems(tx, requestID)
		if err != nil {
			return apperrors.Transient("DB_READ", "failed to reload items").WithCause(err)
		}
		req.Items = items

		ok, err := s.requests.UpdateAmountCAS(tx, requestID, req.Version, req.CalculatedTotal())
		if err != nil {
			return apperrors.Transient("DB_WRITE", "failed to update amount").WithCause(err)
		}
		if !ok {
			return apperrors.Transient("VERSION_CONFLICT", "request was modified concurrently, retry").
				WithDetail("request_id", requestID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, requestID)
}

func validateItem(item ItemInput) error {
	if strings.TrimSpace(item.Name) == "" {
		return apperrors.Validation("ITEM_NAME_REQUIRED", "item name is required")
	}
	if item.Quantity <= 0 {
		return apperrors.Validation("ITEM_QUANTITY_INVALID", "item quantity must be positive").
			WithDetail("quantity", item.Quantity)
	}
	if !item.UnitPrice.IsPositive() {
		return apperrors.Validation("ITEM_PRICE_INVALID", "item unit price must be positive").
			WithDetail("unit_price", item.UnitPrice.String())
	}
	return nil
}
