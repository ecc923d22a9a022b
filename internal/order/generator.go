package order

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/procurehq/p2p-engine/internal/apperrors"
	"github.com/procurehq/p2p-engine/internal/domain/entity"
	"github.com/procurehq/p2p-engine/internal/domain/workflow"
	"github.com/procurehq/p2p-engine/internal/repository"
	"github.com/procurehq/p2p-engine/pkg/database"
)

// Config holds order generation tunables
type Config struct {
	// NumberMaxAttempts bounds suffix redraws during PO number allocation.
	NumberMaxAttempts int

	// DefaultVendor is used when no proforma vendor data exists.
	DefaultVendor string
}

// Generator materializes purchase orders from fully approved requests.
// Generation is idempotent: repeat calls for the same request return the
// existing order.
type Generator struct {
	db        *database.DB
	requests  *repository.RequestRepository
	orders    *repository.OrderRepository
	allocator *numberAllocator
	cfg       Config
	logger    *zap.Logger
}

// NewGenerator creates a new order generator
func NewGenerator(
	db *database.DB,
	requests *repository.RequestRepository,
	orders *repository.OrderRepository,
	cfg Config,
	logger *zap.Logger,
) *Generator {
	if cfg.DefaultVendor == "" {
		cfg.DefaultVendor = entity.DefaultVendorName
	}
	return &Generator{
		db:        db,
		requests:  requests,
		orders:    orders,
		allocator: newNumberAllocator(orders, cfg.NumberMaxAttempts),
		cfg:       cfg,
		logger:    logger,
	}
}

// Generate creates the purchase order for an approved request, merging
// vendor and terms data from an optional extracted proforma document.
func (g *Generator) Generate(ctx context.Context, requestID string, proforma *entity.ProformaData) (*entity.PurchaseOrder, error) {
	var order *entity.PurchaseOrder

	err := g.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		existing, err := g.orders.GetByRequestID(tx, requestID)
		if err != nil {
			return apperrors.Transient("DB_READ", "failed to check existing order").WithCause(err)
		}
		if existing != nil {
			g.logger.Info("Order already generated, returning existing",
				zap.String("request_id", requestID),
				zap.String("po_number", existing.PONumber))
			order = existing
			return nil
		}

		req, err := g.requests.GetByID(tx, requestID)
		if err != nil {
			return apperrors.Transient("DB_READ", "failed to load request").WithCause(err)
		}
		if req == nil {
			return apperrors.NotFound("REQUEST_NOT_FOUND", "purchase request does not exist").
				WithDetail("request_id", requestID)
		}
		if !req.IsApproved() {
			return apperrors.Validation("REQUEST_NOT_APPROVED", "orders are generated only for fully approved requests").
				WithDetail("request_id", requestID).
				WithDetail("status", req.Status)
		}

		items, err := g.requests.GetItems(tx, requestID)
		if err != nil {
			return apperrors.Transient("DB_READ", "failed to load request items").WithCause(err)
		}

		poNumber, err := g.allocator.allocate(tx)
		if err != nil {
			return err
		}

		vendor, contact := g.mergeVendor(proforma)
		order = &entity.PurchaseOrder{
			ID:            uuid.NewString(),
			PONumber:      poNumber,
			RequestID:     requestID,
			Vendor:        vendor,
			VendorContact: contact,
			// The total mirrors the approved amount, never recomputed
			// from items.
			Total:    req.Amount,
			Status:   entity.OrderStatusDraft,
			Metadata: buildMetadata(req, items, proforma),
		}

		if err := g.orders.Create(tx, order); err != nil {
			return apperrors.Transient("DB_WRITE", "failed to create order").WithCause(err)
		}

		g.logger.Info("Purchase order generated",
			zap.String("request_id", requestID),
			zap.String("po_number", poNumber),
			zap.String("vendor", vendor))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// mergeVendor resolves vendor identity and contact from proforma data,
// falling back to the configured default name.
func (g *Generator) mergeVendor(proforma *entity.ProformaData) (name, contact string) {
	name = g.cfg.DefaultVendor
	if proforma == nil || proforma.Vendor == nil {
		return name, ""
	}

	if v := strings.TrimSpace(proforma.Vendor.Name); v != "" {
		name = v
	}

	var parts []string
	if proforma.Vendor.Email != "" {
		parts = append(parts, proforma.Vendor.Email)
	}
	if proforma.Vendor.Phone != "" {
		parts = append(parts, proforma.Vendor.Phone)
	}
	return name, strings.Join(parts, " / ")
}

func buildMetadata(req *entity.PurchaseRequest, items []*entity.RequestItem, proforma *entity.ProformaData) entity.OrderMetadata {
	meta := entity.OrderMetadata{
		Items: make([]entity.OrderItem, 0, len(items)),
		RequestDetails: entity.OrderRequestDetails{
			Title:       req.Title,
			Description: req.Description,
			CreatedBy:   req.CreatedBy,
			CreatedAt:   req.CreatedAt,
		},
	}

	for _, item := range items {
		price, _ := item.UnitPrice.Float64()
		lineTotal, _ := item.LineTotal().Float64()
		meta.Items = append(meta.Items, entity.OrderItem{
			Name:          item.Name,
			Quantity:      item.Quantity,
			UnitPrice:     price,
			LineTotal:     lineTotal,
			Description:   item.Description,
			UnitOfMeasure: item.UnitOfMeasure,
		})
	}

	if proforma != nil {
		meta.Terms = proforma.Terms
		meta.DeliveryInfo = proforma.Delivery
		meta.PaymentTerms = proforma.PaymentTerms
	}
	return meta
}

// Transition advances the order lifecycle through the given trigger.
func (g *Generator) Transition(ctx context.Context, orderID string, trigger workflow.Trigger) (*entity.PurchaseOrder, error) {
	var order *entity.PurchaseOrder

	err := g.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		var err error
		order, err = g.orders.GetByID(tx, orderID)
		if err != nil {
			return apperrors.Transient("DB_READ", "failed to load order").WithCause(err)
		}
		if order == nil {
			return apperrors.NotFound("ORDER_NOT_FOUND", "purchase order does not exist").
				WithDetail("order_id", orderID)
		}

		machine := workflow.NewOrderMachine(workflow.State(order.Status))
		if err := machine.Fire(ctx, trigger); err != nil {
			return apperrors.Conflict("INVALID_ORDER_TRANSITION", "order lifecycle does not permit this transition").
				WithDetail("order_id", orderID).
				WithDetail("status", order.Status).
				WithDetail("trigger", trigger.String()).
				WithCause(err)
		}

		order.Status = machine.State().String()
		if err := g.orders.UpdateStatus(tx, orderID, order.Status); err != nil {
			return apperrors.Transient("DB_WRITE", "failed to update order status").WithCause(err)
		}

		g.logger.Info("Order transitioned",
			zap.String("order_id", orderID),
			zap.String("status", order.Status))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}
