package worker

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/procurehq/p2p-engine/internal/apperrors"
	"github.com/procurehq/p2p-engine/internal/domain/entity"
	"github.com/procurehq/p2p-engine/internal/notification"
	"github.com/procurehq/p2p-engine/internal/order"
	"github.com/procurehq/p2p-engine/internal/repository"
	"github.com/procurehq/p2p-engine/internal/service"
)

// ProformaProvider looks up extracted proforma data for a request, when
// the document subsystem has any. Returning (nil, nil) means no
// proforma exists and defaults apply.
type ProformaProvider interface {
	ProformaFor(ctx context.Context, requestID string) (*entity.ProformaData, error)
}

// Handlers wires the background job types to their executors.
type Handlers struct {
	generator     *order.Generator
	documents     *order.DocumentWriter
	receipts      *service.ReceiptService
	notifications *notification.Service
	orders        *repository.OrderRepository
	jobs          *repository.JobRepository
	proformas     ProformaProvider
	maxAttempts   int
	logger        *zap.Logger
}

// NewHandlers creates the job handler set. proformas may be nil when no
// document subsystem is attached.
func NewHandlers(
	generator *order.Generator,
	documents *order.DocumentWriter,
	receipts *service.ReceiptService,
	notifications *notification.Service,
	orders *repository.OrderRepository,
	jobs *repository.JobRepository,
	proformas ProformaProvider,
	maxAttempts int,
	logger *zap.Logger,
) *Handlers {
	if maxAttempts < 1 {
		maxAttempts = 5
	}
	return &Handlers{
		generator:     generator,
		documents:     documents,
		receipts:      receipts,
		notifications: notifications,
		orders:        orders,
		jobs:          jobs,
		proformas:     proformas,
		maxAttempts:   maxAttempts,
		logger:        logger,
	}
}

// RegisterAll binds every handler to its job type.
func (h *Handlers) RegisterAll(w *JobWorker) {
	w.Register(entity.JobTypeGenerateOrder, h.GenerateOrder)
	w.Register(entity.JobTypeExportOrder, h.ExportOrder)
	w.Register(entity.JobTypeValidateReceipt, h.ValidateReceipt)
	w.Register(entity.JobTypeNotify, h.SendNotification)
}

// GenerateOrder materializes the purchase order for a fully approved
// request, then queues the document export and the requester
// notification.
func (h *Handlers) GenerateOrder(ctx context.Context, payload string) error {
	var p struct {
		RequestID string `json:"request_id"`
	}
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return apperrors.Fatal("PAYLOAD_DECODE", "malformed order generation payload").WithCause(err)
	}

	var proforma *entity.ProformaData
	if h.proformas != nil {
		var err error
		proforma, err = h.proformas.ProformaFor(ctx, p.RequestID)
		if err != nil {
			return apperrors.Transient("PROFORMA_LOOKUP", "proforma lookup failed").WithCause(err)
		}
	}

	o, err := h.generator.Generate(ctx, p.RequestID, proforma)
	if err != nil {
		return err
	}

	exportPayload, err := json.Marshal(map[string]string{"order_id": o.ID})
	if err != nil {
		return apperrors.Fatal("PAYLOAD_ENCODE", "failed to encode export payload").WithCause(err)
	}
	if err := h.jobs.Enqueue(nil, &entity.Job{
		Type:        entity.JobTypeExportOrder,
		Payload:     string(exportPayload),
		MaxAttempts: h.maxAttempts,
		NextRunAt:   time.Now().UTC(),
	}); err != nil {
		return apperrors.Transient("DB_WRITE", "failed to enqueue export").WithCause(err)
	}

	notifyPayload, err := json.Marshal(map[string]interface{}{
		"kind":      entity.NotificationOrderGenerated,
		"recipient": o.Metadata.RequestDetails.CreatedBy,
		"po_number": o.PONumber,
		"vendor":    o.Vendor,
		"total":     o.Total.String(),
	})
	if err != nil {
		return apperrors.Fatal("PAYLOAD_ENCODE", "failed to encode notification payload").WithCause(err)
	}
	if err := h.jobs.Enqueue(nil, &entity.Job{
		Type:        entity.JobTypeNotify,
		Payload:     string(notifyPayload),
		MaxAttempts: h.maxAttempts,
		NextRunAt:   time.Now().UTC(),
	}); err != nil {
		return apperrors.Transient("DB_WRITE", "failed to enqueue notification").WithCause(err)
	}
	return nil
}

// ExportOrder renders the order spreadsheet.
func (h *Handlers) ExportOrder(ctx context.Context, payload string) error {
	var p struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return apperrors.Fatal("PAYLOAD_DECODE", "malformed export payload").WithCause(err)
	}

	o, err := h.orders.GetByID(nil, p.OrderID)
	if err != nil {
		return apperrors.Transient("DB_READ", "failed to load order").WithCause(err)
	}
	if o == nil {
		return apperrors.Fatal("ORDER_NOT_FOUND", "order vanished before export").
			WithDetail("order_id", p.OrderID)
	}

	path, err := h.documents.Write(o)
	if err != nil {
		return apperrors.Transient("DOCUMENT_WRITE", "failed to write order document").WithCause(err)
	}
	h.logger.Info("Order document exported",
		zap.String("po_number", o.PONumber),
		zap.String("path", path))
	return nil
}

// ValidateReceipt reconciles a receipt against its order.
func (h *Handlers) ValidateReceipt(ctx context.Context, payload string) error {
	var p struct {
		ReceiptID string `json:"receipt_id"`
		OrderID   string `json:"order_id"`
	}
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return apperrors.Fatal("PAYLOAD_DECODE", "malformed validation payload").WithCause(err)
	}

	_, err := h.receipts.Validate(ctx, p.ReceiptID, p.OrderID)
	return err
}

// SendNotification delivers one queued notification.
func (h *Handlers) SendNotification(ctx context.Context, payload string) error {
	var p map[string]interface{}
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return apperrors.Fatal("PAYLOAD_DECODE", "malformed notification payload").WithCause(err)
	}

	kind, _ := p["kind"].(string)
	recipient, _ := p["recipient"].(string)
	delete(p, "kind")
	delete(p, "recipient")

	return h.notifications.Notify(ctx, notification.Message{
		Kind:      kind,
		Recipient: recipient,
		Payload:   p,
	})
}
