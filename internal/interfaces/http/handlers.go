package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/procurehq/p2p-engine/internal/apperrors"
	"github.com/procurehq/p2p-engine/internal/approval"
	"github.com/procurehq/p2p-engine/internal/domain/entity"
	"github.com/procurehq/p2p-engine/internal/domain/workflow"
	"github.com/procurehq/p2p-engine/internal/notification"
	"github.com/procurehq/p2p-engine/internal/order"
	"github.com/procurehq/p2p-engine/internal/repository"
	"github.com/procurehq/p2p-engine/internal/service"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	requests      *service.RequestService
	engine        *approval.Engine
	generator     *order.Generator
	orders        *repository.OrderRepository
	receipts      *service.ReceiptService
	notifications *notification.Service
	logger        *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	requests *service.RequestService,
	engine *approval.Engine,
	generator *order.Generator,
	orders *repository.OrderRepository,
	receipts *service.ReceiptService,
	notifications *notification.Service,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		requests:      requests,
		engine:        engine,
		generator:     generator,
		orders:        orders,
		receipts:      receipts,
		notifications: notifications,
		logger:        logger,
	}
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// statusFor maps an error classification to an HTTP status.
func statusFor(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindPermission:
		return http.StatusForbidden
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindConflict:
		return http.StatusConflict
	case apperrors.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) respondError(c *gin.Context, err error) {
	appErr := apperrors.AsError(err)
	status := statusFor(appErr.Kind)

	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	}

	c.JSON(status, ErrorBody{
		Code:    appErr.Code,
		Message: appErr.Message,
		Details: appErr.Details,
	})
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// CreateRequest handles POST /api/requests
func (h *Handlers) CreateRequest(c *gin.Context) {
	var input service.CreateRequestInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.respondError(c, apperrors.Validation("INVALID_BODY", "malformed request body").WithCause(err))
		return
	}

	req, err := h.requests.Create(c.Request.Context(), input)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

// ListRequests handles GET /api/requests
func (h *Handlers) ListRequests(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))
	if offset < 0 {
		offset = 0
	}

	requests, err := h.requests.List(c.Request.Context(), c.Query("status"), limit, offset)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": requests})
}

// GetRequest handles GET /api/requests/:id
func (h *Handlers) GetRequest(c *gin.Context) {
	req, err := h.requests.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// AddItem handles POST /api/requests/:id/items
func (h *Handlers) AddItem(c *gin.Context) {
	var input service.ItemInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.respondError(c, apperrors.Validation("INVALID_BODY", "malformed request body").WithCause(err))
		return
	}

	req, err := h.requests.AddItem(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// UpdateItem handles PUT /api/requests/:id/items/:itemID
func (h *Handlers) UpdateItem(c *gin.Context) {
	itemID, err := strconv.ParseInt(c.Param("itemID"), 10, 64)
	if err != nil {
		h.respondError(c, apperrors.Validation("INVALID_ITEM_ID", "item id must be numeric"))
		return
	}
	var input service.ItemInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.respondError(c, apperrors.Validation("INVALID_BODY", "malformed request body").WithCause(err))
		return
	}

	req, err := h.requests.UpdateItem(c.Request.Context(), c.Param("id"), itemID, input)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// RemoveItem handles DELETE /api/requests/:id/items/:itemID
func (h *Handlers) RemoveItem(c *gin.Context) {
	itemID, err := strconv.ParseInt(c.Param("itemID"), 10, 64)
	if err != nil {
		h.respondError(c, apperrors.Validation("INVALID_ITEM_ID", "item id must be numeric"))
		return
	}

	req, err := h.requests.RemoveItem(c.Request.Context(), c.Param("id"), itemID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// DecisionRequest is the body of approve and reject calls.
type DecisionRequest struct {
	ApproverID       string `json:"approver_id"`
	CanApproveLevel1 bool   `json:"can_approve_level_1"`
	CanApproveLevel2 bool   `json:"can_approve_level_2"`
	Level            int    `json:"level"`
	Comment          string `json:"comment"`
}

func (r DecisionRequest) approver() entity.Approver {
	return entity.Approver{
		UserID:           r.ApproverID,
		CanApproveLevel1: r.CanApproveLevel1,
		CanApproveLevel2: r.CanApproveLevel2,
	}
}

// DecisionResponse is the outcome of a decision call.
type DecisionResponse struct {
	Decision        string `json:"decision"`
	RequestStatus   string `json:"requestStatus"`
	PendingLevels   []int  `json:"pendingLevels"`
	IsFullyApproved bool   `json:"isFullyApproved"`
}

func toDecisionResponse(outcome *approval.Outcome) DecisionResponse {
	pending := outcome.PendingLevels
	if pending == nil {
		pending = []int{}
	}
	return DecisionResponse{
		Decision:        outcome.Decision,
		RequestStatus:   outcome.RequestStatus,
		PendingLevels:   pending,
		IsFullyApproved: outcome.IsFullyApproved,
	}
}

// ApproveRequest handles POST /api/requests/:id/approve
func (h *Handlers) ApproveRequest(c *gin.Context) {
	var body DecisionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.respondError(c, apperrors.Validation("INVALID_BODY", "malformed request body").WithCause(err))
		return
	}

	outcome, err := h.engine.Approve(c.Request.Context(), c.Param("id"), body.approver(), body.Level, body.Comment)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toDecisionResponse(outcome))
}

// RejectRequest handles POST /api/requests/:id/reject
func (h *Handlers) RejectRequest(c *gin.Context) {
	var body DecisionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.respondError(c, apperrors.Validation("INVALID_BODY", "malformed request body").WithCause(err))
		return
	}

	outcome, err := h.engine.Reject(c.Request.Context(), c.Param("id"), body.approver(), body.Level, body.Comment)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toDecisionResponse(outcome))
}

// GenerateOrderRequest optionally carries extracted proforma data.
type GenerateOrderRequest struct {
	Proforma *entity.ProformaData `json:"proforma,omitempty"`
}

// GenerateOrder handles POST /api/requests/:id/order. Generation also
// runs from the background queue on full approval; this endpoint covers
// manual retries and proforma-enriched regeneration. Both paths land on
// the same idempotent generator.
func (h *Handlers) GenerateOrder(c *gin.Context) {
	var body GenerateOrderRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			h.respondError(c, apperrors.Validation("INVALID_BODY", "malformed request body").WithCause(err))
			return
		}
	}

	o, err := h.generator.Generate(c.Request.Context(), c.Param("id"), body.Proforma)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

// ListOrders handles GET /api/orders
func (h *Handlers) ListOrders(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, _ := strconv.Atoi(c.Query("offset"))
	if offset < 0 {
		offset = 0
	}

	orders, err := h.orders.List(limit, offset)
	if err != nil {
		h.respondError(c, apperrors.Transient("DB_READ", "failed to list orders").WithCause(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// GetOrder handles GET /api/orders/:id
func (h *Handlers) GetOrder(c *gin.Context) {
	o, err := h.orders.GetByID(nil, c.Param("id"))
	if err != nil {
		h.respondError(c, apperrors.Transient("DB_READ", "failed to load order").WithCause(err))
		return
	}
	if o == nil {
		h.respondError(c, apperrors.NotFound("ORDER_NOT_FOUND", "purchase order does not exist"))
		return
	}
	c.JSON(http.StatusOK, o)
}

// TransitionOrderRequest names the lifecycle trigger to fire.
type TransitionOrderRequest struct {
	Trigger string `json:"trigger"`
}

// TransitionOrder handles POST /api/orders/:id/transition
func (h *Handlers) TransitionOrder(c *gin.Context) {
	var body TransitionOrderRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.respondError(c, apperrors.Validation("INVALID_BODY", "malformed request body").WithCause(err))
		return
	}

	o, err := h.generator.Transition(c.Request.Context(), c.Param("id"), workflow.Trigger(body.Trigger))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// RegisterReceiptRequest carries the extracted receipt payload, when
// extraction has already run.
type RegisterReceiptRequest struct {
	ExtractedData *entity.ReceiptData `json:"extracted_data,omitempty"`
}

// RegisterReceipt handles POST /api/orders/:id/receipts
func (h *Handlers) RegisterReceipt(c *gin.Context) {
	var body RegisterReceiptRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			h.respondError(c, apperrors.Validation("INVALID_BODY", "malformed request body").WithCause(err))
			return
		}
	}

	receipt, err := h.receipts.Register(c.Request.Context(), c.Param("id"), body.ExtractedData)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, receipt)
}

// GetReceipt handles GET /api/receipts/:id
func (h *Handlers) GetReceipt(c *gin.Context) {
	receipt, err := h.receipts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// ValidateReceipt handles POST /api/receipts/:id/validate. Validation
// normally runs from the background queue after registration; this
// endpoint re-runs it on demand.
func (h *Handlers) ValidateReceipt(c *gin.Context) {
	result, err := h.receipts.Validate(c.Request.Context(), c.Param("id"), c.Query("order_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListNotifications handles GET /api/notifications
func (h *Handlers) ListNotifications(c *gin.Context) {
	recipient := c.Query("recipient")
	if recipient == "" {
		h.respondError(c, apperrors.Validation("RECIPIENT_REQUIRED", "recipient query parameter is required"))
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	notifications, err := h.notifications.History(c.Request.Context(), recipient, limit)
	if err != nil {
		h.respondError(c, apperrors.Transient("DB_READ", "failed to load notifications").WithCause(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}
