package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/procurehq/p2p-engine/internal/approval"
	"github.com/procurehq/p2p-engine/internal/notification"
	"github.com/procurehq/p2p-engine/internal/order"
	"github.com/procurehq/p2p-engine/internal/reconcile"
	"github.com/procurehq/p2p-engine/internal/repository"
	"github.com/procurehq/p2p-engine/internal/service"
	"github.com/procurehq/p2p-engine/pkg/database"
)

func newTestServer(t *testing.T) *Server {
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
	if err := migrator.RunMigrations(context.Background(), "../../../migrations"); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	requestRepo := repository.NewRequestRepository(db.DB, logger)
	approvalRepo := repository.NewApprovalRepository(db.DB, logger)
	orderRepo := repository.NewOrderRepository(db.DB, logger)
	receiptRepo := repository.NewReceiptRepository(db.DB, logger)
	jobRepo := repository.NewJobRepository(db.DB, logger)
	notificationRepo := repository.NewNotificationRepository(db.DB, logger)

	requestSvc := service.NewRequestService(db, requestRepo, logger)
	engine := approval.NewEngine(db, requestRepo, approvalRepo, jobRepo, approval.Config{
		LevelTwoThreshold: decimal.NewFromInt(1000),
		JobMaxAttempts:    5,
	}, logger)
	generator := order.NewGenerator(db, requestRepo, orderRepo, order.Config{}, logger)
	reconciler := reconcile.NewReconciler(reconcile.Config{}, logger)
	receiptSvc := service.NewReceiptService(db, receiptRepo, orderRepo, jobRepo, reconciler, 5, logger)
	notificationSvc := notification.NewService(notification.NewLogSender(logger), notificationRepo, logger)

	return NewServer(DefaultServerConfig(), requestSvc, engine, generator, orderRepo, receiptSvc, notificationSvc, logger)
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
}

func createRequestPayload(amountPerUnit string, quantity int64) map[string]interface{} {
	return map[string]interface{}{
		"title":      "Standing desks",
		"created_by": "requester-1",
		"items": []map[string]interface{}{
			{"name": "Desk", "quantity": quantity, "unit_price": amountPerUnit},
		},
	}
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestCreateAndGetRequest(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/api/requests", createRequestPayload("250.00", 2))
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var created struct {
		ID     string `json:"id"`
		Amount string `json:"amount"`
		Status string `json:"status"`
	}
	decode(t, w, &created)
	if created.Status != "PENDING" {
		t.Errorf("Status = %v, want PENDING", created.Status)
	}
	if created.Amount != "500" {
		t.Errorf("Amount = %v, want 500", created.Amount)
	}

	w = doJSON(t, srv, http.MethodGet, "/api/requests/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Errorf("get status = %d, want 200", w.Code)
	}
}

func TestCreateRequestValidationError(t *testing.T) {
	srv := newTestServer(t)

	payload := createRequestPayload("250.00", 2)
	payload["title"] = ""
	w := doJSON(t, srv, http.MethodPost, "/api/requests", payload)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var body ErrorBody
	decode(t, w, &body)
	if body.Code != "TITLE_REQUIRED" {
		t.Errorf("Code = %q, want TITLE_REQUIRED", body.Code)
	}
	if body.Message == "" {
		t.Error("Message must not be empty")
	}
}

func TestApprovalFlow(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/api/requests", createRequestPayload("2500.00", 2))
	var created struct {
		ID string `json:"id"`
	}
	decode(t, w, &created)

	// Level 1 of 2: amount is above the threshold.
	w = doJSON(t, srv, http.MethodPost, "/api/requests/"+created.ID+"/approve", map[string]interface{}{
		"approver_id":         "alice",
		"can_approve_level_1": true,
		"level":               1,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("approve status = %d, body = %s", w.Code, w.Body.String())
	}
	var outcome DecisionResponse
	decode(t, w, &outcome)
	if outcome.IsFullyApproved {
		t.Error("IsFullyApproved = true after one of two levels")
	}
	if len(outcome.PendingLevels) != 1 || outcome.PendingLevels[0] != 2 {
		t.Errorf("PendingLevels = %v, want [2]", outcome.PendingLevels)
	}
	if outcome.RequestStatus != "PENDING" {
		t.Errorf("RequestStatus = %v, want PENDING", outcome.RequestStatus)
	}

	w = doJSON(t, srv, http.MethodPost, "/api/requests/"+created.ID+"/approve", map[string]interface{}{
		"approver_id":         "bob",
		"can_approve_level_2": true,
		"level":               2,
	})
	decode(t, w, &outcome)
	if !outcome.IsFullyApproved {
		t.Error("IsFullyApproved = false after both levels")
	}
	if outcome.RequestStatus != "APPROVED" {
		t.Errorf("RequestStatus = %v, want APPROVED", outcome.RequestStatus)
	}
	if len(outcome.PendingLevels) != 0 {
		t.Errorf("PendingLevels = %v, want empty", outcome.PendingLevels)
	}
}

func TestRejectWithoutCommentFails(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/api/requests", createRequestPayload("100.00", 1))
	var created struct {
		ID string `json:"id"`
	}
	decode(t, w, &created)

	w = doJSON(t, srv, http.MethodPost, "/api/requests/"+created.ID+"/reject", map[string]interface{}{
		"approver_id":         "alice",
		"can_approve_level_1": true,
		"level":               1,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var body ErrorBody
	decode(t, w, &body)
	if body.Code != "COMMENT_REQUIRED" {
		t.Errorf("Code = %q, want COMMENT_REQUIRED", body.Code)
	}
}

func TestPermissionMapsTo403(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/api/requests", createRequestPayload("100.00", 1))
	var created struct {
		ID string `json:"id"`
	}
	decode(t, w, &created)

	w = doJSON(t, srv, http.MethodPost, "/api/requests/"+created.ID+"/approve", map[string]interface{}{
		"approver_id": "mallory",
		"level":       1,
	})
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestOrderEndpoints(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/api/requests", createRequestPayload("100.00", 1))
	var created struct {
		ID string `json:"id"`
	}
	decode(t, w, &created)

	doJSON(t, srv, http.MethodPost, "/api/requests/"+created.ID+"/approve", map[string]interface{}{
		"approver_id":         "alice",
		"can_approve_level_1": true,
		"level":               1,
	})

	w = doJSON(t, srv, http.MethodPost, "/api/requests/"+created.ID+"/order", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("generate status = %d, body = %s", w.Code, w.Body.String())
	}
	var generated struct {
		ID       string `json:"id"`
		PONumber string `json:"po_number"`
		Vendor   string `json:"vendor"`
		Status   string `json:"status"`
	}
	decode(t, w, &generated)
	if generated.Vendor != "Unknown Vendor" {
		t.Errorf("Vendor = %q, want default", generated.Vendor)
	}
	if generated.Status != "DRAFT" {
		t.Errorf("Status = %v, want DRAFT", generated.Status)
	}

	w = doJSON(t, srv, http.MethodPost, "/api/orders/"+generated.ID+"/transition", map[string]string{"trigger": "SEND"})
	if w.Code != http.StatusOK {
		t.Fatalf("transition status = %d, body = %s", w.Code, w.Body.String())
	}

	// FULFILL is not reachable from SENT.
	w = doJSON(t, srv, http.MethodPost, "/api/orders/"+generated.ID+"/transition", map[string]string{"trigger": "FULFILL"})
	if w.Code != http.StatusConflict {
		t.Errorf("invalid transition status = %d, want 409", w.Code)
	}

	w = doJSON(t, srv, http.MethodGet, "/api/orders/"+generated.ID, nil)
	if w.Code != http.StatusOK {
		t.Errorf("get order status = %d, want 200", w.Code)
	}

	w = doJSON(t, srv, http.MethodGet, "/api/orders/missing-id", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing order status = %d, want 404", w.Code)
	}
}

func TestGenerateOrderPendingRequestFails(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/api/requests", createRequestPayload("100.00", 1))
	var created struct {
		ID string `json:"id"`
	}
	decode(t, w, &created)

	w = doJSON(t, srv, http.MethodPost, "/api/requests/"+created.ID+"/order", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for unapproved request", w.Code)
	}
}

func TestReceiptEndpoints(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/api/requests", createRequestPayload("100.00", 1))
	var created struct {
		ID string `json:"id"`
	}
	decode(t, w, &created)
	doJSON(t, srv, http.MethodPost, "/api/requests/"+created.ID+"/approve", map[string]interface{}{
		"approver_id":         "alice",
		"can_approve_level_1": true,
		"level":               1,
	})
	w = doJSON(t, srv, http.MethodPost, "/api/requests/"+created.ID+"/order", nil)
	var generated struct {
		ID string `json:"id"`
	}
	decode(t, w, &generated)

	w = doJSON(t, srv, http.MethodPost, "/api/orders/"+generated.ID+"/receipts", map[string]interface{}{
		"extracted_data": map[string]interface{}{
			"vendor": map[string]string{"name": "Unknown Vendor"},
			"totals": map[string]float64{"total": 100},
			"items": []map[string]interface{}{
				{"description": "Desk", "quantity": 1, "unit_price": 100},
			},
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body = %s", w.Code, w.Body.String())
	}
	var receipt struct {
		ID string `json:"id"`
	}
	decode(t, w, &receipt)

	w = doJSON(t, srv, http.MethodPost, "/api/receipts/"+receipt.ID+"/validate", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("validate status = %d, body = %s", w.Code, w.Body.String())
	}
	var result struct {
		OverallScore    float64 `json:"overall_score"`
		ConfidenceLevel string  `json:"confidence_level"`
	}
	decode(t, w, &result)
	if result.OverallScore <= 0 {
		t.Errorf("OverallScore = %v, want > 0", result.OverallScore)
	}

	w = doJSON(t, srv, http.MethodGet, "/api/receipts/"+receipt.ID, nil)
	if w.Code != http.StatusOK {
		t.Errorf("get receipt status = %d, want 200", w.Code)
	}
}

func TestListNotificationsRequiresRecipient(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodGet, "/api/notifications", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 without recipient", w.Code)
	}
}
