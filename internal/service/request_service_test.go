package service

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/procurehq/p2p-engine/internal/apperrors"
	"github.com/procurehq/p2p-engine/internal/domain/entity"
	"github.com/procurehq/p2p-engine/internal/repository"
	"github.com/procurehq/p2p-engine/pkg/database"
)

func newTestDB(t *testing.T) *database.DB {
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
	return db
}

func newRequestService(t *testing.T) (*RequestService, *repository.RequestRepository) {
	t.Helper()
	db := newTestDB(t)
	requests := repository.NewRequestRepository(db.DB, zap.NewNop())
	return NewRequestService(db, requests, zap.NewNop()), requests
}

func price(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad price %q: %v", s, err)
	}
	return d
}

func validInput(t *testing.T) CreateRequestInput {
	return CreateRequestInput{
		Title:     "Laptops for new hires",
		CreatedBy: "requester-1",
		Items: []ItemInput{
			{Name: "Laptop", Quantity: 2, UnitPrice: price(t, "1200.00")},
			{Name: "Docking station", Quantity: 2, UnitPrice: price(t, "150.50")},
		},
	}
}

func TestRequestService_Create(t *testing.T) {
	svc, _ := newRequestService(t)
	ctx := context.Background()

	req, err := svc.Create(ctx, validInput(t))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if req.Status != entity.RequestStatusPending {
		t.Errorf("Status = %v, want PENDING", req.Status)
	}
	// 2*1200 + 2*150.50
	if want := price(t, "2701.00"); !req.Amount.Equal(want) {
		t.Errorf("Amount = %v, want %v", req.Amount, want)
	}
	if len(req.Items) != 2 {
		t.Errorf("len(Items) = %d, want 2", len(req.Items))
	}

	loaded, err := svc.Get(ctx, req.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !loaded.Amount.Equal(req.Amount) {
		t.Errorf("persisted Amount = %v, want %v", loaded.Amount, req.Amount)
	}
	if len(loaded.Items) != 2 {
		t.Errorf("persisted len(Items) = %d, want 2", len(loaded.Items))
	}
}

func TestRequestService_CreateValidation(t *testing.T) {
	svc, _ := newRequestService(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(*CreateRequestInput)
		wantMsg string
	}{
		{"missing title", func(in *CreateRequestInput) { in.Title = "  " }, "TITLE_REQUIRED"},
		{"missing creator", func(in *CreateRequestInput) { in.CreatedBy = "" }, "CREATED_BY_REQUIRED"},
		{"no items", func(in *CreateRequestInput) { in.Items = nil }, "ITEMS_REQUIRED"},
		{"unnamed item", func(in *CreateRequestInput) { in.Items[0].Name = "" }, "ITEM_NAME_REQUIRED"},
		{"zero quantity", func(in *CreateRequestInput) { in.Items[0].Quantity = 0 }, "ITEM_QUANTITY_INVALID"},
		{"negative price", func(in *CreateRequestInput) { in.Items[0].UnitPrice = price(t, "-1") }, "ITEM_PRICE_INVALID"},
		{"zero price", func(in *CreateRequestInput) { in.Items[0].UnitPrice = price(t, "0") }, "ITEM_PRICE_INVALID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validInput(t)
			tt.mutate(&input)

			_, err := svc.Create(ctx, input)
			if !errors.Is(err, apperrors.ErrValidation) {
				t.Fatalf("Create() error = %v, want validation error", err)
			}
			var appErr *apperrors.Error
			if errors.As(err, &appErr) && appErr.Code != tt.wantMsg {
				t.Errorf("Code = %v, want %v", appErr.Code, tt.wantMsg)
			}
		})
	}
}

func TestRequestService_AmountTracksItems(t *testing.T) {
	svc, _ := newRequestService(t)
	ctx := context.Background()

	req, err := svc.Create(ctx, validInput(t))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	req, err = svc.AddItem(ctx, req.ID, ItemInput{Name: "Mouse", Quantity: 4, UnitPrice: price(t, "25.00")})
	if err != nil {
		t.Fatalf("AddItem() error = %v", err)
	}
	if want := price(t, "2801.00"); !req.Amount.Equal(want) {
		t.Errorf("Amount after add = %v, want %v", req.Amount, want)
	}

	var mouseID int64
	for _, item := range req.Items {
		if item.Name == "Mouse" {
			mouseID = item.ID
		}
	}
	if mouseID == 0 {
		t.Fatal("added item not found in reloaded request")
	}

	req, err = svc.UpdateItem(ctx, req.ID, mouseID, ItemInput{Name: "Mouse", Quantity: 10, UnitPrice: price(t, "20.00")})
	if err != nil {
		t.Fatalf("UpdateItem() error = %v", err)
	}
	if want := price(t, "2901.00"); !req.Amount.Equal(want) {
		t.Errorf("Amount after update = %v, want %v", req.Amount, want)
	}

	req, err = svc.RemoveItem(ctx, req.ID, mouseID)
	if err != nil {
		t.Fatalf("RemoveItem() error = %v", err)
	}
	if want := price(t, "2701.00"); !req.Amount.Equal(want) {
		t.Errorf("Amount after remove = %v, want %v", req.Amount, want)
	}

	// Amount always equals the sum of line totals.
	if !req.Amount.Equal(req.CalculatedTotal()) {
		t.Errorf("Amount = %v, CalculatedTotal = %v, must match", req.Amount, req.CalculatedTotal())
	}
}

func TestRequestService_MutationBumpsVersion(t *testing.T) {
	svc, _ := newRequestService(t)
	ctx := context.Background()

	req, err := svc.Create(ctx, validInput(t))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	updated, err := svc.AddItem(ctx, req.ID, ItemInput{Name: "Cable", Quantity: 1, UnitPrice: price(t, "9.99")})
	if err != nil {
		t.Fatalf("AddItem() error = %v", err)
	}
	if updated.Version != req.Version+1 {
		t.Errorf("Version = %d, want %d", updated.Version, req.Version+1)
	}
}

func TestRequestService_MutationsRequirePending(t *testing.T) {
	svc, requests := newRequestService(t)
	ctx := context.Background()

	req, err := svc.Create(ctx, validInput(t))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	ok, err := requests.UpdateStatusCAS(nil, req.ID, req.Version, entity.RequestStatusApproved, "alice", nullTimeNow())
	if err != nil || !ok {
		t.Fatalf("failed to approve request: ok=%v err=%v", ok, err)
	}

	_, err = svc.AddItem(ctx, req.ID, ItemInput{Name: "Cable", Quantity: 1, UnitPrice: price(t, "9.99")})
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("AddItem() on approved request error = %v, want validation error", err)
	}

	_, err = svc.RemoveItem(ctx, req.ID, req.Items[0].ID)
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("RemoveItem() on approved request error = %v, want validation error", err)
	}
}

func TestRequestService_RemoveLastItem(t *testing.T) {
	svc, _ := newRequestService(t)
	ctx := context.Background()

	input := validInput(t)
	input.Items = input.Items[:1]
	req, err := svc.Create(ctx, input)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	_, err = svc.RemoveItem(ctx, req.ID, req.Items[0].ID)
	if !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("RemoveItem() of only item error = %v, want validation error", err)
	}
}

func TestRequestService_UpdateMissingItem(t *testing.T) {
	svc, _ := newRequestService(t)
	ctx := context.Background()

	req, err := svc.Create(ctx, validInput(t))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	_, err = svc.UpdateItem(ctx, req.ID, 99999, ItemInput{Name: "Ghost", Quantity: 1, UnitPrice: price(t, "1.00")})
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("UpdateItem() error = %v, want not found", err)
	}
}

func TestRequestService_List(t *testing.T) {
	svc, _ := newRequestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Create(ctx, validInput(t)); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	all, err := svc.List(ctx, "", 0, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Errorf("len(List()) = %d, want 3", len(all))
	}

	pending, err := svc.List(ctx, entity.RequestStatusPending, 10, 0)
	if err != nil {
		t.Fatalf("List(PENDING) error = %v", err)
	}
	if len(pending) != 3 {
		t.Errorf("len(List(PENDING)) = %d, want 3", len(pending))
	}

	approved, err := svc.List(ctx, entity.RequestStatusApproved, 10, 0)
	if err != nil {
		t.Fatalf("List(APPROVED) error = %v", err)
	}
	if len(approved) != 0 {
		t.Errorf("len(List(APPROVED)) = %d, want 0", len(approved))
	}

	if _, err := svc.List(ctx, "BOGUS", 10, 0); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("List(BOGUS) error = %v, want validation error", err)
	}
}

func nullTimeNow() sql.NullTime {
	return sql.NullTime{Time: time.Now().UTC(), Valid: true}
}

func TestRequestService_GetMissing(t *testing.T) {
	svc, _ := newRequestService(t)

	_, err := svc.Get(context.Background(), "no-such-id")
	if !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("Get() error = %v, want not found", err)
	}
}
