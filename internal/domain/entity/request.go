package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseRequest represents a purchase request in the procurement workflow.
// The amount always mirrors the sum of its item line totals; the version
// column is bumped on every mutation and backs optimistic conflict checks.
type PurchaseRequest struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Amount         decimal.Decimal `json:"amount"`
	Status         string          `json:"status"`
	CreatedBy      string          `json:"created_by"`
	LastApprovedBy string          `json:"last_approved_by,omitempty"`
	Version        int64           `json:"version"`
	ApprovedAt     *time.Time      `json:"approved_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`

	Items []*RequestItem `json:"items,omitempty"`
}

// RequestItem is a single line item owned by a purchase request.
type RequestItem struct {
	ID            int64           `json:"id"`
	RequestID     string          `json:"request_id"`
	Name          string          `json:"name"`
	Quantity      int64           `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Description   string          `json:"description,omitempty"`
	UnitOfMeasure string          `json:"unit_of_measure,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// LineTotal returns quantity x unit price for this item.
func (i *RequestItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(i.Quantity))
}

// IsPending reports whether the request can still be mutated or decided.
func (r *PurchaseRequest) IsPending() bool {
	return r.Status == RequestStatusPending
}

// IsApproved reports whether the request is fully approved.
func (r *PurchaseRequest) IsApproved() bool {
	return r.Status == RequestStatusApproved
}

// CalculatedTotal sums line totals over the loaded items.
func (r *PurchaseRequest) CalculatedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range r.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// RequiredApprovalLevelsFor returns the approval levels the amount
// demands under the given cutoff: level 1 always, level 2 above the
// threshold.
func (r *PurchaseRequest) RequiredApprovalLevelsFor(threshold decimal.Decimal) []int {
	levels := []int{1}
	if r.Amount.GreaterThan(threshold) {
		levels = append(levels, 2)
	}
	return levels
}
