package entity

import "time"

// ReceiptData is the loosely typed structure produced by the external
// document extraction pipeline. Every field may be absent; consumers
// must degrade gracefully instead of failing.
type ReceiptData struct {
	Vendor      *VendorInfo        `json:"vendor,omitempty"`
	Items       []ReceiptItem      `json:"items,omitempty"`
	Totals      *ReceiptTotals     `json:"totals,omitempty"`
	Transaction *TransactionDetail `json:"transaction,omitempty"`
}

// ReceiptItem is one extracted receipt line.
type ReceiptItem struct {
	Description string  `json:"description,omitempty"`
	Quantity    float64 `json:"quantity,omitempty"`
	UnitPrice   float64 `json:"unit_price,omitempty"`
}

// ReceiptTotals carries the extracted amount fields.
type ReceiptTotals struct {
	Subtotal float64 `json:"subtotal,omitempty"`
	Tax      float64 `json:"tax,omitempty"`
	Total    float64 `json:"total,omitempty"`
}

// TransactionDetail carries the extracted transaction fields.
type TransactionDetail struct {
	Date string `json:"date,omitempty"`
	ID   string `json:"id,omitempty"`
}

// Receipt is the stored receipt document reference. The raw file and
// its extraction live with the external document subsystem; this record
// tracks which order the receipt claims to settle and the latest
// validation outcome.
type Receipt struct {
	ID               string            `json:"id"`
	OrderID          string            `json:"order_id"`
	ExtractedData    *ReceiptData      `json:"extracted_data,omitempty"`
	ValidationResult *ValidationResult `json:"validation_result,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// Discrepancy is one detected field-level mismatch between receipt and
// order.
type Discrepancy struct {
	Type            string      `json:"type"`
	Severity        string      `json:"severity"`
	ReceiptValue    interface{} `json:"receipt_value,omitempty"`
	OrderValue      interface{} `json:"order_value,omitempty"`
	Score           float64     `json:"score"`
	Details         string      `json:"details,omitempty"`
	SuggestedAction string      `json:"suggested_action"`
}

// ValidationResult is the immutable outcome of one reconciliation run.
// Re-running reconciliation replaces the stored result; it never
// mutates the order or the request.
type ValidationResult struct {
	VendorScore       float64       `json:"vendor_score"`
	TotalScore        float64       `json:"total_score"`
	ItemsScore        float64       `json:"items_score"`
	DateScore         float64       `json:"date_score"`
	OverallScore      float64       `json:"overall_score"`
	Discrepancies     []Discrepancy `json:"discrepancies"`
	Flags             []string      `json:"flags"`
	ConfidenceLevel   string        `json:"confidence_level"`
	NeedsManualReview bool          `json:"needs_manual_review"`
	ValidatedAt       time.Time     `json:"validated_at"`
}

// HasFlag reports whether the result carries the given flag.
func (v *ValidationResult) HasFlag(flag string) bool {
	for _, f := range v.Flags {
		if f == flag {
			return true
		}
	}
	return false
}
