package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseOrder is the binding order materialized from an approved
// request. One order exists per request at most; the total mirrors the
// request amount at generation time and is never recomputed.
type PurchaseOrder struct {
	ID            string          `json:"id"`
	PONumber      string          `json:"po_number"`
	RequestID     string          `json:"request_id"`
	Vendor        string          `json:"vendor"`
	VendorContact string          `json:"vendor_contact,omitempty"`
	Total         decimal.Decimal `json:"total"`
	Status        string          `json:"status"`
	Metadata      OrderMetadata   `json:"metadata"`
	CreatedAt     time.Time       `json:"created_at"`
}

// OrderMetadata is the structured data compiled at generation time from
// the request items and any externally extracted proforma document.
type OrderMetadata struct {
	Items          []OrderItem            `json:"items"`
	RequestDetails OrderRequestDetails    `json:"request_details"`
	Terms          map[string]interface{} `json:"terms,omitempty"`
	DeliveryInfo   map[string]interface{} `json:"delivery_info,omitempty"`
	PaymentTerms   string                 `json:"payment_terms,omitempty"`
}

// OrderItem is a compiled line item inside order metadata.
type OrderItem struct {
	Name          string  `json:"name"`
	Quantity      int64   `json:"quantity"`
	UnitPrice     float64 `json:"unit_price"`
	LineTotal     float64 `json:"line_total"`
	Description   string  `json:"description,omitempty"`
	UnitOfMeasure string  `json:"unit_of_measure,omitempty"`
}

// OrderRequestDetails preserves the originating request context.
type OrderRequestDetails struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProformaData is vendor/terms data extracted from a proforma document
// by the external extraction pipeline. All fields are optional.
type ProformaData struct {
	Vendor       *VendorInfo            `json:"vendor,omitempty"`
	Terms        map[string]interface{} `json:"terms,omitempty"`
	Delivery     map[string]interface{} `json:"delivery,omitempty"`
	PaymentTerms string                 `json:"payment_terms,omitempty"`
}

// VendorInfo carries vendor identity and contact details.
type VendorInfo struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}
