package entity

// Purchase request statuses
const (
	RequestStatusPending  = "PENDING"
	RequestStatusApproved = "APPROVED"
	RequestStatusRejected = "REJECTED"
)

// Approval decisions
const (
	DecisionApproved = "APPROVED"
	DecisionRejected = "REJECTED"
)

// Purchase order statuses
const (
	OrderStatusDraft        = "DRAFT"
	OrderStatusSent         = "SENT"
	OrderStatusAcknowledged = "ACKNOWLEDGED"
	OrderStatusFulfilled    = "FULFILLED"
	OrderStatusCancelled    = "CANCELLED"
)

// Validation confidence levels
const (
	ConfidenceHigh   = "HIGH"
	ConfidenceMedium = "MEDIUM"
	ConfidenceLow    = "LOW"
)

// Discrepancy severities
const (
	SeverityHigh   = "HIGH"
	SeverityMedium = "MEDIUM"
	SeverityLow    = "LOW"
)

// Discrepancy types
const (
	DiscrepancyVendorMismatch = "vendor_mismatch"
	DiscrepancyTotalMismatch  = "total_mismatch"
	DiscrepancyItemsMismatch  = "items_mismatch"
	DiscrepancyDateMismatch   = "date_mismatch"
)

// Fraud and review flags
const (
	FlagSuspiciousAmountIncrease = "SUSPICIOUS_AMOUNT_INCREASE"
	FlagPotentialVendorFraud     = "POTENTIAL_VENDOR_FRAUD"
	FlagSuspiciousExtraItems     = "SUSPICIOUS_EXTRA_ITEMS"
	FlagMissingVendorInfo        = "MISSING_VENDOR_INFO"
	FlagMissingTransactionDate   = "MISSING_TRANSACTION_DATE"
	FlagVendorMajorMismatch      = "VENDOR_MAJOR_MISMATCH"
	FlagAmountMajorDiscrepancy   = "AMOUNT_MAJOR_DISCREPANCY"
	FlagItemsMajorMismatch       = "ITEMS_MAJOR_MISMATCH"
	FlagMultipleDiscrepancies    = "MULTIPLE_DISCREPANCIES"
)

// DefaultVendorName is used when no proforma extraction data exists.
const DefaultVendorName = "Unknown Vendor"
