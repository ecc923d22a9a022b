package reconcile

import (
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/procurehq/p2p-engine/internal/domain/entity"
)

// Weights distributes the overall score across the four comparison
// dimensions. They must sum to 1.
type Weights struct {
	Vendor float64
	Total  float64
	Items  float64
	Date   float64
}

// DefaultWeights returns the canonical weight distribution.
func DefaultWeights() Weights {
	return Weights{Vendor: 0.25, Total: 0.40, Items: 0.30, Date: 0.05}
}

// Config holds reconciler tunables
type Config struct {
	Weights Weights

	// ReviewThreshold is the overall score below which a human must
	// look at the receipt.
	ReviewThreshold float64

	// Similarity overrides the vendor/item name matcher. Nil selects
	// NameSimilarity.
	Similarity Similarity

	// Now overrides the validation timestamp source, for tests.
	Now func() time.Time
}

// Total score bands keyed by maximum relative difference.
var totalBands = []struct {
	maxPct float64
	score  float64
}{
	{0.01, 0.95},
	{0.02, 0.90},
	{0.05, 0.80},
	{0.10, 0.60},
	{0.20, 0.30},
}

// Discrepancy thresholds per dimension.
const (
	vendorDiscrepancyBelow  = 0.8
	vendorHighSeverityBelow = 0.5
	totalDiscrepancyBelow   = 0.9
	totalHighSeverityBelow  = 0.7
	itemsDiscrepancyBelow   = 0.7
	itemsHighSeverityAtMost = 0.4
	dateDiscrepancyBelow    = 0.5
)

// Date proximity bands, in days between receipt transaction date and
// order creation.
const (
	dateCloseDays    = 90
	dateModerateDays = 180
	dateNeutralScore = 0.5
)

// Confidence cutoffs.
const (
	confidenceHighScore   = 0.85
	confidenceMediumScore = 0.7
	multipleDiscrepancies = 3
)

// Reconciler scores extracted receipt data against the purchase order
// it claims to settle. Validation is pure: it never mutates the order
// or the request it derives from.
type Reconciler struct {
	cfg    Config
	sim    Similarity
	logger *zap.Logger
}

// NewReconciler creates a new reconciler
func NewReconciler(cfg Config, logger *zap.Logger) *Reconciler {
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights()
	}
	if cfg.ReviewThreshold == 0 {
		cfg.ReviewThreshold = 0.8
	}
	sim := cfg.Similarity
	if sim == nil {
		sim = NameSimilarity
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Reconciler{cfg: cfg, sim: sim, logger: logger}
}

// Validate compares receipt data against the order and produces the
// reconciliation outcome.
func (r *Reconciler) Validate(receipt *entity.ReceiptData, order *entity.PurchaseOrder) *entity.ValidationResult {
	if receipt == nil {
		receipt = &entity.ReceiptData{}
	}

	vendorScore := r.scoreVendor(receipt, order)
	totalScore := r.scoreTotal(receipt, order)
	items := compareItems(receipt.Items, order.Metadata.Items, r.sim)
	dateScore := r.scoreDate(receipt, order)

	w := r.cfg.Weights
	overall := w.Vendor*vendorScore + w.Total*totalScore + w.Items*items.score + w.Date*dateScore

	result := &entity.ValidationResult{
		VendorScore:  vendorScore,
		TotalScore:   totalScore,
		ItemsScore:   items.score,
		DateScore:    dateScore,
		OverallScore: overall,
		ValidatedAt:  r.cfg.Now().UTC(),
	}

	result.Discrepancies = r.collectDiscrepancies(receipt, order, result, items)
	result.Flags = detectFraud(receipt, order, vendorScore, items)

	for _, f := range r.structuralFlags(result) {
		if !result.HasFlag(f) {
			result.Flags = append(result.Flags, f)
		}
	}

	result.ConfidenceLevel = r.confidence(result)
	result.NeedsManualReview = overall < r.cfg.ReviewThreshold || result.ConfidenceLevel == entity.ConfidenceLow

	r.logger.Debug("Receipt validated",
		zap.String("po_number", order.PONumber),
		zap.Float64("overall", overall),
		zap.String("confidence", result.ConfidenceLevel),
		zap.Bool("needs_review", result.NeedsManualReview))
	return result
}

func (r *Reconciler) scoreVendor(receipt *entity.ReceiptData, order *entity.PurchaseOrder) float64 {
	if receipt.Vendor == nil || strings.TrimSpace(receipt.Vendor.Name) == "" {
		return 0
	}

	score := r.sim(receipt.Vendor.Name, order.Vendor)

	// Matching contact details strengthen an imperfect name match.
	if score < 1.0 && order.VendorContact != "" {
		contact := strings.ToLower(order.VendorContact)
		email := strings.ToLower(strings.TrimSpace(receipt.Vendor.Email))
		phone := strings.TrimSpace(receipt.Vendor.Phone)
		if (email != "" && strings.Contains(contact, email)) ||
			(phone != "" && strings.Contains(contact, phone)) {
			score = math.Min(1.0, score+0.1)
		}
	}
	return score
}

func (r *Reconciler) scoreTotal(receipt *entity.ReceiptData, order *entity.PurchaseOrder) float64 {
	if receipt.Totals == nil || receipt.Totals.Total <= 0 {
		return 0
	}

	orderTotal, _ := order.Total.Float64()
	receiptTotal := receipt.Totals.Total
	diff := math.Abs(receiptTotal - orderTotal)
	if diff == 0 {
		return 1.0
	}

	denom := math.Max(math.Abs(receiptTotal), math.Abs(orderTotal))
	if denom == 0 {
		return 1.0
	}
	pct := diff / denom
	for _, band := range totalBands {
		if pct <= band.maxPct {
			return band.score
		}
	}
	return 0
}

func (r *Reconciler) scoreDate(receipt *entity.ReceiptData, order *entity.PurchaseOrder) float64 {
	if receipt.Transaction == nil || receipt.Transaction.Date == "" {
		return dateNeutralScore
	}

	parsed, err := parseDate(receipt.Transaction.Date)
	if err != nil {
		// Unreadable dates score neutral rather than punishing the
		// extraction pipeline.
		return dateNeutralScore
	}

	days := math.Abs(parsed.Sub(order.CreatedAt).Hours() / 24)
	switch {
	case days <= dateCloseDays:
		return 1.0
	case days <= dateModerateDays:
		return 0.7
	default:
		return 0.3
	}
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"01/02/2006",
	"02.01.2006",
	"Jan 2, 2006",
	"2 January 2006",
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format: %q", s)
}

func (r *Reconciler) collectDiscrepancies(receipt *entity.ReceiptData, order *entity.PurchaseOrder, result *entity.ValidationResult, items itemsComparison) []entity.Discrepancy {
	var out []entity.Discrepancy

	if result.VendorScore < vendorDiscrepancyBelow {
		severity := entity.SeverityMedium
		if result.VendorScore < vendorHighSeverityBelow {
			severity = entity.SeverityHigh
		}
		var receiptVendor interface{}
		if receipt.Vendor != nil {
			receiptVendor = receipt.Vendor.Name
		}
		out = append(out, entity.Discrepancy{
			Type:            entity.DiscrepancyVendorMismatch,
			Severity:        severity,
			ReceiptValue:    receiptVendor,
			OrderValue:      order.Vendor,
			Score:           result.VendorScore,
			SuggestedAction: "verify vendor identity against the purchase order",
		})
	}

	if result.TotalScore < totalDiscrepancyBelow {
		severity := entity.SeverityMedium
		if result.TotalScore < totalHighSeverityBelow {
			severity = entity.SeverityHigh
		}
		var receiptTotal interface{}
		if receipt.Totals != nil {
			receiptTotal = receipt.Totals.Total
		}
		out = append(out, entity.Discrepancy{
			Type:            entity.DiscrepancyTotalMismatch,
			Severity:        severity,
			ReceiptValue:    receiptTotal,
			OrderValue:      order.Total.String(),
			Score:           result.TotalScore,
			SuggestedAction: "confirm the charged amount with the vendor",
		})
	}

	if result.ItemsScore < itemsDiscrepancyBelow {
		severity := entity.SeverityMedium
		if result.ItemsScore <= itemsHighSeverityAtMost {
			severity = entity.SeverityHigh
		}
		out = append(out, entity.Discrepancy{
			Type:     entity.DiscrepancyItemsMismatch,
			Severity: severity,
			Score:    result.ItemsScore,
			Details: fmt.Sprintf("%d matched, %d extra on receipt, %d missing from receipt",
				items.matched, items.extra, items.missing),
			SuggestedAction: "review line items against the order",
		})
	}

	if result.DateScore < dateDiscrepancyBelow {
		var receiptDate interface{}
		if receipt.Transaction != nil {
			receiptDate = receipt.Transaction.Date
		}
		out = append(out, entity.Discrepancy{
			Type:            entity.DiscrepancyDateMismatch,
			Severity:        entity.SeverityLow,
			ReceiptValue:    receiptDate,
			OrderValue:      order.CreatedAt.Format("2006-01-02"),
			Score:           result.DateScore,
			SuggestedAction: "confirm the transaction date",
		})
	}

	return out
}

// structuralFlags derives flags from the scored result itself.
func (r *Reconciler) structuralFlags(result *entity.ValidationResult) []string {
	var flags []string

	if result.VendorScore > 0 && result.VendorScore < vendorHighSeverityBelow {
		flags = append(flags, entity.FlagVendorMajorMismatch)
	}
	if result.TotalScore < totalHighSeverityBelow {
		flags = append(flags, entity.FlagAmountMajorDiscrepancy)
	}
	if result.ItemsScore <= itemsHighSeverityAtMost {
		flags = append(flags, entity.FlagItemsMajorMismatch)
	}
	if len(result.Discrepancies) >= multipleDiscrepancies {
		flags = append(flags, entity.FlagMultipleDiscrepancies)
	}
	return flags
}

func (r *Reconciler) confidence(result *entity.ValidationResult) string {
	if hasMajorFlag(result.Flags) {
		return entity.ConfidenceLow
	}

	switch {
	case result.OverallScore >= confidenceHighScore && len(result.Discrepancies) <= 1:
		return entity.ConfidenceHigh
	case result.OverallScore >= confidenceMediumScore:
		return entity.ConfidenceMedium
	default:
		return entity.ConfidenceLow
	}
}
