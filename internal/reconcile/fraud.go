package reconcile

import "github.com/procurehq/p2p-engine/internal/domain/entity"

// Fraud heuristic thresholds.
const (
	// amountInflationFactor flags receipts claiming substantially more
	// than was ordered.
	amountInflationFactor = 1.5

	// vendorFraudThreshold flags near-total vendor name mismatches.
	vendorFraudThreshold = 0.3
)

// majorFlags force LOW confidence regardless of the overall score.
var majorFlags = map[string]bool{
	entity.FlagSuspiciousAmountIncrease: true,
	entity.FlagPotentialVendorFraud:     true,
	entity.FlagVendorMajorMismatch:      true,
	entity.FlagAmountMajorDiscrepancy:   true,
	entity.FlagItemsMajorMismatch:       true,
}

// detectFraud applies the rule-of-thumb heuristics over the comparison
// results and returns the raised flags.
func detectFraud(receipt *entity.ReceiptData, order *entity.PurchaseOrder, vendorScore float64, items itemsComparison) []string {
	var flags []string

	if receipt.Totals != nil && receipt.Totals.Total > 0 {
		orderTotal, _ := order.Total.Float64()
		if orderTotal > 0 && receipt.Totals.Total > orderTotal*amountInflationFactor {
			flags = append(flags, entity.FlagSuspiciousAmountIncrease)
		}
	}

	hasVendorName := receipt.Vendor != nil && receipt.Vendor.Name != ""
	if !hasVendorName {
		flags = append(flags, entity.FlagMissingVendorInfo)
	} else if vendorScore < vendorFraudThreshold {
		flags = append(flags, entity.FlagPotentialVendorFraud)
	}

	if orderLines := len(order.Metadata.Items); orderLines > 0 && items.extra > orderLines/2 {
		flags = append(flags, entity.FlagSuspiciousExtraItems)
	}

	if receipt.Transaction == nil || receipt.Transaction.Date == "" {
		flags = append(flags, entity.FlagMissingTransactionDate)
	}

	return flags
}

func hasMajorFlag(flags []string) bool {
	for _, f := range flags {
		if majorFlags[f] {
			return true
		}
	}
	return false
}
