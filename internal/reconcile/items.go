package reconcile

import (
	"math"

	"github.com/procurehq/p2p-engine/internal/domain/entity"
)

// itemMatchThreshold is the minimum name similarity for a receipt line
// to be paired with an order line.
const itemMatchThreshold = 0.5

// Per-defect deductions from the base items score.
const (
	quantityPenalty = 0.05
	pricePenalty    = 0.10
	extraPenalty    = 0.15
	missingPenalty  = 0.20
)

type itemsComparison struct {
	score    float64
	matched  int
	extra    int // receipt lines with no order counterpart
	missing  int // order lines with no receipt counterpart
	qtyOff   int
	priceOff int
}

// compareItems pairs receipt lines to order lines greedily by best name
// similarity, one-to-one, then scores coverage minus per-defect
// penalties.
func compareItems(receipt []entity.ReceiptItem, order []entity.OrderItem, sim Similarity) itemsComparison {
	if len(receipt) == 0 && len(order) == 0 {
		return itemsComparison{score: 1.0}
	}
	if len(receipt) == 0 || len(order) == 0 {
		return itemsComparison{
			extra:   len(receipt),
			missing: len(order),
		}
	}

	type pair struct {
		r, o  int
		score float64
	}
	var candidates []pair
	for ri, r := range receipt {
		for oi, o := range order {
			s := sim(r.Description, o.Name)
			if s >= itemMatchThreshold {
				candidates = append(candidates, pair{r: ri, o: oi, score: s})
			}
		}
	}

	// Highest-similarity pairs claim their lines first.
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].score > candidates[j-1].score; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}

	usedR := make(map[int]bool)
	usedO := make(map[int]bool)
	cmp := itemsComparison{}
	for _, c := range candidates {
		if usedR[c.r] || usedO[c.o] {
			continue
		}
		usedR[c.r] = true
		usedO[c.o] = true
		cmp.matched++

		r, o := receipt[c.r], order[c.o]
		if r.Quantity != 0 && math.Abs(r.Quantity-float64(o.Quantity)) > 0.01 {
			cmp.qtyOff++
		}
		if r.UnitPrice != 0 && !pricesClose(r.UnitPrice, o.UnitPrice) {
			cmp.priceOff++
		}
	}

	cmp.extra = len(receipt) - cmp.matched
	cmp.missing = len(order) - cmp.matched

	base := float64(cmp.matched) / math.Max(float64(len(receipt)), float64(len(order)))
	score := base -
		float64(cmp.qtyOff)*quantityPenalty -
		float64(cmp.priceOff)*pricePenalty -
		float64(cmp.extra)*extraPenalty -
		float64(cmp.missing)*missingPenalty
	cmp.score = math.Max(0, score)
	return cmp
}

// pricesClose tolerates rounding noise of up to one percent.
func pricesClose(a, b float64) bool {
	diff := math.Abs(a - b)
	if diff <= 0.01 {
		return true
	}
	denom := math.Max(math.Abs(a), math.Abs(b))
	if denom == 0 {
		return true
	}
	return diff/denom <= 0.01
}
