package order

import (
	"database/sql"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/procurehq/p2p-engine/internal/apperrors"
)

// numberPrefix is the constant leader of every PO number.
const numberPrefix = "PO-"

// maxSuffixRedraws bounds how often a colliding random suffix is redrawn
// before allocation gives up.
const defaultMaxRedraws = 10

// numberStore is the slice of order storage the allocator needs.
type numberStore interface {
	NextSequence(tx *sql.Tx, yearPrefix string) (int64, error)
	PONumberExists(tx *sql.Tx, poNumber string) (bool, error)
}

// numberAllocator produces unique PO numbers of the form
// PO-<4-digit year><6-digit sequence><3-digit random suffix>.
type numberAllocator struct {
	orders      numberStore
	maxAttempts int
	now         func() time.Time
	randDigits  func() int
}

func newNumberAllocator(orders numberStore, maxAttempts int) *numberAllocator {
	if maxAttempts < 1 {
		maxAttempts = defaultMaxRedraws
	}
	return &numberAllocator{
		orders:      orders,
		maxAttempts: maxAttempts,
		now:         time.Now,
		randDigits:  func() int { return rand.IntN(1000) },
	}
}

// allocate reserves the next PO number inside the caller's transaction.
// The sequence increments per calendar year; only the random suffix is
// redrawn on collision.
func (a *numberAllocator) allocate(tx *sql.Tx) (string, error) {
	year := a.now().UTC().Year()
	yearPrefix := fmt.Sprintf("%s%04d", numberPrefix, year)

	seq, err := a.orders.NextSequence(tx, yearPrefix)
	if err != nil {
		return "", apperrors.Transient("DB_READ", "failed to derive order sequence").WithCause(err)
	}

	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		candidate := fmt.Sprintf("%s%06d%03d", yearPrefix, seq, a.randDigits())

		exists, err := a.orders.PONumberExists(tx, candidate)
		if err != nil {
			return "", apperrors.Transient("DB_READ", "failed to check order number").WithCause(err)
		}
		if !exists {
			return candidate, nil
		}
	}

	return "", apperrors.Fatal("PO_NUMBER_EXHAUSTED", "could not allocate a unique order number").
		WithDetail("year", year).
		WithDetail("sequence", seq).
		WithDetail("attempts", a.maxAttempts)
}
