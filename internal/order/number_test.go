package order

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/procurehq/p2p-engine/internal/apperrors"
)

type fakeNumberStore struct {
	nextSeq  int64
	existing map[string]bool
}

func (f *fakeNumberStore) NextSequence(tx *sql.Tx, yearPrefix string) (int64, error) {
	return f.nextSeq, nil
}

func (f *fakeNumberStore) PONumberExists(tx *sql.Tx, poNumber string) (bool, error) {
	return f.existing[poNumber], nil
}

func fixedTime() time.Time {
	return time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)
}

func TestAllocate_Format(t *testing.T) {
	allocator := newNumberAllocator(&fakeNumberStore{nextSeq: 42}, 10)
	allocator.now = fixedTime
	allocator.randDigits = func() int { return 7 }

	number, err := allocator.allocate(nil)
	if err != nil {
		t.Fatalf("allocate() error = %v", err)
	}
	if number != "PO-2026000042007" {
		t.Errorf("allocate() = %q, want PO-2026000042007", number)
	}
}

func TestAllocate_RedrawsSuffixOnCollision(t *testing.T) {
	store := &fakeNumberStore{
		nextSeq:  1,
		existing: map[string]bool{"PO-2026000001000": true},
	}
	allocator := newNumberAllocator(store, 10)
	allocator.now = fixedTime

	draws := 0
	allocator.randDigits = func() int {
		draws++
		return draws - 1 // 0 collides, 1 is free
	}

	number, err := allocator.allocate(nil)
	if err != nil {
		t.Fatalf("allocate() error = %v", err)
	}
	if number != "PO-2026000001001" {
		t.Errorf("allocate() = %q, want the redrawn suffix", number)
	}
	if draws != 2 {
		t.Errorf("suffix draws = %d, want 2", draws)
	}
}

func TestAllocate_ExhaustedAttemptsFatal(t *testing.T) {
	store := &fakeNumberStore{
		nextSeq:  1,
		existing: map[string]bool{"PO-2026000001007": true},
	}
	allocator := newNumberAllocator(store, 10)
	allocator.now = fixedTime
	allocator.randDigits = func() int { return 7 }

	draws := 0
	allocator.randDigits = func() int {
		draws++
		return 7
	}

	_, err := allocator.allocate(nil)
	if !errors.Is(err, apperrors.ErrFatal) {
		t.Fatalf("allocate() error = %v, want fatal error", err)
	}
	if draws != 10 {
		t.Errorf("suffix draws = %d, want exactly 10 before giving up", draws)
	}
}
