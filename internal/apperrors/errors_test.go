package apperrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorSentinelMatching(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		sentinel error
	}{
		{"permission", Permission("NOT_AN_APPROVER", "user cannot approve"), ErrPermission},
		{"validation", Validation("COMMENT_REQUIRED", "comment is required"), ErrValidation},
		{"conflict", Conflict("DECISION_EXISTS", "level already decided"), ErrConflict},
		{"not found", NotFound("REQUEST_NOT_FOUND", "no such request"), ErrNotFound},
		{"transient", Transient("DB_BUSY", "database is locked"), ErrTransient},
		{"fatal", Fatal("PO_NUMBER_EXHAUSTED", "could not allocate number"), ErrFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("errors.Is(%v, sentinel) = false, want true", tt.err)
			}
		})
	}
}

func TestErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Transient("DB_WRITE", "write failed").WithCause(cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should match the wrapped cause")
	}
	if !errors.Is(err, ErrTransient) {
		t.Error("errors.Is should still match the kind sentinel")
	}
}

func TestErrorWrappedThroughFmt(t *testing.T) {
	inner := Conflict("DECISION_EXISTS", "level already decided")
	wrapped := fmt.Errorf("approve request: %w", inner)

	var appErr *Error
	if !errors.As(wrapped, &appErr) {
		t.Fatal("errors.As should find the classified error")
	}
	if appErr.Code != "DECISION_EXISTS" {
		t.Errorf("Code = %q, want DECISION_EXISTS", appErr.Code)
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(Transient("DB_BUSY", "locked")) {
		t.Error("transient errors should be retryable")
	}
	if IsRetryable(Fatal("BROKEN", "broken")) {
		t.Error("fatal errors should not be retryable")
	}
	if IsRetryable(errors.New("plain")) {
		t.Error("unclassified errors should not be retryable")
	}
}

func TestKindOf(t *testing.T) {
	if got := KindOf(NotFound("X", "x")); got != KindNotFound {
		t.Errorf("KindOf = %v, want %v", got, KindNotFound)
	}
	if got := KindOf(errors.New("plain")); got != KindFatal {
		t.Errorf("KindOf(plain) = %v, want %v", got, KindFatal)
	}
}

func TestWithDetail(t *testing.T) {
	err := Validation("AMOUNT_INVALID", "amount must be positive").
		WithDetail("field", "amount").
		WithDetail("value", -5)

	if err.Details["field"] != "amount" {
		t.Errorf("Details[field] = %v, want amount", err.Details["field"])
	}
	if err.Details["value"] != -5 {
		t.Errorf("Details[value] = %v, want -5", err.Details["value"])
	}
}

func TestNewDefaultsCodeToKind(t *testing.T) {
	err := New(KindConflict, "", "collision")
	if err.Code != string(KindConflict) {
		t.Errorf("Code = %q, want %q", err.Code, KindConflict)
	}
}
