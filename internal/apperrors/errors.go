package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry and transport mapping decisions.
type Kind string

const (
	KindPermission Kind = "PERMISSION_DENIED"
	KindValidation Kind = "VALIDATION_ERROR"
	KindConflict   Kind = "CONFLICT"
	KindNotFound   Kind = "NOT_FOUND"
	KindTransient  Kind = "TRANSIENT"
	KindFatal      Kind = "FATAL"
)

// Sentinel errors for errors.Is checks across package boundaries.
var (
	ErrPermission = errors.New("permission denied")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("resource not found")
	ErrTransient  = errors.New("transient failure")
	ErrFatal      = errors.New("fatal failure")
)

var sentinels = map[Kind]error{
	KindPermission: ErrPermission,
	KindValidation: ErrValidation,
	KindConflict:   ErrConflict,
	KindNotFound:   ErrNotFound,
	KindTransient:  ErrTransient,
	KindFatal:      ErrFatal,
}

// Error is a classified application error with a machine-readable code,
// a human-readable message, and optional structured details.
type Error struct {
	Kind    Kind                   `json:"-"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes both the kind sentinel and the wrapped cause so that
// errors.Is works against either.
func (e *Error) Unwrap() []error {
	out := []error{sentinels[e.Kind]}
	if e.cause != nil {
		out = append(out, e.cause)
	}
	return out
}

// WithCause attaches an underlying error.
func (e *Error) WithCause(cause error) *Error {
	e.cause = cause
	return e
}

// WithDetail adds one structured detail entry.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a classified error. Code defaults to the kind string when empty.
func New(kind Kind, code, message string) *Error {
	if code == "" {
		code = string(kind)
	}
	return &Error{Kind: kind, Code: code, Message: message}
}

func Permission(code, message string) *Error { return New(KindPermission, code, message) }
func Validation(code, message string) *Error { return New(KindValidation, code, message) }
func Conflict(code, message string) *Error   { return New(KindConflict, code, message) }
func NotFound(code, message string) *Error   { return New(KindNotFound, code, message) }
func Transient(code, message string) *Error  { return New(KindTransient, code, message) }
func Fatal(code, message string) *Error      { return New(KindFatal, code, message) }

// IsRetryable reports whether the failure may succeed on retry.
// Only transient errors are retryable; everything else is terminal.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// KindOf extracts the kind of a classified error. Unclassified errors
// report KindFatal so callers fail safe instead of retrying blindly.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindFatal
}

// AsError extracts the classified error, wrapping unclassified ones as fatal.
func AsError(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Fatal("INTERNAL", err.Error()).WithCause(err)
}
