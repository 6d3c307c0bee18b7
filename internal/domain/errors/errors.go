// Package errors provides domain-specific errors for the wikisync application.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common domain error conditions.
var (
	ErrNotFound                 = errors.New("not found")
	ErrStorage                  = errors.New("local storage failure")
	ErrUnauthenticated          = errors.New("remote rejected credentials")
	ErrForbidden                = errors.New("remote denied access")
	ErrRateLimited              = errors.New("remote rate limit exceeded")
	ErrTransientNetwork         = errors.New("transient network error")
	ErrRevisionConflict         = errors.New("revision conflict")
	ErrManualResolutionRequired = errors.New("manual resolution required")
	ErrIndexUnreadable          = errors.New("table of contents unreadable")
	ErrRemoteUnavailable        = errors.New("remote store unavailable")
	ErrCycleInProgress          = errors.New("sync cycle already in progress")
	ErrResolutionAlreadySet     = errors.New("conflict resolution already set")
	ErrInvalidDocumentID        = errors.New("invalid document ID")
	ErrUnknownStrategy          = errors.New("unknown conflict strategy")
)

// ErrorCode categorizes errors for handling and reporting.
type ErrorCode string

const (
	CodeValidation       ErrorCode = "VALIDATION"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeStorage          ErrorCode = "STORAGE"
	CodeUnauthenticated  ErrorCode = "UNAUTHENTICATED"
	CodeForbidden        ErrorCode = "FORBIDDEN"
	CodeRateLimited      ErrorCode = "RATE_LIMITED"
	CodeTransient        ErrorCode = "TRANSIENT"
	CodeRevisionConflict ErrorCode = "REVISION_CONFLICT"
	CodeManual           ErrorCode = "MANUAL_RESOLUTION"
	CodeStructural       ErrorCode = "STRUCTURAL"
	CodeConfiguration    ErrorCode = "CONFIG"
)

// Context keys understood by the classification helpers.
const (
	ContextRetryAfter = "retry_after"
	ContextPath       = "path"
	ContextStatus     = "http_status"
)

// SyncError wraps errors with additional context for debugging and handling.
type SyncError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error returns a formatted error string including the code, message, and cause if present.
func (e *SyncError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for use with errors.Is and errors.As.
func (e *SyncError) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel that corresponds to the error's code, so callers can
// test errors.Is(err, ErrRevisionConflict) even when the cause is a transport error.
func (e *SyncError) Is(target error) bool {
	if s, ok := codeSentinels[e.Code]; ok {
		return s == target
	}
	return false
}

var codeSentinels = map[ErrorCode]error{
	CodeNotFound:         ErrNotFound,
	CodeStorage:          ErrStorage,
	CodeUnauthenticated:  ErrUnauthenticated,
	CodeForbidden:        ErrForbidden,
	CodeRateLimited:      ErrRateLimited,
	CodeTransient:        ErrTransientNetwork,
	CodeRevisionConflict: ErrRevisionConflict,
	CodeManual:           ErrManualResolutionRequired,
}

// NewError creates a new SyncError with the given code, message, and optional cause.
func NewError(code ErrorCode, message string, cause error) *SyncError {
	return &SyncError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds a key-value pair to the error's context and returns the error.
// This allows for method chaining when adding multiple context values.
func WithContext(err *SyncError, key string, value interface{}) *SyncError {
	if err.Context == nil {
		err.Context = make(map[string]interface{})
	}
	err.Context[key] = value
	return err
}

// Storage wraps a local persistence failure.
func Storage(op string, cause error) *SyncError {
	return NewError(CodeStorage, op, cause)
}

// Transient wraps a retryable network failure.
func Transient(message string, cause error) *SyncError {
	return NewError(CodeTransient, message, cause)
}

// RateLimited builds a rate limit error carrying the server's requested delay.
func RateLimited(message string, retryAfter time.Duration) *SyncError {
	return WithContext(NewError(CodeRateLimited, message, nil), ContextRetryAfter, retryAfter)
}

// Structural wraps a failure that aborts a whole sync cycle.
func Structural(message string, cause error) *SyncError {
	return NewError(CodeStructural, message, cause)
}

// RevisionConflict builds an optimistic concurrency failure for path.
func RevisionConflict(path, expected string) *SyncError {
	err := NewError(CodeRevisionConflict, fmt.Sprintf("stale revision %q", expected), nil)
	return WithContext(err, ContextPath, path)
}

// NotFound builds a not-found error for path.
func NotFound(path string) *SyncError {
	return WithContext(NewError(CodeNotFound, fmt.Sprintf("%s not found", path), nil), ContextPath, path)
}

// CodeOf returns the code of the first SyncError in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsRetryable reports whether err is worth retrying after a backoff.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransientNetwork) || errors.Is(err, ErrRateLimited)
}

// IsAuth reports whether err requires operator action on credentials.
func IsAuth(err error) bool {
	return errors.Is(err, ErrUnauthenticated) || errors.Is(err, ErrForbidden)
}

// RetryAfter returns the delay requested by a rate limit error, or zero.
func RetryAfter(err error) time.Duration {
	var se *SyncError
	if !errors.As(err, &se) || se.Context == nil {
		return 0
	}
	if d, ok := se.Context[ContextRetryAfter].(time.Duration); ok {
		return d
	}
	return 0
}

// Is reports whether err matches target using errors.Is semantics.
// This is a convenience wrapper around the standard library's errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target and sets target to that error value.
// This is a convenience wrapper around the standard library's errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
