package types

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes application errors. The taxonomy follows the failure
// containment design: each code maps to a containment boundary (source,
// domain commit, evaluation cycle, publish attempt) so callers can decide
// whether to retry, degrade, or dead-letter without string matching.
type ErrorCode string

const (
	// Source fetch failures. Transient errors are retried by the adapter's
	// own backoff and then surface as a source-level failure for the cycle.
	ErrCodeFetchTransient ErrorCode = "fetch_transient"
	ErrCodeFetchTimeout   ErrorCode = "fetch_timeout"
	ErrCodeFetchUpstream  ErrorCode = "fetch_upstream_unavailable"

	// Schema mismatch or unparseable payload. The source is marked failed
	// for the cycle; the previous snapshot is retained.
	ErrCodeMalformedResponse ErrorCode = "malformed_response"

	// Persistence write failure. Aborts only the affected domain's commit.
	ErrCodePersistence ErrorCode = "persistence_failure"

	// Snapshot stale or absent at evaluation time. Evaluation for the
	// domain is skipped this cycle with no TriggerState mutation.
	ErrCodeEvaluationDataMissing ErrorCode = "evaluation_data_missing"

	// Notification delivery failure. Retried, then dead-lettered.
	ErrCodePublish ErrorCode = "publish_failure"

	// Search index write failure.
	ErrCodeIndexSync ErrorCode = "index_sync_failure"

	ErrCodeConfigInvalid ErrorCode = "config_invalid"
	ErrCodeInternal      ErrorCode = "internal_unexpected"
)

// Retryable reports whether an error of this code is worth retrying within
// the same cycle. Malformed payloads and persistence conflicts are not:
// retrying the same bytes yields the same failure.
func (c ErrorCode) Retryable() bool {
	switch c {
	case ErrCodeFetchTransient, ErrCodeFetchTimeout, ErrCodeFetchUpstream, ErrCodePublish:
		return true
	default:
		return false
	}
}

// AppError is the standard application error type. All domain failures are
// expressed as AppError to enable consistent code-based handling and error
// chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the error is transient.
func (e *AppError) Retryable() bool {
	return e.Code.Retryable()
}

// NewAppError creates an AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// CodeOf extracts the ErrorCode from an error chain. Errors that are not
// AppErrors report ErrCodeInternal.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}
