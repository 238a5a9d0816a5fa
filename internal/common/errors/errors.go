// Package errors provides the standardized error taxonomy for the billing
// engine. Engine failures carry a stable code and a retryability flag so the
// transport layer (webhook redelivery, replay tooling, auditor) can decide
// whether a retry is worthwhile.
package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Non-retryable, caller-surfaced. Reject immediately, mutate nothing.
	ErrCodeUnknownPriceID    ErrorCode = "UNKNOWN_PRICE_ID"
	ErrCodeWorkspaceNotFound ErrorCode = "WORKSPACE_NOT_FOUND"
	ErrCodeInvalidFact       ErrorCode = "INVALID_BILLING_FACT"

	// Transient storage failures. The caller owns retry policy; at-least-once
	// webhook redelivery is expected and is exactly why the reconcile
	// idempotency guard exists.
	ErrCodeStorageFailed      ErrorCode = "STORAGE_FAILED"
	ErrCodeLedgerAppendFailed ErrorCode = "LEDGER_APPEND_FAILED"

	ErrCodeProviderFetchFailed ErrorCode = "PROVIDER_FETCH_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// NewUnknownPriceIDError creates a non-retryable error for a price id the
// plan catalog does not recognize. Do not guess a plan; surface for
// operator attention.
func NewUnknownPriceIDError(priceID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnknownPriceID,
		Message:   "External price id is not mapped to any plan",
		Details:   fmt.Sprintf("priceId: %s", priceID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewWorkspaceNotFoundError creates a non-retryable missing-workspace error.
func NewWorkspaceNotFoundError(workspaceID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeWorkspaceNotFound,
		Message:   "Workspace not found",
		Details:   fmt.Sprintf("workspaceId: %s", workspaceID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidFactError creates a non-retryable error for a malformed billing fact.
func NewInvalidFactError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidFact,
		Message:   "Billing fact failed validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStorageFailedError wraps a transient datastore failure.
func NewStorageFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStorageFailed,
		Message:   "Datastore operation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewLedgerAppendFailedError wraps a transient ledger write failure.
func NewLedgerAppendFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeLedgerAppendFailed,
		Message:   "Ledger append failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewProviderFetchFailedError wraps a failed billing-provider API call.
func NewProviderFetchFailedError(subscriptionID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeProviderFetchFailed,
		Message:   "Billing provider fetch failed",
		Details:   fmt.Sprintf("subscriptionId: %s, error: %s", subscriptionID, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// CodeOf returns the error code carried by err, or empty when err is not a
// StandardError.
func CodeOf(err error) ErrorCode {
	var se *StandardError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// IsRetryable reports whether the caller should retry the failed operation.
// Unknown error shapes are treated as retryable; the idempotency guard makes
// a redundant retry harmless.
func IsRetryable(err error) bool {
	var se *StandardError
	if stderrors.As(err, &se) {
		return se.Retryable
	}
	return true
}
