// Package access is the synchronous guard on every tenant-scoped request
// path. It reads the already-loaded workspace record and the status policy;
// it performs no I/O and must complete in microseconds.
//
// Denials are expected steady-state outcomes, not engine failures: callers
// log them at warn, surface AccessError.ToJSON() and move on.
package access

import (
	"fmt"
	"net/http"
	"time"

	"courtside-billing/internal/billing/policy"
	"courtside-billing/internal/models"
)

// Error codes for blocked workspaces. All map to HTTP 403.
const (
	CodePaymentPastDue       = "PAYMENT_PAST_DUE"
	CodeSubscriptionCanceled = "SUBSCRIPTION_CANCELED"
	CodeAccountSuspended     = "ACCOUNT_SUSPENDED"
	CodeWorkspaceDeleted     = "WORKSPACE_DELETED"
	CodeTrialExpired         = "TRIAL_EXPIRED"
)

// AccessError is the typed denial raised when a workspace's status forbids
// the requested operation.
type AccessError struct {
	Code        string                 `json:"code"`
	Status      models.WorkspaceStatus `json:"status"`
	HTTPStatus  int                    `json:"httpStatus"`
	UserMessage string                 `json:"userMessage"`
	NextStep    policy.NextStep        `json:"nextStep"`
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("AccessError[%s]: workspace status %s", e.Code, e.Status)
}

// ToJSON returns the payload surfaced to callers: {error, message, status}.
func (e *AccessError) ToJSON() map[string]interface{} {
	return map[string]interface{}{
		"error":   e.Code,
		"message": e.UserMessage,
		"status":  string(e.Status),
	}
}

func deny(code string, status models.WorkspaceStatus) *AccessError {
	return &AccessError{
		Code:        code,
		Status:      status,
		HTTPStatus:  http.StatusForbidden,
		UserMessage: policy.UserMessage(status),
		NextStep:    policy.ForStep(status),
	}
}

func codeForStatus(status models.WorkspaceStatus) string {
	switch status {
	case models.StatusPastDue:
		return CodePaymentPastDue
	case models.StatusCanceled:
		return CodeSubscriptionCanceled
	case models.StatusSuspended:
		return CodeAccountSuspended
	case models.StatusDeleted:
		return CodeWorkspaceDeleted
	default:
		return CodeAccountSuspended
	}
}

// AssertWritable returns an AccessError when the workspace's status forbids
// mutating operations. Call it on every mutating entrypoint that touches
// tenant-scoped data.
func AssertWritable(ws *models.Workspace) error {
	if !policy.IsWritable(ws.Status) {
		return deny(codeForStatus(ws.Status), ws.Status)
	}

	// A trial that has run out blocks writes even though the status enum
	// still says trial; the reconciliation engine only moves the status
	// once billing reports a subscription.
	if ws.Status == models.StatusTrial && ws.TrialEndsAt != nil && time.Now().After(*ws.TrialEndsAt) {
		e := deny(CodeTrialExpired, ws.Status)
		e.UserMessage = "Your free trial has ended. Please choose a plan to continue."
		e.NextStep = policy.StepUpgrade
		return e
	}

	return nil
}

// AssertReadable returns an AccessError when even read access is gone.
// Read paths use this and never AssertWritable: past-due tenants keep
// read access during the grace period.
func AssertReadable(ws *models.Workspace) error {
	if !policy.IsReadable(ws.Status) {
		return deny(codeForStatus(ws.Status), ws.Status)
	}
	return nil
}

// AssertPaymentCurrent gates premium features (exports, uploads) that are
// withheld as soon as payment is late, before the grace period ends.
func AssertPaymentCurrent(ws *models.Workspace) error {
	if ws.Status == models.StatusPastDue {
		return deny(CodePaymentPastDue, ws.Status)
	}
	return AssertWritable(ws)
}
