// Package policy maps a workspace status to what the tenant may do about it.
// Pure lookup tables, no state, no I/O; every function is total over the six
// workspace statuses.
package policy

import "courtside-billing/internal/models"

// NextStep is the action a tenant should take to restore full access.
type NextStep string

const (
	StepNone           NextStep = "none"
	StepUpdatePayment  NextStep = "update_payment"
	StepUpgrade        NextStep = "upgrade"
	StepContactSupport NextStep = "contact_support"
)

// IsReadable reports whether the workspace's data may still be read.
// Past-due tenants keep read access during the grace period so they can see
// their own data while fixing payment.
func IsReadable(status models.WorkspaceStatus) bool {
	switch status {
	case models.StatusTrial, models.StatusActive, models.StatusPastDue:
		return true
	default:
		return false
	}
}

// IsWritable reports whether mutating operations are allowed. Writes are
// blocked the moment payment fails, even though reads continue.
func IsWritable(status models.WorkspaceStatus) bool {
	switch status {
	case models.StatusTrial, models.StatusActive:
		return true
	default:
		return false
	}
}

// ForStep returns the action that restores access for a blocked status.
func ForStep(status models.WorkspaceStatus) NextStep {
	switch status {
	case models.StatusPastDue:
		return StepUpdatePayment
	case models.StatusCanceled:
		return StepUpgrade
	case models.StatusSuspended, models.StatusDeleted:
		return StepContactSupport
	default:
		return StepNone
	}
}

// UserMessage returns the fixed, status-specific copy surfaced to the tenant.
func UserMessage(status models.WorkspaceStatus) string {
	switch status {
	case models.StatusPastDue:
		return "Your payment is past due. Please update your payment method to continue creating content."
	case models.StatusCanceled:
		return "Your subscription has been canceled. Please reactivate your subscription to continue."
	case models.StatusSuspended:
		return "Your account has been suspended. Please contact support for assistance."
	case models.StatusDeleted:
		return "This workspace has been deleted and is no longer accessible."
	default:
		return "Your workspace is in good standing."
	}
}
