// internal/models/workspace.go
package models

import "time"

// WorkspaceStatus is the internal subscription status of a tenant workspace.
// It is mutated only by the reconciliation engine.
type WorkspaceStatus string

const (
	StatusTrial     WorkspaceStatus = "trial"
	StatusActive    WorkspaceStatus = "active"
	StatusPastDue   WorkspaceStatus = "past_due"
	StatusCanceled  WorkspaceStatus = "canceled"
	StatusSuspended WorkspaceStatus = "suspended"
	StatusDeleted   WorkspaceStatus = "deleted"
)

// AllStatuses lists every valid workspace status.
var AllStatuses = []WorkspaceStatus{
	StatusTrial,
	StatusActive,
	StatusPastDue,
	StatusCanceled,
	StatusSuspended,
	StatusDeleted,
}

// Valid reports whether s is a known workspace status.
func (s WorkspaceStatus) Valid() bool {
	switch s {
	case StatusTrial, StatusActive, StatusPastDue, StatusCanceled, StatusSuspended, StatusDeleted:
		return true
	}
	return false
}

// WorkspacePlan is the billing tier of a workspace.
// It is mutated only by the reconciliation engine.
type WorkspacePlan string

const (
	PlanFree    WorkspacePlan = "free"
	PlanStarter WorkspacePlan = "starter"
	PlanPlus    WorkspacePlan = "plus"
	PlanPro     WorkspacePlan = "pro"
)

// Valid reports whether p is a known workspace plan.
func (p WorkspacePlan) Valid() bool {
	switch p {
	case PlanFree, PlanStarter, PlanPlus, PlanPro:
		return true
	}
	return false
}

// ResourceKind identifies a plan-limited resource tracked per workspace.
type ResourceKind string

const (
	ResourcePlayers       ResourceKind = "players"
	ResourceGamesPerMonth ResourceKind = "games_per_month"
	ResourceStorageMB     ResourceKind = "storage_mb"
)

// BillingInfo holds the external provider identifiers for a workspace.
// All fields are nil until the tenant ever subscribes.
type BillingInfo struct {
	StripeCustomerID     *string
	StripeSubscriptionID *string
	CurrentPeriodEnd     *time.Time
}

// Usage holds the resource counters maintained by the application layer
// (player/game CRUD). The billing core reads them and never mutates them.
type Usage struct {
	PlayerCount    int64
	GamesThisMonth int64
	StorageMB      int64
}

// Counters returns the usage counters keyed by resource kind.
func (u Usage) Counters() map[ResourceKind]int64 {
	return map[ResourceKind]int64{
		ResourcePlayers:       u.PlayerCount,
		ResourceGamesPerMonth: u.GamesThisMonth,
		ResourceStorageMB:     u.StorageMB,
	}
}

// Workspace is one tenant: the unit of billing and access control.
type Workspace struct {
	ID          string
	Name        string
	OwnerEmail  string
	Status      WorkspaceStatus
	Plan        WorkspacePlan
	TrialEndsAt *time.Time
	Billing     BillingInfo
	Usage       Usage
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Subscribed reports whether the workspace has ever been linked to an
// external subscription. Only subscribed workspaces are swept by the
// drift auditor.
func (w *Workspace) Subscribed() bool {
	return w.Billing.StripeSubscriptionID != nil && *w.Billing.StripeSubscriptionID != ""
}
