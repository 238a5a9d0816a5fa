// internal/billing/ledger/models.go
package ledger

import (
	"time"

	"courtside-billing/internal/models"
)

// EntryType describes what happened in a ledger entry.
type EntryType string

const (
	TypeStatusChange     EntryType = "status_change"
	TypePlanChange       EntryType = "plan_change"
	TypeDriftCorrection  EntryType = "drift_correction"
	TypeReconcileNoop    EntryType = "reconcile_noop"
	TypeManualSuspension EntryType = "manual_suspension"
)

// Entry is one immutable row of the per-workspace billing ledger: the sole
// record of why a workspace is in its current state. Entries are created
// exclusively by the reconciliation engine at the moment a fact is applied,
// and are never mutated or deleted.
type Entry struct {
	ID              string                 `json:"id"`
	WorkspaceID     string                 `json:"workspaceId"`
	Timestamp       time.Time              `json:"timestamp"`
	Type            EntryType              `json:"type"`
	Source          models.FactSource      `json:"source"`
	StatusBefore    models.WorkspaceStatus `json:"statusBefore"`
	StatusAfter     models.WorkspaceStatus `json:"statusAfter"`
	PlanBefore      models.WorkspacePlan   `json:"planBefore"`
	PlanAfter       models.WorkspacePlan   `json:"planAfter"`
	ExternalEventID *string                `json:"externalEventId"` // nil for manual/auditor actions
	Note            string                 `json:"note,omitempty"`
}

// Changed reports whether the entry recorded an actual transition rather
// than an informational no-op.
func (e *Entry) Changed() bool {
	return e.StatusBefore != e.StatusAfter || e.PlanBefore != e.PlanAfter
}
