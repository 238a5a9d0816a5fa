// Package limits evaluates a workspace's usage counters against its plan's
// resource caps. Pure function of (usage, plan): no I/O, no mutation.
//
// Callers block a new write of a specific resource kind on critical (a
// resource-scoped check, distinct from the workspace-wide access guard) and
// drive upgrade prompts off warning/critical.
package limits

import (
	"courtside-billing/internal/billing/catalog"
	"courtside-billing/internal/models"
)

// State classifies one resource's usage against its cap.
type State string

const (
	StateOK       State = "ok"
	StateWarning  State = "warning"
	StateCritical State = "critical"
)

// Thresholds, applied as used/limit with inclusive lower bounds:
// below 0.70 ok, from 0.70 warning, from 1.00 critical.
const (
	warningThreshold  = 0.70
	criticalThreshold = 1.00
)

// ResourceLimit is one resource's evaluation result.
type ResourceLimit struct {
	Used  int64 `json:"used"`
	Limit int64 `json:"limit"`
	State State `json:"state"`
}

// Limiter evaluates workspaces against the plan catalog.
type Limiter struct {
	catalog *catalog.Catalog
}

func New(cat *catalog.Catalog) *Limiter {
	return &Limiter{catalog: cat}
}

// Evaluate classifies every tracked resource for the workspace's plan.
func (l *Limiter) Evaluate(ws *models.Workspace) map[models.ResourceKind]ResourceLimit {
	caps := l.catalog.Limits(ws.Plan)

	out := make(map[models.ResourceKind]ResourceLimit, 3)
	for kind, used := range ws.Usage.Counters() {
		limit := caps.Get(kind)
		out[kind] = ResourceLimit{
			Used:  used,
			Limit: limit,
			State: classify(used, limit),
		}
	}
	return out
}

// CanCreate reports whether one more unit of the given resource may be
// created. Critical blocks the write; warning does not.
func (l *Limiter) CanCreate(ws *models.Workspace, kind models.ResourceKind) bool {
	used := ws.Usage.Counters()[kind]
	limit := l.catalog.Limits(ws.Plan).Get(kind)
	return classify(used, limit) != StateCritical
}

func classify(used, limit int64) State {
	if limit == catalog.Unlimited {
		return StateOK
	}
	if limit == 0 {
		if used > 0 {
			return StateCritical
		}
		return StateOK
	}

	ratio := float64(used) / float64(limit)
	switch {
	case ratio >= criticalThreshold:
		return StateCritical
	case ratio >= warningThreshold:
		return StateWarning
	default:
		return StateOK
	}
}

// WarningMessage returns upgrade-prompt copy for a resource in warning or
// critical state, or empty for ok.
func WarningMessage(kind models.ResourceKind, state State) string {
	if state == StateOK {
		return ""
	}

	switch kind {
	case models.ResourcePlayers:
		if state == StateWarning {
			return "You are approaching your player limit."
		}
		return "Player limit reached. Upgrade your plan to continue adding athletes."
	case models.ResourceGamesPerMonth:
		if state == StateWarning {
			return "You are nearing your monthly games limit."
		}
		return "Monthly games limit reached. Upgrade your plan to continue adding games."
	case models.ResourceStorageMB:
		if state == StateWarning {
			return "You are nearing your storage limit."
		}
		return "Storage limit reached. Upgrade your plan to upload more media."
	default:
		return "Plan limit reached. Upgrade your plan to continue."
	}
}
