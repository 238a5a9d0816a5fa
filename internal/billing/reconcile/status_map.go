// internal/billing/reconcile/status_map.go
package reconcile

import "courtside-billing/internal/models"

// externalStatusMap translates provider subscription statuses into internal
// workspace statuses. Anything unlisted maps to suspended so an unknown
// provider state can never widen access.
var externalStatusMap = map[string]models.WorkspaceStatus{
	"trialing":           models.StatusTrial,
	"active":             models.StatusActive,
	"past_due":           models.StatusPastDue,
	"canceled":           models.StatusCanceled,
	"unpaid":             models.StatusCanceled,
	"incomplete":         models.StatusPastDue,
	"incomplete_expired": models.StatusCanceled,
	"paused":             models.StatusSuspended,
}

func mapExternalStatus(external string) models.WorkspaceStatus {
	if s, ok := externalStatusMap[external]; ok {
		return s
	}
	return models.StatusSuspended
}
