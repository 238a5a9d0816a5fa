package access

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courtside-billing/internal/billing/policy"
	"courtside-billing/internal/models"
)

func workspaceWithStatus(status models.WorkspaceStatus) *models.Workspace {
	return &models.Workspace{
		ID:     "ws-1",
		Status: status,
		Plan:   models.PlanStarter,
	}
}

func TestAssertWritable_Allowed(t *testing.T) {
	assert.NoError(t, AssertWritable(workspaceWithStatus(models.StatusActive)))
	assert.NoError(t, AssertWritable(workspaceWithStatus(models.StatusTrial)))
}

func TestAssertWritable_Blocked(t *testing.T) {
	tests := []struct {
		status   models.WorkspaceStatus
		wantCode string
		wantStep policy.NextStep
	}{
		{models.StatusPastDue, CodePaymentPastDue, policy.StepUpdatePayment},
		{models.StatusCanceled, CodeSubscriptionCanceled, policy.StepUpgrade},
		{models.StatusSuspended, CodeAccountSuspended, policy.StepContactSupport},
		{models.StatusDeleted, CodeWorkspaceDeleted, policy.StepContactSupport},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			err := AssertWritable(workspaceWithStatus(tt.status))
			require.Error(t, err)

			var accessErr *AccessError
			require.True(t, errors.As(err, &accessErr))
			assert.Equal(t, tt.wantCode, accessErr.Code)
			assert.Equal(t, tt.wantStep, accessErr.NextStep)
			assert.Equal(t, http.StatusForbidden, accessErr.HTTPStatus)
			assert.NotEmpty(t, accessErr.UserMessage)
		})
	}
}

func TestAssertWritable_ExpiredTrial(t *testing.T) {
	ws := workspaceWithStatus(models.StatusTrial)
	expired := time.Now().Add(-24 * time.Hour)
	ws.TrialEndsAt = &expired

	err := AssertWritable(ws)
	require.Error(t, err)

	var accessErr *AccessError
	require.True(t, errors.As(err, &accessErr))
	assert.Equal(t, CodeTrialExpired, accessErr.Code)
	assert.Equal(t, policy.StepUpgrade, accessErr.NextStep)
}

func TestAssertWritable_ActiveTrial(t *testing.T) {
	ws := workspaceWithStatus(models.StatusTrial)
	future := time.Now().Add(24 * time.Hour)
	ws.TrialEndsAt = &future

	assert.NoError(t, AssertWritable(ws))
}

func TestAssertReadable_GracePeriod(t *testing.T) {
	// Past-due keeps read access during the grace period.
	assert.NoError(t, AssertReadable(workspaceWithStatus(models.StatusPastDue)))
	assert.NoError(t, AssertReadable(workspaceWithStatus(models.StatusActive)))
	assert.NoError(t, AssertReadable(workspaceWithStatus(models.StatusTrial)))
}

func TestAssertReadable_Blocked(t *testing.T) {
	for _, status := range []models.WorkspaceStatus{
		models.StatusCanceled, models.StatusSuspended, models.StatusDeleted,
	} {
		err := AssertReadable(workspaceWithStatus(status))
		require.Error(t, err, "status %s should block reads", status)

		var accessErr *AccessError
		require.True(t, errors.As(err, &accessErr))
		assert.Equal(t, http.StatusForbidden, accessErr.HTTPStatus)
	}
}

func TestAssertPaymentCurrent(t *testing.T) {
	// past_due is blocked here even though plain writes get the same answer
	// and reads would still succeed.
	err := AssertPaymentCurrent(workspaceWithStatus(models.StatusPastDue))
	require.Error(t, err)

	var accessErr *AccessError
	require.True(t, errors.As(err, &accessErr))
	assert.Equal(t, CodePaymentPastDue, accessErr.Code)

	assert.NoError(t, AssertPaymentCurrent(workspaceWithStatus(models.StatusActive)))
}

func TestAccessErrorToJSON(t *testing.T) {
	err := AssertWritable(workspaceWithStatus(models.StatusCanceled))
	var accessErr *AccessError
	require.True(t, errors.As(err, &accessErr))

	payload := accessErr.ToJSON()
	assert.Equal(t, CodeSubscriptionCanceled, payload["error"])
	assert.Equal(t, "canceled", payload["status"])
	assert.NotEmpty(t, payload["message"])
}
