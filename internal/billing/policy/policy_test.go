package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"courtside-billing/internal/models"
)

func TestReadableWritableTable(t *testing.T) {
	tests := []struct {
		status   models.WorkspaceStatus
		readable bool
		writable bool
	}{
		{models.StatusTrial, true, true},
		{models.StatusActive, true, true},
		{models.StatusPastDue, true, false},
		{models.StatusCanceled, false, false},
		{models.StatusSuspended, false, false},
		{models.StatusDeleted, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.readable, IsReadable(tt.status))
			assert.Equal(t, tt.writable, IsWritable(tt.status))
		})
	}
}

// Writable must imply readable for every status: there is no state where a
// tenant can mutate data it cannot see.
func TestWritableImpliesReadable(t *testing.T) {
	for _, status := range models.AllStatuses {
		if IsWritable(status) {
			assert.True(t, IsReadable(status), "status %s is writable but not readable", status)
		}
	}
}

func TestForStep(t *testing.T) {
	assert.Equal(t, StepUpdatePayment, ForStep(models.StatusPastDue))
	assert.Equal(t, StepUpgrade, ForStep(models.StatusCanceled))
	assert.Equal(t, StepContactSupport, ForStep(models.StatusSuspended))
	assert.Equal(t, StepContactSupport, ForStep(models.StatusDeleted))
	assert.Equal(t, StepNone, ForStep(models.StatusTrial))
	assert.Equal(t, StepNone, ForStep(models.StatusActive))
}

func TestUserMessageDefinedForAllStatuses(t *testing.T) {
	for _, status := range models.AllStatuses {
		assert.NotEmpty(t, UserMessage(status), "no user message for status %s", status)
	}
}
