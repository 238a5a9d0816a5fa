// internal/store/workspace_postgres_test.go
package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courtside-billing/internal/common/errors"
	"courtside-billing/internal/common/logger"
	"courtside-billing/internal/models"
)

var workspaceTestColumns = []string{
	"id", "name", "owner_email", "status", "plan", "trial_ends_at",
	"stripe_customer_id", "stripe_subscription_id", "current_period_end",
	"player_count", "games_this_month", "storage_mb", "created_at", "updated_at",
}

func newWorkspaceTestStore(t *testing.T) (*WorkspaceStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewWorkspaceStore(db, logger.NewTestLogger(t)), mock
}

func TestGetScansWorkspace(t *testing.T) {
	store, mock := newWorkspaceTestStore(t)

	now := time.Now().UTC()
	periodEnd := now.Add(30 * 24 * time.Hour)
	mock.ExpectQuery("SELECT (.+) FROM workspaces WHERE id = \\$1").
		WithArgs("ws_1").
		WillReturnRows(sqlmock.NewRows(workspaceTestColumns).AddRow(
			"ws_1", "Hawks U14", "coach@example.com", "active", "plus", nil,
			"cus_123", "sub_456", periodEnd,
			int64(12), int64(40), int64(800), now, now,
		))

	w, err := store.Get(context.Background(), "ws_1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, w.Status)
	assert.Equal(t, models.PlanPlus, w.Plan)
	assert.Nil(t, w.TrialEndsAt)
	require.NotNil(t, w.Billing.StripeSubscriptionID)
	assert.Equal(t, "sub_456", *w.Billing.StripeSubscriptionID)
	require.NotNil(t, w.Billing.CurrentPeriodEnd)
	assert.True(t, w.Subscribed())
	assert.Equal(t, int64(12), w.Usage.PlayerCount)
}

func TestGetMissingWorkspace(t *testing.T) {
	store, mock := newWorkspaceTestStore(t)

	mock.ExpectQuery("SELECT (.+) FROM workspaces WHERE id = \\$1").
		WithArgs("ws_ghost").
		WillReturnRows(sqlmock.NewRows(workspaceTestColumns))

	_, err := store.Get(context.Background(), "ws_ghost")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeWorkspaceNotFound))
	assert.False(t, errors.IsRetryable(err))
}

func TestGetForUpdateUsesRowLock(t *testing.T) {
	store, mock := newWorkspaceTestStore(t)

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM workspaces WHERE id = \\$1 FOR UPDATE").
		WithArgs("ws_1").
		WillReturnRows(sqlmock.NewRows(workspaceTestColumns).AddRow(
			"ws_1", "Hawks U14", "coach@example.com", "trial", "starter", now.Add(24*time.Hour),
			nil, nil, nil,
			int64(2), int64(5), int64(10), now, now,
		))

	tx, err := store.db.Begin()
	require.NoError(t, err)

	w, err := store.GetForUpdate(context.Background(), tx, "ws_1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusTrial, w.Status)
	require.NotNil(t, w.TrialEndsAt)
	assert.False(t, w.Subscribed())
}

func TestApplyTransitionUpdatesRow(t *testing.T) {
	store, mock := newWorkspaceTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE workspaces").
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := store.db.Begin()
	require.NoError(t, err)

	err = store.ApplyTransition(context.Background(), tx, Transition{
		WorkspaceID: "ws_1",
		Status:      models.StatusActive,
		Plan:        models.PlanPlus,
	})
	require.NoError(t, err)
}

func TestApplyTransitionMissingWorkspace(t *testing.T) {
	store, mock := newWorkspaceTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE workspaces").
		WillReturnResult(sqlmock.NewResult(0, 0))

	tx, err := store.db.Begin()
	require.NoError(t, err)

	err = store.ApplyTransition(context.Background(), tx, Transition{
		WorkspaceID: "ws_ghost",
		Status:      models.StatusActive,
		Plan:        models.PlanStarter,
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeWorkspaceNotFound))
}

func TestRefreshPeriodEndUpdatesRow(t *testing.T) {
	store, mock := newWorkspaceTestStore(t)

	renewed := time.Now().UTC().Add(30 * 24 * time.Hour)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE workspaces\\s+SET current_period_end = \\$2").
		WithArgs("ws_1", renewed, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tx, err := store.db.Begin()
	require.NoError(t, err)

	err = store.RefreshPeriodEnd(context.Background(), tx, "ws_1", renewed)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshPeriodEndMissingWorkspace(t *testing.T) {
	store, mock := newWorkspaceTestStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE workspaces\\s+SET current_period_end = \\$2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	tx, err := store.db.Begin()
	require.NoError(t, err)

	err = store.RefreshPeriodEnd(context.Background(), tx, "ws_ghost", time.Now().UTC())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeWorkspaceNotFound))
}

func TestListWithSubscriptions(t *testing.T) {
	store, mock := newWorkspaceTestStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT (.+) FROM workspaces").
		WillReturnRows(sqlmock.NewRows(workspaceTestColumns).
			AddRow("ws_1", "Hawks U14", "a@example.com", "active", "plus", nil,
				"cus_1", "sub_1", now, int64(1), int64(1), int64(1), now, now).
			AddRow("ws_2", "Eagles U12", "b@example.com", "past_due", "starter", nil,
				"cus_2", "sub_2", now, int64(3), int64(9), int64(50), now, now))

	list, err := store.ListWithSubscriptions(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "ws_1", list[0].ID)
	assert.Equal(t, models.StatusPastDue, list[1].Status)
}

func TestFindBySubscriptionIDMissingReturnsNil(t *testing.T) {
	store, mock := newWorkspaceTestStore(t)

	mock.ExpectQuery("SELECT (.+) FROM workspaces WHERE stripe_subscription_id = \\$1").
		WithArgs("sub_unknown").
		WillReturnRows(sqlmock.NewRows(workspaceTestColumns))

	w, err := store.FindBySubscriptionID(context.Background(), "sub_unknown")
	require.NoError(t, err)
	assert.Nil(t, w)
}
