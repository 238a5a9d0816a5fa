// internal/store/workspace_postgres.go
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"courtside-billing/internal/common/errors"
	"courtside-billing/internal/common/logger"
	"courtside-billing/internal/models"
)

const workspaceColumns = `id, name, owner_email, status, plan, trial_ends_at,
	stripe_customer_id, stripe_subscription_id, current_period_end,
	player_count, games_this_month, storage_mb, created_at, updated_at`

// Transition is the state change the reconciliation engine writes after a
// billing fact has been applied.
type Transition struct {
	WorkspaceID      string
	Status           models.WorkspaceStatus
	Plan             models.WorkspacePlan
	CurrentPeriodEnd *time.Time
}

// WorkspaceStore reads and writes workspace rows. All status and plan
// mutations flow through ApplyTransition inside the reconciliation
// transaction; nothing else updates those columns.
type WorkspaceStore struct {
	db  *sql.DB
	log logger.Logger
}

func NewWorkspaceStore(db *sql.DB, log logger.Logger) *WorkspaceStore {
	return &WorkspaceStore{db: db, log: log}
}

// Get fetches a workspace by ID without locking.
func (s *WorkspaceStore) Get(ctx context.Context, workspaceID string) (*models.Workspace, error) {
	query := `SELECT ` + workspaceColumns + ` FROM workspaces WHERE id = $1`
	return s.scanOne(s.db.QueryRowContext(ctx, query, workspaceID), workspaceID)
}

// GetForUpdate fetches a workspace inside tx with a row lock, serializing
// concurrent reconciliations of the same workspace.
func (s *WorkspaceStore) GetForUpdate(ctx context.Context, tx *sql.Tx, workspaceID string) (*models.Workspace, error) {
	query := `SELECT ` + workspaceColumns + ` FROM workspaces WHERE id = $1 FOR UPDATE`
	return s.scanOne(tx.QueryRowContext(ctx, query, workspaceID), workspaceID)
}

// ApplyTransition writes the post-reconciliation status and plan inside the
// caller's transaction.
func (s *WorkspaceStore) ApplyTransition(ctx context.Context, tx *sql.Tx, tr Transition) error {
	query := `UPDATE workspaces
		SET status = $2, plan = $3, current_period_end = $4, updated_at = $5
		WHERE id = $1`
	res, err := tx.ExecContext(ctx, query,
		tr.WorkspaceID, string(tr.Status), string(tr.Plan), tr.CurrentPeriodEnd, time.Now().UTC())
	if err != nil {
		return errors.NewStorageFailedError(fmt.Errorf("update workspace %s: %w", tr.WorkspaceID, err))
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return errors.NewWorkspaceNotFoundError(tr.WorkspaceID)
	}
	return nil
}

// RefreshPeriodEnd advances current_period_end inside the caller's
// transaction without touching status or plan. Monthly renewals report the
// same status and plan with a fresh period end, and canceled subscriptions
// keep their final period end for the read grace window.
func (s *WorkspaceStore) RefreshPeriodEnd(ctx context.Context, tx *sql.Tx, workspaceID string, periodEnd time.Time) error {
	query := `UPDATE workspaces
		SET current_period_end = $2, updated_at = $3
		WHERE id = $1`
	res, err := tx.ExecContext(ctx, query, workspaceID, periodEnd, time.Now().UTC())
	if err != nil {
		return errors.NewStorageFailedError(fmt.Errorf("refresh period end for %s: %w", workspaceID, err))
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return errors.NewWorkspaceNotFoundError(workspaceID)
	}
	return nil
}

// ListWithSubscriptions returns every workspace linked to an external
// subscription. The drift auditor sweeps this set.
func (s *WorkspaceStore) ListWithSubscriptions(ctx context.Context) ([]*models.Workspace, error) {
	query := `SELECT ` + workspaceColumns + ` FROM workspaces
		WHERE stripe_subscription_id IS NOT NULL AND stripe_subscription_id <> ''
		ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.NewStorageFailedError(fmt.Errorf("list subscribed workspaces: %w", err))
	}
	defer rows.Close()

	var workspaces []*models.Workspace
	for rows.Next() {
		w, err := scanWorkspace(rows)
		if err != nil {
			return nil, errors.NewStorageFailedError(fmt.Errorf("scan workspace row: %w", err))
		}
		workspaces = append(workspaces, w)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageFailedError(fmt.Errorf("iterate workspace rows: %w", err))
	}
	return workspaces, nil
}

// FindByCustomerID resolves the workspace owning a provider customer.
// Returns nil, nil when no workspace matches.
func (s *WorkspaceStore) FindByCustomerID(ctx context.Context, customerID string) (*models.Workspace, error) {
	query := `SELECT ` + workspaceColumns + ` FROM workspaces WHERE stripe_customer_id = $1`
	w, err := s.scanOne(s.db.QueryRowContext(ctx, query, customerID), customerID)
	if errors.IsCode(err, errors.ErrCodeWorkspaceNotFound) {
		return nil, nil
	}
	return w, err
}

// FindBySubscriptionID resolves the workspace owning a provider subscription.
// Returns nil, nil when no workspace matches.
func (s *WorkspaceStore) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Workspace, error) {
	query := `SELECT ` + workspaceColumns + ` FROM workspaces WHERE stripe_subscription_id = $1`
	w, err := s.scanOne(s.db.QueryRowContext(ctx, query, subscriptionID), subscriptionID)
	if errors.IsCode(err, errors.ErrCodeWorkspaceNotFound) {
		return nil, nil
	}
	return w, err
}

func (s *WorkspaceStore) scanOne(row *sql.Row, id string) (*models.Workspace, error) {
	w, err := scanWorkspace(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewWorkspaceNotFoundError(id)
	}
	if err != nil {
		return nil, errors.NewStorageFailedError(fmt.Errorf("scan workspace row: %w", err))
	}
	return w, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWorkspace(r rowScanner) (*models.Workspace, error) {
	var (
		w            models.Workspace
		status, plan string
		trialEndsAt  sql.NullTime
		customerID   sql.NullString
		subID        sql.NullString
		periodEnd    sql.NullTime
	)
	err := r.Scan(&w.ID, &w.Name, &w.OwnerEmail, &status, &plan, &trialEndsAt,
		&customerID, &subID, &periodEnd,
		&w.Usage.PlayerCount, &w.Usage.GamesThisMonth, &w.Usage.StorageMB,
		&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	w.Status = models.WorkspaceStatus(status)
	w.Plan = models.WorkspacePlan(plan)
	if trialEndsAt.Valid {
		w.TrialEndsAt = &trialEndsAt.Time
	}
	if customerID.Valid {
		w.Billing.StripeCustomerID = &customerID.String
	}
	if subID.Valid {
		w.Billing.StripeSubscriptionID = &subID.String
	}
	if periodEnd.Valid {
		w.Billing.CurrentPeriodEnd = &periodEnd.Time
	}
	return &w, nil
}
