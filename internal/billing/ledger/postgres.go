// internal/billing/ledger/postgres.go
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"courtside-billing/internal/common/errors"
	"courtside-billing/internal/common/logger"
	"courtside-billing/internal/models"
)

const entryColumns = `id, workspace_id, recorded_at, entry_type, source,
	status_before, status_after, plan_before, plan_after, external_event_id, note`

// querier covers *sql.DB and *sql.Tx so appends can participate in the
// reconciliation transaction while reads run on the pool.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// PostgresStore persists ledger entries in the billing_ledger table.
// The table is append-only: no update or delete statements exist here.
type PostgresStore struct {
	db  *sql.DB
	log logger.Logger
}

func NewPostgresStore(db *sql.DB, log logger.Logger) *PostgresStore {
	return &PostgresStore{db: db, log: log}
}

// AppendTx inserts an entry inside the caller's transaction. The entry ID
// and timestamp are assigned here if unset.
func (s *PostgresStore) AppendTx(ctx context.Context, tx querier, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	query := `INSERT INTO billing_ledger (` + entryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := tx.ExecContext(ctx, query,
		e.ID, e.WorkspaceID, e.Timestamp, string(e.Type), string(e.Source),
		string(e.StatusBefore), string(e.StatusAfter),
		string(e.PlanBefore), string(e.PlanAfter),
		e.ExternalEventID, e.Note,
	)
	if err != nil {
		return errors.NewLedgerAppendFailedError(err)
	}
	return nil
}

// FindByEventIDTx looks up an entry by (workspace, external event) inside a
// transaction. Used by the reconciliation engine's idempotency guard after
// the workspace row lock is held. Returns nil, nil when no entry exists.
func (s *PostgresStore) FindByEventIDTx(ctx context.Context, tx querier, workspaceID, eventID string) (*Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM billing_ledger
		WHERE workspace_id = $1 AND external_event_id = $2
		LIMIT 1`
	return s.scanOne(tx.QueryRowContext(ctx, query, workspaceID, eventID))
}

// FindByEventID is the pool-backed variant of FindByEventIDTx.
func (s *PostgresStore) FindByEventID(ctx context.Context, workspaceID, eventID string) (*Entry, error) {
	return s.FindByEventIDTx(ctx, s.db, workspaceID, eventID)
}

// Recent returns the newest entries for a workspace, most recent first.
func (s *PostgresStore) Recent(ctx context.Context, workspaceID string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + entryColumns + ` FROM billing_ledger
		WHERE workspace_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2`
	return s.scanMany(ctx, query, workspaceID, limit)
}

// RecentBySource filters the workspace history by fact source.
func (s *PostgresStore) RecentBySource(ctx context.Context, workspaceID string, source models.FactSource, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + entryColumns + ` FROM billing_ledger
		WHERE workspace_id = $1 AND source = $2
		ORDER BY recorded_at DESC
		LIMIT $3`
	return s.scanMany(ctx, query, workspaceID, string(source), limit)
}

// RecentByType filters the workspace history by entry type.
func (s *PostgresStore) RecentByType(ctx context.Context, workspaceID string, entryType EntryType, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + entryColumns + ` FROM billing_ledger
		WHERE workspace_id = $1 AND entry_type = $2
		ORDER BY recorded_at DESC
		LIMIT $3`
	return s.scanMany(ctx, query, workspaceID, string(entryType), limit)
}

func (s *PostgresStore) scanMany(ctx context.Context, query string, args ...interface{}) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewStorageFailedError(fmt.Errorf("query billing_ledger: %w", err))
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, errors.NewStorageFailedError(fmt.Errorf("scan billing_ledger row: %w", err))
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageFailedError(fmt.Errorf("iterate billing_ledger rows: %w", err))
	}
	return entries, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *PostgresStore) scanOne(row *sql.Row) (*Entry, error) {
	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewStorageFailedError(fmt.Errorf("scan billing_ledger row: %w", err))
	}
	return e, nil
}

func scanEntry(r rowScanner) (*Entry, error) {
	var (
		e                 Entry
		entryType, source string
		sb, sa, pb, pa    string
		eventID           sql.NullString
	)
	err := r.Scan(&e.ID, &e.WorkspaceID, &e.Timestamp, &entryType, &source,
		&sb, &sa, &pb, &pa, &eventID, &e.Note)
	if err != nil {
		return nil, err
	}
	e.Type = EntryType(entryType)
	e.Source = models.FactSource(source)
	e.StatusBefore = models.WorkspaceStatus(sb)
	e.StatusAfter = models.WorkspaceStatus(sa)
	e.PlanBefore = models.WorkspacePlan(pb)
	e.PlanAfter = models.WorkspacePlan(pa)
	if eventID.Valid {
		e.ExternalEventID = &eventID.String
	}
	return &e, nil
}
