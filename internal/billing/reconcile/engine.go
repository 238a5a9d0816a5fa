// internal/billing/reconcile/engine.go
package reconcile

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"courtside-billing/internal/billing/catalog"
	"courtside-billing/internal/billing/ledger"
	"courtside-billing/internal/common/errors"
	"courtside-billing/internal/common/logger"
	"courtside-billing/internal/common/metrics"
	"courtside-billing/internal/common/observability"
	"courtside-billing/internal/models"
	"courtside-billing/internal/store"
)

// Notifier receives post-commit notifications about applied transitions.
// Implementations must not block reconciliation on delivery failures.
type Notifier interface {
	StatusChanged(ctx context.Context, ws *models.Workspace, e *ledger.Entry)
	DriftDetected(ctx context.Context, ws *models.Workspace, e *ledger.Entry)
}

// EntryIndexer mirrors committed ledger entries into a search backend.
type EntryIndexer interface {
	Index(ctx context.Context, e *ledger.Entry)
}

// SnapshotCache is the subset of the workspace cache the engine touches
// after a commit.
type SnapshotCache interface {
	Invalidate(ctx context.Context, workspaceID string)
	SeenEvent(ctx context.Context, workspaceID, eventID string) bool
	MarkEventSeen(ctx context.Context, workspaceID, eventID string)
}

// Engine applies billing facts to workspaces. It is the only component
// allowed to change a workspace's status or plan, and every change it makes
// is paired with a ledger entry in the same transaction.
type Engine struct {
	db         *sql.DB
	workspaces *store.WorkspaceStore
	ledger     *ledger.PostgresStore
	catalog    *catalog.Catalog
	cache      SnapshotCache // optional
	notifier   Notifier      // optional
	indexer    EntryIndexer  // optional
	obs        *observability.Observability
	log        logger.Logger
}

type Option func(*Engine)

func WithCache(c SnapshotCache) Option   { return func(e *Engine) { e.cache = c } }
func WithNotifier(n Notifier) Option     { return func(e *Engine) { e.notifier = n } }
func WithIndexer(ix EntryIndexer) Option { return func(e *Engine) { e.indexer = ix } }
func WithObservability(o *observability.Observability) Option {
	return func(e *Engine) { e.obs = o }
}

func NewEngine(db *sql.DB, workspaces *store.WorkspaceStore, ledgerStore *ledger.PostgresStore,
	cat *catalog.Catalog, log logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		db:         db,
		workspaces: workspaces,
		ledger:     ledgerStore,
		catalog:    cat,
		log:        log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reconcile applies one billing fact. It returns the ledger entry recorded
// for the fact: a transition entry when state changed, an informational
// no-op entry when it did not, the previously recorded entry when the fact
// is a duplicate delivery, or nil when a no-op was suppressed by the caller.
//
// Distinct events are applied in arrival order; an out-of-order older event
// with a fresh event ID still wins. The provider is treated as the source
// of truth and its latest word stands until the next fact arrives.
func (e *Engine) Reconcile(ctx context.Context, fact *models.BillingFact) (*ledger.Entry, error) {
	started := time.Now()
	entry, err := e.reconcile(ctx, fact)
	e.observe(ctx, fact, entry, err, time.Since(started))
	return entry, err
}

func (e *Engine) reconcile(ctx context.Context, fact *models.BillingFact) (*ledger.Entry, error) {
	if err := validateFact(fact); err != nil {
		return nil, err
	}

	newPlan, err := e.catalog.PlanForPriceID(fact.ExternalPriceID)
	if err != nil {
		e.log.WithError(err).Warn("rejected fact with unknown price id", map[string]interface{}{
			"workspace_id": fact.WorkspaceID,
			"price_id":     fact.ExternalPriceID,
			"source":       string(fact.Source),
		})
		return nil, err
	}
	newStatus := mapExternalStatus(fact.ExternalStatus)

	// Fast-path duplicate filter. The in-transaction check below remains
	// the idempotency guarantee.
	if e.cache != nil && fact.ExternalEventID != nil &&
		e.cache.SeenEvent(ctx, fact.WorkspaceID, *fact.ExternalEventID) {
		if prior, err := e.ledger.FindByEventID(ctx, fact.WorkspaceID, *fact.ExternalEventID); err == nil && prior != nil {
			e.log.Debug("duplicate event short-circuited by cache", map[string]interface{}{
				"workspace_id": fact.WorkspaceID,
				"event_id":     *fact.ExternalEventID,
			})
			return prior, nil
		}
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.NewStorageFailedError(fmt.Errorf("begin reconcile tx: %w", err))
	}
	defer tx.Rollback()

	ws, err := e.workspaces.GetForUpdate(ctx, tx, fact.WorkspaceID)
	if err != nil {
		return nil, err
	}

	// Idempotency guard, serialized by the workspace row lock: the same
	// (workspace, event) pair is applied at most once.
	if fact.ExternalEventID != nil {
		prior, err := e.ledger.FindByEventIDTx(ctx, tx, fact.WorkspaceID, *fact.ExternalEventID)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			e.log.Info("event already applied, skipping", map[string]interface{}{
				"workspace_id": fact.WorkspaceID,
				"event_id":     *fact.ExternalEventID,
			})
			e.markSeen(ctx, fact)
			return prior, nil
		}
	}

	entry := &ledger.Entry{
		WorkspaceID:     ws.ID,
		Source:          fact.Source,
		StatusBefore:    ws.Status,
		StatusAfter:     newStatus,
		PlanBefore:      ws.Plan,
		PlanAfter:       newPlan,
		ExternalEventID: fact.ExternalEventID,
	}
	entry.Type = classify(fact.Source, entry)

	if !entry.Changed() {
		// Renewals arrive as facts with unchanged status and plan but a
		// fresh period end; the billing fields stay current even when no
		// transition is recorded.
		refreshed, err := e.refreshPeriodEnd(ctx, tx, ws, fact)
		if err != nil {
			return nil, err
		}
		if fact.SuppressNoop {
			if !refreshed {
				return nil, nil
			}
			if err := tx.Commit(); err != nil {
				return nil, errors.NewStorageFailedError(fmt.Errorf("commit reconcile tx: %w", err))
			}
			if e.cache != nil {
				e.cache.Invalidate(ctx, ws.ID)
			}
			e.markSeen(ctx, fact)
			return nil, nil
		}
		entry.Note = "provider state already reflected"
		entry.Timestamp = time.Now().UTC()
		if err := e.ledger.AppendTx(ctx, tx, entry); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, errors.NewStorageFailedError(fmt.Errorf("commit reconcile tx: %w", err))
		}
		e.afterCommit(ctx, ws, fact, entry)
		return entry, nil
	}

	tr := store.Transition{
		WorkspaceID:      ws.ID,
		Status:           newStatus,
		Plan:             newPlan,
		CurrentPeriodEnd: fact.CurrentPeriodEnd,
	}
	if tr.CurrentPeriodEnd == nil {
		tr.CurrentPeriodEnd = ws.Billing.CurrentPeriodEnd
	}
	// Stamped before the workspace update so the ledger row never postdates
	// the workspace's updated_at.
	entry.Timestamp = time.Now().UTC()
	if err := e.workspaces.ApplyTransition(ctx, tx, tr); err != nil {
		return nil, err
	}
	if err := e.ledger.AppendTx(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.NewStorageFailedError(fmt.Errorf("commit reconcile tx: %w", err))
	}

	e.log.Info("workspace transition applied", map[string]interface{}{
		"workspace_id":  ws.ID,
		"source":        string(fact.Source),
		"entry_type":    string(entry.Type),
		"status_before": string(entry.StatusBefore),
		"status_after":  string(entry.StatusAfter),
		"plan_before":   string(entry.PlanBefore),
		"plan_after":    string(entry.PlanAfter),
	})

	ws.Status = newStatus
	ws.Plan = newPlan
	e.afterCommit(ctx, ws, fact, entry)
	return entry, nil
}

// Suspend is the manual operator path: it forces a workspace to suspended
// without consulting the billing provider. The transition is ledgered like
// any other.
func (e *Engine) Suspend(ctx context.Context, workspaceID, note string) (*ledger.Entry, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.NewStorageFailedError(fmt.Errorf("begin suspend tx: %w", err))
	}
	defer tx.Rollback()

	ws, err := e.workspaces.GetForUpdate(ctx, tx, workspaceID)
	if err != nil {
		return nil, err
	}

	entry := &ledger.Entry{
		WorkspaceID:  ws.ID,
		Type:         ledger.TypeManualSuspension,
		Source:       models.SourceManual,
		StatusBefore: ws.Status,
		StatusAfter:  models.StatusSuspended,
		PlanBefore:   ws.Plan,
		PlanAfter:    ws.Plan,
		Note:         note,
	}
	if !entry.Changed() {
		return nil, nil
	}

	tr := store.Transition{
		WorkspaceID:      ws.ID,
		Status:           models.StatusSuspended,
		Plan:             ws.Plan,
		CurrentPeriodEnd: ws.Billing.CurrentPeriodEnd,
	}
	entry.Timestamp = time.Now().UTC()
	if err := e.workspaces.ApplyTransition(ctx, tx, tr); err != nil {
		return nil, err
	}
	if err := e.ledger.AppendTx(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.NewStorageFailedError(fmt.Errorf("commit suspend tx: %w", err))
	}

	e.log.Warn("workspace manually suspended", map[string]interface{}{
		"workspace_id": ws.ID,
		"note":         note,
	})
	metrics.FactsApplied.WithLabelValues(string(models.SourceManual), string(ledger.TypeManualSuspension)).Inc()

	ws.Status = models.StatusSuspended
	if e.cache != nil {
		e.cache.Invalidate(ctx, ws.ID)
	}
	if e.indexer != nil {
		e.indexer.Index(ctx, entry)
	}
	if e.notifier != nil {
		e.notifier.StatusChanged(ctx, ws, entry)
	}
	return entry, nil
}

// refreshPeriodEnd persists a renewed period end when the fact carries one
// the stored row does not have yet. Runs inside the reconciliation
// transaction; reports whether a write happened.
func (e *Engine) refreshPeriodEnd(ctx context.Context, tx *sql.Tx, ws *models.Workspace, fact *models.BillingFact) (bool, error) {
	if fact.CurrentPeriodEnd == nil {
		return false, nil
	}
	if ws.Billing.CurrentPeriodEnd != nil && ws.Billing.CurrentPeriodEnd.Equal(*fact.CurrentPeriodEnd) {
		return false, nil
	}
	if err := e.workspaces.RefreshPeriodEnd(ctx, tx, ws.ID, *fact.CurrentPeriodEnd); err != nil {
		return false, err
	}
	ws.Billing.CurrentPeriodEnd = fact.CurrentPeriodEnd
	return true, nil
}

func (e *Engine) afterCommit(ctx context.Context, ws *models.Workspace, fact *models.BillingFact, entry *ledger.Entry) {
	if e.cache != nil {
		e.cache.Invalidate(ctx, ws.ID)
	}
	e.markSeen(ctx, fact)
	if e.indexer != nil {
		e.indexer.Index(ctx, entry)
	}
	if !entry.Changed() {
		return
	}
	if entry.Type == ledger.TypeDriftCorrection {
		metrics.DriftCorrections.Inc()
		if e.notifier != nil {
			e.notifier.DriftDetected(ctx, ws, entry)
		}
	}
	if entry.StatusBefore != entry.StatusAfter && e.notifier != nil {
		e.notifier.StatusChanged(ctx, ws, entry)
	}
}

func (e *Engine) markSeen(ctx context.Context, fact *models.BillingFact) {
	if e.cache != nil && fact.ExternalEventID != nil {
		e.cache.MarkEventSeen(ctx, fact.WorkspaceID, *fact.ExternalEventID)
	}
}

func (e *Engine) observe(ctx context.Context, fact *models.BillingFact, entry *ledger.Entry, err error, elapsed time.Duration) {
	metrics.ReconcileDuration.Observe(elapsed.Seconds())
	source := "unknown"
	if fact != nil {
		source = string(fact.Source)
	}
	switch {
	case err != nil:
		metrics.FactsRejected.WithLabelValues(source, string(errors.CodeOf(err))).Inc()
		if e.obs != nil {
			e.obs.RecordFactProcessed(ctx, source, "rejected")
			e.obs.RecordFactDuration(ctx, elapsed, "rejected")
		}
	case entry != nil:
		metrics.FactsApplied.WithLabelValues(source, string(entry.Type)).Inc()
		if e.obs != nil {
			e.obs.RecordFactProcessed(ctx, source, string(entry.Type))
			e.obs.RecordFactDuration(ctx, elapsed, "applied")
		}
	}
}

func validateFact(fact *models.BillingFact) error {
	if fact == nil {
		return errors.NewInvalidFactError("fact is nil")
	}
	if fact.WorkspaceID == "" {
		return errors.NewInvalidFactError("workspaceId is required")
	}
	if fact.ExternalPriceID == "" {
		return errors.NewInvalidFactError("externalPriceId is required")
	}
	if fact.ExternalStatus == "" {
		return errors.NewInvalidFactError("externalStatus is required")
	}
	if !fact.Source.Valid() {
		return errors.NewInvalidFactError(fmt.Sprintf("unknown source %q", fact.Source))
	}
	return nil
}

// classify picks the ledger entry type for an applied fact. Auditor-sourced
// transitions are drift corrections; plan movement outranks a bare status
// change when both happen in one fact.
func classify(source models.FactSource, e *ledger.Entry) ledger.EntryType {
	if !e.Changed() {
		return ledger.TypeReconcileNoop
	}
	if source == models.SourceAuditor {
		return ledger.TypeDriftCorrection
	}
	if e.PlanBefore != e.PlanAfter {
		return ledger.TypePlanChange
	}
	return ledger.TypeStatusChange
}
