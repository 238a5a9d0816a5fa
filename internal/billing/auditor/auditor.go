// internal/billing/auditor/auditor.go
package auditor

import (
	"context"
	"time"

	"courtside-billing/internal/billing/catalog"
	"courtside-billing/internal/billing/ledger"
	"courtside-billing/internal/billing/provider"
	"courtside-billing/internal/common/logger"
	"courtside-billing/internal/common/metrics"
	"courtside-billing/internal/models"
)

// Reconciler applies a billing fact. Satisfied by the reconciliation engine.
type Reconciler interface {
	Reconcile(ctx context.Context, fact *models.BillingFact) (*ledger.Entry, error)
}

// WorkspaceLister returns the workspaces the auditor should sweep.
type WorkspaceLister interface {
	ListWithSubscriptions(ctx context.Context) ([]*models.Workspace, error)
}

// SweepReport summarizes one full audit pass.
type SweepReport struct {
	Started   time.Time
	Finished  time.Time
	Checked   int
	Corrected int
	Clean     int
	Skipped   int
}

// Auditor periodically compares each subscribed workspace against live
// provider state and feeds any divergence back through reconciliation. A
// failing workspace never aborts the sweep; it is skipped and picked up on
// the next pass.
type Auditor struct {
	workspaces WorkspaceLister
	fetcher    provider.SubscriptionFetcher
	reconciler Reconciler
	catalog    *catalog.Catalog
	perWSLimit time.Duration
	log        logger.Logger
}

func New(workspaces WorkspaceLister, fetcher provider.SubscriptionFetcher, reconciler Reconciler,
	cat *catalog.Catalog, perWorkspaceTimeout time.Duration, log logger.Logger) *Auditor {
	if perWorkspaceTimeout <= 0 {
		perWorkspaceTimeout = 10 * time.Second
	}
	return &Auditor{
		workspaces: workspaces,
		fetcher:    fetcher,
		reconciler: reconciler,
		catalog:    cat,
		perWSLimit: perWorkspaceTimeout,
		log:        log,
	}
}

// Sweep audits every subscribed workspace once, sequentially. Workspaces
// are independent; per-workspace budgets keep one slow provider call from
// starving the rest of the pass.
func (a *Auditor) Sweep(ctx context.Context) (*SweepReport, error) {
	report := &SweepReport{Started: time.Now().UTC()}
	defer func() {
		report.Finished = time.Now().UTC()
		metrics.AuditSweepDuration.Observe(report.Finished.Sub(report.Started).Seconds())
	}()

	list, err := a.workspaces.ListWithSubscriptions(ctx)
	if err != nil {
		return report, err
	}

	for _, ws := range list {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Checked++

		entry, err := a.auditOne(ctx, ws)
		if err != nil {
			report.Skipped++
			metrics.AuditWorkspacesSkipped.Inc()
			a.log.WithError(err).Warn("audit skipped workspace", map[string]interface{}{
				"workspace_id": ws.ID,
			})
			continue
		}
		if entry != nil && entry.Changed() {
			report.Corrected++
			a.log.Info("audit corrected drifted workspace", map[string]interface{}{
				"workspace_id": ws.ID,
				"entry_id":     entry.ID,
			})
		} else {
			report.Clean++
		}
	}

	a.log.Info("audit sweep finished", map[string]interface{}{
		"checked":   report.Checked,
		"corrected": report.Corrected,
		"clean":     report.Clean,
		"skipped":   report.Skipped,
	})
	return report, nil
}

func (a *Auditor) auditOne(ctx context.Context, ws *models.Workspace) (*ledger.Entry, error) {
	wsCtx, cancel := context.WithTimeout(ctx, a.perWSLimit)
	defer cancel()

	state, err := a.fetcher.FetchSubscription(wsCtx, *ws.Billing.StripeSubscriptionID)
	if err != nil {
		return nil, err
	}

	priceID := state.PriceID
	if priceID == "" {
		// A fully ended subscription carries no items; audit against the
		// price of the plan the workspace currently holds.
		if id, ok := a.catalog.PriceIDForPlan(ws.Plan); ok {
			priceID = id
		} else {
			a.log.Debug("workspace has no auditable price, leaving as is", map[string]interface{}{
				"workspace_id": ws.ID,
			})
			return nil, nil
		}
	}

	fact := &models.BillingFact{
		WorkspaceID:            ws.ID,
		ExternalPriceID:        priceID,
		ExternalStatus:         state.Status,
		Source:                 models.SourceAuditor,
		ExternalCustomerID:     ws.Billing.StripeCustomerID,
		ExternalSubscriptionID: ws.Billing.StripeSubscriptionID,
		CurrentPeriodEnd:       state.CurrentPeriodEnd,
		ObservedAt:             time.Now().UTC(),
		SuppressNoop:           true,
	}
	return a.reconciler.Reconcile(wsCtx, fact)
}

// Run sweeps on a fixed interval until ctx is canceled. The first sweep
// starts one interval after launch so deploys do not trigger provider
// bursts.
func (a *Auditor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.log.Info("drift auditor started", map[string]interface{}{
		"interval": interval.String(),
	})
	for {
		select {
		case <-ctx.Done():
			a.log.Info("drift auditor stopped", nil)
			return
		case <-ticker.C:
			if _, err := a.Sweep(ctx); err != nil && ctx.Err() == nil {
				a.log.WithError(err).Error("audit sweep failed", nil)
			}
		}
	}
}
