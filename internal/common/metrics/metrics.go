// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FactsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_facts_applied_total",
			Help: "Total number of billing facts applied, by source and resulting entry type",
		},
		[]string{"source", "entry_type"},
	)

	FactsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_facts_rejected_total",
			Help: "Total number of billing facts rejected, by error code",
		},
		[]string{"source", "error_code"},
	)

	ReconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "billing_reconcile_duration_seconds",
			Help: "Duration of a reconcile call in seconds",
		},
	)

	AccessDenied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_access_denied_total",
			Help: "Total number of access-guard denials, by code",
		},
		[]string{"code"},
	)

	DriftCorrections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "billing_drift_corrections_total",
			Help: "Total number of drift corrections applied by the auditor",
		},
	)

	AuditSweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "billing_audit_sweep_duration_seconds",
			Help: "Duration of a full drift-audit sweep in seconds",
		},
	)

	AuditWorkspacesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "billing_audit_workspaces_skipped_total",
			Help: "Workspaces skipped during an audit sweep (timeout or provider error)",
		},
	)

	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_webhook_events_total",
			Help: "Stripe webhook deliveries, by event type and HTTP status",
		},
		[]string{"event_type", "status"},
	)
)
