// internal/models/fact.go
package models

import "time"

// FactSource identifies which path reported a billing fact.
type FactSource string

const (
	SourceWebhook     FactSource = "webhook"
	SourceReplay      FactSource = "replay"
	SourceAuditor     FactSource = "auditor"
	SourceManual      FactSource = "manual"
	SourceEnforcement FactSource = "enforcement"
)

// ValidSources lists every accepted fact source.
var ValidSources = []FactSource{
	SourceWebhook,
	SourceReplay,
	SourceAuditor,
	SourceManual,
	SourceEnforcement,
}

// Valid reports whether s is a known fact source.
func (s FactSource) Valid() bool {
	switch s {
	case SourceWebhook, SourceReplay, SourceAuditor, SourceManual, SourceEnforcement:
		return true
	}
	return false
}

// BillingFact is a reported external-provider subscription state, the sole
// input to reconciliation. It is not persisted directly; applying it
// produces a ledger entry.
type BillingFact struct {
	WorkspaceID            string
	ExternalPriceID        string
	ExternalStatus         string // provider subscription status, e.g. "active", "past_due"
	Source                 FactSource
	ExternalEventID        *string // nil for auditor- and manually-sourced facts
	ExternalCustomerID     *string
	ExternalSubscriptionID *string
	CurrentPeriodEnd       *time.Time
	ObservedAt             time.Time

	// SuppressNoop makes a no-change application skip its informational
	// ledger entry. The drift auditor sets it to bound ledger growth on
	// clean sweeps; webhook and replay paths never do, so redeliveries
	// stay auditable.
	SuppressNoop bool
}
