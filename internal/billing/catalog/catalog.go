// Package catalog is the static plan catalog: the mapping between internal
// plan tiers, external (Stripe) price ids, display metadata, and the
// resource limits the usage limiter enforces. Price ids are deploy-specific
// and injected from configuration; everything else is fixed.
package catalog

import (
	"math"

	"courtside-billing/internal/common/config"
	"courtside-billing/internal/common/errors"
	"courtside-billing/internal/models"
)

// Unlimited marks a resource a plan does not cap.
const Unlimited int64 = math.MaxInt64

// Limits are the per-plan resource caps.
type Limits struct {
	MaxPlayers       int64
	MaxGamesPerMonth int64
	StorageMB        int64
}

// Get returns the cap for one resource kind.
func (l Limits) Get(kind models.ResourceKind) int64 {
	switch kind {
	case models.ResourcePlayers:
		return l.MaxPlayers
	case models.ResourceGamesPerMonth:
		return l.MaxGamesPerMonth
	case models.ResourceStorageMB:
		return l.StorageMB
	}
	return 0
}

type planDef struct {
	priceID     string // empty for the trial-only free plan
	displayName string
	monthlyUSD  int
	limits      Limits
	features    []string
}

// Catalog resolves plans, price ids, limits and plan metadata. Construct it
// once with New and inject it; it has no mutable state.
type Catalog struct {
	plans     map[models.WorkspacePlan]planDef
	byPriceID map[string]models.WorkspacePlan
}

// New builds the catalog from the configured price ids.
func New(prices config.PriceIDsConfig) *Catalog {
	plans := map[models.WorkspacePlan]planDef{
		models.PlanFree: {
			displayName: "Free Trial",
			monthlyUSD:  0,
			limits:      Limits{MaxPlayers: 2, MaxGamesPerMonth: 10, StorageMB: 100},
			features:    []string{"game_verification", "basic_stats"},
		},
		models.PlanStarter: {
			priceID:     prices.Starter,
			displayName: "Starter",
			monthlyUSD:  9,
			limits:      Limits{MaxPlayers: 5, MaxGamesPerMonth: 50, StorageMB: 500},
			features:    []string{"game_verification", "basic_stats"},
		},
		models.PlanPlus: {
			priceID:     prices.Plus,
			displayName: "Plus",
			monthlyUSD:  19,
			limits:      Limits{MaxPlayers: 15, MaxGamesPerMonth: 200, StorageMB: 2048},
			features:    []string{"game_verification", "basic_stats", "advanced_analytics"},
		},
		models.PlanPro: {
			priceID:     prices.Pro,
			displayName: "Pro",
			monthlyUSD:  39,
			limits:      Limits{MaxPlayers: Unlimited, MaxGamesPerMonth: Unlimited, StorageMB: 10240},
			features: []string{
				"game_verification",
				"basic_stats",
				"advanced_analytics",
				"export_reports",
				"priority_support",
			},
		},
	}

	byPriceID := make(map[string]models.WorkspacePlan, len(plans))
	for plan, def := range plans {
		if def.priceID != "" {
			byPriceID[def.priceID] = plan
		}
	}

	return &Catalog{plans: plans, byPriceID: byPriceID}
}

// PlanForPriceID resolves an external price id to the internal plan tier.
// Unknown price ids are rejected, never guessed.
func (c *Catalog) PlanForPriceID(priceID string) (models.WorkspacePlan, error) {
	plan, ok := c.byPriceID[priceID]
	if !ok {
		return "", errors.NewUnknownPriceIDError(priceID)
	}
	return plan, nil
}

// PriceIDForPlan returns the external price id for a paid plan. The free
// trial plan has no price id and returns ok=false.
func (c *Catalog) PriceIDForPlan(plan models.WorkspacePlan) (string, bool) {
	def, ok := c.plans[plan]
	if !ok || def.priceID == "" {
		return "", false
	}
	return def.priceID, true
}

// Limits returns the resource caps for a plan. Unknown plans get the free
// tier's caps, the most restrictive.
func (c *Catalog) Limits(plan models.WorkspacePlan) Limits {
	if def, ok := c.plans[plan]; ok {
		return def.limits
	}
	return c.plans[models.PlanFree].limits
}

// DisplayName returns the human-readable plan name.
func (c *Catalog) DisplayName(plan models.WorkspacePlan) string {
	if def, ok := c.plans[plan]; ok {
		return def.displayName
	}
	return string(plan)
}

// MonthlyPriceUSD returns the plan's monthly price in whole dollars.
func (c *Catalog) MonthlyPriceUSD(plan models.WorkspacePlan) int {
	if def, ok := c.plans[plan]; ok {
		return def.monthlyUSD
	}
	return 0
}

// HasFeature reports whether the plan includes the named feature.
func (c *Catalog) HasFeature(plan models.WorkspacePlan, feature string) bool {
	def, ok := c.plans[plan]
	if !ok {
		return false
	}
	for _, f := range def.features {
		if f == feature {
			return true
		}
	}
	return false
}
