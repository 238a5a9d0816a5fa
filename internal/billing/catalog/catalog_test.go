package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courtside-billing/internal/common/config"
	"courtside-billing/internal/common/errors"
	"courtside-billing/internal/models"
)

func testPrices() config.PriceIDsConfig {
	return config.PriceIDsConfig{
		Starter: "price_starter_123",
		Plus:    "price_plus_456",
		Pro:     "price_pro_789",
	}
}

func TestPlanForPriceID(t *testing.T) {
	c := New(testPrices())

	tests := []struct {
		name    string
		priceID string
		want    models.WorkspacePlan
	}{
		{name: "starter", priceID: "price_starter_123", want: models.PlanStarter},
		{name: "plus", priceID: "price_plus_456", want: models.PlanPlus},
		{name: "pro", priceID: "price_pro_789", want: models.PlanPro},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := c.PlanForPriceID(tt.priceID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, plan)
		})
	}
}

func TestPlanForPriceID_Unknown(t *testing.T) {
	c := New(testPrices())

	_, err := c.PlanForPriceID("price_bogus")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeUnknownPriceID, errors.CodeOf(err))
	assert.False(t, errors.IsRetryable(err), "unknown price id must not be retried")
}

func TestPriceIDForPlan(t *testing.T) {
	c := New(testPrices())

	id, ok := c.PriceIDForPlan(models.PlanPlus)
	require.True(t, ok)
	assert.Equal(t, "price_plus_456", id)

	// The free trial plan is managed internally and has no price id.
	_, ok = c.PriceIDForPlan(models.PlanFree)
	assert.False(t, ok)
}

func TestLimits(t *testing.T) {
	c := New(testPrices())

	starter := c.Limits(models.PlanStarter)
	assert.Equal(t, int64(5), starter.MaxPlayers)
	assert.Equal(t, int64(50), starter.MaxGamesPerMonth)
	assert.Equal(t, int64(500), starter.StorageMB)

	pro := c.Limits(models.PlanPro)
	assert.Equal(t, Unlimited, pro.MaxPlayers)
	assert.Equal(t, Unlimited, pro.MaxGamesPerMonth)

	// Unknown plan falls back to the most restrictive tier.
	unknown := c.Limits(models.WorkspacePlan("enterprise"))
	assert.Equal(t, c.Limits(models.PlanFree), unknown)
}

func TestLimitsGet(t *testing.T) {
	l := Limits{MaxPlayers: 5, MaxGamesPerMonth: 50, StorageMB: 500}
	assert.Equal(t, int64(5), l.Get(models.ResourcePlayers))
	assert.Equal(t, int64(50), l.Get(models.ResourceGamesPerMonth))
	assert.Equal(t, int64(500), l.Get(models.ResourceStorageMB))
	assert.Equal(t, int64(0), l.Get(models.ResourceKind("bogus")))
}

func TestPlanMetadata(t *testing.T) {
	c := New(testPrices())

	assert.Equal(t, "Free Trial", c.DisplayName(models.PlanFree))
	assert.Equal(t, "Pro", c.DisplayName(models.PlanPro))
	assert.Equal(t, 0, c.MonthlyPriceUSD(models.PlanFree))
	assert.Equal(t, 9, c.MonthlyPriceUSD(models.PlanStarter))
	assert.Equal(t, 19, c.MonthlyPriceUSD(models.PlanPlus))
	assert.Equal(t, 39, c.MonthlyPriceUSD(models.PlanPro))
}

func TestHasFeature(t *testing.T) {
	c := New(testPrices())

	assert.True(t, c.HasFeature(models.PlanStarter, "basic_stats"))
	assert.False(t, c.HasFeature(models.PlanStarter, "advanced_analytics"))
	assert.True(t, c.HasFeature(models.PlanPlus, "advanced_analytics"))
	assert.True(t, c.HasFeature(models.PlanPro, "priority_support"))
	assert.False(t, c.HasFeature(models.WorkspacePlan("bogus"), "basic_stats"))
}
