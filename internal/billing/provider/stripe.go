// internal/billing/provider/stripe.go
package provider

import (
	"context"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/subscription"

	"courtside-billing/internal/common/errors"
	"courtside-billing/internal/common/logger"
)

// SubscriptionState is the provider-side view of one subscription, reduced
// to the fields reconciliation consumes.
type SubscriptionState struct {
	SubscriptionID   string
	CustomerID       string
	PriceID          string
	Status           string
	CurrentPeriodEnd *time.Time
}

// SubscriptionFetcher retrieves live subscription state from the billing
// provider. The drift auditor and the checkout webhook path depend on it.
type SubscriptionFetcher interface {
	FetchSubscription(ctx context.Context, subscriptionID string) (*SubscriptionState, error)
}

// StripeClient fetches subscriptions through an explicitly constructed
// Stripe client. The API key is injected here, never set on the package
// global, so concurrent use stays race-free.
type StripeClient struct {
	subs *subscription.Client
	log  logger.Logger
}

func NewStripeClient(apiKey string, log logger.Logger) *StripeClient {
	return &StripeClient{
		subs: &subscription.Client{
			B:   stripe.GetBackend(stripe.APIBackend),
			Key: apiKey,
		},
		log: log,
	}
}

func (c *StripeClient) FetchSubscription(ctx context.Context, subscriptionID string) (*SubscriptionState, error) {
	params := &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
	}
	sub, err := c.subs.Get(subscriptionID, params)
	if err != nil {
		c.log.WithError(err).Warn("stripe subscription fetch failed", map[string]interface{}{
			"subscription_id": subscriptionID,
		})
		return nil, errors.NewProviderFetchFailedError(subscriptionID, err)
	}
	return fromStripeSubscription(sub), nil
}

func fromStripeSubscription(sub *stripe.Subscription) *SubscriptionState {
	state := &SubscriptionState{
		SubscriptionID: sub.ID,
		Status:         string(sub.Status),
	}
	if sub.Customer != nil {
		state.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			state.PriceID = item.Price.ID
		}
		// The period boundary lives on the item in current API versions.
		if item.CurrentPeriodEnd > 0 {
			end := time.Unix(item.CurrentPeriodEnd, 0).UTC()
			state.CurrentPeriodEnd = &end
		}
	}
	return state
}
