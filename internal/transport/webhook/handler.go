// internal/transport/webhook/handler.go

// Package webhook terminates the Stripe event stream and the small read API
// in front of the billing core. Signature verification is the only
// authentication on the event endpoint.
package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"courtside-billing/internal/billing/ledger"
	"courtside-billing/internal/billing/provider"
	"courtside-billing/internal/common/errors"
	"courtside-billing/internal/common/logger"
	"courtside-billing/internal/common/metrics"
	"courtside-billing/internal/common/validation"
	"courtside-billing/internal/models"
)

const webhookBodyLimit = 1024 * 1024 // 1MiB

// subscriptionSchema guards the fields we read out of subscription events
// before any of them are trusted.
const subscriptionSchema = `{
	"type": "object",
	"required": ["id", "customer", "status"],
	"properties": {
		"id": {"type": "string", "minLength": 1},
		"customer": {"type": "string", "minLength": 1},
		"status": {"type": "string", "minLength": 1},
		"items": {"type": "object"}
	}
}`

// Reconciler applies billing facts. Satisfied by the reconciliation engine.
type Reconciler interface {
	Reconcile(ctx context.Context, fact *models.BillingFact) (*ledger.Entry, error)
}

// WorkspaceResolver maps provider identifiers back to workspaces.
// Find methods return nil, nil when nothing matches.
type WorkspaceResolver interface {
	Get(ctx context.Context, workspaceID string) (*models.Workspace, error)
	FindByCustomerID(ctx context.Context, customerID string) (*models.Workspace, error)
	FindBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Workspace, error)
}

// PlanPricer resolves the price id backing a plan, for events that carry no
// price of their own.
type PlanPricer interface {
	PriceIDForPlan(plan models.WorkspacePlan) (string, bool)
}

// StripeHandler is the POST /webhooks/stripe endpoint.
type StripeHandler struct {
	secret     string
	engine     Reconciler
	workspaces WorkspaceResolver
	fetcher    provider.SubscriptionFetcher
	pricer     PlanPricer
	validator  *validation.PayloadValidator
	log        logger.Logger
}

func NewStripeHandler(secret string, engine Reconciler, workspaces WorkspaceResolver,
	fetcher provider.SubscriptionFetcher, pricer PlanPricer, log logger.Logger) (*StripeHandler, error) {
	validator, err := validation.NewPayloadValidator(subscriptionSchema)
	if err != nil {
		return nil, err
	}
	return &StripeHandler{
		secret:     secret,
		engine:     engine,
		workspaces: workspaces,
		fetcher:    fetcher,
		pricer:     pricer,
		validator:  validator,
		log:        log,
	}, nil
}

// Minimal local views of the event payloads. Only fields the billing core
// consumes are decoded.
type checkoutSessionPayload struct {
	ID           string `json:"id"`
	Mode         string `json:"mode"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
}

type subscriptionPayload struct {
	ID               string `json:"id"`
	Customer         string `json:"customer"`
	Status           string `json:"status"`
	CurrentPeriodEnd int64  `json:"current_period_end"`
	Items            struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
			Price            struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type invoicePayload struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
}

func (h *StripeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, webhookBodyLimit)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.respond(w, "unknown", http.StatusBadRequest, "failed to read body")
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), h.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		h.log.WithError(err).Warn("webhook signature verification failed", nil)
		h.respond(w, "unknown", http.StatusBadRequest, "invalid signature")
		return
	}

	status, note := h.handleEvent(r.Context(), &event)
	h.respond(w, string(event.Type), status, note)
}

func (h *StripeHandler) respond(w http.ResponseWriter, eventType string, status int, note string) {
	metrics.WebhookEvents.WithLabelValues(eventType, strconv.Itoa(status)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"received": status < http.StatusBadRequest,
		"status":   note,
	})
}

// handleEvent routes one verified event. The return contract follows Stripe
// retry semantics: 2xx stops redelivery, 5xx requests it. Permanently bad
// events are acknowledged with 200 so a poison event cannot wedge the queue.
func (h *StripeHandler) handleEvent(ctx context.Context, event *stripe.Event) (int, string) {
	switch event.Type {
	case "checkout.session.completed":
		return h.handleCheckoutCompleted(ctx, event)
	case "customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.deleted":
		return h.handleSubscriptionEvent(ctx, event)
	case "invoice.payment_failed":
		return h.handlePaymentFailed(ctx, event)
	default:
		h.log.Debug("webhook event ignored", map[string]interface{}{
			"event_type": string(event.Type),
			"event_id":   event.ID,
		})
		return http.StatusOK, "ignored"
	}
}

func (h *StripeHandler) handleCheckoutCompleted(ctx context.Context, event *stripe.Event) (int, string) {
	var session checkoutSessionPayload
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		h.log.WithError(err).Warn("malformed checkout session payload", map[string]interface{}{
			"event_id": event.ID,
		})
		return http.StatusOK, "malformed payload ignored"
	}
	if session.Mode != "" && session.Mode != "subscription" {
		return http.StatusOK, "non-subscription checkout ignored"
	}
	if session.Subscription == "" {
		return http.StatusOK, "checkout without subscription ignored"
	}

	// The session payload carries no price or status; ask the provider.
	state, err := h.fetcher.FetchSubscription(ctx, session.Subscription)
	if err != nil {
		h.log.WithError(err).Error("checkout subscription fetch failed", map[string]interface{}{
			"event_id":        event.ID,
			"subscription_id": session.Subscription,
		})
		return http.StatusInternalServerError, "provider fetch failed"
	}

	ws, err := h.resolveWorkspace(ctx, state.CustomerID, state.SubscriptionID)
	if err != nil {
		return http.StatusInternalServerError, "workspace lookup failed"
	}
	if ws == nil {
		h.logUnmatched(event.ID, state.CustomerID, state.SubscriptionID)
		return http.StatusOK, "no matching workspace"
	}

	return h.apply(ctx, event, &models.BillingFact{
		WorkspaceID:            ws.ID,
		ExternalPriceID:        state.PriceID,
		ExternalStatus:         state.Status,
		Source:                 models.SourceWebhook,
		ExternalEventID:        &event.ID,
		ExternalCustomerID:     &state.CustomerID,
		ExternalSubscriptionID: &state.SubscriptionID,
		CurrentPeriodEnd:       state.CurrentPeriodEnd,
		ObservedAt:             time.Now().UTC(),
	})
}

func (h *StripeHandler) handleSubscriptionEvent(ctx context.Context, event *stripe.Event) (int, string) {
	if res := h.validator.Validate(event.Data.Raw); !res.Valid {
		h.log.Warn("subscription payload failed validation", map[string]interface{}{
			"event_id": event.ID,
			"errors":   res.GetErrorMessages(),
		})
		return http.StatusOK, "invalid payload ignored"
	}

	var sub subscriptionPayload
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return http.StatusOK, "malformed payload ignored"
	}

	ws, err := h.resolveWorkspace(ctx, sub.Customer, sub.ID)
	if err != nil {
		return http.StatusInternalServerError, "workspace lookup failed"
	}
	if ws == nil {
		h.logUnmatched(event.ID, sub.Customer, sub.ID)
		return http.StatusOK, "no matching workspace"
	}

	priceID := firstPriceID(&sub)
	if priceID == "" {
		// Deleted subscriptions can arrive without items; the status change
		// is what matters, so keep the plan the workspace already holds.
		if id, ok := h.pricer.PriceIDForPlan(ws.Plan); ok {
			priceID = id
		} else {
			return http.StatusOK, "no price to reconcile"
		}
	}

	fact := &models.BillingFact{
		WorkspaceID:            ws.ID,
		ExternalPriceID:        priceID,
		ExternalStatus:         sub.Status,
		Source:                 models.SourceWebhook,
		ExternalEventID:        &event.ID,
		ExternalCustomerID:     &sub.Customer,
		ExternalSubscriptionID: &sub.ID,
		ObservedAt:             time.Now().UTC(),
	}
	if end := periodEnd(&sub); end > 0 {
		t := time.Unix(end, 0).UTC()
		fact.CurrentPeriodEnd = &t
	}
	return h.apply(ctx, event, fact)
}

func (h *StripeHandler) handlePaymentFailed(ctx context.Context, event *stripe.Event) (int, string) {
	var inv invoicePayload
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return http.StatusOK, "malformed payload ignored"
	}
	if inv.Customer == "" {
		return http.StatusOK, "invoice without customer ignored"
	}

	ws, err := h.resolveWorkspace(ctx, inv.Customer, inv.Subscription)
	if err != nil {
		return http.StatusInternalServerError, "workspace lookup failed"
	}
	if ws == nil {
		h.logUnmatched(event.ID, inv.Customer, inv.Subscription)
		return http.StatusOK, "no matching workspace"
	}

	// Payment failure is a status-only signal; the plan stays what it is.
	priceID, ok := h.pricer.PriceIDForPlan(ws.Plan)
	if !ok {
		return http.StatusOK, "free workspace, nothing to reconcile"
	}
	return h.apply(ctx, event, &models.BillingFact{
		WorkspaceID:        ws.ID,
		ExternalPriceID:    priceID,
		ExternalStatus:     "past_due",
		Source:             models.SourceWebhook,
		ExternalEventID:    &event.ID,
		ExternalCustomerID: &inv.Customer,
		ObservedAt:         time.Now().UTC(),
	})
}

func (h *StripeHandler) apply(ctx context.Context, event *stripe.Event, fact *models.BillingFact) (int, string) {
	entry, err := h.engine.Reconcile(ctx, fact)
	if err != nil {
		if errors.IsRetryable(err) {
			h.log.WithError(err).Error("reconciliation failed, requesting redelivery", map[string]interface{}{
				"event_id":     event.ID,
				"workspace_id": fact.WorkspaceID,
			})
			return http.StatusInternalServerError, "reconciliation failed"
		}
		h.log.WithError(err).Warn("event permanently rejected", map[string]interface{}{
			"event_id":     event.ID,
			"workspace_id": fact.WorkspaceID,
			"error_code":   string(errors.CodeOf(err)),
		})
		return http.StatusOK, "rejected"
	}
	if entry == nil {
		return http.StatusOK, "no-op"
	}
	return http.StatusOK, string(entry.Type)
}

func (h *StripeHandler) resolveWorkspace(ctx context.Context, customerID, subscriptionID string) (*models.Workspace, error) {
	if subscriptionID != "" {
		ws, err := h.workspaces.FindBySubscriptionID(ctx, subscriptionID)
		if err != nil || ws != nil {
			return ws, err
		}
	}
	if customerID != "" {
		return h.workspaces.FindByCustomerID(ctx, customerID)
	}
	return nil, nil
}

func (h *StripeHandler) logUnmatched(eventID, customerID, subscriptionID string) {
	h.log.Warn("webhook event matched no workspace", map[string]interface{}{
		"event_id":        eventID,
		"customer_id":     customerID,
		"subscription_id": subscriptionID,
	})
}

func firstPriceID(sub *subscriptionPayload) string {
	for _, item := range sub.Items.Data {
		if item.Price.ID != "" {
			return item.Price.ID
		}
	}
	return ""
}

func periodEnd(sub *subscriptionPayload) int64 {
	for _, item := range sub.Items.Data {
		if item.CurrentPeriodEnd > 0 {
			return item.CurrentPeriodEnd
		}
	}
	return sub.CurrentPeriodEnd
}
