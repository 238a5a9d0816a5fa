// internal/transport/webhook/api.go
package webhook

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"

	"courtside-billing/internal/billing/access"
	"courtside-billing/internal/billing/catalog"
	"courtside-billing/internal/billing/ledger"
	"courtside-billing/internal/billing/limits"
	"courtside-billing/internal/common/errors"
	"courtside-billing/internal/common/logger"
	"courtside-billing/internal/common/metrics"
	"courtside-billing/internal/models"
)

// LedgerReader exposes workspace billing history for the read API.
type LedgerReader interface {
	Recent(ctx context.Context, workspaceID string, limit int) ([]*ledger.Entry, error)
	RecentBySource(ctx context.Context, workspaceID string, source models.FactSource, limit int) ([]*ledger.Entry, error)
	RecentByType(ctx context.Context, workspaceID string, entryType ledger.EntryType, limit int) ([]*ledger.Entry, error)
}

// Pinger reports backend liveness for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// APIHandler serves the read-only billing endpoints: usage limits, ledger
// history, and the access check used by the application layer.
type APIHandler struct {
	workspaces WorkspaceResolver
	entries    LedgerReader
	limiter    *limits.Limiter
	log        logger.Logger
}

func NewAPIHandler(workspaces WorkspaceResolver, entries LedgerReader, limiter *limits.Limiter, log logger.Logger) *APIHandler {
	return &APIHandler{
		workspaces: workspaces,
		entries:    entries,
		limiter:    limiter,
		log:        log,
	}
}

// NewRouter assembles the HTTP surface. The Stripe endpoint stays on its own
// path; everything under /api is the tenant-facing read API.
func NewRouter(stripe *StripeHandler, api *APIHandler, health http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("POST /webhooks/stripe", stripe)
	mux.HandleFunc("GET /api/workspaces/{id}/limits", api.handleLimits)
	mux.HandleFunc("GET /api/workspaces/{id}/ledger", api.handleLedger)
	mux.HandleFunc("GET /api/workspaces/{id}/access", api.handleAccess)
	mux.Handle("GET /healthz", health)
	return mux
}

func (a *APIHandler) handleLimits(w http.ResponseWriter, r *http.Request) {
	ws, ok := a.loadWorkspace(w, r)
	if !ok {
		return
	}

	evaluated := a.limiter.Evaluate(ws)
	resources := make(map[string]interface{}, len(evaluated))
	for kind, rl := range evaluated {
		entry := map[string]interface{}{
			"used":  rl.Used,
			"state": string(rl.State),
		}
		if rl.Limit == catalog.Unlimited {
			entry["unlimited"] = true
		} else {
			entry["limit"] = rl.Limit
		}
		if msg := limits.WarningMessage(kind, rl.State); msg != "" {
			entry["message"] = msg
		}
		resources[string(kind)] = entry
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"workspaceId": ws.ID,
		"plan":        string(ws.Plan),
		"resources":   resources,
	})
}

func (a *APIHandler) handleLedger(w http.ResponseWriter, r *http.Request) {
	ws, ok := a.loadWorkspace(w, r)
	if !ok {
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	var (
		entries []*ledger.Entry
		err     error
	)
	switch {
	case r.URL.Query().Get("source") != "":
		source := models.FactSource(r.URL.Query().Get("source"))
		if !source.Valid() {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "unknown source"})
			return
		}
		entries, err = a.entries.RecentBySource(r.Context(), ws.ID, source, limit)
	case r.URL.Query().Get("type") != "":
		entries, err = a.entries.RecentByType(r.Context(), ws.ID, ledger.EntryType(r.URL.Query().Get("type")), limit)
	default:
		entries, err = a.entries.Recent(r.Context(), ws.ID, limit)
	}
	if err != nil {
		a.log.WithError(err).Error("ledger read failed", map[string]interface{}{
			"workspace_id": ws.ID,
		})
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "ledger unavailable"})
		return
	}
	if entries == nil {
		entries = []*ledger.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"workspaceId": ws.ID,
		"entries":     entries,
	})
}

// handleAccess is the enforcement endpoint the application layer calls
// before tenant operations. op selects the gate: read, write, or payment.
func (a *APIHandler) handleAccess(w http.ResponseWriter, r *http.Request) {
	ws, ok := a.loadWorkspace(w, r)
	if !ok {
		return
	}

	var err error
	op := r.URL.Query().Get("op")
	switch op {
	case "", "write":
		err = access.AssertWritable(ws)
	case "read":
		err = access.AssertReadable(ws)
	case "payment":
		err = access.AssertPaymentCurrent(ws)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "unknown op"})
		return
	}

	if err != nil {
		var denial *access.AccessError
		if stderrors.As(err, &denial) {
			metrics.AccessDenied.WithLabelValues(denial.Code).Inc()
			writeJSON(w, denial.HTTPStatus, denial.ToJSON())
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "access check failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"allowed": true,
		"status":  string(ws.Status),
		"plan":    string(ws.Plan),
	})
}

func (a *APIHandler) loadWorkspace(w http.ResponseWriter, r *http.Request) (*models.Workspace, bool) {
	id := r.PathValue("id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "workspace id required"})
		return nil, false
	}
	ws, err := a.workspaces.Get(r.Context(), id)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeWorkspaceNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "workspace not found"})
			return nil, false
		}
		a.log.WithError(err).Error("workspace load failed", map[string]interface{}{
			"workspace_id": id,
		})
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "storage unavailable"})
		return nil, false
	}
	return ws, true
}

// HealthHandler answers liveness probes and pings each backend.
type HealthHandler struct {
	checks map[string]Pinger
}

func NewHealthHandler(checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{checks: checks}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	backends := make(map[string]string, len(h.checks))
	for name, p := range h.checks {
		if err := p.Ping(r.Context()); err != nil {
			backends[name] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			backends[name] = "ok"
		}
	}
	writeJSON(w, status, map[string]interface{}{
		"status":   http.StatusText(status),
		"backends": backends,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
