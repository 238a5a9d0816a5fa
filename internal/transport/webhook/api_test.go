// internal/transport/webhook/api_test.go
package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courtside-billing/internal/billing/ledger"
	"courtside-billing/internal/billing/limits"
	"courtside-billing/internal/common/logger"
	"courtside-billing/internal/common/metrics"
	"courtside-billing/internal/models"
)

type fakeLedgerReader struct {
	entries []*ledger.Entry
	err     error

	lastSource models.FactSource
	lastType   ledger.EntryType
}

func (f *fakeLedgerReader) Recent(_ context.Context, _ string, _ int) ([]*ledger.Entry, error) {
	return f.entries, f.err
}

func (f *fakeLedgerReader) RecentBySource(_ context.Context, _ string, source models.FactSource, _ int) ([]*ledger.Entry, error) {
	f.lastSource = source
	return f.entries, f.err
}

func (f *fakeLedgerReader) RecentByType(_ context.Context, _ string, entryType ledger.EntryType, _ int) ([]*ledger.Entry, error) {
	f.lastType = entryType
	return f.entries, f.err
}

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

func newTestRouter(t *testing.T, resolver *fakeResolver, entries *fakeLedgerReader) *http.ServeMux {
	t.Helper()
	stripe := newTestHandler(t, &fakeReconciler{}, resolver, nil)
	api := NewAPIHandler(resolver, entries, limits.New(testCatalog()), logger.NewTestLogger(t))
	health := NewHealthHandler(map[string]Pinger{"postgres": okPinger{}})
	return NewRouter(stripe, api, health)
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestLimitsEndpoint(t *testing.T) {
	ws := activeWorkspace()
	ws.Plan = models.PlanStarter
	ws.Usage = models.Usage{PlayerCount: 4, GamesThisMonth: 50, StorageMB: 10}
	router := newTestRouter(t, &fakeResolver{byID: map[string]*models.Workspace{"ws_1": ws}}, &fakeLedgerReader{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/workspaces/ws_1/limits", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, "starter", body["plan"])
	resources := body["resources"].(map[string]interface{})
	games := resources["games_per_month"].(map[string]interface{})
	assert.Equal(t, "critical", games["state"])
	players := resources["players"].(map[string]interface{})
	assert.Equal(t, "warning", players["state"])
}

func TestLimitsEndpointUnlimitedResource(t *testing.T) {
	ws := activeWorkspace()
	ws.Plan = models.PlanPro
	ws.Usage = models.Usage{PlayerCount: 10000}
	router := newTestRouter(t, &fakeResolver{byID: map[string]*models.Workspace{"ws_1": ws}}, &fakeLedgerReader{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/workspaces/ws_1/limits", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	resources := decodeBody(t, rr)["resources"].(map[string]interface{})
	players := resources["players"].(map[string]interface{})
	assert.Equal(t, true, players["unlimited"])
	assert.Equal(t, "ok", players["state"])
}

func TestLimitsEndpointWorkspaceNotFound(t *testing.T) {
	router := newTestRouter(t, &fakeResolver{}, &fakeLedgerReader{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/workspaces/ws_ghost/limits", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestLedgerEndpoint(t *testing.T) {
	entries := &fakeLedgerReader{entries: []*ledger.Entry{
		{
			ID:           "le_1",
			WorkspaceID:  "ws_1",
			Timestamp:    time.Now().UTC(),
			Type:         ledger.TypeStatusChange,
			Source:       models.SourceWebhook,
			StatusBefore: models.StatusTrial,
			StatusAfter:  models.StatusActive,
			PlanBefore:   models.PlanStarter,
			PlanAfter:    models.PlanPlus,
		},
	}}
	router := newTestRouter(t, &fakeResolver{byID: map[string]*models.Workspace{"ws_1": activeWorkspace()}}, entries)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/workspaces/ws_1/ledger", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	list := body["entries"].([]interface{})
	require.Len(t, list, 1)
	first := list[0].(map[string]interface{})
	assert.Equal(t, "status_change", first["type"])
}

func TestLedgerEndpointFilters(t *testing.T) {
	entries := &fakeLedgerReader{}
	router := newTestRouter(t, &fakeResolver{byID: map[string]*models.Workspace{"ws_1": activeWorkspace()}}, entries)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/workspaces/ws_1/ledger?source=auditor", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, models.SourceAuditor, entries.lastSource)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/workspaces/ws_1/ledger?type=drift_correction", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, ledger.TypeDriftCorrection, entries.lastType)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/workspaces/ws_1/ledger?source=cron", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAccessEndpointAllowed(t *testing.T) {
	router := newTestRouter(t, &fakeResolver{byID: map[string]*models.Workspace{"ws_1": activeWorkspace()}}, &fakeLedgerReader{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/workspaces/ws_1/access?op=write", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, true, body["allowed"])
}

func TestAccessEndpointDeniesPastDueWrites(t *testing.T) {
	ws := activeWorkspace()
	ws.Status = models.StatusPastDue
	router := newTestRouter(t, &fakeResolver{byID: map[string]*models.Workspace{"ws_1": ws}}, &fakeLedgerReader{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/workspaces/ws_1/access?op=write", nil))

	require.Equal(t, http.StatusForbidden, rr.Code)
	body := decodeBody(t, rr)
	assert.Equal(t, "PAYMENT_PAST_DUE", body["error"])
	assert.Equal(t, "past_due", body["status"])
	assert.Contains(t, body["message"], "past due")

	// Reads stay open during the grace period.
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/workspaces/ws_1/access?op=read", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestAccessEndpointCountsDenials(t *testing.T) {
	ws := activeWorkspace()
	ws.Status = models.StatusCanceled
	router := newTestRouter(t, &fakeResolver{byID: map[string]*models.Workspace{"ws_1": ws}}, &fakeLedgerReader{})

	counter := metrics.AccessDenied.WithLabelValues("SUBSCRIPTION_CANCELED")
	before := testutil.ToFloat64(counter)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/workspaces/ws_1/access?op=write", nil))
	require.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))

	// Allowed checks leave the counter alone.
	ws.Status = models.StatusActive
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/workspaces/ws_1/access?op=write", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, &fakeResolver{}, &fakeLedgerReader{})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody(t, rr)
	backends := body["backends"].(map[string]interface{})
	assert.Equal(t, "ok", backends["postgres"])
}
