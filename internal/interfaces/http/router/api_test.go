package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appintegration "github.com/erp/ordersync/internal/application/integration"
	"github.com/erp/ordersync/internal/domain/integration"
	"github.com/erp/ordersync/internal/domain/report"
	"github.com/erp/ordersync/internal/infrastructure/scheduler"
	"github.com/erp/ordersync/internal/interfaces/http/handler"
	"github.com/erp/ordersync/internal/interfaces/http/middleware"
)

type stubScheduler struct{}

func (stubScheduler) RunNow(_ context.Context, opts integration.SyncOptions) appintegration.SyncResult {
	return appintegration.SyncResult{Success: true, Mode: opts.EffectiveMode(), Trigger: opts.Trigger}
}
func (stubScheduler) Status() scheduler.Status          { return scheduler.Status{Enabled: true} }
func (stubScheduler) History(int) []scheduler.RunRecord { return nil }

type stubOrders struct{}

func (stubOrders) SyncSpecificOrders(_ context.Context, ids []string) appintegration.SpecificSyncResult {
	return appintegration.SpecificSyncResult{Success: true, Count: len(ids), Requested: len(ids), Chunks: 1}
}

func (stubOrders) RefreshOneOrder(context.Context, string) appintegration.RefreshResult {
	return appintegration.RefreshResult{Msg: integration.ErrOrderNotFound.Error(), Outcome: "not_found"}
}

type stubRuns struct{}

func (stubRuns) Append(context.Context, *integration.SyncRun) error { return nil }
func (stubRuns) ListRecent(context.Context, int) ([]integration.SyncRun, error) {
	return []integration.SyncRun{}, nil
}

type stubNotes struct{}

func (stubNotes) UpdateLocalNote(context.Context, string, *string, string) error { return nil }

type stubRollups struct{}

func (stubRollups) GetSalesRollup(_ context.Context, _ report.RollupFilter, dim report.Dimension, _ report.SortSpec) (*report.SalesRollup, error) {
	return &report.SalesRollup{Dimension: dim, Rows: []report.SalesRollupRow{}}, nil
}

func newTestAPI(t *testing.T, burst int) http.Handler {
	t.Helper()
	orders := stubOrders{}
	engine, err := NewEngine(EngineConfig{
		ServiceName:         "order-sync-test",
		MaxBodySize:         1 << 10,
		SyncTriggerInterval: time.Hour,
		SyncTriggerBurst:    burst,
	}, Handlers{
		Sync:   handler.NewSyncHandler(stubScheduler{}, orders, stubRuns{}, nil),
		Orders: handler.NewOrderHandler(orders, stubNotes{}),
		Report: handler.NewReportHandler(stubRollups{}),
		System: handler.NewSystemHandler("order-sync", "test", nil),
	}, zap.NewNop())
	require.NoError(t, err)
	return engine
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestNewEngine_Routes(t *testing.T) {
	api := newTestAPI(t, 5)

	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/health", "", http.StatusOK},
		{http.MethodGet, "/api/v1/health", "", http.StatusOK},
		{http.MethodGet, "/api/v1/system/info", "", http.StatusOK},
		{http.MethodGet, "/api/v1/system/ping", "", http.StatusOK},
		{http.MethodPost, "/api/v1/sync/runs", `{"mode":"incremental"}`, http.StatusOK},
		{http.MethodGet, "/api/v1/sync/runs", "", http.StatusOK},
		{http.MethodGet, "/api/v1/sync/status", "", http.StatusOK},
		{http.MethodPost, "/api/v1/sync/orders", `{"order_ids":["A-1"]}`, http.StatusOK},
		{http.MethodGet, "/api/v1/orders/A-1", "", http.StatusNotFound},
		{http.MethodPatch, "/api/v1/orders/A-1/note", `{"note":"hello"}`, http.StatusOK},
		{http.MethodGet, "/api/v1/reports/sales-rollup?dimension=seller_sku", "", http.StatusOK},
		{http.MethodGet, "/api/v1/reports/sales-rollup?dimension=color", "", http.StatusBadRequest},
		{http.MethodGet, "/api/v1/unknown", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := serve(api, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
		})
	}
}

func TestNewEngine_SyncTriggerRateLimited(t *testing.T) {
	api := newTestAPI(t, 1)

	first := serve(api, http.MethodPost, "/api/v1/sync/runs", `{}`)
	second := serve(api, http.MethodPost, "/api/v1/sync/runs", `{}`)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)

	// reads are not limited
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(api, http.MethodGet, "/api/v1/sync/runs", "").Code)
	}
}

func TestNewEngine_BodyLimit(t *testing.T) {
	api := newTestAPI(t, 5)

	big := `{"order_ids":["` + strings.Repeat("x", 2048) + `"]}`
	w := serve(api, http.MethodPost, "/api/v1/sync/orders", big)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
