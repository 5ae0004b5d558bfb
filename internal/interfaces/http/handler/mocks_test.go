package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	appintegration "github.com/erp/ordersync/internal/application/integration"
	"github.com/erp/ordersync/internal/domain/integration"
	"github.com/erp/ordersync/internal/domain/report"
	"github.com/erp/ordersync/internal/infrastructure/scheduler"
	"github.com/erp/ordersync/internal/interfaces/http/middleware"
)

// MockSyncScheduler is a mock implementation of SyncScheduler
type MockSyncScheduler struct {
	mock.Mock
}

func (m *MockSyncScheduler) RunNow(ctx context.Context, opts integration.SyncOptions) appintegration.SyncResult {
	args := m.Called(ctx, opts)
	return args.Get(0).(appintegration.SyncResult)
}

func (m *MockSyncScheduler) Status() scheduler.Status {
	args := m.Called()
	return args.Get(0).(scheduler.Status)
}

func (m *MockSyncScheduler) History(limit int) []scheduler.RunRecord {
	args := m.Called(limit)
	return args.Get(0).([]scheduler.RunRecord)
}

// MockOrderSyncer is a mock implementation of OrderSyncer
type MockOrderSyncer struct {
	mock.Mock
}

func (m *MockOrderSyncer) SyncSpecificOrders(ctx context.Context, orderIDs []string) appintegration.SpecificSyncResult {
	args := m.Called(ctx, orderIDs)
	return args.Get(0).(appintegration.SpecificSyncResult)
}

func (m *MockOrderSyncer) RefreshOneOrder(ctx context.Context, orderID string) appintegration.RefreshResult {
	args := m.Called(ctx, orderID)
	return args.Get(0).(appintegration.RefreshResult)
}

// MockSyncRunRepository is a mock implementation of integration.SyncRunRepository
type MockSyncRunRepository struct {
	mock.Mock
}

func (m *MockSyncRunRepository) Append(ctx context.Context, run *integration.SyncRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockSyncRunRepository) ListRecent(ctx context.Context, limit int) ([]integration.SyncRun, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]integration.SyncRun), args.Error(1)
}

// MockNoteUpdater is a mock implementation of NoteUpdater
type MockNoteUpdater struct {
	mock.Mock
}

func (m *MockNoteUpdater) UpdateLocalNote(ctx context.Context, orderID string, storeName *string, note string) error {
	args := m.Called(ctx, orderID, storeName, note)
	return args.Error(0)
}

// MockRollupService is a mock implementation of RollupService
type MockRollupService struct {
	mock.Mock
}

func (m *MockRollupService) GetSalesRollup(ctx context.Context, filter report.RollupFilter, dimension report.Dimension, sort report.SortSpec) (*report.SalesRollup, error) {
	args := m.Called(ctx, filter, dimension, sort)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*report.SalesRollup), args.Error(1)
}

type stubLimiter struct {
	last   time.Time
	grants int64
}

func (s stubLimiter) LastGrant() time.Time    { return s.last }
func (s stubLimiter) Grants() int64           { return s.grants }
func (s stubLimiter) Interval() time.Duration { return 1100 * time.Millisecond }

// newTestEngine returns an engine with request ids and the custom validators
func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	require.NoError(t, middleware.SetupValidator())
	engine := gin.New()
	engine.Use(middleware.RequestID())
	return engine
}

func doRequest(engine *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func strPtr(s string) *string { return &s }
