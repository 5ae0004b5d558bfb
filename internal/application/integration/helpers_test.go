package integration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/erp/ordersync/internal/domain/integration"
)

var testNow = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

// ---------------------------------------------------------------------------
// Fetcher
// ---------------------------------------------------------------------------

type fetchStep struct {
	resp *integration.OrderPullResponse
	err  error
}

// scriptedFetcher replays steps in order and repeats the last one when exhausted
type scriptedFetcher struct {
	mu       sync.Mutex
	steps    []fetchStep
	next     func(req integration.OrderPullRequest) fetchStep
	requests []integration.OrderPullRequest
}

func (f *scriptedFetcher) FetchPage(_ context.Context, req integration.OrderPullRequest) (*integration.OrderPullResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	var step fetchStep
	switch {
	case f.next != nil:
		step = f.next(req)
	case len(f.requests) <= len(f.steps):
		step = f.steps[len(f.requests)-1]
	default:
		step = f.steps[len(f.steps)-1]
	}
	return step.resp, step.err
}

func (f *scriptedFetcher) calls() []integration.OrderPullRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]integration.OrderPullRequest(nil), f.requests...)
}

func page(pageSize int, orders ...integration.RemoteOrder) fetchStep {
	return fetchStep{resp: &integration.OrderPullResponse{
		Orders:     orders,
		TotalCount: int64(len(orders)),
		PageSize:   pageSize,
		Attempts:   1,
	}}
}

func failedFetch(err error) fetchStep {
	return fetchStep{err: err}
}

// remoteOrders builds n payloads named <prefix>-<i>
func remoteOrders(prefix string, n int) []integration.RemoteOrder {
	out := make([]integration.RemoteOrder, n)
	for i := range out {
		out[i] = integration.RemoteOrder{
			OrderID:       fmt.Sprintf("%s-%d", prefix, i+1),
			StoreName:     "store-a",
			MarketplaceID: "ATVPDKIKX0DER",
			Status:        "Shipped",
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Writer and repositories
// ---------------------------------------------------------------------------

// memoryWriter records saved order ids and can fail on one id
type memoryWriter struct {
	mu     sync.Mutex
	saved  []string
	failOn string
}

func (w *memoryWriter) SaveOrder(_ context.Context, order *integration.RemoteOrder) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if order == nil || !order.HasID() {
		return false, nil
	}
	if w.failOn != "" && order.OrderID == w.failOn {
		return false, integration.WrapPersistence(errors.New("deadlock detected"))
	}
	w.saved = append(w.saved, order.OrderID)
	return true, nil
}

func (w *memoryWriter) savedIDs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.saved...)
}

// MockOrderRepository is a mock implementation of integration.OrderRepository
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) FindByOrderID(ctx context.Context, orderID string) ([]integration.Order, error) {
	args := m.Called(ctx, orderID)
	rows, _ := args.Get(0).([]integration.Order)
	return rows, args.Error(1)
}

func (m *MockOrderRepository) StoreWatermarks(ctx context.Context) ([]integration.StoreWatermark, error) {
	args := m.Called(ctx)
	marks, _ := args.Get(0).([]integration.StoreWatermark)
	return marks, args.Error(1)
}

func (m *MockOrderRepository) LatestPurchaseDate(ctx context.Context) (*time.Time, error) {
	args := m.Called(ctx)
	latest, _ := args.Get(0).(*time.Time)
	return latest, args.Error(1)
}

func (m *MockOrderRepository) UpdateLocalNote(ctx context.Context, orderID string, storeName *string, note string) error {
	args := m.Called(ctx, orderID, storeName, note)
	return args.Error(0)
}

var _ integration.OrderRepository = (*MockOrderRepository)(nil)

// memoryRunLog keeps appended sync runs
type memoryRunLog struct {
	mu   sync.Mutex
	runs []integration.SyncRun
	err  error
}

func (l *memoryRunLog) Append(_ context.Context, run *integration.SyncRun) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.runs = append(l.runs, *run)
	return nil
}

func (l *memoryRunLog) ListRecent(_ context.Context, limit int) ([]integration.SyncRun, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]integration.SyncRun, 0, len(l.runs))
	for i := len(l.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.runs[i])
	}
	return out, nil
}

func (l *memoryRunLog) all() []integration.SyncRun {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]integration.SyncRun(nil), l.runs...)
}

var _ integration.SyncRunRepository = (*memoryRunLog)(nil)

func timePtr(t time.Time) *time.Time { return &t }

func strPtr(s string) *string { return &s }
