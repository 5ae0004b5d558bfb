package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erp/ordersync/internal/domain/integration"
)

// chanGate is a one-slot gate for tests
type chanGate struct {
	slot chan struct{}
}

func newChanGate() *chanGate {
	return &chanGate{slot: make(chan struct{}, 1)}
}

func (g *chanGate) TryAcquire(context.Context) (bool, error) {
	select {
	case g.slot <- struct{}{}:
		return true, nil
	default:
		return false, nil
	}
}

func (g *chanGate) Acquire(ctx context.Context) error {
	select {
	case g.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *chanGate) Release(context.Context) {
	<-g.slot
}

func newTestService(t *testing.T, gate RunGate) (*OrderSyncService, *driverFixture) {
	t.Helper()
	f := newDriverFixture(t, DriverConfig{}, page(200, remoteOrders("S", 3)...))
	refresher := newTestRefresher(f.fetcher, f.writer, f.orders, nil, DefaultRefreshConfig())
	return NewOrderSyncService(f.driver, refresher, gate, zap.NewNop()), f
}

func TestOrderSyncService_TryRunSkipsWhenGateHeld(t *testing.T) {
	gate := newChanGate()
	svc, f := newTestService(t, gate)

	require.NoError(t, gate.Acquire(context.Background()))
	_, ran := svc.TryRunIncrementalSync(context.Background(), integration.SyncOptions{Trigger: integration.SyncTriggerScheduled})
	assert.False(t, ran)
	assert.Empty(t, f.fetcher.calls())

	gate.Release(context.Background())
	result, ran := svc.TryRunIncrementalSync(context.Background(), integration.SyncOptions{Trigger: integration.SyncTriggerScheduled})
	assert.True(t, ran)
	assert.True(t, result.Success)
	assert.Equal(t, integration.SyncTriggerScheduled, result.Trigger)

	ok, _ := gate.TryAcquire(context.Background())
	assert.True(t, ok, "gate released after the run")
}

func TestOrderSyncService_ManualRunWaitsForGate(t *testing.T) {
	gate := newChanGate()
	svc, _ := newTestService(t, gate)
	require.NoError(t, gate.Acquire(context.Background()))

	done := make(chan SyncResult, 1)
	go func() {
		done <- svc.RunIncrementalSync(context.Background(), integration.SyncOptions{})
	}()

	select {
	case <-done:
		t.Fatal("manual run must wait while the gate is held")
	case <-time.After(50 * time.Millisecond):
	}

	gate.Release(context.Background())
	select {
	case result := <-done:
		assert.True(t, result.Success, result.Error)
		assert.Equal(t, 3, result.Count)
	case <-time.After(2 * time.Second):
		t.Fatal("manual run did not start after the gate was released")
	}
}

func TestOrderSyncService_ManualRunGivesUpWithContext(t *testing.T) {
	gate := newChanGate()
	svc, f := newTestService(t, gate)
	require.NoError(t, gate.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	result := svc.RunIncrementalSync(ctx, integration.SyncOptions{})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, ErrRunInProgress.Error())
	assert.Empty(t, f.fetcher.calls())
	assert.Empty(t, f.runs.all())
}

func TestOrderSyncService_InvalidOptionsRejectedBeforeGate(t *testing.T) {
	gate := newChanGate()
	svc, _ := newTestService(t, gate)
	require.NoError(t, gate.Acquire(context.Background()))

	result := svc.RunIncrementalSync(context.Background(), integration.SyncOptions{Mode: "weekly"})

	assert.False(t, result.Success)
	assert.Contains(t, result.Error, integration.ErrInvalidSyncOptions.Error())
}

func TestOrderSyncService_RefreshPathsBypassGate(t *testing.T) {
	gate := newChanGate()
	svc, f := newTestService(t, gate)
	require.NoError(t, gate.Acquire(context.Background()))

	f.orders.On("FindByOrderID", mock.Anything, "S-1").
		Return([]integration.Order{storedOrder("S-1", "store-a", time.Minute)}, nil).Once()

	refreshed := svc.RefreshOneOrder(context.Background(), "S-1")
	assert.True(t, refreshed.Success)

	specific := svc.SyncSpecificOrders(context.Background(), []string{"S-1"})
	assert.True(t, specific.Success, specific.Error)
	assert.Equal(t, 3, specific.Count)
}

func TestOrderSyncService_RunSurvivesCallerCancel(t *testing.T) {
	tests := []struct {
		name string
		run  func(ctx context.Context, svc *OrderSyncService) SyncResult
	}{
		{"manual", func(ctx context.Context, svc *OrderSyncService) SyncResult {
			return svc.RunIncrementalSync(ctx, integration.SyncOptions{})
		}},
		{"periodic", func(ctx context.Context, svc *OrderSyncService) SyncResult {
			result, ran := svc.TryRunIncrementalSync(ctx, integration.SyncOptions{Trigger: integration.SyncTriggerScheduled})
			require.True(t, ran)
			return result
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, f := newTestService(t, newChanGate())
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			f.fetcher.next = func(req integration.OrderPullRequest) fetchStep {
				if req.PageNo == 1 {
					cancel()
					return page(200, remoteOrders("P1", 200)...)
				}
				return page(200, remoteOrders("P2", 5)...)
			}

			result := tt.run(ctx, svc)

			require.True(t, result.Success, result.Error)
			assert.Equal(t, 205, result.Count)
			assert.Equal(t, 2, result.Pages)
			assert.Equal(t, StopShortPage, result.Stop)
			require.Len(t, f.runs.all(), 1)
			assert.Equal(t, integration.SyncRunStatusSuccess, f.runs.all()[0].Status)
		})
	}
}
