package integration

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/erp/ordersync/internal/domain/integration"
)

// RunGate serialises driver runs. The periodic scheduler uses TryAcquire and
// skips when the gate is held; manual runs block in Acquire.
type RunGate interface {
	TryAcquire(ctx context.Context) (bool, error)
	Acquire(ctx context.Context) error
	Release(ctx context.Context)
}

// SyncRunner executes one gated driver run
type SyncRunner interface {
	RunIncrementalSync(ctx context.Context, opts integration.SyncOptions) SyncResult
	TryRunIncrementalSync(ctx context.Context, opts integration.SyncOptions) (SyncResult, bool)
}

// OrderSyncService is the application entry point of the sync engine
type OrderSyncService struct {
	driver    *SyncDriver
	refresher *OrderRefresher
	gate      RunGate
	logger    *zap.Logger
}

// NewOrderSyncService creates the service. A nil gate never blocks.
func NewOrderSyncService(driver *SyncDriver, refresher *OrderRefresher, gate RunGate, logger *zap.Logger) *OrderSyncService {
	return &OrderSyncService{
		driver:    driver,
		refresher: refresher,
		gate:      gate,
		logger:    logger.Named("order_sync_service"),
	}
}

// RunIncrementalSync waits for the run gate, bounded by ctx, then runs the
// driver. Once started the run is detached from ctx: it cannot be cancelled
// mid-run and only individual remote calls time out.
func (s *OrderSyncService) RunIncrementalSync(ctx context.Context, opts integration.SyncOptions) SyncResult {
	if err := opts.Validate(); err != nil {
		return SyncResult{Success: false, Error: err.Error(), Mode: opts.EffectiveMode(), Trigger: opts.EffectiveTrigger(), Stop: StopFailed}
	}
	if s.gate != nil {
		if err := s.gate.Acquire(ctx); err != nil {
			s.logger.Warn("Sync run gate not acquired", zap.Error(err))
			return SyncResult{
				Success: false,
				Error:   fmt.Errorf("%w: %v", ErrRunInProgress, err).Error(),
				Mode:    opts.EffectiveMode(),
				Trigger: opts.EffectiveTrigger(),
				Stop:    StopFailed,
			}
		}
		defer s.gate.Release(context.WithoutCancel(ctx))
	}
	return s.driver.Run(context.WithoutCancel(ctx), opts)
}

// TryRunIncrementalSync runs the driver only if the gate is free. The second
// return value is false when the run was skipped. Like RunIncrementalSync,
// a started run ignores cancellation of ctx.
func (s *OrderSyncService) TryRunIncrementalSync(ctx context.Context, opts integration.SyncOptions) (SyncResult, bool) {
	if s.gate != nil {
		acquired, err := s.gate.TryAcquire(ctx)
		if err != nil {
			s.logger.Warn("Sync run gate unavailable", zap.Error(err))
			return SyncResult{}, false
		}
		if !acquired {
			return SyncResult{}, false
		}
		defer s.gate.Release(context.WithoutCancel(ctx))
	}
	return s.driver.Run(context.WithoutCancel(ctx), opts), true
}

// SyncSpecificOrders refreshes a list of known ids. It bypasses the run gate.
func (s *OrderSyncService) SyncSpecificOrders(ctx context.Context, orderIDs []string) SpecificSyncResult {
	return s.refresher.SyncSpecificOrders(ctx, orderIDs)
}

// RefreshOneOrder is the read path with hot refresh. It bypasses the run gate.
func (s *OrderSyncService) RefreshOneOrder(ctx context.Context, orderID string) RefreshResult {
	return s.refresher.RefreshOneOrder(ctx, orderID)
}

var _ SyncRunner = (*OrderSyncService)(nil)
