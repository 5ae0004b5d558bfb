package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appintegration "github.com/erp/ordersync/internal/application/integration"
)

// ---------------------------------------------------------------------------
// LocalGate
// ---------------------------------------------------------------------------

// LocalGate is a one-slot in-process run gate
type LocalGate struct {
	slot chan struct{}
}

// NewLocalGate creates an open gate
func NewLocalGate() *LocalGate {
	return &LocalGate{slot: make(chan struct{}, 1)}
}

// TryAcquire takes the gate if it is free
func (g *LocalGate) TryAcquire(_ context.Context) (bool, error) {
	select {
	case g.slot <- struct{}{}:
		return true, nil
	default:
		return false, nil
	}
}

// Acquire waits for the gate until ctx is done
func (g *LocalGate) Acquire(ctx context.Context) error {
	select {
	case g.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrGateWaitCanceled, ctx.Err())
	}
}

// Release frees the gate. Releasing an open gate is a no-op.
func (g *LocalGate) Release(_ context.Context) {
	select {
	case <-g.slot:
	default:
	}
}

// ---------------------------------------------------------------------------
// LeaseGate
// ---------------------------------------------------------------------------

// LeaseStore grants owner-scoped keys with a TTL. cache.Store implements it.
type LeaseStore interface {
	TryAcquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key, owner string) (bool, error)
	Extend(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
}

// DefaultGateKey is the lease key shared by every instance
const DefaultGateKey = "sync:run_gate"

// LeaseGate shares the run gate between instances through a SETNX lease.
// While held, the lease is renewed every ttl/3, so a run may outlive the
// TTL; the TTL only bounds how long a crashed holder blocks other instances.
type LeaseGate struct {
	store      LeaseStore
	key        string
	owner      string
	ttl        time.Duration
	poll       time.Duration
	renewEvery time.Duration
	logger     *zap.Logger

	mu        sync.Mutex
	stopRenew context.CancelFunc
	renewDone chan struct{}
}

// NewLeaseGate creates a distributed gate
func NewLeaseGate(store LeaseStore, key string, ttl time.Duration, logger *zap.Logger) *LeaseGate {
	if key == "" {
		key = DefaultGateKey
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &LeaseGate{
		store:      store,
		key:        key,
		owner:      uuid.NewString(),
		ttl:        ttl,
		poll:       time.Second,
		renewEvery: ttl / 3,
		logger:     logger.Named("lease_gate"),
	}
}

// TryAcquire takes the lease if no instance holds it
func (g *LeaseGate) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := g.store.TryAcquire(ctx, g.key, g.owner, g.ttl)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrGateUnavailable, err)
	}
	if ok {
		g.startRenewal()
	}
	return ok, nil
}

// Acquire polls for the lease until ctx is done
func (g *LeaseGate) Acquire(ctx context.Context) error {
	ticker := time.NewTicker(g.poll)
	defer ticker.Stop()

	for {
		ok, err := g.TryAcquire(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrGateWaitCanceled, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Release stops renewal and drops the lease if this instance still holds it
func (g *LeaseGate) Release(ctx context.Context) {
	g.stopRenewal()
	if _, err := g.store.Release(ctx, g.key, g.owner); err != nil {
		g.logger.Warn("Failed to release sync run lease", zap.String("key", g.key), zap.Error(err))
	}
}

func (g *LeaseGate) startRenewal() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	g.mu.Lock()
	g.stopRenew = cancel
	g.renewDone = done
	g.mu.Unlock()

	go g.renewLoop(ctx, done)
}

func (g *LeaseGate) stopRenewal() {
	g.mu.Lock()
	cancel, done := g.stopRenew, g.renewDone
	g.stopRenew, g.renewDone = nil, nil
	g.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// renewLoop extends the lease until stopped or until the lease is lost
func (g *LeaseGate) renewLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(g.renewEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		ok, err := g.store.Extend(ctx, g.key, g.owner, g.ttl)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			g.logger.Warn("Failed to renew sync run lease", zap.String("key", g.key), zap.Error(err))
			continue
		}
		if !ok {
			g.logger.Error("Sync run lease lost before release", zap.String("key", g.key))
			return
		}
	}
}

// Ensure gates implement the run gate port
var (
	_ appintegration.RunGate = (*LocalGate)(nil)
	_ appintegration.RunGate = (*LeaseGate)(nil)
)
