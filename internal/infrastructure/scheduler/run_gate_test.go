package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/erp/ordersync/internal/infrastructure/cache"
)

func TestLocalGate(t *testing.T) {
	ctx := context.Background()
	gate := NewLocalGate()

	ok, err := gate.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = gate.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, gate.Acquire(waitCtx), ErrGateWaitCanceled)

	gate.Release(ctx)
	gate.Release(ctx)
	require.NoError(t, gate.Acquire(ctx))
}

func newTestLeaseGate(store LeaseStore) *LeaseGate {
	g := NewLeaseGate(store, "", time.Minute, zap.NewNop())
	g.poll = 5 * time.Millisecond
	return g
}

func TestLeaseGate_RenewsWhileHeld(t *testing.T) {
	ctx := context.Background()
	store := cache.NewInMemoryStore()
	defer store.Close()

	holder := NewLeaseGate(store, "", 60*time.Millisecond, zap.NewNop())
	assert.Equal(t, holder.ttl/3, holder.renewEvery)
	other := newTestLeaseGate(store)

	ok, err := holder.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// several TTLs pass while the run is still going
	time.Sleep(200 * time.Millisecond)
	ok, err = other.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "renewed lease must still be held")

	holder.Release(ctx)
	ok, err = other.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	other.Release(ctx)
}

func TestLeaseGate_ReleaseStopsRenewal(t *testing.T) {
	ctx := context.Background()
	store := &countingLeaseStore{InMemoryStore: cache.NewInMemoryStore(), extends: atomic.NewInt32(0)}
	defer store.Close()

	gate := NewLeaseGate(store, "", 15*time.Millisecond, zap.NewNop())
	ok, err := gate.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Eventually(t, func() bool { return store.extends.Load() >= 2 }, time.Second, time.Millisecond)
	gate.Release(ctx)
	gate.Release(ctx)

	after := store.extends.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, store.extends.Load(), "no renewals after release")
}

// countingLeaseStore counts Extend calls
type countingLeaseStore struct {
	*cache.InMemoryStore
	extends *atomic.Int32
}

func (s *countingLeaseStore) Extend(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	s.extends.Inc()
	return s.InMemoryStore.Extend(ctx, key, owner, ttl)
}

func TestLeaseGate_SharedAcrossInstances(t *testing.T) {
	ctx := context.Background()
	store := cache.NewInMemoryStore()
	defer store.Close()

	first := newTestLeaseGate(store)
	second := newTestLeaseGate(store)
	assert.Equal(t, DefaultGateKey, first.key)

	ok, err := first.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// only the holder can release
	second.Release(ctx)
	ok, _ = second.TryAcquire(ctx)
	assert.False(t, ok)

	acquired := make(chan error, 1)
	go func() { acquired <- second.Acquire(ctx) }()

	time.Sleep(20 * time.Millisecond)
	first.Release(ctx)

	select {
	case err := <-acquired:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("second instance never acquired the lease")
	}
}

func TestLeaseGate_AcquireCanceled(t *testing.T) {
	store := cache.NewInMemoryStore()
	defer store.Close()

	holder := newTestLeaseGate(store)
	waiter := newTestLeaseGate(store)
	_, err := holder.TryAcquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, waiter.Acquire(ctx), ErrGateWaitCanceled)
}

type brokenLeaseStore struct{}

func (brokenLeaseStore) TryAcquire(context.Context, string, string, time.Duration) (bool, error) {
	return false, errors.New("dial tcp: connection refused")
}

func (brokenLeaseStore) Release(context.Context, string, string) (bool, error) {
	return false, errors.New("dial tcp: connection refused")
}

func (brokenLeaseStore) Extend(context.Context, string, string, time.Duration) (bool, error) {
	return false, errors.New("dial tcp: connection refused")
}

func TestLeaseGate_StoreFailure(t *testing.T) {
	gate := newTestLeaseGate(brokenLeaseStore{})

	_, err := gate.TryAcquire(context.Background())
	assert.ErrorIs(t, err, ErrGateUnavailable)
	assert.ErrorIs(t, gate.Acquire(context.Background()), ErrGateUnavailable)
	gate.Release(context.Background())
}
