package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	appintegration "github.com/erp/ordersync/internal/application/integration"
	"github.com/erp/ordersync/internal/domain/integration"
)

// fakeRunner records calls and answers from a gate
type fakeRunner struct {
	mu      sync.Mutex
	gate    appintegration.RunGate
	results []appintegration.SyncResult
	calls   []integration.SyncOptions
}

func (r *fakeRunner) nextResult(opts integration.SyncOptions) appintegration.SyncResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, opts)
	res := appintegration.SyncResult{Success: true, Count: 1}
	if len(r.results) > 0 {
		res = r.results[0]
		r.results = r.results[1:]
	}
	res.Trigger = opts.Trigger
	return res
}

func (r *fakeRunner) RunIncrementalSync(ctx context.Context, opts integration.SyncOptions) appintegration.SyncResult {
	if err := r.gate.Acquire(ctx); err != nil {
		return appintegration.SyncResult{Success: false, Error: err.Error()}
	}
	defer r.gate.Release(ctx)
	return r.nextResult(opts)
}

func (r *fakeRunner) TryRunIncrementalSync(ctx context.Context, opts integration.SyncOptions) (appintegration.SyncResult, bool) {
	ok, _ := r.gate.TryAcquire(ctx)
	if !ok {
		return appintegration.SyncResult{}, false
	}
	defer r.gate.Release(ctx)
	return r.nextResult(opts), true
}

func (r *fakeRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestSyncSchedulerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  SyncSchedulerConfig
		wantErr bool
	}{
		{"defaults", DefaultSyncSchedulerConfig(), false},
		{"enabled without interval", SyncSchedulerConfig{Enabled: true}, true},
		{"disabled without interval", SyncSchedulerConfig{}, false},
		{"negative history", SyncSchedulerConfig{Interval: time.Minute, HistorySize: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSyncScheduler_TickSkippedWhileGateHeld(t *testing.T) {
	gate := NewLocalGate()
	runner := &fakeRunner{gate: gate}
	core, recorded := observer.New(zapcore.InfoLevel)

	s, err := NewSyncScheduler(DefaultSyncSchedulerConfig(), runner, nil, zap.New(core))
	require.NoError(t, err)

	require.NoError(t, gate.Acquire(context.Background()))
	s.tick(context.Background())

	assert.Equal(t, 0, runner.callCount())
	assert.Equal(t, int64(1), s.Status().Skipped)
	assert.Empty(t, s.History(0))
	assert.Len(t, recorded.FilterMessage("Skipping scheduled sync, another run holds the gate").All(), 1)

	gate.Release(context.Background())
	s.tick(context.Background())

	assert.Equal(t, 1, runner.callCount())
	history := s.History(0)
	require.Len(t, history, 1)
	assert.Equal(t, integration.SyncTriggerScheduled, history[0].Result.Trigger)
}

func TestSyncScheduler_RunNowRecordsHistory(t *testing.T) {
	runner := &fakeRunner{
		gate: NewLocalGate(),
		results: []appintegration.SyncResult{
			{Success: true, Count: 10},
			{Success: false, Error: "integration: remote returned an empty page"},
			{Success: true, Count: 3},
		},
	}
	cfg := DefaultSyncSchedulerConfig()
	cfg.HistorySize = 2

	s, err := NewSyncScheduler(cfg, runner, nil, zap.NewNop())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		s.RunNow(context.Background(), integration.SyncOptions{})
	}

	status := s.Status()
	assert.Equal(t, int64(2), status.Completed)
	assert.Equal(t, int64(1), status.Failed)
	assert.Equal(t, int32(0), status.InFlight)
	require.NotNil(t, status.LastRun)
	assert.Equal(t, 3, status.LastRun.Result.Count)

	history := s.History(10)
	require.Len(t, history, 2, "history is bounded")
	assert.Equal(t, 3, history[0].Result.Count)
	assert.False(t, history[1].Result.Success)
	assert.Equal(t, integration.SyncTriggerManual, history[0].Result.Trigger)
}

func TestSyncScheduler_ManualRunWaitsForPeriodicRun(t *testing.T) {
	gate := NewLocalGate()
	runner := &fakeRunner{gate: gate}
	s, err := NewSyncScheduler(DefaultSyncSchedulerConfig(), runner, nil, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, gate.Acquire(context.Background()))

	done := make(chan appintegration.SyncResult, 1)
	go func() {
		done <- s.RunNow(context.Background(), integration.SyncOptions{Trigger: integration.SyncTriggerCLI})
	}()

	assert.Eventually(t, func() bool { return s.Status().InFlight == 1 }, time.Second, 5*time.Millisecond)
	gate.Release(context.Background())

	select {
	case result := <-done:
		assert.True(t, result.Success)
		assert.Equal(t, integration.SyncTriggerCLI, result.Trigger)
	case <-time.After(2 * time.Second):
		t.Fatal("manual run never acquired the gate")
	}
}

func TestSyncScheduler_StartStop(t *testing.T) {
	runner := &fakeRunner{gate: NewLocalGate()}
	cfg := SyncSchedulerConfig{Enabled: true, Interval: 10 * time.Millisecond, RunOnStart: true, HistorySize: 5}

	s, err := NewSyncScheduler(cfg, runner, nil, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Start(context.Background()), "second start is a no-op")
	assert.True(t, s.Status().Running)

	assert.Eventually(t, func() bool { return runner.callCount() >= 2 }, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.Status().Running)
	require.NoError(t, s.Stop(ctx), "second stop is a no-op")
}

func TestSyncScheduler_DisabledDoesNotTick(t *testing.T) {
	runner := &fakeRunner{gate: NewLocalGate()}
	s, err := NewSyncScheduler(SyncSchedulerConfig{Enabled: false, RunOnStart: true}, runner, nil, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 0, runner.callCount())
	assert.False(t, s.Status().Running)

	result := s.RunNow(context.Background(), integration.SyncOptions{})
	assert.True(t, result.Success, "manual runs work with the ticker off")
}
