package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	appintegration "github.com/erp/ordersync/internal/application/integration"
	"github.com/erp/ordersync/internal/domain/integration"
	"github.com/erp/ordersync/internal/infrastructure/telemetry"
)

// ---------------------------------------------------------------------------
// SyncSchedulerConfig
// ---------------------------------------------------------------------------

// SyncSchedulerConfig holds configuration for the periodic sync scheduler
type SyncSchedulerConfig struct {
	// Enabled turns the periodic ticker on. Manual runs work either way.
	Enabled bool
	// Interval is the time between periodic runs
	Interval time.Duration
	// RunOnStart fires one periodic run immediately after Start
	RunOnStart bool
	// HistorySize bounds the in-memory run history
	HistorySize int
}

// DefaultSyncSchedulerConfig returns default configuration
func DefaultSyncSchedulerConfig() SyncSchedulerConfig {
	return SyncSchedulerConfig{
		Enabled:     true,
		Interval:    15 * time.Minute,
		RunOnStart:  true,
		HistorySize: 50,
	}
}

// Validate validates the configuration
func (c *SyncSchedulerConfig) Validate() error {
	if c.Enabled && c.Interval <= 0 {
		return ErrInvalidConfig
	}
	if c.HistorySize < 0 {
		return ErrInvalidConfig
	}
	return nil
}

// ---------------------------------------------------------------------------
// SyncScheduler
// ---------------------------------------------------------------------------

// RunRecord is one entry of the scheduler's in-memory run history
type RunRecord struct {
	StartedAt  time.Time                 `json:"started_at"`
	FinishedAt time.Time                 `json:"finished_at"`
	Result     appintegration.SyncResult `json:"result"`
}

// Status is a snapshot of the scheduler state
type Status struct {
	Enabled   bool          `json:"enabled"`
	Running   bool          `json:"running"`
	InFlight  int32         `json:"in_flight"`
	Interval  time.Duration `json:"interval"`
	Completed int64         `json:"completed"`
	Failed    int64         `json:"failed"`
	Skipped   int64         `json:"skipped"`
	LastRun   *RunRecord    `json:"last_run,omitempty"`
}

// SyncScheduler triggers incremental runs periodically and on demand.
// Periodic ticks are dropped while another run holds the gate; manual runs
// wait for it.
type SyncScheduler struct {
	config  SyncSchedulerConfig
	runner  appintegration.SyncRunner
	metrics *telemetry.SyncMetrics
	logger  *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning *atomic.Bool

	inFlight  *atomic.Int32
	completed *atomic.Int64
	failed    *atomic.Int64
	skipped   *atomic.Int64

	// Run history for monitoring (in-memory, limited size)
	historyMu  sync.RWMutex
	history    []RunRecord
	maxHistory int

	now func() time.Time
}

// NewSyncScheduler creates a new sync scheduler
func NewSyncScheduler(config SyncSchedulerConfig, runner appintegration.SyncRunner, metrics *telemetry.SyncMetrics, logger *zap.Logger) (*SyncScheduler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.HistorySize == 0 {
		config.HistorySize = DefaultSyncSchedulerConfig().HistorySize
	}

	return &SyncScheduler{
		config:     config,
		runner:     runner,
		metrics:    metrics,
		logger:     logger.Named("sync_scheduler"),
		isRunning:  atomic.NewBool(false),
		inFlight:   atomic.NewInt32(0),
		completed:  atomic.NewInt64(0),
		failed:     atomic.NewInt64(0),
		skipped:    atomic.NewInt64(0),
		history:    make([]RunRecord, 0, config.HistorySize),
		maxHistory: config.HistorySize,
		now:        time.Now,
	}, nil
}

// Start starts the periodic loop. It is a no-op when the scheduler is disabled
// or already running.
func (s *SyncScheduler) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("Periodic sync disabled")
		return nil
	}
	if !s.isRunning.CAS(false, true) {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info("Sync scheduler started",
		zap.Duration("interval", s.config.Interval),
		zap.Bool("run_on_start", s.config.RunOnStart),
	)
	return nil
}

// Stop cancels the loop and waits for an in-flight periodic run
func (s *SyncScheduler) Stop(ctx context.Context) error {
	if !s.isRunning.CAS(true, false) {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Sync scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Sync scheduler stop timed out")
		return ctx.Err()
	}
}

func (s *SyncScheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	if s.config.RunOnStart {
		s.tick(ctx)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Sync scheduler loop stopping")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one periodic incremental sync unless the gate is held
func (s *SyncScheduler) tick(ctx context.Context) {
	startedAt := s.now().UTC()
	s.inFlight.Inc()
	result, ran := s.runner.TryRunIncrementalSync(ctx, integration.SyncOptions{
		Mode:    integration.SyncModeIncremental,
		Trigger: integration.SyncTriggerScheduled,
	})
	s.inFlight.Dec()

	if !ran {
		s.skipped.Inc()
		s.metrics.RecordSkippedTick(ctx)
		s.logger.Info("Skipping scheduled sync, another run holds the gate")
		return
	}
	s.record(startedAt, result)
}

// RunNow executes a manual run, waiting for the gate while ctx allows
func (s *SyncScheduler) RunNow(ctx context.Context, opts integration.SyncOptions) appintegration.SyncResult {
	if opts.Trigger == "" {
		opts.Trigger = integration.SyncTriggerManual
	}

	startedAt := s.now().UTC()
	s.inFlight.Inc()
	result := s.runner.RunIncrementalSync(ctx, opts)
	s.inFlight.Dec()

	s.record(startedAt, result)
	return result
}

func (s *SyncScheduler) record(startedAt time.Time, result appintegration.SyncResult) {
	if result.Success {
		s.completed.Inc()
	} else {
		s.failed.Inc()
	}
	s.addToHistory(RunRecord{StartedAt: startedAt, FinishedAt: s.now().UTC(), Result: result})
}

// addToHistory adds a finished run to the front of the history
func (s *SyncScheduler) addToHistory(rec RunRecord) {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	s.history = append([]RunRecord{rec}, s.history...)
	if len(s.history) > s.maxHistory {
		s.history = s.history[:s.maxHistory]
	}
}

// History returns recent runs, newest first
func (s *SyncScheduler) History(limit int) []RunRecord {
	s.historyMu.RLock()
	defer s.historyMu.RUnlock()

	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}

	result := make([]RunRecord, limit)
	copy(result, s.history[:limit])
	return result
}

// Status returns a snapshot of the scheduler counters
func (s *SyncScheduler) Status() Status {
	st := Status{
		Enabled:   s.config.Enabled,
		Running:   s.isRunning.Load(),
		InFlight:  s.inFlight.Load(),
		Interval:  s.config.Interval,
		Completed: s.completed.Load(),
		Failed:    s.failed.Load(),
		Skipped:   s.skipped.Load(),
	}
	if last := s.History(1); len(last) == 1 {
		st.LastRun = &last[0]
	}
	return st
}
