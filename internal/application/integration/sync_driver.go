package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/erp/ordersync/internal/domain/integration"
	"github.com/erp/ordersync/internal/infrastructure/logger"
	"github.com/erp/ordersync/internal/infrastructure/telemetry"
)

// ---------------------------------------------------------------------------
// Sync Driver
// ---------------------------------------------------------------------------

// StopReason explains why the page loop of a run ended
type StopReason string

const (
	StopShortPage      StopReason = "short_page"
	StopRepeatedPage   StopReason = "repeated_page"
	StopCircuitBreaker StopReason = "circuit_breaker"
	StopFailed         StopReason = "failed"
)

// SyncResult is the structured outcome of one driver run. Failures are
// reported here and never returned as errors.
type SyncResult struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Error   string `json:"error,omitempty"`

	RunID   string                  `json:"run_id"`
	Mode    integration.SyncMode    `json:"mode"`
	Trigger integration.SyncTrigger `json:"trigger"`
	Window  integration.TimeRange   `json:"window"`
	Pages   int                     `json:"pages"`
	Stop    StopReason              `json:"stop,omitempty"`
	DataLag time.Duration           `json:"data_lag,omitempty"`
	Elapsed time.Duration           `json:"elapsed"`
}

// DriverConfig holds the page loop thresholds
type DriverConfig struct {
	PageSize     int
	MaxPages     int
	PageThrottle time.Duration
	Watermark    WatermarkPolicy
}

// DefaultDriverConfig returns the production thresholds
func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		PageSize:     integration.DefaultPageSize,
		MaxPages:     500,
		PageThrottle: 500 * time.Millisecond,
		Watermark:    DefaultWatermarkPolicy(),
	}
}

// DriverOption customises a SyncDriver
type DriverOption func(*SyncDriver)

// WithClock replaces the wall clock
func WithClock(now func() time.Time) DriverOption {
	return func(d *SyncDriver) {
		d.now = now
	}
}

// WithSleeper replaces the inter-page throttle sleep
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) DriverOption {
	return func(d *SyncDriver) {
		d.sleep = sleep
	}
}

// WithMetrics records run, page and fetch instruments on m
func WithMetrics(m *telemetry.SyncMetrics) DriverOption {
	return func(d *SyncDriver) {
		d.metrics = m
	}
}

// SyncDriver runs one paginated fetch/persist loop per call
type SyncDriver struct {
	fetcher integration.OrderFetcher
	txScope TransactionScope
	orders  integration.OrderRepository
	runs    integration.SyncRunRepository
	metrics *telemetry.SyncMetrics
	logger  *zap.Logger
	config  DriverConfig
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewSyncDriver creates a sync driver
func NewSyncDriver(
	fetcher integration.OrderFetcher,
	txScope TransactionScope,
	orders integration.OrderRepository,
	runs integration.SyncRunRepository,
	config DriverConfig,
	logger *zap.Logger,
	opts ...DriverOption,
) *SyncDriver {
	defaults := DefaultDriverConfig()
	if config.PageSize <= 0 || config.PageSize > integration.DefaultPageSize {
		config.PageSize = defaults.PageSize
	}
	if config.MaxPages <= 0 {
		config.MaxPages = defaults.MaxPages
	}
	if config.PageThrottle < 0 {
		config.PageThrottle = defaults.PageThrottle
	}
	if config.Watermark == (WatermarkPolicy{}) {
		config.Watermark = defaults.Watermark
	}

	d := &SyncDriver{
		fetcher: fetcher,
		txScope: txScope,
		orders:  orders,
		runs:    runs,
		logger:  logger.Named("sync_driver"),
		config:  config,
		now:     time.Now,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes one sync run and appends its SyncRun record
func (d *SyncDriver) Run(ctx context.Context, opts integration.SyncOptions) SyncResult {
	startedAt := d.now().UTC()
	runID := uuid.New()
	mode := opts.EffectiveMode()

	result := SyncResult{
		RunID:   runID.String(),
		Mode:    mode,
		Trigger: opts.EffectiveTrigger(),
	}

	ctx, log := logger.WithRunID(ctx, d.logger, result.RunID)
	log = log.With(zap.String("mode", mode.String()), zap.String("trigger", string(result.Trigger)))

	ctx, span := telemetry.StartServiceSpan(ctx, "SyncDriver", "Run",
		telemetry.WithAttribute(telemetry.SpanAttrSyncMode, mode.String()),
		telemetry.WithAttribute(telemetry.SpanAttrTrigger, string(result.Trigger)),
	)
	defer span.End()

	if err := opts.Validate(); err != nil {
		return d.abort(ctx, span, log, runID, startedAt, result, err)
	}

	window, err := d.computeWindow(ctx, opts)
	if err != nil {
		return d.abort(ctx, span, log, runID, startedAt, result, err)
	}
	result.Window = window
	telemetry.SetAttributes(span,
		telemetry.SpanAttrStartTime, window.Start,
		telemetry.SpanAttrEndTime, window.End,
	)

	log.Info("Starting order sync run",
		zap.Time("window_start", window.Start),
		zap.Time("window_end", window.End),
		zap.String("date_field", string(mode.DateField())),
	)

	if err := d.pullPages(ctx, log, &result); err != nil {
		return d.abort(ctx, span, log, runID, startedAt, result, err)
	}

	return d.complete(ctx, span, log, runID, startedAt, result)
}

func (d *SyncDriver) computeWindow(ctx context.Context, opts integration.SyncOptions) (integration.TimeRange, error) {
	if opts.EffectiveMode() != integration.SyncModeIncremental {
		return integration.TimeRange{Start: opts.Range.Start.UTC(), End: opts.Range.End.UTC()}, nil
	}

	marks, err := d.orders.StoreWatermarks(ctx)
	if err != nil {
		return integration.TimeRange{}, fmt.Errorf("compute watermark: %w", err)
	}
	return d.config.Watermark.Window(d.now(), marks), nil
}

// pullPages walks the remote pages until a stop condition. Pages persisted
// before a failure stay committed.
func (d *SyncDriver) pullPages(ctx context.Context, log *zap.Logger, result *SyncResult) error {
	path := result.Mode.String()
	pageSize := d.config.PageSize
	prevFirstID := ""

	for pageNo := 1; ; pageNo++ {
		if pageNo > d.config.MaxPages {
			result.Stop = StopCircuitBreaker
			d.metrics.RecordCircuitBreak(ctx, path)
			log.Warn("Page limit reached, stopping run",
				zap.Int("max_pages", d.config.MaxPages),
				zap.Int("persisted", result.Count),
			)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		resp, err := d.fetcher.FetchPage(ctx, integration.OrderPullRequest{
			StartTime: result.Window.Start,
			EndTime:   result.Window.End,
			DateField: result.Mode.DateField(),
			PageNo:    pageNo,
			PageSize:  pageSize,
		})
		if err != nil {
			d.metrics.RecordFetch(ctx, path, 0, false, err)
			return fmt.Errorf("fetch page %d: %w", pageNo, err)
		}

		downgraded := resp.PageSize > 0 && resp.PageSize < pageSize
		d.metrics.RecordFetch(ctx, path, resp.Attempts, downgraded, nil)
		if downgraded {
			log.Info("Page size downgraded for the rest of the run",
				zap.Int("from", pageSize),
				zap.Int("to", resp.PageSize),
			)
			pageSize = resp.PageSize
		}

		if len(resp.Orders) == 0 {
			return fmt.Errorf("page %d: %w", pageNo, integration.ErrEmptyPage)
		}

		firstID := resp.FirstOrderID()
		if pageNo > 1 && firstID == prevFirstID {
			result.Stop = StopRepeatedPage
			log.Warn("Remote pagination is not advancing, stopping run",
				zap.Int("page", pageNo),
				zap.String("first_order_id", firstID),
			)
			return nil
		}
		prevFirstID = firstID

		saved, err := persistOrders(ctx, d.txScope, resp.Orders)
		if err != nil {
			return fmt.Errorf("persist page %d: %w", pageNo, err)
		}
		result.Count += saved
		result.Pages++
		d.metrics.RecordPage(ctx, path, saved)

		log.Debug("Persisted order page",
			zap.Int("page", pageNo),
			zap.Int("fetched", len(resp.Orders)),
			zap.Int("saved", saved),
			zap.Int64("remote_total", resp.TotalCount),
		)

		if len(resp.Orders) < pageSize {
			result.Stop = StopShortPage
			return nil
		}

		if err := d.sleep(ctx, d.config.PageThrottle); err != nil {
			return err
		}
	}
}

func (d *SyncDriver) complete(ctx context.Context, span trace.Span, log *zap.Logger, runID uuid.UUID, startedAt time.Time, result SyncResult) SyncResult {
	finishedAt := d.now().UTC()
	result.Success = true
	result.Elapsed = finishedAt.Sub(startedAt)
	result.DataLag = -1

	latest, err := d.orders.LatestPurchaseDate(ctx)
	switch {
	case err != nil:
		log.Warn("Failed to read latest purchase date", zap.Error(err))
	case latest != nil:
		result.DataLag = finishedAt.Sub(*latest)
	}

	detail := fmt.Sprintf("window=%s..%s pages=%d orders=%d stop=%s",
		result.Window.Start.Format(time.RFC3339), result.Window.End.Format(time.RFC3339),
		result.Pages, result.Count, result.Stop)
	if result.DataLag >= 0 {
		detail += fmt.Sprintf(" lag=%s", result.DataLag.Truncate(time.Second))
	}
	d.appendRun(ctx, log, runID, result.Mode, startedAt, finishedAt, integration.SyncRunStatusSuccess, detail)

	d.metrics.RecordRun(ctx, result.Mode.String(), string(result.Trigger),
		string(integration.SyncRunStatusSuccess), result.Elapsed, result.DataLag)
	telemetry.SetAttributes(span, telemetry.SpanAttrOrderCount, result.Count)
	telemetry.SetOK(span)

	log.Info("Order sync run completed",
		zap.Int("pages", result.Pages),
		zap.Int("orders", result.Count),
		zap.String("stop", string(result.Stop)),
		zap.Duration("data_lag", result.DataLag),
		zap.Duration("elapsed", result.Elapsed),
	)

	if result.DataLag < 0 {
		result.DataLag = 0
	}
	return result
}

func (d *SyncDriver) abort(ctx context.Context, span trace.Span, log *zap.Logger, runID uuid.UUID, startedAt time.Time, result SyncResult, cause error) SyncResult {
	finishedAt := d.now().UTC()
	result.Success = false
	result.Stop = StopFailed
	result.Error = cause.Error()
	result.Elapsed = finishedAt.Sub(startedAt)

	d.appendRun(ctx, log, runID, result.Mode, startedAt, finishedAt, integration.SyncRunStatusFailed, result.Error)

	d.metrics.RecordRun(ctx, result.Mode.String(), string(result.Trigger),
		string(integration.SyncRunStatusFailed), result.Elapsed, -1)
	telemetry.RecordError(span, cause)

	log.Error("Order sync run failed",
		zap.Int("pages", result.Pages),
		zap.Int("orders", result.Count),
		zap.Duration("elapsed", result.Elapsed),
		zap.Error(cause),
	)
	return result
}

// appendRun writes the sync log entry. The run outcome stands even when the
// log write fails.
func (d *SyncDriver) appendRun(ctx context.Context, log *zap.Logger, runID uuid.UUID, mode integration.SyncMode, startedAt, finishedAt time.Time, status integration.SyncRunStatus, detail string) {
	if !mode.IsValid() {
		mode = integration.SyncModeIncremental
	}
	run := integration.NewSyncRun(mode, startedAt, finishedAt, status, detail)
	run.ID = runID
	if err := d.runs.Append(context.WithoutCancel(ctx), run); err != nil {
		log.Error("Failed to append sync run", zap.Error(err))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
