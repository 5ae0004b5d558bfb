package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Hot refresh outcomes
const (
	HotRefreshFresh      = "fresh"
	HotRefreshRefreshed  = "refreshed"
	HotRefreshSuppressed = "suppressed"
	HotRefreshFailed     = "failed"
	HotRefreshNotFound   = "not_found"
)

// Fetch outcomes
const (
	FetchSucceeded = "success"
	FetchFailed    = "failed"
)

// SyncMetrics records the order synchronization instruments.
// A nil *SyncMetrics is valid and records nothing.
type SyncMetrics struct {
	runs               *Counter
	runDuration        *Histogram
	dataLag            *FloatGauge
	pages              *Counter
	ordersPersisted    *Counter
	fetches            *Counter
	fetchRetries       *Counter
	pageSizeDowngrades *Counter
	circuitBreaks      *Counter
	hotRefreshes       *Counter
	skippedTicks       *Counter
}

// NewSyncMetrics registers the sync instruments on meter.
func NewSyncMetrics(meter metric.Meter) (*SyncMetrics, error) {
	m := &SyncMetrics{}
	var err error

	if m.runs, err = NewCounter(meter, "ordersync_sync_runs_total",
		"Completed sync runs by mode, trigger and status", "{run}"); err != nil {
		return nil, err
	}
	if m.runDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "ordersync_sync_run_duration_seconds",
		Description: "Wall time of a sync run",
		Unit:        "s",
		Boundaries:  RunDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.dataLag, err = NewFloatGauge(meter, "ordersync_data_lag_seconds",
		"Age of the newest local change when the last run finished", "s"); err != nil {
		return nil, err
	}
	if m.pages, err = NewCounter(meter, "ordersync_pages_persisted_total",
		"Remote pages persisted", "{page}"); err != nil {
		return nil, err
	}
	if m.ordersPersisted, err = NewCounter(meter, "ordersync_orders_persisted_total",
		"Orders upserted into the local store", "{order}"); err != nil {
		return nil, err
	}
	if m.fetches, err = NewCounter(meter, "ordersync_page_fetches_total",
		"Remote page fetches by outcome", "{fetch}"); err != nil {
		return nil, err
	}
	if m.fetchRetries, err = NewCounter(meter, "ordersync_page_fetch_retries_total",
		"Extra attempts spent on remote page fetches", "{attempt}"); err != nil {
		return nil, err
	}
	if m.pageSizeDowngrades, err = NewCounter(meter, "ordersync_page_size_downgrades_total",
		"Fetches that fell back to the reduced page size", "{fetch}"); err != nil {
		return nil, err
	}
	if m.circuitBreaks, err = NewCounter(meter, "ordersync_circuit_breaks_total",
		"Runs stopped by the page limit", "{run}"); err != nil {
		return nil, err
	}
	if m.hotRefreshes, err = NewCounter(meter, "ordersync_hot_refresh_total",
		"Single order refreshes by outcome", "{refresh}"); err != nil {
		return nil, err
	}
	if m.skippedTicks, err = NewCounter(meter, "ordersync_scheduler_skipped_ticks_total",
		"Periodic ticks skipped because a run was in progress", "{tick}"); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordRun records a finished sync run. lag is ignored when negative.
func (m *SyncMetrics) RecordRun(ctx context.Context, mode, trigger, status string, elapsed, lag time.Duration) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		AttrSyncMode.String(mode),
		AttrSyncTrigger.String(trigger),
		AttrSyncStatus.String(status),
	}
	m.runs.Inc(ctx, attrs...)
	m.runDuration.RecordDuration(ctx, elapsed, attrs...)
	if lag >= 0 {
		m.dataLag.Record(ctx, lag.Seconds(), AttrSyncMode.String(mode))
	}
}

// RecordPage records one persisted page and its order count.
func (m *SyncMetrics) RecordPage(ctx context.Context, path string, orders int) {
	if m == nil {
		return
	}
	m.pages.Inc(ctx, AttrPath.String(path))
	m.ordersPersisted.Add(ctx, int64(orders), AttrPath.String(path))
}

// RecordFetch records one page fetch including its retries.
func (m *SyncMetrics) RecordFetch(ctx context.Context, path string, attempts int, downgraded bool, err error) {
	if m == nil {
		return
	}
	outcome := FetchSucceeded
	if err != nil {
		outcome = FetchFailed
	}
	m.fetches.Inc(ctx, AttrPath.String(path), AttrOutcome.String(outcome))
	if attempts > 1 {
		m.fetchRetries.Add(ctx, int64(attempts-1), AttrPath.String(path))
	}
	if downgraded {
		m.pageSizeDowngrades.Inc(ctx, AttrPath.String(path))
	}
}

// RecordCircuitBreak records a run stopped by the page limit.
func (m *SyncMetrics) RecordCircuitBreak(ctx context.Context, mode string) {
	if m == nil {
		return
	}
	m.circuitBreaks.Inc(ctx, AttrSyncMode.String(mode))
}

// RecordHotRefresh records the outcome of a single order lookup.
func (m *SyncMetrics) RecordHotRefresh(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.hotRefreshes.Inc(ctx, AttrOutcome.String(outcome))
}

// RecordSkippedTick records a periodic tick dropped while another run held the gate.
func (m *SyncMetrics) RecordSkippedTick(ctx context.Context) {
	if m == nil {
		return
	}
	m.skippedTicks.Inc(ctx)
}
