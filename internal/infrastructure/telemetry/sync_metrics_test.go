package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumOf(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func newTestSyncMetrics(t *testing.T) (*SyncMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := NewSyncMetrics(provider.Meter("ordersync-test"))
	require.NoError(t, err)
	return m, reader
}

func TestSyncMetrics_RecordRun(t *testing.T) {
	m, reader := newTestSyncMetrics(t)
	ctx := context.Background()

	m.RecordRun(ctx, "incremental", "scheduled", "SUCCESS", 3*time.Second, 90*time.Second)
	m.RecordRun(ctx, "incremental", "manual", "FAILED", time.Second, -1)

	metrics := collect(t, reader)
	assert.Equal(t, int64(2), sumOf(t, metrics["ordersync_sync_runs_total"]))

	hist, ok := metrics["ordersync_sync_run_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(2), count)

	gauge, ok := metrics["ordersync_data_lag_seconds"].Data.(metricdata.Gauge[float64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, 90.0, gauge.DataPoints[0].Value)
}

func TestSyncMetrics_PagesAndFetches(t *testing.T) {
	m, reader := newTestSyncMetrics(t)
	ctx := context.Background()

	m.RecordPage(ctx, "incremental", 200)
	m.RecordPage(ctx, "incremental", 37)
	m.RecordFetch(ctx, "incremental", 1, false, nil)
	m.RecordFetch(ctx, "incremental", 3, true, nil)
	m.RecordFetch(ctx, "specific", 3, false, assert.AnError)
	m.RecordCircuitBreak(ctx, "backfill")
	m.RecordHotRefresh(ctx, HotRefreshSuppressed)
	m.RecordSkippedTick(ctx)

	metrics := collect(t, reader)
	assert.Equal(t, int64(2), sumOf(t, metrics["ordersync_pages_persisted_total"]))
	assert.Equal(t, int64(237), sumOf(t, metrics["ordersync_orders_persisted_total"]))
	assert.Equal(t, int64(3), sumOf(t, metrics["ordersync_page_fetches_total"]))
	assert.Equal(t, int64(4), sumOf(t, metrics["ordersync_page_fetch_retries_total"]))
	assert.Equal(t, int64(1), sumOf(t, metrics["ordersync_page_size_downgrades_total"]))
	assert.Equal(t, int64(1), sumOf(t, metrics["ordersync_circuit_breaks_total"]))
	assert.Equal(t, int64(1), sumOf(t, metrics["ordersync_hot_refresh_total"]))
	assert.Equal(t, int64(1), sumOf(t, metrics["ordersync_scheduler_skipped_ticks_total"]))
}

func TestSyncMetrics_NilReceiver(t *testing.T) {
	var m *SyncMetrics
	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordRun(ctx, "incremental", "manual", "SUCCESS", time.Second, time.Second)
		m.RecordPage(ctx, "incremental", 1)
		m.RecordFetch(ctx, "incremental", 2, true, nil)
		m.RecordCircuitBreak(ctx, "incremental")
		m.RecordHotRefresh(ctx, HotRefreshFresh)
		m.RecordSkippedTick(ctx)
	})
}
