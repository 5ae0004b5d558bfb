package integration

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erp/ordersync/internal/domain/integration"
	"github.com/erp/ordersync/internal/infrastructure/telemetry"
)

// KeyGuard grants a key to one owner for a TTL (SETNX semantics)
type KeyGuard interface {
	TryAcquire(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
}

// RefreshConfig tunes the single-order fast path and the batch variant
type RefreshConfig struct {
	Enabled   bool
	MaxAge    time.Duration
	GuardTTL  time.Duration
	ChunkSize int

	// MaxChunkPages bounds the pages fetched for one id chunk
	MaxChunkPages int
}

// DefaultRefreshConfig returns the production settings
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Enabled:       true,
		MaxAge:        time.Hour,
		GuardTTL:      30 * time.Second,
		ChunkSize:     integration.DefaultPageSize,
		MaxChunkPages: 50,
	}
}

const hotRefreshGuardPrefix = "hot_refresh:"

// RefreshResult is returned by the order read path
type RefreshResult struct {
	Success bool   `json:"success"`
	Msg     string `json:"msg,omitempty"`
	// Order is the most recently updated row, Orders every stored row of the id.
	Order     *integration.Order  `json:"order,omitempty"`
	Orders    []integration.Order `json:"orders,omitempty"`
	Refreshed bool                `json:"refreshed"`
	Outcome   string              `json:"outcome"`
}

// OrderRefresher refreshes known order ids outside the paginated loop.
// It shares the fetcher, and so the rate limiter, with the sync driver.
type OrderRefresher struct {
	fetcher integration.OrderFetcher
	txScope TransactionScope
	orders  integration.OrderRepository
	guard   KeyGuard
	metrics *telemetry.SyncMetrics
	config  RefreshConfig
	owner   string
	logger  *zap.Logger
	now     func() time.Time
}

// NewOrderRefresher creates an order refresher. guard may be nil.
func NewOrderRefresher(
	fetcher integration.OrderFetcher,
	txScope TransactionScope,
	orders integration.OrderRepository,
	guard KeyGuard,
	config RefreshConfig,
	metrics *telemetry.SyncMetrics,
	logger *zap.Logger,
) *OrderRefresher {
	defaults := DefaultRefreshConfig()
	if config.MaxAge <= 0 {
		config.MaxAge = defaults.MaxAge
	}
	if config.GuardTTL < 0 {
		config.GuardTTL = defaults.GuardTTL
	}
	if config.ChunkSize <= 0 || config.ChunkSize > integration.DefaultPageSize {
		config.ChunkSize = defaults.ChunkSize
	}
	if config.MaxChunkPages <= 0 {
		config.MaxChunkPages = defaults.MaxChunkPages
	}
	return &OrderRefresher{
		fetcher: fetcher,
		txScope: txScope,
		orders:  orders,
		guard:   guard,
		metrics: metrics,
		config:  config,
		owner:   uuid.NewString(),
		logger:  logger.Named("order_refresher"),
		now:     time.Now,
	}
}

// RefreshOneOrder returns the stored rows of orderID, refreshing them from the
// remote API first when they are missing or stale. A failed refresh falls
// back to local data; only storage errors make the result unsuccessful.
func (r *OrderRefresher) RefreshOneOrder(ctx context.Context, orderID string) RefreshResult {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return RefreshResult{Success: false, Msg: "order id is required"}
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "OrderRefresher", "RefreshOneOrder",
		telemetry.WithAttribute(telemetry.SpanAttrOrderID, orderID),
	)
	defer span.End()

	log := r.logger.With(zap.String("order_id", orderID))

	local, err := r.orders.FindByOrderID(ctx, orderID)
	if err != nil {
		telemetry.RecordError(span, err)
		log.Error("Failed to load order", zap.Error(err))
		return RefreshResult{Success: false, Msg: err.Error()}
	}

	outcome := telemetry.HotRefreshFresh
	if r.config.Enabled && isStale(local, r.now(), r.config.MaxAge) {
		outcome = r.refresh(ctx, log, orderID)
		if outcome == telemetry.HotRefreshRefreshed {
			if local, err = r.orders.FindByOrderID(ctx, orderID); err != nil {
				telemetry.RecordError(span, err)
				log.Error("Failed to reload refreshed order", zap.Error(err))
				return RefreshResult{Success: false, Msg: err.Error()}
			}
		}
	}
	r.metrics.RecordHotRefresh(ctx, outcome)
	telemetry.SetAttributes(span, "hot_refresh.outcome", outcome)

	if len(local) == 0 {
		return RefreshResult{Success: false, Msg: integration.ErrOrderNotFound.Error(), Outcome: outcome}
	}

	telemetry.SetOK(span)
	return RefreshResult{
		Success:   true,
		Order:     newestRow(local),
		Orders:    local,
		Refreshed: outcome == telemetry.HotRefreshRefreshed,
		Outcome:   outcome,
	}
}

// refresh performs the exact-match fetch and persists it in its own
// transaction. It never fails the read path.
func (r *OrderRefresher) refresh(ctx context.Context, log *zap.Logger, orderID string) string {
	if r.guard != nil && r.config.GuardTTL > 0 {
		acquired, err := r.guard.TryAcquire(ctx, hotRefreshGuardPrefix+orderID, r.owner, r.config.GuardTTL)
		switch {
		case err != nil:
			log.Warn("Refresh guard unavailable, refreshing anyway", zap.Error(err))
		case !acquired:
			log.Debug("Order refreshed recently, serving local data")
			return telemetry.HotRefreshSuppressed
		}
	}

	resp, err := r.fetcher.FetchPage(ctx, integration.OrderPullRequest{
		StartTime: integration.UnboundedStart,
		EndTime:   r.now().UTC(),
		DateField: integration.DateFieldLastUpdate,
		OrderIDs:  []string{orderID},
		PageNo:    1,
		PageSize:  integration.HotRefreshPageLen,
	})
	r.metrics.RecordFetch(ctx, pathHotRefresh, attemptsOf(resp), false, err)
	if err != nil {
		log.Warn("Hot refresh fetch failed, serving local data", zap.Error(err))
		return telemetry.HotRefreshFailed
	}
	if len(resp.Orders) == 0 {
		return telemetry.HotRefreshNotFound
	}

	saved, err := persistOrders(ctx, r.txScope, resp.Orders)
	if err != nil {
		log.Error("Hot refresh persist failed, serving local data", zap.Error(err))
		return telemetry.HotRefreshFailed
	}
	r.metrics.RecordPage(ctx, pathHotRefresh, saved)

	log.Info("Order refreshed from remote", zap.Int("rows", saved))
	return telemetry.HotRefreshRefreshed
}

// Metric paths of the refresher flows
const (
	pathHotRefresh = "hot_refresh"
	pathSpecific   = "specific"
)

func attemptsOf(resp *integration.OrderPullResponse) int {
	if resp == nil {
		return 0
	}
	return resp.Attempts
}

// isStale reports whether rows need a remote refresh: none exist, or the
// newest last-update timestamp is older than maxAge.
func isStale(rows []integration.Order, now time.Time, maxAge time.Duration) bool {
	if len(rows) == 0 {
		return true
	}
	newest := newestRow(rows)
	return newest.IsStale(now, maxAge)
}

func newestRow(rows []integration.Order) *integration.Order {
	best := &rows[0]
	for i := 1; i < len(rows); i++ {
		row := &rows[i]
		if row.LastUpdateDate == nil {
			continue
		}
		if best.LastUpdateDate == nil || row.LastUpdateDate.After(*best.LastUpdateDate) {
			best = row
		}
	}
	return best
}
