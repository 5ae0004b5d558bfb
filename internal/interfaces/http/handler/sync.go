package handler

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appintegration "github.com/erp/ordersync/internal/application/integration"
	"github.com/erp/ordersync/internal/domain/integration"
	"github.com/erp/ordersync/internal/infrastructure/logger"
	"github.com/erp/ordersync/internal/infrastructure/scheduler"
	"github.com/erp/ordersync/internal/interfaces/http/dto"
)

const (
	defaultRunListLimit = 20
	statusHistoryLimit  = 5
)

// SyncScheduler is the scheduler surface the sync endpoints drive
type SyncScheduler interface {
	RunNow(ctx context.Context, opts integration.SyncOptions) appintegration.SyncResult
	Status() scheduler.Status
	History(limit int) []scheduler.RunRecord
}

// OrderSyncer is the gate-free part of the sync service
type OrderSyncer interface {
	SyncSpecificOrders(ctx context.Context, orderIDs []string) appintegration.SpecificSyncResult
	RefreshOneOrder(ctx context.Context, orderID string) appintegration.RefreshResult
}

// LimiterStatus exposes the shared outbound limiter for observability
type LimiterStatus interface {
	LastGrant() time.Time
	Grants() int64
	Interval() time.Duration
}

// SyncHandler handles sync-related API endpoints
type SyncHandler struct {
	BaseHandler
	scheduler SyncScheduler
	orders    OrderSyncer
	runs      integration.SyncRunRepository
	limiter   LimiterStatus
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(sched SyncScheduler, orders OrderSyncer, runs integration.SyncRunRepository, limiter LimiterStatus) *SyncHandler {
	return &SyncHandler{
		scheduler: sched,
		orders:    orders,
		runs:      runs,
		limiter:   limiter,
	}
}

// RunSync godoc
// @ID           runSync
// @Summary      Trigger a sync run
// @Description  Runs the sync driver now. Waits for a periodic run holding the gate.
// @Tags         sync
// @Accept       json
// @Produce      json
// @Param        request body RunSyncRequest true "Run options"
// @Success      200 {object} APIResponse[appintegration.SyncResult]
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Failure      502 {object} ErrorResponse
// @Router       /sync/runs [post]
func (h *SyncHandler) RunSync(c *gin.Context) {
	var req RunSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	opts := req.toOptions()
	if err := opts.Validate(); err != nil {
		h.HandleError(c, err)
		return
	}

	result := h.scheduler.RunNow(c.Request.Context(), opts)
	if result.Success {
		h.Success(c, result)
		return
	}

	code := dto.ErrCodeSyncFailed
	if strings.HasPrefix(result.Error, appintegration.ErrRunInProgress.Error()) {
		code = dto.ErrCodeSyncInProgress
	}
	h.FailedResult(c, code, result.Error, result)
}

// ListRuns godoc
// @ID           listSyncRuns
// @Summary      List recent sync runs
// @Tags         sync
// @Produce      json
// @Param        limit query int false "Maximum entries" default(20)
// @Success      200 {object} APIResponse[[]SyncRunResponse]
// @Router       /sync/runs [get]
func (h *SyncHandler) ListRuns(c *gin.Context) {
	var query ListSyncRunsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BindError(c, err)
		return
	}
	if query.Limit == 0 {
		query.Limit = defaultRunListLimit
	}

	runs, err := h.runs.ListRecent(c.Request.Context(), query.Limit)
	if err != nil {
		h.HandleError(c, integration.WrapPersistence(err))
		return
	}

	resp := make([]SyncRunResponse, 0, len(runs))
	for _, run := range runs {
		resp = append(resp, toSyncRunResponse(run))
	}
	h.Success(c, resp)
}

// GetStatus godoc
// @ID           getSyncStatus
// @Summary      Scheduler and rate limiter state
// @Tags         sync
// @Produce      json
// @Success      200 {object} APIResponse[SyncStatusResponse]
// @Router       /sync/status [get]
func (h *SyncHandler) GetStatus(c *gin.Context) {
	resp := SyncStatusResponse{
		Scheduler: h.scheduler.Status(),
		Recent:    h.scheduler.History(statusHistoryLimit),
	}
	if h.limiter != nil {
		resp.Limiter = LimiterStatusResponse{
			IntervalMs: h.limiter.Interval().Milliseconds(),
			Grants:     h.limiter.Grants(),
		}
		if last := h.limiter.LastGrant(); !last.IsZero() {
			last = last.UTC()
			resp.Limiter.LastGrant = &last
		}
	}
	h.Success(c, resp)
}

// SyncOrders godoc
// @ID           syncSpecificOrders
// @Summary      Sync specific orders
// @Description  Fetches the given order ids exact-match, bypassing the run gate.
// @Tags         sync
// @Accept       json
// @Produce      json
// @Param        request body SyncOrdersRequest true "Order ids"
// @Success      200 {object} APIResponse[appintegration.SpecificSyncResult]
// @Failure      400 {object} ErrorResponse
// @Failure      502 {object} ErrorResponse
// @Router       /sync/orders [post]
func (h *SyncHandler) SyncOrders(c *gin.Context) {
	var req SyncOrdersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	result := h.orders.SyncSpecificOrders(c.Request.Context(), req.OrderIDs)
	switch {
	case result.Success:
		h.Success(c, result)
	case result.Requested == 0:
		h.ErrorWithCode(c, dto.ErrCodeValidation, result.Error)
	default:
		logger.GetGinLogger(c).Warn("Specific order sync failed",
			zap.Int("requested", result.Requested),
			zap.Int("persisted", result.Count),
			zap.String("error", result.Error),
		)
		h.FailedResult(c, dto.ErrCodeSyncFailed, result.Error, result)
	}
}
