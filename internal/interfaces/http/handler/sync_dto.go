package handler

import (
	"time"

	"github.com/erp/ordersync/internal/domain/integration"
	"github.com/erp/ordersync/internal/infrastructure/scheduler"
)

// RunSyncRequest is the body of POST /sync/runs
// @Description Manual sync run. start/end are required for range and backfill modes.
type RunSyncRequest struct {
	Mode  string     `json:"mode" binding:"omitempty,sync_mode" example:"incremental" enums:"incremental,range,backfill"`
	Start *time.Time `json:"start" example:"2024-01-01T00:00:00Z"`
	End   *time.Time `json:"end" example:"2024-01-08T00:00:00Z"`
}

// toOptions converts the request into driver options
func (r RunSyncRequest) toOptions() integration.SyncOptions {
	opts := integration.SyncOptions{
		Mode:    integration.SyncMode(r.Mode),
		Trigger: integration.SyncTriggerManual,
	}
	if r.Start != nil || r.End != nil {
		rng := &integration.TimeRange{}
		if r.Start != nil {
			rng.Start = r.Start.UTC()
		}
		if r.End != nil {
			rng.End = r.End.UTC()
		}
		opts.Range = rng
	}
	return opts
}

// SyncOrdersRequest is the body of POST /sync/orders
type SyncOrdersRequest struct {
	OrderIDs []string `json:"order_ids" binding:"required,min=1,max=5000,dive,max=64"`
}

// ListSyncRunsQuery holds the query parameters of GET /sync/runs
type ListSyncRunsQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=500"`
}

// SyncRunResponse is one entry of the persisted sync log
type SyncRunResponse struct {
	ID         string    `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	RunType    string    `json:"run_type" example:"incremental"`
	Status     string    `json:"status" example:"SUCCESS" enums:"SUCCESS,FAILED"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMs int64     `json:"duration_ms" example:"5230"`
	Detail     string    `json:"detail"`
}

func toSyncRunResponse(run integration.SyncRun) SyncRunResponse {
	return SyncRunResponse{
		ID:         run.ID.String(),
		RunType:    run.RunType.String(),
		Status:     string(run.Status),
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		DurationMs: run.Duration().Milliseconds(),
		Detail:     run.Detail,
	}
}

// LimiterStatusResponse describes the shared outbound limiter
type LimiterStatusResponse struct {
	IntervalMs int64      `json:"interval_ms" example:"1100"`
	Grants     int64      `json:"grants" example:"42"`
	LastGrant  *time.Time `json:"last_grant,omitempty"`
}

// SyncStatusResponse is the body of GET /sync/status
type SyncStatusResponse struct {
	Scheduler scheduler.Status      `json:"scheduler"`
	Limiter   LimiterStatusResponse `json:"limiter"`
	Recent    []scheduler.RunRecord `json:"recent"`
}
