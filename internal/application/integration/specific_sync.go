package integration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/erp/ordersync/internal/domain/integration"
	"github.com/erp/ordersync/internal/infrastructure/telemetry"
)

// SpecificSyncResult is the outcome of SyncSpecificOrders
type SpecificSyncResult struct {
	Success   bool   `json:"success"`
	Count     int    `json:"count"`
	Error     string `json:"error,omitempty"`
	Requested int    `json:"requested"`
	Chunks    int    `json:"chunks"`
	Pages     int    `json:"pages"`
}

// SyncSpecificOrders refreshes a known set of order ids with exact-match
// fetches over an unlimited date range. A chunk of ids can span several pages
// when orders are split across stores or the page size is downgraded; each
// page is persisted in one transaction and pages committed before a failure
// stay.
func (r *OrderRefresher) SyncSpecificOrders(ctx context.Context, orderIDs []string) SpecificSyncResult {
	ids := normalizeOrderIDs(orderIDs)
	result := SpecificSyncResult{Requested: len(ids)}
	if len(ids) == 0 {
		result.Error = "no order ids given"
		return result
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "OrderRefresher", "SyncSpecificOrders",
		telemetry.WithAttribute(telemetry.SpanAttrOrderCount, len(ids)),
	)
	defer span.End()

	r.logger.Info("Starting specific order sync",
		zap.Int("order_ids", len(ids)),
		zap.Int("chunk_size", r.config.ChunkSize),
	)

	end := r.now().UTC()
	pageSize := integration.DefaultPageSize
	for start := 0; start < len(ids); start += r.config.ChunkSize {
		chunk := ids[start:min(start+r.config.ChunkSize, len(ids))]

		err := r.syncChunk(ctx, chunk, end, &pageSize, &result)
		if err != nil {
			return r.failSpecific(span, result, fmt.Errorf("chunk %d: %w", result.Chunks+1, err))
		}
		result.Chunks++
	}

	result.Success = true
	telemetry.SetOK(span)
	r.logger.Info("Specific order sync completed",
		zap.Int("chunks", result.Chunks),
		zap.Int("pages", result.Pages),
		zap.Int("orders", result.Count),
	)
	return result
}

// syncChunk pages through the exact-match results of one id chunk until a
// short or empty page. A downgraded page size carries over to later chunks.
func (r *OrderRefresher) syncChunk(ctx context.Context, ids []string, end time.Time, pageSize *int, result *SpecificSyncResult) error {
	prevFirstID := ""
	for pageNo := 1; ; pageNo++ {
		if pageNo > r.config.MaxChunkPages {
			return fmt.Errorf("%w: %d pages", ErrChunkTruncated, r.config.MaxChunkPages)
		}

		resp, err := r.fetcher.FetchPage(ctx, integration.OrderPullRequest{
			StartTime: integration.UnboundedStart,
			EndTime:   end,
			DateField: integration.DateFieldLastUpdate,
			OrderIDs:  ids,
			PageNo:    pageNo,
			PageSize:  *pageSize,
		})
		if err != nil {
			r.metrics.RecordFetch(ctx, pathSpecific, attemptsOf(resp), false, err)
			return fmt.Errorf("fetch page %d: %w", pageNo, err)
		}

		downgraded := resp.PageSize > 0 && resp.PageSize < *pageSize
		r.metrics.RecordFetch(ctx, pathSpecific, resp.Attempts, downgraded, nil)
		if downgraded {
			r.logger.Info("Page size downgraded for specific order sync",
				zap.Int("from", *pageSize),
				zap.Int("to", resp.PageSize),
			)
			*pageSize = resp.PageSize
		}

		if len(resp.Orders) == 0 {
			return nil
		}
		firstID := resp.FirstOrderID()
		if pageNo > 1 && firstID == prevFirstID {
			r.logger.Warn("Remote pagination is not advancing for id chunk",
				zap.Int("page", pageNo),
				zap.String("first_order_id", firstID),
			)
			return nil
		}
		prevFirstID = firstID

		saved, err := persistOrders(ctx, r.txScope, resp.Orders)
		if err != nil {
			return fmt.Errorf("persist page %d: %w", pageNo, err)
		}
		result.Count += saved
		result.Pages++
		r.metrics.RecordPage(ctx, pathSpecific, saved)

		if len(resp.Orders) < *pageSize {
			return nil
		}
	}
}

func (r *OrderRefresher) failSpecific(span trace.Span, result SpecificSyncResult, err error) SpecificSyncResult {
	telemetry.RecordError(span, err)
	result.Success = false
	result.Error = err.Error()
	r.logger.Error("Specific order sync failed",
		zap.Int("chunks", result.Chunks),
		zap.Int("orders", result.Count),
		zap.Error(err),
	)
	return result
}

// normalizeOrderIDs trims ids and drops blanks and duplicates, keeping order
func normalizeOrderIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
