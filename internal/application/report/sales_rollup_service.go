package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/erp/ordersync/internal/domain/report"
	"github.com/erp/ordersync/internal/infrastructure/telemetry"
)

// RollupLimits bounds the number of groups a rollup returns
type RollupLimits struct {
	Default int
	Max     int
}

// ReportService provides application-level report operations
type ReportService struct {
	rollupRepo report.SalesRollupRepository
	zones      *report.MarketplaceZones
	limits     RollupLimits
	logger     *zap.Logger
	now        func() time.Time
}

// NewReportService creates a new ReportService. A nil zones uses the built-in table.
func NewReportService(
	rollupRepo report.SalesRollupRepository,
	zones *report.MarketplaceZones,
	limits RollupLimits,
	logger *zap.Logger,
) *ReportService {
	if zones == nil {
		zones = report.DefaultMarketplaceZones()
	}
	if limits.Max <= 0 || limits.Max > report.MaxRollupLimit {
		limits.Max = report.MaxRollupLimit
	}
	if limits.Default <= 0 || limits.Default > limits.Max {
		limits.Default = min(report.DefaultRollupLimit, limits.Max)
	}
	return &ReportService{
		rollupRepo: rollupRepo,
		zones:      zones,
		limits:     limits,
		logger:     logger.Named("report_service"),
		now:        time.Now,
	}
}

// ===================== Sales Rollup Operations =====================

// GetSalesRollup groups sales by dimension and marketplace into the today,
// yesterday, last-week and last-year windows of each marketplace's local day.
func (s *ReportService) GetSalesRollup(ctx context.Context, filter report.RollupFilter, dimension report.Dimension, sort report.SortSpec) (*report.SalesRollup, error) {
	dim, ok := report.ParseDimension(string(dimension))
	if !ok {
		return nil, fmt.Errorf("%w: %q", report.ErrInvalidDimension, dimension)
	}

	marketplaces, err := s.allowedMarketplaces(filter.MarketplaceIDs)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "ReportService", "GetSalesRollup",
		telemetry.WithAttribute("report.dimension", string(dim)),
		telemetry.WithAttribute("report.marketplaces", len(marketplaces)),
	)
	defer span.End()

	now := s.now().UTC()
	windows := make([]report.MarketplaceWindows, 0, len(marketplaces))
	for _, id := range marketplaces {
		w, _ := s.zones.WindowsAt(id, now)
		windows = append(windows, w)
	}

	filter.MarketplaceIDs = marketplaces
	filter.StoreNames = trimAll(filter.StoreNames)
	filter.Search = strings.TrimSpace(filter.Search)
	filter.Limit = s.clampLimit(filter.Limit)

	rows, err := s.rollupRepo.SalesRollup(ctx, report.RollupQuery{
		Dimension: dim,
		Windows:   windows,
		Filter:    filter,
		Sort:      normalizeSort(sort),
	})
	if err != nil {
		telemetry.RecordError(span, err)
		s.logger.Error("Sales rollup query failed", zap.String("dimension", string(dim)), zap.Error(err))
		return nil, err
	}
	if rows == nil {
		rows = []report.SalesRollupRow{}
	}

	telemetry.SetOK(span)
	return &report.SalesRollup{
		Dimension:   dim,
		GeneratedAt: now,
		Rows:        rows,
		Summary:     report.Summarize(rows),
	}, nil
}

// allowedMarketplaces checks ids against the zone table. No ids means every
// known marketplace.
func (s *ReportService) allowedMarketplaces(ids []string) ([]string, error) {
	ids = trimAll(ids)
	if len(ids) == 0 {
		return s.zones.IDs(), nil
	}

	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !s.zones.Known(id) {
			return nil, fmt.Errorf("%w: %s", report.ErrUnknownMarketplace, id)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

func (s *ReportService) clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return s.limits.Default
	case limit > s.limits.Max:
		return s.limits.Max
	default:
		return limit
	}
}

// normalizeSort applies the allow-list and the descending default
func normalizeSort(sort report.SortSpec) report.SortSpec {
	field := strings.ToLower(strings.TrimSpace(sort.Field))
	if !report.RollupSortFields[field] {
		field = report.DefaultRollupSortField
	}
	order := strings.ToLower(strings.TrimSpace(sort.Order))
	if order != "asc" {
		order = "desc"
	}
	return report.SortSpec{Field: field, Order: order}
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
