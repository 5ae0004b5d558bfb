package persistence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/erp/ordersync/internal/domain/report"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// rollupDimensionColumns maps each dimension to its item column
var rollupDimensionColumns = map[report.Dimension]string{
	report.DimensionASIN:      "i.asin",
	report.DimensionSellerSKU: "i.seller_sku",
	report.DimensionLocalSKU:  "i.local_sku",
}

// likeEscaper escapes LIKE wildcards with '!'
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// GormSalesRollupRepository implements SalesRollupRepository using GORM
type GormSalesRollupRepository struct {
	db *gorm.DB
}

// NewGormSalesRollupRepository creates a new GormSalesRollupRepository
func NewGormSalesRollupRepository(db *gorm.DB) *GormSalesRollupRepository {
	return &GormSalesRollupRepository{db: db}
}

// salesRollupRecord is one scanned group of the outer aggregate
type salesRollupRecord struct {
	DimValue      string
	MarketplaceID string
	Title         string
	ImageURL      string

	TodayQty          int64
	TodayOrders       int64
	TodayRevenue      decimal.Decimal
	TodayCancelledQty int64

	YesterdayQty          int64
	YesterdayOrders       int64
	YesterdayRevenue      decimal.Decimal
	YesterdayCancelledQty int64

	LastWeekQty          int64
	LastWeekOrders       int64
	LastWeekRevenue      decimal.Decimal
	LastWeekCancelledQty int64

	LastYearQty          int64
	LastYearOrders       int64
	LastYearRevenue      decimal.Decimal
	LastYearCancelledQty int64
}

func (rec *salesRollupRecord) toDomain() report.SalesRollupRow {
	return report.SalesRollupRow{
		DimensionValue: rec.DimValue,
		MarketplaceID:  rec.MarketplaceID,
		Title:          rec.Title,
		ImageURL:       rec.ImageURL,
		Today: report.WindowMetrics{
			Quantity:          rec.TodayQty,
			Orders:            rec.TodayOrders,
			Revenue:           rec.TodayRevenue,
			CancelledQuantity: rec.TodayCancelledQty,
		},
		Yesterday: report.WindowMetrics{
			Quantity:          rec.YesterdayQty,
			Orders:            rec.YesterdayOrders,
			Revenue:           rec.YesterdayRevenue,
			CancelledQuantity: rec.YesterdayCancelledQty,
		},
		LastWeek: report.WindowMetrics{
			Quantity:          rec.LastWeekQty,
			Orders:            rec.LastWeekOrders,
			Revenue:           rec.LastWeekRevenue,
			CancelledQuantity: rec.LastWeekCancelledQty,
		},
		LastYear: report.WindowMetrics{
			Quantity:          rec.LastYearQty,
			Orders:            rec.LastYearOrders,
			Revenue:           rec.LastYearRevenue,
			CancelledQuantity: rec.LastYearCancelledQty,
		},
	}
}

// SalesRollup groups order items by dimension and marketplace and aggregates
// them into the four comparison windows of each marketplace.
func (r *GormSalesRollupRepository) SalesRollup(ctx context.Context, q report.RollupQuery) ([]report.SalesRollupRow, error) {
	dimColumn, ok := rollupDimensionColumns[q.Dimension]
	if !ok {
		return nil, fmt.Errorf("unsupported rollup dimension %q", q.Dimension)
	}
	if len(q.Windows) == 0 {
		return nil, nil
	}

	db := r.db.WithContext(ctx)

	bucketSQL, bucketArgs, marketplaceIDs, span := bucketExpression(q.Windows)

	selectSQL := dimColumn + ` AS dim_value,
			o.marketplace_id AS marketplace_id,
			o.order_id AS order_id,
			i.title AS title,
			i.image_url AS image_url,
			i.quantity AS qty,
			i.unit_price * i.quantity AS revenue,
			` + bucketSQL + ` AS bucket,
			CASE WHEN o.order_status IN ? AND o.is_replacement_order = ? AND o.order_id NOT LIKE ?
				THEN 1 ELSE 0 END AS is_valid,
			CASE WHEN o.order_status IN ? AND o.is_replacement_order = ? AND o.order_id NOT LIKE ?
				THEN 1 ELSE 0 END AS is_cancelled`

	remotePrefix := report.RemoteFulfillmentOrderPrefix + "%"
	selectArgs := append(bucketArgs,
		report.ValidSaleStatuses, false, remotePrefix,
		report.CancelledStatuses, false, remotePrefix,
	)

	sub := db.Table("order_items AS i").
		Select(selectSQL, selectArgs...).
		Joins("JOIN orders AS o ON o.order_id = i.order_id AND " +
			"(o.store_name = i.store_name OR (o.store_name IS NULL AND i.store_name IS NULL))").
		Where("o.marketplace_id IN ?", marketplaceIDs).
		Where("o.purchase_date >= ? AND o.purchase_date < ?", span.Start, span.End).
		Where(dimColumn + " IS NOT NULL AND " + dimColumn + " <> ''")

	if len(q.Filter.StoreNames) > 0 {
		sub = sub.Where("o.store_name IN ?", q.Filter.StoreNames)
	}
	if search := strings.TrimSpace(q.Filter.Search); search != "" {
		pattern := likeEscaper.Replace(strings.ToLower(search)) + "%"
		sub = sub.Where("LOWER("+dimColumn+") LIKE ? ESCAPE '!'", pattern)
	}

	var records []salesRollupRecord
	err := db.Table("(?) AS b", sub).
		Select(outerAggregateSelect()).
		Where("b.bucket IS NOT NULL AND (b.is_valid = 1 OR b.is_cancelled = 1)").
		Group("b.dim_value, b.marketplace_id").
		Order(rollupOrderBy(q.Sort)).
		Order("dim_value ASC").
		Order("marketplace_id ASC").
		Limit(rollupLimit(q.Filter.Limit)).
		Scan(&records).Error
	if err != nil {
		return nil, fmt.Errorf("sales rollup: %w", err)
	}

	rows := make([]report.SalesRollupRow, 0, len(records))
	for i := range records {
		rows = append(rows, records[i].toDomain())
	}
	return rows, nil
}

// bucketExpression builds the CASE that labels a row with its window and
// returns the marketplaces and the overall span the windows cover.
func bucketExpression(windows []report.MarketplaceWindows) (string, []any, []string, report.TimeRange) {
	var (
		b    strings.Builder
		args []any
		ids  = make([]string, 0, len(windows))
		span report.TimeRange
	)

	b.WriteString("CASE")
	for _, mw := range windows {
		ids = append(ids, mw.MarketplaceID)
		for _, w := range report.AllWindows {
			rng, ok := mw.Ranges[w]
			if !ok {
				continue
			}
			start, end := boundary(rng.Start), boundary(rng.End)
			// window names come from a fixed set and are inlined as literals
			b.WriteString(" WHEN o.marketplace_id = ? AND o.purchase_date >= ? AND o.purchase_date < ? THEN '")
			b.WriteString(string(w))
			b.WriteString("'")
			args = append(args, mw.MarketplaceID, start, end)

			if span.Start.IsZero() || start.Before(span.Start) {
				span.Start = start
			}
			if end.After(span.End) {
				span.End = end
			}
		}
	}
	b.WriteString(" END")

	return b.String(), args, ids, span
}

func boundary(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// outerAggregateSelect renders the per-window aggregate columns
func outerAggregateSelect() string {
	cols := []string{
		"b.dim_value AS dim_value",
		"b.marketplace_id AS marketplace_id",
		"MAX(b.title) AS title",
		"MAX(b.image_url) AS image_url",
	}
	for _, w := range report.AllWindows {
		name := string(w)
		valid := "b.bucket = '" + name + "' AND b.is_valid = 1"
		cancelled := "b.bucket = '" + name + "' AND b.is_cancelled = 1"
		cols = append(cols,
			"COALESCE(SUM(CASE WHEN "+valid+" THEN b.qty ELSE 0 END), 0) AS "+name+"_qty",
			"COUNT(DISTINCT CASE WHEN "+valid+" THEN b.order_id END) AS "+name+"_orders",
			"COALESCE(SUM(CASE WHEN "+valid+" THEN b.revenue ELSE 0 END), 0) AS "+name+"_revenue",
			"COALESCE(SUM(CASE WHEN "+cancelled+" THEN b.qty ELSE 0 END), 0) AS "+name+"_cancelled_qty",
		)
	}
	return strings.Join(cols, ",\n\t\t")
}

// Ensure GormSalesRollupRepository implements SalesRollupRepository
var _ report.SalesRollupRepository = (*GormSalesRollupRepository)(nil)
