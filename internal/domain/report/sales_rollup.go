package report

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Dimension is the product key a sales rollup groups by
type Dimension string

const (
	DimensionASIN      Dimension = "asin"
	DimensionSellerSKU Dimension = "seller_sku"
	DimensionLocalSKU  Dimension = "local_sku"
)

// ParseDimension maps user input onto a known dimension
func ParseDimension(s string) (Dimension, bool) {
	switch Dimension(strings.ToLower(strings.TrimSpace(s))) {
	case "", DimensionASIN:
		return DimensionASIN, true
	case DimensionSellerSKU, "sku", "msku":
		return DimensionSellerSKU, true
	case DimensionLocalSKU:
		return DimensionLocalSKU, true
	default:
		return "", false
	}
}

// Valid-sale predicate inputs
var (
	// ValidSaleStatuses are the non-cancelled states that count as a sale
	ValidSaleStatuses = []string{"Pending", "Unshipped", "PartiallyShipped", "Shipped", "InvoiceUnconfirmed"}
	// CancelledStatuses feed the separate cancelled-quantity counter
	CancelledStatuses = []string{"Canceled"}
)

// RemoteFulfillmentOrderPrefix marks orders created by the remote fulfillment
// network on behalf of other channels. They are never counted as sales.
const RemoteFulfillmentOrderPrefix = "S"

// Rollup sort keys
const DefaultRollupSortField = "today_qty"

// RollupSortFields is the allow-list of sortable aggregate columns
var RollupSortFields = map[string]bool{
	"today_qty":               true,
	"today_orders":            true,
	"today_revenue":           true,
	"today_cancelled_qty":     true,
	"yesterday_qty":           true,
	"yesterday_orders":        true,
	"yesterday_revenue":       true,
	"yesterday_cancelled_qty": true,
	"last_week_qty":           true,
	"last_week_orders":        true,
	"last_week_revenue":       true,
	"last_year_qty":           true,
	"last_year_orders":        true,
	"last_year_revenue":       true,
	"dim_value":               true,
	"marketplace_id":          true,
}

// Rollup limits
const (
	DefaultRollupLimit = 100
	MaxRollupLimit     = 1000
)

// RollupFilter is the closed set of recognised filter keys
type RollupFilter struct {
	MarketplaceIDs []string
	StoreNames     []string
	Search         string
	Limit          int
}

// SortSpec selects the rollup ordering. Field must be in RollupSortFields.
type SortSpec struct {
	Field string
	Order string
}

// RollupQuery is a fully validated rollup request ready for the repository
type RollupQuery struct {
	Dimension Dimension
	Windows   []MarketplaceWindows
	Filter    RollupFilter
	Sort      SortSpec
}

// WindowMetrics aggregates one comparison window
type WindowMetrics struct {
	Quantity          int64           `json:"qty"`
	Orders            int64           `json:"orders"`
	Revenue           decimal.Decimal `json:"revenue"`
	CancelledQuantity int64           `json:"cancelled_qty"`
	AvgPrice          decimal.Decimal `json:"avg_price"`
}

// Add accumulates other into m. AvgPrice must be recomputed afterwards.
func (m *WindowMetrics) Add(other WindowMetrics) {
	m.Quantity += other.Quantity
	m.Orders += other.Orders
	m.Revenue = m.Revenue.Add(other.Revenue)
	m.CancelledQuantity += other.CancelledQuantity
}

// ComputeAvgPrice sets AvgPrice to revenue / quantity, zero when nothing sold
func (m *WindowMetrics) ComputeAvgPrice() {
	if m.Quantity == 0 {
		m.AvgPrice = decimal.Zero
		return
	}
	m.AvgPrice = m.Revenue.Div(decimal.NewFromInt(m.Quantity)).Round(2)
}

// SalesRollupRow is one (dimension value, marketplace) group
type SalesRollupRow struct {
	DimensionValue string        `json:"dimension_value"`
	MarketplaceID  string        `json:"marketplace_id"`
	Title          string        `json:"title,omitempty"`
	ImageURL       string        `json:"image_url,omitempty"`
	Today          WindowMetrics `json:"today"`
	Yesterday      WindowMetrics `json:"yesterday"`
	LastWeek       WindowMetrics `json:"last_week"`
	LastYear       WindowMetrics `json:"last_year"`
}

// Metrics returns a pointer to the metrics of window w
func (r *SalesRollupRow) Metrics(w Window) *WindowMetrics {
	switch w {
	case WindowToday:
		return &r.Today
	case WindowYesterday:
		return &r.Yesterday
	case WindowLastWeek:
		return &r.LastWeek
	case WindowLastYear:
		return &r.LastYear
	default:
		return nil
	}
}

// SalesRollupSummary totals every window across the returned groups
type SalesRollupSummary struct {
	Groups    int           `json:"groups"`
	Today     WindowMetrics `json:"today"`
	Yesterday WindowMetrics `json:"yesterday"`
	LastWeek  WindowMetrics `json:"last_week"`
	LastYear  WindowMetrics `json:"last_year"`
}

// SalesRollup is the result of a rollup query
type SalesRollup struct {
	Dimension   Dimension          `json:"dimension"`
	GeneratedAt time.Time          `json:"generated_at"`
	Rows        []SalesRollupRow   `json:"rows"`
	Summary     SalesRollupSummary `json:"summary"`
}

// Summarize fills per-row average prices and builds the summary
func Summarize(rows []SalesRollupRow) SalesRollupSummary {
	var s SalesRollupSummary
	s.Groups = len(rows)
	for i := range rows {
		row := &rows[i]
		for _, w := range AllWindows {
			m := row.Metrics(w)
			m.ComputeAvgPrice()
			s.metrics(w).Add(*m)
		}
	}
	for _, w := range AllWindows {
		s.metrics(w).ComputeAvgPrice()
	}
	return s
}

func (s *SalesRollupSummary) metrics(w Window) *WindowMetrics {
	switch w {
	case WindowToday:
		return &s.Today
	case WindowYesterday:
		return &s.Yesterday
	case WindowLastWeek:
		return &s.LastWeek
	default:
		return &s.LastYear
	}
}

// SalesRollupRepository executes rollup queries
type SalesRollupRepository interface {
	SalesRollup(ctx context.Context, q RollupQuery) ([]SalesRollupRow, error)
}
