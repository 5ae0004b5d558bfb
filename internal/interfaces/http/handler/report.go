package handler

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/erp/ordersync/internal/domain/report"
)

// RollupService computes marketplace-local sales rollups
type RollupService interface {
	GetSalesRollup(ctx context.Context, filter report.RollupFilter, dimension report.Dimension, sort report.SortSpec) (*report.SalesRollup, error)
}

// SalesRollupQuery holds the query parameters of GET /reports/sales-rollup.
// List parameters accept repeated keys or comma separated values.
type SalesRollupQuery struct {
	Dimension      string   `form:"dimension" binding:"omitempty,rollup_dimension"`
	Sort           string   `form:"sort"`
	Order          string   `form:"order" binding:"omitempty,oneof=asc desc ASC DESC"`
	MarketplaceIDs []string `form:"marketplace_ids"`
	StoreNames     []string `form:"store_names"`
	Search         string   `form:"search" binding:"max=128"`
	Limit          int      `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// ReportHandler handles report API endpoints
type ReportHandler struct {
	BaseHandler
	rollups RollupService
}

// NewReportHandler creates a new ReportHandler
func NewReportHandler(rollups RollupService) *ReportHandler {
	return &ReportHandler{rollups: rollups}
}

// GetSalesRollup godoc
// @ID           getSalesRollup
// @Summary      Sales rollup by marketplace local day
// @Description  Groups valid sales by dimension and marketplace into today, yesterday, same day last week and same day last year.
// @Tags         reports
// @Produce      json
// @Param        dimension       query string false "asin, seller_sku or local_sku" default(asin)
// @Param        sort            query string false "Aggregate column" default(today_qty)
// @Param        order           query string false "asc or desc" default(desc)
// @Param        marketplace_ids query []string false "Marketplace ids"
// @Param        store_names     query []string false "Store names"
// @Param        search          query string false "Prefix of the dimension value"
// @Param        limit           query int false "Maximum groups" default(100)
// @Success      200 {object} APIResponse[report.SalesRollup]
// @Failure      400 {object} ErrorResponse
// @Router       /reports/sales-rollup [get]
func (h *ReportHandler) GetSalesRollup(c *gin.Context) {
	var query SalesRollupQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BindError(c, err)
		return
	}

	filter := report.RollupFilter{
		MarketplaceIDs: splitListParam(query.MarketplaceIDs),
		StoreNames:     splitListParam(query.StoreNames),
		Search:         query.Search,
		Limit:          query.Limit,
	}
	sort := report.SortSpec{Field: query.Sort, Order: strings.ToLower(query.Order)}

	rollup, err := h.rollups.GetSalesRollup(c.Request.Context(), filter, report.Dimension(query.Dimension), sort)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, rollup)
}

// splitListParam flattens repeated and comma separated values
func splitListParam(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
