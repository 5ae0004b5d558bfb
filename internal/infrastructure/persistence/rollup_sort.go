package persistence

import (
	"strings"

	"github.com/erp/ordersync/internal/domain/report"
)

// rollupOrderBy renders the ORDER BY term for a rollup query. Only
// allow-listed aggregate columns reach SQL; anything else falls back to the
// default field, and any direction other than asc sorts descending.
func rollupOrderBy(sort report.SortSpec) string {
	field := strings.TrimSpace(sort.Field)
	if !report.RollupSortFields[field] {
		field = report.DefaultRollupSortField
	}

	dir := "DESC"
	if strings.EqualFold(strings.TrimSpace(sort.Order), "asc") {
		dir = "ASC"
	}
	return field + " " + dir
}

// rollupLimit clamps the requested group count into (0, MaxRollupLimit]
func rollupLimit(limit int) int {
	switch {
	case limit <= 0:
		return report.DefaultRollupLimit
	case limit > report.MaxRollupLimit:
		return report.MaxRollupLimit
	default:
		return limit
	}
}
