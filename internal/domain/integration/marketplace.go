package integration

import (
	"context"
	"errors"
	"time"
)

// DateField selects the order timestamp a date-window query filters on
type DateField string

const (
	DateFieldLastUpdate DateField = "update"
	DateFieldPurchase   DateField = "purchase"
)

// Page size limits of the remote "list orders" call
const (
	DefaultPageSize   = 200
	ReducedPageSize   = 100
	HotRefreshPageLen = 20
)

// UnboundedStart is the window start used for exact-match lookups that must
// not be constrained by date.
var UnboundedStart = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// ---------------------------------------------------------------------------
// OrderFetcher port
// ---------------------------------------------------------------------------

// OrderPullRequest describes one page of the remote "list orders" call.
// Either the date window or OrderIDs (exact match) drives the query.
type OrderPullRequest struct {
	StartTime time.Time
	EndTime   time.Time
	DateField DateField
	OrderIDs  []string
	PageNo    int
	PageSize  int
}

// IsExactMatch reports whether the request looks orders up by identifier
func (r *OrderPullRequest) IsExactMatch() bool {
	return len(r.OrderIDs) > 0
}

// Validate validates the pull request and applies paging defaults
func (r *OrderPullRequest) Validate() error {
	if r.StartTime.IsZero() || r.EndTime.IsZero() {
		return errors.New("integration: start time and end time are required")
	}
	if r.StartTime.After(r.EndTime) {
		return errors.New("integration: start time must be before end time")
	}
	if r.DateField == "" {
		r.DateField = DateFieldLastUpdate
	}
	if r.PageNo < 1 {
		r.PageNo = 1
	}
	if r.PageSize < 1 || r.PageSize > DefaultPageSize {
		r.PageSize = DefaultPageSize
	}
	return nil
}

// OrderPullResponse is one decoded page
type OrderPullResponse struct {
	Orders     []RemoteOrder
	TotalCount int64
	// PageSize is the page size the remote finally accepted. It is smaller
	// than the requested size after a page-too-large downgrade.
	PageSize int
	Attempts int
}

// FirstOrderID returns the identifier of the first row, or "" for an empty page
func (r *OrderPullResponse) FirstOrderID() string {
	if len(r.Orders) == 0 {
		return ""
	}
	return r.Orders[0].OrderID
}

// OrderFetcher fetches one page of remote orders with bounded retry
type OrderFetcher interface {
	FetchPage(ctx context.Context, req OrderPullRequest) (*OrderPullResponse, error)
}

// SlotLimiter gates every outbound remote call
type SlotLimiter interface {
	Acquire(ctx context.Context) error
}
