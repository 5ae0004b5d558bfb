package integration

import (
	"context"
	"time"
)

// OrderWriter upserts remote orders. Implementations run inside the caller's
// transaction and never commit or roll back themselves.
type OrderWriter interface {
	// SaveOrder returns false, nil when the payload has no order identifier.
	SaveOrder(ctx context.Context, order *RemoteOrder) (bool, error)
}

// StoreWatermark is the most recent purchase timestamp stored for one store
type StoreWatermark struct {
	StoreName    *string
	LastPurchase time.Time
}

// OrderRepository is the read side of the order store plus the operator note
type OrderRepository interface {
	// FindByOrderID returns every stored row for the identifier, one per store, with items.
	FindByOrderID(ctx context.Context, orderID string) ([]Order, error)

	// StoreWatermarks returns the latest purchase timestamp of every store that has orders.
	StoreWatermarks(ctx context.Context) ([]StoreWatermark, error)

	// LatestPurchaseDate returns the newest purchase timestamp stored, nil when empty.
	LatestPurchaseDate(ctx context.Context) (*time.Time, error)

	// UpdateLocalNote sets the operator annotation of one (order, store) row.
	UpdateLocalNote(ctx context.Context, orderID string, storeName *string, note string) error
}

// SyncRunRepository stores the append-only sync log
type SyncRunRepository interface {
	Append(ctx context.Context, run *SyncRun) error
	ListRecent(ctx context.Context, limit int) ([]SyncRun, error)
}
