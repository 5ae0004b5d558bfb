package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/erp/ordersync/internal/domain/integration"
	"github.com/erp/ordersync/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// itemBatchSize bounds the rows of one bulk item insert
const itemBatchSize = 100

// GormOrderRepository implements the order writer and reader using GORM
type GormOrderRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// orderStoreScope matches one (order_id, store_name) pair; a nil store matches NULL only
func orderStoreScope(orderID string, storeName *string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if storeName == nil {
			return db.Where("order_id = ? AND store_name IS NULL", orderID)
		}
		return db.Where("order_id = ? AND store_name = ?", orderID, *storeName)
	}
}

// SaveOrder upserts the order and replaces its items. It runs on whatever
// connection or transaction the repository was built with and never commits.
func (r *GormOrderRepository) SaveOrder(ctx context.Context, remote *integration.RemoteOrder) (bool, error) {
	if remote == nil || !remote.HasID() {
		return false, nil
	}

	order := remote.ToOrder()
	now := r.now()

	model := &models.OrderModel{}
	model.FromDomain(order)
	model.CreatedAt = now
	model.UpdatedAt = now

	db := r.db.WithContext(ctx)
	if err := r.upsertOrder(db, model); err != nil {
		return false, integration.WrapPersistence(fmt.Errorf("upsert order %s: %w", order.OrderID, err))
	}

	if err := db.Scopes(orderStoreScope(order.OrderID, order.StoreName)).
		Delete(&models.OrderItemModel{}).Error; err != nil {
		return false, integration.WrapPersistence(fmt.Errorf("delete items of %s: %w", order.OrderID, err))
	}

	if len(order.Items) > 0 {
		items := make([]models.OrderItemModel, 0, len(order.Items))
		for _, it := range order.Items {
			items = append(items, models.OrderItemModelFromDomain(it, now))
		}
		if err := db.CreateInBatches(&items, itemBatchSize).Error; err != nil {
			return false, integration.WrapPersistence(fmt.Errorf("insert items of %s: %w", order.OrderID, err))
		}
	}

	return true, nil
}

// upsertOrder writes the order row. NULL never conflicts in the composite
// unique key, so the legacy identity is looked up and updated instead. A
// concurrent insert of the same legacy row trips uq_orders_legacy_order_id,
// is ignored, and falls through to the update.
func (r *GormOrderRepository) upsertOrder(db *gorm.DB, model *models.OrderModel) error {
	if model.StoreName != nil {
		return db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}, {Name: "store_name"}},
			DoUpdates: clause.AssignmentColumns(models.OrderSyncColumns),
		}).Create(model).Error
	}

	id, err := legacyRowID(db, model.OrderID)
	if err != nil {
		return err
	}
	if id == 0 {
		res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(model)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		if id, err = legacyRowID(db, model.OrderID); err != nil {
			return err
		}
		if id == 0 {
			return fmt.Errorf("legacy order %s was neither inserted nor found", model.OrderID)
		}
	}
	return db.Model(&models.OrderModel{}).
		Where("id = ?", id).
		Updates(model.SyncAssignments()).Error
}

// legacyRowID returns the id of the store-less row of orderID, or 0
func legacyRowID(db *gorm.DB, orderID string) (int64, error) {
	var existing models.OrderModel
	err := db.Scopes(orderStoreScope(orderID, nil)).Select("id").Take(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return 0, nil
	case err != nil:
		return 0, err
	}
	return existing.ID, nil
}

// FindByOrderID returns every stored row for the identifier with its items,
// the legacy NULL-store row first.
func (r *GormOrderRepository) FindByOrderID(ctx context.Context, orderID string) ([]integration.Order, error) {
	db := r.db.WithContext(ctx)

	var orderModels []models.OrderModel
	if err := db.Where("order_id = ?", orderID).Order("id ASC").Find(&orderModels).Error; err != nil {
		return nil, fmt.Errorf("find order %s: %w", orderID, err)
	}
	if len(orderModels) == 0 {
		return nil, nil
	}

	var itemModels []models.OrderItemModel
	if err := db.Where("order_id = ?", orderID).Order("id ASC").Find(&itemModels).Error; err != nil {
		return nil, fmt.Errorf("find items of %s: %w", orderID, err)
	}

	itemsByStore := make(map[string][]integration.OrderItem)
	for i := range itemModels {
		key := storeKey(itemModels[i].StoreName)
		itemsByStore[key] = append(itemsByStore[key], itemModels[i].ToDomain())
	}

	orders := make([]integration.Order, 0, len(orderModels))
	for i := range orderModels {
		o := orderModels[i].ToDomain()
		o.Items = itemsByStore[storeKey(o.StoreName)]
		orders = append(orders, o)
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].StoreName == nil && orders[j].StoreName != nil
	})
	return orders, nil
}

func storeKey(storeName *string) string {
	if storeName == nil {
		return "\x00"
	}
	return *storeName
}

// StoreWatermarks returns the newest purchase timestamp of every store.
// Timestamps are read as rows rather than MAX() so each driver scans them as time values.
func (r *GormOrderRepository) StoreWatermarks(ctx context.Context) ([]integration.StoreWatermark, error) {
	db := r.db.WithContext(ctx)

	var stores []sql.NullString
	if err := db.Model(&models.OrderModel{}).
		Where("purchase_date IS NOT NULL").
		Distinct().
		Pluck("store_name", &stores).Error; err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}

	watermarks := make([]integration.StoreWatermark, 0, len(stores))
	for _, s := range stores {
		var storeName *string
		scope := db.Model(&models.OrderModel{}).Where("store_name IS NULL")
		if s.Valid {
			name := s.String
			storeName = &name
			scope = db.Model(&models.OrderModel{}).Where("store_name = ?", name)
		}

		latest, err := latestPurchase(scope)
		if err != nil {
			return nil, fmt.Errorf("watermark of store %q: %w", s.String, err)
		}
		if latest == nil {
			continue
		}
		watermarks = append(watermarks, integration.StoreWatermark{
			StoreName:    storeName,
			LastPurchase: *latest,
		})
	}
	return watermarks, nil
}

// LatestPurchaseDate returns the newest purchase timestamp stored
func (r *GormOrderRepository) LatestPurchaseDate(ctx context.Context) (*time.Time, error) {
	latest, err := latestPurchase(r.db.WithContext(ctx).Model(&models.OrderModel{}))
	if err != nil {
		return nil, fmt.Errorf("latest purchase date: %w", err)
	}
	return latest, nil
}

func latestPurchase(scope *gorm.DB) (*time.Time, error) {
	var row models.OrderModel
	err := scope.Select("purchase_date").
		Where("purchase_date IS NOT NULL").
		Order("purchase_date DESC").
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if row.PurchaseDate == nil {
		return nil, nil
	}
	t := row.PurchaseDate.UTC()
	return &t, nil
}

// UpdateLocalNote sets the operator annotation of one row
func (r *GormOrderRepository) UpdateLocalNote(ctx context.Context, orderID string, storeName *string, note string) error {
	result := r.db.WithContext(ctx).
		Model(&models.OrderModel{}).
		Scopes(orderStoreScope(orderID, storeName)).
		Updates(map[string]any{
			"local_note": note,
			"updated_at": r.now(),
		})
	if result.Error != nil {
		return fmt.Errorf("update note of %s: %w", orderID, result.Error)
	}
	if result.RowsAffected == 0 {
		return integration.ErrOrderNotFound
	}
	return nil
}

// Ensure GormOrderRepository implements the integration ports
var (
	_ integration.OrderWriter     = (*GormOrderRepository)(nil)
	_ integration.OrderRepository = (*GormOrderRepository)(nil)
)
