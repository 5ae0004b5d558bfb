package persistence

import (
	"context"
	"fmt"

	"github.com/erp/ordersync/internal/domain/integration"
	"github.com/erp/ordersync/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// defaultSyncRunListLimit caps ListRecent when the caller passes no limit
const defaultSyncRunListLimit = 20

// GormSyncRunRepository implements SyncRunRepository using GORM
type GormSyncRunRepository struct {
	db *gorm.DB
}

// NewGormSyncRunRepository creates a new GormSyncRunRepository
func NewGormSyncRunRepository(db *gorm.DB) *GormSyncRunRepository {
	return &GormSyncRunRepository{db: db}
}

// Append inserts one run record. Records are never updated.
func (r *GormSyncRunRepository) Append(ctx context.Context, run *integration.SyncRun) error {
	if err := r.db.WithContext(ctx).Create(models.SyncRunModelFromDomain(run)).Error; err != nil {
		return integration.WrapPersistence(fmt.Errorf("append sync run: %w", err))
	}
	return nil
}

// ListRecent returns the newest runs first
func (r *GormSyncRunRepository) ListRecent(ctx context.Context, limit int) ([]integration.SyncRun, error) {
	if limit <= 0 {
		limit = defaultSyncRunListLimit
	}

	var rows []models.SyncRunModel
	if err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list sync runs: %w", err)
	}

	runs := make([]integration.SyncRun, 0, len(rows))
	for i := range rows {
		runs = append(runs, rows[i].ToDomain())
	}
	return runs, nil
}

// Ensure GormSyncRunRepository implements SyncRunRepository
var _ integration.SyncRunRepository = (*GormSyncRunRepository)(nil)
