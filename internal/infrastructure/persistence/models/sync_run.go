package models

import (
	"time"

	"github.com/erp/ordersync/internal/domain/integration"
	"github.com/google/uuid"
)

// SyncRunModel is the persistence model of the append-only sync log
type SyncRunModel struct {
	ID         uuid.UUID `gorm:"type:varchar(36);primaryKey"`
	RunType    string    `gorm:"type:varchar(20);not null"`
	StartedAt  time.Time `gorm:"not null;index"`
	FinishedAt time.Time `gorm:"not null"`
	Status     string    `gorm:"type:varchar(10);not null"`
	Detail     string    `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (SyncRunModel) TableName() string {
	return "sync_runs"
}

// SyncRunModelFromDomain converts a domain SyncRun
func SyncRunModelFromDomain(r *integration.SyncRun) *SyncRunModel {
	return &SyncRunModel{
		ID:         r.ID,
		RunType:    string(r.RunType),
		StartedAt:  r.StartedAt.UTC(),
		FinishedAt: r.FinishedAt.UTC(),
		Status:     string(r.Status),
		Detail:     r.Detail,
	}
}

// ToDomain converts the model to a domain SyncRun
func (m *SyncRunModel) ToDomain() integration.SyncRun {
	return integration.SyncRun{
		ID:         m.ID,
		RunType:    integration.SyncMode(m.RunType),
		StartedAt:  m.StartedAt.UTC(),
		FinishedAt: m.FinishedAt.UTC(),
		Status:     integration.SyncRunStatus(m.Status),
		Detail:     m.Detail,
	}
}

// All returns every model managed by AutoMigrate
func All() []any {
	return []any{&OrderModel{}, &OrderItemModel{}, &SyncRunModel{}}
}
