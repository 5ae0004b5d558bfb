package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/ordersync/internal/domain/integration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormSyncRunRepository_AppendAndList(t *testing.T) {
	repo := NewGormSyncRunRepository(newTestDB(t))
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	runs := []*integration.SyncRun{
		integration.NewSyncRun(integration.SyncModeIncremental, base, base.Add(time.Minute), integration.SyncRunStatusSuccess, "pages=2 orders=350"),
		integration.NewSyncRun(integration.SyncModeRange, base.Add(time.Hour), base.Add(time.Hour+time.Minute), integration.SyncRunStatusFailed, "fetch failed"),
		integration.NewSyncRun(integration.SyncModeBackfill, base.Add(2*time.Hour), base.Add(3*time.Hour), integration.SyncRunStatusSuccess, ""),
	}
	for _, r := range runs {
		require.NoError(t, repo.Append(ctx, r))
	}

	recent, err := repo.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, runs[2].ID, recent[0].ID)
	assert.Equal(t, integration.SyncModeBackfill, recent[0].RunType)
	assert.Equal(t, time.Hour, recent[0].Duration())
	assert.Equal(t, integration.SyncRunStatusFailed, recent[1].Status)
	assert.Equal(t, "fetch failed", recent[1].Detail)

	all, err := repo.ListRecent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestGormSyncRunRepository_AppendDuplicate(t *testing.T) {
	repo := NewGormSyncRunRepository(newTestDB(t))
	ctx := context.Background()

	run := integration.NewSyncRun(integration.SyncModeIncremental, time.Now(), time.Now(), integration.SyncRunStatusSuccess, "")
	require.NoError(t, repo.Append(ctx, run))

	err := repo.Append(ctx, run)
	require.Error(t, err)
	assert.True(t, errors.Is(err, integration.ErrPersistence))
}
