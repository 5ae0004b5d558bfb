package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	appintegration "github.com/erp/ordersync/internal/application/integration"
	"github.com/erp/ordersync/internal/domain/integration"
	"github.com/erp/ordersync/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func countRows(t *testing.T, repo *GormOrderRepository, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, repo.db.Model(model).Count(&n).Error)
	return n
}

func TestGormOrderRepository_SaveOrder_Idempotent(t *testing.T) {
	repo := NewGormOrderRepository(newTestDB(t))
	ctx := context.Background()

	remote := remoteOrderFixture{
		orderID: "111-0000001-0000001",
		store:   "store-a",
		items: []integration.RemoteOrderItem{
			remoteItem("B000A", "SKU-A", 2, "10.50"),
			remoteItem("B000B", "SKU-B", 1, "2.50"),
		},
	}.build()

	for i := 0; i < 2; i++ {
		saved, err := repo.SaveOrder(ctx, remote)
		require.NoError(t, err)
		assert.True(t, saved)
	}

	assert.Equal(t, int64(1), countRows(t, repo, &models.OrderModel{}))
	assert.Equal(t, int64(2), countRows(t, repo, &models.OrderItemModel{}))

	orders, err := repo.FindByOrderID(ctx, "111-0000001-0000001")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	got := orders[0]
	assert.Equal(t, "store-a", got.StoreLabel())
	assert.Equal(t, "Shipped", got.Status)
	assert.True(t, got.OrderTotal.Equal(decimal.NewFromInt(21)))
	require.NotNil(t, got.PurchaseDate)
	assert.Equal(t, time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC), *got.PurchaseDate)
	require.Len(t, got.Items, 2)
	assert.Equal(t, 2, got.Items[0].Quantity)
	assert.True(t, got.Items[0].UnitPrice.Equal(decimal.NewFromFloat(10.5)))
}

func TestGormOrderRepository_SaveOrder_ReplacesItems(t *testing.T) {
	repo := NewGormOrderRepository(newTestDB(t))
	ctx := context.Background()

	fixture := remoteOrderFixture{
		orderID: "111-0000002-0000002",
		store:   "store-a",
		items: []integration.RemoteOrderItem{
			remoteItem("B000A", "SKU-A", 1, "10.50"),
			remoteItem("B000B", "SKU-B", 1, "2.50"),
		},
	}
	_, err := repo.SaveOrder(ctx, fixture.build())
	require.NoError(t, err)

	fixture.status = "Canceled"
	fixture.items = fixture.items[:1]
	_, err = repo.SaveOrder(ctx, fixture.build())
	require.NoError(t, err)

	orders, err := repo.FindByOrderID(ctx, fixture.orderID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "Canceled", orders[0].Status)
	require.Len(t, orders[0].Items, 1)
	assert.Equal(t, "B000A", orders[0].Items[0].ASIN)
}

func TestGormOrderRepository_SaveOrder_SplitOrder(t *testing.T) {
	repo := NewGormOrderRepository(newTestDB(t))
	ctx := context.Background()

	for _, store := range []string{"store-a", "store-b"} {
		_, err := repo.SaveOrder(ctx, remoteOrderFixture{
			orderID: "111-0000003-0000003",
			store:   store,
			items:   []integration.RemoteOrderItem{remoteItem("B000"+store, "SKU", 1, "2.50")},
		}.build())
		require.NoError(t, err)
	}

	orders, err := repo.FindByOrderID(ctx, "111-0000003-0000003")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	for _, o := range orders {
		require.Len(t, o.Items, 1)
		assert.Equal(t, "B000"+o.StoreLabel(), o.Items[0].ASIN)
	}
}

func TestGormOrderRepository_SaveOrder_LegacyNullStore(t *testing.T) {
	repo := NewGormOrderRepository(newTestDB(t))
	ctx := context.Background()

	legacy := remoteOrderFixture{
		orderID: "111-0000004-0000004",
		items:   []integration.RemoteOrderItem{remoteItem("B000N", "SKU-N", 3, "2.50")},
	}
	for i := 0; i < 2; i++ {
		_, err := repo.SaveOrder(ctx, legacy.build())
		require.NoError(t, err)
	}

	_, err := repo.SaveOrder(ctx, remoteOrderFixture{
		orderID: legacy.orderID,
		store:   "store-a",
		items:   []integration.RemoteOrderItem{remoteItem("B000S", "SKU-S", 1, "2.50")},
	}.build())
	require.NoError(t, err)

	assert.Equal(t, int64(2), countRows(t, repo, &models.OrderModel{}))

	orders, err := repo.FindByOrderID(ctx, legacy.orderID)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Nil(t, orders[0].StoreName, "legacy row sorts first")
	require.Len(t, orders[0].Items, 1)
	assert.Equal(t, "B000N", orders[0].Items[0].ASIN)
	assert.Equal(t, "store-a", orders[1].StoreLabel())
}

func TestGormOrderRepository_LegacyRowIsUnique(t *testing.T) {
	repo := NewGormOrderRepository(newTestDB(t))
	ctx := context.Background()

	legacy := remoteOrderFixture{orderID: "111-0000006-0000006"}.build()
	_, err := repo.SaveOrder(ctx, legacy)
	require.NoError(t, err)

	dup := &models.OrderModel{}
	dup.FromDomain(legacy.ToOrder())
	dup.CreatedAt = time.Now().UTC()
	dup.UpdatedAt = dup.CreatedAt
	assert.Error(t, repo.db.Create(dup).Error, "second store-less row for the same id")

	scoped := remoteOrderFixture{orderID: legacy.OrderID, store: "store-a"}.build()
	_, err = repo.SaveOrder(ctx, scoped)
	require.NoError(t, err)
	assert.Equal(t, int64(2), countRows(t, repo, &models.OrderModel{}))
}

func TestGormOrderRepository_SaveOrder_LegacyInsertRace(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormOrderRepository(db)
	rival := NewGormOrderRepository(db)
	ctx := context.Background()

	const orderID = "111-0000007-0000007"
	fired := false
	// another flow inserts the legacy row right after this save's lookup missed
	require.NoError(t, db.Callback().Query().After("gorm:query").Register("test:legacy_race", func(tx *gorm.DB) {
		if fired || tx.Statement.Table != "orders" || !errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			return
		}
		fired = true
		_, err := rival.SaveOrder(ctx, remoteOrderFixture{orderID: orderID, status: "Pending"}.build())
		require.NoError(t, err)
	}))

	saved, err := repo.SaveOrder(ctx, remoteOrderFixture{
		orderID: orderID,
		status:  "Shipped",
		items:   []integration.RemoteOrderItem{remoteItem("B000R", "SKU-R", 1, "5.00")},
	}.build())
	require.NoError(t, err)
	assert.True(t, saved)
	require.True(t, fired)

	orders, err := repo.FindByOrderID(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, orders, 1, "one legacy row after the race")
	assert.Nil(t, orders[0].StoreName)
	assert.Equal(t, "Shipped", orders[0].Status, "the later save wins")
	require.Len(t, orders[0].Items, 1)
	assert.Equal(t, "B000R", orders[0].Items[0].ASIN)
}

func TestGormOrderRepository_SaveOrder_NoIdentifier(t *testing.T) {
	repo := NewGormOrderRepository(newTestDB(t))

	saved, err := repo.SaveOrder(context.Background(), remoteOrderFixture{orderID: "  "}.build())
	require.NoError(t, err)
	assert.False(t, saved)

	saved, err = repo.SaveOrder(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, saved)
	assert.Zero(t, countRows(t, repo, &models.OrderModel{}))
}

func TestGormOrderRepository_LocalNoteSurvivesSync(t *testing.T) {
	repo := NewGormOrderRepository(newTestDB(t))
	ctx := context.Background()
	store := "store-a"

	fixture := remoteOrderFixture{orderID: "111-0000005-0000005", store: store}
	_, err := repo.SaveOrder(ctx, fixture.build())
	require.NoError(t, err)

	require.NoError(t, repo.UpdateLocalNote(ctx, fixture.orderID, &store, "call buyer"))

	fixture.status = "Unshipped"
	_, err = repo.SaveOrder(ctx, fixture.build())
	require.NoError(t, err)

	orders, err := repo.FindByOrderID(ctx, fixture.orderID)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "call buyer", orders[0].LocalNote)
	assert.Equal(t, "Unshipped", orders[0].Status)
}

func TestGormOrderRepository_UpdateLocalNote_NotFound(t *testing.T) {
	repo := NewGormOrderRepository(newTestDB(t))

	err := repo.UpdateLocalNote(context.Background(), "missing", nil, "x")
	assert.ErrorIs(t, err, integration.ErrOrderNotFound)
}

func TestGormOrderRepository_FindByOrderID_Missing(t *testing.T) {
	repo := NewGormOrderRepository(newTestDB(t))

	orders, err := repo.FindByOrderID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestGormOrderRepository_Watermarks(t *testing.T) {
	repo := NewGormOrderRepository(newTestDB(t))
	ctx := context.Background()

	latest, err := repo.LatestPurchaseDate(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	fixtures := []remoteOrderFixture{
		{orderID: "A-1", store: "store-a", purchased: base.Add(-3 * time.Hour)},
		{orderID: "A-2", store: "store-a", purchased: base.Add(-1 * time.Hour)},
		{orderID: "B-1", store: "store-b", purchased: base.Add(-2 * time.Hour)},
		{orderID: "N-1", purchased: base.Add(-5 * time.Hour)},
	}
	for _, f := range fixtures {
		_, err := repo.SaveOrder(ctx, f.build())
		require.NoError(t, err)
	}

	watermarks, err := repo.StoreWatermarks(ctx)
	require.NoError(t, err)
	require.Len(t, watermarks, 3)

	byStore := make(map[string]time.Time)
	for _, w := range watermarks {
		key := "<null>"
		if w.StoreName != nil {
			key = *w.StoreName
		}
		byStore[key] = w.LastPurchase
	}
	assert.Equal(t, base.Add(-1*time.Hour), byStore["store-a"])
	assert.Equal(t, base.Add(-2*time.Hour), byStore["store-b"])
	assert.Equal(t, base.Add(-5*time.Hour), byStore["<null>"])

	latest, err = repo.LatestPurchaseDate(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, base.Add(-1*time.Hour), *latest)
}

func TestGormOrderRepository_SaveOrder_PersistenceError(t *testing.T) {
	db, mock := newMockDatabase(t)
	repo := NewGormOrderRepository(db.DB)

	mock.ExpectQuery(`INSERT INTO "orders"`).WillReturnError(errors.New("disk full"))

	saved, err := repo.SaveOrder(context.Background(), remoteOrderFixture{
		orderID: "111-0000006-0000006",
		store:   "store-a",
	}.build())
	assert.False(t, saved)
	require.Error(t, err)
	assert.ErrorIs(t, err, integration.ErrPersistence)
	assert.False(t, integration.IsRetryable(err))
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormOrderRepository_SaveOrder_InsideTransaction(t *testing.T) {
	db := newTestDB(t)
	scope := NewGormTransactionScope(db)
	ctx := context.Background()

	boom := errors.New("second order failed")
	err := scope.Execute(ctx, func(repos appintegration.TransactionalRepositories) error {
		if _, err := repos.OrderWriter().SaveOrder(ctx, remoteOrderFixture{orderID: "T-1", store: "s"}.build()); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var n int64
	require.NoError(t, db.Model(&models.OrderModel{}).Count(&n).Error)
	assert.Zero(t, n, "rolled back page leaves no rows")

	err = scope.Execute(ctx, func(repos appintegration.TransactionalRepositories) error {
		_, err := repos.OrderWriter().SaveOrder(ctx, remoteOrderFixture{orderID: "T-1", store: "s"}.build())
		return err
	})
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.OrderModel{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}
