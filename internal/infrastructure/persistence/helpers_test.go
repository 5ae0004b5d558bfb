package persistence

import (
	"strconv"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/erp/ordersync/internal/domain/integration"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens a migrated in-memory sqlite database
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, AutoMigrate(db))
	return db
}

var faker = gofakeit.New(42)

// remoteOrderFixture builds a payload the way the remote API encodes it
type remoteOrderFixture struct {
	orderID     string
	store       string
	marketplace string
	status      string
	purchased   time.Time
	replacement bool
	items       []integration.RemoteOrderItem
}

func (f remoteOrderFixture) build() *integration.RemoteOrder {
	marketplace := f.marketplace
	if marketplace == "" {
		marketplace = "ATVPDKIKX0DER"
	}
	status := f.status
	if status == "" {
		status = "Shipped"
	}
	purchased := f.purchased
	if purchased.IsZero() {
		purchased = time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)
	}
	return &integration.RemoteOrder{
		OrderID:            f.orderID,
		StoreName:          f.store,
		MarketplaceID:      marketplace,
		Status:             status,
		PurchaseDate:       purchased.Format(time.RFC3339),
		LastUpdateDate:     purchased.Add(time.Hour).Format(time.RFC3339),
		OrderTotal:         "$21.00",
		Currency:           "USD",
		BuyerName:          faker.Name(),
		BuyerEmail:         faker.Email(),
		FulfillmentChannel: "AFN",
		IsReplacementOrder: f.replacement,
		Items:              f.items,
		Raw:                []byte(`{"amazon_order_id":"` + f.orderID + `"}`),
	}
}

func remoteItem(asin, sku string, qty int, price string) integration.RemoteOrderItem {
	return integration.RemoteOrderItem{
		ASIN:      asin,
		SellerSKU: sku,
		LocalSKU:  "L-" + sku,
		Title:     faker.ProductName(),
		ImageURL:  faker.URL(),
		Quantity:  strconv.Itoa(qty),
		UnitPrice: price,
	}
}
