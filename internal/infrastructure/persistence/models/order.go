package models

import (
	"encoding/json"
	"time"

	"github.com/erp/ordersync/internal/domain/integration"
	"github.com/shopspring/decimal"
)

// OrderModel is the persistence model for integration.Order.
// (order_id, store_name) is unique; a NULL store_name is the legacy identity.
type OrderModel struct {
	ID                 int64           `gorm:"primaryKey;autoIncrement"`
	OrderID            string          `gorm:"type:varchar(64);not null;uniqueIndex:uq_orders_order_store,priority:1"`
	StoreName          *string         `gorm:"type:varchar(128);uniqueIndex:uq_orders_order_store,priority:2;index:idx_orders_store_purchase,priority:1"`
	MarketplaceID      string          `gorm:"type:varchar(32);index:idx_orders_marketplace_purchase,priority:1"`
	OrderStatus        string          `gorm:"type:varchar(32)"`
	PurchaseDate       *time.Time      `gorm:"index:idx_orders_marketplace_purchase,priority:2;index:idx_orders_store_purchase,priority:2"`
	LastUpdateDate     *time.Time      `gorm:"index"`
	PaymentDate        *time.Time
	RefundDate         *time.Time
	ShipByDate         *time.Time
	OrderTotal         decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	Currency           string          `gorm:"type:varchar(8)"`
	Profit             decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	BuyerName          string          `gorm:"type:varchar(255)"`
	BuyerEmail         string          `gorm:"type:varchar(255)"`
	FulfillmentChannel string          `gorm:"type:varchar(32)"`
	IsBusinessOrder    bool            `gorm:"not null;default:false"`
	IsReplacementOrder bool            `gorm:"not null;default:false"`
	RawPayload         string          `gorm:"type:text"`
	LocalNote          string          `gorm:"type:text"`
	CreatedAt          time.Time       `gorm:"not null"`
	UpdatedAt          time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// OrderSyncColumns are the columns a sync upsert overwrites. It never
// includes local_note or created_at.
var OrderSyncColumns = []string{
	"marketplace_id",
	"order_status",
	"purchase_date",
	"last_update_date",
	"payment_date",
	"refund_date",
	"ship_by_date",
	"order_total",
	"currency",
	"profit",
	"buyer_name",
	"buyer_email",
	"fulfillment_channel",
	"is_business_order",
	"is_replacement_order",
	"raw_payload",
	"updated_at",
}

// FromDomain populates the model from a domain Order. Timestamps are stored in UTC.
func (m *OrderModel) FromDomain(o *integration.Order) {
	m.OrderID = o.OrderID
	m.StoreName = o.StoreName
	m.MarketplaceID = o.MarketplaceID
	m.OrderStatus = o.Status
	m.PurchaseDate = utcPtr(o.PurchaseDate)
	m.LastUpdateDate = utcPtr(o.LastUpdateDate)
	m.PaymentDate = utcPtr(o.PaymentDate)
	m.RefundDate = utcPtr(o.RefundDate)
	m.ShipByDate = utcPtr(o.ShipByDate)
	m.OrderTotal = o.OrderTotal
	m.Currency = o.Currency
	m.Profit = o.Profit
	m.BuyerName = o.BuyerName
	m.BuyerEmail = o.BuyerEmail
	m.FulfillmentChannel = o.FulfillmentChannel
	m.IsBusinessOrder = o.IsBusinessOrder
	m.IsReplacementOrder = o.IsReplacementOrder
	m.RawPayload = string(o.RawPayload)
	m.LocalNote = o.LocalNote
}

// SyncAssignments returns the upsert column values keyed by column name
func (m *OrderModel) SyncAssignments() map[string]any {
	return map[string]any{
		"marketplace_id":       m.MarketplaceID,
		"order_status":         m.OrderStatus,
		"purchase_date":        m.PurchaseDate,
		"last_update_date":     m.LastUpdateDate,
		"payment_date":         m.PaymentDate,
		"refund_date":          m.RefundDate,
		"ship_by_date":         m.ShipByDate,
		"order_total":          m.OrderTotal,
		"currency":             m.Currency,
		"profit":               m.Profit,
		"buyer_name":           m.BuyerName,
		"buyer_email":          m.BuyerEmail,
		"fulfillment_channel":  m.FulfillmentChannel,
		"is_business_order":    m.IsBusinessOrder,
		"is_replacement_order": m.IsReplacementOrder,
		"raw_payload":          m.RawPayload,
		"updated_at":           m.UpdatedAt,
	}
}

// ToDomain converts the model to a domain Order without items
func (m *OrderModel) ToDomain() integration.Order {
	o := integration.Order{
		OrderID:            m.OrderID,
		StoreName:          m.StoreName,
		MarketplaceID:      m.MarketplaceID,
		Status:             m.OrderStatus,
		PurchaseDate:       utcPtr(m.PurchaseDate),
		LastUpdateDate:     utcPtr(m.LastUpdateDate),
		PaymentDate:        utcPtr(m.PaymentDate),
		RefundDate:         utcPtr(m.RefundDate),
		ShipByDate:         utcPtr(m.ShipByDate),
		OrderTotal:         m.OrderTotal,
		Currency:           m.Currency,
		Profit:             m.Profit,
		BuyerName:          m.BuyerName,
		BuyerEmail:         m.BuyerEmail,
		FulfillmentChannel: m.FulfillmentChannel,
		IsBusinessOrder:    m.IsBusinessOrder,
		IsReplacementOrder: m.IsReplacementOrder,
		LocalNote:          m.LocalNote,
		CreatedAt:          m.CreatedAt.UTC(),
		UpdatedAt:          m.UpdatedAt.UTC(),
	}
	if m.RawPayload != "" {
		o.RawPayload = json.RawMessage(m.RawPayload)
	}
	return o
}

// OrderItemModel is the persistence model for integration.OrderItem
type OrderItemModel struct {
	ID                   int64           `gorm:"primaryKey;autoIncrement"`
	OrderID              string          `gorm:"type:varchar(64);not null;index:idx_order_items_order_store,priority:1"`
	StoreName            *string         `gorm:"type:varchar(128);index:idx_order_items_order_store,priority:2"`
	ASIN                 string          `gorm:"column:asin;type:varchar(32);index"`
	SellerSKU            string          `gorm:"column:seller_sku;type:varchar(128);index"`
	LocalSKU             string          `gorm:"column:local_sku;type:varchar(128);index"`
	Title                string          `gorm:"type:text"`
	ImageURL             string          `gorm:"column:image_url;type:text"`
	Quantity             int             `gorm:"not null;default:0"`
	UnitPrice            decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	PromotionIDs         string          `gorm:"column:promotion_ids;type:text"`
	PurchaseCost         decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	InboundFreightCost   decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	OutboundShippingCost decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	TaxAmount            decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	DiscountAmount       decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"`
	CreatedAt            time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (OrderItemModel) TableName() string {
	return "order_items"
}

// OrderItemModelFromDomain converts a domain OrderItem
func OrderItemModelFromDomain(item integration.OrderItem, createdAt time.Time) OrderItemModel {
	return OrderItemModel{
		OrderID:              item.OrderID,
		StoreName:            item.StoreName,
		ASIN:                 item.ASIN,
		SellerSKU:            item.SellerSKU,
		LocalSKU:             item.LocalSKU,
		Title:                item.Title,
		ImageURL:             item.ImageURL,
		Quantity:             item.Quantity,
		UnitPrice:            item.UnitPrice,
		PromotionIDs:         item.PromotionIDList(),
		PurchaseCost:         item.PurchaseCost,
		InboundFreightCost:   item.InboundFreightCost,
		OutboundShippingCost: item.OutboundShippingCost,
		TaxAmount:            item.TaxAmount,
		DiscountAmount:       item.DiscountAmount,
		CreatedAt:            createdAt,
	}
}

// ToDomain converts the model to a domain OrderItem
func (m *OrderItemModel) ToDomain() integration.OrderItem {
	return integration.OrderItem{
		OrderID:              m.OrderID,
		StoreName:            m.StoreName,
		ASIN:                 m.ASIN,
		SellerSKU:            m.SellerSKU,
		LocalSKU:             m.LocalSKU,
		Title:                m.Title,
		ImageURL:             m.ImageURL,
		Quantity:             m.Quantity,
		UnitPrice:            m.UnitPrice,
		PromotionIDs:         integration.SplitPromotionIDs(m.PromotionIDs),
		PurchaseCost:         m.PurchaseCost,
		InboundFreightCost:   m.InboundFreightCost,
		OutboundShippingCost: m.OutboundShippingCost,
		TaxAmount:            m.TaxAmount,
		DiscountAmount:       m.DiscountAmount,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
