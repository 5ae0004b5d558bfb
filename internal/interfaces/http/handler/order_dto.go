package handler

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erp/ordersync/internal/domain/integration"
)

// OrderItemResponse represents one order line in API responses
type OrderItemResponse struct {
	ASIN                 string          `json:"asin" example:"B0C1234567"`
	SellerSKU            string          `json:"seller_sku" example:"MSKU-RED-01"`
	LocalSKU             string          `json:"local_sku" example:"SKU-001"`
	Title                string          `json:"title"`
	ImageURL             string          `json:"image_url,omitempty"`
	Quantity             int             `json:"quantity" example:"2"`
	UnitPrice            decimal.Decimal `json:"unit_price" swaggertype:"string" example:"19.99"`
	PromotionIDs         []string        `json:"promotion_ids,omitempty"`
	PurchaseCost         decimal.Decimal `json:"purchase_cost" swaggertype:"string"`
	InboundFreightCost   decimal.Decimal `json:"inbound_freight_cost" swaggertype:"string"`
	OutboundShippingCost decimal.Decimal `json:"outbound_shipping_cost" swaggertype:"string"`
	TaxAmount            decimal.Decimal `json:"tax_amount" swaggertype:"string"`
	DiscountAmount       decimal.Decimal `json:"discount_amount" swaggertype:"string"`
}

// OrderResponse represents one stored (order, store) row
type OrderResponse struct {
	OrderID            string              `json:"order_id" example:"113-1234567-1234567"`
	StoreName          *string             `json:"store_name" example:"store-us"`
	MarketplaceID      string              `json:"marketplace_id" example:"ATVPDKIKX0DER"`
	Status             string              `json:"order_status" example:"Shipped"`
	PurchaseDate       *time.Time          `json:"purchase_date"`
	LastUpdateDate     *time.Time          `json:"last_update_date"`
	PaymentDate        *time.Time          `json:"payment_date,omitempty"`
	RefundDate         *time.Time          `json:"refund_date,omitempty"`
	ShipByDate         *time.Time          `json:"ship_by_date,omitempty"`
	OrderTotal         decimal.Decimal     `json:"order_total" swaggertype:"string" example:"39.98"`
	Currency           string              `json:"currency" example:"USD"`
	Profit             decimal.Decimal     `json:"profit" swaggertype:"string"`
	BuyerName          string              `json:"buyer_name,omitempty"`
	BuyerEmail         string              `json:"buyer_email,omitempty"`
	FulfillmentChannel string              `json:"fulfillment_channel" example:"AFN"`
	IsBusinessOrder    bool                `json:"is_business_order"`
	IsReplacementOrder bool                `json:"is_replacement_order"`
	LocalNote          string              `json:"local_note"`
	Items              []OrderItemResponse `json:"items"`
	RawPayload         json.RawMessage     `json:"raw_payload,omitempty" swaggertype:"object"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// OrderDetailResponse is the body of GET /orders/:order_id
type OrderDetailResponse struct {
	// Order is the most recently updated row; Orders holds one row per store
	Order     OrderResponse   `json:"order"`
	Orders    []OrderResponse `json:"orders"`
	Refreshed bool            `json:"refreshed"`
	Outcome   string          `json:"outcome" example:"fresh" enums:"fresh,refreshed,suppressed,not_found,failed"`
}

// UpdateNoteRequest is the body of PATCH /orders/:order_id/note
type UpdateNoteRequest struct {
	StoreName *string `json:"store_name" example:"store-us"`
	Note      *string `json:"note" binding:"required,max=2000"`
}

func toOrderResponse(o integration.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItemResponse{
			ASIN:                 it.ASIN,
			SellerSKU:            it.SellerSKU,
			LocalSKU:             it.LocalSKU,
			Title:                it.Title,
			ImageURL:             it.ImageURL,
			Quantity:             it.Quantity,
			UnitPrice:            it.UnitPrice,
			PromotionIDs:         it.PromotionIDs,
			PurchaseCost:         it.PurchaseCost,
			InboundFreightCost:   it.InboundFreightCost,
			OutboundShippingCost: it.OutboundShippingCost,
			TaxAmount:            it.TaxAmount,
			DiscountAmount:       it.DiscountAmount,
		})
	}
	return OrderResponse{
		OrderID:            o.OrderID,
		StoreName:          o.StoreName,
		MarketplaceID:      o.MarketplaceID,
		Status:             o.Status,
		PurchaseDate:       o.PurchaseDate,
		LastUpdateDate:     o.LastUpdateDate,
		PaymentDate:        o.PaymentDate,
		RefundDate:         o.RefundDate,
		ShipByDate:         o.ShipByDate,
		OrderTotal:         o.OrderTotal,
		Currency:           o.Currency,
		Profit:             o.Profit,
		BuyerName:          o.BuyerName,
		BuyerEmail:         o.BuyerEmail,
		FulfillmentChannel: o.FulfillmentChannel,
		IsBusinessOrder:    o.IsBusinessOrder,
		IsReplacementOrder: o.IsReplacementOrder,
		LocalNote:          o.LocalNote,
		Items:              items,
		RawPayload:         o.RawPayload,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
}
