package ecommerce

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/erp/ordersync/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Request Types
// ---------------------------------------------------------------------------

// orderListRequest is the body of the "list orders" call
type orderListRequest struct {
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
	DateType  string   `json:"date_type"`
	OrderIDs  []string `json:"order_ids,omitempty"`
	Page      int      `json:"page"`
	Length    int      `json:"length"`
}

// remoteTimeLayout is the wall-clock layout the remote expects, in UTC
const remoteTimeLayout = "2006-01-02 15:04:05"

func newOrderListRequest(req integration.OrderPullRequest) orderListRequest {
	return orderListRequest{
		StartDate: req.StartTime.UTC().Format(remoteTimeLayout),
		EndDate:   req.EndTime.UTC().Format(remoteTimeLayout),
		DateType:  string(req.DateField),
		OrderIDs:  req.OrderIDs,
		Page:      req.PageNo,
		Length:    req.PageSize,
	}
}

// ---------------------------------------------------------------------------
// Response Types
// ---------------------------------------------------------------------------

// flexString accepts a JSON string, number, boolean or null
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(data)
	return nil
}

// flexBool accepts true/false, 0/1, y/n, yes/no and their string forms.
// Anything else decodes as false.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(data); err != nil {
		*f = false
		return nil
	}
	switch v := strings.TrimSpace(strings.ToLower(string(s))); v {
	case "y", "yes":
		*f = true
	case "n", "no":
		*f = false
	default:
		b, err := strconv.ParseBool(v)
		*f = flexBool(err == nil && b)
	}
	return nil
}

// wireOrder is one row of the "list orders" reply
type wireOrder struct {
	OrderID            flexString `json:"order_id"`
	StoreName          flexString `json:"store_name"`
	MarketplaceID      flexString `json:"marketplace_id"`
	OrderStatus        flexString `json:"order_status"`
	PurchaseDate       flexString `json:"purchase_date"`
	LastUpdateDate     flexString `json:"last_update_date"`
	PaymentDate        flexString `json:"payment_date"`
	RefundDate         flexString `json:"refund_date"`
	ShipByDate         flexString `json:"ship_by_date"`
	OrderTotalAmount   flexString `json:"order_total_amount"`
	OrderTotalCurrency flexString `json:"order_total_currency"`
	Profit             flexString `json:"profit"`
	BuyerName          flexString `json:"buyer_name"`
	BuyerEmail         flexString `json:"buyer_email"`
	FulfillmentChannel flexString `json:"fulfillment_channel"`
	IsBusinessOrder    flexBool   `json:"is_business_order"`
	IsReplacementOrder flexBool   `json:"is_replacement_order"`
	Items              []wireItem `json:"item_list"`
}

// wireItem is one line item of a wireOrder
type wireItem struct {
	ASIN                 flexString      `json:"asin"`
	SellerSKU            flexString      `json:"seller_sku"`
	LocalSKU             flexString      `json:"local_sku"`
	Title                flexString      `json:"title"`
	ImageURL             flexString      `json:"image_url"`
	QuantityOrdered      flexString      `json:"quantity_ordered"`
	ItemPrice            flexString      `json:"item_price"`
	PromotionIDs         json.RawMessage `json:"promotion_ids"`
	PurchaseCost         flexString      `json:"purchase_cost"`
	InboundFreightCost   flexString      `json:"inbound_freight_cost"`
	OutboundShippingCost flexString      `json:"outbound_shipping_cost"`
	TaxAmount            flexString      `json:"tax_amount"`
	DiscountAmount       flexString      `json:"discount_amount"`
}

// promotionIDs accepts either a JSON array of ids or a delimited string
func (w *wireItem) promotionIDs() []string {
	raw := bytes.TrimSpace(w.PromotionIDs)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '[' {
		var list []flexString
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil
		}
		ids := make([]string, 0, len(list))
		for _, id := range list {
			if s := strings.TrimSpace(string(id)); s != "" {
				ids = append(ids, s)
			}
		}
		return ids
	}
	var s flexString
	if err := s.UnmarshalJSON(raw); err != nil {
		return nil
	}
	return integration.SplitPromotionIDs(string(s))
}

func (w *wireOrder) toRemoteOrder(raw json.RawMessage) integration.RemoteOrder {
	ro := integration.RemoteOrder{
		OrderID:            string(w.OrderID),
		StoreName:          string(w.StoreName),
		MarketplaceID:      string(w.MarketplaceID),
		Status:             string(w.OrderStatus),
		PurchaseDate:       string(w.PurchaseDate),
		LastUpdateDate:     string(w.LastUpdateDate),
		PaymentDate:        string(w.PaymentDate),
		RefundDate:         string(w.RefundDate),
		ShipByDate:         string(w.ShipByDate),
		OrderTotal:         string(w.OrderTotalAmount),
		Currency:           string(w.OrderTotalCurrency),
		Profit:             string(w.Profit),
		BuyerName:          string(w.BuyerName),
		BuyerEmail:         string(w.BuyerEmail),
		FulfillmentChannel: string(w.FulfillmentChannel),
		IsBusinessOrder:    bool(w.IsBusinessOrder),
		IsReplacementOrder: bool(w.IsReplacementOrder),
		Raw:                raw,
	}
	if len(w.Items) > 0 {
		ro.Items = make([]integration.RemoteOrderItem, 0, len(w.Items))
		for i := range w.Items {
			it := &w.Items[i]
			ro.Items = append(ro.Items, integration.RemoteOrderItem{
				ASIN:                 string(it.ASIN),
				SellerSKU:            string(it.SellerSKU),
				LocalSKU:             string(it.LocalSKU),
				Title:                string(it.Title),
				ImageURL:             string(it.ImageURL),
				Quantity:             string(it.QuantityOrdered),
				UnitPrice:            string(it.ItemPrice),
				PromotionIDs:         it.promotionIDs(),
				PurchaseCost:         string(it.PurchaseCost),
				InboundFreightCost:   string(it.InboundFreightCost),
				OutboundShippingCost: string(it.OutboundShippingCost),
				TaxAmount:            string(it.TaxAmount),
				DiscountAmount:       string(it.DiscountAmount),
			})
		}
	}
	return ro
}

// decodeOrderRows decodes the rows of a "list orders" reply, keeping each
// row's verbatim JSON as the raw payload.
func decodeOrderRows(rows json.RawMessage) ([]integration.RemoteOrder, error) {
	rows = bytes.TrimSpace(rows)
	if len(rows) == 0 || bytes.Equal(rows, []byte("null")) {
		return nil, nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(rows, &raws); err != nil {
		return nil, fmt.Errorf("%w: rows: %v", integration.ErrRemoteInvalidReply, err)
	}

	orders := make([]integration.RemoteOrder, 0, len(raws))
	for i, raw := range raws {
		var w wireOrder
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", integration.ErrRemoteInvalidReply, i, err)
		}
		// copy so the payload does not alias the response buffer
		payload := make(json.RawMessage, len(raw))
		copy(payload, raw)
		orders = append(orders, w.toRemoteOrder(payload))
	}
	return orders, nil
}
