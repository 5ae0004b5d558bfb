package integration

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PromotionIDSeparator joins promotion identifiers into one stored column.
const PromotionIDSeparator = ","

// ---------------------------------------------------------------------------
// Order
// ---------------------------------------------------------------------------

// Order is the local projection of one remote marketplace order.
// Identity is (OrderID, StoreName); a nil StoreName is the legacy unscoped identity.
type Order struct {
	OrderID            string
	StoreName          *string
	MarketplaceID      string
	Status             string
	PurchaseDate       *time.Time
	LastUpdateDate     *time.Time
	PaymentDate        *time.Time
	RefundDate         *time.Time
	ShipByDate         *time.Time
	OrderTotal         decimal.Decimal
	Currency           string
	Profit             decimal.Decimal
	BuyerName          string
	BuyerEmail         string
	FulfillmentChannel string
	IsBusinessOrder    bool
	IsReplacementOrder bool
	RawPayload         json.RawMessage
	// LocalNote is owned by operators and never written by sync.
	LocalNote string
	Items     []OrderItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StoreLabel returns the store name, or an empty string for the legacy identity.
func (o *Order) StoreLabel() string {
	if o.StoreName == nil {
		return ""
	}
	return *o.StoreName
}

// IsStale reports whether the order should be refreshed from the remote API.
func (o *Order) IsStale(now time.Time, maxAge time.Duration) bool {
	if o.LastUpdateDate == nil {
		return true
	}
	return now.Sub(*o.LastUpdateDate) > maxAge
}

// OrderItem is one line of an Order, scoped to the same (OrderID, StoreName) pair.
type OrderItem struct {
	OrderID              string
	StoreName            *string
	ASIN                 string
	SellerSKU            string
	LocalSKU             string
	Title                string
	ImageURL             string
	Quantity             int
	UnitPrice            decimal.Decimal
	PromotionIDs         []string
	PurchaseCost         decimal.Decimal
	InboundFreightCost   decimal.Decimal
	OutboundShippingCost decimal.Decimal
	TaxAmount            decimal.Decimal
	DiscountAmount       decimal.Decimal
}

// PromotionIDList returns the promotion identifiers as a delimited list.
func (i *OrderItem) PromotionIDList() string {
	return strings.Join(i.PromotionIDs, PromotionIDSeparator)
}

// SplitPromotionIDs parses a stored delimited list back into identifiers.
func SplitPromotionIDs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, PromotionIDSeparator)
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

// ---------------------------------------------------------------------------
// RemoteOrder (upstream payload, not yet normalised)
// ---------------------------------------------------------------------------

// RemoteOrder is one decoded row of the remote "list orders" call.
// Numeric and time fields are kept as the raw strings the remote sent.
type RemoteOrder struct {
	OrderID            string
	StoreName          string
	MarketplaceID      string
	Status             string
	PurchaseDate       string
	LastUpdateDate     string
	PaymentDate        string
	RefundDate         string
	ShipByDate         string
	OrderTotal         string
	Currency           string
	Profit             string
	BuyerName          string
	BuyerEmail         string
	FulfillmentChannel string
	IsBusinessOrder    bool
	IsReplacementOrder bool
	Items              []RemoteOrderItem
	Raw                json.RawMessage
}

// RemoteOrderItem is one decoded line item of a RemoteOrder.
type RemoteOrderItem struct {
	ASIN                 string
	SellerSKU            string
	LocalSKU             string
	Title                string
	ImageURL             string
	Quantity             string
	UnitPrice            string
	PromotionIDs         []string
	PurchaseCost         string
	InboundFreightCost   string
	OutboundShippingCost string
	TaxAmount            string
	DiscountAmount       string
}

// HasID reports whether the payload carries a remote order identifier.
func (r *RemoteOrder) HasID() bool {
	return strings.TrimSpace(r.OrderID) != ""
}

// ToOrder normalises the payload into an Order. It never fails: malformed
// numbers become zero and unparseable timestamps become nil.
func (r *RemoteOrder) ToOrder() *Order {
	var store *string
	if s := strings.TrimSpace(r.StoreName); s != "" {
		store = &s
	}
	orderID := strings.TrimSpace(r.OrderID)

	o := &Order{
		OrderID:            orderID,
		StoreName:          store,
		MarketplaceID:      strings.TrimSpace(r.MarketplaceID),
		Status:             strings.TrimSpace(r.Status),
		PurchaseDate:       ParseRemoteTime(r.PurchaseDate),
		LastUpdateDate:     ParseRemoteTime(r.LastUpdateDate),
		PaymentDate:        ParseRemoteTime(r.PaymentDate),
		RefundDate:         ParseRemoteTime(r.RefundDate),
		ShipByDate:         ParseRemoteTime(r.ShipByDate),
		OrderTotal:         NormalizeAmount(r.OrderTotal),
		Currency:           strings.TrimSpace(r.Currency),
		Profit:             NormalizeAmount(r.Profit),
		BuyerName:          r.BuyerName,
		BuyerEmail:         r.BuyerEmail,
		FulfillmentChannel: r.FulfillmentChannel,
		IsBusinessOrder:    r.IsBusinessOrder,
		IsReplacementOrder: r.IsReplacementOrder,
		RawPayload:         r.Raw,
	}

	if len(r.Items) > 0 {
		o.Items = make([]OrderItem, 0, len(r.Items))
		for _, it := range r.Items {
			o.Items = append(o.Items, OrderItem{
				OrderID:              orderID,
				StoreName:            store,
				ASIN:                 strings.TrimSpace(it.ASIN),
				SellerSKU:            strings.TrimSpace(it.SellerSKU),
				LocalSKU:             strings.TrimSpace(it.LocalSKU),
				Title:                it.Title,
				ImageURL:             it.ImageURL,
				Quantity:             NormalizeQuantity(it.Quantity),
				UnitPrice:            NormalizeAmount(it.UnitPrice),
				PromotionIDs:         it.PromotionIDs,
				PurchaseCost:         NormalizeAmount(it.PurchaseCost),
				InboundFreightCost:   NormalizeAmount(it.InboundFreightCost),
				OutboundShippingCost: NormalizeAmount(it.OutboundShippingCost),
				TaxAmount:            NormalizeAmount(it.TaxAmount),
				DiscountAmount:       NormalizeAmount(it.DiscountAmount),
			})
		}
	}
	return o
}

// ---------------------------------------------------------------------------
// Normalisation helpers
// ---------------------------------------------------------------------------

// NormalizeAmount strips every character except digits and the decimal point
// and parses the rest. Anything unparseable yields zero.
func NormalizeAmount(raw string) decimal.Decimal {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(b.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

// maxQuantity is the largest value the order_items.quantity column holds.
var maxQuantity = decimal.NewFromInt(math.MaxInt32)

// NormalizeQuantity is NormalizeAmount truncated to a whole number of units.
// Values the quantity column cannot hold yield zero.
func NormalizeQuantity(raw string) int {
	d := NormalizeAmount(raw).Truncate(0)
	if d.GreaterThan(maxQuantity) {
		return 0
	}
	return int(d.IntPart())
}

var remoteTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseRemoteTime parses a remote timestamp into UTC. Timestamps without a
// zone are taken as UTC. Empty, zero or unparseable values yield nil.
func ParseRemoteTime(raw string) *time.Time {
	s := strings.TrimSpace(raw)
	if s == "" || strings.HasPrefix(s, "0000-00-00") {
		return nil
	}
	for _, layout := range remoteTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			u := t.UTC()
			return &u
		}
	}
	return nil
}
