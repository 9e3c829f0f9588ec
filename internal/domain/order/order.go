// Package order contains the Order aggregate and its dependent entities.
//
// Monetary fields are int64 minor units. Aggregate totals on Order are
// written by the pricing calculator and must not be patched by hand.
package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when an order does not exist.
var ErrNotFound = errors.New("order not found")

// Address is the part of a postal address relevant to pricing.
type Address struct {
	CountryCode string
	Province    string
	PostalCode  string
}

// Coupon is a coupon code applied to an order, resolved to the promotion
// it unlocks.
type Coupon struct {
	Code        string
	PromotionID string
}

// HistoryType classifies an order history entry.
type HistoryType string

// History entry types.
const (
	HistoryOrderTransition       HistoryType = "ORDER_STATE_TRANSITION"
	HistoryPaymentTransition     HistoryType = "ORDER_PAYMENT_TRANSITION"
	HistoryRefundTransition      HistoryType = "ORDER_REFUND_TRANSITION"
	HistoryFulfillmentTransition HistoryType = "ORDER_FULFILLMENT_TRANSITION"
)

// HistoryEntry records a state change of the order or one of its
// dependent entities.
type HistoryEntry struct {
	Type     HistoryType
	EntityID string
	From     string
	To       string
	At       time.Time
}

// Order is the aggregate root of the engine.
type Order struct {
	ID              string
	Code            string
	State           State
	Active          bool
	CustomerID      string
	ShippingAddress Address
	TaxZoneID       string
	Coupons         []Coupon
	Lines           []*OrderLine
	Surcharges      []*Surcharge
	ShippingLines   []*ShippingLine
	Payments        []*Payment
	Fulfillments    []*Fulfillment
	History         []HistoryEntry

	SubTotal        int64
	SubTotalWithTax int64
	Shipping        int64
	ShippingWithTax int64
	Total           int64
	TotalWithTax    int64

	PlacedAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Items returns every item of every line, cancelled ones included.
func (o *Order) Items() []*OrderItem {
	var items []*OrderItem
	for _, line := range o.Lines {
		items = append(items, line.Items...)
	}
	return items
}

// ActiveItems returns every item that has not been cancelled.
func (o *Order) ActiveItems() []*OrderItem {
	var items []*OrderItem
	for _, line := range o.Lines {
		items = append(items, line.ActiveItems()...)
	}
	return items
}

// PricesIncludeTax reports whether every active item is priced gross.
// Order-level discounts of such orders are expressed gross as well.
func (o *Order) PricesIncludeTax() bool {
	items := o.ActiveItems()
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		if !item.ListPriceIncludesTax {
			return false
		}
	}
	return true
}

// TotalQuantity returns the number of active items.
func (o *Order) TotalQuantity() int {
	n := 0
	for _, line := range o.Lines {
		n += line.Quantity()
	}
	return n
}

// Line returns the line with the given ID.
func (o *Order) Line(id string) (*OrderLine, bool) {
	for _, line := range o.Lines {
		if line.ID == id {
			return line, true
		}
	}
	return nil, false
}

// LineForVariant returns the line holding the given product variant.
func (o *Order) LineForVariant(variantID string) (*OrderLine, bool) {
	for _, line := range o.Lines {
		if line.ProductVariantID == variantID {
			return line, true
		}
	}
	return nil, false
}

// RemoveLine drops the line with the given ID.
func (o *Order) RemoveLine(id string) {
	for i, line := range o.Lines {
		if line.ID == id {
			o.Lines = append(o.Lines[:i], o.Lines[i+1:]...)
			return
		}
	}
}

// Payment returns the payment with the given ID.
func (o *Order) Payment(id string) (*Payment, bool) {
	for _, p := range o.Payments {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// Refund returns the refund with the given ID together with its payment.
func (o *Order) Refund(id string) (*Refund, *Payment, bool) {
	for _, p := range o.Payments {
		for _, r := range p.Refunds {
			if r.ID == id {
				return r, p, true
			}
		}
	}
	return nil, nil, false
}

// Fulfillment returns the fulfillment with the given ID.
func (o *Order) Fulfillment(id string) (*Fulfillment, bool) {
	for _, f := range o.Fulfillments {
		if f.ID == id {
			return f, true
		}
	}
	return nil, false
}

// HasCoupon reports whether the code has been applied.
func (o *Order) HasCoupon(code string) bool {
	for _, c := range o.Coupons {
		if c.Code == code {
			return true
		}
	}
	return false
}

// HasCouponFor reports whether any applied coupon unlocks the promotion.
func (o *Order) HasCouponFor(promotionID string) bool {
	for _, c := range o.Coupons {
		if c.PromotionID == promotionID {
			return true
		}
	}
	return false
}

// PaymentsTotal sums the payments in the given states.
func (o *Order) PaymentsTotal(states ...PaymentState) int64 {
	var total int64
	for _, p := range o.Payments {
		for _, s := range states {
			if p.State == s {
				total += p.Amount
				break
			}
		}
	}
	return total
}

// RefundsTotal sums every settled refund.
func (o *Order) RefundsTotal() int64 {
	var total int64
	for _, p := range o.Payments {
		total += p.RefundedAmount("")
	}
	return total
}

// OutstandingBalance returns the part of TotalWithTax not yet covered by
// authorized or settled payments net of settled refunds.
func (o *Order) OutstandingBalance() int64 {
	paid := o.PaymentsTotal(PaymentAuthorized, PaymentSettled) - o.RefundsTotal()
	return o.TotalWithTax - paid
}

// IsCoveredBy reports whether payments in the given states cover the order.
func (o *Order) IsCoveredBy(states ...PaymentState) bool {
	return o.PaymentsTotal(states...)-o.RefundsTotal() >= o.TotalWithTax
}

// HasDistributedPromotions reports whether any item carries a prorated
// order-level discount.
func (o *Order) HasDistributedPromotions() bool {
	for _, line := range o.Lines {
		for _, item := range line.Items {
			for _, a := range item.Adjustments {
				if a.Type == AdjustmentDistributedOrderPromotion {
					return true
				}
			}
		}
	}
	return false
}

// FulfillmentCoverage counts active items by the state of the fulfillment
// they belong to.
type FulfillmentCoverage struct {
	Total     int
	Shipped   int
	Delivered int
}

// FulfillmentCoverage reports how many active items have shipped or been
// delivered. Delivered items count as shipped as well.
func (o *Order) FulfillmentCoverage() FulfillmentCoverage {
	states := make(map[string]FulfillmentState, len(o.Fulfillments))
	for _, f := range o.Fulfillments {
		states[f.ID] = f.State
	}

	var c FulfillmentCoverage
	for _, item := range o.ActiveItems() {
		c.Total++
		switch states[item.FulfillmentID] {
		case FulfillmentShipped:
			c.Shipped++
		case FulfillmentDelivered:
			c.Shipped++
			c.Delivered++
		}
	}
	return c
}

// Record appends a history entry.
func (o *Order) Record(t HistoryType, entityID, from, to string, at time.Time) {
	o.History = append(o.History, HistoryEntry{
		Type:     t,
		EntityID: entityID,
		From:     from,
		To:       to,
		At:       at,
	})
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Get loads an order, returning ErrNotFound when it does not exist.
	Get(ctx context.Context, id string) (*Order, error)
	// Save persists the order header and the given items. Items missing
	// from the order are deleted.
	Save(ctx context.Context, o *Order, changed []*OrderItem) error
}
