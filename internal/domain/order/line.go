package order

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/xenking/orderflow/pkg/money"
)

// AdjustmentType tags the origin of a price Adjustment.
type AdjustmentType string

const (
	// AdjustmentPromotion is applied directly to an item or shipping line.
	AdjustmentPromotion AdjustmentType = "PROMOTION"
	// AdjustmentDistributedOrderPromotion is an order-level discount
	// prorated down onto individual items.
	AdjustmentDistributedOrderPromotion AdjustmentType = "DISTRIBUTED_ORDER_PROMOTION"
)

// Adjustment modifies the net price of the entity it is attached to.
// Amount is negative for discounts.
type Adjustment struct {
	Type        AdjustmentType
	Amount      int64
	Source      string
	Description string
}

// TaxLine records one tax applied to an entity.
type TaxLine struct {
	Description string
	TaxRate     decimal.Decimal
}

// TaxRateOf returns the combined rate of the given tax lines.
func TaxRateOf(lines []TaxLine) decimal.Decimal {
	rate := decimal.Zero
	for _, tl := range lines {
		rate = rate.Add(tl.TaxRate)
	}
	return rate
}

func sumAdjustments(adjustments []Adjustment, types []AdjustmentType) int64 {
	var total int64
	for _, a := range adjustments {
		if len(types) == 0 || slices.Contains(types, a.Type) {
			total += a.Amount
		}
	}
	return total
}

func withoutAdjustments(adjustments []Adjustment, types []AdjustmentType) []Adjustment {
	if len(types) == 0 {
		return nil
	}
	return slices.DeleteFunc(adjustments, func(a Adjustment) bool {
		return slices.Contains(types, a.Type)
	})
}

// OrderItem is a single unit of an OrderLine.
type OrderItem struct {
	ID                   string
	ListPrice            int64
	ListPriceIncludesTax bool
	Adjustments          []Adjustment
	TaxLines             []TaxLine
	Cancelled            bool
	FulfillmentID        string
}

// TaxRate returns the combined rate of all tax lines.
func (i *OrderItem) TaxRate() decimal.Decimal {
	return TaxRateOf(i.TaxLines)
}

// UnitPrice returns the net unit price before adjustments.
func (i *OrderItem) UnitPrice() int64 {
	if i.ListPriceIncludesTax {
		return money.NetPriceOf(i.ListPrice, i.TaxRate())
	}
	return i.ListPrice
}

// UnitTax returns the tax due on UnitPrice.
func (i *OrderItem) UnitTax() int64 {
	return money.TaxOn(i.UnitPrice(), i.TaxRate())
}

// UnitPriceWithTax returns UnitPrice plus UnitTax.
func (i *OrderItem) UnitPriceWithTax() int64 {
	return i.UnitPrice() + i.UnitTax()
}

// AdjustmentsTotal sums the adjustments of the given types, or all of them
// when no type is given.
func (i *OrderItem) AdjustmentsTotal(types ...AdjustmentType) int64 {
	return sumAdjustments(i.Adjustments, types)
}

// DiscountedUnitPrice returns UnitPrice with item-level promotions applied.
func (i *OrderItem) DiscountedUnitPrice() int64 {
	return i.UnitPrice() + i.AdjustmentsTotal(AdjustmentPromotion)
}

// ProratedUnitPrice returns UnitPrice with every adjustment applied,
// including the item's share of order-level promotions.
func (i *OrderItem) ProratedUnitPrice() int64 {
	return i.UnitPrice() + i.AdjustmentsTotal()
}

// ProratedUnitTax returns the tax due on ProratedUnitPrice.
func (i *OrderItem) ProratedUnitTax() int64 {
	return money.TaxOn(i.ProratedUnitPrice(), i.TaxRate())
}

// ProratedUnitPriceWithTax returns ProratedUnitPrice plus its tax.
func (i *OrderItem) ProratedUnitPriceWithTax() int64 {
	return i.ProratedUnitPrice() + i.ProratedUnitTax()
}

// AddAdjustment attaches an adjustment to the item.
func (i *OrderItem) AddAdjustment(a Adjustment) {
	i.Adjustments = append(i.Adjustments, a)
}

// ClearAdjustments removes adjustments of the given types, or all of them
// when no type is given.
func (i *OrderItem) ClearAdjustments(types ...AdjustmentType) {
	i.Adjustments = withoutAdjustments(i.Adjustments, types)
}

// OrderLine groups the units of one product variant. Quantity is never
// stored: it is the number of items that have not been cancelled.
type OrderLine struct {
	ID               string
	ProductVariantID string
	Name             string
	TaxCategoryID    string
	Items            []*OrderItem
}

// ActiveItems returns the items that have not been cancelled.
func (l *OrderLine) ActiveItems() []*OrderItem {
	active := make([]*OrderItem, 0, len(l.Items))
	for _, item := range l.Items {
		if !item.Cancelled {
			active = append(active, item)
		}
	}
	return active
}

// Quantity returns the number of active items.
func (l *OrderLine) Quantity() int {
	n := 0
	for _, item := range l.Items {
		if !item.Cancelled {
			n++
		}
	}
	return n
}

func (l *OrderLine) firstItem() *OrderItem {
	for _, item := range l.Items {
		if !item.Cancelled {
			return item
		}
	}
	if len(l.Items) > 0 {
		return l.Items[0]
	}
	return nil
}

// TaxLines returns the tax lines shared by the line's items.
func (l *OrderLine) TaxLines() []TaxLine {
	if item := l.firstItem(); item != nil {
		return item.TaxLines
	}
	return nil
}

// TaxRate returns the combined tax rate of the line.
func (l *OrderLine) TaxRate() decimal.Decimal {
	return TaxRateOf(l.TaxLines())
}

// UnitPrice returns the net unit price of the line's items.
func (l *OrderLine) UnitPrice() int64 {
	if item := l.firstItem(); item != nil {
		return item.UnitPrice()
	}
	return 0
}

// UnitPriceWithTax returns the gross unit price of the line's items.
func (l *OrderLine) UnitPriceWithTax() int64 {
	if item := l.firstItem(); item != nil {
		return item.UnitPriceWithTax()
	}
	return 0
}

// LinePrice returns the net price of all active items before adjustments.
func (l *OrderLine) LinePrice() int64 {
	var total int64
	for _, item := range l.ActiveItems() {
		total += item.UnitPrice()
	}
	return total
}

// LineTax returns the tax due on LinePrice, rounded once for the line.
func (l *OrderLine) LineTax() int64 {
	return money.TaxOn(l.LinePrice(), l.TaxRate())
}

// LinePriceWithTax returns LinePrice plus LineTax.
func (l *OrderLine) LinePriceWithTax() int64 {
	return l.LinePrice() + l.LineTax()
}

// DiscountedLinePrice returns the net line price with item-level
// promotions applied.
func (l *OrderLine) DiscountedLinePrice() int64 {
	var total int64
	for _, item := range l.ActiveItems() {
		total += item.DiscountedUnitPrice()
	}
	return total
}

// ProratedLinePrice returns the net line price with every adjustment applied.
func (l *OrderLine) ProratedLinePrice() int64 {
	var total int64
	for _, item := range l.ActiveItems() {
		total += item.ProratedUnitPrice()
	}
	return total
}

// ProratedLineTax returns the tax due on ProratedLinePrice, rounded once for
// the line.
func (l *OrderLine) ProratedLineTax() int64 {
	return money.TaxOn(l.ProratedLinePrice(), l.TaxRate())
}

// ProratedLinePriceWithTax returns ProratedLinePrice plus ProratedLineTax.
func (l *OrderLine) ProratedLinePriceWithTax() int64 {
	return l.ProratedLinePrice() + l.ProratedLineTax()
}

// Adjustments returns the adjustments of all active items.
func (l *OrderLine) Adjustments() []Adjustment {
	var out []Adjustment
	for _, item := range l.ActiveItems() {
		out = append(out, item.Adjustments...)
	}
	return out
}

// AdjustmentsTotal sums the adjustments of the given types over the
// active items.
func (l *OrderLine) AdjustmentsTotal(types ...AdjustmentType) int64 {
	var total int64
	for _, item := range l.ActiveItems() {
		total += item.AdjustmentsTotal(types...)
	}
	return total
}

// ClearAdjustments removes adjustments of the given types from every item.
func (l *OrderLine) ClearAdjustments(types ...AdjustmentType) {
	for _, item := range l.Items {
		item.ClearAdjustments(types...)
	}
}
