package promotion

import (
	"slices"

	"github.com/shopspring/decimal"

	"github.com/xenking/orderflow/internal/domain/order"
	"github.com/xenking/orderflow/pkg/money"
)

var hundred = decimal.NewFromInt(100)

// percentOf returns pct percent of amount, rounded to minor units.
func percentOf(amount int64, pct decimal.Decimal) int64 {
	return money.Round(decimal.NewFromInt(amount).Mul(pct).Div(hundred))
}

func itemDiscount(a Action, line *order.OrderLine, item *order.OrderItem, state *State) int64 {
	switch a.Type {
	case ActionItemPercentage:
		if len(a.VariantIDs) > 0 && (line == nil || !slices.Contains(a.VariantIDs, line.ProductVariantID)) {
			return 0
		}
		return -percentOf(item.UnitPrice(), a.Percentage)
	case ActionBuyXGetYFree:
		if state != nil && state.FreeItemIDs[item.ID] {
			return -item.UnitPrice()
		}
	}
	return 0
}

func orderDiscount(a Action, o *order.Order) int64 {
	gross := o.PricesIncludeTax()
	subtotal := floorAtZero(o.SubTotal)
	if gross {
		subtotal = floorAtZero(o.SubTotalWithTax)
	}

	switch a.Type {
	case ActionOrderPercentage:
		return -percentOf(subtotal, a.Percentage)
	case ActionOrderFixed:
		return -min(a.Amount, subtotal)
	case ActionOrderFixedPrice:
		if subtotal <= a.Amount {
			return 0
		}
		return -(subtotal - a.Amount)
	case ActionFreeLowest:
		return -min(lowestUnitPrice(o, gross), subtotal)
	}
	return 0
}

func shippingDiscount(a Action, sl *order.ShippingLine) int64 {
	if a.Type == ActionFreeShipping {
		return -floorAtZero(sl.Price())
	}
	return 0
}

// lowestUnitPrice returns the lowest unit price among the active items.
// If there are none it returns zero.
func lowestUnitPrice(o *order.Order, gross bool) int64 {
	price := (*order.OrderItem).UnitPrice
	if gross {
		price = (*order.OrderItem).UnitPriceWithTax
	}
	items := o.ActiveItems()
	if len(items) == 0 {
		return 0
	}
	lowest := price(items[0])
	for _, item := range items[1:] {
		if p := price(item); p < lowest {
			lowest = p
		}
	}
	return floorAtZero(lowest)
}

// floorAtZero clamps negative values to zero.
func floorAtZero(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
