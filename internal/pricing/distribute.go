package pricing

import (
	"slices"

	"github.com/xenking/orderflow/internal/domain/order"
	"github.com/xenking/orderflow/pkg/money"
)

// itemSet is an insertion-ordered set of items.
type itemSet struct {
	seen  map[*order.OrderItem]struct{}
	items []*order.OrderItem
}

func newItemSet() *itemSet {
	return &itemSet{seen: make(map[*order.OrderItem]struct{})}
}

func (s *itemSet) add(items ...*order.OrderItem) {
	for _, item := range items {
		if _, ok := s.seen[item]; ok {
			continue
		}
		s.seen[item] = struct{}{}
		s.items = append(s.items, item)
	}
}

func (s *itemSet) len() int {
	return len(s.items)
}

// distribute spreads an order-level adjustment over the active items. The
// amount is first prorated across lines by their gross prorated price, then
// across each line's items by unit price. Both steps preserve the exact sum.
//
// When every item is priced gross the adjustment is gross too. Each line's
// share is then converted to a net delta once per line, and the remaining
// rounding drift is settled unit by unit until grossSubTotal moves by exactly
// the adjustment amount, or no unit step brings it closer.
func distribute(o *order.Order, adj order.Adjustment, grossSubTotal func(*order.Order) int64, updated *itemSet) {
	var (
		lines   []*order.OrderLine
		weights []int64
	)
	for _, line := range o.Lines {
		if line.Quantity() == 0 {
			continue
		}
		lines = append(lines, line)
		weights = append(weights, line.ProratedLinePriceWithTax())
	}
	if len(lines) == 0 {
		return
	}

	shares := money.Prorate(weights, adj.Amount)
	if !o.PricesIncludeTax() {
		for i, share := range shares {
			spread(lines[i], share, adj, updated)
		}
		return
	}

	target := grossSubTotal(o) + adj.Amount
	for i, share := range shares {
		line := lines[i]
		after := line.ProratedLinePriceWithTax() + share
		spread(line, money.NetPriceOf(after, line.TaxRate())-line.ProratedLinePrice(), adj, updated)
	}
	settle(o, lines, adj, target, grossSubTotal, updated)
	for _, line := range lines {
		for _, item := range line.Items {
			item.Adjustments = slices.DeleteFunc(item.Adjustments, func(a order.Adjustment) bool {
				return a.Amount == 0 && a.Type == order.AdjustmentDistributedOrderPromotion && a.Source == adj.Source
			})
		}
	}
}

// spread prorates a net amount across the line's active items by unit price.
func spread(line *order.OrderLine, amount int64, adj order.Adjustment, updated *itemSet) {
	if amount == 0 {
		return
	}
	items := line.ActiveItems()
	weights := make([]int64, len(items))
	for j, item := range items {
		weights[j] = item.UnitPrice()
	}
	for j, part := range money.Prorate(weights, amount) {
		if part == 0 {
			continue
		}
		items[j].AddAdjustment(order.Adjustment{
			Type:        order.AdjustmentDistributedOrderPromotion,
			Amount:      part,
			Source:      adj.Source,
			Description: adj.Description,
		})
		updated.add(items[j])
	}
}

// nudge is a one unit change to the distributed share of one line.
type nudge struct {
	line int
	step int64
}

// settle moves single lines, then pairs of lines in opposite directions, by
// one net unit until the gross subtotal hits target. Every accepted move
// strictly reduces the distance, so the loop ends.
func settle(o *order.Order, lines []*order.OrderLine, adj order.Adjustment, target int64, grossSubTotal func(*order.Order) int64, updated *itemSet) {
	var moves [][]nudge
	for i := len(lines) - 1; i >= 0; i-- {
		moves = append(moves, []nudge{{i, -1}}, []nudge{{i, 1}})
	}
	for i := len(lines) - 1; i >= 0; i-- {
		for j := len(lines) - 1; j >= 0; j-- {
			if i != j {
				moves = append(moves, []nudge{{i, -1}, {j, 1}}, []nudge{{i, 1}, {j, -1}})
			}
		}
	}

	for {
		diff := abs(grossSubTotal(o) - target)
		if diff == 0 {
			return
		}
		if !tryMoves(o, lines, adj, moves, diff, target, grossSubTotal, updated) {
			return
		}
	}
}

func tryMoves(o *order.Order, lines []*order.OrderLine, adj order.Adjustment, moves [][]nudge, diff, target int64, grossSubTotal func(*order.Order) int64, updated *itemSet) bool {
	for _, move := range moves {
		items := make([]*order.OrderItem, 0, len(move))
		for _, n := range move {
			item := nudgeable(lines[n.line], adj, n.step)
			if item == nil {
				break
			}
			items = append(items, item)
		}
		if len(items) != len(move) {
			continue
		}
		for k, n := range move {
			shift(items[k], adj, n.step)
		}
		if abs(grossSubTotal(o)-target) < diff {
			updated.add(items...)
			return true
		}
		for k, n := range move {
			shift(items[k], adj, -n.step)
		}
	}
	return false
}

// nudgeable returns the last item of the line whose share may move by step:
// a discount is never turned into a charge and no item goes below zero.
func nudgeable(line *order.OrderLine, adj order.Adjustment, step int64) *order.OrderItem {
	items := line.ActiveItems()
	for i := len(items) - 1; i >= 0; i-- {
		item := items[i]
		if step > 0 && distributedShare(item, adj) < 0 {
			return item
		}
		if step < 0 && item.ProratedUnitPrice() > 0 {
			return item
		}
	}
	return nil
}

func distributedShare(item *order.OrderItem, adj order.Adjustment) int64 {
	for _, a := range item.Adjustments {
		if a.Type == order.AdjustmentDistributedOrderPromotion && a.Source == adj.Source {
			return a.Amount
		}
	}
	return 0
}

// shift adds step to the item's share of adj, creating the share if needed.
func shift(item *order.OrderItem, adj order.Adjustment, step int64) {
	for i, a := range item.Adjustments {
		if a.Type == order.AdjustmentDistributedOrderPromotion && a.Source == adj.Source {
			item.Adjustments[i].Amount += step
			return
		}
	}
	item.AddAdjustment(order.Adjustment{
		Type:        order.AdjustmentDistributedOrderPromotion,
		Amount:      step,
		Source:      adj.Source,
		Description: adj.Description,
	})
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
