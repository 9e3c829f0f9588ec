package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/orderflow/internal/domain/order"
	"github.com/xenking/orderflow/pkg/money"
)

// TaxSummaryRow is the tax collected at one rate under one description.
type TaxSummaryRow struct {
	Description string
	TaxRate     decimal.Decimal
	TaxBase     int64
	TaxTotal    int64
}

// Totals are the order aggregates computed by a TaxSummaryStrategy.
type Totals struct {
	SubTotal        int64
	SubTotalWithTax int64
	Shipping        int64
	ShippingWithTax int64
}

// TaxSummaryStrategy decides where tax is rounded when an order's entities
// are aggregated. The rows returned by Summary always reconcile with the
// Totals of the same strategy:
//
//	sum(TaxTotal) == (SubTotalWithTax - SubTotal) + (ShippingWithTax - Shipping)
type TaxSummaryStrategy interface {
	Totals(o *order.Order) Totals
	Summary(o *order.Order) []TaxSummaryRow
}

var (
	_ TaxSummaryStrategy = LineLevelRounding{}
	_ TaxSummaryStrategy = OrderLevelRounding{}
)

// taxable is a line, surcharge or shipping line reduced to what tax
// aggregation needs.
type taxable struct {
	base     int64
	tax      int64
	taxLines []order.TaxLine
	shipping bool
}

func taxables(o *order.Order) []taxable {
	var out []taxable
	for _, line := range o.Lines {
		if line.Quantity() == 0 {
			continue
		}
		out = append(out, taxable{
			base:     line.ProratedLinePrice(),
			tax:      line.ProratedLineTax(),
			taxLines: line.TaxLines(),
		})
	}
	for _, s := range o.Surcharges {
		out = append(out, taxable{base: s.Price(), tax: s.Tax(), taxLines: s.TaxLines})
	}
	for _, sl := range o.ShippingLines {
		out = append(out, taxable{
			base:     sl.DiscountedPrice(),
			tax:      sl.DiscountedTax(),
			taxLines: sl.TaxLines,
			shipping: true,
		})
	}
	return out
}

func netTotals(o *order.Order) Totals {
	var t Totals
	for _, line := range o.Lines {
		t.SubTotal += line.ProratedLinePrice()
	}
	for _, s := range o.Surcharges {
		t.SubTotal += s.Price()
	}
	for _, sl := range o.ShippingLines {
		t.Shipping += sl.DiscountedPrice()
	}
	return t
}

type groupKey struct {
	description string
	rate        string
}

// groups accumulates rows keyed by (description, rate) in first-seen order.
type groups struct {
	index map[groupKey]int
	rows  []TaxSummaryRow
}

func (g *groups) row(tl order.TaxLine) *TaxSummaryRow {
	if g.index == nil {
		g.index = make(map[groupKey]int)
	}
	k := groupKey{description: tl.Description, rate: tl.TaxRate.String()}
	i, ok := g.index[k]
	if !ok {
		i = len(g.rows)
		g.index[k] = i
		g.rows = append(g.rows, TaxSummaryRow{Description: tl.Description, TaxRate: tl.TaxRate})
	}
	return &g.rows[i]
}

// rateWeights turns tax rates into integer proration weights.
func rateWeights(lines []order.TaxLine) []int64 {
	w := make([]int64, len(lines))
	for i, tl := range lines {
		w[i] = tl.TaxRate.Shift(4).IntPart()
	}
	return w
}

// LineLevelRounding rounds tax once per taxable entity and sums the rounded
// amounts. It is the default strategy.
type LineLevelRounding struct{}

// Totals implements TaxSummaryStrategy.
func (LineLevelRounding) Totals(o *order.Order) Totals {
	t := netTotals(o)
	t.SubTotalWithTax = t.SubTotal
	t.ShippingWithTax = t.Shipping
	for _, e := range taxables(o) {
		if e.shipping {
			t.ShippingWithTax += e.tax
		} else {
			t.SubTotalWithTax += e.tax
		}
	}
	return t
}

// Summary implements TaxSummaryStrategy. An entity with compound tax lines
// has its rounded tax split across them in proportion to their rates.
func (LineLevelRounding) Summary(o *order.Order) []TaxSummaryRow {
	var g groups
	for _, e := range taxables(o) {
		if len(e.taxLines) == 0 {
			continue
		}
		shares := money.Prorate(rateWeights(e.taxLines), e.tax)
		for i, tl := range e.taxLines {
			row := g.row(tl)
			row.TaxBase += e.base
			row.TaxTotal += shares[i]
		}
	}
	return g.rows
}

// OrderLevelRounding sums net amounts per (description, rate) across the
// whole order and rounds tax once per group. Its tax total may differ from
// LineLevelRounding by a minor unit per group.
type OrderLevelRounding struct{}

func (OrderLevelRounding) groups(o *order.Order, shippingOnly bool) []TaxSummaryRow {
	var g groups
	for _, e := range taxables(o) {
		if shippingOnly && !e.shipping {
			continue
		}
		for _, tl := range e.taxLines {
			g.row(tl).TaxBase += e.base
		}
	}
	for i := range g.rows {
		g.rows[i].TaxTotal = money.TaxOn(g.rows[i].TaxBase, g.rows[i].TaxRate)
	}
	return g.rows
}

func sumTax(rows []TaxSummaryRow) int64 {
	var total int64
	for _, r := range rows {
		total += r.TaxTotal
	}
	return total
}

// Totals implements TaxSummaryStrategy. Shipping tax is rounded over the
// shipping lines alone; the rest of the order-level tax goes to the
// subtotal so that both aggregates reconcile with Summary.
func (s OrderLevelRounding) Totals(o *order.Order) Totals {
	t := netTotals(o)
	total := sumTax(s.groups(o, false))
	shippingTax := sumTax(s.groups(o, true))
	t.ShippingWithTax = t.Shipping + shippingTax
	t.SubTotalWithTax = t.SubTotal + total - shippingTax
	return t
}

// Summary implements TaxSummaryStrategy.
func (s OrderLevelRounding) Summary(o *order.Order) []TaxSummaryRow {
	return s.groups(o, false)
}

// StrategyByName returns the strategy configured by name: "order" selects
// OrderLevelRounding, anything else LineLevelRounding.
func StrategyByName(name string) TaxSummaryStrategy {
	if name == "order" {
		return OrderLevelRounding{}
	}
	return LineLevelRounding{}
}
