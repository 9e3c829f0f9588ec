package order

// Discount aggregates the adjustments of one promotion across an order.
type Discount struct {
	Source      string
	Type        AdjustmentType
	Description string
	Amount      int64
}

// Discounts returns one entry per (source, type) pair found on active items
// and shipping lines, in the order they were first seen.
func (o *Order) Discounts() []Discount {
	type key struct {
		source string
		typ    AdjustmentType
	}

	var out []Discount
	index := make(map[key]int)
	add := func(a Adjustment) {
		k := key{source: a.Source, typ: a.Type}
		if i, ok := index[k]; ok {
			out[i].Amount += a.Amount
			return
		}
		index[k] = len(out)
		out = append(out, Discount{
			Source:      a.Source,
			Type:        a.Type,
			Description: a.Description,
			Amount:      a.Amount,
		})
	}

	for _, line := range o.Lines {
		for _, a := range line.Adjustments() {
			add(a)
		}
	}
	for _, sl := range o.ShippingLines {
		for _, a := range sl.Adjustments {
			add(a)
		}
	}
	return out
}

// PromotionIDs returns the distinct sources of all discounts.
func (o *Order) PromotionIDs() []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, d := range o.Discounts() {
		if _, ok := seen[d.Source]; ok {
			continue
		}
		seen[d.Source] = struct{}{}
		ids = append(ids, d.Source)
	}
	return ids
}
