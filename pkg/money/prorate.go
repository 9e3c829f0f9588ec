package money

import (
	"math/bits"
	"sort"
)

// Prorate splits amount across the given weights so that each part is
// proportional to its weight and the parts sum exactly to amount.
//
// Parts are first floored, then the leftover units are handed out one by
// one to the parts with the largest remainders (earlier index wins ties).
// Negative amounts are prorated by magnitude and negated, so a discount
// distributes the same way a charge does. Negative weights count as zero.
// When all weights are zero the amount is split evenly.
func Prorate(weights []int64, amount int64) []int64 {
	n := len(weights)
	if n == 0 {
		return nil
	}
	if amount < 0 {
		parts := Prorate(weights, -amount)
		for i := range parts {
			parts[i] = -parts[i]
		}
		return parts
	}

	var total uint64
	w := make([]uint64, n)
	for i, v := range weights {
		if v > 0 {
			w[i] = uint64(v)
			total += w[i]
		}
	}
	if total == 0 {
		for i := range w {
			w[i] = 1
		}
		total = uint64(n)
	}

	parts := make([]int64, n)
	remainders := make([]uint64, n)
	var allocated int64
	for i := range w {
		hi, lo := bits.Mul64(uint64(amount), w[i])
		q, r := bits.Div64(hi, lo, total)
		parts[i] = int64(q)
		remainders[i] = r
		allocated += parts[i]
	}

	leftover := amount - allocated
	if leftover == 0 {
		return parts
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]] > remainders[order[b]]
	})
	for i := int64(0); i < leftover; i++ {
		parts[order[i%int64(n)]]++
	}

	return parts
}
