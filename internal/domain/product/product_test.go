package product

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVariant_IncludesTax(t *testing.T) {
	gross, net := true, false

	assert.True(t, Variant{}.IncludesTax(true))
	assert.False(t, Variant{}.IncludesTax(false))
	assert.True(t, Variant{PriceIncludesTax: &gross}.IncludesTax(false))
	assert.False(t, Variant{PriceIncludesTax: &net}.IncludesTax(true))
}

func TestVariant_Saleable(t *testing.T) {
	n, tracked := Variant{}.Saleable()
	assert.False(t, tracked)
	assert.Zero(t, n)

	n, tracked = Variant{TrackInventory: true, StockOnHand: 5, StockAllocated: 2}.Saleable()
	assert.True(t, tracked)
	assert.Equal(t, 3, n)

	n, _ = Variant{TrackInventory: true, StockOnHand: 1, StockAllocated: 4}.Saleable()
	assert.Zero(t, n)
}
