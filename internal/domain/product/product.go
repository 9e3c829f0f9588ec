package product

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when a requested variant does not exist.
var ErrNotFound = errors.New("product variant not found")

// Variant is a purchasable version of a product with its own price and
// stock.
type Variant struct {
	ID        string
	ProductID string
	Name      string
	SKU       string
	Price     int64
	// PriceIncludesTax overrides the channel pricing mode when set.
	PriceIncludesTax *bool
	TaxCategoryID    string
	Enabled          bool
	// TrackInventory enables stock checks. Untracked variants are always
	// saleable.
	TrackInventory bool
	StockOnHand    int
	StockAllocated int
}

// IncludesTax reports whether Price is gross. Variants without their own
// pricing mode follow channelDefault.
func (v Variant) IncludesTax(channelDefault bool) bool {
	if v.PriceIncludesTax == nil {
		return channelDefault
	}
	return *v.PriceIncludesTax
}

// Saleable returns how many units can still be sold. The second result is
// false when stock is not tracked.
func (v Variant) Saleable() (int, bool) {
	if !v.TrackInventory {
		return 0, false
	}
	return max(v.StockOnHand-v.StockAllocated, 0), true
}

// Repository defines read operations for the catalog.
type Repository interface {
	List(ctx context.Context) ([]Variant, error)
	GetByID(ctx context.Context, id string) (*Variant, error)
}
