// Package tax defines tax zones, categories and rates, and the strategies
// the pricing calculator uses to pick them.
package tax

import (
	"context"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/orderflow/internal/domain/order"
)

// ErrZoneNotFound is returned when a zone does not exist.
var ErrZoneNotFound = errors.New("tax zone not found")

// Zone is a tax jurisdiction made of countries.
type Zone struct {
	ID        string
	Name      string
	Countries []string
}

// Contains reports whether the country belongs to the zone.
func (z Zone) Contains(countryCode string) bool {
	return slices.ContainsFunc(z.Countries, func(c string) bool {
		return strings.EqualFold(c, countryCode)
	})
}

// Channel carries the storefront settings relevant to tax.
type Channel struct {
	ID               string
	Code             string
	DefaultTaxZoneID string
	PricesIncludeTax bool
}

// Category groups products taxed at the same rate.
type Category struct {
	ID        string
	Name      string
	IsDefault bool
}

// Rate is the tax rate of one category in one zone.
type Rate struct {
	ID         string
	Name       string
	Value      decimal.Decimal
	Enabled    bool
	CategoryID string
	ZoneID     string
}

// ZeroRate is used when no enabled rate matches a category and zone.
var ZeroRate = Rate{Name: "No configured tax rate", Value: decimal.Zero, Enabled: true}

// ZoneResolver decides which zone taxes an order.
type ZoneResolver interface {
	DetermineTaxZone(ctx context.Context, zones []Zone, channel Channel, o *order.Order) (*Zone, error)
}

// RateResolver returns the rate applicable to a category in a zone.
type RateResolver interface {
	ApplicableRate(ctx context.Context, zone Zone, categoryID string) (Rate, error)
}

// LineInput is the input of a LineCalculationStrategy.
type LineInput struct {
	Rate  Rate
	Order *order.Order
	Line  *order.OrderLine
}

// LineCalculationStrategy produces the tax lines of an order line.
type LineCalculationStrategy interface {
	Calculate(ctx context.Context, in LineInput) ([]order.TaxLine, error)
}

// ZoneLister returns every configured zone.
type ZoneLister interface {
	ListZones(ctx context.Context) ([]Zone, error)
}
