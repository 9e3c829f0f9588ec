// Package shipping defines shipping methods and picks the eligible ones for
// an order.
package shipping

import (
	"context"
	"slices"
	"sort"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/orderflow/internal/domain/order"
	"github.com/xenking/orderflow/pkg/money"
)

// ErrMethodNotFound is returned when a shipping method does not exist.
var ErrMethodNotFound = errors.New("shipping method not found")

// Quote is the price a method charges for an order.
type Quote struct {
	Price            int64
	PriceIncludesTax bool
	TaxRate          decimal.Decimal
}

// PriceWithTax returns the gross price of the quote.
func (q Quote) PriceWithTax() int64 {
	if q.PriceIncludesTax {
		return q.Price
	}
	return money.GrossPriceOf(q.Price, q.TaxRate)
}

// Method is a way of shipping an order.
type Method interface {
	ID() string
	// Test reports whether the method can ship the order.
	Test(ctx context.Context, o *order.Order) (bool, error)
	// Apply prices the order. A nil quote means the method declined it.
	Apply(ctx context.Context, o *order.Order) (*Quote, error)
}

// Eligible pairs a method with its quote for an order.
type Eligible struct {
	Method Method
	Quote  Quote
}

// Registry holds the configured shipping methods in declaration order.
type Registry struct {
	methods []Method
}

// NewRegistry creates a Registry of the given methods.
func NewRegistry(methods ...Method) *Registry {
	return &Registry{methods: methods}
}

// Method returns the method with the given ID.
func (r *Registry) Method(id string) (Method, error) {
	for _, m := range r.methods {
		if m.ID() == id {
			return m, nil
		}
	}
	return nil, ErrMethodNotFound
}

// Methods returns every registered method.
func (r *Registry) Methods() []Method {
	return slices.Clone(r.methods)
}

// Eligible tests every method not listed in skip against the order and
// returns the ones that accept it, cheapest gross price first.
func (r *Registry) Eligible(ctx context.Context, o *order.Order, skip ...string) ([]Eligible, error) {
	var out []Eligible
	for _, m := range r.methods {
		if slices.Contains(skip, m.ID()) {
			continue
		}
		ok, err := m.Test(ctx, o)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		q, err := m.Apply(ctx, o)
		if err != nil {
			return nil, err
		}
		if q == nil {
			continue
		}
		out = append(out, Eligible{Method: m, Quote: *q})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Quote.PriceWithTax() < out[j].Quote.PriceWithTax()
	})
	return out, nil
}

// FlatRateConfig configures a FlatRate method.
type FlatRateConfig struct {
	ID    string
	Code  string
	Name  string
	Price int64
	// PriceIncludesTax overrides the channel pricing mode when set.
	PriceIncludesTax *bool
	TaxRate          decimal.Decimal
	// Countries restricts the method to shipping addresses in these
	// countries. Empty means everywhere.
	Countries []string
}

// WithDefaultPricing returns a copy whose unset PriceIncludesTax follows the
// channel pricing mode.
func (c FlatRateConfig) WithDefaultPricing(pricesIncludeTax bool) FlatRateConfig {
	if c.PriceIncludesTax == nil {
		c.PriceIncludesTax = &pricesIncludeTax
	}
	return c
}

// FlatRate charges the same price for every order.
type FlatRate struct {
	cfg FlatRateConfig
}

var _ Method = (*FlatRate)(nil)

// NewFlatRate creates a FlatRate method.
func NewFlatRate(cfg FlatRateConfig) *FlatRate {
	return &FlatRate{cfg: cfg}
}

// ID implements Method.
func (f *FlatRate) ID() string { return f.cfg.ID }

// Config returns the method configuration.
func (f *FlatRate) Config() FlatRateConfig { return f.cfg }

// Test implements Method.
func (f *FlatRate) Test(_ context.Context, o *order.Order) (bool, error) {
	if len(f.cfg.Countries) == 0 {
		return true, nil
	}
	country := o.ShippingAddress.CountryCode
	return slices.ContainsFunc(f.cfg.Countries, func(c string) bool {
		return strings.EqualFold(c, country)
	}), nil
}

// Apply implements Method.
func (f *FlatRate) Apply(context.Context, *order.Order) (*Quote, error) {
	return &Quote{
		Price:            f.cfg.Price,
		PriceIncludesTax: f.cfg.PriceIncludesTax != nil && *f.cfg.PriceIncludesTax,
		TaxRate:          f.cfg.TaxRate,
	}, nil
}
