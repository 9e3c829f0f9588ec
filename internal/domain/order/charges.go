package order

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/orderflow/pkg/money"
)

// Surcharge is an arbitrary charge added to an order, e.g. a handling fee.
// A negative ListPrice represents a credit.
type Surcharge struct {
	ID                   string
	Description          string
	SKU                  string
	ListPrice            int64
	ListPriceIncludesTax bool
	TaxLines             []TaxLine
}

// TaxRate returns the combined rate of all tax lines.
func (s *Surcharge) TaxRate() decimal.Decimal {
	return TaxRateOf(s.TaxLines)
}

// Price returns the net surcharge amount.
func (s *Surcharge) Price() int64 {
	if s.ListPriceIncludesTax {
		return money.NetPriceOf(s.ListPrice, s.TaxRate())
	}
	return s.ListPrice
}

// Tax returns the tax due on Price.
func (s *Surcharge) Tax() int64 {
	return money.TaxOn(s.Price(), s.TaxRate())
}

// PriceWithTax returns Price plus Tax.
func (s *Surcharge) PriceWithTax() int64 {
	return s.Price() + s.Tax()
}

// ShippingLine is the shipping charge of an order for one shipping method.
type ShippingLine struct {
	ID                   string
	ShippingMethodID     string
	ListPrice            int64
	ListPriceIncludesTax bool
	Adjustments          []Adjustment
	TaxLines             []TaxLine
}

// TaxRate returns the combined rate of all tax lines.
func (s *ShippingLine) TaxRate() decimal.Decimal {
	return TaxRateOf(s.TaxLines)
}

// Price returns the net shipping price before promotions.
func (s *ShippingLine) Price() int64 {
	if s.ListPriceIncludesTax {
		return money.NetPriceOf(s.ListPrice, s.TaxRate())
	}
	return s.ListPrice
}

// PriceWithTax returns Price plus the tax due on it.
func (s *ShippingLine) PriceWithTax() int64 {
	return s.Price() + money.TaxOn(s.Price(), s.TaxRate())
}

// DiscountedPrice returns the net shipping price with promotions applied.
func (s *ShippingLine) DiscountedPrice() int64 {
	return s.Price() + sumAdjustments(s.Adjustments, nil)
}

// DiscountedTax returns the tax due on DiscountedPrice.
func (s *ShippingLine) DiscountedTax() int64 {
	return money.TaxOn(s.DiscountedPrice(), s.TaxRate())
}

// DiscountedPriceWithTax returns DiscountedPrice plus DiscountedTax.
func (s *ShippingLine) DiscountedPriceWithTax() int64 {
	return s.DiscountedPrice() + s.DiscountedTax()
}

// AddAdjustment attaches an adjustment to the shipping line.
func (s *ShippingLine) AddAdjustment(a Adjustment) {
	s.Adjustments = append(s.Adjustments, a)
}

// ClearAdjustments removes every adjustment.
func (s *ShippingLine) ClearAdjustments() {
	s.Adjustments = nil
}
