// Package money provides integer minor-unit arithmetic helpers used by the
// pricing engine: exact-sum proration and tax-rate conversions.
//
// All amounts are int64 values in the smallest currency denomination. Tax
// rates are percentages expressed as decimals (e.g. 21 or 7.5). Whenever a
// fractional result has to become an amount again it is rounded half away
// from zero, so every helper in this package agrees on the same rule.
package money

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Round converts a decimal amount to minor units, rounding half away from zero.
func Round(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}

// RateFactor returns the multiplier for a percentage rate, i.e. rate/100.
func RateFactor(rate decimal.Decimal) decimal.Decimal {
	return rate.Div(hundred)
}

// TaxPayableOn returns the unrounded tax due on a net amount.
func TaxPayableOn(net int64, rate decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(net).Mul(RateFactor(rate))
}

// TaxOn returns the tax due on a net amount, rounded to minor units.
func TaxOn(net int64, rate decimal.Decimal) int64 {
	return Round(TaxPayableOn(net, rate))
}

// GrossPriceOf returns the tax-inclusive amount for a net amount.
func GrossPriceOf(net int64, rate decimal.Decimal) int64 {
	return net + TaxOn(net, rate)
}

// NetPriceOf returns the net amount contained in a tax-inclusive amount.
func NetPriceOf(gross int64, rate decimal.Decimal) int64 {
	if rate.IsZero() {
		return gross
	}
	divisor := decimal.NewFromInt(1).Add(RateFactor(rate))
	return Round(decimal.NewFromInt(gross).Div(divisor))
}

// TaxComponentOf returns the tax portion of a tax-inclusive amount.
func TaxComponentOf(gross int64, rate decimal.Decimal) int64 {
	return gross - NetPriceOf(gross, rate)
}

// Sum adds up amounts.
func Sum(amounts ...int64) int64 {
	var total int64
	for _, a := range amounts {
		total += a
	}
	return total
}
