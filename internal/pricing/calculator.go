// Package pricing recomputes the monetary state of an order: taxes,
// promotions, shipping and the aggregate totals.
package pricing

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/orderflow/internal/domain/order"
	"github.com/xenking/orderflow/internal/domain/promotion"
	"github.com/xenking/orderflow/internal/domain/shipping"
	"github.com/xenking/orderflow/internal/domain/tax"
)

// ErrNoActiveTaxZone is returned when no tax zone can be resolved for an
// order. The calculator never falls back to zero tax.
var ErrNoActiveTaxZone = errors.New("no active tax zone")

// ShippingMethods resolves shipping methods for the calculator.
type ShippingMethods interface {
	Method(id string) (shipping.Method, error)
	Eligible(ctx context.Context, o *order.Order, skip ...string) ([]shipping.Eligible, error)
}

var _ ShippingMethods = (*shipping.Registry)(nil)

// Config holds the collaborators of a Calculator. Zones and Rates are
// required; the rest default to the standard strategies.
type Config struct {
	Channel      tax.Channel
	Zones        tax.ZoneLister
	ZoneResolver tax.ZoneResolver
	Rates        tax.RateResolver
	TaxLines     tax.LineCalculationStrategy
	Shipping     ShippingMethods
	Summary      TaxSummaryStrategy
}

// Calculator applies taxes, promotions and shipping to orders. It holds no
// per-order state and may be shared across goroutines as long as each
// order is used by one goroutine at a time.
type Calculator struct {
	channel      tax.Channel
	zones        tax.ZoneLister
	zoneResolver tax.ZoneResolver
	rates        tax.RateResolver
	taxLines     tax.LineCalculationStrategy
	shipping     ShippingMethods
	summary      TaxSummaryStrategy
}

// NewCalculator creates a Calculator.
func NewCalculator(cfg Config) *Calculator {
	c := &Calculator{
		channel:      cfg.Channel,
		zones:        cfg.Zones,
		zoneResolver: cfg.ZoneResolver,
		rates:        cfg.Rates,
		taxLines:     cfg.TaxLines,
		shipping:     cfg.Shipping,
		summary:      cfg.Summary,
	}
	if c.zoneResolver == nil {
		c.zoneResolver = tax.DefaultZoneResolver{}
	}
	if c.taxLines == nil {
		c.taxLines = tax.DefaultLineCalculation{}
	}
	if c.summary == nil {
		c.summary = LineLevelRounding{}
	}
	return c
}

type options struct {
	recalculateShipping bool
}

// Option configures a single ApplyPriceAdjustments call.
type Option func(*options)

// WithoutShippingRecalculation keeps the current shipping prices and
// shipping promotions.
func WithoutShippingRecalculation() Option {
	return func(o *options) {
		o.recalculateShipping = false
	}
}

// TaxSummary returns the tax summary of the order under the configured
// strategy.
func (c *Calculator) TaxSummary(o *order.Order) []TaxSummaryRow {
	return c.summary.Summary(o)
}

// ApplyPriceAdjustments recomputes every monetary field of the order and
// returns the items it mutated. changed lists the lines whose contents
// changed since the last call; their taxes are always recomputed.
//
// The passes run in a fixed order: tax on changed lines, tax on all lines
// when the zone changed, item promotions, order promotions, tax again when
// promotions changed anything, shipping, shipping promotions. When the tax
// zone changed every item is returned.
//
// Errors from promotions, shipping methods, the zone resolver and the tax
// line strategy are returned unmodified.
func (c *Calculator) ApplyPriceAdjustments(
	ctx context.Context,
	o *order.Order,
	promotions []promotion.Promotion,
	changed []*order.OrderLine,
	opts ...Option,
) ([]*order.OrderItem, error) {
	opt := options{recalculateShipping: true}
	for _, fn := range opts {
		fn(&opt)
	}
	lg := zctx.From(ctx).With(zap.String("order_id", o.ID))

	zone, err := c.activeTaxZone(ctx, o)
	if err != nil {
		return nil, err
	}
	zoneChanged := o.TaxZoneID != zone.ID
	if zoneChanged {
		lg.Debug("Tax zone changed", zap.String("from", o.TaxZoneID), zap.String("to", zone.ID))
		o.TaxZoneID = zone.ID
	}

	updated := newItemSet()
	rate := c.rateGetter(*zone)

	for _, line := range changed {
		if _, err := c.applyTaxesToLine(ctx, o, line, rate); err != nil {
			return nil, err
		}
		updated.add(line.ActiveItems()...)
	}
	c.calculateTotals(o)

	if len(o.Lines) > 0 {
		if zoneChanged {
			if err := c.applyTaxes(ctx, o, rate, updated); err != nil {
				return nil, err
			}
		}

		before := o.SubTotal
		modified := newItemSet()
		if err := c.applyItemPromotions(ctx, o, promotions, modified); err != nil {
			return nil, err
		}
		if err := c.applyOrderPromotions(ctx, o, promotions, modified); err != nil {
			return nil, err
		}
		updated.add(modified.items...)

		if o.SubTotal != before || modified.len() > 0 {
			lg.Debug("Promotions changed the order",
				zap.Int64("subtotal_before", before),
				zap.Int64("subtotal_after", o.SubTotal),
				zap.Int("items", modified.len()),
			)
			if err := c.applyTaxes(ctx, o, rate, updated); err != nil {
				return nil, err
			}
		}
	}

	if opt.recalculateShipping {
		if err := c.applyShipping(ctx, o); err != nil {
			return nil, err
		}
		if err := c.applyShippingPromotions(ctx, o, promotions); err != nil {
			return nil, err
		}
	}

	c.calculateTotals(o)

	if zoneChanged {
		return o.Items(), nil
	}
	return updated.items, nil
}

func (c *Calculator) activeTaxZone(ctx context.Context, o *order.Order) (*tax.Zone, error) {
	zones, err := c.zones.ListZones(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list tax zones")
	}
	zone, err := c.zoneResolver.DetermineTaxZone(ctx, zones, c.channel, o)
	if err != nil {
		return nil, err
	}
	if zone == nil {
		return nil, ErrNoActiveTaxZone
	}
	return zone, nil
}

type rateFunc func(ctx context.Context, categoryID string) (tax.Rate, error)

// rateGetter memoizes rate lookups by category for one call.
func (c *Calculator) rateGetter(zone tax.Zone) rateFunc {
	cache := make(map[string]tax.Rate)
	return func(ctx context.Context, categoryID string) (tax.Rate, error) {
		if r, ok := cache[categoryID]; ok {
			return r, nil
		}
		r, err := c.rates.ApplicableRate(ctx, zone, categoryID)
		if err != nil {
			return tax.Rate{}, errors.Wrapf(err, "tax rate for category %q", categoryID)
		}
		cache[categoryID] = r
		return r, nil
	}
}

// applyTaxesToLine sets the tax lines of every active item and returns the
// items whose tax lines changed.
func (c *Calculator) applyTaxesToLine(ctx context.Context, o *order.Order, line *order.OrderLine, rate rateFunc) ([]*order.OrderItem, error) {
	r, err := rate(ctx, line.TaxCategoryID)
	if err != nil {
		return nil, err
	}
	taxLines, err := c.taxLines.Calculate(ctx, tax.LineInput{Rate: r, Order: o, Line: line})
	if err != nil {
		return nil, err
	}

	var changed []*order.OrderItem
	for _, item := range line.ActiveItems() {
		if !slices.EqualFunc(item.TaxLines, taxLines, sameTaxLine) {
			changed = append(changed, item)
		}
		item.TaxLines = slices.Clone(taxLines)
	}
	return changed, nil
}

func sameTaxLine(a, b order.TaxLine) bool {
	return a.Description == b.Description && a.TaxRate.Equal(b.TaxRate)
}

func (c *Calculator) applyTaxes(ctx context.Context, o *order.Order, rate rateFunc, updated *itemSet) error {
	for _, line := range o.Lines {
		changed, err := c.applyTaxesToLine(ctx, o, line, rate)
		if err != nil {
			return err
		}
		updated.add(changed...)
	}
	c.calculateTotals(o)
	return nil
}

// applicable re-tests every promotion against the current order state.
func applicable(ctx context.Context, o *order.Order, promotions []promotion.Promotion) ([]promotion.Promotion, error) {
	var out []promotion.Promotion
	for _, p := range promotions {
		state, err := p.Test(ctx, o)
		if err != nil {
			return nil, err
		}
		if state != nil {
			out = append(out, p)
		}
	}
	return out, nil
}

// hasInapplicablePromotions reports whether the line carries an item
// promotion that is no longer applicable.
func hasInapplicablePromotions(eligible []promotion.Promotion, line *order.OrderLine) bool {
	for _, a := range line.Adjustments() {
		if a.Type != order.AdjustmentPromotion {
			continue
		}
		if !slices.ContainsFunc(eligible, func(p promotion.Promotion) bool { return p.Source() == a.Source }) {
			return true
		}
	}
	return false
}

func (c *Calculator) applyItemPromotions(ctx context.Context, o *order.Order, promotions []promotion.Promotion, updated *itemSet) error {
	for _, line := range o.Lines {
		eligible, err := applicable(ctx, o, promotions)
		if err != nil {
			return err
		}

		var withPromotions []*order.OrderItem
		for _, item := range line.ActiveItems() {
			if hasType(item.Adjustments, order.AdjustmentPromotion) {
				withPromotions = append(withPromotions, item)
			}
		}
		force := hasInapplicablePromotions(eligible, line)
		if force || len(withPromotions) > 0 {
			line.ClearAdjustments(order.AdjustmentPromotion)
			updated.add(withPromotions...)
		}
		if force {
			updated.add(line.ActiveItems()...)
		}

		for _, p := range eligible {
			state, err := p.Test(ctx, o)
			if err != nil {
				return err
			}
			if state == nil {
				continue
			}

			adjusted := false
			for _, item := range line.ActiveItems() {
				adj, err := p.Apply(ctx, promotion.Target{Order: o, Line: line, Item: item}, state)
				if err != nil {
					return err
				}
				if adj == nil || adj.Amount == 0 {
					continue
				}
				adj.Type = order.AdjustmentPromotion
				item.AddAdjustment(*adj)
				updated.add(item)
				adjusted = true
			}
			if adjusted {
				c.calculateTotals(o)
			}
		}
		c.calculateTotals(o)
	}
	return nil
}

func hasType(adjustments []order.Adjustment, t order.AdjustmentType) bool {
	return slices.ContainsFunc(adjustments, func(a order.Adjustment) bool { return a.Type == t })
}

func (c *Calculator) applyOrderPromotions(ctx context.Context, o *order.Order, promotions []promotion.Promotion, updated *itemSet) error {
	if o.HasDistributedPromotions() {
		for _, line := range o.Lines {
			line.ClearAdjustments(order.AdjustmentDistributedOrderPromotion)
			updated.add(line.Items...)
		}
	}
	c.calculateTotals(o)

	for _, p := range promotions {
		state, err := p.Test(ctx, o)
		if err != nil {
			return err
		}
		if state == nil {
			continue
		}
		adj, err := p.Apply(ctx, promotion.Target{Order: o}, state)
		if err != nil {
			return err
		}
		if adj == nil || adj.Amount == 0 {
			continue
		}
		distribute(o, *adj, c.grossSubTotal, updated)
		c.calculateTotals(o)
	}
	return nil
}

func (c *Calculator) applyShipping(ctx context.Context, o *order.Order) error {
	if c.shipping == nil {
		return nil
	}
	lg := zctx.From(ctx)

	for _, sl := range o.ShippingLines {
		if sl.ShippingMethodID == "" {
			continue
		}
		method, err := c.shipping.Method(sl.ShippingMethodID)
		if err != nil {
			if errors.Is(err, shipping.ErrMethodNotFound) {
				lg.Debug("Shipping method no longer exists", zap.String("method_id", sl.ShippingMethodID))
				continue
			}
			return errors.Wrap(err, "lookup shipping method")
		}

		ok, err := method.Test(ctx, o)
		if err != nil {
			return err
		}
		if ok {
			q, err := method.Apply(ctx, o)
			if err != nil {
				return err
			}
			if q != nil {
				setQuote(sl, method.ID(), *q)
				continue
			}
		}

		eligible, err := c.shipping.Eligible(ctx, o, method.ID())
		if err != nil {
			return err
		}
		if len(eligible) == 0 {
			continue
		}
		cheapest := eligible[0]
		lg.Debug("Shipping method no longer eligible, switching to cheapest",
			zap.String("from", method.ID()),
			zap.String("to", cheapest.Method.ID()),
		)
		setQuote(sl, cheapest.Method.ID(), cheapest.Quote)
	}
	return nil
}

func setQuote(sl *order.ShippingLine, methodID string, q shipping.Quote) {
	sl.ShippingMethodID = methodID
	sl.ListPrice = q.Price
	sl.ListPriceIncludesTax = q.PriceIncludesTax
	sl.TaxLines = []order.TaxLine{{Description: "shipping tax", TaxRate: q.TaxRate}}
}

func (c *Calculator) applyShippingPromotions(ctx context.Context, o *order.Order, promotions []promotion.Promotion) error {
	if len(o.ShippingLines) == 0 {
		return nil
	}
	for _, sl := range o.ShippingLines {
		sl.ClearAdjustments()
	}

	for _, p := range promotions {
		state, err := p.Test(ctx, o)
		if err != nil {
			return err
		}
		if state == nil {
			continue
		}
		for _, sl := range o.ShippingLines {
			adj, err := p.Apply(ctx, promotion.Target{Order: o, ShippingLine: sl}, state)
			if err != nil {
				return err
			}
			if adj == nil || adj.Amount == 0 {
				continue
			}
			adj.Type = order.AdjustmentPromotion
			sl.AddAdjustment(*adj)
		}
	}
	c.calculateTotals(o)
	return nil
}

func (c *Calculator) grossSubTotal(o *order.Order) int64 {
	return c.summary.Totals(o).SubTotalWithTax
}

func (c *Calculator) calculateTotals(o *order.Order) {
	t := c.summary.Totals(o)
	o.SubTotal = t.SubTotal
	o.SubTotalWithTax = t.SubTotalWithTax
	o.Shipping = t.Shipping
	o.ShippingWithTax = t.ShippingWithTax
	o.Total = t.SubTotal + t.Shipping
	o.TotalWithTax = t.SubTotalWithTax + t.ShippingWithTax
}
