package ordering

import (
	"context"
	"slices"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/orderflow/internal/domain/order"
	"github.com/xenking/orderflow/internal/domain/product"
	"github.com/xenking/orderflow/internal/pricing"
)

func modifiable(o *order.Order) error {
	switch o.State {
	case order.StateAddingItems, order.StateModifying:
		return nil
	default:
		return errors.Wrapf(ErrOrderNotModifiable, "order %s is %s", o.ID, o.State)
	}
}

// variant loads a variant and checks that quantity units of it can be sold.
func (s *Service) variant(ctx context.Context, variantID string, quantity int) (*product.Variant, error) {
	v, err := s.products.GetByID(ctx, variantID)
	if err != nil {
		return nil, errors.Wrapf(err, "get variant %s", variantID)
	}
	if !v.Enabled {
		return nil, errors.Wrapf(ErrVariantUnavailable, "variant %s", variantID)
	}
	if available, tracked := v.Saleable(); tracked && quantity > available {
		return nil, &InsufficientStockError{VariantID: v.ID, Requested: quantity, Available: available}
	}
	return v, nil
}

func (s *Service) addItems(line *order.OrderLine, v *product.Variant, n int) {
	for range n {
		line.Items = append(line.Items, &order.OrderItem{
			ID:                   s.newID(),
			ListPrice:            v.Price,
			ListPriceIncludesTax: v.IncludesTax(s.pricesIncludeTax),
		})
	}
}

// AddItem adds quantity units of a variant to the order, merging them into
// the existing line for that variant. The whole operation fails when the
// resulting quantity exceeds saleable stock.
func (s *Service) AddItem(ctx context.Context, orderID, variantID string, quantity int) (*order.Order, error) {
	ctx, done := s.start(ctx, "AddItem", orderID)
	defer done()

	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	o, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := modifiable(o); err != nil {
		return nil, err
	}

	line, exists := o.LineForVariant(variantID)
	existing := 0
	if exists {
		existing = line.Quantity()
	}
	v, err := s.variant(ctx, variantID, existing+quantity)
	if err != nil {
		return nil, err
	}
	if !exists {
		line = &order.OrderLine{
			ID:               s.newID(),
			ProductVariantID: v.ID,
			Name:             v.Name,
			TaxCategoryID:    v.TaxCategoryID,
		}
		o.Lines = append(o.Lines, line)
	}
	s.addItems(line, v, quantity)

	if err := s.reprice(ctx, o, []*order.OrderLine{line}, nil); err != nil {
		return nil, err
	}
	return o, nil
}

// AdjustLine sets the quantity of a line. Zero removes the line.
func (s *Service) AdjustLine(ctx context.Context, orderID, lineID string, quantity int) (*order.Order, error) {
	ctx, done := s.start(ctx, "AdjustLine", orderID)
	defer done()

	if quantity < 0 {
		return nil, ErrInvalidQuantity
	}
	o, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := modifiable(o); err != nil {
		return nil, err
	}
	line, ok := o.Line(lineID)
	if !ok {
		return nil, errors.Wrapf(ErrLineNotFound, "line %s", lineID)
	}

	var changed []*order.OrderLine
	current := line.Quantity()
	switch {
	case quantity == 0:
		o.RemoveLine(line.ID)
	case quantity > current:
		v, err := s.variant(ctx, line.ProductVariantID, quantity)
		if err != nil {
			return nil, err
		}
		s.addItems(line, v, quantity-current)
		changed = append(changed, line)
	case quantity < current:
		active := line.ActiveItems()
		drop := active[quantity:]
		line.Items = slices.DeleteFunc(line.Items, func(item *order.OrderItem) bool {
			return slices.Contains(drop, item)
		})
		changed = append(changed, line)
	default:
		return o, nil
	}

	if err := s.reprice(ctx, o, changed, nil); err != nil {
		return nil, err
	}
	return o, nil
}

// CancelItems cancels quantity active items of a line, unfulfilled items
// first. Cancelling the last active item cancels the order.
func (s *Service) CancelItems(ctx context.Context, orderID, lineID string, quantity int) (*order.Order, error) {
	ctx, done := s.start(ctx, "CancelItems", orderID)
	defer done()

	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	o, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.State == order.StateCancelled {
		return nil, errors.Wrapf(ErrOrderNotModifiable, "order %s is %s", o.ID, o.State)
	}
	line, ok := o.Line(lineID)
	if !ok {
		return nil, errors.Wrapf(ErrLineNotFound, "line %s", lineID)
	}
	active := line.ActiveItems()
	if quantity > len(active) {
		return nil, errors.Wrapf(ErrInvalidQuantity, "line %s has %d active items", lineID, len(active))
	}

	slices.SortStableFunc(active, func(a, b *order.OrderItem) int {
		return strings.Compare(a.FulfillmentID, b.FulfillmentID)
	})
	cancelled := active[:quantity]
	for _, item := range cancelled {
		item.Cancelled = true
	}

	if err := s.reprice(ctx, o, []*order.OrderLine{line}, cancelled, pricing.WithoutShippingRecalculation()); err != nil {
		return nil, err
	}
	if len(o.ActiveItems()) == 0 && s.defs.Order.Restore(o.State).CanTransitionTo(order.StateCancelled) {
		if err := s.transitionOrder(ctx, o, order.StateCancelled); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// ApplyCoupon validates a coupon code and adds it to the order.
func (s *Service) ApplyCoupon(ctx context.Context, orderID, code string) (*order.Order, error) {
	ctx, done := s.start(ctx, "ApplyCoupon", orderID)
	defer done()

	o, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := modifiable(o); err != nil {
		return nil, err
	}
	if o.HasCoupon(code) {
		return o, nil
	}
	c, err := s.coupons.Validate(ctx, code)
	if err != nil {
		return nil, errors.Wrap(err, "validate coupon")
	}
	o.Coupons = append(o.Coupons, c)

	if err := s.reprice(ctx, o, nil, nil); err != nil {
		return nil, err
	}
	return o, nil
}

// RemoveCoupon removes a coupon code from the order. Removing a code the
// order does not have is a no-op.
func (s *Service) RemoveCoupon(ctx context.Context, orderID, code string) (*order.Order, error) {
	ctx, done := s.start(ctx, "RemoveCoupon", orderID)
	defer done()

	o, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := modifiable(o); err != nil {
		return nil, err
	}
	if !o.HasCoupon(code) {
		return o, nil
	}
	o.Coupons = slices.DeleteFunc(o.Coupons, func(c order.Coupon) bool {
		return c.Code == code
	})

	if err := s.reprice(ctx, o, nil, nil); err != nil {
		return nil, err
	}
	return o, nil
}

// SetShippingAddress sets the shipping address. The tax zone may change as
// a result, in which case every item is re-taxed.
func (s *Service) SetShippingAddress(ctx context.Context, orderID string, addr order.Address) (*order.Order, error) {
	ctx, done := s.start(ctx, "SetShippingAddress", orderID)
	defer done()

	o, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := modifiable(o); err != nil {
		return nil, err
	}
	o.ShippingAddress = addr

	if err := s.reprice(ctx, o, nil, nil); err != nil {
		return nil, err
	}
	return o, nil
}

// SetShippingMethod selects the shipping method of the order.
func (s *Service) SetShippingMethod(ctx context.Context, orderID, methodID string) (*order.Order, error) {
	ctx, done := s.start(ctx, "SetShippingMethod", orderID)
	defer done()

	o, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := modifiable(o); err != nil {
		return nil, err
	}
	method, err := s.shipping.Method(methodID)
	if err != nil {
		return nil, errors.Wrapf(err, "shipping method %s", methodID)
	}
	ok, err := method.Test(ctx, o)
	if err != nil {
		return nil, errors.Wrapf(err, "test shipping method %s", methodID)
	}
	if !ok {
		return nil, errors.Wrapf(ErrShippingMethodIneligible, "method %s", methodID)
	}

	if len(o.ShippingLines) == 0 {
		o.ShippingLines = []*order.ShippingLine{{ID: s.newID()}}
	}
	o.ShippingLines[0].ShippingMethodID = methodID
	o.ShippingLines = o.ShippingLines[:1]

	if err := s.reprice(ctx, o, nil, nil); err != nil {
		return nil, err
	}
	return o, nil
}
