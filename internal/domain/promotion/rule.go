package promotion

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/orderflow/internal/domain/order"
)

// ConditionType enumerates the supported promotion conditions.
type ConditionType string

const (
	// ConditionMinimumOrderAmount requires the subtotal to reach Amount.
	ConditionMinimumOrderAmount ConditionType = "minimum_order_amount"
	// ConditionMinimumQuantity requires at least Quantity active items.
	ConditionMinimumQuantity ConditionType = "minimum_quantity"
	// ConditionContainsProducts requires at least Quantity items of the
	// listed variants.
	ConditionContainsProducts ConditionType = "contains_products"
	// ConditionBuyXGetY makes FreeQuantity items of FreeVariantIDs free for
	// every Quantity items of VariantIDs bought.
	ConditionBuyXGetY ConditionType = "buy_x_get_y"
)

// ActionType enumerates the supported promotion actions.
type ActionType string

const (
	// ActionItemPercentage discounts matching items by Percentage.
	ActionItemPercentage ActionType = "item_percentage_discount"
	// ActionBuyXGetYFree discounts the items a buy-x-get-y condition freed.
	ActionBuyXGetYFree ActionType = "buy_x_get_y_free"
	// ActionOrderPercentage discounts the subtotal by Percentage.
	ActionOrderPercentage ActionType = "order_percentage_discount"
	// ActionOrderFixed discounts the subtotal by Amount, capped at the
	// subtotal.
	ActionOrderFixed ActionType = "order_fixed_discount"
	// ActionOrderFixedPrice reduces the subtotal to Amount.
	ActionOrderFixedPrice ActionType = "order_fixed_price"
	// ActionFreeLowest removes the cost of the cheapest item.
	ActionFreeLowest ActionType = "free_lowest"
	// ActionFreeShipping removes the shipping price.
	ActionFreeShipping ActionType = "free_shipping"
)

// UnknownConditionError indicates a rule uses an unsupported condition.
type UnknownConditionError struct {
	Type ConditionType
}

func (e *UnknownConditionError) Error() string {
	return fmt.Sprintf("unknown promotion condition %q", e.Type)
}

// UnknownActionError indicates a rule uses an unsupported action.
type UnknownActionError struct {
	Type ActionType
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("unknown promotion action %q", e.Type)
}

// Condition is one eligibility requirement of a Rule.
type Condition struct {
	Type           ConditionType
	Amount         int64
	TaxInclusive   bool
	Quantity       int
	VariantIDs     []string
	FreeVariantIDs []string
	FreeQuantity   int
}

// Action is one discount produced by a Rule.
type Action struct {
	Type       ActionType
	Percentage decimal.Decimal
	Amount     int64
	VariantIDs []string
}

// Rule is a promotion built from declarative conditions and actions. All
// conditions must hold for the rule to apply.
type Rule struct {
	ID         string
	Name       string
	CouponCode string
	Enabled    bool
	Priority   int
	StartsAt   *time.Time
	EndsAt     *time.Time
	Conditions []Condition
	Actions    []Action

	now func() time.Time
}

var _ Promotion = (*Rule)(nil)

// Validate checks that every condition and action is supported.
func (r *Rule) Validate() error {
	for _, c := range r.Conditions {
		switch c.Type {
		case ConditionMinimumOrderAmount, ConditionMinimumQuantity, ConditionContainsProducts, ConditionBuyXGetY:
		default:
			return &UnknownConditionError{Type: c.Type}
		}
	}
	for _, a := range r.Actions {
		switch a.Type {
		case ActionItemPercentage, ActionOrderPercentage:
			if a.Percentage.IsNegative() || a.Percentage.GreaterThan(hundred) {
				return errors.Errorf("%s: percentage %s out of range", a.Type, a.Percentage)
			}
		case ActionBuyXGetYFree, ActionOrderFixed, ActionOrderFixedPrice, ActionFreeLowest, ActionFreeShipping:
		default:
			return &UnknownActionError{Type: a.Type}
		}
	}
	return nil
}

// Source implements Promotion.
func (r *Rule) Source() string {
	return r.ID
}

// ActiveAt reports whether the rule is enabled and inside its time window.
func (r *Rule) ActiveAt(now time.Time) bool {
	if !r.Enabled {
		return false
	}
	if r.StartsAt != nil && now.Before(*r.StartsAt) {
		return false
	}
	if r.EndsAt != nil && now.After(*r.EndsAt) {
		return false
	}
	return true
}

func (r *Rule) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

// Test implements Promotion.
func (r *Rule) Test(_ context.Context, o *order.Order) (*State, error) {
	if !r.ActiveAt(r.clock()) {
		return nil, nil
	}
	if r.CouponCode != "" && !o.HasCoupon(r.CouponCode) && !o.HasCouponFor(r.ID) {
		return nil, nil
	}

	state := &State{}
	for _, c := range r.Conditions {
		ok, err := r.check(c, o, state)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
	}
	return state, nil
}

func (r *Rule) check(c Condition, o *order.Order, state *State) (bool, error) {
	switch c.Type {
	case ConditionMinimumOrderAmount:
		if c.TaxInclusive {
			return o.SubTotalWithTax >= c.Amount, nil
		}
		return o.SubTotal >= c.Amount, nil
	case ConditionMinimumQuantity:
		return o.TotalQuantity() >= c.Quantity, nil
	case ConditionContainsProducts:
		return countVariants(o, c.VariantIDs) >= c.Quantity, nil
	case ConditionBuyXGetY:
		free := freeItems(o, c)
		if len(free) == 0 {
			return false, nil
		}
		state.FreeItemIDs = free
		return true, nil
	default:
		return false, &UnknownConditionError{Type: c.Type}
	}
}

func countVariants(o *order.Order, variantIDs []string) int {
	n := 0
	for _, line := range o.Lines {
		if slices.Contains(variantIDs, line.ProductVariantID) {
			n += line.Quantity()
		}
	}
	return n
}

// freeItems picks the cheapest eligible items to give away.
func freeItems(o *order.Order, c Condition) map[string]bool {
	if c.Quantity <= 0 || c.FreeQuantity <= 0 {
		return nil
	}
	sets := countVariants(o, c.VariantIDs) / c.Quantity
	if sets == 0 {
		return nil
	}

	var candidates []*order.OrderItem
	for _, line := range o.Lines {
		if slices.Contains(c.FreeVariantIDs, line.ProductVariantID) {
			candidates = append(candidates, line.ActiveItems()...)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].UnitPrice() < candidates[j].UnitPrice()
	})

	limit := min(sets*c.FreeQuantity, len(candidates))
	free := make(map[string]bool, limit)
	for _, item := range candidates[:limit] {
		free[item.ID] = true
	}
	return free
}

// Apply implements Promotion.
func (r *Rule) Apply(_ context.Context, target Target, state *State) (*order.Adjustment, error) {
	var (
		amount int64
		typ    = order.AdjustmentPromotion
	)
	for _, a := range r.Actions {
		switch {
		case target.ShippingLine != nil:
			amount += shippingDiscount(a, target.ShippingLine)
		case target.Item != nil:
			amount += itemDiscount(a, target.Line, target.Item, state)
		default:
			typ = order.AdjustmentDistributedOrderPromotion
			amount += orderDiscount(a, target.Order)
		}
	}
	if amount == 0 {
		return nil, nil
	}
	return &order.Adjustment{
		Type:        typ,
		Amount:      amount,
		Source:      r.ID,
		Description: r.Name,
	}, nil
}

// SortByPriority orders rules by ascending priority, keeping the input
// order for equal priorities.
func SortByPriority(rules []*Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority < rules[j].Priority
	})
}

// Promotions converts rules to the Promotion contract.
func Promotions(rules []*Rule) []Promotion {
	out := make([]Promotion, len(rules))
	for i, r := range rules {
		out[i] = r
	}
	return out
}
