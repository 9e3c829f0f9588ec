package promotion

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/orderflow/internal/domain/order"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func line(id, variant string, prices ...int64) *order.OrderLine {
	l := &order.OrderLine{ID: id, ProductVariantID: variant}
	for i, p := range prices {
		l.Items = append(l.Items, &order.OrderItem{ID: id + "-" + string(rune('a'+i)), ListPrice: p})
	}
	return l
}

func orderWith(subTotal int64, lines ...*order.OrderLine) *order.Order {
	return &order.Order{Lines: lines, SubTotal: subTotal, SubTotalWithTax: subTotal}
}

func TestRule_Test(t *testing.T) {
	fixedNow := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	past := fixedNow.Add(-time.Hour)
	future := fixedNow.Add(time.Hour)

	tests := []struct {
		name  string
		rule  Rule
		order *order.Order
		want  bool
	}{
		{
			name:  "no conditions",
			rule:  Rule{ID: "p", Enabled: true},
			order: orderWith(0),
			want:  true,
		},
		{
			name:  "disabled",
			rule:  Rule{ID: "p"},
			order: orderWith(0),
		},
		{
			name:  "not started",
			rule:  Rule{ID: "p", Enabled: true, StartsAt: &future},
			order: orderWith(0),
		},
		{
			name:  "ended",
			rule:  Rule{ID: "p", Enabled: true, EndsAt: &past},
			order: orderWith(0),
		},
		{
			name: "minimum amount reached",
			rule: Rule{ID: "p", Enabled: true, Conditions: []Condition{
				{Type: ConditionMinimumOrderAmount, Amount: 1000},
			}},
			order: orderWith(1000),
			want:  true,
		},
		{
			name: "minimum amount missed",
			rule: Rule{ID: "p", Enabled: true, Conditions: []Condition{
				{Type: ConditionMinimumOrderAmount, Amount: 1000},
			}},
			order: orderWith(999),
		},
		{
			name: "minimum quantity counts active items only",
			rule: Rule{ID: "p", Enabled: true, Conditions: []Condition{
				{Type: ConditionMinimumQuantity, Quantity: 3},
			}},
			order: func() *order.Order {
				l := line("l1", "v1", 100, 100, 100)
				l.Items[2].Cancelled = true
				return orderWith(200, l)
			}(),
		},
		{
			name: "contains products",
			rule: Rule{ID: "p", Enabled: true, Conditions: []Condition{
				{Type: ConditionContainsProducts, VariantIDs: []string{"v2"}, Quantity: 2},
			}},
			order: orderWith(0, line("l1", "v1", 100), line("l2", "v2", 50, 50)),
			want:  true,
		},
		{
			name:  "coupon required but missing",
			rule:  Rule{ID: "p", Enabled: true, CouponCode: "SAVE10"},
			order: orderWith(0),
		},
		{
			name: "coupon applied by code",
			rule: Rule{ID: "p", Enabled: true, CouponCode: "SAVE10"},
			order: &order.Order{Coupons: []order.Coupon{{Code: "SAVE10", PromotionID: "p"}}},
			want: true,
		},
		{
			name: "bulk coupon resolved to promotion",
			rule: Rule{ID: "p", Enabled: true, CouponCode: "SAVE10"},
			order: &order.Order{Coupons: []order.Coupon{{Code: "X7K2M9QA", PromotionID: "p"}}},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := tt.rule
			rule.now = func() time.Time { return fixedNow }

			state, err := rule.Test(context.Background(), tt.order)
			require.NoError(t, err)
			assert.Equal(t, tt.want, state != nil)
		})
	}
}

func TestRule_BuyXGetYPicksCheapest(t *testing.T) {
	rule := &Rule{
		ID:      "bogo",
		Name:    "Buy 2 shirts get a sock free",
		Enabled: true,
		Conditions: []Condition{{
			Type:           ConditionBuyXGetY,
			VariantIDs:     []string{"shirt"},
			Quantity:       2,
			FreeVariantIDs: []string{"sock"},
			FreeQuantity:   1,
		}},
		Actions: []Action{{Type: ActionBuyXGetYFree}},
	}
	shirts := line("l1", "shirt", 2000, 2000, 2000, 2000)
	socks := line("l2", "sock", 300, 250, 400)
	o := orderWith(0, shirts, socks)
	ctx := context.Background()

	state, err := rule.Test(ctx, o)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, map[string]bool{"l2-b": true, "l2-a": true}, state.FreeItemIDs)

	adj, err := rule.Apply(ctx, Target{Order: o, Line: socks, Item: socks.Items[1]}, state)
	require.NoError(t, err)
	require.NotNil(t, adj)
	assert.Equal(t, int64(-250), adj.Amount)
	assert.Equal(t, order.AdjustmentPromotion, adj.Type)

	adj, err = rule.Apply(ctx, Target{Order: o, Line: socks, Item: socks.Items[2]}, state)
	require.NoError(t, err)
	assert.Nil(t, adj)

	shirts.Items[3].Cancelled = true
	shirts.Items[2].Cancelled = true
	state, err = rule.Test(ctx, o)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"l2-b": true}, state.FreeItemIDs)
}

func TestRule_Apply(t *testing.T) {
	tests := []struct {
		name       string
		action     Action
		target     func(o *order.Order) Target
		subTotal   int64
		wantAmount int64
		wantType   order.AdjustmentType
		wantNil    bool
	}{
		{
			name:   "item percentage",
			action: Action{Type: ActionItemPercentage, Percentage: d("18")},
			target: func(o *order.Order) Target {
				return Target{Order: o, Line: o.Lines[0], Item: o.Lines[0].Items[0]}
			},
			wantAmount: -180,
			wantType:   order.AdjustmentPromotion,
		},
		{
			name:   "item percentage skips other variants",
			action: Action{Type: ActionItemPercentage, Percentage: d("50"), VariantIDs: []string{"other"}},
			target: func(o *order.Order) Target {
				return Target{Order: o, Line: o.Lines[0], Item: o.Lines[0].Items[0]}
			},
			wantNil: true,
		},
		{
			name:       "order percentage rounds half away from zero",
			action:     Action{Type: ActionOrderPercentage, Percentage: d("15")},
			target:     func(o *order.Order) Target { return Target{Order: o} },
			subTotal:   1510,
			wantAmount: -227,
			wantType:   order.AdjustmentDistributedOrderPromotion,
		},
		{
			name:       "order fixed capped at subtotal",
			action:     Action{Type: ActionOrderFixed, Amount: 5000},
			target:     func(o *order.Order) Target { return Target{Order: o} },
			subTotal:   1500,
			wantAmount: -1500,
			wantType:   order.AdjustmentDistributedOrderPromotion,
		},
		{
			name:       "order fixed price",
			action:     Action{Type: ActionOrderFixedPrice, Amount: 999},
			target:     func(o *order.Order) Target { return Target{Order: o} },
			subTotal:   1500,
			wantAmount: -501,
			wantType:   order.AdjustmentDistributedOrderPromotion,
		},
		{
			name:     "order fixed price below target is a no-op",
			action:   Action{Type: ActionOrderFixedPrice, Amount: 2000},
			target:   func(o *order.Order) Target { return Target{Order: o} },
			subTotal: 1500,
			wantNil:  true,
		},
		{
			name:       "free lowest",
			action:     Action{Type: ActionFreeLowest},
			target:     func(o *order.Order) Target { return Target{Order: o} },
			subTotal:   1500,
			wantAmount: -500,
			wantType:   order.AdjustmentDistributedOrderPromotion,
		},
		{
			name:   "free shipping",
			action: Action{Type: ActionFreeShipping},
			target: func(o *order.Order) Target {
				return Target{Order: o, ShippingLine: &order.ShippingLine{ListPrice: 450}}
			},
			wantAmount: -450,
			wantType:   order.AdjustmentPromotion,
		},
		{
			name:   "order action ignores items",
			action: Action{Type: ActionOrderFixed, Amount: 100},
			target: func(o *order.Order) Target {
				return Target{Order: o, Line: o.Lines[0], Item: o.Lines[0].Items[0]}
			},
			subTotal: 1500,
			wantNil:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := orderWith(tt.subTotal, line("l1", "v1", 1000), line("l2", "v2", 500))
			rule := &Rule{ID: "promo", Name: "Promo", Enabled: true, Actions: []Action{tt.action}}

			adj, err := rule.Apply(context.Background(), tt.target(o), &State{})
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, adj)
				return
			}
			require.NotNil(t, adj)
			assert.Equal(t, tt.wantAmount, adj.Amount)
			assert.Equal(t, tt.wantType, adj.Type)
			assert.Equal(t, "promo", adj.Source)
			assert.Equal(t, "Promo", adj.Description)
		})
	}
}

func TestRule_Validate(t *testing.T) {
	tests := []struct {
		name    string
		rule    Rule
		wantErr any
	}{
		{
			name: "valid",
			rule: Rule{
				Conditions: []Condition{{Type: ConditionMinimumQuantity, Quantity: 2}},
				Actions:    []Action{{Type: ActionOrderPercentage, Percentage: d("10")}},
			},
		},
		{
			name:    "unknown condition",
			rule:    Rule{Conditions: []Condition{{Type: "weather"}}},
			wantErr: &UnknownConditionError{},
		},
		{
			name:    "unknown action",
			rule:    Rule{Actions: []Action{{Type: "cashback"}}},
			wantErr: &UnknownActionError{},
		},
		{
			name:    "percentage above 100",
			rule:    Rule{Actions: []Action{{Type: ActionItemPercentage, Percentage: d("101")}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			switch want := tt.wantErr.(type) {
			case nil:
				require.NoError(t, err)
			case *UnknownConditionError:
				require.ErrorAs(t, err, &want)
			case *UnknownActionError:
				require.ErrorAs(t, err, &want)
			default:
				require.Error(t, err)
			}
		})
	}
}

func TestSortByPriority(t *testing.T) {
	rules := []*Rule{{ID: "c", Priority: 2}, {ID: "a", Priority: 1}, {ID: "b", Priority: 1}}

	SortByPriority(rules)

	promos := Promotions(rules)
	require.Len(t, promos, 3)
	assert.Equal(t, "a", promos[0].Source())
	assert.Equal(t, "b", promos[1].Source())
	assert.Equal(t, "c", promos[2].Source())
}
