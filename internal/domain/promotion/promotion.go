// Package promotion defines the promotion contract consumed by the pricing
// calculator and a rule-based implementation of it.
package promotion

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/orderflow/internal/domain/order"
)

var (
	// ErrNotFound is returned when a promotion does not exist.
	ErrNotFound = errors.New("promotion not found")
	// ErrInvalidCoupon is returned when a coupon code is not found.
	ErrInvalidCoupon = errors.New("invalid coupon code")
	// ErrCouponExpired is returned when a coupon's promotion is outside its
	// valid time window or disabled.
	ErrCouponExpired = errors.New("coupon expired")
	// ErrCouponUsageLimitReached is returned when a coupon has exhausted its
	// allowed uses.
	ErrCouponUsageLimitReached = errors.New("coupon usage limit reached")
)

// State is the outcome of a successful Promotion.Test, passed back to
// Promotion.Apply.
type State struct {
	// FreeItemIDs holds the items a buy-x-get-y condition made free.
	FreeItemIDs map[string]bool
}

// Target is the entity a promotion is applied to. Exactly one of Item or
// ShippingLine is set for item and shipping adjustments; both are nil for
// an order-level adjustment.
type Target struct {
	Order        *order.Order
	Line         *order.OrderLine
	Item         *order.OrderItem
	ShippingLine *order.ShippingLine
}

// Promotion is a discount that may apply to an order.
type Promotion interface {
	// Source identifies the promotion in the adjustments it creates.
	Source() string
	// Test returns nil when the promotion does not apply to the order.
	Test(ctx context.Context, o *order.Order) (*State, error)
	// Apply returns the adjustment for the target, or nil when the
	// promotion has nothing to apply to it.
	Apply(ctx context.Context, target Target, state *State) (*order.Adjustment, error)
}

// Coupon is a redeemable code unlocking a promotion.
type Coupon struct {
	Code        string
	PromotionID string
	MaxUses     int
	Uses        int
	ValidFrom   *time.Time
	ValidUntil  *time.Time
}

// Repository provides lookup of promotion rules.
type Repository interface {
	// ListEnabled returns every enabled rule ordered by priority.
	ListEnabled(ctx context.Context) ([]*Rule, error)
	Get(ctx context.Context, id string) (*Rule, error)
}

// CouponRepository provides lookup and mutation of coupon codes.
type CouponRepository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	IncrementUses(ctx context.Context, code string) error
}
