package promotion

import (
	"context"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/orderflow/internal/domain/order"
)

// CouponValidator resolves coupon codes to the promotions they unlock.
type CouponValidator struct {
	coupons CouponRepository
	rules   Repository
	now     func() time.Time
}

// NewCouponValidator creates a CouponValidator backed by the given
// repositories.
func NewCouponValidator(coupons CouponRepository, rules Repository) *CouponValidator {
	return &CouponValidator{coupons: coupons, rules: rules, now: time.Now}
}

// Validate looks up the coupon, checks its temporal validity and usage
// limit and that its promotion is currently active.
func (v *CouponValidator) Validate(ctx context.Context, code string) (order.Coupon, error) {
	c, err := v.coupons.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCoupon) {
			return order.Coupon{}, ErrInvalidCoupon
		}
		return order.Coupon{}, errors.Wrap(err, "lookup coupon")
	}

	now := v.now()

	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return order.Coupon{}, ErrCouponExpired
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return order.Coupon{}, ErrCouponExpired
	}
	if c.MaxUses > 0 && c.Uses >= c.MaxUses {
		return order.Coupon{}, ErrCouponUsageLimitReached
	}

	rule, err := v.rules.Get(ctx, c.PromotionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return order.Coupon{}, ErrInvalidCoupon
		}
		return order.Coupon{}, errors.Wrap(err, "lookup promotion")
	}
	if !rule.ActiveAt(now) {
		return order.Coupon{}, ErrCouponExpired
	}

	return order.Coupon{Code: c.Code, PromotionID: c.PromotionID}, nil
}

// Redeem increments the usage counter of every coupon applied to a placed
// order.
func (v *CouponValidator) Redeem(ctx context.Context, coupons []order.Coupon) error {
	for _, c := range coupons {
		if err := v.coupons.IncrementUses(ctx, c.Code); err != nil {
			return errors.Wrapf(err, "increment uses of coupon %s", c.Code)
		}
	}
	return nil
}
