package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/orderflow/internal/domain/promotion"
)

const (
	getCouponByCodeSQL = `SELECT code, promotion_id, max_uses, uses, valid_from, valid_until
		FROM promotion_coupons WHERE code = $1 AND active = TRUE`

	incrementCouponUsesSQL = `UPDATE promotion_coupons SET uses = uses + 1 WHERE code = $1`

	upsertCouponSQL = `INSERT INTO promotion_coupons (code, promotion_id, max_uses, valid_from, valid_until, active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT (code) DO UPDATE SET
			promotion_id = EXCLUDED.promotion_id,
			max_uses = EXCLUDED.max_uses,
			valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until,
			active = TRUE`
)

var _ promotion.CouponRepository = (*CouponRepository)(nil)

// CouponRepository implements promotion.CouponRepository backed by
// PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up an active coupon by its exact code. Returns
// promotion.ErrInvalidCoupon when no matching active coupon exists.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*promotion.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promotion.ErrInvalidCoupon
		}
		return nil, fmt.Errorf("finding coupon by code %q: %w", code, err)
	}
	return &c, nil
}

// IncrementUses atomically increments the usage counter for the given
// coupon code.
func (r *CouponRepository) IncrementUses(ctx context.Context, code string) error {
	_, err := r.pool.Exec(ctx, incrementCouponUsesSQL, code)
	if err != nil {
		return fmt.Errorf("incrementing uses for coupon %q: %w", code, err)
	}
	return nil
}

// UpsertBatch stores coupons in one round trip. Usage counters of existing
// codes are kept.
func (r *CouponRepository) UpsertBatch(ctx context.Context, coupons []promotion.Coupon) error {
	batch := &pgx.Batch{}
	for _, c := range coupons {
		batch.Queue(upsertCouponSQL, c.Code, c.PromotionID, int32(c.MaxUses), c.ValidFrom, c.ValidUntil)
	}
	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting %d coupons: %w", len(coupons), err)
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (promotion.Coupon, error) {
	var (
		c                     promotion.Coupon
		maxUses, uses         int32
		validFrom, validUntil *time.Time
	)
	err := row.Scan(&c.Code, &c.PromotionID, &maxUses, &uses, &validFrom, &validUntil)
	c.MaxUses = int(maxUses)
	c.Uses = int(uses)
	c.ValidFrom = validFrom
	c.ValidUntil = validUntil
	return c, err
}
