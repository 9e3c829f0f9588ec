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
	promotionColumns = `id, name, coupon_code, enabled, priority, starts_at, ends_at, conditions, actions`

	listEnabledPromotionsSQL = `SELECT ` + promotionColumns + `
		FROM promotions WHERE enabled ORDER BY priority, id`

	getPromotionSQL = `SELECT ` + promotionColumns + ` FROM promotions WHERE id = $1`

	upsertPromotionSQL = `INSERT INTO promotions (` + promotionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			coupon_code = EXCLUDED.coupon_code,
			enabled = EXCLUDED.enabled,
			priority = EXCLUDED.priority,
			starts_at = EXCLUDED.starts_at,
			ends_at = EXCLUDED.ends_at,
			conditions = EXCLUDED.conditions,
			actions = EXCLUDED.actions`
)

var _ promotion.Repository = (*PromotionRepository)(nil)

// PromotionRepository implements promotion.Repository backed by PostgreSQL.
// Conditions and actions are stored as JSONB.
type PromotionRepository struct {
	pool *pgxpool.Pool
}

// NewPromotionRepository returns a PromotionRepository that uses the given
// pool.
func NewPromotionRepository(pool *pgxpool.Pool) *PromotionRepository {
	return &PromotionRepository{pool: pool}
}

// ListEnabled returns every enabled rule ordered by priority.
func (r *PromotionRepository) ListEnabled(ctx context.Context) ([]*promotion.Rule, error) {
	rows, err := r.pool.Query(ctx, listEnabledPromotionsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing promotions: %w", err)
	}
	return pgx.CollectRows(rows, scanRule)
}

// Get returns a rule by ID, enabled or not.
func (r *PromotionRepository) Get(ctx context.Context, id string) (*promotion.Rule, error) {
	rows, err := r.pool.Query(ctx, getPromotionSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting promotion %q: %w", id, err)
	}

	rule, err := pgx.CollectExactlyOneRow(rows, scanRule)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, promotion.ErrNotFound
		}
		return nil, fmt.Errorf("getting promotion %q: %w", id, err)
	}
	return rule, nil
}

// Upsert validates and stores a rule.
func (r *PromotionRepository) Upsert(ctx context.Context, rule *promotion.Rule) error {
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("validating promotion %q: %w", rule.ID, err)
	}
	_, err := r.pool.Exec(ctx, upsertPromotionSQL,
		rule.ID, rule.Name, rule.CouponCode, rule.Enabled, int32(rule.Priority),
		rule.StartsAt, rule.EndsAt,
		marshalConditions(rule.Conditions), marshalActions(rule.Actions),
	)
	if err != nil {
		return fmt.Errorf("upserting promotion %q: %w", rule.ID, err)
	}
	return nil
}

func scanRule(row pgx.CollectableRow) (*promotion.Rule, error) {
	var (
		rule               promotion.Rule
		priority           int32
		startsAt, endsAt   *time.Time
		conditions, action []byte
	)
	if err := row.Scan(
		&rule.ID, &rule.Name, &rule.CouponCode, &rule.Enabled, &priority,
		&startsAt, &endsAt, &conditions, &action,
	); err != nil {
		return nil, err
	}
	rule.Priority = int(priority)
	rule.StartsAt = startsAt
	rule.EndsAt = endsAt

	var err error
	if rule.Conditions, err = unmarshalConditions(conditions); err != nil {
		return nil, errors.Wrapf(err, "promotion %s", rule.ID)
	}
	if rule.Actions, err = unmarshalActions(action); err != nil {
		return nil, errors.Wrapf(err, "promotion %s", rule.ID)
	}
	return &rule, nil
}
