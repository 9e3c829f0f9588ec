package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/orderflow/internal/domain/product"
)

const (
	variantColumns = `id, product_id, name, sku, price, price_includes_tax, tax_category_id,
		enabled, track_inventory, stock_on_hand, stock_allocated`

	listVariantsSQL = `SELECT ` + variantColumns + ` FROM product_variants ORDER BY id`

	getVariantByIDSQL = `SELECT ` + variantColumns + ` FROM product_variants WHERE id = $1`

	upsertVariantSQL = `INSERT INTO product_variants (` + variantColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			product_id = EXCLUDED.product_id,
			name = EXCLUDED.name,
			sku = EXCLUDED.sku,
			price = EXCLUDED.price,
			price_includes_tax = EXCLUDED.price_includes_tax,
			tax_category_id = EXCLUDED.tax_category_id,
			enabled = EXCLUDED.enabled,
			track_inventory = EXCLUDED.track_inventory,
			stock_on_hand = EXCLUDED.stock_on_hand,
			stock_allocated = EXCLUDED.stock_allocated`
)

var _ product.Repository = (*VariantRepository)(nil)

// VariantRepository implements product.Repository backed by PostgreSQL.
type VariantRepository struct {
	pool *pgxpool.Pool
}

// NewVariantRepository returns a VariantRepository that uses the given pool.
func NewVariantRepository(pool *pgxpool.Pool) *VariantRepository {
	return &VariantRepository{pool: pool}
}

// List returns all variants ordered by ID.
func (r *VariantRepository) List(ctx context.Context) ([]product.Variant, error) {
	rows, err := r.pool.Query(ctx, listVariantsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing variants: %w", err)
	}
	return pgx.CollectRows(rows, scanVariant)
}

// GetByID returns a single variant by its identifier.
func (r *VariantRepository) GetByID(ctx context.Context, id string) (*product.Variant, error) {
	rows, err := r.pool.Query(ctx, getVariantByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting variant %q: %w", id, err)
	}

	v, err := pgx.CollectExactlyOneRow(rows, scanVariant)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting variant %q: %w", id, err)
	}
	return &v, nil
}

// Upsert inserts or replaces a variant.
func (r *VariantRepository) Upsert(ctx context.Context, v product.Variant) error {
	_, err := r.pool.Exec(ctx, upsertVariantSQL,
		v.ID, v.ProductID, v.Name, v.SKU, v.Price, v.PriceIncludesTax, v.TaxCategoryID,
		v.Enabled, v.TrackInventory, int32(v.StockOnHand), int32(v.StockAllocated),
	)
	if err != nil {
		return fmt.Errorf("upserting variant %q: %w", v.ID, err)
	}
	return nil
}

func scanVariant(row pgx.CollectableRow) (product.Variant, error) {
	var (
		v              product.Variant
		onHand, alloct int32
	)
	err := row.Scan(
		&v.ID, &v.ProductID, &v.Name, &v.SKU, &v.Price, &v.PriceIncludesTax, &v.TaxCategoryID,
		&v.Enabled, &v.TrackInventory, &onHand, &alloct,
	)
	v.StockOnHand = int(onHand)
	v.StockAllocated = int(alloct)
	return v, err
}
