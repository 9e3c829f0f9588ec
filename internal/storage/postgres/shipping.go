package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/orderflow/internal/domain/shipping"
)

const (
	listShippingMethodsSQL = `SELECT id, code, name, price, price_includes_tax, tax_rate, countries
		FROM shipping_methods WHERE enabled ORDER BY id`

	upsertShippingMethodSQL = `INSERT INTO shipping_methods (id, code, name, price, price_includes_tax, tax_rate, countries, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code,
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			price_includes_tax = EXCLUDED.price_includes_tax,
			tax_rate = EXCLUDED.tax_rate,
			countries = EXCLUDED.countries,
			enabled = TRUE`
)

// ShippingMethodRepository stores flat-rate shipping method configurations.
type ShippingMethodRepository struct {
	pool *pgxpool.Pool
}

// NewShippingMethodRepository returns a ShippingMethodRepository that uses
// the given pool.
func NewShippingMethodRepository(pool *pgxpool.Pool) *ShippingMethodRepository {
	return &ShippingMethodRepository{pool: pool}
}

// Registry loads every enabled method into a shipping.Registry. Methods
// stored without a pricing mode follow pricesIncludeTax.
func (r *ShippingMethodRepository) Registry(ctx context.Context, pricesIncludeTax bool) (*shipping.Registry, error) {
	rows, err := r.pool.Query(ctx, listShippingMethodsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing shipping methods: %w", err)
	}
	methods, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (shipping.Method, error) {
		var cfg shipping.FlatRateConfig
		err := row.Scan(&cfg.ID, &cfg.Code, &cfg.Name, &cfg.Price, &cfg.PriceIncludesTax, &cfg.TaxRate, &cfg.Countries)
		return shipping.NewFlatRate(cfg.WithDefaultPricing(pricesIncludeTax)), err
	})
	if err != nil {
		return nil, fmt.Errorf("listing shipping methods: %w", err)
	}
	return shipping.NewRegistry(methods...), nil
}

// Upsert inserts or replaces a flat-rate method.
func (r *ShippingMethodRepository) Upsert(ctx context.Context, cfg shipping.FlatRateConfig) error {
	countries := cfg.Countries
	if countries == nil {
		countries = []string{}
	}
	_, err := r.pool.Exec(ctx, upsertShippingMethodSQL,
		cfg.ID, cfg.Code, cfg.Name, cfg.Price, cfg.PriceIncludesTax, cfg.TaxRate, countries,
	)
	if err != nil {
		return fmt.Errorf("upserting shipping method %q: %w", cfg.ID, err)
	}
	return nil
}
