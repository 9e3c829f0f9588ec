package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/orderflow/internal/domain/tax"
)

const (
	listZonesSQL = `SELECT id, name, countries FROM tax_zones ORDER BY id`

	applicableRateSQL = `SELECT id, name, value, enabled, category_id, zone_id
		FROM tax_rates
		WHERE zone_id = $1 AND category_id = $2 AND enabled
		ORDER BY id
		LIMIT 1`

	upsertZoneSQL = `INSERT INTO tax_zones (id, name, countries) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, countries = EXCLUDED.countries`

	upsertRateSQL = `INSERT INTO tax_rates (id, name, value, enabled, category_id, zone_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			value = EXCLUDED.value,
			enabled = EXCLUDED.enabled,
			category_id = EXCLUDED.category_id,
			zone_id = EXCLUDED.zone_id`
)

var (
	_ tax.ZoneLister   = (*TaxRepository)(nil)
	_ tax.RateResolver = (*TaxRepository)(nil)
)

// TaxRepository serves tax zones and rates from PostgreSQL.
type TaxRepository struct {
	pool *pgxpool.Pool
}

// NewTaxRepository returns a TaxRepository that uses the given pool.
func NewTaxRepository(pool *pgxpool.Pool) *TaxRepository {
	return &TaxRepository{pool: pool}
}

// ListZones implements tax.ZoneLister.
func (r *TaxRepository) ListZones(ctx context.Context) ([]tax.Zone, error) {
	rows, err := r.pool.Query(ctx, listZonesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing tax zones: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (tax.Zone, error) {
		var z tax.Zone
		err := row.Scan(&z.ID, &z.Name, &z.Countries)
		return z, err
	})
}

// ApplicableRate implements tax.RateResolver. A category without an
// enabled rate in the zone is taxed at tax.ZeroRate.
func (r *TaxRepository) ApplicableRate(ctx context.Context, zone tax.Zone, categoryID string) (tax.Rate, error) {
	rows, err := r.pool.Query(ctx, applicableRateSQL, zone.ID, categoryID)
	if err != nil {
		return tax.Rate{}, fmt.Errorf("getting tax rate for %q in zone %q: %w", categoryID, zone.ID, err)
	}

	rate, err := pgx.CollectExactlyOneRow(rows, scanRate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return tax.ZeroRate, nil
		}
		return tax.Rate{}, fmt.Errorf("getting tax rate for %q in zone %q: %w", categoryID, zone.ID, err)
	}
	return rate, nil
}

// UpsertZone inserts or replaces a tax zone.
func (r *TaxRepository) UpsertZone(ctx context.Context, z tax.Zone) error {
	countries := z.Countries
	if countries == nil {
		countries = []string{}
	}
	if _, err := r.pool.Exec(ctx, upsertZoneSQL, z.ID, z.Name, countries); err != nil {
		return fmt.Errorf("upserting tax zone %q: %w", z.ID, err)
	}
	return nil
}

// UpsertRate inserts or replaces a tax rate.
func (r *TaxRepository) UpsertRate(ctx context.Context, rate tax.Rate) error {
	_, err := r.pool.Exec(ctx, upsertRateSQL,
		rate.ID, rate.Name, rate.Value, rate.Enabled, rate.CategoryID, rate.ZoneID,
	)
	if err != nil {
		return fmt.Errorf("upserting tax rate %q: %w", rate.ID, err)
	}
	return nil
}

func scanRate(row pgx.CollectableRow) (tax.Rate, error) {
	var rate tax.Rate
	err := row.Scan(&rate.ID, &rate.Name, &rate.Value, &rate.Enabled, &rate.CategoryID, &rate.ZoneID)
	return rate, err
}
