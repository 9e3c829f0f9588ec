package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/orderflow/internal/domain/product"
	"github.com/xenking/orderflow/internal/domain/promotion"
	"github.com/xenking/orderflow/internal/domain/shipping"
	"github.com/xenking/orderflow/internal/domain/tax"
	"github.com/xenking/orderflow/internal/storage/postgres"
)

type catalogJSON struct {
	Zones           []zoneJSON     `json:"zones"`
	Rates           []rateJSON     `json:"rates"`
	Variants        []variantJSON  `json:"variants"`
	Promotions      []ruleJSON     `json:"promotions"`
	Coupons         []couponJSON   `json:"coupons"`
	ShippingMethods []shippingJSON `json:"shipping_methods"`
}

type zoneJSON struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Countries []string `json:"countries"`
}

type rateJSON struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Value      decimal.Decimal `json:"value"`
	Enabled    bool            `json:"enabled"`
	CategoryID string          `json:"category_id"`
	ZoneID     string          `json:"zone_id"`
}

type variantJSON struct {
	ID               string `json:"id"`
	ProductID        string `json:"product_id"`
	Name             string `json:"name"`
	SKU              string `json:"sku"`
	Price            int64  `json:"price"`
	PriceIncludesTax *bool  `json:"price_includes_tax"`
	TaxCategoryID    string `json:"tax_category_id"`
	Enabled          bool   `json:"enabled"`
	TrackInventory   bool   `json:"track_inventory"`
	StockOnHand      int    `json:"stock_on_hand"`
}

type conditionJSON struct {
	Type           string   `json:"type"`
	Amount         int64    `json:"amount"`
	TaxInclusive   bool     `json:"tax_inclusive"`
	Quantity       int      `json:"quantity"`
	VariantIDs     []string `json:"variant_ids"`
	FreeVariantIDs []string `json:"free_variant_ids"`
	FreeQuantity   int      `json:"free_quantity"`
}

type actionJSON struct {
	Type       string          `json:"type"`
	Percentage decimal.Decimal `json:"percentage"`
	Amount     int64           `json:"amount"`
	VariantIDs []string        `json:"variant_ids"`
}

type ruleJSON struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	CouponCode string          `json:"coupon_code"`
	Enabled    bool            `json:"enabled"`
	Priority   int             `json:"priority"`
	StartsAt   *time.Time      `json:"starts_at"`
	EndsAt     *time.Time      `json:"ends_at"`
	Conditions []conditionJSON `json:"conditions"`
	Actions    []actionJSON    `json:"actions"`
}

type couponJSON struct {
	Code        string     `json:"code"`
	PromotionID string     `json:"promotion_id"`
	MaxUses     int        `json:"max_uses"`
	ValidFrom   *time.Time `json:"valid_from"`
	ValidUntil  *time.Time `json:"valid_until"`
}

type shippingJSON struct {
	ID               string          `json:"id"`
	Code             string          `json:"code"`
	Name             string          `json:"name"`
	Price            int64           `json:"price"`
	PriceIncludesTax *bool           `json:"price_includes_tax"`
	TaxRate          decimal.Decimal `json:"tax_rate"`
	Countries        []string        `json:"countries"`
}

func (r ruleJSON) rule() *promotion.Rule {
	rule := &promotion.Rule{
		ID:         r.ID,
		Name:       r.Name,
		CouponCode: r.CouponCode,
		Enabled:    r.Enabled,
		Priority:   r.Priority,
		StartsAt:   r.StartsAt,
		EndsAt:     r.EndsAt,
	}
	for _, c := range r.Conditions {
		rule.Conditions = append(rule.Conditions, promotion.Condition{
			Type:           promotion.ConditionType(c.Type),
			Amount:         c.Amount,
			TaxInclusive:   c.TaxInclusive,
			Quantity:       c.Quantity,
			VariantIDs:     c.VariantIDs,
			FreeVariantIDs: c.FreeVariantIDs,
			FreeQuantity:   c.FreeQuantity,
		})
	}
	for _, a := range r.Actions {
		rule.Actions = append(rule.Actions, promotion.Action{
			Type:       promotion.ActionType(a.Type),
			Percentage: a.Percentage,
			Amount:     a.Amount,
			VariantIDs: a.VariantIDs,
		})
	}
	return rule
}

func main() {
	var (
		databaseURL string
		catalogFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog-file", "db/seed/catalog.json", "path to catalog JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, catalogFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func readCatalog(path string) (*catalogJSON, error) {
	slog.Info("reading catalog file", slog.String("path", path))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read catalog file")
	}
	var catalog catalogJSON
	if err := json.Unmarshal(data, &catalog); err != nil {
		return nil, errors.Wrap(err, "parse catalog JSON")
	}
	return &catalog, nil
}

func run(ctx context.Context, databaseURL, catalogFile string) error {
	catalog, err := readCatalog(catalogFile)
	if err != nil {
		return err
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedTax(ctx, postgres.NewTaxRepository(pool), catalog); err != nil {
		return errors.Wrap(err, "seed tax")
	}
	if err := seedVariants(ctx, postgres.NewVariantRepository(pool), catalog.Variants); err != nil {
		return errors.Wrap(err, "seed variants")
	}
	if err := seedPromotions(ctx, postgres.NewPromotionRepository(pool), postgres.NewCouponRepository(pool), catalog); err != nil {
		return errors.Wrap(err, "seed promotions")
	}
	if err := seedShipping(ctx, postgres.NewShippingMethodRepository(pool), catalog.ShippingMethods); err != nil {
		return errors.Wrap(err, "seed shipping methods")
	}

	return nil
}

func seedTax(ctx context.Context, repo *postgres.TaxRepository, catalog *catalogJSON) error {
	for _, z := range catalog.Zones {
		if err := repo.UpsertZone(ctx, tax.Zone{ID: z.ID, Name: z.Name, Countries: z.Countries}); err != nil {
			return errors.Wrapf(err, "upsert zone %s", z.ID)
		}
		slog.Info("upserted tax zone", slog.String("id", z.ID), slog.Any("countries", z.Countries))
	}
	for _, r := range catalog.Rates {
		if err := repo.UpsertRate(ctx, tax.Rate{
			ID:         r.ID,
			Name:       r.Name,
			Value:      r.Value,
			Enabled:    r.Enabled,
			CategoryID: r.CategoryID,
			ZoneID:     r.ZoneID,
		}); err != nil {
			return errors.Wrapf(err, "upsert rate %s", r.ID)
		}
		slog.Info("upserted tax rate", slog.String("id", r.ID), slog.String("value", r.Value.String()))
	}
	return nil
}

func seedVariants(ctx context.Context, repo *postgres.VariantRepository, variants []variantJSON) error {
	slog.Info("upserting variants", slog.Int("count", len(variants)))

	for _, v := range variants {
		if err := repo.Upsert(ctx, product.Variant{
			ID:               v.ID,
			ProductID:        v.ProductID,
			Name:             v.Name,
			SKU:              v.SKU,
			Price:            v.Price,
			PriceIncludesTax: v.PriceIncludesTax,
			TaxCategoryID:    v.TaxCategoryID,
			Enabled:          v.Enabled,
			TrackInventory:   v.TrackInventory,
			StockOnHand:      v.StockOnHand,
		}); err != nil {
			return errors.Wrapf(err, "upsert variant %s", v.ID)
		}
	}
	return nil
}

func seedPromotions(ctx context.Context, rules *postgres.PromotionRepository, coupons *postgres.CouponRepository, catalog *catalogJSON) error {
	for _, r := range catalog.Promotions {
		if err := rules.Upsert(ctx, r.rule()); err != nil {
			return errors.Wrapf(err, "upsert promotion %s", r.ID)
		}
		slog.Info("upserted promotion", slog.String("id", r.ID), slog.String("name", r.Name))
	}

	batch := make([]promotion.Coupon, 0, len(catalog.Coupons))
	for _, c := range catalog.Coupons {
		batch = append(batch, promotion.Coupon{
			Code:        c.Code,
			PromotionID: c.PromotionID,
			MaxUses:     c.MaxUses,
			ValidFrom:   c.ValidFrom,
			ValidUntil:  c.ValidUntil,
		})
	}
	if err := coupons.UpsertBatch(ctx, batch); err != nil {
		return errors.Wrap(err, "upsert coupons")
	}
	slog.Info("upserted coupons", slog.Int("count", len(batch)))
	return nil
}

func seedShipping(ctx context.Context, repo *postgres.ShippingMethodRepository, methods []shippingJSON) error {
	for _, m := range methods {
		if err := repo.Upsert(ctx, shipping.FlatRateConfig{
			ID:               m.ID,
			Code:             m.Code,
			Name:             m.Name,
			Price:            m.Price,
			PriceIncludesTax: m.PriceIncludesTax,
			TaxRate:          m.TaxRate,
			Countries:        m.Countries,
		}); err != nil {
			return errors.Wrapf(err, "upsert shipping method %s", m.ID)
		}
		slog.Info("upserted shipping method", slog.String("id", m.ID), slog.Int64("price", m.Price))
	}
	return nil
}
