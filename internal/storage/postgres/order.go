package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/orderflow/internal/domain/order"
)

const (
	getOrderSQL = `SELECT id, code, state, active, customer_id, tax_zone_id,
		sub_total, sub_total_with_tax, shipping, shipping_with_tax, total, total_with_tax,
		document, placed_at, created_at, updated_at
		FROM orders WHERE id = $1`

	getOrderItemsSQL = `SELECT id, line_id, list_price, list_price_includes_tax, cancelled,
		fulfillment_id, adjustments, tax_lines
		FROM order_items WHERE order_id = $1 ORDER BY line_id, position`

	upsertOrderSQL = `INSERT INTO orders (id, code, state, active, customer_id, tax_zone_id,
		sub_total, sub_total_with_tax, shipping, shipping_with_tax, total, total_with_tax,
		document, placed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			active = EXCLUDED.active,
			customer_id = EXCLUDED.customer_id,
			tax_zone_id = EXCLUDED.tax_zone_id,
			sub_total = EXCLUDED.sub_total,
			sub_total_with_tax = EXCLUDED.sub_total_with_tax,
			shipping = EXCLUDED.shipping,
			shipping_with_tax = EXCLUDED.shipping_with_tax,
			total = EXCLUDED.total,
			total_with_tax = EXCLUDED.total_with_tax,
			document = EXCLUDED.document,
			placed_at = EXCLUDED.placed_at,
			updated_at = EXCLUDED.updated_at`

	itemColumns = `id, order_id, line_id, position, list_price, list_price_includes_tax,
		cancelled, fulfillment_id, adjustments, tax_lines`

	upsertItemSQL = `INSERT INTO order_items (` + itemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			line_id = EXCLUDED.line_id,
			position = EXCLUDED.position,
			list_price = EXCLUDED.list_price,
			list_price_includes_tax = EXCLUDED.list_price_includes_tax,
			cancelled = EXCLUDED.cancelled,
			fulfillment_id = EXCLUDED.fulfillment_id,
			adjustments = EXCLUDED.adjustments,
			tax_lines = EXCLUDED.tax_lines`

	insertItemSQL = `INSERT INTO order_items (` + itemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`

	deleteStaleItemsSQL = `DELETE FROM order_items WHERE order_id = $1 AND NOT (id = ANY($2))`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. The
// header lives in columns, items in their own rows and everything else in
// a JSONB document.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Get loads an order with its items.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	rows, err = r.pool.Query(ctx, getOrderItemsSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting items of order %q: %w", id, err)
	}
	items, err := pgx.CollectRows(rows, scanItem)
	if err != nil {
		return nil, fmt.Errorf("getting items of order %q: %w", id, err)
	}

	lines := make(map[string]*order.OrderLine, len(o.Lines))
	for _, l := range o.Lines {
		lines[l.ID] = l
	}
	for _, it := range items {
		l, ok := lines[it.lineID]
		if !ok {
			return nil, errors.Errorf("order %s: item %s references unknown line %s", id, it.item.ID, it.lineID)
		}
		l.Items = append(l.Items, it.item)
	}
	return o, nil
}

// Save writes the order header and document, upserts the changed items,
// inserts items that were never stored and deletes items no longer on the
// order. All of it happens in one transaction.
func (r *OrderRepository) Save(ctx context.Context, o *order.Order, changed []*order.OrderItem) error {
	dirty := make(map[*order.OrderItem]struct{}, len(changed))
	for _, item := range changed {
		dirty[item] = struct{}{}
	}

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsertOrderSQL,
			o.ID, o.Code, string(o.State), o.Active, o.CustomerID, o.TaxZoneID,
			o.SubTotal, o.SubTotalWithTax, o.Shipping, o.ShippingWithTax, o.Total, o.TotalWithTax,
			marshalDocument(o), o.PlacedAt, o.CreatedAt, o.UpdatedAt,
		); err != nil {
			return errors.Wrap(err, "upsert order")
		}

		batch := &pgx.Batch{}
		ids := make([]string, 0, len(o.Lines))
		for _, line := range o.Lines {
			for pos, item := range line.Items {
				ids = append(ids, item.ID)
				query := insertItemSQL
				if _, ok := dirty[item]; ok {
					query = upsertItemSQL
				}
				batch.Queue(query,
					item.ID, o.ID, line.ID, int32(pos), item.ListPrice, item.ListPriceIncludesTax,
					item.Cancelled, item.FulfillmentID,
					marshalAdjustments(item.Adjustments), marshalTaxLines(item.TaxLines),
				)
			}
		}
		batch.Queue(deleteStaleItemsSQL, o.ID, ids)
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return errors.Wrap(err, "write items")
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving order %q: %w", o.ID, err)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (*order.Order, error) {
	var (
		o        order.Order
		state    string
		document []byte
		placedAt *time.Time
	)
	if err := row.Scan(
		&o.ID, &o.Code, &state, &o.Active, &o.CustomerID, &o.TaxZoneID,
		&o.SubTotal, &o.SubTotalWithTax, &o.Shipping, &o.ShippingWithTax, &o.Total, &o.TotalWithTax,
		&document, &placedAt, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, err
	}
	o.State = order.State(state)
	o.PlacedAt = placedAt
	if err := unmarshalDocument(document, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

type storedItem struct {
	lineID string
	item   *order.OrderItem
}

func scanItem(row pgx.CollectableRow) (storedItem, error) {
	var (
		it                    = storedItem{item: &order.OrderItem{}}
		adjustments, taxLines []byte
	)
	if err := row.Scan(
		&it.item.ID, &it.lineID, &it.item.ListPrice, &it.item.ListPriceIncludesTax,
		&it.item.Cancelled, &it.item.FulfillmentID, &adjustments, &taxLines,
	); err != nil {
		return it, err
	}

	var err error
	if it.item.Adjustments, err = decodeAdjustments(jx.DecodeBytes(adjustments)); err != nil {
		return it, errors.Wrapf(err, "item %s adjustments", it.item.ID)
	}
	if it.item.TaxLines, err = decodeTaxLines(jx.DecodeBytes(taxLines)); err != nil {
		return it, errors.Wrapf(err, "item %s tax lines", it.item.ID)
	}
	return it, nil
}
