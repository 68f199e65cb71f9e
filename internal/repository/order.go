package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/floorkit/scanpos/internal/domain/audit"
	"github.com/floorkit/scanpos/internal/domain/order"
)

// ErrOrderNotFound is returned for lookups of orders that do not exist.
var ErrOrderNotFound = errors.New("order not found")

const (
	insertOrderSQL = `INSERT INTO orders (order_number, status, customer_id, billing_email,
		billing_first_name, billing_last_name, shipping_first_name, shipping_last_name,
		notes, coupon_code, discount_total, total)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	RETURNING id, created_at`

	setOrderNumberSQL = `UPDATE orders SET order_number = $2 WHERE id = $1`

	insertOrderLineSQL = `INSERT INTO order_lines (order_id, kind, product_id, sku, name,
		unit_price, quantity, line_total, fee_kind, consignor_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	RETURNING id`

	getOrderSQL = `SELECT id, order_number, status, COALESCE(customer_id, 0), billing_email,
		billing_first_name, billing_last_name, shipping_first_name, shipping_last_name,
		notes, coupon_code, discount_total, total, created_at
	FROM orders WHERE id = $1`

	getOrderLinesSQL = `SELECT id, kind, COALESCE(product_id, 0), sku, name, unit_price,
		quantity, line_total, COALESCE(fee_kind, ''), COALESCE(consignor_id, 0)
	FROM order_lines WHERE order_id = $1 ORDER BY id`

	updateOrderStatusSQL = `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`

	latestOrderForProductSQL = `SELECT o.id, o.order_number, o.status,
		trim(o.billing_first_name || ' ' || o.billing_last_name), o.billing_email,
		(SELECT COALESCE(SUM(quantity), 0) FROM order_lines WHERE order_id = o.id AND kind = 'product'),
		o.total, o.created_at
	FROM orders o
	JOIN order_lines ol ON ol.order_id = o.id
	WHERE ol.product_id = $1
	ORDER BY o.created_at DESC
	LIMIT 1`

	listOrdersSinceSQL = `SELECT o.id, o.created_at, COALESCE(o.customer_id, 0), o.billing_email,
		COALESCE(array_agg(ol.product_id) FILTER (WHERE ol.product_id IS NOT NULL), '{}')
	FROM orders o
	LEFT JOIN order_lines ol ON ol.order_id = o.id AND ol.kind = 'product'
	WHERE o.created_at >= $1
	GROUP BY o.id
	ORDER BY o.created_at`
)

var (
	_ order.Repository  = (*OrderRepository)(nil)
	_ audit.OrderSource = (*OrderRepository)(nil)
)

// OrderRepository implements order.Repository backed by PostgreSQL. It also
// serves as the linker's order source.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists the order and its lines in one transaction. The generated
// ID, order number, and creation time are written back into o.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning order tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	err = tx.QueryRow(ctx, insertOrderSQL,
		"", string(o.Status), nullIfZero(o.CustomerID), o.BillingEmail,
		o.BillingFirstName, o.BillingLastName, o.ShippingFirstName, o.ShippingLastName,
		o.Notes, o.CouponCode, o.DiscountTotal, o.Total,
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting order: %w", err)
	}

	o.Number = fmt.Sprintf("POS-%d", o.ID)
	if _, err := tx.Exec(ctx, setOrderNumberSQL, o.ID, o.Number); err != nil {
		return fmt.Errorf("setting order number: %w", err)
	}

	for i := range o.Lines {
		l := &o.Lines[i]
		err := tx.QueryRow(ctx, insertOrderLineSQL,
			o.ID, string(l.Kind), nullIfZero(l.ProductID), l.SKU, l.Name,
			l.UnitPrice, l.Quantity, l.LineTotal, nullIfEmpty(string(l.FeeKind)), nullIfZero(l.ConsignorID),
		).Scan(&l.ID)
		if err != nil {
			return fmt.Errorf("inserting order line %q: %w", l.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing order: %w", err)
	}
	return nil
}

// GetByID returns an order with its lines.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := r.pool.QueryRow(ctx, getOrderSQL, id).Scan(
		&o.ID, &o.Number, &status, &o.CustomerID, &o.BillingEmail,
		&o.BillingFirstName, &o.BillingLastName, &o.ShippingFirstName, &o.ShippingLastName,
		&o.Notes, &o.CouponCode, &o.DiscountTotal, &o.Total, &o.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}
	o.Status = order.Status(status)

	rows, err := r.pool.Query(ctx, getOrderLinesSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting lines for order %d: %w", id, err)
	}
	o.Lines, err = pgx.CollectRows(rows, scanOrderLine)
	if err != nil {
		return nil, fmt.Errorf("getting lines for order %d: %w", id, err)
	}
	return &o, nil
}

// UpdateStatus moves the order to a new lifecycle status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id int64, status order.Status) error {
	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL, id, string(status))
	if err != nil {
		return fmt.Errorf("updating status of order %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// LatestForProduct returns the most recent order that sold the product, or
// nil when it was never sold.
func (r *OrderRepository) LatestForProduct(ctx context.Context, productID int64) (*order.Summary, error) {
	var (
		s      order.Summary
		status string
	)
	err := r.pool.QueryRow(ctx, latestOrderForProductSQL, productID).Scan(
		&s.ID, &s.Number, &status, &s.CustomerName, &s.BillingEmail,
		&s.ItemCount, &s.Total, &s.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding latest order for product %d: %w", productID, err)
	}
	s.Status = order.Status(status)
	return &s, nil
}

// ListOrdersSince returns compact order views for the retroactive linker.
func (r *OrderRepository) ListOrdersSince(ctx context.Context, since time.Time) ([]audit.OrderInfo, error) {
	rows, err := r.pool.Query(ctx, listOrdersSinceSQL, since)
	if err != nil {
		return nil, fmt.Errorf("listing orders since %s: %w", since.Format(time.RFC3339), err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (audit.OrderInfo, error) {
		var info audit.OrderInfo
		err := row.Scan(&info.ID, &info.CreatedAt, &info.CustomerID, &info.BillingEmail, &info.ProductIDs)
		return info, err
	})
}

func scanOrderLine(row pgx.CollectableRow) (order.Line, error) {
	var (
		l       order.Line
		kind    string
		feeKind string
	)
	err := row.Scan(
		&l.ID, &kind, &l.ProductID, &l.SKU, &l.Name, &l.UnitPrice,
		&l.Quantity, &l.LineTotal, &feeKind, &l.ConsignorID,
	)
	l.Kind = order.LineKind(kind)
	l.FeeKind = order.FeeKind(feeKind)
	return l, err
}

func nullIfZero(v int64) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
