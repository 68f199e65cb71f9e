package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/floorkit/scanpos/internal/domain/product"
)

const (
	productColumns = `id, sku, legacy_sku, name, regular_price, sale_price, stock_status,
		stock_quantity, manage_stock, category_ids, status, consignor_id, image_url, verified, updated_at`

	getProductBySKUSQL = `SELECT ` + productColumns + ` FROM products WHERE sku = $1`

	getProductByLegacySKUSQL = `SELECT ` + productColumns + ` FROM products
		WHERE legacy_sku = $1 AND legacy_sku <> '' LIMIT 1`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	setProductVerifiedSQL = `UPDATE products SET verified = $2, updated_at = now() WHERE id = $1`

	listProductSKUsSQL = `SELECT sku, legacy_sku FROM products`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// FindBySKU resolves a scanned identifier: primary SKU first, legacy SKU as
// fallback. Returns product.ErrNotFound when neither matches.
func (r *ProductRepository) FindBySKU(ctx context.Context, term string) (*product.Product, error) {
	p, err := r.queryOne(ctx, getProductBySKUSQL, term)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, product.ErrNotFound) {
		return nil, fmt.Errorf("finding product by sku %q: %w", term, err)
	}

	p, err = r.queryOne(ctx, getProductByLegacySKUSQL, term)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("finding product by legacy sku %q: %w", term, err)
	}
	return p, nil
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	p, err := r.queryOne(ctx, getProductByIDSQL, id)
	if err != nil {
		if errors.Is(err, product.ErrNotFound) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}
	return p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Update applies a partial field update. Unset fields keep their value.
func (r *ProductRepository) Update(ctx context.Context, id int64, fields product.FieldUpdate) error {
	sets := []string{"updated_at = now()"}
	args := []any{id}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if fields.Name != nil {
		sets = append(sets, "name = "+arg(*fields.Name))
	}
	if fields.RegularPrice != nil {
		sets = append(sets, "regular_price = "+arg(*fields.RegularPrice))
	}
	if fields.SalePrice != nil {
		sets = append(sets, "sale_price = "+arg(*fields.SalePrice))
	} else if fields.ClearSale {
		sets = append(sets, "sale_price = NULL")
	}
	if fields.StockStatus != nil {
		sets = append(sets, "stock_status = "+arg(string(*fields.StockStatus)))
	}
	if fields.StockQuantity != nil {
		sets = append(sets, "stock_quantity = "+arg(*fields.StockQuantity))
	}
	if fields.ManageStock != nil {
		sets = append(sets, "manage_stock = "+arg(*fields.ManageStock))
	}
	if fields.CategoryIDs != nil {
		sets = append(sets, "category_ids = "+arg(fields.CategoryIDs))
	}
	if fields.Status != nil {
		sets = append(sets, "status = "+arg(*fields.Status))
	}

	query := "UPDATE products SET " + strings.Join(sets, ", ") + " WHERE id = $1"
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating product %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// SetVerified updates the on-the-floor verification state.
func (r *ProductRepository) SetVerified(ctx context.Context, id int64, verified string) error {
	tag, err := r.pool.Exec(ctx, setProductVerifiedSQL, id, verified)
	if err != nil {
		return fmt.Errorf("setting verification for product %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return product.ErrNotFound
	}
	return nil
}

// ListSKUs returns all primary and legacy SKUs for prefilter warming.
func (r *ProductRepository) ListSKUs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, listProductSKUsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing skus: %w", err)
	}
	defer rows.Close()

	var skus []string
	for rows.Next() {
		var sku, legacy string
		if err := rows.Scan(&sku, &legacy); err != nil {
			return nil, err
		}
		skus = append(skus, sku)
		if legacy != "" {
			skus = append(skus, legacy)
		}
	}
	return skus, rows.Err()
}

func (r *ProductRepository) queryOne(ctx context.Context, sql string, arg any) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, err
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p           product.Product
		stockStatus string
	)
	err := row.Scan(
		&p.ID, &p.SKU, &p.LegacySKU, &p.Name, &p.RegularPrice, &p.SalePrice, &stockStatus,
		&p.StockQuantity, &p.ManageStock, &p.CategoryIDs, &p.Status, &p.ConsignorID,
		&p.ImageURL, &p.Verified, &p.UpdatedAt,
	)
	p.StockStatus = product.StockStatus(stockStatus)
	return p, err
}
