package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/floorkit/scanpos/internal/domain/coupon"
)

const (
	getCouponByCodeSQL = `SELECT code, discount_type, amount, description, product_ids,
		product_categories, excluded_product_ids, excluded_product_categories,
		expires_at, usage_limit, usage_count
	FROM coupons WHERE code = $1 AND active`

	incrementCouponUsageSQL = `UPDATE coupons SET usage_count = usage_count + 1 WHERE code = $1`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up an active coupon. Codes are case-insensitive and
// normalized to lower case on lookup.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	rows, err := r.pool.Query(ctx, getCouponByCodeSQL, strings.ToLower(code))
	if err != nil {
		return nil, fmt.Errorf("finding coupon %q: %w", code, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon %q: %w", code, err)
	}
	return &c, nil
}

// IncrementUsage records one application of the coupon.
func (r *CouponRepository) IncrementUsage(ctx context.Context, code string) error {
	tag, err := r.pool.Exec(ctx, incrementCouponUsageSQL, strings.ToLower(code))
	if err != nil {
		return fmt.Errorf("incrementing usage for coupon %q: %w", code, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c            coupon.Coupon
		discountType string
	)
	err := row.Scan(
		&c.Code, &discountType, &c.Amount, &c.Description, &c.ProductIDs,
		&c.ProductCategories, &c.ExcludedProductIDs, &c.ExcludedCategories,
		&c.ExpiresAt, &c.UsageLimit, &c.UsageCount,
	)
	c.DiscountType = coupon.DiscountType(discountType)
	return c, err
}
