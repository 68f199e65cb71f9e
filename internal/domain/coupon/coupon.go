package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercent applies a percentage discount to the eligible subtotal.
	DiscountPercent DiscountType = "percent"
	// DiscountFixedCart applies a fixed monetary discount capped at the
	// eligible subtotal.
	DiscountFixedCart DiscountType = "fixed_cart"
)

var (
	// ErrNotFound is returned when a coupon code does not exist or is inactive.
	ErrNotFound = errors.New("invalid coupon code")
	// ErrExpired is returned when a coupon is past its expiry date.
	ErrExpired = errors.New("coupon has expired")
	// ErrUsageLimitReached is returned when a coupon has exhausted its allowed uses.
	ErrUsageLimitReached = errors.New("coupon has reached its usage limit")
)

// Coupon holds a discount rule together with its eligibility restrictions.
type Coupon struct {
	Code               string
	DiscountType       DiscountType
	Amount             decimal.Decimal
	Description        string
	ProductIDs         []int64
	ProductCategories  []int64
	ExcludedProductIDs []int64
	ExcludedCategories []int64
	ExpiresAt          *time.Time
	UsageLimit         int
	UsageCount         int
}

// Repository provides coupon lookup and usage accounting.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	IncrementUsage(ctx context.Context, code string) error
}
