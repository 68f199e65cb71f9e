package product

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// StockStatus enumerates the catalog stock states.
type StockStatus string

const (
	StockInStock     StockStatus = "instock"
	StockOutOfStock  StockStatus = "outofstock"
	StockOnBackorder StockStatus = "onbackorder"
)

// Verification states for on-the-floor tracking.
const (
	VerifiedOnFloor    = "on-the-floor"
	VerifiedNotOnFloor = "not-on-the-floor"
)

// Product is the full catalog projection used by the scanner screens.
type Product struct {
	ID            int64
	SKU           string
	LegacySKU     string
	Name          string
	RegularPrice  decimal.Decimal
	SalePrice     *decimal.Decimal
	StockStatus   StockStatus
	StockQuantity int
	ManageStock   bool
	CategoryIDs   []int64
	Status        string
	ConsignorID   *int64
	ImageURL      string
	Verified      string
	UpdatedAt     time.Time
}

// EffectivePrice returns the sale price when set, otherwise the regular price.
func (p *Product) EffectivePrice() decimal.Decimal {
	if p.SalePrice != nil {
		return *p.SalePrice
	}
	return p.RegularPrice
}

// FieldUpdate carries a partial product edit. Nil fields are left untouched.
// ClearSale removes the sale price when SalePrice is nil.
type FieldUpdate struct {
	Name          *string
	RegularPrice  *decimal.Decimal
	SalePrice     *decimal.Decimal
	ClearSale     bool
	StockStatus   *StockStatus
	StockQuantity *int
	ManageStock   *bool
	CategoryIDs   []int64
	Status        *string
}

// Repository defines the catalog operations needed by the scanner flows.
type Repository interface {
	// FindBySKU resolves a scanned identifier to a product: primary SKU
	// first, legacy SKU as fallback. Returns ErrNotFound when neither matches.
	FindBySKU(ctx context.Context, term string) (*Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Product, error)
	Update(ctx context.Context, id int64, fields FieldUpdate) error
	SetVerified(ctx context.Context, id int64, verified string) error
	// ListSKUs returns every primary and legacy SKU in the catalog, used to
	// warm the lookup prefilter.
	ListSKUs(ctx context.Context) ([]string, error)
}
