package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Status is an order's lifecycle state. Orders are always persisted as
// Pending first; the finalizer moves them to their target status out of band.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// LineKind separates catalog product lines from fee lines.
type LineKind string

const (
	LineProduct LineKind = "product"
	LineFee     LineKind = "fee"
)

// FeeKind records why a fee line exists.
type FeeKind string

const (
	FeeCustom  FeeKind = "custom"
	FeeBacklog FeeKind = "backlog"
)

// Line is a persisted order line. Product lines reference the catalog;
// fee lines carry custom and backlog amounts and are not taxable. LineTotal
// is the amount captured at checkout and is never recomputed from the
// catalog afterwards.
type Line struct {
	ID          int64
	Kind        LineKind
	ProductID   int64
	SKU         string
	Name        string
	UnitPrice   decimal.Decimal
	Quantity    int
	LineTotal   decimal.Decimal
	FeeKind     FeeKind
	ConsignorID int64
}

// Order is a persisted POS order.
type Order struct {
	ID                int64
	Number            string
	Status            Status
	CustomerID        int64
	BillingEmail      string
	BillingFirstName  string
	BillingLastName   string
	ShippingFirstName string
	ShippingLastName  string
	Notes             string
	CouponCode        string
	DiscountTotal     decimal.Decimal
	Total             decimal.Decimal
	Lines             []Line
	CreatedAt         time.Time
}

// Summary is the compact order view returned by product-history lookups.
type Summary struct {
	ID           int64
	Number       string
	Status       Status
	CustomerName string
	BillingEmail string
	ItemCount    int
	Total        decimal.Decimal
	CreatedAt    time.Time
}

// Repository defines order persistence.
type Repository interface {
	// Create persists the order and its lines transactionally, filling in
	// the generated ID and order number.
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id int64) (*Order, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
	// LatestForProduct returns the most recent order containing the product,
	// or nil when the product was never sold.
	LatestForProduct(ctx context.Context, productID int64) (*Summary, error)
}
