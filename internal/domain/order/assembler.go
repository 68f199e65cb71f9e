package order

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/floorkit/scanpos/internal/domain/cart"
	"github.com/floorkit/scanpos/internal/domain/coupon"
	"github.com/floorkit/scanpos/internal/domain/customer"
	"github.com/floorkit/scanpos/internal/domain/product"
)

var (
	// ErrEmptyCart is returned when checkout is attempted with no line items.
	ErrEmptyCart = errors.New("no items provided for the order")
	// ErrNoResolvableItems is returned when every product line referenced a
	// product that no longer exists.
	ErrNoResolvableItems = errors.New("no order items could be resolved")
)

// AssembleRequest is a finalized cart snapshot plus checkout details. Line
// prices are the prices the operator saw on screen; they are authoritative.
type AssembleRequest struct {
	Lines         []cart.LineItem
	CouponCode    string
	CustomerEmail string
	CustomerName  string
	Notes         string
	TargetStatus  Status
}

// AssembleResult reports the persisted order plus what the caller needs for
// audit linking and operator feedback.
type AssembleResult struct {
	Order *Order
	// RegularProductIDs are the catalog products placed on the order, for
	// scan-to-order linking.
	RegularProductIDs []int64
	// OmittedSKUs lists product lines skipped because the product could not
	// be re-resolved at assembly time.
	OmittedSKUs []string
}

// Assembler converts finalized carts into persisted orders.
type Assembler struct {
	products  product.Repository
	customers customer.Repository
	coupons   coupon.Validator
	usage     coupon.Repository
	orders    Repository
	lg        *zap.Logger
}

// NewAssembler wires an Assembler with its collaborators.
func NewAssembler(
	products product.Repository,
	customers customer.Repository,
	coupons coupon.Validator,
	usage coupon.Repository,
	orders Repository,
	lg *zap.Logger,
) *Assembler {
	return &Assembler{
		products:  products,
		customers: customers,
		coupons:   coupons,
		usage:     usage,
		orders:    orders,
		lg:        lg,
	}
}

// Assemble validates and persists an order from a cart snapshot.
//
// Product lines are re-resolved only to confirm the product still exists; a
// missing product is skipped with a logged omission and the order proceeds.
// Unit prices always come from the snapshot, so the order total matches what
// the operator saw regardless of catalog edits in between. The coupon is
// revalidated here: expiry or usage exhaustion between cart build and
// checkout fails the whole order. The order is persisted in Pending status;
// the finalizer owns the transition to the target status.
func (a *Assembler) Assemble(ctx context.Context, req AssembleRequest) (*AssembleResult, error) {
	if len(req.Lines) == 0 {
		return nil, ErrEmptyCart
	}

	// Revalidate the coupon at persistence time, before any side effect.
	var cp *coupon.Coupon
	if req.CouponCode != "" {
		var err error
		cp, err = a.coupons.Validate(ctx, req.CouponCode)
		if err != nil {
			return nil, errors.Wrap(err, "coupon")
		}
	}

	kept, productIDs, omitted, err := a.buildLines(ctx, req.Lines)
	if err != nil {
		return nil, err
	}
	if len(kept) == 0 {
		return nil, ErrNoResolvableItems
	}

	o := &Order{
		Status: StatusPending,
		Notes:  req.Notes,
		Lines:  kept,
	}

	// Authoritative total: sum of the persisted line totals minus the
	// discount, never a recomputation from live catalog prices.
	items := discountItems(req.Lines, omitted)
	totals := coupon.ComputeDiscount(items, cp)
	sum := decimal.Zero
	for _, ln := range kept {
		sum = sum.Add(ln.LineTotal)
	}
	o.Total = sum.Sub(totals.Discount).Round(2)
	o.DiscountTotal = totals.Discount
	if cp != nil {
		o.CouponCode = cp.Code
	}

	a.applyCustomer(ctx, o, req)

	if err := a.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	if cp != nil {
		if err := a.usage.IncrementUsage(ctx, cp.Code); err != nil {
			// The order exists; usage accounting is best effort.
			a.lg.Error("increment coupon usage failed",
				zap.String("code", cp.Code),
				zap.Int64("order_id", o.ID),
				zap.Error(err),
			)
		}
	}

	return &AssembleResult{
		Order:             o,
		RegularProductIDs: productIDs,
		OmittedSKUs:       omitted,
	}, nil
}

// buildLines turns cart lines into order lines, dropping product lines whose
// catalog record has disappeared.
func (a *Assembler) buildLines(ctx context.Context, lines []cart.LineItem) (kept []Line, productIDs []int64, omittedSKUs []string, err error) {
	ids := make([]int64, 0, len(lines))
	for _, ln := range lines {
		if ln.Kind == cart.KindRegular {
			ids = append(ids, ln.ProductID)
		}
	}

	known := make(map[int64]bool, len(ids))
	if len(ids) > 0 {
		found, err := a.products.GetByIDs(ctx, ids)
		if err != nil {
			return nil, nil, nil, errors.Wrap(err, "resolve products")
		}
		for _, p := range found {
			known[p.ID] = true
		}
	}

	for _, ln := range lines {
		qty := decimal.NewFromInt(int64(ln.Quantity))
		total := ln.UnitPrice.Mul(qty).Round(2)

		switch ln.Kind {
		case cart.KindRegular:
			if !known[ln.ProductID] {
				a.lg.Warn("order line omitted, product not found",
					zap.Int64("product_id", ln.ProductID),
					zap.String("sku", ln.SKU),
				)
				omittedSKUs = append(omittedSKUs, ln.SKU)
				continue
			}
			kept = append(kept, Line{
				Kind:      LineProduct,
				ProductID: ln.ProductID,
				SKU:       ln.SKU,
				Name:      ln.Name,
				UnitPrice: ln.UnitPrice,
				Quantity:  ln.Quantity,
				LineTotal: total,
			})
			productIDs = append(productIDs, ln.ProductID)
		case cart.KindCustom, cart.KindBacklog:
			feeKind := FeeCustom
			if ln.Kind == cart.KindBacklog {
				feeKind = FeeBacklog
			}
			kept = append(kept, Line{
				Kind:        LineFee,
				Name:        ln.Name,
				UnitPrice:   ln.UnitPrice,
				Quantity:    ln.Quantity,
				LineTotal:   total,
				FeeKind:     feeKind,
				ConsignorID: ln.ConsignorID,
			})
		}
	}
	return kept, productIDs, omittedSKUs, nil
}

// applyCustomer resolves the customer by exact email match, attaching the
// registered customer when found and falling back to guest billing details.
// The name splits on the first whitespace into first/last for both billing
// and shipping.
func (a *Assembler) applyCustomer(ctx context.Context, o *Order, req AssembleRequest) {
	if email := strings.TrimSpace(req.CustomerEmail); email != "" {
		cust, err := a.customers.FindByEmail(ctx, email)
		switch {
		case err == nil:
			o.CustomerID = cust.ID
			o.BillingEmail = cust.Email
		case errors.Is(err, customer.ErrNotFound):
			o.BillingEmail = email
		default:
			a.lg.Warn("customer lookup failed, storing as guest",
				zap.String("email", email),
				zap.Error(err),
			)
			o.BillingEmail = email
		}
	}

	if name := strings.TrimSpace(req.CustomerName); name != "" {
		first, last := name, ""
		if i := strings.IndexAny(name, " \t"); i >= 0 {
			first, last = name[:i], strings.TrimSpace(name[i+1:])
		}
		o.BillingFirstName = first
		o.BillingLastName = last
		o.ShippingFirstName = first
		o.ShippingLastName = last
	}
}

// discountItems mirrors the cart's discount projection for the server-side
// recompute, excluding omitted product lines.
func discountItems(lines []cart.LineItem, omittedSKUs []string) []coupon.Item {
	omitted := make(map[string]bool, len(omittedSKUs))
	for _, sku := range omittedSKUs {
		omitted[sku] = true
	}

	items := make([]coupon.Item, 0, len(lines))
	for _, ln := range lines {
		if ln.Kind == cart.KindRegular && omitted[ln.SKU] {
			continue
		}
		items = append(items, coupon.Item{
			ProductID:        ln.ProductID,
			UnitPrice:        ln.UnitPrice,
			Quantity:         ln.Quantity,
			CategoryIDs:      ln.CategoryIDs,
			Custom:           ln.Kind == cart.KindCustom,
			Backlog:          ln.Kind == cart.KindBacklog,
			DiscountEligible: ln.DiscountEligible,
		})
	}
	return items
}
