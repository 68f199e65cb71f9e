package coupon

import (
	"slices"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Item is a cart line viewed by the discount calculation. Custom and Backlog
// lines have no product reference; their eligibility is decided by flags
// rather than the coupon's product restrictions.
type Item struct {
	ProductID        int64
	UnitPrice        decimal.Decimal
	Quantity         int
	CategoryIDs      []int64
	Custom           bool
	Backlog          bool
	DiscountEligible bool
}

func (it Item) lineTotal() decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// Result holds the outcome of a discount calculation.
type Result struct {
	Subtotal         decimal.Decimal
	EligibleSubtotal decimal.Decimal
	Discount         decimal.Decimal
	Total            decimal.Decimal
}

// Eligible reports whether the item can receive the coupon's discount.
//
// Backlog items are always eligible; custom items only when explicitly
// flagged. For regular items the exclusion lists win over everything, then a
// non-empty product list restricts by membership, then a non-empty category
// list restricts by overlap, and an unrestricted coupon applies to all.
func Eligible(item Item, c *Coupon) bool {
	if item.Backlog {
		return true
	}
	if item.Custom {
		return item.DiscountEligible
	}

	if slices.Contains(c.ExcludedProductIDs, item.ProductID) {
		return false
	}
	for _, cat := range item.CategoryIDs {
		if slices.Contains(c.ExcludedCategories, cat) {
			return false
		}
	}

	if len(c.ProductIDs) > 0 {
		return slices.Contains(c.ProductIDs, item.ProductID)
	}

	if len(c.ProductCategories) > 0 {
		for _, cat := range item.CategoryIDs {
			if slices.Contains(c.ProductCategories, cat) {
				return true
			}
		}
		return false
	}

	return true
}

// ComputeDiscount calculates the cart totals for an optional coupon. It is a
// pure function: the client cart view and the server-side checkout recompute
// must agree exactly on the same inputs. A nil coupon yields a zero discount.
func ComputeDiscount(items []Item, c *Coupon) Result {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.lineTotal())
	}

	if c == nil {
		return Result{Subtotal: subtotal, Total: subtotal}
	}

	eligible := decimal.Zero
	for _, it := range items {
		if Eligible(it, c) {
			eligible = eligible.Add(it.lineTotal())
		}
	}

	var discount decimal.Decimal
	switch c.DiscountType {
	case DiscountPercent:
		discount = eligible.Mul(c.Amount).Div(hundred)
	case DiscountFixedCart:
		discount = c.Amount
	}

	// Never discount more than the eligible subtotal.
	discount = decimal.Min(discount, eligible)
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	discount = discount.Round(2)

	return Result{
		Subtotal:         subtotal,
		EligibleSubtotal: eligible,
		Discount:         discount,
		Total:            subtotal.Sub(discount),
	}
}
