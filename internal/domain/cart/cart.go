package cart

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/floorkit/scanpos/internal/domain/coupon"
)

// ErrLineNotFound is returned when a local line ID is not present in the cart.
var ErrLineNotFound = errors.New("cart line not found")

// Kind distinguishes the three line item flavours.
type Kind string

const (
	KindRegular Kind = "regular"
	KindCustom  Kind = "custom"
	KindBacklog Kind = "backlog"
)

// LineItem is a single entry in a POS cart. LocalID is a cart-scoped sequence
// used by the operator UI to address lines; it has no meaning outside the cart.
type LineItem struct {
	LocalID          int64
	Kind             Kind
	ProductID        int64
	SKU              string
	Name             string
	UnitPrice        decimal.Decimal
	Quantity         int
	CategoryIDs      []int64
	ImageURL         string
	DiscountEligible bool
	ConsignorID      int64
}

// ProductData is the catalog projection needed to add a scanned product.
type ProductData struct {
	ID          int64
	SKU         string
	Name        string
	UnitPrice   decimal.Decimal
	CategoryIDs []int64
	ImageURL    string
}

// Cart is an ordered collection of line items, newest first. One operator
// drives one cart at a time, so Cart itself is not safe for concurrent use;
// the session store serialises access.
type Cart struct {
	items   []LineItem
	nextID  int64
	coupon  *coupon.Coupon
}

// New returns an empty cart.
func New() *Cart {
	return &Cart{}
}

// Items returns the cart lines, newest first. The returned slice must not be
// mutated by the caller.
func (c *Cart) Items() []LineItem {
	return c.items
}

// Len returns the number of lines in the cart.
func (c *Cart) Len() int {
	return len(c.items)
}

// Coupon returns the currently applied coupon, or nil.
func (c *Cart) Coupon() *coupon.Coupon {
	return c.coupon
}

// ApplyCoupon attaches a validated coupon to the cart. Passing nil removes it.
func (c *Cart) ApplyCoupon(cp *coupon.Coupon) {
	c.coupon = cp
}

// Add puts a regular product into the cart. A repeat scan of a product already
// present merges: the existing line's quantity is incremented and the line
// moves to the front. New products are prepended.
func (c *Cart) Add(p ProductData) LineItem {
	for i, it := range c.items {
		if it.Kind == KindRegular && it.ProductID == p.ID {
			it.Quantity++
			c.items = append(c.items[:i], c.items[i+1:]...)
			c.items = append([]LineItem{it}, c.items...)
			return it
		}
	}

	c.nextID++
	item := LineItem{
		LocalID:     c.nextID,
		Kind:        KindRegular,
		ProductID:   p.ID,
		SKU:         p.SKU,
		Name:        p.Name,
		UnitPrice:   p.UnitPrice,
		Quantity:    1,
		CategoryIDs: p.CategoryIDs,
		ImageURL:    p.ImageURL,
	}
	c.items = append([]LineItem{item}, c.items...)
	return item
}

// AddCustom prepends a manually keyed line item. Custom lines are never
// merged and receive the discount only when explicitly flagged eligible.
func (c *Cart) AddCustom(name string, amount decimal.Decimal, discountEligible bool) LineItem {
	c.nextID++
	item := LineItem{
		LocalID:          c.nextID,
		Kind:             KindCustom,
		Name:             name,
		UnitPrice:        amount,
		Quantity:         1,
		DiscountEligible: discountEligible,
	}
	c.items = append([]LineItem{item}, c.items...)
	return item
}

// AddBacklog prepends a consignor backlog line: inventory that exists
// physically but has no catalog record yet. Backlog lines are always
// discount eligible.
func (c *Cart) AddBacklog(consignorID int64, name string, amount decimal.Decimal) LineItem {
	c.nextID++
	item := LineItem{
		LocalID:          c.nextID,
		Kind:             KindBacklog,
		Name:             name,
		UnitPrice:        amount,
		Quantity:         1,
		DiscountEligible: true,
		ConsignorID:      consignorID,
	}
	c.items = append([]LineItem{item}, c.items...)
	return item
}

// Remove deletes the line with the given local ID.
func (c *Cart) Remove(localID int64) error {
	for i, it := range c.items {
		if it.LocalID == localID {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return nil
		}
	}
	return ErrLineNotFound
}

// SetQuantity updates a line's quantity, clamped to a minimum of 1.
func (c *Cart) SetQuantity(localID int64, qty int) error {
	if qty < 1 {
		qty = 1
	}
	for i := range c.items {
		if c.items[i].LocalID == localID {
			c.items[i].Quantity = qty
			return nil
		}
	}
	return ErrLineNotFound
}

// Clear empties the cart and removes any applied coupon.
func (c *Cart) Clear() {
	c.items = nil
	c.coupon = nil
}

// Totals recomputes the cart totals with the applied coupon. It is invoked
// after every mutation; the calculation is pure so repeated calls on the same
// state return identical results.
func (c *Cart) Totals() coupon.Result {
	return coupon.ComputeDiscount(c.DiscountItems(), c.coupon)
}

// DiscountItems projects the cart lines into the discount engine's item view.
func (c *Cart) DiscountItems() []coupon.Item {
	items := make([]coupon.Item, len(c.items))
	for i, it := range c.items {
		items[i] = coupon.Item{
			ProductID:        it.ProductID,
			UnitPrice:        it.UnitPrice,
			Quantity:         it.Quantity,
			CategoryIDs:      it.CategoryIDs,
			Custom:           it.Kind == KindCustom,
			Backlog:          it.Kind == KindBacklog,
			DiscountEligible: it.DiscountEligible,
		}
	}
	return items
}
