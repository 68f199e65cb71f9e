package cart

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floorkit/scanpos/internal/domain/coupon"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testProduct(id int64, sku string, price string) ProductData {
	return ProductData{ID: id, SKU: sku, Name: "Product " + sku, UnitPrice: dec(price)}
}

func TestAdd_PrependsNewItems(t *testing.T) {
	c := New()
	c.Add(testProduct(1, "A-1", "10.00"))
	c.Add(testProduct(2, "A-2", "20.00"))

	items := c.Items()
	require.Len(t, items, 2)
	assert.Equal(t, int64(2), items[0].ProductID, "newest first")
	assert.Equal(t, int64(1), items[1].ProductID)
}

func TestAdd_RepeatScanMergesAndMovesToFront(t *testing.T) {
	c := New()
	c.Add(testProduct(1, "A-1", "10.00"))
	c.Add(testProduct(2, "A-2", "20.00"))
	c.Add(testProduct(1, "A-1", "10.00"))

	items := c.Items()
	require.Len(t, items, 2)
	assert.Equal(t, int64(1), items[0].ProductID)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, int64(2), items[1].ProductID)
}

func TestAddCustom_NeverMerges(t *testing.T) {
	c := New()
	c.AddCustom("Repair fee", dec("15.00"), false)
	c.AddCustom("Repair fee", dec("15.00"), false)

	require.Equal(t, 2, c.Len())
	assert.NotEqual(t, c.Items()[0].LocalID, c.Items()[1].LocalID)
}

func TestAddBacklog_AlwaysDiscountEligible(t *testing.T) {
	c := New()
	it := c.AddBacklog(42, "Backlog item", dec("30.00"))

	assert.Equal(t, KindBacklog, it.Kind)
	assert.True(t, it.DiscountEligible)
	assert.Equal(t, int64(42), it.ConsignorID)
}

func TestRemove(t *testing.T) {
	c := New()
	it := c.Add(testProduct(1, "A-1", "10.00"))

	require.NoError(t, c.Remove(it.LocalID))
	assert.Zero(t, c.Len())

	assert.ErrorIs(t, c.Remove(999), ErrLineNotFound)
}

func TestSetQuantity_ClampsToOne(t *testing.T) {
	c := New()
	it := c.Add(testProduct(1, "A-1", "10.00"))

	require.NoError(t, c.SetQuantity(it.LocalID, 0))
	assert.Equal(t, 1, c.Items()[0].Quantity)

	require.NoError(t, c.SetQuantity(it.LocalID, 3))
	assert.Equal(t, 3, c.Items()[0].Quantity)

	assert.ErrorIs(t, c.SetQuantity(999, 2), ErrLineNotFound)
}

func TestTotals_WithCoupon(t *testing.T) {
	c := New()
	c.Add(testProduct(1, "A-1", "10.00"))
	require.NoError(t, c.SetQuantity(c.Items()[0].LocalID, 2))
	c.AddCustom("Gift wrap", dec("5.00"), false)
	c.ApplyCoupon(&coupon.Coupon{Code: "ten", DiscountType: coupon.DiscountPercent, Amount: dec("10")})

	res := c.Totals()

	assert.True(t, res.Subtotal.Equal(dec("25.00")), "subtotal %s", res.Subtotal)
	assert.True(t, res.EligibleSubtotal.Equal(dec("20.00")), "eligible %s", res.EligibleSubtotal)
	assert.True(t, res.Discount.Equal(dec("2.00")), "discount %s", res.Discount)
	assert.True(t, res.Total.Equal(dec("23.00")), "total %s", res.Total)
}

func TestTotals_Idempotent(t *testing.T) {
	c := New()
	c.Add(testProduct(1, "A-1", "19.99"))
	c.ApplyCoupon(&coupon.Coupon{Code: "x", DiscountType: coupon.DiscountFixedCart, Amount: dec("5")})

	first := c.Totals()
	second := c.Totals()

	assert.True(t, first.Total.Equal(second.Total))
	assert.True(t, first.Discount.Equal(second.Discount))
}

func TestClear(t *testing.T) {
	c := New()
	c.Add(testProduct(1, "A-1", "10.00"))
	c.ApplyCoupon(&coupon.Coupon{Code: "x"})

	c.Clear()

	assert.Zero(t, c.Len())
	assert.Nil(t, c.Coupon())
}
