package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lojinha/checkout/internal/orders"
)

type fakeCatalog map[string]orders.CatalogItem

func (f fakeCatalog) ResolveItem(_ context.Context, productID, variantID string) (orders.CatalogItem, error) {
	key := productID
	if variantID != "" {
		key = productID + "/" + variantID
	}
	it, ok := f[key]
	if !ok {
		return orders.CatalogItem{}, &orders.InvalidItemError{ProductID: productID, VariantID: variantID, Reason: "not found"}
	}
	return it, nil
}

type fakeCoupons map[string]orders.Coupon

func (f fakeCoupons) CouponByCode(_ context.Context, brandID, code string) (orders.Coupon, error) {
	c, ok := f[code]
	if !ok || c.BrandID != brandID {
		return orders.Coupon{}, orders.ErrCouponNotFound
	}
	return c, nil
}

var brand = orders.Brand{ID: "brand-1", Name: "Loja", FreeShippingThresholdCents: 30000, Active: true}

func validCoupon() orders.Coupon {
	return orders.Coupon{
		Code:             "DEZ10",
		BrandID:          "brand-1",
		DiscountType:     "percentage",
		Percent:          10,
		MaxDiscountCents: 500,
		ValidFrom:        time.Now().Add(-time.Hour),
		ValidUntil:       time.Now().Add(time.Hour),
		UsageLimit:       100,
		Active:           true,
	}
}

func newService(coupons fakeCoupons) *Service {
	return &Service{
		Catalog: fakeCatalog{
			"p1":    {ProductID: "p1", BrandID: "brand-1", Name: "Camiseta", PriceCents: 5000, Stock: 10, Active: true},
			"p2":    {ProductID: "p2", BrandID: "brand-1", Name: "Bone", PriceCents: 2500, Stock: 10, Active: true},
			"p3":    {ProductID: "p3", BrandID: "brand-2", Name: "Outra", PriceCents: 1000, Stock: 10, Active: true},
			"p4":    {ProductID: "p4", BrandID: "brand-1", Name: "Inativo", PriceCents: 1000, Stock: 10, Active: false},
			"p1/v1": {ProductID: "p1", VariantID: "v1", BrandID: "brand-1", Name: "Camiseta - G", PriceCents: 5500, Stock: 3, Active: true},
		},
		Coupons: coupons,
	}
}

func TestRecalculateSubtotalFromCatalogOnly(t *testing.T) {
	s := newService(fakeCoupons{})
	q, err := s.Recalculate(context.Background(), brand, Input{
		Items:         []ItemInput{{ProductID: "p1", Qty: 2}, {ProductID: "p2", Qty: 1}},
		ShippingCents: 2000,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12500), q.SubtotalCents)
	assert.Equal(t, int64(14500), q.TotalCents)
	require.Len(t, q.Items, 2)
	assert.Equal(t, int64(5000), q.Items[0].UnitPriceCents)
}

func TestRecalculateVariantPrice(t *testing.T) {
	s := newService(fakeCoupons{})
	q, err := s.Recalculate(context.Background(), brand, Input{
		Items: []ItemInput{{ProductID: "p1", VariantID: "v1", Qty: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5500), q.SubtotalCents)
}

// R$100 subtotal, 10% coupon capped at R$5, R$20 shipping, free-shipping
// threshold not met: 100 - 5 + 20 = R$115.
func TestRecalculateCouponCapScenario(t *testing.T) {
	s := newService(fakeCoupons{"DEZ10": validCoupon()})
	q, err := s.Recalculate(context.Background(), brand, Input{
		Items:         []ItemInput{{ProductID: "p1", Qty: 2}}, // 100.00
		CouponCode:    "DEZ10",
		ShippingCents: 2000,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(10000), q.SubtotalCents)
	assert.Equal(t, int64(500), q.DiscountCents)
	assert.Equal(t, int64(2000), q.ShippingCents)
	assert.Equal(t, int64(11500), q.TotalCents)
	assert.Equal(t, "DEZ10", q.CouponCode)
}

func TestRecalculateFlatCouponNeverExceedsSubtotal(t *testing.T) {
	c := validCoupon()
	c.DiscountType = "flat"
	c.ValueCents = 999999
	c.MaxDiscountCents = 0
	s := newService(fakeCoupons{"DEZ10": c})
	q, err := s.Recalculate(context.Background(), brand, Input{
		Items:      []ItemInput{{ProductID: "p2", Qty: 1}},
		CouponCode: "DEZ10",
	})
	require.NoError(t, err)
	assert.Equal(t, q.SubtotalCents, q.DiscountCents)
	assert.Equal(t, int64(0), q.TotalCents)
}

func TestRecalculateInvalidCouponsSilentlyIgnored(t *testing.T) {
	expired := validCoupon()
	expired.ValidUntil = time.Now().Add(-time.Minute)
	exhausted := validCoupon()
	exhausted.UsageLimit = 5
	exhausted.UsageCount = 5
	inactive := validCoupon()
	inactive.Active = false
	belowMin := validCoupon()
	belowMin.MinPurchaseCents = 99999

	for name, coupons := range map[string]fakeCoupons{
		"unknown":   {},
		"expired":   {"DEZ10": expired},
		"exhausted": {"DEZ10": exhausted},
		"inactive":  {"DEZ10": inactive},
		"below_min": {"DEZ10": belowMin},
	} {
		t.Run(name, func(t *testing.T) {
			s := newService(coupons)
			q, err := s.Recalculate(context.Background(), brand, Input{
				Items:      []ItemInput{{ProductID: "p1", Qty: 1}},
				CouponCode: "DEZ10",
			})
			require.NoError(t, err, "coupon problems must not block checkout")
			assert.Equal(t, int64(0), q.DiscountCents)
			assert.Empty(t, q.CouponCode)
			assert.Equal(t, "DEZ10", q.IgnoredCoupon)
		})
	}
}

func TestRecalculateFreeShippingThreshold(t *testing.T) {
	s := newService(fakeCoupons{})
	q, err := s.Recalculate(context.Background(), brand, Input{
		Items:         []ItemInput{{ProductID: "p1", Qty: 6}}, // 300.00 crosses threshold
		ShippingCents: 2000,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), q.ShippingCents)
	assert.Equal(t, int64(30000), q.TotalCents)
}

func TestRecalculateErrors(t *testing.T) {
	s := newService(fakeCoupons{})

	_, err := s.Recalculate(context.Background(), brand, Input{Items: []ItemInput{{ProductID: "nope", Qty: 1}}})
	var invalid *orders.InvalidItemError
	assert.ErrorAs(t, err, &invalid)

	_, err = s.Recalculate(context.Background(), brand, Input{Items: []ItemInput{{ProductID: "p4", Qty: 1}}})
	assert.ErrorAs(t, err, &invalid)

	_, err = s.Recalculate(context.Background(), brand, Input{Items: []ItemInput{{ProductID: "p3", Qty: 1}}})
	var mismatch *orders.BrandMismatchError
	assert.ErrorAs(t, err, &mismatch)

	strict := brand
	strict.MinOrderCents = 10000
	_, err = s.Recalculate(context.Background(), strict, Input{Items: []ItemInput{{ProductID: "p2", Qty: 1}}})
	var below *orders.BelowMinimumOrderError
	assert.ErrorAs(t, err, &below)
}
