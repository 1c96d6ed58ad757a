// Package pricing recomputes order economics from canonical catalog data.
// Everything money-related the client sends is discarded; only product ids,
// variant ids and quantities survive into the quote.
package pricing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lojinha/checkout/internal/orders"
)

type Catalog interface {
	ResolveItem(ctx context.Context, productID, variantID string) (orders.CatalogItem, error)
}

type Coupons interface {
	CouponByCode(ctx context.Context, brandID, code string) (orders.Coupon, error)
}

type Service struct {
	Catalog Catalog
	Coupons Coupons
}

type ItemInput struct {
	ProductID string
	VariantID string
	Qty       int
}

type Input struct {
	Items         []ItemInput
	CouponCode    string
	ShippingCents int64
}

type Quote struct {
	Items         []orders.LineItem
	SubtotalCents int64
	DiscountCents int64
	ShippingCents int64
	TotalCents    int64
	// CouponCode is set only when the coupon actually applied.
	CouponCode string
	// IgnoredCoupon carries a code that was submitted but skipped (invalid,
	// expired, exhausted or below minimum purchase). Checkout proceeds.
	IgnoredCoupon string
}

// Recalculate prices the cart against the catalog and applies brand rules.
func (s *Service) Recalculate(ctx context.Context, brand orders.Brand, in Input) (Quote, error) {
	var q Quote
	for _, it := range in.Items {
		ci, err := s.Catalog.ResolveItem(ctx, it.ProductID, it.VariantID)
		if err != nil {
			return Quote{}, err
		}
		if !ci.Active {
			return Quote{}, &orders.InvalidItemError{ProductID: it.ProductID, VariantID: it.VariantID, Reason: "inactive"}
		}
		if ci.BrandID != brand.ID {
			return Quote{}, &orders.BrandMismatchError{ProductID: it.ProductID, BrandID: brand.ID}
		}
		q.Items = append(q.Items, orders.LineItem{
			ProductID:      ci.ProductID,
			VariantID:      ci.VariantID,
			Name:           ci.Name,
			UnitPriceCents: ci.PriceCents,
			Qty:            it.Qty,
		})
		q.SubtotalCents += ci.PriceCents * int64(it.Qty)
	}

	if brand.MinOrderCents > 0 && q.SubtotalCents < brand.MinOrderCents {
		return Quote{}, &orders.BelowMinimumOrderError{MinimumCents: brand.MinOrderCents, SubtotalCents: q.SubtotalCents}
	}

	if in.CouponCode != "" {
		discount, applied := s.couponDiscount(ctx, brand.ID, in.CouponCode, q.SubtotalCents)
		if applied {
			q.DiscountCents = discount
			q.CouponCode = in.CouponCode
		} else {
			q.IgnoredCoupon = in.CouponCode
		}
	}

	q.ShippingCents = in.ShippingCents
	if brand.FreeShippingThresholdCents > 0 && q.SubtotalCents >= brand.FreeShippingThresholdCents {
		q.ShippingCents = 0
	}

	q.TotalCents = q.SubtotalCents - q.DiscountCents + q.ShippingCents
	return q, nil
}

// couponDiscount returns (0, false) for any coupon that cannot apply. A bad
// coupon never blocks checkout; it is simply ignored.
func (s *Service) couponDiscount(ctx context.Context, brandID, code string, subtotalCents int64) (int64, bool) {
	c, err := s.Coupons.CouponByCode(ctx, brandID, code)
	if err != nil {
		// unknown code and storage trouble both degrade to "no discount"
		return 0, false
	}
	now := time.Now()
	switch {
	case !c.Active,
		now.Before(c.ValidFrom),
		now.After(c.ValidUntil),
		c.UsageLimit > 0 && c.UsageCount >= c.UsageLimit,
		c.MinPurchaseCents > 0 && subtotalCents < c.MinPurchaseCents:
		return 0, false
	}

	var discount int64
	switch c.DiscountType {
	case "percentage":
		d := decimal.NewFromInt(subtotalCents).
			Mul(decimal.NewFromFloat(c.Percent)).
			Div(decimal.NewFromInt(100)).
			Round(0)
		discount = d.IntPart()
	case "flat":
		discount = c.ValueCents
	default:
		return 0, false
	}

	if c.MaxDiscountCents > 0 && discount > c.MaxDiscountCents {
		discount = c.MaxDiscountCents
	}
	if discount > subtotalCents {
		discount = subtotalCents
	}
	return discount, true
}
