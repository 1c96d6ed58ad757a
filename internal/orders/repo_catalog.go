package orders

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

func (r *Repo) Brand(ctx context.Context, id string) (Brand, error) {
	var b Brand
	err := r.DB.QueryRow(ctx, `
		SELECT id, name, min_order_cents, free_shipping_threshold_cents, active
		FROM brands WHERE id=$1`, id).Scan(
		&b.ID, &b.Name, &b.MinOrderCents, &b.FreeShippingThresholdCents, &b.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return Brand{}, ErrBrandNotFound
	}
	return b, err
}

func (r *Repo) Customer(ctx context.Context, id string) (Customer, error) {
	var c Customer
	err := r.DB.QueryRow(ctx, `
		SELECT id, name, email, COALESCE(tax_id,''), COALESCE(phone,'')
		FROM customers WHERE id=$1`, id).Scan(&c.ID, &c.Name, &c.Email, &c.TaxID, &c.Phone)
	return c, err
}

// ResolveItem re-fetches the canonical price/stock for a product or variant.
// A variant inherits the product's brand and activity.
func (r *Repo) ResolveItem(ctx context.Context, productID, variantID string) (CatalogItem, error) {
	var it CatalogItem
	var err error
	if variantID != "" {
		err = r.DB.QueryRow(ctx, `
			SELECT p.id, v.id, p.brand_id, p.name || ' - ' || v.name,
			       v.price_cents, v.stock, (p.active AND v.active)
			FROM product_variants v
			JOIN products p ON p.id = v.product_id
			WHERE v.id=$1 AND v.product_id=$2`, variantID, productID).Scan(
			&it.ProductID, &it.VariantID, &it.BrandID, &it.Name, &it.PriceCents, &it.Stock, &it.Active)
	} else {
		err = r.DB.QueryRow(ctx, `
			SELECT id, '', brand_id, name, price_cents, stock, active
			FROM products WHERE id=$1`, productID).Scan(
			&it.ProductID, &it.VariantID, &it.BrandID, &it.Name, &it.PriceCents, &it.Stock, &it.Active)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return CatalogItem{}, &InvalidItemError{ProductID: productID, VariantID: variantID, Reason: "not found"}
	}
	return it, err
}

func (r *Repo) CouponByCode(ctx context.Context, brandID, code string) (Coupon, error) {
	var c Coupon
	err := r.DB.QueryRow(ctx, `
		SELECT code, brand_id, discount_type, percent, value_cents, min_purchase_cents,
		       max_discount_cents, valid_from, valid_until, usage_limit, usage_count, active
		FROM coupons WHERE brand_id=$1 AND code=$2`, brandID, code).Scan(
		&c.Code, &c.BrandID, &c.DiscountType, &c.Percent, &c.ValueCents, &c.MinPurchaseCents,
		&c.MaxDiscountCents, &c.ValidFrom, &c.ValidUntil, &c.UsageLimit, &c.UsageCount, &c.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return Coupon{}, ErrCouponNotFound
	}
	return c, err
}

// Gateway customer mapping, keyed by the stable tax id.

func (r *Repo) GatewayCustomerID(ctx context.Context, taxID string) (string, error) {
	var id string
	err := r.DB.QueryRow(ctx, `
		SELECT gateway_customer_id FROM gateway_customers WHERE tax_id=$1`, taxID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return id, err
}

func (r *Repo) SaveGatewayCustomer(ctx context.Context, taxID, gatewayID string) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO gateway_customers(tax_id, gateway_customer_id)
		VALUES ($1,$2)
		ON CONFLICT (tax_id) DO UPDATE SET gateway_customer_id = EXCLUDED.gateway_customer_id`,
		taxID, gatewayID)
	return err
}
