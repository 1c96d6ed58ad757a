package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ReserveAndCreateOrder is the first durable side effect of a checkout: lock
// each item's stock row (FOR UPDATE), verify and decrement, then persist the
// order, its line-item snapshots and the reservation rows — all in one
// transaction. Any shortfall rolls everything back; there is no partial
// reservation. Fills in o.ID, o.Number and o.CreatedAt on success.
func (r *Repo) ReserveAndCreateOrder(ctx context.Context, o *Order) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, it := range o.Items {
		var stock int
		if it.VariantID != "" {
			err = tx.QueryRow(ctx, `SELECT stock FROM product_variants WHERE id=$1 FOR UPDATE`, it.VariantID).Scan(&stock)
		} else {
			err = tx.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1 FOR UPDATE`, it.ProductID).Scan(&stock)
		}
		if err != nil {
			return fmt.Errorf("lock stock %s: %w", it.ProductID, err)
		}
		if stock < it.Qty {
			return &OutOfStockError{ProductID: it.ProductID, Name: it.Name, Requested: it.Qty, Available: stock}
		}
		if it.VariantID != "" {
			_, err = tx.Exec(ctx, `UPDATE product_variants SET stock = stock - $2 WHERE id=$1`, it.VariantID, it.Qty)
		} else {
			_, err = tx.Exec(ctx, `UPDATE products SET stock = stock - $2 WHERE id=$1`, it.ProductID, it.Qty)
		}
		if err != nil {
			return err
		}
	}

	var seq int64
	if err := tx.QueryRow(ctx, `SELECT nextval('order_number_seq')`).Scan(&seq); err != nil {
		return err
	}
	o.ID = uuid.NewString()
	o.Number = fmt.Sprintf("PED-%06d", seq)
	o.Status = StatusReserved
	o.PaymentStatus = PaymentPending
	o.CreatedAt = time.Now().UTC()

	var guest []byte
	if o.Guest != nil {
		if guest, err = json.Marshal(o.Guest); err != nil {
			return err
		}
	}
	var customerID, coupon *string
	if o.CustomerID != "" {
		customerID = &o.CustomerID
	}
	if o.CouponCode != "" {
		coupon = &o.CouponCode
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, number, brand_id, customer_id, guest, subtotal_cents,
		                   shipping_cents, discount_cents, total_cents, coupon_code,
		                   status, payment_status, payment_method, shipping_service,
		                   notes, reservation_deadline, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$17)`,
		o.ID, o.Number, o.BrandID, customerID, guest, o.SubtotalCents,
		o.ShippingCents, o.DiscountCents, o.TotalCents, coupon,
		o.Status, o.PaymentStatus, o.PaymentMethod, o.ShippingService,
		o.Notes, o.ReservationDeadline, o.CreatedAt)
	if err != nil {
		return err
	}

	for _, it := range o.Items {
		var vid *string
		if it.VariantID != "" {
			vid = &it.VariantID
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, variant_id, name, unit_price_cents, qty)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			o.ID, it.ProductID, vid, it.Name, it.UnitPriceCents, it.Qty); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO reservations(order_id, product_id, variant_id, qty, status)
			VALUES ($1,$2,$3,$4,'RESERVED')`,
			o.ID, it.ProductID, vid, it.Qty); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
