package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) GetOrder(ctx context.Context, id string) (Order, error) {
	var (
		o          Order
		guest, pix []byte
		customerID *string
		coupon     *string
	)
	err := r.DB.QueryRow(ctx, `
		SELECT id, number, brand_id, customer_id, guest, subtotal_cents, shipping_cents,
		       discount_cents, total_cents, coupon_code, status, payment_status,
		       payment_method, gateway_payment_id, invoice_url, pix_payload,
		       reservation_deadline, created_at, updated_at
		FROM orders WHERE id=$1`, id).Scan(
		&o.ID, &o.Number, &o.BrandID, &customerID, &guest, &o.SubtotalCents, &o.ShippingCents,
		&o.DiscountCents, &o.TotalCents, &coupon, &o.Status, &o.PaymentStatus,
		&o.PaymentMethod, &o.GatewayPaymentID, &o.InvoiceURL, &pix,
		&o.ReservationDeadline, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrOrderNotFound
	}
	if err != nil {
		return Order{}, err
	}
	if customerID != nil {
		o.CustomerID = *customerID
	}
	if coupon != nil {
		o.CouponCode = *coupon
	}
	if len(guest) > 0 {
		var g GuestInfo
		if err := json.Unmarshal(guest, &g); err == nil {
			o.Guest = &g
		}
	}
	if len(pix) > 0 {
		var p PixPayload
		if err := json.Unmarshal(pix, &p); err == nil {
			o.Pix = &p
		}
	}

	rows, err := r.DB.Query(ctx, `
		SELECT product_id, COALESCE(variant_id, ''), name, unit_price_cents, qty
		FROM order_items WHERE order_id=$1`, id)
	if err != nil {
		return Order{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var it LineItem
		if err := rows.Scan(&it.ProductID, &it.VariantID, &it.Name, &it.UnitPriceCents, &it.Qty); err != nil {
			return Order{}, err
		}
		o.Items = append(o.Items, it)
	}
	return o, rows.Err()
}

func (r *Repo) GetStatus(ctx context.Context, id string) (Status, PaymentStatus, error) {
	var s, ps string
	err := r.DB.QueryRow(ctx, `SELECT status, payment_status FROM orders WHERE id=$1`, id).Scan(&s, &ps)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", ErrOrderNotFound
	}
	if err != nil {
		return "", "", err
	}
	return Status(s), PaymentStatus(ps), nil
}

func (r *Repo) PaymentStatus(ctx context.Context, id string) (PaymentStatus, error) {
	_, ps, err := r.GetStatus(ctx, id)
	return ps, err
}

// AttachPayment records the gateway references after a successful charge.
// Guarded: only a reserved order can advance to payment_created.
func (r *Repo) AttachPayment(ctx context.Context, orderID string, ref PaymentRef) error {
	var pix []byte
	if ref.Pix != nil {
		b, err := json.Marshal(ref.Pix)
		if err != nil {
			return err
		}
		pix = b
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE orders
		SET status=$2, gateway_payment_id=$3, invoice_url=$4, pix_payload=$5, updated_at=now()
		WHERE id=$1 AND status=$6`,
		orderID, StatusPaymentCreated, ref.GatewayPaymentID, ref.InvoiceURL, pix, StatusReserved)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("attach payment: order %s not in %s", orderID, StatusReserved)
	}
	return nil
}

// MarkPending moves a payment_created order to pending_confirmation (async
// card confirmation, PIX waiting for the webhook).
func (r *Repo) MarkPending(ctx context.Context, orderID string) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE orders SET status=$2, updated_at=now()
		WHERE id=$1 AND status=$3`,
		orderID, StatusPendingConfirmation, StatusPaymentCreated)
	return err
}

// ConfirmPayment is the write side of the shared transition procedure. The
// status guard makes the second caller (webhook vs. immediate card path) a
// no-op: applied=false, no error. Coupon usage is incremented here and only
// here, so replayed webhooks can never double-count.
func (r *Repo) ConfirmPayment(ctx context.Context, orderID string) (applied bool, err error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var coupon *string
	var brandID string
	err = tx.QueryRow(ctx, `
		UPDATE orders
		SET status=$2, payment_status=$3, confirmed_at=now(), updated_at=now()
		WHERE id=$1 AND status = ANY($4)
		RETURNING coupon_code, brand_id`,
		orderID, StatusConfirmed, PaymentConfirmed, statusList(cancellable)).Scan(&coupon, &brandID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil // already terminal, or unknown order
	}
	if err != nil {
		return false, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE reservations SET status='CONSUMED'
		WHERE order_id=$1 AND status='RESERVED'`, orderID); err != nil {
		return false, err
	}

	if coupon != nil && *coupon != "" {
		if _, err := tx.Exec(ctx, `
			UPDATE coupons SET usage_count = usage_count + 1
			WHERE brand_id=$1 AND code=$2`, brandID, *coupon); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// CancelAndRelease cancels a not-yet-confirmed order and restores the exact
// stock its reservations hold. The order-status guard plus the reservation-row
// status guard make concurrent sweeps release stock at most once, and a sweep
// can never cancel an order a webhook just confirmed.
func (r *Repo) CancelAndRelease(ctx context.Context, orderID string, pay PaymentStatus) (applied bool, err error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
		UPDATE orders
		SET status=$2, payment_status=$3, cancelled_at=now(), updated_at=now()
		WHERE id=$1 AND status = ANY($4)`,
		orderID, StatusCancelled, pay, statusList(cancellable))
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() == 0 {
		return false, nil
	}

	rows, err := tx.Query(ctx, `
		SELECT product_id, COALESCE(variant_id, ''), qty
		FROM reservations
		WHERE order_id=$1 AND status='RESERVED'
		FOR UPDATE`, orderID)
	if err != nil {
		return false, err
	}
	type rec struct {
		pid, vid string
		qty      int
	}
	var recs []rec
	for rows.Next() {
		var x rec
		if err := rows.Scan(&x.pid, &x.vid, &x.qty); err != nil {
			rows.Close()
			return false, err
		}
		recs = append(recs, x)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return false, err
	}

	for _, x := range recs {
		if x.vid != "" {
			_, err = tx.Exec(ctx, `UPDATE product_variants SET stock = stock + $2 WHERE id=$1`, x.vid, x.qty)
		} else {
			_, err = tx.Exec(ctx, `UPDATE products SET stock = stock + $2 WHERE id=$1`, x.pid, x.qty)
		}
		if err != nil {
			return false, err
		}
	}
	if _, err := tx.Exec(ctx, `
		UPDATE reservations SET status='RELEASED'
		WHERE order_id=$1 AND status='RESERVED'`, orderID); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// ExpiredOrderIDs lists reservations past their deadline still holding stock.
func (r *Repo) ExpiredOrderIDs(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id FROM orders
		WHERE reservation_deadline < now() AND status = ANY($1)
		ORDER BY reservation_deadline
		LIMIT $2`, statusList(cancellable), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *Repo) RecordNotification(ctx context.Context, orderID, kind string) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO order_notifications(order_id, kind) VALUES ($1, $2)`, orderID, kind)
	return err
}

func statusList(ss []Status) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}
