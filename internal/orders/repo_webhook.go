package orders

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// InsertEvent records a gateway delivery. The unique constraint on event_id is
// the sole idempotency mechanism: inserted=false means this exact event was
// already processed (or is being processed) and the caller must no-op.
func (r *Repo) InsertEvent(ctx context.Context, ev WebhookEvent) (inserted bool, err error) {
	ct, err := r.DB.Exec(ctx, `
		INSERT INTO webhook_events(event_id, event_type, payload)
		VALUES ($1,$2,$3)
		ON CONFLICT (event_id) DO NOTHING`,
		ev.EventID, ev.Type, ev.Payload)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repo) MarkEventResult(ctx context.Context, eventID string, processed bool, errMsg string) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE webhook_events SET processed=$2, error=$3 WHERE event_id=$1`,
		eventID, processed, errMsg)
	return err
}

func (r *Repo) FindOrderIDByPayment(ctx context.Context, gatewayPaymentID string) (string, error) {
	var id string
	err := r.DB.QueryRow(ctx, `
		SELECT id FROM orders WHERE gateway_payment_id=$1`, gatewayPaymentID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrOrderNotFound
	}
	return id, err
}
