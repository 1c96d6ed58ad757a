package orders

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/lojinha/checkout/internal/kafka"
	"github.com/lojinha/checkout/internal/redisx"
)

// TransitionStore is the write side Transitions needs; *Repo implements it.
type TransitionStore interface {
	ConfirmPayment(ctx context.Context, orderID string) (bool, error)
	CancelAndRelease(ctx context.Context, orderID string, pay PaymentStatus) (bool, error)
	GetOrder(ctx context.Context, id string) (Order, error)
}

// Transitions is the single authoritative procedure for moving an order to
// confirmed or cancelled. The synchronous card path, the webhook ingestor and
// the expiry sweeper all call it; the store's status guard decides which
// caller wins, never timing. Event publication happens only after commit.
type Transitions struct {
	Store    TransitionStore
	Producer Publisher
	RDB      *redis.Client
	Service  string
}

// ConfirmPayment marks the order paid. Returns applied=false when the order
// was already terminal — a duplicate webhook or a sweep/confirm race.
func (t *Transitions) ConfirmPayment(ctx context.Context, orderID string) (bool, error) {
	applied, err := t.Store.ConfirmPayment(ctx, orderID)
	if err != nil || !applied {
		return applied, err
	}
	t.broadcast(ctx, orderID, StatusConfirmed, PaymentConfirmed)

	if t.Producer != nil {
		o, err := t.Store.GetOrder(ctx, orderID)
		if err != nil {
			log.Printf("confirm %s: load for event: %v", orderID, err)
			return true, nil
		}
		t.publish(orderID, EventOrderConfirmed, OrderConfirmedPayload{
			OrderID:          orderID,
			GatewayPaymentID: o.GatewayPaymentID,
			TotalCents:       o.TotalCents,
		})
	}
	return true, nil
}

// Cancel rolls the order back and releases its stock. reason is one of
// PAYMENT_FAILED or RESERVATION_EXPIRED.
func (t *Transitions) Cancel(ctx context.Context, orderID, reason string) (bool, error) {
	pay := PaymentFailed
	if reason == ReasonReservationExpired {
		pay = PaymentExpired
	}
	applied, err := t.Store.CancelAndRelease(ctx, orderID, pay)
	if err != nil || !applied {
		return applied, err
	}
	t.broadcast(ctx, orderID, StatusCancelled, pay)
	if t.Producer != nil {
		t.publish(orderID, EventOrderCancelled, OrderCancelledPayload{OrderID: orderID, Reason: reason})
	}
	return true, nil
}

const (
	ReasonPaymentFailed      = "PAYMENT_FAILED"
	ReasonReservationExpired = "RESERVATION_EXPIRED"
)

// broadcast refreshes the status cache and notifies watchers on the per-order
// pub/sub channel.
func (t *Transitions) broadcast(ctx context.Context, orderID string, s Status, ps PaymentStatus) {
	if t.RDB == nil {
		return
	}
	body := fmt.Sprintf(`{"status":%q,"payment_status":%q}`, s, ps)
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if err := t.RDB.Set(ctx, key, body, redisx.TTLStatusCache).Err(); err != nil {
		log.Printf("status cache %s: %v", orderID, err)
	}
	ch := fmt.Sprintf(redisx.KeyOrderChannel, orderID)
	if err := t.RDB.Publish(ctx, ch, body).Err(); err != nil {
		log.Printf("status publish %s: %v", orderID, err)
	}
}

func (t *Transitions) publish(orderID, eventType string, payload any) {
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      t.Service,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	t.Producer.Publish(PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
