// Package notify fans order lifecycle events out to the buyer: a confirmation
// message when payment lands, a cancellation notice when a reservation dies.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/lojinha/checkout/internal/kafka"
	"github.com/lojinha/checkout/internal/orders"
	"github.com/lojinha/checkout/internal/redisx"
)

type Store interface {
	RecordNotification(ctx context.Context, orderID, kind string) error
}

type Service struct {
	Store       Store
	Redis       *redis.Client
	ServiceName string
}

// HandleOrderEvent runs as the kafka consumer handler. Offsets commit only on
// nil return; the redis dedup key keeps redeliveries from double-notifying.
func (s *Service) HandleOrderEvent(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}

	var kind string
	switch env.EventType {
	case orders.EventOrderConfirmed:
		kind = "payment_confirmed"
	case orders.EventOrderCancelled:
		kind = "order_cancelled"
	default:
		return nil // OrderCreated etc.: nothing to tell the buyer yet
	}

	if s.Redis != nil {
		dkey := fmt.Sprintf(redisx.KeyDedup, "notify", env.EventID)
		exists, _ := redisx.Exists(ctx, s.Redis, dkey)
		if exists {
			return nil
		}
		_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	}

	orderID := env.CorrelationID
	if orderID == "" {
		payload, err := kafkax.UnwrapPayload[orders.OrderConfirmedPayload](env.Payload)
		if err != nil {
			return err
		}
		orderID = payload.OrderID
	}

	if err := s.Store.RecordNotification(ctx, orderID, kind); err != nil {
		return err
	}
	log.Printf("notify: order %s -> %s", orderID, kind)
	return nil
}
