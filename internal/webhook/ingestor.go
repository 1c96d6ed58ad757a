// Package webhook ingests gateway-pushed payment events. Deliveries are
// at-least-once and may arrive concurrently; the unique constraint on the
// external event id is the only dedup mechanism, which holds across instances
// where an in-memory cache would not.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/lojinha/checkout/internal/orders"
)

type Store interface {
	InsertEvent(ctx context.Context, ev orders.WebhookEvent) (bool, error)
	MarkEventResult(ctx context.Context, eventID string, processed bool, errMsg string) error
	FindOrderIDByPayment(ctx context.Context, gatewayPaymentID string) (string, error)
}

type Transitioner interface {
	ConfirmPayment(ctx context.Context, orderID string) (bool, error)
}

type Ingestor struct {
	Store       Store
	Transitions Transitioner
}

// Event is the inbound gateway shape.
type Event struct {
	ID      string `json:"id"`
	Event   string `json:"event"`
	Payment struct {
		ID       string  `json:"id"`
		Value    float64 `json:"value"`
		NetValue float64 `json:"netValue"`
	} `json:"payment"`
}

// Event types that mean the buyer has paid.
var confirming = map[string]bool{
	"PAYMENT_CONFIRMED": true,
	"PAYMENT_RECEIVED":  true,
}

// Process applies one delivery. The returned error is for logging only; the
// transport layer must acknowledge 200 regardless, or the gateway pauses
// delivery for everyone.
func (i *Ingestor) Process(ctx context.Context, raw []byte) (processed bool, err error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return false, fmt.Errorf("decode webhook: %w", err)
	}
	if ev.ID == "" {
		return false, errors.New("webhook missing event id")
	}

	inserted, err := i.Store.InsertEvent(ctx, orders.WebhookEvent{
		EventID: ev.ID,
		Type:    ev.Event,
		Payload: raw,
	})
	if err != nil {
		return false, fmt.Errorf("record webhook %s: %w", ev.ID, err)
	}
	if !inserted {
		// replay: already handled, exit as a no-op
		log.Printf("webhook %s: duplicate delivery ignored", ev.ID)
		return false, nil
	}

	processed, perr := i.apply(ctx, ev)
	errMsg := ""
	if perr != nil {
		errMsg = perr.Error()
	}
	if err := i.Store.MarkEventResult(ctx, ev.ID, processed, errMsg); err != nil {
		log.Printf("webhook %s: mark result: %v", ev.ID, err)
	}
	return processed, perr
}

func (i *Ingestor) apply(ctx context.Context, ev Event) (bool, error) {
	if !confirming[ev.Event] {
		// recorded for audit, nothing to transition
		return true, nil
	}
	orderID, err := i.Store.FindOrderIDByPayment(ctx, ev.Payment.ID)
	if err != nil {
		return false, fmt.Errorf("webhook %s: payment %s: %w", ev.ID, ev.Payment.ID, err)
	}
	applied, err := i.Transitions.ConfirmPayment(ctx, orderID)
	if err != nil {
		return false, err
	}
	if !applied {
		log.Printf("webhook %s: order %s already terminal", ev.ID, orderID)
	}
	return true, nil
}
