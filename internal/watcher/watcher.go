// Package watcher gives a PIX buyer a live confirmation experience. Two
// independent channels observe the order — a redis pub/sub subscription fed by
// the transition procedure (low latency) and a periodic poll (catches missed
// pushes) — plus a countdown driven by the gateway's PIX expiry and a hard
// ceiling. A CAS guard makes the terminal callback fire exactly once no
// matter how many channels race, and every goroutine is torn down when a
// terminal state is reached.
package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/lojinha/checkout/internal/orders"
	"github.com/lojinha/checkout/internal/redisx"
)

type Store interface {
	PaymentStatus(ctx context.Context, orderID string) (orders.PaymentStatus, error)
}

type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeExpired   Outcome = "expired"
)

// guard is the watcher's own tiny state machine: waiting -> confirmed|expired.
// Transitions are CAS so concurrent channels cannot both win.
type guard struct{ v atomic.Int32 }

const (
	gWaiting int32 = iota
	gConfirmed
	gExpired
)

func (g *guard) confirm() bool { return g.v.CompareAndSwap(gWaiting, gConfirmed) }
func (g *guard) expire() bool  { return g.v.CompareAndSwap(gWaiting, gExpired) }

func (g *guard) outcome() Outcome {
	switch g.v.Load() {
	case gConfirmed:
		return OutcomeConfirmed
	case gExpired:
		return OutcomeExpired
	}
	return OutcomeNone
}

type Watcher struct {
	RDB          *redis.Client // nil disables the push channel
	Store        Store
	PollInterval time.Duration // default 10s
	Ceiling      time.Duration // default 30m
}

// statusMessage matches what Transitions broadcasts on the order channel.
type statusMessage struct {
	Status        orders.Status        `json:"status"`
	PaymentStatus orders.PaymentStatus `json:"payment_status"`
}

// Watch blocks until the order confirms, expires or ctx is torn down.
// pixExpiry may be zero when the gateway provided no explicit expiry; the
// ceiling still bounds the watch. Callbacks fire at most once, total.
func (w *Watcher) Watch(ctx context.Context, orderID string, pixExpiry time.Time, onConfirmed, onExpired func()) Outcome {
	poll := w.PollInterval
	if poll <= 0 {
		poll = 10 * time.Second
	}
	ceiling := w.Ceiling
	if ceiling <= 0 {
		ceiling = 30 * time.Minute
	}

	var g guard
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, wctx := errgroup.WithContext(wctx)

	settle := func(confirmed bool) {
		if confirmed {
			if g.confirm() && onConfirmed != nil {
				onConfirmed()
			}
		} else {
			if g.expire() && onExpired != nil {
				onExpired()
			}
		}
		cancel()
	}

	// push channel
	if w.RDB != nil {
		sub := w.RDB.Subscribe(wctx, fmt.Sprintf(redisx.KeyOrderChannel, orderID))
		eg.Go(func() error {
			defer sub.Close()
			ch := sub.Channel()
			for {
				select {
				case <-wctx.Done():
					return nil
				case msg, ok := <-ch:
					if !ok {
						return nil
					}
					var sm statusMessage
					if err := json.Unmarshal([]byte(msg.Payload), &sm); err != nil {
						log.Printf("watch %s: bad push payload: %v", orderID, err)
						continue
					}
					switch sm.PaymentStatus {
					case orders.PaymentConfirmed:
						settle(true)
						return nil
					case orders.PaymentExpired, orders.PaymentFailed:
						settle(false)
						return nil
					}
				}
			}
		})
	}

	// poll channel
	eg.Go(func() error {
		ticker := time.NewTicker(poll)
		defer ticker.Stop()
		for {
			ps, err := w.Store.PaymentStatus(wctx, orderID)
			if err != nil {
				if wctx.Err() != nil {
					return nil
				}
				log.Printf("watch %s: poll: %v", orderID, err)
			} else {
				switch ps {
				case orders.PaymentConfirmed:
					settle(true)
					return nil
				case orders.PaymentExpired, orders.PaymentFailed:
					settle(false)
					return nil
				}
			}
			select {
			case <-wctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	// countdown: gateway PIX expiry plus the hard ceiling
	eg.Go(func() error {
		ceilingT := time.NewTimer(ceiling)
		defer ceilingT.Stop()

		var expiryC <-chan time.Time
		if !pixExpiry.IsZero() {
			expiryT := time.NewTimer(time.Until(pixExpiry))
			defer expiryT.Stop()
			expiryC = expiryT.C
		}
		select {
		case <-wctx.Done():
			return nil
		case <-expiryC:
		case <-ceilingT.C:
		}
		settle(false)
		return nil
	})

	_ = eg.Wait()
	return g.outcome()
}
