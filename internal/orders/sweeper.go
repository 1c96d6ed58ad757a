package orders

import (
	"context"
	"log"
	"time"
)

type expiredLister interface {
	ExpiredOrderIDs(ctx context.Context, limit int) ([]string, error)
}

type canceller interface {
	Cancel(ctx context.Context, orderID, reason string) (bool, error)
}

// Sweeper reclaims reservations whose deadline passed without confirmation.
// It may run on several instances at once: the transition guard, not the
// schedule, guarantees each order is released exactly once.
type Sweeper struct {
	Store       expiredLister
	Transitions canceller
	BatchSize   int
}

func (s *Sweeper) Sweep(ctx context.Context) (released int, err error) {
	batch := s.BatchSize
	if batch <= 0 {
		batch = 100
	}
	ids, err := s.Store.ExpiredOrderIDs(ctx, batch)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		applied, err := s.Transitions.Cancel(ctx, id, ReasonReservationExpired)
		if err != nil {
			log.Printf("sweep: cancel %s: %v", id, err)
			continue
		}
		if applied {
			released++
		}
	}
	return released, nil
}

func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				log.Printf("sweep: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("sweep: released %d expired reservations", n)
			}
		}
	}
}
