package watcher

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lojinha/checkout/internal/orders"
)

type fakeStore struct {
	mu     sync.Mutex
	status orders.PaymentStatus
	polls  int
}

func (f *fakeStore) set(s orders.PaymentStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = s
}

func (f *fakeStore) PaymentStatus(_ context.Context, _ string) (orders.PaymentStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	return f.status, nil
}

func (f *fakeStore) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

func TestWatchPollObservesConfirmation(t *testing.T) {
	store := &fakeStore{status: orders.PaymentPending}
	w := &Watcher{Store: store, PollInterval: 5 * time.Millisecond, Ceiling: time.Second}

	var confirmed, expired atomic.Int32
	go func() {
		time.Sleep(20 * time.Millisecond)
		store.set(orders.PaymentConfirmed)
	}()

	out := w.Watch(context.Background(), "order-1", time.Time{},
		func() { confirmed.Add(1) }, func() { expired.Add(1) })

	assert.Equal(t, OutcomeConfirmed, out)
	assert.Equal(t, int32(1), confirmed.Load())
	assert.Equal(t, int32(0), expired.Load())
}

// PIX order with an expiry and no webhook: the watcher reports expired and
// stops polling.
func TestWatchPixExpiry(t *testing.T) {
	store := &fakeStore{status: orders.PaymentPending}
	w := &Watcher{Store: store, PollInterval: 5 * time.Millisecond, Ceiling: time.Minute}

	var confirmed, expired atomic.Int32
	out := w.Watch(context.Background(), "order-1", time.Now().Add(30*time.Millisecond),
		func() { confirmed.Add(1) }, func() { expired.Add(1) })

	assert.Equal(t, OutcomeExpired, out)
	assert.Equal(t, int32(1), expired.Load())
	assert.Equal(t, int32(0), confirmed.Load())

	// Watch returned, so polling has stopped
	n := store.pollCount()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, store.pollCount())
}

func TestWatchHardCeilingWithoutExplicitExpiry(t *testing.T) {
	store := &fakeStore{status: orders.PaymentPending}
	w := &Watcher{Store: store, PollInterval: 5 * time.Millisecond, Ceiling: 25 * time.Millisecond}

	var expired atomic.Int32
	out := w.Watch(context.Background(), "order-1", time.Time{}, nil, func() { expired.Add(1) })
	assert.Equal(t, OutcomeExpired, out)
	assert.Equal(t, int32(1), expired.Load())
}

func TestWatchFailedPaymentExpires(t *testing.T) {
	store := &fakeStore{status: orders.PaymentFailed}
	w := &Watcher{Store: store, PollInterval: 5 * time.Millisecond, Ceiling: time.Second}

	out := w.Watch(context.Background(), "order-1", time.Time{}, nil, nil)
	assert.Equal(t, OutcomeExpired, out)
}

func TestWatchTeardownFiresNothing(t *testing.T) {
	store := &fakeStore{status: orders.PaymentPending}
	w := &Watcher{Store: store, PollInterval: 5 * time.Millisecond, Ceiling: time.Minute}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var confirmed, expired atomic.Int32
	out := w.Watch(ctx, "order-1", time.Time{},
		func() { confirmed.Add(1) }, func() { expired.Add(1) })

	assert.Equal(t, OutcomeNone, out)
	assert.Equal(t, int32(0), confirmed.Load())
	assert.Equal(t, int32(0), expired.Load())
}

// Both channels racing to settle: the guard lets exactly one callback fire.
func TestGuardSingleFire(t *testing.T) {
	var g guard
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				if g.confirm() {
					wins.Add(1)
				}
			} else {
				if g.expire() {
					wins.Add(1)
				}
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, int32(1), wins.Load())
	assert.NotEqual(t, OutcomeNone, g.outcome())
}

// Confirmation arriving at the same instant as expiry: one terminal outcome,
// one callback.
func TestWatchConfirmVsExpiryRace(t *testing.T) {
	store := &fakeStore{status: orders.PaymentConfirmed}
	w := &Watcher{Store: store, PollInterval: time.Millisecond, Ceiling: time.Second}

	var fires atomic.Int32
	out := w.Watch(context.Background(), "order-1", time.Now(),
		func() { fires.Add(1) }, func() { fires.Add(1) })

	assert.NotEqual(t, OutcomeNone, out)
	assert.Equal(t, int32(1), fires.Load())
}
