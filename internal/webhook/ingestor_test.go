package webhook

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lojinha/checkout/internal/orders"
)

type memStore struct {
	mu       sync.Mutex
	events   map[string]*orders.WebhookEvent
	payments map[string]string // gateway payment id -> order id
}

func newMemStore() *memStore {
	return &memStore{
		events:   map[string]*orders.WebhookEvent{},
		payments: map[string]string{"pay_1": "order-1"},
	}
}

func (m *memStore) InsertEvent(_ context.Context, ev orders.WebhookEvent) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.events[ev.EventID]; dup {
		return false, nil
	}
	m.events[ev.EventID] = &ev
	return true, nil
}

func (m *memStore) MarkEventResult(_ context.Context, eventID string, processed bool, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev := m.events[eventID]
	ev.Processed = processed
	ev.Error = errMsg
	return nil
}

func (m *memStore) FindOrderIDByPayment(_ context.Context, paymentID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.payments[paymentID]
	if !ok {
		return "", orders.ErrOrderNotFound
	}
	return id, nil
}

// countingTransitions confirms at most once per order, like the guarded repo.
type countingTransitions struct {
	mu        sync.Mutex
	confirmed map[string]bool
	calls     int
}

func (c *countingTransitions) ConfirmPayment(_ context.Context, orderID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.confirmed == nil {
		c.confirmed = map[string]bool{}
	}
	if c.confirmed[orderID] {
		return false, nil
	}
	c.confirmed[orderID] = true
	return true, nil
}

func payload(eventID, eventType, paymentID string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"event":%q,"payment":{"id":%q,"value":115.0,"netValue":113.2}}`, eventID, eventType, paymentID))
}

func TestProcessConfirmsOrder(t *testing.T) {
	store := newMemStore()
	tr := &countingTransitions{}
	ing := &Ingestor{Store: store, Transitions: tr}

	processed, err := ing.Process(context.Background(), payload("evt_1", "PAYMENT_RECEIVED", "pay_1"))
	require.NoError(t, err)
	assert.True(t, processed)
	assert.True(t, tr.confirmed["order-1"])
	assert.True(t, store.events["evt_1"].Processed)
	assert.Empty(t, store.events["evt_1"].Error)
}

func TestProcessReplayIsNoOp(t *testing.T) {
	store := newMemStore()
	tr := &countingTransitions{}
	ing := &Ingestor{Store: store, Transitions: tr}

	_, err := ing.Process(context.Background(), payload("evt_1", "PAYMENT_CONFIRMED", "pay_1"))
	require.NoError(t, err)
	processed, err := ing.Process(context.Background(), payload("evt_1", "PAYMENT_CONFIRMED", "pay_1"))
	require.NoError(t, err, "a duplicate delivery is not an error")
	assert.False(t, processed)
	assert.Equal(t, 1, tr.calls, "order updated exactly once")
}

func TestProcessConcurrentReplays(t *testing.T) {
	store := newMemStore()
	tr := &countingTransitions{}
	ing := &Ingestor{Store: store, Transitions: tr}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = ing.Process(context.Background(), payload("evt_dup", "PAYMENT_CONFIRMED", "pay_1"))
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, tr.calls)
}

func TestProcessNonConfirmingEventRecordedOnly(t *testing.T) {
	store := newMemStore()
	tr := &countingTransitions{}
	ing := &Ingestor{Store: store, Transitions: tr}

	processed, err := ing.Process(context.Background(), payload("evt_2", "PAYMENT_CREATED", "pay_1"))
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Zero(t, tr.calls)
	assert.True(t, store.events["evt_2"].Processed)
}

func TestProcessUnknownPaymentRecordsError(t *testing.T) {
	store := newMemStore()
	tr := &countingTransitions{}
	ing := &Ingestor{Store: store, Transitions: tr}

	processed, err := ing.Process(context.Background(), payload("evt_3", "PAYMENT_CONFIRMED", "pay_unknown"))
	require.Error(t, err)
	assert.False(t, processed)
	assert.False(t, store.events["evt_3"].Processed)
	assert.NotEmpty(t, store.events["evt_3"].Error)
}

func TestProcessMalformedPayload(t *testing.T) {
	ing := &Ingestor{Store: newMemStore(), Transitions: &countingTransitions{}}
	_, err := ing.Process(context.Background(), []byte(`{"id":`))
	require.Error(t, err)
	_, err = ing.Process(context.Background(), []byte(`{"event":"PAYMENT_CONFIRMED"}`))
	require.Error(t, err, "missing event id must be rejected")
}
