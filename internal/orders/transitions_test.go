package orders

import (
	"context"
	"encoding/json"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransitionStore struct {
	applied      bool
	order        Order
	confirmCalls int
	cancelCalls  int
	lastPay      PaymentStatus
}

func (f *fakeTransitionStore) ConfirmPayment(_ context.Context, orderID string) (bool, error) {
	f.confirmCalls++
	return f.applied, nil
}

func (f *fakeTransitionStore) CancelAndRelease(_ context.Context, orderID string, pay PaymentStatus) (bool, error) {
	f.cancelCalls++
	f.lastPay = pay
	return f.applied, nil
}

func (f *fakeTransitionStore) GetOrder(_ context.Context, id string) (Order, error) {
	return f.order, nil
}

type fakeProducer struct{ values [][]byte }

func (f *fakeProducer) Publish(key, value []byte, headers ...kafkago.Header) {
	f.values = append(f.values, value)
}

func (f *fakeProducer) lastEnvelope(t *testing.T) Envelope {
	t.Helper()
	require.NotEmpty(t, f.values)
	var env Envelope
	require.NoError(t, json.Unmarshal(f.values[len(f.values)-1], &env))
	return env
}

func TestConfirmPaymentPublishesAfterApply(t *testing.T) {
	store := &fakeTransitionStore{
		applied: true,
		order:   Order{ID: "order-1", GatewayPaymentID: "pay_1", TotalCents: 11500},
	}
	prod := &fakeProducer{}
	tr := &Transitions{Store: store, Producer: prod, Service: "test"}

	applied, err := tr.ConfirmPayment(context.Background(), "order-1")
	require.NoError(t, err)
	assert.True(t, applied)

	env := prod.lastEnvelope(t)
	assert.Equal(t, EventOrderConfirmed, env.EventType)
	assert.Equal(t, "order-1", env.CorrelationID)
	payload, err := func() (OrderConfirmedPayload, error) {
		var p OrderConfirmedPayload
		return p, json.Unmarshal(env.Payload, &p)
	}()
	require.NoError(t, err)
	assert.Equal(t, "pay_1", payload.GatewayPaymentID)
	assert.Equal(t, int64(11500), payload.TotalCents)
}

func TestConfirmPaymentNoOpPublishesNothing(t *testing.T) {
	store := &fakeTransitionStore{applied: false}
	prod := &fakeProducer{}
	tr := &Transitions{Store: store, Producer: prod, Service: "test"}

	applied, err := tr.ConfirmPayment(context.Background(), "order-1")
	require.NoError(t, err)
	assert.False(t, applied, "guarded store already saw a terminal state")
	assert.Empty(t, prod.values, "no event for a no-op transition")
}

func TestCancelMapsReasonToPaymentStatus(t *testing.T) {
	store := &fakeTransitionStore{applied: true}
	prod := &fakeProducer{}
	tr := &Transitions{Store: store, Producer: prod, Service: "test"}

	_, err := tr.Cancel(context.Background(), "order-1", ReasonReservationExpired)
	require.NoError(t, err)
	assert.Equal(t, PaymentExpired, store.lastPay)

	_, err = tr.Cancel(context.Background(), "order-2", ReasonPaymentFailed)
	require.NoError(t, err)
	assert.Equal(t, PaymentFailed, store.lastPay)

	for _, v := range prod.values {
		var env Envelope
		require.NoError(t, json.Unmarshal(v, &env))
		assert.Equal(t, EventOrderCancelled, env.EventType)
	}
	assert.Len(t, prod.values, 2)
}
