package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusValidating, StatusReserved, true},
		{StatusValidating, StatusCancelled, true},
		{StatusReserved, StatusPaymentCreated, true},
		{StatusReserved, StatusConfirmed, true},
		{StatusReserved, StatusCancelled, true},
		{StatusPaymentCreated, StatusConfirmed, true},
		{StatusPaymentCreated, StatusPendingConfirmation, true},
		{StatusPaymentCreated, StatusCancelled, true},
		{StatusPendingConfirmation, StatusConfirmed, true},
		{StatusPendingConfirmation, StatusCancelled, true},
		{StatusConfirmed, StatusDelivered, true},

		// monotonic: no going back, no cancelling terminal states
		{StatusConfirmed, StatusCancelled, false},
		{StatusDelivered, StatusCancelled, false},
		{StatusCancelled, StatusReserved, false},
		{StatusConfirmed, StatusReserved, false},
		{StatusReserved, StatusValidating, false},
		{StatusPendingConfirmation, StatusPaymentCreated, false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestCancellableNeverIncludesTerminal(t *testing.T) {
	for _, s := range cancellable {
		assert.True(t, CanTransition(s, StatusCancelled), "%s must be cancellable", s)
	}
	assert.NotContains(t, cancellable, StatusConfirmed)
	assert.NotContains(t, cancellable, StatusDelivered)
	assert.NotContains(t, cancellable, StatusCancelled)
}
