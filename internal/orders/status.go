package orders

type Status string

const (
	StatusValidating          Status = "validating"
	StatusReserved            Status = "reserved"
	StatusPaymentCreated      Status = "payment_created"
	StatusPendingConfirmation Status = "pending_confirmation"
	StatusConfirmed           Status = "confirmed"
	StatusDelivered           Status = "delivered"
	StatusCancelled           Status = "cancelled"
)

// validNext encodes the lattice. confirmed/delivered are terminal with respect
// to cancellation: a confirmed order can never re-enter cancelled.
var validNext = map[Status]map[Status]bool{
	StatusValidating:          {StatusReserved: true, StatusCancelled: true},
	StatusReserved:            {StatusPaymentCreated: true, StatusConfirmed: true, StatusCancelled: true},
	StatusPaymentCreated:      {StatusConfirmed: true, StatusPendingConfirmation: true, StatusCancelled: true},
	StatusPendingConfirmation: {StatusConfirmed: true, StatusCancelled: true},
	StatusConfirmed:           {StatusDelivered: true},
	StatusDelivered:           {},
	StatusCancelled:           {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// cancellable are the states the guarded cancel/expiry update may act on.
var cancellable = []Status{StatusReserved, StatusPaymentCreated, StatusPendingConfirmation}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentConfirmed PaymentStatus = "confirmed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentExpired   PaymentStatus = "expired"
)
