package redisx

import "time"

const (
	// Cache status pedido: checkout:order:status:{order_id} -> {"status":"...","payment_status":"..."}
	KeyOrderStatus = "checkout:order:status:%s"

	// Pub/sub channel per pedido, fed by the transition procedure.
	KeyOrderChannel = "checkout:order:events:%s"

	// Checkout session em andamento: checkout:session:{session_id} -> request JSON
	KeySession = "checkout:session:%s"

	// Mapping tax id -> gateway customer id (fast path; Postgres is the source of truth).
	KeyGatewayCustomer = "checkout:gateway:customer:%s"

	// Dedup event processing: checkout:dedup:{service}:{event_id}
	KeyDedup = "checkout:dedup:%s:%s"
)

var (
	TTLStatusCache     = 5 * time.Minute
	TTLSession         = 24 * time.Hour
	TTLGatewayCustomer = 30 * 24 * time.Hour
	TTLDedup           = 48 * time.Hour
)
