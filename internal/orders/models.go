package orders

import "time"

// Brand is the tenant: every product, coupon and order belongs to exactly one.
type Brand struct {
	ID                         string
	Name                       string
	MinOrderCents              int64
	FreeShippingThresholdCents int64
	Active                     bool
}

// CatalogItem is the canonical price/stock view of a product or variant,
// re-fetched at checkout time. Client-submitted prices are never used.
type CatalogItem struct {
	ProductID  string
	VariantID  string
	BrandID    string
	Name       string
	PriceCents int64
	Stock      int
	Active     bool
}

type Customer struct {
	ID    string
	Name  string
	Email string
	TaxID string
	Phone string
}

// GuestInfo is the snapshot kept on guest orders instead of a customer ref.
type GuestInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	TaxID string `json:"tax_id"`
	Phone string `json:"phone"`
}

type Coupon struct {
	Code             string
	BrandID          string
	DiscountType     string // "percentage" | "flat"
	Percent          float64
	ValueCents       int64
	MinPurchaseCents int64
	MaxDiscountCents int64
	ValidFrom        time.Time
	ValidUntil       time.Time
	UsageLimit       int
	UsageCount       int
	Active           bool
}

// LineItem is an immutable snapshot; it never tracks the live catalog after
// the order is created.
type LineItem struct {
	ProductID      string `json:"product_id"`
	VariantID      string `json:"variant_id,omitempty"`
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Qty            int    `json:"qty"`
}

type PixPayload struct {
	QrImageBase64 string    `json:"qr_image_base64"`
	Payload       string    `json:"payload"`
	Expiration    time.Time `json:"expiration"`
}

// PaymentRef carries the gateway references attached to an order after a
// successful charge.
type PaymentRef struct {
	GatewayPaymentID string
	Method           string
	InvoiceURL       string
	Pix              *PixPayload
}

type Order struct {
	ID                  string
	Number              string
	BrandID             string
	CustomerID          string // empty on guest checkout
	Guest               *GuestInfo
	Items               []LineItem
	SubtotalCents       int64
	ShippingCents       int64
	DiscountCents       int64
	TotalCents          int64
	CouponCode          string
	Status              Status
	PaymentStatus       PaymentStatus
	PaymentMethod       string
	GatewayPaymentID    string
	InvoiceURL          string
	Pix                 *PixPayload
	ShippingService     string
	Notes               string
	ReservationDeadline time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
	ConfirmedAt         *time.Time
	CancelledAt         *time.Time
}

type Reservation struct {
	OrderID   string
	ProductID string
	VariantID string
	Qty       int
	Status    string // RESERVED | RELEASED | CONSUMED
	CreatedAt time.Time
}

// WebhookEvent mirrors one gateway delivery. EventID is globally unique and is
// the sole idempotency mechanism for replayed deliveries.
type WebhookEvent struct {
	EventID   string
	Type      string
	Payload   []byte
	Processed bool
	Error     string
	CreatedAt time.Time
}
