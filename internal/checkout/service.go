// Package checkout orchestrates the payment flow: validate, price, reserve,
// charge, and either confirm or compensate. Failures before the reservation
// are side-effect free; failures after it always complete rollback before
// returning, so callers never observe a reserved-but-uncharged order.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/lojinha/checkout/internal/gateway"
	kafkax "github.com/lojinha/checkout/internal/kafka"
	"github.com/lojinha/checkout/internal/orders"
	"github.com/lojinha/checkout/internal/pricing"
)

type Pricer interface {
	Recalculate(ctx context.Context, brand orders.Brand, in pricing.Input) (pricing.Quote, error)
}

type Store interface {
	Brand(ctx context.Context, id string) (orders.Brand, error)
	Customer(ctx context.Context, id string) (orders.Customer, error)
	ReserveAndCreateOrder(ctx context.Context, o *orders.Order) error
	AttachPayment(ctx context.Context, orderID string, ref orders.PaymentRef) error
	MarkPending(ctx context.Context, orderID string) error
}

type Gateway interface {
	FindOrCreateCustomer(ctx context.Context, id gateway.CustomerIdentity) (string, error)
	CreateCharge(ctx context.Context, req gateway.ChargeRequest) (gateway.Payment, error)
	FetchQrCode(ctx context.Context, paymentID string) (gateway.PixQr, error)
}

type Transitioner interface {
	ConfirmPayment(ctx context.Context, orderID string) (bool, error)
	Cancel(ctx context.Context, orderID, reason string) (bool, error)
}

type Service struct {
	Pricing         Pricer
	Store           Store
	Gateway         Gateway
	Transitions     Transitioner
	Producer        orders.Publisher
	ReservationTTL  time.Duration
	MaxInstallments int
	ServiceName     string
}

const (
	MethodPix  = "pix"
	MethodCard = "card"
)

type ItemRequest struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity"`
}

type Address struct {
	Street     string `json:"street"`
	Number     string `json:"number"`
	Complement string `json:"complement,omitempty"`
	District   string `json:"district"`
	City       string `json:"city"`
	State      string `json:"state"`
	ZipCode    string `json:"zip_code"`
}

type ShippingOption struct {
	ServiceName  string `json:"service_name"`
	CostCents    int64  `json:"cost_cents"`
	DeliveryDays int    `json:"delivery_days"`
}

type CardRequest struct {
	HolderName  string `json:"holder_name"`
	Number      string `json:"number"`
	ExpiryMonth string `json:"expiry_month"`
	ExpiryYear  string `json:"expiry_year"`
	CCV         string `json:"ccv"`
}

type PaymentRequest struct {
	Method       string       `json:"method"` // "pix" | "card"
	Card         *CardRequest `json:"card,omitempty"`
	Installments int          `json:"installments,omitempty"`
}

// Request is the client payload. Anything price-shaped in it is advisory at
// best; the recalculator is authoritative.
type Request struct {
	BrandID         string            `json:"brand_id"`
	Items           []ItemRequest     `json:"items"`
	ShippingAddress Address           `json:"shipping_address"`
	Shipping        ShippingOption    `json:"shipping"`
	CouponCode      string            `json:"coupon_code,omitempty"`
	Payment         PaymentRequest    `json:"payment"`
	Guest           *orders.GuestInfo `json:"guest_info,omitempty"`
	Notes           string            `json:"notes,omitempty"`
}

// Result is discriminated by Method: PIX carries the QR payload, card carries
// the confirmation status. Never both.
type Result struct {
	OrderID     string
	OrderNumber string
	Method      string
	Pix         *orders.PixPayload
	InvoiceURL  string
	CardStatus  string // "confirmed" | "pending"
}

// Checkout runs the full orchestration. customerID is empty on guest checkout.
func (s *Service) Checkout(ctx context.Context, customerID string, req Request) (Result, error) {
	if err := s.validate(req); err != nil {
		return Result{}, err
	}

	ident, err := s.resolveIdentity(ctx, customerID, req.Guest)
	if err != nil {
		return Result{}, err
	}

	brand, err := s.Store.Brand(ctx, req.BrandID)
	if err != nil {
		return Result{}, err
	}
	if !brand.Active {
		return Result{}, &orders.ValidationError{Field: "brand_id", Reason: "brand is not active"}
	}

	items := make([]pricing.ItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, pricing.ItemInput{ProductID: it.ProductID, VariantID: it.VariantID, Qty: it.Quantity})
	}
	quote, err := s.Pricing.Recalculate(ctx, brand, pricing.Input{
		Items:         items,
		CouponCode:    req.CouponCode,
		ShippingCents: req.Shipping.CostCents,
	})
	if err != nil {
		return Result{}, err
	}
	if quote.IgnoredCoupon != "" {
		log.Printf("checkout: coupon %q ignored for brand %s", quote.IgnoredCoupon, brand.ID)
	}

	ttl := s.ReservationTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	o := &orders.Order{
		BrandID:             brand.ID,
		CustomerID:          customerID,
		Guest:               req.Guest,
		Items:               quote.Items,
		SubtotalCents:       quote.SubtotalCents,
		ShippingCents:       quote.ShippingCents,
		DiscountCents:       quote.DiscountCents,
		TotalCents:          quote.TotalCents,
		CouponCode:          quote.CouponCode,
		PaymentMethod:       req.Payment.Method,
		ShippingService:     req.Shipping.ServiceName,
		Notes:               req.Notes,
		ReservationDeadline: time.Now().Add(ttl),
	}
	// first durable side effect: everything past this point must roll back on failure
	if err := s.Store.ReserveAndCreateOrder(ctx, o); err != nil {
		return Result{}, err
	}
	s.publishCreated(o)

	result, err := s.charge(ctx, o, ident, req.Payment)
	if err != nil {
		if _, cerr := s.Transitions.Cancel(ctx, o.ID, orders.ReasonPaymentFailed); cerr != nil {
			// reservation will be reclaimed by the expiry sweep
			log.Printf("checkout: rollback of %s failed: %v", o.ID, cerr)
		}
		return Result{}, err
	}
	return result, nil
}

// charge resolves the gateway customer, creates the charge and advances the
// order. Any error here means the caller must compensate.
func (s *Service) charge(ctx context.Context, o *orders.Order, ident gateway.CustomerIdentity, pay PaymentRequest) (Result, error) {
	gatewayCustomer, err := s.Gateway.FindOrCreateCustomer(ctx, ident)
	if err != nil {
		return Result{}, asPaymentFailed(err)
	}

	chargeReq := gateway.ChargeRequest{
		CustomerID:        gatewayCustomer,
		ValueCents:        o.TotalCents,
		DueDate:           time.Now(),
		Description:       fmt.Sprintf("Pedido %s", o.Number),
		ExternalReference: o.ID,
	}
	switch pay.Method {
	case MethodPix:
		chargeReq.BillingType = "PIX"
	case MethodCard:
		chargeReq.BillingType = "CREDIT_CARD"
		chargeReq.Card = &gateway.Card{
			HolderName:  pay.Card.HolderName,
			Number:      pay.Card.Number,
			ExpiryMonth: pay.Card.ExpiryMonth,
			ExpiryYear:  pay.Card.ExpiryYear,
			CCV:         pay.Card.CCV,
		}
		if pay.Installments > 1 {
			chargeReq.InstallmentCount = pay.Installments
		}
	}

	payment, err := s.Gateway.CreateCharge(ctx, chargeReq)
	if err != nil {
		return Result{}, asPaymentFailed(err)
	}

	ref := orders.PaymentRef{
		GatewayPaymentID: payment.ID,
		Method:           pay.Method,
		InvoiceURL:       payment.InvoiceURL,
	}

	if pay.Method == MethodPix {
		qr, err := s.Gateway.FetchQrCode(ctx, payment.ID)
		if err != nil {
			// the charge exists; do not roll back a live charge over a QR
			// hiccup — the invoice URL still lets the buyer pay
			log.Printf("checkout: qr fetch for %s: %v", o.ID, err)
		} else {
			ref.Pix = &orders.PixPayload{
				QrImageBase64: qr.EncodedImage,
				Payload:       qr.Payload,
				Expiration:    qr.Expiration,
			}
		}
		if err := s.Store.AttachPayment(ctx, o.ID, ref); err != nil {
			return Result{}, err
		}
		if err := s.Store.MarkPending(ctx, o.ID); err != nil {
			return Result{}, err
		}
		return Result{
			OrderID:     o.ID,
			OrderNumber: o.Number,
			Method:      MethodPix,
			Pix:         ref.Pix,
			InvoiceURL:  payment.InvoiceURL,
		}, nil
	}

	if err := s.Store.AttachPayment(ctx, o.ID, ref); err != nil {
		return Result{}, err
	}
	status := "pending"
	if payment.Confirmed() {
		// same transition procedure the webhook path uses; if the webhook
		// got here first the guard makes this a no-op
		if _, err := s.Transitions.ConfirmPayment(ctx, o.ID); err != nil {
			return Result{}, err
		}
		status = "confirmed"
	} else {
		if err := s.Store.MarkPending(ctx, o.ID); err != nil {
			return Result{}, err
		}
	}
	return Result{
		OrderID:     o.ID,
		OrderNumber: o.Number,
		Method:      MethodCard,
		InvoiceURL:  payment.InvoiceURL,
		CardStatus:  status,
	}, nil
}

func (s *Service) validate(req Request) error {
	if req.BrandID == "" {
		return &orders.ValidationError{Field: "brand_id", Reason: "required"}
	}
	if len(req.Items) == 0 {
		return &orders.ValidationError{Field: "items", Reason: "at least one item required"}
	}
	for _, it := range req.Items {
		if it.ProductID == "" {
			return &orders.ValidationError{Field: "items", Reason: "product_id required"}
		}
		if it.Quantity <= 0 {
			return &orders.ValidationError{Field: "items", Reason: fmt.Sprintf("invalid quantity for product %s", it.ProductID)}
		}
	}
	switch req.Payment.Method {
	case MethodPix:
		if req.Payment.Installments > 1 {
			return &orders.ValidationError{Field: "payment", Reason: "installments are card-only"}
		}
	case MethodCard:
		if req.Payment.Card == nil {
			return &orders.ValidationError{Field: "payment.card", Reason: "card data required"}
		}
		maxInst := s.MaxInstallments
		if maxInst <= 0 {
			maxInst = 12
		}
		if req.Payment.Installments > maxInst {
			return &orders.InstallmentCapError{Requested: req.Payment.Installments, Max: maxInst}
		}
	default:
		return &orders.ValidationError{Field: "payment.method", Reason: "must be pix or card"}
	}
	return nil
}

// resolveIdentity merges the authenticated profile with an optional guest
// override; pure guest checkout is permitted.
func (s *Service) resolveIdentity(ctx context.Context, customerID string, guest *orders.GuestInfo) (gateway.CustomerIdentity, error) {
	var ident gateway.CustomerIdentity
	if customerID != "" {
		c, err := s.Store.Customer(ctx, customerID)
		if err != nil {
			return ident, err
		}
		ident = gateway.CustomerIdentity{Name: c.Name, Email: c.Email, TaxID: c.TaxID, Phone: c.Phone}
	}
	if guest != nil {
		if guest.Name != "" {
			ident.Name = guest.Name
		}
		if guest.Email != "" {
			ident.Email = guest.Email
		}
		if guest.TaxID != "" {
			ident.TaxID = guest.TaxID
		}
		if guest.Phone != "" {
			ident.Phone = guest.Phone
		}
	}
	if ident.Name == "" || ident.Email == "" {
		return ident, &orders.ValidationError{Field: "guest_info", Reason: "name and email required"}
	}
	if !validTaxID(ident.TaxID) {
		return ident, &orders.ValidationError{Field: "tax_id", Reason: "must be a valid CPF or CNPJ"}
	}
	return ident, nil
}

// validTaxID accepts CPF (11 digits) or CNPJ (14 digits).
func validTaxID(s string) bool {
	if len(s) != 11 && len(s) != 14 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func asPaymentFailed(err error) error {
	var gerr *gateway.Error
	if errors.As(err, &gerr) {
		log.Printf("checkout: gateway error: %v", gerr)
		return &orders.PaymentFailedError{Code: gerr.Code, Message: gerr.UserMessage(), Err: err}
	}
	return &orders.PaymentFailedError{Code: "gateway_unavailable", Message: "Não foi possível processar o pagamento. Tente novamente em instantes.", Err: err}
}

func (s *Service) publishCreated(o *orders.Order) {
	if s.Producer == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderCreated,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		CorrelationID: o.ID,
		Payload: kafkax.MustMarshal(orders.OrderCreatedPayload{
			OrderID:       o.ID,
			OrderNumber:   o.Number,
			BrandID:       o.BrandID,
			CustomerID:    o.CustomerID,
			Items:         o.Items,
			TotalCents:    o.TotalCents,
			PaymentMethod: o.PaymentMethod,
		}),
	}
	s.Producer.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderCreated)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
