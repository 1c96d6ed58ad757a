package orders

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrCouponNotFound = errors.New("coupon not found")
	ErrBrandNotFound  = errors.New("brand not found")
)

// ValidationError: malformed input, rejected before any side effect.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidItemError: unknown or inactive product/variant.
type InvalidItemError struct {
	ProductID string
	VariantID string
	Reason    string
}

func (e *InvalidItemError) Error() string {
	return fmt.Sprintf("invalid item %s: %s", e.ProductID, e.Reason)
}

// BrandMismatchError: item belongs to a different tenant than the order.
type BrandMismatchError struct {
	ProductID string
	BrandID   string
}

func (e *BrandMismatchError) Error() string {
	return fmt.Sprintf("product %s does not belong to brand %s", e.ProductID, e.BrandID)
}

type BelowMinimumOrderError struct {
	MinimumCents  int64
	SubtotalCents int64
}

func (e *BelowMinimumOrderError) Error() string {
	return fmt.Sprintf("subtotal %d below brand minimum %d", e.SubtotalCents, e.MinimumCents)
}

type InstallmentCapError struct {
	Requested int
	Max       int
}

func (e *InstallmentCapError) Error() string {
	return fmt.Sprintf("installments %d exceed cap %d", e.Requested, e.Max)
}

// OutOfStockError names the first item that could not be reserved.
type OutOfStockError struct {
	ProductID string
	Name      string
	Requested int
	Available int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("out of stock: %s (requested %d, available %d)", e.Name, e.Requested, e.Available)
}

// PaymentFailedError wraps a gateway failure that happened after reservation;
// by the time the caller sees it, rollback has already completed.
type PaymentFailedError struct {
	Code    string
	Message string
	Err     error
}

func (e *PaymentFailedError) Error() string {
	return fmt.Sprintf("payment failed (%s): %s", e.Code, e.Message)
}

func (e *PaymentFailedError) Unwrap() error { return e.Err }
