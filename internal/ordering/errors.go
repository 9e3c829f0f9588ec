package ordering

import (
	"fmt"

	"github.com/go-faster/errors"
)

var (
	// ErrOrderNotModifiable is returned when lines are changed outside the
	// AddingItems and Modifying states.
	ErrOrderNotModifiable = errors.New("order cannot be modified in its current state")
	// ErrInvalidQuantity is returned for a non-positive quantity.
	ErrInvalidQuantity = errors.New("quantity must be positive")
	// ErrLineNotFound is returned when an order line does not exist.
	ErrLineNotFound = errors.New("order line not found")
	// ErrVariantUnavailable is returned when a variant is disabled.
	ErrVariantUnavailable = errors.New("product variant is not available")
	// ErrPaymentNotFound is returned when a payment does not exist.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrRefundNotFound is returned when a refund does not exist.
	ErrRefundNotFound = errors.New("refund not found")
	// ErrFulfillmentNotFound is returned when a fulfillment does not exist.
	ErrFulfillmentNotFound = errors.New("fulfillment not found")
	// ErrOrderNotPayable is returned when a payment is added to an order
	// that is not arranging payment.
	ErrOrderNotPayable = errors.New("order is not arranging payment")
	// ErrRefundExceedsPayment is returned when a refund is larger than what
	// is left of the payment.
	ErrRefundExceedsPayment = errors.New("refund exceeds refundable amount")
	// ErrItemNotFulfillable is returned when an item is cancelled or
	// already part of a fulfillment.
	ErrItemNotFulfillable = errors.New("item cannot be fulfilled")
	// ErrShippingMethodIneligible is returned when the selected method
	// cannot ship the order.
	ErrShippingMethodIneligible = errors.New("shipping method is not eligible for the order")
)

// InsufficientStockError indicates that a variant does not have enough
// saleable stock for the requested quantity. The whole operation fails; the
// quantity is never clamped.
type InsufficientStockError struct {
	VariantID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for variant %s: requested %d, available %d", e.VariantID, e.Requested, e.Available)
}
