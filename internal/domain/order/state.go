package order

// State is the lifecycle state of an Order.
type State string

// Order states.
const (
	StateCreated                    State = "Created"
	StateAddingItems                State = "AddingItems"
	StateArrangingPayment           State = "ArrangingPayment"
	StatePaymentAuthorized          State = "PaymentAuthorized"
	StatePaymentSettled             State = "PaymentSettled"
	StatePartiallyShipped           State = "PartiallyShipped"
	StateShipped                    State = "Shipped"
	StatePartiallyDelivered         State = "PartiallyDelivered"
	StateDelivered                  State = "Delivered"
	StateModifying                  State = "Modifying"
	StateArrangingAdditionalPayment State = "ArrangingAdditionalPayment"
	StateCancelled                  State = "Cancelled"
)

// IsPlaced reports whether the order has been placed, i.e. payment has been
// arranged and the order has left the active shopping phase.
func (s State) IsPlaced() bool {
	switch s {
	case StateCreated, StateAddingItems, StateArrangingPayment:
		return false
	default:
		return true
	}
}

// PaymentState is the lifecycle state of a Payment.
type PaymentState string

// Payment states.
const (
	PaymentCreated    PaymentState = "Created"
	PaymentAuthorized PaymentState = "Authorized"
	PaymentSettled    PaymentState = "Settled"
	PaymentDeclined   PaymentState = "Declined"
	PaymentError      PaymentState = "Error"
	PaymentCancelled  PaymentState = "Cancelled"
)

// RefundState is the lifecycle state of a Refund.
type RefundState string

// Refund states.
const (
	RefundPending RefundState = "Pending"
	RefundSettled RefundState = "Settled"
	RefundFailed  RefundState = "Failed"
)

// FulfillmentState is the lifecycle state of a Fulfillment.
type FulfillmentState string

// Fulfillment states.
const (
	FulfillmentCreated   FulfillmentState = "Created"
	FulfillmentPending   FulfillmentState = "Pending"
	FulfillmentShipped   FulfillmentState = "Shipped"
	FulfillmentDelivered FulfillmentState = "Delivered"
	FulfillmentCancelled FulfillmentState = "Cancelled"
)
