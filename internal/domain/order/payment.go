package order

import "time"

// Payment is a payment made against an order.
type Payment struct {
	ID            string
	Method        string
	Amount        int64
	State         PaymentState
	TransactionID string
	ErrorMessage  string
	Metadata      map[string]string
	Refunds       []*Refund
	CreatedAt     time.Time
}

// RefundedAmount returns the total of the payment's settled refunds,
// ignoring the refund with the given ID.
func (p *Payment) RefundedAmount(exceptID string) int64 {
	var total int64
	for _, r := range p.Refunds {
		if r.ID != exceptID && r.State == RefundSettled {
			total += r.Total()
		}
	}
	return total
}

// Refund returns back part of a settled payment.
type Refund struct {
	ID            string
	PaymentID     string
	Items         int64
	Shipping      int64
	Adjustment    int64
	Reason        string
	State         RefundState
	TransactionID string
	CreatedAt     time.Time
}

// Total returns the amount refunded.
func (r *Refund) Total() int64 {
	return r.Items + r.Shipping + r.Adjustment
}

// Fulfillment records the shipment of some of an order's items. Items are
// linked through OrderItem.FulfillmentID.
type Fulfillment struct {
	ID           string
	Method       string
	TrackingCode string
	State        FulfillmentState
	CreatedAt    time.Time
}
