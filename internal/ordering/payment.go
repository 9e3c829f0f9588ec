package ordering

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/orderflow/internal/domain/order"
	"github.com/xenking/orderflow/internal/process"
)

// AddPayment records a new payment against an order that is arranging
// payment. A non-positive amount pays the outstanding balance.
func (s *Service) AddPayment(ctx context.Context, orderID, method string, amount int64) (*order.Payment, error) {
	ctx, done := s.start(ctx, "AddPayment", orderID)
	defer done()

	o, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	switch o.State {
	case order.StateArrangingPayment, order.StateArrangingAdditionalPayment:
	default:
		return nil, errors.Wrapf(ErrOrderNotPayable, "order %s is %s", o.ID, o.State)
	}
	if amount <= 0 {
		amount = o.OutstandingBalance()
	}

	p := &order.Payment{
		ID:        s.newID(),
		Method:    method,
		Amount:    amount,
		State:     s.defs.Payment.Initial(),
		Metadata:  map[string]string{},
		CreatedAt: s.now(),
	}
	o.Payments = append(o.Payments, p)
	if err := s.save(ctx, o, nil); err != nil {
		return nil, err
	}
	return p, nil
}

// TransitionPayment moves a payment to the given state. Once authorized or
// settled payments cover the order, the order follows.
func (s *Service) TransitionPayment(ctx context.Context, orderID, paymentID string, to order.PaymentState) (*order.Payment, error) {
	ctx, done := s.start(ctx, "TransitionPayment", orderID)
	defer done()

	o, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	p, ok := o.Payment(paymentID)
	if !ok {
		return nil, errors.Wrapf(ErrPaymentNotFound, "payment %s", paymentID)
	}

	m := s.defs.Payment.Restore(p.State)
	res, err := m.Transition(ctx, to, process.PaymentData{Order: o, Payment: p})
	if err != nil {
		return nil, err
	}
	if !res.Committed {
		return p, nil
	}
	p.State = m.Current()
	if err := s.save(ctx, o, nil); err != nil {
		return nil, err
	}
	if err := res.Finalize(ctx); err != nil {
		return nil, errors.Wrapf(err, "finalize payment transition to %s", to)
	}
	if err := s.save(ctx, o, nil); err != nil {
		return nil, err
	}
	return p, nil
}

// RefundInput describes the amounts of a new refund.
type RefundInput struct {
	Items      int64
	Shipping   int64
	Adjustment int64
	Reason     string
}

// CreateRefund creates a pending refund against a settled payment.
func (s *Service) CreateRefund(ctx context.Context, orderID, paymentID string, in RefundInput) (*order.Refund, error) {
	ctx, done := s.start(ctx, "CreateRefund", orderID)
	defer done()

	o, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	p, ok := o.Payment(paymentID)
	if !ok {
		return nil, errors.Wrapf(ErrPaymentNotFound, "payment %s", paymentID)
	}

	r := &order.Refund{
		ID:         s.newID(),
		PaymentID:  p.ID,
		Items:      in.Items,
		Shipping:   in.Shipping,
		Adjustment: in.Adjustment,
		Reason:     in.Reason,
		State:      s.defs.Refund.Initial(),
		CreatedAt:  s.now(),
	}
	if total, left := r.Total(), process.Refundable(p, ""); total <= 0 || total > left {
		return nil, errors.Wrapf(ErrRefundExceedsPayment, "refund of %d, refundable %d", total, left)
	}
	p.Refunds = append(p.Refunds, r)
	if err := s.save(ctx, o, nil); err != nil {
		return nil, err
	}
	return r, nil
}

// TransitionRefund moves a refund to the given state.
func (s *Service) TransitionRefund(ctx context.Context, orderID, refundID string, to order.RefundState) (*order.Refund, error) {
	ctx, done := s.start(ctx, "TransitionRefund", orderID)
	defer done()

	o, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	r, p, ok := o.Refund(refundID)
	if !ok {
		return nil, errors.Wrapf(ErrRefundNotFound, "refund %s", refundID)
	}

	m := s.defs.Refund.Restore(r.State)
	res, err := m.Transition(ctx, to, process.RefundData{Order: o, Payment: p, Refund: r})
	if err != nil {
		return nil, err
	}
	if !res.Committed {
		return r, nil
	}
	r.State = m.Current()
	if err := s.save(ctx, o, nil); err != nil {
		return nil, err
	}
	if err := res.Finalize(ctx); err != nil {
		return nil, errors.Wrapf(err, "finalize refund transition to %s", to)
	}
	if err := s.save(ctx, o, nil); err != nil {
		return nil, err
	}
	return r, nil
}
