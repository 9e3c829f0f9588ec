package ordering

import (
	"context"

	"github.com/xenking/orderflow/internal/domain/order"
	"github.com/xenking/orderflow/internal/process"
)

// plugins returns the processes that propagate payment and fulfillment
// changes to the order state.
func (s *Service) plugins() process.Plugins {
	return process.Plugins{
		Payment: []process.PaymentProcess{{
			Name: "order-payment-propagation",
			OnTransitionEnd: func(ctx context.Context, _, to order.PaymentState, data process.PaymentData) error {
				if to != order.PaymentAuthorized && to != order.PaymentSettled {
					return nil
				}
				o := data.Order
				switch {
				case o.IsCoveredBy(order.PaymentSettled):
					return s.follow(ctx, o, order.StatePaymentSettled)
				case o.IsCoveredBy(order.PaymentAuthorized, order.PaymentSettled):
					return s.follow(ctx, o, order.StatePaymentAuthorized)
				}
				return nil
			},
		}},
		Fulfillment: []process.FulfillmentProcess{{
			Name: "order-fulfillment-propagation",
			OnTransitionEnd: func(ctx context.Context, _, _ order.FulfillmentState, data process.FulfillmentData) error {
				target, ok := process.FulfilledState(data.Order.FulfillmentCoverage())
				if !ok {
					return nil
				}
				return s.follow(ctx, data.Order, target)
			},
		}},
	}
}

// follow moves the order to target when its graph allows it. Targets the
// graph does not allow from the current state are skipped.
func (s *Service) follow(ctx context.Context, o *order.Order, target order.State) error {
	if o.State == target || !s.defs.Order.Restore(o.State).CanTransitionTo(target) {
		return nil
	}
	return s.transitionOrder(ctx, o, target)
}
