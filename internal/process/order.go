package process

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/orderflow/internal/domain/order"
	"github.com/xenking/orderflow/internal/fsm"
)

// OrderTransitions returns the default order graph. Cancelled is terminal.
func OrderTransitions() fsm.Transitions[order.State] {
	return fsm.Transitions[order.State]{
		order.StateCreated: {To: []order.State{order.StateAddingItems}},
		order.StateAddingItems: {To: []order.State{
			order.StateArrangingPayment,
			order.StateCancelled,
		}},
		order.StateArrangingPayment: {To: []order.State{
			order.StatePaymentAuthorized,
			order.StatePaymentSettled,
			order.StateAddingItems,
			order.StateCancelled,
		}},
		order.StatePaymentAuthorized: {To: []order.State{
			order.StatePaymentSettled,
			order.StateModifying,
			order.StateCancelled,
		}},
		order.StatePaymentSettled: {To: []order.State{
			order.StatePartiallyShipped,
			order.StateShipped,
			order.StatePartiallyDelivered,
			order.StateDelivered,
			order.StateModifying,
			order.StateCancelled,
		}},
		order.StatePartiallyShipped: {To: []order.State{
			order.StateShipped,
			order.StatePartiallyDelivered,
			order.StateDelivered,
			order.StateModifying,
			order.StateCancelled,
		}},
		order.StateShipped: {To: []order.State{
			order.StatePartiallyDelivered,
			order.StateDelivered,
			order.StateCancelled,
		}},
		order.StatePartiallyDelivered: {To: []order.State{
			order.StateDelivered,
			order.StateCancelled,
		}},
		order.StateDelivered: {To: []order.State{order.StateCancelled}},
		order.StateModifying: {To: []order.State{
			order.StateArrangingAdditionalPayment,
			order.StatePaymentAuthorized,
			order.StatePaymentSettled,
			order.StatePartiallyShipped,
			order.StateCancelled,
		}},
		order.StateArrangingAdditionalPayment: {To: []order.State{
			order.StatePaymentAuthorized,
			order.StatePaymentSettled,
			order.StatePartiallyShipped,
			order.StateCancelled,
		}},
		order.StateCancelled: {},
	}
}

// Order composes the order definition from the default process and the
// given plugins.
func Order(opts Options, plugins ...OrderProcess) (*OrderDefinition, error) {
	return fsm.Compose(fsm.Config[order.State, OrderData]{
		Name:        NameOrder,
		Initial:     order.StateCreated,
		Transitions: OrderTransitions(),
		Processes:   append([]OrderProcess{defaultOrderProcess(opts)}, plugins...),
		OnIllegal:   illegal[order.State](NameOrder),
	})
}

func defaultOrderProcess(opts Options) OrderProcess {
	return OrderProcess{
		Name: "default-order-process",
		OnTransitionStart: func(_ context.Context, from, to order.State, data OrderData) error {
			return checkOrderTransition(opts, from, to, data.Order)
		},
		OnTransitionEnd: func(_ context.Context, from, to order.State, data OrderData) error {
			o := data.Order
			now := opts.now()
			o.Record(order.HistoryOrderTransition, o.ID, string(from), string(to), now)

			switch to {
			case order.StatePaymentAuthorized, order.StatePaymentSettled:
				if !from.IsPlaced() {
					o.Active = false
					o.PlacedAt = &now
				}
			case order.StateCancelled:
				o.Active = false
				for _, item := range o.ActiveItems() {
					item.Cancelled = true
				}
			}
			return nil
		},
	}
}

func checkOrderTransition(opts Options, from, to order.State, o *order.Order) error {
	switch from {
	case order.StateModifying, order.StateArrangingAdditionalPayment:
		if to != order.StateCancelled && to != order.StateArrangingAdditionalPayment && o.OutstandingBalance() > 0 {
			return errors.Errorf("order has an outstanding balance of %d", o.OutstandingBalance())
		}
	}

	switch to {
	case order.StateArrangingPayment:
		if len(o.ActiveItems()) == 0 {
			return errors.New("order is empty")
		}
		if o.CustomerID == "" {
			return errors.New("order has no customer")
		}
		if opts.RequireShippingMethod && !hasShippingMethod(o) {
			return errors.New("order has no shipping method")
		}
	case order.StatePaymentAuthorized:
		if !o.IsCoveredBy(order.PaymentAuthorized, order.PaymentSettled) {
			return errors.New("authorized payments do not cover the order total")
		}
	case order.StatePaymentSettled:
		if !o.IsCoveredBy(order.PaymentSettled) {
			return errors.New("settled payments do not cover the order total")
		}
	case order.StatePartiallyShipped:
		if c := o.FulfillmentCoverage(); c.Shipped == 0 {
			return errors.New("no items have shipped")
		}
	case order.StateShipped:
		if c := o.FulfillmentCoverage(); c.Total == 0 || c.Shipped < c.Total {
			return errors.New("not all items have shipped")
		}
	case order.StatePartiallyDelivered:
		if c := o.FulfillmentCoverage(); c.Delivered == 0 {
			return errors.New("no items have been delivered")
		}
	case order.StateDelivered:
		if c := o.FulfillmentCoverage(); c.Total == 0 || c.Delivered < c.Total {
			return errors.New("not all items have been delivered")
		}
	case order.StateArrangingAdditionalPayment:
		if o.OutstandingBalance() <= 0 {
			return errors.New("order has no outstanding balance")
		}
	}
	return nil
}

func hasShippingMethod(o *order.Order) bool {
	for _, sl := range o.ShippingLines {
		if sl.ShippingMethodID != "" {
			return true
		}
	}
	return false
}

// FulfilledState derives the order state implied by the fulfillment
// coverage of its active items. ok is false while nothing has shipped.
func FulfilledState(c order.FulfillmentCoverage) (order.State, bool) {
	switch {
	case c.Total == 0:
		return "", false
	case c.Delivered == c.Total:
		return order.StateDelivered, true
	case c.Delivered > 0:
		return order.StatePartiallyDelivered, true
	case c.Shipped == c.Total:
		return order.StateShipped, true
	case c.Shipped > 0:
		return order.StatePartiallyShipped, true
	default:
		return "", false
	}
}
