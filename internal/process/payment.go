package process

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/orderflow/internal/domain/order"
	"github.com/xenking/orderflow/internal/fsm"
)

// PaymentTransitions returns the default payment graph.
func PaymentTransitions() fsm.Transitions[order.PaymentState] {
	return fsm.Transitions[order.PaymentState]{
		order.PaymentCreated: {To: []order.PaymentState{
			order.PaymentAuthorized,
			order.PaymentSettled,
			order.PaymentDeclined,
			order.PaymentError,
			order.PaymentCancelled,
		}},
		order.PaymentAuthorized: {To: []order.PaymentState{
			order.PaymentSettled,
			order.PaymentError,
			order.PaymentCancelled,
		}},
		order.PaymentSettled:   {To: []order.PaymentState{order.PaymentCancelled}},
		order.PaymentDeclined:  {To: []order.PaymentState{order.PaymentCancelled}},
		order.PaymentError:     {To: []order.PaymentState{order.PaymentCancelled}},
		order.PaymentCancelled: {},
	}
}

// Payment composes the payment definition.
func Payment(opts Options, plugins ...PaymentProcess) (*PaymentDefinition, error) {
	return fsm.Compose(fsm.Config[order.PaymentState, PaymentData]{
		Name:        NamePayment,
		Initial:     order.PaymentCreated,
		Transitions: PaymentTransitions(),
		Processes:   append([]PaymentProcess{defaultPaymentProcess(opts)}, plugins...),
		OnIllegal:   illegal[order.PaymentState](NamePayment),
	})
}

func defaultPaymentProcess(opts Options) PaymentProcess {
	return PaymentProcess{
		Name: "default-payment-process",
		OnTransitionStart: func(_ context.Context, _, to order.PaymentState, data PaymentData) error {
			if to == order.PaymentCancelled && data.Payment.RefundedAmount("") > 0 {
				return errors.New("payment has settled refunds")
			}
			return nil
		},
		OnTransitionEnd: func(_ context.Context, from, to order.PaymentState, data PaymentData) error {
			data.Order.Record(order.HistoryPaymentTransition, data.Payment.ID, string(from), string(to), opts.now())
			return nil
		},
	}
}
