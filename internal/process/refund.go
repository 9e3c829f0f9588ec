package process

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/orderflow/internal/domain/order"
	"github.com/xenking/orderflow/internal/fsm"
)

// RefundTransitions returns the default refund graph.
func RefundTransitions() fsm.Transitions[order.RefundState] {
	return fsm.Transitions[order.RefundState]{
		order.RefundPending: {To: []order.RefundState{order.RefundSettled, order.RefundFailed}},
		order.RefundSettled: {},
		order.RefundFailed:  {},
	}
}

// Refund composes the refund definition.
func Refund(opts Options, plugins ...RefundProcess) (*RefundDefinition, error) {
	return fsm.Compose(fsm.Config[order.RefundState, RefundData]{
		Name:        NameRefund,
		Initial:     order.RefundPending,
		Transitions: RefundTransitions(),
		Processes:   append([]RefundProcess{defaultRefundProcess(opts)}, plugins...),
		OnIllegal:   illegal[order.RefundState](NameRefund),
	})
}

// Refundable returns how much of a payment can still be refunded, ignoring
// the refund with the given ID.
func Refundable(p *order.Payment, exceptRefundID string) int64 {
	if p.State != order.PaymentSettled {
		return 0
	}
	return p.Amount - p.RefundedAmount(exceptRefundID)
}

func defaultRefundProcess(opts Options) RefundProcess {
	return RefundProcess{
		Name: "default-refund-process",
		OnTransitionStart: func(_ context.Context, _, to order.RefundState, data RefundData) error {
			if to != order.RefundSettled {
				return nil
			}
			if left := Refundable(data.Payment, data.Refund.ID); data.Refund.Total() > left {
				return errors.Errorf("refund of %d exceeds refundable amount %d", data.Refund.Total(), left)
			}
			return nil
		},
		OnTransitionEnd: func(_ context.Context, from, to order.RefundState, data RefundData) error {
			data.Order.Record(order.HistoryRefundTransition, data.Refund.ID, string(from), string(to), opts.now())
			return nil
		},
	}
}
