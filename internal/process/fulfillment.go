package process

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/orderflow/internal/domain/order"
	"github.com/xenking/orderflow/internal/fsm"
)

// FulfillmentTransitions returns the default fulfillment graph.
func FulfillmentTransitions() fsm.Transitions[order.FulfillmentState] {
	return fsm.Transitions[order.FulfillmentState]{
		order.FulfillmentCreated: {To: []order.FulfillmentState{order.FulfillmentPending}},
		order.FulfillmentPending: {To: []order.FulfillmentState{
			order.FulfillmentShipped,
			order.FulfillmentDelivered,
			order.FulfillmentCancelled,
		}},
		order.FulfillmentShipped: {To: []order.FulfillmentState{
			order.FulfillmentDelivered,
			order.FulfillmentCancelled,
		}},
		order.FulfillmentDelivered: {To: []order.FulfillmentState{order.FulfillmentCancelled}},
		order.FulfillmentCancelled: {},
	}
}

// Fulfillment composes the fulfillment definition.
func Fulfillment(opts Options, plugins ...FulfillmentProcess) (*FulfillmentDefinition, error) {
	return fsm.Compose(fsm.Config[order.FulfillmentState, FulfillmentData]{
		Name:        NameFulfillment,
		Initial:     order.FulfillmentCreated,
		Transitions: FulfillmentTransitions(),
		Processes:   append([]FulfillmentProcess{defaultFulfillmentProcess(opts)}, plugins...),
		OnIllegal:   illegal[order.FulfillmentState](NameFulfillment),
	})
}

func defaultFulfillmentProcess(opts Options) FulfillmentProcess {
	return FulfillmentProcess{
		Name: "default-fulfillment-process",
		OnTransitionStart: func(_ context.Context, _, to order.FulfillmentState, data FulfillmentData) error {
			if to == order.FulfillmentCancelled {
				return nil
			}
			if !data.Order.State.IsPlaced() || data.Order.State == order.StateCancelled {
				return errors.Errorf("order in state %s cannot be fulfilled", data.Order.State)
			}
			return nil
		},
		OnTransitionEnd: func(_ context.Context, from, to order.FulfillmentState, data FulfillmentData) error {
			data.Order.Record(order.HistoryFulfillmentTransition, data.Fulfillment.ID, string(from), string(to), opts.now())
			if to == order.FulfillmentCancelled {
				for _, item := range data.Order.Items() {
					if item.FulfillmentID == data.Fulfillment.ID {
						item.FulfillmentID = ""
					}
				}
			}
			return nil
		},
	}
}
