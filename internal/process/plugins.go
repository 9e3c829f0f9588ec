package process

import (
	"context"
	"slices"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/orderflow/internal/domain/order"
	"github.com/xenking/orderflow/internal/fsm"
)

// NoCancelAfterSettlement removes the Cancelled target from every order
// state from PaymentSettled onwards. Settled orders must be refunded
// instead.
func NoCancelAfterSettlement() OrderProcess {
	base := OrderTransitions()
	states := []order.State{
		order.StatePaymentSettled,
		order.StatePartiallyShipped,
		order.StateShipped,
		order.StatePartiallyDelivered,
		order.StateDelivered,
	}

	ext := make(fsm.Transitions[order.State], len(states))
	for _, s := range states {
		ext[s] = fsm.Transition[order.State]{
			To: slices.DeleteFunc(slices.Clone(base[s].To), func(to order.State) bool {
				return to == order.StateCancelled
			}),
			MergeStrategy: fsm.MergeReplace,
		}
	}
	return OrderProcess{
		Name:        "no-cancel-after-settlement",
		Transitions: ext,
	}
}

// Telemetry counts committed and rejected transitions of every process.
type Telemetry struct {
	transitions metric.Int64Counter
	rejected    metric.Int64Counter
}

// NewTelemetry creates the transition counters.
func NewTelemetry(mp metric.MeterProvider) (*Telemetry, error) {
	meter := mp.Meter("github.com/xenking/orderflow/internal/process")

	transitions, err := meter.Int64Counter("orderflow.process.transitions",
		metric.WithDescription("Committed state transitions"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "transitions counter")
	}
	rejected, err := meter.Int64Counter("orderflow.process.rejected_transitions",
		metric.WithDescription("Illegal or vetoed state transitions"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "rejected counter")
	}
	return &Telemetry{transitions: transitions, rejected: rejected}, nil
}

// Plugins returns a telemetry process for each definition.
func (t *Telemetry) Plugins() Plugins {
	return Plugins{
		Order:       []OrderProcess{telemetryProcess[order.State, OrderData](t, NameOrder)},
		Payment:     []PaymentProcess{telemetryProcess[order.PaymentState, PaymentData](t, NamePayment)},
		Refund:      []RefundProcess{telemetryProcess[order.RefundState, RefundData](t, NameRefund)},
		Fulfillment: []FulfillmentProcess{telemetryProcess[order.FulfillmentState, FulfillmentData](t, NameFulfillment)},
	}
}

func telemetryProcess[S ~string, D any](t *Telemetry, name string) fsm.Process[S, D] {
	return fsm.Process[S, D]{
		Name: "telemetry",
		OnTransitionEnd: func(ctx context.Context, from, to S, _ D) error {
			t.transitions.Add(ctx, 1, metric.WithAttributes(
				attribute.String("process", name),
				attribute.String("from", string(from)),
				attribute.String("to", string(to)),
			))
			return nil
		},
		OnError: func(ctx context.Context, from, to S, message string) {
			t.rejected.Add(ctx, 1, metric.WithAttributes(
				attribute.String("process", name),
				attribute.String("from", string(from)),
				attribute.String("to", string(to)),
				attribute.Bool("vetoed", message != ""),
			))
		},
	}
}
