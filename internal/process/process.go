// Package process declares the Order, Payment, Refund and Fulfillment
// state machines: their default transition graphs, the guards and side
// effects every deployment needs, and optional plugins.
//
// Each constructor composes the default process with the given plugins,
// validates the merged graph and returns an immutable fsm.Definition.
// Definitions are built once at boot and shared by every request.
package process

import (
	"time"

	"github.com/xenking/orderflow/internal/domain/order"
	"github.com/xenking/orderflow/internal/fsm"
)

// OrderData is passed to order transition hooks.
type OrderData struct {
	Order *order.Order
}

// PaymentData is passed to payment transition hooks.
type PaymentData struct {
	Order   *order.Order
	Payment *order.Payment
}

// RefundData is passed to refund transition hooks.
type RefundData struct {
	Order   *order.Order
	Payment *order.Payment
	Refund  *order.Refund
}

// FulfillmentData is passed to fulfillment transition hooks.
type FulfillmentData struct {
	Order       *order.Order
	Fulfillment *order.Fulfillment
}

type (
	OrderProcess       = fsm.Process[order.State, OrderData]
	PaymentProcess     = fsm.Process[order.PaymentState, PaymentData]
	RefundProcess      = fsm.Process[order.RefundState, RefundData]
	FulfillmentProcess = fsm.Process[order.FulfillmentState, FulfillmentData]

	OrderDefinition       = fsm.Definition[order.State, OrderData]
	PaymentDefinition     = fsm.Definition[order.PaymentState, PaymentData]
	RefundDefinition      = fsm.Definition[order.RefundState, RefundData]
	FulfillmentDefinition = fsm.Definition[order.FulfillmentState, FulfillmentData]
)

// Names of the four definitions, used in errors and metrics.
const (
	NameOrder       = "order"
	NamePayment     = "payment"
	NameRefund      = "refund"
	NameFulfillment = "fulfillment"
)

// Options configure the default processes.
type Options struct {
	// Now returns the time recorded in history entries. Defaults to
	// time.Now.
	Now func() time.Time
	// RequireShippingMethod blocks ArrangingPayment until a shipping method
	// is selected.
	RequireShippingMethod bool
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// illegal returns the fatal handler shared by all four definitions.
func illegal[S ~string](name string) func(from, to S, message string) error {
	return func(from, to S, message string) error {
		return &fsm.IllegalTransitionError{
			Process: name,
			From:    string(from),
			To:      string(to),
			Message: message,
		}
	}
}

// Definitions bundles the four composed definitions.
type Definitions struct {
	Order       *OrderDefinition
	Payment     *PaymentDefinition
	Refund      *RefundDefinition
	Fulfillment *FulfillmentDefinition
}

// Plugins groups extra processes per definition.
type Plugins struct {
	Order       []OrderProcess
	Payment     []PaymentProcess
	Refund      []RefundProcess
	Fulfillment []FulfillmentProcess
}

// Merge appends the processes of other after those of p.
func (p Plugins) Merge(other Plugins) Plugins {
	return Plugins{
		Order:       append(append([]OrderProcess(nil), p.Order...), other.Order...),
		Payment:     append(append([]PaymentProcess(nil), p.Payment...), other.Payment...),
		Refund:      append(append([]RefundProcess(nil), p.Refund...), other.Refund...),
		Fulfillment: append(append([]FulfillmentProcess(nil), p.Fulfillment...), other.Fulfillment...),
	}
}

// Build composes all four definitions.
func Build(opts Options, plugins Plugins) (*Definitions, error) {
	o, err := Order(opts, plugins.Order...)
	if err != nil {
		return nil, err
	}
	p, err := Payment(opts, plugins.Payment...)
	if err != nil {
		return nil, err
	}
	r, err := Refund(opts, plugins.Refund...)
	if err != nil {
		return nil, err
	}
	f, err := Fulfillment(opts, plugins.Fulfillment...)
	if err != nil {
		return nil, err
	}
	return &Definitions{Order: o, Payment: p, Refund: r, Fulfillment: f}, nil
}

// Graph is a read-only view of a composed definition.
type Graph struct {
	Name        string
	Initial     string
	Processes   []string
	Transitions map[string][]string
	Unreachable []string
}

func graphOf[S ~string, D any](def *fsm.Definition[S, D]) Graph {
	g := Graph{
		Name:        def.Name(),
		Initial:     string(def.Initial()),
		Processes:   def.Processes(),
		Transitions: make(map[string][]string),
	}
	for state, tr := range def.Transitions() {
		to := make([]string, len(tr.To))
		for i, s := range tr.To {
			to[i] = string(s)
		}
		g.Transitions[string(state)] = to
	}
	for _, s := range def.Validation().Unreachable {
		g.Unreachable = append(g.Unreachable, string(s))
	}
	return g
}

// Graphs returns the merged graph of every definition, in a fixed order.
func (d *Definitions) Graphs() []Graph {
	return []Graph{
		graphOf(d.Order),
		graphOf(d.Payment),
		graphOf(d.Refund),
		graphOf(d.Fulfillment),
	}
}
