package ordering

import (
	"context"
	"slices"

	"github.com/go-faster/errors"

	"github.com/xenking/orderflow/internal/domain/order"
	"github.com/xenking/orderflow/internal/process"
)

// CreateFulfillment groups active, unfulfilled items into a new fulfillment
// and moves it to Pending.
func (s *Service) CreateFulfillment(ctx context.Context, orderID, method, trackingCode string, itemIDs []string) (*order.Fulfillment, error) {
	ctx, done := s.start(ctx, "CreateFulfillment", orderID)
	defer done()

	o, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var items []*order.OrderItem
	for _, item := range o.Items() {
		if slices.Contains(itemIDs, item.ID) {
			items = append(items, item)
		}
	}
	if len(items) == 0 || len(items) != len(itemIDs) {
		return nil, errors.Wrap(ErrItemNotFulfillable, "unknown items")
	}
	for _, item := range items {
		if item.Cancelled || item.FulfillmentID != "" {
			return nil, errors.Wrapf(ErrItemNotFulfillable, "item %s", item.ID)
		}
	}

	f := &order.Fulfillment{
		ID:           s.newID(),
		Method:       method,
		TrackingCode: trackingCode,
		State:        s.defs.Fulfillment.Initial(),
		CreatedAt:    s.now(),
	}
	m := s.defs.Fulfillment.NewMachine()
	res, err := m.Transition(ctx, order.FulfillmentPending, process.FulfillmentData{Order: o, Fulfillment: f})
	if err != nil {
		return nil, err
	}
	f.State = m.Current()
	for _, item := range items {
		item.FulfillmentID = f.ID
	}
	o.Fulfillments = append(o.Fulfillments, f)
	if err := s.save(ctx, o, items); err != nil {
		return nil, err
	}
	if err := res.Finalize(ctx); err != nil {
		return nil, errors.Wrap(err, "finalize fulfillment creation")
	}
	if err := s.save(ctx, o, nil); err != nil {
		return nil, err
	}
	return f, nil
}

// TransitionFulfillment moves a fulfillment to the given state. The order
// state follows the shipped and delivered coverage of its items.
func (s *Service) TransitionFulfillment(ctx context.Context, orderID, fulfillmentID string, to order.FulfillmentState) (*order.Fulfillment, error) {
	ctx, done := s.start(ctx, "TransitionFulfillment", orderID)
	defer done()

	o, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	f, ok := o.Fulfillment(fulfillmentID)
	if !ok {
		return nil, errors.Wrapf(ErrFulfillmentNotFound, "fulfillment %s", fulfillmentID)
	}

	m := s.defs.Fulfillment.Restore(f.State)
	res, err := m.Transition(ctx, to, process.FulfillmentData{Order: o, Fulfillment: f})
	if err != nil {
		return nil, err
	}
	if !res.Committed {
		return f, nil
	}
	f.State = m.Current()

	var items []*order.OrderItem
	for _, item := range o.Items() {
		if item.FulfillmentID == f.ID {
			items = append(items, item)
		}
	}
	if err := s.save(ctx, o, nil); err != nil {
		return nil, err
	}
	if err := res.Finalize(ctx); err != nil {
		return nil, errors.Wrapf(err, "finalize fulfillment transition to %s", to)
	}
	if err := s.save(ctx, o, items); err != nil {
		return nil, err
	}
	return f, nil
}
