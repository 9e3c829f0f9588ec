// Package ordering is the order service: it loads orders, drives their
// state machines and re-prices them whenever their contents change.
//
// Every state change follows the same sequence: the machine commits the new
// state, the order is persisted, and only then do the end hooks run. Side
// effects of end hooks are persisted afterwards.
package ordering

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/orderflow/internal/domain/order"
	"github.com/xenking/orderflow/internal/domain/product"
	"github.com/xenking/orderflow/internal/domain/promotion"
	"github.com/xenking/orderflow/internal/domain/shipping"
	"github.com/xenking/orderflow/internal/pricing"
	"github.com/xenking/orderflow/internal/process"
)

// PriceCalculator re-prices an order.
type PriceCalculator interface {
	ApplyPriceAdjustments(ctx context.Context, o *order.Order, promotions []promotion.Promotion, changed []*order.OrderLine, opts ...pricing.Option) ([]*order.OrderItem, error)
}

// CouponService validates and redeems coupon codes.
type CouponService interface {
	Validate(ctx context.Context, code string) (order.Coupon, error)
	Redeem(ctx context.Context, coupons []order.Coupon) error
}

// ShippingMethods looks up shipping methods.
type ShippingMethods interface {
	Method(id string) (shipping.Method, error)
}

var (
	_ PriceCalculator = (*pricing.Calculator)(nil)
	_ CouponService   = (*promotion.CouponValidator)(nil)
	_ ShippingMethods = (*shipping.Registry)(nil)
)

// Config holds the collaborators of a Service.
type Config struct {
	Orders     order.Repository
	Products   product.Repository
	Promotions promotion.Repository
	Coupons    CouponService
	Calculator PriceCalculator
	Shipping   ShippingMethods

	// PricesIncludeTax is the channel pricing mode for variants that do not
	// set their own.
	PricesIncludeTax bool

	Options process.Options
	// Plugins are composed after the default processes and the service's
	// own propagation processes.
	Plugins        process.Plugins
	TracerProvider trace.TracerProvider
}

// Service implements the order operations.
type Service struct {
	orders     order.Repository
	products   product.Repository
	promotions promotion.Repository
	coupons    CouponService
	calculator PriceCalculator
	shipping   ShippingMethods

	pricesIncludeTax bool

	defs   *process.Definitions
	tracer trace.Tracer
	locks  orderLocks
	now    func() time.Time
	newID  func() string
}

// NewService creates a Service and composes its process definitions. It
// fails if any merged transition graph is invalid.
func NewService(cfg Config) (*Service, error) {
	tp := cfg.TracerProvider
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	s := &Service{
		orders:     cfg.Orders,
		products:   cfg.Products,
		promotions: cfg.Promotions,
		coupons:    cfg.Coupons,
		calculator: cfg.Calculator,
		shipping:   cfg.Shipping,

		pricesIncludeTax: cfg.PricesIncludeTax,

		tracer: tp.Tracer("github.com/xenking/orderflow/internal/ordering"),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	if cfg.Options.Now != nil {
		s.now = cfg.Options.Now
	}

	defs, err := process.Build(cfg.Options, s.plugins().Merge(cfg.Plugins))
	if err != nil {
		return nil, errors.Wrap(err, "build processes")
	}
	s.defs = defs
	return s, nil
}

// Definitions returns the composed process definitions.
func (s *Service) Definitions() *process.Definitions {
	return s.defs
}

// NextStates returns the states the order can move to next.
func (s *Service) NextStates(ctx context.Context, orderID string) ([]order.State, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	return s.defs.Order.Restore(o.State).NextStates(), nil
}

func (s *Service) start(ctx context.Context, name, orderID string) (context.Context, func()) {
	ctx, span := s.tracer.Start(ctx, "ordering."+name, trace.WithAttributes(
		attribute.String("order.id", orderID),
	))
	unlock := s.locks.lock(orderID)
	return ctx, func() {
		unlock()
		span.End()
	}
}

// load fetches an order for modification.
func (s *Service) load(ctx context.Context, orderID string) (*order.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}

func (s *Service) save(ctx context.Context, o *order.Order, changed []*order.OrderItem) error {
	o.UpdatedAt = s.now()
	if err := s.orders.Save(ctx, o, changed); err != nil {
		return errors.Wrap(err, "save order")
	}
	return nil
}

// CreateOrder creates an active order for the customer and moves it to
// AddingItems.
func (s *Service) CreateOrder(ctx context.Context, customerID string) (*order.Order, error) {
	id := s.newID()
	ctx, done := s.start(ctx, "CreateOrder", id)
	defer done()

	code := strings.ToUpper(strings.ReplaceAll(id, "-", ""))
	if len(code) > 12 {
		code = code[:12]
	}
	now := s.now()
	o := &order.Order{
		ID:         id,
		Code:       code,
		State:      s.defs.Order.Initial(),
		Active:     true,
		CustomerID: customerID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.save(ctx, o, nil); err != nil {
		return nil, err
	}
	if err := s.transitionOrder(ctx, o, order.StateAddingItems); err != nil {
		return nil, err
	}
	zctx.From(ctx).Info("Order created", zap.String("order_id", o.ID), zap.String("code", o.Code))
	return o, nil
}

// GetOrder returns an order.
func (s *Service) GetOrder(ctx context.Context, orderID string) (*order.Order, error) {
	return s.load(ctx, orderID)
}

// TransitionOrder moves the order to the given state.
func (s *Service) TransitionOrder(ctx context.Context, orderID string, to order.State) (*order.Order, error) {
	ctx, done := s.start(ctx, "TransitionOrder", orderID)
	defer done()

	o, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := s.transitionOrder(ctx, o, to); err != nil {
		return nil, err
	}
	return o, nil
}

// transitionOrder commits, persists and finalizes an order transition.
func (s *Service) transitionOrder(ctx context.Context, o *order.Order, to order.State) error {
	m := s.defs.Order.Restore(o.State)
	res, err := m.Transition(ctx, to, process.OrderData{Order: o})
	if err != nil {
		return err
	}
	if !res.Committed {
		return nil
	}
	o.State = m.Current()
	if err := s.save(ctx, o, nil); err != nil {
		return err
	}

	if err := res.Finalize(ctx); err != nil {
		return errors.Wrapf(err, "finalize order transition to %s", to)
	}

	var changed []*order.OrderItem
	if to == order.StateCancelled {
		changed = o.Items()
	}
	if !res.From.IsPlaced() && to.IsPlaced() && to != order.StateCancelled && len(o.Coupons) > 0 {
		if err := s.coupons.Redeem(ctx, o.Coupons); err != nil {
			return errors.Wrap(err, "redeem coupons")
		}
	}
	zctx.From(ctx).Debug("Order transitioned",
		zap.String("order_id", o.ID),
		zap.String("from", string(res.From)),
		zap.String("to", string(res.To)),
	)
	return s.save(ctx, o, changed)
}

// applyPrices re-prices the order with the currently enabled promotions.
func (s *Service) applyPrices(ctx context.Context, o *order.Order, changed []*order.OrderLine, opts ...pricing.Option) ([]*order.OrderItem, error) {
	rules, err := s.promotions.ListEnabled(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list promotions")
	}
	promotion.SortByPriority(rules)

	items, err := s.calculator.ApplyPriceAdjustments(ctx, o, promotion.Promotions(rules), changed, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "apply price adjustments")
	}
	return items, nil
}

// reprice applies prices and persists the order with the mutated items.
func (s *Service) reprice(ctx context.Context, o *order.Order, changed []*order.OrderLine, extra []*order.OrderItem, opts ...pricing.Option) error {
	items, err := s.applyPrices(ctx, o, changed, opts...)
	if err != nil {
		return err
	}
	return s.save(ctx, o, mergeItems(items, extra))
}

func mergeItems(a, b []*order.OrderItem) []*order.OrderItem {
	seen := make(map[*order.OrderItem]struct{}, len(a)+len(b))
	out := make([]*order.OrderItem, 0, len(a)+len(b))
	for _, list := range [][]*order.OrderItem{a, b} {
		for _, item := range list {
			if _, ok := seen[item]; ok {
				continue
			}
			seen[item] = struct{}{}
			out = append(out, item)
		}
	}
	return out
}
