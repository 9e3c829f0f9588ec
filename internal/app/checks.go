package app

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/orderflow/internal/domain/tax"
	"github.com/xenking/orderflow/internal/process"
	"github.com/xenking/orderflow/pkg/health"
)

// processCheck fails unless all four processes are composed and each can
// leave its initial state.
func processCheck(defs *process.Definitions) health.CheckFunc {
	return func(context.Context) error {
		if defs == nil || defs.Order == nil || defs.Payment == nil || defs.Refund == nil || defs.Fulfillment == nil {
			return errors.New("process definitions are not composed")
		}
		for _, g := range defs.Graphs() {
			if len(g.Transitions[g.Initial]) == 0 {
				return errors.Errorf("%s process has no transitions from %q", g.Name, g.Initial)
			}
		}
		return nil
	}
}

// taxZoneCheck fails when the channel default tax zone is missing from the
// configured zones. An empty zoneID is always healthy.
func taxZoneCheck(zones tax.ZoneLister, zoneID string) health.CheckFunc {
	return func(ctx context.Context) error {
		if zoneID == "" {
			return nil
		}
		list, err := zones.ListZones(ctx)
		if err != nil {
			return errors.Wrap(err, "list zones")
		}
		if !slices.ContainsFunc(list, func(z tax.Zone) bool { return z.ID == zoneID }) {
			return errors.Wrapf(tax.ErrZoneNotFound, "default zone %q", zoneID)
		}
		return nil
	}
}

// RegisterChecks adds the engine readiness checks to h.
func (e *Engine) RegisterChecks(h *health.Health) {
	h.Register(health.Check{
		Name: "processes",
		Kind: health.Readiness,
		Func: processCheck(e.Orders.Definitions()),
	})
	h.Register(health.Check{
		Name:    "tax_zone",
		Kind:    health.Readiness,
		Timeout: 5 * time.Second,
		Func:    taxZoneCheck(e.zones, e.defaultZoneID),
	})
}
