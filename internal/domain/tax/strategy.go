package tax

import (
	"context"

	"github.com/xenking/orderflow/internal/domain/order"
)

var (
	_ ZoneResolver            = DefaultZoneResolver{}
	_ ZoneResolver            = AddressZoneResolver{}
	_ LineCalculationStrategy = DefaultLineCalculation{}
	_ RateResolver            = (*RateTable)(nil)
	_ ZoneLister              = (*RateTable)(nil)
)

func zoneByID(zones []Zone, id string) *Zone {
	for i := range zones {
		if zones[i].ID == id {
			return &zones[i]
		}
	}
	return nil
}

// DefaultZoneResolver always uses the channel's default tax zone. It returns
// nil when the channel has no default zone or it is not among zones.
type DefaultZoneResolver struct{}

// DetermineTaxZone implements ZoneResolver.
func (DefaultZoneResolver) DetermineTaxZone(_ context.Context, zones []Zone, ch Channel, _ *order.Order) (*Zone, error) {
	return zoneByID(zones, ch.DefaultTaxZoneID), nil
}

// AddressZoneResolver picks the first zone containing the order's shipping
// country and falls back to the channel's default zone.
type AddressZoneResolver struct{}

// DetermineTaxZone implements ZoneResolver.
func (AddressZoneResolver) DetermineTaxZone(_ context.Context, zones []Zone, ch Channel, o *order.Order) (*Zone, error) {
	if o != nil && o.ShippingAddress.CountryCode != "" {
		for i := range zones {
			if zones[i].Contains(o.ShippingAddress.CountryCode) {
				return &zones[i], nil
			}
		}
	}
	return zoneByID(zones, ch.DefaultTaxZoneID), nil
}

// DefaultLineCalculation applies the single resolved rate to a line.
type DefaultLineCalculation struct{}

// Calculate implements LineCalculationStrategy.
func (DefaultLineCalculation) Calculate(_ context.Context, in LineInput) ([]order.TaxLine, error) {
	return []order.TaxLine{{
		Description: in.Rate.Name,
		TaxRate:     in.Rate.Value,
	}}, nil
}

// RateTable is an in-memory set of zones and rates.
type RateTable struct {
	Zones []Zone
	Rates []Rate
}

// ListZones implements ZoneLister.
func (t *RateTable) ListZones(context.Context) ([]Zone, error) {
	return t.Zones, nil
}

// ApplicableRate returns the first enabled rate for the category in the
// zone, or ZeroRate.
func (t *RateTable) ApplicableRate(_ context.Context, zone Zone, categoryID string) (Rate, error) {
	for _, r := range t.Rates {
		if r.Enabled && r.ZoneID == zone.ID && r.CategoryID == categoryID {
			return r, nil
		}
	}
	return ZeroRate, nil
}
