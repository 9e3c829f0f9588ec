package tax

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/orderflow/internal/domain/order"
)

var testZones = []Zone{
	{ID: "eu", Name: "Europe", Countries: []string{"DE", "NL", "FR"}},
	{ID: "uk", Name: "United Kingdom", Countries: []string{"GB"}},
}

func TestZoneResolvers(t *testing.T) {
	ch := Channel{ID: "default", DefaultTaxZoneID: "uk"}

	tests := []struct {
		name     string
		resolver ZoneResolver
		channel  Channel
		country  string
		wantZone string
	}{
		{name: "default ignores address", resolver: DefaultZoneResolver{}, channel: ch, country: "DE", wantZone: "uk"},
		{name: "address match", resolver: AddressZoneResolver{}, channel: ch, country: "nl", wantZone: "eu"},
		{name: "address falls back to channel", resolver: AddressZoneResolver{}, channel: ch, country: "US", wantZone: "uk"},
		{name: "no address falls back to channel", resolver: AddressZoneResolver{}, channel: ch, wantZone: "uk"},
		{name: "unknown default zone", resolver: DefaultZoneResolver{}, channel: Channel{DefaultTaxZoneID: "mars"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &order.Order{ShippingAddress: order.Address{CountryCode: tt.country}}

			zone, err := tt.resolver.DetermineTaxZone(context.Background(), testZones, tt.channel, o)
			require.NoError(t, err)
			if tt.wantZone == "" {
				assert.Nil(t, zone)
				return
			}
			require.NotNil(t, zone)
			assert.Equal(t, tt.wantZone, zone.ID)
		})
	}
}

func TestRateTable_ApplicableRate(t *testing.T) {
	table := &RateTable{
		Zones: testZones,
		Rates: []Rate{
			{ID: "r1", Name: "Standard VAT", Value: decimal.NewFromInt(21), Enabled: true, CategoryID: "standard", ZoneID: "eu"},
			{ID: "r2", Name: "Old VAT", Value: decimal.NewFromInt(19), Enabled: false, CategoryID: "reduced", ZoneID: "eu"},
		},
	}
	ctx := context.Background()

	rate, err := table.ApplicableRate(ctx, testZones[0], "standard")
	require.NoError(t, err)
	assert.Equal(t, "r1", rate.ID)

	rate, err = table.ApplicableRate(ctx, testZones[0], "reduced")
	require.NoError(t, err)
	assert.Equal(t, ZeroRate, rate)

	zones, err := table.ListZones(ctx)
	require.NoError(t, err)
	assert.Len(t, zones, 2)
}

func TestDefaultLineCalculation(t *testing.T) {
	lines, err := DefaultLineCalculation{}.Calculate(context.Background(), LineInput{
		Rate: Rate{Name: "Standard VAT", Value: decimal.NewFromInt(21)},
	})
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "Standard VAT", lines[0].Description)
	assert.True(t, decimal.NewFromInt(21).Equal(lines[0].TaxRate))
}
