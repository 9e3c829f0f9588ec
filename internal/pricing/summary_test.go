package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xenking/orderflow/internal/domain/order"
)

func TestLineLevelRounding_CompoundTaxLines(t *testing.T) {
	taxLines := []order.TaxLine{
		{Description: "state", TaxRate: d("6.25")},
		{Description: "city", TaxRate: d("2.25")},
	}
	o := &order.Order{Lines: []*order.OrderLine{{
		ID:    "a",
		Items: []*order.OrderItem{{ID: "a-0", ListPrice: 999, TaxLines: taxLines}},
	}}}

	rows := LineLevelRounding{}.Summary(o)

	// 999 * 8.5% = 84.915, rounded once for the line and split by rate.
	assert.Equal(t, []TaxSummaryRow{
		{Description: "state", TaxRate: d("6.25"), TaxBase: 999, TaxTotal: 63},
		{Description: "city", TaxRate: d("2.25"), TaxBase: 999, TaxTotal: 22},
	}, rows)
	totals := LineLevelRounding{}.Totals(o)
	assert.Equal(t, int64(999+85), totals.SubTotalWithTax)
}

func TestOrderLevelRounding_ShippingTaxKeptApart(t *testing.T) {
	o := &order.Order{
		Lines: []*order.OrderLine{{
			ID:    "a",
			Items: []*order.OrderItem{{ID: "a-0", ListPrice: 102, TaxLines: []order.TaxLine{{Description: "VAT", TaxRate: d("21")}}}},
		}},
		ShippingLines: []*order.ShippingLine{{
			ID:        "sl",
			ListPrice: 215,
			TaxLines:  []order.TaxLine{{Description: "VAT", TaxRate: d("21")}},
		}},
	}

	totals := OrderLevelRounding{}.Totals(o)

	// Shipping tax rounds on its own (45.15); the order group rounds 66.57.
	assert.Equal(t, Totals{SubTotal: 102, SubTotalWithTax: 102 + 22, Shipping: 215, ShippingWithTax: 215 + 45}, totals)
	rows := OrderLevelRounding{}.Summary(o)
	assert.Equal(t, []TaxSummaryRow{{Description: "VAT", TaxRate: d("21"), TaxBase: 317, TaxTotal: 67}}, rows)
}

func TestStrategyByName(t *testing.T) {
	assert.Equal(t, OrderLevelRounding{}, StrategyByName("order"))
	assert.Equal(t, LineLevelRounding{}, StrategyByName("line"))
	assert.Equal(t, LineLevelRounding{}, StrategyByName(""))
}
