package process

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/xenking/orderflow/internal/domain/order"
)

func TestNoCancelAfterSettlement(t *testing.T) {
	def, err := Order(testOptions(), NoCancelAfterSettlement())
	require.NoError(t, err)
	assert.Equal(t, []string{"default-order-process", "no-cancel-after-settlement"}, def.Processes())

	tests := []struct {
		from       order.State
		cancelable bool
	}{
		{from: order.StateAddingItems, cancelable: true},
		{from: order.StateArrangingPayment, cancelable: true},
		{from: order.StatePaymentAuthorized, cancelable: true},
		{from: order.StatePaymentSettled},
		{from: order.StatePartiallyShipped},
		{from: order.StateShipped},
		{from: order.StatePartiallyDelivered},
		{from: order.StateDelivered},
	}
	for _, tt := range tests {
		t.Run(string(tt.from), func(t *testing.T) {
			assert.Equal(t, tt.cancelable, def.Restore(tt.from).CanTransitionTo(order.StateCancelled))
		})
	}

	// Other targets survive the replacement.
	assert.True(t, def.Restore(order.StatePaymentSettled).CanTransitionTo(order.StateShipped))
	assert.Empty(t, def.Restore(order.StateDelivered).NextStates())
}

func counterTotal(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestTelemetry_CountsTransitions(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	tel, err := NewTelemetry(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	require.NoError(t, err)

	defs, err := Build(testOptions(), tel.Plugins())
	require.NoError(t, err)

	o := cartOrder()
	p := &order.Payment{ID: "p1", Amount: 1000, State: order.PaymentSettled}
	r := &order.Refund{ID: "r1", PaymentID: "p1", Items: 1500}
	m := defs.Refund.NewMachine()

	// Vetoed: more than the payment.
	_, err = m.Transition(ctx, order.RefundSettled, RefundData{Order: o, Payment: p, Refund: r})
	require.Error(t, err)

	r.Items = 400
	res, err := m.Transition(ctx, order.RefundSettled, RefundData{Order: o, Payment: p, Refund: r})
	require.NoError(t, err)
	require.NoError(t, res.Finalize(ctx))

	// Illegal: Settled is terminal.
	_, err = m.Transition(ctx, order.RefundFailed, RefundData{Order: o, Payment: p, Refund: r})
	require.Error(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	assert.Equal(t, int64(1), counterTotal(t, rm, "orderflow.process.transitions"))
	assert.Equal(t, int64(2), counterTotal(t, rm, "orderflow.process.rejected_transitions"))
}
