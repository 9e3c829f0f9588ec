package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/orderflow/internal/domain/order"
	"github.com/xenking/orderflow/internal/pricing"
	"github.com/xenking/orderflow/internal/process"
)

type stubViewer struct {
	orders map[string]*order.Order
	err    error
}

func (v stubViewer) GetOrder(_ context.Context, id string) (*order.Order, error) {
	if v.err != nil {
		return nil, v.err
	}
	o, ok := v.orders[id]
	if !ok {
		return nil, errors.Wrap(order.ErrNotFound, "get order")
	}
	return o, nil
}

func (v stubViewer) NextStates(context.Context, string) ([]order.State, error) {
	return []order.State{order.StateArrangingPayment, order.StateCancelled}, nil
}

type stubSummary []pricing.TaxSummaryRow

func (s stubSummary) TaxSummary(*order.Order) []pricing.TaxSummaryRow { return s }

func serveOrder(t *testing.T, v OrderViewer, s TaxSummarizer, id string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle("GET /debug/orders/{id}", orderHandler(v, s))

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/orders/"+id, nil))
	return w
}

func TestOrderHandler(t *testing.T) {
	v := stubViewer{orders: map[string]*order.Order{
		"o1": {
			ID:              "o1",
			Code:            "ABC",
			State:           order.StateAddingItems,
			Active:          true,
			SubTotal:        1000,
			SubTotalWithTax: 1100,
			Total:           1000,
			TotalWithTax:    1100,
		},
	}}
	summary := stubSummary{{
		Description: "standard",
		TaxRate:     decimal.NewFromInt(10),
		TaxBase:     1000,
		TaxTotal:    100,
	}}

	w := serveOrder(t, v, summary, "o1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body struct {
		ID          string   `json:"id"`
		State       string   `json:"state"`
		NextStates  []string `json:"next_states"`
		Total       int64    `json:"total_with_tax"`
		Outstanding int64    `json:"outstanding"`
		TaxSummary  []struct {
			Rate string `json:"rate"`
			Base int64  `json:"base"`
			Tax  int64  `json:"tax"`
		} `json:"tax_summary"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "o1", body.ID)
	assert.Equal(t, string(order.StateAddingItems), body.State)
	assert.Equal(t, []string{string(order.StateArrangingPayment), string(order.StateCancelled)}, body.NextStates)
	assert.Equal(t, int64(1100), body.Total)
	assert.Equal(t, int64(1100), body.Outstanding)
	require.Len(t, body.TaxSummary, 1)
	assert.Equal(t, "10", body.TaxSummary[0].Rate)
	assert.Equal(t, int64(100), body.TaxSummary[0].Tax)
}

func TestOrderHandler_Errors(t *testing.T) {
	w := serveOrder(t, stubViewer{}, stubSummary{}, "missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"code":404,"message":"order not found"}`, w.Body.String())

	w = serveOrder(t, stubViewer{err: errors.New("connection reset")}, stubSummary{}, "o1")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection reset")
}

func TestProcessGraphsHandler(t *testing.T) {
	plugins, err := processPlugins(&Config{}, nil)
	require.NoError(t, err)
	defs, err := process.Build(process.Options{}, plugins)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	processGraphsHandler(defs)(w, httptest.NewRequest(http.MethodGet, "/debug/processes", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var graphs []struct {
		Name        string              `json:"name"`
		Initial     string              `json:"initial"`
		Processes   []string            `json:"processes"`
		Transitions map[string][]string `json:"transitions"`
		Unreachable []string            `json:"unreachable"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&graphs))
	require.Len(t, graphs, 4)

	og := graphs[0]
	assert.Equal(t, string(order.StateCreated), og.Initial)
	assert.Contains(t, og.Processes, "no-cancel-after-settlement")
	assert.NotContains(t, og.Transitions[string(order.StatePaymentSettled)], string(order.StateCancelled))
	assert.Contains(t, og.Transitions[string(order.StatePaymentAuthorized)], string(order.StateCancelled))
	for _, g := range graphs {
		assert.Empty(t, g.Unreachable, g.Name)
	}
}

func TestProcessPlugins_AllowCancelAfterSettlement(t *testing.T) {
	cfg := &Config{Order: OrderConfig{AllowCancelAfterSettlement: true}}
	plugins, err := processPlugins(cfg, nil)
	require.NoError(t, err)
	assert.Empty(t, plugins.Order)
}
