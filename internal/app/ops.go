package app

import (
	"context"
	"maps"
	"net/http"
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/orderflow/internal/domain/order"
	"github.com/xenking/orderflow/internal/pricing"
	"github.com/xenking/orderflow/internal/process"
	"github.com/xenking/orderflow/pkg/httpmiddleware"
)

// OrderViewer is the read side of the order service used by the ops
// endpoints.
type OrderViewer interface {
	GetOrder(ctx context.Context, orderID string) (*order.Order, error)
	NextStates(ctx context.Context, orderID string) ([]order.State, error)
}

// TaxSummarizer renders the tax summary of an order.
type TaxSummarizer interface {
	TaxSummary(o *order.Order) []pricing.TaxSummaryRow
}

func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func encodeGraphs(e *jx.Encoder, graphs []process.Graph) {
	e.ArrStart()
	for _, g := range graphs {
		e.ObjStart()
		e.FieldStart("name")
		e.Str(g.Name)
		e.FieldStart("initial")
		e.Str(g.Initial)
		e.FieldStart("processes")
		e.ArrStart()
		for _, p := range g.Processes {
			e.Str(p)
		}
		e.ArrEnd()
		e.FieldStart("transitions")
		e.ObjStart()
		for _, state := range slices.Sorted(maps.Keys(g.Transitions)) {
			e.FieldStart(state)
			e.ArrStart()
			for _, to := range g.Transitions[state] {
				e.Str(to)
			}
			e.ArrEnd()
		}
		e.ObjEnd()
		if len(g.Unreachable) > 0 {
			e.FieldStart("unreachable")
			e.ArrStart()
			for _, s := range g.Unreachable {
				e.Str(s)
			}
			e.ArrEnd()
		}
		e.ObjEnd()
	}
	e.ArrEnd()
}

// processGraphsHandler serves the merged transition graph of every process.
func processGraphsHandler(defs *process.Definitions) http.HandlerFunc {
	graphs := defs.Graphs()
	return func(w http.ResponseWriter, _ *http.Request) {
		var e jx.Encoder
		encodeGraphs(&e, graphs)
		writeJSON(w, http.StatusOK, &e)
	}
}

func encodeOrder(e *jx.Encoder, o *order.Order, next []order.State, summary []pricing.TaxSummaryRow) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("code")
	e.Str(o.Code)
	e.FieldStart("state")
	e.Str(string(o.State))
	e.FieldStart("active")
	e.Bool(o.Active)
	e.FieldStart("next_states")
	e.ArrStart()
	for _, s := range next {
		e.Str(string(s))
	}
	e.ArrEnd()

	e.FieldStart("sub_total")
	e.Int64(o.SubTotal)
	e.FieldStart("sub_total_with_tax")
	e.Int64(o.SubTotalWithTax)
	e.FieldStart("shipping")
	e.Int64(o.Shipping)
	e.FieldStart("shipping_with_tax")
	e.Int64(o.ShippingWithTax)
	e.FieldStart("total")
	e.Int64(o.Total)
	e.FieldStart("total_with_tax")
	e.Int64(o.TotalWithTax)
	e.FieldStart("outstanding")
	e.Int64(o.OutstandingBalance())

	e.FieldStart("tax_summary")
	e.ArrStart()
	for _, row := range summary {
		e.ObjStart()
		e.FieldStart("description")
		e.Str(row.Description)
		e.FieldStart("rate")
		e.Str(row.TaxRate.String())
		e.FieldStart("base")
		e.Int64(row.TaxBase)
		e.FieldStart("tax")
		e.Int64(row.TaxTotal)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.ObjEnd()
}

// orderHandler serves the pricing state of one order.
func orderHandler(orders OrderViewer, taxes TaxSummarizer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := r.PathValue("id")

		o, err := orders.GetOrder(ctx, id)
		if errors.Is(err, order.ErrNotFound) {
			httpmiddleware.WriteError(w, r, http.StatusNotFound, "order not found")
			return
		}
		if err != nil {
			zctx.From(ctx).Error("Get order", zap.String("order_id", id), zap.Error(err))
			httpmiddleware.WriteError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		next, err := orders.NextStates(ctx, id)
		if err != nil {
			zctx.From(ctx).Error("Next states", zap.String("order_id", id), zap.Error(err))
			httpmiddleware.WriteError(w, r, http.StatusInternalServerError, "internal error")
			return
		}

		var e jx.Encoder
		encodeOrder(&e, o, next, taxes.TaxSummary(o))
		writeJSON(w, http.StatusOK, &e)
	}
}
