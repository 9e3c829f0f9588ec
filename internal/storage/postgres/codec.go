package postgres

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/orderflow/internal/domain/order"
	"github.com/xenking/orderflow/internal/domain/promotion"
)

// JSONB columns are encoded with jx. Money is stored as integer minor
// units, rates and percentages as decimal strings, times as RFC 3339.

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339Nano))
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, s)
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	s, err := d.Str()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(s)
}

func encodeStrings(e *jx.Encoder, values []string) {
	e.ArrStart()
	for _, v := range values {
		e.Str(v)
	}
	e.ArrEnd()
}

func decodeStrings(d *jx.Decoder) ([]string, error) {
	var out []string
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

func encodeAdjustments(e *jx.Encoder, adjustments []order.Adjustment) {
	e.ArrStart()
	for _, a := range adjustments {
		e.ObjStart()
		e.FieldStart("type")
		e.Str(string(a.Type))
		e.FieldStart("amount")
		e.Int64(a.Amount)
		e.FieldStart("source")
		e.Str(a.Source)
		e.FieldStart("description")
		e.Str(a.Description)
		e.ObjEnd()
	}
	e.ArrEnd()
}

func decodeAdjustments(d *jx.Decoder) ([]order.Adjustment, error) {
	var out []order.Adjustment
	err := d.Arr(func(d *jx.Decoder) error {
		var a order.Adjustment
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "type":
				var s string
				s, err = d.Str()
				a.Type = order.AdjustmentType(s)
			case "amount":
				a.Amount, err = d.Int64()
			case "source":
				a.Source, err = d.Str()
			case "description":
				a.Description, err = d.Str()
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		out = append(out, a)
		return nil
	})
	return out, err
}

func encodeTaxLines(e *jx.Encoder, lines []order.TaxLine) {
	e.ArrStart()
	for _, tl := range lines {
		e.ObjStart()
		e.FieldStart("description")
		e.Str(tl.Description)
		e.FieldStart("rate")
		e.Str(tl.TaxRate.String())
		e.ObjEnd()
	}
	e.ArrEnd()
}

func decodeTaxLines(d *jx.Decoder) ([]order.TaxLine, error) {
	var out []order.TaxLine
	err := d.Arr(func(d *jx.Decoder) error {
		var tl order.TaxLine
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "description":
				tl.Description, err = d.Str()
			case "rate":
				tl.TaxRate, err = decodeDecimal(d)
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		out = append(out, tl)
		return nil
	})
	return out, err
}

func marshalAdjustments(adjustments []order.Adjustment) []byte {
	var e jx.Encoder
	encodeAdjustments(&e, adjustments)
	return e.Bytes()
}

func marshalTaxLines(lines []order.TaxLine) []byte {
	var e jx.Encoder
	encodeTaxLines(&e, lines)
	return e.Bytes()
}

func marshalConditions(conditions []promotion.Condition) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, c := range conditions {
		e.ObjStart()
		e.FieldStart("type")
		e.Str(string(c.Type))
		e.FieldStart("amount")
		e.Int64(c.Amount)
		e.FieldStart("tax_inclusive")
		e.Bool(c.TaxInclusive)
		e.FieldStart("quantity")
		e.Int(c.Quantity)
		e.FieldStart("variant_ids")
		encodeStrings(&e, c.VariantIDs)
		e.FieldStart("free_variant_ids")
		encodeStrings(&e, c.FreeVariantIDs)
		e.FieldStart("free_quantity")
		e.Int(c.FreeQuantity)
		e.ObjEnd()
	}
	e.ArrEnd()
	return e.Bytes()
}

func unmarshalConditions(data []byte) ([]promotion.Condition, error) {
	var out []promotion.Condition
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var c promotion.Condition
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "type":
				var s string
				s, err = d.Str()
				c.Type = promotion.ConditionType(s)
			case "amount":
				c.Amount, err = d.Int64()
			case "tax_inclusive":
				c.TaxInclusive, err = d.Bool()
			case "quantity":
				c.Quantity, err = d.Int()
			case "variant_ids":
				c.VariantIDs, err = decodeStrings(d)
			case "free_variant_ids":
				c.FreeVariantIDs, err = decodeStrings(d)
			case "free_quantity":
				c.FreeQuantity, err = d.Int()
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode conditions")
	}
	return out, nil
}

func marshalActions(actions []promotion.Action) []byte {
	var e jx.Encoder
	e.ArrStart()
	for _, a := range actions {
		e.ObjStart()
		e.FieldStart("type")
		e.Str(string(a.Type))
		e.FieldStart("percentage")
		e.Str(a.Percentage.String())
		e.FieldStart("amount")
		e.Int64(a.Amount)
		e.FieldStart("variant_ids")
		encodeStrings(&e, a.VariantIDs)
		e.ObjEnd()
	}
	e.ArrEnd()
	return e.Bytes()
}

func unmarshalActions(data []byte) ([]promotion.Action, error) {
	var out []promotion.Action
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var a promotion.Action
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "type":
				var s string
				s, err = d.Str()
				a.Type = promotion.ActionType(s)
			case "percentage":
				a.Percentage, err = decodeDecimal(d)
			case "amount":
				a.Amount, err = d.Int64()
			case "variant_ids":
				a.VariantIDs, err = decodeStrings(d)
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		out = append(out, a)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode actions")
	}
	return out, nil
}
