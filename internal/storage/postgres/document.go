package postgres

import (
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/orderflow/internal/domain/order"
)

// The order document holds everything of an order that is not a header
// column or an item row: the address, coupons, line metadata, surcharges,
// shipping lines, payments with their refunds, fulfillments and history.

func marshalDocument(o *order.Order) []byte {
	var e jx.Encoder
	e.ObjStart()

	e.FieldStart("shipping_address")
	e.ObjStart()
	e.FieldStart("country_code")
	e.Str(o.ShippingAddress.CountryCode)
	e.FieldStart("province")
	e.Str(o.ShippingAddress.Province)
	e.FieldStart("postal_code")
	e.Str(o.ShippingAddress.PostalCode)
	e.ObjEnd()

	e.FieldStart("coupons")
	e.ArrStart()
	for _, c := range o.Coupons {
		e.ObjStart()
		e.FieldStart("code")
		e.Str(c.Code)
		e.FieldStart("promotion_id")
		e.Str(c.PromotionID)
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("lines")
	e.ArrStart()
	for _, l := range o.Lines {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(l.ID)
		e.FieldStart("variant_id")
		e.Str(l.ProductVariantID)
		e.FieldStart("name")
		e.Str(l.Name)
		e.FieldStart("tax_category_id")
		e.Str(l.TaxCategoryID)
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("surcharges")
	e.ArrStart()
	for _, s := range o.Surcharges {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(s.ID)
		e.FieldStart("description")
		e.Str(s.Description)
		e.FieldStart("sku")
		e.Str(s.SKU)
		e.FieldStart("list_price")
		e.Int64(s.ListPrice)
		e.FieldStart("list_price_includes_tax")
		e.Bool(s.ListPriceIncludesTax)
		e.FieldStart("tax_lines")
		encodeTaxLines(&e, s.TaxLines)
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("shipping_lines")
	e.ArrStart()
	for _, sl := range o.ShippingLines {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(sl.ID)
		e.FieldStart("method_id")
		e.Str(sl.ShippingMethodID)
		e.FieldStart("list_price")
		e.Int64(sl.ListPrice)
		e.FieldStart("list_price_includes_tax")
		e.Bool(sl.ListPriceIncludesTax)
		e.FieldStart("adjustments")
		encodeAdjustments(&e, sl.Adjustments)
		e.FieldStart("tax_lines")
		encodeTaxLines(&e, sl.TaxLines)
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("payments")
	e.ArrStart()
	for _, p := range o.Payments {
		encodePayment(&e, p)
	}
	e.ArrEnd()

	e.FieldStart("fulfillments")
	e.ArrStart()
	for _, f := range o.Fulfillments {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(f.ID)
		e.FieldStart("method")
		e.Str(f.Method)
		e.FieldStart("tracking_code")
		e.Str(f.TrackingCode)
		e.FieldStart("state")
		e.Str(string(f.State))
		e.FieldStart("created_at")
		encodeTime(&e, f.CreatedAt)
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("history")
	e.ArrStart()
	for _, h := range o.History {
		e.ObjStart()
		e.FieldStart("type")
		e.Str(string(h.Type))
		e.FieldStart("entity_id")
		e.Str(h.EntityID)
		e.FieldStart("from")
		e.Str(h.From)
		e.FieldStart("to")
		e.Str(h.To)
		e.FieldStart("at")
		encodeTime(&e, h.At)
		e.ObjEnd()
	}
	e.ArrEnd()

	e.ObjEnd()
	return e.Bytes()
}

func encodePayment(e *jx.Encoder, p *order.Payment) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("method")
	e.Str(p.Method)
	e.FieldStart("amount")
	e.Int64(p.Amount)
	e.FieldStart("state")
	e.Str(string(p.State))
	e.FieldStart("transaction_id")
	e.Str(p.TransactionID)
	e.FieldStart("error_message")
	e.Str(p.ErrorMessage)
	e.FieldStart("metadata")
	e.ObjStart()
	for k, v := range p.Metadata {
		e.FieldStart(k)
		e.Str(v)
	}
	e.ObjEnd()
	e.FieldStart("refunds")
	e.ArrStart()
	for _, r := range p.Refunds {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(r.ID)
		e.FieldStart("items")
		e.Int64(r.Items)
		e.FieldStart("shipping")
		e.Int64(r.Shipping)
		e.FieldStart("adjustment")
		e.Int64(r.Adjustment)
		e.FieldStart("reason")
		e.Str(r.Reason)
		e.FieldStart("state")
		e.Str(string(r.State))
		e.FieldStart("transaction_id")
		e.Str(r.TransactionID)
		e.FieldStart("created_at")
		encodeTime(e, r.CreatedAt)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("created_at")
	encodeTime(e, p.CreatedAt)
	e.ObjEnd()
}

// unmarshalDocument fills o from an order document. Lines are restored
// without items.
func unmarshalDocument(data []byte, o *order.Order) error {
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "shipping_address":
			return d.Obj(func(d *jx.Decoder, key string) error {
				var err error
				switch key {
				case "country_code":
					o.ShippingAddress.CountryCode, err = d.Str()
				case "province":
					o.ShippingAddress.Province, err = d.Str()
				case "postal_code":
					o.ShippingAddress.PostalCode, err = d.Str()
				default:
					err = d.Skip()
				}
				return err
			})
		case "coupons":
			return d.Arr(func(d *jx.Decoder) error {
				var c order.Coupon
				if err := d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "code":
						c.Code, err = d.Str()
					case "promotion_id":
						c.PromotionID, err = d.Str()
					default:
						err = d.Skip()
					}
					return err
				}); err != nil {
					return err
				}
				o.Coupons = append(o.Coupons, c)
				return nil
			})
		case "lines":
			return d.Arr(func(d *jx.Decoder) error {
				l := &order.OrderLine{}
				if err := d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "id":
						l.ID, err = d.Str()
					case "variant_id":
						l.ProductVariantID, err = d.Str()
					case "name":
						l.Name, err = d.Str()
					case "tax_category_id":
						l.TaxCategoryID, err = d.Str()
					default:
						err = d.Skip()
					}
					return err
				}); err != nil {
					return err
				}
				o.Lines = append(o.Lines, l)
				return nil
			})
		case "surcharges":
			return d.Arr(func(d *jx.Decoder) error {
				s := &order.Surcharge{}
				if err := d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "id":
						s.ID, err = d.Str()
					case "description":
						s.Description, err = d.Str()
					case "sku":
						s.SKU, err = d.Str()
					case "list_price":
						s.ListPrice, err = d.Int64()
					case "list_price_includes_tax":
						s.ListPriceIncludesTax, err = d.Bool()
					case "tax_lines":
						s.TaxLines, err = decodeTaxLines(d)
					default:
						err = d.Skip()
					}
					return err
				}); err != nil {
					return err
				}
				o.Surcharges = append(o.Surcharges, s)
				return nil
			})
		case "shipping_lines":
			return d.Arr(func(d *jx.Decoder) error {
				sl := &order.ShippingLine{}
				if err := d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "id":
						sl.ID, err = d.Str()
					case "method_id":
						sl.ShippingMethodID, err = d.Str()
					case "list_price":
						sl.ListPrice, err = d.Int64()
					case "list_price_includes_tax":
						sl.ListPriceIncludesTax, err = d.Bool()
					case "adjustments":
						sl.Adjustments, err = decodeAdjustments(d)
					case "tax_lines":
						sl.TaxLines, err = decodeTaxLines(d)
					default:
						err = d.Skip()
					}
					return err
				}); err != nil {
					return err
				}
				o.ShippingLines = append(o.ShippingLines, sl)
				return nil
			})
		case "payments":
			return d.Arr(func(d *jx.Decoder) error {
				p, err := decodePayment(d)
				if err != nil {
					return err
				}
				o.Payments = append(o.Payments, p)
				return nil
			})
		case "fulfillments":
			return d.Arr(func(d *jx.Decoder) error {
				f := &order.Fulfillment{}
				if err := d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "id":
						f.ID, err = d.Str()
					case "method":
						f.Method, err = d.Str()
					case "tracking_code":
						f.TrackingCode, err = d.Str()
					case "state":
						var s string
						s, err = d.Str()
						f.State = order.FulfillmentState(s)
					case "created_at":
						f.CreatedAt, err = decodeTime(d)
					default:
						err = d.Skip()
					}
					return err
				}); err != nil {
					return err
				}
				o.Fulfillments = append(o.Fulfillments, f)
				return nil
			})
		case "history":
			return d.Arr(func(d *jx.Decoder) error {
				var h order.HistoryEntry
				if err := d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "type":
						var s string
						s, err = d.Str()
						h.Type = order.HistoryType(s)
					case "entity_id":
						h.EntityID, err = d.Str()
					case "from":
						h.From, err = d.Str()
					case "to":
						h.To, err = d.Str()
					case "at":
						h.At, err = decodeTime(d)
					default:
						err = d.Skip()
					}
					return err
				}); err != nil {
					return err
				}
				o.History = append(o.History, h)
				return nil
			})
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return errors.Wrap(err, "decode order document")
	}
	return nil
}

func decodePayment(d *jx.Decoder) (*order.Payment, error) {
	p := &order.Payment{Metadata: map[string]string{}}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = d.Str()
		case "method":
			p.Method, err = d.Str()
		case "amount":
			p.Amount, err = d.Int64()
		case "state":
			var s string
			s, err = d.Str()
			p.State = order.PaymentState(s)
		case "transaction_id":
			p.TransactionID, err = d.Str()
		case "error_message":
			p.ErrorMessage, err = d.Str()
		case "metadata":
			err = d.Obj(func(d *jx.Decoder, key string) error {
				v, err := d.Str()
				p.Metadata[key] = v
				return err
			})
		case "refunds":
			err = d.Arr(func(d *jx.Decoder) error {
				r := &order.Refund{}
				if err := d.Obj(func(d *jx.Decoder, key string) error {
					var err error
					switch key {
					case "id":
						r.ID, err = d.Str()
					case "items":
						r.Items, err = d.Int64()
					case "shipping":
						r.Shipping, err = d.Int64()
					case "adjustment":
						r.Adjustment, err = d.Int64()
					case "reason":
						r.Reason, err = d.Str()
					case "state":
						var s string
						s, err = d.Str()
						r.State = order.RefundState(s)
					case "transaction_id":
						r.TransactionID, err = d.Str()
					case "created_at":
						r.CreatedAt, err = decodeTime(d)
					default:
						err = d.Skip()
					}
					return err
				}); err != nil {
					return err
				}
				p.Refunds = append(p.Refunds, r)
				return nil
			})
		case "created_at":
			p.CreatedAt, err = decodeTime(d)
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	// Object keys carry no order guarantee, so link refunds afterwards.
	for _, r := range p.Refunds {
		r.PaymentID = p.ID
	}
	return p, nil
}
