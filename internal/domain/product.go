package domain

import (
	"bytes"
	stdjson "encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidProductID = errors.New("invalid product id")

// ProductID is opaque to the cart. Numeric and string ids are kept apart so
// that 1 and "1" are different products and each keeps its JSON form.
type ProductID struct {
	raw     string
	numeric bool
}

func StringID(s string) ProductID {
	return ProductID{raw: s}
}

func IntID(n int64) ProductID {
	return ProductID{raw: strconv.FormatInt(n, 10), numeric: true}
}

// ParseProductID reads an id coming from a URL path or a command line.
// Integers become numeric ids, anything else a string id. Wrapping the
// value in double quotes forces a string id.
func ParseProductID(s string) (ProductID, error) {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
		if s == "" {
			return ProductID{}, ErrInvalidProductID
		}
		return StringID(s), nil
	}
	if s == "" {
		return ProductID{}, ErrInvalidProductID
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return IntID(n), nil
	}
	return StringID(s), nil
}

func (p ProductID) IsZero() bool {
	return p.raw == ""
}

func (p ProductID) IsNumeric() bool {
	return p.numeric
}

func (p ProductID) String() string {
	return p.raw
}

func (p ProductID) MarshalJSON() ([]byte, error) {
	if p.numeric {
		return []byte(p.raw), nil
	}
	return json.Marshal(p.raw)
}

func (p *ProductID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*p = ProductID{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidProductID, err)
		}
		*p = StringID(s)
		return nil
	}
	if b[0] != '-' && (b[0] < '0' || b[0] > '9') {
		return fmt.Errorf("%w: %s", ErrInvalidProductID, b)
	}
	var n stdjson.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidProductID, b)
	}
	*p = ProductID{raw: n.String(), numeric: true}
	return nil
}

// Product is the catalog view handed to the cart when something is added.
// Fields beyond the known display fields are carried in Extra untouched.
type Product struct {
	ID            ProductID
	Name          string
	Price         decimal.Decimal
	DiscountPrice decimal.NullDecimal
	Image         string
	Extra         map[string]stdjson.RawMessage

	// JSON the prices were read from, written back as long as the values match.
	rawPrice    stdjson.RawMessage
	rawDiscount stdjson.RawMessage
}

// Clone returns a copy that shares nothing mutable with p.
func (p Product) Clone() Product {
	out := p
	if p.Extra != nil {
		out.Extra = make(map[string]stdjson.RawMessage, len(p.Extra))
		for k, v := range p.Extra {
			out.Extra[k] = cloneRaw(v)
		}
	}
	out.rawPrice = cloneRaw(p.rawPrice)
	out.rawDiscount = cloneRaw(p.rawDiscount)
	return out
}

func (p Product) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.fields())
}

// UnmarshalJSON is strict: a known field of the wrong type is an error.
func (p *Product) UnmarshalJSON(b []byte) error {
	var fields map[string]stdjson.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	var out Product
	for k, v := range fields {
		if err := out.setField(k, v, false); err != nil {
			return err
		}
	}
	*p = out
	return nil
}

// fields is the flat JSON object of p. Price is only written when it was
// read from JSON or set to a non-zero value.
func (p Product) fields() map[string]any {
	fields := make(map[string]any, len(p.Extra)+5)
	for k, v := range p.Extra {
		fields[k] = v
	}
	fields["id"] = p.ID
	if p.Name != "" {
		fields["name"] = p.Name
	}
	if price, ok := p.priceJSON(); ok {
		fields["price"] = price
	}
	if discount, ok := p.discountJSON(); ok {
		fields["discount_price"] = discount
	}
	if p.Image != "" {
		fields["image"] = p.Image
	}
	return fields
}

func (p Product) priceJSON() (stdjson.RawMessage, bool) {
	if p.rawPrice != nil {
		var d decimal.Decimal
		if err := d.UnmarshalJSON(p.rawPrice); err == nil && d.Equal(p.Price) {
			return p.rawPrice, true
		}
	} else if p.Price.IsZero() {
		return nil, false
	}
	return stdjson.RawMessage(p.Price.String()), true
}

func (p Product) discountJSON() (stdjson.RawMessage, bool) {
	if p.rawDiscount != nil {
		var d decimal.NullDecimal
		if err := d.UnmarshalJSON(p.rawDiscount); err == nil && d.Valid == p.DiscountPrice.Valid &&
			(!d.Valid || d.Decimal.Equal(p.DiscountPrice.Decimal)) {
			return p.rawDiscount, true
		}
	}
	if !p.DiscountPrice.Valid {
		return nil, false
	}
	return stdjson.RawMessage(p.DiscountPrice.Decimal.String()), true
}

// setField applies one JSON field. When lenient, a known display field that
// does not parse is kept verbatim in Extra instead of failing; the id is
// never lenient.
func (p *Product) setField(key string, value stdjson.RawMessage, lenient bool) error {
	var err error
	switch key {
	case "id":
		return p.ID.UnmarshalJSON(value)
	case "name":
		err = unmarshalOptionalString(value, &p.Name)
	case "price":
		if err = p.Price.UnmarshalJSON(value); err == nil {
			p.rawPrice = cloneRaw(value)
		} else {
			p.Price = decimal.Zero
			err = fmt.Errorf("price: %w", err)
		}
	case "discount_price":
		if err = p.DiscountPrice.UnmarshalJSON(value); err == nil {
			p.rawDiscount = cloneRaw(value)
		} else {
			p.DiscountPrice = decimal.NullDecimal{}
			err = fmt.Errorf("discount_price: %w", err)
		}
	case "image":
		err = unmarshalOptionalString(value, &p.Image)
	default:
		p.setExtra(key, value)
	}
	if err != nil && lenient {
		p.setExtra(key, value)
		return nil
	}
	return err
}

func (p *Product) setExtra(key string, value stdjson.RawMessage) {
	if p.Extra == nil {
		p.Extra = make(map[string]stdjson.RawMessage)
	}
	p.Extra[key] = cloneRaw(value)
}

func unmarshalOptionalString(value stdjson.RawMessage, dst *string) error {
	if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
		*dst = ""
		return nil
	}
	return json.Unmarshal(value, dst)
}

func cloneRaw(v stdjson.RawMessage) stdjson.RawMessage {
	if v == nil {
		return nil
	}
	return append(stdjson.RawMessage(nil), v...)
}
