package domain

import (
	stdjson "encoding/json"
	"fmt"
)

// LineItem is one cart entry: the product snapshot taken when it was added
// plus the quantity. Snapshot fields are not kept in sync with the catalog.
type LineItem struct {
	Product
	Quantity int
}

func NewLineItem(p Product, quantity int) LineItem {
	return LineItem{Product: p.Clone(), Quantity: quantity}
}

func (li LineItem) Clone() LineItem {
	return LineItem{Product: li.Product.Clone(), Quantity: li.Quantity}
}

// MarshalJSON writes the flat persisted shape {"id":..,"quantity":..,...snapshot}.
func (li LineItem) MarshalJSON() ([]byte, error) {
	fields := li.Product.fields()
	fields["quantity"] = li.Quantity
	return json.Marshal(fields)
}

// UnmarshalJSON reads a persisted line. Only a malformed object or id is an
// error: a quantity that is not an integer reads as 0, and a display field of
// the wrong type is kept verbatim in Extra so nothing is lost on rewrite.
func (li *LineItem) UnmarshalJSON(b []byte) error {
	var fields map[string]stdjson.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	var out LineItem
	for k, v := range fields {
		if k == "quantity" {
			if err := json.Unmarshal(v, &out.Quantity); err != nil {
				out.Quantity = 0
			}
			continue
		}
		if err := out.Product.setField(k, v, true); err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
	}
	*li = out
	return nil
}

// Direction is the step applied by a quantity update.
type Direction string

const (
	Increase Direction = "increase"
	Decrease Direction = "decrease"
)

func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case Increase, Decrease:
		return d, nil
	default:
		return "", fmt.Errorf("unknown direction %q", s)
	}
}

// TotalQuantity sums the quantities of items.
func TotalQuantity(items []LineItem) int {
	total := 0
	for _, item := range items {
		total += item.Quantity
	}
	return total
}
