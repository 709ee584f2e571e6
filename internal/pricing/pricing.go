package pricing

import (
	"errors"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/shopspring/decimal"

	"github.com/alferdousrana/Lifesheba/internal/domain"
)

var ErrInvalidShippingRule = errors.New("invalid shipping rule")

// Quote is the price summary shown on the cart and checkout pages.
type Quote struct {
	ItemCount  int             `json:"item_count"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Shipping   decimal.Decimal `json:"shipping"`
	GrandTotal decimal.Decimal `json:"grand_total"`
}

// UnitPrice is the discount price when one is set and positive, else the list price.
func UnitPrice(item domain.LineItem) decimal.Decimal {
	if item.DiscountPrice.Valid && item.DiscountPrice.Decimal.IsPositive() {
		return item.DiscountPrice.Decimal
	}
	return item.Price
}

func LineTotal(item domain.LineItem) decimal.Decimal {
	return UnitPrice(item).Mul(decimal.NewFromInt(int64(item.Quantity)))
}

func Subtotal(items []domain.LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(LineTotal(item))
	}
	return total
}

// ShippingPolicy computes the delivery fee from an expr-lang expression.
// The expression sees address (string), subtotal (float), item_count (int)
// and items, a list of {id, quantity, unit_price}, and must yield a number.
type ShippingPolicy struct {
	rule    string
	program *vm.Program
}

func NewShippingPolicy(rule string) (*ShippingPolicy, error) {
	if rule == "" {
		return nil, fmt.Errorf("%w: rule must not be empty", ErrInvalidShippingRule)
	}
	program, err := expr.Compile(rule, expr.Env(shippingEnv("", decimal.Zero, nil)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidShippingRule, err)
	}
	return &ShippingPolicy{rule: rule, program: program}, nil
}

func (p *ShippingPolicy) Rule() string {
	return p.rule
}

// Fee evaluates the rule for items delivered to address.
func (p *ShippingPolicy) Fee(address string, items []domain.LineItem) (decimal.Decimal, error) {
	out, err := expr.Run(p.program, shippingEnv(address, Subtotal(items), items))
	if err != nil {
		return decimal.Zero, fmt.Errorf("shipping rule failed: %w", err)
	}

	switch v := out.(type) {
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case float64:
		return decimal.NewFromFloat(v), nil
	default:
		return decimal.Zero, fmt.Errorf("%w: rule returned %T, want a number", ErrInvalidShippingRule, out)
	}
}

// Quote prices items for delivery to address. An empty cart ships free.
func (p *ShippingPolicy) Quote(items []domain.LineItem, address string) (Quote, error) {
	q := Quote{
		ItemCount: domain.TotalQuantity(items),
		Subtotal:  Subtotal(items),
		Shipping:  decimal.Zero,
	}
	if len(items) > 0 {
		fee, err := p.Fee(address, items)
		if err != nil {
			return Quote{}, err
		}
		q.Shipping = fee
	}
	q.GrandTotal = q.Subtotal.Add(q.Shipping)
	return q, nil
}

func shippingEnv(address string, subtotal decimal.Decimal, items []domain.LineItem) map[string]any {
	lines := make([]map[string]any, len(items))
	for i, item := range items {
		lines[i] = map[string]any{
			"id":         item.ID.String(),
			"quantity":   item.Quantity,
			"unit_price": UnitPrice(item).InexactFloat64(),
		}
	}
	return map[string]any{
		"address":    address,
		"subtotal":   subtotal.InexactFloat64(),
		"item_count": domain.TotalQuantity(items),
		"items":      lines,
	}
}
