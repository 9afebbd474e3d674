package costing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// DiscountType selects how a header discount is interpreted.
type DiscountType string

const (
	// DiscountFixed is an absolute amount off the document total.
	DiscountFixed DiscountType = "fixed"
	// DiscountPercentage is a percentage of the document total.
	DiscountPercentage DiscountType = "percentage"
)

// ErrInvalidDiscount is returned for an unknown type or out-of-range amount.
var ErrInvalidDiscount = errors.New("costing: invalid discount")

// Discount is a header-level supplier discount.
type Discount struct {
	Amount decimal.Decimal
	Type   DiscountType
}

// ReceiptLine is one cost-bearing line in its own unit of measure.
type ReceiptLine struct {
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}

// Subtotal returns Quantity * UnitPrice.
func (l ReceiptLine) Subtotal() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice)
}

// Landed summarises an allocation over a whole document.
type Landed struct {
	Total          decimal.Decimal
	DiscountAmount decimal.Decimal
	Fees           decimal.Decimal
	// UnitCosts holds the landed cost per line, in each line's unit, in line order.
	UnitCosts []decimal.Decimal
}

// Net returns Total - DiscountAmount + Fees.
func (l Landed) Net() decimal.Decimal {
	return l.Total.Sub(l.DiscountAmount).Add(l.Fees)
}

// DiscountAmount resolves the discount against a document total.
func (d Discount) DiscountAmount(total decimal.Decimal) (decimal.Decimal, error) {
	if d.Amount.IsZero() {
		return decimal.Zero, nil
	}
	if d.Amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative amount", ErrInvalidDiscount)
	}
	switch d.Type {
	case DiscountPercentage:
		if d.Amount.GreaterThan(decimal.NewFromInt(100)) {
			return decimal.Zero, fmt.Errorf("%w: percentage above 100", ErrInvalidDiscount)
		}
		return total.Mul(d.Amount).Div(decimal.NewFromInt(100)), nil
	case "":
		return decimal.Zero, fmt.Errorf("%w: amount %s without a type", ErrInvalidDiscount, d.Amount)
	case DiscountFixed:
		if d.Amount.GreaterThan(total) {
			return decimal.Zero, fmt.Errorf("%w: fixed amount exceeds total", ErrInvalidDiscount)
		}
		return d.Amount, nil
	default:
		return decimal.Zero, fmt.Errorf("%w: type %q", ErrInvalidDiscount, d.Type)
	}
}

// Allocate spreads the discount and fees over lines proportionally to each
// line's subtotal. With recompute disabled the unit prices are returned as is
// while the totals are still computed for the payable.
func Allocate(lines []ReceiptLine, discount Discount, fees decimal.Decimal, recompute bool) (Landed, error) {
	if fees.IsNegative() {
		return Landed{}, fmt.Errorf("%w: negative fees", ErrInvalidDiscount)
	}
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Subtotal())
	}
	discAmount, err := discount.DiscountAmount(total)
	if err != nil {
		return Landed{}, err
	}
	out := Landed{Total: total, DiscountAmount: discAmount, Fees: fees, UnitCosts: make([]decimal.Decimal, len(lines))}
	for i, line := range lines {
		out.UnitCosts[i] = line.UnitPrice
		if !recompute || !total.IsPositive() || !line.Quantity.IsPositive() {
			continue
		}
		subtotal := line.Subtotal()
		share := subtotal.Div(total)
		adjusted := subtotal.Sub(discAmount.Mul(share)).Add(fees.Mul(share))
		out.UnitCosts[i] = adjusted.Div(line.Quantity)
	}
	return out, nil
}
