// Package costing implements weighted-average valuation and landed-cost
// allocation for receipts.
package costing

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNonPositiveQuantity is returned when a receipt does not add stock.
var ErrNonPositiveQuantity = errors.New("costing: incoming quantity must be > 0")

// ErrNegativeCost is returned for a landed cost below zero.
var ErrNegativeCost = errors.New("costing: unit cost must be >= 0")

// WeightedAverage blends an incoming quantity q at unit cost u into a
// position of q0 units valued at c0 each. When the resulting quantity is not
// positive the prior cost c0 is kept.
func WeightedAverage(q0, c0, q, u decimal.Decimal) (decimal.Decimal, error) {
	if !q.IsPositive() {
		return c0, ErrNonPositiveQuantity
	}
	if u.IsNegative() {
		return c0, ErrNegativeCost
	}
	v1 := q0.Mul(c0).Add(u.Mul(q))
	q1 := q0.Add(q)
	if !q1.IsPositive() {
		return c0, nil
	}
	return v1.Div(q1), nil
}

// Round2 rounds to two decimals for presentation. Never feed the result back
// into WeightedAverage.
func Round2(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}
