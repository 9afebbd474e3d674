package costing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestWeightedAverageSequence(t *testing.T) {
	// pcs base, box = 10 pcs, costs already per pc.
	cost, err := WeightedAverage(decimal.Zero, decimal.Zero, d("10"), d("10"))
	require.NoError(t, err)
	require.True(t, cost.Equal(d("10")))

	cost, err = WeightedAverage(d("10"), cost, d("10"), d("20"))
	require.NoError(t, err)
	require.True(t, cost.Equal(d("15")))

	cost, err = WeightedAverage(d("20"), cost, d("10"), d("8"))
	require.NoError(t, err)
	f, _ := cost.Float64()
	require.InDelta(t, 12.6667, f, 0.0001)
}

func TestWeightedAverageKeepsCostWhenStockNotPositive(t *testing.T) {
	cost, err := WeightedAverage(d("-10"), d("12"), d("5"), d("30"))
	require.NoError(t, err)
	require.True(t, cost.Equal(d("12")))
}

func TestWeightedAverageRejectsNonReceipt(t *testing.T) {
	_, err := WeightedAverage(d("5"), d("1"), decimal.Zero, d("1"))
	require.ErrorIs(t, err, ErrNonPositiveQuantity)

	_, err = WeightedAverage(d("5"), d("1"), d("1"), d("-1"))
	require.ErrorIs(t, err, ErrNegativeCost)
}

func TestAllocateFixedDiscountSingleLine(t *testing.T) {
	landed, err := Allocate([]ReceiptLine{{Quantity: d("1"), UnitPrice: d("100")}}, Discount{Amount: d("20"), Type: DiscountFixed}, decimal.Zero, true)
	require.NoError(t, err)
	require.True(t, landed.UnitCosts[0].Equal(d("80")))
	require.True(t, landed.Net().Equal(d("80")))
}

func TestAllocateProportionalWithFees(t *testing.T) {
	lines := []ReceiptLine{
		{Quantity: d("10"), UnitPrice: d("30")}, // 300
		{Quantity: d("4"), UnitPrice: d("25")},  // 100
	}
	landed, err := Allocate(lines, Discount{Amount: d("10"), Type: DiscountPercentage}, d("20"), true)
	require.NoError(t, err)
	require.True(t, landed.Total.Equal(d("400")))
	require.True(t, landed.DiscountAmount.Equal(d("40")))
	require.True(t, landed.Net().Equal(d("380")))
	// line 1: (300 - 30 + 15) / 10
	require.True(t, landed.UnitCosts[0].Equal(d("28.5")), landed.UnitCosts[0].String())
	// line 2: (100 - 10 + 5) / 4
	require.True(t, landed.UnitCosts[1].Equal(d("23.75")), landed.UnitCosts[1].String())
}

func TestAllocateWithoutRecompute(t *testing.T) {
	landed, err := Allocate([]ReceiptLine{{Quantity: d("2"), UnitPrice: d("50")}}, Discount{Amount: d("10"), Type: DiscountFixed}, decimal.Zero, false)
	require.NoError(t, err)
	require.True(t, landed.UnitCosts[0].Equal(d("50")))
	require.True(t, landed.Net().Equal(d("90")))
}

func TestAllocateRejectsInvalidDiscount(t *testing.T) {
	lines := []ReceiptLine{{Quantity: d("1"), UnitPrice: d("10")}}

	_, err := Allocate(lines, Discount{Amount: d("11"), Type: DiscountFixed}, decimal.Zero, true)
	require.ErrorIs(t, err, ErrInvalidDiscount)

	_, err = Allocate(lines, Discount{Amount: d("101"), Type: DiscountPercentage}, decimal.Zero, true)
	require.ErrorIs(t, err, ErrInvalidDiscount)

	_, err = Allocate(lines, Discount{Amount: d("1"), Type: "bogus"}, decimal.Zero, true)
	require.ErrorIs(t, err, ErrInvalidDiscount)

	_, err = Allocate(lines, Discount{Amount: d("5")}, decimal.Zero, true)
	require.ErrorIs(t, err, ErrInvalidDiscount)

	landed, err := Allocate(lines, Discount{}, decimal.Zero, true)
	require.NoError(t, err)
	require.True(t, landed.DiscountAmount.IsZero())
}
