package ap

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/inventory-ledger/internal/shared"
)

func TestTermDays(t *testing.T) {
	cases := map[string]int{
		"Net 15": 15,
		"net30":  30,
		"NET 60": 60,
		"COD":    0,
		"":       DefaultTermDays,
		"2/10":   DefaultTermDays,
	}
	for terms, want := range cases {
		require.Equal(t, want, TermDays(terms), terms)
	}
}

func TestDueDate(t *testing.T) {
	from := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2026, 2, 4, 0, 0, 0, 0, time.UTC), DueDate("Net 15", from))
	require.Equal(t, from, DueDate("COD", from))
}

func TestPayableCanCancel(t *testing.T) {
	p := Payable{Number: "AP-1", Status: PayableOpen, TotalAmount: decimal.NewFromInt(100), Balance: decimal.NewFromInt(100)}
	require.NoError(t, p.CanCancel())

	p.Balance = decimal.NewFromInt(40)
	require.ErrorIs(t, p.CanCancel(), shared.ErrInvalidStateTransition)

	p.Status = PayableCancelled
	require.ErrorIs(t, p.CanCancel(), shared.ErrInvalidStateTransition)
}
