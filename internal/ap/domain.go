package ap

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/inventory-ledger/internal/shared"
)

// PayableStatus enumerates payable states.
type PayableStatus string

const (
	PayableOpen      PayableStatus = "open"
	PayablePaid      PayableStatus = "paid"
	PayableCancelled PayableStatus = "cancelled"
)

// Payable is the amount owed to a supplier for received goods.
type Payable struct {
	ID                 int64
	Number             string
	SupplierID         int64
	PurchaseOrderID    int64
	ReceivingVoucherID int64
	TotalAmount        decimal.Decimal
	Balance            decimal.Decimal
	Status             PayableStatus
	DueDate            time.Time
	CreatedAt          time.Time
	CancelledAt        time.Time
}

// CanCancel guards open -> cancelled. Payables with settlements stay.
func (p Payable) CanCancel() error {
	if p.Status != PayableOpen {
		return fmt.Errorf("%w: payable %s is %s", shared.ErrInvalidStateTransition, p.Number, p.Status)
	}
	if !p.Balance.Equal(p.TotalAmount) {
		return fmt.Errorf("%w: payable %s has payments", shared.ErrInvalidStateTransition, p.Number)
	}
	return nil
}

// ErrPayableNotFound indicates no payable is linked to the document.
var ErrPayableNotFound = fmt.Errorf("%w: payable", shared.ErrNotFound)
