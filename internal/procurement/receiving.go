package procurement

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/inventory-ledger/internal/shared"
)

// Receipt is a quantity received against one PO item, in the item's unit.
type Receipt struct {
	POItemID int64
	Quantity decimal.Decimal
}

// CanReceive reports whether goods may be received against the order.
func (po PurchaseOrder) CanReceive() error {
	switch po.Status {
	case POStatusOrdered, POStatusPartial:
		return nil
	default:
		return fmt.Errorf("%w: purchase order %s is %s", shared.ErrInvalidStateTransition, po.Number, po.Status)
	}
}

// ApplyReceipt adds receipts to the order items and advances both status
// fields. The order is left untouched when an error is returned.
func (po *PurchaseOrder) ApplyReceipt(receipts []Receipt, policy OverReceiptPolicy) error {
	if err := po.CanReceive(); err != nil {
		return err
	}
	next := make(map[int64]decimal.Decimal, len(receipts))
	positive := false
	for _, r := range receipts {
		item, ok := po.Item(r.POItemID)
		if !ok {
			return fmt.Errorf("%w: id %d", ErrPOItemNotFound, r.POItemID)
		}
		if r.Quantity.IsNegative() {
			return shared.Validationf("procurement: negative receipt for item %d", r.POItemID)
		}
		if r.Quantity.IsPositive() {
			positive = true
		}
		current, seen := next[item.ID]
		if !seen {
			current = item.ReceivedQuantity
		}
		current = current.Add(r.Quantity)
		if policy != OverReceiptAllow && current.GreaterThan(item.Quantity) {
			return fmt.Errorf("%w: item %d ordered %s, received %s", ErrOverReceipt, item.ID, item.Quantity, current)
		}
		next[item.ID] = current
	}
	if !positive {
		return ErrNothingReceived
	}
	for id, qty := range next {
		item, _ := po.Item(id)
		item.ReceivedQuantity = qty
	}
	po.Status, po.ReceivingStatus = DeriveStatus(po.Items)
	return nil
}

// RevertReceipt removes receipts from the order, as when a voucher is cancelled.
func (po *PurchaseOrder) RevertReceipt(receipts []Receipt) error {
	if po.Status != POStatusPartial && po.Status != POStatusReceived {
		return fmt.Errorf("%w: purchase order %s is %s", shared.ErrInvalidStateTransition, po.Number, po.Status)
	}
	next := make(map[int64]decimal.Decimal, len(receipts))
	for _, r := range receipts {
		item, ok := po.Item(r.POItemID)
		if !ok {
			return fmt.Errorf("%w: id %d", ErrPOItemNotFound, r.POItemID)
		}
		current, seen := next[item.ID]
		if !seen {
			current = item.ReceivedQuantity
		}
		current = current.Sub(r.Quantity)
		if current.IsNegative() {
			current = decimal.Zero
		}
		next[item.ID] = current
	}
	for id, qty := range next {
		item, _ := po.Item(id)
		item.ReceivedQuantity = qty
	}
	po.Status, po.ReceivingStatus = DeriveStatus(po.Items)
	return nil
}

// DeriveStatus computes the header status pair from item progress.
func DeriveStatus(items []POItem) (POStatus, ReceivingStatus) {
	all, some := len(items) > 0, false
	for _, item := range items {
		if item.ReceivedQuantity.LessThan(item.Quantity) {
			all = false
		}
		if item.ReceivedQuantity.IsPositive() {
			some = true
		}
	}
	switch {
	case all:
		return POStatusReceived, ReceivingFull
	case some:
		return POStatusPartial, ReceivingPartial
	default:
		return POStatusOrdered, ReceivingNone
	}
}

// Variance compares a receipt with what was still expected for the item.
// The percentage is rounded to two decimals and is zero when nothing was expected.
func Variance(item POItem, received decimal.Decimal) (qty, pct decimal.Decimal) {
	expected := item.Outstanding()
	qty = received.Sub(expected)
	if expected.IsZero() {
		return qty, decimal.Zero
	}
	return qty, qty.Div(expected).Mul(decimal.NewFromInt(100)).Round(2)
}
