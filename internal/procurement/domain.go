package procurement

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/inventory-ledger/internal/costing"
	"github.com/odyssey-erp/inventory-ledger/internal/shared"
)

// POStatus is the purchase order lifecycle status.
type POStatus string

const (
	POStatusDraft     POStatus = "draft"
	POStatusOrdered   POStatus = "ordered"
	POStatusPartial   POStatus = "partial"
	POStatusReceived  POStatus = "received"
	POStatusCancelled POStatus = "cancelled"
)

// ReceivingStatus tracks how much of an order arrived.
type ReceivingStatus string

const (
	ReceivingNone    ReceivingStatus = "none"
	ReceivingPartial ReceivingStatus = "partially_received"
	ReceivingFull    ReceivingStatus = "fully_received"
)

// RVStatus is the receiving voucher status. Vouchers are complete on creation.
type RVStatus string

const (
	RVStatusComplete  RVStatus = "complete"
	RVStatusCancelled RVStatus = "cancelled"
)

// OverReceiptPolicy decides whether an item may receive beyond its ordered quantity.
type OverReceiptPolicy string

const (
	OverReceiptReject OverReceiptPolicy = "reject"
	OverReceiptAllow  OverReceiptPolicy = "allow"
)

// PurchaseOrder is the receiving-relevant view of an order.
type PurchaseOrder struct {
	ID              int64
	Number          string
	SupplierID      int64
	WarehouseID     int64
	PaymentTerms    string
	Status          POStatus
	ReceivingStatus ReceivingStatus
	Items           []POItem
}

// POItem is one ordered product.
type POItem struct {
	ID               int64
	PurchaseOrderID  int64
	ProductID        int64
	Quantity         decimal.Decimal
	ReceivedQuantity decimal.Decimal
	UnitPrice        decimal.Decimal
	UOM              string
}

// Outstanding returns the quantity still expected.
func (i POItem) Outstanding() decimal.Decimal {
	rest := i.Quantity.Sub(i.ReceivedQuantity)
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}

// Item returns the item with the given id.
func (po *PurchaseOrder) Item(id int64) (*POItem, bool) {
	for i := range po.Items {
		if po.Items[i].ID == id {
			return &po.Items[i], true
		}
	}
	return nil, false
}

// ReceivingVoucher records a physical receipt against a purchase order.
type ReceivingVoucher struct {
	ID                   int64
	Number               string
	PurchaseOrderID      int64
	SupplierID           int64
	WarehouseID          int64
	Status               RVStatus
	SupplierDiscount     decimal.Decimal
	SupplierDiscountType costing.DiscountType
	AdditionalFees       decimal.Decimal
	RecomputeAverageCost bool
	TotalAmount          decimal.Decimal
	DiscountAmount       decimal.Decimal
	NetAmount            decimal.Decimal
	Note                 string
	ReceivedAt           time.Time
	CancelledAt          time.Time
	Items                []RVItem
}

// RVItem is one received line.
type RVItem struct {
	ID               int64
	VoucherID        int64
	POItemID         int64
	ProductID        int64
	OrderedQuantity  decimal.Decimal
	ReceivedQuantity decimal.Decimal
	UnitPrice        decimal.Decimal
	UOM              string
	BaseQuantity     decimal.Decimal
	LandedUnitCost   decimal.Decimal
	VarianceQuantity decimal.Decimal
	VariancePercent  decimal.Decimal
}

// CanCancel guards complete -> cancelled.
func (rv ReceivingVoucher) CanCancel() error {
	if rv.Status != RVStatusComplete {
		return fmt.Errorf("%w: receiving voucher %s is %s", shared.ErrInvalidStateTransition, rv.Number, rv.Status)
	}
	return nil
}

var (
	// ErrPurchaseOrderNotFound indicates an unknown order.
	ErrPurchaseOrderNotFound = fmt.Errorf("%w: purchase order not found", shared.ErrValidation)
	// ErrPOItemNotFound indicates a receipt line referencing an item outside the order.
	ErrPOItemNotFound = fmt.Errorf("%w: purchase order item not found", shared.ErrValidation)
	// ErrOverReceipt is returned when the policy rejects receiving beyond the ordered quantity.
	ErrOverReceipt = fmt.Errorf("%w: received quantity exceeds ordered quantity", shared.ErrValidation)
	// ErrNothingReceived is returned when no line carries a positive quantity.
	ErrNothingReceived = fmt.Errorf("%w: at least one item must be received", shared.ErrValidation)
	// ErrVoucherNotFound indicates an unknown receiving voucher.
	ErrVoucherNotFound = fmt.Errorf("%w: receiving voucher", shared.ErrNotFound)
)
