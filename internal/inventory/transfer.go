package inventory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/inventory-ledger/internal/shared"
)

// TransferStatus is the lifecycle state of a transfer.
type TransferStatus string

const (
	TransferDraft     TransferStatus = "DRAFT"
	TransferPosted    TransferStatus = "POSTED"
	TransferCancelled TransferStatus = "CANCELLED"
)

// Transfer moves stock between two warehouses.
type Transfer struct {
	ID                     int64
	Number                 string
	SourceWarehouseID      int64
	DestinationWarehouseID int64
	Status                 TransferStatus
	Note                   string
	CreatedBy              int64
	CreatedAt              time.Time
	PostedAt               time.Time
	Items                  []TransferItem
}

// TransferItem is one product to move.
type TransferItem struct {
	ID         int64
	TransferID int64
	LineNo     int
	ProductID  int64
	Quantity   decimal.Decimal
	UOM        string
	Note       string
}

func (t Transfer) requireDraft(op string) error {
	if t.Status != TransferDraft {
		return fmt.Errorf("%w: cannot %s transfer %s in status %s", shared.ErrInvalidStateTransition, op, t.Number, t.Status)
	}
	return nil
}

// CanEdit reports whether the transfer may still change.
func (t Transfer) CanEdit() error { return t.requireDraft("edit") }

// CanPost guards DRAFT -> POSTED.
func (t Transfer) CanPost() error { return t.requireDraft("post") }

// CanCancel guards DRAFT -> CANCELLED.
func (t Transfer) CanCancel() error { return t.requireDraft("cancel") }

// Validate checks warehouses and items.
func (t Transfer) Validate() error {
	if t.SourceWarehouseID == 0 || t.DestinationWarehouseID == 0 {
		return shared.Validationf("inventory: transfer requires source and destination warehouse")
	}
	if t.SourceWarehouseID == t.DestinationWarehouseID {
		return shared.Validationf("inventory: source and destination warehouse must differ")
	}
	if len(t.Items) == 0 {
		return ErrNoLines
	}
	seen := make(map[int64]struct{}, len(t.Items))
	for i, item := range t.Items {
		if item.ProductID == 0 {
			return shared.Validationf("inventory: transfer item %d requires product", i+1)
		}
		if _, dup := seen[item.ProductID]; dup {
			return shared.Validationf("inventory: product %d appears more than once", item.ProductID)
		}
		seen[item.ProductID] = struct{}{}
		if !item.Quantity.IsPositive() {
			return fmt.Errorf("%w: item %d quantity %s", ErrInvalidQuantity, i+1, item.Quantity)
		}
	}
	return nil
}

// PostableLines emits an out line from the source and an in line to the
// destination for every item.
func (t Transfer) PostableLines() []PostableLine {
	lines := make([]PostableLine, 0, len(t.Items)*2)
	for _, item := range t.Items {
		lines = append(lines,
			PostableLine{Kind: LineTransferOut, ProductID: item.ProductID, WarehouseID: t.SourceWarehouseID, Quantity: item.Quantity, UOM: item.UOM},
			PostableLine{Kind: LineTransferIn, ProductID: item.ProductID, WarehouseID: t.DestinationWarehouseID, Quantity: item.Quantity, UOM: item.UOM},
		)
	}
	return lines
}
