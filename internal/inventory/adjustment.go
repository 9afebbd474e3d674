package inventory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/inventory-ledger/internal/shared"
)

// AdjustmentStatus is the lifecycle state of an adjustment.
type AdjustmentStatus string

const (
	AdjustmentDraft     AdjustmentStatus = "DRAFT"
	AdjustmentPosted    AdjustmentStatus = "POSTED"
	AdjustmentReversed  AdjustmentStatus = "REVERSED"
	AdjustmentCancelled AdjustmentStatus = "CANCELLED"
)

// AdjustmentType selects how an item quantity is read.
type AdjustmentType string

const (
	// AdjustmentAbsolute sets the counted quantity.
	AdjustmentAbsolute AdjustmentType = "ABSOLUTE"
	// AdjustmentRelative adds a signed quantity.
	AdjustmentRelative AdjustmentType = "RELATIVE"
)

// Adjustment is a stock adjustment document for one warehouse.
type Adjustment struct {
	ID          int64
	Number      string
	WarehouseID int64
	Status      AdjustmentStatus
	Reason      string
	SourceID    int64
	CreatedBy   int64
	CreatedAt   time.Time
	PostedAt    time.Time
	ReversedAt  time.Time
	Items       []AdjustmentItem
}

// AdjustmentItem is one counted or corrected product.
type AdjustmentItem struct {
	ID             int64
	AdjustmentID   int64
	LineNo         int
	ProductID      int64
	Type           AdjustmentType
	Quantity       decimal.Decimal
	UOM            string
	SystemQuantity decimal.Decimal
	AppliedDelta   decimal.Decimal
	Note           string
}

func (a Adjustment) requireStatus(op string, allowed AdjustmentStatus) error {
	if a.Status != allowed {
		return fmt.Errorf("%w: cannot %s adjustment %s in status %s", shared.ErrInvalidStateTransition, op, a.Number, a.Status)
	}
	return nil
}

// CanEdit reports whether items and header may still change.
func (a Adjustment) CanEdit() error {
	return a.requireStatus("edit", AdjustmentDraft)
}

// CanPost guards DRAFT -> POSTED.
func (a Adjustment) CanPost() error {
	return a.requireStatus("post", AdjustmentDraft)
}

// CanCancel guards DRAFT -> CANCELLED.
func (a Adjustment) CanCancel() error {
	return a.requireStatus("cancel", AdjustmentDraft)
}

// CanReverse guards POSTED -> REVERSED. A second reversal yields ErrAlreadyReversed.
func (a Adjustment) CanReverse() error {
	if a.Status == AdjustmentReversed {
		return fmt.Errorf("%w: adjustment %s", shared.ErrAlreadyReversed, a.Number)
	}
	return a.requireStatus("reverse", AdjustmentPosted)
}

// Validate checks header and item shape.
func (a Adjustment) Validate() error {
	if a.WarehouseID == 0 {
		return shared.Validationf("inventory: adjustment requires warehouse")
	}
	if len(a.Items) == 0 {
		return ErrNoLines
	}
	for i, item := range a.Items {
		if item.ProductID == 0 {
			return shared.Validationf("inventory: adjustment item %d requires product", i+1)
		}
		switch item.Type {
		case AdjustmentAbsolute:
			if item.Quantity.IsNegative() {
				return fmt.Errorf("%w: item %d absolute quantity %s", ErrInvalidQuantity, i+1, item.Quantity)
			}
		case AdjustmentRelative:
			if item.Quantity.IsZero() {
				return fmt.Errorf("%w: item %d relative quantity is zero", ErrInvalidQuantity, i+1)
			}
		default:
			return shared.Validationf("inventory: item %d unknown adjustment type %q", i+1, item.Type)
		}
	}
	return nil
}

// PostableLines maps items to ledger lines in item order.
func (a Adjustment) PostableLines() []PostableLine {
	lines := make([]PostableLine, len(a.Items))
	for i, item := range a.Items {
		kind := LineAdjustRelative
		if item.Type == AdjustmentAbsolute {
			kind = LineAdjustAbsolute
		}
		lines[i] = PostableLine{
			Kind:        kind,
			ProductID:   item.ProductID,
			WarehouseID: a.WarehouseID,
			Quantity:    item.Quantity,
			UOM:         item.UOM,
		}
	}
	return lines
}

// ReversalLines negates the deltas stored when the adjustment was posted.
func (a Adjustment) ReversalLines() []PostableLine {
	lines := make([]PostableLine, len(a.Items))
	for i, item := range a.Items {
		lines[i] = PostableLine{
			Kind:         LineReversal,
			ProductID:    item.ProductID,
			WarehouseID:  a.WarehouseID,
			AppliedDelta: item.AppliedDelta,
		}
	}
	return lines
}

// Copy returns a fresh draft with the same warehouse and items.
func (a Adjustment) Copy() Adjustment {
	items := make([]AdjustmentItem, len(a.Items))
	for i, item := range a.Items {
		items[i] = AdjustmentItem{
			LineNo:    i + 1,
			ProductID: item.ProductID,
			Type:      item.Type,
			Quantity:  item.Quantity,
			UOM:       item.UOM,
			Note:      item.Note,
		}
	}
	return Adjustment{
		WarehouseID: a.WarehouseID,
		Status:      AdjustmentDraft,
		Reason:      a.Reason,
		SourceID:    a.ID,
		Items:       items,
	}
}
