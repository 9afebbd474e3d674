package inventory

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/inventory-ledger/internal/shared"
)

// LineKind discriminates postable lines.
type LineKind uint8

const (
	// LineReceipt adds valued stock and re-averages the product cost.
	LineReceipt LineKind = iota + 1
	// LineIssue removes stock.
	LineIssue
	// LineAdjustAbsolute sets the stock to Quantity.
	LineAdjustAbsolute
	// LineAdjustRelative adds a signed Quantity.
	LineAdjustRelative
	// LineTransferOut removes stock from the source warehouse.
	LineTransferOut
	// LineTransferIn adds stock to the destination warehouse.
	LineTransferIn
	// LineReversal negates a previously applied base delta.
	LineReversal
)

func (k LineKind) String() string {
	switch k {
	case LineReceipt:
		return "receipt"
	case LineIssue:
		return "issue"
	case LineAdjustAbsolute:
		return "adjust-absolute"
	case LineAdjustRelative:
		return "adjust-relative"
	case LineTransferOut:
		return "transfer-out"
	case LineTransferIn:
		return "transfer-in"
	case LineReversal:
		return "reversal"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// PostableLine is the single line shape every document is reduced to before
// posting. Quantity and UnitCost are expressed in UOM; AppliedDelta is only
// read by reversal lines and is already in base units.
type PostableLine struct {
	Kind         LineKind
	ProductID    int64
	WarehouseID  int64
	Quantity     decimal.Decimal
	UOM          string
	UnitCost     decimal.Decimal
	AppliedDelta decimal.Decimal
}

// Cell returns the stock cell touched by the line.
func (l PostableLine) Cell() Cell {
	return Cell{ProductID: l.ProductID, WarehouseID: l.WarehouseID}
}

// CostBearing reports whether the line feeds the weighted-average calculator.
func (l PostableLine) CostBearing() bool {
	return l.Kind == LineReceipt
}

// ReferenceType returns the movement tag for a line of a document tagged doc.
func (l PostableLine) ReferenceType(doc ReferenceType) ReferenceType {
	if l.Kind == LineReversal {
		return ReferenceReversal
	}
	return doc
}

// Validate checks the line shape without touching storage.
func (l PostableLine) Validate() error {
	if l.ProductID == 0 || l.WarehouseID == 0 {
		return shared.Validationf("inventory: %s line requires product and warehouse", l.Kind)
	}
	switch l.Kind {
	case LineReceipt:
		if !l.Quantity.IsPositive() {
			return fmt.Errorf("%w: receipt of %s", ErrInvalidQuantity, l.Quantity)
		}
		if l.UnitCost.IsNegative() {
			return ErrInvalidUnitCost
		}
	case LineIssue, LineTransferOut, LineTransferIn:
		if !l.Quantity.IsPositive() {
			return fmt.Errorf("%w: %s of %s", ErrInvalidQuantity, l.Kind, l.Quantity)
		}
	case LineAdjustAbsolute:
		if l.Quantity.IsNegative() {
			return fmt.Errorf("%w: absolute target %s", ErrInvalidQuantity, l.Quantity)
		}
	case LineAdjustRelative:
		if l.Quantity.IsZero() {
			return fmt.Errorf("%w: relative adjustment of zero", ErrInvalidQuantity)
		}
	case LineReversal:
	default:
		return shared.Validationf("inventory: unknown line kind %d", l.Kind)
	}
	return nil
}

// ToBaseQuantity converts the line quantity into base units of p.
func (l PostableLine) ToBaseQuantity(p Product) (decimal.Decimal, error) {
	if l.Kind == LineReversal {
		return l.AppliedDelta, nil
	}
	qty, err := p.Units().ToBaseQuantity(l.UOM, l.Quantity)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: product %d: %w", shared.ErrValidation, p.ID, err)
	}
	return qty, nil
}

// BaseUnitCost converts the line unit cost into a per-base-unit cost of p.
func (l PostableLine) BaseUnitCost(p Product) (decimal.Decimal, error) {
	cost, err := p.Units().ToBaseUnitCost(l.UOM, l.UnitCost)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: product %d: %w", shared.ErrValidation, p.ID, err)
	}
	return cost, nil
}

// SignedDelta returns the base-unit change the line applies to a cell
// currently holding current units, given the line's base quantity.
func (l PostableLine) SignedDelta(current, base decimal.Decimal) decimal.Decimal {
	switch l.Kind {
	case LineIssue, LineTransferOut, LineReversal:
		return base.Neg()
	case LineAdjustAbsolute:
		return base.Sub(current)
	default:
		return base
	}
}
