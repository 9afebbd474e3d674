package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/inventory-ledger/internal/shared"
	"github.com/odyssey-erp/inventory-ledger/internal/uom"
)

// ReferenceType tags a movement with the kind of document that caused it.
type ReferenceType string

const (
	// ReferenceRV is a receiving voucher.
	ReferenceRV ReferenceType = "RV"
	// ReferenceAdjustment is a stock adjustment.
	ReferenceAdjustment ReferenceType = "ADJUSTMENT"
	// ReferenceTransfer is an inter-warehouse transfer.
	ReferenceTransfer ReferenceType = "TRANSFER"
	// ReferenceSale is a sales issue.
	ReferenceSale ReferenceType = "SALE"
	// ReferenceReversal compensates an earlier document.
	ReferenceReversal ReferenceType = "REVERSAL"
)

// MovementType is the direction of a movement.
type MovementType string

const (
	MovementIn  MovementType = "IN"
	MovementOut MovementType = "OUT"
)

// Product carries the costing-relevant part of the product master.
type Product struct {
	ID          int64
	SKU         string
	Name        string
	BaseUOM     string
	AverageCost decimal.Decimal
	Alternates  []uom.Alternate
}

// Units returns the product's unit catalogue.
func (p Product) Units() uom.Set {
	return uom.Set{Base: p.BaseUOM, Alternates: p.Alternates}
}

// AverageCostIn expresses the average cost per unit of name.
func (p Product) AverageCostIn(name string) (decimal.Decimal, error) {
	return p.Units().FromBaseUnitCost(name, p.AverageCost)
}

// Inventory is the current quantity of a product in a warehouse, in base units.
type Inventory struct {
	ProductID   int64
	WarehouseID int64
	Quantity    decimal.Decimal
	UpdatedAt   time.Time
}

// StockMovement is one immutable, signed quantity change.
type StockMovement struct {
	ID            int64
	ProductID     int64
	WarehouseID   int64
	Type          MovementType
	Quantity      decimal.Decimal
	UnitCost      decimal.Decimal
	ReferenceType ReferenceType
	ReferenceID   int64
	Note          string
	CreatedAt     time.Time
}

// Reference identifies the document being posted.
type Reference struct {
	Type ReferenceType
	ID   int64
	Note string
}

// Cell is a (product, warehouse) pair.
type Cell struct {
	ProductID   int64
	WarehouseID int64
}

func (c Cell) String() string {
	return fmt.Sprintf("product %d/warehouse %d", c.ProductID, c.WarehouseID)
}

// Discrepancy reports a cell whose quantity disagrees with its movements.
type Discrepancy struct {
	Cell
	Quantity    decimal.Decimal
	MovementSum decimal.Decimal
}

// MovementFilter narrows movement listings.
type MovementFilter struct {
	ProductID     int64
	WarehouseID   int64
	ReferenceType ReferenceType
	ReferenceID   int64
	Limit         int
	Offset        int
}

var (
	// ErrProductNotFound is returned for an unknown product id.
	ErrProductNotFound = fmt.Errorf("%w: inventory: product not found", shared.ErrValidation)
	// ErrInvalidQuantity indicates a quantity outside the range allowed for the line kind.
	ErrInvalidQuantity = fmt.Errorf("%w: inventory: invalid quantity", shared.ErrValidation)
	// ErrInvalidUnitCost indicates a negative receipt cost.
	ErrInvalidUnitCost = fmt.Errorf("%w: inventory: unit cost must be >= 0", shared.ErrValidation)
	// ErrNoLines is returned for a document without lines.
	ErrNoLines = fmt.Errorf("%w: inventory: document has no lines", shared.ErrValidation)
	// ErrInventoryNotFound indicates a missing quantity row.
	ErrInventoryNotFound = errors.New("inventory: stock row not found")
)
