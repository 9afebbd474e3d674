package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/inventory-ledger/internal/costing"
	"github.com/odyssey-erp/inventory-ledger/internal/shared"
)

// StockRepository is the transactional surface the ledger writes through.
// Implementations are bound to one open transaction and never start their own.
type StockRepository interface {
	GetProduct(ctx context.Context, id int64) (Product, error)
	LockProduct(ctx context.Context, id int64) (Product, error)
	UpdateAverageCost(ctx context.Context, productID int64, cost decimal.Decimal) error
	GetQuantity(ctx context.Context, productID, warehouseID int64) (decimal.Decimal, error)
	LockStock(ctx context.Context, productID, warehouseID int64) (Inventory, error)
	SumQuantity(ctx context.Context, productID int64) (decimal.Decimal, error)
	AdjustQuantity(ctx context.Context, productID, warehouseID int64, delta decimal.Decimal) (decimal.Decimal, error)
	AppendMovement(ctx context.Context, movement StockMovement) (int64, error)
	HasMovementsSince(ctx context.Context, cell Cell, refType ReferenceType, since time.Time) (bool, error)
}

// CostBasis selects which quantity a receipt is averaged against.
type CostBasis string

const (
	// CostBasisWarehouse averages against the receiving warehouse's quantity.
	CostBasisWarehouse CostBasis = "warehouse"
	// CostBasisGlobal averages against the product's quantity across all warehouses.
	CostBasisGlobal CostBasis = "global"
)

// Policy tunes ledger behaviour.
type Policy struct {
	AllowNegativeStock bool
	CostBasis          CostBasis
}

// Ledger applies postable lines to the quantity store and movement log.
type Ledger struct {
	policy Policy
	now    func() time.Time
}

// NewLedger builds a Ledger.
func NewLedger(policy Policy) *Ledger {
	if policy.CostBasis == "" {
		policy.CostBasis = CostBasisWarehouse
	}
	return &Ledger{policy: policy, now: func() time.Time { return time.Now().UTC() }}
}

// AppliedLine is the outcome of one posted line.
type AppliedLine struct {
	Line         PostableLine
	BaseQuantity decimal.Decimal
	Delta        decimal.Decimal
	Before       decimal.Decimal
	After        decimal.Decimal
	UnitCost     decimal.Decimal
	CostBefore   decimal.Decimal
	CostAfter    decimal.Decimal
	Movement     StockMovement
}

// Result is the outcome of one Post call.
type Result struct {
	Lines        []AppliedLine
	AverageCosts map[int64]decimal.Decimal
}

// Movements returns the movements written, in line order.
func (r Result) Movements() []StockMovement {
	out := make([]StockMovement, 0, len(r.Lines))
	for _, line := range r.Lines {
		if line.Movement.ID != 0 {
			out = append(out, line.Movement)
		}
	}
	return out
}

// Post applies lines in order against tx. It plans the whole document before
// writing, so validation and stock failures leave storage untouched; any write
// failure must abort the caller's transaction.
func (l *Ledger) Post(ctx context.Context, tx StockRepository, ref Reference, lines []PostableLine) (Result, error) {
	if len(lines) == 0 {
		return Result{}, ErrNoLines
	}
	for i, line := range lines {
		if err := line.Validate(); err != nil {
			return Result{}, fmt.Errorf("line %d: %w", i+1, err)
		}
	}
	products, err := l.loadProducts(ctx, tx, lines)
	if err != nil {
		return Result{}, err
	}
	bases := make([]decimal.Decimal, len(lines))
	for i, line := range lines {
		bases[i], err = line.ToBaseQuantity(products[line.ProductID])
		if err != nil {
			return Result{}, fmt.Errorf("line %d: %w", i+1, err)
		}
	}

	running, err := l.lockCells(ctx, tx, lines)
	if err != nil {
		return Result{}, err
	}
	global := map[int64]decimal.Decimal{}
	if l.policy.CostBasis == CostBasisGlobal {
		for id := range products {
			sum, err := tx.SumQuantity(ctx, id)
			if err != nil {
				return Result{}, fmt.Errorf("inventory: sum quantity: %w", err)
			}
			global[id] = sum
		}
	}

	costs := make(map[int64]decimal.Decimal, len(products))
	for id, p := range products {
		costs[id] = p.AverageCost
	}
	planned := make([]AppliedLine, len(lines))
	for i, line := range lines {
		product := products[line.ProductID]
		cell := line.Cell()
		before := running[cell]
		delta := line.SignedDelta(before, bases[i])
		after := before.Add(delta)
		if after.IsNegative() && delta.IsNegative() && !l.policy.AllowNegativeStock {
			return Result{}, fmt.Errorf("%w: %s has %s %s, line %d needs %s", shared.ErrInsufficientStock, cell, before, product.BaseUOM, i+1, delta.Neg())
		}
		applied := AppliedLine{
			Line:         line,
			BaseQuantity: bases[i],
			Delta:        delta,
			Before:       before,
			After:        after,
			UnitCost:     costs[line.ProductID],
			CostBefore:   costs[line.ProductID],
			CostAfter:    costs[line.ProductID],
		}
		if line.CostBearing() {
			unitCost, err := line.BaseUnitCost(product)
			if err != nil {
				return Result{}, fmt.Errorf("line %d: %w", i+1, err)
			}
			q0 := before
			if l.policy.CostBasis == CostBasisGlobal {
				q0 = global[line.ProductID]
			}
			next, err := costing.WeightedAverage(q0, costs[line.ProductID], bases[i], unitCost)
			if err != nil {
				return Result{}, fmt.Errorf("%w: line %d: %w", shared.ErrValidation, i+1, err)
			}
			costs[line.ProductID] = next
			applied.UnitCost = unitCost
			applied.CostAfter = next
		}
		running[cell] = after
		global[line.ProductID] = global[line.ProductID].Add(delta)
		planned[i] = applied
	}

	return l.write(ctx, tx, ref, products, costs, planned)
}

func (l *Ledger) write(ctx context.Context, tx StockRepository, ref Reference, products map[int64]Product, costs map[int64]decimal.Decimal, planned []AppliedLine) (Result, error) {
	result := Result{Lines: planned, AverageCosts: make(map[int64]decimal.Decimal, len(costs))}
	for _, id := range sortedIDs(products) {
		result.AverageCosts[id] = costs[id]
		if costs[id].Equal(products[id].AverageCost) {
			continue
		}
		if err := tx.UpdateAverageCost(ctx, id, costs[id]); err != nil {
			return Result{}, fmt.Errorf("inventory: update average cost: %w", err)
		}
	}
	now := l.now()
	for i := range result.Lines {
		applied := &result.Lines[i]
		if applied.Delta.IsZero() {
			continue
		}
		line := applied.Line
		after, err := tx.AdjustQuantity(ctx, line.ProductID, line.WarehouseID, applied.Delta)
		if err != nil {
			return Result{}, fmt.Errorf("inventory: adjust quantity: %w", err)
		}
		if !after.Equal(applied.After) {
			return Result{}, fmt.Errorf("inventory: %s moved to %s, expected %s", line.Cell(), after, applied.After)
		}
		movement := StockMovement{
			ProductID:     line.ProductID,
			WarehouseID:   line.WarehouseID,
			Type:          MovementIn,
			Quantity:      applied.Delta,
			UnitCost:      applied.UnitCost,
			ReferenceType: line.ReferenceType(ref.Type),
			ReferenceID:   ref.ID,
			Note:          ref.Note,
			CreatedAt:     now,
		}
		if applied.Delta.IsNegative() {
			movement.Type = MovementOut
		}
		movement.ID, err = tx.AppendMovement(ctx, movement)
		if err != nil {
			return Result{}, fmt.Errorf("inventory: append movement: %w", err)
		}
		applied.Movement = movement
	}
	return result, nil
}

// loadProducts reads every referenced product, locking those whose cost will
// change. Under CostBasisGlobal every product is locked: a receipt averages
// against the quantity of all warehouses, so any posting that moves one of
// them has to serialize with it. Locks are taken in ascending id order.
func (l *Ledger) loadProducts(ctx context.Context, tx StockRepository, lines []PostableLine) (map[int64]Product, error) {
	global := l.policy.CostBasis == CostBasisGlobal
	costBearing := map[int64]bool{}
	for _, line := range lines {
		costBearing[line.ProductID] = costBearing[line.ProductID] || line.CostBearing() || global
	}
	ids := make([]int64, 0, len(costBearing))
	for id := range costBearing {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	products := make(map[int64]Product, len(ids))
	for _, id := range ids {
		var (
			p   Product
			err error
		)
		if costBearing[id] {
			p, err = tx.LockProduct(ctx, id)
		} else {
			p, err = tx.GetProduct(ctx, id)
		}
		if err != nil {
			if errors.Is(err, ErrProductNotFound) {
				return nil, fmt.Errorf("%w: id %d", ErrProductNotFound, id)
			}
			return nil, fmt.Errorf("inventory: load product %d: %w", id, err)
		}
		products[id] = p
	}
	return products, nil
}

// lockCells takes the row lock of every distinct cell in (product, warehouse)
// order and returns their current quantities.
func (l *Ledger) lockCells(ctx context.Context, tx StockRepository, lines []PostableLine) (map[Cell]decimal.Decimal, error) {
	running := map[Cell]decimal.Decimal{}
	cells := make([]Cell, 0, len(lines))
	for _, line := range lines {
		cell := line.Cell()
		if _, ok := running[cell]; ok {
			continue
		}
		running[cell] = decimal.Zero
		cells = append(cells, cell)
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].ProductID != cells[j].ProductID {
			return cells[i].ProductID < cells[j].ProductID
		}
		return cells[i].WarehouseID < cells[j].WarehouseID
	})
	for _, cell := range cells {
		inv, err := tx.LockStock(ctx, cell.ProductID, cell.WarehouseID)
		if err != nil {
			return nil, fmt.Errorf("inventory: lock %s: %w", cell, err)
		}
		running[cell] = inv.Quantity
	}
	return running, nil
}

func sortedIDs(products map[int64]Product) []int64 {
	ids := make([]int64, 0, len(products))
	for id := range products {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
