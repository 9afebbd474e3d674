package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/inventory-ledger/internal/shared"
	"github.com/odyssey-erp/inventory-ledger/internal/uom"
)

type memoryStock struct {
	products  map[int64]Product
	stock     map[Cell]decimal.Decimal
	movements []StockMovement
	nextID    int64
	locked    []int64
}

func newMemoryStock(products ...Product) *memoryStock {
	m := &memoryStock{products: map[int64]Product{}, stock: map[Cell]decimal.Decimal{}}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func (m *memoryStock) GetProduct(_ context.Context, id int64) (Product, error) {
	p, ok := m.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return p, nil
}

func (m *memoryStock) LockProduct(ctx context.Context, id int64) (Product, error) {
	m.locked = append(m.locked, id)
	return m.GetProduct(ctx, id)
}

func (m *memoryStock) UpdateAverageCost(_ context.Context, id int64, cost decimal.Decimal) error {
	p := m.products[id]
	p.AverageCost = cost
	m.products[id] = p
	return nil
}

func (m *memoryStock) GetQuantity(_ context.Context, productID, warehouseID int64) (decimal.Decimal, error) {
	return m.stock[Cell{productID, warehouseID}], nil
}

func (m *memoryStock) LockStock(_ context.Context, productID, warehouseID int64) (Inventory, error) {
	cell := Cell{productID, warehouseID}
	return Inventory{ProductID: productID, WarehouseID: warehouseID, Quantity: m.stock[cell]}, nil
}

func (m *memoryStock) SumQuantity(_ context.Context, productID int64) (decimal.Decimal, error) {
	sum := decimal.Zero
	for cell, qty := range m.stock {
		if cell.ProductID == productID {
			sum = sum.Add(qty)
		}
	}
	return sum, nil
}

func (m *memoryStock) AdjustQuantity(_ context.Context, productID, warehouseID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	cell := Cell{productID, warehouseID}
	m.stock[cell] = m.stock[cell].Add(delta)
	return m.stock[cell], nil
}

func (m *memoryStock) AppendMovement(_ context.Context, mv StockMovement) (int64, error) {
	m.nextID++
	mv.ID = m.nextID
	m.movements = append(m.movements, mv)
	return mv.ID, nil
}

func (m *memoryStock) HasMovementsSince(_ context.Context, cell Cell, refType ReferenceType, since time.Time) (bool, error) {
	for _, mv := range m.movements {
		if mv.ProductID == cell.ProductID && mv.WarehouseID == cell.WarehouseID && mv.ReferenceType == refType && mv.CreatedAt.After(since) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryStock) requireReconciled(t *testing.T) {
	t.Helper()
	sums := map[Cell]decimal.Decimal{}
	for _, mv := range m.movements {
		cell := Cell{mv.ProductID, mv.WarehouseID}
		sums[cell] = sums[cell].Add(mv.Quantity)
	}
	for cell, qty := range m.stock {
		require.Truef(t, qty.Equal(sums[cell]), "%s: quantity %s, movements %s", cell, qty, sums[cell])
	}
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func boxedProduct(id int64) Product {
	return Product{ID: id, BaseUOM: "pcs", Alternates: []uom.Alternate{{Name: "box", ConversionFactor: d("10")}}}
}

func receipt(productID int64, qty, cost string) PostableLine {
	return PostableLine{Kind: LineReceipt, ProductID: productID, WarehouseID: 1, Quantity: d(qty), UOM: "box", UnitCost: d(cost)}
}

func TestLedgerWeightedAverageAcrossReceipts(t *testing.T) {
	repo := newMemoryStock(boxedProduct(1))
	ledger := NewLedger(Policy{})
	ctx := context.Background()

	res, err := ledger.Post(ctx, repo, Reference{Type: ReferenceRV, ID: 1}, []PostableLine{receipt(1, "1", "100")})
	require.NoError(t, err)
	require.True(t, res.AverageCosts[1].Equal(d("10")))

	res, err = ledger.Post(ctx, repo, Reference{Type: ReferenceRV, ID: 2}, []PostableLine{receipt(1, "1", "200")})
	require.NoError(t, err)
	require.True(t, res.AverageCosts[1].Equal(d("15")))

	// 100 less a fixed 20 discount, allocated upstream.
	res, err = ledger.Post(ctx, repo, Reference{Type: ReferenceRV, ID: 3}, []PostableLine{receipt(1, "1", "80")})
	require.NoError(t, err)
	avg, _ := res.AverageCosts[1].Float64()
	require.InDelta(t, 12.6667, avg, 0.0001)
	require.True(t, repo.stock[Cell{1, 1}].Equal(d("30")))
	require.Len(t, repo.movements, 3)
	require.Equal(t, MovementIn, repo.movements[2].Type)
	require.Equal(t, ReferenceRV, repo.movements[2].ReferenceType)
	repo.requireReconciled(t)
}

func TestLedgerSequentialLinesInOneDocument(t *testing.T) {
	repo := newMemoryStock(boxedProduct(1), boxedProduct(2))
	ledger := NewLedger(Policy{})

	res, err := ledger.Post(context.Background(), repo, Reference{Type: ReferenceRV, ID: 9}, []PostableLine{
		receipt(1, "1", "100"),
		receipt(1, "1", "200"),
		receipt(2, "2", "50"),
	})
	require.NoError(t, err)
	require.True(t, res.AverageCosts[1].Equal(d("15")))
	require.True(t, res.AverageCosts[2].Equal(d("5")))
	require.True(t, res.Lines[1].CostBefore.Equal(d("10")))
	require.Len(t, res.Movements(), 3)
	repo.requireReconciled(t)
}

func TestLedgerRejectsInsufficientStockWithoutWrites(t *testing.T) {
	repo := newMemoryStock(boxedProduct(1))
	ledger := NewLedger(Policy{})
	ctx := context.Background()

	_, err := ledger.Post(ctx, repo, Reference{Type: ReferenceRV, ID: 1}, []PostableLine{receipt(1, "1", "100")})
	require.NoError(t, err)

	_, err = ledger.Post(ctx, repo, Reference{Type: ReferenceSale, ID: 5}, []PostableLine{
		{Kind: LineIssue, ProductID: 1, WarehouseID: 1, Quantity: d("4"), UOM: "pcs"},
		{Kind: LineIssue, ProductID: 1, WarehouseID: 1, Quantity: d("7"), UOM: "pcs"},
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.True(t, repo.stock[Cell{1, 1}].Equal(d("10")))
	require.Len(t, repo.movements, 1)
}

func TestLedgerAllowNegativePolicy(t *testing.T) {
	repo := newMemoryStock(boxedProduct(1))
	ledger := NewLedger(Policy{AllowNegativeStock: true})

	_, err := ledger.Post(context.Background(), repo, Reference{Type: ReferenceSale, ID: 1}, []PostableLine{
		{Kind: LineIssue, ProductID: 1, WarehouseID: 1, Quantity: d("3"), UOM: "pcs"},
	})
	require.NoError(t, err)
	require.True(t, repo.stock[Cell{1, 1}].Equal(d("-3")))
	repo.requireReconciled(t)
}

func TestLedgerUnknownProductOrUOMIsValidation(t *testing.T) {
	repo := newMemoryStock(boxedProduct(1))
	ledger := NewLedger(Policy{})
	ctx := context.Background()

	_, err := ledger.Post(ctx, repo, Reference{Type: ReferenceRV, ID: 1}, []PostableLine{receipt(1, "1", "100"), receipt(99, "1", "100")})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.ErrorIs(t, err, ErrProductNotFound)

	bad := receipt(1, "1", "100")
	bad.UOM = "pallet"
	_, err = ledger.Post(ctx, repo, Reference{Type: ReferenceRV, ID: 1}, []PostableLine{bad})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.ErrorIs(t, err, uom.ErrUnknownUOM)

	require.Empty(t, repo.movements)
	require.True(t, repo.products[1].AverageCost.IsZero())
}

func TestLedgerAbsoluteAdjustmentAndReversal(t *testing.T) {
	product := Product{ID: 7, BaseUOM: "can", Alternates: []uom.Alternate{{Name: "case", ConversionFactor: d("24")}}}
	repo := newMemoryStock(product)
	ledger := NewLedger(Policy{})
	ctx := context.Background()

	adj := Adjustment{ID: 3, Number: "ADJ-1", WarehouseID: 1, Status: AdjustmentDraft, Items: []AdjustmentItem{
		{ProductID: 7, Type: AdjustmentAbsolute, Quantity: d("1"), UOM: "case"},
	}}
	require.NoError(t, adj.Validate())
	res, err := ledger.Post(ctx, repo, Reference{Type: ReferenceAdjustment, ID: adj.ID}, adj.PostableLines())
	require.NoError(t, err)
	require.True(t, repo.stock[Cell{7, 1}].Equal(d("24")))
	adj.Items[0].AppliedDelta = res.Lines[0].Delta
	adj.Status = AdjustmentPosted

	require.NoError(t, adj.CanReverse())
	_, err = ledger.Post(ctx, repo, Reference{Type: ReferenceAdjustment, ID: adj.ID}, adj.ReversalLines())
	require.NoError(t, err)
	require.True(t, repo.stock[Cell{7, 1}].IsZero())
	require.Len(t, repo.movements, 2)
	require.True(t, repo.movements[1].Quantity.Equal(d("-24")))
	require.Equal(t, ReferenceReversal, repo.movements[1].ReferenceType)
	require.Equal(t, MovementOut, repo.movements[1].Type)
	repo.requireReconciled(t)

	adj.Status = AdjustmentReversed
	require.ErrorIs(t, adj.CanReverse(), shared.ErrAlreadyReversed)
	require.ErrorIs(t, adj.CanReverse(), shared.ErrInvalidStateTransition)
}

func TestLedgerAbsoluteToCurrentWritesNothing(t *testing.T) {
	repo := newMemoryStock(boxedProduct(1))
	repo.stock[Cell{1, 1}] = d("5")
	repo.movements = []StockMovement{{ProductID: 1, WarehouseID: 1, Quantity: d("5")}}

	res, err := NewLedger(Policy{}).Post(context.Background(), repo, Reference{Type: ReferenceAdjustment, ID: 1}, []PostableLine{
		{Kind: LineAdjustAbsolute, ProductID: 1, WarehouseID: 1, Quantity: d("5"), UOM: "pcs"},
	})
	require.NoError(t, err)
	require.True(t, res.Lines[0].Delta.IsZero())
	require.Empty(t, res.Movements())
	require.Len(t, repo.movements, 1)
}

func TestLedgerTransferKeepsCost(t *testing.T) {
	repo := newMemoryStock(boxedProduct(1))
	ledger := NewLedger(Policy{})
	ctx := context.Background()

	_, err := ledger.Post(ctx, repo, Reference{Type: ReferenceRV, ID: 1}, []PostableLine{receipt(1, "2", "120")})
	require.NoError(t, err)

	tr := Transfer{ID: 4, SourceWarehouseID: 1, DestinationWarehouseID: 2, Status: TransferDraft, Items: []TransferItem{
		{ProductID: 1, Quantity: d("1"), UOM: "box"},
	}}
	require.NoError(t, tr.Validate())
	res, err := ledger.Post(ctx, repo, Reference{Type: ReferenceTransfer, ID: tr.ID}, tr.PostableLines())
	require.NoError(t, err)
	require.True(t, repo.stock[Cell{1, 1}].Equal(d("10")))
	require.True(t, repo.stock[Cell{1, 2}].Equal(d("10")))
	require.True(t, res.AverageCosts[1].Equal(d("12")))
	require.True(t, repo.products[1].AverageCost.Equal(d("12")))
	repo.requireReconciled(t)

	tr.Items[0].Quantity = d("5")
	_, err = ledger.Post(ctx, repo, Reference{Type: ReferenceTransfer, ID: tr.ID}, tr.PostableLines())
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
}

func TestLedgerGlobalCostBasis(t *testing.T) {
	repo := newMemoryStock(boxedProduct(1))
	repo.products[1] = Product{ID: 1, BaseUOM: "pcs", AverageCost: d("10")}
	repo.stock[Cell{1, 2}] = d("10")

	warehouse, err := NewLedger(Policy{CostBasis: CostBasisWarehouse}).Post(context.Background(), newMemoryStockFrom(repo), Reference{Type: ReferenceRV, ID: 1}, []PostableLine{
		{Kind: LineReceipt, ProductID: 1, WarehouseID: 1, Quantity: d("10"), UOM: "pcs", UnitCost: d("20")},
	})
	require.NoError(t, err)
	require.True(t, warehouse.AverageCosts[1].Equal(d("20")))

	global, err := NewLedger(Policy{CostBasis: CostBasisGlobal}).Post(context.Background(), repo, Reference{Type: ReferenceRV, ID: 1}, []PostableLine{
		{Kind: LineReceipt, ProductID: 1, WarehouseID: 1, Quantity: d("10"), UOM: "pcs", UnitCost: d("20")},
	})
	require.NoError(t, err)
	require.True(t, global.AverageCosts[1].Equal(d("15")))
}

func TestLedgerGlobalCostBasisLocksEveryProduct(t *testing.T) {
	repo := newMemoryStock(boxedProduct(1), boxedProduct(2))
	repo.stock[Cell{1, 1}] = d("20")
	repo.stock[Cell{2, 1}] = d("20")
	tr := Transfer{ID: 4, SourceWarehouseID: 1, DestinationWarehouseID: 2, Status: TransferDraft, Items: []TransferItem{
		{ProductID: 2, Quantity: d("1"), UOM: "box"},
		{ProductID: 1, Quantity: d("1"), UOM: "box"},
	}}

	_, err := NewLedger(Policy{}).Post(context.Background(), repo, Reference{Type: ReferenceTransfer, ID: tr.ID}, tr.PostableLines())
	require.NoError(t, err)
	require.Empty(t, repo.locked)

	_, err = NewLedger(Policy{CostBasis: CostBasisGlobal}).Post(context.Background(), repo, Reference{Type: ReferenceTransfer, ID: tr.ID}, tr.PostableLines())
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2}, repo.locked)
}

func newMemoryStockFrom(src *memoryStock) *memoryStock {
	dst := newMemoryStock()
	for id, p := range src.products {
		dst.products[id] = p
	}
	for cell, qty := range src.stock {
		dst.stock[cell] = qty
	}
	return dst
}

func TestPostableLineValidation(t *testing.T) {
	cases := []PostableLine{
		{Kind: LineReceipt, ProductID: 1, WarehouseID: 1, Quantity: d("0")},
		{Kind: LineReceipt, ProductID: 1, WarehouseID: 1, Quantity: d("1"), UnitCost: d("-1")},
		{Kind: LineIssue, ProductID: 1, WarehouseID: 1, Quantity: d("-1")},
		{Kind: LineAdjustAbsolute, ProductID: 1, WarehouseID: 1, Quantity: d("-1")},
		{Kind: LineAdjustRelative, ProductID: 1, WarehouseID: 1, Quantity: d("0")},
		{Kind: LineTransferIn, ProductID: 0, WarehouseID: 1, Quantity: d("1")},
		{Kind: 42, ProductID: 1, WarehouseID: 1, Quantity: d("1")},
	}
	for _, line := range cases {
		require.ErrorIs(t, line.Validate(), shared.ErrValidation, line.Kind.String())
	}
}

func TestAverageCostInUnit(t *testing.T) {
	p := boxedProduct(1)
	p.AverageCost = d("1.25")

	cost, err := p.AverageCostIn("pcs")
	require.NoError(t, err)
	require.True(t, cost.Equal(d("1.25")))

	cost, err = p.AverageCostIn("BOX")
	require.NoError(t, err)
	require.True(t, cost.Equal(d("12.5")))

	_, err = p.AverageCostIn("pallet")
	require.ErrorIs(t, err, uom.ErrUnknownUOM)
}
