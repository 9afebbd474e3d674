package posting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/inventory-ledger/internal/ap"
	"github.com/odyssey-erp/inventory-ledger/internal/inventory"
	"github.com/odyssey-erp/inventory-ledger/internal/procurement"
	"github.com/odyssey-erp/inventory-ledger/internal/shared"
)

var errInjected = errors.New("injected failure")

type memoryState struct {
	nextID      int64
	products    map[int64]inventory.Product
	stock       map[inventory.Cell]decimal.Decimal
	movements   []inventory.StockMovement
	adjustments map[int64]inventory.Adjustment
	transfers   map[int64]inventory.Transfer
	orders      map[int64]procurement.PurchaseOrder
	vouchers    map[int64]procurement.ReceivingVoucher
	payables    map[int64]ap.Payable
	keys        map[string]struct{}
	sequences   map[string]int
}

func newMemoryState() *memoryState {
	return &memoryState{
		nextID:      1,
		products:    map[int64]inventory.Product{},
		stock:       map[inventory.Cell]decimal.Decimal{},
		adjustments: map[int64]inventory.Adjustment{},
		transfers:   map[int64]inventory.Transfer{},
		orders:      map[int64]procurement.PurchaseOrder{},
		vouchers:    map[int64]procurement.ReceivingVoucher{},
		payables:    map[int64]ap.Payable{},
		keys:        map[string]struct{}{},
		sequences:   map[string]int{},
	}
}

func (s *memoryState) clone() *memoryState {
	c := newMemoryState()
	c.nextID = s.nextID
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.stock {
		c.stock[k] = v
	}
	c.movements = append([]inventory.StockMovement(nil), s.movements...)
	for k, v := range s.adjustments {
		v.Items = append([]inventory.AdjustmentItem(nil), v.Items...)
		c.adjustments[k] = v
	}
	for k, v := range s.transfers {
		v.Items = append([]inventory.TransferItem(nil), v.Items...)
		c.transfers[k] = v
	}
	for k, v := range s.orders {
		v.Items = append([]procurement.POItem(nil), v.Items...)
		c.orders[k] = v
	}
	for k, v := range s.vouchers {
		v.Items = append([]procurement.RVItem(nil), v.Items...)
		c.vouchers[k] = v
	}
	for k, v := range s.payables {
		c.payables[k] = v
	}
	for k := range s.keys {
		c.keys[k] = struct{}{}
	}
	for k, v := range s.sequences {
		c.sequences[k] = v
	}
	return c
}

func (s *memoryState) id() int64 {
	id := s.nextID
	s.nextID++
	return id
}

// memoryDB is a Runner whose transactions work on a copy of the state that
// replaces it on commit. Transactions are serialized.
type memoryDB struct {
	mu     sync.Mutex
	state  *memoryState
	failOn string
}

func newMemoryDB() *memoryDB {
	return &memoryDB{state: newMemoryState()}
}

func (db *memoryDB) WithTx(ctx context.Context, fn func(context.Context, UnitOfWork) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	work := db.state.clone()
	if err := fn(ctx, &memoryUnit{s: work, failOn: db.failOn}); err != nil {
		return err
	}
	db.state = work
	return nil
}

func (db *memoryDB) snapshot() *memoryState {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.state.clone()
}

func (db *memoryDB) quantity(productID, warehouseID int64) decimal.Decimal {
	return db.snapshot().stock[inventory.Cell{ProductID: productID, WarehouseID: warehouseID}]
}

func (db *memoryDB) averageCost(productID int64) decimal.Decimal {
	return db.snapshot().products[productID].AverageCost
}

// unreconciled lists every cell whose quantity differs from its movements.
func (db *memoryDB) unreconciled() []string {
	state := db.snapshot()
	sums := map[inventory.Cell]decimal.Decimal{}
	for _, m := range state.movements {
		cell := inventory.Cell{ProductID: m.ProductID, WarehouseID: m.WarehouseID}
		sums[cell] = sums[cell].Add(m.Quantity)
	}
	var out []string
	for cell, qty := range state.stock {
		if !qty.Equal(sums[cell]) {
			out = append(out, fmt.Sprintf("%s: %s != %s", cell, qty, sums[cell]))
		}
	}
	sort.Strings(out)
	return out
}

// Reader implementation for handler tests.

func (db *memoryDB) GetProduct(_ context.Context, id int64) (inventory.Product, error) {
	p, ok := db.snapshot().products[id]
	if !ok {
		return inventory.Product{}, inventory.ErrProductNotFound
	}
	return p, nil
}

func (db *memoryDB) GetInventory(_ context.Context, productID, warehouseID int64) (inventory.Inventory, error) {
	inv := inventory.Inventory{ProductID: productID, WarehouseID: warehouseID}
	qty, ok := db.snapshot().stock[inventory.Cell{ProductID: productID, WarehouseID: warehouseID}]
	if !ok {
		return inv, inventory.ErrInventoryNotFound
	}
	inv.Quantity = qty
	return inv, nil
}

func (db *memoryDB) GetAdjustment(_ context.Context, id int64) (inventory.Adjustment, error) {
	adj, ok := db.snapshot().adjustments[id]
	if !ok {
		return inventory.Adjustment{}, inventory.ErrAdjustmentNotFound
	}
	return adj, nil
}

func (db *memoryDB) GetTransfer(_ context.Context, id int64) (inventory.Transfer, error) {
	t, ok := db.snapshot().transfers[id]
	if !ok {
		return inventory.Transfer{}, inventory.ErrTransferNotFound
	}
	return t, nil
}

func (db *memoryDB) ListMovements(_ context.Context, filter inventory.MovementFilter) ([]inventory.StockMovement, error) {
	out := []inventory.StockMovement{}
	for _, m := range db.snapshot().movements {
		if filter.ProductID != 0 && m.ProductID != filter.ProductID {
			continue
		}
		if filter.WarehouseID != 0 && m.WarehouseID != filter.WarehouseID {
			continue
		}
		if filter.ReferenceType != "" && m.ReferenceType != filter.ReferenceType {
			continue
		}
		if filter.ReferenceID != 0 && m.ReferenceID != filter.ReferenceID {
			continue
		}
		out = append(out, m)
	}
	if filter.Offset >= len(out) {
		return []inventory.StockMovement{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (db *memoryDB) GetReceivingVoucher(_ context.Context, id int64) (procurement.ReceivingVoucher, error) {
	rv, ok := db.snapshot().vouchers[id]
	if !ok {
		return procurement.ReceivingVoucher{}, procurement.ErrVoucherNotFound
	}
	return rv, nil
}

// memoryUnit implements UnitOfWork and every repository it hands out.
type memoryUnit struct {
	s      *memoryState
	failOn string
}

func (u *memoryUnit) fail(op string) error {
	if u.failOn == op {
		return fmt.Errorf("%s: %w", op, errInjected)
	}
	return nil
}

func (u *memoryUnit) Inventory() inventory.TxRepository    { return u }
func (u *memoryUnit) Purchasing() procurement.TxRepository { return u }
func (u *memoryUnit) Payables() ap.TxRepository            { return u }

func (u *memoryUnit) ClaimIdempotencyKey(_ context.Context, key, module string) error {
	k := module + "/" + key
	if _, ok := u.s.keys[k]; ok {
		return shared.ErrIdempotencyConflict
	}
	u.s.keys[k] = struct{}{}
	return nil
}

func (u *memoryUnit) NextSequence(_ context.Context, prefix string, day time.Time) (int, error) {
	k := prefix + day.Format("20060102")
	u.s.sequences[k]++
	return u.s.sequences[k], nil
}

func (u *memoryUnit) GetProduct(_ context.Context, id int64) (inventory.Product, error) {
	p, ok := u.s.products[id]
	if !ok {
		return inventory.Product{}, inventory.ErrProductNotFound
	}
	return p, nil
}

func (u *memoryUnit) LockProduct(ctx context.Context, id int64) (inventory.Product, error) {
	return u.GetProduct(ctx, id)
}

func (u *memoryUnit) UpdateAverageCost(_ context.Context, productID int64, cost decimal.Decimal) error {
	if err := u.fail("UpdateAverageCost"); err != nil {
		return err
	}
	p := u.s.products[productID]
	p.AverageCost = cost
	u.s.products[productID] = p
	return nil
}

func (u *memoryUnit) GetQuantity(_ context.Context, productID, warehouseID int64) (decimal.Decimal, error) {
	return u.s.stock[inventory.Cell{ProductID: productID, WarehouseID: warehouseID}], nil
}

func (u *memoryUnit) LockStock(_ context.Context, productID, warehouseID int64) (inventory.Inventory, error) {
	cell := inventory.Cell{ProductID: productID, WarehouseID: warehouseID}
	if _, ok := u.s.stock[cell]; !ok {
		u.s.stock[cell] = decimal.Zero
	}
	return inventory.Inventory{ProductID: productID, WarehouseID: warehouseID, Quantity: u.s.stock[cell]}, nil
}

func (u *memoryUnit) SumQuantity(_ context.Context, productID int64) (decimal.Decimal, error) {
	sum := decimal.Zero
	for cell, qty := range u.s.stock {
		if cell.ProductID == productID {
			sum = sum.Add(qty)
		}
	}
	return sum, nil
}

func (u *memoryUnit) AdjustQuantity(_ context.Context, productID, warehouseID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	if err := u.fail("AdjustQuantity"); err != nil {
		return decimal.Zero, err
	}
	cell := inventory.Cell{ProductID: productID, WarehouseID: warehouseID}
	u.s.stock[cell] = u.s.stock[cell].Add(delta)
	return u.s.stock[cell], nil
}

func (u *memoryUnit) AppendMovement(_ context.Context, m inventory.StockMovement) (int64, error) {
	if err := u.fail("AppendMovement"); err != nil {
		return 0, err
	}
	m.ID = u.s.id()
	u.s.movements = append(u.s.movements, m)
	return m.ID, nil
}

func (u *memoryUnit) HasMovementsSince(_ context.Context, cell inventory.Cell, refType inventory.ReferenceType, since time.Time) (bool, error) {
	for _, m := range u.s.movements {
		if m.ProductID == cell.ProductID && m.WarehouseID == cell.WarehouseID && m.ReferenceType == refType && m.CreatedAt.After(since) {
			return true, nil
		}
	}
	return false, nil
}

func (u *memoryUnit) InsertAdjustment(ctx context.Context, adj inventory.Adjustment) (int64, error) {
	adj.ID = u.s.id()
	u.s.adjustments[adj.ID] = adj
	return adj.ID, u.ReplaceAdjustmentItems(ctx, adj.ID, adj.Items)
}

func (u *memoryUnit) GetAdjustmentForUpdate(_ context.Context, id int64) (inventory.Adjustment, error) {
	adj, ok := u.s.adjustments[id]
	if !ok {
		return inventory.Adjustment{}, inventory.ErrAdjustmentNotFound
	}
	adj.Items = append([]inventory.AdjustmentItem(nil), adj.Items...)
	return adj, nil
}

func (u *memoryUnit) UpdateAdjustment(_ context.Context, adj inventory.Adjustment) error {
	if err := u.fail("UpdateAdjustment"); err != nil {
		return err
	}
	stored := u.s.adjustments[adj.ID]
	items := stored.Items
	for _, item := range adj.Items {
		for i := range items {
			if items[i].ID == item.ID && item.ID != 0 {
				items[i].SystemQuantity = item.SystemQuantity
				items[i].AppliedDelta = item.AppliedDelta
			}
		}
	}
	adj.Items = items
	u.s.adjustments[adj.ID] = adj
	return nil
}

func (u *memoryUnit) ReplaceAdjustmentItems(_ context.Context, adjustmentID int64, items []inventory.AdjustmentItem) error {
	adj := u.s.adjustments[adjustmentID]
	adj.Items = make([]inventory.AdjustmentItem, len(items))
	for i, item := range items {
		item.ID = u.s.id()
		item.AdjustmentID = adjustmentID
		item.LineNo = i + 1
		adj.Items[i] = item
	}
	u.s.adjustments[adjustmentID] = adj
	return nil
}

func (u *memoryUnit) InsertTransfer(ctx context.Context, t inventory.Transfer) (int64, error) {
	t.ID = u.s.id()
	u.s.transfers[t.ID] = t
	return t.ID, u.ReplaceTransferItems(ctx, t.ID, t.Items)
}

func (u *memoryUnit) GetTransferForUpdate(_ context.Context, id int64) (inventory.Transfer, error) {
	t, ok := u.s.transfers[id]
	if !ok {
		return inventory.Transfer{}, inventory.ErrTransferNotFound
	}
	t.Items = append([]inventory.TransferItem(nil), t.Items...)
	return t, nil
}

func (u *memoryUnit) UpdateTransfer(_ context.Context, t inventory.Transfer) error {
	if err := u.fail("UpdateTransfer"); err != nil {
		return err
	}
	t.Items = u.s.transfers[t.ID].Items
	u.s.transfers[t.ID] = t
	return nil
}

func (u *memoryUnit) ReplaceTransferItems(_ context.Context, transferID int64, items []inventory.TransferItem) error {
	t := u.s.transfers[transferID]
	t.Items = make([]inventory.TransferItem, len(items))
	for i, item := range items {
		item.ID = u.s.id()
		item.TransferID = transferID
		item.LineNo = i + 1
		t.Items[i] = item
	}
	u.s.transfers[transferID] = t
	return nil
}

func (u *memoryUnit) GetPurchaseOrderForUpdate(_ context.Context, id int64) (procurement.PurchaseOrder, error) {
	po, ok := u.s.orders[id]
	if !ok {
		return procurement.PurchaseOrder{}, procurement.ErrPurchaseOrderNotFound
	}
	po.Items = append([]procurement.POItem(nil), po.Items...)
	return po, nil
}

func (u *memoryUnit) UpdatePurchaseOrderReceipt(_ context.Context, po procurement.PurchaseOrder) error {
	if err := u.fail("UpdatePurchaseOrderReceipt"); err != nil {
		return err
	}
	u.s.orders[po.ID] = po
	return nil
}

func (u *memoryUnit) InsertReceivingVoucher(_ context.Context, rv procurement.ReceivingVoucher) (int64, error) {
	rv.ID = u.s.id()
	rv.Items = append([]procurement.RVItem(nil), rv.Items...)
	for i := range rv.Items {
		rv.Items[i].ID = u.s.id()
		rv.Items[i].VoucherID = rv.ID
	}
	u.s.vouchers[rv.ID] = rv
	return rv.ID, nil
}

func (u *memoryUnit) GetReceivingVoucherForUpdate(_ context.Context, id int64) (procurement.ReceivingVoucher, error) {
	rv, ok := u.s.vouchers[id]
	if !ok {
		return procurement.ReceivingVoucher{}, procurement.ErrVoucherNotFound
	}
	return rv, nil
}

func (u *memoryUnit) UpdateReceivingVoucherStatus(_ context.Context, id int64, status procurement.RVStatus, at time.Time) error {
	rv := u.s.vouchers[id]
	rv.Status = status
	if status == procurement.RVStatusCancelled {
		rv.CancelledAt = at
	}
	u.s.vouchers[id] = rv
	return nil
}

func (u *memoryUnit) SumNetAmount(_ context.Context, purchaseOrderID int64) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, rv := range u.s.vouchers {
		if rv.PurchaseOrderID == purchaseOrderID && rv.Status == procurement.RVStatusComplete {
			sum = sum.Add(rv.NetAmount)
		}
	}
	return sum, nil
}

func (u *memoryUnit) InsertPayable(_ context.Context, p ap.Payable) (int64, error) {
	if err := u.fail("InsertPayable"); err != nil {
		return 0, err
	}
	p.ID = u.s.id()
	u.s.payables[p.ID] = p
	return p.ID, nil
}

func (u *memoryUnit) FindOpenPayable(_ context.Context, purchaseOrderID, voucherID int64) (ap.Payable, error) {
	var found ap.Payable
	for _, p := range u.s.payables {
		if p.PurchaseOrderID != purchaseOrderID || p.Status == ap.PayableCancelled {
			continue
		}
		if voucherID != 0 && p.ReceivingVoucherID != voucherID {
			continue
		}
		if p.ID > found.ID {
			found = p
		}
	}
	if found.ID == 0 {
		return ap.Payable{}, ap.ErrPayableNotFound
	}
	return found, nil
}

func (u *memoryUnit) CancelPayable(_ context.Context, id int64, at time.Time) error {
	p := u.s.payables[id]
	p.Status = ap.PayableCancelled
	p.Balance = decimal.Zero
	p.CancelledAt = at
	u.s.payables[id] = p
	return nil
}
