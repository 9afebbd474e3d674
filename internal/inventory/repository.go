package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/inventory-ledger/internal/shared"
	"github.com/odyssey-erp/inventory-ledger/internal/uom"
)

// DocumentRepository persists adjustment and transfer documents.
type DocumentRepository interface {
	InsertAdjustment(ctx context.Context, adj Adjustment) (int64, error)
	GetAdjustmentForUpdate(ctx context.Context, id int64) (Adjustment, error)
	UpdateAdjustment(ctx context.Context, adj Adjustment) error
	ReplaceAdjustmentItems(ctx context.Context, adjustmentID int64, items []AdjustmentItem) error
	InsertTransfer(ctx context.Context, transfer Transfer) (int64, error)
	GetTransferForUpdate(ctx context.Context, id int64) (Transfer, error)
	UpdateTransfer(ctx context.Context, transfer Transfer) error
	ReplaceTransferItems(ctx context.Context, transferID int64, items []TransferItem) error
}

// TxRepository exposes every transactional inventory operation.
type TxRepository interface {
	StockRepository
	DocumentRepository
}

// ErrAdjustmentNotFound indicates a missing adjustment.
var ErrAdjustmentNotFound = fmt.Errorf("%w: adjustment", shared.ErrNotFound)

// ErrTransferNotFound indicates a missing transfer.
var ErrTransferNotFound = fmt.Errorf("%w: transfer", shared.ErrNotFound)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository serves read paths from the pool.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds the inventory repository to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// GetProduct loads a product outside any transaction.
func (r *Repository) GetProduct(ctx context.Context, id int64) (Product, error) {
	return getProduct(ctx, r.pool, id, false)
}

// GetInventory returns the current quantity of a cell.
func (r *Repository) GetInventory(ctx context.Context, productID, warehouseID int64) (Inventory, error) {
	inv := Inventory{ProductID: productID, WarehouseID: warehouseID}
	err := r.pool.QueryRow(ctx, `SELECT quantity, updated_at FROM inventory WHERE product_id=$1 AND warehouse_id=$2`, productID, warehouseID).
		Scan(&inv.Quantity, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return inv, ErrInventoryNotFound
	}
	return inv, err
}

// GetAdjustment loads an adjustment with its items.
func (r *Repository) GetAdjustment(ctx context.Context, id int64) (Adjustment, error) {
	return getAdjustment(ctx, r.pool, id, false)
}

// GetTransfer loads a transfer with its items.
func (r *Repository) GetTransfer(ctx context.Context, id int64) (Transfer, error) {
	return getTransfer(ctx, r.pool, id, false)
}

// ListMovements returns movements matching filter, oldest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, warehouse_id, movement_type, quantity, unit_cost, reference_type, reference_id, note, created_at
FROM stock_movements
WHERE ($1 = 0 OR product_id = $1) AND ($2 = 0 OR warehouse_id = $2)
  AND ($3 = '' OR reference_type = $3) AND ($4 = 0 OR reference_id = $4)
ORDER BY created_at ASC, id ASC
LIMIT $5 OFFSET $6`, filter.ProductID, filter.WarehouseID, string(filter.ReferenceType), filter.ReferenceID, limit, max(filter.Offset, 0))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	movements := []StockMovement{}
	for rows.Next() {
		var m StockMovement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.WarehouseID, &m.Type, &m.Quantity, &m.UnitCost, &m.ReferenceType, &m.ReferenceID, &m.Note, &m.CreatedAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// ListWarehouseIDs returns every warehouse holding an inventory row.
func (r *Repository) ListWarehouseIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT warehouse_id FROM inventory ORDER BY warehouse_id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// Reconcile lists cells of a warehouse whose quantity differs from the sum
// of their movements.
func (r *Repository) Reconcile(ctx context.Context, warehouseID int64) ([]Discrepancy, error) {
	rows, err := r.pool.Query(ctx, `SELECT i.product_id, i.warehouse_id, i.quantity, COALESCE(SUM(m.quantity), 0)
FROM inventory i
LEFT JOIN stock_movements m ON m.product_id = i.product_id AND m.warehouse_id = i.warehouse_id
WHERE i.warehouse_id = $1
GROUP BY i.product_id, i.warehouse_id, i.quantity
HAVING i.quantity <> COALESCE(SUM(m.quantity), 0)
ORDER BY i.product_id`, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Discrepancy
	for rows.Next() {
		var d Discrepancy
		if err := rows.Scan(&d.ProductID, &d.WarehouseID, &d.Quantity, &d.MovementSum); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *txRepository) GetProduct(ctx context.Context, id int64) (Product, error) {
	return getProduct(ctx, r.tx, id, false)
}

func (r *txRepository) LockProduct(ctx context.Context, id int64) (Product, error) {
	return getProduct(ctx, r.tx, id, true)
}

func (r *txRepository) UpdateAverageCost(ctx context.Context, productID int64, cost decimal.Decimal) error {
	tag, err := r.tx.Exec(ctx, `UPDATE products SET average_cost=$2, updated_at=NOW() WHERE id=$1`, productID, cost)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (r *txRepository) GetQuantity(ctx context.Context, productID, warehouseID int64) (decimal.Decimal, error) {
	var qty decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT COALESCE((SELECT quantity FROM inventory WHERE product_id=$1 AND warehouse_id=$2), 0)`, productID, warehouseID).Scan(&qty)
	return qty, err
}

func (r *txRepository) LockStock(ctx context.Context, productID, warehouseID int64) (Inventory, error) {
	if _, err := r.tx.Exec(ctx, `INSERT INTO inventory (product_id, warehouse_id, quantity, updated_at)
VALUES ($1,$2,0,NOW())
ON CONFLICT (product_id, warehouse_id) DO NOTHING`, productID, warehouseID); err != nil {
		return Inventory{}, err
	}
	inv := Inventory{ProductID: productID, WarehouseID: warehouseID}
	err := r.tx.QueryRow(ctx, `SELECT quantity, updated_at FROM inventory WHERE product_id=$1 AND warehouse_id=$2 FOR UPDATE`, productID, warehouseID).
		Scan(&inv.Quantity, &inv.UpdatedAt)
	return inv, err
}

func (r *txRepository) SumQuantity(ctx context.Context, productID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM inventory WHERE product_id=$1`, productID).Scan(&sum)
	return sum, err
}

func (r *txRepository) AdjustQuantity(ctx context.Context, productID, warehouseID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	var qty decimal.Decimal
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory (product_id, warehouse_id, quantity, updated_at)
VALUES ($1,$2,$3,NOW())
ON CONFLICT (product_id, warehouse_id) DO UPDATE SET quantity = inventory.quantity + EXCLUDED.quantity, updated_at=NOW()
RETURNING quantity`, productID, warehouseID, delta).Scan(&qty)
	return qty, err
}

func (r *txRepository) AppendMovement(ctx context.Context, m StockMovement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (product_id, warehouse_id, movement_type, quantity, unit_cost, reference_type, reference_id, note, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
		m.ProductID, m.WarehouseID, string(m.Type), m.Quantity, m.UnitCost, string(m.ReferenceType), m.ReferenceID, m.Note, m.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) HasMovementsSince(ctx context.Context, cell Cell, refType ReferenceType, since time.Time) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM stock_movements WHERE product_id=$1 AND warehouse_id=$2 AND reference_type=$3 AND created_at > $4)`,
		cell.ProductID, cell.WarehouseID, string(refType), since).Scan(&exists)
	return exists, err
}

func (r *txRepository) InsertAdjustment(ctx context.Context, adj Adjustment) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_adjustments (number, warehouse_id, status, reason, source_id, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW()) RETURNING id`, adj.Number, adj.WarehouseID, string(adj.Status), adj.Reason, nullInt(adj.SourceID), nullInt(adj.CreatedBy)).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, r.ReplaceAdjustmentItems(ctx, id, adj.Items)
}

func (r *txRepository) GetAdjustmentForUpdate(ctx context.Context, id int64) (Adjustment, error) {
	return getAdjustment(ctx, r.tx, id, true)
}

func (r *txRepository) UpdateAdjustment(ctx context.Context, adj Adjustment) error {
	_, err := r.tx.Exec(ctx, `UPDATE inventory_adjustments SET warehouse_id=$2, status=$3, reason=$4, posted_at=$5, reversed_at=$6 WHERE id=$1`,
		adj.ID, adj.WarehouseID, string(adj.Status), adj.Reason, nullTime(adj.PostedAt), nullTime(adj.ReversedAt))
	if err != nil {
		return err
	}
	for _, item := range adj.Items {
		if item.ID == 0 {
			continue
		}
		if _, err := r.tx.Exec(ctx, `UPDATE inventory_adjustment_items SET system_quantity=$2, applied_delta=$3 WHERE id=$1`, item.ID, item.SystemQuantity, item.AppliedDelta); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) ReplaceAdjustmentItems(ctx context.Context, adjustmentID int64, items []AdjustmentItem) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM inventory_adjustment_items WHERE adjustment_id=$1`, adjustmentID); err != nil {
		return err
	}
	for i, item := range items {
		if _, err := r.tx.Exec(ctx, `INSERT INTO inventory_adjustment_items (adjustment_id, line_no, product_id, adjustment_type, quantity, uom, system_quantity, applied_delta, note)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`, adjustmentID, i+1, item.ProductID, string(item.Type), item.Quantity, item.UOM, item.SystemQuantity, item.AppliedDelta, item.Note); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) InsertTransfer(ctx context.Context, t Transfer) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_transfers (number, source_warehouse_id, destination_warehouse_id, status, note, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW()) RETURNING id`, t.Number, t.SourceWarehouseID, t.DestinationWarehouseID, string(t.Status), t.Note, nullInt(t.CreatedBy)).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, r.ReplaceTransferItems(ctx, id, t.Items)
}

func (r *txRepository) GetTransferForUpdate(ctx context.Context, id int64) (Transfer, error) {
	return getTransfer(ctx, r.tx, id, true)
}

func (r *txRepository) UpdateTransfer(ctx context.Context, t Transfer) error {
	_, err := r.tx.Exec(ctx, `UPDATE inventory_transfers SET source_warehouse_id=$2, destination_warehouse_id=$3, status=$4, note=$5, posted_at=$6 WHERE id=$1`,
		t.ID, t.SourceWarehouseID, t.DestinationWarehouseID, string(t.Status), t.Note, nullTime(t.PostedAt))
	return err
}

func (r *txRepository) ReplaceTransferItems(ctx context.Context, transferID int64, items []TransferItem) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM inventory_transfer_items WHERE transfer_id=$1`, transferID); err != nil {
		return err
	}
	for i, item := range items {
		if _, err := r.tx.Exec(ctx, `INSERT INTO inventory_transfer_items (transfer_id, line_no, product_id, quantity, uom, note)
VALUES ($1,$2,$3,$4,$5,$6)`, transferID, i+1, item.ProductID, item.Quantity, item.UOM, item.Note); err != nil {
			return err
		}
	}
	return nil
}

func getProduct(ctx context.Context, q querier, id int64, lock bool) (Product, error) {
	sql := `SELECT id, sku, name, base_uom, average_cost FROM products WHERE id=$1`
	if lock {
		sql += ` FOR UPDATE`
	}
	var p Product
	if err := q.QueryRow(ctx, sql, id).Scan(&p.ID, &p.SKU, &p.Name, &p.BaseUOM, &p.AverageCost); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	rows, err := q.Query(ctx, `SELECT name, conversion_factor, selling_price FROM product_uoms WHERE product_id=$1 ORDER BY position, id`, id)
	if err != nil {
		return Product{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var alt uom.Alternate
		if err := rows.Scan(&alt.Name, &alt.ConversionFactor, &alt.SellingPrice); err != nil {
			return Product{}, err
		}
		p.Alternates = append(p.Alternates, alt)
	}
	return p, rows.Err()
}

func getAdjustment(ctx context.Context, q querier, id int64, lock bool) (Adjustment, error) {
	sql := `SELECT id, number, warehouse_id, status, reason, COALESCE(source_id, 0), COALESCE(created_by, 0), created_at,
COALESCE(posted_at, 'epoch'::timestamptz), COALESCE(reversed_at, 'epoch'::timestamptz)
FROM inventory_adjustments WHERE id=$1`
	if lock {
		sql += ` FOR UPDATE`
	}
	var adj Adjustment
	err := q.QueryRow(ctx, sql, id).Scan(&adj.ID, &adj.Number, &adj.WarehouseID, &adj.Status, &adj.Reason, &adj.SourceID, &adj.CreatedBy, &adj.CreatedAt, &adj.PostedAt, &adj.ReversedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Adjustment{}, ErrAdjustmentNotFound
		}
		return Adjustment{}, err
	}
	adj.PostedAt = zeroEpoch(adj.PostedAt)
	adj.ReversedAt = zeroEpoch(adj.ReversedAt)
	rows, err := q.Query(ctx, `SELECT id, adjustment_id, line_no, product_id, adjustment_type, quantity, uom, system_quantity, applied_delta, note
FROM inventory_adjustment_items WHERE adjustment_id=$1 ORDER BY line_no`, id)
	if err != nil {
		return Adjustment{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item AdjustmentItem
		if err := rows.Scan(&item.ID, &item.AdjustmentID, &item.LineNo, &item.ProductID, &item.Type, &item.Quantity, &item.UOM, &item.SystemQuantity, &item.AppliedDelta, &item.Note); err != nil {
			return Adjustment{}, err
		}
		adj.Items = append(adj.Items, item)
	}
	return adj, rows.Err()
}

func getTransfer(ctx context.Context, q querier, id int64, lock bool) (Transfer, error) {
	sql := `SELECT id, number, source_warehouse_id, destination_warehouse_id, status, note, COALESCE(created_by, 0), created_at,
COALESCE(posted_at, 'epoch'::timestamptz)
FROM inventory_transfers WHERE id=$1`
	if lock {
		sql += ` FOR UPDATE`
	}
	var t Transfer
	err := q.QueryRow(ctx, sql, id).Scan(&t.ID, &t.Number, &t.SourceWarehouseID, &t.DestinationWarehouseID, &t.Status, &t.Note, &t.CreatedBy, &t.CreatedAt, &t.PostedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, ErrTransferNotFound
		}
		return Transfer{}, err
	}
	t.PostedAt = zeroEpoch(t.PostedAt)
	rows, err := q.Query(ctx, `SELECT id, transfer_id, line_no, product_id, quantity, uom, note
FROM inventory_transfer_items WHERE transfer_id=$1 ORDER BY line_no`, id)
	if err != nil {
		return Transfer{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item TransferItem
		if err := rows.Scan(&item.ID, &item.TransferID, &item.LineNo, &item.ProductID, &item.Quantity, &item.UOM, &item.Note); err != nil {
			return Transfer{}, err
		}
		t.Items = append(t.Items, item)
	}
	return t, rows.Err()
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value
}

func zeroEpoch(value time.Time) time.Time {
	if value.Unix() == 0 {
		return time.Time{}
	}
	return value
}
