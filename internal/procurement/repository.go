package procurement

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// TxRepository exposes the purchasing writes performed inside a posting.
type TxRepository interface {
	GetPurchaseOrderForUpdate(ctx context.Context, id int64) (PurchaseOrder, error)
	UpdatePurchaseOrderReceipt(ctx context.Context, po PurchaseOrder) error
	InsertReceivingVoucher(ctx context.Context, rv ReceivingVoucher) (int64, error)
	GetReceivingVoucherForUpdate(ctx context.Context, id int64) (ReceivingVoucher, error)
	UpdateReceivingVoucherStatus(ctx context.Context, id int64, status RVStatus, at time.Time) error
	SumNetAmount(ctx context.Context, purchaseOrderID int64) (decimal.Decimal, error)
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository serves purchasing reads from the pool.
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

// NewTxRepository binds the purchasing repository to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// GetPurchaseOrder loads an order with its items.
func (r *Repository) GetPurchaseOrder(ctx context.Context, id int64) (PurchaseOrder, error) {
	return getPurchaseOrder(ctx, r.pool, id, false)
}

// GetReceivingVoucher loads a voucher with its items.
func (r *Repository) GetReceivingVoucher(ctx context.Context, id int64) (ReceivingVoucher, error) {
	return getReceivingVoucher(ctx, r.pool, id, false)
}

func (r *txRepository) GetPurchaseOrderForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	return getPurchaseOrder(ctx, r.tx, id, true)
}

func (r *txRepository) UpdatePurchaseOrderReceipt(ctx context.Context, po PurchaseOrder) error {
	if _, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET status=$2, receiving_status=$3, updated_at=NOW() WHERE id=$1`,
		po.ID, string(po.Status), string(po.ReceivingStatus)); err != nil {
		return err
	}
	for _, item := range po.Items {
		if _, err := r.tx.Exec(ctx, `UPDATE purchase_order_items SET received_quantity=$2 WHERE id=$1`, item.ID, item.ReceivedQuantity); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) InsertReceivingVoucher(ctx context.Context, rv ReceivingVoucher) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO receiving_vouchers (number, purchase_order_id, supplier_id, warehouse_id, status, supplier_discount, supplier_discount_type,
additional_fees, recompute_average_cost, total_amount, discount_amount, net_amount, note, received_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14) RETURNING id`,
		rv.Number, rv.PurchaseOrderID, rv.SupplierID, rv.WarehouseID, string(rv.Status), rv.SupplierDiscount, string(rv.SupplierDiscountType),
		rv.AdditionalFees, rv.RecomputeAverageCost, rv.TotalAmount, rv.DiscountAmount, rv.NetAmount, rv.Note, rv.ReceivedAt).Scan(&id)
	if err != nil {
		return 0, err
	}
	for _, item := range rv.Items {
		if _, err := r.tx.Exec(ctx, `INSERT INTO receiving_voucher_items (voucher_id, po_item_id, product_id, ordered_quantity, received_quantity, unit_price, uom,
base_quantity, landed_unit_cost, variance_quantity, variance_percent)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			id, item.POItemID, item.ProductID, item.OrderedQuantity, item.ReceivedQuantity, item.UnitPrice, item.UOM,
			item.BaseQuantity, item.LandedUnitCost, item.VarianceQuantity, item.VariancePercent); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (r *txRepository) GetReceivingVoucherForUpdate(ctx context.Context, id int64) (ReceivingVoucher, error) {
	return getReceivingVoucher(ctx, r.tx, id, true)
}

func (r *txRepository) UpdateReceivingVoucherStatus(ctx context.Context, id int64, status RVStatus, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE receiving_vouchers SET status=$2, cancelled_at=CASE WHEN $2 = 'cancelled' THEN $3 ELSE cancelled_at END WHERE id=$1`,
		id, string(status), at)
	return err
}

func (r *txRepository) SumNetAmount(ctx context.Context, purchaseOrderID int64) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(net_amount), 0) FROM receiving_vouchers WHERE purchase_order_id=$1 AND status='complete'`, purchaseOrderID).Scan(&sum)
	return sum, err
}

func getPurchaseOrder(ctx context.Context, q querier, id int64, lock bool) (PurchaseOrder, error) {
	sql := `SELECT po.id, po.number, po.supplier_id, po.warehouse_id, COALESCE(s.payment_terms, ''), po.status, po.receiving_status
FROM purchase_orders po
LEFT JOIN suppliers s ON s.id = po.supplier_id
WHERE po.id=$1`
	if lock {
		sql += ` FOR UPDATE OF po`
	}
	var po PurchaseOrder
	err := q.QueryRow(ctx, sql, id).Scan(&po.ID, &po.Number, &po.SupplierID, &po.WarehouseID, &po.PaymentTerms, &po.Status, &po.ReceivingStatus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseOrder{}, ErrPurchaseOrderNotFound
		}
		return PurchaseOrder{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, purchase_order_id, product_id, quantity, received_quantity, unit_price, uom
FROM purchase_order_items WHERE purchase_order_id=$1 ORDER BY id`, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item POItem
		if err := rows.Scan(&item.ID, &item.PurchaseOrderID, &item.ProductID, &item.Quantity, &item.ReceivedQuantity, &item.UnitPrice, &item.UOM); err != nil {
			return PurchaseOrder{}, err
		}
		po.Items = append(po.Items, item)
	}
	return po, rows.Err()
}

func getReceivingVoucher(ctx context.Context, q querier, id int64, lock bool) (ReceivingVoucher, error) {
	sql := `SELECT id, number, purchase_order_id, supplier_id, warehouse_id, status, supplier_discount, supplier_discount_type, additional_fees,
recompute_average_cost, total_amount, discount_amount, net_amount, note, received_at, COALESCE(cancelled_at, 'epoch'::timestamptz)
FROM receiving_vouchers WHERE id=$1`
	if lock {
		sql += ` FOR UPDATE`
	}
	var rv ReceivingVoucher
	err := q.QueryRow(ctx, sql, id).Scan(&rv.ID, &rv.Number, &rv.PurchaseOrderID, &rv.SupplierID, &rv.WarehouseID, &rv.Status, &rv.SupplierDiscount,
		&rv.SupplierDiscountType, &rv.AdditionalFees, &rv.RecomputeAverageCost, &rv.TotalAmount, &rv.DiscountAmount, &rv.NetAmount, &rv.Note,
		&rv.ReceivedAt, &rv.CancelledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ReceivingVoucher{}, ErrVoucherNotFound
		}
		return ReceivingVoucher{}, err
	}
	if rv.CancelledAt.Unix() == 0 {
		rv.CancelledAt = time.Time{}
	}
	rows, err := q.Query(ctx, `SELECT id, voucher_id, po_item_id, product_id, ordered_quantity, received_quantity, unit_price, uom,
base_quantity, landed_unit_cost, variance_quantity, variance_percent
FROM receiving_voucher_items WHERE voucher_id=$1 ORDER BY id`, id)
	if err != nil {
		return ReceivingVoucher{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item RVItem
		if err := rows.Scan(&item.ID, &item.VoucherID, &item.POItemID, &item.ProductID, &item.OrderedQuantity, &item.ReceivedQuantity, &item.UnitPrice,
			&item.UOM, &item.BaseQuantity, &item.LandedUnitCost, &item.VarianceQuantity, &item.VariancePercent); err != nil {
			return ReceivingVoucher{}, err
		}
		rv.Items = append(rv.Items, item)
	}
	return rv, rows.Err()
}
