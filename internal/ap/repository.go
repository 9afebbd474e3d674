package ap

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// TxRepository exposes payable writes performed inside a posting.
type TxRepository interface {
	InsertPayable(ctx context.Context, payable Payable) (int64, error)
	FindOpenPayable(ctx context.Context, purchaseOrderID, voucherID int64) (Payable, error)
	CancelPayable(ctx context.Context, id int64, at time.Time) error
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository binds the payable repository to an open transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (r *txRepository) InsertPayable(ctx context.Context, p Payable) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO accounts_payable (number, supplier_id, purchase_order_id, receiving_voucher_id, total_amount, balance, status, due_date, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW()) RETURNING id`,
		p.Number, p.SupplierID, p.PurchaseOrderID, nullInt(p.ReceivingVoucherID), p.TotalAmount, p.Balance, string(p.Status), p.DueDate).Scan(&id)
	return id, err
}

// FindOpenPayable locks the open payable of a voucher, or of the order when
// voucherID is zero.
func (r *txRepository) FindOpenPayable(ctx context.Context, purchaseOrderID, voucherID int64) (Payable, error) {
	var p Payable
	err := r.tx.QueryRow(ctx, `SELECT id, number, supplier_id, purchase_order_id, COALESCE(receiving_voucher_id, 0), total_amount, balance, status, due_date, created_at
FROM accounts_payable
WHERE purchase_order_id=$1 AND ($2 = 0 OR receiving_voucher_id=$2) AND status <> 'cancelled'
ORDER BY id DESC LIMIT 1
FOR UPDATE`, purchaseOrderID, voucherID).
		Scan(&p.ID, &p.Number, &p.SupplierID, &p.PurchaseOrderID, &p.ReceivingVoucherID, &p.TotalAmount, &p.Balance, &p.Status, &p.DueDate, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payable{}, ErrPayableNotFound
	}
	return p, err
}

func (r *txRepository) CancelPayable(ctx context.Context, id int64, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE accounts_payable SET status='cancelled', balance=0, cancelled_at=$2 WHERE id=$1`, id, at)
	return err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}
