package posting

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/inventory-ledger/internal/ap"
	"github.com/odyssey-erp/inventory-ledger/internal/inventory"
	"github.com/odyssey-erp/inventory-ledger/internal/platform/db"
	"github.com/odyssey-erp/inventory-ledger/internal/procurement"
	"github.com/odyssey-erp/inventory-ledger/internal/shared"
)

// UnitOfWork is the capability handed to every step of a posting. All
// repositories it returns share one open transaction; none of them can start
// another.
type UnitOfWork interface {
	shared.Sequencer
	Inventory() inventory.TxRepository
	Purchasing() procurement.TxRepository
	Payables() ap.TxRepository
	ClaimIdempotencyKey(ctx context.Context, key, module string) error
}

// Runner opens a unit of work, commits it when fn succeeds and rolls it back otherwise.
type Runner interface {
	WithTx(ctx context.Context, fn func(context.Context, UnitOfWork) error) error
}

// Store is the PostgreSQL Runner.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// WithTx runs fn inside one read-committed transaction.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, UnitOfWork) error) error {
	return db.WithTx(ctx, s.pool, db.PostingTxOptions, func(tx pgx.Tx) error {
		return fn(ctx, newPgUnitOfWork(tx))
	})
}

type pgUnitOfWork struct {
	tx          pgx.Tx
	inventory   inventory.TxRepository
	purchasing  procurement.TxRepository
	payables    ap.TxRepository
	idempotency *shared.IdempotencyStore
}

func newPgUnitOfWork(tx pgx.Tx) *pgUnitOfWork {
	return &pgUnitOfWork{
		tx:          tx,
		inventory:   inventory.NewTxRepository(tx),
		purchasing:  procurement.NewTxRepository(tx),
		payables:    ap.NewTxRepository(tx),
		idempotency: shared.NewIdempotencyStore(tx),
	}
}

func (u *pgUnitOfWork) Inventory() inventory.TxRepository    { return u.inventory }
func (u *pgUnitOfWork) Purchasing() procurement.TxRepository { return u.purchasing }
func (u *pgUnitOfWork) Payables() ap.TxRepository            { return u.payables }

func (u *pgUnitOfWork) ClaimIdempotencyKey(ctx context.Context, key, module string) error {
	return u.idempotency.CheckAndInsert(ctx, key, module)
}

func (u *pgUnitOfWork) NextSequence(ctx context.Context, prefix string, day time.Time) (int, error) {
	var last int
	err := u.tx.QueryRow(ctx, `INSERT INTO document_sequences (prefix, day, last) VALUES ($1, $2, 1)
ON CONFLICT (prefix, day) DO UPDATE SET last = document_sequences.last + 1
RETURNING last`, prefix, day).Scan(&last)
	return last, err
}
