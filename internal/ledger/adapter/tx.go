package adapter

import (
	"context"

	ledgerdomain "github.com/shamell/shamell/internal/ledger/domain"
	"github.com/shamell/shamell/internal/pgdb"
)

var _ ledgerdomain.TxRunner = (*TxRunner)(nil)

// TxRunner begins Postgres transactions for the Ledger/Booking app layer.
type TxRunner struct {
	pool *pgdb.Pool
}

// NewTxRunner creates a TxRunner.
func NewTxRunner(pool *pgdb.Pool) *TxRunner { return &TxRunner{pool: pool} }

// Begin starts a new transaction at the default (read committed) isolation
// level; callers requiring serializable semantics issue their own
// SELECT ... FOR UPDATE locks instead, a lock-based
// concurrency-control style.
func (r *TxRunner) Begin(ctx context.Context) (ledgerdomain.Tx, error) {
	tx, err := r.pool.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return pgTx{tx}, nil
}

// pgTx adapts pgx.Tx to ledgerdomain.Tx, and is also the concrete type the
// repo methods below type-assert back out of ledgerdomain.Tx to recover the
// underlying pgx.Tx for Exec/QueryRow.
type pgTx struct {
	tx pgdb.Tx
}

func (t pgTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t pgTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

// underlying recovers the pgx.Tx from a ledgerdomain.Tx handed back into
// this package by the app layer. Panics on a foreign Tx implementation,
// which would indicate a wiring bug rather than a runtime condition.
func underlying(tx ledgerdomain.Tx) pgdb.Tx {
	return tx.(pgTx).tx
}
