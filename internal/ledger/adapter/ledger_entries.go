package adapter

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/codes"

	kerneldomain "github.com/shamell/shamell/internal/domain"
	ledgerdomain "github.com/shamell/shamell/internal/ledger/domain"
	"github.com/shamell/shamell/internal/pgdb"
)

var _ ledgerdomain.LedgerRepo = (*LedgerRepo)(nil)

// LedgerRepo persists ledger.txns and ledger.ledger_entries: the
// double-entry skeleton every Transfer, Topup, and Booking charge appends to.
type LedgerRepo struct {
	pool *pgdb.Pool
}

// NewLedgerRepo creates a LedgerRepo.
func NewLedgerRepo(pool *pgdb.Pool) *LedgerRepo { return &LedgerRepo{pool: pool} }

// InsertTxn inserts the header row for one ledger transaction.
func (r *LedgerRepo) InsertTxn(ctx context.Context, tx ledgerdomain.Tx, t ledgerdomain.Txn) error {
	ctx, span := tracer.Start(ctx, "pg.ledger.insert_txn")
	defer span.End()

	var fromID, toID *string
	if t.FromWalletID != nil {
		s := t.FromWalletID.String()
		fromID = &s
	}
	if t.ToWalletID != nil {
		s := t.ToWalletID.String()
		toID = &s
	}
	_, err := underlying(tx).Exec(ctx,
		`INSERT INTO txns (id, from_wallet_id, to_wallet_id, amount_cents, kind, fee_cents, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID.String(), fromID, toID, t.AmountCents, string(t.Kind), t.FeeCents, t.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert txn: %w", err)
	}
	return nil
}

// InsertEntry appends one signed ledger leg. A nil WalletID represents the
// synthetic external counterparty used by topups.
func (r *LedgerRepo) InsertEntry(ctx context.Context, tx ledgerdomain.Tx, e ledgerdomain.LedgerEntry) error {
	ctx, span := tracer.Start(ctx, "pg.ledger.insert_entry")
	defer span.End()

	var walletID *string
	if e.WalletID != nil {
		s := e.WalletID.String()
		walletID = &s
	}
	_, err := underlying(tx).Exec(ctx,
		`INSERT INTO ledger_entries (id, wallet_id, amount_cents, txn_id, description, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, walletID, e.AmountCents, e.TxnID.String(), e.Description, e.CreatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// SumEntries returns Σ ledger_entries for walletID: the reconciliation
// query backing invariant I2 (balance = sum of entries).
func (r *LedgerRepo) SumEntries(ctx context.Context, walletID kerneldomain.WalletID) (int64, error) {
	ctx, span := tracer.Start(ctx, "pg.ledger.sum_entries")
	defer span.End()

	var sum int64
	err := r.pool.DB.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM ledger_entries WHERE wallet_id = $1`, walletID.String(),
	).Scan(&sum)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("sum ledger entries: %w", err)
	}
	return sum, nil
}
