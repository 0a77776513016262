package adapter

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/codes"

	kerneldomain "github.com/shamell/shamell/internal/domain"
	ledgerdomain "github.com/shamell/shamell/internal/ledger/domain"
	"github.com/shamell/shamell/internal/pgdb"
)

var _ ledgerdomain.WalletRepo = (*WalletRepo)(nil)

// WalletRepo persists ledger.users and ledger.wallets.
type WalletRepo struct {
	pool *pgdb.Pool
}

// NewWalletRepo creates a WalletRepo.
func NewWalletRepo(pool *pgdb.Pool) *WalletRepo { return &WalletRepo{pool: pool} }

// EnsureUser returns the wallet-bearing user for accountID, lazily creating
// a User + zero-balance Wallet pair on first use.
func (r *WalletRepo) EnsureUser(ctx context.Context, accountID kerneldomain.AccountID, phone string) (ledgerdomain.User, error) {
	ctx, span := tracer.Start(ctx, "pg.wallets.ensure_user")
	defer span.End()

	u, err := r.findUserByAccountID(ctx, accountID)
	if err == nil {
		return u, nil
	}
	if !kerneldomain.IsNotFound(err) {
		return ledgerdomain.User{}, err
	}

	tx, err := r.pool.DB.Begin(ctx)
	if err != nil {
		return ledgerdomain.User{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	userID := kerneldomain.GenerateUserID()
	_, err = tx.Exec(ctx,
		`INSERT INTO ledger_users (id, account_id, phone, kyc_level) VALUES ($1, $2, $3, 0)
		 ON CONFLICT (account_id) DO NOTHING`,
		userID.String(), accountID.String(), phone,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ledgerdomain.User{}, fmt.Errorf("insert ledger user: %w", err)
	}

	walletID := kerneldomain.GenerateWalletID()
	_, err = tx.Exec(ctx,
		`INSERT INTO wallets (id, user_id, balance_cents, currency)
		 SELECT $1, id, 0, 'USD' FROM ledger_users WHERE account_id = $2
		 AND NOT EXISTS (SELECT 1 FROM wallets w WHERE w.user_id = ledger_users.id)`,
		walletID.String(), accountID.String(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ledgerdomain.User{}, fmt.Errorf("insert wallet: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return ledgerdomain.User{}, fmt.Errorf("commit: %w", err)
	}
	return r.findUserByAccountID(ctx, accountID)
}

func (r *WalletRepo) findUserByAccountID(ctx context.Context, accountID kerneldomain.AccountID) (ledgerdomain.User, error) {
	var u ledgerdomain.User
	var userID, accID, walletID string
	var phone string
	var kycLevel int
	var balance int64
	err := r.pool.DB.QueryRow(ctx,
		`SELECT u.id, u.account_id, u.phone, u.kyc_level, w.id, w.balance_cents
		 FROM ledger_users u JOIN wallets w ON w.user_id = u.id
		 WHERE u.account_id = $1`, accountID.String(),
	).Scan(&userID, &accID, &phone, &kycLevel, &walletID, &balance)
	if err != nil {
		if pgdb.IsNoRows(err) {
			return ledgerdomain.User{}, kerneldomain.ErrNotFound
		}
		return ledgerdomain.User{}, fmt.Errorf("find ledger user: %w", err)
	}
	u.ID = kerneldomain.MustUserID(userID)
	u.AccountID = kerneldomain.MustAccountID(accID)
	u.Phone = phone
	u.KYCLevel = kycLevel
	return u, nil
}

// FindWallet looks up a wallet by id without locking.
func (r *WalletRepo) FindWallet(ctx context.Context, id kerneldomain.WalletID) (ledgerdomain.Wallet, error) {
	ctx, span := tracer.Start(ctx, "pg.wallets.find")
	defer span.End()

	w, err := scanWallet(r.pool.DB.QueryRow(ctx,
		`SELECT id, user_id, balance_cents, currency FROM wallets WHERE id = $1`, id.String()))
	if err != nil {
		if pgdb.IsNoRows(err) {
			return ledgerdomain.Wallet{}, kerneldomain.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ledgerdomain.Wallet{}, fmt.Errorf("find wallet: %w", err)
	}
	return w, nil
}

// LockWallet fetches a wallet with SELECT ... FOR UPDATE inside tx, the
// row-lock primitive every transfer/topup/booking critical section builds on.
func (r *WalletRepo) LockWallet(ctx context.Context, tx ledgerdomain.Tx, id kerneldomain.WalletID) (ledgerdomain.Wallet, error) {
	ctx, span := tracer.Start(ctx, "pg.wallets.lock")
	defer span.End()

	w, err := scanWallet(underlying(tx).QueryRow(ctx,
		`SELECT id, user_id, balance_cents, currency FROM wallets WHERE id = $1 FOR UPDATE`, id.String()))
	if err != nil {
		if pgdb.IsNoRows(err) {
			return ledgerdomain.Wallet{}, kerneldomain.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ledgerdomain.Wallet{}, fmt.Errorf("lock wallet: %w", err)
	}
	return w, nil
}

// UpdateBalance writes the wallet's new materialized balance projection.
func (r *WalletRepo) UpdateBalance(ctx context.Context, tx ledgerdomain.Tx, id kerneldomain.WalletID, newBalance int64) error {
	ctx, span := tracer.Start(ctx, "pg.wallets.update_balance")
	defer span.End()

	_, err := underlying(tx).Exec(ctx, `UPDATE wallets SET balance_cents = $1 WHERE id = $2`, newBalance, id.String())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("update wallet balance: %w", err)
	}
	return nil
}

// EnsureFeeWallet lazily materializes the service-owned fee wallet from a
// config-identified account or phone, outside of any caller transaction.
func (r *WalletRepo) EnsureFeeWallet(ctx context.Context, accountID, phone string) (kerneldomain.WalletID, error) {
	ctx, span := tracer.Start(ctx, "pg.wallets.ensure_fee_wallet")
	defer span.End()

	id, err := r.findFeeWalletID(ctx, r.pool.DB, accountID, phone)
	if err == nil {
		return id, nil
	}
	if !kerneldomain.IsNotFound(err) {
		return kerneldomain.WalletID{}, err
	}

	acc, accErr := kerneldomain.NewAccountID(accountID)
	if accErr != nil {
		acc = kerneldomain.GenerateAccountID()
	}
	u, err := r.EnsureUser(ctx, acc, phone)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return kerneldomain.WalletID{}, fmt.Errorf("materialize fee wallet: %w", err)
	}
	return r.findFeeWalletID(ctx, r.pool.DB, u.AccountID.String(), phone)
}

// EnsureFeeWalletTx is the transaction-scoped variant used when the fee
// wallet row must be locked in the same critical section as sender/recipient.
func (r *WalletRepo) EnsureFeeWalletTx(ctx context.Context, tx ledgerdomain.Tx, accountID, phone string) (kerneldomain.WalletID, error) {
	return r.findFeeWalletID(ctx, underlying(tx), accountID, phone)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgdb.Row
}

func (r *WalletRepo) findFeeWalletID(ctx context.Context, q querier, accountID, phone string) (kerneldomain.WalletID, error) {
	var walletID string
	var err error
	if accountID != "" {
		err = q.QueryRow(ctx,
			`SELECT w.id FROM wallets w JOIN ledger_users u ON u.id = w.user_id WHERE u.account_id = $1`,
			accountID,
		).Scan(&walletID)
	} else {
		err = q.QueryRow(ctx,
			`SELECT w.id FROM wallets w JOIN ledger_users u ON u.id = w.user_id WHERE u.phone = $1`,
			phone,
		).Scan(&walletID)
	}
	if err != nil {
		if pgdb.IsNoRows(err) {
			return kerneldomain.WalletID{}, kerneldomain.ErrNotFound
		}
		return kerneldomain.WalletID{}, fmt.Errorf("find fee wallet: %w", err)
	}
	return kerneldomain.MustWalletID(walletID), nil
}

func scanWallet(row pgdb.Row) (ledgerdomain.Wallet, error) {
	var w ledgerdomain.Wallet
	var id, userID, currency string
	var balance int64
	if err := row.Scan(&id, &userID, &balance, &currency); err != nil {
		return ledgerdomain.Wallet{}, err
	}
	w.ID = kerneldomain.MustWalletID(id)
	w.UserID = kerneldomain.MustUserID(userID)
	w.BalanceCents = balance
	w.Currency = currency
	return w, nil
}
