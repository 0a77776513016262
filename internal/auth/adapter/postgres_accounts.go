package adapter

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	authdomain "github.com/shamell/shamell/internal/auth/domain"
	kerneldomain "github.com/shamell/shamell/internal/domain"
	"github.com/shamell/shamell/internal/pgdb"
)

var (
	_ authdomain.AccountRepo             = (*AccountRepo)(nil)
	_ authdomain.AccountSessionTransactor = (*AccountRepo)(nil)
)

// AccountRepo persists accounts.account against Postgres.
type AccountRepo struct {
	pool *pgdb.Pool
}

// NewAccountRepo creates an AccountRepo.
func NewAccountRepo(pool *pgdb.Pool) *AccountRepo { return &AccountRepo{pool: pool} }

// Allocate generates fresh AccountID/ShamellID pairs and retries on unique
// constraint collisions up to kerneldomain.AccountAllocationRetries times.
func (r *AccountRepo) Allocate(ctx context.Context) (authdomain.Account, error) {
	ctx, span := tracer.Start(ctx, "pg.accounts.allocate")
	defer span.End()

	for attempt := 0; attempt < kerneldomain.AccountAllocationRetries; attempt++ {
		acc := authdomain.Account{
			AccountID: kerneldomain.GenerateAccountID(),
			ShamellID: kerneldomain.GenerateShamellID(),
		}
		_, err := r.pool.DB.Exec(ctx,
			`INSERT INTO accounts (account_id, shamell_id) VALUES ($1, $2)`,
			acc.AccountID.String(), acc.ShamellID.String(),
		)
		if err == nil {
			return acc, nil
		}
		if pgdb.IsUniqueViolation(err) {
			continue
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return authdomain.Account{}, fmt.Errorf("insert account: %w", err)
	}
	return authdomain.Account{}, fmt.Errorf("allocate account: exhausted %d retries: %w", kerneldomain.AccountAllocationRetries, kerneldomain.ErrConflict)
}

// CreateAccountWithSession allocates a fresh account and inserts its first
// session within a single Postgres transaction.
func (r *AccountRepo) CreateAccountWithSession(ctx context.Context, sess authdomain.Session) (authdomain.Account, error) {
	ctx, span := tracer.Start(ctx, "pg.accounts.create_with_session")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"))

	tx, err := r.pool.DB.Begin(ctx)
	if err != nil {
		return authdomain.Account{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var acc authdomain.Account
	for attempt := 0; attempt < kerneldomain.AccountAllocationRetries; attempt++ {
		acc = authdomain.Account{
			AccountID: kerneldomain.GenerateAccountID(),
			ShamellID: kerneldomain.GenerateShamellID(),
		}
		_, err = tx.Exec(ctx, `INSERT INTO accounts (account_id, shamell_id) VALUES ($1, $2)`,
			acc.AccountID.String(), acc.ShamellID.String())
		if err == nil {
			break
		}
		if !pgdb.IsUniqueViolation(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return authdomain.Account{}, fmt.Errorf("insert account: %w", err)
		}
	}
	if err != nil {
		return authdomain.Account{}, fmt.Errorf("allocate account: exhausted retries: %w", kerneldomain.ErrConflict)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO sessions (sid_hash, account_id, device_id, created_at, last_seen_at, expires_at)
		 VALUES ($1, $2, NULLIF($3,''), $4, $5, $6)`,
		sess.SIDHash, acc.AccountID.String(), sess.DeviceID, sess.CreatedAt, sess.LastSeenAt, sess.ExpiresAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return authdomain.Account{}, fmt.Errorf("insert session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return authdomain.Account{}, fmt.Errorf("commit: %w", err)
	}
	return acc, nil
}

// FindByAccountID looks up an account by its 64-hex id.
func (r *AccountRepo) FindByAccountID(ctx context.Context, id kerneldomain.AccountID) (authdomain.Account, error) {
	ctx, span := tracer.Start(ctx, "pg.accounts.find_by_account_id")
	defer span.End()

	var acc authdomain.Account
	var accountID, shamellID string
	var phone *string
	err := r.pool.DB.QueryRow(ctx,
		`SELECT account_id, shamell_id, phone FROM accounts WHERE account_id = $1`, id.String(),
	).Scan(&accountID, &shamellID, &phone)
	if err != nil {
		if pgdb.IsNoRows(err) {
			return authdomain.Account{}, kerneldomain.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return authdomain.Account{}, fmt.Errorf("find account: %w", err)
	}
	acc.AccountID = kerneldomain.MustAccountID(accountID)
	acc.ShamellID = kerneldomain.MustShamellID(shamellID)
	if phone != nil {
		acc.Phone = *phone
	}
	return acc, nil
}

// FindByPhone looks up an account by its optional unique phone number.
func (r *AccountRepo) FindByPhone(ctx context.Context, phone string) (authdomain.Account, error) {
	ctx, span := tracer.Start(ctx, "pg.accounts.find_by_phone")
	defer span.End()

	var acc authdomain.Account
	var accountID, shamellID string
	err := r.pool.DB.QueryRow(ctx,
		`SELECT account_id, shamell_id FROM accounts WHERE phone = $1`, phone,
	).Scan(&accountID, &shamellID)
	if err != nil {
		if pgdb.IsNoRows(err) {
			return authdomain.Account{}, kerneldomain.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return authdomain.Account{}, fmt.Errorf("find account by phone: %w", err)
	}
	acc.AccountID = kerneldomain.MustAccountID(accountID)
	acc.ShamellID = kerneldomain.MustShamellID(shamellID)
	acc.Phone = phone
	return acc, nil
}

// BackfillPhone performs the best-effort, lock-free legacy backfill
// documented in DESIGN.md's Open Question decisions: it never gates an
// authorization decision and may race with a concurrent reader.
func (r *AccountRepo) BackfillPhone(ctx context.Context, accountID kerneldomain.AccountID, phone string) error {
	ctx, span := tracer.Start(ctx, "pg.accounts.backfill_phone")
	defer span.End()

	_, err := r.pool.DB.Exec(ctx,
		`UPDATE accounts SET account_id = $1 WHERE phone = $2 AND account_id IS NULL`,
		accountID.String(), phone,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("backfill phone: %w", err)
	}
	return nil
}
