package adapter

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/codes"

	kerneldomain "github.com/shamell/shamell/internal/domain"
	ledgerdomain "github.com/shamell/shamell/internal/ledger/domain"
	"github.com/shamell/shamell/internal/pgdb"
)

var _ ledgerdomain.AliasRepo = (*AliasRepo)(nil)

// AliasRepo resolves transfer-by-alias handles to wallets.
type AliasRepo struct {
	pool *pgdb.Pool
}

// NewAliasRepo creates an AliasRepo.
func NewAliasRepo(pool *pgdb.Pool) *AliasRepo { return &AliasRepo{pool: pool} }

// FindActive resolves an active alias handle to its wallet.
func (r *AliasRepo) FindActive(ctx context.Context, handle string) (ledgerdomain.Alias, error) {
	ctx, span := tracer.Start(ctx, "pg.aliases.find_active")
	defer span.End()

	var a ledgerdomain.Alias
	var walletID string
	err := r.pool.DB.QueryRow(ctx,
		`SELECT handle, wallet_id, status FROM wallet_aliases WHERE handle = $1 AND status = 'active'`, handle,
	).Scan(&a.Handle, &walletID, &a.Status)
	if err != nil {
		if pgdb.IsNoRows(err) {
			return ledgerdomain.Alias{}, kerneldomain.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ledgerdomain.Alias{}, fmt.Errorf("find alias: %w", err)
	}
	a.WalletID = kerneldomain.MustWalletID(walletID)
	return a, nil
}

var _ ledgerdomain.FavoriteRepo = (*FavoriteRepo)(nil)

// FavoriteRepo persists saved counterparty wallets.
type FavoriteRepo struct {
	pool *pgdb.Pool
}

// NewFavoriteRepo creates a FavoriteRepo.
func NewFavoriteRepo(pool *pgdb.Pool) *FavoriteRepo { return &FavoriteRepo{pool: pool} }

// FindByPair looks up an existing favorite by (owner, favorite) wallet pair.
func (r *FavoriteRepo) FindByPair(ctx context.Context, ownerWalletID, favoriteWalletID kerneldomain.WalletID) (ledgerdomain.Favorite, error) {
	ctx, span := tracer.Start(ctx, "pg.favorites.find_by_pair")
	defer span.End()

	f, err := scanFavorite(r.pool.DB.QueryRow(ctx,
		`SELECT id, owner_wallet_id, favorite_wallet_id, alias, created_at
		 FROM wallet_favorites WHERE owner_wallet_id = $1 AND favorite_wallet_id = $2`,
		ownerWalletID.String(), favoriteWalletID.String()))
	if err != nil {
		if pgdb.IsNoRows(err) {
			return ledgerdomain.Favorite{}, kerneldomain.ErrNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ledgerdomain.Favorite{}, fmt.Errorf("find favorite: %w", err)
	}
	return f, nil
}

// Upsert creates or renames a favorite entry for f.OwnerWalletID/FavoriteWalletID.
func (r *FavoriteRepo) Upsert(ctx context.Context, f ledgerdomain.Favorite) (ledgerdomain.Favorite, error) {
	ctx, span := tracer.Start(ctx, "pg.favorites.upsert")
	defer span.End()

	if f.ID.IsZero() {
		f.ID = kerneldomain.GenerateFavoriteID()
	}
	row := r.pool.DB.QueryRow(ctx,
		`INSERT INTO wallet_favorites (id, owner_wallet_id, favorite_wallet_id, alias, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (owner_wallet_id, favorite_wallet_id) DO UPDATE SET alias = EXCLUDED.alias
		 RETURNING id, owner_wallet_id, favorite_wallet_id, alias, created_at`,
		f.ID.String(), f.OwnerWalletID.String(), f.FavoriteWalletID.String(), f.Alias, f.CreatedAt,
	)
	out, err := scanFavorite(row)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ledgerdomain.Favorite{}, fmt.Errorf("upsert favorite: %w", err)
	}
	return out, nil
}

// ListByOwner lists every favorite saved by ownerWalletID.
func (r *FavoriteRepo) ListByOwner(ctx context.Context, ownerWalletID kerneldomain.WalletID) ([]ledgerdomain.Favorite, error) {
	ctx, span := tracer.Start(ctx, "pg.favorites.list_by_owner")
	defer span.End()

	rows, err := r.pool.DB.Query(ctx,
		`SELECT id, owner_wallet_id, favorite_wallet_id, alias, created_at
		 FROM wallet_favorites WHERE owner_wallet_id = $1 ORDER BY created_at DESC`, ownerWalletID.String())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	defer rows.Close()

	var out []ledgerdomain.Favorite
	for rows.Next() {
		f, err := scanFavoriteRows(rows)
		if err != nil {
			return nil, fmt.Errorf("scan favorite: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func scanFavorite(row pgdb.Row) (ledgerdomain.Favorite, error) {
	var f ledgerdomain.Favorite
	var id, owner, favorite string
	if err := row.Scan(&id, &owner, &favorite, &f.Alias, &f.CreatedAt); err != nil {
		return ledgerdomain.Favorite{}, err
	}
	f.ID = mustFavoriteID(id)
	f.OwnerWalletID = kerneldomain.MustWalletID(owner)
	f.FavoriteWalletID = kerneldomain.MustWalletID(favorite)
	return f, nil
}

func scanFavoriteRows(rows pgdb.Rows) (ledgerdomain.Favorite, error) {
	var f ledgerdomain.Favorite
	var id, owner, favorite string
	if err := rows.Scan(&id, &owner, &favorite, &f.Alias, &f.CreatedAt); err != nil {
		return ledgerdomain.Favorite{}, err
	}
	f.ID = mustFavoriteID(id)
	f.OwnerWalletID = kerneldomain.MustWalletID(owner)
	f.FavoriteWalletID = kerneldomain.MustWalletID(favorite)
	return f, nil
}
