package app

import (
	"context"
	"fmt"

	kerneldomain "github.com/shamell/shamell/internal/domain"
	ledgerdomain "github.com/shamell/shamell/internal/ledger/domain"
)

// CreateFavorite upserts a saved counterparty wallet for ownerWalletID,
// updating the alias on an existing row rather than duplicating it.
func (s *LedgerService) CreateFavorite(ctx context.Context, ownerWalletID, favoriteWalletID kerneldomain.WalletID, alias string) (*ledgerdomain.Favorite, error) {
	ctx, span := tracer.Start(ctx, "ledger.CreateFavorite")
	defer span.End()

	if ownerWalletID.IsZero() || favoriteWalletID.IsZero() {
		return nil, fmt.Errorf("owner_wallet_id and favorite_wallet_id required: %w", kerneldomain.ErrInvalidInput)
	}
	if ownerWalletID == favoriteWalletID {
		return nil, fmt.Errorf("cannot favorite self: %w", kerneldomain.ErrInvalidInput)
	}

	f := ledgerdomain.Favorite{
		OwnerWalletID:    ownerWalletID,
		FavoriteWalletID: favoriteWalletID,
		Alias:            alias,
		CreatedAt:        s.clock.Now(),
	}
	stored, err := s.favorites.Upsert(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("upsert favorite: %w", err)
	}
	return &stored, nil
}

// ListFavorites returns every favorite saved by ownerWalletID.
func (s *LedgerService) ListFavorites(ctx context.Context, ownerWalletID kerneldomain.WalletID) ([]ledgerdomain.Favorite, error) {
	ctx, span := tracer.Start(ctx, "ledger.ListFavorites")
	defer span.End()

	out, err := s.favorites.ListByOwner(ctx, ownerWalletID)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	return out, nil
}

// EnsureUser lazily materializes a Ledger User + Wallet for accountID,
// called by the BFF on every authenticated request.
func (s *LedgerService) EnsureUser(ctx context.Context, accountID kerneldomain.AccountID, phone string) (*ledgerdomain.User, error) {
	ctx, span := tracer.Start(ctx, "ledger.EnsureUser")
	defer span.End()

	u, err := s.wallets.EnsureUser(ctx, accountID, phone)
	if err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	return &u, nil
}
