package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/shamell/shamell/internal/awsclient"
	"github.com/shamell/shamell/internal/config"
	"github.com/shamell/shamell/internal/domain"
	"github.com/shamell/shamell/internal/ledger/adapter"
	"github.com/shamell/shamell/internal/ledger/app"
	"github.com/shamell/shamell/internal/ledger/port"
	"github.com/shamell/shamell/internal/pgdb"
	"github.com/shamell/shamell/internal/secretstore"
	"github.com/shamell/shamell/internal/server"
)

// Secret values served by the static store in local development.
const (
	devTicketSecretValue   = "local-dev-ticket-signing-secret"
	devInternalSecretValue = "local-dev-internal-shared-secret"
)

// setup is the ledgersvc composition root: Postgres adapters for the
// payments and bus schemas, the ticket-signing and internal secrets, the
// ledger service, and HTTP routes.
func setup(ctx context.Context, deps server.SetupDeps) (func(context.Context) error, error) {
	cfg := deps.Config
	logger := deps.Logger

	pool, err := pgdb.NewPool(ctx, pgdb.Config{
		DSN:            cfg.Postgres.DSN,
		MaxConns:       cfg.Postgres.MaxConns,
		MinConns:       cfg.Postgres.MinConns,
		ConnectTimeout: cfg.Postgres.ConnectTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("ledgersvc setup: create postgres pool: %w", err)
	}

	secrets, err := createSecretStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("ledgersvc setup: create secret store: %w", err)
	}
	ticketSecret, err := secrets.Get(ctx, cfg.Ledger.TicketSigningSecretID)
	if err != nil {
		return nil, fmt.Errorf("ledgersvc setup: load ticket signing secret: %w", err)
	}
	internalSecret, err := secrets.Get(ctx, cfg.Internal.SharedSecretID)
	if err != nil {
		return nil, fmt.Errorf("ledgersvc setup: load internal shared secret: %w", err)
	}

	ledgerSvc := app.NewLedgerService(app.Config{
		Wallets:         adapter.NewWalletRepo(pool),
		Ledger:          adapter.NewLedgerRepo(pool),
		Idempotency:     adapter.NewIdempotencyRepo(pool),
		Aliases:         adapter.NewAliasRepo(pool),
		Favorites:       adapter.NewFavoriteRepo(pool),
		PaymentRequests: adapter.NewPaymentRequestRepo(pool),
		Tx:              adapter.NewTxRunner(pool),

		Roles:              adapter.NewRoleStore(pool),
		Cities:             adapter.NewCityRepo(pool),
		Operators:          adapter.NewOperatorRepo(pool),
		Routes:             adapter.NewRouteRepo(pool),
		Trips:              adapter.NewTripRepo(pool),
		Bookings:           adapter.NewBookingRepo(pool),
		Tickets:            adapter.NewTicketRepo(pool),
		BookingIdempotency: adapter.NewBookingIdempotencyRepo(pool),

		Clock: domain.RealClock{},
		Log:   logger,

		MerchantFeeBps: cfg.Ledger.MerchantFeeBps,
		FeeWallet: app.FeeWalletConfig{
			AccountID: cfg.Ledger.FeeWalletAccountID,
			Phone:     cfg.Ledger.FeeWalletPhone,
		},
		AllowDirectTopup: cfg.Ledger.AllowDirectTopup,
		PaymentsEnabled:  cfg.Ledger.PaymentsEnabled,
		Environment:      cfg.Environment,
		TicketSecret:     []byte(ticketSecret),
	})

	handler := port.NewLedgerHandler(ledgerSvc, string(internalSecret))
	handler.RegisterRoutes(deps.HTTPMux)

	logger.InfoContext(ctx, "ledgersvc initialized")

	cleanup := func(_ context.Context) error {
		pool.Close()
		return nil
	}
	return cleanup, nil
}

// createSecretStore returns the environment-appropriate secret store.
func createSecretStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (secretstore.Store, error) {
	if cfg.IsLocal() {
		logger.Info("using static dev secret store")
		return secretstore.NewStaticStore(map[string]domain.SecretBytes{
			cfg.Ledger.TicketSigningSecretID: domain.SecretBytes(devTicketSecretValue),
			cfg.Internal.SharedSecretID:      domain.SecretBytes(devInternalSecretValue),
		}), nil
	}

	awsCfg, err := awsclient.Load(ctx, awsclient.Config{
		Region:   cfg.AWS.Region,
		Endpoint: cfg.AWS.Endpoint,
		Timeout:  domain.UpstreamCallTimeout,
	})
	if err != nil {
		return nil, err
	}
	sm := secretsmanager.NewFromConfig(awsCfg)
	return secretstore.NewAWSStore(sm, ssm.NewFromConfig(awsCfg), domain.RealClock{}, cfg.SecretStore.CacheTTL, cfg.SecretStore.RefreshCooldown), nil
}
