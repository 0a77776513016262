package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/shamell/shamell/internal/awsclient"
	"github.com/shamell/shamell/internal/bff/adapter"
	"github.com/shamell/shamell/internal/bff/app"
	bffdomain "github.com/shamell/shamell/internal/bff/domain"
	"github.com/shamell/shamell/internal/bff/port"
	"github.com/shamell/shamell/internal/config"
	"github.com/shamell/shamell/internal/domain"
	"github.com/shamell/shamell/internal/secretstore"
	"github.com/shamell/shamell/internal/server"
)

const devInternalSecretValue = "local-dev-internal-shared-secret"

// setup is the bffgateway composition root: the shared upstream HTTP
// client, the internal shared secret, the gateway, and HTTP routes. The
// gateway owns no database — all state lives in the cores it fans out to.
func setup(ctx context.Context, deps server.SetupDeps) (func(context.Context) error, error) {
	cfg := deps.Config
	logger := deps.Logger

	secrets, err := createSecretStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("bffgateway setup: create secret store: %w", err)
	}
	internalSecret, err := secrets.Get(ctx, cfg.Internal.SharedSecretID)
	if err != nil {
		return nil, fmt.Errorf("bffgateway setup: load internal shared secret: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.BFF.UpstreamTimeout}
	upstream := adapter.NewHTTPUpstreamCaller(httpClient, adapter.BaseURLs{
		bffdomain.UpstreamAuth:   cfg.BFF.AuthBaseURL,
		bffdomain.UpstreamChat:   cfg.BFF.ChatBaseURL,
		bffdomain.UpstreamLedger: cfg.BFF.LedgerBaseURL,
	}, string(internalSecret), "bffgateway")

	gateway := app.NewGateway(app.Config{
		Upstream: upstream,
		Clock:    domain.RealClock{},
		Log:      logger,

		AcceptLegacySessionCookie: cfg.BFF.AcceptLegacySessionCookie,
		ExposeUpstreamErrors:      cfg.BFF.ExposeUpstreamErrors,
		ChatEnforceContactEdge:    cfg.BFF.ChatEnforceContactEdge,
	})

	handler := port.NewGatewayHandler(gateway)
	handler.RegisterRoutes(deps.HTTPMux)

	logger.InfoContext(ctx, "bffgateway initialized")

	return nil, nil
}

// createSecretStore returns the environment-appropriate secret store.
func createSecretStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (secretstore.Store, error) {
	if cfg.IsLocal() {
		logger.Info("using static dev secret store")
		return secretstore.NewStaticStore(map[string]domain.SecretBytes{
			cfg.Internal.SharedSecretID: domain.SecretBytes(devInternalSecretValue),
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
