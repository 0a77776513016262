package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/golang-jwt/jwt/v5"

	"github.com/shamell/shamell/internal/auth/adapter"
	"github.com/shamell/shamell/internal/auth/app"
	authdomain "github.com/shamell/shamell/internal/auth/domain"
	"github.com/shamell/shamell/internal/auth/port"
	"github.com/shamell/shamell/internal/awsclient"
	"github.com/shamell/shamell/internal/config"
	"github.com/shamell/shamell/internal/domain"
	"github.com/shamell/shamell/internal/pgdb"
	"github.com/shamell/shamell/internal/secretstore"
	"github.com/shamell/shamell/internal/server"
)

// Secret names served by the static store in local development. Production
// resolves the same names through Secrets Manager.
const (
	devPepperValue         = "local-dev-pepper-32-bytes-ok!!"
	devInternalSecretValue = "local-dev-internal-shared-secret"
)

// setup is the authsvc composition root: infrastructure clients, Postgres
// adapters, attestation verifiers, the auth service, HTTP routes, and the
// background maintenance sweeper.
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
		return nil, fmt.Errorf("authsvc setup: create postgres pool: %w", err)
	}

	secrets, err := createSecretStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("authsvc setup: create secret store: %w", err)
	}

	accounts := adapter.NewAccountRepo(pool)
	sessions := adapter.NewSessionRepo(pool)
	deviceLogins := adapter.NewDeviceLoginRepo(pool)
	biometrics := adapter.NewBiometricTokenRepo(pool)
	contactInvites := adapter.NewContactInviteRepo(pool)
	rateLimiter := adapter.NewRateLimiter(pool)

	clock := domain.RealClock{}
	httpClient := &http.Client{Timeout: domain.UpstreamCallTimeout}

	apple, err := createAppleVerifier(cfg, secrets, httpClient, clock)
	if err != nil {
		return nil, fmt.Errorf("authsvc setup: create apple verifier: %w", err)
	}
	google, err := createGoogleVerifier(ctx, cfg, secrets, httpClient)
	if err != nil {
		return nil, fmt.Errorf("authsvc setup: create google verifier: %w", err)
	}

	authSvc := app.NewAuthService(app.Config{
		Accounts:       accounts,
		AccountSession: accounts,
		Sessions:       sessions,
		DeviceLogins:   deviceLogins,
		Biometrics:     biometrics,
		ContactInvites: contactInvites,
		RateLimiter:    rateLimiter,
		Apple:          apple,
		Google:         google,
		Secrets:        secrets,
		PepperName:     cfg.SecretStore.PepperSecretID,
		Clock:          clock,
		Log:            logger,

		AccountCreationEnabled: cfg.Auth.AccountCreationEnabled,
		PoW: app.PoWConfig{
			Enabled:        cfg.Auth.PoWDifficultyBits > 0,
			DifficultyBits: cfg.Auth.PoWDifficultyBits,
		},
		Attestation: app.AttestationConfig{
			Enabled:          cfg.Attestation.Enabled,
			Required:         cfg.Attestation.Required,
			AppleEnabled:     cfg.Attestation.Apple.Enabled,
			GoogleEnabled:    cfg.Attestation.Google.Enabled,
			GooglePackageIDs: cfg.Attestation.Google.PackageIDs,
		},
	})

	internalSecret, err := secrets.Get(ctx, cfg.Internal.SharedSecretID)
	if err != nil {
		return nil, fmt.Errorf("authsvc setup: load internal shared secret: %w", err)
	}

	trustLegacyIPHeaders := cfg.IsLocal() || cfg.Environment == "dev"
	handler := port.NewAuthHandler(authSvc, string(internalSecret), trustLegacyIPHeaders)
	handler.RegisterRoutes(deps.HTTPMux)

	sweepDone := startSweeper(logger, authSvc)

	logger.InfoContext(ctx, "authsvc initialized")

	cleanup := func(_ context.Context) error {
		close(sweepDone)
		authSvc.Wait()
		pool.Close()
		return nil
	}
	return cleanup, nil
}

// startSweeper runs the maintenance sweep on a skip-missed-tick interval:
// time.Ticker drops ticks that fire while a pass is still running, so a
// late tick runs once, not many times.
func startSweeper(logger *slog.Logger, svc *app.AuthService) chan struct{} {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(domain.RateLimitMaintenanceInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), domain.PostgresQueryTimeout*4)
				if _, err := svc.Sweep(ctx, domain.MaintenanceRetentionGrace); err != nil {
					logger.Warn("auth sweep failed", slog.String("error", err.Error()))
				}
				cancel()
			}
		}
	}()
	return done
}

// createSecretStore returns the environment-appropriate secret store.
// Local: fixed dev values, no AWS dependency. Otherwise: Secrets Manager
// behind the TTL cache.
func createSecretStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (secretstore.Store, error) {
	if cfg.IsLocal() {
		logger.Info("using static dev secret store")
		return secretstore.NewStaticStore(map[string]domain.SecretBytes{
			cfg.SecretStore.PepperSecretID: domain.SecretBytes(devPepperValue),
			cfg.Internal.SharedSecretID:    domain.SecretBytes(devInternalSecretValue),
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

// createAppleVerifier wires the DeviceCheck oracle. The bearer JWT is a
// fresh ES256 token signed with the App Store Connect API key on every
// verification call, per Apple's validate_device_token contract.
func createAppleVerifier(cfg *config.Config, secrets secretstore.Store, client *http.Client, clock domain.Clock) (authdomain.AttestationVerifier, error) {
	apple := cfg.Attestation.Apple
	if !apple.Enabled {
		return adapter.NewAppleDeviceCheckVerifier(client, "", "", "", nil), nil
	}

	signedJWT := func() (string, error) {
		ctx, cancel := context.WithTimeout(context.Background(), domain.UpstreamCallTimeout)
		defer cancel()
		pemKey, err := secrets.Get(ctx, apple.PrivateKeySecretID)
		if err != nil {
			return "", fmt.Errorf("load apple private key: %w", err)
		}
		key, err := jwt.ParseECPrivateKeyFromPEM([]byte(pemKey))
		if err != nil {
			return "", fmt.Errorf("parse apple private key: %w", err)
		}
		now := clock.Now()
		tok := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
			"iss": apple.TeamID,
			"iat": now.Unix(),
			"exp": now.Add(20 * time.Minute).Unix(),
		})
		tok.Header["kid"] = apple.KeyID
		return tok.SignedString(key)
	}
	return adapter.NewAppleDeviceCheckVerifier(client, apple.TeamID, apple.KeyID, apple.BundleID, signedJWT), nil
}

// createGoogleVerifier wires the Play Integrity oracle. The API key is
// resolved once at startup and folded into the decode URL.
func createGoogleVerifier(ctx context.Context, cfg *config.Config, secrets secretstore.Store, client *http.Client) (authdomain.AttestationVerifier, error) {
	google := cfg.Attestation.Google
	if !google.Enabled {
		return adapter.NewGooglePlayIntegrityVerifier(client, "", nil, false), nil
	}

	decodeURL := google.DecodeURL
	if google.APIKeySecretID != "" {
		apiKey, err := secrets.Get(ctx, google.APIKeySecretID)
		if err != nil {
			return nil, fmt.Errorf("load play integrity api key: %w", err)
		}
		decodeURL = fmt.Sprintf("%s?key=%s", decodeURL, string(apiKey))
	}
	return adapter.NewGooglePlayIntegrityVerifier(client, decodeURL, google.PackageIDs, google.RequireLicensed), nil
}
