package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sns"

	"github.com/shamell/shamell/internal/awsclient"
	"github.com/shamell/shamell/internal/chat/adapter"
	"github.com/shamell/shamell/internal/chat/app"
	chatdomain "github.com/shamell/shamell/internal/chat/domain"
	"github.com/shamell/shamell/internal/chat/port"
	"github.com/shamell/shamell/internal/config"
	"github.com/shamell/shamell/internal/domain"
	"github.com/shamell/shamell/internal/pgdb"
	"github.com/shamell/shamell/internal/redis"
	"github.com/shamell/shamell/internal/server"
)

// setup is the chatsvc composition root: Postgres adapters, the Redis
// contact-rule cache, the push sender, the chat service, HTTP routes, and
// the mailbox purge sweeper.
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
		return nil, fmt.Errorf("chatsvc setup: create postgres pool: %w", err)
	}

	redisClient := redis.NewClient(redis.Config{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		ReadTimeout:  cfg.Redis.Timeout,
		WriteTimeout: cfg.Redis.Timeout,
	})

	contactRules := adapter.NewCachedContactRuleRepo(adapter.NewContactRuleRepo(pool), redisClient.RDB)

	push, err := createPushSender(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("chatsvc setup: create push sender: %w", err)
	}

	chatSvc := app.NewChatService(app.Config{
		Devices:      adapter.NewDeviceRepo(pool),
		KeyBundles:   adapter.NewKeyBundleRepo(pool),
		Messages:     adapter.NewMessageRepo(pool),
		Groups:       adapter.NewGroupRepo(pool),
		ContactRules: contactRules,
		PushTokens:   adapter.NewPushTokenRepo(pool),
		Mailboxes:    adapter.NewMailboxRepo(pool),
		Push:         push,
		Clock:        domain.RealClock{},
		Log:          logger,
		Protocol: app.ProtocolPolicy{
			V2Enabled:         cfg.Chat.V2Enabled,
			V1WriteEnabled:    cfg.Chat.V1WriteEnabled,
			GroupV2OnlyGlobal: cfg.Chat.GroupV2OnlyGlobal,
		},
		InboxDefaultLimit: cfg.Chat.InboxDefaultLimit,
		MailboxPollLimit:  cfg.Chat.MailboxPollLimit,
	})

	handler := port.NewChatHandler(chatSvc)
	handler.RegisterRoutes(deps.HTTPMux)

	sweepDone := startSweeper(logger, chatSvc)

	logger.InfoContext(ctx, "chatsvc initialized")

	cleanup := func(_ context.Context) error {
		close(sweepDone)
		chatSvc.Wait()
		pool.Close()
		return redisClient.Close()
	}
	return cleanup, nil
}

// startSweeper runs the mailbox purge on a skip-missed-tick interval.
func startSweeper(logger *slog.Logger, svc *app.ChatService) chan struct{} {
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
				if _, err := svc.Sweep(ctx); err != nil {
					logger.Warn("chat sweep failed", slog.String("error", err.Error()))
				}
				cancel()
			}
		}
	}()
	return done
}

// createPushSender returns the SNS platform-endpoint sender when a platform
// application is configured, falling back to the log-only sender for local
// development.
func createPushSender(ctx context.Context, cfg *config.Config, logger *slog.Logger) (chatdomain.PushSender, error) {
	if cfg.IsLocal() || cfg.Push.PlatformApplicationARN == "" {
		logger.Info("using log-only push sender")
		return adapter.NewLogPushSender(logger), nil
	}

	awsCfg, err := awsclient.Load(ctx, awsclient.Config{
		Region:   cfg.AWS.Region,
		Endpoint: cfg.AWS.Endpoint,
		Timeout:  domain.UpstreamCallTimeout,
	})
	if err != nil {
		return nil, err
	}
	return adapter.NewSNSPushSender(sns.NewFromConfig(awsCfg)), nil
}
