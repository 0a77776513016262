// Package main is the entrypoint for the Chat service.
// Chatsvc handles device registration, key bundles, sealed-sender
// direct/group messaging, and the mailbox transport.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/shamell/shamell/internal/config"
	"github.com/shamell/shamell/internal/server"
)

func main() {
	ctx := context.Background()
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	return server.Run(ctx, server.Params{
		Name:           "chatsvc",
		PortFromConfig: func(cfg *config.Config) int { return cfg.Chat.HTTPPort },
		Setup:          setup,
	}, server.Listeners{})
}
