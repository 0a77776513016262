// Package main is the entrypoint for the BFF gateway.
// Bffgateway enforces sessions and ownership, fans requests out to the Auth,
// Chat, and Ledger cores, and sanitizes upstream responses.
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
		Name:           "bffgateway",
		PortFromConfig: func(cfg *config.Config) int { return cfg.BFF.HTTPPort },
		Setup:          setup,
	}, server.Listeners{})
}
