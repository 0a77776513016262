// Package main is the entrypoint for the Ledger/Payments + Booking service.
// Ledgersvc owns the double-entry wallet ledger, transfers, payment
// requests, and the seat-inventory booking flow.
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
		Name:           "ledgersvc",
		PortFromConfig: func(cfg *config.Config) int { return cfg.Ledger.HTTPPort },
		Setup:          setup,
	}, server.Listeners{})
}
