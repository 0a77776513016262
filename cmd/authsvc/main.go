// Package main is the entrypoint for the Auth & Identity service.
// Authsvc handles attestation-gated account creation, sessions, device-login
// QR, contact invites, and rate limiting.
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
		Name:           "authsvc",
		PortFromConfig: func(cfg *config.Config) int { return cfg.Auth.HTTPPort },
		Setup:          setup,
	}, server.Listeners{})
}
