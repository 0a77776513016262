package config_test

import (
	"context"
	"testing"

	"github.com/shamell/shamell/internal/config"
	"github.com/shamell/shamell/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := config.Load(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)

	// Service ports
	assert.Equal(t, 8080, cfg.Auth.HTTPPort)
	assert.Equal(t, 8081, cfg.Chat.HTTPPort)
	assert.Equal(t, 8082, cfg.Ledger.HTTPPort)
	assert.Equal(t, 8000, cfg.BFF.HTTPPort)

	// Infrastructure defaults
	assert.Equal(t, domain.PostgresQueryTimeout, cfg.Postgres.ConnectTimeout)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 0, cfg.Redis.DB)
	assert.Equal(t, domain.RedisTimeout, cfg.Redis.Timeout)
	assert.Equal(t, "us-east-1", cfg.AWS.Region)

	// Attestation is off by default (local dev has no App Attest/Play Integrity)
	assert.False(t, cfg.Attestation.Enabled)
}

func TestIsLocal(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want bool
	}{
		{"local returns true", "local", true},
		{"prod returns false", "prod", false},
		{"dev returns false", "dev", false},
		{"empty returns false", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Environment: tt.env}

			assert.Equal(t, tt.want, cfg.IsLocal())
		})
	}
}

func TestIsProd(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want bool
	}{
		{"prod returns true", "prod", true},
		{"local returns false", "local", false},
		{"dev returns false", "dev", false},
		{"empty returns false", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Environment: tt.env}

			assert.Equal(t, tt.want, cfg.IsProd())
		})
	}
}

func TestValidateRequired_LocalAllowsMissingFields(t *testing.T) {
	t.Setenv("ENVIRONMENT", "local")

	cfg, err := config.Load(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Environment)
}

func TestValidateRequired_ProdRequiresPostgresDSN(t *testing.T) {
	t.Setenv("ENVIRONMENT", "prod")
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("AUTH_ACCOUNT_CREATION_ENABLED", "false")

	_, err := config.Load(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfigRequired)
	assert.Contains(t, err.Error(), "postgres.dsn")
}

func TestValidateRequired_ProdRequiresRedisAddr(t *testing.T) {
	t.Setenv("ENVIRONMENT", "prod")
	t.Setenv("POSTGRES_DSN", "postgres://x/y")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("AUTH_ACCOUNT_CREATION_ENABLED", "false")

	_, err := config.Load(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfigRequired)
	assert.Contains(t, err.Error(), "redis.addr")
}

func TestValidateRequired_ProdAccountCreationRequiresAttestation(t *testing.T) {
	t.Setenv("ENVIRONMENT", "prod")
	t.Setenv("POSTGRES_DSN", "postgres://x/y")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("AUTH_ACCOUNT_CREATION_ENABLED", "true")
	t.Setenv("ATTESTATION_ENABLED", "false")

	_, err := config.Load(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfigRequired)
	assert.Contains(t, err.Error(), "attestation")
}

func TestValidateRequired_ProdAttestationRequiresProvider(t *testing.T) {
	t.Setenv("ENVIRONMENT", "prod")
	t.Setenv("POSTGRES_DSN", "postgres://x/y")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("AUTH_ACCOUNT_CREATION_ENABLED", "true")
	t.Setenv("ATTESTATION_ENABLED", "true")
	t.Setenv("ATTESTATION_REQUIRED", "true")
	t.Setenv("ATTESTATION_APPLE_ENABLED", "false")
	t.Setenv("ATTESTATION_GOOGLE_ENABLED", "false")

	_, err := config.Load(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfigRequired)
	assert.Contains(t, err.Error(), "attestation provider")
}

func TestLoadWithEnvOverride_ProdWithAttestationConfigured(t *testing.T) {
	t.Setenv("ENVIRONMENT", "prod")
	t.Setenv("POSTGRES_DSN", "postgres://x/y")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("AUTH_ACCOUNT_CREATION_ENABLED", "true")
	t.Setenv("ATTESTATION_ENABLED", "true")
	t.Setenv("ATTESTATION_REQUIRED", "true")
	t.Setenv("ATTESTATION_APPLE_ENABLED", "true")

	cfg, err := config.Load(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.Environment)
	assert.True(t, cfg.Attestation.HasProvider())
}
