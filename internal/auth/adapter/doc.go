// Package adapter implements the Auth core's outbound ports: Postgres
// repositories (accounts, sessions, device-login challenges, contact
// invites, the fixed-window rate limiter) and the Apple/Google hardware
// attestation HTTP verifiers. Multi-row writes stay inside one pgx.Tx and
// every limiter/attestation decision fails closed.
package adapter

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("auth/adapter")
