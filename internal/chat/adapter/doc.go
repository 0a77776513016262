// Package adapter implements the Chat core's domain ports against
// Postgres, AWS SNS mobile push, and (for contact-rule lookups) a Redis
// read-through cache. The SQL repositories keep every multi-row write in
// one transaction; the cache invalidates on write.
package adapter

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("chat/adapter")
