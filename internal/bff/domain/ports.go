package domain

import "context"

// UpstreamCaller is the gateway's single network-egress abstraction:
// header propagation, body-cap streaming, and error sanitization all
// live behind this one call, never duplicated per route.
type UpstreamCaller interface {
	Call(ctx context.Context, upstream Upstream, req CallRequest) (*CallResponse, error)
}
