// Package adapter implements the BFF gateway's one domain port,
// bffdomain.UpstreamCaller, over plain HTTP. The narrow httpDoer interface
// lets tests script the transport without a network listener.
package adapter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	bffdomain "github.com/shamell/shamell/internal/bff/domain"
	kerneldomain "github.com/shamell/shamell/internal/domain"
)

// httpDoer is a narrow, consumer-defined interface for the subset of
// *http.Client operations the upstream caller requires.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// BaseURLs maps each Upstream to the base URL its service listens on.
type BaseURLs map[bffdomain.Upstream]string

// HTTPUpstreamCaller is the gateway's sole network-egress path: every
// fan-out call in internal/bff/app goes through Call, so header
// propagation, body-cap streaming, and the internal-secret binding live in
// exactly one place.
type HTTPUpstreamCaller struct {
	client    httpDoer
	baseURLs  BaseURLs
	secret    string
	serviceID string
	bodyCap   int64
}

// NewHTTPUpstreamCaller creates an HTTPUpstreamCaller. secret is the shared
// internal token every downstream core's /internal/* and secret-gated
// routes expect in X-Internal-Secret; serviceID is sent as
// X-Internal-Service-Id so downstream logs can attribute the caller.
func NewHTTPUpstreamCaller(client httpDoer, baseURLs BaseURLs, secret, serviceID string) *HTTPUpstreamCaller {
	return &HTTPUpstreamCaller{client: client, baseURLs: baseURLs, secret: secret, serviceID: serviceID, bodyCap: kerneldomain.UpstreamBodyCapBytes}
}

var _ bffdomain.UpstreamCaller = (*HTTPUpstreamCaller)(nil)

// Call issues one HTTP request against the named upstream, propagating
// X-Request-ID and stamping the internal-secret binding, then streams the
// response body through a capped reader that tracks a running total
// rather than buffering an unbounded upstream response.
func (c *HTTPUpstreamCaller) Call(ctx context.Context, upstream bffdomain.Upstream, req bffdomain.CallRequest) (*bffdomain.CallResponse, error) {
	base, ok := c.baseURLs[upstream]
	if !ok {
		return nil, fmt.Errorf("unknown upstream %q: %w", upstream, kerneldomain.ErrInvalidInput)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, base+req.Path, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", upstream, err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if c.secret != "" {
		httpReq.Header.Set("X-Internal-Secret", c.secret)
		httpReq.Header.Set("X-Bus-Payments-Internal-Secret", c.secret)
	}
	httpReq.Header.Set("X-Internal-Service-Id", c.serviceID)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", upstream, kerneldomain.ErrUpstream)
	}
	defer resp.Body.Close()

	body, truncated, err := readCapped(resp.Body, c.bodyCap)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", upstream, err)
	}

	return &bffdomain.CallResponse{StatusCode: resp.StatusCode, Header: resp.Header, Body: body, Truncated: truncated}, nil
}

// readCapped reads at most capBytes+1 from r, tracking a running total so a
// misbehaving upstream cannot exhaust gateway memory on an unbounded body.
// truncated reports whether the real body exceeded the cap.
func readCapped(r io.Reader, capBytes int64) (body []byte, truncated bool, err error) {
	limited := io.LimitReader(r, capBytes+1)
	buf := make([]byte, 0, minInt64(capBytes+1, 64*1024))
	chunk := make([]byte, 32*1024)
	var total int64
	for {
		n, readErr := limited.Read(chunk)
		if n > 0 {
			total += int64(n)
			buf = append(buf, chunk[:n]...)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, false, readErr
		}
	}
	if total > capBytes {
		return buf[:capBytes], true, nil
	}
	return buf, false, nil
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
