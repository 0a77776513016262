package adapter_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shamell/shamell/internal/bff/adapter"
	bffdomain "github.com/shamell/shamell/internal/bff/domain"
	"github.com/shamell/shamell/internal/domain"
)

// stubDoer scripts the upstream HTTP transport.
type stubDoer struct {
	lastReq *http.Request
	resp    *http.Response
	err     error
}

func (s *stubDoer) Do(req *http.Request) (*http.Response, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func okResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func newCaller(doer *stubDoer) *adapter.HTTPUpstreamCaller {
	return adapter.NewHTTPUpstreamCaller(doer, adapter.BaseURLs{
		bffdomain.UpstreamAuth:   "http://auth.internal",
		bffdomain.UpstreamLedger: "http://ledger.internal",
	}, "internal-s3cret", "bffgateway")
}

func TestHTTPUpstreamCall(t *testing.T) {
	t.Run("stamps the internal secret pair and propagates headers", func(t *testing.T) {
		doer := &stubDoer{resp: okResponse(`{"ok":true}`)}

		resp, err := newCaller(doer).Call(context.Background(), bffdomain.UpstreamLedger, bffdomain.CallRequest{
			Method: "POST",
			Path:   "/bookings",
			Header: http.Header{"X-Request-Id": []string{"req-123"}},
			Body:   []byte(`{"trip_id":"t"}`),
		})
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		req := doer.lastReq
		require.NotNil(t, req)
		assert.Equal(t, "http://ledger.internal/bookings", req.URL.String())
		assert.Equal(t, "internal-s3cret", req.Header.Get("X-Internal-Secret"))
		assert.Equal(t, "internal-s3cret", req.Header.Get("X-Bus-Payments-Internal-Secret"))
		assert.Equal(t, "bffgateway", req.Header.Get("X-Internal-Service-Id"))
		assert.Equal(t, "req-123", req.Header.Get("X-Request-Id"))

		sent, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		assert.True(t, bytes.Contains(sent, []byte("trip_id")))
	})

	t.Run("oversized body is truncated at the cap and flagged", func(t *testing.T) {
		huge := strings.Repeat("x", int(domain.UpstreamBodyCapBytes)+500)
		doer := &stubDoer{resp: okResponse(huge)}

		resp, err := newCaller(doer).Call(context.Background(), bffdomain.UpstreamAuth, bffdomain.CallRequest{
			Method: "GET", Path: "/internal/sessions/validate",
		})
		require.NoError(t, err)
		assert.True(t, resp.Truncated)
		assert.Len(t, resp.Body, int(domain.UpstreamBodyCapBytes))
	})

	t.Run("body at the cap is not flagged", func(t *testing.T) {
		exact := strings.Repeat("x", int(domain.UpstreamBodyCapBytes))
		doer := &stubDoer{resp: okResponse(exact)}

		resp, err := newCaller(doer).Call(context.Background(), bffdomain.UpstreamAuth, bffdomain.CallRequest{
			Method: "GET", Path: "/healthz",
		})
		require.NoError(t, err)
		assert.False(t, resp.Truncated)
		assert.Len(t, resp.Body, int(domain.UpstreamBodyCapBytes))
	})

	t.Run("transport failure maps to ErrUpstream", func(t *testing.T) {
		doer := &stubDoer{err: io.ErrUnexpectedEOF}

		_, err := newCaller(doer).Call(context.Background(), bffdomain.UpstreamAuth, bffdomain.CallRequest{
			Method: "GET", Path: "/healthz",
		})
		assert.ErrorIs(t, err, domain.ErrUpstream)
	})

	t.Run("unknown upstream rejected before any network call", func(t *testing.T) {
		doer := &stubDoer{resp: okResponse("{}")}

		_, err := newCaller(doer).Call(context.Background(), bffdomain.Upstream("billing"), bffdomain.CallRequest{
			Method: "GET", Path: "/",
		})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
		assert.Nil(t, doer.lastReq)
	})
}
