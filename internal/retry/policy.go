// Package retry re-attempts failed upstream exchanges with exponential
// backoff.
package retry

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/npv2k1/open-gateway/internal/config"
)

// Policy retries idempotent requests that fail with a transport error or a
// retryable status. Non-idempotent methods pass through with a single
// attempt.
type Policy struct {
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

func NewPolicy(cfg config.RetryConfig) *Policy {
	initial := cfg.InitialBackoff
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	max := cfg.MaxBackoff
	if max <= 0 {
		max = 2 * time.Second
	}
	return &Policy{
		maxRetries:     cfg.MaxRetries,
		initialBackoff: initial,
		maxBackoff:     max,
	}
}

// Execute runs the exchange, retrying up to maxRetries additional attempts.
// The request body is buffered so later attempts can replay it.
func (p *Policy) Execute(ctx context.Context, transport http.RoundTripper, req *http.Request) (*http.Response, error) {
	if p.maxRetries <= 0 || !isIdempotent(req.Method) {
		return transport.RoundTrip(req)
	}

	var bodyBytes []byte
	if req.Body != nil && req.Body != http.NoBody {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, err
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.initialBackoff
	bo.MaxInterval = p.maxBackoff
	bo.MaxElapsedTime = 0
	bo.Reset()

	var resp *http.Response
	var err error
	for attempt := 0; ; attempt++ {
		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}

		resp, err = transport.RoundTrip(req)
		if err == nil && !retryableStatus(resp.StatusCode) {
			return resp, nil
		}
		if attempt >= p.maxRetries {
			return resp, err
		}
		if ctx.Err() != nil {
			return resp, err
		}

		// Discard the failed attempt so the connection can be reused.
		if resp != nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(bo.NextBackOff()):
		}
	}
}

func isIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func retryableStatus(status int) bool {
	switch status {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}
