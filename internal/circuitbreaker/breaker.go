// Package circuitbreaker sheds load from upstreams that fail repeatedly.
package circuitbreaker

import (
	"errors"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/npv2k1/open-gateway/internal/config"
)

const (
	defaultMaxFailures = 5
	defaultTimeout     = 30 * time.Second
)

// errUpstreamStatus marks a 5xx response as a failure for trip accounting
// while still letting the response reach the client.
var errUpstreamStatus = errors.New("upstream returned server error")

// Breaker trips after consecutive upstream failures and rejects requests
// until the cool-down elapses.
type Breaker struct {
	cb *gobreaker.CircuitBreaker[*http.Response]
}

func New(name string, cfg config.CircuitBreakerConfig) *Breaker {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultMaxFailures
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	settings := gobreaker.Settings{
		Name:    name,
		Timeout: timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker[*http.Response](settings)}
}

// Do runs the exchange through the breaker. Server error responses count as
// failures but are still returned to the caller; when the breaker is open
// the error satisfies IsOpen.
func (b *Breaker) Do(fn func() (*http.Response, error)) (*http.Response, error) {
	resp, err := b.cb.Execute(func() (*http.Response, error) {
		resp, err := fn()
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, errUpstreamStatus
		}
		return resp, nil
	})
	if errors.Is(err, errUpstreamStatus) {
		return resp, nil
	}
	return resp, err
}

// State reports the breaker state for observability.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// IsOpen reports whether err means the breaker rejected the request.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
