package circuitbreaker

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/npv2k1/open-gateway/internal/config"
)

func okResponse() (*http.Response, error) {
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader("ok")),
	}, nil
}

func serverErrorResponse() (*http.Response, error) {
	return &http.Response{
		StatusCode: http.StatusBadGateway,
		Body:       io.NopCloser(strings.NewReader("bad")),
	}, nil
}

func TestTripsAfterConsecutiveFailures(t *testing.T) {
	b := New("svc", config.CircuitBreakerConfig{Enabled: true, MaxFailures: 3})

	for i := 0; i < 3; i++ {
		resp, err := b.Do(func() (*http.Response, error) {
			return nil, errors.New("dial refused")
		})
		if err == nil {
			t.Fatalf("attempt %d: expected error, got resp %v", i, resp)
		}
		if IsOpen(err) {
			t.Fatalf("attempt %d: breaker opened early", i)
		}
	}

	_, err := b.Do(okResponse)
	if !IsOpen(err) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if b.State() != gobreaker.StateOpen {
		t.Errorf("state = %v", b.State())
	}
}

func TestServerErrorsCountButPassThrough(t *testing.T) {
	b := New("svc", config.CircuitBreakerConfig{Enabled: true, MaxFailures: 2})

	for i := 0; i < 2; i++ {
		resp, err := b.Do(serverErrorResponse)
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if resp.StatusCode != http.StatusBadGateway {
			t.Fatalf("attempt %d: status %d", i, resp.StatusCode)
		}
		resp.Body.Close()
	}

	if _, err := b.Do(okResponse); !IsOpen(err) {
		t.Fatalf("expected open breaker after 5xx responses, got %v", err)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := New("svc", config.CircuitBreakerConfig{Enabled: true, MaxFailures: 2})

	b.Do(func() (*http.Response, error) { return nil, errors.New("boom") })
	if resp, err := b.Do(okResponse); err != nil {
		t.Fatalf("success rejected: %v", err)
	} else {
		resp.Body.Close()
	}
	b.Do(func() (*http.Response, error) { return nil, errors.New("boom") })

	// Still closed: the success broke the consecutive streak
	if resp, err := b.Do(okResponse); err != nil {
		t.Fatalf("breaker tripped despite interleaved success: %v", err)
	} else {
		resp.Body.Close()
	}
}

func TestRecoversAfterTimeout(t *testing.T) {
	b := New("svc", config.CircuitBreakerConfig{
		Enabled:     true,
		MaxFailures: 1,
		Timeout:     20 * time.Millisecond,
	})

	b.Do(func() (*http.Response, error) { return nil, errors.New("boom") })
	if _, err := b.Do(okResponse); !IsOpen(err) {
		t.Fatalf("expected open breaker, got %v", err)
	}

	time.Sleep(30 * time.Millisecond)

	resp, err := b.Do(okResponse)
	if err != nil {
		t.Fatalf("half-open probe rejected: %v", err)
	}
	resp.Body.Close()
	if b.State() != gobreaker.StateClosed {
		t.Errorf("state after recovery = %v", b.State())
	}
}
