package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveRequest(t *testing.T) {
	m := New()

	m.ObserveRequest("GET", "svc", 200, 15*time.Millisecond)
	m.ObserveRequest("GET", "svc", 200, 5*time.Millisecond)
	m.ObserveRequest("POST", "svc", 502, 100*time.Millisecond)

	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "svc", "200")); got != 2 {
		t.Errorf("GET/svc/200 count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.requestsTotal.WithLabelValues("POST", "svc", "502")); got != 1 {
		t.Errorf("POST/svc/502 count = %v, want 1", got)
	}
}

func TestKeyUsageLabels(t *testing.T) {
	m := New()
	m.ObserveKeyUse("pool-a", "sk-l****", "svc")
	m.ObserveKeyUse("pool-a", "sk-l****", "svc")

	if got := testutil.ToFloat64(m.keyUsage.WithLabelValues("pool-a", "sk-l****", "svc")); got != 2 {
		t.Errorf("key usage count = %v, want 2", got)
	}
}

func TestReloadCounters(t *testing.T) {
	m := New()
	m.ReloadSucceeded(3, 5, 2)
	m.ReloadFailed()
	m.ReloadSucceeded(4, 6, 2)

	if got := testutil.ToFloat64(m.reloadsTotal.WithLabelValues("success")); got != 2 {
		t.Errorf("success reloads = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.reloadsTotal.WithLabelValues("failure")); got != 1 {
		t.Errorf("failed reloads = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.snapshotVersion); got != 4 {
		t.Errorf("snapshot version = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.routesActive); got != 6 {
		t.Errorf("active routes = %v, want 6", got)
	}
}

func TestHandlerExposition(t *testing.T) {
	m := New()
	m.ObserveRequest("GET", "svc", 200, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "gateway_requests_total") {
		t.Error("exposition missing gateway_requests_total")
	}
	if !strings.Contains(body, "gateway_request_duration_seconds") {
		t.Error("exposition missing latency histogram")
	}
}
