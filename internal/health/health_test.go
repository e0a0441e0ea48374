package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthEndpoint(t *testing.T) {
	h := NewHandler("1.2.3", func() uint64 { return 7 })

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}

	var st Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Status != "healthy" {
		t.Errorf("status field = %q", st.Status)
	}
	if st.Version != "1.2.3" {
		t.Errorf("version = %q", st.Version)
	}
	if st.SnapshotVersion != 7 {
		t.Errorf("snapshot version = %d", st.SnapshotVersion)
	}
	if st.UptimeSeconds < 0 {
		t.Errorf("uptime = %d", st.UptimeSeconds)
	}
}

func TestSnapshotVersionTracksCallback(t *testing.T) {
	version := uint64(1)
	h := NewHandler("dev", func() uint64 { return version })

	for _, want := range []uint64{1, 2, 5} {
		version = want
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		var st Status
		if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if st.SnapshotVersion != want {
			t.Errorf("snapshot version = %d, want %d", st.SnapshotVersion, want)
		}
	}
}
