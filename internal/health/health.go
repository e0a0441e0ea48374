// Package health serves the gateway liveness endpoint.
package health

import (
	"encoding/json"
	"net/http"
	"time"
)

// Status is the response body of the health endpoint.
type Status struct {
	Status          string `json:"status"`
	Version         string `json:"version"`
	SnapshotVersion uint64 `json:"snapshot_version"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
}

// Handler reports gateway liveness. The snapshot version is read through a
// callback so the handler always reflects the currently serving snapshot.
type Handler struct {
	version         string
	started         time.Time
	snapshotVersion func() uint64
}

func NewHandler(version string, snapshotVersion func() uint64) *Handler {
	return &Handler{
		version:         version,
		started:         time.Now(),
		snapshotVersion: snapshotVersion,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	st := Status{
		Status:          "healthy",
		Version:         h.version,
		SnapshotVersion: h.snapshotVersion(),
		UptimeSeconds:   int64(time.Since(h.started).Seconds()),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(st)
}
