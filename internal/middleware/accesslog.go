package middleware

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/npv2k1/open-gateway/internal/logging"
)

// AccessLog writes one structured log line per completed request.
// skip suppresses logging for noisy endpoints like metrics scrapes. It is
// evaluated on every request, so callers may back it with mutable state.
func AccessLog(skip func(path string) bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip != nil && skip(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			sr := NewStatusRecorder(w)
			next.ServeHTTP(sr, r)

			logging.Info("request",
				zap.String("request_id", RequestIDFromContext(r.Context())),
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", sr.Status()),
				zap.Int64("bytes", sr.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
