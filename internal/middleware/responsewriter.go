package middleware

import (
	"bufio"
	"net"
	"net/http"
)

// StatusRecorder captures the status code and bytes written so outer layers
// can observe the response after the handler runs.
type StatusRecorder struct {
	http.ResponseWriter
	status     int
	bytes      int64
	headerSent bool
}

func NewStatusRecorder(w http.ResponseWriter) *StatusRecorder {
	return &StatusRecorder{ResponseWriter: w}
}

func (sr *StatusRecorder) WriteHeader(status int) {
	if !sr.headerSent {
		sr.status = status
		sr.headerSent = true
	}
	sr.ResponseWriter.WriteHeader(status)
}

func (sr *StatusRecorder) Write(p []byte) (int, error) {
	if !sr.headerSent {
		sr.status = http.StatusOK
		sr.headerSent = true
	}
	n, err := sr.ResponseWriter.Write(p)
	sr.bytes += int64(n)
	return n, err
}

// Status returns the response status, or 0 if nothing was written.
func (sr *StatusRecorder) Status() int {
	return sr.status
}

func (sr *StatusRecorder) BytesWritten() int64 {
	return sr.bytes
}

// Flush forwards to the underlying writer to keep streaming working.
func (sr *StatusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack forwards to the underlying writer for upgrade support.
func (sr *StatusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, http.ErrNotSupported
}
