// Package proxy forwards matched requests to their upstream targets.
package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	gwerrors "github.com/npv2k1/open-gateway/internal/errors"
	"github.com/npv2k1/open-gateway/internal/router"
)

// Injection describes where the selected credential goes on the outbound
// request. Exactly one of HeaderName or QueryParam is set.
type Injection struct {
	HeaderName string
	QueryParam string
	Value      string
}

// Forwarder proxies requests to upstream services over a shared transport.
type Forwarder struct {
	transport     http.RoundTripper
	flushInterval time.Duration
}

// Config holds forwarder options.
type Config struct {
	Transport     http.RoundTripper
	FlushInterval time.Duration
}

// New creates a forwarder. A nil transport falls back to the default.
func New(cfg Config) *Forwarder {
	transport := cfg.Transport
	if transport == nil {
		transport = DefaultTransport()
	}
	flushInterval := cfg.FlushInterval
	if flushInterval == 0 {
		flushInterval = -1 // don't flush
	}
	return &Forwarder{
		transport:     transport,
		flushInterval: flushInterval,
	}
}

// Forward sends the request upstream and streams the response back. Errors
// from the upstream exchange are written as gateway error responses; if the
// client has already gone away nothing is written.
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, route *router.Route, inj *Injection) {
	proxyReq := f.createProxyRequest(r.Context(), r, route, inj)

	resp, err := f.transport.RoundTrip(proxyReq)
	if err != nil {
		f.handleError(w, r, err)
		return
	}
	defer resp.Body.Close()

	f.copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	f.copyBody(w, resp.Body)
}

// RoundTrip exposes the forwarder's transport for wrappers that need to run
// the exchange themselves.
func (f *Forwarder) RoundTrip(req *http.Request) (*http.Response, error) {
	return f.transport.RoundTrip(req)
}

// CreateProxyRequest builds the outbound request without sending it, for
// callers that manage the exchange (retry, response streaming) externally.
func (f *Forwarder) CreateProxyRequest(ctx context.Context, r *http.Request, route *router.Route, inj *Injection) *http.Request {
	return f.createProxyRequest(ctx, r, route, inj)
}

// WriteResponse streams an upstream response to the client.
func (f *Forwarder) WriteResponse(w http.ResponseWriter, resp *http.Response) {
	defer resp.Body.Close()
	f.copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	f.copyBody(w, resp.Body)
}

// WriteError maps an upstream exchange error to a gateway response.
func (f *Forwarder) WriteError(w http.ResponseWriter, r *http.Request, err error) {
	f.handleError(w, r, err)
}

// createProxyRequest builds the request to send upstream. The request is
// constructed directly to avoid a URL.String() + url.Parse() round-trip.
func (f *Forwarder) createProxyRequest(ctx context.Context, r *http.Request, route *router.Route, inj *Injection) *http.Request {
	target := route.Target
	targetURL := *target
	targetURL.Path = singleJoiningSlash(target.Path, route.ForwardPath(r.URL.Path))
	targetURL.RawQuery = r.URL.RawQuery

	if inj != nil && inj.QueryParam != "" {
		q := targetURL.Query()
		q.Set(inj.QueryParam, inj.Value)
		targetURL.RawQuery = q.Encode()
	}

	proxyReq := (&http.Request{
		Method:        r.Method,
		URL:           &targetURL,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Body:          r.Body,
		ContentLength: r.ContentLength,
		Host:          target.Host,
	}).WithContext(ctx)

	proxyReq.Header = make(http.Header, len(r.Header)+3)
	for k, vv := range r.Header {
		proxyReq.Header[k] = vv
	}

	if clientIP := extractClientIP(r); clientIP != "" {
		if prior := proxyReq.Header.Get("X-Forwarded-For"); prior != "" {
			proxyReq.Header.Set("X-Forwarded-For", prior+", "+clientIP)
		} else {
			proxyReq.Header.Set("X-Forwarded-For", clientIP)
		}
	}

	if r.TLS != nil {
		proxyReq.Header.Set("X-Forwarded-Proto", "https")
	} else {
		proxyReq.Header.Set("X-Forwarded-Proto", "http")
	}

	proxyReq.Header.Set("X-Forwarded-Host", r.Host)

	removeHopHeaders(proxyReq.Header)

	// Route-level header overrides win over client-supplied values
	for k, v := range route.Headers {
		proxyReq.Header.Set(k, v)
	}

	if inj != nil && inj.HeaderName != "" {
		proxyReq.Header.Set(inj.HeaderName, inj.Value)
	}

	return proxyReq
}

func (f *Forwarder) handleError(w http.ResponseWriter, r *http.Request, err error) {
	// The client went away; there is nobody left to answer.
	if r.Context().Err() == context.Canceled {
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		gwerrors.ErrGatewayTimeout.WriteJSON(w)
		return
	}

	gwerrors.ErrBadGateway.WithDetails(err.Error()).WriteJSON(w)
}

func (f *Forwarder) copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		dst[k] = append(dst[k][:0:0], vv...)
	}
	removeHopHeaders(dst)
}

func (f *Forwarder) copyBody(w http.ResponseWriter, body io.Reader) {
	if f.flushInterval > 0 {
		if flusher, ok := w.(http.Flusher); ok {
			for {
				_, err := io.CopyN(w, body, 32*1024)
				if err != nil {
					break
				}
				flusher.Flush()
			}
			return
		}
	}

	io.Copy(w, body)
}

// Hop-by-hop headers that should be removed
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

func removeHopHeaders(header http.Header) {
	for _, h := range hopHeaders {
		header.Del(h)
	}
}

func extractClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// singleJoiningSlash joins two URL paths with a single slash.
func singleJoiningSlash(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}
