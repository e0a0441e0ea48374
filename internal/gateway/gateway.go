// Package gateway wires routing, key selection and forwarding into the
// serving pipeline and owns the live configuration snapshot.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/npv2k1/open-gateway/internal/circuitbreaker"
	"github.com/npv2k1/open-gateway/internal/config"
	"github.com/npv2k1/open-gateway/internal/errors"
	"github.com/npv2k1/open-gateway/internal/health"
	"github.com/npv2k1/open-gateway/internal/keypool"
	"github.com/npv2k1/open-gateway/internal/listener"
	"github.com/npv2k1/open-gateway/internal/logging"
	"github.com/npv2k1/open-gateway/internal/metrics"
	"github.com/npv2k1/open-gateway/internal/middleware"
	"github.com/npv2k1/open-gateway/internal/proxy"
)

// statusClientClosed mirrors nginx's 499: the client went away before a
// response could be written.
const statusClientClosed = 499

// Gateway serves requests against an atomically swappable snapshot.
type Gateway struct {
	state atomic.Pointer[Snapshot]

	reloadMu  sync.Mutex
	metrics   *metrics.Metrics
	forwarder *proxy.Forwarder
	health    *health.Handler
	manager   *listener.Manager
}

// Options configures gateway construction. Zero values get working defaults.
type Options struct {
	Metrics   *metrics.Metrics
	Forwarder *proxy.Forwarder
	Version   string // build version reported by the health endpoint
}

// New builds the initial snapshot from an already-validated configuration.
func New(cfg *config.Config, opts Options) (*Gateway, error) {
	g := &Gateway{
		metrics:   opts.Metrics,
		forwarder: opts.Forwarder,
		manager:   listener.NewManager(),
	}
	if g.metrics == nil {
		g.metrics = metrics.New()
	}
	if g.forwarder == nil {
		g.forwarder = proxy.New(proxy.Config{})
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	g.health = health.NewHandler(version, g.SnapshotVersion)

	snap, err := buildSnapshot(cfg, 1)
	if err != nil {
		return nil, err
	}
	g.state.Store(snap)
	g.metrics.SnapshotLoaded(snap.Version, snap.RouteCount(), snap.PoolCount())
	return g, nil
}

// Snapshot returns the currently serving snapshot.
func (g *Gateway) Snapshot() *Snapshot {
	return g.state.Load()
}

// SnapshotVersion returns the version of the currently serving snapshot.
func (g *Gateway) SnapshotVersion() uint64 {
	return g.state.Load().Version
}

// Reload builds a snapshot from the candidate configuration and swaps it in.
// On failure the previous snapshot keeps serving untouched.
func (g *Gateway) Reload(cfg *config.Config) error {
	g.reloadMu.Lock()
	defer g.reloadMu.Unlock()

	version := g.state.Load().Version + 1
	snap, err := buildSnapshot(cfg, version)
	if err != nil {
		g.metrics.ReloadFailed()
		logging.Error("Config reload rejected", zap.Error(err))
		return err
	}

	g.state.Store(snap)
	g.metrics.ReloadSucceeded(snap.Version, snap.RouteCount(), snap.PoolCount())
	logging.Info("Config reloaded",
		zap.Uint64("snapshot_version", snap.Version),
		zap.Int("routes", snap.RouteCount()),
		zap.Int("key_pools", snap.PoolCount()),
	)
	return nil
}

// Handler builds the serving pipeline for one server binding.
func (g *Gateway) Handler(serverName string) http.Handler {
	// The skip predicate reads the live snapshot so a reload that moves the
	// metrics or health paths takes effect without rebuilding the chain.
	skip := func(path string) bool {
		cfg := g.state.Load().Config
		if cfg.Metrics.IsEnabled() && path == cfg.Metrics.Path {
			return true
		}
		return cfg.Health.IsEnabled() && path == cfg.Health.Path
	}

	chain := middleware.NewChain(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.AccessLog(skip),
	)
	return chain.Then(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.serve(serverName, w, r)
	}))
}

// serve dispatches one request against the current snapshot. The snapshot is
// read once; a concurrent reload never affects a request in flight.
func (g *Gateway) serve(serverName string, w http.ResponseWriter, r *http.Request) {
	snap := g.state.Load()

	if snap.Config.Health.IsEnabled() && r.URL.Path == snap.Config.Health.Path {
		g.health.ServeHTTP(w, r)
		return
	}
	if snap.Config.Metrics.IsEnabled() && r.URL.Path == snap.Config.Metrics.Path {
		g.metrics.Handler().ServeHTTP(w, r)
		return
	}

	start := time.Now()
	sr := middleware.NewStatusRecorder(w)
	routeName := "unmatched"
	defer func() {
		status := sr.Status()
		if status == 0 {
			status = statusClientClosed
		}
		g.metrics.ObserveRequest(r.Method, routeName, status, time.Since(start))
	}()

	reqID := middleware.RequestIDFromContext(r.Context())

	ss := snap.servers[serverName]
	if ss == nil {
		errors.ErrNotFound.WithRequestID(reqID).WriteJSON(sr)
		return
	}

	route := ss.table.Match(r.Method, r.URL.Path)
	if route == nil {
		errors.ErrNotFound.WithRequestID(reqID).WriteJSON(sr)
		return
	}
	routeName = route.Name
	rt := snap.runtimes[route.Name]

	if rt.limiter != nil && !rt.limiter.Allow() {
		errors.ErrTooManyRequests.WithRequestID(reqID).WriteJSON(sr)
		return
	}

	var inj *proxy.Injection
	if route.PoolName != "" {
		if rt.pool == nil {
			errors.ErrServiceUnavailable.WithDetails("key pool misconfigured").WithRequestID(reqID).WriteJSON(sr)
			return
		}
		key, err := rt.pool.Select()
		if err != nil {
			if err == keypool.ErrKeyExhausted {
				errors.ErrServiceUnavailable.WithDetails("no enabled keys in pool").WithRequestID(reqID).WriteJSON(sr)
			} else {
				errors.ErrServiceUnavailable.WithRequestID(reqID).WriteJSON(sr)
			}
			return
		}
		g.metrics.ObserveKeyUse(route.PoolName, key.ID, route.Name)
		inj = &proxy.Injection{
			HeaderName: rt.pool.HeaderName,
			QueryParam: rt.pool.QueryParam,
			Value:      key.Value,
		}
	}

	ctx := r.Context()
	if timeout := ss.cfg.Timeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	proxyReq := g.forwarder.CreateProxyRequest(ctx, r, route, inj)
	exchange := func() (*http.Response, error) {
		if rt.retry != nil {
			return rt.retry.Execute(ctx, g.forwarder, proxyReq)
		}
		return g.forwarder.RoundTrip(proxyReq)
	}

	var resp *http.Response
	var err error
	if rt.breaker != nil {
		resp, err = rt.breaker.Do(exchange)
	} else {
		resp, err = exchange()
	}
	if err != nil {
		if circuitbreaker.IsOpen(err) {
			errors.ErrServiceUnavailable.WithDetails("circuit breaker open").WithRequestID(reqID).WriteJSON(sr)
			return
		}
		g.forwarder.WriteError(sr, r, err)
		return
	}
	g.forwarder.WriteResponse(sr, resp)
}

// Run starts one listener per configured server and blocks until the context
// is cancelled. A binding that fails to start is logged and abandoned
// without taking down the others; Run fails only if no binding starts.
func (g *Gateway) Run(ctx context.Context) error {
	snap := g.state.Load()

	eg, ctx := errgroup.WithContext(ctx)
	for _, sc := range snap.Config.Servers {
		cfg := listener.HTTPListenerConfig{
			ID:                sc.Name,
			Address:           sc.Addr(),
			Handler:           g.Handler(sc.Name),
			ReadTimeout:       sc.ReadTimeout,
			WriteTimeout:      sc.WriteTimeout,
			IdleTimeout:       sc.IdleTimeout,
			ReadHeaderTimeout: sc.ReadHeaderTimeout,
		}
		if sc.TLS.Enabled {
			cfg.TLSCertFile = sc.TLS.CertFile
			cfg.TLSKeyFile = sc.TLS.KeyFile
		}

		l, err := listener.NewHTTPListener(cfg)
		if err != nil {
			logging.Error("Listener setup failed",
				zap.String("server", sc.Name),
				zap.Error(err),
			)
			continue
		}
		if err := g.manager.Add(l); err != nil {
			logging.Error("Listener registration failed",
				zap.String("server", sc.Name),
				zap.Error(err),
			)
			continue
		}

		eg.Go(func() error {
			logging.Info("Listener starting",
				zap.String("server", l.ID()),
				zap.String("addr", l.Addr()),
			)
			if err := l.Start(ctx); err != nil {
				logging.Error("Listener failed",
					zap.String("server", l.ID()),
					zap.Error(err),
				)
			}
			return nil
		})
	}

	if g.manager.Count() == 0 {
		return fmt.Errorf("no listeners could be started")
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := g.manager.StopAll(shutdownCtx); err != nil {
		logging.Error("Shutdown error", zap.Error(err))
	}
	return eg.Wait()
}
