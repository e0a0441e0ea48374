package gateway

import (
	"fmt"

	"golang.org/x/time/rate"

	"github.com/npv2k1/open-gateway/internal/circuitbreaker"
	"github.com/npv2k1/open-gateway/internal/config"
	"github.com/npv2k1/open-gateway/internal/keypool"
	"github.com/npv2k1/open-gateway/internal/retry"
	"github.com/npv2k1/open-gateway/internal/router"
)

// routeRuntime bundles a compiled route with its per-route state. Limiters
// and breakers are shared across all server bindings exposing the route.
type routeRuntime struct {
	route   *router.Route
	pool    *keypool.Pool
	limiter *rate.Limiter
	retry   *retry.Policy
	breaker *circuitbreaker.Breaker
}

// serverState is one binding's view of the snapshot.
type serverState struct {
	cfg   config.ServerConfig
	table *router.Table
}

// Snapshot is an immutable, fully-built view of one configuration version.
// Requests read exactly one snapshot from start to finish; a reload swaps
// the pointer and never mutates a snapshot in place.
type Snapshot struct {
	Version uint64
	Config  *config.Config

	pools    map[string]*keypool.Pool
	runtimes map[string]*routeRuntime
	servers  map[string]*serverState
}

// RouteCount returns the number of enabled routes in the snapshot.
func (s *Snapshot) RouteCount() int {
	return len(s.runtimes)
}

// PoolCount returns the number of key pools in the snapshot.
func (s *Snapshot) PoolCount() int {
	return len(s.pools)
}

// buildSnapshot compiles a validated configuration into runnable state.
// Pool cursors and breaker counters start fresh; nothing is carried over
// from the previous snapshot.
func buildSnapshot(cfg *config.Config, version uint64) (*Snapshot, error) {
	snap := &Snapshot{
		Version:  version,
		Config:   cfg,
		pools:    make(map[string]*keypool.Pool, len(cfg.KeyPools)),
		runtimes: make(map[string]*routeRuntime),
		servers:  make(map[string]*serverState, len(cfg.Servers)),
	}

	for name, pc := range cfg.KeyPools {
		snap.pools[name] = keypool.New(name, pc)
	}

	routesByName := make(map[string]*router.Route)
	for idx, rc := range cfg.Routes {
		if !rc.IsEnabled() {
			continue
		}
		route, err := router.NewRoute(rc, idx)
		if err != nil {
			return nil, err
		}
		routesByName[route.Name] = route

		rt := &routeRuntime{route: route}
		if route.PoolName != "" {
			pool, ok := snap.pools[route.PoolName]
			if !ok {
				return nil, fmt.Errorf("route %q references unknown key pool %q", route.Name, route.PoolName)
			}
			rt.pool = pool
		}
		if route.RateLimit.Enabled {
			burst := route.RateLimit.Burst
			if burst <= 0 {
				burst = int(route.RateLimit.RPS)
			}
			rt.limiter = rate.NewLimiter(rate.Limit(route.RateLimit.RPS), burst)
		}
		if route.Retry.Enabled {
			rt.retry = retry.NewPolicy(route.Retry)
		}
		if route.CircuitBreaker.Enabled {
			rt.breaker = circuitbreaker.New(route.Name, route.CircuitBreaker)
		}
		snap.runtimes[route.Name] = rt
	}

	for _, sc := range cfg.Servers {
		var routes []*router.Route
		if len(sc.Routes) == 0 {
			for _, r := range routesByName {
				routes = append(routes, r)
			}
		} else {
			for _, name := range sc.Routes {
				r, ok := routesByName[name]
				if !ok {
					// Disabled routes may still be listed on a server
					if _, declared := findRoute(cfg.Routes, name); declared {
						continue
					}
					return nil, fmt.Errorf("server %q references unknown route %q", sc.Name, name)
				}
				routes = append(routes, r)
			}
		}
		snap.servers[sc.Name] = &serverState{
			cfg:   sc,
			table: router.NewTable(routes),
		}
	}

	return snap, nil
}

func findRoute(routes []config.RouteConfig, name string) (config.RouteConfig, bool) {
	for _, rc := range routes {
		if rc.Name == name {
			return rc, true
		}
	}
	return config.RouteConfig{}, false
}
