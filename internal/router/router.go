package router

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/npv2k1/open-gateway/internal/config"
)

// Route is a compiled route bound into a Table. Immutable after build.
type Route struct {
	Name        string
	Target      *url.URL
	StripPrefix bool
	Methods     map[string]bool // nil = all methods allowed
	PoolName    string
	Headers     map[string]string

	RateLimit      config.RateLimitConfig
	Retry          config.RetryConfig
	CircuitBreaker config.CircuitBreakerConfig

	pattern   Pattern
	configIdx int // declaration order for tie-breaking
}

// NewRoute compiles a route from configuration. idx is the declaration
// position used to break specificity ties.
func NewRoute(rc config.RouteConfig, idx int) (*Route, error) {
	target, err := url.Parse(rc.Target)
	if err != nil {
		return nil, fmt.Errorf("route %q: invalid target: %w", rc.Name, err)
	}

	route := &Route{
		Name:           rc.Name,
		Target:         target,
		StripPrefix:    rc.StripPrefix,
		PoolName:       rc.KeyPool,
		Headers:        rc.Headers,
		RateLimit:      rc.RateLimit,
		Retry:          rc.Retry,
		CircuitBreaker: rc.CircuitBreaker,
		pattern:        CompilePattern(rc.Path),
		configIdx:      idx,
	}

	if len(rc.Methods) > 0 {
		route.Methods = make(map[string]bool, len(rc.Methods))
		for _, m := range rc.Methods {
			route.Methods[strings.ToUpper(m)] = true
		}
	}

	return route, nil
}

// Pattern returns the route's compiled pattern.
func (r *Route) Pattern() Pattern {
	return r.pattern
}

// matches reports whether the route accepts the given method and path.
func (r *Route) matches(method, path string) bool {
	if r.Methods != nil && !r.Methods[method] {
		return false
	}
	return r.pattern.Matches(path)
}

// ForwardPath returns the path to send upstream: the stripped remainder when
// strip_prefix is set, otherwise the original path.
func (r *Route) ForwardPath(path string) string {
	if r.StripPrefix {
		return r.pattern.Strip(path)
	}
	return path
}

// Table is an immutable set of routes for one server binding, ordered so the
// first match is the best match: longest literal prefix first, declaration
// order breaking ties.
type Table struct {
	routes []*Route
}

// NewTable builds a table from compiled routes.
func NewTable(routes []*Route) *Table {
	sorted := make([]*Route, len(routes))
	copy(sorted, routes)
	sort.SliceStable(sorted, func(i, j int) bool {
		li, lj := sorted[i].pattern.PrefixLen(), sorted[j].pattern.PrefixLen()
		if li != lj {
			return li > lj
		}
		return sorted[i].configIdx < sorted[j].configIdx
	})
	return &Table{routes: sorted}
}

// Match returns the best-matching route for the request, or nil.
func (t *Table) Match(method, path string) *Route {
	for _, route := range t.routes {
		if route.matches(method, path) {
			return route
		}
	}
	return nil
}

// Routes returns the table's routes in match order.
func (t *Table) Routes() []*Route {
	return t.routes
}

// Len returns the number of routes in the table.
func (t *Table) Len() int {
	return len(t.routes)
}
