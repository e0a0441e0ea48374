package router

import (
	"testing"

	"github.com/npv2k1/open-gateway/internal/config"
)

func mustRoute(t *testing.T, rc config.RouteConfig, idx int) *Route {
	t.Helper()
	route, err := NewRoute(rc, idx)
	if err != nil {
		t.Fatalf("NewRoute failed: %v", err)
	}
	return route
}

func TestPatternMatching(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"/api/*", "/api/users", true},
		{"/api/*", "/api/users/1", true},
		{"/api/*", "/api", true},
		{"/api/*", "/apiary", false},
		{"/api/*", "/other", false},
		{"/api", "/api", true},
		{"/api", "/api/users", false},
		{"/", "/", true},
		{"/", "/x", false},
		{"/*", "/anything/at/all", true},
	}

	for _, tt := range tests {
		p := CompilePattern(tt.pattern)
		if got := p.Matches(tt.path); got != tt.want {
			t.Errorf("CompilePattern(%q).Matches(%q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
		}
	}
}

func TestPatternStrip(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    string
	}{
		{"/api/*", "/api/users", "/users"},
		{"/api/*", "/api/users/1", "/users/1"},
		{"/api/*", "/api", "/"},
		{"/svc/*", "/svc/items", "/items"},
		{"/api", "/api", "/"},
	}

	for _, tt := range tests {
		p := CompilePattern(tt.pattern)
		if got := p.Strip(tt.path); got != tt.want {
			t.Errorf("CompilePattern(%q).Strip(%q) = %q, want %q", tt.pattern, tt.path, got, tt.want)
		}
	}
}

func TestMethodFiltering(t *testing.T) {
	route := mustRoute(t, config.RouteConfig{
		Name:    "r",
		Path:    "/api/*",
		Target:  "http://localhost:8081",
		Methods: []string{"GET", "post"},
	}, 0)

	table := NewTable([]*Route{route})

	if table.Match("GET", "/api/users") == nil {
		t.Error("GET should match")
	}
	if table.Match("POST", "/api/users") == nil {
		t.Error("POST should match (methods are case-normalized)")
	}
	if table.Match("DELETE", "/api/users") != nil {
		t.Error("DELETE should not match")
	}
}

func TestLongestPrefixWins(t *testing.T) {
	wide := mustRoute(t, config.RouteConfig{
		Name: "wide", Path: "/api/*", Target: "http://localhost:8081",
	}, 0)
	narrow := mustRoute(t, config.RouteConfig{
		Name: "narrow", Path: "/api/v1/*", Target: "http://localhost:8082",
	}, 1)

	table := NewTable([]*Route{wide, narrow})

	if got := table.Match("GET", "/api/v1/x"); got == nil || got.Name != "narrow" {
		t.Errorf("expected narrow route for /api/v1/x, got %v", got)
	}
	if got := table.Match("GET", "/api/other"); got == nil || got.Name != "wide" {
		t.Errorf("expected wide route for /api/other, got %v", got)
	}
}

func TestExactBeatsWildcardOfSamePrefix(t *testing.T) {
	wildcard := mustRoute(t, config.RouteConfig{
		Name: "wild", Path: "/api/*", Target: "http://localhost:8081",
	}, 0)
	exact := mustRoute(t, config.RouteConfig{
		Name: "exact", Path: "/api/users", Target: "http://localhost:8082",
	}, 1)

	table := NewTable([]*Route{wildcard, exact})

	if got := table.Match("GET", "/api/users"); got == nil || got.Name != "exact" {
		t.Errorf("expected exact route, got %v", got)
	}
	if got := table.Match("GET", "/api/users/1"); got == nil || got.Name != "wild" {
		t.Errorf("expected wildcard route for subpath, got %v", got)
	}
}

func TestDeclarationOrderBreaksTies(t *testing.T) {
	// Same prefix length, different methods on one of them: both match GET
	first := mustRoute(t, config.RouteConfig{
		Name: "first", Path: "/api/*", Target: "http://localhost:8081", Methods: []string{"GET"},
	}, 0)
	second := mustRoute(t, config.RouteConfig{
		Name: "second", Path: "/api/*", Target: "http://localhost:8082",
	}, 1)

	table := NewTable([]*Route{second, first})

	if got := table.Match("GET", "/api/x"); got == nil || got.Name != "first" {
		t.Errorf("expected earlier-declared route, got %v", got)
	}
	if got := table.Match("POST", "/api/x"); got == nil || got.Name != "second" {
		t.Errorf("expected fallback route for POST, got %v", got)
	}
}

func TestNoMatch(t *testing.T) {
	route := mustRoute(t, config.RouteConfig{
		Name: "r", Path: "/api/*", Target: "http://localhost:8081",
	}, 0)
	table := NewTable([]*Route{route})

	if got := table.Match("GET", "/other"); got != nil {
		t.Errorf("expected no match, got %v", got)
	}
}

func TestForwardPath(t *testing.T) {
	stripped := mustRoute(t, config.RouteConfig{
		Name: "s", Path: "/svc/*", Target: "http://localhost:9001", StripPrefix: true,
	}, 0)
	unstripped := mustRoute(t, config.RouteConfig{
		Name: "u", Path: "/svc/*", Target: "http://localhost:9001",
	}, 1)

	if got := stripped.ForwardPath("/svc/items"); got != "/items" {
		t.Errorf("stripped forward path = %q, want /items", got)
	}
	if got := unstripped.ForwardPath("/svc/items"); got != "/svc/items" {
		t.Errorf("unstripped forward path = %q, want /svc/items", got)
	}
}
