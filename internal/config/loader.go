package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
)

// validHTTPMethods contains all valid HTTP method names.
var validHTTPMethods = map[string]bool{
	"GET": true, "HEAD": true, "POST": true, "PUT": true,
	"DELETE": true, "PATCH": true, "OPTIONS": true,
}

// Loader handles configuration loading and parsing.
type Loader struct {
	envPattern *regexp.Regexp
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPattern: regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`),
	}
}

// Load reads and parses a configuration file.
func (l *Loader) Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return l.Parse(data)
}

// Parse parses configuration from YAML bytes, applies defaults, and runs
// semantic validation.
func (l *Loader) Parse(data []byte) (*Config, error) {
	expanded := l.expandEnvVars(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	applyDefaults(cfg)

	if err := l.validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} with environment variable values.
func (l *Loader) expandEnvVars(input string) string {
	return l.envPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := strings.TrimPrefix(strings.TrimSuffix(match, "}"), "${")
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// validate performs semantic validation: route pattern well-formedness,
// target URL validity, cross-references, and key pool usability.
func (l *Loader) validate(cfg *Config) error {
	routeNames := make(map[string]bool, len(cfg.Routes))

	// Routes that are active under the same pattern+method combination are
	// ambiguous; reject them at load time rather than picking one at runtime.
	type patternKey struct {
		path   string
		method string
	}
	active := make(map[patternKey]string)

	for _, route := range cfg.Routes {
		if route.Path == "" {
			return fmt.Errorf("route %q: path is required", route.Name)
		}
		if !strings.HasPrefix(route.Path, "/") {
			return fmt.Errorf("route %q: path must start with /", route.Name)
		}
		if i := strings.Index(route.Path, "*"); i != -1 && i != len(route.Path)-1 {
			return fmt.Errorf("route %q: wildcard is only allowed at the end of the path", route.Name)
		}

		if routeNames[route.Name] {
			return fmt.Errorf("duplicate route name %q", route.Name)
		}
		routeNames[route.Name] = true

		u, err := url.Parse(route.Target)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return fmt.Errorf("route %q: target %q is not an absolute URL", route.Name, route.Target)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("route %q: target scheme must be http or https, got %q", route.Name, u.Scheme)
		}

		for _, m := range route.Methods {
			if !validHTTPMethods[strings.ToUpper(m)] {
				return fmt.Errorf("route %q: invalid HTTP method %q", route.Name, m)
			}
		}

		if route.KeyPool != "" {
			pool, ok := cfg.KeyPools[route.KeyPool]
			if !ok {
				return fmt.Errorf("route %q references unknown key pool %q", route.Name, route.KeyPool)
			}
			if !poolHasEnabledKey(pool) {
				return fmt.Errorf("key pool %q referenced by route %q has no enabled keys", route.KeyPool, route.Name)
			}
		}

		if route.RateLimit.Enabled && route.RateLimit.RPS <= 0 {
			return fmt.Errorf("route %q: rate_limit.rps must be positive", route.Name)
		}
		if route.Retry.Enabled && route.Retry.MaxRetries <= 0 {
			return fmt.Errorf("route %q: retry.max_retries must be positive", route.Name)
		}

		if !route.IsEnabled() {
			continue
		}
		for _, m := range expandMethods(route.Methods) {
			key := patternKey{path: route.Path, method: m}
			if other, dup := active[key]; dup {
				return fmt.Errorf("routes %q and %q are ambiguous: same pattern %q and method %s",
					other, route.Name, route.Path, m)
			}
			active[key] = route.Name
		}
	}

	for name, pool := range cfg.KeyPools {
		switch pool.Strategy {
		case StrategyRoundRobin, StrategyRandom, StrategyWeighted:
		default:
			return fmt.Errorf("key pool %q: unknown strategy %q", name, pool.Strategy)
		}
		if pool.HeaderName != "" && pool.QueryParam != "" {
			return fmt.Errorf("key pool %q: header_name and query_param are mutually exclusive", name)
		}
		for i, k := range pool.Keys {
			if k.Key == "" {
				return fmt.Errorf("key pool %q: key %d has an empty value", name, i)
			}
			if k.WeightValue() < 0 {
				return fmt.Errorf("key pool %q: key %d has a negative weight", name, i)
			}
		}
	}

	serverNames := make(map[string]bool, len(cfg.Servers))
	addrs := make(map[string]string, len(cfg.Servers))
	for _, srv := range cfg.Servers {
		if serverNames[srv.Name] {
			return fmt.Errorf("duplicate server name %q", srv.Name)
		}
		serverNames[srv.Name] = true

		if srv.Port < 1 || srv.Port > 65535 {
			return fmt.Errorf("server %q: invalid port %d", srv.Name, srv.Port)
		}
		if other, dup := addrs[srv.Addr()]; dup {
			return fmt.Errorf("servers %q and %q bind the same address %s", other, srv.Name, srv.Addr())
		}
		addrs[srv.Addr()] = srv.Name

		if srv.TLS.Enabled && (srv.TLS.CertFile == "" || srv.TLS.KeyFile == "") {
			return fmt.Errorf("server %q: tls requires cert_file and key_file", srv.Name)
		}

		for _, rn := range srv.Routes {
			if !routeNames[rn] {
				return fmt.Errorf("server %q references unknown route %q", srv.Name, rn)
			}
		}
	}

	return nil
}

// expandMethods returns the route's method set normalized to upper case, or
// a single wildcard entry when the set is empty (all methods).
func expandMethods(methods []string) []string {
	if len(methods) == 0 {
		return []string{"*"}
	}
	out := make([]string, 0, len(methods))
	seen := make(map[string]bool, len(methods))
	for _, m := range methods {
		u := strings.ToUpper(m)
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	sort.Strings(out)
	return out
}

func poolHasEnabledKey(pool KeyPoolConfig) bool {
	for _, k := range pool.Keys {
		if k.IsEnabled() {
			return true
		}
	}
	return false
}
