package config

import (
	"time"
)

// Strategy selects how a key pool hands out keys.
type Strategy string

const (
	StrategyRoundRobin Strategy = "round_robin"
	StrategyRandom     Strategy = "random"
	StrategyWeighted   Strategy = "weighted"
)

// Config represents the complete gateway configuration.
type Config struct {
	Servers  []ServerConfig            `yaml:"servers"`
	Routes   []RouteConfig             `yaml:"routes"`
	KeyPools map[string]KeyPoolConfig  `yaml:"key_pools"`
	Logging  LoggingConfig             `yaml:"logging"`
	Metrics  MetricsConfig             `yaml:"metrics"`
	Health   HealthConfig              `yaml:"health"`
}

// ServerConfig defines one listening binding. Multiple servers may share
// routes; each owns an independent socket.
type ServerConfig struct {
	Name    string        `yaml:"name"`
	Host    string        `yaml:"host"`
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
	Routes  []string      `yaml:"routes"` // route names; empty = all enabled routes
	TLS     TLSConfig     `yaml:"tls"`

	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
}

// Addr returns the host:port address for this server.
func (s ServerConfig) Addr() string {
	return joinHostPort(s.Host, s.Port)
}

// TLSConfig defines TLS termination settings for a server binding.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// RouteConfig defines a route from an inbound path/method pattern to an
// upstream target.
type RouteConfig struct {
	Name        string            `yaml:"name"`
	Path        string            `yaml:"path"`   // literal, or literal prefix ending in /*
	Target      string            `yaml:"target"` // absolute http(s) URL
	Methods     []string          `yaml:"methods"`
	StripPrefix bool              `yaml:"strip_prefix"`
	KeyPool     string            `yaml:"key_pool"`
	Headers     map[string]string `yaml:"headers"`
	Description string            `yaml:"description"`
	Enabled     *bool             `yaml:"enabled"` // default true

	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// IsEnabled reports whether the route is active (enabled defaults to true).
func (r RouteConfig) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}

// KeyPoolConfig defines a named pool of upstream API keys.
type KeyPoolConfig struct {
	Strategy   Strategy    `yaml:"strategy"`
	HeaderName string      `yaml:"header_name"` // default Authorization
	QueryParam string      `yaml:"query_param"` // mutually exclusive with header_name
	Keys       []KeyConfig `yaml:"keys"`
}

// KeyConfig defines one API key entry.
type KeyConfig struct {
	Key     string `yaml:"key"`
	Weight  *int   `yaml:"weight"`  // default 1; explicit 0 is never selected by weighted pools
	Enabled *bool  `yaml:"enabled"` // default true
	ID      string `yaml:"id"`      // metrics identifier; default masked key value
}

// WeightValue returns the configured weight, defaulting to 1 when unset.
func (k KeyConfig) WeightValue() int {
	if k.Weight == nil {
		return 1
	}
	return *k.Weight
}

// IsEnabled reports whether the key is active (enabled defaults to true).
func (k KeyConfig) IsEnabled() bool {
	return k.Enabled == nil || *k.Enabled
}

// RateLimitConfig defines a per-route token-bucket limit.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
}

// RetryConfig defines the explicit per-route retry option. Retries are never
// applied unless enabled here.
type RetryConfig struct {
	Enabled        bool          `yaml:"enabled"`
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// CircuitBreakerConfig defines an optional per-route circuit breaker.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// LoggingConfig defines logger settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// MetricsConfig defines the metrics endpoint settings.
type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"` // default true
	Path    string `yaml:"path"`    // default /metrics
}

// IsEnabled reports whether the metrics endpoint is exposed.
func (m MetricsConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// HealthConfig defines the health endpoint settings.
type HealthConfig struct {
	Enabled *bool  `yaml:"enabled"` // default true
	Path    string `yaml:"path"`    // default /health
}

// IsEnabled reports whether the health endpoint is exposed.
func (h HealthConfig) IsEnabled() bool {
	return h.Enabled == nil || *h.Enabled
}
