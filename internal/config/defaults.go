package config

import (
	"net"
	"strconv"
	"time"
)

const (
	// DefaultHeaderName is used when a pool configures neither a header
	// nor a query parameter name.
	DefaultHeaderName = "Authorization"

	defaultHost        = "0.0.0.0"
	defaultPort        = 8080
	defaultTimeout     = 30 * time.Second
	defaultMetricsPath = "/metrics"
	defaultHealthPath  = "/health"
	defaultLogLevel    = "info"

	// Headroom added on top of the proxy timeout when deriving the
	// server write timeout.
	writeTimeoutHeadroom = 10 * time.Second
)

// DefaultConfig returns a configuration with all defaults applied and no
// servers, routes, or pools.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{Level: defaultLogLevel},
		Metrics: MetricsConfig{Path: defaultMetricsPath},
		Health:  HealthConfig{Path: defaultHealthPath},
	}
}

// applyDefaults fills zero values after unmarshal.
func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaultLogLevel
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = defaultMetricsPath
	}
	if cfg.Health.Path == "" {
		cfg.Health.Path = defaultHealthPath
	}

	if len(cfg.Servers) == 0 {
		cfg.Servers = []ServerConfig{{}}
	}
	for i := range cfg.Servers {
		s := &cfg.Servers[i]
		if s.Name == "" {
			s.Name = "server-" + strconv.Itoa(i)
		}
		if s.Host == "" {
			s.Host = defaultHost
		}
		if s.Port == 0 {
			s.Port = defaultPort
		}
		if s.Timeout == 0 {
			s.Timeout = defaultTimeout
		}
		// The write timeout must outlast the proxy timeout, or slow upstream
		// responses get cut off before the deadline error can be written.
		if s.WriteTimeout == 0 {
			s.WriteTimeout = s.Timeout + writeTimeoutHeadroom
		}
	}

	for i := range cfg.Routes {
		r := &cfg.Routes[i]
		if r.Name == "" {
			r.Name = "route-" + strconv.Itoa(i)
		}
	}

	for name, pool := range cfg.KeyPools {
		if pool.Strategy == "" {
			pool.Strategy = StrategyRoundRobin
		}
		if pool.HeaderName == "" && pool.QueryParam == "" {
			pool.HeaderName = DefaultHeaderName
		}
		cfg.KeyPools[name] = pool
	}
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
