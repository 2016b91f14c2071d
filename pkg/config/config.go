// Package config provides the configuration of an akera connector instance.
//
// The configuration is organized into logical sections:
//   - Connection: where the application server is and how to log in
//   - Pool: pool size, wait timeout and eviction thresholds
//   - Discovery: metadata cache behaviour
//   - Observability: debug logging, metrics and tracing
//
// A configuration can come from a YAML file (Load), from the ORM options
// object (FromOptions) or from a viper instance bound to flags and
// environment variables (FromViper).
//
// Example usage:
//
//	cfg := config.NewConnectorConfig("sports")
//	cfg.Connection.Database = "sports2000"
//	cfg.Pool.ConnectPoolSize = 4
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"net"
	"strconv"
	"time"

	"github.com/ajitpratap0/akera-connector/pkg/errors"
)

// Defaults applied by NewConnectorConfig
const (
	DefaultHost           = "localhost"
	DefaultPort           = 3000
	DefaultBackend        = "memory"
	DefaultHighWaterRatio = 2.0
	DefaultMinAvailable   = 1
)

// ConnectorConfig is the configuration of one connector instance
type ConnectorConfig struct {
	// Name identifies the connector instance in logs and metrics
	Name string `yaml:"name" json:"name"`
	// Backend selects the registered backend that reaches the server
	Backend string `yaml:"backend" json:"backend"`

	Connection    ConnectionConfig    `yaml:"connection" json:"connection"`
	Pool          PoolConfig          `yaml:"pool" json:"pool"`
	Discovery     DiscoveryConfig     `yaml:"discovery" json:"discovery"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

// ConnectionConfig describes how to reach the application server
type ConnectionConfig struct {
	Host   string `yaml:"host" json:"host"`
	Port   int    `yaml:"port" json:"port"`
	UseSSL bool   `yaml:"use_ssl" json:"use_ssl"`
	// Database is selected on every new connection when set
	Database string `yaml:"database" json:"database"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password" json:"password"`
}

// Address returns host:port
func (c ConnectionConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// PoolConfig contains the connection pool settings
type PoolConfig struct {
	// ConnectPoolSize bounds the pool; 0 disables the bound and eviction
	ConnectPoolSize int `yaml:"connect_pool_size" json:"connect_pool_size"`
	// ConnectTimeout bounds how long a caller waits for a busy pool; 0 waits
	// until the caller's context ends
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	// HighWaterRatio is the idle:busy ratio above which returned
	// connections are disconnected
	HighWaterRatio float64 `yaml:"high_water_ratio" json:"high_water_ratio"`
	// MinAvailable idle connections are always kept
	MinAvailable int `yaml:"min_available" json:"min_available"`
}

// DiscoveryConfig controls the discovery metadata cache
type DiscoveryConfig struct {
	Cache bool `yaml:"cache" json:"cache"`
	// CacheTTL expires cached schemas; 0 keeps them until invalidated
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
}

// ObservabilityConfig contains monitoring and debugging settings
type ObservabilityConfig struct {
	// Debug gives the connector its own debug-level logger
	Debug         bool   `yaml:"debug" json:"debug"`
	LogLevel      string `yaml:"log_level" json:"log_level"`
	EnableMetrics bool   `yaml:"enable_metrics" json:"enable_metrics"`
	EnableTracing bool   `yaml:"enable_tracing" json:"enable_tracing"`
}

// NewConnectorConfig creates a configuration with defaults
func NewConnectorConfig(name string) *ConnectorConfig {
	return &ConnectorConfig{
		Name:    name,
		Backend: DefaultBackend,
		Connection: ConnectionConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Pool: PoolConfig{
			HighWaterRatio: DefaultHighWaterRatio,
			MinAvailable:   DefaultMinAvailable,
		},
		Discovery: DiscoveryConfig{
			Cache: true,
		},
		Observability: ObservabilityConfig{
			LogLevel:      "info",
			EnableMetrics: true,
		},
	}
}

// Validate validates the configuration for correctness
func (c *ConnectorConfig) Validate() error {
	if c.Name == "" {
		return errors.New(errors.ErrorTypeConfig, "name is required")
	}
	if c.Backend == "" {
		return errors.New(errors.ErrorTypeConfig, "backend is required")
	}
	if c.Connection.Host == "" {
		return errors.New(errors.ErrorTypeConfig, "host is required")
	}
	if c.Connection.Port <= 0 || c.Connection.Port > 65535 {
		return errors.Newf(errors.ErrorTypeConfig, "port %d is out of range", c.Connection.Port)
	}
	if c.Pool.ConnectPoolSize < 0 {
		return errors.New(errors.ErrorTypeConfig, "connect_pool_size cannot be negative")
	}
	if c.Pool.ConnectTimeout < 0 {
		return errors.New(errors.ErrorTypeConfig, "connect_timeout cannot be negative")
	}
	if c.Pool.HighWaterRatio <= 0 {
		return errors.New(errors.ErrorTypeConfig, "high_water_ratio must be positive")
	}
	if c.Pool.MinAvailable < 0 {
		return errors.New(errors.ErrorTypeConfig, "min_available cannot be negative")
	}
	if c.Discovery.CacheTTL < 0 {
		return errors.New(errors.ErrorTypeConfig, "cache_ttl cannot be negative")
	}
	return nil
}

// IsPooled returns true if the pool is bounded
func (p *PoolConfig) IsPooled() bool {
	return p.ConnectPoolSize > 0
}
