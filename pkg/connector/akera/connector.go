// Package akera implements the ORM connector for akera application servers.
//
// A Connector translates ORM filters into vendor query directives, runs them
// on pooled vendor connections and reshapes the returned rows into model
// instances. It also discovers schemas, tables, columns and keys from the
// server's metadata catalog.
//
// # Usage
//
//	c, err := akera.Initialize(ctx, map[string]interface{}{
//	    "host":            "localhost",
//	    "port":            8383,
//	    "database":        "sports2000",
//	    "connectPoolSize": 4,
//	})
//	if err != nil {
//	    return err
//	}
//	defer c.Close(ctx)
//
//	_ = c.Define(warehouseDefinition)
//	rows, err := c.Find(ctx, "Warehouse", &filter.Filter{Limit: 10})
//
// Every data operation translates its filter before a connection is
// acquired, so translation errors never consume pool capacity. Each vendor
// call runs on its own pooled connection, which goes back to the pool when
// the call returns.
package akera

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/ajitpratap0/akera-connector/pkg/akeraapi"
	"github.com/ajitpratap0/akera-connector/pkg/clients"
	"github.com/ajitpratap0/akera-connector/pkg/config"
	"github.com/ajitpratap0/akera-connector/pkg/connector/core"
	"github.com/ajitpratap0/akera-connector/pkg/connector/registry"
	"github.com/ajitpratap0/akera-connector/pkg/errors"
	"github.com/ajitpratap0/akera-connector/pkg/json"
	"github.com/ajitpratap0/akera-connector/pkg/logger"
	"github.com/ajitpratap0/akera-connector/pkg/metrics"
	"github.com/ajitpratap0/akera-connector/pkg/model"
	"github.com/ajitpratap0/akera-connector/pkg/observability"
)

// Version is the connector version reported by Health
const Version = "1.0.0"

// DefaultName names connectors built from an options object without a name
const DefaultName = "akera"

var (
	_ core.CrudConnector = (*Connector)(nil)
	_ core.Discoverer    = (*Connector)(nil)
)

// Connector is an ORM connector backed by a pool of vendor connections
type Connector struct {
	name    string
	config  *config.ConnectorConfig
	logger  *zap.Logger
	models  *model.Registry
	pool    *clients.ConnectionPool
	metrics *metrics.Collector
	tracer  *observability.ConnectorTracer
	cache   *discoveryCache

	tracerProvider trace.TracerProvider
	closed         atomic.Bool
}

// Option customizes a Connector
type Option func(*Connector)

// WithLogger replaces the connector's logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Connector) { c.logger = l }
}

// WithPool makes the connector use an existing pool instead of creating one
func WithPool(p *clients.ConnectionPool) Option {
	return func(c *Connector) { c.pool = p }
}

// WithTracerProvider sets the provider spans are created from. Without it the
// global provider is used when tracing is enabled, and no spans are recorded
// otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Connector) { c.tracerProvider = tp }
}

// New creates a connector that dials vendor connections with dialer. No
// connection is opened until the first operation or Connect.
func New(cfg *config.ConnectorConfig, dialer akeraapi.Dialer, opts ...Option) (*Connector, error) {
	if cfg == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "connector configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Connector{
		name:    cfg.Name,
		config:  cfg,
		models:  model.NewRegistry(),
		metrics: metrics.NewCollector(cfg.Name, cfg.Observability.EnableMetrics),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = logger.ForConnector(cfg.Name, cfg.Observability.Debug)
	}
	if c.pool == nil {
		if dialer == nil {
			return nil, errors.New(errors.ErrorTypeConfig, "a dialer or a pool is required")
		}
		c.pool = clients.NewConnectionPool(dialer, ConnectInfo(cfg), PoolConfig(cfg), c.logger)
	}
	if c.tracerProvider == nil && !cfg.Observability.EnableTracing {
		c.tracerProvider = noop.NewTracerProvider()
	}
	c.tracer = observability.NewConnectorTracer(cfg.Name, c.tracerProvider)
	c.cache = newDiscoveryCache(cfg.Discovery.Cache, cfg.Discovery.CacheTTL)

	c.logger.Debug("connector created",
		zap.String("backend", cfg.Backend),
		zap.String("address", cfg.Connection.Address()),
		zap.Int("pool_size", cfg.Pool.ConnectPoolSize))
	return c, nil
}

// Initialize builds a connector from an ORM options object and connects it.
// The backend named by the "backend" option must be registered, which
// happens when its package is imported.
func Initialize(ctx context.Context, settings map[string]interface{}, opts ...Option) (*Connector, error) {
	name := DefaultName
	if n, ok := settings[config.KeyName].(string); ok && n != "" {
		name = n
	}

	cfg, err := config.FromOptions(name, settings)
	if err != nil {
		return nil, err
	}
	dialer, err := registry.CreateDialer(cfg.Backend, cfg)
	if err != nil {
		return nil, err
	}

	c, err := New(cfg, dialer, opts...)
	if err != nil {
		return nil, err
	}
	if err := c.Connect(ctx); err != nil {
		_ = c.Close(ctx)
		return nil, err
	}
	return c, nil
}

// ConnectInfo returns the vendor connection settings of cfg
func ConnectInfo(cfg *config.ConnectorConfig) akeraapi.ConnectInfo {
	return akeraapi.ConnectInfo{
		Host:     cfg.Connection.Host,
		Port:     cfg.Connection.Port,
		UseSSL:   cfg.Connection.UseSSL,
		Database: cfg.Connection.Database,
		User:     cfg.Connection.User,
		Password: cfg.Connection.Password,
	}
}

// PoolConfig returns the pool settings of cfg
func PoolConfig(cfg *config.ConnectorConfig) clients.PoolConfig {
	return clients.PoolConfig{
		Name:           cfg.Name,
		MaxSize:        cfg.Pool.ConnectPoolSize,
		WaitTimeout:    cfg.Pool.ConnectTimeout,
		HighWaterRatio: cfg.Pool.HighWaterRatio,
		MinAvailable:   cfg.Pool.MinAvailable,
		EnableMetrics:  cfg.Observability.EnableMetrics,
	}
}

// Name returns the connector name
func (c *Connector) Name() string { return c.name }

// Config returns the connector configuration
func (c *Connector) Config() *config.ConnectorConfig { return c.config }

// Pool returns the connection pool
func (c *Connector) Pool() *clients.ConnectionPool { return c.pool }

// Define registers a model definition, replacing an earlier definition of
// the same name
func (c *Connector) Define(def *model.Definition) error {
	m, err := c.models.Define(def)
	if err != nil {
		return err
	}
	c.logger.Debug("model defined",
		zap.String("model", m.Name()),
		zap.String("table", m.Table()),
		zap.Strings("keys", m.Keys()))
	return nil
}

// Model returns the connector's view of a defined model
func (c *Connector) Model(name string) (*model.Model, error) {
	return c.models.Get(name)
}

// Connect makes sure the pool holds an open connection
func (c *Connector) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return errors.New(errors.ErrorTypeConnection, "connector is closed")
	}
	return c.run(ctx, "connect", "", func(ctx context.Context) error {
		return c.pool.Prime(ctx)
	})
}

// Disconnect closes the pooled connections that are not in use
func (c *Connector) Disconnect(ctx context.Context) error {
	return c.run(ctx, "disconnect", "", func(ctx context.Context) error {
		return c.pool.DisconnectAll(ctx)
	})
}

// Ping checks the server answers on a pooled connection
func (c *Connector) Ping(ctx context.Context) error {
	return c.run(ctx, "ping", "", func(ctx context.Context) error {
		conn, err := c.acquire(ctx)
		if err != nil {
			return err
		}
		return conn.Ping(ctx)
	})
}

// Health pings the server and reports pool statistics
func (c *Connector) Health(ctx context.Context) core.HealthStatus {
	status := core.HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Details:   map[string]interface{}{},
	}

	start := time.Now()
	err := c.Ping(ctx)
	status.Details["latency_ms"] = time.Since(start).Milliseconds()
	status.Details["version"] = Version
	status.Details["backend"] = c.config.Backend
	status.Details["pool"] = c.pool.Stats()
	if err != nil {
		status.Status = "unhealthy"
		status.Error = err.Error()
	}
	return status
}

// Close closes the pool. The connector cannot be used afterwards.
func (c *Connector) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := c.pool.Close(ctx)
	c.logger.Debug("connector closed")
	return err
}

// acquire returns a pooled connection for exactly one vendor call
func (c *Connector) acquire(ctx context.Context) (akeraapi.Conn, error) {
	if c.closed.Load() {
		return nil, errors.New(errors.ErrorTypeConnection, "connector is closed")
	}
	pc, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return pc.Conn(), nil
}

// run wraps an operation in a span and records its outcome
func (c *Connector) run(ctx context.Context, operation, modelName string, fn func(ctx context.Context) error) error {
	timer := metrics.NewTimer(operation)
	ctx = logger.WithOperation(ctx, operation, modelName)

	err := c.tracer.Trace(ctx, operation, modelName, fn)

	c.metrics.ObserveOperation(modelName, operation, err, timer.Stop())
	if err != nil {
		logger.FromContext(ctx, c.logger).Debug("operation failed", zap.Error(errors.StripStack(err)))
	}
	return err
}

// debugQuery logs a vendor directive as JSON
func (c *Connector) debugQuery(ctx context.Context, directive interface{}) {
	if c.logger.Core().Enabled(zap.DebugLevel) {
		logger.FromContext(ctx, c.logger).Debug("vendor query",
			zap.String("query", json.MarshalString(directive)))
	}
}
