// Package metrics exports Prometheus metrics for the akera connector: pool
// occupancy and events, per-operation counts and latency, and discovery
// cache efficiency.
//
// # Basic Usage
//
//	timer := metrics.NewTimer("find")
//	rows, err := runFind(ctx)
//	collector.ObserveOperation("Warehouse", "find", err, timer.Stop())
//
// Pool gauges are refreshed by the pool itself whenever its occupancy
// changes:
//
//	metrics.SetPoolOccupancy("sports", active, idle, waiters)
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pool events counted in PoolEvents
const (
	EventCreated   = "created"
	EventReused    = "reused"
	EventEvicted   = "evicted"
	EventTimeout   = "timeout"
	EventDialError = "dial_error"
	EventDropped   = "dropped"
)

var (
	// PoolConnections tracks pooled connections by state (active/idle).
	// Labels: pool, state
	PoolConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "akera_pool_connections",
			Help: "Number of pooled vendor connections by state",
		},
		[]string{"pool", "state"},
	)

	// PoolWaiters tracks callers queued for a connection
	PoolWaiters = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "akera_pool_waiters",
			Help: "Number of callers waiting for a pooled connection",
		},
		[]string{"pool"},
	)

	// PoolEvents counts pool lifecycle events.
	// Labels: pool, event (created/reused/evicted/timeout/dial_error/dropped)
	PoolEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "akera_pool_events_total",
			Help: "Pool lifecycle events",
		},
		[]string{"pool", "event"},
	)

	// PoolWaitDuration tracks how long queued callers waited
	PoolWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "akera_pool_wait_seconds",
			Help: "Time spent waiting for a pooled connection",
			Buckets: []float64{
				0.001, // 1ms
				0.01,  // 10ms
				0.1,   // 100ms
				0.5,
				1,
				5,
				30,
			},
		},
		[]string{"pool"},
	)

	// Operations counts connector operations.
	// Labels: connector, model, operation, status (success/failure)
	Operations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "akera_operations_total",
			Help: "Connector operations by outcome",
		},
		[]string{"connector", "model", "operation", "status"},
	)

	// OperationLatency tracks connector operation latency in seconds
	OperationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "akera_operation_duration_seconds",
			Help:    "Connector operation latency",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		},
		[]string{"connector", "operation"},
	)

	// DiscoveryCache counts discovery cache lookups.
	// Labels: connector, result (hit/miss)
	DiscoveryCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "akera_discovery_cache_total",
			Help: "Discovery metadata cache lookups",
		},
		[]string{"connector", "result"},
	)
)

// SetPoolOccupancy refreshes the pool gauges
func SetPoolOccupancy(pool string, active, idle, waiters int) {
	PoolConnections.WithLabelValues(pool, "active").Set(float64(active))
	PoolConnections.WithLabelValues(pool, "idle").Set(float64(idle))
	PoolWaiters.WithLabelValues(pool).Set(float64(waiters))
}

// PoolEvent counts one pool event
func PoolEvent(pool, event string) {
	PoolEvents.WithLabelValues(pool, event).Inc()
}

// Collector records operation metrics for one connector. A disabled
// collector records nothing.
type Collector struct {
	name    string
	enabled bool
}

// NewCollector creates a collector labelled with the connector name
func NewCollector(name string, enabled bool) *Collector {
	return &Collector{name: name, enabled: enabled}
}

// ObserveOperation counts an operation and records its latency
func (c *Collector) ObserveOperation(model, operation string, err error, d time.Duration) {
	if c == nil || !c.enabled {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	Operations.WithLabelValues(c.name, model, operation, status).Inc()
	OperationLatency.WithLabelValues(c.name, operation).Observe(d.Seconds())
}

// CacheLookup counts a discovery cache hit or miss
func (c *Collector) CacheLookup(hit bool) {
	if c == nil || !c.enabled {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	DiscoveryCache.WithLabelValues(c.name, result).Inc()
}

// Timer provides a simple timing mechanism for measuring operation durations.
// It captures the start time on creation and calculates elapsed time on stop.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the timer name
func (t *Timer) Name() string { return t.name }

// Stop returns the elapsed duration since creation. The timer can be
// stopped multiple times.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
