// Package clients provides the vendor connection pool used by the akera
// connector.
//
// Connections are handed out by Acquire and come back on their own: the pool
// subscribes to every connection's state machine and reclaims a connection
// when it re-enters the idle state after a call. Callers never release
// connections explicitly.
package clients

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/akera-connector/pkg/akeraapi"
	"github.com/ajitpratap0/akera-connector/pkg/errors"
	"github.com/ajitpratap0/akera-connector/pkg/logger"
	"github.com/ajitpratap0/akera-connector/pkg/metrics"
)

// PoolConfig configures a ConnectionPool
type PoolConfig struct {
	// Name labels the pool in logs and metrics
	Name string
	// MaxSize bounds the number of open connections; 0 means unbounded
	MaxSize int
	// WaitTimeout bounds how long Acquire waits for a busy pool; 0 waits
	// until the context ends
	WaitTimeout time.Duration
	// HighWaterRatio and MinAvailable drive eviction of idle connections,
	// see ConnectionPool.
	HighWaterRatio float64
	MinAvailable   int
	EnableMetrics  bool
}

// DefaultPoolConfig returns the default pool configuration
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Name:           "default",
		HighWaterRatio: 2,
		MinAvailable:   1,
	}
}

// ConnectionPool hands out vendor connections and queues callers when the
// pool is exhausted.
//
// Eviction applies to bounded pools only. When a connection comes back and
// the pool would then hold more than MinAvailable idle connections and more
// than HighWaterRatio times as many idle as busy ones, the connection is
// disconnected instead of kept.
type ConnectionPool struct {
	dialer akeraapi.Dialer
	info   akeraapi.ConnectInfo
	config PoolConfig
	logger *zap.Logger

	mu        sync.Mutex
	available []*PooledConnection
	busy      map[*PooledConnection]struct{}
	dialing   int
	waiters   []*waiter
	closed    bool

	totalCreated  int64
	totalReused   int64
	totalEvicted  int64
	totalTimeouts int64
}

// PooledConnection is a vendor connection owned by a pool
type PooledConnection struct {
	conn      akeraapi.Conn
	createdAt time.Time
	lastUsed  time.Time
	useCount  int64
}

// Conn returns the vendor connection. It must not be used after the call
// that follows Acquire has returned.
func (pc *PooledConnection) Conn() akeraapi.Conn { return pc.conn }

// CreatedAt returns when the connection was opened
func (pc *PooledConnection) CreatedAt() time.Time { return pc.createdAt }

// UseCount returns how many times the connection was handed out
func (pc *PooledConnection) UseCount() int64 { return atomic.LoadInt64(&pc.useCount) }

// waiter receives either a connection or nil, which asks it to retry
// because capacity was freed
type waiter struct {
	ch chan *PooledConnection
}

// PoolStats provides statistics about the pool
type PoolStats struct {
	ActiveConnections int   `json:"active_connections"`
	IdleConnections   int   `json:"idle_connections"`
	TotalConnections  int   `json:"total_connections"`
	Waiters           int   `json:"waiters"`
	TotalCreated      int64 `json:"total_created"`
	TotalReused       int64 `json:"total_reused"`
	TotalEvicted      int64 `json:"total_evicted"`
	TotalTimeouts     int64 `json:"total_timeouts"`
}

// NewConnectionPool creates a pool that dials info with dialer. No
// connection is opened until the first Acquire.
func NewConnectionPool(dialer akeraapi.Dialer, info akeraapi.ConnectInfo, config PoolConfig, log *zap.Logger) *ConnectionPool {
	if config.Name == "" {
		config.Name = "default"
	}
	if config.HighWaterRatio <= 0 {
		config.HighWaterRatio = 2
	}
	if config.MinAvailable <= 0 {
		config.MinAvailable = 1
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &ConnectionPool{
		dialer: dialer,
		info:   info,
		config: config,
		logger: log.With(zap.String("component", "connection_pool"), zap.String("pool", config.Name)),
		busy:   make(map[*PooledConnection]struct{}),
	}
}

// Acquire returns a connection for exactly one vendor call. It reuses the
// most recently returned connection, opens a new one while the pool is below
// its maximum size, or waits for a connection to come back.
func (p *ConnectionPool) Acquire(ctx context.Context) (*PooledConnection, error) {
	var (
		timer   *time.Timer
		timeout <-chan time.Time
		waited  time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, errors.New(errors.ErrorTypeConnection, "connection pool is closed")
		}

		if pc := p.popAvailableLocked(); pc != nil {
			p.checkoutLocked(pc)
			p.totalReused++
			p.reportLocked()
			p.mu.Unlock()

			p.event(metrics.EventReused)
			logger.FromContext(ctx, p.logger).Debug("reusing connection",
				zap.String("conn", pc.conn.ID()),
				zap.Int64("use_count", pc.UseCount()))
			return pc, nil
		}

		if p.config.MaxSize == 0 || p.totalLocked()+p.dialing < p.config.MaxSize {
			p.dialing++
			p.mu.Unlock()
			return p.dial(ctx)
		}

		w := &waiter{ch: make(chan *PooledConnection, 1)}
		p.waiters = append(p.waiters, w)
		p.reportLocked()
		p.mu.Unlock()

		if waited.IsZero() {
			waited = time.Now()
			if p.config.WaitTimeout > 0 {
				timer = time.NewTimer(p.config.WaitTimeout)
				timeout = timer.C
			}
			logger.FromContext(ctx, p.logger).Debug("pool exhausted, waiting for a connection",
				zap.Int("max_size", p.config.MaxSize))
		}

		pc, err := p.wait(ctx, w, timeout)
		if err != nil {
			return nil, err
		}
		if pc != nil {
			if p.config.EnableMetrics {
				metrics.PoolWaitDuration.WithLabelValues(p.config.Name).Observe(time.Since(waited).Seconds())
			}
			return pc, nil
		}
		// capacity was freed, try again
	}
}

func (p *ConnectionPool) wait(ctx context.Context, w *waiter, timeout <-chan time.Time) (*PooledConnection, error) {
	select {
	case pc := <-w.ch:
		return pc, nil
	case <-timeout:
		atomic.AddInt64(&p.totalTimeouts, 1)
		p.event(metrics.EventTimeout)
		return p.abandon(w, errors.New(errors.ErrorTypeTimeout, "timed out waiting for a pooled connection").
			WithDetail("timeout", p.config.WaitTimeout.String()))
	case <-ctx.Done():
		return p.abandon(w, ctx.Err())
	}
}

// abandon removes w from the queue. When a hand-off already happened the
// buffered connection is returned instead of the error, and a retry signal
// is passed on to the next waiter.
func (p *ConnectionPool) abandon(w *waiter, err error) (*PooledConnection, error) {
	p.mu.Lock()
	if p.removeWaiterLocked(w) {
		p.reportLocked()
		p.mu.Unlock()
		return nil, err
	}
	p.mu.Unlock()

	pc := <-w.ch
	if pc != nil {
		return pc, nil
	}

	p.mu.Lock()
	p.signalLocked()
	p.mu.Unlock()
	return nil, err
}

func (p *ConnectionPool) dial(ctx context.Context) (*PooledConnection, error) {
	conn, err := p.dialer.Dial(ctx, p.info)
	if err == nil {
		conn.SetAutoReconnect(true)
		if p.info.Database != "" {
			if err = conn.SelectDatabase(ctx, p.info.Database); err != nil {
				_ = conn.Disconnect(ctx)
			}
		}
	}

	p.mu.Lock()
	p.dialing--
	if err != nil {
		p.signalLocked()
		p.mu.Unlock()

		p.event(metrics.EventDialError)
		logger.FromContext(ctx, p.logger).Debug("connection error", zap.String("address", p.info.Address()), zap.Error(err))
		return nil, errors.Wrap(err, errors.ErrorTypeConnection,
			fmt.Sprintf("cannot connect to %s", p.info.Address()))
	}
	if p.closed {
		p.mu.Unlock()
		_ = conn.Disconnect(ctx)
		return nil, errors.New(errors.ErrorTypeConnection, "connection pool is closed")
	}

	pc := &PooledConnection{conn: conn, createdAt: time.Now()}
	p.checkoutLocked(pc)
	p.totalCreated++
	p.reportLocked()
	p.mu.Unlock()

	conn.OnStateChange(func(s akeraapi.State) { p.onStateChange(pc, s) })

	p.event(metrics.EventCreated)
	logger.FromContext(ctx, p.logger).Debug("connection established",
		zap.String("address", p.info.Address()),
		zap.String("conn", conn.ID()))
	return pc, nil
}

func (p *ConnectionPool) onStateChange(pc *PooledConnection, s akeraapi.State) {
	switch s {
	case akeraapi.StateIdle:
		p.release(pc)
	case akeraapi.StateClosed:
		p.drop(pc)
	}
}

// release returns a busy connection: to the oldest waiter, to the available
// set, or to the server when eviction applies
func (p *ConnectionPool) release(pc *PooledConnection) {
	p.mu.Lock()
	if _, ok := p.busy[pc]; !ok {
		p.mu.Unlock()
		return
	}
	delete(p.busy, pc)
	pc.lastUsed = time.Now()

	if w := p.popWaiterLocked(); w != nil {
		p.checkoutLocked(pc)
		p.totalReused++
		w.ch <- pc
		p.reportLocked()
		p.mu.Unlock()
		p.event(metrics.EventReused)
		return
	}

	evict := !p.closed && p.shouldEvictLocked()
	if p.closed || evict {
		if evict {
			p.totalEvicted++
		}
		p.reportLocked()
		p.mu.Unlock()

		if evict {
			p.event(metrics.EventEvicted)
			p.logger.Debug("evicting idle connection", zap.String("conn", pc.conn.ID()))
		}
		if err := pc.conn.Disconnect(context.Background()); err != nil {
			p.logger.Warn("failed to disconnect evicted connection", zap.Error(err))
		}
		return
	}

	p.available = append(p.available, pc)
	p.reportLocked()
	p.mu.Unlock()
}

func (p *ConnectionPool) shouldEvictLocked() bool {
	if p.config.MaxSize == 0 {
		return false
	}
	avail := len(p.available) + 1
	return avail > p.config.MinAvailable && float64(avail) > p.config.HighWaterRatio*float64(len(p.busy))
}

// drop forgets a connection that closed
func (p *ConnectionPool) drop(pc *PooledConnection) {
	p.mu.Lock()
	defer p.mu.Unlock()

	found := false
	if _, ok := p.busy[pc]; ok {
		delete(p.busy, pc)
		found = true
	}
	for i, c := range p.available {
		if c == pc {
			p.available = append(p.available[:i], p.available[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		return
	}

	p.signalLocked()
	p.reportLocked()
	p.event(metrics.EventDropped)
	p.logger.Debug("dropped closed connection", zap.String("conn", pc.conn.ID()))
}

// DisconnectAll disconnects every available connection. Busy connections
// are left alone.
func (p *ConnectionPool) DisconnectAll(ctx context.Context) error {
	p.mu.Lock()
	conns := p.available
	p.available = nil
	p.reportLocked()
	p.mu.Unlock()

	var errs []error
	for _, pc := range conns {
		if err := pc.conn.Disconnect(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	p.logger.Debug("disconnected available connections", zap.Int("count", len(conns)))
	if len(errs) > 0 {
		return errors.Wrap(errors.Join(errs...), errors.ErrorTypeConnection, "failed to disconnect pooled connections")
	}
	return nil
}

// Prime makes sure the pool holds at least one open connection, verifying
// it with a ping
func (p *ConnectionPool) Prime(ctx context.Context) error {
	p.mu.Lock()
	open := p.totalLocked()
	p.mu.Unlock()
	if open > 0 {
		return nil
	}

	pc, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	if err := pc.Conn().Ping(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "ping failed")
	}
	return nil
}

// Close disconnects the available connections, fails queued callers and
// rejects later acquires. Busy connections are disconnected when they come
// back.
func (p *ConnectionPool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	for _, w := range p.waiters {
		w.ch <- nil
	}
	p.waiters = nil
	p.mu.Unlock()

	err := p.DisconnectAll(ctx)
	p.logger.Info("connection pool closed")
	return err
}

// Stats returns pool statistics
func (p *ConnectionPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return PoolStats{
		ActiveConnections: len(p.busy),
		IdleConnections:   len(p.available),
		TotalConnections:  p.totalLocked(),
		Waiters:           len(p.waiters),
		TotalCreated:      p.totalCreated,
		TotalReused:       p.totalReused,
		TotalEvicted:      p.totalEvicted,
		TotalTimeouts:     atomic.LoadInt64(&p.totalTimeouts),
	}
}

func (p *ConnectionPool) totalLocked() int {
	return len(p.available) + len(p.busy)
}

// popAvailableLocked pops the most recently returned connection, skipping
// connections that closed while idle
func (p *ConnectionPool) popAvailableLocked() *PooledConnection {
	for len(p.available) > 0 {
		n := len(p.available) - 1
		pc := p.available[n]
		p.available = p.available[:n]
		if !pc.conn.Closed() {
			return pc
		}
	}
	return nil
}

func (p *ConnectionPool) checkoutLocked(pc *PooledConnection) {
	p.busy[pc] = struct{}{}
	pc.lastUsed = time.Now()
	atomic.AddInt64(&pc.useCount, 1)
}

func (p *ConnectionPool) popWaiterLocked() *waiter {
	if len(p.waiters) == 0 {
		return nil
	}
	w := p.waiters[0]
	p.waiters[0] = nil
	p.waiters = p.waiters[1:]
	return w
}

func (p *ConnectionPool) removeWaiterLocked(w *waiter) bool {
	for i, q := range p.waiters {
		if q == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// signalLocked wakes the oldest waiter so it retries the acquire
func (p *ConnectionPool) signalLocked() {
	if w := p.popWaiterLocked(); w != nil {
		w.ch <- nil
	}
}

func (p *ConnectionPool) reportLocked() {
	if !p.config.EnableMetrics {
		return
	}
	metrics.SetPoolOccupancy(p.config.Name, len(p.busy), len(p.available), len(p.waiters))
}

func (p *ConnectionPool) event(name string) {
	if p.config.EnableMetrics {
		metrics.PoolEvent(p.config.Name, name)
	}
}
