package clients

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/akera-connector/pkg/akeraapi"
	"github.com/ajitpratap0/akera-connector/pkg/errors"
)

type fakeConn struct {
	akeraapi.StateMachine
	id            string
	database      string
	autoReconnect bool
}

func (c *fakeConn) ID() string { return c.id }

// call simulates one vendor call on the connection
func (c *fakeConn) call() { c.Begin()() }

func (c *fakeConn) Select(context.Context, *akeraapi.Select) ([]akeraapi.Record, error) {
	defer c.Begin()()
	return nil, nil
}

func (c *fakeConn) Count(context.Context, *akeraapi.Select) (int64, error) {
	defer c.Begin()()
	return 0, nil
}

func (c *fakeConn) Insert(context.Context, *akeraapi.Insert) (akeraapi.Record, error) {
	defer c.Begin()()
	return nil, nil
}

func (c *fakeConn) Upsert(context.Context, *akeraapi.Upsert) (akeraapi.Record, error) {
	defer c.Begin()()
	return nil, nil
}

func (c *fakeConn) Update(context.Context, *akeraapi.Update) (int64, error) {
	defer c.Begin()()
	return 0, nil
}

func (c *fakeConn) Delete(context.Context, *akeraapi.Delete) (int64, error) {
	defer c.Begin()()
	return 0, nil
}

func (c *fakeConn) Ping(context.Context) error {
	defer c.Begin()()
	return nil
}

func (c *fakeConn) SelectDatabase(_ context.Context, name string) error {
	defer c.Begin()()
	c.database = name
	return nil
}

func (c *fakeConn) Meta() akeraapi.Metadata { return nil }

func (c *fakeConn) SetAutoReconnect(enabled bool) { c.autoReconnect = enabled }

func (c *fakeConn) Disconnect(context.Context) error {
	c.Transition(akeraapi.StateClosed)
	return nil
}

type fakeDialer struct {
	mu    sync.Mutex
	dials int
	conns []*fakeConn
	// gate, when set, is read once per dial; a non-nil value fails the dial
	gate chan error
	err  error
}

func (d *fakeDialer) Dial(ctx context.Context, _ akeraapi.ConnectInfo) (akeraapi.Conn, error) {
	if d.gate != nil {
		if err := <-d.gate; err != nil {
			return nil, err
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.err != nil {
		return nil, d.err
	}
	c := &fakeConn{id: fmt.Sprintf("conn-%d", d.dials)}
	c.Transition(akeraapi.StateIdle)
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func newTestPool(t *testing.T, d *fakeDialer, cfg PoolConfig) *ConnectionPool {
	t.Helper()
	info := akeraapi.ConnectInfo{Host: "localhost", Port: 3000}
	return NewConnectionPool(d, info, cfg, zaptest.NewLogger(t))
}

func conn(pc *PooledConnection) *fakeConn {
	return pc.Conn().(*fakeConn)
}

func acquireAsync(ctx context.Context, p *ConnectionPool) <-chan *PooledConnection {
	out := make(chan *PooledConnection, 1)
	go func() {
		pc, err := p.Acquire(ctx)
		if err != nil {
			close(out)
			return
		}
		out <- pc
	}()
	return out
}

func TestAcquireReusesConnection(t *testing.T) {
	d := &fakeDialer{}
	p := newTestPool(t, d, PoolConfig{MaxSize: 2})
	ctx := context.Background()

	first, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, conn(first).autoReconnect)
	conn(first).call()

	second, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, int64(2), second.UseCount())

	stats := p.Stats()
	assert.Equal(t, int64(1), stats.TotalCreated)
	assert.Equal(t, int64(1), stats.TotalReused)
	assert.Equal(t, 1, stats.ActiveConnections)
	assert.Equal(t, 1, d.dialCount())
}

func TestSelectDatabaseDoesNotReleaseNewConnection(t *testing.T) {
	d := &fakeDialer{}
	info := akeraapi.ConnectInfo{Host: "localhost", Port: 3000, Database: "sports"}
	p := NewConnectionPool(d, info, PoolConfig{MaxSize: 1}, zaptest.NewLogger(t))

	pc, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sports", conn(pc).database)
	assert.Equal(t, 1, p.Stats().ActiveConnections)
	assert.Equal(t, 0, p.Stats().IdleConnections)
}

func TestPoolOfOneBlocksSecondAcquireUntilRelease(t *testing.T) {
	d := &fakeDialer{}
	p := newTestPool(t, d, PoolConfig{MaxSize: 1})
	ctx := context.Background()

	first, err := p.Acquire(ctx)
	require.NoError(t, err)

	got := acquireAsync(ctx, p)
	select {
	case <-got:
		t.Fatal("second acquire resolved while the only connection was busy")
	case <-time.After(50 * time.Millisecond):
	}

	conn(first).call()

	select {
	case pc := <-got:
		require.NotNil(t, pc)
		assert.Same(t, first, pc)
	case <-time.After(time.Second):
		t.Fatal("second acquire did not resolve after release")
	}
	assert.Equal(t, 1, d.dialCount())
}

func TestReleaseUnblocksExactlyOneWaiter(t *testing.T) {
	d := &fakeDialer{}
	p := newTestPool(t, d, PoolConfig{MaxSize: 1})
	ctx := context.Background()

	first, err := p.Acquire(ctx)
	require.NoError(t, err)

	a := acquireAsync(ctx, p)
	assert.Eventually(t, func() bool { return p.Stats().Waiters == 1 }, time.Second, 5*time.Millisecond)
	b := acquireAsync(ctx, p)
	assert.Eventually(t, func() bool { return p.Stats().Waiters == 2 }, time.Second, 5*time.Millisecond)

	conn(first).call()

	var handed *PooledConnection
	select {
	case handed = <-a:
		require.NotNil(t, handed)
	case <-time.After(time.Second):
		t.Fatal("oldest waiter was not unblocked")
	}

	select {
	case <-b:
		t.Fatal("a single release unblocked two waiters")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, 1, p.Stats().Waiters)

	conn(handed).call()
	select {
	case pc := <-b:
		require.NotNil(t, pc)
	case <-time.After(time.Second):
		t.Fatal("second waiter was not unblocked")
	}
}

func TestWaitTimeout(t *testing.T) {
	d := &fakeDialer{}
	p := newTestPool(t, d, PoolConfig{MaxSize: 1, WaitTimeout: 30 * time.Millisecond})
	ctx := context.Background()

	_, err := p.Acquire(ctx)
	require.NoError(t, err)

	_, err = p.Acquire(ctx)
	require.Error(t, err)
	assert.True(t, errors.IsTimeout(err))
	assert.Contains(t, err.Error(), "timed out waiting for a pooled connection")

	stats := p.Stats()
	assert.Equal(t, 0, stats.Waiters)
	assert.Equal(t, int64(1), stats.TotalTimeouts)
}

func TestAbandonedWaitRemovesOnlyThatWaiter(t *testing.T) {
	d := &fakeDialer{}
	p := newTestPool(t, d, PoolConfig{MaxSize: 1})

	first, err := p.Acquire(context.Background())
	require.NoError(t, err)

	patient := acquireAsync(context.Background(), p)
	assert.Eventually(t, func() bool { return p.Stats().Waiters == 1 }, time.Second, 5*time.Millisecond)

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(short)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, 1, p.Stats().Waiters)

	conn(first).call()
	select {
	case pc := <-patient:
		require.NotNil(t, pc)
	case <-time.After(time.Second):
		t.Fatal("remaining waiter was not unblocked")
	}
}

func TestDialFailure(t *testing.T) {
	d := &fakeDialer{err: stderrors.New("connection refused")}
	p := newTestPool(t, d, PoolConfig{MaxSize: 1})

	_, err := p.Acquire(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
	assert.Contains(t, err.Error(), "cannot connect to localhost:3000")
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, 0, p.Stats().TotalConnections)
}

func TestDialFailureWakesWaiter(t *testing.T) {
	d := &fakeDialer{gate: make(chan error)}
	p := newTestPool(t, d, PoolConfig{MaxSize: 1})
	ctx := context.Background()

	failed := make(chan error, 1)
	go func() {
		_, err := p.Acquire(ctx)
		failed <- err
	}()

	// the first dial holds the only slot, so the second caller queues
	assert.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.dialing == 1
	}, time.Second, 5*time.Millisecond)
	waiting := acquireAsync(ctx, p)
	assert.Eventually(t, func() bool { return p.Stats().Waiters == 1 }, time.Second, 5*time.Millisecond)

	d.gate <- stderrors.New("connection refused")
	require.Error(t, <-failed)

	d.gate <- nil
	select {
	case pc := <-waiting:
		require.NotNil(t, pc)
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken after the failed dial")
	}
}

func TestEvictionUnderLowLoad(t *testing.T) {
	d := &fakeDialer{}
	p := newTestPool(t, d, PoolConfig{MaxSize: 5})
	ctx := context.Background()

	var pcs []*PooledConnection
	for i := 0; i < 3; i++ {
		pc, err := p.Acquire(ctx)
		require.NoError(t, err)
		pcs = append(pcs, pc)
	}
	for _, pc := range pcs {
		conn(pc).call()
	}

	stats := p.Stats()
	assert.Equal(t, 2, stats.IdleConnections)
	assert.Equal(t, 0, stats.ActiveConnections)
	assert.Equal(t, int64(1), stats.TotalEvicted)
	assert.True(t, conn(pcs[2]).Closed())
}

func TestUnboundedPoolKeepsConnections(t *testing.T) {
	d := &fakeDialer{}
	p := newTestPool(t, d, PoolConfig{})
	ctx := context.Background()

	var pcs []*PooledConnection
	for i := 0; i < 3; i++ {
		pc, err := p.Acquire(ctx)
		require.NoError(t, err)
		pcs = append(pcs, pc)
	}
	for _, pc := range pcs {
		conn(pc).call()
	}

	assert.Equal(t, 3, p.Stats().IdleConnections)
	assert.Equal(t, int64(0), p.Stats().TotalEvicted)
}

func TestClosedConnectionIsDropped(t *testing.T) {
	d := &fakeDialer{}
	p := newTestPool(t, d, PoolConfig{MaxSize: 1})
	ctx := context.Background()

	pc, err := p.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, pc.Conn().Disconnect(ctx))
	assert.Equal(t, 0, p.Stats().TotalConnections)

	again, err := p.Acquire(ctx)
	require.NoError(t, err)
	assert.NotSame(t, pc, again)
	assert.Equal(t, 2, d.dialCount())
}

func TestDisconnectAllLeavesBusyConnections(t *testing.T) {
	d := &fakeDialer{}
	p := newTestPool(t, d, PoolConfig{})
	ctx := context.Background()

	a, err := p.Acquire(ctx)
	require.NoError(t, err)
	b, err := p.Acquire(ctx)
	require.NoError(t, err)
	busy, err := p.Acquire(ctx)
	require.NoError(t, err)
	conn(a).call()
	conn(b).call()

	require.NoError(t, p.DisconnectAll(ctx))

	stats := p.Stats()
	assert.Equal(t, 0, stats.IdleConnections)
	assert.Equal(t, 1, stats.ActiveConnections)
	assert.True(t, conn(a).Closed())
	assert.True(t, conn(b).Closed())
	assert.False(t, conn(busy).Closed())
}

func TestPrime(t *testing.T) {
	d := &fakeDialer{}
	p := newTestPool(t, d, PoolConfig{MaxSize: 2})
	ctx := context.Background()

	require.NoError(t, p.Prime(ctx))
	require.NoError(t, p.Prime(ctx))

	stats := p.Stats()
	assert.Equal(t, 1, stats.IdleConnections)
	assert.Equal(t, int64(1), stats.TotalCreated)
}

func TestClose(t *testing.T) {
	d := &fakeDialer{}
	p := newTestPool(t, d, PoolConfig{MaxSize: 1})
	ctx := context.Background()

	busy, err := p.Acquire(ctx)
	require.NoError(t, err)

	failed := make(chan error, 1)
	go func() {
		_, err := p.Acquire(ctx)
		failed <- err
	}()
	assert.Eventually(t, func() bool { return p.Stats().Waiters == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, p.Close(ctx))
	err = <-failed
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))

	_, err = p.Acquire(ctx)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))

	conn(busy).call()
	assert.True(t, conn(busy).Closed())
}
