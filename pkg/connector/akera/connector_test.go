package akera

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ajitpratap0/akera-connector/pkg/backends/memory"
	"github.com/ajitpratap0/akera-connector/pkg/config"
	"github.com/ajitpratap0/akera-connector/pkg/errors"
	"github.com/ajitpratap0/akera-connector/pkg/filter"
	"github.com/ajitpratap0/akera-connector/pkg/testutil"
)

// newTestConnector returns a connector on a fresh sports server with the
// Warehouse, State and OrderLine models defined
func newTestConnector(t *testing.T, mutate ...func(*config.ConnectorConfig)) (*Connector, *memory.Server) {
	t.Helper()

	server := testutil.NewSportsServer(t)
	cfg := testutil.SportsConfig("test")
	for _, m := range mutate {
		m(cfg)
	}

	c, err := New(cfg, server, WithLogger(testutil.TestLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	require.NoError(t, c.Define(testutil.WarehouseModel()))
	require.NoError(t, c.Define(testutil.StateModel()))
	require.NoError(t, c.Define(testutil.OrderLineModel()))
	return c, server
}

func TestNewRequiresConfigAndDialer(t *testing.T) {
	_, err := New(nil, memory.NewServer())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = New(config.NewConnectorConfig("test"), nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	cfg := config.NewConnectorConfig("test")
	cfg.Connection.Port = 0
	_, err = New(cfg, memory.NewServer())
	assert.Error(t, err)
}

func TestNewDoesNotDial(t *testing.T) {
	c, server := newTestConnector(t)

	assert.Equal(t, "test", c.Name())
	assert.Equal(t, int64(0), server.Dials())
	assert.Equal(t, 0, c.Pool().Stats().TotalConnections)
}

func TestConnectPrimesPool(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	c, server := newTestConnector(t)
	require.NoError(t, c.Connect(ctx))

	assert.Equal(t, int64(1), server.Dials())
	assert.Equal(t, 1, c.Pool().Stats().IdleConnections)
	require.NoError(t, c.Ping(ctx))
	assert.Equal(t, int64(1), server.Dials())
}

func TestInitialize(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	server := testutil.NewSportsServer(t)
	memory.Register("initialize.test:3100", server)

	c, err := Initialize(ctx, map[string]interface{}{
		"name":            "sports",
		"backend":         memory.BackendName,
		"host":            "initialize.test",
		"port":            3100,
		"database":        testutil.SportsDB,
		"connectPoolSize": 2,
		"enableMetrics":   false,
	}, WithLogger(testutil.TestLogger(t)))
	require.NoError(t, err)
	defer c.Close(ctx)

	assert.Equal(t, "sports", c.Name())
	assert.Equal(t, 2, c.Config().Pool.ConnectPoolSize)
	assert.Equal(t, int64(1), server.Dials())

	require.NoError(t, c.Define(testutil.StateModel()))
	n, err := c.Count(ctx, "State", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(testutil.StateRows), n)
}

func TestInitializeDefaultName(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	memory.Register("default-name.test:3000", testutil.NewSportsServer(t))
	c, err := Initialize(ctx, map[string]interface{}{"host": "default-name.test"},
		WithLogger(testutil.TestLogger(t)))
	require.NoError(t, err)
	defer c.Close(ctx)

	assert.Equal(t, DefaultName, c.Name())
}

func TestInitializeErrors(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	_, err := Initialize(ctx, map[string]interface{}{"backend": "carrier-pigeon"})
	assert.Error(t, err)

	_, err = Initialize(ctx, map[string]interface{}{"port": -1})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	server := memory.NewServer()
	server.FailDials(stderrors.New("connection refused"))
	memory.Register("refused.test:3000", server)
	_, err = Initialize(ctx, map[string]interface{}{"host": "refused.test"},
		WithLogger(testutil.TestLogger(t)))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
	assert.Contains(t, err.Error(), "refused.test:3000")
}

func TestWrongDatabaseFailsConnect(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	c, _ := newTestConnector(t, func(cfg *config.ConnectorConfig) {
		cfg.Connection.Database = "nowhere"
	})
	assert.Error(t, c.Connect(ctx))
	assert.Equal(t, 0, c.Pool().Stats().TotalConnections)
}

func TestPoolOfOneBlocksSecondOperation(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	c, _ := newTestConnector(t, func(cfg *config.ConnectorConfig) {
		cfg.Pool.ConnectPoolSize = 1
	})

	held, err := c.Pool().Acquire(ctx)
	require.NoError(t, err)

	short, stop := context.WithTimeout(ctx, 50*time.Millisecond)
	_, err = c.Find(short, "Warehouse", nil)
	stop()
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, c.Pool().Stats().Waiters)

	done := make(chan error, 1)
	go func() {
		_, err := c.Find(context.Background(), "Warehouse", nil)
		done <- err
	}()

	testutil.AssertEventually(t, func() bool {
		return c.Pool().Stats().Waiters == 1
	}, time.Second, "second operation should queue")

	// a finished vendor call hands the connection to the waiter
	require.NoError(t, held.Conn().Ping(ctx))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("queued operation did not run after release")
	}
	assert.Equal(t, 1, c.Pool().Stats().TotalConnections)
}

func TestWaitTimeoutFailsOperation(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	c, server := newTestConnector(t, func(cfg *config.ConnectorConfig) {
		cfg.Pool.ConnectPoolSize = 1
		cfg.Pool.ConnectTimeout = 20 * time.Millisecond
	})

	_, err := c.Pool().Acquire(ctx)
	require.NoError(t, err)
	queries := server.Queries()

	_, err = c.Count(ctx, "Warehouse", nil)
	require.Error(t, err)
	assert.True(t, errors.IsTimeout(err))
	assert.Equal(t, queries, server.Queries())
	assert.Equal(t, int64(1), c.Pool().Stats().TotalTimeouts)
}

func TestConcurrentOperationsShareBoundedPool(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	c, server := newTestConnector(t, func(cfg *config.ConnectorConfig) {
		cfg.Pool.ConnectPoolSize = 2
	})

	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		go func() {
			_, err := c.Count(ctx, "Warehouse", filter.Condition{"country": "USA"})
			errs <- err
		}()
	}
	for i := 0; i < 20; i++ {
		assert.NoError(t, <-errs)
	}

	assert.LessOrEqual(t, server.Dials(), int64(2))
	assert.Equal(t, 0, c.Pool().Stats().ActiveConnections)
}

func TestHealth(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	c, _ := newTestConnector(t)

	status := c.Health(ctx)
	assert.Equal(t, "healthy", status.Status)
	assert.Empty(t, status.Error)
	assert.Equal(t, Version, status.Details["version"])
	assert.Equal(t, memory.BackendName, status.Details["backend"])
	assert.Contains(t, status.Details, "latency_ms")
	assert.Contains(t, status.Details, "pool")

	require.NoError(t, c.Close(ctx))
	status = c.Health(ctx)
	assert.Equal(t, "unhealthy", status.Status)
	assert.NotEmpty(t, status.Error)
}

func TestCloseIsFinal(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	c, _ := newTestConnector(t)
	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.Close(ctx))
	require.NoError(t, c.Close(ctx))

	_, err := c.Find(ctx, "Warehouse", nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
	assert.Error(t, c.Connect(ctx))
}

func TestDisconnectRedials(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	c, server := newTestConnector(t)
	require.NoError(t, c.Connect(ctx))
	require.NoError(t, c.Disconnect(ctx))
	assert.Equal(t, 0, c.Pool().Stats().TotalConnections)

	_, err := c.Count(ctx, "Warehouse", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), server.Dials())
}

func TestDefine(t *testing.T) {
	c, _ := newTestConnector(t)

	m, err := c.Model("OrderLine")
	require.NoError(t, err)
	assert.Equal(t, "sports2000.OrderLine", m.Table())
	assert.Equal(t, []string{"orderNum", "lineNum"}, m.Keys())

	_, err = c.Model("Customer")
	assert.True(t, errors.IsNotFound(err))

	assert.Error(t, c.Define(nil))
}

func TestOperationSpans(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(ctx)

	server := testutil.NewSportsServer(t)
	cfg := testutil.SportsConfig("traced")
	c, err := New(cfg, server, WithLogger(testutil.TestLogger(t)), WithTracerProvider(tp))
	require.NoError(t, err)
	defer c.Close(ctx)
	require.NoError(t, c.Define(testutil.StateModel()))

	_, err = c.Find(ctx, "State", nil)
	require.NoError(t, err)
	_, err = c.FindByID(ctx, "State", "ZZ")
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "akera.find", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), attribute.String("connector.model", "State"))
	assert.Equal(t, "akera.findById", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}
