// Package testutil provides the loggers, contexts and sports fixtures shared
// by the connector's tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/akera-connector/pkg/config"
)

// defaultTimeout bounds a test context when the test has no deadline
const defaultTimeout = 30 * time.Second

// TestLogger returns a debug-level logger writing to the test output, so
// translated queries show up in verbose runs.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t, zaptest.Level(zapcore.DebugLevel))
}

// TestContext returns a context that ends shortly before the test deadline,
// or after 30s when go test runs without one.
func TestContext(t *testing.T) (context.Context, context.CancelFunc) {
	if deadline, ok := t.Deadline(); ok {
		return context.WithDeadline(context.Background(), deadline.Add(-time.Second))
	}
	return context.WithTimeout(context.Background(), defaultTimeout)
}

// SportsConfig returns a configuration for the sports database with metrics
// off, so tests do not share prometheus series.
func SportsConfig(name string) *config.ConnectorConfig {
	cfg := config.NewConnectorConfig(name)
	cfg.Connection.Database = SportsDB
	cfg.Observability.EnableMetrics = false
	return cfg
}

// AssertEventually polls condition every 10ms and fails the test if it does
// not hold within timeout.
func AssertEventually(t *testing.T, condition func() bool, timeout time.Duration, msg string) {
	t.Helper()
	require.Eventually(t, condition, timeout, 10*time.Millisecond, msg)
}
