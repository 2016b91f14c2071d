// Package logger provides the zap loggers used by the akera connector.
//
// There is one process-wide logger (Init, Get) and, for connectors created
// with the debug option, a dedicated debug-level logger per connector name
// (ForConnector). Operation context travels in context.Context so that pool
// and backend log lines name the ORM operation and model they belong to.
package logger

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger *zap.Logger
	globalMu     sync.RWMutex

	debugLoggers   = make(map[string]*zap.Logger)
	debugLoggersMu sync.Mutex
)

type operationKey struct{}

// operation is the ORM call a context belongs to
type operation struct {
	name  string
	model string
}

// Config represents logger configuration
type Config struct {
	Level       string
	Development bool
	Encoding    string // json or console
	OutputPaths []string
}

// Init builds the process logger from cfg. Later calls replace it.
func Init(cfg Config) error {
	l, err := newLogger(cfg)
	if err != nil {
		return err
	}
	Set(l)
	return nil
}

func newLogger(cfg Config) (*zap.Logger, error) {
	levelName := cfg.Level
	if levelName == "" {
		levelName = "info"
	}
	level, err := zapcore.ParseLevel(levelName)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.MessageKey = "message"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	if cfg.Development {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	encoding := cfg.Encoding
	if encoding == "" {
		encoding = "json"
	}
	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stderr"}
	}

	zapCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Development,
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}

	l, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return l, nil
}

// Get returns the process logger, building an info-level JSON logger on
// first use
func Get() *zap.Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		var err error
		if globalLogger, err = newLogger(Config{}); err != nil {
			globalLogger = zap.NewNop()
		}
	}
	return globalLogger
}

// Set replaces the process logger
func Set(l *zap.Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

// ForConnector returns the logger a connector instance should use. When debug
// is set the connector gets its own debug-level logger regardless of the
// global level, so a single data source can be traced in isolation.
func ForConnector(name string, debug bool) *zap.Logger {
	if !debug {
		return Get().With(zap.String("connector", name))
	}

	debugLoggersMu.Lock()
	defer debugLoggersMu.Unlock()

	if l, ok := debugLoggers[name]; ok {
		return l
	}
	l, err := newLogger(Config{Level: "debug", Encoding: "console"})
	if err != nil {
		return Get().With(zap.String("connector", name))
	}
	l = l.With(zap.String("connector", name))
	debugLoggers[name] = l
	return l
}

// WithOperation records the ORM operation and model on ctx
func WithOperation(ctx context.Context, name, model string) context.Context {
	return context.WithValue(ctx, operationKey{}, operation{name: name, model: model})
}

// FromContext returns base annotated with the operation, model and trace id
// carried by ctx
func FromContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if base == nil {
		base = Get()
	}
	var fields []zap.Field
	if op, ok := ctx.Value(operationKey{}).(operation); ok {
		fields = append(fields, zap.String("operation", op.name))
		if op.model != "" {
			fields = append(fields, zap.String("model", op.model))
		}
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		fields = append(fields, zap.String("trace_id", sc.TraceID().String()))
	}
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// Sync flushes any buffered log entries
func Sync() error {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l.Sync()
	}
	return nil
}
