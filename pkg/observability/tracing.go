// Package observability provides tracing for connector operations
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/ajitpratap0/akera-connector"

// Span wraps a tracing span and batches its attributes until End
type Span struct {
	span       trace.Span
	attributes []attribute.KeyValue
}

// SetAttribute adds an attribute to the span
func (s *Span) SetAttribute(key string, value interface{}) {
	var attr attribute.KeyValue

	switch v := value.(type) {
	case string:
		attr = attribute.String(key, v)
	case int:
		attr = attribute.Int(key, v)
	case int64:
		attr = attribute.Int64(key, v)
	case float64:
		attr = attribute.Float64(key, v)
	case bool:
		attr = attribute.Bool(key, v)
	default:
		attr = attribute.String(key, fmt.Sprintf("%v", v))
	}

	s.attributes = append(s.attributes, attr)
}

// End records the outcome and ends the span
func (s *Span) End(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
		s.attributes = append(s.attributes, attribute.Bool("error", true))
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	if len(s.attributes) > 0 {
		s.span.SetAttributes(s.attributes...)
	}
	s.span.End()
}

// ConnectorTracer starts spans for the operations of one connector
type ConnectorTracer struct {
	connectorName string
	tracer        trace.Tracer
}

// NewConnectorTracer creates a connector tracer. A nil provider uses the
// global one, which is a no-op until InitTracing runs.
func NewConnectorTracer(connectorName string, provider trace.TracerProvider) *ConnectorTracer {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &ConnectorTracer{
		connectorName: connectorName,
		tracer:        provider.Tracer(instrumentationName),
	}
}

// StartSpan starts a span named akera.<operation>
func (ct *ConnectorTracer) StartSpan(ctx context.Context, operation, model string) (context.Context, *Span) {
	ctx, span := ct.tracer.Start(ctx, "akera."+operation)
	s := &Span{span: span}

	s.SetAttribute("connector.name", ct.connectorName)
	s.SetAttribute("connector.operation", operation)
	if model != "" {
		s.SetAttribute("connector.model", model)
	}
	return ctx, s
}

// Trace runs fn inside a span and records its error
func (ct *ConnectorTracer) Trace(ctx context.Context, operation, model string, fn func(context.Context) error) error {
	ctx, span := ct.StartSpan(ctx, operation, model)
	err := fn(ctx)
	span.End(err)
	return err
}
