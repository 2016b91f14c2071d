package observability

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestConnectorTracer(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	tracer := NewConnectorTracer("sports", tp)
	testError := errors.New("test error")

	if err := tracer.Trace(context.Background(), "find", "Warehouse", func(context.Context) error {
		return nil
	}); err != nil {
		t.Fatalf("Trace should not return error for successful operation: %v", err)
	}

	if err := tracer.Trace(context.Background(), "create", "Warehouse", func(context.Context) error {
		return testError
	}); !errors.Is(err, testError) {
		t.Fatalf("Trace should return the operation error, got %v", err)
	}

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name() != "akera.find" {
		t.Errorf("unexpected span name %q", spans[0].Name())
	}
	if spans[0].Status().Code != codes.Ok {
		t.Errorf("expected ok status, got %v", spans[0].Status().Code)
	}
	if spans[1].Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", spans[1].Status().Code)
	}

	attrs := map[string]string{}
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	if attrs["connector.name"] != "sports" || attrs["connector.model"] != "Warehouse" {
		t.Errorf("unexpected attributes %v", attrs)
	}
}

func TestSpanAttributes(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	_, span := NewConnectorTracer("sports", tp).StartSpan(context.Background(), "count", "")
	span.SetAttribute("rows", 3)
	span.SetAttribute("ratio", 0.5)
	span.SetAttribute("cached", true)
	span.SetAttribute("filter", []string{"a"})
	span.End(nil)

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 span, got %d", len(ended))
	}
	seen := map[string]bool{}
	for _, kv := range ended[0].Attributes() {
		seen[string(kv.Key)] = true
	}
	for _, key := range []string{"rows", "ratio", "cached", "filter"} {
		if !seen[key] {
			t.Errorf("missing attribute %s", key)
		}
	}
	if seen["connector.model"] {
		t.Error("empty model should not be recorded")
	}
}

func TestInitTracing(t *testing.T) {
	var buf bytes.Buffer
	config := DefaultTracingConfig()
	config.Writer = &buf
	config.PrettyPrint = false
	config.Synchronous = true

	tp, err := InitTracing(config)
	if err != nil {
		t.Fatalf("Failed to initialize tracing: %v", err)
	}

	_ = NewConnectorTracer("sports", nil).Trace(context.Background(), "ping", "", func(context.Context) error {
		return nil
	})

	if err := Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	_ = tp

	if !strings.Contains(buf.String(), "akera.ping") {
		t.Errorf("exported spans should contain akera.ping, got %q", buf.String())
	}
}
