package otelobs

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/leofalp/mule/providers/observability"
)

func newRecordingProvider() (*Provider, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return NewWithProviders(tp, metricnoop.NewMeterProvider()), recorder
}

func TestSetup_None(t *testing.T) {
	for _, exporter := range []string{"", ExporterNone} {
		shutdown, err := Setup(context.Background(), exporter)
		if err != nil {
			t.Fatalf("Setup(%q): %v", exporter, err)
		}
		defer shutdown(context.Background())

		if _, ok := otel.GetTracerProvider().(noop.TracerProvider); !ok {
			t.Errorf("expected noop provider for %q, got %T", exporter, otel.GetTracerProvider())
		}
	}
}

func TestSetup_Stdout(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Setup(context.Background(), ExporterStdout, stdouttrace.WithWriter(&buf))
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	_, span := New().StartSpan(context.Background(), observability.SpanDispatch)
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !bytes.Contains(buf.Bytes(), []byte(observability.SpanDispatch)) {
		t.Errorf("expected exported span in output, got: %s", buf.String())
	}
	otel.SetTracerProvider(noop.NewTracerProvider())
}

func TestSetup_Unsupported(t *testing.T) {
	if _, err := Setup(context.Background(), "jaeger"); err == nil {
		t.Error("expected error for unsupported exporter")
	}
}

func TestProvider_SpanAttributesAndStatus(t *testing.T) {
	provider, recorder := newRecordingProvider()

	ctx, span := provider.StartSpan(context.Background(), observability.SpanGrounding,
		observability.String(observability.AttrGroundingQuery, "body ache"),
		observability.Int(observability.AttrGroundingRequested, 3),
	)
	if ctx == nil {
		t.Fatal("expected non-nil context")
	}
	span.AddEvent(observability.EventFetchFailed, observability.String(observability.AttrFetchURL, "https://a.test"))
	span.SetAttributes(
		observability.Duration(observability.AttrDuration, 1500*time.Millisecond),
		observability.StringSlice("blocklist", []string{"youtube.com"}),
	)
	span.RecordError(errors.New("fetch timeout"))
	span.SetStatus(observability.StatusError, "fetch timeout")
	span.End()

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 ended span, got %d", len(ended))
	}
	got := ended[0]
	if got.Name() != observability.SpanGrounding {
		t.Errorf("span name = %q", got.Name())
	}
	if got.Status().Code != codes.Error || got.Status().Description != "fetch timeout" {
		t.Errorf("unexpected status %+v", got.Status())
	}

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range got.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	if attrs[observability.AttrGroundingQuery].AsString() != "body ache" {
		t.Errorf("missing query attribute: %v", attrs)
	}
	if attrs[observability.AttrGroundingRequested].AsInt64() != 3 {
		t.Errorf("missing requested attribute: %v", attrs)
	}
	if attrs[observability.AttrDuration+"_ms"].AsInt64() != 1500 {
		t.Errorf("expected duration in ms, got %v", attrs)
	}
	if len(attrs["blocklist"].AsStringSlice()) != 1 {
		t.Errorf("expected string slice attribute, got %v", attrs)
	}

	// one user event plus the exception event from RecordError
	if len(got.Events()) != 2 || got.Events()[0].Name != observability.EventFetchFailed {
		t.Errorf("unexpected events %+v", got.Events())
	}
}

func TestProvider_ContextPropagation(t *testing.T) {
	provider, recorder := newRecordingProvider()

	ctx, parent := provider.StartSpan(context.Background(), observability.SpanAgentInvocation)
	_, child := provider.StartSpan(ctx, observability.SpanDispatch)
	child.SetStatus(observability.StatusOK, "")
	child.End()
	parent.End()

	ended := recorder.Ended()
	if len(ended) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(ended))
	}
	if ended[0].Parent().SpanID() != ended[1].SpanContext().SpanID() {
		t.Error("expected dispatch span to be a child of the invocation span")
	}
}

func TestProvider_Metrics(t *testing.T) {
	provider, _ := newRecordingProvider()
	ctx := context.Background()

	// noop instruments must accept calls without panicking
	provider.Counter(observability.MetricDispatchCount).Add(ctx, 1, observability.String(observability.AttrStatus, "ok"))
	provider.Counter(observability.MetricDispatchCount).Add(ctx, 1)
	provider.Histogram(observability.MetricDispatchDuration).Record(ctx, 12.5)

	if len(provider.counters) != 1 || len(provider.histograms) != 1 {
		t.Errorf("expected instruments to be cached, got %d counters and %d histograms",
			len(provider.counters), len(provider.histograms))
	}
}
