// Package otelobs adapts OpenTelemetry tracing and metrics to the
// observability.Provider interface so dispatch, grounding and agent spans can
// be exported through any OpenTelemetry pipeline.
package otelobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/leofalp/mule/providers/observability"
)

const instrumentationName = "github.com/leofalp/mule"

// Supported exporter names for [Setup].
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// Setup installs the global TracerProvider for the named exporter and returns
// a shutdown function that flushes pending spans. "none" and "" install a
// no-op provider.
func Setup(ctx context.Context, exporter string, opts ...stdouttrace.Option) (func(context.Context) error, error) {
	noopShutdown := func(context.Context) error { return nil }

	switch exporter {
	case ExporterNone, "":
		otel.SetTracerProvider(noop.NewTracerProvider())
		return noopShutdown, nil
	case ExporterStdout:
		exp, err := stdouttrace.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("otelobs: create stdout exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
		)
		otel.SetTracerProvider(tp)
		return tp.Shutdown, nil
	default:
		return nil, fmt.Errorf("otelobs: unsupported exporter: %s", exporter)
	}
}

// Provider implements observability.Provider with an OpenTelemetry tracer
// and meter.
type Provider struct {
	tracer trace.Tracer
	meter  metric.Meter

	mu         sync.Mutex
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
}

var _ observability.Provider = (*Provider)(nil)

// New creates a Provider from the global tracer and meter providers, which
// [Setup] configures.
func New() *Provider {
	return NewWithProviders(otel.GetTracerProvider(), otel.GetMeterProvider())
}

// NewWithProviders creates a Provider from explicit tracer and meter providers.
func NewWithProviders(tp trace.TracerProvider, mp metric.MeterProvider) *Provider {
	return &Provider{
		tracer:     tp.Tracer(instrumentationName),
		meter:      mp.Meter(instrumentationName),
		counters:   make(map[string]metric.Int64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

// StartSpan starts an OpenTelemetry span carrying attrs.
func (p *Provider) StartSpan(ctx context.Context, name string, attrs ...observability.Attribute) (context.Context, observability.Span) {
	ctx, span := p.tracer.Start(ctx, name, trace.WithAttributes(convertAttributes(attrs)...))
	return ctx, &otelSpan{span: span}
}

// Counter returns an Int64Counter for name. Instrument creation errors fall
// back to a no-op counter.
func (p *Provider) Counter(name string) observability.Counter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if counter, ok := p.counters[name]; ok {
		return &otelCounter{counter: counter}
	}
	counter, err := p.meter.Int64Counter(name)
	if err != nil {
		otel.Handle(err)
	}
	p.counters[name] = counter
	return &otelCounter{counter: counter}
}

// Histogram returns a Float64Histogram for name.
func (p *Provider) Histogram(name string) observability.Histogram {
	p.mu.Lock()
	defer p.mu.Unlock()

	if histogram, ok := p.histograms[name]; ok {
		return &otelHistogram{histogram: histogram}
	}
	histogram, err := p.meter.Float64Histogram(name)
	if err != nil {
		otel.Handle(err)
	}
	p.histograms[name] = histogram
	return &otelHistogram{histogram: histogram}
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() { s.span.End() }

func (s *otelSpan) SetAttributes(attrs ...observability.Attribute) {
	s.span.SetAttributes(convertAttributes(attrs)...)
}

func (s *otelSpan) SetStatus(code observability.StatusCode, description string) {
	switch code {
	case observability.StatusOK:
		s.span.SetStatus(codes.Ok, description)
	case observability.StatusError:
		s.span.SetStatus(codes.Error, description)
	default:
		s.span.SetStatus(codes.Unset, description)
	}
}

func (s *otelSpan) RecordError(err error) {
	if err != nil {
		s.span.RecordError(err)
	}
}

func (s *otelSpan) AddEvent(name string, attrs ...observability.Attribute) {
	s.span.AddEvent(name, trace.WithAttributes(convertAttributes(attrs)...))
}

type otelCounter struct {
	counter metric.Int64Counter
}

func (c *otelCounter) Add(ctx context.Context, value int64, attrs ...observability.Attribute) {
	if c.counter == nil {
		return
	}
	c.counter.Add(ctx, value, metric.WithAttributes(convertAttributes(attrs)...))
}

type otelHistogram struct {
	histogram metric.Float64Histogram
}

func (h *otelHistogram) Record(ctx context.Context, value float64, attrs ...observability.Attribute) {
	if h.histogram == nil {
		return
	}
	h.histogram.Record(ctx, value, metric.WithAttributes(convertAttributes(attrs)...))
}

// convertAttributes maps observability attributes to OpenTelemetry key-values.
// Durations are exported in milliseconds; unknown types use their %v form.
func convertAttributes(attrs []observability.Attribute) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		switch v := attr.Value.(type) {
		case string:
			out = append(out, attribute.String(attr.Key, v))
		case int:
			out = append(out, attribute.Int(attr.Key, v))
		case int64:
			out = append(out, attribute.Int64(attr.Key, v))
		case float64:
			out = append(out, attribute.Float64(attr.Key, v))
		case bool:
			out = append(out, attribute.Bool(attr.Key, v))
		case time.Duration:
			out = append(out, attribute.Int64(attr.Key+"_ms", v.Milliseconds()))
		case []string:
			out = append(out, attribute.StringSlice(attr.Key, v))
		default:
			out = append(out, attribute.String(attr.Key, fmt.Sprintf("%v", v)))
		}
	}
	return out
}
