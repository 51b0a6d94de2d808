package slogobs

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/leofalp/mule/providers/observability"
)

// Observer implements observability.Provider on top of a slog.Logger. Spans
// become debug log lines and metrics are kept in memory so the CLI can print
// a summary at the end of a run.
type Observer struct {
	logger  *slog.Logger
	closer  io.Closer
	metrics *metricsStore
}

// New creates a new slog-based observer with functional options.
// Without options the format and level come from MULE_LOG_FORMAT and
// MULE_LOG_LEVEL, defaulting to compact output at INFO.
//
// Example usage:
//
//	observer := slogobs.New(
//	    slogobs.WithLevel(slog.LevelDebug),
//	    slogobs.WithFile("/tmp/mule.log"),
//	)
//	defer observer.Close()
//	slog.SetDefault(observer.Logger())
func New(opts ...Option) *Observer {
	cfg := applyOptions(opts...)

	observer := &Observer{metrics: newMetricsStore()}
	if cfg.logger != nil {
		observer.logger = cfg.logger
		return observer
	}

	output := cfg.output
	if cfg.file != nil {
		output = io.MultiWriter(output, cfg.file)
		observer.closer = cfg.file
	}

	observer.logger = slog.New(NewHandler(&HandlerOptions{
		Format: cfg.format,
		Level:  cfg.level,
		Output: output,
		Colors: cfg.colors && cfg.file == nil,
	}))
	return observer
}

// Ensure Observer implements observability.Provider
var _ observability.Provider = (*Observer)(nil)

// Logger returns the underlying logger.
func (o *Observer) Logger() *slog.Logger {
	return o.logger
}

// AgentLogger returns a logger whose lines carry the agent name as a prefix.
func (o *Observer) AgentLogger(name string) *slog.Logger {
	return AgentLogger(o.logger, name)
}

// Close flushes and closes the rotated log file, if any.
func (o *Observer) Close() error {
	if o.closer == nil {
		return nil
	}
	return o.closer.Close()
}

// AgentLogger derives a logger tagged with the agent name from base. A nil
// base uses slog.Default().
func AgentLogger(base *slog.Logger, name string) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	return base.With(slog.String(AgentKey, name))
}

// --- TRACING ---

// StartSpan begins a new named span and emits a debug log event at its start.
// The returned Span's End method logs the elapsed duration together with every
// attribute accumulated on the span.
func (o *Observer) StartSpan(ctx context.Context, name string, attrs ...observability.Attribute) (context.Context, observability.Span) {
	span := &slogSpan{
		name:      name,
		startTime: time.Now(),
		logger:    o.logger,
		attrs:     attrs,
	}

	o.logger.LogAttrs(ctx, slog.LevelDebug, "Span started", span.logAttrs("span.start", attrs)...)
	return ctx, span
}

type slogSpan struct {
	name      string
	startTime time.Time
	logger    *slog.Logger
	attrs     []observability.Attribute
	mu        sync.Mutex
}

// logAttrs converts span attributes to slog attributes. The agent name is
// repeated under AgentKey so the handler renders it as the line prefix.
func (s *slogSpan) logAttrs(event string, attrs []observability.Attribute) []slog.Attr {
	out := make([]slog.Attr, 0, len(attrs)+3)
	out = append(out, slog.String("span", s.name), slog.String("event", event))
	for _, attr := range attrs {
		if attr.Key == observability.AttrAgentName {
			out = append(out, slog.Any(AgentKey, attr.Value))
			continue
		}
		out = append(out, slog.Any(attr.Key, attr.Value))
	}
	return out
}

// End logs the span end event with its duration at debug level.
func (s *slogSpan) End() {
	s.mu.Lock()
	defer s.mu.Unlock()

	logAttrs := s.logAttrs("span.end", s.attrs)
	logAttrs = append(logAttrs, slog.Duration(observability.AttrDuration, time.Since(s.startTime)))
	s.logger.LogAttrs(context.Background(), slog.LevelDebug, "Span ended", logAttrs...)
}

// SetAttributes appends the provided attributes to the span's attribute list.
func (s *slogSpan) SetAttributes(attrs ...observability.Attribute) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs = append(s.attrs, attrs...)
}

// SetStatus records the final status of the span.
func (s *slogSpan) SetStatus(code observability.StatusCode, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attrs = append(s.attrs, observability.String(observability.AttrStatus, code.String()))
	if description != "" {
		s.attrs = append(s.attrs, observability.String(observability.AttrStatusDescription, description))
	}
}

// RecordError logs err at warn level. Failures inside a span are degraded
// by the caller (empty fetches, unchanged history), so they are not errors
// of the run itself.
func (s *slogSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attrs = append(s.attrs, observability.Error(err))
	s.logger.LogAttrs(context.Background(), slog.LevelWarn, "Span error",
		s.logAttrs("error", []observability.Attribute{observability.Error(err)})...)
}

// AddEvent logs a named event with optional attributes at debug level.
func (s *slogSpan) AddEvent(name string, attrs ...observability.Attribute) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger.LogAttrs(context.Background(), slog.LevelDebug, "Span event", s.logAttrs(name, attrs)...)
}

// --- METRICS ---

// Counter returns the named counter. Repeated calls return the same instance.
func (o *Observer) Counter(name string) observability.Counter {
	return o.metrics.getCounter(name, o.logger)
}

// Histogram returns the named histogram. Repeated calls return the same instance.
func (o *Observer) Histogram(name string) observability.Histogram {
	return o.metrics.getHistogram(name, o.logger)
}

// MetricSummary is a point-in-time view of one metric.
type MetricSummary struct {
	Name  string
	Type  string
	Count int64
	Sum   float64
}

// Summary returns every metric recorded so far, sorted by name. Counters
// report their total in Count; histograms report observations and their sum.
func (o *Observer) Summary() []MetricSummary {
	return o.metrics.summary()
}

// metricsStore holds metrics in memory (thread-safe)
type metricsStore struct {
	mu         sync.RWMutex
	counters   map[string]*slogCounter
	histograms map[string]*slogHistogram
}

func newMetricsStore() *metricsStore {
	return &metricsStore{
		counters:   make(map[string]*slogCounter),
		histograms: make(map[string]*slogHistogram),
	}
}

func (m *metricsStore) getCounter(name string, logger *slog.Logger) *slogCounter {
	m.mu.RLock()
	counter, exists := m.counters[name]
	m.mu.RUnlock()
	if exists {
		return counter
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if counter, exists := m.counters[name]; exists {
		return counter
	}
	counter = &slogCounter{name: name, logger: logger}
	m.counters[name] = counter
	return counter
}

func (m *metricsStore) getHistogram(name string, logger *slog.Logger) *slogHistogram {
	m.mu.RLock()
	histogram, exists := m.histograms[name]
	m.mu.RUnlock()
	if exists {
		return histogram
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if histogram, exists := m.histograms[name]; exists {
		return histogram
	}
	histogram = &slogHistogram{name: name, logger: logger}
	m.histograms[name] = histogram
	return histogram
}

func (m *metricsStore) summary() []MetricSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]MetricSummary, 0, len(m.counters)+len(m.histograms))
	for name, counter := range m.counters {
		counter.mu.Lock()
		out = append(out, MetricSummary{Name: name, Type: "counter", Count: counter.value})
		counter.mu.Unlock()
	}
	for name, histogram := range m.histograms {
		histogram.mu.Lock()
		out = append(out, MetricSummary{Name: name, Type: "histogram", Count: histogram.count, Sum: histogram.sum})
		histogram.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type slogCounter struct {
	name   string
	logger *slog.Logger
	mu     sync.Mutex
	value  int64
}

// Add increments the counter by value and logs the updated total at DEBUG level.
func (c *slogCounter) Add(ctx context.Context, value int64, attrs ...observability.Attribute) {
	c.mu.Lock()
	c.value += value
	currentValue := c.value
	c.mu.Unlock()

	logAttrs := []slog.Attr{
		slog.String("metric", c.name),
		slog.String("type", "counter"),
		slog.Int64("value", currentValue),
		slog.Int64("delta", value),
	}
	for _, attr := range attrs {
		logAttrs = append(logAttrs, slog.Any(attr.Key, attr.Value))
	}
	c.logger.LogAttrs(ctx, slog.LevelDebug, "Counter", logAttrs...)
}

type slogHistogram struct {
	name   string
	logger *slog.Logger
	mu     sync.Mutex
	count  int64
	sum    float64
}

// Record accumulates an observation and logs it at DEBUG level.
func (h *slogHistogram) Record(ctx context.Context, value float64, attrs ...observability.Attribute) {
	h.mu.Lock()
	h.count++
	h.sum += value
	h.mu.Unlock()

	logAttrs := []slog.Attr{
		slog.String("metric", h.name),
		slog.String("type", "histogram"),
		slog.Float64("value", value),
	}
	for _, attr := range attrs {
		logAttrs = append(logAttrs, slog.Any(attr.Key, attr.Value))
	}
	h.logger.LogAttrs(ctx, slog.LevelDebug, "Histogram", logAttrs...)
}
