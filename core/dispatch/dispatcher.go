package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/leofalp/mule/internal/utils"
	"github.com/leofalp/mule/providers/ai"
	"github.com/leofalp/mule/providers/observability"
)

// DefaultTimeout bounds a single dispatch, including middleware retries.
const DefaultTimeout = 2 * time.Minute

var (
	// ErrProviderNotConfigured is returned when the selected path has no provider.
	ErrProviderNotConfigured = errors.New("dispatch: provider not configured")
	// ErrEmptyHistory is returned when there is nothing to send.
	ErrEmptyHistory = errors.New("dispatch: empty history")
)

// Request carries the per-call parameters that are not part of the history.
type Request struct {
	Model string
	// Format is an optional JSON schema constraining the response.
	Format json.RawMessage
}

// Dispatcher routes chat histories to the local or remote provider.
type Dispatcher struct {
	providers   map[Selection]ai.Provider
	chains      map[Selection]SendFunc
	middlewares []Middleware
	timeout     time.Duration
	logger      *slog.Logger
	observer    observability.Provider
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMiddleware appends middlewares to both paths.
func WithMiddleware(middlewares ...Middleware) Option {
	return func(d *Dispatcher) {
		d.middlewares = append(d.middlewares, middlewares...)
	}
}

// WithTimeout bounds each dispatch. Zero or negative disables the bound.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.timeout = timeout
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithObserver sets the tracing and metrics provider. When unset, the one
// carried by the context is used.
func WithObserver(observer observability.Provider) Option {
	return func(d *Dispatcher) {
		d.observer = observer
	}
}

// New builds a Dispatcher. Either provider may be nil; selecting a nil path
// fails the dispatch with ErrProviderNotConfigured.
func New(local, remote ai.Provider, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		providers: map[Selection]ai.Provider{},
		chains:    map[Selection]SendFunc{},
		timeout:   DefaultTimeout,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}

	for sel, provider := range map[Selection]ai.Provider{Local: local, Remote: remote} {
		if provider == nil {
			continue
		}
		d.providers[sel] = provider
		d.chains[sel] = Chain(provider, d.middlewares...)
	}
	return d
}

// Provider returns the provider configured for s, or nil.
func (d *Dispatcher) Provider(s Selection) ai.Provider {
	return d.providers[s]
}

// Dispatch sends history and returns it with the response appended as a
// system message. On any failure the error is logged and history is
// returned unchanged.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request, history ai.ChatHistory) ai.ChatHistory {
	resp, err := d.Send(ctx, req, history)
	if err != nil {
		d.logger.ErrorContext(ctx, "Dispatch failed",
			"selection", SelectionFromContext(ctx).String(),
			"model", req.Model,
			"messages", len(history),
			"error", err,
		)
		return history
	}
	return history.Append(ai.NewSystemMessage(resp.Content))
}

// Send performs the call on the path selected by ctx and returns the raw
// result. The selection is read once, here.
func (d *Dispatcher) Send(ctx context.Context, req Request, history ai.ChatHistory) (*ai.ChatResponse, error) {
	selection := SelectionFromContext(ctx)
	chain, ok := d.chains[selection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, selection)
	}
	if len(history) == 0 {
		return nil, ErrEmptyHistory
	}

	observer := observability.ResolveObserver(ctx, d.observer)
	providerName := d.providers[selection].Name()
	ctx, span := observability.StartSpan(ctx, observer, observability.SpanDispatch,
		observability.String(observability.AttrLLMProvider, providerName),
		observability.String(observability.AttrLLMModel, req.Model),
		observability.Int(observability.AttrRequestMessagesCount, len(history)),
	)

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	sw := utils.StartStopwatch()
	resp, err := chain(ctx, ai.ChatRequest{
		Model:    req.Model,
		Messages: history,
		Format:   req.Format,
	})
	elapsed := sw.Elapsed()

	if err == nil && resp == nil {
		err = fmt.Errorf("dispatch: %s returned no response", providerName)
	}

	status := "ok"
	if err != nil {
		status = "error"
	} else if resp.Usage != nil {
		span.SetAttributes(
			observability.Int(observability.AttrLLMTokensPrompt, resp.Usage.PromptTokens),
			observability.Int(observability.AttrLLMTokensCompletion, resp.Usage.CompletionTokens),
		)
	}
	observability.AddCounter(ctx, observer, observability.MetricDispatchCount, 1,
		observability.String(observability.AttrLLMProvider, providerName),
		observability.String(observability.AttrStatus, status),
	)
	observability.RecordHistogram(ctx, observer, observability.MetricDispatchDuration, float64(elapsed.Milliseconds()),
		observability.String(observability.AttrLLMProvider, providerName),
	)
	observability.EndSpan(span, err)

	if err != nil {
		return nil, err
	}
	return resp, nil
}
