package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/leofalp/mule/providers/ai"
	"github.com/leofalp/mule/providers/observability"
)

var (
	// ErrNoResponse marks an invocation whose history does not end in a
	// model response, which is how a failed dispatch surfaces.
	ErrNoResponse = errors.New("agent: history has no response")

	// ErrPanicked marks an invocation whose body panicked.
	ErrPanicked = errors.New("agent: body panicked")
)

// Body is the behavior of an invocation. It receives the resolved
// dependencies and returns the history it produced.
type Body func(ctx context.Context, a *Agent, rt *Runtime, deps *Resolved) ai.ChatHistory

// Deps names the invocations an invocation depends on.
type Deps map[string]*Invocation

// Invocation is a future for a running body. It completes exactly once.
type Invocation struct {
	ID    string
	Agent string

	done    chan struct{}
	history ai.ChatHistory
	err     error
}

// InvokeOption configures a single invocation.
type InvokeOption func(*invokeConfig)

type invokeConfig struct {
	timeout time.Duration
}

// WithInvocationTimeout bounds the whole invocation, fan-in included.
func WithInvocationTimeout(d time.Duration) InvokeOption {
	return func(c *invokeConfig) {
		c.timeout = d
	}
}

// Invoke starts body in a new goroutine and returns immediately. Every entry
// of deps is awaited before body runs. Cancelling ctx abandons the fan-in and
// propagates into the dispatches made by body.
func (a *Agent) Invoke(ctx context.Context, rt *Runtime, body Body, deps Deps, opts ...InvokeOption) *Invocation {
	cfg := &invokeConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	inv := &Invocation{
		ID:    uuid.NewString(),
		Agent: a.Name,
		done:  make(chan struct{}),
	}
	go inv.run(ctx, a, rt, body, deps, cfg)
	return inv
}

func (inv *Invocation) run(ctx context.Context, a *Agent, rt *Runtime, body Body, deps Deps, cfg *invokeConfig) {
	defer close(inv.done)

	if cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	logger := a.Logger(rt)
	observer := rt.observer(ctx)
	ctx, span := observability.StartSpan(ctx, observer, observability.SpanAgentInvocation,
		observability.String(observability.AttrAgentName, a.Name),
		observability.String(observability.AttrAgentInvocationID, inv.ID),
		observability.Int(observability.AttrAgentDependencies, len(deps)),
	)
	defer func() {
		status := "ok"
		if inv.err != nil {
			status = "error"
		}
		span.SetAttributes(observability.Int(observability.AttrAgentHistoryLength, len(inv.history)))
		observability.AddCounter(ctx, observer, observability.MetricAgentInvocations, 1,
			observability.String(observability.AttrAgentName, a.Name),
			observability.String(observability.AttrStatus, status),
		)
		observability.EndSpan(span, inv.err)
	}()

	resolved, err := resolve(ctx, deps)
	if err != nil {
		logger.WarnContext(ctx, "Invocation abandoned while awaiting dependencies", "error", err)
		inv.err = err
		return
	}
	span.AddEvent(observability.EventDependenciesResolved,
		observability.Int(observability.AttrAgentFailedDependencies, resolved.FailedCount()),
	)

	inv.history, inv.err = runBody(ctx, a, rt, body, resolved)
	if inv.err != nil {
		logger.WarnContext(ctx, "Invocation failed", "error", inv.err)
		return
	}
	logger.DebugContext(ctx, "Invocation completed", "messages", len(inv.history))
}

func runBody(ctx context.Context, a *Agent, rt *Runtime, body Body, deps *Resolved) (history ai.ChatHistory, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanicked, r)
		}
	}()

	history = body(ctx, a, rt, deps)
	if err := ctx.Err(); err != nil {
		return history, err
	}
	if _, ok := history.Response(); !ok {
		return history, ErrNoResponse
	}
	return history, nil
}

// Done is closed when the invocation completes.
func (inv *Invocation) Done() <-chan struct{} {
	return inv.done
}

// Await blocks until the invocation completes or ctx is done. A completed
// but failed invocation returns its partial history together with the
// failure.
func (inv *Invocation) Await(ctx context.Context) (ai.ChatHistory, error) {
	select {
	case <-inv.done:
		return inv.history, inv.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Gather awaits invocations in their originating order. The result has one
// entry per invocation; failed ones carry their partial history. An error is
// returned only when ctx ends first. A nil invocation leaves a nil entry.
func Gather(ctx context.Context, invocations ...*Invocation) ([]ai.ChatHistory, error) {
	out := make([]ai.ChatHistory, len(invocations))
	for i, inv := range invocations {
		if inv == nil {
			continue
		}
		select {
		case <-inv.done:
			out[i] = inv.history
		case <-ctx.Done():
			return out, ctx.Err()
		}
	}
	return out, nil
}
