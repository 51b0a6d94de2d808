package observability

import "context"

type contextKey int

const (
	spanContextKey contextKey = iota
	observerContextKey
)

// SpanFromContext returns the span stored by [ContextWithSpan], or nil.
func SpanFromContext(ctx context.Context) Span {
	if ctx == nil {
		return nil
	}
	span, _ := ctx.Value(spanContextKey).(Span)
	return span
}

// ContextWithSpan returns ctx carrying span. A nil ctx means Background.
func ContextWithSpan(ctx context.Context, span Span) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, spanContextKey, span)
}

// ObserverFromContext returns the Provider stored by [ContextWithObserver],
// or nil.
func ObserverFromContext(ctx context.Context) Provider {
	if ctx == nil {
		return nil
	}
	observer, _ := ctx.Value(observerContextKey).(Provider)
	return observer
}

// ContextWithObserver returns ctx carrying observer, so components created
// without one (agents spawned inside a graph run, sub-agents of a research
// team) report into the same trace.
func ContextWithObserver(ctx context.Context, observer Provider) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, observerContextKey, observer)
}

// ResolveObserver returns the first non-nil configured observer, falling
// back to the one carried by ctx. The result may be nil.
func ResolveObserver(ctx context.Context, configured ...Provider) Provider {
	for _, observer := range configured {
		if observer != nil {
			return observer
		}
	}
	return ObserverFromContext(ctx)
}
