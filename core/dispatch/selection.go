package dispatch

import (
	"context"
	"fmt"
	"strings"
)

// Selection chooses the inference path.
type Selection int

const (
	// Local dispatches to the Ollama endpoint.
	Local Selection = iota
	// Remote dispatches to OpenRouter.
	Remote
)

func (s Selection) String() string {
	switch s {
	case Local:
		return "local"
	case Remote:
		return "remote"
	default:
		return fmt.Sprintf("selection(%d)", int(s))
	}
}

// ParseSelection accepts "local"/"ollama" and "remote"/"openrouter".
func ParseSelection(value string) (Selection, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "local", "ollama":
		return Local, nil
	case "remote", "openrouter":
		return Remote, nil
	default:
		return Local, fmt.Errorf("dispatch: unknown provider selection %q", value)
	}
}

type selectionKey struct{}

// WithSelection returns a context that routes dispatches to s.
func WithSelection(ctx context.Context, s Selection) context.Context {
	return context.WithValue(ctx, selectionKey{}, s)
}

// SelectionFromContext returns the selection carried by ctx, or Local.
func SelectionFromContext(ctx context.Context) Selection {
	if ctx == nil {
		return Local
	}
	if s, ok := ctx.Value(selectionKey{}).(Selection); ok {
		return s
	}
	return Local
}
