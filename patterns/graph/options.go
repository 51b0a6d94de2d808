package graph

import (
	"time"

	"github.com/leofalp/mule/providers/observability"
)

// Option is a functional option for configuring Graph behavior.
type Option func(*graphConfig)

// NodeOption is a functional option for configuring an individual node.
type NodeOption func(*node)

// EdgeOption is a functional option for configuring an individual edge.
type EdgeOption func(*edge)

// --- Graph Options ---

// WithExecutionTimeout sets the maximum duration for a whole run. When it
// expires every pending invocation is canceled. Zero means no timeout.
func WithExecutionTimeout(timeout time.Duration) Option {
	return func(config *graphConfig) {
		config.executionTimeout = timeout
	}
}

// WithOutputNode designates the node whose history becomes Result.Output.
// By default, the last node in topological order is used.
func WithOutputNode(nodeID string) Option {
	return func(config *graphConfig) {
		config.outputNodeID = nodeID
	}
}

// WithObserver sets the observability provider for runs. When unset, the
// runtime observer or the one in the context is used.
func WithObserver(observer observability.Provider) Option {
	return func(config *graphConfig) {
		config.observer = observer
	}
}

// --- Node Options ---

// WithNodeTimeout bounds a single node invocation, including the time spent
// awaiting its dependencies.
func WithNodeTimeout(timeout time.Duration) NodeOption {
	return func(graphNode *node) {
		graphNode.timeout = timeout
	}
}

// --- Edge Options ---

// WithDependencyName sets the name under which the dependant sees the
// upstream history, such as "prior1" for a critic.
func WithDependencyName(name string) EdgeOption {
	return func(graphEdge *edge) {
		if name != "" {
			graphEdge.name = name
		}
	}
}
