package graph

import (
	"errors"
	"time"

	"github.com/leofalp/mule/core/agent"
	"github.com/leofalp/mule/providers/ai"
	"github.com/leofalp/mule/providers/observability"
)

// ErrCycle is returned by Build when the edges form a cycle.
var ErrCycle = errors.New("graph: cycle detected")

// NodeStatus represents the outcome of a node after a run.
type NodeStatus string

const (
	// NodeCompleted indicates the node history ends in a model response.
	NodeCompleted NodeStatus = "completed"

	// NodeFailed indicates the node finished without a response. Its
	// dependants still ran and saw it as empty content.
	NodeFailed NodeStatus = "failed"

	// NodeCanceled indicates the run ended before the node finished.
	NodeCanceled NodeStatus = "canceled"
)

// Result is the outcome of a run.
type Result struct {
	// Output is the history of the output node.
	Output ai.ChatHistory

	// Histories maps every node ID to the history it produced.
	Histories map[string]ai.ChatHistory

	// Status maps every node ID to its outcome.
	Status map[string]NodeStatus

	// Errors maps failed node IDs to their failure.
	Errors map[string]error

	// Duration is the wall-clock time of the run.
	Duration time.Duration
}

// node is a single agent in the graph.
type node struct {
	id    string
	agent *agent.Agent
	body  agent.Body

	// timeout bounds this node's invocation, fan-in included. Zero means
	// only the graph timeout applies.
	timeout time.Duration

	// dependencies maps dependency names to upstream node IDs. Populated
	// during Build from the edges.
	dependencies map[string]string
}

// edge is a directed dependency from an upstream node to a dependant.
type edge struct {
	from string
	to   string

	// name is the dependency name seen by the dependant. Defaults to from.
	name string
}

// graphConfig holds the configuration for a Graph, populated by Options.
type graphConfig struct {
	// executionTimeout is the maximum duration for the entire run. Zero
	// means no timeout.
	executionTimeout time.Duration

	// outputNodeID designates which node produces the output. If empty, the
	// last node in topological order is used.
	outputNodeID string

	observer observability.Provider
}

// Graph is a validated, runnable agent pipeline. A Graph holds no run state
// and may be run concurrently.
type Graph struct {
	nodes map[string]*node
	edges []*edge

	// levels contains node IDs grouped by topological level. Level 0 nodes
	// have no dependencies.
	levels [][]string

	topologicalOrder []string
	outputNodeID     string
	config           *graphConfig
}

// Levels returns node IDs grouped by topological level.
func (g *Graph) Levels() [][]string {
	out := make([][]string, len(g.levels))
	for i, level := range g.levels {
		out[i] = append([]string(nil), level...)
	}
	return out
}

// Order returns node IDs in topological order.
func (g *Graph) Order() []string {
	return append([]string(nil), g.topologicalOrder...)
}

// OutputNode returns the ID of the node whose history is the run output.
func (g *Graph) OutputNode() string {
	return g.outputNodeID
}
