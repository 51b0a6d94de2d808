package graph

import (
	"context"
	"log/slog"

	"github.com/leofalp/mule/core/agent"
	"github.com/leofalp/mule/providers/observability"
)

// Semantic conventions for graph observability attributes.
const (
	// spanGraphRun is the span name for a whole run.
	spanGraphRun = "graph.run"

	// attrGraphNodeID identifies the node within the graph.
	attrGraphNodeID = "graph.node.id"

	// attrGraphNodeStatus is the outcome of a node.
	attrGraphNodeStatus = "graph.node.status"

	// attrGraphTotalNodes is the total number of nodes in the graph.
	attrGraphTotalNodes = "graph.total_nodes"

	// attrGraphTotalLevels is the total number of topological levels.
	attrGraphTotalLevels = "graph.total_levels"

	// attrGraphOutputNode is the designated output node ID.
	attrGraphOutputNode = "graph.output_node"

	// metricGraphNodeCount is the counter for finished nodes by status.
	metricGraphNodeCount = "mule.graph.node.count"

	// metricGraphRunDuration is the histogram for run duration in milliseconds.
	metricGraphRunDuration = "mule.graph.run.duration"
)

// runObservation carries the span and logger of a single run.
type runObservation struct {
	ctx      context.Context
	provider observability.Provider
	span     observability.Span
	logger   *slog.Logger
}

// observeRunStart resolves the observer, opens the run span and stores both
// in the returned context so agent invocations nest under it.
func (g *Graph) observeRunStart(ctx context.Context, rt *agent.Runtime) *runObservation {
	var fromRuntime observability.Provider
	if rt != nil {
		fromRuntime = rt.Observer
	}
	provider := observability.ResolveObserver(ctx, g.config.observer, fromRuntime)

	logger := slog.Default()
	if rt != nil && rt.Logger != nil {
		logger = rt.Logger
	}

	ctx, span := observability.StartSpan(ctx, provider, spanGraphRun,
		observability.Int(attrGraphTotalNodes, len(g.nodes)),
		observability.Int(attrGraphTotalLevels, len(g.levels)),
		observability.String(attrGraphOutputNode, g.outputNodeID),
	)
	if provider != nil {
		ctx = observability.ContextWithObserver(ctx, provider)
	}

	logger.DebugContext(ctx, "Graph run started",
		"nodes", len(g.nodes),
		"levels", len(g.levels),
		"output", g.outputNodeID,
	)

	return &runObservation{ctx: ctx, provider: provider, span: span, logger: logger}
}

func (obs *runObservation) nodeFinished(ctx context.Context, nodeID string, status NodeStatus, err error) {
	observability.AddCounter(ctx, obs.provider, metricGraphNodeCount, 1,
		observability.String(attrGraphNodeStatus, string(status)),
	)

	if err != nil {
		obs.logger.WarnContext(ctx, "Graph node did not complete",
			"node", nodeID,
			"status", string(status),
			"error", err,
		)
		obs.span.AddEvent("graph.node.failed",
			observability.String(attrGraphNodeID, nodeID),
			observability.String(attrGraphNodeStatus, string(status)),
		)
		return
	}
	obs.logger.DebugContext(ctx, "Graph node completed", "node", nodeID)
}

func (obs *runObservation) runFinished(ctx context.Context, result *Result, err error) {
	observability.RecordHistogram(ctx, obs.provider, metricGraphRunDuration, float64(result.Duration.Milliseconds()))

	obs.logger.InfoContext(ctx, "Graph run finished",
		"failed", len(result.Errors),
		"duration", result.Duration.String(),
	)
	obs.span.SetAttributes(observability.Duration(observability.AttrDuration, result.Duration))
	observability.EndSpan(obs.span, err)
}
