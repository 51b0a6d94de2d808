package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/leofalp/mule/core/agent"
	"github.com/leofalp/mule/internal/utils"
	"github.com/leofalp/mule/providers/ai"
)

// Run starts every node as an agent invocation in topological order and
// waits for all of them. A node starts its body as soon as its own
// dependencies are done, so independent branches run concurrently.
//
// Node failures do not fail the run: they are reported in Result.Status and
// Result.Errors, and dependants see the failed node as empty content. Run
// returns an error only when ctx ends or the execution timeout expires
// before every node has finished; the partial Result is returned with it.
func (g *Graph) Run(ctx context.Context, rt *agent.Runtime) (*Result, error) {
	sw := utils.StartStopwatch()

	if g.config.executionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.executionTimeout)
		defer cancel()
	}

	obs := g.observeRunStart(ctx, rt)
	ctx = obs.ctx

	invocations := make(map[string]*agent.Invocation, len(g.nodes))
	ordered := make([]*agent.Invocation, 0, len(g.topologicalOrder))
	for _, nodeID := range g.topologicalOrder {
		graphNode := g.nodes[nodeID]

		deps := make(agent.Deps, len(graphNode.dependencies))
		for name, upstream := range graphNode.dependencies {
			deps[name] = invocations[upstream]
		}

		var opts []agent.InvokeOption
		if graphNode.timeout > 0 {
			opts = append(opts, agent.WithInvocationTimeout(graphNode.timeout))
		}

		inv := graphNode.agent.Invoke(ctx, rt, graphNode.body, deps, opts...)
		invocations[nodeID] = inv
		ordered = append(ordered, inv)
	}

	result := &Result{
		Histories: make(map[string]ai.ChatHistory, len(g.nodes)),
		Status:    make(map[string]NodeStatus, len(g.nodes)),
		Errors:    make(map[string]error),
	}

	var runErr error
	for i, inv := range ordered {
		nodeID := g.topologicalOrder[i]
		history, err := inv.Await(ctx)
		switch {
		case err == nil:
			result.Status[nodeID] = NodeCompleted
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			result.Status[nodeID] = NodeCanceled
			result.Errors[nodeID] = err
		default:
			result.Status[nodeID] = NodeFailed
			result.Errors[nodeID] = err
		}
		result.Histories[nodeID] = history
		obs.nodeFinished(ctx, nodeID, result.Status[nodeID], err)

		if ctxErr := ctx.Err(); ctxErr != nil && runErr == nil {
			runErr = fmt.Errorf("graph: run interrupted at node %q: %w", nodeID, ctxErr)
		}
	}

	result.Output = result.Histories[g.outputNodeID]
	result.Duration = sw.Elapsed()
	obs.runFinished(ctx, result, runErr)

	return result, runErr
}
