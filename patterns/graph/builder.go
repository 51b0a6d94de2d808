package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/leofalp/mule/core/agent"
)

// Builder constructs a validated Graph using a fluent API. Nodes and edges
// are added incrementally and Build performs structural validation,
// including cycle detection via Kahn's algorithm.
//
// The builder enforces the following constraints:
//   - Node IDs must be unique
//   - Edge endpoints must reference existing nodes
//   - A dependant cannot use the same dependency name twice
//   - The graph must be acyclic
//   - If specified, the output node must exist
type Builder struct {
	config *graphConfig
	nodes  map[string]*node
	edges  []*edge

	// nodeOrder preserves insertion order for deterministic levels.
	nodeOrder []string

	// buildErrors accumulates errors from AddNode/AddEdge and is reported
	// when Build is called.
	buildErrors []error
}

// NewBuilder creates a Builder with the given graph options.
func NewBuilder(opts ...Option) *Builder {
	config := &graphConfig{}
	for _, opt := range opts {
		opt(config)
	}

	return &Builder{
		config: config,
		nodes:  make(map[string]*node),
	}
}

// AddNode registers an agent under a unique node ID together with the body
// it runs.
func (builder *Builder) AddNode(nodeID string, a *agent.Agent, body agent.Body, opts ...NodeOption) *Builder {
	switch {
	case nodeID == "":
		builder.buildErrors = append(builder.buildErrors, fmt.Errorf("node ID must not be empty"))
		return builder
	case a == nil:
		builder.buildErrors = append(builder.buildErrors, fmt.Errorf("agent must not be nil for node %q", nodeID))
		return builder
	case body == nil:
		builder.buildErrors = append(builder.buildErrors, fmt.Errorf("body must not be nil for node %q", nodeID))
		return builder
	}

	if _, exists := builder.nodes[nodeID]; exists {
		builder.buildErrors = append(builder.buildErrors, fmt.Errorf("duplicate node ID %q", nodeID))
		return builder
	}

	graphNode := &node{
		id:    nodeID,
		agent: a,
		body:  body,
	}
	for _, opt := range opts {
		opt(graphNode)
	}

	builder.nodes[nodeID] = graphNode
	builder.nodeOrder = append(builder.nodeOrder, nodeID)
	return builder
}

// AddEdge makes to depend on from. The dependant sees the upstream history
// under the upstream node ID unless WithDependencyName says otherwise.
func (builder *Builder) AddEdge(from, to string, opts ...EdgeOption) *Builder {
	if from == "" || to == "" {
		builder.buildErrors = append(builder.buildErrors, fmt.Errorf("edge endpoints must not be empty (from=%q, to=%q)", from, to))
		return builder
	}

	if from == to {
		builder.buildErrors = append(builder.buildErrors, fmt.Errorf("%w: node %q depends on itself", ErrCycle, from))
		return builder
	}

	graphEdge := &edge{
		from: from,
		to:   to,
		name: from,
	}
	for _, opt := range opts {
		opt(graphEdge)
	}

	builder.edges = append(builder.edges, graphEdge)
	return builder
}

// Build validates the graph structure and produces a runnable Graph.
// It performs the following validations:
//
//  1. No accumulated build errors from AddNode/AddEdge
//  2. At least one node exists
//  3. All edge endpoints reference existing nodes
//  4. No duplicate dependency names per dependant
//  5. The graph is acyclic (validated via Kahn's algorithm)
//  6. If specified, the output node exists
func (builder *Builder) Build() (*Graph, error) {
	if len(builder.buildErrors) > 0 {
		return nil, fmt.Errorf("graph build errors: %w", errors.Join(builder.buildErrors...))
	}

	if len(builder.nodes) == 0 {
		return nil, fmt.Errorf("graph must contain at least one node")
	}

	if err := builder.validateEdges(); err != nil {
		return nil, err
	}

	inDegree, adjacency := builder.buildAdjacency()

	topologicalOrder, levels, err := kahnTopologicalSort(inDegree, adjacency, builder.nodeOrder)
	if err != nil {
		return nil, err
	}

	outputNodeID, err := builder.resolveOutputNode(topologicalOrder)
	if err != nil {
		return nil, err
	}

	// Nodes are copied so that a Builder can be extended and built again
	// without touching graphs it already produced.
	nodes := make(map[string]*node, len(builder.nodes))
	for nodeID, graphNode := range builder.nodes {
		copied := *graphNode
		copied.dependencies = make(map[string]string)
		nodes[nodeID] = &copied
	}
	for _, graphEdge := range builder.edges {
		nodes[graphEdge.to].dependencies[graphEdge.name] = graphEdge.from
	}

	config := *builder.config
	return &Graph{
		nodes:            nodes,
		edges:            append([]*edge(nil), builder.edges...),
		levels:           levels,
		topologicalOrder: topologicalOrder,
		outputNodeID:     outputNodeID,
		config:           &config,
	}, nil
}

// validateEdges checks that all edge endpoints reference existing nodes
// and that no dependant receives two dependencies under one name.
func (builder *Builder) validateEdges() error {
	edgeSet := make(map[string]bool)
	nameSet := make(map[string]bool)

	for _, graphEdge := range builder.edges {
		if _, exists := builder.nodes[graphEdge.from]; !exists {
			return fmt.Errorf("edge references non-existent source node %q", graphEdge.from)
		}
		if _, exists := builder.nodes[graphEdge.to]; !exists {
			return fmt.Errorf("edge references non-existent target node %q", graphEdge.to)
		}

		edgeKey := graphEdge.from + "->" + graphEdge.to
		if edgeSet[edgeKey] {
			return fmt.Errorf("duplicate edge from %q to %q", graphEdge.from, graphEdge.to)
		}
		edgeSet[edgeKey] = true

		nameKey := graphEdge.to + "/" + graphEdge.name
		if nameSet[nameKey] {
			return fmt.Errorf("node %q has two dependencies named %q", graphEdge.to, graphEdge.name)
		}
		nameSet[nameKey] = true
	}

	return nil
}

// buildAdjacency constructs the in-degree map and adjacency list from the
// registered nodes and edges. Every node starts with in-degree 0.
func (builder *Builder) buildAdjacency() (map[string]int, map[string][]string) {
	inDegree := make(map[string]int, len(builder.nodes))
	adjacency := make(map[string][]string, len(builder.nodes))

	for nodeID := range builder.nodes {
		inDegree[nodeID] = 0
	}

	for _, graphEdge := range builder.edges {
		adjacency[graphEdge.from] = append(adjacency[graphEdge.from], graphEdge.to)
		inDegree[graphEdge.to]++
	}

	return inDegree, adjacency
}

// resolveOutputNode determines which node produces the output. If
// WithOutputNode was used, validates that the node exists. Otherwise, uses
// the last node in topological order.
func (builder *Builder) resolveOutputNode(topologicalOrder []string) (string, error) {
	if builder.config.outputNodeID != "" {
		if _, exists := builder.nodes[builder.config.outputNodeID]; !exists {
			return "", fmt.Errorf("output node %q does not exist in the graph", builder.config.outputNodeID)
		}
		return builder.config.outputNodeID, nil
	}

	return topologicalOrder[len(topologicalOrder)-1], nil
}

// kahnTopologicalSort performs Kahn's algorithm. It detects cycles and
// groups nodes by topological level, ordering each level by insertion order.
func kahnTopologicalSort(inDegree map[string]int, adjacency map[string][]string, nodeOrder []string) ([]string, [][]string, error) {
	nodePosition := make(map[string]int, len(nodeOrder))
	for index, nodeID := range nodeOrder {
		nodePosition[nodeID] = index
	}
	byInsertion := func(ids []string) {
		sort.Slice(ids, func(a, b int) bool {
			return nodePosition[ids[a]] < nodePosition[ids[b]]
		})
	}

	currentLevel := make([]string, 0)
	for nodeID, degree := range inDegree {
		if degree == 0 {
			currentLevel = append(currentLevel, nodeID)
		}
	}
	byInsertion(currentLevel)

	topologicalOrder := make([]string, 0, len(inDegree))
	levels := make([][]string, 0)

	for len(currentLevel) > 0 {
		levels = append(levels, currentLevel)
		topologicalOrder = append(topologicalOrder, currentLevel...)

		nextLevel := make([]string, 0)
		for _, nodeID := range currentLevel {
			for _, neighbor := range adjacency[nodeID] {
				inDegree[neighbor]--
				if inDegree[neighbor] == 0 {
					nextLevel = append(nextLevel, neighbor)
				}
			}
		}
		byInsertion(nextLevel)
		currentLevel = nextLevel
	}

	if len(topologicalOrder) != len(inDegree) {
		cycleNodes := make([]string, 0)
		for nodeID, degree := range inDegree {
			if degree > 0 {
				cycleNodes = append(cycleNodes, nodeID)
			}
		}
		sort.Strings(cycleNodes)
		return nil, nil, fmt.Errorf("%w involving nodes: %v", ErrCycle, cycleNodes)
	}

	return topologicalOrder, levels, nil
}
