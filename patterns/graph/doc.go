// Package graph runs declarative agent pipelines: a directed acyclic graph
// whose nodes are agents and whose edges name the dependencies each agent
// awaits.
//
// A graph is assembled with [NewBuilder] or loaded from YAML with
// [LoadPipeline]. Build validates the structure and rejects cycles with
// Kahn's algorithm before anything runs, returning an error wrapping
// [ErrCycle]. [Graph.Run] starts every node as an agent invocation in
// topological order; independent nodes run concurrently because each
// invocation only waits for its own dependencies.
//
// Example:
//
//	g, err := graph.NewBuilder(graph.WithOutputNode("charles")).
//	    AddNode("eve", agent.New("mule12-eve", model, "who was albert einstein?"), mules.Thinker).
//	    AddNode("ben", agent.New("mule12-ben", model, "was he American?"), mules.Thinker).
//	    AddNode("sally", agent.New("mule12-sally", model, "who was newton?"), mules.Thinker).
//	    AddNode("charles", agent.New("mule12-charles", model, "who made bigger contributions?"), mules.Thinker).
//	    AddEdge("eve", "ben", graph.WithDependencyName("prior")).
//	    AddEdge("ben", "charles", graph.WithDependencyName("prior1")).
//	    AddEdge("sally", "charles", graph.WithDependencyName("prior2")).
//	    Build()
//
//	result, err := g.Run(ctx, rt)
//	fmt.Println(result.Output.LastContent())
package graph
