// Package agent runs named agents as concurrent invocations.
//
// An [Agent] is a named, immutable configuration: model, instruction,
// optional web topics and output schema. [Agent.Invoke] starts a [Body] in its
// own goroutine and returns an [*Invocation] future at once. Other
// invocations can name it as a dependency; before a body runs, every
// dependency is awaited concurrently and handed over as a [*Resolved] value
// with deterministic, key-ordered access.
//
// A dependency that failed never aborts its dependants. It resolves to its
// partial history and [Resolved.LastContent] reports "" for it.
//
// Invocations can only depend on invocations that already exist, so the
// imperative API cannot form a cycle. Declarative graphs live in
// patterns/graph, which rejects cycles before starting anything.
package agent
