// Package ai defines the provider-agnostic message model and the [Provider]
// interface implemented by the ollama and openrouter backends.
//
// A [ChatHistory] is the unit that flows between agents: it only grows, and
// its trailing [RoleSystem] message is the authoritative output of the
// invocation that produced it.
package ai
