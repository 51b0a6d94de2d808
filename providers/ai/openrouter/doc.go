// Package openrouter implements the remote inference path: OpenRouter's
// OpenAI-compatible /chat/completions endpoint reached through openai-go
// with a bearer credential.
package openrouter
