// Package ollama implements the local inference path: a synchronous POST of
// {model, messages, stream:false, format} to an Ollama server's /api/chat.
package ollama
