package ai

import "encoding/json"

/*
	##### MESSAGES #####
*/

// MessageRole represents the role of a message; compatible with string.
// Besides the two fixed roles, an agent name may be used as a role to tag
// content contributed by that agent.
type MessageRole string

const (
	RoleUser   MessageRole = "user"   // Trigger message rendered from an agent instruction
	RoleSystem MessageRole = "system" // Model response appended after a successful dispatch
)

// AgentRole returns the role used for content attributed to the named agent.
func AgentRole(name string) MessageRole {
	return MessageRole(name)
}

// WireRole maps a role onto the two-party chat vocabulary understood by
// inference endpoints: responses become "assistant" and everything else,
// including agent-named roles, is sent as "user".
func (r MessageRole) WireRole() string {
	if r == RoleSystem {
		return "assistant"
	}
	return string(RoleUser)
}

// Message represents a single message in a conversation
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// NewUserMessage builds a trigger message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewSystemMessage builds a response message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// ChatHistory is an ordered, append-only sequence of messages. Values are
// never mutated in place: Append always returns a new backing array, so a
// history handed to another goroutine cannot change under it.
type ChatHistory []Message

// Append returns a new history with msgs added at the end.
func (h ChatHistory) Append(msgs ...Message) ChatHistory {
	out := make(ChatHistory, 0, len(h)+len(msgs))
	out = append(out, h...)
	return append(out, msgs...)
}

// Last returns the final message, or false for an empty history.
func (h ChatHistory) Last() (Message, bool) {
	if len(h) == 0 {
		return Message{}, false
	}
	return h[len(h)-1], true
}

// LastContent returns the content of the final message, or "".
func (h ChatHistory) LastContent() string {
	last, _ := h.Last()
	return last.Content
}

// Response returns the content of the trailing system message. The second
// return value is false when the history does not end in a response, which
// is how a failed dispatch shows up.
func (h ChatHistory) Response() (string, bool) {
	last, ok := h.Last()
	if !ok || last.Role != RoleSystem {
		return "", false
	}
	return last.Content, true
}

/*
	##### PROVIDER INPUT #####
*/

// ChatRequest represents a request to send a chat message
type ChatRequest struct {
	Model    string          `json:"model,omitempty"`  // Model name or identifier
	Messages []Message       `json:"messages"`         // Full history, ending in the trigger message
	Format   json.RawMessage `json:"format,omitempty"` // Optional JSON schema constraining the response
}

/*
	##### PROVIDER OUTPUT #####
*/

// Usage reports token counts when the provider returns them.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// ChatResponse represents the response from a chat completion
type ChatResponse struct {
	Model        string `json:"model"`
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        *Usage `json:"usage,omitempty"`
}
