package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/leofalp/mule/core/dispatch"
	"github.com/leofalp/mule/core/extract"
	"github.com/leofalp/mule/core/grounding"
	"github.com/leofalp/mule/providers/ai"
	"github.com/leofalp/mule/providers/observability"
	"github.com/leofalp/mule/providers/observability/slogobs"
)

// DefaultSearchResultCount is the number of grounding documents requested
// when an agent does not set one.
const DefaultSearchResultCount = 3

// Agent is a named unit of work. Values are configuration only and are safe
// to share between invocations.
type Agent struct {
	Name        string
	Model       string
	Instruction string

	// Topics is the web search query used by Ground. Empty disables grounding.
	Topics            string
	SearchResultCount int
	AllowedTags       extract.TagSet

	// OutputSchema, when set, is sent as the structured-output format and
	// used by ParseOutput to validate the response.
	OutputSchema json.RawMessage
}

// New creates an agent with the given identity and instruction.
func New(name, model, instruction string) *Agent {
	return &Agent{
		Name:        name,
		Model:       model,
		Instruction: instruction,
	}
}

// WithTopics sets the grounding query and the number of documents to keep.
func (a *Agent) WithTopics(topics string, count int) *Agent {
	a.Topics = topics
	a.SearchResultCount = count
	return a
}

// WithAllowedTags sets the tags kept by the extractor during grounding.
func (a *Agent) WithAllowedTags(tags extract.TagSet) *Agent {
	a.AllowedTags = tags
	return a
}

// WithOutputSchema requests structured output matching schema.
func (a *Agent) WithOutputSchema(schema json.RawMessage) *Agent {
	a.OutputSchema = schema
	return a
}

// Runtime bundles the collaborators shared by every invocation.
type Runtime struct {
	Dispatcher *dispatch.Dispatcher
	Grounding  *grounding.Pipeline
	Logger     *slog.Logger
	Observer   observability.Provider
}

func (rt *Runtime) logger(name string) *slog.Logger {
	base := slog.Default()
	if rt != nil && rt.Logger != nil {
		base = rt.Logger
	}
	return slogobs.AgentLogger(base, name)
}

func (rt *Runtime) observer(ctx context.Context) observability.Provider {
	if rt == nil {
		return observability.ObserverFromContext(ctx)
	}
	return observability.ResolveObserver(ctx, rt.Observer)
}

// TriggerRole is the role of the messages this agent contributes. It is the
// agent name, which the providers send as a user message.
func (a *Agent) TriggerRole() ai.MessageRole {
	if a.Name == "" {
		return ai.RoleUser
	}
	return ai.AgentRole(a.Name)
}

// Call renders prompt as the trigger message of a fresh history and performs
// exactly one dispatch. A failed dispatch yields the one-message history.
func (a *Agent) Call(ctx context.Context, rt *Runtime, prompt string) ai.ChatHistory {
	return a.Continue(ctx, rt, nil, prompt)
}

// Continue is Call with prior as the conversation context. The returned
// history starts with prior.
func (a *Agent) Continue(ctx context.Context, rt *Runtime, prior ai.ChatHistory, prompt string) ai.ChatHistory {
	history := prior.Append(ai.Message{Role: a.TriggerRole(), Content: prompt})
	if rt == nil || rt.Dispatcher == nil {
		a.Logger(rt).ErrorContext(ctx, "Call skipped, no dispatcher configured")
		return history
	}
	return rt.Dispatcher.Dispatch(ctx, dispatch.Request{
		Model:  a.Model,
		Format: a.OutputSchema,
	}, history)
}

// Ground searches the web for the agent topics and returns the extracted
// documents. It returns nil when the agent has no topics or the runtime has
// no grounding pipeline.
func (a *Agent) Ground(ctx context.Context, rt *Runtime) []extract.Document {
	if strings.TrimSpace(a.Topics) == "" || rt == nil || rt.Grounding == nil {
		return nil
	}
	count := a.SearchResultCount
	if count <= 0 {
		count = DefaultSearchResultCount
	}
	return rt.Grounding.Ground(ctx, a.Topics, count, a.AllowedTags)
}

// Logger returns the runtime logger tagged with the agent name.
func (a *Agent) Logger(rt *Runtime) *slog.Logger {
	return rt.logger(a.Name)
}

// Sources joins the content of docs with blank lines.
func Sources(docs []extract.Document) string {
	parts := make([]string, 0, len(docs))
	for _, doc := range docs {
		parts = append(parts, doc.Content)
	}
	return strings.Join(parts, "\n\n")
}
