package mules

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/leofalp/mule/core/agent"
	"github.com/leofalp/mule/providers/ai"
)

// VerdictSchema is the structured output requested by classifiers.
var VerdictSchema = json.RawMessage(`{"type":"object","properties":{"result":{"type":"number"}},"required":["result"]}`)

// GuardrailInstruction is the default classifier prompt. The placeholder is
// replaced by the message under review.
const GuardrailInstruction = `You are an assistant to an Ayurveda practitioner.
You are to classify the following client message as either 1 or 0.
Return 1 if the message is strictly related to health and wellness, diet
and lifestyle; within the realm of holistic medicine.
Return 0 if irrelevant or inappropriate.
The message is contained between $$ lines.

$$
{}
$$`

// Verdict is the decoded classifier response.
type Verdict struct {
	Result float64 `json:"result"`
}

// Accepted reports whether the verdict is positive.
func (v Verdict) Accepted() bool {
	return v.Result != 0
}

// NewClassifier returns an agent that answers instruction with a verdict.
// The instruction may contain one placeholder for the classified message.
func NewClassifier(name, model, instruction string) *agent.Agent {
	return agent.New(name, model, instruction).WithOutputSchema(VerdictSchema)
}

// Classifier is Thinker for agents with a structured output schema.
func Classifier(ctx context.Context, a *agent.Agent, rt *agent.Runtime, deps *agent.Resolved) ai.ChatHistory {
	return Thinker(ctx, a, rt, deps)
}

// Classify fills the classifier placeholder with message, dispatches once and
// decodes the verdict.
func Classify(ctx context.Context, rt *agent.Runtime, classifier *agent.Agent, message string) (Verdict, error) {
	prompt := classifier.Instruction
	if strings.Contains(prompt, agent.Placeholder) {
		prompt = strings.Replace(prompt, agent.Placeholder, message, 1)
	} else {
		prompt += "\n\n" + message
	}

	history := classifier.Call(ctx, rt, prompt)
	verdict, err := agent.ParseOutput[Verdict](history, classifier.OutputSchema)
	if err != nil {
		return Verdict{}, fmt.Errorf("mules: classify: %w", err)
	}
	return verdict, nil
}
