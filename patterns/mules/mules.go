// Package mules provides the built-in agent behaviors: a plain thinker, a
// critic of another agent's answer, two research strategies and a
// structured-output classifier.
//
// Each behavior is an [agent.Body] and is started with [agent.Agent.Invoke]:
//
//	rt := &agent.Runtime{Dispatcher: d, Grounding: p}
//	bob := agent.New("mule1-bob", "phi4-mini", "very concisely explain the meaning of life")
//	jane := agent.New("mule2-jane", "phi4-mini", "please evaluate this answer to the meaning of life: {}")
//
//	answer := bob.Invoke(ctx, rt, mules.Thinker, nil)
//	review, _ := jane.Invoke(ctx, rt, mules.Critic, agent.Deps{"prior1": answer}).Await(ctx)
package mules

import (
	"context"
	"fmt"

	"github.com/leofalp/mule/core/agent"
	"github.com/leofalp/mule/providers/ai"
)

// CriticDependency is the dependency name a critic reviews when present.
const CriticDependency = "prior1"

// Thinker dispatches its instruction. Dependency histories, if any, are
// concatenated in name order and sent as the conversation context.
func Thinker(ctx context.Context, a *agent.Agent, rt *agent.Runtime, deps *agent.Resolved) ai.ChatHistory {
	return a.Continue(ctx, rt, deps.ConcatHistories(), a.Instruction)
}

// Critic fills the placeholder of its instruction with the last response of
// the reviewed dependency and returns that dependency history followed by
// its own exchange. The reviewed dependency is CriticDependency, or the
// first dependency in name order when that is absent.
func Critic(ctx context.Context, a *agent.Agent, rt *agent.Runtime, deps *agent.Resolved) ai.ChatHistory {
	target := criticTarget(deps)
	prompt := deps.FormatLast(a.Instruction, target)
	return deps.History(target).Append(a.Call(ctx, rt, prompt)...)
}

// CriticOf returns a critic body that reviews the named dependency.
func CriticOf(name string) agent.Body {
	return func(ctx context.Context, a *agent.Agent, rt *agent.Runtime, deps *agent.Resolved) ai.ChatHistory {
		prompt := deps.FormatLast(a.Instruction, name)
		return deps.History(name).Append(a.Call(ctx, rt, prompt)...)
	}
}

func criticTarget(deps *agent.Resolved) string {
	names := deps.Names()
	for _, name := range names {
		if name == CriticDependency {
			return name
		}
	}
	if len(names) > 0 {
		return names[0]
	}
	return CriticDependency
}

// Research grounds on the agent topics and inlines every source into a
// single dispatch.
func Research(ctx context.Context, a *agent.Agent, rt *agent.Runtime, _ *agent.Resolved) ai.ChatHistory {
	sources := agent.Sources(a.Ground(ctx, rt))
	a.Logger(rt).DebugContext(ctx, "Research sources collected", "chars", len(sources))
	return a.Call(ctx, rt, fmt.Sprintf("%s, refer to the following sources:\n%s", a.Instruction, sources))
}

// ResearchTeam grounds on the agent topics, has one note-taking sub-agent per
// source, and answers from the joined notes. Sub-agents run concurrently and
// their notes are joined in source order.
func ResearchTeam(ctx context.Context, a *agent.Agent, rt *agent.Runtime, _ *agent.Resolved) ai.ChatHistory {
	docs := a.Ground(ctx, rt)

	students := make([]*agent.Invocation, 0, len(docs))
	for i, doc := range docs {
		student := agent.New(
			fmt.Sprintf("minimule-%d", i),
			a.Model,
			fmt.Sprintf("take concise notes on %s from the following source:\n%s", a.Topics, doc.Content),
		)
		students = append(students, student.Invoke(ctx, rt, Thinker, nil))
	}

	histories, err := agent.Gather(ctx, students...)
	if err != nil {
		a.Logger(rt).WarnContext(ctx, "Note taking interrupted", "error", err)
	}
	notes := agent.Notes(histories, "\n\n")
	a.Logger(rt).DebugContext(ctx, "Notes collected", "sources", len(docs), "chars", len(notes))

	return a.Call(ctx, rt, fmt.Sprintf("%s, refer to my notes below:\n%s", a.Instruction, notes))
}
