package mules

import (
	"context"
	"fmt"
	"time"

	"github.com/leofalp/mule/core/agent"
	"github.com/leofalp/mule/internal/utils"
	"github.com/leofalp/mule/providers/ai"
)

// CompareSeparator divides the two guides handed to the judge.
const CompareSeparator = ">><<"

// BenchResult holds both research answers and how long each took.
type BenchResult struct {
	Team       ai.ChatHistory
	Single     ai.ChatHistory
	TeamTime   time.Duration
	SingleTime time.Duration
	Verdict    ai.ChatHistory
}

// Bench runs ResearchTeam then Research for the same agent and, when judge
// is set, asks it which of the two answers is better.
func Bench(ctx context.Context, rt *agent.Runtime, a *agent.Agent, judge *agent.Agent) (*BenchResult, error) {
	result := &BenchResult{}

	sw := utils.StartStopwatch()
	team, err := a.Invoke(ctx, rt, ResearchTeam, nil).Await(ctx)
	result.Team, result.TeamTime = team, sw.Lap("team")
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, fmt.Errorf("mules: bench: %w", ctxErr)
	}
	if err != nil {
		a.Logger(rt).WarnContext(ctx, "Agentic research failed", "error", err)
	}

	single, err := a.Invoke(ctx, rt, Research, nil).Await(ctx)
	result.Single, result.SingleTime = single, sw.Lap("single")
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, fmt.Errorf("mules: bench: %w", ctxErr)
	}
	if err != nil {
		a.Logger(rt).WarnContext(ctx, "Non-agentic research failed", "error", err)
	}

	if judge != nil {
		teamAnswer, _ := team.Response()
		singleAnswer, _ := single.Response()
		prompt := fmt.Sprintf("%s\n%s\n%s\n%s", judge.Instruction, teamAnswer, CompareSeparator, singleAnswer)
		result.Verdict = judge.Call(ctx, rt, prompt)
	}
	return result, nil
}

// JudgeInstruction asks a judge to pick the better of two guides.
const JudgeInstruction = "carefully analyse and compare the below 2 guides separated by " + CompareSeparator +
	", and explain which is better, first or second. "
