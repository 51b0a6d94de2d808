package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leofalp/mule/core/agent"
	"github.com/leofalp/mule/internal/utils"
	"github.com/leofalp/mule/patterns/mules"
)

type researchFlags struct {
	prompt  string
	team    bool
	results int
	out     string
	bench   bool
	judge   bool
}

func newResearchCmd(a *App) *cobra.Command {
	var flags researchFlags

	cmd := &cobra.Command{
		Use:   "research <topic...>",
		Short: "Research a topic on the web and answer a prompt about it",
		Long: `Research searches the web for the topic, keeps the first pages with
enough text and answers the prompt from them.

Without --team every source is inlined into one request. With --team one
note-taking agent runs per source and the answer is written from the notes.
--bench runs both strategies and reports how long each took.`,
		Example: `  mule research "flutter tts" --prompt "write a guide to text to speech in flutter" --team --out agent.md
  mule research "flutter tts" --prompt "write a guide" --bench --judge`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := a.Runtime(ctx)
			if err != nil {
				return err
			}

			topic := strings.Join(args, " ")
			prompt := flags.prompt
			if prompt == "" {
				prompt = "write a concise guide on " + topic
			}
			researcher := agent.New("mule-researcher", a.cfg.Model, prompt).WithTopics(topic, flags.results)

			if flags.bench {
				return a.bench(cmd, researcher, flags)
			}

			body, label := mules.Research, "non-agentic"
			if flags.team {
				body, label = mules.ResearchTeam, "agentic"
			}

			sw := utils.StartStopwatch()
			history, err := researcher.Invoke(ctx, rt, body, nil).Await(ctx)
			if err != nil {
				return err
			}
			elapsed := sw.Elapsed()

			if err := a.writeAnswer(flags.out, answer(history)); err != nil {
				return err
			}
			a.printf("%s took %s\n", label, utils.FormatMinSec(elapsed))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.prompt, "prompt", "p", "", "what to write about the topic")
	f.BoolVar(&flags.team, "team", false, "take notes with one sub-agent per source")
	f.IntVarP(&flags.results, "results", "n", agent.DefaultSearchResultCount, "number of sources to keep")
	f.StringVarP(&flags.out, "out", "o", "", "write the answer to this file instead of stdout")
	f.BoolVar(&flags.bench, "bench", false, "run both strategies and compare their timing")
	f.BoolVar(&flags.judge, "judge", false, "with --bench, ask a judge agent which answer is better")
	return cmd
}

func (a *App) bench(cmd *cobra.Command, researcher *agent.Agent, flags researchFlags) error {
	ctx := cmd.Context()

	var judge *agent.Agent
	if flags.judge {
		judge = agent.New("mule-judge", a.cfg.Model, mules.JudgeInstruction)
	}

	result, err := mules.Bench(ctx, a.runtime, researcher, judge)
	if err != nil {
		return err
	}

	teamOut, singleOut := "", ""
	if flags.out != "" {
		dir, base := filepath.Split(flags.out)
		teamOut, singleOut = filepath.Join(dir, "agent-"+base), filepath.Join(dir, "non-agent-"+base)
	}
	if err := a.writeAnswer(teamOut, answer(result.Team)); err != nil {
		return err
	}
	if err := a.writeAnswer(singleOut, answer(result.Single)); err != nil {
		return err
	}

	a.printf("agentic took %s\n", utils.FormatMinSec(result.TeamTime))
	a.printf("non-agentic took %s\n", utils.FormatMinSec(result.SingleTime))
	if judge != nil {
		a.printf("verdict: %s\n", answer(result.Verdict))
	}
	return nil
}

// writeAnswer writes content to path, or to stdout when path is empty.
func (a *App) writeAnswer(path, content string) error {
	if path == "" {
		a.println(content)
		return nil
	}
	if err := os.WriteFile(path, []byte(content+"\n"), 0o644); err != nil {
		return fmt.Errorf("cli: write %s: %w", path, err)
	}
	a.logger.Info("Answer written", "path", path, "chars", len(content))
	return nil
}
