package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/leofalp/mule/core/agent"
	"github.com/leofalp/mule/patterns/mules"
	"github.com/leofalp/mule/providers/ai"
)

func newAskCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <prompt...>",
		Short: "Ask a single agent",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := a.Runtime(ctx)
			if err != nil {
				return err
			}

			bob := agent.New("mule1-bob", a.cfg.Model, strings.Join(args, " "))
			history, err := bob.Invoke(ctx, rt, mules.Thinker, nil).Await(ctx)
			if err != nil {
				return err
			}
			a.println(answer(history))
			return nil
		},
	}
}

func newCritiqueCmd(a *App) *cobra.Command {
	var instruction string

	cmd := &cobra.Command{
		Use:   "critique <prompt...>",
		Short: "Answer a prompt, then have a second agent review the answer",
		Long: `Critique starts a thinker on the prompt and a critic that waits for the
thinker's answer. The critic instruction's {} is replaced by that answer.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := a.Runtime(ctx)
			if err != nil {
				return err
			}

			bob := agent.New("mule1-bob", a.cfg.Model, strings.Join(args, " "))
			jane := agent.New("mule2-jane", a.cfg.Model, instruction)

			thought := bob.Invoke(ctx, rt, mules.Thinker, nil)
			review := jane.Invoke(ctx, rt, mules.Critic, agent.Deps{mules.CriticDependency: thought})

			first, err := thought.Await(ctx)
			if err != nil {
				return err
			}
			second, err := review.Await(ctx)
			if err != nil {
				return err
			}

			a.printf("## %s\n%s\n\n## %s\n%s\n", bob.Name, answer(first), jane.Name, answer(second))
			return nil
		},
	}

	cmd.Flags().StringVar(&instruction, "instruction", "please evaluate this answer: {}", "critic instruction; {} is the answer under review")
	return cmd
}

func newChainCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "chain",
		Short: "Fan two conversation chains into a final agent",
		Long: `Chain runs two independent two-step conversations about Einstein and
Newton and hands both to a final agent that compares them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := a.Runtime(ctx)
			if err != nil {
				return err
			}

			model := a.cfg.Model
			eve := agent.New("mule12-eve", model, "who was albert einstein?").
				Invoke(ctx, rt, mules.Thinker, nil)
			ben := agent.New("mule13-ben", model, "was he American?").
				Invoke(ctx, rt, mules.Thinker, agent.Deps{"prior": eve})
			sally := agent.New("mule14-sally", model, "who was newton?").
				Invoke(ctx, rt, mules.Thinker, nil)
			charles := agent.New("mule15-charles", model, "who made bigger contributions?").
				Invoke(ctx, rt, mules.Thinker, agent.Deps{"prior1": ben, "prior2": sally})

			history, err := charles.Await(ctx)
			if err != nil {
				return err
			}
			a.println(answer(history))
			return nil
		},
	}
}

// answer returns the response that ends history, or a marker when the last
// dispatch failed.
func answer(history ai.ChatHistory) string {
	if content, ok := history.Response(); ok {
		return content
	}
	return "(no response)"
}
