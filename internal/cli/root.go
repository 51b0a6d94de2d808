package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/leofalp/mule/core/dispatch"
)

type rootFlags struct {
	configFile string
	remote     bool
	model      string
	timeout    time.Duration
}

// newRootCmd builds the command tree bound to a.
func newRootCmd(a *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "mule",
		Short: "Run cooperating LLM agents",
		Long: `Mule runs small LLM agents that cooperate through their answers.

Agents talk to a local Ollama server by default, or to OpenRouter with
--remote. Research agents ground themselves on web search results and the
rag commands keep a namespaced similarity store of documents.

Examples:
  mule ask "very concisely explain the meaning of life"
  mule research "flutter tts" --prompt "write a guide" --team
  mule rag search "body ache" --namespace user1
  mule run pipeline.yaml`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.setup(cmd.Context()); err != nil {
				return err
			}

			ctx := dispatch.WithSelection(cmd.Context(), a.cfg.Selection())
			if a.flags.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, a.flags.timeout)
				a.closers = append(a.closers, func(context.Context) error { cancel(); return nil })
			}
			cmd.SetContext(ctx)
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.flags.configFile, "config", "mule.yaml", "config file")
	flags.BoolVar(&a.flags.remote, "remote", false, "dispatch to OpenRouter instead of Ollama")
	flags.StringVar(&a.flags.model, "model", "", "model for every agent (overrides the config)")
	flags.DurationVar(&a.flags.timeout, "timeout", 0, "deadline for the whole command (0 disables)")

	root.AddCommand(
		newAskCmd(a),
		newCritiqueCmd(a),
		newChainCmd(a),
		newResearchCmd(a),
		newScrapeCmd(a),
		newClassifyCmd(a),
		newRagCmd(a),
		newRunCmd(a),
		newCompletionCmd(),
	)
	return root
}
