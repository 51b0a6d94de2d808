package cli

import (
	"github.com/spf13/cobra"

	"github.com/leofalp/mule/internal/utils"
	"github.com/leofalp/mule/patterns/graph"
)

func newRunCmd(a *App) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "run <pipeline.yaml>",
		Short: "Run a declarative agent pipeline",
		Long: `Run executes the agents defined in a YAML pipeline. Agents whose
dependencies are done start immediately, so independent branches run
concurrently. A failed agent is seen by its dependants as empty content.

The pipeline is rejected before anything runs if its dependencies form a
cycle or name an unknown agent.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			pipeline, err := graph.LoadPipeline(args[0])
			if err != nil {
				return err
			}
			g, err := pipeline.Build(a.cfg.Model, graph.WithObserver(a.observer))
			if err != nil {
				return err
			}

			rt, err := a.Runtime(ctx)
			if err != nil {
				return err
			}

			result, err := g.Run(ctx, rt)
			if result != nil && verbose {
				for _, nodeID := range g.Order() {
					a.printf("%-20s %s\n", nodeID, result.Status[nodeID])
				}
				a.println()
			}
			if err != nil {
				return err
			}

			a.println(answer(result.Output))
			a.logger.Info("Pipeline finished",
				"name", pipeline.Name,
				"output", g.OutputNode(),
				"failed", len(result.Errors),
				"duration", utils.FormatMinSec(result.Duration),
			)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print the status of every agent")
	return cmd
}
