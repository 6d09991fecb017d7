package main

import (
	"fmt"

	"github.com/aretw0/stageflow/internal/cli"
	"github.com/aretw0/stageflow/internal/presentation/graph"
	"github.com/spf13/cobra"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the stage graph visualization",
	Long: `Outputs a Mermaid diagram (graph TD) of the stages and their transitions.
Edges added by GLOBAL stages are dotted unless --hide-synthetic is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := loggerFor(cmd)
		if err != nil {
			return err
		}
		engine, err := cli.NewEngine(engineFlags(cmd), logger)
		if err != nil {
			return err
		}

		hide, _ := cmd.Flags().GetBool("hide-synthetic")
		active, _ := cmd.Flags().GetString("active")

		var overlay *graph.GraphOverlay
		if active != "" {
			stage, ok := engine.FindStage(active)
			if !ok {
				return fmt.Errorf("unknown stage %q", active)
			}
			overlay = &graph.GraphOverlay{ActiveStage: stage.ID}
		}

		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(engine.Stages(), overlay, hide))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().Bool("hide-synthetic", false, "Omit edges contributed by GLOBAL stages")
	graphCmd.Flags().String("active", "", "Highlight the given stage (id or name)")
}
