package main

import (
	"fmt"

	"github.com/aretw0/stageflow/internal/cli"
	"github.com/aretw0/stageflow/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var promptCmd = &cobra.Command{
	Use:   "prompt <stage>",
	Short: "Print the rendered prompt of a stage",
	Long: `Resolves a stage by id, name or id prefix and prints the prompt the decider
would receive: persona, stage prompt, input variables and allowed transitions.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := loggerFor(cmd)
		if err != nil {
			return err
		}
		opts := engineFlags(cmd)
		readTurnFlags(cmd, &opts)

		engine, err := cli.NewEngine(opts, logger)
		if err != nil {
			return err
		}

		prompt, err := engine.RenderPrompt(args[0])
		if err != nil {
			return err
		}

		if raw, _ := cmd.Flags().GetBool("raw"); !raw {
			if rendered, err := tui.NewRenderer()(prompt); err == nil {
				prompt = rendered
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), prompt)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(promptCmd)
	addTurnFlags(promptCmd)
	promptCmd.Flags().Bool("raw", false, "Print the markdown without terminal rendering")
}
