package main

import (
	"fmt"

	"github.com/aretw0/stageflow/internal/cli"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the stage graph for consistency",
	Long: `Loads the stages and reports every configuration problem: missing or
duplicate START stages, dangling transitions, unknown stage types.
Warnings (unreachable stages, no END stage) are printed but do not fail.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := loggerFor(cmd)
		if err != nil {
			return err
		}

		engine, err := cli.NewEngine(engineFlags(cmd), logger)
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}

		out := cmd.OutOrStdout()
		for _, w := range engine.Warnings() {
			fmt.Fprintf(out, "warning: %s\n", w)
		}
		fmt.Fprintf(out, "Graph is valid! %d stages ✅\n", len(engine.Stages()))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
