package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/stageflow/internal/cli"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "stageflow",
	Short: "Stage-driven conversation engine",
	Long: `Stageflow drives a conversation through a graph of stages.
Each stage carries a prompt and the transitions it allows. A decider
(an LLM or the offline keyword matcher) proposes the reply and the next
stage, and the engine only accepts transitions the graph permits.

Stages are read from a loam directory (--dir) or a JSON/YAML file (--config).`,
	SilenceUsage: true,
}

// Execute runs the root command and exits 1 on failure.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("dir", ".", "Directory containing the stage files")
	rootCmd.PersistentFlags().String("config", "", "Stage configuration file (.json or .yaml); overrides --dir")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging on stderr")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format: text or json")
}

// engineFlags reads the persistent flags into EngineOptions.
func engineFlags(cmd *cobra.Command) cli.EngineOptions {
	dir, _ := cmd.Flags().GetString("dir")
	config, _ := cmd.Flags().GetString("config")
	debug, _ := cmd.Flags().GetBool("debug")
	return cli.EngineOptions{Dir: dir, Config: config, Debug: debug}
}

func loggerFor(cmd *cobra.Command) (*slog.Logger, error) {
	debug, _ := cmd.Flags().GetBool("debug")
	format, _ := cmd.Flags().GetString("log-format")
	return cli.CreateLogger(debug, format)
}

// addTurnFlags registers the flags that shape prompts and turns.
func addTurnFlags(cmd *cobra.Command) {
	cmd.Flags().Duration("timeout", 0, "Per-turn decider timeout (0 disables)")
	cmd.Flags().StringArray("var", nil, "Prompt variable as key=value (repeatable)")
	cmd.Flags().String("persona", "", "Persona text prepended to every stage prompt")
}

func readTurnFlags(cmd *cobra.Command, opts *cli.EngineOptions) {
	opts.Timeout, _ = cmd.Flags().GetDuration("timeout")
	opts.Vars, _ = cmd.Flags().GetStringArray("var")
	opts.Persona, _ = cmd.Flags().GetString("persona")
}
