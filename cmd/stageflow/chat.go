package main

import (
	"os"

	"github.com/aretw0/stageflow"
	"github.com/aretw0/stageflow/internal/cli"
	"github.com/aretw0/stageflow/internal/presentation/tui"
	"github.com/spf13/cobra"
)

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Hold a conversation in the terminal",
	Long: `Starts an interactive conversation with the stage graph.

The decider is an OpenAI-compatible model when OPENAI_API_KEY is set
(see --model and --base-url), and the offline keyword matcher otherwise.
When stdin is not a terminal, or with --json, turns are exchanged as NDJSON.
Type /exit or /quit to leave without ending the conversation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := loggerFor(cmd)
		if err != nil {
			return err
		}

		model, _ := cmd.Flags().GetString("model")
		baseURL, _ := cmd.Flags().GetString("base-url")
		offline, _ := cmd.Flags().GetBool("offline")
		d, kind, err := cli.NewDecider(cmd.Context(), cli.DeciderOptions{Model: model, BaseURL: baseURL, Offline: offline}, logger)
		if err != nil {
			return err
		}
		logger.Debug("Decider selected", "kind", kind)

		opts := engineFlags(cmd)
		readTurnFlags(cmd, &opts)
		opts.Decider = d

		engine, err := cli.NewEngine(opts, logger)
		if err != nil {
			return err
		}

		jsonMode, _ := cmd.Flags().GetBool("json")
		jsonMode = jsonMode || !cli.IsInteractive(os.Stdin)
		conversationID, _ := cmd.Flags().GetString("conversation")

		out := cmd.OutOrStdout()
		if !jsonMode {
			tui.PrintBanner(out, stageflow.Version)
			cli.PrintSystemMessage(out, "Decider: %s. Type /exit to leave.", kind)
		}

		_, err = cli.RunChat(cmd.Context(), engine, cli.ChatOptions{
			In:             os.Stdin,
			Out:            out,
			JSON:           jsonMode,
			ConversationID: conversationID,
			Renderer:       tui.NewRenderer(),
			ShowStage:      opts.Debug,
			Signals:        true,
			Logger:         logger,
		})
		return err
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	addTurnFlags(chatCmd)
	chatCmd.Flags().String("model", "", "Chat model name (defaults to $OPENAI_MODEL or gpt-4o-mini)")
	chatCmd.Flags().String("base-url", "", "OpenAI-compatible endpoint (defaults to $OPENAI_BASE_URL)")
	chatCmd.Flags().Bool("offline", false, "Use the keyword decider even when an API key is set")
	chatCmd.Flags().Bool("json", false, "Exchange turns as NDJSON")
	chatCmd.Flags().String("conversation", "", "Conversation id (random when empty)")
}
