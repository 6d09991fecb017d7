package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/stageflow"
	"github.com/aretw0/stageflow/internal/cli"
	httpAdapter "github.com/aretw0/stageflow/pkg/adapters/http"
	redisAdapter "github.com/aretw0/stageflow/pkg/adapters/redis"
	"github.com/aretw0/stageflow/pkg/domain"
	"github.com/aretw0/stageflow/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the conversation HTTP server",
	Long: `Exposes the engine as a JSON API over HTTP: conversations, turns,
stage prompts and an SSE stream of turn events. Prometheus metrics are
served on /metrics.

With --redis, turns of the same conversation are serialized across every
replica that shares the Redis instance.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		debug, _ := cmd.Flags().GetBool("debug")
		format, _ := cmd.Flags().GetString("log-format")
		logger, err := cli.CreateServiceLogger(debug, format)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		model, _ := cmd.Flags().GetString("model")
		baseURL, _ := cmd.Flags().GetString("base-url")
		offline, _ := cmd.Flags().GetBool("offline")
		d, kind, err := cli.NewDecider(ctx, cli.DeciderOptions{Model: model, BaseURL: baseURL, Offline: offline}, logger)
		if err != nil {
			return err
		}

		registry := prometheus.NewRegistry()
		metrics := observability.NewMetrics(registry)

		opts := engineFlags(cmd)
		readTurnFlags(cmd, &opts)
		opts.Decider = d
		opts.Hooks = []domain.LifecycleHooks{metrics.Hooks(), observability.LogHooks(logger)}

		if addr, _ := cmd.Flags().GetString("redis"); addr != "" {
			client, err := redisAdapter.Dial(ctx, addr)
			if err != nil {
				return err
			}
			defer client.Close()
			opts.Locker = redisAdapter.NewLocker(client, "")
			logger.Info("Distributed locking enabled", "redis", addr)
		}

		engine, err := cli.NewEngine(opts, logger)
		if err != nil {
			return err
		}

		port, _ := cmd.Flags().GetString("port")
		srv := &http.Server{
			Addr: ":" + port,
			Handler: httpAdapter.NewHandler(engine,
				httpAdapter.WithLogger(logger),
				httpAdapter.WithMetricsHandler(observability.Handler(registry)),
				httpAdapter.WithVersion(stageflow.Version),
			),
		}

		logger.Info("Starting stageflow server", "port", port, "decider", kind, "stages", len(engine.Stages()))
		if err := cli.Serve(ctx, srv, logger); err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("Stageflow server stopped gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	addTurnFlags(serveCmd)
	serveCmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	serveCmd.Flags().String("redis", "", "Redis address or URL for distributed conversation locks")
	serveCmd.Flags().String("model", "", "Chat model name (defaults to $OPENAI_MODEL or gpt-4o-mini)")
	serveCmd.Flags().String("base-url", "", "OpenAI-compatible endpoint (defaults to $OPENAI_BASE_URL)")
	serveCmd.Flags().Bool("offline", false, "Use the keyword decider even when an API key is set")
}
