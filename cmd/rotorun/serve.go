package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/rotorun/internal/config"
	"github.com/sawpanic/rotorun/internal/engine"
	"github.com/sawpanic/rotorun/internal/results"
	"github.com/sawpanic/rotorun/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	var sink string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the metrics/health HTTP surface while the engine waits for a live bar feed",
		Long: `serve starts the Prometheus metrics and /healthz endpoints and blocks.
Wiring a live bar feed into engine.Tick is left to the caller embedding
this binary; serve on its own is useful for smoke-testing the telemetry
surface and config loading.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configureLogLevel(mustFlag(cmd, "log-level"))
			cfgPath := mustFlag(cmd, "config")

			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			resultsSink, err := buildSink(sink, cfg)
			if err != nil {
				return fmt.Errorf("build results sink: %w", err)
			}
			defer resultsSink.Close()

			metrics := telemetry.NewMetrics()
			eng := engine.New(cfg, engine.ModeSigor, resultsSink, metrics, log.Logger)

			server := telemetry.NewServer(metrics, log.Logger, eng.BarIndex)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", cfg.Telemetry.ListenAddr).Msg("telemetry server listening")
				errCh <- server.ListenAndServe(cfg.Telemetry.ListenAddr)
			}()

			select {
			case <-ctx.Done():
				log.Info().Msg("shutdown signal received")
				return nil
			case err := <-errCh:
				return err
			}
		},
	}

	cmd.Flags().StringVar(&sink, "sink", "", "results sink override: memory|postgres (defaults to results.sink from the config)")
	return cmd
}

func buildSink(sink string, cfg *config.EngineConfig) (results.Sink, error) {
	if sink == "" {
		sink = cfg.Results.Sink
	}
	switch sink {
	case "postgres":
		return results.NewSQLSink(cfg.Results.PostgresDSN, "serve")
	default:
		return results.NewAccumulator(), nil
	}
}
