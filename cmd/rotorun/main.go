// Command rotorun runs the intraday rotation trading engine, either as a
// historical backtest or against a live bar feed.
package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	appName = "rotorun"
	version = "v0.1.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Intraday rotation trading engine for leveraged ETFs",
		Version: version,
		Long: `rotorun simulates or runs an intraday rotation strategy across a fixed
universe of leveraged ETFs, holding up to K concurrent positions sized by
an adaptive Kelly fraction.`,
	}

	rootCmd.PersistentFlags().String("config", "config.yaml", "path to the engine configuration file")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug|info|warn|error)")

	rootCmd.AddCommand(newBacktestCmd())
	rootCmd.AddCommand(newServeCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("rotorun failed")
	}
}

func configureLogLevel(levelStr string) {
	level, err := zerolog.ParseLevel(levelStr)
	if err != nil {
		log.Warn().Str("level", levelStr).Msg("unrecognized log level, defaulting to info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
