package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sawpanic/rotorun/internal/bar"
	"github.com/sawpanic/rotorun/internal/config"
	"github.com/sawpanic/rotorun/internal/engine"
	"github.com/sawpanic/rotorun/internal/loader"
	"github.com/sawpanic/rotorun/internal/results"
	"github.com/sawpanic/rotorun/internal/telemetry"
)

func progressConfigFor(isTTY bool) telemetry.ProgressConfig {
	if !isTTY {
		return telemetry.QuietProgressConfig()
	}
	cfg := telemetry.DefaultProgressConfig()
	cfg.SpinnerStyle = telemetry.SpinnerPipeline
	return cfg
}

func newBacktestCmd() *cobra.Command {
	var (
		barsDir string
		mode    string
		testBar int
	)

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay historical one-minute bars through the rotation engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			configureLogLevel(mustFlag(cmd, "log-level"))
			cfgPath := mustFlag(cmd, "config")

			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if testBar > 0 {
				cfg.Trading.TestDayStartBar = testBar
			}

			if mode == "" {
				mode = cfg.Trading.Strategy
			}
			engineMode := engine.ModeSigor
			if mode == "ewrls" {
				engineMode = engine.ModeEWRLS
			}

			runID := uuid.NewString()
			sink := results.NewAccumulator()

			var metrics *telemetry.Metrics
			if cfg.Telemetry.Enabled {
				metrics = telemetry.NewMetrics()
			}

			eng := engine.New(cfg, engineMode, sink, metrics, log.Logger)

			source := loader.NewCSVSource(barsDir)
			series, err := loadSeries(cmd.Context(), source, cfg.Universe.Symbols)
			if err != nil {
				return fmt.Errorf("load bars: %w", err)
			}
			if len(series) == 0 {
				return fmt.Errorf("no bars found under %s", barsDir)
			}

			isTTY := term.IsTerminal(int(os.Stdout.Fd()))
			log.Info().Str("run_id", runID).Int("ticks", len(series)).Str("mode", mode).Msg("starting backtest")

			progress := telemetry.NewProgressIndicator("backtest", len(series), progressConfigFor(isTTY))
			for i, tick := range series {
				if _, err := eng.Tick(cmd.Context(), tick.bars, tick.timestamp); err != nil {
					progress.Fail(err.Error())
					return fmt.Errorf("tick %d: %w", i, err)
				}
				progress.Update(i + 1)
			}
			progress.Finish()

			summary := sink.Summarize(cfg.Trading.TestDayStartBar)
			printSummary(runID, summary)
			return sink.Close()
		},
	}

	cmd.Flags().StringVar(&barsDir, "bars-dir", "./data/bars", "directory containing one <symbol>.csv per universe symbol")
	cmd.Flags().StringVar(&mode, "mode", "", "signal generator: sigor|ewrls (defaults to trading.strategy from the config)")
	cmd.Flags().IntVar(&testBar, "test-start-bar", 0, "bar index marking the start of the out-of-sample window")

	return cmd
}

type syncedTick struct {
	timestamp time.Time
	bars      map[string]bar.Bar
}

// loadSeries fetches every symbol's full bar history and merges it into
// one synchronized tick per distinct timestamp, the shape Engine.Tick
// expects (spec §5: "one map[string]bar.Bar per synchronized minute").
func loadSeries(ctx context.Context, source loader.Source, symbols []string) ([]syncedTick, error) {
	byTimestamp := make(map[int64]map[string]bar.Bar)
	var order []int64

	for _, sym := range symbols {
		bars, err := source.FetchBars(ctx, sym, time.Time{}, time.Now().AddDate(10, 0, 0))
		if err != nil {
			return nil, fmt.Errorf("symbol %s: %w", sym, err)
		}
		for _, b := range bars {
			key := b.Timestamp.Unix()
			group, ok := byTimestamp[key]
			if !ok {
				group = make(map[string]bar.Bar)
				byTimestamp[key] = group
				order = append(order, key)
			}
			group[sym] = b
		}
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	out := make([]syncedTick, 0, len(order))
	for _, key := range order {
		out = append(out, syncedTick{
			timestamp: time.Unix(key, 0).UTC(),
			bars:      byTimestamp[key],
		})
	}
	return out, nil
}

func printSummary(runID string, s results.Summary) {
	fmt.Printf("run_id:            %s\n", runID)
	fmt.Printf("total trades:      %d\n", s.TotalTrades)
	fmt.Printf("wins/losses:       %d/%d (%.1f%% win rate)\n", s.Wins, s.Losses, s.WinRate*100)
	fmt.Printf("gross profit/loss: %.2f / %.2f\n", s.GrossProfit, s.GrossLoss)
	fmt.Printf("profit factor:     %.3f\n", s.ProfitFactor)
	fmt.Printf("mean return/day:   %.4f\n", s.MeanReturnPerDay)
	fmt.Printf("total pnl:         %.2f\n", s.TotalPnL)
}

func mustFlag(cmd *cobra.Command, name string) string {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		return ""
	}
	return v
}
