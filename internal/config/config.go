// Package config loads and validates the rotation engine's YAML
// configuration file (spec §6), following the same read-unmarshal-validate
// shape as this repository's provider configuration loader.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EngineConfig is the root configuration document for a rotorun run.
type EngineConfig struct {
	Universe  UniverseConfig  `yaml:"universe"`
	Trading   TradingConfig   `yaml:"trading"`
	Sizing    SizingConfig    `yaml:"sizing"`
	Filter    FilterConfig    `yaml:"filter"`
	Cost      CostConfig      `yaml:"cost"`
	Predictor PredictorConfig `yaml:"predictor"`
	Sigor     SigorConfig     `yaml:"sigor"`
	Loader    LoaderConfig    `yaml:"loader"`
	Results   ResultsConfig   `yaml:"results"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// UniverseConfig declares the fixed, ordered symbol universe the engine
// trades. Order matters: it is the iteration order used everywhere the
// engine must behave deterministically (spec §9).
type UniverseConfig struct {
	Symbols []string `yaml:"symbols"`
}

// TradingConfig holds the rotation trader's core parameters (spec §4.11).
type TradingConfig struct {
	Strategy              string  `yaml:"strategy"` // "sigor" or "ewrls"; the --mode flag overrides this
	MaxPositions          int     `yaml:"max_positions"`
	MinBarsToLearn        int     `yaml:"min_bars_to_learn"`
	LookbackWindow        int     `yaml:"lookback_window"`
	BarsPerDay            int     `yaml:"bars_per_day"`
	WinMultiplier         float64 `yaml:"win_multiplier"`
	LossMultiplier        float64 `yaml:"loss_multiplier"`
	InitialCapital        float64 `yaml:"initial_capital"`
	BuyThreshold          float64 `yaml:"buy_threshold"`
	SellThreshold         float64 `yaml:"sell_threshold"`
	RotationStrengthDelta float64 `yaml:"rotation_strength_delta"`
	EnableRotation        bool    `yaml:"enable_rotation"`
	MinRankStrength       float64 `yaml:"min_rank_strength"`

	EnableProbabilityScaling bool    `yaml:"enable_probability_scaling"`
	ProbabilityScalingFactor float64 `yaml:"probability_scaling_factor"`

	EnableProfitTarget bool    `yaml:"enable_profit_target"`
	ProfitTargetPct    float64 `yaml:"profit_target_pct"`
	EnableStopLoss     bool    `yaml:"enable_stop_loss"`
	StopLossPct        float64 `yaml:"stop_loss_pct"`

	// EnablePriceBasedExits and the three fields below it configure a
	// price-only exit layer the rotation trader runs in addition to (not
	// instead of) the trade filter's own prediction/confidence exits
	// (spec §4.11 step 6).
	EnablePriceBasedExits  bool    `yaml:"enable_price_based_exits"`
	MAExitPeriod           int     `yaml:"ma_exit_period"`
	ExitOnMACrossover      bool    `yaml:"exit_on_ma_crossover"`
	TrailingStopPercentage float64 `yaml:"trailing_stop_percentage"`

	TestDayStartBar int `yaml:"test_day_start_bar"`
}

// SizingConfig holds the adaptive Kelly sizer's parameters (spec §4.11.1),
// mirroring internal/rotation.KellyConfig for YAML loading.
type SizingConfig struct {
	FractionalKelly            float64 `yaml:"fractional_kelly"`
	ExpectedWinPct             float64 `yaml:"expected_win_pct"`
	ExpectedLossPct            float64 `yaml:"expected_loss_pct"`
	MinPositionPct             float64 `yaml:"min_position_pct"`
	MaxPositionPct             float64 `yaml:"max_position_pct"`
	TradeHistorySize           int     `yaml:"trade_history_size"`
	EnableVolatilityAdjustment bool    `yaml:"enable_volatility_adjustment"`
	VolatilityLookback         int     `yaml:"volatility_lookback"`
	MaxVolatilityReduce        float64 `yaml:"max_volatility_reduce"`
}

// FilterConfig holds the trade filter's tunable thresholds (spec §4.10),
// mirroring internal/filter.Config for YAML loading.
type FilterConfig struct {
	MinBarsHold             int     `yaml:"min_bars_hold"`
	MaxBarsHold             int     `yaml:"max_bars_hold"`
	MinBarsBetweenEntries   int     `yaml:"min_bars_between_entries"`
	MaxTradesPerDay         int     `yaml:"max_trades_per_day"`
	MaxTradesPerHour        int     `yaml:"max_trades_per_hour"`
	MinPredictionForEntry   float64 `yaml:"min_prediction_for_entry"`
	MinConfidenceForEntry   float64 `yaml:"min_confidence_for_entry"`
	ConfidenceExitThreshold float64 `yaml:"exit_confidence_threshold"`
	ExitSignalReversedThreshold float64 `yaml:"exit_signal_reversed_threshold"`
	TypicalHoldPeriod       int     `yaml:"typical_hold_period"`
	MaxConfidenceDecayFrac  float64 `yaml:"max_confidence_decay_fraction"`
}

// CostConfig holds the transaction-cost model's tunables (spec §6.4),
// layered on top of internal/cost's built-in fee/slippage/impact model.
type CostConfig struct {
	EnableCostTracking bool               `yaml:"enable_cost_tracking"`
	BorrowRates        map[string]float64 `yaml:"borrow_rates"` // parsed but not read: internal/cost uses its built-in per-symbol table
	DefaultAvgVolume   float64            `yaml:"default_avg_volume"`
	DefaultVolatility  float64            `yaml:"default_volatility"`
}

// PredictorConfig holds the EWRLS predictor's parameters (spec §5.2).
type PredictorConfig struct {
	Lambda float64 `yaml:"lambda"`
	InitP  float64 `yaml:"init_p"`
}

// SigorConfig mirrors internal/strategy/sigor.Config for YAML loading.
type SigorConfig struct {
	K              float64 `yaml:"k"`
	LongThreshold  float64 `yaml:"long_threshold"`
	ShortThreshold float64 `yaml:"short_threshold"`
	WarmupBars     int     `yaml:"warmup_bars"`
}

// LoaderConfig holds bar-loading cache and resilience parameters.
type LoaderConfig struct {
	RedisAddr          string `yaml:"redis_addr"`
	CacheTTLSecs       int    `yaml:"cache_ttl_secs"`
	RatePerSecond      float64 `yaml:"rate_per_second"`
	RateBurst          int    `yaml:"rate_burst"`
	BreakerMaxFailures int    `yaml:"breaker_max_failures"`
}

// ResultsConfig selects and configures the results sink used by
// `rotorun serve`; `rotorun backtest` always accumulates results in memory.
type ResultsConfig struct {
	Sink    string `yaml:"sink"` // "memory" or "postgres"
	PostgresDSN string `yaml:"postgres_dsn"`
}

// TelemetryConfig configures the metrics/health HTTP surface.
type TelemetryConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	Enabled    bool   `yaml:"enabled"`
}

// LoggingConfig configures the zerolog-based logger.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	PrettyJSON bool   `yaml:"pretty_json"`
}

// Load reads, parses, and validates an EngineConfig from a YAML file.
func Load(path string) (*EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns an EngineConfig populated with the reference defaults
// used throughout the other internal packages, so a caller only needs to
// override what their run changes.
func Default() *EngineConfig {
	return &EngineConfig{
		Trading: TradingConfig{
			Strategy:                 "sigor",
			MaxPositions:             3,
			MinBarsToLearn:           50,
			LookbackWindow:           50,
			BarsPerDay:               390,
			WinMultiplier:            1.0,
			LossMultiplier:           1.0,
			InitialCapital:           100_000,
			BuyThreshold:             0.52,
			SellThreshold:            0.48,
			RotationStrengthDelta:    0.15,
			EnableRotation:           true,
			MinRankStrength:          0.0,
			EnableProbabilityScaling: false,
			ProbabilityScalingFactor: 1.0,
			EnableProfitTarget:       true,
			ProfitTargetPct:          3.0,
			EnableStopLoss:          true,
			StopLossPct:             0.05,
			EnablePriceBasedExits:   false,
			MAExitPeriod:            20,
			ExitOnMACrossover:       false,
			TrailingStopPercentage:  0.0,
			TestDayStartBar:         0,
		},
		Sizing: SizingConfig{
			FractionalKelly:            0.5,
			ExpectedWinPct:             1.0,
			ExpectedLossPct:            1.0,
			MinPositionPct:             0.01,
			MaxPositionPct:             0.25,
			TradeHistorySize:           5,
			EnableVolatilityAdjustment: true,
			VolatilityLookback:         20,
			MaxVolatilityReduce:        0.5,
		},
		Filter: FilterConfig{
			MinBarsHold:                  3,
			MaxBarsHold:                  60,
			MinBarsBetweenEntries:        5,
			MaxTradesPerDay:              20,
			MaxTradesPerHour:             5,
			MinPredictionForEntry:        0.0,
			MinConfidenceForEntry:        0.0,
			ConfidenceExitThreshold:      0.3,
			ExitSignalReversedThreshold:  0.0,
			TypicalHoldPeriod:            20,
			MaxConfidenceDecayFrac:       0.3,
		},
		Cost: CostConfig{
			EnableCostTracking: true,
			DefaultAvgVolume:   1_000_000,
			DefaultVolatility:  0.02,
		},
		Predictor: PredictorConfig{
			Lambda: 0.99,
			InitP:  100.0,
		},
		Sigor: SigorConfig{
			K:              1.5,
			LongThreshold:  0.52,
			ShortThreshold: 0.48,
			WarmupBars:     50,
		},
		Loader: LoaderConfig{
			RedisAddr:          "localhost:6379",
			CacheTTLSecs:       600,
			RatePerSecond:      20,
			RateBurst:          40,
			BreakerMaxFailures: 5,
		},
		Results: ResultsConfig{
			Sink: "memory",
		},
		Telemetry: TelemetryConfig{
			ListenAddr: ":9090",
			Enabled:    true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks every nested section for internal consistency.
func (c *EngineConfig) Validate() error {
	if len(c.Universe.Symbols) == 0 {
		return fmt.Errorf("universe: at least one symbol is required")
	}
	seen := make(map[string]bool, len(c.Universe.Symbols))
	for _, s := range c.Universe.Symbols {
		if s == "" {
			return fmt.Errorf("universe: symbol names cannot be empty")
		}
		if seen[s] {
			return fmt.Errorf("universe: duplicate symbol %q", s)
		}
		seen[s] = true
	}

	if err := c.Trading.Validate(); err != nil {
		return fmt.Errorf("trading: %w", err)
	}
	if err := c.Sizing.Validate(); err != nil {
		return fmt.Errorf("sizing: %w", err)
	}
	if err := c.Filter.Validate(); err != nil {
		return fmt.Errorf("filter: %w", err)
	}
	if err := c.Predictor.Validate(); err != nil {
		return fmt.Errorf("predictor: %w", err)
	}
	if err := c.Sigor.Validate(); err != nil {
		return fmt.Errorf("sigor: %w", err)
	}
	if err := c.Results.Validate(); err != nil {
		return fmt.Errorf("results: %w", err)
	}
	return nil
}

// Validate checks the trading section.
func (t *TradingConfig) Validate() error {
	if t.MaxPositions <= 0 {
		return fmt.Errorf("max_positions must be positive, got %d", t.MaxPositions)
	}
	if t.LookbackWindow <= 0 {
		return fmt.Errorf("lookback_window must be positive, got %d", t.LookbackWindow)
	}
	if t.BarsPerDay <= 0 {
		return fmt.Errorf("bars_per_day must be positive, got %d", t.BarsPerDay)
	}
	if t.InitialCapital <= 0 {
		return fmt.Errorf("initial_capital must be positive, got %f", t.InitialCapital)
	}
	if t.RotationStrengthDelta < 0 {
		return fmt.Errorf("rotation_strength_delta cannot be negative, got %f", t.RotationStrengthDelta)
	}
	return nil
}

// Validate checks the sizing section.
func (s *SizingConfig) Validate() error {
	if s.FractionalKelly <= 0 || s.FractionalKelly > 1 {
		return fmt.Errorf("fractional_kelly must be in (0,1], got %f", s.FractionalKelly)
	}
	if s.MinPositionPct < 0 || s.MinPositionPct > s.MaxPositionPct {
		return fmt.Errorf("min_position_pct (%f) must be within [0, max_position_pct=%f]", s.MinPositionPct, s.MaxPositionPct)
	}
	if s.MaxPositionPct <= 0 || s.MaxPositionPct > 1 {
		return fmt.Errorf("max_position_pct must be in (0,1], got %f", s.MaxPositionPct)
	}
	return nil
}

// Validate checks the filter section.
func (f *FilterConfig) Validate() error {
	if f.MinBarsHold < 0 {
		return fmt.Errorf("min_bars_hold cannot be negative, got %d", f.MinBarsHold)
	}
	if f.MaxBarsHold <= f.MinBarsHold {
		return fmt.Errorf("max_bars_hold (%d) must exceed min_bars_hold (%d)", f.MaxBarsHold, f.MinBarsHold)
	}
	if f.MaxTradesPerDay <= 0 {
		return fmt.Errorf("max_trades_per_day must be positive, got %d", f.MaxTradesPerDay)
	}
	if f.MaxTradesPerHour <= 0 {
		return fmt.Errorf("max_trades_per_hour must be positive, got %d", f.MaxTradesPerHour)
	}
	return nil
}

// Validate checks the predictor section.
func (p *PredictorConfig) Validate() error {
	if p.Lambda <= 0 || p.Lambda > 1 {
		return fmt.Errorf("lambda must be in (0,1], got %f", p.Lambda)
	}
	if p.InitP <= 0 {
		return fmt.Errorf("init_p must be positive, got %f", p.InitP)
	}
	return nil
}

// Validate checks the SIGOR section.
func (s *SigorConfig) Validate() error {
	if s.LongThreshold <= s.ShortThreshold {
		return fmt.Errorf("long_threshold (%f) must exceed short_threshold (%f)", s.LongThreshold, s.ShortThreshold)
	}
	if s.WarmupBars <= 0 {
		return fmt.Errorf("warmup_bars must be positive, got %d", s.WarmupBars)
	}
	return nil
}

// Validate checks the results section.
func (r *ResultsConfig) Validate() error {
	switch r.Sink {
	case "memory":
		return nil
	case "postgres":
		if r.PostgresDSN == "" {
			return fmt.Errorf("postgres_dsn is required when sink=postgres")
		}
		return nil
	default:
		return fmt.Errorf("sink must be \"memory\" or \"postgres\", got %q", r.Sink)
	}
}
