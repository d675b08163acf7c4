// Package engine wires the feature extractors, signal generators, trade
// filter, rotation trader, and results sink into the single per-bar tick
// described by spec §5: features, then a prediction per symbol, then one
// synchronized rotation decision across the whole universe.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/rotorun/internal/bar"
	"github.com/sawpanic/rotorun/internal/config"
	"github.com/sawpanic/rotorun/internal/feature"
	"github.com/sawpanic/rotorun/internal/filter"
	"github.com/sawpanic/rotorun/internal/predictor"
	"github.com/sawpanic/rotorun/internal/results"
	"github.com/sawpanic/rotorun/internal/rotation"
	"github.com/sawpanic/rotorun/internal/strategy/sigor"
	"github.com/sawpanic/rotorun/internal/telemetry"
)

// Mode selects which signal generator family drives every symbol in a
// run. Neither mode has an observation or simulation phase: each trades as
// soon as its generator produces a candidate. Mixing the two within one run
// is not supported; a deployment wanting both runs two engines over
// disjoint universes.
type Mode int

const (
	ModeEWRLS Mode = iota
	ModeSigor
)

// symbolState bundles the per-symbol pipeline state the engine advances
// every tick.
type symbolState struct {
	extractor *feature.Extractor
	ewrls     *predictor.MultiHorizonPredictor
	sigorStr  *sigor.Strategy

	pendingVector feature.Vector
	pendingPrice  float64
	hasPending    bool
}

// Engine owns one symbol universe's full tick pipeline.
type Engine struct {
	cfg     *config.EngineConfig
	mode    Mode
	symbols []string
	states  map[string]*symbolState

	filter  *filter.Filter
	trader  *rotation.Trader
	sink    results.Sink
	metrics *telemetry.Metrics
	log     zerolog.Logger

	barIndex int
	openBars map[string]int // symbol -> bar index the current position was opened at, for trade recording
	openInfo map[string]rotation.Position
}

// New builds an Engine over the given symbol universe.
func New(cfg *config.EngineConfig, mode Mode, sink results.Sink, metrics *telemetry.Metrics, log zerolog.Logger) *Engine {
	f := filter.New(filterConfigFrom(cfg))

	traderCfg := rotation.DefaultTraderConfig()
	traderCfg.MaxPositions = cfg.Trading.MaxPositions
	traderCfg.RotationStrengthDelta = cfg.Trading.RotationStrengthDelta
	traderCfg.InitialCapital = cfg.Trading.InitialCapital
	traderCfg.EnablePriceBasedExits = cfg.Trading.EnablePriceBasedExits
	traderCfg.MAExitPeriod = cfg.Trading.MAExitPeriod
	traderCfg.ExitOnMACrossover = cfg.Trading.ExitOnMACrossover
	traderCfg.TrailingStopPercentage = cfg.Trading.TrailingStopPercentage
	traderCfg.EnableCostTracking = cfg.Cost.EnableCostTracking
	traderCfg.DefaultADV = cfg.Cost.DefaultAvgVolume
	traderCfg.DefaultVolatility = cfg.Cost.DefaultVolatility

	trader := rotation.New(traderCfg, kellyConfigFrom(cfg), f, cfg.Universe.Symbols)

	e := &Engine{
		cfg:      cfg,
		mode:     mode,
		symbols:  append([]string(nil), cfg.Universe.Symbols...),
		states:   make(map[string]*symbolState),
		filter:   f,
		trader:   trader,
		sink:     sink,
		metrics:  metrics,
		log:      log,
		openInfo: make(map[string]rotation.Position),
	}
	for _, sym := range e.symbols {
		e.states[sym] = e.newSymbolState()
	}
	return e
}

// filterConfigFrom translates the config file's filter and trading
// sections into filter.Config. ProfitTargetPct/StopLossPct are the
// trade filter's own price-based exits (spec §4.10); EnablePriceBasedExits
// and its MA/trailing-stop siblings configure the separate layer the
// rotation trader runs on top of the filter (spec §4.11 step 6).
func filterConfigFrom(cfg *config.EngineConfig) filter.Config {
	fc := filter.DefaultConfig()
	fc.MinBarsHold = cfg.Filter.MinBarsHold
	fc.MaxBarsHold = cfg.Filter.MaxBarsHold
	fc.MinBarsBetweenEntries = cfg.Filter.MinBarsBetweenEntries
	fc.MaxTradesPerDay = cfg.Filter.MaxTradesPerDay
	fc.MaxTradesPerHour = cfg.Filter.MaxTradesPerHour
	fc.MinPredictionForEntry = cfg.Filter.MinPredictionForEntry
	fc.MinConfidenceForEntry = cfg.Filter.MinConfidenceForEntry
	fc.ConfidenceExitThreshold = cfg.Filter.ConfidenceExitThreshold
	fc.ExitSignalReversedThreshold = cfg.Filter.ExitSignalReversedThreshold
	fc.TypicalHoldPeriod = cfg.Filter.TypicalHoldPeriod
	fc.MaxConfidenceDecayFrac = cfg.Filter.MaxConfidenceDecayFrac
	if cfg.Trading.EnableProfitTarget {
		fc.ProfitTargetMultiple = cfg.Trading.ProfitTargetPct
	} else {
		fc.ProfitTargetMultiple = 0
	}
	if cfg.Trading.EnableStopLoss {
		fc.EmergencyStopLossPct = cfg.Trading.StopLossPct
	} else {
		fc.EmergencyStopLossPct = 1.0 // effectively disabled: no return is ever this adverse
	}
	return fc
}

// kellyConfigFrom translates the config file's sizing section into
// rotation.KellyConfig.
func kellyConfigFrom(cfg *config.EngineConfig) rotation.KellyConfig {
	kc := rotation.DefaultKellyConfig()
	kc.FractionalKelly = cfg.Sizing.FractionalKelly
	kc.ExpectedWinPct = cfg.Sizing.ExpectedWinPct
	kc.ExpectedLossPct = cfg.Sizing.ExpectedLossPct
	kc.MinPositionFraction = cfg.Sizing.MinPositionPct
	kc.MaxPositionFraction = cfg.Sizing.MaxPositionPct
	kc.TradeHistorySize = cfg.Sizing.TradeHistorySize
	kc.EnableVolatilityAdjustment = cfg.Sizing.EnableVolatilityAdjustment
	kc.MaxVolatilityReduce = cfg.Sizing.MaxVolatilityReduce
	return kc
}

func (e *Engine) newSymbolState() *symbolState {
	st := &symbolState{
		extractor: feature.NewExtractor(true),
	}
	switch e.mode {
	case ModeEWRLS:
		st.ewrls = predictor.NewMultiHorizonPredictor(feature.NumFeaturesWithRegime, e.cfg.Predictor.Lambda, e.cfg.Predictor.InitP)
	case ModeSigor:
		cfg := sigor.DefaultConfig()
		cfg.K = e.cfg.Sigor.K
		cfg.LongThreshold = e.cfg.Sigor.LongThreshold
		cfg.ShortThreshold = e.cfg.Sigor.ShortThreshold
		cfg.WarmupBars = e.cfg.Sigor.WarmupBars
		st.sigorStr = sigor.New(cfg)
	}
	return st
}

// BarIndex returns the number of ticks processed so far.
func (e *Engine) BarIndex() int {
	return e.barIndex
}

// Reset reinitializes every symbol's pipeline state, the trader, and the
// bar counter (idempotent-reset law, spec §8).
func (e *Engine) Reset() {
	for _, sym := range e.symbols {
		e.states[sym] = e.newSymbolState()
	}
	e.trader.Reset()
	e.barIndex = 0
	e.openInfo = make(map[string]rotation.Position)
}

// Tick advances the engine by one synchronized bar across the whole
// universe: extract features, predict, rank and trade, then record any
// resulting fills. bars must contain at most one bar per known symbol;
// missing symbols are logged at Warn level and skipped for this tick (spec
// §7, kind 2: a gap in one symbol's feed does not halt the others).
func (e *Engine) Tick(ctx context.Context, bars map[string]bar.Bar, timestamp time.Time) ([]rotation.Fill, error) {
	var candidates []rotation.Candidate

	for _, sym := range e.symbols {
		b, ok := bars[sym]
		if !ok {
			e.log.Warn().Str("symbol", sym).Int("bar", e.barIndex).Msg("missing bar for symbol; skipped this tick")
			continue
		}
		st := e.states[sym]

		vec := st.extractor.Extract(b)

		if st.hasPending && st.pendingPrice > 0 {
			target := (b.Close - st.pendingPrice) / st.pendingPrice
			if st.ewrls != nil {
				st.ewrls.Update(predictor.Horizon2, st.pendingVector, target)
			}
		}

		if vec != nil {
			st.pendingVector = vec
			st.pendingPrice = b.Close
			st.hasPending = true
		}

		c, ok := e.signalFor(sym, st, b, timestamp, vec)
		if ok {
			candidates = append(candidates, c)
		}

		if e.metrics != nil {
			e.metrics.BarsProcessed.WithLabelValues(sym).Inc()
		}
	}

	fills := e.trader.Tick(candidates, e.barIndex, timestamp)
	if err := e.recordFills(ctx, fills, timestamp); err != nil {
		return fills, err
	}

	if e.metrics != nil {
		e.metrics.OpenPositions.Set(float64(len(e.trader.Positions())))
		e.metrics.Equity.Set(e.trader.Capital())
	}

	e.barIndex++
	return fills, nil
}

func (e *Engine) signalFor(sym string, st *symbolState, b bar.Bar, ts time.Time, vec feature.Vector) (rotation.Candidate, bool) {
	switch e.mode {
	case ModeEWRLS:
		if vec == nil || st.ewrls == nil {
			return rotation.Candidate{}, false
		}
		value, confidence, ok := st.ewrls.Predict(predictor.Horizon2, vec)
		if !ok {
			return rotation.Candidate{}, false
		}
		return rotation.Candidate{Symbol: sym, Timestamp: ts, Prediction: value, Confidence: confidence, Price: b.Close}, true
	case ModeSigor:
		sig, ok := st.sigorStr.Update(b)
		if !ok {
			return rotation.Candidate{}, false
		}
		prediction := sig.Probability - 0.5 // center around zero, sign gives direction
		return rotation.Candidate{Symbol: sym, Timestamp: ts, Prediction: prediction, Confidence: sig.Probability, Price: b.Close}, true
	default:
		return rotation.Candidate{}, false
	}
}

func (e *Engine) recordFills(ctx context.Context, fills []rotation.Fill, ts time.Time) error {
	for _, f := range fills {
		if e.metrics != nil {
			side := "long"
			if f.Side == rotation.Short {
				side = "short"
			}
			if f.IsEntry {
				e.metrics.TradesOpened.WithLabelValues(f.Symbol, side).Inc()
			} else {
				e.metrics.TradesClosed.WithLabelValues(f.Symbol, f.Reason).Inc()
			}
		}

		if f.IsEntry {
			e.openInfo[f.Symbol] = rotation.Position{
				Symbol: f.Symbol, Side: f.Side, EntryBar: f.Bar,
				EntryTime: f.Timestamp, EntryPrice: f.Price, Shares: f.Shares,
			}
			continue
		}

		entry, ok := e.openInfo[f.Symbol]
		if !ok {
			continue
		}
		delete(e.openInfo, f.Symbol)

		pnl := entry.UnrealizedPnL(f.Price) * f.Shares * entry.EntryPrice
		side := "long"
		if f.Side == rotation.Short {
			side = "short"
		}
		trade := results.Trade{
			Symbol: f.Symbol, Side: side,
			EntryBar: entry.EntryBar, ExitBar: f.Bar,
			EntryTime: entry.EntryTime, ExitTime: f.Timestamp,
			EntryPrice: entry.EntryPrice, ExitPrice: f.Price,
			Shares: f.Shares, PnL: pnl, ExitReason: f.Reason,
		}
		if e.sink != nil {
			if err := e.sink.RecordTrade(ctx, trade); err != nil {
				return fmt.Errorf("engine: record trade for %s: %w", f.Symbol, err)
			}
		}
	}

	if e.sink != nil && e.barIndex%e.cfg.Trading.BarsPerDay == 0 {
		snap := results.EquitySnapshot{Bar: e.barIndex, Timestamp: ts, Equity: e.trader.Capital()}
		if err := e.sink.RecordEquity(ctx, snap); err != nil {
			return fmt.Errorf("engine: record equity snapshot: %w", err)
		}
	}
	return nil
}
