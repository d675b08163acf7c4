package rotation

import "math"

// maxCashFraction is an explicit, non-configurable ceiling: no single
// position may ever consume more than 95% of available cash, regardless
// of how MaxPositionFraction is configured (spec §4.11.1).
const maxCashFraction = 0.95

// strengthRefPrediction is the |prediction| magnitude at which the
// strength-adjustment term saturates (spec §4.11.1: "0.7 + 0.3 *
// min(1, s/0.005)").
const strengthRefPrediction = 0.005

// volatilityBaseline and volatilityBand parameterize the volatility
// adjustment's threshold rule (spec §4.11.1: "1 - min(max_volatility_reduce,
// (sigma-0.02)/0.02)").
const (
	volatilityBaseline = 0.02
	volatilityBand      = 0.02
)

// KellyConfig holds the parameters of the adaptive Kelly position sizer
// (spec §4.11.1, "adaptive Kelly sizing").
type KellyConfig struct {
	FractionalKelly     float64 // scales the full-Kelly fraction down, e.g. 0.5 for half-Kelly
	MinWinProb          float64
	MaxWinProb          float64
	MinPositionFraction float64 // floor applied whenever sizing produces a positive but tiny fraction
	MaxPositionFraction float64 // configured ceiling on capital fraction per position
	ExpectedWinPct      float64 // average winning return magnitude (config: expected_win_pct)
	ExpectedLossPct     float64 // average losing return magnitude, positive (config: expected_loss_pct)
	EnableVolatilityAdjustment bool
	MaxVolatilityReduce float64 // ceiling on the volatility-based size reduction
	TradeHistorySize    int     // streak length that must be unanimous to trigger the streak multiplier
	MinStreakMultiplier float64 // applied when the last TradeHistorySize trades were all losses
	MaxStreakMultiplier float64 // applied when the last TradeHistorySize trades were all wins
}

// DefaultKellyConfig mirrors the reference sizer's defaults.
func DefaultKellyConfig() KellyConfig {
	return KellyConfig{
		FractionalKelly:            0.5,
		MinWinProb:                 0.05,
		MaxWinProb:                 0.95,
		MinPositionFraction:        0.01,
		MaxPositionFraction:        0.25,
		ExpectedWinPct:             1.0,
		ExpectedLossPct:            1.0,
		EnableVolatilityAdjustment: true,
		MaxVolatilityReduce:        0.5,
		TradeHistorySize:           5,
		MinStreakMultiplier:        0.5,
		MaxStreakMultiplier:        1.5,
	}
}

// KellyInputs bundles the per-symbol statistics the sizer needs for one
// decision.
type KellyInputs struct {
	WinProbability float64 // model confidence expressed as a win probability
	ExpectedWin    float64 // average winning return magnitude
	ExpectedLoss   float64 // average losing return magnitude (positive number)
	Strength       float64 // |prediction|, drives the strength-adjustment term
	Volatility     float64 // recent realized volatility, absolute (e.g. 0.03 = 3%)
	WinStreak      int     // positive for consecutive wins, negative for consecutive losses
}

// KellyFraction computes the fraction of capital to allocate to one
// position, following spec §4.11.1 literally: the classic Kelly criterion
// f* = p - (1-p)/b scaled down by FractionalKelly, multiplied by a
// strength adjustment and a volatility adjustment, then nudged by a
// binary streak rule that only fires when the last TradeHistorySize
// trades were unanimous wins or losses. The result is floored at
// MinPositionFraction (when positive) and capped at both
// MaxPositionFraction and the hard 95%-of-cash ceiling.
func KellyFraction(in KellyInputs, cfg KellyConfig) float64 {
	p := clampProb(in.WinProbability, cfg.MinWinProb, cfg.MaxWinProb)

	if in.ExpectedLoss <= 1e-10 {
		return 0
	}
	b := in.ExpectedWin / in.ExpectedLoss

	full := p - (1-p)/b
	if full <= 0 {
		return 0
	}

	fraction := full * cfg.FractionalKelly

	strengthAdj := 0.7 + 0.3*math.Min(1.0, in.Strength/strengthRefPrediction)
	fraction *= strengthAdj

	if cfg.EnableVolatilityAdjustment {
		reduce := (in.Volatility - volatilityBaseline) / volatilityBand
		if reduce < 0 {
			reduce = 0
		}
		if reduce > cfg.MaxVolatilityReduce {
			reduce = cfg.MaxVolatilityReduce
		}
		fraction *= 1 - reduce
	}

	if cfg.TradeHistorySize > 0 {
		switch {
		case in.WinStreak >= cfg.TradeHistorySize:
			fraction *= cfg.MaxStreakMultiplier
		case in.WinStreak <= -cfg.TradeHistorySize:
			fraction *= cfg.MinStreakMultiplier
		}
	}

	if fraction < 0 {
		fraction = 0
	}
	if fraction > 0 && fraction < cfg.MinPositionFraction {
		fraction = cfg.MinPositionFraction
	}
	if fraction > cfg.MaxPositionFraction {
		fraction = cfg.MaxPositionFraction
	}
	if fraction > maxCashFraction {
		fraction = maxCashFraction
	}
	return fraction
}

func clampProb(p, lo, hi float64) float64 {
	if p < lo {
		return lo
	}
	if p > hi {
		return hi
	}
	return p
}

// SharesForFraction converts a capital fraction into a whole-share
// position size at the given price.
func SharesForFraction(capital, fraction, price float64) float64 {
	if price <= 0 {
		return 0
	}
	dollars := capital * fraction
	return math.Floor(dollars / price)
}
