// Package wrsi implements the Williams %R / RSI crossover strategy: a
// simpler rule-based alternative to SIGOR that combines oscillator
// crossovers with Bollinger band proximity (spec §5.5).
package wrsi

import (
	"math"

	"github.com/sawpanic/rotorun/internal/bar"
)

// Config holds the Williams%R-RSI strategy's tunable parameters.
type Config struct {
	WilliamsRPeriod int
	RSIPeriod       int
	BollingerPeriod int
	BollingerK      float64
	OversoldWR      float64 // Williams%R below this is oversold (e.g. -80)
	OverboughtWR    float64 // Williams%R above this is overbought (e.g. -20)
	OversoldRSI     float64
	OverboughtRSI   float64
	WarmupBars      int
	HistoryCapacity int
}

// DefaultConfig mirrors the reference strategy's parameterization.
func DefaultConfig() Config {
	return Config{
		WilliamsRPeriod: 14,
		RSIPeriod:       14,
		BollingerPeriod: 20,
		BollingerK:      2.0,
		OversoldWR:      -80,
		OverboughtWR:    -20,
		OversoldRSI:     30,
		OverboughtRSI:   70,
		WarmupBars:      30,
		HistoryCapacity: 256,
	}
}

// CrossState classifies how an oscillator is behaving relative to its
// oversold/overbought bands: whether it is still approaching an extreme,
// has freshly crossed back out of one, or is neutral.
type CrossState int

const (
	CrossNone CrossState = iota
	CrossApproaching
	CrossFreshLong  // just crossed up out of oversold
	CrossFreshShort // just crossed down out of overbought
)

// Signal is the strategy's output for one bar.
type Signal struct {
	WilliamsR     float64
	RSI           float64
	WRState       CrossState
	RSIState      CrossState
	NearLowerBand bool
	NearUpperBand bool
	IsLong        bool
	IsShort       bool
}

// Strategy evaluates Williams%R/RSI crossovers combined with Bollinger
// band proximity over a single symbol's bar history.
type Strategy struct {
	cfg       Config
	history   *bar.Ring
	prevWR    float64
	prevRSI   float64
	hasPrev   bool
}

// New builds a Williams%R-RSI strategy with the given configuration.
func New(cfg Config) *Strategy {
	return &Strategy{
		cfg:     cfg,
		history: bar.NewRing(cfg.HistoryCapacity),
	}
}

// Reset clears all history and crossover state (idempotent-reset law,
// spec §8).
func (s *Strategy) Reset() {
	s.history.Clear()
	s.prevWR = 0
	s.prevRSI = 0
	s.hasPrev = false
}

// Update appends a bar and returns a signal once WarmupBars have
// accumulated.
func (s *Strategy) Update(b bar.Bar) (Signal, bool) {
	s.history.Append(b)
	if s.history.Len() < s.cfg.WarmupBars {
		return Signal{}, false
	}

	bars := s.history.Slice()
	wr := williamsR(bars, s.cfg.WilliamsRPeriod)
	rsi := wilderRSI(closesOf(bars), s.cfg.RSIPeriod)

	wrState := CrossNone
	rsiState := CrossNone
	if s.hasPrev {
		wrState = crossState(s.prevWR, wr, s.cfg.OversoldWR, s.cfg.OverboughtWR)
		rsiState = crossState(s.prevRSI, rsi, s.cfg.OversoldRSI, s.cfg.OverboughtRSI)
	}

	nearLower, nearUpper := bollingerProximity(bars, s.cfg.BollingerPeriod, s.cfg.BollingerK)

	isLong := (wrState == CrossFreshLong || rsiState == CrossFreshLong) && nearLower
	isShort := (wrState == CrossFreshShort || rsiState == CrossFreshShort) && nearUpper

	s.prevWR = wr
	s.prevRSI = rsi
	s.hasPrev = true

	return Signal{
		WilliamsR:     wr,
		RSI:           rsi,
		WRState:       wrState,
		RSIState:      rsiState,
		NearLowerBand: nearLower,
		NearUpperBand: nearUpper,
		IsLong:        isLong,
		IsShort:       isShort,
	}, true
}

// crossState classifies an oscillator's movement between the previous and
// current reading relative to its oversold (lo) / overbought (hi) bands.
// lo/hi follow Williams%R convention (lo < hi, both typically negative or
// both typically in [0,100] for RSI); the function works for either scale
// since it only compares relative position to the two thresholds.
func crossState(prev, cur, lo, hi float64) CrossState {
	switch {
	case prev <= lo && cur > lo:
		return CrossFreshLong
	case prev >= hi && cur < hi:
		return CrossFreshShort
	case cur <= lo || cur >= hi:
		return CrossApproaching
	default:
		return CrossNone
	}
}

func closesOf(bars []bar.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// williamsR computes %R over the trailing `period` bars:
// -100 * (highestHigh - close) / (highestHigh - lowestLow).
func williamsR(bars []bar.Bar, period int) float64 {
	n := len(bars)
	if period > n {
		period = n
	}
	window := bars[n-period:]
	hi, lo := window[0].High, window[0].Low
	for _, b := range window {
		if b.High > hi {
			hi = b.High
		}
		if b.Low < lo {
			lo = b.Low
		}
	}
	rng := hi - lo
	if rng < 1e-8 {
		return -50.0
	}
	last := window[len(window)-1].Close
	return -100.0 * (hi - last) / rng
}

// wilderRSI mirrors the SIGOR package's RSI calculation: SMA-seeded,
// then EMA-smoothed with alpha=1/period (Wilder's method).
func wilderRSI(closes []float64, period int) float64 {
	n := len(closes)
	if n <= period {
		return 50.0
	}
	var gainSum, lossSum float64
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gainSum += d
		} else {
			lossSum += -d
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)
	alpha := 1.0 / float64(period)

	for i := period + 1; i < n; i++ {
		d := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if d > 0 {
			gain = d
		} else {
			loss = -d
		}
		avgGain = alpha*gain + (1-alpha)*avgGain
		avgLoss = alpha*loss + (1-alpha)*avgLoss
	}
	if avgLoss < 1e-8 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - 100.0/(1.0+rs)
}

// bollingerProximity reports whether the latest close sits at or below the
// lower band, or at or above the upper band.
func bollingerProximity(bars []bar.Bar, period int, k float64) (nearLower, nearUpper bool) {
	closes := closesOf(bars)
	n := len(closes)
	if period > n {
		period = n
	}
	window := closes[n-period:]
	m := mean(window)
	sd := stddev(window)
	last := closes[n-1]
	upper := m + k*sd
	lower := m - k*sd
	return last <= lower, last >= upper
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func stddev(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	m := mean(vals)
	sq := 0.0
	for _, v := range vals {
		d := v - m
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(vals)-1))
}
