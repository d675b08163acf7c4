// Package sigor implements the rule-based signal ensemble ("SIGOR": signal
// OR-fusion) used as the non-learning alternative to the EWRLS predictor.
// Seven independent probability detectors are combined by a weighted
// log-odds fusion rather than averaging, so a single strongly opinionated
// detector can dominate a field of near-neutral ones (spec §5.4).
package sigor

import (
	"math"

	"github.com/sawpanic/rotorun/internal/bar"
)

// barsPerDay is used to locate each trading day's opening range.
const barsPerDay = 390

// Config holds the tunable parameters of the SIGOR ensemble. Defaults
// mirror the reference configuration (spec §5.4 / original strategy
// defaults).
type Config struct {
	K                float64 // logit fusion steepness
	WeightBollinger  float64
	WeightRSI        float64
	WeightMomentum   float64
	WeightVWAP       float64
	WeightORB        float64
	WeightOFI        float64
	WeightVolume     float64
	BollingerWindow  int
	RSIWindow        int
	MomentumWindow   int
	VWAPWindow       int
	ORBOpeningBars   int
	VolumeWindow     int
	WarmupBars       int
	LongThreshold    float64
	ShortThreshold   float64
	HistoryCapacity  int
}

// DefaultConfig returns the SIGOR ensemble's reference configuration.
func DefaultConfig() Config {
	return Config{
		K:               1.5,
		WeightBollinger: 1.0,
		WeightRSI:       1.0,
		WeightMomentum:  1.0,
		WeightVWAP:      1.0,
		WeightORB:       0.5,
		WeightOFI:       0.5,
		WeightVolume:    0.5,
		BollingerWindow: 20,
		RSIWindow:       14,
		MomentumWindow:  10,
		VWAPWindow:      20,
		ORBOpeningBars:  30,
		VolumeWindow:    20,
		WarmupBars:      50,
		LongThreshold:   0.52,
		ShortThreshold:  0.48,
		HistoryCapacity: 2048,
	}
}

// DetectorProbabilities exposes each rule's raw probability for
// diagnostics and testing, alongside the fused result.
type DetectorProbabilities struct {
	Bollinger float64
	RSI       float64
	Momentum  float64
	VWAP      float64
	ORB       float64
	OFI       float64
	Volume    float64
}

// Signal is the fused SIGOR output for one bar.
type Signal struct {
	Probability float64
	IsLong      bool
	IsShort     bool
	Detectors   DetectorProbabilities
}

// Strategy evaluates the SIGOR ensemble over a single symbol's bar
// history. It produces signals as soon as WarmupBars have accumulated;
// there is no separate observation or simulation phase.
type Strategy struct {
	cfg      Config
	history  *bar.Ring
	barIndex int
}

// New builds a SIGOR strategy with the given configuration.
func New(cfg Config) *Strategy {
	return &Strategy{
		cfg:     cfg,
		history: bar.NewRing(cfg.HistoryCapacity),
	}
}

// Reset clears all bar history (idempotent-reset law, spec §8).
func (s *Strategy) Reset() {
	s.history.Clear()
	s.barIndex = 0
}

// Update appends a bar and returns a fused signal once WarmupBars have
// accumulated; otherwise ok is false.
func (s *Strategy) Update(b bar.Bar) (Signal, bool) {
	s.history.Append(b)
	s.barIndex++
	if s.history.Len() < s.cfg.WarmupBars {
		return Signal{}, false
	}

	bars := s.history.Slice()
	momentum := s.momentumProbability(bars)
	det := DetectorProbabilities{
		Bollinger: s.bollingerProbability(bars),
		RSI:       s.rsiProbability(bars),
		Momentum:  momentum,
		VWAP:      s.vwapProbability(bars),
		ORB:       s.orbProbability(bars),
		OFI:       s.ofiProbability(bars),
		Volume:    s.volumeProbability(bars, momentum),
	}

	fused := s.fuse(det)
	return Signal{
		Probability: fused,
		IsLong:      fused > s.cfg.LongThreshold,
		IsShort:     fused < s.cfg.ShortThreshold,
		Detectors:   det,
	}, true
}

// fuse combines detector probabilities via weighted log-odds: each
// detector's probability is converted to a logit, averaged by weight, then
// scaled by K and passed back through the logistic function. A detector at
// p=0.5 contributes a zero logit and so cannot pull the fused score away
// from neutral regardless of its weight.
func (s *Strategy) fuse(d DetectorProbabilities) float64 {
	type wp struct {
		p, w float64
	}
	terms := []wp{
		{d.Bollinger, s.cfg.WeightBollinger},
		{d.RSI, s.cfg.WeightRSI},
		{d.Momentum, s.cfg.WeightMomentum},
		{d.VWAP, s.cfg.WeightVWAP},
		{d.ORB, s.cfg.WeightORB},
		{d.OFI, s.cfg.WeightOFI},
		{d.Volume, s.cfg.WeightVolume},
	}

	var weightedLogit, totalWeight float64
	for _, t := range terms {
		weightedLogit += t.w * logit(t.p)
		totalWeight += t.w
	}
	if totalWeight <= 0 {
		return 0.5
	}
	avgLogit := weightedLogit / totalWeight
	return sigmoid(s.cfg.K * avgLogit)
}

func logit(p float64) float64 {
	p = clampProb(p)
	return math.Log(p / (1 - p))
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func clampProb(p float64) float64 {
	const eps = 1e-4
	if p < eps {
		return eps
	}
	if p > 1-eps {
		return 1 - eps
	}
	return p
}

func closesOf(bars []bar.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

func lastN(vals []float64, n int) []float64 {
	if n > len(vals) {
		n = len(vals)
	}
	return vals[len(vals)-n:]
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

// bollingerProbability: a close above the rolling mean raises P(long);
// below lowers it (spec §4.7: p = 0.5 + 0.5*tanh(z/2)).
func (s *Strategy) bollingerProbability(bars []bar.Bar) float64 {
	closes := closesOf(bars)
	window := lastN(closes, s.cfg.BollingerWindow)
	m := mean(window)
	sd := stddev(window)
	if sd < 1e-8 {
		return 0.5
	}
	last := closes[len(closes)-1]
	z := (last - m) / sd
	return clampProb(0.5 + 0.5*math.Tanh(z/2))
}

// rsiProbability: classic oversold/overbought reversion via Wilder's RSI.
func (s *Strategy) rsiProbability(bars []bar.Bar) float64 {
	closes := closesOf(bars)
	rsi := wilderRSI(closes, s.cfg.RSIWindow)
	return clampProb(1.0 - rsi/100.0)
}

// momentumProbability: continuation signal based on the sign and magnitude
// of the trailing return over MomentumWindow bars.
func (s *Strategy) momentumProbability(bars []bar.Bar) float64 {
	closes := closesOf(bars)
	n := len(closes)
	w := s.cfg.MomentumWindow
	if w >= n {
		return 0.5
	}
	ret := (closes[n-1] - closes[n-1-w]) / closes[n-1-w]
	return sigmoid(ret * 50.0)
}

// vwapProbability: a close above the rolling volume-weighted average price
// raises P(long) (spec §4.7: p = 0.5 + 0.5*tanh(z), z = (close-vwap)/|vwap|).
func (s *Strategy) vwapProbability(bars []bar.Bar) float64 {
	window := bars
	if len(window) > s.cfg.VWAPWindow {
		window = window[len(window)-s.cfg.VWAPWindow:]
	}
	var pv, vol float64
	for _, b := range window {
		typical := (b.High + b.Low + b.Close) / 3.0
		pv += typical * float64(b.Volume)
		vol += float64(b.Volume)
	}
	if vol < 1e-8 || math.Abs(pv/vol) < 1e-8 {
		return 0.5
	}
	vwap := pv / vol
	last := window[len(window)-1].Close

	z := (last - vwap) / math.Abs(vwap)
	return clampProb(0.5 + 0.5*math.Tanh(z))
}

// orbProbability: breakout signal relative to the current day's opening
// range. Returns 0.5 outside the opening-range-defined part of the day or
// before one has formed.
func (s *Strategy) orbProbability(bars []bar.Bar) float64 {
	n := len(bars)
	dayStart := s.currentDayStart(n)
	opening := bars[dayStart:]
	if len(opening) > s.cfg.ORBOpeningBars {
		opening = opening[:s.cfg.ORBOpeningBars]
	}
	if len(opening) == 0 {
		return 0.5
	}
	hi, lo := opening[0].High, opening[0].Low
	for _, b := range opening {
		if b.High > hi {
			hi = b.High
		}
		if b.Low < lo {
			lo = b.Low
		}
	}
	last := bars[n-1].Close
	rng := hi - lo
	if rng < 1e-8 {
		return 0.5
	}
	switch {
	case last > hi:
		return clampProb(0.5 + 0.5*clampUnit((last-hi)/rng))
	case last < lo:
		return clampProb(0.5 - 0.5*clampUnit((lo-last)/rng))
	default:
		return 0.5
	}
}

// currentDayStart returns the index within bars where the current
// wall-clock trading day began, assuming bars arrive one per minute with
// no gaps (spec §4.11: day = bar_index / barsPerDay).
func (s *Strategy) currentDayStart(n int) int {
	lastIdx := s.barIndex - 1
	day := lastIdx / barsPerDay
	dayStartGlobal := day * barsPerDay
	offsetFromEnd := lastIdx - dayStartGlobal
	start := n - 1 - offsetFromEnd
	if start < 0 {
		start = 0
	}
	return start
}

// ofiProbability: order-flow-imbalance proxy for the current bar only
// (spec §4.7: p = clamp01(0.5 + 0.25*(close-open)/range*tanh(volume/1e6))).
func (s *Strategy) ofiProbability(bars []bar.Bar) float64 {
	last := bars[len(bars)-1]
	rng := last.High - last.Low
	if rng < 1e-8 {
		return 0.5
	}
	body := (last.Close - last.Open) / rng
	p := 0.5 + 0.25*body*math.Tanh(float64(last.Volume)/1e6)
	return clampProb(p)
}

// volumeProbability: scales the sign of the momentum detector's own
// probability by how far the current bar's volume surges above its rolling
// SMA (spec §4.7: ratio = volume/SMA_N(volume) for the current bar).
func (s *Strategy) volumeProbability(bars []bar.Bar, momentum float64) float64 {
	n := len(bars)
	volumes := make([]float64, n)
	for i, b := range bars {
		volumes[i] = float64(b.Volume)
	}
	window := lastN(volumes, s.cfg.VolumeWindow)
	avg := mean(window)
	if avg < 1e-8 {
		return 0.5
	}
	ratio := volumes[n-1] / avg
	surge := clampUnit((ratio - 1.0) / 2.0)

	direction := momentum - 0.5
	return clampProb(0.5 + direction*surge)
}

func clampUnit(x float64) float64 {
	if x > 1 {
		return 1
	}
	if x < -1 {
		return -1
	}
	return x
}

// wilderRSI computes Wilder's RSI seeded by the SMA of the first `period`
// gains/losses, then advanced with EMA smoothing (alpha=1/period) over the
// rest of the series, matching the teacher's indicator conventions.
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
