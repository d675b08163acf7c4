// Package feature turns a 50-bar rolling window into the fixed-length,
// fixed-ordering vectors the online predictors consume. Position order is
// part of the contract (spec §4.3): downstream linear models index into the
// vector positionally, so the ordering below must never be reshuffled.
package feature

import (
	"math"
	"time"

	"github.com/sawpanic/rotorun/internal/bar"
)

const (
	// Lookback is the rolling window size required before Extract returns a
	// vector instead of nil.
	Lookback = 50

	// NumBaseFeatures is the length of the vector before the optional
	// regime extension (spec §4.3, positions 0-62).
	NumBaseFeatures = 63

	// NumRegimeFeatures is the length of the optional extension appended by
	// WithRegime (spec §4.4, positions 63-74).
	NumRegimeFeatures = 12

	// NumFeaturesWithRegime is NumBaseFeatures + NumRegimeFeatures.
	NumFeaturesWithRegime = NumBaseFeatures + NumRegimeFeatures

	epsilon = 1e-10
)

// Vector is a fixed-length, ordered feature vector. Index semantics are
// fixed by spec §4.3/§4.4 and must never change.
type Vector []float64

// Extractor maintains the last Lookback bars for one symbol and derives
// feature vectors from them. It is not safe for concurrent use; the
// rotation trader owns one Extractor per symbol (spec §3, "signal
// generators do not alias portfolio state").
type Extractor struct {
	history    *bar.Ring
	regime     *RegimeExtractor
	withRegime bool
}

// NewExtractor creates an Extractor. When withRegime is true, Extract
// returns NumFeaturesWithRegime-length vectors; otherwise NumBaseFeatures.
func NewExtractor(withRegime bool) *Extractor {
	e := &Extractor{
		history:    bar.NewRing(Lookback),
		withRegime: withRegime,
	}
	if withRegime {
		e.regime = NewRegimeExtractor()
	}
	return e
}

// Reset clears all history, satisfying the idempotent-reset law (spec §8):
// feeding the same bar sequence after Reset reproduces identical vectors.
func (e *Extractor) Reset() {
	e.history.Clear()
	if e.regime != nil {
		e.regime.Reset()
	}
}

// Extract appends bar b to the window and returns the feature vector once
// Lookback bars have accumulated; otherwise it returns nil (spec §4.3,
// §8 boundary: "first 50 bars per symbol produce no features"). Returns nil
// also when the computed vector contains a NaN or Inf value.
func (e *Extractor) Extract(b bar.Bar) Vector {
	e.history.Append(b)
	if !e.history.Full() {
		return nil
	}

	bars := e.history.Slice()
	closes := closesOf(bars)
	volumes := volumesOf(bars)

	v := make(Vector, NumBaseFeatures, capFor(e.withRegime))

	idx := 0
	idx = writeTimeFeatures(v, idx, b.Timestamp)

	// 8-11: most recent close, open, high, low.
	v[idx] = b.Close
	idx++
	v[idx] = b.Open
	idx++
	v[idx] = b.High
	idx++
	v[idx] = b.Low
	idx++

	// 12-14: SMA(10,20,50).
	sma10 := sma(closes, 10)
	sma20 := sma(closes, 20)
	sma50 := sma(closes, 50)
	v[idx] = sma10
	idx++
	v[idx] = sma20
	idx++
	v[idx] = sma50
	idx++

	// 15-17: EMA(10,20,50), seeded by SMA of the first N values.
	v[idx] = ema(closes, 10)
	idx++
	v[idx] = ema(closes, 20)
	idx++
	v[idx] = ema(closes, 50)
	idx++

	// 18-21: Bollinger(20, 2sigma): mean, upper, lower, sigma.
	bbMean, bbUpper, bbLower, bbSigma, percentB, bandwidth := bollinger(closes, 20, 2.0)
	v[idx] = bbMean
	idx++
	v[idx] = bbUpper
	idx++
	v[idx] = bbLower
	idx++
	v[idx] = bbSigma
	idx++

	// 22: ATR(14), normalized by close then multiplied back by close.
	atrRaw := atrSimple(bars, 14)
	atrNorm := guardDiv(atrRaw, b.Close, 0.0)
	v[idx] = atrNorm * b.Close
	idx++

	// 23-24: raw volume; OBV approximation.
	v[idx] = float64(b.Volume)
	idx++
	v[idx] = obvApprox(bars)
	idx++

	// 25-28: H-L range, C-O body, H-C upper wick, C-L lower wick.
	v[idx] = b.High - b.Low
	idx++
	v[idx] = b.Close - b.Open
	idx++
	v[idx] = b.High - b.Close
	idx++
	v[idx] = b.Close - b.Low
	idx++

	// 29-32: momentum over 1,3,5,10 bars.
	mom1 := momentum(closes, 1)
	mom3 := momentum(closes, 3)
	mom5 := momentum(closes, 5)
	mom10 := momentum(closes, 10)
	v[idx] = mom1
	idx++
	v[idx] = mom3
	idx++
	v[idx] = mom5
	idx++
	v[idx] = mom10
	idx++

	// 33-35: realized vol over 10,20 bars; ATR(14)/close.
	vol10 := realizedVol(closes, 10)
	vol20 := realizedVol(closes, 20)
	v[idx] = vol10
	idx++
	v[idx] = vol20
	idx++
	v[idx] = guardDiv(atrRaw, b.Close, 0.0)
	idx++

	// 36-37: volume surge; relative volume over 20 bars.
	volSurge := volumeSurge(volumes)
	relVol := relativeVolume(volumes, 20)
	v[idx] = volSurge
	idx++
	v[idx] = relVol
	idx++

	// 38-40: price position within 50/20/10-bar range.
	pricePos50 := pricePosition(bars, b.Close, 50)
	pricePos20 := pricePosition(bars, b.Close, 20)
	pricePos10 := pricePosition(bars, b.Close, 10)
	v[idx] = pricePos50
	idx++
	v[idx] = pricePos20
	idx++
	v[idx] = pricePos10
	idx++

	// 41-43: RSI-like ratio; directional momentum over 10,20 bars.
	rsiLike := rsiLikeRatio(closes, 14)
	dirMom10 := directionalMomentum(closes, 10)
	dirMom20 := directionalMomentum(closes, 20)
	v[idx] = rsiLike
	idx++
	v[idx] = dirMom10
	idx++
	v[idx] = dirMom20
	idx++

	// 44-48: interaction terms.
	v[idx] = mom1 * vol10
	idx++
	v[idx] = mom5 * vol10
	idx++
	v[idx] = mom10 * volSurge
	idx++
	v[idx] = rsiLike * vol10
	idx++
	v[idx] = pricePos50 * dirMom10
	idx++

	// 49-51: momentum accelerations; vol-change difference.
	mom2 := momentum(closes, 2)
	v[idx] = mom2 - mom5
	idx++
	v[idx] = mom5 - mom10
	idx++
	v[idx] = vol10 - vol20
	idx++

	// 52: log(1+|momentum_10|).
	v[idx] = math.Log1p(math.Abs(mom10))
	idx++

	// 53-55: MA deviation over 5,10,20.
	v[idx] = maDeviation(closes, 5)
	idx++
	v[idx] = maDeviation(closes, 10)
	idx++
	v[idx] = maDeviation(closes, 20)
	idx++

	// 56-61: Bollinger derived ratios.
	v[idx] = guardDiv(b.Close-bbMean, b.Close, 0.0)
	idx++
	v[idx] = guardDiv(bbSigma, b.Close, 0.0)
	idx++
	v[idx] = guardDiv(b.Close-bbUpper, b.Close, 0.0)
	idx++
	v[idx] = guardDiv(b.Close-bbLower, b.Close, 0.0)
	idx++
	v[idx] = percentB
	idx++
	v[idx] = bandwidth
	idx++

	// 62: bias term.
	v[idx] = 1.0
	idx++

	if idx != NumBaseFeatures {
		panic("feature: base vector index mismatch")
	}

	if e.withRegime {
		rv := e.regime.Extract(bars)
		v = append(v, rv...)
	}

	if !finite(v) {
		return nil
	}
	return v
}

func capFor(withRegime bool) int {
	if withRegime {
		return NumFeaturesWithRegime
	}
	return NumBaseFeatures
}

func finite(v Vector) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func closesOf(bars []bar.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

func volumesOf(bars []bar.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = float64(b.Volume)
	}
	return out
}

func writeTimeFeatures(v Vector, idx int, ts time.Time) int {
	u := ts.UTC()
	const twoPi = 2.0 * math.Pi

	hour := float64(u.Hour())
	minute := float64(u.Minute())
	dow := float64(int(u.Weekday()))
	dom := float64(u.Day())

	v[idx] = math.Sin(twoPi * hour / 24.0)
	idx++
	v[idx] = math.Cos(twoPi * hour / 24.0)
	idx++
	v[idx] = math.Sin(twoPi * minute / 60.0)
	idx++
	v[idx] = math.Cos(twoPi * minute / 60.0)
	idx++
	v[idx] = math.Sin(twoPi * dow / 7.0)
	idx++
	v[idx] = math.Cos(twoPi * dow / 7.0)
	idx++
	v[idx] = math.Sin(twoPi * dom / 31.0)
	idx++
	v[idx] = math.Cos(twoPi * dom / 31.0)
	idx++
	return idx
}

// guardDiv implements the numerical policy from spec §4.3: any division
// guarded by |denominator| > 1e-10, falling back to a neutral value.
func guardDiv(num, den, neutral float64) float64 {
	if math.Abs(den) <= epsilon {
		return neutral
	}
	return num / den
}

func lastN(vals []float64, n int) []float64 {
	if n > len(vals) {
		n = len(vals)
	}
	return vals[len(vals)-n:]
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0.0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// stddev is the sample standard deviation (n-1 denominator), matching the
// original source's MathUtils::stddev.
func stddev(vals []float64) float64 {
	if len(vals) < 2 {
		return 0.0
	}
	m := mean(vals)
	sq := 0.0
	for _, v := range vals {
		d := v - m
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(vals)-1))
}

func sma(closes []float64, period int) float64 {
	return mean(lastN(closes, period))
}

// ema computes a standard EMA with alpha = 2/(N+1), seeded by the SMA of
// the first N values in the window, then advanced through the remainder of
// the full window (spec §4.3).
func ema(closes []float64, period int) float64 {
	if len(closes) == 0 {
		return 0.0
	}
	if period > len(closes) {
		period = len(closes)
	}
	seed := mean(closes[:period])
	alpha := 2.0 / float64(period+1)
	val := seed
	for i := period; i < len(closes); i++ {
		val = alpha*closes[i] + (1-alpha)*val
	}
	return val
}

func bollinger(closes []float64, period int, k float64) (mean_, upper, lower, sigma, percentB, bandwidth float64) {
	window := lastN(closes, period)
	mean_ = mean(window)
	sigma = stddev(window)
	upper = mean_ + k*sigma
	lower = mean_ - k*sigma

	rangeVal := upper - lower
	last := closes[len(closes)-1]
	percentB = guardDiv(last-lower, rangeVal, 0.5)
	bandwidth = guardDiv(rangeVal, mean_, 0.0)
	return
}

// atrSimple averages the true range over the last `period` bars (simple
// mean, matching the original source rather than Wilder's smoothing, which
// is reserved for the Williams%R-RSI strategy per spec §4.8).
func atrSimple(bars []bar.Bar, period int) float64 {
	n := len(bars)
	if n < 2 {
		return 0.0
	}
	if period > n-1 {
		period = n - 1
	}
	start := n - period
	trs := make([]float64, 0, period)
	for i := start; i < n; i++ {
		hl := bars[i].High - bars[i].Low
		hc, lc := 0.0, 0.0
		if i > 0 {
			hc = math.Abs(bars[i].High - bars[i-1].Close)
			lc = math.Abs(bars[i].Low - bars[i-1].Close)
		}
		trs = append(trs, math.Max(hl, math.Max(hc, lc)))
	}
	return mean(trs)
}

// obvApprox is a running cumulative-volume approximation of On-Balance
// Volume over the window: volume added on up bars, subtracted on down bars.
func obvApprox(bars []bar.Bar) float64 {
	obv := 0.0
	for i := 1; i < len(bars); i++ {
		switch {
		case bars[i].Close > bars[i-1].Close:
			obv += float64(bars[i].Volume)
		case bars[i].Close < bars[i-1].Close:
			obv -= float64(bars[i].Volume)
		}
	}
	return obv
}

func momentum(closes []float64, period int) float64 {
	n := len(closes)
	if n <= period {
		return 0.0
	}
	cur := closes[n-1]
	past := closes[n-1-period]
	return guardDiv(cur-past, past, 0.0)
}

func realizedVol(closes []float64, period int) float64 {
	n := len(closes)
	if n < 2 {
		return 0.0
	}
	if period > n {
		period = n
	}
	start := n - period
	rets := make([]float64, 0, period)
	for i := start + 1; i < n; i++ {
		r := guardDiv(closes[i]-closes[i-1], closes[i-1], math.NaN())
		if !math.IsNaN(r) {
			rets = append(rets, r)
		}
	}
	if len(rets) == 0 {
		return 0.0
	}
	return stddev(rets)
}

func volumeSurge(volumes []float64) float64 {
	if len(volumes) == 0 {
		return 1.0
	}
	recent := lastN(volumes, 5)
	return guardDiv(mean(recent), mean(volumes), 1.0)
}

func relativeVolume(volumes []float64, period int) float64 {
	n := len(volumes)
	if n == 0 {
		return 0.0
	}
	avg := mean(lastN(volumes, period))
	return guardDiv(volumes[n-1]-avg, avg, 0.0)
}

func pricePosition(bars []bar.Bar, price float64, period int) float64 {
	n := len(bars)
	if n == 0 {
		return 0.5
	}
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
		return 0.5
	}
	return (price - lo) / rng
}

func rsiLikeRatio(closes []float64, period int) float64 {
	n := len(closes)
	if n < 2 {
		return 0.5
	}
	if period > n-1 {
		period = n - 1
	}
	start := n - period
	var gains, losses []float64
	for i := start; i < n; i++ {
		if i == 0 {
			continue
		}
		if math.Abs(closes[i-1]) <= epsilon {
			continue
		}
		ret := guardDiv(closes[i]-closes[i-1], closes[i-1], 0.0)
		if ret > 0 {
			gains = append(gains, ret)
			losses = append(losses, 0.0)
		} else {
			gains = append(gains, 0.0)
			losses = append(losses, -ret)
		}
	}
	if len(gains) == 0 {
		return 0.5
	}
	avgGain := mean(gains)
	avgLoss := mean(losses)
	if avgLoss < 1e-8 {
		return 1.0
	}
	if avgGain < 1e-8 {
		return 0.0
	}
	rs := avgGain / avgLoss
	return rs / (1.0 + rs)
}

func directionalMomentum(closes []float64, period int) float64 {
	n := len(closes)
	if n < 2 || period >= n {
		return 0.0
	}
	up, down := 0, 0
	start := n - period - 1
	for i := start + 1; i < n; i++ {
		switch {
		case closes[i] > closes[i-1]:
			up++
		case closes[i] < closes[i-1]:
			down++
		}
	}
	total := up + down
	if total == 0 {
		return 0.0
	}
	return float64(up-down) / float64(total)
}

func maDeviation(closes []float64, period int) float64 {
	n := len(closes)
	if n == 0 || period > n {
		return 0.0
	}
	ma := mean(closes[n-period:])
	if math.Abs(ma) <= epsilon {
		return 0.0
	}
	return (closes[n-1] - ma) / ma
}
