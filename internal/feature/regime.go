package feature

import (
	"math"

	"github.com/sawpanic/rotorun/internal/bar"
)

const (
	regimeClusters  = 3
	regimeKMeansIt  = 10
	regimeTemp      = 0.1
	regimeDurCap    = 120
	regimeClipBound = 3.0
	regimeCorrBound = 1.0

	// regimeVolWindow is the rolling window used to build the volatility
	// series microstructure features are derived from (spec §4.4, "20-bar
	// realized vol"); regimeVolAvgWindow is the window the current value is
	// compared against ("average of the last 60 rolling-20-bar vols" in
	// original_source). Extract's input is capped at Lookback=50 bars, so
	// the vol series it builds from is at most Lookback-regimeVolWindow
	// points long; the average below naturally uses all available points
	// when that is fewer than regimeVolAvgWindow rather than refusing to
	// compute the feature at all.
	regimeVolWindow    = 20
	regimeVolAvgWindow = 60
	regimePVWindow     = 20
)

// RegimeExtractor derives the 12 regime-aware features appended after the
// base 63 when an Extractor is built with withRegime=true (spec §4.4).
// It keeps cross-call state (previous cluster assignments, durations) so
// that duration tracking persists across successive Extract calls on the
// same rolling window.
type RegimeExtractor struct {
	returnsCluster int
	returnsDur     int
	volCluster     int
	volDur         int
	initialized    bool
}

// NewRegimeExtractor returns a RegimeExtractor with zeroed duration state.
func NewRegimeExtractor() *RegimeExtractor {
	return &RegimeExtractor{}
}

// Reset clears all persisted cluster/duration state (idempotent-reset law,
// spec §8).
func (r *RegimeExtractor) Reset() {
	*r = RegimeExtractor{}
}

// Extract computes the 12 regime features from the full 50-bar window.
func (r *RegimeExtractor) Extract(bars []bar.Bar) Vector {
	closes := closesOf(bars)
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		returns = append(returns, guardDiv(closes[i]-closes[i-1], closes[i-1], 0.0))
	}

	volSeries := rollingVol(returns, regimeVolWindow)

	retCentroids, retAssign := kmeans1D(returns, regimeClusters, regimeKMeansIt)
	volCentroids, volAssign := kmeans1D(volSeries, regimeClusters, regimeKMeansIt)

	retCluster := lastAssignment(retAssign)
	volCluster := lastAssignment(volAssign)

	retProbs := softmaxDistances(returns[len(returns)-1], retCentroids)
	volProbs := softmaxDistances(volSeries[len(volSeries)-1], volCentroids)

	if !r.initialized {
		r.returnsCluster = retCluster
		r.volCluster = volCluster
		r.initialized = true
	}
	if retCluster == r.returnsCluster {
		r.returnsDur++
	} else {
		r.returnsCluster = retCluster
		r.returnsDur = 0
	}
	if volCluster == r.volCluster {
		r.volDur++
	} else {
		r.volCluster = volCluster
		r.volDur = 0
	}
	if r.returnsDur > regimeDurCap {
		r.returnsDur = regimeDurCap
	}
	if r.volDur > regimeDurCap {
		r.volDur = regimeDurCap
	}

	// Microstructure features (spec §4.4, confirmed against
	// original_source/src/predictor/regime_features.cpp): volatility
	// ratio of the current 20-bar vol to the average of up to the last 60
	// rolling 20-bar vols, that same current vol's z-score against the
	// same window, the 20-bar price/volume correlation, and the current
	// bar's volume z-score against up to the last 60 volumes.
	currentVol := volSeries[len(volSeries)-1]
	volWindow := lastN(volSeries, regimeVolAvgWindow)
	volRatio := clip(guardDiv(currentVol, mean(volWindow), 1.0), regimeClipBound)
	volZ := clip(zscore(currentVol, volWindow), regimeClipBound)

	volumes := volumesOf(bars)
	recentCloses := lastN(closes, regimePVWindow)
	recentVolumes := lastN(volumes, regimePVWindow)
	pvCorr := clip(correlation(recentCloses, recentVolumes), regimeCorrBound)

	volumeWindow := lastN(volumes, regimeVolAvgWindow)
	volumeZ := clip(zscore(volumes[len(volumes)-1], volumeWindow), regimeClipBound)

	out := make(Vector, NumRegimeFeatures)
	out[0] = retProbs[0]
	out[1] = retProbs[1]
	out[2] = retProbs[2]
	out[3] = float64(r.returnsDur) / regimeDurCap
	out[4] = volProbs[0]
	out[5] = volProbs[1]
	out[6] = volProbs[2]
	out[7] = float64(r.volDur) / regimeDurCap
	out[8] = volRatio
	out[9] = volZ
	out[10] = pvCorr
	out[11] = volumeZ
	return out
}

func rollingVol(returns []float64, window int) []float64 {
	if len(returns) < window {
		return []float64{stddev(returns)}
	}
	out := make([]float64, 0, len(returns)-window+1)
	for i := window; i <= len(returns); i++ {
		out = append(out, stddev(returns[i-window:i]))
	}
	return out
}

// kmeans1D runs Lloyd's algorithm on 1-D data with a fixed number of
// centroids and iterations (spec §4.4: "3-centroid k-means, 10
// iterations"). Centroids are seeded from evenly spaced quantile-like
// positions of the sorted-by-index data so the result is deterministic.
func kmeans1D(data []float64, k, iterations int) (centroids []float64, assignments []int) {
	n := len(data)
	if n == 0 {
		return make([]float64, k), make([]int, 0)
	}
	centroids = seedCentroids(data, k)
	assignments = make([]int, n)

	for iter := 0; iter < iterations; iter++ {
		for i, x := range data {
			best, bestDist := 0, math.Abs(x-centroids[0])
			for c := 1; c < k; c++ {
				d := math.Abs(x - centroids[c])
				if d < bestDist {
					best, bestDist = c, d
				}
			}
			assignments[i] = best
		}
		sums := make([]float64, k)
		counts := make([]int, k)
		for i, x := range data {
			c := assignments[i]
			sums[c] += x
			counts[c]++
		}
		for c := 0; c < k; c++ {
			if counts[c] > 0 {
				centroids[c] = sums[c] / float64(counts[c])
			}
		}
	}
	return centroids, assignments
}

func seedCentroids(data []float64, k int) []float64 {
	n := len(data)
	out := make([]float64, k)
	if n == 0 {
		return out
	}
	lo, hi := data[0], data[0]
	for _, x := range data {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	if hi-lo < epsilon {
		for c := range out {
			out[c] = lo
		}
		return out
	}
	for c := 0; c < k; c++ {
		frac := float64(c+1) / float64(k+1)
		out[c] = lo + frac*(hi-lo)
	}
	return out
}

func lastAssignment(assignments []int) int {
	if len(assignments) == 0 {
		return 0
	}
	return assignments[len(assignments)-1]
}

// softmaxDistances converts distances from x to each centroid into a
// probability simplex via softmax(-distance/temperature), so the nearest
// centroid gets the highest probability (spec §4.4, "softmax cluster
// probabilities, temperature 0.1").
func softmaxDistances(x float64, centroids []float64) []float64 {
	k := len(centroids)
	logits := make([]float64, k)
	maxLogit := math.Inf(-1)
	for c := 0; c < k; c++ {
		logits[c] = -math.Abs(x-centroids[c]) / regimeTemp
		if logits[c] > maxLogit {
			maxLogit = logits[c]
		}
	}
	sum := 0.0
	probs := make([]float64, k)
	for c := 0; c < k; c++ {
		probs[c] = math.Exp(logits[c] - maxLogit)
		sum += probs[c]
	}
	if sum <= epsilon {
		uniform := 1.0 / float64(k)
		for c := range probs {
			probs[c] = uniform
		}
		return probs
	}
	for c := range probs {
		probs[c] /= sum
	}
	return probs
}

func zscore(x float64, series []float64) float64 {
	m := mean(series)
	sd := stddev(series)
	if sd <= epsilon {
		return 0.0
	}
	return (x - m) / sd
}

func clip(x, bound float64) float64 {
	if x > bound {
		return bound
	}
	if x < -bound {
		return -bound
	}
	return x
}

func correlation(a, b []float64) float64 {
	n := len(a)
	if n != len(b) || n < 2 {
		return 0.0
	}
	ma, mb := mean(a), mean(b)
	var cov, va, vb float64
	for i := 0; i < n; i++ {
		da, db := a[i]-ma, b[i]-mb
		cov += da * db
		va += da * da
		vb += db * db
	}
	if va <= epsilon || vb <= epsilon {
		return 0.0
	}
	return cov / math.Sqrt(va*vb)
}
