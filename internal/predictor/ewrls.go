// Package predictor implements the online linear predictors that turn a
// feature vector into a directional prediction: an exponentially weighted
// recursive least squares (EWRLS) regressor, wrapped by a multi-horizon
// adapter that also reports a confidence score.
package predictor

import "math"

// denomFloor guards the EWRLS update's scalar denominator. Per spec §5.2,
// once the denominator would drop below this floor it is clamped and the
// update proceeds rather than resetting the covariance matrix (the
// behavior of the original single-language reference implementation).
const denomFloor = 1e-10

// EWRLS is an exponentially weighted recursive least squares regressor
// over a fixed-dimension feature vector. It is the online learner behind
// each symbol's signal generator (spec §5).
type EWRLS struct {
	dim    int
	lambda float64
	initP  float64
	theta  []float64
	p      [][]float64
}

// NewEWRLS builds an EWRLS predictor for vectors of length dim, with
// forgetting factor lambda in (0,1] and covariance initialized to
// initP*I (spec §5.2 default: initP=100).
func NewEWRLS(dim int, lambda, initP float64) *EWRLS {
	if dim <= 0 {
		panic("predictor: dim must be positive")
	}
	if lambda <= 0 || lambda > 1 {
		panic("predictor: lambda must be in (0,1]")
	}
	e := &EWRLS{
		dim:    dim,
		lambda: lambda,
		initP:  initP,
		theta:  make([]float64, dim),
		p:      make([][]float64, dim),
	}
	for i := range e.p {
		e.p[i] = make([]float64, dim)
		e.p[i][i] = initP
	}
	return e
}

// Reset reinitializes weights to zero and covariance to initP*I, as if the
// predictor had never seen data (idempotent-reset law, spec §8).
func (e *EWRLS) Reset(initP float64) {
	e.initP = initP
	for i := range e.theta {
		e.theta[i] = 0
	}
	resetCovariance(e.p, initP)
}

// Predict returns theta . x without mutating any state.
func (e *EWRLS) Predict(x []float64) float64 {
	return dot(e.theta, x)
}

// Update performs one EWRLS step given feature vector x and observed
// target y, and returns the prediction error (y - prediction) computed
// from the pre-update weights. Per spec §4.5, a non-finite x or y is
// rejected silently (theta/P are left exactly as they were); if the
// update itself would leave theta or P non-finite, theta resets to zero
// and P resets to initP*I rather than propagating the corruption (spec
// §8's EWRLS recovery law).
func (e *EWRLS) Update(x []float64, y float64) float64 {
	if !isFinite(y) || !vectorFinite(x) {
		return 0
	}

	pred := e.Predict(x)
	errVal := y - pred

	px := matVec(e.p, x)
	denom := e.lambda + dot(x, px)
	if denom < denomFloor {
		denom = denomFloor
	}

	gain := make([]float64, e.dim)
	for i := range gain {
		gain[i] = px[i] / denom
	}

	newTheta := make([]float64, e.dim)
	copy(newTheta, e.theta)
	for i := range newTheta {
		newTheta[i] += gain[i] * errVal
	}

	// P = (P - gain * px^T) / lambda, then symmetrized to guard against
	// floating-point drift away from P = P^T.
	newP := make([][]float64, e.dim)
	for i := range newP {
		newP[i] = make([]float64, e.dim)
		for j := 0; j < e.dim; j++ {
			newP[i][j] = (e.p[i][j] - gain[i]*px[j]) / e.lambda
		}
	}
	symmetrize(newP)

	if !vectorFinite(newTheta) {
		for i := range e.theta {
			e.theta[i] = 0
		}
		resetCovariance(e.p, e.initP)
		return errVal
	}
	if !matrixFinite(newP) {
		resetCovariance(e.p, e.initP)
		return errVal
	}

	copy(e.theta, newTheta)
	e.p = newP
	return errVal
}

// isFinite reports whether x is neither NaN nor +-Inf.
func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// vectorFinite reports whether every element of v is finite.
func vectorFinite(v []float64) bool {
	for _, x := range v {
		if !isFinite(x) {
			return false
		}
	}
	return true
}

// matrixFinite reports whether every element of m is finite.
func matrixFinite(m [][]float64) bool {
	for _, row := range m {
		if !vectorFinite(row) {
			return false
		}
	}
	return true
}

// symmetrize replaces m with (m + m^T) / 2 in place.
func symmetrize(m [][]float64) {
	n := len(m)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			avg := (m[i][j] + m[j][i]) / 2
			m[i][j] = avg
			m[j][i] = avg
		}
	}
}

// resetCovariance overwrites m in place with initP*I.
func resetCovariance(m [][]float64, initP float64) {
	for i := range m {
		for j := range m[i] {
			m[i][j] = 0
		}
		m[i][i] = initP
	}
}

// Weights returns a copy of the current coefficient vector.
func (e *EWRLS) Weights() []float64 {
	out := make([]float64, e.dim)
	copy(out, e.theta)
	return out
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func matVec(m [][]float64, x []float64) []float64 {
	out := make([]float64, len(m))
	for i := range m {
		out[i] = dot(m[i], x)
	}
	return out
}

// clampFinite guards against numerical blowup in long-running EWRLS state;
// a non-finite prediction is treated as "no signal" by callers.
func clampFinite(x float64) float64 {
	if !isFinite(x) {
		return 0
	}
	return x
}
