package predictor

import "math"

// Horizon identifies how many bars ahead a prediction targets.
type Horizon int

// Horizons recognized by MultiHorizonPredictor. Only Horizon2 is backed by
// a live EWRLS instance (spec §5.3: "only the 2-bar horizon is required");
// the others are kept as named placeholders so the wrapper's shape matches
// a predictor that could grow additional horizons without an API break.
const (
	Horizon1  Horizon = 1
	Horizon2  Horizon = 2
	Horizon5  Horizon = 5
	Horizon10 Horizon = 10
)

// errorDecay is the EWMA decay applied to squared prediction errors when
// deriving a confidence score (spec §5.3: "EWMA of squared errors as
// uncertainty").
const errorDecay = 0.95

// MultiHorizonPredictor wraps one or more EWRLS regressors, one per
// horizon, and converts each horizon's running error into a bounded
// confidence score alongside the raw prediction.
type MultiHorizonPredictor struct {
	dim         int
	predictors  map[Horizon]*EWRLS
	ewmaSqErr   map[Horizon]float64
	initialized map[Horizon]bool
}

// NewMultiHorizonPredictor builds a wrapper over feature vectors of length
// dim. Only Horizon2 receives a backing EWRLS instance.
func NewMultiHorizonPredictor(dim int, lambda, initP float64) *MultiHorizonPredictor {
	m := &MultiHorizonPredictor{
		dim:         dim,
		predictors:  make(map[Horizon]*EWRLS),
		ewmaSqErr:   make(map[Horizon]float64),
		initialized: make(map[Horizon]bool),
	}
	m.predictors[Horizon2] = NewEWRLS(dim, lambda, initP)
	return m
}

// Implemented reports whether horizon h is backed by a live predictor.
func (m *MultiHorizonPredictor) Implemented(h Horizon) bool {
	_, ok := m.predictors[h]
	return ok
}

// Predict returns the raw prediction and a confidence in [0,1] for
// horizon h. ok is false for unimplemented horizons, in which case the
// prediction is 0 and confidence is 0.
func (m *MultiHorizonPredictor) Predict(h Horizon, x []float64) (value float64, confidence float64, ok bool) {
	p, exists := m.predictors[h]
	if !exists {
		return 0, 0, false
	}
	value = clampFinite(p.Predict(x))
	confidence = m.confidenceFor(h, value)
	return value, confidence, true
}

// Update feeds an observed target for horizon h and advances that
// horizon's error EWMA. No-op for unimplemented horizons.
func (m *MultiHorizonPredictor) Update(h Horizon, x []float64, y float64) {
	p, exists := m.predictors[h]
	if !exists {
		return
	}
	errVal := p.Update(x, y)
	sq := errVal * errVal
	if !m.initialized[h] {
		m.ewmaSqErr[h] = sq
		m.initialized[h] = true
		return
	}
	m.ewmaSqErr[h] = errorDecay*m.ewmaSqErr[h] + (1-errorDecay)*sq
}

// sigmaFloor keeps confidenceFor's signal-to-noise ratio finite when the
// running error EWMA is exactly zero (e.g. the first few updates).
const sigmaFloor = 1e-6

// confidenceFor implements spec §4.6's confidence formula: with
// s = |prediction| / sigma (sigma being the horizon's running RMS error),
// confidence = (s/2) / (1 + s/2). This is 0 when the prediction is zero
// and asymptotes toward 1 as the prediction grows large relative to the
// model's own recent error.
func (m *MultiHorizonPredictor) confidenceFor(h Horizon, prediction float64) float64 {
	sq, ok := m.ewmaSqErr[h]
	if !ok {
		return 0.5 // no error history yet: neutral confidence
	}
	sigma := math.Sqrt(sq)
	if sigma < sigmaFloor {
		sigma = sigmaFloor
	}
	s := math.Abs(prediction) / sigma
	halfS := s / 2
	return halfS / (1 + halfS)
}

// Reset reinitializes every backed horizon's predictor and error state.
func (m *MultiHorizonPredictor) Reset(initP float64) {
	for h, p := range m.predictors {
		p.Reset(initP)
		delete(m.ewmaSqErr, h)
		delete(m.initialized, h)
	}
}
